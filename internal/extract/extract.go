// Package extract sends one invoice file plus instructions to a hosted
// multimodal model and returns the model's text unchanged.
package extract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fedutinova/invoice-extractor/internal/common"
	"github.com/fedutinova/invoice-extractor/internal/upload"
)

// Request is one multimodal call: system text, one attachment, user text.
type Request struct {
	SystemInstruction string
	File              *upload.File
	UserInstruction   string
}

// NewRequest refuses to build a request without file data.
func NewRequest(systemInstruction string, file *upload.File, userInstruction string) (Request, error) {
	if file == nil || len(file.Data) == 0 {
		return Request{}, common.MissingInputError{}
	}
	return Request{
		SystemInstruction: systemInstruction,
		File:              file,
		UserInstruction:   userInstruction,
	}, nil
}

type Result struct {
	Text       string
	Model      string
	TokensUsed int
	Duration   time.Duration
}

// Provider is a hosted model backend. Implementations make exactly one
// remote call per Generate and never retry.
type Provider interface {
	Name() string
	Generate(ctx context.Context, req Request) (*Result, error)
}

type Client struct {
	provider           Provider
	systemInstruction  string
	defaultInstruction string
	logger             *slog.Logger
}

func NewClient(provider Provider, systemInstruction, defaultInstruction string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		provider:           provider,
		systemInstruction:  systemInstruction,
		defaultInstruction: defaultInstruction,
		logger:             logger,
	}
}

func (c *Client) Provider() string {
	return c.provider.Name()
}

func (c *Client) DefaultInstruction() string {
	return c.defaultInstruction
}

// Extract performs the single round trip. Any provider failure comes back as
// an extraction error; the returned text is exactly what the model produced.
func (c *Client) Extract(ctx context.Context, file *upload.File, userInstruction string) (string, error) {
	if strings.TrimSpace(userInstruction) == "" {
		userInstruction = c.defaultInstruction
	}
	req, err := NewRequest(c.systemInstruction, file, userInstruction)
	if err != nil {
		return "", err
	}

	rid := uuid.New().String()
	start := time.Now()
	c.logger.Info("extract.start",
		"req_id", rid,
		"provider", c.provider.Name(),
		"file", file.Name,
		"media_type", file.MediaType,
		"size_bytes", file.Size(),
		"instruction_length", len(userInstruction),
	)

	res, err := c.provider.Generate(ctx, req)
	if err == nil && res == nil {
		err = errors.New("provider returned no result")
	}
	if err != nil {
		c.logger.Error("extract.failed",
			"req_id", rid,
			"provider", c.provider.Name(),
			"error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return "", common.WrapExtraction(c.provider.Name(), err)
	}

	c.logger.Info("extract.ok",
		"req_id", rid,
		"provider", c.provider.Name(),
		"model", res.Model,
		"tokens_used", res.TokensUsed,
		"response_length", len(res.Text),
		"response_preview", preview(res.Text, 200),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return res.Text, nil
}

func preview(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

type unavailable struct {
	name string
	err  error
}

// Unavailable returns a provider that fails every call with err. It stands in
// for a provider that could not be constructed, e.g. without an API key.
func Unavailable(name string, err error) Provider {
	return &unavailable{name: name, err: err}
}

func (u *unavailable) Name() string {
	return u.name
}

func (u *unavailable) Generate(ctx context.Context, req Request) (*Result, error) {
	return nil, fmt.Errorf("provider not available: %w", u.err)
}
