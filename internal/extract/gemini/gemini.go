package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"google.golang.org/genai"

	"github.com/fedutinova/invoice-extractor/internal/extract"
)

const Name = "gemini"

var ErrNoAPIKey = errors.New("GOOGLE_API_KEY is not set")

type Config struct {
	APIKey  string
	Model   string
	BaseURL string
}

type Provider struct {
	client *genai.Client
	model  string
}

func New(ctx context.Context, cfg Config) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, ErrNoAPIKey
	}
	cc := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &Provider{client: client, model: cfg.Model}, nil
}

func (p *Provider) Name() string {
	return Name
}

// Generate sends the file as inline data followed by the user instruction.
// Gemini accepts PDFs inline, so both images and documents go the same way.
func (p *Provider) Generate(ctx context.Context, req extract.Request) (*extract.Result, error) {
	start := time.Now()

	parts := []*genai.Part{
		genai.NewPartFromBytes(req.File.Data, req.File.MediaType),
		genai.NewPartFromText(req.UserInstruction),
	}
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	var gc *genai.GenerateContentConfig
	if req.SystemInstruction != "" {
		gc = &genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(req.SystemInstruction, genai.RoleUser),
		}
	}

	slog.Debug("sending request to gemini",
		"model", p.model,
		"media_type", req.File.MediaType,
		"size_bytes", len(req.File.Data))

	resp, err := p.client.Models.GenerateContent(ctx, p.model, contents, gc)
	if err != nil {
		return nil, fmt.Errorf("gemini generate content: %w", err)
	}
	if len(resp.Candidates) == 0 {
		if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
			return nil, fmt.Errorf("response blocked: %s", resp.PromptFeedback.BlockReason)
		}
		return nil, errors.New("no candidates in response")
	}

	text := resp.Text()
	if text == "" {
		return nil, fmt.Errorf("no text in response (finish reason %s)", resp.Candidates[0].FinishReason)
	}

	res := &extract.Result{
		Text:     text,
		Model:    p.model,
		Duration: time.Since(start),
	}
	if resp.ModelVersion != "" {
		res.Model = resp.ModelVersion
	}
	if resp.UsageMetadata != nil {
		res.TokensUsed = int(resp.UsageMetadata.TotalTokenCount)
	}
	return res, nil
}
