package openai

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/fedutinova/invoice-extractor/internal/extract"
)

const (
	Name = "openai"

	defaultMaxTokens = 2000
	// base64 payload ceiling for image_url data URLs
	maxEncodedSize = 20 * 1024 * 1024
)

var (
	ErrNoAPIKey         = errors.New("OPENAI_API_KEY is not set")
	ErrUnsupportedMedia = errors.New("media type not supported as image input")
)

type Config struct {
	APIKey    string
	Model     string
	BaseURL   string
	MaxTokens int
}

type Provider struct {
	openAI    *openai.Client
	model     string
	maxTokens int
}

func New(cfg Config) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, ErrNoAPIKey
	}
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	model := cfg.Model
	if model == "" {
		model = openai.GPT4o
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	return &Provider{
		openAI:    openai.NewClientWithConfig(oc),
		model:     model,
		maxTokens: maxTokens,
	}, nil
}

func (p *Provider) Name() string {
	return Name
}

func (p *Provider) Generate(ctx context.Context, req extract.Request) (*extract.Result, error) {
	start := time.Now()

	imagePart, err := imageContent(req.File.Data, req.File.MediaType)
	if err != nil {
		return nil, err
	}

	var messages []openai.ChatCompletionMessage
	if req.SystemInstruction != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.SystemInstruction,
		})
	}

	// image first, then the instruction
	messages = append(messages, openai.ChatCompletionMessage{
		Role: openai.ChatMessageRoleUser,
		MultiContent: []openai.ChatMessagePart{
			*imagePart,
			{Type: openai.ChatMessagePartTypeText, Text: req.UserInstruction},
		},
	})

	slog.Debug("sending request to openai",
		"model", p.model,
		"messages_count", len(messages),
		"image_url_length", len(imagePart.ImageURL.URL))

	resp, err := p.openAI.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     p.model,
		Messages:  messages,
		MaxTokens: p.maxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("openai chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("no response from openai")
	}

	return &extract.Result{
		Text:       resp.Choices[0].Message.Content,
		Model:      resp.Model,
		TokensUsed: resp.Usage.TotalTokens,
		Duration:   time.Since(start),
	}, nil
}

func imageContent(data []byte, contentType string) (*openai.ChatMessagePart, error) {
	if !isImageType(contentType) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedMedia, contentType)
	}

	encoded := base64.StdEncoding.EncodeToString(data)
	if len(encoded) > maxEncodedSize {
		return nil, fmt.Errorf("image too large: %d bytes (encoded)", len(encoded))
	}

	return &openai.ChatMessagePart{
		Type: openai.ChatMessagePartTypeImageURL,
		ImageURL: &openai.ChatMessageImageURL{
			URL:    fmt.Sprintf("data:%s;base64,%s", contentType, encoded),
			Detail: openai.ImageURLDetailHigh,
		},
	}, nil
}

func isImageType(contentType string) bool {
	imageTypes := map[string]bool{
		"image/jpeg": true,
		"image/png":  true,
	}
	return imageTypes[contentType]
}
