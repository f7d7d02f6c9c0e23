// Package eino implements completion.Backend with an eino chat model.
// It targets OpenAI-compatible gateways, such as a GigaChat proxy.
package eino

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	einoopenai "github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/aretw0/anamnesis/pkg/completion"
)

// Config configures the chat model.
type Config struct {
	APIKey     string
	BaseURL    string
	Model      string
	HTTPClient *http.Client
}

// Backend wraps an eino BaseChatModel.
type Backend struct {
	model model.BaseChatModel
}

var _ completion.Backend = (*Backend)(nil)

// New builds the eino OpenAI chat model.
func New(ctx context.Context, cfg Config) (*Backend, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("eino API key not configured")
	}

	chatModel, err := einoopenai.NewChatModel(ctx, &einoopenai.ChatModelConfig{
		APIKey:     cfg.APIKey,
		BaseURL:    cfg.BaseURL,
		Model:      cfg.Model,
		HTTPClient: cfg.HTTPClient,
	})
	if err != nil {
		return nil, fmt.Errorf("error creating chat model: %w", err)
	}
	return NewFromModel(chatModel), nil
}

// NewFromModel wraps an existing chat model.
func NewFromModel(m model.BaseChatModel) *Backend {
	return &Backend{model: m}
}

// Complete generates one reply. Model and temperature are passed per call.
func (b *Backend) Complete(ctx context.Context, req completion.Request) (string, error) {
	messages := []*schema.Message{
		schema.SystemMessage(req.System),
		schema.UserMessage(req.User),
	}

	opts := []model.Option{model.WithTemperature(float32(req.Temperature))}
	if req.Model != "" {
		opts = append(opts, model.WithModel(req.Model))
	}

	out, err := b.model.Generate(ctx, messages, opts...)
	if err != nil {
		return "", fmt.Errorf("eino generate failed: %w", err)
	}
	if out == nil {
		return "", errors.New("eino returned no message")
	}
	return out.Content, nil
}
