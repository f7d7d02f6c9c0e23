// Package anthropic implements completion.Backend over the Anthropic Messages API.
package anthropic

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/aretw0/anamnesis/pkg/completion"
)

// DefaultMaxTokens leaves room for the eight-section narrative.
const DefaultMaxTokens = 4096

// Config configures the backend.
type Config struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
	MaxTokens  int64
}

// Backend calls the Messages API.
type Backend struct {
	client    sdk.Client
	maxTokens int64
}

var _ completion.Backend = (*Backend)(nil)

// New creates a Backend with SDK retries disabled.
func New(cfg Config) (*Backend, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("anthropic API key not configured")
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}

	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	return &Backend{client: sdk.NewClient(opts...), maxTokens: maxTokens}, nil
}

// Complete sends one user turn and concatenates the text blocks of the answer.
func (b *Backend) Complete(ctx context.Context, req completion.Request) (string, error) {
	params := sdk.MessageNewParams{
		Model:     sdk.Model(req.Model),
		MaxTokens: b.maxTokens,
		System:    []sdk.TextBlockParam{{Text: req.System}},
		Messages: []sdk.MessageParam{
			sdk.NewUserMessage(sdk.NewTextBlock(req.User)),
		},
		Temperature: sdk.Float(req.Temperature),
	}

	message, err := b.client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("anthropic request failed: %w", err)
	}
	if len(message.Content) == 0 {
		return "", errors.New("anthropic returned no content")
	}

	var content strings.Builder
	for _, block := range message.Content {
		content.WriteString(block.Text)
	}
	return content.String(), nil
}
