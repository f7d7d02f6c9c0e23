// Package openai implements completion.Backend over the OpenAI chat completions API.
// Any OpenAI-compatible endpoint works through the base URL.
package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	sdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/aretw0/anamnesis/pkg/completion"
)

// Config configures the backend.
type Config struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
}

// Backend calls chat completions.
type Backend struct {
	client sdk.Client
}

var _ completion.Backend = (*Backend)(nil)

// New creates a Backend. SDK retries are disabled; completion.Retry owns the policy.
func New(cfg Config) (*Backend, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai API key not configured")
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

	return &Backend{client: sdk.NewClient(opts...)}, nil
}

// Complete sends the system and user messages and returns the first choice.
func (b *Backend) Complete(ctx context.Context, req completion.Request) (string, error) {
	params := sdk.ChatCompletionNewParams{
		Model: sdk.ChatModel(req.Model),
		Messages: []sdk.ChatCompletionMessageParamUnion{
			sdk.SystemMessage(req.System),
			sdk.UserMessage(req.User),
		},
		Temperature: sdk.Float(req.Temperature),
	}

	resp, err := b.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("openai request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("openai returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}
