// Package gemini implements completion.Backend over the Gemini API.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/genai"

	"github.com/aretw0/anamnesis/pkg/completion"
)

// Config configures the backend.
type Config struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
}

// Backend calls GenerateContent.
type Backend struct {
	client *genai.Client
}

var _ completion.Backend = (*Backend)(nil)

// New creates a Backend.
func New(ctx context.Context, cfg Config) (*Backend, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("google API key not configured")
	}

	clientConfig := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: cfg.HTTPClient,
	}
	if cfg.BaseURL != "" {
		clientConfig.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}

	client, err := genai.NewClient(ctx, clientConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return &Backend{client: client}, nil
}

// Complete sends the user prompt with the system instruction in the generation config.
func (b *Backend) Complete(ctx context.Context, req completion.Request) (string, error) {
	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(req.System, genai.RoleUser),
		Temperature:       genai.Ptr(float32(req.Temperature)),
	}

	result, err := b.client.Models.GenerateContent(ctx, req.Model, genai.Text(req.User), config)
	if err != nil {
		return "", fmt.Errorf("gemini request failed: %w", err)
	}

	text := result.Text()
	if text == "" {
		return "", errors.New("gemini returned no text")
	}
	return text, nil
}
