// Package vision extracts text from photos of lab results.
package vision

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"

	sdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/aretw0/anamnesis/pkg/ports"
)

// ErrUnavailable is returned by Unavailable.
var ErrUnavailable = errors.New("text recognition is not configured")

const instruction = "Перепиши весь текст с фотографии на русском и английском языках как есть, " +
	"сохраняя строки и числа. Не добавляй комментариев. Если текста нет, верни пустой ответ."

// Config configures the OpenAI vision extractor.
type Config struct {
	APIKey     string
	BaseURL    string
	Model      string
	HTTPClient *http.Client
}

// Extractor implements ports.TextExtractor with a vision-capable chat model.
type Extractor struct {
	client sdk.Client
	model  string
}

var _ ports.TextExtractor = (*Extractor)(nil)

// New creates an Extractor.
func New(cfg Config) (*Extractor, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai API key not configured")
	}
	if cfg.Model == "" {
		return nil, errors.New("vision model not configured")
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
	return &Extractor{client: sdk.NewClient(opts...), model: cfg.Model}, nil
}

// ExtractText sends the image as a data URL and returns the trimmed transcription.
func (e *Extractor) ExtractText(ctx context.Context, image []byte, mimeType string) (string, error) {
	if len(image) == 0 {
		return "", errors.New("empty image")
	}
	if mimeType == "" {
		mimeType = http.DetectContentType(image)
	}
	if !strings.HasPrefix(mimeType, "image/") {
		return "", fmt.Errorf("unsupported content type %q", mimeType)
	}

	dataURL := "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(image)
	params := sdk.ChatCompletionNewParams{
		Model: sdk.ChatModel(e.model),
		Messages: []sdk.ChatCompletionMessageParamUnion{
			sdk.UserMessage([]sdk.ChatCompletionContentPartUnionParam{
				sdk.TextContentPart(instruction),
				sdk.ImageContentPart(sdk.ChatCompletionContentPartImageImageURLParam{URL: dataURL}),
			}),
		},
		Temperature: sdk.Float(0),
	}

	resp, err := e.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("vision request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("vision model returned no choices")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// Unavailable is the extractor used when no vision backend is configured.
// Every call fails, so the analyses step degrades to the inline error text.
type Unavailable struct{}

var _ ports.TextExtractor = Unavailable{}

func (Unavailable) ExtractText(ctx context.Context, image []byte, mimeType string) (string, error) {
	return "", ErrUnavailable
}
