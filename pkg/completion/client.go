package completion

import (
	"context"
	"log/slog"
	"strings"

	"github.com/aretw0/anamnesis/internal/logging"
	"github.com/aretw0/anamnesis/pkg/domain"
	"github.com/aretw0/anamnesis/pkg/ports"
)

// DefaultTemperature applies when neither the prompt set nor the caller sets one.
const DefaultTemperature = 0.7

// Client implements ports.Generator on top of a Backend.
type Client struct {
	backend     Backend
	prompts     PromptSet
	model       string
	temperature float64
	attempts    int
	logger      *slog.Logger
}

var _ ports.Generator = (*Client)(nil)

// Option configures the Client.
type Option func(*Client)

// WithPromptSet selects the instruction texts. Defaults to StandardPrompts.
func WithPromptSet(p PromptSet) Option {
	return func(c *Client) {
		c.prompts = p
	}
}

// WithModel sets the model identifier sent with every request.
func WithModel(model string) Option {
	return func(c *Client) {
		c.model = model
	}
}

// WithTemperature sets the default sampling temperature.
func WithTemperature(t float64) Option {
	return func(c *Client) {
		c.temperature = t
	}
}

// WithAttempts overrides DefaultAttempts.
func WithAttempts(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.attempts = n
		}
	}
}

// WithLogger configures a logger for failed attempts.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// New creates a Client over backend.
func New(backend Backend, opts ...Option) *Client {
	c := &Client{
		backend:     backend,
		prompts:     StandardPrompts(),
		temperature: DefaultTemperature,
		attempts:    DefaultAttempts,
		logger:      logging.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GenerateInterim produces the first narrative and its follow-up question.
func (c *Client) GenerateInterim(ctx context.Context, data map[string]string) (ports.Interim, error) {
	user, err := c.prompts.RenderInterim(data)
	if err != nil {
		return ports.Interim{}, err
	}

	text, err := c.call(ctx, domain.CheckpointInterim, user, c.temperatureFor(c.prompts.InterimTemperature))
	if err != nil {
		return ports.Interim{}, err
	}
	return ParseInterim(text), nil
}

// GenerateFinal produces the updated narrative from the deep answers.
func (c *Client) GenerateFinal(ctx context.Context, data map[string]string) (string, error) {
	user, err := c.prompts.RenderFinal(data)
	if err != nil {
		return "", err
	}

	text, err := c.call(ctx, domain.CheckpointFinal, user, c.temperatureFor(c.prompts.FinalTemperature))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

func (c *Client) call(ctx context.Context, checkpoint domain.Checkpoint, user string, temperature float64) (string, error) {
	req := Request{
		System:      c.prompts.System,
		User:        user,
		Model:       c.model,
		Temperature: temperature,
	}

	attempt := 0
	return Retry(ctx, c.attempts, func(ctx context.Context) (string, error) {
		attempt++
		text, err := c.backend.Complete(ctx, req)
		if err != nil {
			c.logger.Warn("Generation attempt failed",
				"checkpoint", checkpoint,
				"attempt", attempt,
				"max_attempts", c.attempts,
				"err", err,
			)
		}
		return text, err
	})
}

func (c *Client) temperatureFor(override *float64) float64 {
	if override != nil {
		return *override
	}
	return c.temperature
}
