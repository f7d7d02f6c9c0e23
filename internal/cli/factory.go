package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	goredis "github.com/redis/go-redis/v9"

	"github.com/aretw0/anamnesis"
	"github.com/aretw0/anamnesis/internal/config"
	"github.com/aretw0/anamnesis/pkg/adapters/file"
	"github.com/aretw0/anamnesis/pkg/adapters/llm/anthropic"
	"github.com/aretw0/anamnesis/pkg/adapters/llm/eino"
	"github.com/aretw0/anamnesis/pkg/adapters/llm/fake"
	"github.com/aretw0/anamnesis/pkg/adapters/llm/gemini"
	"github.com/aretw0/anamnesis/pkg/adapters/llm/openai"
	"github.com/aretw0/anamnesis/pkg/adapters/memory"
	"github.com/aretw0/anamnesis/pkg/adapters/redis"
	"github.com/aretw0/anamnesis/pkg/adapters/vision"
	"github.com/aretw0/anamnesis/pkg/completion"
	"github.com/aretw0/anamnesis/pkg/observability"
	"github.com/aretw0/anamnesis/pkg/persistence/middleware"
	"github.com/aretw0/anamnesis/pkg/ports"
	"github.com/aretw0/anamnesis/pkg/session"
)

// redisPrefix namespaces the distributed session locks.
const redisPrefix = "anamnesis:"

// App is the wired application: the service plus the collaborators the
// admin commands and the HTTP server reach directly.
type App struct {
	Service  *anamnesis.Service
	Sessions ports.SessionStore
	Records  ports.RecordStore
	Registry *prometheus.Registry

	redis *goredis.Client
}

// Close releases the Redis connection, if any.
func (a *App) Close() error {
	if a.redis == nil {
		return nil
	}
	return a.redis.Close()
}

// Build wires stores, the completion client, the vision extractor and the
// observability hooks from cfg.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	app := &App{Registry: prometheus.NewRegistry()}

	if needsRedis(cfg) {
		client, err := redis.Connect(ctx, cfg.Redis.URL)
		if err != nil {
			return nil, err
		}
		app.redis = client
	}

	sessions, err := app.sessionStore(cfg)
	if err != nil {
		_ = app.Close()
		return nil, err
	}
	app.Sessions = sessions

	records, err := app.recordStore(cfg)
	if err != nil {
		_ = app.Close()
		return nil, err
	}
	app.Records = records

	generator, err := NewGenerator(ctx, cfg, logger)
	if err != nil {
		_ = app.Close()
		return nil, err
	}

	app.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics, err := observability.NewMetrics(app.Registry)
	if err != nil {
		_ = app.Close()
		return nil, err
	}

	mgrOpts := []session.Option{
		session.WithLockTTL(cfg.Session.LockTTL),
		session.WithLogger(logger),
	}
	if app.redis != nil && cfg.Session.Store == "redis" {
		mgrOpts = append(mgrOpts, session.WithLocker(redis.NewLocker(app.redis, redisPrefix)))
	}

	svc, err := anamnesis.New(
		session.NewManager(sessions, mgrOpts...),
		generator,
		anamnesis.WithRecordStore(records),
		anamnesis.WithTextExtractor(newExtractor(cfg, logger)),
		anamnesis.WithLifecycleHooks(metrics.Hooks().Merge(observability.LoggingHooks(logger))),
		anamnesis.WithLogger(logger),
		anamnesis.WithHistoryLimit(cfg.Records.HistoryLimit),
	)
	if err != nil {
		_ = app.Close()
		return nil, err
	}
	app.Service = svc
	return app, nil
}

// OpenStores opens only the session and record stores, for the admin commands.
func OpenStores(ctx context.Context, cfg *config.Config) (*App, error) {
	app := &App{}
	if needsRedis(cfg) {
		client, err := redis.Connect(ctx, cfg.Redis.URL)
		if err != nil {
			return nil, err
		}
		app.redis = client
	}

	var err error
	if app.Sessions, err = app.sessionStore(cfg); err != nil {
		_ = app.Close()
		return nil, err
	}
	if app.Records, err = app.recordStore(cfg); err != nil {
		_ = app.Close()
		return nil, err
	}
	return app, nil
}

func needsRedis(cfg *config.Config) bool {
	return cfg.Session.Store == "redis" || cfg.Records.Store == "redis"
}

func (a *App) sessionStore(cfg *config.Config) (ports.SessionStore, error) {
	switch cfg.Session.Store {
	case "memory":
		return memory.NewStore(), nil
	case "file":
		return file.New(cfg.Session.Path), nil
	case "redis":
		return redis.NewFromClient(a.redis, redis.WithTTL(cfg.Session.TTL)), nil
	default:
		return nil, fmt.Errorf("unknown session store %q", cfg.Session.Store)
	}
}

// recordStore builds the configured store wrapped in redaction and encryption.
// Redaction runs first so the sealed envelope never holds contact data.
func (a *App) recordStore(cfg *config.Config) (ports.RecordStore, error) {
	var store ports.RecordStore
	switch cfg.Records.Store {
	case "memory":
		store = memory.NewRecordStore()
	case "file":
		store = file.NewRecordStore(cfg.Records.Path)
	case "redis":
		store = redis.NewRecordStore(a.redis, "")
	default:
		return nil, fmt.Errorf("unknown record store %q", cfg.Records.Store)
	}

	var chain []middleware.Middleware
	if cfg.Records.Redact {
		chain = append(chain, middleware.NewPIIMiddleware(middleware.DefaultPIIPatterns))
	}
	active, fallback, err := cfg.EncryptionKeys()
	if err != nil {
		return nil, err
	}
	if active != nil {
		chain = append(chain, middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{
			ActiveKey:    active,
			FallbackKeys: fallback,
		}))
	}
	return middleware.Chain(store, chain...), nil
}

// NewGenerator builds the completion client for the configured provider.
func NewGenerator(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*completion.Client, error) {
	backend, err := newBackend(ctx, cfg)
	if err != nil {
		return nil, err
	}

	prompts, err := completion.PromptSetByName(cfg.LLM.PromptSet)
	if err != nil {
		return nil, err
	}

	return completion.New(backend,
		completion.WithPromptSet(prompts),
		completion.WithModel(cfg.LLM.Model),
		completion.WithTemperature(cfg.LLM.Temperature),
		completion.WithAttempts(cfg.LLM.Attempts),
		completion.WithLogger(logger),
	), nil
}

func newBackend(ctx context.Context, cfg *config.Config) (completion.Backend, error) {
	llm := cfg.LLM
	httpClient := completion.NewHTTPClient(llm.ConnectTimeout, llm.ResponseTimeout)

	switch llm.Provider {
	case "fake":
		return fake.Backend{}, nil
	case "openai":
		return openai.New(openai.Config{APIKey: llm.APIKey, BaseURL: llm.BaseURL, HTTPClient: httpClient})
	case "anthropic":
		return anthropic.New(anthropic.Config{APIKey: llm.APIKey, BaseURL: llm.BaseURL, HTTPClient: httpClient})
	case "gemini":
		return gemini.New(ctx, gemini.Config{APIKey: llm.APIKey, BaseURL: llm.BaseURL, HTTPClient: httpClient})
	case "eino":
		return eino.New(ctx, eino.Config{
			APIKey:     llm.APIKey,
			BaseURL:    llm.BaseURL,
			Model:      llm.Model,
			HTTPClient: httpClient,
		})
	default:
		return nil, fmt.Errorf("unknown llm provider %q", llm.Provider)
	}
}

// newExtractor returns the OpenAI vision extractor when it can be configured.
// Anything else degrades photo input to the inline recognition error.
func newExtractor(cfg *config.Config, logger *slog.Logger) ports.TextExtractor {
	if cfg.LLM.Provider != "openai" {
		return vision.Unavailable{}
	}
	ex, err := vision.New(vision.Config{
		APIKey:     cfg.LLM.APIKey,
		BaseURL:    cfg.LLM.BaseURL,
		Model:      cfg.LLM.VisionModel,
		HTTPClient: completion.NewHTTPClient(cfg.LLM.ConnectTimeout, cfg.LLM.ResponseTimeout),
	})
	if err != nil {
		logger.Warn("Photo recognition disabled", "err", err)
		return vision.Unavailable{}
	}
	return ex
}
