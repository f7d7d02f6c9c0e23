// Package config loads runtime configuration from an optional YAML file,
// ANAMNESIS_* environment variables, a .env file and command line flags.
package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to every environment override (llm.model -> ANAMNESIS_LLM_MODEL).
const EnvPrefix = "ANAMNESIS"

// Providers and store kinds accepted by Validate.
var (
	Providers    = []string{"openai", "anthropic", "gemini", "eino", "fake"}
	PromptSets   = []string{"standard", "pnei"}
	SessionKinds = []string{"memory", "redis", "file"}
	RecordKinds  = []string{"memory", "redis", "file"}
)

// DefaultModels is the model used per provider when llm.model is not set.
var DefaultModels = map[string]string{
	"openai":    "gpt-4o",
	"anthropic": "claude-3-5-sonnet-latest",
	"gemini":    "gemini-2.0-flash",
	"eino":      "GigaChat",
	"fake":      "fake",
}

// Config is the effective configuration.
type Config struct {
	Log     LogConfig     `mapstructure:"log" yaml:"log"`
	LLM     LLMConfig     `mapstructure:"llm" yaml:"llm"`
	Session SessionConfig `mapstructure:"session" yaml:"session"`
	Records RecordsConfig `mapstructure:"records" yaml:"records"`
	Redis   RedisConfig   `mapstructure:"redis" yaml:"redis"`
	Server  ServerConfig  `mapstructure:"server" yaml:"server"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// LLMConfig selects the completion backend and its call policy.
type LLMConfig struct {
	Provider        string        `mapstructure:"provider" yaml:"provider"`
	Model           string        `mapstructure:"model" yaml:"model"`
	VisionModel     string        `mapstructure:"vision_model" yaml:"vision_model"`
	APIKey          string        `mapstructure:"api_key" yaml:"api_key"`
	BaseURL         string        `mapstructure:"base_url" yaml:"base_url"`
	Temperature     float64       `mapstructure:"temperature" yaml:"temperature"`
	PromptSet       string        `mapstructure:"prompt_set" yaml:"prompt_set"`
	Attempts        int           `mapstructure:"attempts" yaml:"attempts"`
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout" yaml:"connect_timeout"`
	ResponseTimeout time.Duration `mapstructure:"response_timeout" yaml:"response_timeout"`
}

type SessionConfig struct {
	Store   string        `mapstructure:"store" yaml:"store"`
	Path    string        `mapstructure:"path" yaml:"path"`
	TTL     time.Duration `mapstructure:"ttl" yaml:"ttl"`
	LockTTL time.Duration `mapstructure:"lock_ttl" yaml:"lock_ttl"`
}

// RecordsConfig controls where completed sessions are persisted.
type RecordsConfig struct {
	Store         string   `mapstructure:"store" yaml:"store"`
	Path          string   `mapstructure:"path" yaml:"path"`
	EncryptionKey string   `mapstructure:"encryption_key" yaml:"encryption_key"`
	FallbackKeys  []string `mapstructure:"fallback_keys" yaml:"fallback_keys"`
	Redact        bool     `mapstructure:"redact" yaml:"redact"`
	HistoryLimit  int      `mapstructure:"history_limit" yaml:"history_limit"`
}

type RedisConfig struct {
	URL string `mapstructure:"url" yaml:"url"`
}

type ServerConfig struct {
	Port         int    `mapstructure:"port" yaml:"port"`
	MCPTransport string `mapstructure:"mcp_transport" yaml:"mcp_transport"`
	MCPPort      int    `mapstructure:"mcp_port" yaml:"mcp_port"`
}

// New returns a viper instance with defaults and env binding applied.
// Callers bind cobra flags to it before calling Load.
func New() *viper.Viper {
	v := viper.New()

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("llm.provider", "openai")
	v.SetDefault("llm.vision_model", "gpt-4o-mini")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.base_url", "")
	v.SetDefault("llm.prompt_set", "standard")
	v.SetDefault("llm.attempts", 3)
	v.SetDefault("llm.connect_timeout", 10*time.Second)
	v.SetDefault("llm.response_timeout", 30*time.Second)

	v.SetDefault("session.store", "memory")
	v.SetDefault("session.path", ".anamnesis/sessions")
	v.SetDefault("session.ttl", time.Duration(0))
	v.SetDefault("session.lock_ttl", 2*time.Minute)

	v.SetDefault("records.store", "file")
	v.SetDefault("records.path", ".anamnesis/records")
	v.SetDefault("records.encryption_key", "")
	v.SetDefault("records.fallback_keys", []string{})
	v.SetDefault("records.redact", false)
	v.SetDefault("records.history_limit", 5)

	v.SetDefault("redis.url", "redis://localhost:6379/0")

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mcp_transport", "stdio")
	v.SetDefault("server.mcp_port", 8081)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// Temperature and model have no viper default so an unset value can fall
	// back to the provider-native variables.
	_ = v.BindEnv("llm.temperature")
	_ = v.BindEnv("llm.model")

	return v
}

// LoadDotEnv loads environment variables from the given files (".env" if none).
// A missing file is not an error.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", f, err)
		}
	}
	return nil
}

// Load reads the optional config file into v and returns the validated Config.
// An empty file path searches for anamnesis.yaml in the working directory.
func Load(v *viper.Viper, file string) (*Config, error) {
	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("anamnesis")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := applyProviderEnv(&cfg, !v.IsSet("llm.temperature"), v.IsSet("llm.model")); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyProviderEnv fills blanks from the provider-native variables
// (OPENAI_API_KEY, GIGA_AUTH_KEY, ...), then from DefaultModels.
func applyProviderEnv(cfg *Config, temperatureUnset, modelExplicit bool) error {
	llm := &cfg.LLM

	if temperatureUnset {
		llm.Temperature = 0.7
		if raw := os.Getenv("OPENAI_TEMPERATURE"); raw != "" {
			t, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return fmt.Errorf("invalid OPENAI_TEMPERATURE %q: %w", raw, err)
			}
			llm.Temperature = t
		}
	}

	switch llm.Provider {
	case "openai":
		fillFromEnv(&llm.APIKey, "OPENAI_API_KEY")
		fillFromEnv(&llm.BaseURL, "OPENAI_BASE")
		if m := os.Getenv("OPENAI_MODEL"); m != "" && !modelExplicit {
			llm.Model = m
		}
	case "anthropic":
		fillFromEnv(&llm.APIKey, "ANTHROPIC_API_KEY")
	case "gemini":
		fillFromEnv(&llm.APIKey, "GEMINI_API_KEY")
	case "eino":
		fillFromEnv(&llm.APIKey, "GIGA_AUTH_KEY")
		if m := os.Getenv("GIGA_CHAT_MODEL"); m != "" && !modelExplicit {
			llm.Model = m
		}
	}
	if llm.Model == "" {
		llm.Model = DefaultModels[llm.Provider]
	}
	return nil
}

func fillFromEnv(dst *string, key string) {
	if *dst == "" {
		*dst = os.Getenv(key)
	}
}

// Validate checks enumerated values and key material.
func (c *Config) Validate() error {
	if !slices.Contains(Providers, c.LLM.Provider) {
		return fmt.Errorf("unknown llm.provider %q (want one of %v)", c.LLM.Provider, Providers)
	}
	if !slices.Contains(PromptSets, c.LLM.PromptSet) {
		return fmt.Errorf("unknown llm.prompt_set %q (want one of %v)", c.LLM.PromptSet, PromptSets)
	}
	if c.LLM.Attempts < 1 {
		return fmt.Errorf("llm.attempts must be at least 1, got %d", c.LLM.Attempts)
	}
	if !slices.Contains(SessionKinds, c.Session.Store) {
		return fmt.Errorf("unknown session.store %q (want one of %v)", c.Session.Store, SessionKinds)
	}
	if !slices.Contains(RecordKinds, c.Records.Store) {
		return fmt.Errorf("unknown records.store %q (want one of %v)", c.Records.Store, RecordKinds)
	}
	if c.Records.EncryptionKey != "" {
		if _, err := DecodeKey(c.Records.EncryptionKey); err != nil {
			return fmt.Errorf("records.encryption_key: %w", err)
		}
	}
	for i, k := range c.Records.FallbackKeys {
		if _, err := DecodeKey(k); err != nil {
			return fmt.Errorf("records.fallback_keys[%d]: %w", i, err)
		}
	}
	return nil
}

// DecodeKey decodes a base64 AES-256 key.
func DecodeKey(s string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("key must be base64: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("key must decode to 32 bytes, got %d", len(key))
	}
	return key, nil
}

// EncryptionKeys returns the decoded active and fallback keys. The active key is nil
// when encryption is disabled.
func (c *Config) EncryptionKeys() (active []byte, fallback [][]byte, err error) {
	if c.Records.EncryptionKey == "" {
		return nil, nil, nil
	}
	if active, err = DecodeKey(c.Records.EncryptionKey); err != nil {
		return nil, nil, err
	}
	for _, k := range c.Records.FallbackKeys {
		key, err := DecodeKey(k)
		if err != nil {
			return nil, nil, err
		}
		fallback = append(fallback, key)
	}
	return active, fallback, nil
}

// YAML renders the configuration with secrets masked.
func (c *Config) YAML() ([]byte, error) {
	masked := *c
	masked.LLM.APIKey = mask(c.LLM.APIKey)
	masked.Records.EncryptionKey = mask(c.Records.EncryptionKey)
	masked.Records.FallbackKeys = make([]string, len(c.Records.FallbackKeys))
	for i, k := range c.Records.FallbackKeys {
		masked.Records.FallbackKeys[i] = mask(k)
	}
	return yaml.Marshal(masked)
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	return "***"
}
