package config

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearProviderEnv(t *testing.T) {
	for _, k := range []string{
		"OPENAI_API_KEY", "OPENAI_BASE", "OPENAI_MODEL", "OPENAI_TEMPERATURE",
		"ANTHROPIC_API_KEY", "GEMINI_API_KEY", "GIGA_AUTH_KEY", "GIGA_CHAT_MODEL",
		"ANAMNESIS_LLM_MODEL", "ANAMNESIS_LLM_TEMPERATURE", "ANAMNESIS_LLM_PROVIDER",
	} {
		t.Setenv(k, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearProviderEnv(t)

	cfg, err := Load(New(), "")
	require.NoError(t, err)

	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.Equal(t, "gpt-4o", cfg.LLM.Model)
	assert.Equal(t, "standard", cfg.LLM.PromptSet)
	assert.Equal(t, 0.7, cfg.LLM.Temperature)
	assert.Equal(t, 3, cfg.LLM.Attempts)
	assert.Equal(t, 10*time.Second, cfg.LLM.ConnectTimeout)
	assert.Equal(t, 30*time.Second, cfg.LLM.ResponseTimeout)
	assert.Equal(t, "memory", cfg.Session.Store)
	assert.Equal(t, "file", cfg.Records.Store)
	assert.Equal(t, 5, cfg.Records.HistoryLimit)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestLoad_FileAndEnv(t *testing.T) {
	clearProviderEnv(t)

	path := filepath.Join(t.TempDir(), "anamnesis.yaml")
	content := `
llm:
  provider: eino
  prompt_set: pnei
  base_url: https://gateway.local/v1
  response_timeout: 45s
session:
  store: redis
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	t.Setenv("ANAMNESIS_SERVER_PORT", "9090")
	t.Setenv("GIGA_AUTH_KEY", "giga-secret")
	t.Setenv("GIGA_CHAT_MODEL", "GigaChat-Pro")

	cfg, err := Load(New(), path)
	require.NoError(t, err)

	assert.Equal(t, "eino", cfg.LLM.Provider)
	assert.Equal(t, "pnei", cfg.LLM.PromptSet)
	assert.Equal(t, "https://gateway.local/v1", cfg.LLM.BaseURL)
	assert.Equal(t, 45*time.Second, cfg.LLM.ResponseTimeout)
	assert.Equal(t, "redis", cfg.Session.Store)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "giga-secret", cfg.LLM.APIKey)
	assert.Equal(t, "GigaChat-Pro", cfg.LLM.Model)
}

func TestLoad_OpenAIEnvFallbacks(t *testing.T) {
	clearProviderEnv(t)
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("OPENAI_BASE", "https://proxy.local/v1")
	t.Setenv("OPENAI_MODEL", "gpt-4o-mini")
	t.Setenv("OPENAI_TEMPERATURE", "0.3")

	cfg, err := Load(New(), "")
	require.NoError(t, err)

	assert.Equal(t, "sk-test", cfg.LLM.APIKey)
	assert.Equal(t, "https://proxy.local/v1", cfg.LLM.BaseURL)
	assert.Equal(t, "gpt-4o-mini", cfg.LLM.Model)
	assert.Equal(t, 0.3, cfg.LLM.Temperature)
}

func TestLoad_ExplicitTemperatureWins(t *testing.T) {
	clearProviderEnv(t)
	t.Setenv("OPENAI_TEMPERATURE", "0.3")
	t.Setenv("ANAMNESIS_LLM_TEMPERATURE", "0.9")

	cfg, err := Load(New(), "")
	require.NoError(t, err)
	assert.Equal(t, 0.9, cfg.LLM.Temperature)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(New(), filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	key := base64.StdEncoding.EncodeToString(make([]byte, 32))

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"provider", func(c *Config) { c.LLM.Provider = "llama" }, "llm.provider"},
		{"prompt set", func(c *Config) { c.LLM.PromptSet = "other" }, "llm.prompt_set"},
		{"attempts", func(c *Config) { c.LLM.Attempts = 0 }, "llm.attempts"},
		{"session store", func(c *Config) { c.Session.Store = "sql" }, "session.store"},
		{"record store", func(c *Config) { c.Records.Store = "s3" }, "records.store"},
		{"good key", func(c *Config) { c.Records.EncryptionKey = key }, ""},
		{"short key", func(c *Config) { c.Records.EncryptionKey = "c2hvcnQ=" }, "encryption_key"},
		{"bad fallback", func(c *Config) { c.Records.FallbackKeys = []string{"%%"} }, "fallback_keys[0]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Config{
				LLM:     LLMConfig{Provider: "openai", PromptSet: "standard", Attempts: 3},
				Session: SessionConfig{Store: "memory"},
				Records: RecordsConfig{Store: "file"},
			}
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestEncryptionKeys(t *testing.T) {
	raw := make([]byte, 32)
	raw[0] = 7
	key := base64.StdEncoding.EncodeToString(raw)

	cfg := Config{Records: RecordsConfig{EncryptionKey: key, FallbackKeys: []string{key}}}
	active, fallback, err := cfg.EncryptionKeys()
	require.NoError(t, err)
	assert.Equal(t, raw, active)
	assert.Len(t, fallback, 1)

	active, _, err = (&Config{}).EncryptionKeys()
	require.NoError(t, err)
	assert.Nil(t, active)
}

func TestYAML_MasksSecrets(t *testing.T) {
	cfg := Config{
		LLM:     LLMConfig{Provider: "openai", APIKey: "sk-very-secret", ResponseTimeout: 30 * time.Second},
		Records: RecordsConfig{EncryptionKey: "c2VjcmV0", FallbackKeys: []string{"b2xk"}},
	}

	out, err := cfg.YAML()
	require.NoError(t, err)
	s := string(out)

	assert.NotContains(t, s, "sk-very-secret")
	assert.NotContains(t, s, "c2VjcmV0")
	assert.True(t, strings.Contains(s, "api_key: '***'") || strings.Contains(s, `api_key: "***"`), s)
	assert.Contains(t, s, "response_timeout: 30s")
	assert.Equal(t, "sk-very-secret", cfg.LLM.APIKey, "original config untouched")
}

func TestLoadDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("ANAMNESIS_TEST_DOTENV=loaded\n"), 0o600))
	t.Setenv("ANAMNESIS_TEST_DOTENV", "")
	os.Unsetenv("ANAMNESIS_TEST_DOTENV")

	require.NoError(t, LoadDotEnv(path))
	assert.Equal(t, "loaded", os.Getenv("ANAMNESIS_TEST_DOTENV"))

	assert.NoError(t, LoadDotEnv(filepath.Join(t.TempDir(), "missing.env")))
}

func TestLoad_FileModelBeatsNativeEnv(t *testing.T) {
	clearProviderEnv(t)
	t.Setenv("OPENAI_MODEL", "gpt-3.5-turbo")

	path := filepath.Join(t.TempDir(), "anamnesis.yaml")
	require.NoError(t, os.WriteFile(path, []byte("llm:\n  model: gpt-4.1\n"), 0o600))

	cfg, err := Load(New(), path)
	require.NoError(t, err)
	assert.Equal(t, "gpt-4.1", cfg.LLM.Model)
}

func TestLoad_DefaultModelFollowsProvider(t *testing.T) {
	tests := []struct {
		provider string
		want     string
	}{
		{"openai", "gpt-4o"},
		{"anthropic", "claude-3-5-sonnet-latest"},
		{"gemini", "gemini-2.0-flash"},
		{"eino", "GigaChat"},
	}
	for _, tt := range tests {
		t.Run(tt.provider, func(t *testing.T) {
			clearProviderEnv(t)
			t.Setenv("ANAMNESIS_LLM_PROVIDER", tt.provider)

			cfg, err := Load(New(), "")
			require.NoError(t, err)
			assert.Equal(t, tt.want, cfg.LLM.Model)
		})
	}
}

func TestLoad_ExplicitModelKeptForAnyProvider(t *testing.T) {
	clearProviderEnv(t)
	t.Setenv("GIGA_CHAT_MODEL", "GigaChat-Max")

	v := New()
	v.Set("llm.provider", "eino")
	v.Set("llm.model", "GigaChat-Pro")
	cfg, err := Load(v, "")
	require.NoError(t, err)
	assert.Equal(t, "GigaChat-Pro", cfg.LLM.Model)

	t.Setenv("ANAMNESIS_LLM_PROVIDER", "anthropic")
	t.Setenv("ANAMNESIS_LLM_MODEL", "claude-3-opus-latest")
	cfg, err = Load(New(), "")
	require.NoError(t, err)
	assert.Equal(t, "claude-3-opus-latest", cfg.LLM.Model)
}
