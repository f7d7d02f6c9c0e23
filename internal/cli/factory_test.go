package cli

import (
	"context"
	"encoding/base64"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/anamnesis"
	"github.com/aretw0/anamnesis/internal/config"
	"github.com/aretw0/anamnesis/internal/logging"
	"github.com/aretw0/anamnesis/pkg/adapters/vision"
	"github.com/aretw0/anamnesis/pkg/domain"
)

func fakeConfig(t *testing.T) *config.Config {
	t.Helper()
	v := config.New()
	v.Set("llm.provider", "fake")
	v.Set("session.store", "memory")
	v.Set("records.store", "memory")
	cfg, err := config.Load(v, "")
	require.NoError(t, err)
	return cfg
}

func complete(t *testing.T, svc *anamnesis.Service, ctx context.Context, id string) anamnesis.Reply {
	t.Helper()
	_, err := svc.Handle(ctx, id, "")
	require.NoError(t, err)

	var reply anamnesis.Reply
	for _, answer := range fullAnswers {
		reply, err = svc.Handle(ctx, id, answer)
		require.NoError(t, err)
	}
	require.True(t, reply.Done)
	return reply
}

func TestBuild_FakeProviderMemoryStores(t *testing.T) {
	ctx := context.Background()
	app, err := Build(ctx, fakeConfig(t), logging.NewNop())
	require.NoError(t, err)
	defer app.Close()

	complete(t, app.Service, anamnesis.WithUserID(ctx, "u1"), "s1")

	records, err := app.Records.ListByUser(ctx, "u1", 5)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "гастрит", records[0].Answers.Diagnosis)

	families, err := app.Registry.Gather()
	require.NoError(t, err)
	var names []string
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "anamnesis_sessions_completed_total")
}

func TestBuild_RedisStoresWithEncryption(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	cfg := fakeConfig(t)
	cfg.Redis.URL = "redis://" + mr.Addr()
	cfg.Session.Store = "redis"
	cfg.Records.Store = "redis"
	cfg.Records.Redact = true
	cfg.Records.EncryptionKey = base64.StdEncoding.EncodeToString([]byte(strings.Repeat("k", 32)))

	app, err := Build(ctx, cfg, logging.NewNop())
	require.NoError(t, err)
	defer app.Close()

	_, err = app.Service.Handle(ctx, "r1", "")
	require.NoError(t, err)
	_, err = app.Service.Handle(ctx, "r1", "мигрень, пишите на a@b.ru")
	require.NoError(t, err)

	s, err := app.Sessions.Load(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, domain.StateEnterAnalyses, s.State)

	complete(t, app.Service, ctx, "r2")

	records, err := app.Records.ListByUser(ctx, "r2", 5)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "давно", records[0].Answers.DeepQ4)

	for _, key := range mr.Keys() {
		if strings.HasPrefix(key, "anamnesis:record:") && !strings.Contains(key, ":user:") {
			raw, err := mr.Get(key)
			require.NoError(t, err)
			assert.NotContains(t, raw, "давно", "record contents are sealed at rest")
		}
	}
}

func TestBuild_RedisUnreachable(t *testing.T) {
	cfg := fakeConfig(t)
	cfg.Session.Store = "redis"
	cfg.Redis.URL = "redis://127.0.0.1:1/0"

	_, err := Build(context.Background(), cfg, logging.NewNop())
	assert.Error(t, err)
}

func TestNewExtractor_DegradesWithoutOpenAI(t *testing.T) {
	cfg := fakeConfig(t)
	assert.Equal(t, vision.Unavailable{}, newExtractor(cfg, logging.NewNop()))

	cfg.LLM.Provider = "openai"
	cfg.LLM.APIKey = ""
	assert.Equal(t, vision.Unavailable{}, newExtractor(cfg, logging.NewNop()))

	cfg.LLM.APIKey = "sk-test"
	_, ok := newExtractor(cfg, logging.NewNop()).(*vision.Extractor)
	assert.True(t, ok)
}

func TestNewGenerator_Providers(t *testing.T) {
	ctx := context.Background()
	for _, provider := range []string{"openai", "anthropic", "gemini", "eino"} {
		t.Run(provider, func(t *testing.T) {
			cfg := fakeConfig(t)
			cfg.LLM.Provider = provider
			cfg.LLM.APIKey = "test-key"
			gen, err := NewGenerator(ctx, cfg, logging.NewNop())
			require.NoError(t, err)
			assert.NotNil(t, gen)
		})
	}

	cfg := fakeConfig(t)
	cfg.LLM.PromptSet = "nope"
	_, err := NewGenerator(ctx, cfg, logging.NewNop())
	assert.Error(t, err)
}
