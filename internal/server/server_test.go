package server

import (
	"context"
	"testing"
	"time"

	"github.com/lewisedginton/afk_responder/internal/config"
	"github.com/lewisedginton/afk_responder/internal/genai"
	"github.com/lewisedginton/afk_responder/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testAppConfig(t *testing.T) *config.AppConfig {
	t.Helper()
	cfg := &config.AppConfig{
		ServiceName:       "afk-responder",
		Environment:       "test",
		Port:              8080,
		KeepAliveInterval: 30 * time.Second,
	}
	cfg.Telegram.BotToken = "123:abc"
	cfg.Telegram.AppID = 94587
	cfg.Telegram.AppHash = "a1b2c3"
	cfg.Generation.Provider = config.ProviderOpenRouter
	cfg.Generation.OpenRouterAPIKey = "sk-or-test"
	cfg.Storage.Backend = config.StorageLocal
	cfg.Storage.LocalDir = t.TempDir()
	return cfg
}

func testLogger() logger.Logger {
	return logger.NewLogger(logger.Config{Level: logger.ErrorLevel, Format: "text"})
}

func TestNewBuildsServer(t *testing.T) {
	srv, err := New(context.Background(), testAppConfig(t), testLogger())
	require.NoError(t, err)
	assert.NotNil(t, srv.registry)
	assert.NotNil(t, srv.webhook)
	assert.NotEmpty(t, srv.instanceID)
}

func TestCreateGeneratorSwitch(t *testing.T) {
	ctx := context.Background()

	cfg := testAppConfig(t)
	g, err := createGenerator(ctx, cfg)
	require.NoError(t, err)
	assert.IsType(t, &genai.OpenRouterGenerator{}, g)

	cfg.Generation.Provider = config.ProviderClaude
	cfg.Generation.AnthropicAPIKey = "sk-ant-test"
	g, err = createGenerator(ctx, cfg)
	require.NoError(t, err)
	assert.IsType(t, &genai.ClaudeGenerator{}, g)

	cfg.Generation.Provider = config.ProviderGemini
	cfg.Generation.GeminiAPIKey = "gm-test"
	g, err = createGenerator(ctx, cfg)
	require.NoError(t, err)
	assert.IsType(t, &genai.GeminiGenerator{}, g)

	cfg.Generation.Provider = "bard"
	_, err = createGenerator(ctx, cfg)
	assert.Error(t, err)
}

func TestCreateStorageProviderUnknownBackend(t *testing.T) {
	cfg := testAppConfig(t)
	cfg.Storage.Backend = "gcs"

	_, err := createStorageProvider(context.Background(), cfg)
	assert.Error(t, err)
}

func TestNewFailsWithoutBotToken(t *testing.T) {
	cfg := testAppConfig(t)
	cfg.Telegram.BotToken = ""

	_, err := New(context.Background(), cfg, testLogger())
	assert.Error(t, err)
}
