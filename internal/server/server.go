// Package server wires the responder's components together and runs the
// daemon lifecycle: startup restore, the webhook and metrics listeners, the
// keep-alive ticker and graceful shutdown.
package server

import (
	"context"
	"fmt"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/lewisedginton/afk_responder/internal/config"
	"github.com/lewisedginton/afk_responder/internal/dedup"
	"github.com/lewisedginton/afk_responder/internal/genai"
	"github.com/lewisedginton/afk_responder/internal/keywords"
	"github.com/lewisedginton/afk_responder/internal/monitoring"
	"github.com/lewisedginton/afk_responder/internal/notify"
	"github.com/lewisedginton/afk_responder/internal/session"
	"github.com/lewisedginton/afk_responder/internal/store"
	"github.com/lewisedginton/afk_responder/internal/telegram/gotd"
	"github.com/lewisedginton/afk_responder/internal/webhook"
	"github.com/lewisedginton/afk_responder/pkg/logger"
	"github.com/lewisedginton/afk_responder/pkg/metrics"
)

// Server is the assembled responder daemon.
type Server struct {
	cfg      *config.AppConfig
	log      logger.Logger
	metrics  *metrics.Metrics
	notifier *notify.Notifier
	creds    *store.CredentialsFile
	registry *session.Registry
	webhook  *webhook.Server

	instanceID string
}

// New builds the daemon from its configuration.
func New(ctx context.Context, cfg *config.AppConfig, log logger.Logger) (*Server, error) {
	m := metrics.NewMetrics(log)

	notifier, err := notify.New(notify.Config{
		BotToken: cfg.Telegram.BotToken,
		Logger:   log,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create notifier: %w", err)
	}

	provider, err := createStorageProvider(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage provider: %w", err)
	}
	creds, err := store.NewCredentialsFile(provider, "credentials.json")
	if err != nil {
		return nil, fmt.Errorf("failed to create credentials file: %w", err)
	}

	factory, err := gotd.NewFactory(gotd.Config{
		AppID:   cfg.Telegram.AppID,
		AppHash: cfg.Telegram.AppHash,
		Logger:  log,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram client factory: %w", err)
	}

	generator, err := createGenerator(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create generator: %w", err)
	}

	registry, err := session.NewRegistry(session.Config{
		Factory:   factory,
		Generator: generator,
		Notifier:  notifier,
		Keywords:  keywords.Default(),
		Logger:    log,
		Metrics:   m,
		Policy: session.Policy{
			ReplyCooldown:     cfg.Pipeline.ReplyCooldown,
			ErrorSilence:      cfg.Pipeline.ErrorSilence,
			QueueDelay:        cfg.Pipeline.QueueDelay,
			GenerationTimeout: cfg.Generation.Timeout,
		},
		OnCredentials: func(ctx context.Context, chatID, credentials string, afk bool) {
			if err := creds.Put(ctx, chatID, store.Credentials{Blob: credentials, AFK: afk}); err != nil {
				log.Error("Failed to persist credentials",
					logger.StringField("chat_id", chatID),
					logger.ErrorField(err))
			}
		},
		OnRemove: func(ctx context.Context, chatID string) {
			if err := creds.Delete(ctx, chatID); err != nil {
				log.Error("Failed to delete credentials",
					logger.StringField("chat_id", chatID),
					logger.ErrorField(err))
			}
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create session registry: %w", err)
	}

	health := monitoring.NewHandler(log,
		monitoring.Check{Name: "bot_api", Probe: notifier.Ready})

	webhookServer, err := webhook.New(webhook.Config{
		Port:       cfg.Port,
		Path:       cfg.Telegram.WebhookPath,
		Secret:     cfg.Telegram.WebhookSecret,
		Logger:     log,
		Metrics:    m,
		Dedup:      dedup.NewCache(cfg.Pipeline.DedupCapacity),
		Dispatcher: registry,
		Health:     health,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create webhook server: %w", err)
	}

	return &Server{
		cfg:        cfg,
		log:        log,
		metrics:    m,
		notifier:   notifier,
		creds:      creds,
		registry:   registry,
		webhook:    webhookServer,
		instanceID: uuid.New().String()[:8],
	}, nil
}

// Run starts the listeners, restores persisted sessions and blocks until ctx
// is cancelled, then shuts everything down.
func (s *Server) Run(ctx context.Context) error {
	s.log.Info("Starting responder",
		logger.StringField("service", s.cfg.ServiceName),
		logger.StringField("environment", s.cfg.Environment),
		logger.StringField("instance_id", s.instanceID))

	if s.cfg.Monitoring.MetricsEnabled {
		s.metrics.Listen(s.cfg.Monitoring.MetricsPort)
	}
	s.webhook.Start()
	s.restoreSessions(ctx)

	ticker := time.NewTicker(s.cfg.KeepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.log.Info("Alive",
				logger.StringField("instance_id", s.instanceID),
				logger.IntField("connected_sessions", s.registry.ConnectedCount()))
		case <-ctx.Done():
			return s.shutdown()
		}
	}
}

// restoreSessions re-establishes every persisted session. One account's
// failure never aborts startup, it is logged and skipped.
func (s *Server) restoreSessions(ctx context.Context) {
	entries, err := s.creds.Load(ctx)
	if err != nil {
		s.log.Error("Failed to load persisted credentials", logger.ErrorField(err))
		return
	}

	for chatID, creds := range entries {
		if err := s.registry.Restore(ctx, chatID, creds.Blob, creds.AFK); err != nil {
			s.log.Error("Failed to restore session, skipping",
				logger.StringField("chat_id", chatID),
				logger.ErrorField(err))
			continue
		}
		s.log.Info("Session restored",
			logger.StringField("chat_id", chatID),
			logger.BoolField("afk", creds.AFK))
	}
}

func (s *Server) shutdown() error {
	s.log.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	var result error
	if err := s.webhook.Shutdown(shutdownCtx); err != nil {
		result = fmt.Errorf("webhook shutdown: %w", err)
	}
	s.registry.Close()
	if err := s.metrics.Shutdown(shutdownCtx); err != nil && result == nil {
		result = fmt.Errorf("metrics shutdown: %w", err)
	}
	return result
}

func createStorageProvider(ctx context.Context, cfg *config.AppConfig) (store.FileProvider, error) {
	switch cfg.Storage.Backend {
	case config.StorageLocal:
		return store.NewLocalProvider(cfg.Storage.LocalDir)
	case config.StorageS3:
		opts := []func(*awsconfig.LoadOptions) error{}
		if cfg.Storage.S3Region != "" {
			opts = append(opts, awsconfig.WithRegion(cfg.Storage.S3Region))
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to load AWS config: %w", err)
		}
		return store.NewS3Provider(s3.NewFromConfig(awsCfg), cfg.Storage.S3Bucket, cfg.Storage.S3Prefix)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

func createGenerator(ctx context.Context, cfg *config.AppConfig) (genai.Generator, error) {
	switch cfg.Generation.Provider {
	case config.ProviderOpenRouter:
		return genai.NewOpenRouter(genai.OpenRouterConfig{
			APIKey:  cfg.Generation.OpenRouterAPIKey,
			Model:   cfg.Generation.OpenRouterModel,
			BaseURL: cfg.Generation.OpenRouterBaseURL,
		})
	case config.ProviderClaude:
		return genai.NewClaude(genai.ClaudeConfig{
			APIKey: cfg.Generation.AnthropicAPIKey,
			Model:  cfg.Generation.AnthropicModel,
		})
	case config.ProviderGemini:
		return genai.NewGemini(ctx, genai.GeminiConfig{
			APIKey: cfg.Generation.GeminiAPIKey,
			Model:  cfg.Generation.GeminiModel,
		})
	default:
		return nil, fmt.Errorf("unknown generation provider %q", cfg.Generation.Provider)
	}
}
