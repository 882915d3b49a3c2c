// Package webhook is the command ingestion surface: it receives Bot API
// updates for the control bot, acknowledges them immediately and hands the
// owner commands to the session registry asynchronously.
package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-telegram/bot/models"
	"github.com/lewisedginton/afk_responder/internal/dedup"
	"github.com/lewisedginton/afk_responder/internal/monitoring"
	"github.com/lewisedginton/afk_responder/pkg/httpmiddleware"
	"github.com/lewisedginton/afk_responder/pkg/logger"
	"github.com/lewisedginton/afk_responder/pkg/metrics"
)

const secretTokenHeader = "X-Telegram-Bot-Api-Secret-Token"

// Dispatcher consumes deduplicated owner commands.
type Dispatcher interface {
	HandleCommand(ctx context.Context, chatID, text string)
}

// Config holds configuration for the webhook server.
type Config struct {
	Port       int
	Path       string
	Secret     string
	Logger     logger.Logger
	Metrics    *metrics.Metrics
	Dedup      *dedup.Cache
	Dispatcher Dispatcher
	Health     *monitoring.Handler
}

// Server is the webhook HTTP server.
type Server struct {
	cfg    Config
	log    logger.Logger
	server *http.Server
}

// New creates a webhook Server.
func New(cfg Config) (*Server, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if cfg.Metrics == nil {
		return nil, fmt.Errorf("metrics is required")
	}
	if cfg.Dedup == nil {
		return nil, fmt.Errorf("dedup cache is required")
	}
	if cfg.Dispatcher == nil {
		return nil, fmt.Errorf("dispatcher is required")
	}
	if cfg.Path == "" {
		cfg.Path = "/webhook"
	}

	return &Server{
		cfg: cfg,
		log: cfg.Logger.WithFields(logger.StringField("component", "webhook")),
	}, nil
}

// Router builds the chi router with the shared middleware stack.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(s.cfg.Logger.HTTPMiddleware)
	r.Use(chimiddleware.Recoverer)
	r.Use(httpmiddleware.CORS(httpmiddleware.DefaultCORSConfig()))
	r.Use(httpmiddleware.Security(nil))

	r.Post(s.cfg.Path, s.handleUpdate)
	if s.cfg.Health != nil {
		r.Get("/health/live", s.cfg.Health.Liveness)
		r.Get("/health/ready", s.cfg.Health.Readiness)
	}
	return r
}

// handleUpdate acknowledges the update immediately; command processing is
// asynchronous relative to the acknowledgment, redelivery is tolerated via
// the dedup cache.
func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Secret != "" && r.Header.Get(secretTokenHeader) != s.cfg.Secret {
		s.log.Warn("Webhook update with bad secret token rejected")
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	var update models.Update
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		s.log.Warn("Failed to decode webhook update", logger.ErrorField(err))
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	s.cfg.Metrics.UpdatesReceived.Inc()
	w.WriteHeader(http.StatusOK)

	if update.Message == nil || update.Message.Text == "" {
		return
	}
	if s.cfg.Dedup.Seen(update.ID) {
		s.cfg.Metrics.UpdatesDeduplicated.Inc()
		s.log.Debug("Duplicate update dropped", logger.Int64Field("update_id", update.ID))
		return
	}

	chatID := strconv.FormatInt(update.Message.Chat.ID, 10)
	text := update.Message.Text

	ctx := context.WithoutCancel(r.Context())
	go s.cfg.Dispatcher.HandleCommand(ctx, chatID, text)
}

// Start begins serving in the background.
func (s *Server) Start() {
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.cfg.Port),
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.log.Info("Starting webhook listener",
		logger.IntField("port", s.cfg.Port),
		logger.StringField("path", s.cfg.Path))

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Error("Webhook listener failed", logger.ErrorField(err))
		}
	}()
}

// Shutdown stops the webhook server if it was started.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	s.log.Info("Stopping webhook listener")
	return s.server.Shutdown(ctx)
}
