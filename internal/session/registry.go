package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/lewisedginton/afk_responder/internal/genai"
	"github.com/lewisedginton/afk_responder/internal/keywords"
	"github.com/lewisedginton/afk_responder/internal/ratelimit"
	"github.com/lewisedginton/afk_responder/internal/telegram"
	"github.com/lewisedginton/afk_responder/pkg/logger"
	"github.com/lewisedginton/afk_responder/pkg/metrics"
)

// Notifier delivers owner-facing messages and exposes the control bot's own
// identity for the pipeline self-filter.
type Notifier interface {
	Send(ctx context.Context, chatID, text string) error
	BotUserID() int64
}

// Policy holds the timing knobs of the pipeline.
type Policy struct {
	ReplyCooldown     time.Duration
	ErrorSilence      time.Duration
	QueueDelay        time.Duration
	GenerationTimeout time.Duration
}

// DefaultPolicy values match the original deployment.
var DefaultPolicy = Policy{
	ReplyCooldown:     ratelimit.DefaultCooldown,
	ErrorSilence:      ratelimit.DefaultSilence,
	QueueDelay:        10 * time.Second,
	GenerationTimeout: 30 * time.Second,
}

// Config holds configuration for the Registry.
type Config struct {
	Factory   telegram.Factory
	Generator genai.Generator
	Notifier  Notifier
	Keywords  keywords.Table
	Logger    logger.Logger
	Metrics   *metrics.Metrics
	Policy    Policy

	// OnCredentials is called after a session is promoted or toggles AFK,
	// with the blob to persist. The registry performs no storage I/O itself.
	OnCredentials func(ctx context.Context, chatID, credentials string, afk bool)
	// OnRemove is called after a session is removed, so the caller can drop
	// the persisted credentials.
	OnRemove func(ctx context.Context, chatID string)
}

// Registry owns every live session and routes owner commands through the
// auth state machine. Sessions never block each other; the per-session
// processing guard is the only serialization for commands.
type Registry struct {
	cfg Config
	log logger.Logger

	mu       sync.Mutex
	sessions map[string]*Session

	done      chan struct{}
	closeOnce sync.Once
}

// NewRegistry creates a Registry.
func NewRegistry(cfg Config) (*Registry, error) {
	if cfg.Factory == nil {
		return nil, fmt.Errorf("telegram client factory is required")
	}
	if cfg.Generator == nil {
		return nil, fmt.Errorf("generator is required")
	}
	if cfg.Notifier == nil {
		return nil, fmt.Errorf("notifier is required")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if cfg.Metrics == nil {
		return nil, fmt.Errorf("metrics is required")
	}
	if cfg.Keywords == nil {
		cfg.Keywords = keywords.Default()
	}
	if cfg.Policy.ReplyCooldown <= 0 {
		cfg.Policy.ReplyCooldown = DefaultPolicy.ReplyCooldown
	}
	if cfg.Policy.ErrorSilence <= 0 {
		cfg.Policy.ErrorSilence = DefaultPolicy.ErrorSilence
	}
	if cfg.Policy.QueueDelay <= 0 {
		cfg.Policy.QueueDelay = DefaultPolicy.QueueDelay
	}
	if cfg.Policy.GenerationTimeout <= 0 {
		cfg.Policy.GenerationTimeout = DefaultPolicy.GenerationTimeout
	}

	return &Registry{
		cfg:      cfg,
		log:      cfg.Logger.WithFields(logger.StringField("component", "session_registry")),
		sessions: map[string]*Session{},
		done:     make(chan struct{}),
	}, nil
}

// GetOrCreate returns the session for the owner chat, creating an IDLE one
// on first reference.
func (r *Registry) GetOrCreate(chatID string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[chatID]; ok {
		return s
	}
	s := &Session{
		chatID:     chatID,
		log:        r.cfg.Logger.WithFields(logger.StringField("chat_id", chatID)),
		state:      StateIdle,
		interacted: map[int64]bool{},
		limiter: ratelimit.NewController(ratelimit.Config{
			Cooldown: r.cfg.Policy.ReplyCooldown,
			Silence:  r.cfg.Policy.ErrorSilence,
		}),
	}
	r.sessions[chatID] = s
	return s
}

// ConnectedCount returns how many sessions are CONNECTED.
func (r *Registry) ConnectedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, s := range r.sessions {
		if s.State() == StateConnected {
			n++
		}
	}
	return n
}

// HandleCommand routes one owner message through the session's state
// machine. While a previous command for the same session is still being
// handled, new ones are dropped, not queued.
func (r *Registry) HandleCommand(ctx context.Context, chatID, text string) {
	s := r.GetOrCreate(chatID)

	s.mu.Lock()
	if s.processing {
		s.mu.Unlock()
		s.log.Debug("Dropping command, previous one still in flight")
		return
	}
	s.processing = true
	state := s.state
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.processing = false
		s.mu.Unlock()
	}()

	switch state {
	case StateIdle:
		r.handleIdle(ctx, s, text)
	case StateWaitPhone:
		r.handleWaitPhone(ctx, s, text)
	case StateWaitCode:
		r.handleWaitCode(ctx, s, text)
	case StateConnected:
		r.handleConnected(ctx, s, text)
	}
}

func (r *Registry) handleIdle(ctx context.Context, s *Session, text string) {
	cmd := strings.ToLower(strings.TrimSpace(text))
	switch {
	case strings.HasPrefix(cmd, "/connect"):
		s.mu.Lock()
		s.state = StateWaitPhone
		s.mu.Unlock()
		r.notify(ctx, s, msgAskPhone)
	case strings.HasPrefix(cmd, "/me"):
		r.notify(ctx, s, fmt.Sprintf("Chat ID kamu: %s", s.chatID))
	case strings.HasPrefix(cmd, "/afk"), strings.HasPrefix(cmd, "/back"):
		r.notify(ctx, s, msgConnectFirst)
	default:
		r.notify(ctx, s, msgMenu)
	}
}

func (r *Registry) handleWaitPhone(ctx context.Context, s *Session, text string) {
	if isCommandLike(text) {
		s.mu.Lock()
		s.state = StateIdle
		s.mu.Unlock()
		r.notify(ctx, s, msgCancelled)
		return
	}

	phone := stripWhitespace(text)

	// A retry after a failed code request may leave a stale handle behind.
	s.mu.Lock()
	stale := s.client
	s.client = nil
	s.mu.Unlock()
	if stale != nil {
		if err := stale.Close(); err != nil {
			s.log.Warn("Failed to close stale client", logger.ErrorField(err))
		}
	}

	r.notify(ctx, s, msgSendingCode)

	client, err := r.cfg.Factory("")
	if err == nil {
		if err = client.Connect(ctx); err == nil {
			var codeHash string
			codeHash, err = client.RequestCode(ctx, phone)
			if err == nil {
				s.mu.Lock()
				s.client = client
				s.phone = phone
				s.codeHash = codeHash
				s.state = StateWaitCode
				s.mu.Unlock()
				r.notify(ctx, s, msgCodeSent)
				return
			}
		}
		if closeErr := client.Close(); closeErr != nil {
			s.log.Warn("Failed to close client after code request failure", logger.ErrorField(closeErr))
		}
	}

	s.log.Error("Code request failed", logger.ErrorField(err))
	s.mu.Lock()
	s.state = StateIdle
	s.phone, s.codeHash = "", ""
	s.mu.Unlock()
	r.notify(ctx, s, fmt.Sprintf("Gagal minta kode login: %s\nCoba /connect lagi ya.", truncateError(err)))
}

func (r *Registry) handleWaitCode(ctx context.Context, s *Session, text string) {
	s.mu.Lock()
	client := s.client
	phone, codeHash := s.phone, s.codeHash
	s.mu.Unlock()

	if isCommandLike(text) {
		r.resetToIdle(s)
		r.notify(ctx, s, msgCancelled)
		return
	}

	if client == nil {
		r.resetToIdle(s)
		r.notify(ctx, s, msgSessionExpired)
		return
	}

	code := stripWhitespace(text)
	account, err := client.SignIn(ctx, phone, codeHash, code)
	if err != nil {
		s.log.Error("Sign-in failed", logger.ErrorField(err))
		r.resetToIdle(s)

		var authErr *telegram.AuthError
		if errors.As(err, &authErr) && authErr.TwoFactorRequired {
			r.notify(ctx, s, msgTwoFactor)
			return
		}
		r.notify(ctx, s, fmt.Sprintf("Login gagal: %s\nBalik ke awal, coba /connect lagi.", truncateError(err)))
		return
	}

	r.promote(ctx, s, client, account, false)
	r.notify(ctx, s, fmt.Sprintf("Berhasil login sebagai %s! Ketik /afk buat nyalain mode AFK.", account.FirstName))
}

func (r *Registry) handleConnected(ctx context.Context, s *Session, text string) {
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "/afk":
		s.mu.Lock()
		s.isAFK = true
		s.mu.Unlock()
		r.persist(ctx, s)
		r.notify(ctx, s, msgAfkOn)
	case "/back":
		s.mu.Lock()
		s.isAFK = false
		s.interacted = map[int64]bool{}
		s.mu.Unlock()
		r.persist(ctx, s)
		r.notify(ctx, s, msgAfkOff)
	case "/logout":
		r.Remove(ctx, s.chatID)
		r.notify(ctx, s, msgLoggedOut)
	default:
		// Silently ignored. Replying here would loop with the owner's own
		// chat client.
	}
}

// Promote transitions a session to CONNECTED, attaching the transport handle
// and starting its pipeline listener. A session that is already CONNECTED is
// left untouched so a listener is never started twice.
func (r *Registry) Promote(ctx context.Context, chatID string, client telegram.Client, account telegram.Account) {
	r.promote(ctx, r.GetOrCreate(chatID), client, account, false)
}

func (r *Registry) promote(ctx context.Context, s *Session, client telegram.Client, account telegram.Account, afk bool) {
	s.mu.Lock()
	if s.state == StateConnected {
		s.mu.Unlock()
		return
	}
	s.client = client
	s.account = account
	s.isAFK = afk
	s.phone, s.codeHash = "", ""
	s.state = StateConnected
	s.log = s.log.WithFields(logger.Int64Field("account_id", account.ID))
	s.mu.Unlock()

	sub, err := client.Subscribe(func(msg telegram.IncomingMessage) {
		r.enqueue(s, msg)
	})
	if err != nil {
		s.log.Error("Failed to subscribe to incoming messages", logger.ErrorField(err))
	} else {
		s.mu.Lock()
		s.sub = sub
		s.mu.Unlock()
	}

	credentials, err := client.ExportCredentials(ctx)
	if err != nil {
		s.log.Error("Failed to export credentials", logger.ErrorField(err))
	} else {
		s.mu.Lock()
		s.credentials = credentials
		s.mu.Unlock()
	}

	r.cfg.Metrics.ConnectedSessions.Inc()
	s.log.Info("Session connected",
		logger.StringField("first_name", account.FirstName),
		logger.BoolField("afk", afk))
	r.persist(ctx, s)
}

// Restore re-establishes a previously authenticated session from a persisted
// credential blob. Used at startup; a failure only affects this session.
func (r *Registry) Restore(ctx context.Context, chatID, credentials string, afk bool) error {
	client, err := r.cfg.Factory(credentials)
	if err != nil {
		return fmt.Errorf("failed to restore client: %w", err)
	}
	if err := client.Connect(ctx); err != nil {
		_ = client.Close()
		return fmt.Errorf("failed to connect restored client: %w", err)
	}
	account, err := client.Me(ctx)
	if err != nil {
		_ = client.Close()
		return fmt.Errorf("failed to identify restored client: %w", err)
	}

	r.promote(ctx, r.GetOrCreate(chatID), client, account, afk)
	return nil
}

// Remove disconnects the transport and deletes the session record.
func (r *Registry) Remove(ctx context.Context, chatID string) {
	r.mu.Lock()
	s, ok := r.sessions[chatID]
	delete(r.sessions, chatID)
	r.mu.Unlock()
	if !ok {
		return
	}

	wasConnected := r.teardown(s)
	if wasConnected {
		r.cfg.Metrics.ConnectedSessions.Dec()
	}
	s.log.Info("Session removed")

	if r.cfg.OnRemove != nil {
		r.cfg.OnRemove(ctx, chatID)
	}
}

// Close tears down every session and stops queue workers mid-delay.
func (r *Registry) Close() {
	r.closeOnce.Do(func() { close(r.done) })

	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.sessions = map[string]*Session{}
	r.mu.Unlock()

	for _, s := range sessions {
		if r.teardown(s) {
			r.cfg.Metrics.ConnectedSessions.Dec()
		}
	}
}

// resetToIdle clears auth artifacts and disconnects any transport handle.
func (r *Registry) resetToIdle(s *Session) {
	r.teardown(s)
}

// teardown returns the session to IDLE and reports whether it was CONNECTED.
func (r *Registry) teardown(s *Session) bool {
	s.mu.Lock()
	wasConnected := s.state == StateConnected
	client, sub := s.client, s.sub
	dropped := len(s.queue)
	s.client, s.sub = nil, nil
	s.state = StateIdle
	s.isAFK = false
	s.phone, s.codeHash = "", ""
	s.queue = nil
	s.interacted = map[int64]bool{}
	s.mu.Unlock()

	if dropped > 0 {
		r.cfg.Metrics.QueueDepth.Sub(float64(dropped))
	}

	if sub != nil {
		sub.Cancel()
	}
	if client != nil {
		if err := client.Close(); err != nil {
			s.log.Warn("Failed to close client", logger.ErrorField(err))
		}
	}
	return wasConnected
}

func (r *Registry) persist(ctx context.Context, s *Session) {
	if r.cfg.OnCredentials == nil {
		return
	}
	s.mu.Lock()
	credentials, afk := s.credentials, s.isAFK
	s.mu.Unlock()
	if credentials == "" {
		return
	}
	r.cfg.OnCredentials(ctx, s.chatID, credentials, afk)
}

func (r *Registry) notify(ctx context.Context, s *Session, text string) {
	if err := r.cfg.Notifier.Send(ctx, s.chatID, text); err != nil {
		s.log.Error("Failed to notify owner", logger.ErrorField(err))
	}
}
