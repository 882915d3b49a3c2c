package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/lewisedginton/afk_responder/internal/genai"
	"github.com/lewisedginton/afk_responder/internal/telegram"
	"github.com/lewisedginton/afk_responder/pkg/logger"
	"github.com/lewisedginton/afk_responder/pkg/metrics"
	"github.com/stretchr/testify/require"
)

type sentMessage struct {
	peerID int64
	text   string
}

type fakeSub struct {
	cancelled bool
}

func (f *fakeSub) Cancel() { f.cancelled = true }

type fakeClient struct {
	mu sync.Mutex

	connectErr error
	codeErr    error
	signInErr  error
	resolveErr error
	sendErr    error

	codeHash string
	account  telegram.Account
	senders  map[int64]telegram.Sender

	connected bool
	closed    bool
	phone     string
	usedHash  string
	usedCode  string
	sent      []sentMessage
	handler   func(telegram.IncomingMessage)
	sub       *fakeSub
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		codeHash: "hash-1",
		account:  telegram.Account{ID: 42, FirstName: "Budi", Phone: "+628123456789"},
		senders:  map[int64]telegram.Sender{},
	}
}

func (f *fakeClient) Connect(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.connectErr != nil {
		return f.connectErr
	}
	f.connected = true
	return nil
}

func (f *fakeClient) RequestCode(_ context.Context, phone string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.codeErr != nil {
		return "", f.codeErr
	}
	f.phone = phone
	return f.codeHash, nil
}

func (f *fakeClient) SignIn(_ context.Context, phone, codeHash, code string) (telegram.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.signInErr != nil {
		return telegram.Account{}, f.signInErr
	}
	f.phone, f.usedHash, f.usedCode = phone, codeHash, code
	return f.account, nil
}

func (f *fakeClient) Me(context.Context) (telegram.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.account, nil
}

func (f *fakeClient) SendMessage(_ context.Context, peerID int64, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, sentMessage{peerID: peerID, text: text})
	return nil
}

func (f *fakeClient) ResolveSender(_ context.Context, senderID int64) (telegram.Sender, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.resolveErr != nil {
		return telegram.Sender{}, f.resolveErr
	}
	if s, ok := f.senders[senderID]; ok {
		return s, nil
	}
	return telegram.Sender{ID: senderID, FirstName: "Someone"}, nil
}

func (f *fakeClient) Subscribe(handler func(telegram.IncomingMessage)) (telegram.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handler = handler
	f.sub = &fakeSub{}
	return f.sub, nil
}

func (f *fakeClient) ExportCredentials(context.Context) (string, error) {
	return "blob-1", nil
}

func (f *fakeClient) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeClient) deliver(msg telegram.IncomingMessage) {
	f.mu.Lock()
	handler := f.handler
	f.mu.Unlock()
	if handler != nil {
		handler(msg)
	}
}

func (f *fakeClient) sentMessages() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]sentMessage, len(f.sent))
	copy(out, f.sent)
	return out
}

type fakeNotifier struct {
	mu    sync.Mutex
	botID int64
	msgs  []string
}

func (f *fakeNotifier) Send(_ context.Context, _ string, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, text)
	return nil
}

func (f *fakeNotifier) BotUserID() int64 { return f.botID }

func (f *fakeNotifier) messages() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.msgs))
	copy(out, f.msgs)
	return out
}

type fakeGenerator struct {
	mu    sync.Mutex
	reply string
	err   error
	calls []genai.Request
}

func (f *fakeGenerator) Generate(_ context.Context, req genai.Request) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req)
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

func (f *fakeGenerator) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type testHarness struct {
	registry  *Registry
	client    *fakeClient
	notifier  *fakeNotifier
	generator *fakeGenerator
}

func newTestHarness(t *testing.T) *testHarness {
	t.Helper()

	log := logger.NewLogger(logger.Config{Level: logger.ErrorLevel, Format: "text"})
	client := newFakeClient()
	notifier := &fakeNotifier{botID: 999}
	generator := &fakeGenerator{reply: "generated reply"}

	registry, err := NewRegistry(Config{
		Factory:   func(string) (telegram.Client, error) { return client, nil },
		Generator: generator,
		Notifier:  notifier,
		Logger:    log,
		Metrics:   metrics.NewMetrics(log),
		Policy: Policy{
			ReplyCooldown:     DefaultPolicy.ReplyCooldown,
			ErrorSilence:      DefaultPolicy.ErrorSilence,
			QueueDelay:        time.Millisecond,
			GenerationTimeout: time.Second,
		},
	})
	require.NoError(t, err)
	t.Cleanup(registry.Close)

	return &testHarness{
		registry:  registry,
		client:    client,
		notifier:  notifier,
		generator: generator,
	}
}

// connect drives the full auth flow for one owner chat.
func (h *testHarness) connect(t *testing.T, chatID string) *Session {
	t.Helper()

	ctx := context.Background()
	h.registry.HandleCommand(ctx, chatID, "/connect")
	h.registry.HandleCommand(ctx, chatID, "+628123456789")
	h.registry.HandleCommand(ctx, chatID, "123456")

	s := h.registry.GetOrCreate(chatID)
	require.Equal(t, StateConnected, s.State())
	return s
}

// waitDrained blocks until the session queue worker has gone idle.
func waitDrained(t *testing.T, s *Session) {
	t.Helper()
	require.Eventually(t, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return len(s.queue) == 0 && !s.draining
	}, 2*time.Second, 2*time.Millisecond)
}
