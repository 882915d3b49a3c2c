// Package gotd implements the messaging-client boundary over MTProto using
// gotd/td. One Client wraps one account session; the registry owns the
// handle through the telegram.Client interface.
package gotd

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"

	"github.com/gotd/contrib/bg"
	"github.com/gotd/td/session"
	"github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/telegram/message"
	"github.com/gotd/td/tg"

	apptelegram "github.com/lewisedginton/afk_responder/internal/telegram"
	"github.com/lewisedginton/afk_responder/pkg/logger"
)

// Config holds the MTProto application credentials.
type Config struct {
	AppID   int
	AppHash string
	Logger  logger.Logger
}

// NewFactory returns a telegram.Factory producing MTProto-backed clients.
func NewFactory(cfg Config) (apptelegram.Factory, error) {
	if cfg.AppID == 0 {
		return nil, fmt.Errorf("app ID is required")
	}
	if cfg.AppHash == "" {
		return nil, fmt.Errorf("app hash is required")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	return func(credentials string) (apptelegram.Client, error) {
		return newClient(cfg, credentials)
	}, nil
}

// Client is one MTProto session handle.
type Client struct {
	client  *telegram.Client
	api     *tg.Client
	storage *session.StorageMemory
	log     logger.Logger

	mu      sync.Mutex
	stop    bg.StopFunc
	handler func(apptelegram.IncomingMessage)
	users   map[int64]*tg.User
}

func newClient(cfg Config, credentials string) (*Client, error) {
	storage := &session.StorageMemory{}
	if credentials != "" {
		data, err := base64.StdEncoding.DecodeString(credentials)
		if err != nil {
			return nil, fmt.Errorf("failed to decode credentials: %w", err)
		}
		if err := storage.StoreSession(context.Background(), data); err != nil {
			return nil, fmt.Errorf("failed to seed session storage: %w", err)
		}
	}

	c := &Client{
		storage: storage,
		log:     cfg.Logger.WithFields(logger.StringField("component", "mtproto_client")),
		users:   map[int64]*tg.User{},
	}

	dispatcher := tg.NewUpdateDispatcher()
	dispatcher.OnNewMessage(c.onNewMessage)

	c.client = telegram.NewClient(cfg.AppID, cfg.AppHash, telegram.Options{
		SessionStorage: storage,
		UpdateHandler:  dispatcher,
	})
	c.api = c.client.API()
	return c, nil
}

// Connect opens the MTProto connection in the background. The handle stays
// connected until Close.
func (c *Client) Connect(_ context.Context) error {
	stop, err := bg.Connect(c.client)
	if err != nil {
		return &apptelegram.TransportError{Op: "connect", Err: err}
	}

	c.mu.Lock()
	c.stop = stop
	c.mu.Unlock()
	return nil
}

// RequestCode implements telegram.Client.
func (c *Client) RequestCode(ctx context.Context, phone string) (string, error) {
	sent, err := c.client.Auth().SendCode(ctx, phone, auth.SendCodeOptions{})
	if err != nil {
		return "", &apptelegram.AuthError{Op: "send code", Err: err}
	}
	code, ok := sent.(*tg.AuthSentCode)
	if !ok {
		return "", &apptelegram.AuthError{Op: "send code", Err: fmt.Errorf("unexpected response %T", sent)}
	}
	return code.PhoneCodeHash, nil
}

// SignIn implements telegram.Client.
func (c *Client) SignIn(ctx context.Context, phone, codeHash, code string) (apptelegram.Account, error) {
	if _, err := c.client.Auth().SignIn(ctx, phone, code, codeHash); err != nil {
		if errors.Is(err, auth.ErrPasswordAuthNeeded) {
			return apptelegram.Account{}, &apptelegram.AuthError{Op: "sign in", TwoFactorRequired: true, Err: err}
		}
		return apptelegram.Account{}, &apptelegram.AuthError{Op: "sign in", Err: err}
	}
	return c.Me(ctx)
}

// Me implements telegram.Client.
func (c *Client) Me(ctx context.Context) (apptelegram.Account, error) {
	self, err := c.client.Self(ctx)
	if err != nil {
		return apptelegram.Account{}, &apptelegram.TransportError{Op: "self", Err: err}
	}
	phone, _ := self.GetPhone()
	return apptelegram.Account{
		ID:        self.ID,
		FirstName: self.FirstName,
		Phone:     phone,
	}, nil
}

// SendMessage implements telegram.Client. Peers are addressable once they
// have messaged this account, their access hash comes from the update
// entities.
func (c *Client) SendMessage(ctx context.Context, peerID int64, text string) error {
	c.mu.Lock()
	user, ok := c.users[peerID]
	c.mu.Unlock()
	if !ok {
		return &apptelegram.DeliveryError{PeerID: peerID, Err: fmt.Errorf("no access hash for peer")}
	}

	if _, err := message.NewSender(c.api).To(user.AsInputPeer()).Text(ctx, text); err != nil {
		return &apptelegram.DeliveryError{PeerID: peerID, Err: err}
	}
	return nil
}

// ResolveSender implements telegram.Client.
func (c *Client) ResolveSender(_ context.Context, senderID int64) (apptelegram.Sender, error) {
	c.mu.Lock()
	user, ok := c.users[senderID]
	c.mu.Unlock()
	if !ok {
		return apptelegram.Sender{}, fmt.Errorf("unknown sender %d", senderID)
	}

	username, _ := user.GetUsername()
	return apptelegram.Sender{
		ID:        user.ID,
		FirstName: user.FirstName,
		Username:  username,
		IsBot:     user.Bot,
	}, nil
}

// Subscribe implements telegram.Client. The dispatcher is registered at
// construction; Subscribe only arms the forwarding handler.
func (c *Client) Subscribe(handler func(apptelegram.IncomingMessage)) (apptelegram.Subscription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.handler != nil {
		return nil, fmt.Errorf("subscription already active")
	}
	c.handler = handler
	return &subscription{client: c}, nil
}

// ExportCredentials implements telegram.Client.
func (c *Client) ExportCredentials(ctx context.Context) (string, error) {
	data, err := c.storage.LoadSession(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to load session data: %w", err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// Close implements telegram.Client.
func (c *Client) Close() error {
	c.mu.Lock()
	stop := c.stop
	c.stop = nil
	c.handler = nil
	c.mu.Unlock()

	if stop == nil {
		return nil
	}
	if err := stop(); err != nil {
		return &apptelegram.TransportError{Op: "close", Err: err}
	}
	return nil
}

func (c *Client) onNewMessage(_ context.Context, e tg.Entities, u *tg.UpdateNewMessage) error {
	msg, ok := u.Message.(*tg.Message)
	if !ok {
		return nil
	}

	c.mu.Lock()
	for id, user := range e.Users {
		c.users[id] = user
	}
	handler := c.handler
	c.mu.Unlock()
	if handler == nil {
		return nil
	}

	peerUser, private := msg.PeerID.(*tg.PeerUser)
	senderID := int64(0)
	if private {
		senderID = peerUser.UserID
	}
	if from, ok := msg.GetFromID(); ok {
		if fromUser, ok := from.(*tg.PeerUser); ok {
			senderID = fromUser.UserID
		}
	}
	_, hasMedia := msg.GetMedia()

	handler(apptelegram.IncomingMessage{
		SenderID: senderID,
		Text:     msg.Message,
		Outgoing: msg.Out,
		Private:  private,
		HasMedia: hasMedia,
	})
	return nil
}

type subscription struct {
	client *Client
}

// Cancel stops forwarding incoming messages.
func (s *subscription) Cancel() {
	s.client.mu.Lock()
	s.client.handler = nil
	s.client.mu.Unlock()
}
