// Package telegram defines the capability boundary between the session
// orchestrator and the messaging network. The orchestrator only ever talks
// to the Client interface; the MTProto implementation lives in the gotd
// subpackage and fakes stand in during tests.
package telegram

import "context"

// Account identifies an authenticated messaging account.
type Account struct {
	ID        int64
	FirstName string
	Phone     string
}

// Sender describes the counterparty of a one-to-one chat.
type Sender struct {
	ID        int64
	FirstName string
	Username  string
	IsBot     bool
}

// IncomingMessage is one realtime message event delivered to a subscription.
type IncomingMessage struct {
	SenderID int64
	Text     string
	Outgoing bool // sent by the account owner itself
	Private  bool // one-to-one chat
	HasMedia bool // photo/sticker/video/audio/voice/document payload
}

// Subscription is a cancellable realtime message listener.
type Subscription interface {
	Cancel()
}

// Client is the capability set the orchestrator needs from one transport
// handle. A handle is exclusively owned by a single session.
type Client interface {
	// Connect opens the transport session.
	Connect(ctx context.Context) error

	// RequestCode asks the network to send a verification code to the phone
	// and returns the code hash needed to complete sign-in.
	RequestCode(ctx context.Context, phone string) (string, error)

	// SignIn completes authentication with the code the owner received.
	SignIn(ctx context.Context, phone, codeHash, code string) (Account, error)

	// Me returns the authenticated account behind this handle.
	Me(ctx context.Context) (Account, error)

	// SendMessage delivers text to a counterparty as the account owner.
	SendMessage(ctx context.Context, peerID int64, text string) error

	// ResolveSender looks up counterparty details for an incoming message.
	ResolveSender(ctx context.Context, senderID int64) (Sender, error)

	// Subscribe registers a listener for incoming private messages.
	Subscribe(handler func(IncomingMessage)) (Subscription, error)

	// ExportCredentials serializes the transport session for persistence.
	ExportCredentials(ctx context.Context) (string, error)

	// Close tears down the transport session.
	Close() error
}

// Factory creates a fresh transport handle. Empty credentials start an
// anonymous handle for the phone/code flow; a non-empty blob restores a
// previously exported session.
type Factory func(credentials string) (Client, error)
