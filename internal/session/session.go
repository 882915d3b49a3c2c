// Package session implements the session orchestrator: the per-owner auth
// state machine, the registry of live sessions and the message pipeline that
// answers incoming chats while an owner is AFK.
package session

import (
	"strings"
	"sync"
	"unicode"

	"github.com/lewisedginton/afk_responder/internal/ratelimit"
	"github.com/lewisedginton/afk_responder/internal/telegram"
	"github.com/lewisedginton/afk_responder/pkg/logger"
)

// State is the auth lifecycle position of one session.
type State int

const (
	StateIdle State = iota
	StateWaitPhone
	StateWaitCode
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateWaitPhone:
		return "WAIT_PHONE"
	case StateWaitCode:
		return "WAIT_CODE"
	case StateConnected:
		return "CONNECTED"
	default:
		return "UNKNOWN"
	}
}

// Owner-facing reply texts, kept in the register the owners expect.
const (
	msgMenu = "Halo! Ini AFK responder kamu.\n" +
		"/connect - hubungkan akun Telegram\n" +
		"/me - lihat chat ID kamu\n" +
		"/afk - nyalain mode AFK\n" +
		"/back - matiin mode AFK\n" +
		"/logout - putusin akun"
	msgAskPhone = "Oke, kirim nomor telepon kamu (format internasional, contoh +628123456789). " +
		"Kirim perintah lain kalau mau batal."
	msgSendingCode    = "Sip, lagi minta kode login ke Telegram..."
	msgCodeSent       = "Kode udah dikirim! Balas pesan ini dengan kode verifikasinya ya."
	msgCancelled      = "Oke, dibatalin."
	msgSessionExpired = "Sesi login kadaluarsa, ulangi dari /connect ya."
	msgConnectFirst   = "Belum ada akun yang terhubung. Ketik /connect dulu ya."
	msgTwoFactor      = "Akun kamu pakai verifikasi dua langkah. Itu belum didukung, login dibatalin."
	msgAfkOn          = "Mode AFK nyala. Gue yang jawab chat masuk ya."
	msgAfkOff         = "Mode AFK mati. Selamat datang kembali bos!"
	msgLoggedOut      = "Akun diputus. Sampai jumpa!"
)

// fallbackReply goes to counterparties when generation fails; they never see
// the technical detail.
const fallbackReply = "Ada masalah teknis nih bro. Coba lagi ya."

// maxErrorChars bounds failure text surfaced to the owner chat.
const maxErrorChars = 1000

// Session is the orchestrator record for one owner. All fields are guarded
// by mu; network calls are never made while holding it, the processing and
// draining guards serialize those instead.
type Session struct {
	chatID string
	log    logger.Logger

	mu         sync.Mutex
	state      State
	isAFK      bool
	phone      string
	codeHash   string
	processing bool

	client      telegram.Client
	account     telegram.Account
	credentials string
	sub         telegram.Subscription

	queue      []telegram.IncomingMessage
	draining   bool
	interacted map[int64]bool
	limiter    *ratelimit.Controller
}

// ChatID returns the owner chat this session belongs to.
func (s *Session) ChatID() string { return s.chatID }

// State returns the current auth state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// IsAFK reports whether the AFK responder is active. Only a CONNECTED
// session can be AFK.
func (s *Session) IsAFK() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isAFK
}

// Account returns the authenticated account, zero-valued before CONNECTED.
func (s *Session) Account() telegram.Account {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.account
}

// isCommandLike reports whether owner text looks like a command rather than
// a phone number or verification code.
func isCommandLike(text string) bool {
	return strings.HasPrefix(strings.TrimSpace(text), "/")
}

// stripWhitespace removes all whitespace, so owners can paste numbers like
// "+62 812 3456 789".
func stripWhitespace(text string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, text)
}

// truncateError bounds error text shown to the owner.
func truncateError(err error) string {
	text := err.Error()
	if len(text) > maxErrorChars {
		return text[:maxErrorChars]
	}
	return text
}

// hasReplyableText reports whether the message text contains anything worth
// answering: at least one rune that is not whitespace, emoji or an emoji
// combining character.
func hasReplyableText(text string) bool {
	for _, r := range text {
		switch {
		case unicode.IsSpace(r):
		case unicode.Is(unicode.So, r), unicode.Is(unicode.Sk, r):
		case r == 0x200D: // zero-width joiner
		case r >= 0xFE00 && r <= 0xFE0F: // variation selectors
		default:
			return true
		}
	}
	return false
}
