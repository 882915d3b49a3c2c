// Package notify delivers owner-facing messages through the control bot:
// auth-flow prompts, command acknowledgments and error reports.
package notify

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/lewisedginton/afk_responder/pkg/logger"
)

// Config holds configuration for the notifier.
type Config struct {
	BotToken string
	Logger   logger.Logger
}

// Notifier sends chat messages to owners via the Telegram Bot API.
type Notifier struct {
	bot       *bot.Bot
	botUserID int64
	log       logger.Logger
}

// New creates a Notifier. The bot user ID is derived from the token so the
// pipeline can filter out the bot's own messages without a network call.
func New(cfg Config) (*Notifier, error) {
	if cfg.BotToken == "" {
		return nil, fmt.Errorf("bot token is required")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	botUserID, err := BotIDFromToken(cfg.BotToken)
	if err != nil {
		return nil, err
	}

	b, err := bot.New(cfg.BotToken, bot.WithSkipGetMe())
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	return &Notifier{
		bot:       b,
		botUserID: botUserID,
		log:       cfg.Logger.WithFields(logger.StringField("component", "notifier")),
	}, nil
}

// Send delivers text to the owner chat. Failures are returned for the caller
// to log; owner notifications are best-effort.
func (n *Notifier) Send(ctx context.Context, chatID, text string) error {
	_, err := n.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: chatID,
		Text:   text,
	})
	if err != nil {
		return fmt.Errorf("failed to send owner message: %w", err)
	}
	return nil
}

// BotUserID returns the control bot's own user ID.
func (n *Notifier) BotUserID() int64 {
	return n.botUserID
}

// Ready reports whether the Bot API is reachable. Used by the readiness
// probe.
func (n *Notifier) Ready(ctx context.Context) error {
	if _, err := n.bot.GetMe(ctx); err != nil {
		return fmt.Errorf("bot API unreachable: %w", err)
	}
	return nil
}

// BotIDFromToken extracts the numeric bot user ID from a Bot API token
// (the part before the colon).
func BotIDFromToken(token string) (int64, error) {
	prefix, _, found := strings.Cut(token, ":")
	if !found {
		return 0, fmt.Errorf("malformed bot token")
	}
	id, err := strconv.ParseInt(prefix, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("malformed bot token: %w", err)
	}
	return id, nil
}
