// Package genai wraps the hosted text-generation backends behind the
// Generator interface the message pipeline consumes. Three providers are
// supported: OpenRouter (OpenAI-compatible), Claude and Gemini.
package genai

import (
	"context"
	"fmt"
)

// Request carries one generation call.
type Request struct {
	// Text is the counterparty's raw message.
	Text string
	// OwnerName is the display name of the AFK account owner.
	OwnerName string
	// FirstContact is true when this counterparty has not been greeted since
	// AFK was last enabled.
	FirstContact bool
}

// Generator produces a reply to one incoming message.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// Error is the failure taxonomy for generation calls. RateLimited is the
// sole trigger for the pipeline's error-silence window; every other failure
// (including timeouts) only produces the fallback reply.
type Error struct {
	RateLimited bool
	Err         error
}

func (e *Error) Error() string {
	if e.RateLimited {
		return fmt.Sprintf("generation rate limited: %v", e.Err)
	}
	return fmt.Sprintf("generation failed: %v", e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// EmptyInputReply is returned without calling any backend when the incoming
// text is empty.
const EmptyInputReply = "Waduh, pesannya kosong nih bro."
