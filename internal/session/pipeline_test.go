package session

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/lewisedginton/afk_responder/internal/genai"
	"github.com/lewisedginton/afk_responder/internal/telegram"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func privateText(senderID int64, text string) telegram.IncomingMessage {
	return telegram.IncomingMessage{SenderID: senderID, Text: text, Private: true}
}

// afkSession builds a CONNECTED session with AFK on, ready to receive.
func afkSession(t *testing.T, h *testHarness) *Session {
	t.Helper()
	s := h.connect(t, "100")
	h.registry.HandleCommand(context.Background(), "100", "/afk")
	require.True(t, s.IsAFK())
	return s
}

func TestKeywordShortCircuit(t *testing.T) {
	h := newTestHarness(t)
	s := afkSession(t, h)

	h.client.deliver(privateText(7, "  PAGI  "))
	waitDrained(t, s)

	sent := h.client.sentMessages()
	require.Len(t, sent, 1)
	assert.Equal(t, sentMessage{peerID: 7, text: "Pagi juga bos!"}, sent[0])
	assert.Zero(t, h.generator.callCount(), "keyword hits never reach generation")
}

func TestGeneratedReplyAndFirstContact(t *testing.T) {
	h := newTestHarness(t)
	s := afkSession(t, h)

	h.client.deliver(privateText(7, "lagi dimana?"))
	waitDrained(t, s)

	sent := h.client.sentMessages()
	require.Len(t, sent, 1)
	assert.Equal(t, "generated reply", sent[0].text)

	require.Equal(t, 1, h.generator.callCount())
	call := h.generator.calls[0]
	assert.Equal(t, "lagi dimana?", call.Text)
	assert.Equal(t, "Budi", call.OwnerName)
	assert.True(t, call.FirstContact)

	s.mu.Lock()
	assert.True(t, s.interacted[7], "greeted counterparty remembered")
	s.mu.Unlock()
}

func TestFollowUpIsNotFirstContact(t *testing.T) {
	h := newTestHarness(t)
	s := afkSession(t, h)

	s.mu.Lock()
	s.interacted[7] = true
	s.mu.Unlock()

	h.client.deliver(privateText(7, "masih sibuk?"))
	waitDrained(t, s)

	require.Equal(t, 1, h.generator.callCount())
	assert.False(t, h.generator.calls[0].FirstContact)
}

func TestFilterChainRejections(t *testing.T) {
	tests := []struct {
		name string
		msg  telegram.IncomingMessage
	}{
		{"outgoing", telegram.IncomingMessage{SenderID: 7, Text: "halo", Private: true, Outgoing: true}},
		{"control bot sender", privateText(999, "halo")},
		{"group chat", telegram.IncomingMessage{SenderID: 7, Text: "halo"}},
		{"media payload", telegram.IncomingMessage{SenderID: 7, Text: "halo", Private: true, HasMedia: true}},
		{"empty text", privateText(7, "   ")},
		{"emoji only", privateText(7, "😂👍🏽❤️")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHarness(t)
			s := afkSession(t, h)

			h.client.deliver(tt.msg)
			waitDrained(t, s)

			assert.Empty(t, h.client.sentMessages())
			assert.Zero(t, h.generator.callCount())
		})
	}
}

func TestNoRepliesWhileNotAfk(t *testing.T) {
	h := newTestHarness(t)
	s := h.connect(t, "100")

	h.client.deliver(privateText(7, "halo"))
	waitDrained(t, s)

	assert.Empty(t, h.client.sentMessages())
}

func TestAfkOffDropsQueuedItems(t *testing.T) {
	h := newTestHarness(t)
	s := afkSession(t, h)

	// Queue an item bypassing the worker kick, then toggle AFK off before
	// draining; the worker must drop it without side effects.
	s.mu.Lock()
	s.queue = append(s.queue, privateText(7, "halo"))
	s.isAFK = false
	s.draining = true
	s.mu.Unlock()

	go h.registry.drainQueue(s)
	waitDrained(t, s)

	assert.Empty(t, h.client.sentMessages())
	assert.Zero(t, h.generator.callCount())
}

func TestCooldownSuppressesBurst(t *testing.T) {
	h := newTestHarness(t)
	s := afkSession(t, h)

	h.client.deliver(privateText(7, "pagi"))
	h.client.deliver(privateText(7, "pagi"))
	waitDrained(t, s)

	assert.Len(t, h.client.sentMessages(), 1, "second message inside cooldown window")
}

func TestCooldownIsPerCounterparty(t *testing.T) {
	h := newTestHarness(t)
	s := afkSession(t, h)

	h.client.deliver(privateText(7, "pagi"))
	h.client.deliver(privateText(8, "malam"))
	waitDrained(t, s)

	sent := h.client.sentMessages()
	require.Len(t, sent, 2)
	assert.Equal(t, sentMessage{peerID: 7, text: "Pagi juga bos!"}, sent[0])
	assert.Equal(t, sentMessage{peerID: 8, text: "Malam, ada apa nih?"}, sent[1])
}

func TestRateLimitOpensSilenceWindow(t *testing.T) {
	h := newTestHarness(t)
	s := afkSession(t, h)
	h.generator.err = &genai.Error{RateLimited: true, Err: fmt.Errorf("429")}

	h.client.deliver(privateText(7, "lagi dimana?"))
	waitDrained(t, s)

	sent := h.client.sentMessages()
	require.Len(t, sent, 1)
	assert.Equal(t, fallbackReply, sent[0].text)
	assert.True(t, s.limiter.Silenced(7), "silence window opened")

	h.client.deliver(privateText(7, "halo?"))
	waitDrained(t, s)
	assert.Len(t, h.client.sentMessages(), 1, "silenced counterparty gets nothing")
}

func TestGenericFailureSendsFallbackWithoutSilence(t *testing.T) {
	h := newTestHarness(t)
	s := afkSession(t, h)
	h.generator.err = fmt.Errorf("backend exploded")

	h.client.deliver(privateText(7, "lagi dimana?"))
	waitDrained(t, s)

	sent := h.client.sentMessages()
	require.Len(t, sent, 1)
	assert.Equal(t, fallbackReply, sent[0].text)
	assert.False(t, s.limiter.Silenced(7))

	s.mu.Lock()
	assert.False(t, s.interacted[7], "failed greeting does not mark first contact")
	s.mu.Unlock()
}

func TestBotSendersSkipped(t *testing.T) {
	tests := []struct {
		name   string
		sender telegram.Sender
	}{
		{"bot flag", telegram.Sender{ID: 7, IsBot: true}},
		{"bot naming convention", telegram.Sender{ID: 7, Username: "WeatherBot"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHarness(t)
			s := afkSession(t, h)
			h.client.senders[7] = tt.sender

			h.client.deliver(privateText(7, "pagi"))
			waitDrained(t, s)

			assert.Empty(t, h.client.sentMessages())
		})
	}
}

func TestResolveFailureSkipsItem(t *testing.T) {
	h := newTestHarness(t)
	s := afkSession(t, h)
	h.client.resolveErr = fmt.Errorf("peer unknown")

	h.client.deliver(privateText(7, "pagi"))
	waitDrained(t, s)

	assert.Empty(t, h.client.sentMessages())
}

func TestDeliveryFailureMovesOn(t *testing.T) {
	h := newTestHarness(t)
	s := afkSession(t, h)
	h.client.sendErr = &telegram.DeliveryError{PeerID: 7, Err: fmt.Errorf("flood wait")}

	h.client.deliver(privateText(7, "pagi"))
	h.client.deliver(privateText(8, "malam"))
	waitDrained(t, s)

	// Both items were attempted despite the failures; the worker never
	// retries and never stalls.
	assert.Empty(t, h.client.sentMessages())
	s.mu.Lock()
	assert.False(t, s.draining)
	s.mu.Unlock()
}

func TestRepliesPreserveArrivalOrder(t *testing.T) {
	h := newTestHarness(t)
	s := afkSession(t, h)

	// Different counterparties so cooldown cannot interfere.
	for i := int64(1); i <= 5; i++ {
		h.client.deliver(privateText(i, "pagi"))
	}
	waitDrained(t, s)

	sent := h.client.sentMessages()
	require.Len(t, sent, 5)
	for i, msg := range sent {
		assert.Equal(t, int64(i+1), msg.peerID)
	}
}

func TestCloseStopsWorkerMidDelay(t *testing.T) {
	h := newTestHarness(t)
	h.registry.cfg.Policy.QueueDelay = time.Minute
	s := afkSession(t, h)

	h.client.deliver(privateText(1, "pagi"))
	h.client.deliver(privateText(2, "pagi"))

	// Give the worker a moment to enter the inter-item delay.
	require.Eventually(t, func() bool {
		return len(h.client.sentMessages()) == 1
	}, 2*time.Second, 2*time.Millisecond)

	h.registry.Close()

	require.Eventually(t, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return !s.draining
	}, 2*time.Second, 2*time.Millisecond)
	assert.Len(t, h.client.sentMessages(), 1)
}

func TestHasReplyableText(t *testing.T) {
	tests := []struct {
		name string
		text string
		want bool
	}{
		{"plain text", "halo", true},
		{"text with emoji", "halo 😂", true},
		{"empty", "", false},
		{"whitespace", " \t\n", false},
		{"emoji only", "😂🔥", false},
		{"emoji with modifiers", "👍🏽❤️", false},
		{"zwj sequence", "👩‍💻", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, hasReplyableText(tt.text))
		})
	}
}
