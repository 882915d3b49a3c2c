package session

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/lewisedginton/afk_responder/internal/genai"
	"github.com/lewisedginton/afk_responder/internal/telegram"
	"github.com/lewisedginton/afk_responder/pkg/logger"
	"github.com/lewisedginton/afk_responder/pkg/metrics"
)

// enqueue is the subscription handler: it runs the filter chain and, for
// surviving messages, appends to the session queue and kicks the worker.
// Every filter is a hard reject, no reply and no queueing.
func (r *Registry) enqueue(s *Session, msg telegram.IncomingMessage) {
	if msg.Outgoing {
		return
	}
	if msg.SenderID == r.cfg.Notifier.BotUserID() {
		return
	}

	s.mu.Lock()
	active := s.state == StateConnected && s.isAFK
	s.mu.Unlock()
	if !active {
		return
	}

	if !msg.Private || msg.HasMedia {
		return
	}
	if !hasReplyableText(msg.Text) {
		return
	}

	s.mu.Lock()
	s.queue = append(s.queue, msg)
	start := !s.draining
	if start {
		s.draining = true
	}
	s.mu.Unlock()

	r.cfg.Metrics.QueueDepth.Inc()
	if start {
		go r.drainQueue(s)
	}
}

// drainQueue is the single queue worker for one session. It pops strictly
// FIFO and terminates when the queue is empty; enqueue restarts it. After an
// item that attempted a send, remaining items wait out a fixed delay, a
// deliberate throttle against bursts.
func (r *Registry) drainQueue(s *Session) {
	ctx := context.Background()
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.draining = false
			s.mu.Unlock()
			return
		}
		msg := s.queue[0]
		s.queue = s.queue[1:]
		remaining := len(s.queue)
		s.mu.Unlock()
		r.cfg.Metrics.QueueDepth.Dec()

		replied := r.processItem(ctx, s, msg)

		if replied && remaining > 0 {
			select {
			case <-time.After(r.cfg.Policy.QueueDelay):
			case <-r.done:
				s.mu.Lock()
				s.draining = false
				s.mu.Unlock()
				return
			}
		}
	}
}

// processItem handles one dequeued message. It reports whether a reply send
// was attempted; skipped items do not count against the inter-item delay.
func (r *Registry) processItem(ctx context.Context, s *Session, msg telegram.IncomingMessage) bool {
	s.mu.Lock()
	active := s.state == StateConnected && s.isAFK
	client := s.client
	ownerName := s.account.FirstName
	firstContact := !s.interacted[msg.SenderID]
	s.mu.Unlock()

	// AFK toggled off (or the session torn down) while this item was queued.
	if !active || client == nil {
		return false
	}

	peerID := msg.SenderID
	if s.limiter.Silenced(peerID) {
		return false
	}

	// The cooldown stamp is recorded before the outcome is known, so a
	// burst from one counterparty throttles even when items are skipped.
	inCooldown := s.limiter.InCooldown(peerID)
	s.limiter.MarkContact(peerID)
	if inCooldown {
		return false
	}

	sender, err := client.ResolveSender(ctx, peerID)
	if err != nil {
		s.log.Warn("Failed to resolve sender, skipping",
			logger.Int64Field("peer_id", peerID),
			logger.ErrorField(err))
		return false
	}
	if sender.IsBot || strings.HasSuffix(strings.ToLower(sender.Username), "bot") {
		return false
	}

	if reply, ok := r.cfg.Keywords.Lookup(msg.Text); ok {
		r.send(ctx, s, client, peerID, reply, metrics.OutcomeKeyword)
		return true
	}

	genCtx, cancel := context.WithTimeout(ctx, r.cfg.Policy.GenerationTimeout)
	reply, genErr := r.cfg.Generator.Generate(genCtx, genai.Request{
		Text:         msg.Text,
		OwnerName:    ownerName,
		FirstContact: firstContact,
	})
	cancel()

	outcome := metrics.OutcomeGenerated
	if genErr != nil {
		r.cfg.Metrics.GenerationFailures.Inc()
		s.log.Error("Generation failed",
			logger.Int64Field("peer_id", peerID),
			logger.ErrorField(genErr))

		var taxonomy *genai.Error
		if errors.As(genErr, &taxonomy) && taxonomy.RateLimited {
			s.limiter.SilencePeer(peerID)
		}
		reply = fallbackReply
		outcome = metrics.OutcomeFallback
	}

	sent := r.send(ctx, s, client, peerID, reply, outcome)
	if sent && genErr == nil && firstContact {
		s.mu.Lock()
		s.interacted[peerID] = true
		s.mu.Unlock()
	}
	return true
}

// send delivers one reply and reports whether delivery succeeded. Delivery
// failures are logged and the worker moves on, never retries.
func (r *Registry) send(ctx context.Context, s *Session, client telegram.Client, peerID int64, text, outcome string) bool {
	if err := client.SendMessage(ctx, peerID, text); err != nil {
		r.cfg.Metrics.DeliveryFailures.Inc()
		s.log.Error("Failed to deliver reply",
			logger.Int64Field("peer_id", peerID),
			logger.ErrorField(err))
		return false
	}
	r.cfg.Metrics.RepliesSent.WithLabelValues(outcome).Inc()
	return true
}
