// Package ratelimit implements the per-counterparty reply throttling for one
// session: a cooldown window after each contact and an error-silence window
// opened when the generation backend reports rate limiting.
package ratelimit

import (
	"sync"
	"time"
)

// Default policy values, kept behaviorally compatible with the original
// deployment.
const (
	DefaultCooldown = 5 * time.Second
	DefaultSilence  = 60 * time.Second
)

// Config holds the throttling policy for a Controller.
type Config struct {
	Cooldown time.Duration // minimum gap between replies to one counterparty
	Silence  time.Duration // suppression window after a rate-limit signal
	Now      func() time.Time
}

// Controller tracks cooldown and silence state for the counterparties of a
// single session. Safe for concurrent use.
type Controller struct {
	mu          sync.Mutex
	cooldown    time.Duration
	silence     time.Duration
	now         func() time.Time
	lastContact map[int64]time.Time
	silencedTo  map[int64]time.Time
}

// NewController creates a Controller, filling unset config with defaults.
func NewController(cfg Config) *Controller {
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = DefaultCooldown
	}
	if cfg.Silence <= 0 {
		cfg.Silence = DefaultSilence
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Controller{
		cooldown:    cfg.Cooldown,
		silence:     cfg.Silence,
		now:         cfg.Now,
		lastContact: make(map[int64]time.Time),
		silencedTo:  make(map[int64]time.Time),
	}
}

// Silenced reports whether the counterparty is inside an error-silence
// window. A silenced counterparty is never replied to, regardless of
// cooldown or keyword match.
func (c *Controller) Silenced(peerID int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	until, ok := c.silencedTo[peerID]
	if !ok {
		return false
	}
	if !c.now().Before(until) {
		delete(c.silencedTo, peerID)
		return false
	}
	return true
}

// InCooldown reports whether the counterparty was contacted within the
// cooldown window. It does not refresh the window.
func (c *Controller) InCooldown(peerID int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	last, ok := c.lastContact[peerID]
	return ok && c.now().Sub(last) < c.cooldown
}

// MarkContact records the cooldown timestamp for the counterparty. Called at
// dequeue time, before the outcome of the item is known, so failed or
// skipped items still throttle the next one.
func (c *Controller) MarkContact(peerID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastContact[peerID] = c.now()
}

// SilencePeer opens an error-silence window for the counterparty.
func (c *Controller) SilencePeer(peerID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.silencedTo[peerID] = c.now().Add(c.silence)
}
