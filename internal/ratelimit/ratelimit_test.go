package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// fakeClock advances only when told to.
type fakeClock struct {
	now time.Time
}

func (f *fakeClock) Now() time.Time            { return f.now }
func (f *fakeClock) Advance(d time.Duration)   { f.now = f.now.Add(d) }

func newTestController(t *testing.T) (*Controller, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	c := NewController(Config{
		Cooldown: 5 * time.Second,
		Silence:  60 * time.Second,
		Now:      clock.Now,
	})
	return c, clock
}

func TestCooldownWindow(t *testing.T) {
	c, clock := newTestController(t)

	assert.False(t, c.InCooldown(42))
	c.MarkContact(42)
	assert.True(t, c.InCooldown(42))

	clock.Advance(4 * time.Second)
	assert.True(t, c.InCooldown(42))

	clock.Advance(time.Second)
	assert.False(t, c.InCooldown(42), "cooldown expires after exactly 5s")
}

func TestInCooldownDoesNotRefresh(t *testing.T) {
	c, clock := newTestController(t)

	c.MarkContact(42)
	clock.Advance(4 * time.Second)
	assert.True(t, c.InCooldown(42))

	clock.Advance(2 * time.Second)
	assert.False(t, c.InCooldown(42), "lookup must not extend the window")
}

func TestCooldownIsPerCounterparty(t *testing.T) {
	c, _ := newTestController(t)

	c.MarkContact(1)
	assert.True(t, c.InCooldown(1))
	assert.False(t, c.InCooldown(2))
}

func TestSilenceWindow(t *testing.T) {
	c, clock := newTestController(t)

	assert.False(t, c.Silenced(7))
	c.SilencePeer(7)
	assert.True(t, c.Silenced(7))

	clock.Advance(59 * time.Second)
	assert.True(t, c.Silenced(7))

	clock.Advance(time.Second)
	assert.False(t, c.Silenced(7), "silence lifts after 60s")
	assert.False(t, c.Silenced(7))
}

func TestSilenceIndependentOfCooldown(t *testing.T) {
	c, clock := newTestController(t)

	c.SilencePeer(7)
	clock.Advance(10 * time.Second)

	// Cooldown long expired, silence still active.
	assert.False(t, c.InCooldown(7))
	assert.True(t, c.Silenced(7))
}

func TestDefaults(t *testing.T) {
	c := NewController(Config{})
	assert.Equal(t, DefaultCooldown, c.cooldown)
	assert.Equal(t, DefaultSilence, c.silence)
}
