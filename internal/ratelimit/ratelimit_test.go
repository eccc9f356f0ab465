package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestLimiter(max int, window time.Duration) (*Limiter, *clock) {
	c := &clock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	l := New(max, window)
	l.now = c.now
	return l, c
}

func TestSlidingWindow(t *testing.T) {
	l, c := newTestLimiter(3, time.Minute)

	assert.True(t, l.Allow("1.2.3.4"))
	c.advance(20 * time.Second)
	assert.True(t, l.Allow("1.2.3.4"))
	c.advance(20 * time.Second)
	assert.True(t, l.Allow("1.2.3.4"))
	assert.False(t, l.Allow("1.2.3.4"))
	assert.True(t, l.Allow("5.6.7.8"), "keys are independent")

	// The first attempt leaves the window 60s after it was made.
	c.advance(20 * time.Second)
	assert.True(t, l.Allow("1.2.3.4"))
	assert.False(t, l.Allow("1.2.3.4"))

	// Rejections do not extend the penalty.
	c.advance(20 * time.Second)
	assert.True(t, l.Allow("1.2.3.4"))
}

func TestPrune(t *testing.T) {
	l, c := newTestLimiter(1, time.Minute)
	l.Allow("a")
	c.advance(30 * time.Second)
	l.Allow("b")

	c.advance(31 * time.Second)
	l.Prune()
	assert.Equal(t, 1, l.keys())

	c.advance(30 * time.Second)
	l.Prune()
	assert.Equal(t, 0, l.keys())
}
