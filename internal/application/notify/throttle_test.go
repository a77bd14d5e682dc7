package notify

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// stepClock lets a test move time forward by hand.
type stepClock struct{ t time.Time }

func (c *stepClock) Now() time.Time          { return c.t }
func (c *stepClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func TestThrottle_SuppressesWithinCooldown(t *testing.T) {
	clock := &stepClock{t: time.Date(2024, 2, 1, 6, 0, 0, 0, time.UTC)}
	th := NewThrottle(time.Hour, clock)

	assert.True(t, th.Allow(ConditionNoInput), "first occurrence fires")

	clock.Advance(10 * time.Minute)
	assert.False(t, th.Allow(ConditionNoInput), "second within cooldown is suppressed")
	assert.Equal(t, 1, th.SuppressedCount(ConditionNoInput))

	clock.Advance(51 * time.Minute)
	assert.True(t, th.Allow(ConditionNoInput), "fires again after cooldown")
}

func TestThrottle_ConditionsAreIndependent(t *testing.T) {
	clock := &stepClock{t: time.Date(2024, 2, 1, 6, 0, 0, 0, time.UTC)}
	th := NewThrottle(time.Hour, clock)

	assert.True(t, th.Allow(ConditionNoInput))
	assert.True(t, th.Allow(Condition("other")), "different condition has its own window")
	assert.False(t, th.Allow(ConditionNoInput))
}

func TestThrottle_BoundaryFires(t *testing.T) {
	clock := &stepClock{t: time.Date(2024, 2, 1, 6, 0, 0, 0, time.UTC)}
	th := NewThrottle(time.Hour, clock)

	assert.True(t, th.Allow(ConditionNoInput))
	clock.Advance(time.Hour)
	assert.True(t, th.Allow(ConditionNoInput), "exactly at cooldown fires")
}
