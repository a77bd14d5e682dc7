package notify

import (
	"sync"
	"time"

	"github.com/bryanwahyu/vindereg/internal/application"
)

// Condition keys the throttle state. One cooldown window per condition.
type Condition string

// ConditionNoInput: scheduled run found nothing to do (no feed file).
const ConditionNoInput Condition = "no_input"

// Throttle suppresses repeat notifications for recurring conditions.
// State is in-memory only; a process restart may let one extra
// notification through, which is accepted.
type Throttle struct {
	mu       sync.Mutex
	cooldown time.Duration
	clock    application.Clock

	lastSent   map[Condition]time.Time
	suppressed map[Condition]int
}

func NewThrottle(cooldown time.Duration, clock application.Clock) *Throttle {
	return &Throttle{
		cooldown:   cooldown,
		clock:      clock,
		lastSent:   make(map[Condition]time.Time),
		suppressed: make(map[Condition]int),
	}
}

// Allow reports whether a notification for cond may be sent now, and if so
// starts a new cooldown window. Suppressed occurrences are counted.
func (t *Throttle) Allow(cond Condition) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.clock.Now()
	last, seen := t.lastSent[cond]
	if seen && now.Sub(last) < t.cooldown {
		t.suppressed[cond]++
		return false
	}
	t.lastSent[cond] = now
	return true
}

// SuppressedCount returns how many occurrences of cond were swallowed since start.
func (t *Throttle) SuppressedCount(cond Condition) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.suppressed[cond]
}
