package syncer

import "time"

// BacklogPolicy gates which pending records a sync run may touch. The
// minimum age exists to avoid reading a row before the staging store has
// made it durably consistent; too-young records are simply not selected.
type BacklogPolicy struct {
	MinPendingAge time.Duration
}

// Cutoff returns the latest staged_at a record may carry and still be
// eligible at time now.
func (p BacklogPolicy) Cutoff(now time.Time) time.Time {
	return now.Add(-p.MinPendingAge)
}
