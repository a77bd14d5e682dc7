package vehicle

import (
	"fmt"
	"time"
)

// Status enum untuk staged record
type Status string

const (
	StatusPending Status = "pending"
	StatusPushed  Status = "pushed"
	StatusFailed  Status = "failed"
)

// StagedRecord is the durable row for one vehicle de-registration, from
// initial landing out of the feed file through CRM reconciliation. Records
// are never deleted; they are the audit trail of every attempt.
type StagedRecord struct {
	ID         string    `json:"id"`
	VIN        string    `json:"vin"`
	Make       string    `json:"make"`
	Model      string    `json:"model,omitempty"`
	Regno      string    `json:"regno,omitempty"`
	DeregDate  string    `json:"dereg_date,omitempty"` // YYYY-MM-DD
	Status     Status    `json:"status"`
	LastError  string    `json:"last_error,omitempty"`
	ExternalID string    `json:"external_id,omitempty"`
	SourceFile string    `json:"source_file,omitempty"`
	StagedAt   time.Time `json:"staged_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Terminal reports whether the record may still be mutated. pushed and
// failed have no outgoing transitions short of a manual reset.
func (r *StagedRecord) Terminal() bool {
	return r.Status == StatusPushed || r.Status == StatusFailed
}

// MarkPushed moves pending → pushed after a successful CRM update.
func (r *StagedRecord) MarkPushed(externalID string, now time.Time) error {
	if r.Status != StatusPending {
		return fmt.Errorf("illegal transition %s → pushed for VIN %s", r.Status, r.VIN)
	}
	if externalID == "" {
		return fmt.Errorf("pushed record requires an external id (VIN %s)", r.VIN)
	}
	r.Status = StatusPushed
	r.ExternalID = externalID
	r.LastError = ""
	r.UpdatedAt = now
	return nil
}

// MarkFailed moves pending → failed. Terminal for the current cycle;
// needs manual intervention or a policy re-open.
func (r *StagedRecord) MarkFailed(message string, now time.Time) error {
	if r.Status != StatusPending {
		return fmt.Errorf("illegal transition %s → failed for VIN %s", r.Status, r.VIN)
	}
	r.Status = StatusFailed
	r.LastError = message
	r.UpdatedAt = now
	return nil
}

// RecordMiss notes a logical reconciliation failure (no CRM match) without
// leaving pending, so the record stays retry-eligible on future runs.
func (r *StagedRecord) RecordMiss(message string, now time.Time) error {
	if r.Status != StatusPending {
		return fmt.Errorf("cannot record miss on %s record (VIN %s)", r.Status, r.VIN)
	}
	r.LastError = message
	r.UpdatedAt = now
	return nil
}

// Refresh updates the mutable fields from a newer feed row while preserving
// status and last_error. Only valid for non-terminal-pushed records.
func (r *StagedRecord) Refresh(row Row, sourceFile string, now time.Time) error {
	if r.Status == StatusPushed {
		return fmt.Errorf("pushed record is immutable (VIN %s)", r.VIN)
	}
	r.Model = row.Model
	r.Regno = row.Regno
	r.DeregDate = row.DeregDate
	r.SourceFile = sourceFile
	r.UpdatedAt = now
	return nil
}

// ExternalRecord is the CRM-side view of a vehicle, keyed by the CRM id.
type ExternalRecord struct {
	ID string `json:"id"`
}
