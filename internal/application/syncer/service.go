package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/bryanwahyu/vindereg/internal/application"
	"github.com/bryanwahyu/vindereg/internal/application/notify"
	"github.com/bryanwahyu/vindereg/internal/domain/vehicle"
)

// errNotFoundMessage is recorded verbatim on a logical miss so operators
// can grep the staging table for it.
const errNotFoundMessage = "Vehicle not found in SugarCRM"

// maxErrorLen caps last_error so a dumped HTML error page does not bloat
// the staging row.
const maxErrorLen = 500

// Service implements the sync phase: reconcile eligible pending records
// against the CRM one at a time, record the outcome, and tally the run.
// Records already pushed are never re-selected, which makes redelivered
// invocations no-ops for them.
type Service struct {
	Repo     vehicle.StageRepository
	CRM      vehicle.CRMClient
	Policy   BacklogPolicy
	Dispatch *notify.Dispatcher
	Clock    application.Clock
	Log      *slog.Logger
}

// Run executes one sync invocation. Each record is fully resolved before
// the next is started; every outcome contributes exactly one tally.
func (s *Service) Run(ctx context.Context) (*notify.SyncSummary, error) {
	cutoff := s.Policy.Cutoff(s.Clock.Now())
	records, err := s.Repo.SelectPending(ctx, cutoff)
	if err != nil {
		return nil, fmt.Errorf("selecting pending records: %w", err)
	}

	summary := &notify.SyncSummary{Selected: len(records)}
	s.Log.Info("sync run selected pending records", "count", len(records), "cutoff", cutoff)

	for _, rec := range records {
		s.reconcile(ctx, rec, summary)
	}

	s.Dispatch.SyncDone(ctx, summary)
	return summary, nil
}

func (s *Service) reconcile(ctx context.Context, rec *vehicle.StagedRecord, summary *notify.SyncSummary) {
	ext, err := s.CRM.FindByVIN(ctx, rec.VIN)
	if err != nil {
		if errors.Is(err, vehicle.ErrMultipleMatches) {
			// Anomaly: the integration assumes at most one CRM record
			// per VIN. Fail the record rather than pick one.
			s.Log.Error("CRM returned multiple matches", "vin", rec.VIN)
		}
		s.fail(ctx, rec, err, summary)
		return
	}
	if ext == nil {
		// Logical miss: the record stays pending and retry-eligible.
		s.Log.Warn("vehicle not found in CRM", "vin", rec.VIN)
		now := s.Clock.Now()
		if err := rec.RecordMiss(errNotFoundMessage, now); err != nil {
			s.Log.Error("cannot record miss", "vin", rec.VIN, "err", err)
			return
		}
		if err := s.Repo.Update(ctx, rec); err != nil {
			s.Log.Error("failed to persist logical miss", "vin", rec.VIN, "err", err)
		}
		summary.NotFound++
		summary.Failures = append(summary.Failures, notify.Failure{VIN: rec.VIN, Message: errNotFoundMessage})
		return
	}

	if err := s.CRM.Deregister(ctx, ext.ID, rec.DeregDate); err != nil {
		s.fail(ctx, rec, err, summary)
		return
	}

	now := s.Clock.Now()
	if err := rec.MarkPushed(ext.ID, now); err != nil {
		s.Log.Error("cannot mark record pushed", "vin", rec.VIN, "err", err)
		return
	}
	if err := s.Repo.Update(ctx, rec); err != nil {
		// The CRM update applied but the staging row did not record it.
		// The update is an absolute-value PUT, so a future replay of
		// this record is harmless.
		s.Log.Error("failed to persist pushed status", "vin", rec.VIN, "err", err)
		summary.Failed++
		summary.Failures = append(summary.Failures, notify.Failure{VIN: rec.VIN, Message: err.Error()})
		return
	}
	s.Log.Info("vehicle deregistered in CRM", "vin", rec.VIN, "external_id", ext.ID)
	summary.Pushed++
}

// fail marks a record terminally failed: transient errors arrive here only
// after the CRM client's own retry budget is spent, everything else is
// non-retriable by definition.
func (s *Service) fail(ctx context.Context, rec *vehicle.StagedRecord, cause error, summary *notify.SyncSummary) {
	msg := summarizeError(cause)
	if vehicle.IsTransient(cause) {
		s.Log.Error("CRM call exhausted retry budget", "vin", rec.VIN, "err", cause)
	} else {
		s.Log.Error("CRM call failed", "vin", rec.VIN, "err", cause)
	}

	now := s.Clock.Now()
	if err := rec.MarkFailed(msg, now); err != nil {
		s.Log.Error("cannot mark record failed", "vin", rec.VIN, "err", err)
		return
	}
	if err := s.Repo.Update(ctx, rec); err != nil {
		s.Log.Error("failed to persist failed status", "vin", rec.VIN, "err", err)
	}
	summary.Failed++
	summary.Failures = append(summary.Failures, notify.Failure{VIN: rec.VIN, Message: msg})
}

func summarizeError(err error) string {
	msg := err.Error()
	if len(msg) > maxErrorLen {
		msg = msg[:maxErrorLen] + "…"
	}
	return msg
}
