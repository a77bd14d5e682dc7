package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bryanwahyu/vindereg/internal/domain/vehicle"
)

// Failure is one failed VIN with its message, sampled into the summary body.
type Failure struct {
	VIN     string `json:"vin"`
	Message string `json:"message"`
}

// FileCounts are the per-file ingest tallies.
type FileCounts struct {
	File            string `json:"file"`
	Inserted        int    `json:"inserted"`
	Refreshed       int    `json:"refreshed"`
	SkippedPushed   int    `json:"skipped_pushed"`
	SkippedMake     int    `json:"skipped_make"`
	SkippedBlankVIN int    `json:"skipped_blank_vin"`
	SkippedBadDate  int    `json:"skipped_bad_date"`
	HeaderFailed    bool   `json:"header_failed"`
	Error           string `json:"error,omitempty"`
}

// IngestSummary aggregates one ingest invocation. Ephemeral: lives only
// long enough to produce the notification and the HTTP response.
type IngestSummary struct {
	Files   []FileCounts `json:"files"`
	NoInput bool         `json:"no_input"`
}

// SyncSummary aggregates one sync invocation.
type SyncSummary struct {
	Selected int       `json:"selected"`
	Pushed   int       `json:"pushed"`
	NotFound int       `json:"not_found"`
	Failed   int       `json:"failed"`
	Failures []Failure `json:"failures,omitempty"`
}

// maxFailureSample caps how many failed VINs are listed in an email body.
const maxFailureSample = 50

// Dispatcher is the run summarizer: it renders run results into one
// notification per invocation and routes recurring no-input conditions
// through the throttle.
type Dispatcher struct {
	Notifier vehicle.Notifier
	Throttle *Throttle
	Log      *slog.Logger
}

// NoInput reports a run that found nothing to process. Suppressed inside
// the cooldown window.
func (d *Dispatcher) NoInput(ctx context.Context, detail string) {
	if !d.Throttle.Allow(ConditionNoInput) {
		d.Log.Info("no-input notification suppressed by cooldown",
			"suppressed_total", d.Throttle.SuppressedCount(ConditionNoInput))
		return
	}
	d.send(ctx, vehicle.NotifyFailure, "VIN dereg run found no input", detail)
}

// SchemaAlert fires exactly one alert for a file that failed header validation.
func (d *Dispatcher) SchemaAlert(ctx context.Context, file string, schemaErr *vehicle.SchemaError) {
	var b strings.Builder
	b.WriteString("VIN dereg ingestion failed due to an invalid CSV header.\n\n")
	fmt.Fprintf(&b, "File: %s\n", file)
	fmt.Fprintf(&b, "Expected: %s\n", strings.Join(schemaErr.Expected, ", "))
	if len(schemaErr.Got) == 0 {
		b.WriteString("Received: none\n")
	} else {
		fmt.Fprintf(&b, "Received: %s\n", strings.Join(schemaErr.Got, ", "))
	}
	d.send(ctx, vehicle.NotifyFailure, "VIN dereg ingest failed - header validation", b.String())
}

// IngestDone emits the single per-invocation ingest summary.
func (d *Dispatcher) IngestDone(ctx context.Context, s *IngestSummary) {
	category := vehicle.NotifySuccess
	var b strings.Builder
	fmt.Fprintf(&b, "VIN dereg ingest completed. Files: %d\n\n", len(s.Files))
	for _, f := range s.Files {
		fmt.Fprintf(&b, "File: %s\n", f.File)
		if f.HeaderFailed {
			b.WriteString("  header validation failed; no rows staged\n")
			category = vehicle.NotifyFailure
			continue
		}
		if f.Error != "" {
			fmt.Fprintf(&b, "  aborted: %s\n", f.Error)
			category = vehicle.NotifyFailure
			continue
		}
		fmt.Fprintf(&b, "  inserted: %d refreshed: %d already pushed: %d\n",
			f.Inserted, f.Refreshed, f.SkippedPushed)
		fmt.Fprintf(&b, "  skipped make: %d blank vin: %d bad date: %d\n",
			f.SkippedMake, f.SkippedBlankVIN, f.SkippedBadDate)
	}
	d.send(ctx, category, "VIN dereg ingest summary", b.String())
}

// SyncDone emits the single per-invocation sync summary.
func (d *Dispatcher) SyncDone(ctx context.Context, s *SyncSummary) {
	category := vehicle.NotifySuccess
	if s.Failed > 0 {
		category = vehicle.NotifyFailure
	}
	var b strings.Builder
	b.WriteString("VIN dereg CRM sync completed.\n\n")
	fmt.Fprintf(&b, "Selected: %d\n", s.Selected)
	fmt.Fprintf(&b, "Pushed: %d\n", s.Pushed)
	fmt.Fprintf(&b, "Not found in CRM (still pending): %d\n", s.NotFound)
	fmt.Fprintf(&b, "Failed: %d\n", s.Failed)
	if len(s.Failures) > 0 {
		b.WriteString("\nFailed VINs:\n")
		sample := s.Failures
		if len(sample) > maxFailureSample {
			sample = sample[:maxFailureSample]
		}
		for _, f := range sample {
			fmt.Fprintf(&b, "- %s: %s\n", f.VIN, f.Message)
		}
		if len(s.Failures) > maxFailureSample {
			fmt.Fprintf(&b, "... and %d more\n", len(s.Failures)-maxFailureSample)
		}
	}
	d.send(ctx, category, "VIN dereg sync summary", b.String())
}

func (d *Dispatcher) send(ctx context.Context, category vehicle.NotifyCategory, subject, body string) {
	if d.Notifier == nil {
		d.Log.Warn("notifications disabled; dropping message", "subject", subject)
		return
	}
	if err := d.Notifier.Send(ctx, category, subject, body); err != nil {
		// Notification delivery must never abort a run.
		d.Log.Error("failed to send notification", "subject", subject, "err", err)
	}
}
