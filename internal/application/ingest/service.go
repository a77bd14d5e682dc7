package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/google/uuid"

	"github.com/bryanwahyu/vindereg/internal/application"
	"github.com/bryanwahyu/vindereg/internal/application/notify"
	"github.com/bryanwahyu/vindereg/internal/domain/vehicle"
)

// Service implements the ingest phase: pull feed files, normalize rows,
// and idempotently project them into the staging store. Safe to re-run
// over the same inputs; the per-VIN lookup-before-insert rule keeps a
// redelivered invocation from double-staging.
type Service struct {
	Files      vehicle.FileSource
	Archive    vehicle.ArchiveStore
	Repo       vehicle.StageRepository
	Normalizer *vehicle.Normalizer
	Dispatch   *notify.Dispatcher
	Clock      application.Clock
	Log        *slog.Logger

	// Pattern matches feed files on the source, e.g. "*.csv".
	Pattern string
}

// Run executes one ingest invocation over every matching feed file.
// Row-level problems are counted, file-level problems are recorded per
// file; only a failure to even list the source aborts the invocation.
func (s *Service) Run(ctx context.Context) (*notify.IngestSummary, error) {
	names, err := s.Files.List(ctx, s.Pattern)
	if err != nil {
		return nil, fmt.Errorf("listing feed files: %w", err)
	}

	summary := &notify.IngestSummary{}
	if len(names) == 0 {
		s.Log.Info("no feed files present", "pattern", s.Pattern)
		summary.NoInput = true
		s.Dispatch.NoInput(ctx, fmt.Sprintf("No feed file matching %q was found on this run.", s.Pattern))
		return summary, nil
	}

	for _, name := range names {
		s.Log.Info("processing feed file", "file", name)
		fc := s.processFile(ctx, name)
		summary.Files = append(summary.Files, fc)
	}

	s.Dispatch.IngestDone(ctx, summary)
	return summary, nil
}

func (s *Service) processFile(ctx context.Context, name string) notify.FileCounts {
	fc := notify.FileCounts{File: name}

	rc, err := s.Files.Fetch(ctx, name)
	if err != nil {
		fc.Error = fmt.Sprintf("fetching file: %v", err)
		return fc
	}
	data, err := io.ReadAll(rc)
	rc.Close()
	if err != nil {
		fc.Error = fmt.Sprintf("reading file: %v", err)
		return fc
	}

	rawKey, err := s.Archive.StoreRaw(ctx, name, bytes.NewReader(data))
	if err != nil {
		fc.Error = fmt.Sprintf("archiving raw file: %v", err)
		return fc
	}

	results, err := s.Normalizer.Normalize(bytes.NewReader(data))
	if err != nil {
		s.archiveError(ctx, rawKey, name)
		s.removeRemote(ctx, name)

		var schemaErr *vehicle.SchemaError
		if errors.As(err, &schemaErr) {
			// One alert per failed file, never per row.
			s.Log.Error("feed header validation failed", "file", name, "err", err)
			fc.HeaderFailed = true
			s.Dispatch.SchemaAlert(ctx, name, schemaErr)
			return fc
		}
		fc.Error = fmt.Sprintf("parsing file: %v", err)
		return fc
	}

	for _, res := range results {
		if res.Err != nil {
			switch res.Err.Reason {
			case vehicle.ReasonDisallowedMake:
				fc.SkippedMake++
			case vehicle.ReasonBlankVIN:
				s.Log.Warn("skipping row without VIN", "file", name, "line", res.Err.Line)
				fc.SkippedBlankVIN++
			case vehicle.ReasonBadDate:
				s.Log.Warn("skipping row with bad date", "file", name, "line", res.Err.Line, "err", res.Err.Message)
				fc.SkippedBadDate++
			}
			continue
		}
		if err := s.stageRow(ctx, res.Row, name, &fc); err != nil {
			// Staging store trouble is infrastructure, not row
			// classification: abort this file and archive it as error.
			s.Log.Error("staging write failed", "file", name, "vin", res.Row.VIN, "err", err)
			s.archiveError(ctx, rawKey, name)
			s.removeRemote(ctx, name)
			fc.Error = fmt.Sprintf("staging rows: %v", err)
			return fc
		}
	}

	if _, err := s.Archive.MoveProcessed(ctx, rawKey); err != nil {
		fc.Error = fmt.Sprintf("archiving processed file: %v", err)
		return fc
	}
	s.removeRemote(ctx, name)

	s.Log.Info("feed file staged",
		"file", name,
		"inserted", fc.Inserted,
		"refreshed", fc.Refreshed,
		"already_pushed", fc.SkippedPushed,
		"skipped_make", fc.SkippedMake,
		"skipped_blank_vin", fc.SkippedBlankVIN,
		"skipped_bad_date", fc.SkippedBadDate,
	)
	return fc
}

// stageRow applies the create-vs-refresh-vs-leave-alone rule for one row.
// Rule: new VIN inserts pending; pending/failed VINs refresh mutable
// fields keeping status and last_error; pushed VINs are immutable.
func (s *Service) stageRow(ctx context.Context, row vehicle.Row, sourceFile string, fc *notify.FileCounts) error {
	existing, err := s.Repo.FindByVIN(ctx, row.VIN)
	if err != nil {
		return fmt.Errorf("looking up VIN %s: %w", row.VIN, err)
	}

	now := s.Clock.Now()
	if existing == nil {
		rec := &vehicle.StagedRecord{
			ID:         uuid.New().String(),
			VIN:        row.VIN,
			Make:       row.Make,
			Model:      row.Model,
			Regno:      row.Regno,
			DeregDate:  row.DeregDate,
			Status:     vehicle.StatusPending,
			SourceFile: sourceFile,
			StagedAt:   now,
			UpdatedAt:  now,
		}
		if err := s.Repo.Insert(ctx, rec); err != nil {
			return fmt.Errorf("inserting VIN %s: %w", row.VIN, err)
		}
		fc.Inserted++
		return nil
	}

	if existing.Status == vehicle.StatusPushed {
		fc.SkippedPushed++
		return nil
	}

	if err := existing.Refresh(row, sourceFile, now); err != nil {
		return err
	}
	if err := s.Repo.Update(ctx, existing); err != nil {
		return fmt.Errorf("refreshing VIN %s: %w", row.VIN, err)
	}
	fc.Refreshed++
	return nil
}

func (s *Service) archiveError(ctx context.Context, rawKey, name string) {
	if _, err := s.Archive.MoveError(ctx, rawKey); err != nil {
		s.Log.Error("failed to archive file under error location", "file", name, "err", err)
	}
}

func (s *Service) removeRemote(ctx context.Context, name string) {
	if err := s.Files.Remove(ctx, name); err != nil {
		s.Log.Error("failed to delete remote feed file", "file", name, "err", err)
	}
}
