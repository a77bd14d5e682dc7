package vehicle

import (
	"context"
	"io"
	"time"
)

// StageRepository port (interface untuk staging store persistence)
type StageRepository interface {
	// FindByVIN returns (nil, nil) when the VIN has never been staged.
	FindByVIN(ctx context.Context, vin string) (*StagedRecord, error)
	Insert(ctx context.Context, rec *StagedRecord) error
	Update(ctx context.Context, rec *StagedRecord) error
	// SelectPending returns pending records staged at or before cutoff,
	// ordered staged_at ascending so backlog runs converge.
	SelectPending(ctx context.Context, cutoff time.Time) ([]*StagedRecord, error)
}

// FileSource port (interface untuk feed retrieval, e.g. FTP)
type FileSource interface {
	List(ctx context.Context, pattern string) ([]string, error)
	Fetch(ctx context.Context, name string) (io.ReadCloser, error)
	Remove(ctx context.Context, name string) error
}

// ArchiveStore port. StoreRaw lands the byte stream under an object key;
// exactly one of MoveProcessed/MoveError must be called per file per run.
type ArchiveStore interface {
	StoreRaw(ctx context.Context, name string, r io.Reader) (key string, err error)
	MoveProcessed(ctx context.Context, key string) (string, error)
	MoveError(ctx context.Context, key string) (string, error)
}

// CRMClient port (interface untuk SugarCRM REST)
type CRMClient interface {
	// FindByVIN returns (nil, nil) when the CRM has no matching vehicle
	// and ErrMultipleMatches when it anomalously has more than one.
	FindByVIN(ctx context.Context, vin string) (*ExternalRecord, error)
	// Deregister applies the de-registration status and date as an
	// absolute-value PUT; replays of an already applied update are safe.
	Deregister(ctx context.Context, externalID, deregDate string) error
}

// NotifyCategory selects the recipient group.
type NotifyCategory string

const (
	NotifySuccess NotifyCategory = "success"
	NotifyFailure NotifyCategory = "failure"
)

// Notifier port (one email per call)
type Notifier interface {
	Send(ctx context.Context, category NotifyCategory, subject, body string) error
}
