package ingest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/vindereg/internal/application"
	"github.com/bryanwahyu/vindereg/internal/application/notify"
	"github.com/bryanwahyu/vindereg/internal/domain/vehicle"
)

const header = "VEHICLE_MAKE,VEHICLE_MODEL,VIN,DEREG_DATE,REGNO\n"

// ---- fakes ----

type fakeFiles struct {
	files   map[string][]byte
	removed []string
	listErr error
}

func (f *fakeFiles) List(_ context.Context, pattern string) ([]string, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	var names []string
	for name := range f.files {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (f *fakeFiles) Fetch(_ context.Context, name string) (io.ReadCloser, error) {
	data, ok := f.files[name]
	if !ok {
		return nil, fmt.Errorf("no such file %s", name)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (f *fakeFiles) Remove(_ context.Context, name string) error {
	f.removed = append(f.removed, name)
	return nil
}

type fakeArchive struct {
	raw       []string
	processed []string
	errored   []string
}

func (a *fakeArchive) StoreRaw(_ context.Context, name string, r io.Reader) (string, error) {
	io.Copy(io.Discard, r)
	key := "raw/" + name
	a.raw = append(a.raw, key)
	return key, nil
}

func (a *fakeArchive) MoveProcessed(_ context.Context, key string) (string, error) {
	a.processed = append(a.processed, key)
	return "processed/" + strings.TrimPrefix(key, "raw/"), nil
}

func (a *fakeArchive) MoveError(_ context.Context, key string) (string, error) {
	a.errored = append(a.errored, key)
	return "error/" + strings.TrimPrefix(key, "raw/"), nil
}

type fakeRepo struct {
	byVIN     map[string]*vehicle.StagedRecord
	insertErr error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{byVIN: make(map[string]*vehicle.StagedRecord)}
}

func (r *fakeRepo) FindByVIN(_ context.Context, vin string) (*vehicle.StagedRecord, error) {
	return r.byVIN[vin], nil
}

func (r *fakeRepo) Insert(_ context.Context, rec *vehicle.StagedRecord) error {
	if r.insertErr != nil {
		return r.insertErr
	}
	cp := *rec
	r.byVIN[rec.VIN] = &cp
	return nil
}

func (r *fakeRepo) Update(_ context.Context, rec *vehicle.StagedRecord) error {
	cp := *rec
	r.byVIN[rec.VIN] = &cp
	return nil
}

func (r *fakeRepo) SelectPending(_ context.Context, cutoff time.Time) ([]*vehicle.StagedRecord, error) {
	var out []*vehicle.StagedRecord
	for _, rec := range r.byVIN {
		if rec.Status == vehicle.StatusPending && !rec.StagedAt.After(cutoff) {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StagedAt.Before(out[j].StagedAt) })
	return out, nil
}

type fakeNotifier struct {
	subjects []string
}

func (n *fakeNotifier) Send(_ context.Context, _ vehicle.NotifyCategory, subject, _ string) error {
	n.subjects = append(n.subjects, subject)
	return nil
}

// ---- harness ----

type harness struct {
	svc      *Service
	files    *fakeFiles
	archive  *fakeArchive
	repo     *fakeRepo
	notifier *fakeNotifier
}

func newHarness(files map[string][]byte) *harness {
	h := &harness{
		files:    &fakeFiles{files: files},
		archive:  &fakeArchive{},
		repo:     newFakeRepo(),
		notifier: &fakeNotifier{},
	}
	clock := application.FixedClock{T: time.Date(2024, 2, 1, 8, 0, 0, 0, time.UTC)}
	h.svc = &Service{
		Files:      h.files,
		Archive:    h.archive,
		Repo:       h.repo,
		Normalizer: vehicle.NewNormalizer([]string{"HYUNDAI", "ISUZU", "RENAULT"}),
		Dispatch: &notify.Dispatcher{
			Notifier: h.notifier,
			Throttle: notify.NewThrottle(time.Hour, clock),
			Log:      slog.Default(),
		},
		Clock:   clock,
		Log:     slog.Default(),
		Pattern: "*.csv",
	}
	return h
}

// ---- tests ----

func TestRun_StagesAllowedSkipsDisallowed(t *testing.T) {
	h := newHarness(map[string][]byte{
		"feed.csv": []byte(header +
			"HYUNDAI,Tucson,KM8J3CA46KU999001,20240110,HJK321\n" +
			"FORD,Ranger,MPBUMFF80KX999002,20240110,FRD555\n"),
	})

	summary, err := h.svc.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, summary.Files, 1)

	fc := summary.Files[0]
	assert.Equal(t, 1, fc.Inserted)
	assert.Equal(t, 1, fc.SkippedMake)
	assert.Empty(t, fc.Error)

	rec := h.repo.byVIN["KM8J3CA46KU999001"]
	require.NotNil(t, rec)
	assert.Equal(t, vehicle.StatusPending, rec.Status)
	assert.Empty(t, rec.LastError)
	assert.Equal(t, "feed.csv", rec.SourceFile)
	assert.Equal(t, rec.StagedAt, rec.UpdatedAt)

	assert.Equal(t, []string{"raw/feed.csv"}, h.archive.processed)
	assert.Empty(t, h.archive.errored)
	assert.Equal(t, []string{"feed.csv"}, h.files.removed)
}

func TestRun_ReingestIsIdempotent(t *testing.T) {
	content := []byte(header + "HYUNDAI,Tucson,KM8J3CA46KU999001,20240110,HJK321\n")
	h := newHarness(map[string][]byte{"feed.csv": content})

	_, err := h.svc.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, h.repo.byVIN, 1)

	// same file delivered again (at-least-once trigger fabric)
	h.files.files["feed.csv"] = content
	summary, err := h.svc.Run(context.Background())
	require.NoError(t, err)

	fc := summary.Files[0]
	assert.Equal(t, 0, fc.Inserted, "no net new records on the second run")
	assert.Equal(t, 1, fc.Refreshed)
	assert.Len(t, h.repo.byVIN, 1)
}

func TestRun_RefreshUpdatesMutableFieldsOnly(t *testing.T) {
	h := newHarness(map[string][]byte{
		"feed-2.csv": []byte(header + "HYUNDAI,Kona,KM8J3CA46KU999001,20240215,NEW999\n"),
	})
	h.repo.byVIN["KM8J3CA46KU999001"] = &vehicle.StagedRecord{
		ID:        "rec-1",
		VIN:       "KM8J3CA46KU999001",
		Make:      "HYUNDAI",
		Model:     "Tucson",
		Regno:     "HJK321",
		DeregDate: "2024-01-10",
		Status:    vehicle.StatusPending,
		LastError: "Vehicle not found in SugarCRM",
		StagedAt:  time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC),
	}

	_, err := h.svc.Run(context.Background())
	require.NoError(t, err)

	rec := h.repo.byVIN["KM8J3CA46KU999001"]
	assert.Equal(t, "Kona", rec.Model)
	assert.Equal(t, "NEW999", rec.Regno)
	assert.Equal(t, "2024-02-15", rec.DeregDate)
	assert.Equal(t, vehicle.StatusPending, rec.Status)
	assert.Equal(t, "Vehicle not found in SugarCRM", rec.LastError, "refresh keeps last_error")
}

func TestRun_PushedRecordNeverTouched(t *testing.T) {
	h := newHarness(map[string][]byte{
		"feed.csv": []byte(header + "HYUNDAI,Kona,KM8J3CA46KU999001,20240215,NEW999\n"),
	})
	pushed := &vehicle.StagedRecord{
		ID:         "rec-1",
		VIN:        "KM8J3CA46KU999001",
		Make:       "HYUNDAI",
		Model:      "Tucson",
		Status:     vehicle.StatusPushed,
		ExternalID: "crm-42",
		StagedAt:   time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC),
	}
	h.repo.byVIN[pushed.VIN] = pushed

	summary, err := h.svc.Run(context.Background())
	require.NoError(t, err)

	fc := summary.Files[0]
	assert.Equal(t, 1, fc.SkippedPushed)
	assert.Equal(t, 0, fc.Inserted)
	assert.Equal(t, 0, fc.Refreshed)

	rec := h.repo.byVIN[pushed.VIN]
	assert.Equal(t, vehicle.StatusPushed, rec.Status)
	assert.Equal(t, "Tucson", rec.Model, "pushed record must stay untouched")
}

func TestRun_HeaderMismatchFailsWholeFile(t *testing.T) {
	h := newHarness(map[string][]byte{
		"feed.csv": []byte("VIN,MAKE\nKM8J3CA46KU999001,HYUNDAI\n"),
	})

	summary, err := h.svc.Run(context.Background())
	require.NoError(t, err)

	fc := summary.Files[0]
	assert.True(t, fc.HeaderFailed)
	assert.Equal(t, 0, fc.Inserted)
	assert.Empty(t, h.repo.byVIN, "no rows staged from a schema-failed file")
	assert.Equal(t, []string{"raw/feed.csv"}, h.archive.errored)
	assert.Empty(t, h.archive.processed)

	// exactly one header alert plus the per-invocation summary
	require.Len(t, h.notifier.subjects, 2)
	assert.Contains(t, h.notifier.subjects[0], "header validation")
}

func TestRun_NoInputNotifiesOnceWithinCooldown(t *testing.T) {
	h := newHarness(map[string][]byte{})

	summary, err := h.svc.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, summary.NoInput)
	assert.Len(t, h.notifier.subjects, 1)

	// immediate re-run: suppressed by the cooldown
	_, err = h.svc.Run(context.Background())
	require.NoError(t, err)
	assert.Len(t, h.notifier.subjects, 1)
}

func TestRun_StagingWriteFailureIsFatalForFile(t *testing.T) {
	h := newHarness(map[string][]byte{
		"feed.csv": []byte(header + "HYUNDAI,Tucson,KM8J3CA46KU999001,20240110,HJK321\n"),
	})
	h.repo.insertErr = fmt.Errorf("connection refused")

	summary, err := h.svc.Run(context.Background())
	require.NoError(t, err, "one bad file must not abort the invocation")

	fc := summary.Files[0]
	assert.Contains(t, fc.Error, "connection refused")
	assert.Equal(t, []string{"raw/feed.csv"}, h.archive.errored)
	assert.Empty(t, h.archive.processed)
}

func TestRun_ListFailureAbortsInvocation(t *testing.T) {
	h := newHarness(nil)
	h.files.listErr = fmt.Errorf("ftp unreachable")

	_, err := h.svc.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ftp unreachable")
}

func TestRun_BadRowsCountedNotFatal(t *testing.T) {
	h := newHarness(map[string][]byte{
		"feed.csv": []byte(header +
			"HYUNDAI,Tucson,KM8J3CA46KU999001,20240110,HJK321\n" +
			"ISUZU,D-Max,,20240110,DMX001\n" +
			"RENAULT,Koleos,VF1RZD00X66999003,31/01/2024,RNL777\n"),
	})

	summary, err := h.svc.Run(context.Background())
	require.NoError(t, err)

	fc := summary.Files[0]
	assert.Equal(t, 1, fc.Inserted)
	assert.Equal(t, 1, fc.SkippedBlankVIN)
	assert.Equal(t, 1, fc.SkippedBadDate)
	assert.Equal(t, []string{"raw/feed.csv"}, h.archive.processed)
}
