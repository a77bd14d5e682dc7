package vehicle

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"
)

// ExpectedHeader is the non-negotiable feed contract: exact names, exact order.
var ExpectedHeader = []string{"VEHICLE_MAKE", "VEHICLE_MODEL", "VIN", "DEREG_DATE", "REGNO"}

// Row is one canonical feed row after normalization.
type Row struct {
	Make      string
	Model     string
	VIN       string
	Regno     string
	DeregDate string // YYYY-MM-DD, empty when the feed had no date
}

// RowReason classifies why a row was dropped.
type RowReason string

const (
	ReasonDisallowedMake RowReason = "disallowed_make"
	ReasonBlankVIN       RowReason = "blank_vin"
	ReasonBadDate        RowReason = "bad_date"
)

// RowError is a row-level validation failure: the row is skipped and
// counted, never alerted on.
type RowError struct {
	Line    int
	Reason  RowReason
	Message string
}

func (e *RowError) Error() string {
	return fmt.Sprintf("line %d: %s: %s", e.Line, e.Reason, e.Message)
}

// RowResult holds either a normalized row or its rejection. Exactly one of
// Row/Err is set.
type RowResult struct {
	Row Row
	Err *RowError
}

// Normalizer parses a raw tabular feed into canonical rows. Pure: no I/O
// beyond the reader it is handed, no side effects.
type Normalizer struct {
	allowed map[string]struct{}
}

func NewNormalizer(allowedMakes []string) *Normalizer {
	allowed := make(map[string]struct{}, len(allowedMakes))
	for _, m := range allowedMakes {
		m = strings.ToUpper(strings.TrimSpace(m))
		if m != "" {
			allowed[m] = struct{}{}
		}
	}
	return &Normalizer{allowed: allowed}
}

// Normalize consumes the whole feed once. A header mismatch returns a
// *SchemaError and no rows; any other error is a read failure the caller
// must treat as fatal for the file.
func (n *Normalizer) Normalize(r io.Reader) ([]RowResult, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err == io.EOF {
		return nil, &SchemaError{Expected: ExpectedHeader, Got: nil}
	}
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	for i := range header {
		header[i] = cleanField(header[i])
	}
	if !headerMatches(header) {
		return nil, &SchemaError{Expected: ExpectedHeader, Got: header}
	}

	var out []RowResult
	line := 1
	for {
		fields, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading row %d: %w", line+1, err)
		}
		line++
		out = append(out, n.normalizeRow(line, fields))
	}
	return out, nil
}

func (n *Normalizer) normalizeRow(line int, fields []string) RowResult {
	get := func(i int) string {
		if i < len(fields) {
			return cleanField(fields[i])
		}
		return ""
	}

	mk := strings.ToUpper(get(0))
	if _, ok := n.allowed[mk]; !ok {
		return RowResult{Err: &RowError{Line: line, Reason: ReasonDisallowedMake,
			Message: fmt.Sprintf("make %q not in whitelist", mk)}}
	}

	vin := strings.ToUpper(get(2))
	if vin == "" {
		return RowResult{Err: &RowError{Line: line, Reason: ReasonBlankVIN,
			Message: fmt.Sprintf("blank VIN for make %s", mk)}}
	}

	dereg, err := NormalizeDate(get(3))
	if err != nil {
		return RowResult{Err: &RowError{Line: line, Reason: ReasonBadDate,
			Message: err.Error()}}
	}

	return RowResult{Row: Row{
		Make:      mk,
		Model:     get(1),
		VIN:       vin,
		Regno:     strings.ToUpper(get(4)),
		DeregDate: dereg,
	}}
}

// NormalizeDate canonicalizes a feed date to YYYY-MM-DD. The feed has
// shipped both compact (20240131) and ISO forms; an empty field passes
// through empty.
func NormalizeDate(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", nil
	}
	for _, layout := range []string{"20060102", "2006-01-02", time.RFC3339} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.Format("2006-01-02"), nil
		}
	}
	// RFC3339 without zone, as some exports emit
	if t, err := time.Parse("2006-01-02T15:04:05", raw); err == nil {
		return t.Format("2006-01-02"), nil
	}
	return "", fmt.Errorf("unrecognized date %q", raw)
}

func headerMatches(got []string) bool {
	if len(got) != len(ExpectedHeader) {
		return false
	}
	for i, want := range ExpectedHeader {
		if !strings.EqualFold(got[i], want) {
			return false
		}
	}
	return true
}

// cleanField strips a UTF-8 BOM and surrounding whitespace.
func cleanField(s string) string {
	s = strings.TrimPrefix(s, "\ufeff")
	return strings.TrimSpace(s)
}
