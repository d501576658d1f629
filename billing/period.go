package billing

import (
	"strings"
	"time"
)

// =============================================================================
// PERIOD - Calendar-month billing cycle, canonical "YYYY-MM"
// =============================================================================

// Period is a canonical zero-padded "YYYY-MM" key. Because it is zero
// padded, lexicographic order equals chronological order.
type Period string

const periodLayout = "2006-01"

// acceptedPeriodLayouts are the representations found in stored records.
// Charge records were historically written as "YYYY-MM", payments with a
// full date; both must compare equal after normalization.
var acceptedPeriodLayouts = []string{
	"2006-01",
	"2006-1",
	"2006-01-02",
	"2006-1-2",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	time.RFC3339,
	time.RFC3339Nano,
	"01/2006",
	"1/2006",
}

// NormalizePeriod canonicalizes any accepted period representation.
// Fails with a ValidationError when nothing matches.
func NormalizePeriod(raw string) (Period, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", &ValidationError{Field: "period", Value: raw, Message: "period is required"}
	}
	for _, layout := range acceptedPeriodLayouts {
		t, err := time.Parse(layout, s)
		if err != nil {
			continue
		}
		if t.Year() < 1000 || t.Year() > 9999 {
			break
		}
		return PeriodOf(t), nil
	}
	return "", &ValidationError{Field: "period", Value: raw, Message: "expected YYYY-MM or a full date"}
}

// MustPeriod normalizes raw and panics on failure. For literals only.
func MustPeriod(raw string) Period {
	p, err := NormalizePeriod(raw)
	if err != nil {
		panic(err)
	}
	return p
}

// PeriodOf returns the period containing t, read in t's own location.
// A payment stamped 2025-03-01T05:00+07:00 belongs to 2025-03.
func PeriodOf(t time.Time) Period {
	return Period(t.Format(periodLayout))
}

func (p Period) String() string { return string(p) }

// Start returns the first instant of the period in UTC.
func (p Period) Start() time.Time {
	t, err := time.Parse(periodLayout, string(p))
	if err != nil {
		return time.Time{}
	}
	return t
}

func (p Period) Next() Period { return PeriodOf(p.Start().AddDate(0, 1, 0)) }
func (p Period) Prev() Period { return PeriodOf(p.Start().AddDate(0, -1, 0)) }

func (p Period) Before(o Period) bool { return p < o }
func (p Period) After(o Period) bool  { return p > o }

// PeriodRange is an inclusive [From, To] range. An empty bound is open.
type PeriodRange struct {
	From Period
	To   Period
}

// NewPeriodRange normalizes both bounds. Empty strings leave a bound open.
func NewPeriodRange(from, to string) (PeriodRange, error) {
	var r PeriodRange
	var err error
	if strings.TrimSpace(from) != "" {
		if r.From, err = NormalizePeriod(from); err != nil {
			return r, err
		}
	}
	if strings.TrimSpace(to) != "" {
		if r.To, err = NormalizePeriod(to); err != nil {
			return r, err
		}
	}
	if r.From != "" && r.To != "" && r.To.Before(r.From) {
		return r, &ValidationError{Field: "period", Value: from + ".." + to, Message: "end period before start period"}
	}
	return r, nil
}

// Contains reports whether p lies within the range.
func (r PeriodRange) Contains(p Period) bool {
	if r.From != "" && p.Before(r.From) {
		return false
	}
	if r.To != "" && p.After(r.To) {
		return false
	}
	return true
}

// IsOpen reports whether r places no bound on either side.
func (r PeriodRange) IsOpen() bool { return r.From == "" && r.To == "" }

// MatchesRaw reports whether a stored, possibly non-canonical period falls
// in r. Unparsable values match only an open range, so the engine sees them
// and can log the skip itself.
func (r PeriodRange) MatchesRaw(raw string) bool {
	if r.IsOpen() {
		return true
	}
	p, err := NormalizePeriod(raw)
	if err != nil {
		return false
	}
	return r.Contains(p)
}

// SinglePeriod is the range containing only p.
func SinglePeriod(p Period) PeriodRange { return PeriodRange{From: p, To: p} }
