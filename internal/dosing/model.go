// Package dosing implements the dose log model: pure operations over a
// newest-first slice of dose records. Nothing here reads the wall clock or
// touches storage; callers pass "now" in and persist the returned log.
//
// Every operation returns a fresh slice and never mutates its input, so a
// caller can compute the next state, persist it, and only then swap it in.
package dosing

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/tbourn/go-dose-timer/internal/domain"
)

// DefaultWarningThreshold is the elapsed time below which another dose is
// flagged as too early.
const DefaultWarningThreshold = 90 * time.Minute

// State is the visual state derived from the elapsed time.
type State string

const (
	StateIdle    State = "idle"
	StateWarning State = "warning"
	StateSafe    State = "safe"
)

// Elapsed is the time since the newest dose. Clamped reports that the newest
// dose lies in the future (clock skew) and Duration was forced to zero.
type Elapsed struct {
	Duration time.Duration
	Clamped  bool
}

// Interval is the distance from a record to the next-older one.
type Interval struct {
	Duration time.Duration
	HasOlder bool
}

// AddDose prepends a record at the given instant with amount rounded to one
// decimal. The log is re-sorted so the newest-first order holds even if the
// clock stepped backwards.
func AddDose(log []domain.DoseRecord, at time.Time, amount float64) ([]domain.DoseRecord, domain.DoseRecord) {
	rec := domain.DoseRecord{Timestamp: at, Amount: Round1(amount)}

	stamp := rec.Stamp()
	ordinal := 0
	for _, r := range log {
		if r.Stamp() == stamp {
			ordinal++
		}
	}
	rec.ID = domain.DoseID(stamp, ordinal)

	out := make([]domain.DoseRecord, 0, len(log)+1)
	out = append(out, rec)
	out = append(out, log...)
	SortNewestFirst(out)
	return out, rec
}

// DeleteDose removes the record with the given id. The relative order of the
// remaining records is unchanged. IDs of the remaining records are re-derived,
// so a survivor of a same-stamp pair takes the ID a decode of the shortened
// log would give it.
func DeleteDose(log []domain.DoseRecord, id string) ([]domain.DoseRecord, int) {
	return filter(log, func(r domain.DoseRecord) bool { return r.ID == id })
}

// DeleteAt removes every record whose timestamp string equals stamp.
// Records sharing a stamp are all removed.
func DeleteAt(log []domain.DoseRecord, stamp string) ([]domain.DoseRecord, int) {
	return filter(log, func(r domain.DoseRecord) bool { return r.Stamp() == stamp })
}

// ClearAll returns an empty log.
func ClearAll([]domain.DoseRecord) []domain.DoseRecord {
	return []domain.DoseRecord{}
}

func filter(log []domain.DoseRecord, drop func(domain.DoseRecord) bool) ([]domain.DoseRecord, int) {
	out := make([]domain.DoseRecord, 0, len(log))
	removed := 0
	for _, r := range log {
		if drop(r) {
			removed++
			continue
		}
		out = append(out, r)
	}
	if removed > 0 {
		domain.AssignIDs(out)
	}
	return out, removed
}

// ElapsedSinceLast returns the time from the newest dose to now. ok is false
// for an empty log.
func ElapsedSinceLast(log []domain.DoseRecord, now time.Time) (e Elapsed, ok bool) {
	if len(log) == 0 {
		return Elapsed{}, false
	}
	d := now.Sub(log[0].Timestamp)
	if d < 0 {
		return Elapsed{Clamped: true}, true
	}
	return Elapsed{Duration: d}, true
}

// IsWarning reports whether elapsed is still below threshold. A zero or
// negative threshold falls back to DefaultWarningThreshold.
func IsWarning(elapsed, threshold time.Duration) bool {
	if threshold <= 0 {
		threshold = DefaultWarningThreshold
	}
	return elapsed < threshold
}

// StateOf maps the result of ElapsedSinceLast to a visual state.
func StateOf(e Elapsed, ok bool, threshold time.Duration) State {
	switch {
	case !ok:
		return StateIdle
	case IsWarning(e.Duration, threshold):
		return StateWarning
	default:
		return StateSafe
	}
}

// Intervals returns, for each record of a newest-first log, the distance to
// the record that follows it. The oldest record has HasOlder == false.
func Intervals(log []domain.DoseRecord) []Interval {
	out := make([]Interval, len(log))
	for i := range log {
		if i+1 < len(log) {
			d := log[i].Timestamp.Sub(log[i+1].Timestamp)
			if d < 0 {
				d = -d
			}
			out[i] = Interval{Duration: d, HasOlder: true}
		}
	}
	return out
}

// SortNewestFirst orders log by instant descending; ties keep their order.
func SortNewestFirst(log []domain.DoseRecord) {
	sort.SliceStable(log, func(i, j int) bool {
		return log[i].Timestamp.After(log[j].Timestamp)
	})
}

// Round1 rounds to one decimal place, halves away from zero.
func Round1(amount float64) float64 {
	return math.Round(amount*10) / 10
}

// Find returns the record with the given id.
func Find(log []domain.DoseRecord, id string) (domain.DoseRecord, bool) {
	for _, r := range log {
		if r.ID == id {
			return r, true
		}
	}
	return domain.DoseRecord{}, false
}

// ResolveID expands a unique id prefix to the full id. It returns the number
// of matches so callers can tell "none" from "ambiguous".
func ResolveID(log []domain.DoseRecord, prefix string) (string, int) {
	prefix = strings.ToLower(strings.TrimSpace(prefix))
	if prefix == "" {
		return "", 0
	}
	var (
		match string
		n     int
	)
	for _, r := range log {
		if r.ID == prefix {
			return r.ID, 1
		}
		if strings.HasPrefix(r.ID, prefix) {
			match = r.ID
			n++
		}
	}
	if n != 1 {
		return "", n
	}
	return match, 1
}
