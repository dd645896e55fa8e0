// Package codec encodes and decodes the dose log to and from its persisted
// textual form: a header line followed by one "timestamp,amount" row per dose,
// newest first.
//
// Decoding is deliberately forgiving. A missing header is accepted, blank
// lines are skipped, and rows that cannot be parsed are dropped rather than
// reported as errors; DecodeReport exposes what was dropped so callers can
// log it.
package codec

import (
	"fmt"
	"io"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/cases"

	"github.com/tbourn/go-dose-timer/internal/domain"
)

const (
	// Header is the first line written by Encode.
	Header = "timestamp,amount"
	// HeaderToken marks a header line when it prefixes the first line
	// (case-insensitive).
	HeaderToken = "timestamp"
)

// newlineRE splits on any newline convention.
var newlineRE = regexp.MustCompile(`\r\n|\r|\n`)

// fold performs Unicode case folding for header detection.
var fold = cases.Fold()

// LineError describes a persisted row that Decode dropped.
type LineError struct {
	Line   int    // 1-based line number in the input
	Text   string // raw line content
	Reason string
}

func (e *LineError) Error() string {
	return fmt.Sprintf("line %d: %s: %q", e.Line, e.Reason, e.Text)
}

// Decode parses persisted text into a newest-first dose log. Empty or
// whitespace-only input yields an empty log. Rows with a missing field, an
// unparseable timestamp or a non-finite amount are dropped silently.
func Decode(text string) []domain.DoseRecord {
	out, _ := DecodeReport(text)
	return out
}

// DecodeReport is Decode plus the list of dropped rows.
func DecodeReport(text string) ([]domain.DoseRecord, []*LineError) {
	var (
		out     []domain.DoseRecord
		dropped []*LineError
		first   = true
	)
	for i, raw := range newlineRE.Split(text, -1) {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		if first {
			first = false
			if strings.HasPrefix(fold.String(line), HeaderToken) {
				continue
			}
		}

		rec, reason := parseRow(line)
		if reason != "" {
			dropped = append(dropped, &LineError{Line: i + 1, Text: raw, Reason: reason})
			continue
		}
		out = append(out, rec)
	}

	sortNewestFirst(out)
	domain.AssignIDs(out)
	return out, dropped
}

// parseRow reads the first two comma-separated fields of a row; anything
// after a second comma is ignored.
func parseRow(line string) (domain.DoseRecord, string) {
	stamp, rest, ok := strings.Cut(line, ",")
	if !ok {
		return domain.DoseRecord{}, "missing amount field"
	}
	amount, _, _ := strings.Cut(rest, ",")
	stamp = strings.TrimSpace(stamp)
	amount = strings.TrimSpace(amount)
	if stamp == "" {
		return domain.DoseRecord{}, "missing timestamp field"
	}
	if amount == "" {
		return domain.DoseRecord{}, "missing amount field"
	}

	a, err := strconv.ParseFloat(amount, 64)
	if err != nil || math.IsNaN(a) || math.IsInf(a, 0) {
		return domain.DoseRecord{}, "amount is not a finite number"
	}
	ts, err := time.Parse(time.RFC3339, stamp)
	if err != nil {
		return domain.DoseRecord{}, "timestamp is not RFC 3339"
	}
	return domain.DoseRecord{Timestamp: ts, Amount: a}, ""
}

// sortNewestFirst orders by parsed instant, keeping input order for ties.
func sortNewestFirst(records []domain.DoseRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Timestamp.After(records[j].Timestamp)
	})
}

// Encode renders records in the given order behind the header line. Callers
// pass a newest-first log so the persisted order matches the model.
func Encode(records []domain.DoseRecord) string {
	var b strings.Builder
	b.Grow(len(Header) + 1 + len(records)*32)
	_ = EncodeTo(&b, records)
	return b.String()
}

// EncodeTo streams the encoding of records to w.
func EncodeTo(w io.Writer, records []domain.DoseRecord) error {
	if _, err := io.WriteString(w, Header+"\n"); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, r := range records {
		if _, err := io.WriteString(w, r.Stamp()+","+FormatAmount(r.Amount)+"\n"); err != nil {
			return fmt.Errorf("write row %s: %w", r.Stamp(), err)
		}
	}
	return nil
}

// FormatAmount renders the shortest exact decimal for a, always with at least
// one fractional digit: 1 -> "1.0", 0.25 -> "0.25".
func FormatAmount(a float64) string {
	s := strconv.FormatFloat(a, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}
