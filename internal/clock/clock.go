// Package clock provides the time and formatting utilities of the dose timer.
//
// Every computation is anchored to a single reference zone that is injected
// when the Clock is built, so day boundaries, display strings and persisted
// timestamps agree with each other and tests can pin both the zone and "now".
package clock

import (
	"fmt"
	"time"

	// Embedded zoneinfo so Load works on hosts without a tz database.
	_ "time/tzdata"
)

// DefaultZone is the reference IANA zone used when none is configured.
const DefaultZone = "Europe/Berlin"

// Placeholder is rendered where a value is absent (no older dose, no dose).
const Placeholder = "-"

const (
	displayLayout = "Mon 2 Jan 15:04"
	dateLayout    = "2006-01-02"
)

// Clock produces reference-zone instants and formats durations and instants
// for display. The zero value is not usable; build one with New or Load.
type Clock struct {
	loc *time.Location
	now func() time.Time
}

// New returns a Clock for loc reading the wall clock. A nil loc means UTC.
func New(loc *time.Location) *Clock {
	if loc == nil {
		loc = time.UTC
	}
	return &Clock{loc: loc, now: time.Now}
}

// Load resolves an IANA zone name and returns a Clock for it. An empty name
// selects DefaultZone.
func Load(name string) (*Clock, error) {
	if name == "" {
		name = DefaultZone
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("clock: load zone %q: %w", name, err)
	}
	return New(loc), nil
}

// WithNow returns a copy of c whose notion of "now" is fn.
func (c *Clock) WithNow(fn func() time.Time) *Clock {
	return &Clock{loc: c.loc, now: fn}
}

// Location returns the reference zone.
func (c *Clock) Location() *time.Location { return c.loc }

// Now returns the current instant in the reference zone, truncated to whole
// seconds (persisted timestamps carry no sub-second part).
func (c *Clock) Now() time.Time {
	return c.now().In(c.loc).Truncate(time.Second)
}

// Stamp renders t as an ISO-8601 timestamp with offset in the reference zone.
func (c *Clock) Stamp(t time.Time) string {
	return t.In(c.loc).Truncate(time.Second).Format(time.RFC3339)
}

// FormatDisplay renders t as "<weekday> <day> <month> HH:mm", e.g.
// "Sat 2 Mar 14:05".
func (c *Clock) FormatDisplay(t time.Time) string {
	return t.In(c.loc).Format(displayLayout)
}

// DateStamp renders the reference-zone calendar date of t as YYYY-MM-DD.
func (c *Clock) DateStamp(t time.Time) string {
	return t.In(c.loc).Format(dateLayout)
}

// DayOffset returns the number of calendar days between the start of t's
// day and the start of today, both in the reference zone. A dose logged at
// 23:59 yesterday is one day back even when fewer than 24 hours passed.
func (c *Clock) DayOffset(t time.Time) int {
	return daysBetween(t.In(c.loc), c.Now())
}

// DayOffsetLabel returns "(D-N)" for instants N >= 1 calendar days ago and an
// empty string for today or the future.
func (c *Clock) DayOffsetLabel(t time.Time) string {
	n := c.DayOffset(t)
	if n < 1 {
		return ""
	}
	return fmt.Sprintf("(D-%d)", n)
}

// daysBetween counts calendar days from a's date to b's date. Dates are
// projected onto UTC midnights so DST days of 23 or 25 hours still count once.
func daysBetween(a, b time.Time) int {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	da := time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC)
	db := time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC)
	return int(db.Sub(da).Hours() / 24)
}

// FormatElapsed renders d as zero-padded HH:MM:SS. Hours are not wrapped at
// 24 and negative durations render as 00:00:00.
func FormatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int64(d / time.Second)
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// ComputeInterval renders the distance between newer and older as
// "<H>h <M>m". A nil older (the oldest entry of the history) yields the
// Placeholder.
func ComputeInterval(newer time.Time, older *time.Time) string {
	if older == nil {
		return Placeholder
	}
	return FormatInterval(newer.Sub(*older))
}

// FormatInterval renders the absolute value of d as "<H>h <M>m", dropping
// seconds.
func FormatInterval(d time.Duration) string {
	if d < 0 {
		d = -d
	}
	mins := int64(d / time.Minute)
	return fmt.Sprintf("%dh %dm", mins/60, mins%60)
}
