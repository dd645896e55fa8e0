// Package services – DoseService
//
// This file implements DoseService, the application-level owner of the dose
// log. It loads the persisted slot through the codec, keeps the decoded log in
// memory, and on every mutation computes the next log with the pure dosing
// model, persists it, and only then swaps it in. A failed write therefore
// leaves the in-memory log untouched.
//
// One mutex serializes all access, which makes the service the single logical
// writer even when the HTTP server handles requests concurrently. Two
// processes sharing the same database are last-write-wins; Reload re-reads the
// slot on demand.
//
// Observability: public methods are OpenTelemetry-instrumented and mutations
// are counted in Prometheus.
package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/go-dose-timer/internal/clock"
	"github.com/tbourn/go-dose-timer/internal/codec"
	"github.com/tbourn/go-dose-timer/internal/domain"
	"github.com/tbourn/go-dose-timer/internal/dosing"
	"github.com/tbourn/go-dose-timer/internal/repo"

	// OpenTelemetry
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "services/DoseService"

// Entry is a dose as presented in the history list.
type Entry struct {
	ID        string  `json:"id"`
	Timestamp string  `json:"timestamp"`
	Amount    float64 `json:"amount"`
	Display   string  `json:"display"`
	DayLabel  string  `json:"day_label"`
	Interval  string  `json:"interval"`
}

// Status is the live timer state derived from the newest dose.
type Status struct {
	State                   dosing.State `json:"state"`
	Elapsed                 string       `json:"elapsed"`
	ElapsedSeconds          int64        `json:"elapsed_seconds"`
	LastDose                *Entry       `json:"last_dose,omitempty"`
	WarningThresholdSeconds int64        `json:"warning_threshold_seconds"`
	Now                     string       `json:"now"`
}

// ImportResult reports how many rows an import kept and skipped.
type ImportResult struct {
	Imported int `json:"imported"`
	Skipped  int `json:"skipped"`
}

// DoseService coordinates the in-memory dose log and its persisted slot.
type DoseService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Clock supplies "now" and formats instants in the reference zone.
	Clock *clock.Clock
	// Key names the storage slot holding the encoded log.
	Key string
	// Threshold is the warning threshold; <= 0 means the default.
	Threshold time.Duration
	// IdempotencyTTL bounds how long an Idempotency-Key is remembered.
	IdempotencyTTL time.Duration
	// Log receives service diagnostics. Nil means the global logger.
	Log *zerolog.Logger

	mu     sync.Mutex
	log    []domain.DoseRecord
	loaded bool
}

// NewDoseService constructs a DoseService with default slot key, threshold
// and idempotency TTL. The log is loaded lazily on first use.
func NewDoseService(db *gorm.DB, clk *clock.Clock) *DoseService {
	return &DoseService{
		DB:             db,
		Clock:          clk,
		Key:            domain.DefaultSlotKey,
		Threshold:      dosing.DefaultWarningThreshold,
		IdempotencyTTL: 24 * time.Hour,
	}
}

func (s *DoseService) logger() *zerolog.Logger {
	if s.Log != nil {
		return s.Log
	}
	return &log.Logger
}

func (s *DoseService) threshold() time.Duration {
	if s.Threshold <= 0 {
		return dosing.DefaultWarningThreshold
	}
	return s.Threshold
}

// Reload replaces the in-memory log with the persisted slot. Undecodable rows
// are dropped and logged. A read failure leaves an empty log and is returned
// so the caller can report it; the service stays usable.
func (s *DoseService) Reload(ctx context.Context) error {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "Reload")
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reloadLocked(ctx)
}

func (s *DoseService) reloadLocked(ctx context.Context) error {
	s.loaded = true
	s.log = nil

	slot, err := repo.LoadSlot(ctx, s.DB, s.Key)
	if errors.Is(err, repo.ErrNotFound) {
		logSize.Set(0)
		return nil
	}
	if err != nil {
		s.logger().Error().Err(err).Str("slot", s.Key).Msg("read dose log; starting empty")
		logSize.Set(0)
		return fmt.Errorf("load slot %q: %w", s.Key, err)
	}

	records, dropped := codec.DecodeReport(slot.Value)
	for _, d := range dropped {
		s.logger().Warn().
			Str("slot", s.Key).
			Int("line", d.Line).
			Str("reason", d.Reason).
			Str("text", d.Text).
			Msg("dropped undecodable dose row")
	}
	droppedLines.Add(float64(len(dropped)))
	s.log = records
	logSize.Set(float64(len(records)))
	return nil
}

func (s *DoseService) ensureLoaded(ctx context.Context) {
	if !s.loaded {
		_ = s.reloadLocked(ctx)
	}
}

// commit persists next and swaps it in.
func (s *DoseService) commit(ctx context.Context, next []domain.DoseRecord) error {
	if err := repo.SaveSlot(ctx, s.DB, s.Key, codec.Encode(next)); err != nil {
		return fmt.Errorf("save slot %q: %w", s.Key, err)
	}
	s.log = next
	logSize.Set(float64(len(next)))
	return nil
}

// Snapshot returns a copy of the current newest-first log.
func (s *DoseService) Snapshot(ctx context.Context) []domain.DoseRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLoaded(ctx)
	return append([]domain.DoseRecord(nil), s.log...)
}

// Add records a dose at the current instant.
func (s *DoseService) Add(ctx context.Context, amount float64) (domain.DoseRecord, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "Add",
		trace.WithAttributes(attribute.Float64("dose.amount", amount)),
	)
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addLocked(ctx, amount)
}

func (s *DoseService) addLocked(ctx context.Context, amount float64) (domain.DoseRecord, error) {
	if math.IsNaN(amount) || math.IsInf(amount, 0) || amount < 0 {
		return domain.DoseRecord{}, ErrInvalidAmount
	}
	s.ensureLoaded(ctx)

	next, rec := dosing.AddDose(s.log, s.Clock.Now(), amount)
	if err := s.commit(ctx, next); err != nil {
		return domain.DoseRecord{}, err
	}
	doseEvents.WithLabelValues("add").Inc()
	return rec, nil
}

// AddIdempotent records a dose unless clientID already used key within the
// idempotency TTL, in which case the dose recorded then is returned with
// replayed=true. An empty key behaves like Add.
func (s *DoseService) AddIdempotent(ctx context.Context, clientID, key string, amount float64) (rec domain.DoseRecord, replayed bool, err error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "AddIdempotent",
		trace.WithAttributes(
			attribute.String("client.id", clientID),
			attribute.Bool("idempotency.key_present", key != ""),
		),
	)
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	if key == "" {
		rec, err = s.addLocked(ctx, amount)
		return rec, false, err
	}

	if prev, gerr := repo.GetIdempotency(ctx, s.DB, clientID, key, time.Now().UTC()); gerr == nil {
		s.ensureLoaded(ctx)
		doseEvents.WithLabelValues("replay").Inc()
		if r, ok := dosing.Find(s.log, prev.DoseID); ok {
			return r, true, nil
		}
		return domain.DoseRecord{}, true, ErrDoseNotFound
	}

	rec, err = s.addLocked(ctx, amount)
	if err != nil {
		return rec, false, err
	}
	ttl := s.IdempotencyTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if _, cerr := repo.CreateIdempotency(ctx, s.DB, clientID, key, rec.ID, 201, ttl); cerr != nil {
		// The dose is already persisted; a lost key only weakens retry safety.
		s.logger().Warn().Err(cerr).Str("client_id", clientID).Msg("store idempotency key")
	}
	return rec, false, nil
}

// Delete removes the dose with the given id.
func (s *DoseService) Delete(ctx context.Context, id string) error {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "Delete",
		trace.WithAttributes(attribute.String("dose.id", id)),
	)
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLoaded(ctx)

	next, n := dosing.DeleteDose(s.log, id)
	if n == 0 {
		return ErrDoseNotFound
	}
	if err := s.commit(ctx, next); err != nil {
		return err
	}
	doseEvents.WithLabelValues("delete").Add(float64(n))
	return nil
}

// DeleteAt removes every dose whose timestamp string equals stamp and returns
// how many were removed.
func (s *DoseService) DeleteAt(ctx context.Context, stamp string) (int, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "DeleteAt",
		trace.WithAttributes(attribute.String("dose.timestamp", stamp)),
	)
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLoaded(ctx)

	next, n := dosing.DeleteAt(s.log, stamp)
	if n == 0 {
		return 0, ErrDoseNotFound
	}
	if err := s.commit(ctx, next); err != nil {
		return 0, err
	}
	doseEvents.WithLabelValues("delete").Add(float64(n))
	return n, nil
}

// Clear empties the log and returns how many doses were removed.
func (s *DoseService) Clear(ctx context.Context) (int, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "Clear")
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLoaded(ctx)

	n := len(s.log)
	if err := s.commit(ctx, dosing.ClearAll(s.log)); err != nil {
		return 0, err
	}
	doseEvents.WithLabelValues("clear").Inc()
	return n, nil
}

// Resolve expands a unique id prefix to a full dose id.
func (s *DoseService) Resolve(ctx context.Context, prefix string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLoaded(ctx)

	id, n := dosing.ResolveID(s.log, prefix)
	switch {
	case n == 0:
		return "", ErrDoseNotFound
	case n > 1:
		return "", ErrAmbiguousID
	}
	return id, nil
}

// List returns the history newest-first with display fields. limit <= 0
// returns every entry.
func (s *DoseService) List(ctx context.Context, limit int) []Entry {
	_, span := otel.Tracer(tracerName).Start(ctx, "List",
		trace.WithAttributes(attribute.Int("limit", limit)),
	)
	defer span.End()

	doses := s.Snapshot(ctx)
	intervals := dosing.Intervals(doses)
	if limit > 0 && limit < len(doses) {
		doses = doses[:limit]
	}

	out := make([]Entry, len(doses))
	for i, r := range doses {
		out[i] = s.Describe(r)
		if intervals[i].HasOlder {
			out[i].Interval = clock.FormatInterval(intervals[i].Duration)
		} else {
			out[i].Interval = clock.Placeholder
		}
	}
	return out
}

// Describe renders a single record for display. Interval is left empty.
func (s *DoseService) Describe(r domain.DoseRecord) Entry {
	return Entry{
		ID:        r.ID,
		Timestamp: r.Stamp(),
		Amount:    r.Amount,
		Display:   s.Clock.FormatDisplay(r.Timestamp),
		DayLabel:  s.Clock.DayOffsetLabel(r.Timestamp),
	}
}

// Status computes the live timer state at the current instant.
func (s *DoseService) Status(ctx context.Context) Status {
	doses := s.Snapshot(ctx)
	now := s.Clock.Now()

	st := Status{
		WarningThresholdSeconds: int64(s.threshold() / time.Second),
		Now:                     s.Clock.Stamp(now),
	}
	e, ok := dosing.ElapsedSinceLast(doses, now)
	st.State = dosing.StateOf(e, ok, s.threshold())
	if !ok {
		st.Elapsed = clock.Placeholder
		return st
	}
	if e.Clamped {
		s.logger().Debug().
			Str("newest", doses[0].Stamp()).
			Str("now", st.Now).
			Msg("newest dose lies in the future; elapsed clamped to zero")
	}
	last := s.Describe(doses[0])
	last.Interval = clock.Placeholder
	if len(doses) > 1 {
		last.Interval = clock.ComputeInterval(doses[0].Timestamp, &doses[1].Timestamp)
	}
	st.LastDose = &last
	st.Elapsed = clock.FormatElapsed(e.Duration)
	st.ElapsedSeconds = int64(e.Duration / time.Second)
	return st
}

// ExportName returns the download file name for an export made now.
func (s *DoseService) ExportName() string {
	return "doses-" + s.Clock.DateStamp(s.Clock.Now()) + ".csv"
}

// Export returns the file name and encoded body of the current log.
func (s *DoseService) Export(ctx context.Context) (name, body string, err error) {
	_, span := otel.Tracer(tracerName).Start(ctx, "Export")
	defer span.End()

	doses := s.Snapshot(ctx)
	if len(doses) == 0 {
		return "", "", ErrNothingToExport
	}
	return s.ExportName(), codec.Encode(doses), nil
}

// WriteExport streams the encoded log to w.
func (s *DoseService) WriteExport(ctx context.Context, w io.Writer) error {
	doses := s.Snapshot(ctx)
	if len(doses) == 0 {
		return ErrNothingToExport
	}
	return codec.EncodeTo(w, doses)
}

// Import replaces the log with the decoded text. Rows that cannot be decoded
// are skipped and counted.
func (s *DoseService) Import(ctx context.Context, text string) (ImportResult, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "Import")
	defer span.End()

	records, dropped := codec.DecodeReport(text)
	for _, d := range dropped {
		s.logger().Warn().Int("line", d.Line).Str("reason", d.Reason).Msg("import skipped row")
	}
	if records == nil {
		records = []domain.DoseRecord{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.commit(ctx, records); err != nil {
		return ImportResult{}, err
	}
	s.loaded = true
	doseEvents.WithLabelValues("import").Inc()
	span.SetAttributes(attribute.Int("imported", len(records)), attribute.Int("skipped", len(dropped)))
	return ImportResult{Imported: len(records), Skipped: len(dropped)}, nil
}

// SlotStats reports the persisted size and last write of the log slot.
func (s *DoseService) SlotStats(ctx context.Context) (int64, *time.Time, error) {
	return repo.SlotStats(ctx, s.DB, s.Key)
}

// PurgeIdempotency drops expired idempotency keys.
func (s *DoseService) PurgeIdempotency(ctx context.Context) (int64, error) {
	return repo.PurgeExpiredIdempotency(ctx, s.DB, time.Now().UTC())
}
