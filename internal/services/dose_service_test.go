package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-dose-timer/internal/clock"
	"github.com/tbourn/go-dose-timer/internal/domain"
	"github.com/tbourn/go-dose-timer/internal/dosing"
	"github.com/tbourn/go-dose-timer/internal/repo"
)

// ----- helpers -----

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

// fakeNow is a settable clock source.
type fakeNow struct {
	mu sync.Mutex
	t  time.Time
}

func (f *fakeNow) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

func (f *fakeNow) Set(t time.Time) {
	f.mu.Lock()
	f.t = t
	f.mu.Unlock()
}

var cet = time.FixedZone("CET", 3600)

func newService(t *testing.T, start time.Time) (*DoseService, *fakeNow) {
	t.Helper()
	now := &fakeNow{t: start}
	clk := clock.New(cet).WithNow(now.Now)
	return NewDoseService(newTestDB(t), clk), now
}

func day(h, m int) time.Time { return time.Date(2024, 3, 2, h, m, 0, 0, cet) }

const seeded = "timestamp,amount\n2024-03-02T14:05:00+01:00,1.0\n2024-03-02T10:30:00+01:00,0.5\n"

// ----- load -----

func TestReload_MissingSlotIsEmpty(t *testing.T) {
	s, _ := newService(t, day(12, 0))
	if err := s.Reload(context.Background()); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if got := s.Snapshot(context.Background()); len(got) != 0 {
		t.Fatalf("expected empty log, got %+v", got)
	}
}

func TestReload_DropsBadRowsAndCounts(t *testing.T) {
	s, _ := newService(t, day(15, 0))
	ctx := context.Background()
	_ = repo.SaveSlot(ctx, s.DB, s.Key, "timestamp,amount\n2024-03-02T14:05:00+01:00,1.0\n2024-03-02T12:00:00+01:00,abc\n")

	before := testutil.ToFloat64(droppedLines)
	if err := s.Reload(ctx); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if got := s.Snapshot(ctx); len(got) != 1 || got[0].Amount != 1.0 {
		t.Fatalf("unexpected log: %+v", got)
	}
	if d := testutil.ToFloat64(droppedLines) - before; d != 1 {
		t.Fatalf("dropped counter delta = %v, want 1", d)
	}
}

func TestReload_ReadErrorStartsEmpty(t *testing.T) {
	s, _ := newService(t, day(12, 0))
	ctx := context.Background()
	if err := s.DB.Migrator().DropTable(&domain.Slot{}); err != nil {
		t.Fatalf("drop: %v", err)
	}
	if err := s.Reload(ctx); err == nil {
		t.Fatalf("expected read error to be reported")
	}
	if got := s.Snapshot(ctx); len(got) != 0 {
		t.Fatalf("expected empty log after read error, got %+v", got)
	}
}

// ----- add -----

func TestAdd_PersistsNewestFirst(t *testing.T) {
	s, now := newService(t, day(12, 0))
	ctx := context.Background()

	if _, err := s.Add(ctx, 1.0); err != nil {
		t.Fatalf("Add: %v", err)
	}
	now.Set(day(12, 30))
	rec, err := s.Add(ctx, 0.5)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if rec.Stamp() != "2024-03-02T12:30:00+01:00" || rec.Amount != 0.5 || rec.ID == "" {
		t.Fatalf("unexpected record: %+v", rec)
	}

	slot, err := repo.LoadSlot(ctx, s.DB, s.Key)
	if err != nil {
		t.Fatalf("LoadSlot: %v", err)
	}
	want := "timestamp,amount\n2024-03-02T12:30:00+01:00,0.5\n2024-03-02T12:00:00+01:00,1.0\n"
	if slot.Value != want {
		t.Fatalf("slot =\n%s\nwant\n%s", slot.Value, want)
	}

	// A fresh service over the same DB sees the same log and ids.
	other := NewDoseService(s.DB, s.Clock)
	got := other.Snapshot(ctx)
	if len(got) != 2 || got[0].ID != rec.ID {
		t.Fatalf("reload mismatch: %+v", got)
	}
}

func TestAdd_RejectsInvalidAmounts(t *testing.T) {
	s, _ := newService(t, day(12, 0))
	for _, a := range []float64{-0.1, nan(), inf()} {
		if _, err := s.Add(context.Background(), a); !errors.Is(err, ErrInvalidAmount) {
			t.Fatalf("Add(%v) err = %v, want ErrInvalidAmount", a, err)
		}
	}
	if got := s.Snapshot(context.Background()); len(got) != 0 {
		t.Fatalf("invalid adds must not change the log")
	}
}

func TestAdd_WriteFailureKeepsMemory(t *testing.T) {
	s, _ := newService(t, day(12, 0))
	ctx := context.Background()
	if _, err := s.Add(ctx, 1.0); err != nil {
		t.Fatalf("Add: %v", err)
	}
	_ = s.DB.Migrator().DropTable(&domain.Slot{})

	if _, err := s.Add(ctx, 0.5); err == nil {
		t.Fatalf("expected write error")
	}
	if got := s.Snapshot(ctx); len(got) != 1 {
		t.Fatalf("in-memory log changed after failed write: %+v", got)
	}
}

func TestAddIdempotent_ReplaysSameKey(t *testing.T) {
	s, now := newService(t, day(12, 0))
	ctx := context.Background()

	first, replayed, err := s.AddIdempotent(ctx, "10.0.0.1", "key-1", 1.0)
	if err != nil || replayed {
		t.Fatalf("first: err=%v replayed=%v", err, replayed)
	}
	now.Set(day(12, 0).Add(2 * time.Second))
	again, replayed, err := s.AddIdempotent(ctx, "10.0.0.1", "key-1", 1.0)
	if err != nil || !replayed || again.ID != first.ID {
		t.Fatalf("replay: rec=%+v replayed=%v err=%v", again, replayed, err)
	}
	if n := len(s.Snapshot(ctx)); n != 1 {
		t.Fatalf("replay recorded a second dose (len=%d)", n)
	}

	// Another client with the same key records its own dose.
	_, replayed, err = s.AddIdempotent(ctx, "10.0.0.2", "key-1", 0.5)
	if err != nil || replayed {
		t.Fatalf("other client: replayed=%v err=%v", replayed, err)
	}
	if n := len(s.Snapshot(ctx)); n != 2 {
		t.Fatalf("len = %d, want 2", n)
	}
}

func TestAddIdempotent_EmptyKeyAlwaysAdds(t *testing.T) {
	s, _ := newService(t, day(12, 0))
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if _, replayed, err := s.AddIdempotent(ctx, "c", "", 1); err != nil || replayed {
			t.Fatalf("add %d: replayed=%v err=%v", i, replayed, err)
		}
	}
	got := s.Snapshot(ctx)
	if len(got) != 2 || got[0].ID == got[1].ID {
		t.Fatalf("expected two distinct doses at the same second, got %+v", got)
	}
}

func TestAddIdempotent_ReplayOfDeletedDose(t *testing.T) {
	s, _ := newService(t, day(12, 0))
	ctx := context.Background()
	rec, _, _ := s.AddIdempotent(ctx, "c", "k", 1)
	_ = s.Delete(ctx, rec.ID)

	if _, replayed, err := s.AddIdempotent(ctx, "c", "k", 1); !replayed || !errors.Is(err, ErrDoseNotFound) {
		t.Fatalf("replayed=%v err=%v", replayed, err)
	}
}

// ----- delete / clear -----

func TestDelete_ByID(t *testing.T) {
	s, _ := newService(t, day(15, 0))
	ctx := context.Background()
	if _, err := s.Import(ctx, seeded); err != nil {
		t.Fatalf("Import: %v", err)
	}
	log := s.Snapshot(ctx)

	if err := s.Delete(ctx, log[0].ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	got := s.Snapshot(ctx)
	if len(got) != 1 || got[0].ID != log[1].ID {
		t.Fatalf("unexpected log: %+v", got)
	}
	if err := s.Delete(ctx, log[0].ID); !errors.Is(err, ErrDoseNotFound) {
		t.Fatalf("second delete err = %v", err)
	}
}

func TestDelete_OlderSameSecondDoseThenAdd(t *testing.T) {
	s, _ := newService(t, day(12, 0))
	ctx := context.Background()
	a, _ := s.Add(ctx, 1.0)
	b, _ := s.Add(ctx, 2.0)

	if err := s.Delete(ctx, a.ID); err != nil {
		t.Fatalf("Delete(a): %v", err)
	}
	c, err := s.Add(ctx, 3.0)
	if err != nil {
		t.Fatalf("Add(c): %v", err)
	}
	if c.ID == s.Snapshot(ctx)[1].ID {
		t.Fatalf("new dose reused the survivor's id %q (b was %q)", c.ID, b.ID)
	}

	if err := s.Delete(ctx, c.ID); err != nil {
		t.Fatalf("Delete(c): %v", err)
	}
	got := s.Snapshot(ctx)
	if len(got) != 1 || got[0].Amount != 2.0 {
		t.Fatalf("remaining = %+v, want only the 2.0 dose", got)
	}

	// A reload derives the same ids as the running service.
	if err := s.Reload(ctx); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if again := s.Snapshot(ctx); again[0].ID != got[0].ID {
		t.Fatalf("reloaded id %q, want %q", again[0].ID, got[0].ID)
	}
}

func TestDeleteAt_RemovesDuplicates(t *testing.T) {
	s, _ := newService(t, day(15, 0))
	ctx := context.Background()
	_, _ = s.Import(ctx, "2024-03-02T14:05:00+01:00,1.0\n2024-03-02T14:05:00+01:00,0.5\n2024-03-02T10:30:00+01:00,2.0\n")

	n, err := s.DeleteAt(ctx, "2024-03-02T14:05:00+01:00")
	if err != nil || n != 2 {
		t.Fatalf("DeleteAt: n=%d err=%v", n, err)
	}
	if _, err := s.DeleteAt(ctx, "2024-03-02T14:05:00+01:00"); !errors.Is(err, ErrDoseNotFound) {
		t.Fatalf("expected ErrDoseNotFound, got %v", err)
	}
}

func TestClear(t *testing.T) {
	s, _ := newService(t, day(15, 0))
	ctx := context.Background()
	_, _ = s.Import(ctx, seeded)

	n, err := s.Clear(ctx)
	if err != nil || n != 2 {
		t.Fatalf("Clear: n=%d err=%v", n, err)
	}
	slot, _ := repo.LoadSlot(ctx, s.DB, s.Key)
	if slot.Value != "timestamp,amount\n" {
		t.Fatalf("slot after clear = %q", slot.Value)
	}
}

func TestResolve(t *testing.T) {
	s, _ := newService(t, day(15, 0))
	ctx := context.Background()
	_, _ = s.Import(ctx, seeded)
	log := s.Snapshot(ctx)

	if id, err := s.Resolve(ctx, log[1].ID[:10]); err != nil || id != log[1].ID {
		t.Fatalf("Resolve: %q %v", id, err)
	}
	if _, err := s.Resolve(ctx, "zzz"); !errors.Is(err, ErrDoseNotFound) {
		t.Fatalf("Resolve(zzz) err = %v", err)
	}
	if _, err := s.Resolve(ctx, ""); !errors.Is(err, ErrDoseNotFound) {
		t.Fatalf("Resolve(\"\") err = %v", err)
	}
}

// ----- list / status -----

func TestList_EntriesAndIntervals(t *testing.T) {
	s, _ := newService(t, time.Date(2024, 3, 3, 0, 1, 0, 0, cet))
	ctx := context.Background()
	_, _ = s.Import(ctx, "2024-03-02T23:59:00+01:00,1.0\n2024-03-02T20:24:00+01:00,0.5\n")

	got := s.List(ctx, 0)
	if len(got) != 2 {
		t.Fatalf("len = %d", len(got))
	}
	if got[0].Display != "Sat 2 Mar 23:59" || got[0].DayLabel != "(D-1)" || got[0].Interval != "3h 35m" {
		t.Fatalf("first entry = %+v", got[0])
	}
	if got[1].Interval != clock.Placeholder {
		t.Fatalf("oldest interval = %q", got[1].Interval)
	}

	limited := s.List(ctx, 1)
	if len(limited) != 1 || limited[0].Interval != "3h 35m" {
		t.Fatalf("limit must not change intervals: %+v", limited)
	}
}

func TestStatus_States(t *testing.T) {
	s, now := newService(t, day(12, 0))
	ctx := context.Background()

	st := s.Status(ctx)
	if st.State != dosing.StateIdle || st.LastDose != nil || st.Elapsed != clock.Placeholder {
		t.Fatalf("idle status = %+v", st)
	}

	_, _ = s.Add(ctx, 1.0)
	now.Set(day(13, 29))
	st = s.Status(ctx)
	if st.State != dosing.StateWarning || st.Elapsed != "01:29:00" || st.ElapsedSeconds != 89*60 {
		t.Fatalf("warning status = %+v", st)
	}
	if st.LastDose == nil || st.LastDose.Interval != clock.Placeholder || st.WarningThresholdSeconds != 90*60 {
		t.Fatalf("last dose = %+v", st.LastDose)
	}

	now.Set(day(13, 30))
	if st = s.Status(ctx); st.State != dosing.StateSafe {
		t.Fatalf("at 90m state = %q, want safe", st.State)
	}

	// Clock went backwards: clamped to zero, still warning.
	now.Set(day(11, 0))
	if st = s.Status(ctx); st.Elapsed != "00:00:00" || st.State != dosing.StateWarning {
		t.Fatalf("clamped status = %+v", st)
	}
}

// ----- export / import -----

func TestExport(t *testing.T) {
	s, _ := newService(t, day(15, 0))
	ctx := context.Background()

	if _, _, err := s.Export(ctx); !errors.Is(err, ErrNothingToExport) {
		t.Fatalf("empty export err = %v", err)
	}
	if err := s.WriteExport(ctx, &bytes.Buffer{}); !errors.Is(err, ErrNothingToExport) {
		t.Fatalf("empty WriteExport err = %v", err)
	}

	_, _ = s.Import(ctx, seeded)
	name, body, err := s.Export(ctx)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if name != "doses-2024-03-02.csv" || body != seeded {
		t.Fatalf("export = %q\n%s", name, body)
	}
	var buf bytes.Buffer
	if err := s.WriteExport(ctx, &buf); err != nil || buf.String() != seeded {
		t.Fatalf("WriteExport = %q %v", buf.String(), err)
	}
}

func TestImport_ReplacesAndReportsSkipped(t *testing.T) {
	s, _ := newService(t, day(15, 0))
	ctx := context.Background()
	_, _ = s.Add(ctx, 3.0)

	res, err := s.Import(ctx, strings.Join([]string{
		"timestamp,amount",
		"2024-03-02T10:30:00+01:00,0.5",
		"garbage",
		"2024-03-02T14:05:00+01:00,1.0",
	}, "\r\n"))
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if res.Imported != 2 || res.Skipped != 1 {
		t.Fatalf("result = %+v", res)
	}
	got := s.Snapshot(ctx)
	if len(got) != 2 || got[0].Stamp() != "2024-03-02T14:05:00+01:00" {
		t.Fatalf("log after import = %+v", got)
	}

	res, err = s.Import(ctx, "")
	if err != nil || res.Imported != 0 {
		t.Fatalf("empty import: %+v %v", res, err)
	}
	if got := s.Snapshot(ctx); len(got) != 0 {
		t.Fatalf("empty import should clear the log")
	}
}

func TestSlotStats_And_Purge(t *testing.T) {
	s, _ := newService(t, day(15, 0))
	ctx := context.Background()

	if size, at, err := s.SlotStats(ctx); err != nil || size != 0 || at != nil {
		t.Fatalf("stats before write: %d %v %v", size, at, err)
	}
	_, _ = s.Add(ctx, 1)
	if size, at, err := s.SlotStats(ctx); err != nil || size == 0 || at == nil {
		t.Fatalf("stats after write: %d %v %v", size, at, err)
	}
	if n, err := s.PurgeIdempotency(ctx); err != nil || n != 0 {
		t.Fatalf("purge: %d %v", n, err)
	}
}

func TestConcurrentAdds_AllPersisted(t *testing.T) {
	s, _ := newService(t, day(12, 0))
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.Add(ctx, 0.5)
		}()
	}
	wg.Wait()

	other := NewDoseService(s.DB, s.Clock)
	if n := len(other.Snapshot(ctx)); n != 8 {
		t.Fatalf("persisted %d doses, want 8", n)
	}
}
