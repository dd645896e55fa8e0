package dosing

import (
	"testing"
	"time"

	"github.com/tbourn/go-dose-timer/internal/domain"
)

var cet = time.FixedZone("CET", 3600)

func at(h, m int) time.Time {
	return time.Date(2024, 3, 2, h, m, 0, 0, cet)
}

func mk(recs ...domain.DoseRecord) []domain.DoseRecord {
	domain.AssignIDs(recs)
	return recs
}

func stamps(log []domain.DoseRecord) []string {
	out := make([]string, len(log))
	for i, r := range log {
		out[i] = r.Stamp()
	}
	return out
}

func TestAddDose_PrependsNewest(t *testing.T) {
	log := mk(domain.DoseRecord{Timestamp: at(12, 0), Amount: 1.0})

	got, rec := AddDose(log, at(12, 30), 0.5)
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].Stamp() != "2024-03-02T12:30:00+01:00" || got[0].Amount != 0.5 {
		t.Fatalf("first = %+v", got[0])
	}
	if got[1].Stamp() != "2024-03-02T12:00:00+01:00" || got[1].Amount != 1.0 {
		t.Fatalf("second = %+v", got[1])
	}
	if rec.ID == "" || rec.ID != got[0].ID {
		t.Fatalf("returned record id %q does not match log head %q", rec.ID, got[0].ID)
	}
	if len(log) != 1 {
		t.Fatalf("input log was mutated")
	}
}

func TestAddDose_RoundsAmount(t *testing.T) {
	_, rec := AddDose(nil, at(9, 0), 0.25)
	if rec.Amount != 0.3 {
		t.Fatalf("amount = %v, want 0.3", rec.Amount)
	}
}

func TestAddDose_ClockWentBackwards(t *testing.T) {
	log := mk(domain.DoseRecord{Timestamp: at(12, 0), Amount: 1.0})
	got, _ := AddDose(log, at(11, 0), 0.5)
	if got[0].Stamp() != log[0].Stamp() {
		t.Fatalf("log not re-sorted: %v", stamps(got))
	}
}

func TestAddDose_DuplicateStampGetsDistinctIDMatchingDecode(t *testing.T) {
	log := mk(domain.DoseRecord{Timestamp: at(12, 0), Amount: 1.0})
	got, rec := AddDose(log, at(12, 0), 0.5)
	if rec.ID == log[0].ID {
		t.Fatalf("duplicate stamp reused id %q", rec.ID)
	}

	// The ids must match what a reload would derive.
	again := append([]domain.DoseRecord(nil), got...)
	domain.AssignIDs(again)
	for i := range got {
		if got[i].ID != again[i].ID {
			t.Fatalf("record %d id %q differs from reassigned %q", i, got[i].ID, again[i].ID)
		}
	}
}

func TestDeleteDose_ByIDKeepsOrder(t *testing.T) {
	log := mk(
		domain.DoseRecord{Timestamp: at(14, 5), Amount: 1},
		domain.DoseRecord{Timestamp: at(12, 0), Amount: 0.5},
		domain.DoseRecord{Timestamp: at(10, 30), Amount: 2},
	)
	got, n := DeleteDose(log, log[1].ID)
	if n != 1 {
		t.Fatalf("removed = %d, want 1", n)
	}
	want := []string{"2024-03-02T14:05:00+01:00", "2024-03-02T10:30:00+01:00"}
	if s := stamps(got); s[0] != want[0] || s[1] != want[1] || len(s) != 2 {
		t.Fatalf("stamps = %v, want %v", s, want)
	}

	if _, n := DeleteDose(log, "nope"); n != 0 {
		t.Fatalf("unknown id removed %d", n)
	}
}

func TestDeleteDose_DuplicateStampsRemovesExactlyOne(t *testing.T) {
	log := mk(
		domain.DoseRecord{Timestamp: at(14, 5), Amount: 0.5},
		domain.DoseRecord{Timestamp: at(14, 5), Amount: 1.5},
	)
	got, n := DeleteDose(log, log[0].ID)
	if n != 1 || len(got) != 1 || got[0].Amount != 1.5 {
		t.Fatalf("got %+v (removed %d)", got, n)
	}
}

func TestDeleteDose_OlderDuplicateThenAddKeepsIDsDistinct(t *testing.T) {
	log := mk(domain.DoseRecord{Timestamp: at(12, 0), Amount: 1.0})
	log, b := AddDose(log, at(12, 0), 2.0)
	older := log[1].ID

	log, n := DeleteDose(log, older)
	if n != 1 || len(log) != 1 {
		t.Fatalf("removed %d, left %d", n, len(log))
	}
	if log[0].ID != domain.DoseID(log[0].Stamp(), 0) {
		t.Fatalf("survivor id %q not re-derived (was %q)", log[0].ID, b.ID)
	}

	log, c := AddDose(log, at(12, 0), 3.0)
	if c.ID == log[1].ID {
		t.Fatalf("new dose reused survivor id %q", c.ID)
	}

	log, n = DeleteDose(log, c.ID)
	if n != 1 || len(log) != 1 || log[0].Amount != 2.0 {
		t.Fatalf("got %+v (removed %d)", log, n)
	}
}

func TestDeleteAt_RemovesAllMatching(t *testing.T) {
	log := mk(
		domain.DoseRecord{Timestamp: at(14, 5), Amount: 0.5},
		domain.DoseRecord{Timestamp: at(14, 5), Amount: 1.5},
		domain.DoseRecord{Timestamp: at(9, 0), Amount: 1},
	)
	got, n := DeleteAt(log, "2024-03-02T14:05:00+01:00")
	if n != 2 || len(got) != 1 || got[0].Stamp() != "2024-03-02T09:00:00+01:00" {
		t.Fatalf("got %v (removed %d)", stamps(got), n)
	}
}

func TestClearAll(t *testing.T) {
	log := mk(domain.DoseRecord{Timestamp: at(14, 5), Amount: 1})
	if got := ClearAll(log); got == nil || len(got) != 0 {
		t.Fatalf("ClearAll = %#v", got)
	}
}

func TestElapsedSinceLast(t *testing.T) {
	if _, ok := ElapsedSinceLast(nil, at(12, 0)); ok {
		t.Fatalf("empty log should report absent")
	}

	log := mk(domain.DoseRecord{Timestamp: at(12, 0), Amount: 1})
	e, ok := ElapsedSinceLast(log, at(13, 29))
	if !ok || e.Duration != 89*time.Minute || e.Clamped {
		t.Fatalf("elapsed = %+v ok=%v", e, ok)
	}

	e, ok = ElapsedSinceLast(log, at(11, 0))
	if !ok || e.Duration != 0 || !e.Clamped {
		t.Fatalf("future dose should clamp: %+v", e)
	}
}

func TestIsWarning(t *testing.T) {
	for _, tc := range []struct {
		elapsed   time.Duration
		threshold time.Duration
		want      bool
	}{
		{89 * time.Minute, DefaultWarningThreshold, true},
		{90 * time.Minute, DefaultWarningThreshold, false},
		{90*time.Minute - time.Second, DefaultWarningThreshold, true},
		{0, DefaultWarningThreshold, true},
		{5 * time.Hour, DefaultWarningThreshold, false},
		{89 * time.Minute, 0, true},
		{30 * time.Minute, 20 * time.Minute, false},
	} {
		if got := IsWarning(tc.elapsed, tc.threshold); got != tc.want {
			t.Errorf("IsWarning(%v, %v) = %v, want %v", tc.elapsed, tc.threshold, got, tc.want)
		}
	}
}

func TestStateOf(t *testing.T) {
	if s := StateOf(Elapsed{}, false, 0); s != StateIdle {
		t.Fatalf("absent = %q", s)
	}
	if s := StateOf(Elapsed{Duration: time.Minute}, true, 0); s != StateWarning {
		t.Fatalf("1m = %q", s)
	}
	if s := StateOf(Elapsed{Duration: 2 * time.Hour}, true, 0); s != StateSafe {
		t.Fatalf("2h = %q", s)
	}
}

func TestIntervals(t *testing.T) {
	log := mk(
		domain.DoseRecord{Timestamp: at(14, 5), Amount: 1},
		domain.DoseRecord{Timestamp: at(10, 30), Amount: 0.5},
	)
	iv := Intervals(log)
	if len(iv) != 2 {
		t.Fatalf("len = %d", len(iv))
	}
	if !iv[0].HasOlder || iv[0].Duration != 3*time.Hour+35*time.Minute {
		t.Fatalf("iv[0] = %+v", iv[0])
	}
	if iv[1].HasOlder {
		t.Fatalf("oldest record should have no older neighbour")
	}
	if len(Intervals(nil)) != 0 {
		t.Fatalf("Intervals(nil) should be empty")
	}
}

func TestRound1(t *testing.T) {
	for _, tc := range []struct{ in, want float64 }{
		{0.5, 0.5},
		{0.25, 0.3},
		{1.04, 1.0},
		{2.96, 3.0},
		{-0.25, -0.3},
		{3, 3},
	} {
		if got := Round1(tc.in); got != tc.want {
			t.Errorf("Round1(%v) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestFindAndResolveID(t *testing.T) {
	log := mk(
		domain.DoseRecord{Timestamp: at(14, 5), Amount: 1},
		domain.DoseRecord{Timestamp: at(10, 30), Amount: 0.5},
	)
	if r, ok := Find(log, log[1].ID); !ok || r.Amount != 0.5 {
		t.Fatalf("Find = %+v %v", r, ok)
	}
	if _, ok := Find(log, "missing"); ok {
		t.Fatalf("Find(missing) should fail")
	}

	if id, n := ResolveID(log, log[0].ID); n != 1 || id != log[0].ID {
		t.Fatalf("full id: %q %d", id, n)
	}
	if id, n := ResolveID(log, log[0].ID[:8]); n != 1 || id != log[0].ID {
		t.Fatalf("prefix: %q %d", id, n)
	}
	if _, n := ResolveID(log, "zzzz"); n != 0 {
		t.Fatalf("no match: %d", n)
	}
	if _, n := ResolveID(log, "  "); n != 0 {
		t.Fatalf("blank prefix: %d", n)
	}
}
