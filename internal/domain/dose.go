// Package domain defines the core data model of the dose timer: dose records,
// the persisted storage slot that holds the encoded log, and the idempotency
// records that guard against double submission. Slot and Idempotency are
// mapped with GORM; DoseRecord lives in memory and on the wire only.
package domain

import (
	"strconv"
	"time"

	"github.com/google/uuid"
)

// doseNamespace seeds the deterministic UUIDv5 identifiers of dose records.
var doseNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("urn:go-dose-timer:dose"))

// DoseRecord is a single logged dose event.
//
// Fields:
//   - ID: opaque identifier derived from the timestamp string and its ordinal
//     among records sharing that exact string (see AssignIDs). It is not
//     persisted; decoding the same text always yields the same IDs, and every
//     mutation keeps the in-memory IDs equal to what a decode would assign.
//   - Timestamp: the instant the dose was taken, second precision, carrying
//     the offset of the reference zone it was produced in.
//   - Amount: non-negative quantity with one decimal as authored.
type DoseRecord struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Amount    float64   `json:"amount"`
}

// Stamp returns the canonical timestamp string of the record. It is the
// record's identity for timestamp-based deletion and its persisted form.
func (r DoseRecord) Stamp() string {
	return r.Timestamp.Format(time.RFC3339)
}

// DoseID returns the identifier for the ordinal-th record (counted from the
// oldest end of the log) whose timestamp string equals stamp.
func DoseID(stamp string, ordinal int) string {
	return uuid.NewSHA1(doseNamespace, []byte(stamp+"#"+strconv.Itoa(ordinal))).String()
}

// AssignIDs sets the ID of every record of a newest-first log in place.
// Ordinals are counted from the oldest record so prepending a new record
// never changes the IDs of the records already present.
func AssignIDs(records []DoseRecord) {
	seen := make(map[string]int, len(records))
	for i := len(records) - 1; i >= 0; i-- {
		stamp := records[i].Stamp()
		records[i].ID = DoseID(stamp, seen[stamp])
		seen[stamp]++
	}
}
