package domain

import "time"

// DefaultSlotKey is the name of the slot holding the encoded dose log.
const DefaultSlotKey = "doses"

// Slot is a named key-value cell holding an opaque text value. It plays the
// role of browser local storage: the dose log is encoded into a single slot
// and the whole value is overwritten on every change.
//
// Fields:
//   - Key: slot name (primary key).
//   - Value: encoded text, may be empty.
//   - UpdatedAt: last overwrite time, managed by GORM; feeds list ETags.
type Slot struct {
	Key       string    `gorm:"type:varchar(64);primaryKey"`
	Value     string    `gorm:"type:text;not null;default:''"`
	UpdatedAt time.Time `gorm:"not null"`
}

// TableName returns the database table name for Slot.
func (Slot) TableName() string { return "storage_slots" }
