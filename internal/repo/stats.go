// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides small metadata queries used for
// conditional responses (ETag generation) in the HTTP layer.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-dose-timer/internal/domain"
)

// SlotStats returns the stored length and last overwrite time of a slot
// without loading its value. A missing slot yields (0, nil, nil).
//
// Return values:
//   - size:      byte length of the stored value
//   - updatedAt: pointer to the slot's UpdatedAt, or nil if the slot is missing
//   - err:       database error, if any
func SlotStats(ctx context.Context, db *gorm.DB, key string) (size int64, updatedAt *time.Time, err error) {
	var row struct {
		Size      int64
		UpdatedAt time.Time
	}
	res := db.WithContext(ctx).
		Model(&domain.Slot{}).
		Select("length(value) AS size, updated_at").
		Where("key = ?", key).
		Limit(1).
		Scan(&row)
	if res.Error != nil {
		return 0, nil, res.Error
	}
	if res.RowsAffected == 0 {
		return 0, nil, nil
	}
	return row.Size, &row.UpdatedAt, nil
}
