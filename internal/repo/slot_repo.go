// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Slot model,
// the named key-value cells that hold encoded text.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations.
// They follow the "thin repository" approach: no business logic, only
// persistence.
//
// Error semantics:
//   - When a slot is missing, LoadSlot returns ErrNotFound
//     (an alias of gorm.ErrRecordNotFound).
//   - On DB errors the raw gorm error is propagated.
//
// Functions:
//
//   - LoadSlot(ctx, db, key) -> *domain.Slot, error
//     Fetches a slot by key, or ErrNotFound.
//
//   - SaveSlot(ctx, db, key, value) -> error
//     Overwrites (or creates) the slot with value.
package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-dose-timer/internal/domain"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = gorm.ErrRecordNotFound

// LoadSlot returns the slot stored under key.
func LoadSlot(ctx context.Context, db *gorm.DB, key string) (*domain.Slot, error) {
	var s domain.Slot
	err := db.WithContext(ctx).Where("key = ?", key).Take(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// SaveSlot replaces the whole value of the slot, creating it if needed.
func SaveSlot(ctx context.Context, db *gorm.DB, key, value string) error {
	s := &domain.Slot{Key: key, Value: value, UpdatedAt: time.Now().UTC()}
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
		}).
		Create(s).Error
}
