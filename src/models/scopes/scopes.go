package scopes

import (
	"time"
	"vmp/src/types"

	"gorm.io/gorm"
)

func WithUserIDs(ids ...uint) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("user_id IN (?)", ids)
	}
}

func WithBuyer(id uint) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("buyer_id = ?", id)
	}
}

// WithHeldReservation matches payments still holding stock.
func WithHeldReservation(db *gorm.DB) *gorm.DB {
	return db.Where("quantity_reserved IS NOT NULL")
}

func WithExpiredReservation(now time.Time) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("quantity_reserved IS NOT NULL AND reservation_expires_at <= ?", now)
	}
}

// AfterExpiryCursor keeps the reservations ordered after c by
// (reservation_expires_at, id).
func AfterExpiryCursor(c types.ExpiryCursor) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if c.IsZero() {
			return db
		}
		return db.Where("(reservation_expires_at, id) > (?, ?)", c.ExpiresAt, c.ID)
	}
}
