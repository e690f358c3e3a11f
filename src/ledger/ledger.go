package ledger

import (
	"context"
	"vmp/src/db"
	"vmp/src/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Ledger owns a voucher's available-quantity counter. Both operations are a
// single conditional UPDATE so concurrent buyers never oversell.
type Ledger struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Ledger {
	return &Ledger{db: db}
}

// Reserve takes qty units if at least qty are available. A false result is the
// normal out-of-stock outcome, not an error.
func (l *Ledger) Reserve(ctx context.Context, voucherID uuid.UUID, qty int) (bool, error) {
	if qty <= 0 {
		return false, nil
	}
	res := db.Conn(ctx, l.db).
		Model(&models.Voucher{}).
		Where("id = ? AND available_quantity >= ?", voucherID, qty).
		UpdateColumn("available_quantity", gorm.Expr("available_quantity - ?", qty))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// Release gives qty units back, never raising available above total.
func (l *Ledger) Release(ctx context.Context, voucherID uuid.UUID, qty int) error {
	if qty <= 0 {
		return nil
	}
	return db.Conn(ctx, l.db).
		Model(&models.Voucher{}).
		Where("id = ?", voucherID).
		UpdateColumn("available_quantity", gorm.Expr("LEAST(available_quantity + ?, total_quantity)", qty)).
		Error
}

func (l *Ledger) Available(ctx context.Context, voucherID uuid.UUID) (int, error) {
	var available int
	err := db.Conn(ctx, l.db).
		Model(&models.Voucher{}).
		Select("available_quantity").
		Where("id = ?", voucherID).
		Scan(&available).Error
	return available, err
}
