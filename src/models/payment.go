package models

import (
	"time"
	"vmp/src/types"

	"github.com/google/uuid"
)

// Payment mirrors a gateway payment intent. A non-nil QuantityReserved marks a
// live reservation on the voucher's stock.
type Payment struct {
	ID uuid.UUID `gorm:"primarykey;type:uuid;default:gen_random_uuid()" json:"id"`

	BuyerID              uint                `gorm:"index" json:"buyer_id"`
	VoucherID            uuid.UUID           `gorm:"type:uuid;index" json:"voucher_id"`
	IntentID             string              `gorm:"uniqueIndex" json:"intent_id"`
	Amount               int64               `json:"amount"`
	Currency             string              `gorm:"size:3" json:"currency"`
	Quantity             int                 `json:"quantity"`
	Status               types.PaymentStatus `gorm:"type:text;default:'PENDING'" json:"status"`
	QuantityReserved     *int                `json:"quantity_reserved,omitempty"`
	ReservationExpiresAt *time.Time          `gorm:"index" json:"reservation_expires_at,omitempty"`
	Metadata             types.JSONB         `gorm:"type:jsonb" json:"metadata,omitempty"`

	types.Timestamps

	Voucher Voucher `gorm:"foreignKey:voucher_id" json:"-"`
}

func (p *Payment) Reserved() bool {
	return p.QuantityReserved != nil
}
