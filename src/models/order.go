package models

import (
	"time"
	"vmp/src/types"

	"github.com/google/uuid"
)

// PurchasedVoucher is the buyer's receipt for a completed payment. Price fields
// are copied from the voucher at purchase time.
type PurchasedVoucher struct {
	ID uuid.UUID `gorm:"primarykey;type:uuid;default:gen_random_uuid()" json:"id"`

	BuyerID         uint              `gorm:"index" json:"buyer_id"`
	VoucherID       uuid.UUID         `gorm:"type:uuid;index" json:"voucher_id"`
	PaymentID       uuid.UUID         `gorm:"type:uuid;uniqueIndex" json:"payment_id"`
	InstanceCode    string            `gorm:"uniqueIndex" json:"instance_code"`
	Quantity        int               `gorm:"not null" json:"quantity"`
	QuantityUsed    int               `gorm:"not null;default:0;check:quantity_used <= quantity" json:"quantity_used"`
	Status          types.OrderStatus `gorm:"type:text;default:'ACTIVE'" json:"status"`
	SellingPrice    int64             `json:"selling_price"`
	FaceValue       int64             `json:"face_value"`
	DiscountPercent int               `json:"discount_percent"`
	Currency        string            `gorm:"size:3" json:"currency"`
	ExpiresAt       *time.Time        `json:"expires_at,omitempty"`
	RedeemedAt      *time.Time        `json:"redeemed_at,omitempty"`
	LastRedeemedAt  *time.Time        `json:"last_redeemed_at,omitempty"`
	QRCodeKey       string            `json:"-"`
	QRCodeURL       string            `json:"qr_code_url,omitempty"`

	types.Timestamps

	Voucher Voucher `gorm:"foreignKey:voucher_id" json:"-"`
	Payment Payment `gorm:"foreignKey:payment_id" json:"-"`
}

func (o *PurchasedVoucher) Remaining() int {
	return o.Quantity - o.QuantityUsed
}

func (o *PurchasedVoucher) Expired(now time.Time) bool {
	return o.ExpiresAt != nil && !now.Before(*o.ExpiresAt)
}

// Redemption records a single scan against an order.
type Redemption struct {
	ID         uuid.UUID `gorm:"primarykey;type:uuid;default:gen_random_uuid()" json:"id"`
	OrderID    uuid.UUID `gorm:"type:uuid;index" json:"order_id"`
	RedeemerID uint      `gorm:"index" json:"redeemer_id"`
	Quantity   int       `json:"quantity"`
	RedeemedAt time.Time `json:"redeemed_at"`

	types.Timestamps
}
