package models

import (
	"time"
	"vmp/src/types"

	"github.com/google/uuid"
)

// Voucher is a sellable unit listed by a store. AvailableQuantity is only
// written through the stock ledger.
type Voucher struct {
	ID                uuid.UUID         `gorm:"primarykey;type:uuid;default:gen_random_uuid()" json:"id"`
	StoreID           uint              `gorm:"index" json:"store_id"`
	Title             string            `json:"title"`
	Type              types.VoucherType `gorm:"type:text;default:'sale'" json:"type"`
	TotalQuantity     int               `gorm:"not null;check:total_quantity >= 0" json:"total_quantity"`
	AvailableQuantity int               `gorm:"not null;check:available_quantity >= 0" json:"available_quantity"`
	SellingPrice      int64             `gorm:"not null" json:"selling_price"`
	FaceValue         int64             `gorm:"not null" json:"face_value"`
	Currency          string            `gorm:"size:3;default:'usd'" json:"currency"`
	ExpiresAt         *time.Time        `json:"expires_at,omitempty"`
	IsActive          bool              `gorm:"default:true" json:"is_active"`

	types.Timestamps
}

func (v *Voucher) Expired(now time.Time) bool {
	return v.ExpiresAt != nil && !now.Before(*v.ExpiresAt)
}

// DiscountPercent is the rounded-down discount of the selling price against face value.
func (v *Voucher) DiscountPercent() int {
	if v.FaceValue <= 0 || v.SellingPrice >= v.FaceValue {
		return 0
	}
	return int((v.FaceValue - v.SellingPrice) * 100 / v.FaceValue)
}
