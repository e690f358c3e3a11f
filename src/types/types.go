package types

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Timestamps struct {
	CreatedAt time.Time      `gorm:"autoCreateTime:nano" json:"created_at,omitempty"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime:nano" json:"updated_at,omitempty"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty,omitnil"`
}

type JSONB map[string]any

func (a JSONB) Value() (driver.Value, error) {
	valueString, err := json.Marshal(a)
	return string(valueString), err
}
func (a *JSONB) Scan(value any) error {
	var b []byte
	switch v := value.(type) {
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		return errors.New("type assertion to []byte failed")
	}
	if err := json.Unmarshal(b, &a); err != nil {
		return err
	}
	return nil
}

type Metadata map[string]any

// ExpiryCursor is the last reservation a sweep has read. The zero value reads
// from the oldest one.
type ExpiryCursor struct {
	ExpiresAt time.Time
	ID        uuid.UUID
}

func (c ExpiryCursor) IsZero() bool {
	return c.ExpiresAt.IsZero() && c.ID == uuid.Nil
}

type PaymentStatus string

const (
	PAYMENT_PENDING    PaymentStatus = "PENDING"
	PAYMENT_PROCESSING PaymentStatus = "PROCESSING"
	PAYMENT_COMPLETED  PaymentStatus = "COMPLETED"
	PAYMENT_CANCELLED  PaymentStatus = "CANCELLED"
	PAYMENT_FAILED     PaymentStatus = "FAILED"
)

// Terminal reports whether no further transition can happen.
func (s PaymentStatus) Terminal() bool {
	return s == PAYMENT_COMPLETED || s == PAYMENT_CANCELLED || s == PAYMENT_FAILED
}

// Releases reports whether reaching this status gives the reserved stock back.
func (s PaymentStatus) Releases() bool {
	return s == PAYMENT_CANCELLED || s == PAYMENT_FAILED
}

type OrderStatus string

const (
	ORDER_ACTIVE OrderStatus = "ACTIVE"
	ORDER_USED   OrderStatus = "USED"
)

type VoucherType string

const (
	VOUCHER_SALE  VoucherType = "sale"
	VOUCHER_PROMO VoucherType = "promo"
)

type Role string

const (
	ROLE_BUYER  Role = "BUYER"
	ROLE_VENDOR Role = "VENDOR"
	ROLE_ADMIN  Role = "ADMIN"
)

type CreatePaymentIntentRequestBody struct {
	VoucherID uuid.UUID `json:"voucher_id" binding:"required"`
	Quantity  int       `json:"quantity" binding:"required,min=1"`
	Amount    int64     `json:"amount" binding:"required,min=1"`
	Currency  string    `json:"currency" binding:"required,currency"`
}

type CreateOrderRequestBody struct {
	PaymentID uuid.UUID `json:"payment_id" binding:"required"`
	VoucherID uuid.UUID `json:"voucher_id" binding:"required"`
	Quantity  int       `json:"quantity" binding:"required,min=1"`
}

type RedeemVoucherRequestBody struct {
	InstanceCode string `json:"instance_code" binding:"required"`
	Quantity     int    `json:"quantity" binding:"required,min=1"`
	BuyerID      uint   `json:"buyer_id,omitempty"`
}

type ScanVoucherRequestBody struct {
	Code     string `json:"code" binding:"required,hexadecimal"`
	Quantity int    `json:"quantity" binding:"required,min=1"`
	BuyerID  uint   `json:"buyer_id,omitempty"`
}

type RegisterDeviceRequestBody struct {
	Token    string `json:"token" binding:"required"`
	Platform string `json:"platform,omitempty" binding:"omitempty,oneof=ios android web"`
}

type PaymentIntentURIParams struct {
	IntentID string `uri:"id" binding:"required"`
}

type APIResponsePaymentIntent struct {
	PaymentID            uuid.UUID     `json:"payment_id"`
	IntentID             string        `json:"intent_id"`
	ClientSecret         string        `json:"client_secret"`
	Status               PaymentStatus `json:"status"`
	Amount               int64         `json:"amount"`
	Currency             string        `json:"currency"`
	ReservationExpiresAt time.Time     `json:"reservation_expires_at"`
}

type APIResponseSyncStatus struct {
	Completed bool          `json:"completed"`
	Status    PaymentStatus `json:"status"`
}

type APIResponseRedemption struct {
	OrderID           uuid.UUID   `json:"order_id"`
	InstanceCode      string      `json:"instance_code"`
	QuantityRedeemed  int         `json:"quantity_redeemed"`
	QuantityUsed      int         `json:"quantity_used"`
	QuantityRemaining int         `json:"quantity_remaining"`
	Status            OrderStatus `json:"status"`
}
