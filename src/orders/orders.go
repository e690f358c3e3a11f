// Package orders turns completed payments into purchased vouchers and
// redeems them.
package orders

import (
	"context"
	"time"
	"vmp/src/models"
	"vmp/src/notify"
	"vmp/src/sse"

	"github.com/google/uuid"
)

type Repository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	GetVoucher(ctx context.Context, id uuid.UUID) (*models.Voucher, error)
	GetPayment(ctx context.Context, id uuid.UUID) (*models.Payment, error)
	ClaimReservation(ctx context.Context, id uuid.UUID) (int, bool, error)
	GetOrder(ctx context.Context, id uuid.UUID) (*models.PurchasedVoucher, error)
	GetOrderByPaymentID(ctx context.Context, paymentID uuid.UUID) (*models.PurchasedVoucher, error)
	GetOrderByCode(ctx context.Context, code string) (*models.PurchasedVoucher, error)
	InstanceCodeExists(ctx context.Context, code string) (bool, error)
	ListOrdersByBuyer(ctx context.Context, buyerID uint) ([]models.PurchasedVoucher, error)
	CreateOrder(ctx context.Context, order *models.PurchasedVoucher) error
	RedeemOrder(ctx context.Context, id uuid.UUID, qty int, now time.Time) (bool, error)
	CreateRedemption(ctx context.Context, r *models.Redemption) error
	SetOrderArtifact(ctx context.Context, id uuid.UUID, key, url string) error
}

type Ledger interface {
	Reserve(ctx context.Context, voucherID uuid.UUID, qty int) (bool, error)
	Available(ctx context.Context, voucherID uuid.UUID) (int, error)
}

type Publisher interface {
	SendToUser(userID uint, t sse.EventType, data any)
	SendToRole(role string, t sse.EventType, data any)
	Broadcast(t sse.EventType, data any)
}

type Notifier interface {
	NotifyUsers(ctx context.Context, userIDs []uint, title, body string, data map[string]string) notify.Result
}

// Artifacts renders and stores the redemption QR image of an order.
type Artifacts interface {
	Generate(ctx context.Context, order *models.PurchasedVoucher, title string) (key string, url string, err error)
}

type CreateOrderInput struct {
	BuyerID   uint
	PaymentID uuid.UUID
	VoucherID uuid.UUID
	Quantity  int
}

type RedeemInput struct {
	RedeemerID   uint
	BuyerID      uint
	InstanceCode string
	Quantity     int
}

type RedemptionResult struct {
	Order    models.PurchasedVoucher
	Redeemed int
}
