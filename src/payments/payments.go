package payments

import (
	"context"
	"time"
	"vmp/src/models"
	"vmp/src/sse"
	"vmp/src/types"

	"github.com/google/uuid"
)

// Gateway intent statuses the coordinator understands.
const (
	INTENT_SUCCEEDED               = "succeeded"
	INTENT_PROCESSING              = "processing"
	INTENT_CANCELED                = "canceled"
	INTENT_REQUIRES_PAYMENT_METHOD = "requires_payment_method"
)

// Intent is the gateway's view of a payment intent.
type Intent struct {
	ID           string `json:"id"`
	ClientSecret string `json:"client_secret"`
	Status       string `json:"status"`
}

// Gateway is the external payment provider. Amounts are in minor units.
type Gateway interface {
	CreateIntent(ctx context.Context, amount int64, currency string, metadata map[string]string) (Intent, error)
	CancelIntent(ctx context.Context, id string) (Intent, error)
	GetIntent(ctx context.Context, id string) (Intent, error)
}

type Ledger interface {
	Reserve(ctx context.Context, voucherID uuid.UUID, qty int) (bool, error)
	Release(ctx context.Context, voucherID uuid.UUID, qty int) error
	Available(ctx context.Context, voucherID uuid.UUID) (int, error)
}

type Repository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	GetVoucher(ctx context.Context, id uuid.UUID) (*models.Voucher, error)
	CreatePayment(ctx context.Context, payment *models.Payment) error
	GetPaymentByIntentID(ctx context.Context, intentID string) (*models.Payment, error)
	UpdatePaymentStatus(ctx context.Context, id uuid.UUID, status types.PaymentStatus) error
	ClaimReservation(ctx context.Context, id uuid.UUID) (int, bool, error)
	ListExpiredReservations(ctx context.Context, now time.Time, after types.ExpiryCursor, limit int) ([]models.Payment, error)
}

type Publisher interface {
	SendToUser(userID uint, t sse.EventType, data any)
	Broadcast(t sse.EventType, data any)
}

// MapGatewayStatus translates a gateway intent status. Anything the gateway
// may still move forward from stays PENDING.
func MapGatewayStatus(status string) types.PaymentStatus {
	switch status {
	case INTENT_SUCCEEDED:
		return types.PAYMENT_COMPLETED
	case INTENT_PROCESSING:
		return types.PAYMENT_PROCESSING
	case INTENT_CANCELED:
		return types.PAYMENT_CANCELLED
	case INTENT_REQUIRES_PAYMENT_METHOD:
		return types.PAYMENT_FAILED
	default:
		return types.PAYMENT_PENDING
	}
}
