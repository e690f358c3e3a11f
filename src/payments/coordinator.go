package payments

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"vmp/src/clock"
	"vmp/src/config"
	"vmp/src/models"
	"vmp/src/sse"
	"vmp/src/types"

	"github.com/google/uuid"
)

// Coordinator ties a gateway payment intent to a stock reservation and
// settles the reservation when the intent reaches a terminal state.
type Coordinator struct {
	repo    Repository
	ledger  Ledger
	gateway Gateway
	events  Publisher
	clock   clock.Clock
}

func NewCoordinator(repo Repository, ledger Ledger, gateway Gateway, events Publisher, clk clock.Clock) *Coordinator {
	return &Coordinator{
		repo:    repo,
		ledger:  ledger,
		gateway: gateway,
		events:  events,
		clock:   clk,
	}
}

type CreateIntentInput struct {
	BuyerID   uint
	VoucherID uuid.UUID
	Quantity  int
	Amount    int64
	Currency  string
}

type PaymentIntentResult struct {
	Payment models.Payment
	Intent  Intent
}

type SyncResult struct {
	Completed bool
	Status    types.PaymentStatus
}

// CreateReservedIntent checks the purchase against the voucher, reserves the
// stock and opens a gateway intent for it. Stock taken for an intent that
// could not be opened or recorded is given back before the error returns.
func (c *Coordinator) CreateReservedIntent(ctx context.Context, in CreateIntentInput) (*PaymentIntentResult, error) {
	if in.Quantity <= 0 {
		return nil, types.ErrInvalidQuantity
	}
	voucher, err := c.repo.GetVoucher(ctx, in.VoucherID)
	if err != nil {
		return nil, err
	}
	now := c.clock.Now()
	switch {
	case !voucher.IsActive:
		return nil, types.ErrVoucherInactive
	case voucher.Type != types.VOUCHER_SALE:
		return nil, types.ErrVoucherNotForSale
	case voucher.Expired(now):
		return nil, types.ErrVoucherExpired
	}
	currency := strings.ToLower(in.Currency)
	if voucher.Currency != "" && currency != strings.ToLower(voucher.Currency) {
		return nil, types.ErrInvalidCurrency
	}
	if in.Amount != voucher.SellingPrice*int64(in.Quantity) {
		return nil, types.ErrAmountMismatch
	}

	ok, err := c.ledger.Reserve(ctx, voucher.ID, in.Quantity)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, types.ErrOutOfStock
	}

	intent, err := c.gateway.CreateIntent(ctx, in.Amount, currency, map[string]string{
		"voucher_id": voucher.ID.String(),
		"buyer_id":   strconv.FormatUint(uint64(in.BuyerID), 10),
		"quantity":   strconv.Itoa(in.Quantity),
	})
	if err != nil {
		log.Printf("[Payments] Gateway rejected intent for voucher %s: %s\n", voucher.ID, err.Error())
		c.undoReserve(ctx, voucher.ID, in.Quantity)
		return nil, fmt.Errorf("%w: %w", types.ErrGatewayFailure, err)
	}

	reserved := in.Quantity
	expiresAt := now.Add(config.RESERVATION_TIMEOUT)
	payment := models.Payment{
		ID:                   uuid.New(),
		BuyerID:              in.BuyerID,
		VoucherID:            voucher.ID,
		IntentID:             intent.ID,
		Amount:               in.Amount,
		Currency:             currency,
		Quantity:             in.Quantity,
		Status:               types.PAYMENT_PENDING,
		QuantityReserved:     &reserved,
		ReservationExpiresAt: &expiresAt,
	}
	if err := c.repo.CreatePayment(ctx, &payment); err != nil {
		log.Printf("[Payments] Error saving payment for intent %s: %s\n", intent.ID, err.Error())
		c.undoReserve(ctx, voucher.ID, in.Quantity)
		if _, cerr := c.gateway.CancelIntent(context.WithoutCancel(ctx), intent.ID); cerr != nil {
			log.Printf("[Payments] Could not cancel orphaned intent %s: %s\n", intent.ID, cerr.Error())
		}
		return nil, err
	}

	c.stockUpdated(ctx, voucher.ID)
	return &PaymentIntentResult{Payment: payment, Intent: intent}, nil
}

// stockUpdated tells every client the voucher's stock moved. The count is
// left out when it cannot be read.
func (c *Coordinator) stockUpdated(ctx context.Context, voucherID uuid.UUID) {
	data := map[string]any{"voucher_id": voucherID}
	if available, err := c.ledger.Available(ctx, voucherID); err != nil {
		log.Printf("[Payments] Error reading stock of voucher %s: %s\n", voucherID, err.Error())
	} else {
		data["available_quantity"] = available
	}
	c.events.Broadcast(sse.EVENT_STOCK_UPDATED, data)
}

// undoReserve gives back stock taken for an intent that never got recorded.
func (c *Coordinator) undoReserve(ctx context.Context, voucherID uuid.UUID, qty int) {
	if err := c.ledger.Release(context.WithoutCancel(ctx), voucherID, qty); err != nil {
		log.Printf("[Payments] Error releasing %d units of voucher %s: %s\n", qty, voucherID, err.Error())
	}
}

func (c *Coordinator) Payment(ctx context.Context, intentID string) (*models.Payment, error) {
	return c.repo.GetPaymentByIntentID(ctx, intentID)
}

// SyncIntentStatus polls the gateway and records the mapped status. Stock is
// released only when the payment failed or was cancelled.
func (c *Coordinator) SyncIntentStatus(ctx context.Context, intentID string) (SyncResult, error) {
	payment, err := c.repo.GetPaymentByIntentID(ctx, intentID)
	if err != nil {
		return SyncResult{}, err
	}
	intent, err := c.gateway.GetIntent(ctx, intentID)
	if err != nil {
		return SyncResult{}, fmt.Errorf("%w: %w", types.ErrGatewayFailure, err)
	}
	status := MapGatewayStatus(intent.Status)
	if err := c.apply(ctx, payment, status); err != nil {
		return SyncResult{}, err
	}
	return SyncResult{Completed: status == types.PAYMENT_COMPLETED, Status: status}, nil
}

// CancelIntent cancels the intent at the gateway and releases its stock.
// Completed payments cannot be cancelled.
func (c *Coordinator) CancelIntent(ctx context.Context, intentID string) error {
	payment, err := c.repo.GetPaymentByIntentID(ctx, intentID)
	if err != nil {
		return err
	}
	if payment.Status == types.PAYMENT_COMPLETED {
		return types.ErrPaymentNotCancellable
	}
	if _, err := c.gateway.CancelIntent(ctx, intentID); err != nil {
		return fmt.Errorf("%w: %w", types.ErrGatewayFailure, err)
	}
	return c.apply(ctx, payment, types.PAYMENT_CANCELLED)
}

func (c *Coordinator) apply(ctx context.Context, payment *models.Payment, status types.PaymentStatus) error {
	if status != payment.Status {
		if err := c.repo.UpdatePaymentStatus(ctx, payment.ID, status); err != nil {
			return err
		}
		previous := payment.Status
		payment.Status = status
		c.events.SendToUser(payment.BuyerID, sse.EVENT_PAYMENT_STATUS_CHANGED, map[string]any{
			"payment_id": payment.ID,
			"intent_id":  payment.IntentID,
			"previous":   previous,
			"status":     status,
		})
		if status == types.PAYMENT_COMPLETED {
			c.events.SendToUser(payment.BuyerID, sse.EVENT_PAYMENT_COMPLETED, map[string]any{
				"payment_id": payment.ID,
				"voucher_id": payment.VoucherID,
				"quantity":   payment.Quantity,
			})
		}
	}
	if status.Releases() {
		if _, err := c.ReleaseReservation(ctx, payment, sse.EVENT_RESERVATION_RELEASED); err != nil {
			return err
		}
	}
	return nil
}

// ReleaseReservation clears the payment's reservation and returns its stock to
// the ledger in one transaction. It returns the released quantity, which is
// zero when another caller already settled the reservation.
func (c *Coordinator) ReleaseReservation(ctx context.Context, payment *models.Payment, reason sse.EventType) (int, error) {
	released := 0
	err := c.repo.WithTx(ctx, func(ctx context.Context) error {
		qty, claimed, err := c.repo.ClaimReservation(ctx, payment.ID)
		if err != nil || !claimed {
			return err
		}
		if err := c.ledger.Release(ctx, payment.VoucherID, qty); err != nil {
			return err
		}
		released = qty
		return nil
	})
	if err != nil {
		if errors.Is(err, types.ErrPaymentNotFound) {
			return 0, nil
		}
		return 0, err
	}
	if released > 0 {
		payment.QuantityReserved = nil
		payment.ReservationExpiresAt = nil
		c.events.SendToUser(payment.BuyerID, reason, map[string]any{
			"payment_id": payment.ID,
			"voucher_id": payment.VoucherID,
			"quantity":   released,
		})
		c.stockUpdated(ctx, payment.VoucherID)
	}
	return released, nil
}
