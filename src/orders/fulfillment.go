package orders

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"
	"vmp/src/clock"
	"vmp/src/config"
	"vmp/src/models"
	"vmp/src/sse"
	"vmp/src/types"
	"vmp/src/utils"

	"github.com/google/uuid"
)

const sideEffectTimeout = 2 * time.Minute

type Fulfillment struct {
	repo      Repository
	ledger    Ledger
	events    Publisher
	notifier  Notifier
	artifacts Artifacts
	sealer    *Sealer
	clock     clock.Clock

	newCode func() (string, error)
	wg      sync.WaitGroup
}

type Option func(*Fulfillment)

func WithNotifier(n Notifier) Option {
	return func(f *Fulfillment) { f.notifier = n }
}

func WithArtifacts(a Artifacts) Option {
	return func(f *Fulfillment) { f.artifacts = a }
}

// WithSealer enables redemption by scanned QR payload.
func WithSealer(s *Sealer) Option {
	return func(f *Fulfillment) { f.sealer = s }
}

func WithCodeGenerator(gen func() (string, error)) Option {
	return func(f *Fulfillment) { f.newCode = gen }
}

func NewFulfillment(repo Repository, ledger Ledger, events Publisher, clk clock.Clock, opts ...Option) *Fulfillment {
	f := &Fulfillment{
		repo:    repo,
		ledger:  ledger,
		events:  events,
		clock:   clk,
		newCode: utils.GenerateCode,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Wait blocks until every background task started so far has finished.
func (f *Fulfillment) Wait() {
	f.wg.Wait()
}

// CreateOrder consumes a completed payment's reservation and issues the
// purchased voucher. QR generation and push notifications run afterwards and
// never fail the order.
func (f *Fulfillment) CreateOrder(ctx context.Context, in CreateOrderInput) (*models.PurchasedVoucher, error) {
	if in.Quantity <= 0 {
		return nil, types.ErrInvalidQuantity
	}
	payment, err := f.repo.GetPayment(ctx, in.PaymentID)
	if err != nil {
		return nil, err
	}
	if payment.BuyerID != in.BuyerID || payment.VoucherID != in.VoucherID || payment.Quantity != in.Quantity {
		return nil, types.ErrPaymentMismatch
	}
	if payment.Status != types.PAYMENT_COMPLETED {
		return nil, types.ErrPaymentNotCompleted
	}
	if err := f.ensureUnused(ctx, payment.ID); err != nil {
		return nil, err
	}

	voucher, err := f.repo.GetVoucher(ctx, payment.VoucherID)
	if err != nil {
		return nil, err
	}
	now := f.clock.Now()
	if !voucher.IsActive {
		return nil, types.ErrVoucherInactive
	}
	if voucher.Expired(now) {
		return nil, types.ErrVoucherExpired
	}

	code, err := f.allocateCode(ctx)
	if err != nil {
		return nil, err
	}
	order := models.PurchasedVoucher{
		ID:              uuid.New(),
		BuyerID:         payment.BuyerID,
		VoucherID:       voucher.ID,
		PaymentID:       payment.ID,
		InstanceCode:    code,
		Quantity:        payment.Quantity,
		Status:          types.ORDER_ACTIVE,
		SellingPrice:    voucher.SellingPrice,
		FaceValue:       voucher.FaceValue,
		DiscountPercent: voucher.DiscountPercent(),
		Currency:        voucher.Currency,
		ExpiresAt:       voucher.ExpiresAt,
	}

	reReserved := false
	err = f.repo.WithTx(ctx, func(ctx context.Context) error {
		_, claimed, err := f.repo.ClaimReservation(ctx, payment.ID)
		if err != nil {
			return err
		}
		if !claimed {
			// the reaper got here first; take the stock again or give up
			ok, err := f.ledger.Reserve(ctx, voucher.ID, payment.Quantity)
			if err != nil {
				return err
			}
			if !ok {
				return types.ErrOutOfStock
			}
			reReserved = true
		}
		return f.repo.CreateOrder(ctx, &order)
	})
	if err != nil {
		if errors.Is(err, types.ErrDuplicate) {
			if uerr := f.ensureUnused(ctx, payment.ID); uerr != nil {
				return nil, uerr
			}
		}
		return nil, err
	}

	log.Printf("[Orders] Created order %s for payment %s (quantity=%d)\n", order.ID, payment.ID, order.Quantity)
	created := map[string]any{
		"order_id":      order.ID,
		"voucher_id":    order.VoucherID,
		"payment_id":    order.PaymentID,
		"instance_code": order.InstanceCode,
		"quantity":      order.Quantity,
	}
	f.events.SendToUser(order.BuyerID, sse.EVENT_ORDER_CREATED, created)
	f.events.SendToRole(string(types.ROLE_ADMIN), sse.EVENT_ORDER_CREATED, created)
	if reReserved {
		stock := map[string]any{"voucher_id": voucher.ID}
		if available, err := f.ledger.Available(ctx, voucher.ID); err == nil {
			stock["available_quantity"] = available
		}
		f.events.Broadcast(sse.EVENT_STOCK_UPDATED, stock)
	}

	title := voucher.Title
	f.background(ctx, func(ctx context.Context) {
		f.attachArtifact(ctx, &order, title)
		f.notify(ctx, order.BuyerID, "Voucher purchased", fmt.Sprintf("%s is ready to use", title), map[string]string{
			"order_id": order.ID.String(),
		})
	})
	return &order, nil
}

func (f *Fulfillment) ensureUnused(ctx context.Context, paymentID uuid.UUID) error {
	_, err := f.repo.GetOrderByPaymentID(ctx, paymentID)
	switch {
	case err == nil:
		return types.ErrPaymentAlreadyUsed
	case errors.Is(err, types.ErrOrderNotFound):
		return nil
	default:
		return err
	}
}

func (f *Fulfillment) allocateCode(ctx context.Context) (string, error) {
	for i := 0; i < config.CODE_ATTEMPTS; i++ {
		code, err := f.newCode()
		if err != nil {
			return "", err
		}
		exists, err := f.repo.InstanceCodeExists(ctx, code)
		if err != nil {
			return "", err
		}
		if !exists {
			return code, nil
		}
		log.Printf("[Orders] Redemption code collision, retrying (%d/%d)\n", i+1, config.CODE_ATTEMPTS)
	}
	return "", types.ErrCodeExhausted
}

func (f *Fulfillment) attachArtifact(ctx context.Context, order *models.PurchasedVoucher, title string) {
	if f.artifacts == nil {
		return
	}
	key, url, err := f.artifacts.Generate(ctx, order, title)
	if err != nil {
		log.Printf("[Orders] Could not generate QR code for order %s: %s\n", order.ID, err.Error())
		return
	}
	if err := f.repo.SetOrderArtifact(ctx, order.ID, key, url); err != nil {
		log.Printf("[Orders] Could not attach QR code to order %s: %s\n", order.ID, err.Error())
	}
}

func (f *Fulfillment) notify(ctx context.Context, userID uint, title, body string, data map[string]string) {
	if f.notifier == nil {
		return
	}
	res := f.notifier.NotifyUsers(ctx, []uint{userID}, title, body, data)
	if res.Failure > 0 {
		log.Printf("[Orders] Push to user %d: success=%d failure=%d\n", userID, res.Success, res.Failure)
	}
}

// background runs fn detached from the request. fn owns its error handling.
func (f *Fulfillment) background(ctx context.Context, fn func(ctx context.Context)) {
	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				log.Printf("[Orders] Background task panicked: %v\n", r)
			}
		}()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sideEffectTimeout)
		defer cancel()
		fn(ctx)
	}()
}

func (f *Fulfillment) Order(ctx context.Context, buyerID uint, id uuid.UUID) (*models.PurchasedVoucher, error) {
	order, err := f.repo.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	if order.BuyerID != buyerID {
		return nil, types.ErrForbidden
	}
	return order, nil
}

func (f *Fulfillment) ListOrders(ctx context.Context, buyerID uint) ([]models.PurchasedVoucher, error) {
	return f.repo.ListOrdersByBuyer(ctx, buyerID)
}

// RedeemVoucher uses part or all of an order's remaining quantity.
func (f *Fulfillment) RedeemVoucher(ctx context.Context, in RedeemInput) (*RedemptionResult, error) {
	if in.Quantity <= 0 {
		return nil, types.ErrInvalidQuantity
	}
	order, err := f.repo.GetOrderByCode(ctx, strings.ToUpper(strings.TrimSpace(in.InstanceCode)))
	if err != nil {
		return nil, err
	}
	now := f.clock.Now()
	if err := checkRedeemable(order, in, now); err != nil {
		return nil, err
	}

	err = f.repo.WithTx(ctx, func(ctx context.Context) error {
		ok, err := f.repo.RedeemOrder(ctx, order.ID, in.Quantity, now)
		if err != nil {
			return err
		}
		if !ok {
			// lost a race with another redemption; report what it left behind
			current, err := f.repo.GetOrder(ctx, order.ID)
			if err != nil {
				return err
			}
			if err := checkRedeemable(current, in, now); err != nil {
				return err
			}
			return types.ErrInsufficientQuantity
		}
		return f.repo.CreateRedemption(ctx, &models.Redemption{
			ID:         uuid.New(),
			OrderID:    order.ID,
			RedeemerID: in.RedeemerID,
			Quantity:   in.Quantity,
			RedeemedAt: now,
		})
	})
	if err != nil {
		return nil, err
	}

	updated, err := f.repo.GetOrder(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	log.Printf("[Orders] Redeemed %d of order %s (%d/%d used)\n", in.Quantity, updated.ID, updated.QuantityUsed, updated.Quantity)

	data := map[string]any{
		"order_id":           updated.ID,
		"instance_code":      updated.InstanceCode,
		"quantity_redeemed":  in.Quantity,
		"quantity_used":      updated.QuantityUsed,
		"quantity_remaining": updated.Remaining(),
		"status":             updated.Status,
	}
	f.events.SendToUser(updated.BuyerID, sse.EVENT_VOUCHER_REDEEMED, data)
	if in.RedeemerID != 0 && in.RedeemerID != updated.BuyerID {
		f.events.SendToUser(in.RedeemerID, sse.EVENT_REDEMPTION_CONFIRMED, data)
	}

	buyer := updated.BuyerID
	f.background(ctx, func(ctx context.Context) {
		f.notify(ctx, buyer, "Voucher redeemed", fmt.Sprintf("%d used, %d remaining", in.Quantity, updated.Remaining()), map[string]string{
			"order_id": updated.ID.String(),
		})
	})
	return &RedemptionResult{Order: *updated, Redeemed: in.Quantity}, nil
}

func checkRedeemable(order *models.PurchasedVoucher, in RedeemInput, now time.Time) error {
	switch {
	case order.BuyerID != in.BuyerID:
		return types.ErrForbidden
	case order.Expired(now):
		return types.ErrOrderExpired
	case order.Status == types.ORDER_USED:
		return types.ErrOrderAlreadyUsed
	case in.Quantity > order.Remaining():
		return types.ErrInsufficientQuantity
	}
	return nil
}

// RedeemScanned redeems the order whose sealed code was read from its QR image.
func (f *Fulfillment) RedeemScanned(ctx context.Context, sealed string, in RedeemInput) (*RedemptionResult, error) {
	if f.sealer == nil {
		return nil, types.ErrInvalidQRCode
	}
	code, err := f.sealer.Open(sealed)
	if err != nil {
		return nil, err
	}
	in.InstanceCode = code
	return f.RedeemVoucher(ctx, in)
}
