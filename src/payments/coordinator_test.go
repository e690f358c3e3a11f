package payments_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
	"vmp/src/clock"
	"vmp/src/models"
	"vmp/src/payments"
	"vmp/src/sse"
	"vmp/src/testutil"
	"vmp/src/types"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	store       *testutil.Store
	gateway     *testutil.Gateway
	events      *testutil.Events
	clock       *clock.Manual
	coordinator *payments.Coordinator
}

func newFixture() *fixture {
	f := &fixture{
		store:   testutil.NewStore(),
		gateway: testutil.NewGateway(),
		events:  &testutil.Events{},
		clock:   clock.NewManual(epoch),
	}
	f.coordinator = payments.NewCoordinator(f.store, f.store, f.gateway, f.events, f.clock)
	return f
}

func (f *fixture) buy(t *testing.T, voucher models.Voucher, qty int) *payments.PaymentIntentResult {
	t.Helper()
	res, err := f.coordinator.CreateReservedIntent(context.Background(), payments.CreateIntentInput{
		BuyerID:   7,
		VoucherID: voucher.ID,
		Quantity:  qty,
		Amount:    voucher.SellingPrice * int64(qty),
		Currency:  "USD",
	})
	require.NoError(t, err)
	return res
}

func TestMapGatewayStatus(t *testing.T) {
	tests := []struct {
		status string
		want   types.PaymentStatus
	}{
		{"succeeded", types.PAYMENT_COMPLETED},
		{"processing", types.PAYMENT_PROCESSING},
		{"canceled", types.PAYMENT_CANCELLED},
		{"requires_payment_method", types.PAYMENT_FAILED},
		{"requires_action", types.PAYMENT_PENDING},
		{"requires_confirmation", types.PAYMENT_PENDING},
		{"", types.PAYMENT_PENDING},
	}
	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			assert.Equal(t, tt.want, payments.MapGatewayStatus(tt.status))
		})
	}
}

func TestCreateReservedIntent(t *testing.T) {
	f := newFixture()
	voucher := f.store.AddVoucher(5, 1500)

	res := f.buy(t, voucher, 2)

	assert.Equal(t, "pi_1", res.Intent.ID)
	assert.NotEmpty(t, res.Intent.ClientSecret)
	assert.Equal(t, 3, f.store.Voucher(voucher.ID).AvailableQuantity)

	saved := f.store.PaymentByID(res.Payment.ID)
	assert.Equal(t, types.PAYMENT_PENDING, saved.Status)
	assert.Equal(t, int64(3000), saved.Amount)
	assert.Equal(t, "usd", saved.Currency)
	require.NotNil(t, saved.QuantityReserved)
	assert.Equal(t, 2, *saved.QuantityReserved)
	require.NotNil(t, saved.ReservationExpiresAt)
	assert.Equal(t, epoch.Add(30*time.Minute), *saved.ReservationExpiresAt)
	stock := f.events.Of(sse.EVENT_STOCK_UPDATED)
	require.Len(t, stock, 1)
	assert.Equal(t, map[string]any{"voucher_id": voucher.ID, "available_quantity": 3}, stock[0].Data)
}

func TestCreateReservedIntentRejects(t *testing.T) {
	expired := epoch.Add(-time.Hour)
	tests := []struct {
		name    string
		mutate  func(v *models.Voucher)
		qty     int
		amount  func(v models.Voucher) int64
		curr    string
		wantErr error
	}{
		{name: "zero quantity", qty: 0, wantErr: types.ErrInvalidQuantity},
		{name: "inactive", mutate: func(v *models.Voucher) { v.IsActive = false }, wantErr: types.ErrVoucherInactive},
		{name: "promo", mutate: func(v *models.Voucher) { v.Type = types.VOUCHER_PROMO }, wantErr: types.ErrVoucherNotForSale},
		{name: "expired", mutate: func(v *models.Voucher) { v.ExpiresAt = &expired }, wantErr: types.ErrVoucherExpired},
		{name: "currency", curr: "eur", wantErr: types.ErrInvalidCurrency},
		{name: "amount", amount: func(v models.Voucher) int64 { return v.SellingPrice - 1 }, wantErr: types.ErrAmountMismatch},
		{name: "out of stock", qty: 6, wantErr: types.ErrOutOfStock},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			voucher := f.store.AddVoucher(5, 1000)
			if tt.mutate != nil {
				tt.mutate(&voucher)
				f.store.PutVoucher(voucher)
			}
			in := payments.CreateIntentInput{BuyerID: 7, VoucherID: voucher.ID, Quantity: 1, Currency: "usd"}
			if tt.qty != 0 || tt.wantErr == types.ErrInvalidQuantity {
				in.Quantity = tt.qty
			}
			in.Amount = voucher.SellingPrice * int64(in.Quantity)
			if tt.amount != nil {
				in.Amount = tt.amount(voucher)
			}
			if tt.curr != "" {
				in.Currency = tt.curr
			}

			_, err := f.coordinator.CreateReservedIntent(context.Background(), in)

			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, 5, f.store.Voucher(voucher.ID).AvailableQuantity)
			assert.EqualValues(t, 0, f.gateway.Creates.Load())
		})
	}
}

func TestCreateReservedIntentUnknownVoucher(t *testing.T) {
	f := newFixture()
	_, err := f.coordinator.CreateReservedIntent(context.Background(), payments.CreateIntentInput{
		BuyerID: 1, VoucherID: uuid.New(), Quantity: 1, Amount: 100, Currency: "usd",
	})
	assert.ErrorIs(t, err, types.ErrVoucherNotFound)
}

func TestConcurrentPurchasesNeverOversell(t *testing.T) {
	f := newFixture()
	voucher := f.store.AddVoucher(5, 1000)

	var (
		wg         sync.WaitGroup
		mu         sync.Mutex
		succeeded  int
		outOfStock int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(buyer uint) {
			defer wg.Done()
			_, err := f.coordinator.CreateReservedIntent(context.Background(), payments.CreateIntentInput{
				BuyerID: buyer, VoucherID: voucher.ID, Quantity: 1, Amount: 1000, Currency: "usd",
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, types.ErrOutOfStock):
				outOfStock++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(uint(i + 1))
	}
	wg.Wait()

	assert.Equal(t, 5, succeeded)
	assert.Equal(t, 5, outOfStock)
	assert.Equal(t, 0, f.store.Voucher(voucher.ID).AvailableQuantity)
}

func TestGatewayFailureRestoresStock(t *testing.T) {
	f := newFixture()
	voucher := f.store.AddVoucher(3, 500)
	f.gateway.CreateErr = errors.New("card_declined")

	_, err := f.coordinator.CreateReservedIntent(context.Background(), payments.CreateIntentInput{
		BuyerID: 7, VoucherID: voucher.ID, Quantity: 2, Amount: 1000, Currency: "usd",
	})

	assert.ErrorIs(t, err, types.ErrGatewayFailure)
	assert.Equal(t, 3, f.store.Voucher(voucher.ID).AvailableQuantity)
	assert.Empty(t, f.events.Of(sse.EVENT_STOCK_UPDATED))
}

func TestSaveFailureCancelsIntent(t *testing.T) {
	f := newFixture()
	voucher := f.store.AddVoucher(3, 500)
	f.store.FailCreatePayment = errors.New("connection reset")

	_, err := f.coordinator.CreateReservedIntent(context.Background(), payments.CreateIntentInput{
		BuyerID: 7, VoucherID: voucher.ID, Quantity: 1, Amount: 500, Currency: "usd",
	})

	assert.Error(t, err)
	assert.Equal(t, 3, f.store.Voucher(voucher.ID).AvailableQuantity)
	assert.EqualValues(t, 1, f.gateway.Cancels.Load())
}

func TestSyncSucceededKeepsStock(t *testing.T) {
	f := newFixture()
	voucher := f.store.AddVoucher(5, 1000)
	res := f.buy(t, voucher, 1)
	f.gateway.SetStatus(res.Intent.ID, payments.INTENT_SUCCEEDED)

	out, err := f.coordinator.SyncIntentStatus(context.Background(), res.Intent.ID)

	require.NoError(t, err)
	assert.True(t, out.Completed)
	assert.Equal(t, types.PAYMENT_COMPLETED, out.Status)
	assert.Equal(t, 4, f.store.Voucher(voucher.ID).AvailableQuantity)
	saved := f.store.PaymentByID(res.Payment.ID)
	assert.Equal(t, types.PAYMENT_COMPLETED, saved.Status)
	assert.True(t, saved.Reserved())
	assert.Len(t, f.events.Of(sse.EVENT_PAYMENT_COMPLETED), 1)
	assert.Empty(t, f.events.Of(sse.EVENT_RESERVATION_RELEASED))
}

func TestSyncProcessingKeepsStock(t *testing.T) {
	f := newFixture()
	voucher := f.store.AddVoucher(5, 1000)
	res := f.buy(t, voucher, 2)
	f.gateway.SetStatus(res.Intent.ID, payments.INTENT_PROCESSING)

	out, err := f.coordinator.SyncIntentStatus(context.Background(), res.Intent.ID)

	require.NoError(t, err)
	assert.False(t, out.Completed)
	assert.Equal(t, types.PAYMENT_PROCESSING, out.Status)
	assert.Equal(t, 3, f.store.Voucher(voucher.ID).AvailableQuantity)
	changes := f.events.Of(sse.EVENT_PAYMENT_STATUS_CHANGED)
	require.Len(t, changes, 1)
	assert.Equal(t, uint(7), changes[0].UserID)
}

func TestSyncCanceledReleasesStock(t *testing.T) {
	f := newFixture()
	voucher := f.store.AddVoucher(5, 1000)
	res := f.buy(t, voucher, 2)
	f.gateway.SetStatus(res.Intent.ID, payments.INTENT_CANCELED)

	out, err := f.coordinator.SyncIntentStatus(context.Background(), res.Intent.ID)

	require.NoError(t, err)
	assert.Equal(t, types.PAYMENT_CANCELLED, out.Status)
	assert.Equal(t, 5, f.store.Voucher(voucher.ID).AvailableQuantity)
	saved := f.store.PaymentByID(res.Payment.ID)
	assert.False(t, saved.Reserved())
	released := f.events.Of(sse.EVENT_RESERVATION_RELEASED)
	require.Len(t, released, 1)
	assert.Equal(t, uint(7), released[0].UserID)

	// a second sync finds nothing left to release
	_, err = f.coordinator.SyncIntentStatus(context.Background(), res.Intent.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, f.store.Voucher(voucher.ID).AvailableQuantity)
	assert.Len(t, f.events.Of(sse.EVENT_RESERVATION_RELEASED), 1)
}

func TestSyncGatewayError(t *testing.T) {
	f := newFixture()
	voucher := f.store.AddVoucher(5, 1000)
	res := f.buy(t, voucher, 1)
	f.gateway.GetErr = errors.New("timeout")

	_, err := f.coordinator.SyncIntentStatus(context.Background(), res.Intent.ID)

	assert.ErrorIs(t, err, types.ErrGatewayFailure)
	assert.Equal(t, types.PAYMENT_PENDING, f.store.PaymentByID(res.Payment.ID).Status)
}

func TestSyncUnknownIntent(t *testing.T) {
	f := newFixture()
	_, err := f.coordinator.SyncIntentStatus(context.Background(), "pi_missing")
	assert.ErrorIs(t, err, types.ErrPaymentNotFound)
}

func TestCancelIntent(t *testing.T) {
	f := newFixture()
	voucher := f.store.AddVoucher(5, 1000)
	res := f.buy(t, voucher, 3)

	require.NoError(t, f.coordinator.CancelIntent(context.Background(), res.Intent.ID))

	assert.Equal(t, 5, f.store.Voucher(voucher.ID).AvailableQuantity)
	assert.Equal(t, types.PAYMENT_CANCELLED, f.store.PaymentByID(res.Payment.ID).Status)
	assert.EqualValues(t, 1, f.gateway.Cancels.Load())
}

func TestCancelCompletedPayment(t *testing.T) {
	f := newFixture()
	voucher := f.store.AddVoucher(5, 1000)
	res := f.buy(t, voucher, 1)
	f.gateway.SetStatus(res.Intent.ID, payments.INTENT_SUCCEEDED)
	_, err := f.coordinator.SyncIntentStatus(context.Background(), res.Intent.ID)
	require.NoError(t, err)

	err = f.coordinator.CancelIntent(context.Background(), res.Intent.ID)

	assert.ErrorIs(t, err, types.ErrPaymentNotCancellable)
	assert.EqualValues(t, 0, f.gateway.Cancels.Load())
	assert.Equal(t, 4, f.store.Voucher(voucher.ID).AvailableQuantity)
}

func TestReleaseReservationIsIdempotent(t *testing.T) {
	f := newFixture()
	voucher := f.store.AddVoucher(10, 1000)
	res := f.buy(t, voucher, 4)
	require.Equal(t, 6, f.store.Voucher(voucher.ID).AvailableQuantity)

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		total int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p := f.store.PaymentByID(res.Payment.ID)
			qty, err := f.coordinator.ReleaseReservation(context.Background(), &p, sse.EVENT_RESERVATION_RELEASED)
			assert.NoError(t, err)
			mu.Lock()
			total += qty
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 4, total)
	assert.Equal(t, 10, f.store.Voucher(voucher.ID).AvailableQuantity)
	assert.Len(t, f.events.Of(sse.EVENT_RESERVATION_RELEASED), 1)
}

func TestReleaseReservationUnknownPayment(t *testing.T) {
	f := newFixture()
	qty, err := f.coordinator.ReleaseReservation(context.Background(), &models.Payment{ID: uuid.New()}, sse.EVENT_RESERVATION_RELEASED)
	assert.NoError(t, err)
	assert.Zero(t, qty)
}

func TestLastUnitGoesToOneBuyer(t *testing.T) {
	f := newFixture()
	voucher := f.store.AddVoucher(1, 800)

	errs := make(chan error, 2)
	for buyer := uint(1); buyer <= 2; buyer++ {
		go func(buyer uint) {
			_, err := f.coordinator.CreateReservedIntent(context.Background(), payments.CreateIntentInput{
				BuyerID: buyer, VoucherID: voucher.ID, Quantity: 1, Amount: 800, Currency: "usd",
			})
			errs <- err
		}(buyer)
	}
	first, second := <-errs, <-errs

	if first == nil {
		assert.ErrorIs(t, second, types.ErrOutOfStock)
	} else {
		assert.ErrorIs(t, first, types.ErrOutOfStock)
		assert.NoError(t, second)
	}
	assert.Equal(t, 0, f.store.Voucher(voucher.ID).AvailableQuantity)
}
