// Package testutil holds in-memory stand-ins for the storage, ledger, gateway
// and event bus so service tests run without infrastructure.
package testutil

import (
	"bytes"
	"context"
	"sort"
	"sync"
	"time"
	"vmp/src/models"
	"vmp/src/types"

	"github.com/google/uuid"
)

type txKey struct{}

// Store is an in-memory repository and stock ledger. Transactions are
// serialized and WithTx restores the previous state when fn fails.
type Store struct {
	txMu        sync.Mutex
	mu          sync.Mutex
	vouchers    map[uuid.UUID]models.Voucher
	payments    map[uuid.UUID]models.Payment
	orders      map[uuid.UUID]models.PurchasedVoucher
	redemptions []models.Redemption
	devices     map[string]models.DeviceToken

	// FailClaim makes ClaimReservation fail for the given payment ids.
	FailClaim map[uuid.UUID]error
	// FailCreatePayment makes CreatePayment fail.
	FailCreatePayment error
}

func NewStore() *Store {
	return &Store{
		vouchers:  map[uuid.UUID]models.Voucher{},
		payments:  map[uuid.UUID]models.Payment{},
		orders:    map[uuid.UUID]models.PurchasedVoucher{},
		devices:   map[string]models.DeviceToken{},
		FailClaim: map[uuid.UUID]error{},
	}
}

// AddVoucher stores a sellable voucher with the given stock and unit price.
func (s *Store) AddVoucher(available int, price int64) models.Voucher {
	v := models.Voucher{
		ID:                uuid.New(),
		StoreID:           1,
		Title:             "Dinner for two",
		Type:              types.VOUCHER_SALE,
		TotalQuantity:     available,
		AvailableQuantity: available,
		SellingPrice:      price,
		FaceValue:         price * 2,
		Currency:          "usd",
		IsActive:          true,
	}
	s.PutVoucher(v)
	return v
}

func (s *Store) PutVoucher(v models.Voucher) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vouchers[v.ID] = v
}

func (s *Store) PutPayment(p models.Payment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payments[p.ID] = p
}

func (s *Store) PutOrder(o models.PurchasedVoucher) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders[o.ID] = o
}

func (s *Store) Voucher(id uuid.UUID) models.Voucher {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.vouchers[id]
}

func (s *Store) PaymentByID(id uuid.UUID) models.Payment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.payments[id]
}

func (s *Store) Orders() []models.PurchasedVoucher {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.PurchasedVoucher, 0, len(s.orders))
	for _, o := range s.orders {
		out = append(out, o)
	}
	return out
}

func (s *Store) Redemptions() []models.Redemption {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Redemption(nil), s.redemptions...)
}

func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(txKey{}) != nil {
		return fn(ctx)
	}
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	vouchers := cloneMap(s.vouchers)
	payments := cloneMap(s.payments)
	orders := cloneMap(s.orders)
	redemptions := len(s.redemptions)
	s.mu.Unlock()

	if err := fn(context.WithValue(ctx, txKey{}, true)); err != nil {
		s.mu.Lock()
		s.vouchers = vouchers
		s.payments = payments
		s.orders = orders
		s.redemptions = s.redemptions[:redemptions]
		s.mu.Unlock()
		return err
	}
	return nil
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (s *Store) Reserve(_ context.Context, voucherID uuid.UUID, qty int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.vouchers[voucherID]
	if !ok || qty <= 0 || v.AvailableQuantity < qty {
		return false, nil
	}
	v.AvailableQuantity -= qty
	s.vouchers[voucherID] = v
	return true, nil
}

func (s *Store) Release(_ context.Context, voucherID uuid.UUID, qty int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.vouchers[voucherID]
	if !ok || qty <= 0 {
		return nil
	}
	v.AvailableQuantity = min(v.AvailableQuantity+qty, v.TotalQuantity)
	s.vouchers[voucherID] = v
	return nil
}

func (s *Store) Available(_ context.Context, voucherID uuid.UUID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.vouchers[voucherID].AvailableQuantity, nil
}

func (s *Store) GetVoucher(_ context.Context, id uuid.UUID) (*models.Voucher, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.vouchers[id]
	if !ok {
		return nil, types.ErrVoucherNotFound
	}
	return &v, nil
}

func (s *Store) CreatePayment(_ context.Context, payment *models.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailCreatePayment != nil {
		return s.FailCreatePayment
	}
	for _, p := range s.payments {
		if p.IntentID == payment.IntentID {
			return types.ErrDuplicate
		}
	}
	s.payments[payment.ID] = *payment
	return nil
}

func (s *Store) GetPayment(_ context.Context, id uuid.UUID) (*models.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payments[id]
	if !ok {
		return nil, types.ErrPaymentNotFound
	}
	return &p, nil
}

func (s *Store) GetPaymentByIntentID(_ context.Context, intentID string) (*models.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.payments {
		if p.IntentID == intentID {
			return &p, nil
		}
	}
	return nil, types.ErrPaymentNotFound
}

func (s *Store) UpdatePaymentStatus(_ context.Context, id uuid.UUID, status types.PaymentStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payments[id]
	if !ok {
		return types.ErrPaymentNotFound
	}
	p.Status = status
	s.payments[id] = p
	return nil
}

func (s *Store) ClaimReservation(_ context.Context, id uuid.UUID) (int, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.FailClaim[id]; err != nil {
		return 0, false, err
	}
	p, ok := s.payments[id]
	if !ok {
		return 0, false, types.ErrPaymentNotFound
	}
	if p.QuantityReserved == nil {
		return 0, false, nil
	}
	qty := *p.QuantityReserved
	p.QuantityReserved = nil
	p.ReservationExpiresAt = nil
	s.payments[id] = p
	return qty, true, nil
}

func (s *Store) ListExpiredReservations(_ context.Context, now time.Time, after types.ExpiryCursor, limit int) ([]models.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Payment
	for _, p := range s.payments {
		if p.QuantityReserved == nil || p.ReservationExpiresAt == nil || p.ReservationExpiresAt.After(now) {
			continue
		}
		if !after.IsZero() && !expiresAfter(p, after) {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		return expiresAfter(out[j], types.ExpiryCursor{ExpiresAt: *out[i].ReservationExpiresAt, ID: out[i].ID})
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// expiresAfter orders like postgres compares (reservation_expires_at, id).
func expiresAfter(p models.Payment, c types.ExpiryCursor) bool {
	if !p.ReservationExpiresAt.Equal(c.ExpiresAt) {
		return p.ReservationExpiresAt.After(c.ExpiresAt)
	}
	return bytes.Compare(p.ID[:], c.ID[:]) > 0
}

func (s *Store) GetOrder(_ context.Context, id uuid.UUID) (*models.PurchasedVoucher, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, types.ErrOrderNotFound
	}
	return &o, nil
}

func (s *Store) GetOrderByPaymentID(_ context.Context, paymentID uuid.UUID) (*models.PurchasedVoucher, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.orders {
		if o.PaymentID == paymentID {
			return &o, nil
		}
	}
	return nil, types.ErrOrderNotFound
}

func (s *Store) GetOrderByCode(_ context.Context, code string) (*models.PurchasedVoucher, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.orders {
		if o.InstanceCode == code {
			return &o, nil
		}
	}
	return nil, types.ErrOrderNotFound
}

func (s *Store) InstanceCodeExists(_ context.Context, code string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.orders {
		if o.InstanceCode == code {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) ListOrdersByBuyer(_ context.Context, buyerID uint) ([]models.PurchasedVoucher, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.PurchasedVoucher
	for _, o := range s.orders {
		if o.BuyerID == buyerID {
			out = append(out, o)
		}
	}
	return out, nil
}

func (s *Store) CreateOrder(_ context.Context, order *models.PurchasedVoucher) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.orders {
		if o.PaymentID == order.PaymentID || o.InstanceCode == order.InstanceCode {
			return types.ErrDuplicate
		}
	}
	s.orders[order.ID] = *order
	return nil
}

func (s *Store) RedeemOrder(_ context.Context, id uuid.UUID, qty int, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok || o.Status != types.ORDER_ACTIVE || o.QuantityUsed+qty > o.Quantity {
		return false, nil
	}
	o.QuantityUsed += qty
	o.LastRedeemedAt = &now
	if o.QuantityUsed >= o.Quantity {
		o.Status = types.ORDER_USED
		o.RedeemedAt = &now
	}
	s.orders[id] = o
	return true, nil
}

func (s *Store) CreateRedemption(_ context.Context, r *models.Redemption) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.redemptions = append(s.redemptions, *r)
	return nil
}

func (s *Store) SetOrderArtifact(_ context.Context, id uuid.UUID, key, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return types.ErrOrderNotFound
	}
	o.QRCodeKey = key
	o.QRCodeURL = url
	s.orders[id] = o
	return nil
}

func (s *Store) SaveDeviceToken(_ context.Context, userID uint, token, platform string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.devices[token] = models.DeviceToken{ID: uuid.New(), UserID: userID, Token: token, Platform: platform}
	return nil
}

func (s *Store) ListDeviceTokens(_ context.Context, userIDs []uint) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	wanted := map[uint]bool{}
	for _, id := range userIDs {
		wanted[id] = true
	}
	var tokens []string
	for _, d := range s.devices {
		if wanted[d.UserID] {
			tokens = append(tokens, d.Token)
		}
	}
	sort.Strings(tokens)
	return tokens, nil
}

func (s *Store) DeleteDeviceTokens(_ context.Context, tokens []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range tokens {
		delete(s.devices, t)
	}
	return nil
}
