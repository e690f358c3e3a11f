package db

import (
	"context"
	"errors"
	"fmt"
	"time"
	"vmp/src/models"
	"vmp/src/models/scopes"
	"vmp/src/types"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store is the GORM-backed repository for vouchers, payments, orders and
// device tokens. Every method joins the transaction carried by ctx, if any.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return WithTx(ctx, s.db, fn)
}

func (s *Store) conn(ctx context.Context) *gorm.DB {
	return Conn(ctx, s.db)
}

func notFound(err error, sentinel error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return sentinel
	}
	return err
}

func duplicate(err error) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("%w: %w", types.ErrDuplicate, err)
	}
	return err
}

func (s *Store) GetVoucher(ctx context.Context, id uuid.UUID) (*models.Voucher, error) {
	var voucher models.Voucher
	if err := s.conn(ctx).Where("id = ?", id).Take(&voucher).Error; err != nil {
		return nil, notFound(err, types.ErrVoucherNotFound)
	}
	return &voucher, nil
}

func (s *Store) CreatePayment(ctx context.Context, payment *models.Payment) error {
	return duplicate(s.conn(ctx).Create(payment).Error)
}

func (s *Store) GetPayment(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	var payment models.Payment
	if err := s.conn(ctx).Where("id = ?", id).Take(&payment).Error; err != nil {
		return nil, notFound(err, types.ErrPaymentNotFound)
	}
	return &payment, nil
}

func (s *Store) GetPaymentByIntentID(ctx context.Context, intentID string) (*models.Payment, error) {
	var payment models.Payment
	if err := s.conn(ctx).Where("intent_id = ?", intentID).Take(&payment).Error; err != nil {
		return nil, notFound(err, types.ErrPaymentNotFound)
	}
	return &payment, nil
}

func (s *Store) UpdatePaymentStatus(ctx context.Context, id uuid.UUID, status types.PaymentStatus) error {
	res := s.conn(ctx).Model(&models.Payment{}).Where("id = ?", id).Update("status", status)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return types.ErrPaymentNotFound
	}
	return nil
}

// ClaimReservation clears the reservation fields of a payment and returns the
// quantity they held. Only one caller can ever claim a given reservation; the
// rest get claimed == false.
func (s *Store) ClaimReservation(ctx context.Context, id uuid.UUID) (qty int, claimed bool, err error) {
	err = s.WithTx(ctx, func(ctx context.Context) error {
		tx := s.conn(ctx)
		var payment models.Payment
		if err := tx.
			Clauses(clause.Locking{Strength: "UPDATE"}).
			Select("id", "quantity_reserved").
			Where("id = ?", id).
			Take(&payment).Error; err != nil {
			return notFound(err, types.ErrPaymentNotFound)
		}
		if payment.QuantityReserved == nil {
			return nil
		}
		res := tx.Model(&models.Payment{}).
			Scopes(scopes.WithHeldReservation).
			Where("id = ?", id).
			Updates(map[string]any{
				"quantity_reserved":      nil,
				"reservation_expires_at": nil,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 1 {
			qty = *payment.QuantityReserved
			claimed = true
		}
		return nil
	})
	return qty, claimed, err
}

// ListExpiredReservations returns one page of expired reservations, oldest
// first, starting after the cursor.
func (s *Store) ListExpiredReservations(ctx context.Context, now time.Time, after types.ExpiryCursor, limit int) ([]models.Payment, error) {
	var payments []models.Payment
	err := s.conn(ctx).
		Scopes(scopes.WithExpiredReservation(now), scopes.AfterExpiryCursor(after)).
		Order("reservation_expires_at asc, id asc").
		Limit(limit).
		Find(&payments).Error
	return payments, err
}

func (s *Store) GetOrder(ctx context.Context, id uuid.UUID) (*models.PurchasedVoucher, error) {
	var order models.PurchasedVoucher
	if err := s.conn(ctx).Where("id = ?", id).Take(&order).Error; err != nil {
		return nil, notFound(err, types.ErrOrderNotFound)
	}
	return &order, nil
}

func (s *Store) GetOrderByPaymentID(ctx context.Context, paymentID uuid.UUID) (*models.PurchasedVoucher, error) {
	var order models.PurchasedVoucher
	if err := s.conn(ctx).Unscoped().Where("payment_id = ?", paymentID).Take(&order).Error; err != nil {
		return nil, notFound(err, types.ErrOrderNotFound)
	}
	return &order, nil
}

func (s *Store) GetOrderByCode(ctx context.Context, code string) (*models.PurchasedVoucher, error) {
	var order models.PurchasedVoucher
	if err := s.conn(ctx).Where("instance_code = ?", code).Take(&order).Error; err != nil {
		return nil, notFound(err, types.ErrOrderNotFound)
	}
	return &order, nil
}

func (s *Store) InstanceCodeExists(ctx context.Context, code string) (bool, error) {
	var count int64
	err := s.conn(ctx).Unscoped().Model(&models.PurchasedVoucher{}).Where("instance_code = ?", code).Count(&count).Error
	return count > 0, err
}

func (s *Store) ListOrdersByBuyer(ctx context.Context, buyerID uint) ([]models.PurchasedVoucher, error) {
	var orders []models.PurchasedVoucher
	err := s.conn(ctx).Scopes(scopes.WithBuyer(buyerID)).Order("created_at desc").Find(&orders).Error
	return orders, err
}

func (s *Store) CreateOrder(ctx context.Context, order *models.PurchasedVoucher) error {
	return duplicate(s.conn(ctx).Create(order).Error)
}

// RedeemOrder adds qty to quantity_used in a single conditional UPDATE. The
// status flips to USED and redeemed_at is stamped when the order becomes
// fully used. ok is false when the order changed underneath the caller.
func (s *Store) RedeemOrder(ctx context.Context, id uuid.UUID, qty int, now time.Time) (ok bool, err error) {
	res := s.conn(ctx).Model(&models.PurchasedVoucher{}).
		Where("id = ? AND status = ? AND quantity_used + ? <= quantity", id, types.ORDER_ACTIVE, qty).
		Updates(map[string]any{
			"quantity_used":    gorm.Expr("quantity_used + ?", qty),
			"status":           gorm.Expr("CASE WHEN quantity_used + ? >= quantity THEN ? ELSE status END", qty, types.ORDER_USED),
			"redeemed_at":      gorm.Expr("CASE WHEN quantity_used + ? >= quantity THEN ? ELSE redeemed_at END", qty, now),
			"last_redeemed_at": now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (s *Store) CreateRedemption(ctx context.Context, redemption *models.Redemption) error {
	return s.conn(ctx).Create(redemption).Error
}

func (s *Store) SetOrderArtifact(ctx context.Context, id uuid.UUID, key, url string) error {
	return s.conn(ctx).Model(&models.PurchasedVoucher{}).Where("id = ?", id).Updates(map[string]any{
		"qr_code_key": key,
		"qr_code_url": url,
	}).Error
}

func (s *Store) SaveDeviceToken(ctx context.Context, userID uint, token, platform string) error {
	device := models.DeviceToken{ID: uuid.New(), UserID: userID, Token: token, Platform: platform}
	return s.conn(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "token"}},
		DoUpdates: clause.AssignmentColumns([]string{"user_id", "platform", "updated_at"}),
	}).Create(&device).Error
}

func (s *Store) ListDeviceTokens(ctx context.Context, userIDs []uint) ([]string, error) {
	var tokens []string
	if len(userIDs) == 0 {
		return tokens, nil
	}
	err := s.conn(ctx).Model(&models.DeviceToken{}).Scopes(scopes.WithUserIDs(userIDs...)).Pluck("token", &tokens).Error
	return tokens, err
}

func (s *Store) DeleteDeviceTokens(ctx context.Context, tokens []string) error {
	if len(tokens) == 0 {
		return nil
	}
	return s.conn(ctx).Unscoped().Where("token IN (?)", tokens).Delete(&models.DeviceToken{}).Error
}
