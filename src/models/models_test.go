package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestVoucherDiscountPercent(t *testing.T) {
	cases := []struct {
		price, face int64
		want        int
	}{
		{1000, 2000, 50},
		{999, 1500, 33},
		{1500, 1500, 0},
		{2000, 1500, 0},
		{1000, 0, 0},
	}
	for _, tc := range cases {
		v := Voucher{SellingPrice: tc.price, FaceValue: tc.face}
		assert.Equal(t, tc.want, v.DiscountPercent(), "price=%d face=%d", tc.price, tc.face)
	}
}

func TestExpiry(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	later := now.Add(time.Hour)

	assert.False(t, (&Voucher{}).Expired(now))
	assert.False(t, (&Voucher{ExpiresAt: &later}).Expired(now))
	assert.True(t, (&Voucher{ExpiresAt: &now}).Expired(now))
	assert.True(t, (&PurchasedVoucher{ExpiresAt: &now}).Expired(later))
}

func TestOrderRemaining(t *testing.T) {
	o := PurchasedVoucher{Quantity: 5, QuantityUsed: 2}
	assert.Equal(t, 3, o.Remaining())
}

func TestPaymentReserved(t *testing.T) {
	qty := 2
	assert.True(t, (&Payment{QuantityReserved: &qty}).Reserved())
	assert.False(t, (&Payment{}).Reserved())
}
