package types

import "errors"

var (
	ErrInvalidQuantity = errors.New("quantity must be greater than zero")
	ErrAmountMismatch  = errors.New("amount does not match selling price times quantity")
	ErrInvalidCurrency = errors.New("unsupported currency")
	ErrInvalidQRCode   = errors.New("invalid redemption code")

	ErrVoucherNotFound = errors.New("voucher not found")
	ErrPaymentNotFound = errors.New("payment not found")
	ErrOrderNotFound   = errors.New("order not found")

	ErrVoucherInactive       = errors.New("voucher is not active")
	ErrVoucherNotForSale     = errors.New("voucher is not for sale")
	ErrVoucherExpired        = errors.New("voucher has expired")
	ErrPaymentNotCompleted   = errors.New("payment is not completed")
	ErrPaymentMismatch       = errors.New("payment does not match order request")
	ErrPaymentNotCancellable = errors.New("completed payments cannot be cancelled")

	ErrPaymentAlreadyUsed = errors.New("payment already used for an order")
	ErrCodeExhausted      = errors.New("could not allocate a unique redemption code")
	ErrDuplicate          = errors.New("duplicate record")

	ErrOutOfStock = errors.New("insufficient stock")

	ErrGatewayFailure = errors.New("payment gateway failure")

	ErrForbidden            = errors.New("forbidden")
	ErrOrderExpired         = errors.New("voucher order has expired")
	ErrOrderAlreadyUsed     = errors.New("voucher order is fully redeemed")
	ErrInsufficientQuantity = errors.New("redeem quantity exceeds remaining quantity")
)
