package main

import (
	"errors"
	"log"
	"net/http"
	"vmp/src/types"

	"github.com/gin-gonic/gin"
)

type apiError struct {
	status int
	code   string
}

var errorTable = []struct {
	err error
	apiError
}{
	{types.ErrInvalidQuantity, apiError{http.StatusBadRequest, "validation"}},
	{types.ErrAmountMismatch, apiError{http.StatusBadRequest, "validation"}},
	{types.ErrInvalidCurrency, apiError{http.StatusBadRequest, "validation"}},
	{types.ErrInvalidQRCode, apiError{http.StatusBadRequest, "validation"}},
	{types.ErrPaymentMismatch, apiError{http.StatusBadRequest, "invalid_state"}},
	{types.ErrOutOfStock, apiError{http.StatusBadRequest, "out_of_stock"}},
	{types.ErrVoucherInactive, apiError{http.StatusBadRequest, "invalid_state"}},
	{types.ErrVoucherNotForSale, apiError{http.StatusBadRequest, "invalid_state"}},
	{types.ErrPaymentNotCompleted, apiError{http.StatusBadRequest, "invalid_state"}},
	{types.ErrPaymentNotCancellable, apiError{http.StatusBadRequest, "invalid_state"}},
	{types.ErrVoucherExpired, apiError{http.StatusBadRequest, "expired"}},
	{types.ErrOrderExpired, apiError{http.StatusBadRequest, "expired"}},
	{types.ErrOrderAlreadyUsed, apiError{http.StatusBadRequest, "already_used"}},
	{types.ErrInsufficientQuantity, apiError{http.StatusBadRequest, "insufficient_quantity"}},
	{types.ErrForbidden, apiError{http.StatusForbidden, "forbidden"}},
	{types.ErrVoucherNotFound, apiError{http.StatusNotFound, "not_found"}},
	{types.ErrPaymentNotFound, apiError{http.StatusNotFound, "not_found"}},
	{types.ErrOrderNotFound, apiError{http.StatusNotFound, "not_found"}},
	{types.ErrPaymentAlreadyUsed, apiError{http.StatusConflict, "conflict"}},
	{types.ErrDuplicate, apiError{http.StatusConflict, "conflict"}},
	{types.ErrCodeExhausted, apiError{http.StatusConflict, "conflict"}},
	{types.ErrGatewayFailure, apiError{http.StatusBadGateway, "gateway_failure"}},
}

func lookupError(err error) (apiError, bool) {
	for _, e := range errorTable {
		if errors.Is(err, e.err) {
			return e.apiError, true
		}
	}
	return apiError{http.StatusInternalServerError, "internal_error"}, false
}

// abortWithError renders err as {"error", "code"}. Unknown errors are logged
// and hidden from the client.
func abortWithError(ctx *gin.Context, err error) {
	ae, ok := lookupError(err)
	msg := err.Error()
	if ok && ae.code == "gateway_failure" {
		msg = types.ErrGatewayFailure.Error()
	}
	if !ok {
		log.Printf("[API] %s %s: %s\n", ctx.Request.Method, ctx.FullPath(), err.Error())
		msg = "internal server error"
	}
	ctx.AbortWithStatusJSON(ae.status, gin.H{"error": msg, "code": ae.code})
}

func abortWithValidation(ctx *gin.Context, err error) {
	ctx.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": "validation"})
}
