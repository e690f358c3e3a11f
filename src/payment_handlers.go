package main

import (
	"net/http"
	"vmp/src/boot"
	"vmp/src/payments"
	"vmp/src/types"

	"github.com/gin-gonic/gin"
)

func paymentHandlers(g *gin.RouterGroup, app *boot.App) *gin.RouterGroup {
	g.
		POST("/payments/intents", func(ctx *gin.Context) {
			var body types.CreatePaymentIntentRequestBody
			if err := ctx.ShouldBindJSON(&body); err != nil {
				abortWithValidation(ctx, err)
				return
			}
			res, err := app.Coordinator.CreateReservedIntent(ctx.Request.Context(), payments.CreateIntentInput{
				BuyerID:   ctx.GetUint("id"),
				VoucherID: body.VoucherID,
				Quantity:  body.Quantity,
				Amount:    body.Amount,
				Currency:  body.Currency,
			})
			if err != nil {
				abortWithError(ctx, err)
				return
			}
			out := types.APIResponsePaymentIntent{
				PaymentID:    res.Payment.ID,
				IntentID:     res.Intent.ID,
				ClientSecret: res.Intent.ClientSecret,
				Status:       res.Payment.Status,
				Amount:       res.Payment.Amount,
				Currency:     res.Payment.Currency,
			}
			if res.Payment.ReservationExpiresAt != nil {
				out.ReservationExpiresAt = *res.Payment.ReservationExpiresAt
			}
			ctx.JSON(http.StatusCreated, gin.H{"data": out})
		}).
		POST("/payments/intents/:id/sync", func(ctx *gin.Context) {
			var params types.PaymentIntentURIParams
			if err := ctx.ShouldBindUri(&params); err != nil {
				abortWithValidation(ctx, err)
				return
			}
			if err := authorizePayment(ctx, app, params.IntentID); err != nil {
				abortWithError(ctx, err)
				return
			}
			res, err := app.Coordinator.SyncIntentStatus(ctx.Request.Context(), params.IntentID)
			if err != nil {
				abortWithError(ctx, err)
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"data": types.APIResponseSyncStatus{Completed: res.Completed, Status: res.Status}})
		}).
		POST("/payments/intents/:id/cancel", func(ctx *gin.Context) {
			var params types.PaymentIntentURIParams
			if err := ctx.ShouldBindUri(&params); err != nil {
				abortWithValidation(ctx, err)
				return
			}
			if err := authorizePayment(ctx, app, params.IntentID); err != nil {
				abortWithError(ctx, err)
				return
			}
			if err := app.Coordinator.CancelIntent(ctx.Request.Context(), params.IntentID); err != nil {
				abortWithError(ctx, err)
				return
			}
			ctx.Status(http.StatusNoContent)
		})
	return g
}

// authorizePayment lets the buyer who opened the intent, or an admin, act on it.
func authorizePayment(ctx *gin.Context, app *boot.App, intentID string) error {
	payment, err := app.Coordinator.Payment(ctx.Request.Context(), intentID)
	if err != nil {
		return err
	}
	if payment.BuyerID != ctx.GetUint("id") && ctx.GetString("role") != string(types.ROLE_ADMIN) {
		return types.ErrForbidden
	}
	return nil
}
