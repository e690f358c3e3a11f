package main

import (
	"errors"
	"io"
	"log"
	"net/http"
	"vmp/src/boot"
	"vmp/src/types"

	"github.com/gin-gonic/gin"
	"github.com/stripe/stripe-go/v82/webhook"
	"github.com/tidwall/gjson"
)

func stripeWebhookRoute(g *gin.Engine, app *boot.App, whsecret string) *gin.RouterGroup {
	apiv1 := apiv1Group(g)
	apiv1.POST("/webhook/stripe", func(ctx *gin.Context) {
		payload, err := io.ReadAll(ctx.Request.Body)
		if err != nil {
			log.Printf("Error reading request body: %s\n", err.Error())
			ctx.Status(http.StatusServiceUnavailable)
			return
		}
		event, err := webhook.ConstructEvent(payload, ctx.GetHeader("Stripe-Signature"), whsecret)
		if err != nil {
			log.Printf("Error verifying webhook signature: %s\n", err.Error())
			ctx.Status(http.StatusBadRequest)
			return
		}
		log.Printf("[StripeEvent] %s\n", event.Type)
		switch event.Type {
		case "payment_intent.succeeded",
			"payment_intent.processing",
			"payment_intent.canceled",
			"payment_intent.payment_failed":
			intentId := gjson.GetBytes(event.Data.Raw, "id").String()
			if intentId == "" {
				log.Printf("[Stripe] Event %s has no payment intent id\n", event.ID)
				break
			}
			res, err := app.Coordinator.SyncIntentStatus(ctx.Request.Context(), intentId)
			if errors.Is(err, types.ErrPaymentNotFound) {
				log.Printf("[Stripe] Ignoring unknown payment intent %s\n", intentId)
				break
			}
			if err != nil {
				log.Printf("[Stripe] Error syncing payment intent %s: %s\n", intentId, err.Error())
				ctx.Status(http.StatusInternalServerError)
				return
			}
			log.Printf("[Stripe] Payment intent %s is %s\n", intentId, res.Status)
		default:
			log.Printf("[Stripe] Unhandled event type: %s\n", event.Type)
		}
		ctx.Status(http.StatusOK)
	})
	return apiv1
}
