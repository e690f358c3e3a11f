package main

import (
	"net/http"
	"vmp/src/boot"
	"vmp/src/orders"
	"vmp/src/types"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

func orderHandlers(g *gin.RouterGroup, app *boot.App) *gin.RouterGroup {
	g.
		POST("/orders", func(ctx *gin.Context) {
			var body types.CreateOrderRequestBody
			if err := ctx.ShouldBindJSON(&body); err != nil {
				abortWithValidation(ctx, err)
				return
			}
			order, err := app.Fulfillment.CreateOrder(ctx.Request.Context(), orders.CreateOrderInput{
				BuyerID:   ctx.GetUint("id"),
				PaymentID: body.PaymentID,
				VoucherID: body.VoucherID,
				Quantity:  body.Quantity,
			})
			if err != nil {
				abortWithError(ctx, err)
				return
			}
			ctx.JSON(http.StatusCreated, gin.H{"data": order})
		}).
		GET("/orders", func(ctx *gin.Context) {
			data, err := app.Fulfillment.ListOrders(ctx.Request.Context(), ctx.GetUint("id"))
			if err != nil {
				abortWithError(ctx, err)
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"data": data, "count": len(data)})
		}).
		GET("/orders/:id", func(ctx *gin.Context) {
			id, err := uuid.Parse(ctx.Param("id"))
			if err != nil {
				abortWithValidation(ctx, err)
				return
			}
			order, err := app.Fulfillment.Order(ctx.Request.Context(), ctx.GetUint("id"), id)
			if err != nil {
				abortWithError(ctx, err)
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"data": order})
		})
	return g
}

func redemptionHandlers(g *gin.RouterGroup, app *boot.App) *gin.RouterGroup {
	g.
		POST("/redemptions", func(ctx *gin.Context) {
			var body types.RedeemVoucherRequestBody
			if err := ctx.ShouldBindJSON(&body); err != nil {
				abortWithValidation(ctx, err)
				return
			}
			res, err := app.Fulfillment.RedeemVoucher(ctx.Request.Context(), redeemInput(ctx, body.BuyerID, body.InstanceCode, body.Quantity))
			if err != nil {
				abortWithError(ctx, err)
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"data": redemptionResponse(res)})
		}).
		POST("/redemptions/scan", func(ctx *gin.Context) {
			var body types.ScanVoucherRequestBody
			if err := ctx.ShouldBindJSON(&body); err != nil {
				abortWithValidation(ctx, err)
				return
			}
			res, err := app.Fulfillment.RedeemScanned(ctx.Request.Context(), body.Code, redeemInput(ctx, body.BuyerID, "", body.Quantity))
			if err != nil {
				abortWithError(ctx, err)
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"data": redemptionResponse(res)})
		})
	return g
}

// redeemInput treats the caller as the redeemer. Buyers redeeming their own
// voucher may omit buyer_id.
func redeemInput(ctx *gin.Context, buyerID uint, code string, qty int) orders.RedeemInput {
	redeemer := ctx.GetUint("id")
	if buyerID == 0 {
		buyerID = redeemer
	}
	return orders.RedeemInput{
		RedeemerID:   redeemer,
		BuyerID:      buyerID,
		InstanceCode: code,
		Quantity:     qty,
	}
}

func redemptionResponse(res *orders.RedemptionResult) types.APIResponseRedemption {
	return types.APIResponseRedemption{
		OrderID:           res.Order.ID,
		InstanceCode:      res.Order.InstanceCode,
		QuantityRedeemed:  res.Redeemed,
		QuantityUsed:      res.Order.QuantityUsed,
		QuantityRemaining: res.Order.Remaining(),
		Status:            res.Order.Status,
	}
}
