package main

import (
	"io"
	"log"
	"net/http"
	"vmp/src/boot"
	"vmp/src/middlewares"
	"vmp/src/types"

	"github.com/gin-gonic/gin"
)

func eventStreamHandlers(g *gin.RouterGroup, app *boot.App) *gin.RouterGroup {
	g.
		GET("/events/stream", func(ctx *gin.Context) {
			userId := ctx.GetUint("id")
			sub := app.Bus.CreateStream(ctx.Request.Context(), userId, ctx.GetString("role"))
			defer sub.Close()
			log.Printf("[SSE] User %d connected\n", userId)

			ctx.Header("Content-Type", "text/event-stream")
			ctx.Header("Cache-Control", "no-cache")
			ctx.Header("Connection", "keep-alive")
			ctx.Header("X-Accel-Buffering", "no")
			ctx.Stream(func(w io.Writer) bool {
				e, ok := <-sub.Events()
				if !ok {
					return false
				}
				ctx.SSEvent(string(e.Type), e)
				return true
			})
			log.Printf("[SSE] User %d disconnected\n", userId)
		}).
		GET("/events/clients", middlewares.RequireRole(types.ROLE_ADMIN), func(ctx *gin.Context) {
			clients := app.Bus.Clients()
			ctx.JSON(http.StatusOK, gin.H{
				"data":        clients,
				"count":       len(clients),
				"instance_id": app.Bus.InstanceID(),
				"distributed": app.Bus.Distributed(),
			})
		})
	return g
}

func deviceHandlers(g *gin.RouterGroup, app *boot.App) *gin.RouterGroup {
	g.POST("/devices", func(ctx *gin.Context) {
		var body types.RegisterDeviceRequestBody
		if err := ctx.ShouldBindJSON(&body); err != nil {
			abortWithValidation(ctx, err)
			return
		}
		if err := app.Devices.SaveDeviceToken(ctx.Request.Context(), ctx.GetUint("id"), body.Token, body.Platform); err != nil {
			abortWithError(ctx, err)
			return
		}
		ctx.Status(http.StatusNoContent)
	})
	return g
}
