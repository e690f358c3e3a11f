package main

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path"
	"regexp"
	"strconv"
	"syscall"
	"time"
	"vmp/src/boot"
	"vmp/src/config"
	"vmp/src/middlewares"

	"github.com/covalenthq/lumberjack"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	_ "github.com/joho/godotenv/autoload"
)

const (
	apiPrefix string = "/api/v1"
)

const shutdownTimeout = 10 * time.Second

var currencyPattern = regexp.MustCompile(`^[A-Za-z]{3}$`)

// ISO 4217 style three letter code, any case.
var currencyValidatorFunc validator.Func = func(fl validator.FieldLevel) bool {
	code, ok := fl.Field().Interface().(string)
	return ok && currencyPattern.MatchString(code)
}

func registerValidators() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		v.RegisterValidation("currency", currencyValidatorFunc)
	}
}

func setupRouter() *gin.Engine {
	router := gin.Default()
	router.Use(middlewares.SecureHeaders)
	router.GET("/", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, "ok")
	})
	return router
}

func maintenanceModeMiddleware(g *gin.Engine) *gin.Engine {
	g.Use(func(ctx *gin.Context) {
		mm := os.Getenv("MAINTENANCE_MODE")
		if mm == "" {
			return
		}
		on, err := strconv.ParseBool(mm)
		if err != nil || on {
			err := errors.New("server is under maintenance")
			log.Println(err.Error())
			ctx.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": err.Error(), "code": "maintenance"})
			return
		}
	})
	return g
}

func apiv1Group(g *gin.Engine) *gin.RouterGroup {
	apiv1 := g.Group(apiPrefix)
	return apiv1
}

// authorizedRoutes mounts every endpoint that needs a bearer token.
func authorizedRoutes(g *gin.Engine, app *boot.App, jwtKey []byte) *gin.RouterGroup {
	authorized := apiv1Group(g)
	authorized.Use(middlewares.AuthMiddleware(jwtKey))
	paymentHandlers(authorized, app)
	orderHandlers(authorized, app)
	redemptionHandlers(authorized, app)
	eventStreamHandlers(authorized, app)
	deviceHandlers(authorized, app)
	return authorized
}

func corsMiddleware(cfg config.Config) gin.HandlerFunc {
	if cfg.Env == "local" {
		return cors.Default()
	}
	cc := cors.DefaultConfig()
	cc.AllowMethods = append(cc.AllowMethods, "GET", "POST", "HEAD")
	cc.AllowHeaders = append(cc.AllowHeaders, "Origin", "Authorization", "Cache-Control", "Last-Event-ID")
	cc.AllowOriginFunc = func(origin string) bool {
		if cfg.AppHost == "" {
			return false
		}
		match, _ := regexp.MatchString(cfg.AppHost, origin)
		if match {
			return true
		}
		match, _ = regexp.MatchString("app:mobile", origin)
		return match
	}
	cc.AllowCredentials = true
	cc.AllowAllOrigins = false
	return cors.New(cc)
}

func initLogger() {
	cwd, _ := os.Getwd()
	logsDir := path.Join(cwd, "logs")
	if err := os.MkdirAll(logsDir, 0o755); err != nil {
		log.Printf("Could not create %s: %s\n", logsDir, err.Error())
		return
	}
	serverLogs := path.Join(logsDir, "server.log")
	apiLogs := path.Join(logsDir, "api.log")
	gin.ForceConsoleColor()

	f, _ := os.Create(apiLogs)
	gin.DefaultWriter = io.MultiWriter(f, os.Stdout)
	log.SetOutput(&lumberjack.Logger{
		Filename:   serverLogs,
		MaxSize:    500,
		MaxBackups: 3,
		MaxAge:     30,
		Compress:   true,
	})
}

func main() {
	apiEnv := os.Getenv("API_ENV")
	if apiEnv == "local" {
		cwd, _ := os.Getwd()
		if err := godotenv.Load(path.Join(cwd, ".env")); err != nil {
			panic(err)
		}
	}
	initLogger()
	cfg := config.Load()
	if cfg.JWTSecret == "" {
		log.Fatalln("JWT_SECRET is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gdb := boot.InitDb()
	app := boot.InitApp(ctx, cfg, gdb)
	if err := boot.InitScheduler(app); err != nil {
		log.Fatalf("Could not start scheduler: %s\n", err.Error())
	}

	registerValidators()
	router := setupRouter()
	router.Use(corsMiddleware(cfg))
	router = maintenanceModeMiddleware(router)
	stripeWebhookRoute(router, app, cfg.StripeWebhookSecret)
	authorizedRoutes(router, app, []byte(cfg.JWTSecret))

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}
	go func() {
		log.Printf("Listening on %s (instance %s)\n", srv.Addr, cfg.InstanceID)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down server...")
	boot.StopScheduler()
	if err := app.Bus.Close(); err != nil {
		log.Printf("Error closing event bus: %s\n", err.Error())
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %s\n", err.Error())
	}
	app.Fulfillment.Wait()
	log.Println("Server exiting")
}
