package boot

import (
	"context"
	"log"
	"os"
	"path"
	"vmp/src/clock"
	"vmp/src/config"
	"vmp/src/db"
	"vmp/src/ledger"
	"vmp/src/lib"
	"vmp/src/lib/aws"
	"vmp/src/models"
	"vmp/src/notify"
	"vmp/src/orders"
	"vmp/src/payments"
	"vmp/src/sse"

	"gorm.io/gorm"
)

func InitDb() *gorm.DB {
	db := db.GetDb()

	err := db.AutoMigrate(
		&models.User{},
		&models.DeviceToken{},
		&models.Voucher{},
		&models.Payment{},
		&models.PurchasedVoucher{},
		&models.Redemption{},
	)
	if err != nil {
		log.Fatalf("error migration: %s", err.Error())
	}

	return db
}

type DeviceRegistry interface {
	SaveDeviceToken(ctx context.Context, userID uint, token, platform string) error
}

// App holds the services behind the HTTP surface.
type App struct {
	Devices     DeviceRegistry
	Coordinator *payments.Coordinator
	Reaper      *payments.Reaper
	Fulfillment *orders.Fulfillment
	Notify      *notify.Service
	Bus         *sse.Bus
}

func InitApp(ctx context.Context, cfg config.Config, gdb *gorm.DB) *App {
	clk := clock.NewSystem()
	store := db.NewStore(gdb)
	stock := ledger.New(gdb)
	bus := InitBus(ctx, cfg)

	coordinator := payments.NewCoordinator(store, stock, lib.NewStripeGateway(lib.GetStripeClient()), bus, clk)
	notifier := InitNotify(store)
	opts := []orders.Option{orders.WithNotifier(notifier)}
	if sealer, err := orders.NewSealer(cfg.QRCSecret); err != nil {
		log.Printf("[Boot] API_QRC_SECRET is not a valid key, QR codes are disabled: %s\n", err.Error())
	} else {
		opts = append(opts, orders.WithSealer(sealer))
		if storage := InitStorage(cfg); storage != nil {
			opts = append(opts, orders.WithArtifacts(orders.NewQRArtifacts(sealer, storage, path.Join(os.TempDir(), "vmp-qrcodes"))))
		}
	}

	return &App{
		Devices:     store,
		Coordinator: coordinator,
		Reaper:      payments.NewReaper(coordinator, store, clk),
		Fulfillment: orders.NewFulfillment(store, stock, bus, clk, opts...),
		Notify:      notifier,
		Bus:         bus,
	}
}

// InitBus connects the event bus to its distributed channel. The bus keeps
// serving local streams when the channel cannot be reached.
func InitBus(ctx context.Context, cfg config.Config) *sse.Bus {
	var opts []sse.Option
	switch cfg.BusDriver {
	case config.BUS_REDIS:
		if rdb := lib.GetRedisClient(); rdb != nil {
			opts = append(opts, sse.WithChannel(lib.NewRedisChannel(rdb), cfg.SSEChannel))
		}
	case config.BUS_KAFKA:
		if _, err := lib.KafkaCreateTopics(cfg.KafkaBroker, cfg.SSEChannel); err != nil {
			log.Printf("[Boot] Could not create topic %s: %s\n", cfg.SSEChannel, err.Error())
		}
		ch, err := lib.NewKafkaChannel(cfg.KafkaBroker, cfg.InstanceID)
		if err != nil {
			log.Printf("[Boot] Kafka unavailable: %s\n", err.Error())
			break
		}
		opts = append(opts, sse.WithChannel(ch, cfg.SSEChannel))
	case config.BUS_MEMORY:
	default:
		log.Printf("[Boot] Unknown BUS_DRIVER %q\n", cfg.BusDriver)
	}
	bus := sse.NewBus(cfg.InstanceID, opts...)
	bus.Start(ctx)
	return bus
}

func InitNotify(store notify.TokenStore) *notify.Service {
	fcm, err := lib.GetFirebaseMessaging()
	if err != nil {
		log.Printf("[Boot] Push notifications disabled: %s\n", err.Error())
		return notify.NewService(store, nil)
	}
	return notify.NewService(store, lib.NewFCMDispatcher(fcm))
}

func InitStorage(cfg config.Config) orders.Storage {
	if cfg.AssetsBucket == "" {
		log.Println("[Boot] S3_ASSETS_BUCKET not set. QR codes will not be uploaded")
		return nil
	}
	client := aws.GetS3Client()
	if client == nil {
		return nil
	}
	return aws.NewS3Storage(client, cfg.AssetsBucket)
}

// InitScheduler starts the reservation reaper and the stream heartbeat.
func InitScheduler(app *App) error {
	sched, err := lib.GetScheduler()
	if err != nil {
		log.Println("An error has occurred. Check logs for info")
		return err
	}
	if _, err := lib.CreateCronJob("reservation-reaper", config.REAPER_INTERVAL, func() {
		res := app.Reaper.Sweep(context.Background())
		if res.Expired > 0 {
			log.Printf("[Reaper] expired=%d released=%d failed=%d\n", res.Expired, res.Released, res.Failed)
		}
	}); err != nil {
		log.Printf("Error scheduling reaper: %s\n", err.Error())
		return err
	}
	if _, err := lib.CreateCronJob("sse-heartbeat", config.HEARTBEAT_INTERVAL, app.Bus.Heartbeat); err != nil {
		log.Printf("Error scheduling heartbeat: %s\n", err.Error())
		return err
	}
	log.Println("Jobs in queue:", len(sched.Jobs()))
	sched.Start()
	return nil
}

func StopScheduler() {
	sched, err := lib.GetScheduler()
	if err != nil {
		log.Println("Error retrieving Scheduler. Check logs for info")
		return
	}
	err = sched.Shutdown()
	if err != nil {
		log.Println("An error has occurred while stopping Scheduler. Check logs for info")
		return
	}
}
