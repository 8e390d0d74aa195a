package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"

	"storefront/internal/cart"
	"storefront/internal/checkout"
	"storefront/internal/config"
	"storefront/internal/database"
	"storefront/internal/discount"
	"storefront/internal/events"
	"storefront/internal/handlers"
	"storefront/internal/kvstore"
	"storefront/internal/logging"
	"storefront/internal/models"
	"storefront/internal/orders"
	"storefront/internal/payment"
	"storefront/internal/pricing"
	"storefront/internal/shipping"
	"storefront/internal/signer"
	"storefront/internal/store/memstore"
	"storefront/internal/store/mongostore"
)

// backend is everything the services need from persistence.
type backend interface {
	cart.Repository
	cart.Catalog
	checkout.Repository
	checkout.CartStore
	checkout.Inventory
	checkout.OrderWriter
	checkout.Transactor
	discount.Repository
	orders.Repository
	payment.Repository
	handlers.Pinger
}

func main() {
	config.Load()
	cfg := config.AppEnv

	log := logging.New(cfg.LogLevel)
	slog.SetDefault(log)

	if cfg.LinkSecret == "" || cfg.JWTSecret == "" {
		log.Error("LINK_SECRET and JWT_SECRET are required")
		os.Exit(1)
	}

	var (
		store       backend
		mongoClient *mongo.Client
	)
	switch cfg.StoreDriver {
	case "memory":
		log.Warn("using in-memory store, data is lost on restart")
		store = memstore.New()
	default:
		client, err := database.Connect(cfg.MongoURI)
		if err != nil {
			log.Error("mongo connect failed", "err", err)
			os.Exit(1)
		}
		mongoClient = client
		db := client.Database(cfg.DBName)
		log.Info("MongoDB connected", "db", db.Name())
		if err := database.EnsureIndexes(db, log); err != nil {
			log.Warn("index warning", "err", err)
		}
		store = mongostore.New(db)
	}

	var (
		kv  kvstore.Store
		rdb *redis.Client
	)
	switch cfg.KVDriver {
	case "memory":
		kv = kvstore.NewMemory(time.Now)
	default:
		client, err := database.ConnectRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			log.Error("redis connect failed", "err", err)
			os.Exit(1)
		}
		rdb = client
		kv = kvstore.NewRedis(client)
	}

	var publisher events.Publisher = events.LogPublisher{Log: log}
	var kafkaPublisher *events.KafkaPublisher
	if len(cfg.KafkaBrokers) > 0 {
		kafkaPublisher = events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		publisher = kafkaPublisher
		log.Info("publishing events to kafka", "brokers", strings.Join(cfg.KafkaBrokers, ","), "topic", cfg.KafkaTopic)
	}

	var carrier shipping.Gateway
	if cfg.CarrierURL != "" {
		origin := models.Address{Country: cfg.OriginCountry}
		carrier = shipping.NewCarrierClient(cfg.CarrierName, cfg.CarrierURL, cfg.CarrierAPIKey, origin, cfg.Currency, cfg.HTTPTimeout)
	}
	rates := shipping.NewRateService(carrier, shipping.FlatRate{
		Enabled:     cfg.FlatRateEnabled,
		Amount:      cfg.FlatRateAmount,
		FreeOver:    cfg.FlatRateFreeOver,
		ServiceName: cfg.FlatRateName,
	}, cfg.Currency, log)

	carts := cart.NewService(store, store, cfg.Currency, time.Now, log)
	manager := orders.NewManager(store, store, publisher, time.Now, log)
	orchestrator := checkout.NewOrchestrator(checkout.Deps{
		Carts:     carts,
		CartStore: store,
		Checkouts: store,
		Inventory: store,
		Discounts: discount.NewService(store, time.Now, log),
		Orders:    store,
		Shipping:  rates,
		Tx:        store,
		Events:    publisher,
		Tax: pricing.TaxConfig{
			Name:             cfg.TaxName,
			DefaultRate:      cfg.TaxRate,
			CategoryRates:    cfg.CategoryTaxRates,
			PricesIncludeTax: cfg.PricesIncludeTax,
			ShippingExempt:   cfg.ShippingTaxFree,
		},
		GramsPerUnit: cfg.GramsPerUnit,
		Now:          time.Now,
		Log:          log,
	})
	payments := payment.NewService(payment.Deps{
		Provider:    payment.NewHostedProvider(cfg.PaymentURL, cfg.PaymentAPIKey, cfg.PaymentSecret, cfg.HTTPTimeout),
		Payments:    store,
		Orders:      manager,
		Tx:          store,
		KV:          kv,
		Links:       signer.New(cfg.LinkSecret, cfg.PublicBaseURL, cfg.ResultLinkTTL, time.Now),
		Events:      publisher,
		CallbackURL: cfg.PublicBaseURL + "/payment/callback",
		Now:         time.Now,
		Log:         log,
	})

	r := gin.Default()
	handlers.Register(r, handlers.Services{
		Carts:            carts,
		Checkout:         orchestrator,
		Payments:         payments,
		Orders:           manager,
		Store:            store,
		Log:              log,
		Currency:         cfg.Currency,
		JWTSecret:        cfg.JWTSecret,
		SecureCookies:    strings.HasPrefix(cfg.PublicBaseURL, "https://"),
		SessionTTL:       30 * 24 * time.Hour,
		PaymentErrorPage: cfg.PaymentErrorPage,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Info("listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server failed", "err", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown", "err", err)
	}
	if kafkaPublisher != nil {
		if err := kafkaPublisher.Close(); err != nil {
			log.Error("kafka close", "err", err)
		}
	}
	if rdb != nil {
		_ = rdb.Close()
	}
	if mongoClient != nil {
		_ = mongoClient.Disconnect(shutdownCtx)
	}
}
