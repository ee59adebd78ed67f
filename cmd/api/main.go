package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ksmithweb/campusmarket-backend/api/routes"
	"github.com/ksmithweb/campusmarket-backend/internal/bids"
	"github.com/ksmithweb/campusmarket-backend/internal/cart"
	"github.com/ksmithweb/campusmarket-backend/internal/listings"
	"github.com/ksmithweb/campusmarket-backend/internal/notifications"
	"github.com/ksmithweb/campusmarket-backend/internal/orders"
	"github.com/ksmithweb/campusmarket-backend/internal/payments"
	"github.com/ksmithweb/campusmarket-backend/internal/settlement"
	"github.com/ksmithweb/campusmarket-backend/internal/users"
	stripewebhook "github.com/ksmithweb/campusmarket-backend/internal/webhooks/stripe"
	"github.com/ksmithweb/campusmarket-backend/pkg/config"
	"github.com/ksmithweb/campusmarket-backend/pkg/db"
	"github.com/ksmithweb/campusmarket-backend/pkg/logger"
	"github.com/ksmithweb/campusmarket-backend/pkg/metrics"
	"github.com/ksmithweb/campusmarket-backend/pkg/migrate"
	"github.com/ksmithweb/campusmarket-backend/pkg/redis"
	pkgstripe "github.com/ksmithweb/campusmarket-backend/pkg/stripe"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	stripeClient, err := pkgstripe.NewClient(context.Background(), cfg.Stripe, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap stripe", err)
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	paymentMetrics := metrics.NewPaymentMetrics(registry)

	gormDB := dbClient.DB()
	bidRepo := bids.NewRepository(gormDB)
	listingRepo := listings.NewRepository(gormDB)
	orderRepo := orders.NewRepository(gormDB)
	cartRepo := cart.NewRepository(gormDB)
	paymentRepo := payments.NewRepository(gormDB)
	notificationsRepo := notifications.NewRepository(gormDB)
	userRepo := users.NewRepository(gormDB)

	notificationsSvc, err := notifications.NewService(notificationsRepo, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create notifications service", err)
		os.Exit(1)
	}

	assembler, err := orders.NewAssembler(dbClient, orderRepo, cartRepo)
	if err != nil {
		logg.Error(context.Background(), "failed to create order assembler", err)
		os.Exit(1)
	}

	bidSvc, err := bids.NewService(bids.ServiceParams{
		TxRunner:    dbClient,
		BidRepo:     bidRepo,
		ListingRepo: listingRepo,
		Assembler:   assembler,
		Notifier:    notificationsSvc,
		Logger:      logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create bid service", err)
		os.Exit(1)
	}

	reconciler, err := payments.NewReconciler(paymentRepo, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create reconciler", err)
		os.Exit(1)
	}

	settlementSvc, err := settlement.NewService(settlement.ServiceParams{
		TxRunner:    dbClient,
		Reconciler:  reconciler,
		OrderRepo:   orderRepo,
		BidRepo:     bidRepo,
		ListingRepo: listingRepo,
		Notifier:    notificationsSvc,
		Metrics:     paymentMetrics,
		Logger:      logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create settlement service", err)
		os.Exit(1)
	}

	gateway := payments.NewGatewayClient(stripeClient)
	checkoutSvc, err := payments.NewCheckoutService(payments.CheckoutParams{
		TxRunner:    dbClient,
		Gateway:     gateway,
		Assembler:   assembler,
		OrderRepo:   orderRepo,
		BidRepo:     bidRepo,
		ListingRepo: listingRepo,
		PaymentRepo: paymentRepo,
		Stripe:      cfg.Stripe,
		Logger:      logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create checkout service", err)
		os.Exit(1)
	}

	webhookSvc, err := stripewebhook.NewService(stripewebhook.ServiceParams{
		Settlement: settlementSvc,
		Gateway:    gateway,
		Metrics:    paymentMetrics,
		Logger:     logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook service", err)
		os.Exit(1)
	}

	webhookGuard, err := stripewebhook.NewIdempotencyGuard(redisClient, cfg.Webhooks.EventTTL, "stripe")
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook guard", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.Deps{
			Config:               cfg,
			Logger:               logg,
			BidService:           bidSvc,
			CheckoutService:      checkoutSvc,
			NotificationsService: notificationsSvc,
			UserRepo:             userRepo,
			StripeClient:         stripeClient,
			StripeWebhookService: webhookSvc,
			StripeWebhookGuard:   webhookGuard,
			MetricsGatherer:      registry,
		}),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
