package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"tour-booking/internal/analytics"
	"tour-booking/internal/auth"
	"tour-booking/internal/availability"
	"tour-booking/internal/booking"
	"tour-booking/internal/booking/booking_api"
	"tour-booking/internal/booking/db"
	"tour-booking/internal/config"
	"tour-booking/internal/database"
	"tour-booking/internal/database/migrations"
	"tour-booking/internal/events"
	"tour-booking/internal/kafka"
	"tour-booking/internal/logger"
	"tour-booking/internal/metrics"
	"tour-booking/internal/notify"
	"tour-booking/internal/payment"
	paymentredis "tour-booking/internal/payment/redis"
	"tour-booking/internal/utils"
	"tour-booking/internal/voucher"

	"github.com/joho/godotenv"
)

func main() {
	log := logger.NewLogger("booking-service")
	defer log.Close()

	log.Info("APP", "Starting Booking Service initialization")

	if err := godotenv.Load(); err != nil {
		log.Warn("CONFIG", ".env file not found, using environment variables")
	} else {
		log.Info("CONFIG", "Loaded environment variables from .env file")
	}
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info("APP", "Verifying database connections")
	bunDB, err := database.ConnectPostgres(ctx, cfg.Database, log)
	if err != nil {
		log.Fatal("DATABASE", err.Error())
	}
	defer bunDB.Close()

	if cfg.Database.AutoMigrate {
		runner := migrations.NewRunner(bunDB, migrations.MigrateOptions{
			AutoMigrate: true,
			SeedData:    cfg.Database.SeedData,
		}, log)
		if err := runner.RunMigrations(); err != nil {
			log.Fatal("MIGRATION", fmt.Sprintf("Failed to run migrations: %v", err))
		}
	}

	// redis is optional: the database dedupe and a lock-free intent path cover for it
	var (
		locker payment.IntentLocker
		marker payment.EventMarker
	)
	redisClient, err := database.ConnectRedis(ctx, cfg.Redis, log)
	if err != nil {
		log.Warn("REDIS", fmt.Sprintf("Running without Redis: %v", err))
	} else {
		defer redisClient.Close()
		store := paymentredis.NewRedis(redisClient, log, cfg.Redis.EventMarkTTL)
		locker, marker = store, store
	}

	m := metrics.New()
	broker := events.NewBroker()
	publisher := events.Fanout{m}
	var mailer payment.Mailer = notify.LogMailer{Logger: log}

	if cfg.Kafka.Enabled {
		log.Info("KAFKA", fmt.Sprintf("Using Kafka brokers: %v", cfg.Kafka.Brokers))
		topics := []string{cfg.Kafka.Topics.BookingEvents, cfg.Kafka.Topics.EmailRequests}
		if err := kafka.EnsureTopicsExist(cfg.Kafka.Brokers, topics, log); err != nil {
			log.Warn("KAFKA", fmt.Sprintf("Topic creation might have failed: %v", err))
		}

		eventProducer := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topics.BookingEvents, log)
		defer eventProducer.Close()
		emailProducer := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topics.EmailRequests, log)
		defer emailProducer.Close()

		publisher = append(publisher, events.NewKafkaPublisher(eventProducer))
		mailer = notify.NewKafkaMailer(emailProducer, log)

		// every instance reads the whole topic so its SSE clients see events
		// produced by any instance
		groupID := "booking-sse-" + utils.GenerateUUID()
		consumer := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.Topics.BookingEvents, groupID, log)
		defer consumer.Close()
		go func() {
			if err := consumer.Run(ctx, events.Relay(broker)); err != nil {
				log.Error("KAFKA", fmt.Sprintf("SSE relay stopped: %v", err))
			}
		}()
		log.Info("KAFKA", "Kafka producers and SSE relay initialized")
	} else {
		log.Warn("KAFKA", "Kafka disabled, events are delivered in-process only")
		publisher = append(publisher, broker)
	}

	var gateway payment.Gateway
	if cfg.Stripe.SecretKey == "" {
		log.Warn("STRIPE", "STRIPE_SECRET_KEY not set, using the in-memory payment gateway")
		gateway = payment.NewFakeGateway()
	} else if gateway, err = payment.NewStripeGateway(cfg.Stripe.SecretKey, cfg.Stripe.Timeout, log); err != nil {
		log.Fatal("STRIPE", err.Error())
	}
	if cfg.Stripe.WebhookSecret == "" {
		log.Warn("STRIPE", "STRIPE_WEBHOOK_SECRET not set, webhooks will be rejected")
	}

	store := db.New(bunDB)
	ledger := availability.New(bunDB)
	payments := payment.NewService(store, gateway, locker, log, cfg.Stripe.PublishableKey, cfg.Stripe.PaymentMethods)
	bookings := booking.NewService(store, ledger, publisher, payments, log)
	reconciler := payment.NewReconciler(store, marker, mailer, publisher, log, cfg.Stripe.WebhookSecret, cfg.Voucher.BaseURL)

	sweeper := booking.NewSweeper(store, payments, publisher, log, cfg.Booking.PendingTTL)
	sweeper.Expired = m.ExpiredBookings
	go sweeper.Run(ctx, cfg.Booking.SweepInterval)

	var verifiers auth.Chain
	if cfg.Auth.OIDCIssuer != "" {
		v, err := auth.NewOIDCVerifier(ctx, cfg.Auth.OIDCIssuer)
		if err != nil {
			log.Error("AUTH", fmt.Sprintf("OIDC discovery failed for %s: %v", cfg.Auth.OIDCIssuer, err))
		} else {
			verifiers = append(verifiers, v)
		}
	}
	if cfg.Auth.AdminJWTSecret != "" {
		verifiers = append(verifiers, auth.NewHMACVerifier(cfg.Auth.AdminJWTSecret))
	}
	if len(verifiers) == 0 {
		log.Warn("AUTH", "No token verifier configured, admin routes will reject every request")
	}

	handler := &booking_api.Handler{
		Bookings:        bookings,
		Slots:           ledger,
		Payments:        payments,
		Reconciler:      reconciler,
		Analytics:       analytics.NewService(bunDB),
		Vouchers:        voucher.NewGenerator(cfg.Voucher.BaseURL),
		Broker:          broker,
		Metrics:         m,
		Logger:          log,
		MaxWebhookBytes: cfg.Server.MaxWebhookBytes,
	}

	log.Info("HTTP", "Setting up router and middleware")
	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      handler.Routes(auth.RequireRole(verifiers, cfg.Auth.AdminRole, log)),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: 0, // SSE streams stay open
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("HTTP", fmt.Sprintf("🚀 Booking Service running on %s", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP", fmt.Sprintf("HTTP server error: %v", err))
		}
	}()

	log.Info("APP", "Service started successfully, waiting for shutdown signal")
	<-ctx.Done()

	log.Info("APP", "Shutdown signal received, initiating graceful shutdown")
	ctxShutdown, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctxShutdown); err != nil {
		log.Error("HTTP", fmt.Sprintf("Server Shutdown Failed: %v", err))
		os.Exit(1)
	}
	log.Info("HTTP", "✅ Booking Service shutdown complete")
}
