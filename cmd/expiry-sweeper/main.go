// Command expiry-sweeper cancels abandoned pending_payment bookings. It runs
// once by default, for cron; -loop keeps it running on the sweep interval.
package main

import (
	"context"
	"flag"
	"fmt"
	"os/signal"
	"syscall"

	"tour-booking/internal/booking"
	"tour-booking/internal/booking/db"
	"tour-booking/internal/config"
	"tour-booking/internal/database"
	"tour-booking/internal/events"
	"tour-booking/internal/kafka"
	"tour-booking/internal/logger"
	"tour-booking/internal/payment"

	"github.com/joho/godotenv"
)

func main() {
	loop := flag.Bool("loop", false, "keep sweeping every BOOKING_SWEEP_INTERVAL")
	flag.Parse()

	log := logger.NewLogger("expiry-sweeper")
	defer log.Close()

	if err := godotenv.Load(); err != nil {
		log.Warn("CONFIG", ".env file not found, using environment variables")
	}
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	bunDB, err := database.ConnectPostgres(ctx, cfg.Database, log)
	if err != nil {
		log.Fatal("DATABASE", err.Error())
	}
	defer bunDB.Close()

	var publisher booking.EventPublisher
	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topics.BookingEvents, log)
		defer producer.Close()
		publisher = events.NewKafkaPublisher(producer)
	}

	// without a processor key there is nothing to void
	var payments booking.IntentCanceller
	if cfg.Stripe.SecretKey != "" {
		gateway, err := payment.NewStripeGateway(cfg.Stripe.SecretKey, cfg.Stripe.Timeout, log)
		if err != nil {
			log.Fatal("STRIPE", err.Error())
		}
		payments = gateway
	} else {
		log.Warn("STRIPE", "STRIPE_SECRET_KEY not set, intents of expired bookings are not cancelled")
	}

	sweeper := booking.NewSweeper(db.New(bunDB), payments, publisher, log, cfg.Booking.PendingTTL)
	if *loop {
		sweeper.Run(ctx, cfg.Booking.SweepInterval)
		return
	}

	n, err := sweeper.SweepOnce(ctx)
	if err != nil {
		log.Fatal("SWEEPER", fmt.Sprintf("Sweep failed: %v", err))
	}
	log.Info("SWEEPER", fmt.Sprintf("Sweep complete, %d bookings expired", n))
}
