package main

import (
	"embed"
	"net/http"
	"os"

	"github.com/salonbookhq/salonbook/libs/config"
	"github.com/salonbookhq/salonbook/libs/db"
	"github.com/salonbookhq/salonbook/libs/httpx"
	"github.com/salonbookhq/salonbook/libs/kafkax"
	otelx "github.com/salonbookhq/salonbook/libs/otel"
	"github.com/salonbookhq/salonbook/libs/runtime"
	"github.com/salonbookhq/salonbook/services/booking-service/internal/consumer"
	"github.com/salonbookhq/salonbook/services/booking-service/internal/handlers"
	"github.com/salonbookhq/salonbook/services/booking-service/internal/inbox"
	"github.com/salonbookhq/salonbook/services/booking-service/internal/outbox"
	"github.com/salonbookhq/salonbook/services/booking-service/internal/salonhours"
	"github.com/salonbookhq/salonbook/services/booking-service/internal/storage"
)

//go:embed migrations/*.sql
var migrations embed.FS

const serviceName = "booking-service"

func main() {
	logger := runtime.NewLogger(serviceName)
	ctx, stop := runtime.SignalContext()
	defer stop()

	cfg := config.Load(serviceName)

	shutdownTracing, err := otelx.Setup(ctx, logger, serviceName, cfg.OTLPEndpoint)
	if err != nil {
		logger.Error("tracing setup failed", "err", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownTracing(ctx) }()

	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("database connect failed", "err", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := db.Migrate(ctx, pool, migrations, "migrations"); err != nil {
		logger.Error("migrations failed", "err", err)
		os.Exit(1)
	}

	bookings := storage.NewBookingRepository(pool)
	hours := storage.NewHoursRepository(pool)
	catalog := storage.NewCatalogRepository(pool)
	idem := storage.NewIdempotencyRepository(pool)
	obx := outbox.NewRepository(pool)
	ibx := inbox.NewRepository(pool)

	writer := kafkax.NewWriter(cfg.KafkaBrokers, runtime.Getenv("BOOKING_EVENTS_TOPIC", "booking.events"))
	defer func() { _ = writer.Close() }()
	publisher := outbox.NewPublisher(pool, writer, logger)
	go publisher.Run(ctx)

	cons := consumer.New(pool, hours, catalog, bookings, ibx, obx, logger)
	for _, topic := range []string{
		runtime.Getenv("SALON_EVENTS_TOPIC", "salon.events"),
		runtime.Getenv("PAYMENTS_EVENTS_TOPIC", "payments.events"),
	} {
		reader := kafkax.NewReader(cfg.KafkaBrokers, serviceName, topic)
		go func() {
			defer func() { _ = reader.Close() }()
			cons.Run(ctx, reader)
		}()
	}

	fallback, err := salonhours.NewFetcher(runtime.Getenv("SALON_GRPC_ADDR", ""))
	if err != nil {
		logger.Error("salon grpc dial failed", "err", err)
		os.Exit(1)
	}

	mux := http.NewServeMux()
	runtime.HealthRoutes(mux, func() error { return pool.Ping(ctx) })
	handlers.New(bookings, hours, catalog, idem, obx, logger).WithHoursFallback(fallback).Register(mux)

	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: httpx.Chain(serviceName, logger, mux),
	}
	if err := runtime.ServeHTTP(ctx, logger, srv); err != nil {
		logger.Error("server stopped", "err", err)
		os.Exit(1)
	}
}
