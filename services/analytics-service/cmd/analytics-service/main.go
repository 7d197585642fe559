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
	"github.com/salonbookhq/salonbook/services/analytics-service/internal/consumer"
	"github.com/salonbookhq/salonbook/services/analytics-service/internal/handlers"
	"github.com/salonbookhq/salonbook/services/analytics-service/internal/storage"
)

//go:embed migrations/*.sql
var migrations embed.FS

func main() {
	logger := runtime.NewLogger("analytics-service")
	ctx, stop := runtime.SignalContext()
	defer stop()

	cfg := config.Load("analytics-service")

	shutdownTracing, err := otelx.Setup(ctx, logger, cfg.Name, cfg.OTLPEndpoint)
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

	repo := storage.NewRepository(pool)
	cons := consumer.New(pool, repo, logger)

	group := runtime.Getenv("KAFKA_GROUP_ID", "analytics-service")
	for _, topic := range []string{
		runtime.Getenv("BOOKING_EVENTS_TOPIC", "booking.events"),
		runtime.Getenv("NOTIFICATION_EVENTS_TOPIC", "notification.events"),
	} {
		reader := kafkax.NewReader(cfg.KafkaBrokers, group, topic)
		defer reader.Close()
		go cons.Run(ctx, reader)
	}

	mux := http.NewServeMux()
	runtime.HealthRoutes(mux, func() error { return pool.Ping(ctx) })
	handlers.New(repo, logger).Register(mux)

	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: httpx.Chain(cfg.Name, logger, mux),
	}
	if err := runtime.ServeHTTP(ctx, logger, srv); err != nil {
		logger.Error("server stopped", "err", err)
		os.Exit(1)
	}
}
