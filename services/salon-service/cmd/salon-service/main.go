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
	"github.com/salonbookhq/salonbook/services/salon-service/internal/handlers"
	"github.com/salonbookhq/salonbook/services/salon-service/internal/outbox"
	"github.com/salonbookhq/salonbook/services/salon-service/internal/storage"
)

//go:embed migrations/*.sql
var migrations embed.FS

const serviceName = "salon-service"

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

	repo := storage.NewRepository(pool)
	obx := outbox.NewRepository(pool)

	writer := kafkax.NewWriter(cfg.KafkaBrokers, runtime.Getenv("SALON_EVENTS_TOPIC", "salon.events"))
	defer func() { _ = writer.Close() }()
	go outbox.NewPublisher(pool, writer, logger).Run(ctx)

	startGrpcServer(ctx, logger, repo)

	mux := http.NewServeMux()
	runtime.HealthRoutes(mux, func() error { return pool.Ping(ctx) })
	handlers.New(repo, obx, logger).Register(mux)

	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: httpx.Chain(serviceName, logger, mux),
	}
	if err := runtime.ServeHTTP(ctx, logger, srv); err != nil {
		logger.Error("server stopped", "err", err)
		os.Exit(1)
	}
}
