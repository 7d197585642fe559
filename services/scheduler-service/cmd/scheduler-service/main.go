package main

import (
	"embed"
	"net/http"
	"os"

	"github.com/google/uuid"
	"github.com/salonbookhq/salonbook/libs/config"
	"github.com/salonbookhq/salonbook/libs/db"
	"github.com/salonbookhq/salonbook/libs/httpx"
	"github.com/salonbookhq/salonbook/libs/kafkax"
	otelx "github.com/salonbookhq/salonbook/libs/otel"
	"github.com/salonbookhq/salonbook/libs/runtime"
	"github.com/salonbookhq/salonbook/services/scheduler-service/internal/consumer"
	"github.com/salonbookhq/salonbook/services/scheduler-service/internal/inbox"
	"github.com/salonbookhq/salonbook/services/scheduler-service/internal/jobs"
)

//go:embed migrations/*.sql
var migrations embed.FS

const serviceName = "scheduler-service"

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

	jobsRepo := jobs.NewRepository(pool)
	ibx := inbox.NewRepository(pool)

	dueWriter := kafkax.NewWriter(cfg.KafkaBrokers, runtime.Getenv("REMINDERS_DUE_TOPIC", "scheduler.reminders.due"))
	defer func() { _ = dueWriter.Close() }()
	dlqWriter := kafkax.NewWriter(cfg.KafkaBrokers, runtime.Getenv("REMINDERS_DLQ_TOPIC", "scheduler.reminders.dlq"))
	defer func() { _ = dlqWriter.Close() }()

	go jobs.NewWorker(jobsRepo, dueWriter, dlqWriter, logger, uuid.NewString).Run(ctx)

	reader := kafkax.NewReader(cfg.KafkaBrokers, serviceName, runtime.Getenv("BOOKING_EVENTS_TOPIC", "booking.events"))
	go func() {
		defer func() { _ = reader.Close() }()
		consumer.New(pool, jobsRepo, ibx, logger).Run(ctx, reader)
	}()

	mux := http.NewServeMux()
	runtime.HealthRoutes(mux, func() error { return pool.Ping(ctx) })

	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: httpx.Chain(serviceName, logger, mux),
	}
	if err := runtime.ServeHTTP(ctx, logger, srv); err != nil {
		logger.Error("server stopped", "err", err)
		os.Exit(1)
	}
}
