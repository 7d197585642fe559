package main

import (
	"embed"
	"net/http"
	"os"
	"time"

	"github.com/stripe/stripe-go/v79"

	"github.com/salonbookhq/salonbook/libs/config"
	"github.com/salonbookhq/salonbook/libs/db"
	"github.com/salonbookhq/salonbook/libs/httpx"
	"github.com/salonbookhq/salonbook/libs/kafkax"
	otelx "github.com/salonbookhq/salonbook/libs/otel"
	"github.com/salonbookhq/salonbook/libs/runtime"
	"github.com/salonbookhq/salonbook/services/payments-service/internal/deposits"
	"github.com/salonbookhq/salonbook/services/payments-service/internal/handlers"
	"github.com/salonbookhq/salonbook/services/payments-service/internal/outbox"
	"github.com/salonbookhq/salonbook/services/payments-service/internal/storage"
)

//go:embed migrations/*.sql
var migrations embed.FS

func main() {
	logger := runtime.NewLogger("payments-service")
	ctx, stop := runtime.SignalContext()
	defer stop()

	cfg := config.Load("payments-service")

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

	stripe.Key = runtime.Getenv("STRIPE_API_KEY", "")
	if stripe.Key == "" {
		logger.Warn("STRIPE_API_KEY not set, checkout creation will fail")
	}

	repo := storage.NewRepository(pool)
	outboxRepo := outbox.NewRepository(pool)

	writer := kafkax.NewWriter(cfg.KafkaBrokers, runtime.Getenv("PAYMENTS_EVENTS_TOPIC", "payments.events"))
	defer func() { _ = writer.Close() }()
	go outbox.NewPublisher(pool, writer, logger).Run(ctx)

	svc := deposits.NewService(repo, outboxRepo, deposits.Config{
		WebhookSecret: runtime.Getenv("STRIPE_WEBHOOK_SECRET", ""),
		SuccessURL:    runtime.Getenv("CHECKOUT_SUCCESS_URL", "https://salonbook.example/booking/paid"),
		CancelURL:     runtime.Getenv("CHECKOUT_CANCEL_URL", "https://salonbook.example/booking/cancelled"),
	}, logger)

	maxAge := runtime.GetenvDuration("DEPOSIT_MAX_PENDING", 30*time.Minute)
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := svc.ExpireStale(ctx, maxAge); err != nil {
					logger.Error("deposit expiry sweep failed", "err", err)
				}
			}
		}
	}()

	mux := http.NewServeMux()
	runtime.HealthRoutes(mux, func() error { return pool.Ping(ctx) })
	handlers.New(svc, logger).Register(mux)

	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: httpx.Chain(cfg.Name, logger, mux),
	}
	if err := runtime.ServeHTTP(ctx, logger, srv); err != nil {
		logger.Error("server stopped", "err", err)
		os.Exit(1)
	}
}
