package main

import (
	"embed"
	"net/http"
	"os"
	"strconv"

	"github.com/google/uuid"
	"github.com/salonbookhq/salonbook/libs/config"
	"github.com/salonbookhq/salonbook/libs/db"
	"github.com/salonbookhq/salonbook/libs/httpx"
	"github.com/salonbookhq/salonbook/libs/kafkax"
	otelx "github.com/salonbookhq/salonbook/libs/otel"
	"github.com/salonbookhq/salonbook/libs/runtime"
	"github.com/salonbookhq/salonbook/services/notification-service/internal/dispatch"
	"github.com/salonbookhq/salonbook/services/notification-service/internal/email"
	"github.com/salonbookhq/salonbook/services/notification-service/internal/sms"
	"github.com/salonbookhq/salonbook/services/notification-service/internal/storage"
	"github.com/salonbookhq/salonbook/services/notification-service/internal/whatsapp"
)

//go:embed migrations/*.sql
var migrations embed.FS

const serviceName = "notification-service"

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

	emailSender := email.NewSender(
		runtime.Getenv("SMTP_HOST", ""),
		runtime.Getenv("SMTP_PORT", "587"),
		runtime.Getenv("SMTP_FROM", "reminders@salonbook.local"),
		runtime.Getenv("SMTP_USERNAME", ""),
		runtime.Getenv("SMTP_PASSWORD", ""),
	)
	var smsSender sms.Sender = sms.NoopSender{Logger: logger}
	if url := runtime.Getenv("SMS_WEBHOOK_URL", ""); url != "" {
		smsSender = sms.NewWebhookSender(url, runtime.Getenv("SMS_WEBHOOK_TOKEN", ""))
	}
	waSender := whatsapp.NewSender(
		runtime.Getenv("WHATSAPP_GATEWAY_URL", ""),
		runtime.Getenv("WHATSAPP_GATEWAY_TOKEN", ""),
	)

	events := kafkax.NewWriter(cfg.KafkaBrokers, runtime.Getenv("NOTIFICATION_EVENTS_TOPIC", "notification.events"))
	defer func() { _ = events.Close() }()

	d := dispatch.New(repo, emailSender, smsSender, waSender, events, logger, uuid.NewString)
	for _, topic := range []string{
		runtime.Getenv("REMINDERS_DUE_TOPIC", "scheduler.reminders.due"),
		runtime.Getenv("SALON_EVENTS_TOPIC", "salon.events"),
	} {
		reader := kafkax.NewReader(cfg.KafkaBrokers, serviceName, topic)
		go func() {
			defer func() { _ = reader.Close() }()
			d.Run(ctx, reader)
		}()
	}

	mux := http.NewServeMux()
	runtime.HealthRoutes(mux, func() error { return pool.Ping(ctx) })
	mux.HandleFunc("GET /api/v1/notifications", func(w http.ResponseWriter, r *http.Request) {
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		out, err := repo.ListRecent(r.Context(), limit)
		if err != nil {
			httpx.Error(w, http.StatusInternalServerError, "internal error")
			return
		}
		httpx.WriteJSON(w, http.StatusOK, map[string]any{"notifications": out})
	})

	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: httpx.Chain(serviceName, logger, mux),
	}
	if err := runtime.ServeHTTP(ctx, logger, srv); err != nil {
		logger.Error("server stopped", "err", err)
		os.Exit(1)
	}
}
