package main

import (
	"embed"
	"net/http"
	"os"
	"time"

	"github.com/salonbookhq/salonbook/libs/auth"
	"github.com/salonbookhq/salonbook/libs/config"
	"github.com/salonbookhq/salonbook/libs/db"
	"github.com/salonbookhq/salonbook/libs/httpx"
	otelx "github.com/salonbookhq/salonbook/libs/otel"
	"github.com/salonbookhq/salonbook/libs/runtime"
	"github.com/salonbookhq/salonbook/services/auth-service/internal/audit"
	"github.com/salonbookhq/salonbook/services/auth-service/internal/handlers"
	"github.com/salonbookhq/salonbook/services/auth-service/internal/sessions"
	"github.com/salonbookhq/salonbook/services/auth-service/internal/storage"
)

//go:embed migrations/*.sql
var migrations embed.FS

func main() {
	logger := runtime.NewLogger("auth-service")
	ctx, stop := runtime.SignalContext()
	defer stop()

	cfg := config.Load("auth-service")

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

	var signer auth.TokenSigner
	switch alg := runtime.Getenv("AUTH_JWT_ALG", "HS256"); alg {
	case "RS256":
		rs, err := auth.NewRS256Signer(runtime.Getenv("AUTH_JWT_KID", "salonbook-1"))
		if err != nil {
			logger.Error("rsa key generation failed", "err", err)
			os.Exit(1)
		}
		signer = rs
	default:
		secret := runtime.Getenv("AUTH_JWT_SECRET", "")
		if secret == "" {
			logger.Error("AUTH_JWT_SECRET is required for HS256")
			os.Exit(1)
		}
		signer = auth.HS256Signer{Secret: secret}
	}

	users := storage.NewUserRepository(pool)
	sess := sessions.NewRepository(pool, runtime.GetenvDuration("REFRESH_TOKEN_TTL", 30*24*time.Hour))
	auditRepo := audit.NewRepository(pool, logger)

	// Expired refresh tokens are garbage, sweep them hourly.
	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n, err := sess.PurgeExpired(ctx); err != nil {
					logger.Error("refresh token purge failed", "err", err)
				} else if n > 0 {
					logger.Info("purged expired refresh tokens", "count", n)
				}
			}
		}
	}()

	mux := http.NewServeMux()
	runtime.HealthRoutes(mux, func() error { return pool.Ping(ctx) })
	handlers.New(users, sess, auditRepo, signer, logger).Register(mux)

	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: httpx.Chain(cfg.Name, logger, mux),
	}
	if err := runtime.ServeHTTP(ctx, logger, srv); err != nil {
		logger.Error("server stopped", "err", err)
		os.Exit(1)
	}
}
