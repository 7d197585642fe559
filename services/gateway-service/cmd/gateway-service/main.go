package main

import (
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/salonbookhq/salonbook/libs/auth"
	"github.com/salonbookhq/salonbook/libs/config"
	"github.com/salonbookhq/salonbook/libs/httpx"
	otelx "github.com/salonbookhq/salonbook/libs/otel"
	"github.com/salonbookhq/salonbook/libs/runtime"
	"github.com/salonbookhq/salonbook/services/gateway-service/internal/proxy"
	"github.com/salonbookhq/salonbook/services/gateway-service/internal/ratelimit"
)

func main() {
	logger := runtime.NewLogger("gateway-service")
	ctx, stop := runtime.SignalContext()
	defer stop()

	cfg := config.Load("gateway-service")

	shutdownTracing, err := otelx.Setup(ctx, logger, cfg.Name, cfg.OTLPEndpoint)
	if err != nil {
		logger.Error("tracing setup failed", "err", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownTracing(ctx) }()

	mustParse := func(env, def string) *url.URL {
		raw := runtime.Getenv(env, def)
		u, err := url.Parse(raw)
		if err != nil {
			logger.Error("invalid upstream url", "env", env, "url", raw, "err", err)
			os.Exit(1)
		}
		return u
	}

	booking := mustParse("BOOKING_SERVICE_URL", "http://booking-service:8080")
	salon := mustParse("SALON_SERVICE_URL", "http://salon-service:8080")
	authSvc := mustParse("AUTH_SERVICE_URL", "http://auth-service:8080")
	payments := mustParse("PAYMENTS_SERVICE_URL", "http://payments-service:8080")
	notification := mustParse("NOTIFICATION_SERVICE_URL", "http://notification-service:8080")
	analytics := mustParse("ANALYTICS_SERVICE_URL", "http://analytics-service:8080")

	staff := []string{"owner", "receptionist"}
	routes := []proxy.Route{
		// Client-facing booking flow, no account required.
		{Prefix: "/api/v1/public/", Target: booking, Public: true},
		{Prefix: "/api/v1/deposits/checkout", Target: payments, Public: true},
		{Prefix: "/api/v1/deposits/", Target: payments, Roles: staff},
		{Prefix: "/webhooks/stripe", Target: payments, Public: true},

		// Account lifecycle. Login and refresh carry their own
		// credentials; the rest ride on the access token.
		{Prefix: "/api/v1/auth/register", Target: authSvc, Public: true},
		{Prefix: "/api/v1/auth/login", Target: authSvc, Public: true},
		{Prefix: "/api/v1/auth/refresh", Target: authSvc, Public: true},
		{Prefix: "/.well-known/jwks.json", Target: authSvc, Public: true},
		{Prefix: "/api/v1/auth/", Target: authSvc},

		// Staff surfaces.
		{Prefix: "/api/v1/appointments", Target: booking},
		// Salon creation is the onboarding entry point: the salon exists
		// before its owner account does.
		{Prefix: "/api/v1/salons", Target: salon, Public: true},
		{Prefix: "/api/v1/salon", Target: salon},
		{Prefix: "/api/v1/stylists", Target: salon, Roles: staff},
		{Prefix: "/api/v1/services", Target: salon, Roles: staff},
		{Prefix: "/api/v1/clients", Target: salon, Roles: staff},
		{Prefix: "/api/v1/notifications", Target: notification, Roles: staff},
		{Prefix: "/api/v1/analytics/", Target: analytics, Roles: []string{"owner"}},
	}

	var verifier proxy.TokenVerifier
	if jwksURL := runtime.Getenv("AUTH_JWKS_URL", ""); jwksURL != "" {
		verifier = proxy.JWKSVerifier{Keys: auth.NewJWKSClient(jwksURL, runtime.GetenvDuration("AUTH_JWKS_TTL", 5*time.Minute))}
	} else {
		secret := runtime.Getenv("AUTH_JWT_SECRET", "")
		if secret == "" {
			logger.Error("either AUTH_JWKS_URL or AUTH_JWT_SECRET must be set")
			os.Exit(1)
		}
		verifier = proxy.HS256Verifier{Secret: secret}
	}

	limit := runtime.GetenvInt("RATE_LIMIT_PER_MINUTE", 120)
	var limiter ratelimit.Limiter
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer client.Close()
		limiter = ratelimit.NewRedisLimiter(client, limit, time.Minute)
		logger.Info("rate limiting via redis", "addr", cfg.RedisAddr, "limit", limit)
	} else {
		limiter = ratelimit.NewMemoryLimiter(limit, time.Minute)
		logger.Info("rate limiting in memory", "limit", limit)
	}

	gw := proxy.New(routes, verifier, limiter, logger)

	mux := http.NewServeMux()
	runtime.HealthRoutes(mux, func() error { return nil })
	mux.Handle("/", gw)

	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: httpx.Chain(cfg.Name, logger, mux),
	}
	if err := runtime.ServeHTTP(ctx, logger, srv); err != nil {
		logger.Error("server stopped", "err", err)
		os.Exit(1)
	}
}
