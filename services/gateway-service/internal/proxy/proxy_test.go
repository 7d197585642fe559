package proxy

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/salonbookhq/salonbook/libs/auth"
	"github.com/salonbookhq/salonbook/services/gateway-service/internal/ratelimit"
)

const testSecret = "test-secret"

func signToken(t *testing.T, role string) string {
	t.Helper()
	now := time.Now()
	token, err := auth.SignHS256(auth.Claims{
		Sub:     "user-1",
		SalonID: "salon-1",
		Role:    role,
		Iat:     now.Unix(),
		Exp:     now.Add(time.Hour).Unix(),
	}, testSecret)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func newTestGateway(t *testing.T, backend http.HandlerFunc) *Gateway {
	t.Helper()
	srv := httptest.NewServer(backend)
	t.Cleanup(srv.Close)
	target, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatalf("parse backend url: %v", err)
	}
	routes := []Route{
		{Prefix: "/api/v1/public/", Target: target, Public: true},
		{Prefix: "/api/v1/analytics/", Target: target, Roles: []string{"owner"}},
		{Prefix: "/api/v1/appointments", Target: target},
	}
	logger := slog.New(slog.NewTextHandler(testWriter{t}, nil))
	return New(routes, HS256Verifier{Secret: testSecret}, ratelimit.NewMemoryLimiter(100, time.Minute), logger)
}

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(string(p))
	return len(p), nil
}

func TestPublicRouteNeedsNoToken(t *testing.T) {
	gw := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	rec := httptest.NewRecorder()
	gw.ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/public/slots", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestProtectedRouteRejectsMissingToken(t *testing.T) {
	gw := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("backend should not be reached")
	})
	rec := httptest.NewRecorder()
	gw.ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/appointments", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestRoleGating(t *testing.T) {
	gw := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest("GET", "/api/v1/analytics/summary", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, "stylist"))
	rec := httptest.NewRecorder()
	gw.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("stylist status = %d, want 403", rec.Code)
	}

	req = httptest.NewRequest("GET", "/api/v1/analytics/summary", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, "owner"))
	rec = httptest.NewRecorder()
	gw.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("owner status = %d, want 200", rec.Code)
	}
}

func TestIdentityHeadersComeFromClaims(t *testing.T) {
	var gotUser, gotSalon, gotRole string
	gw := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		gotUser = r.Header.Get("X-User-Id")
		gotSalon = r.Header.Get("X-Salon-Id")
		gotRole = r.Header.Get("X-Role")
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest("GET", "/api/v1/appointments", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, "receptionist"))
	// A spoofed header must be replaced, not forwarded.
	req.Header.Set("X-Salon-Id", "someone-elses-salon")
	rec := httptest.NewRecorder()
	gw.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if gotUser != "user-1" || gotSalon != "salon-1" || gotRole != "receptionist" {
		t.Fatalf("identity headers = %q %q %q, want user-1 salon-1 receptionist", gotUser, gotSalon, gotRole)
	}
}

func TestSpoofedHeadersStrippedOnPublicRoutes(t *testing.T) {
	var gotSalon string
	gw := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		gotSalon = r.Header.Get("X-Salon-Id")
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest("GET", "/api/v1/public/slots", nil)
	req.Header.Set("X-Salon-Id", "spoofed")
	rec := httptest.NewRecorder()
	gw.ServeHTTP(rec, req)

	if gotSalon != "" {
		t.Fatalf("X-Salon-Id = %q, want empty on public route", gotSalon)
	}
}

func TestRateLimitReturns429(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)
	target, _ := url.Parse(srv.URL)
	logger := slog.New(slog.NewTextHandler(testWriter{t}, nil))
	gw := New(
		[]Route{{Prefix: "/api/v1/public/", Target: target, Public: true}},
		HS256Verifier{Secret: testSecret},
		ratelimit.NewMemoryLimiter(1, time.Minute),
		logger,
	)

	req := httptest.NewRequest("GET", "/api/v1/public/slots", nil)
	req.RemoteAddr = "9.9.9.9:1234"
	rec := httptest.NewRecorder()
	gw.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("first request status = %d, want 200", rec.Code)
	}

	rec = httptest.NewRecorder()
	gw.ServeHTTP(rec, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second request status = %d, want 429", rec.Code)
	}
}
