// Package proxy is the public edge of the platform. It terminates CORS,
// rate limits by client address, verifies access tokens and forwards
// requests to the owning service with the caller's identity carried in
// trusted headers.
package proxy

import (
	"errors"
	"log/slog"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"sort"
	"strings"

	"github.com/salonbookhq/salonbook/libs/auth"
	"github.com/salonbookhq/salonbook/libs/httpx"
	"github.com/salonbookhq/salonbook/services/gateway-service/internal/ratelimit"
)

// TokenVerifier checks an access token and returns its claims.
type TokenVerifier interface {
	Verify(token string) (auth.Claims, error)
}

type HS256Verifier struct {
	Secret string
}

func (v HS256Verifier) Verify(token string) (auth.Claims, error) {
	return auth.ParseAndVerifyHS256(token, v.Secret)
}

// JWKSVerifier resolves the signing key from the auth service's JWKS
// endpoint by the token's kid header.
type JWKSVerifier struct {
	Keys *auth.JWKSClient
}

func (v JWKSVerifier) Verify(token string) (auth.Claims, error) {
	kid, err := auth.KeyID(token)
	if err != nil {
		return auth.Claims{}, err
	}
	pub, err := v.Keys.Get(kid)
	if err != nil {
		return auth.Claims{}, err
	}
	return auth.VerifyRS256(token, pub)
}

// Route forwards requests under Prefix to Target. Public routes skip
// token verification; Roles, when set, restricts who may call the route.
type Route struct {
	Prefix string
	Target *url.URL
	Public bool
	Roles  []string

	proxy *httputil.ReverseProxy
}

type Gateway struct {
	routes   []Route
	verifier TokenVerifier
	limiter  ratelimit.Limiter
	logger   *slog.Logger
}

func New(routes []Route, verifier TokenVerifier, limiter ratelimit.Limiter, logger *slog.Logger) *Gateway {
	// Longest prefix first so /api/v1/auth/users wins over /api/v1/auth.
	sort.Slice(routes, func(i, j int) bool {
		return len(routes[i].Prefix) > len(routes[j].Prefix)
	})
	for i := range routes {
		routes[i].proxy = httputil.NewSingleHostReverseProxy(routes[i].Target)
	}
	return &Gateway{routes: routes, verifier: verifier, limiter: limiter, logger: logger}
}

func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	writeCORS(w)
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	allowed, err := g.limiter.Allow(r.Context(), clientIP(r))
	if err != nil {
		// A broken limiter backend should not take the platform down.
		g.logger.Warn("rate limiter unavailable, allowing request", "err", err)
	} else if !allowed {
		httpx.Error(w, http.StatusTooManyRequests, "too many requests, slow down")
		return
	}

	route := g.match(r.URL.Path)
	if route == nil {
		httpx.Error(w, http.StatusNotFound, "no such route")
		return
	}

	// Identity headers are only ever set by the gateway.
	r.Header.Del("X-User-Id")
	r.Header.Del("X-Salon-Id")
	r.Header.Del("X-Role")

	if !route.Public {
		claims, err := g.authenticate(r)
		if err != nil {
			httpx.Error(w, http.StatusUnauthorized, "invalid or missing token")
			return
		}
		if !roleAllowed(route.Roles, claims.Role) {
			httpx.Error(w, http.StatusForbidden, "insufficient role")
			return
		}
		r.Header.Set("X-User-Id", claims.Sub)
		r.Header.Set("X-Salon-Id", claims.SalonID)
		r.Header.Set("X-Role", claims.Role)
	}

	route.proxy.ServeHTTP(w, r)
}

func (g *Gateway) match(path string) *Route {
	for i := range g.routes {
		if strings.HasPrefix(path, g.routes[i].Prefix) {
			return &g.routes[i]
		}
	}
	return nil
}

var errNoToken = errors.New("no bearer token")

func (g *Gateway) authenticate(r *http.Request) (auth.Claims, error) {
	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		return auth.Claims{}, errNoToken
	}
	return g.verifier.Verify(token)
}

func roleAllowed(roles []string, role string) bool {
	if len(roles) == 0 {
		return role != ""
	}
	for _, allowed := range roles {
		if allowed == role {
			return true
		}
	}
	return false
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if ip, _, found := strings.Cut(fwd, ","); found || ip != "" {
			return strings.TrimSpace(ip)
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeCORS(w http.ResponseWriter) {
	h := w.Header()
	h.Set("Access-Control-Allow-Origin", "*")
	h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
	h.Set("Access-Control-Allow-Headers", "Authorization, Content-Type, Idempotency-Key")
	h.Set("Access-Control-Max-Age", "600")
}
