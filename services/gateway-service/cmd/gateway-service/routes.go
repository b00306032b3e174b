package main

import (
	"embed"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"

	"github.com/digos-health/himsog/libs/auth"
	"github.com/digos-health/himsog/libs/config"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

//go:embed assets/gateway.v1.yaml
var openAPISpec embed.FS

// tokenVerifier checks bearer tokens at the edge. When a JWKS endpoint
// is configured, RS256 tokens carrying a kid are verified against it;
// everything else falls back to the shared HS256 secret.
type tokenVerifier struct {
	secret string
	jwks   *auth.JWKSClient
}

func (v *tokenVerifier) verify(token string) (*auth.Claims, error) {
	if v.jwks != nil {
		header, err := auth.ParseHeader(token)
		if err != nil {
			return nil, err
		}
		if header.Alg == "RS256" && header.Kid != "" {
			pub, err := v.jwks.Get(header.Kid)
			if err != nil {
				return nil, err
			}
			return auth.VerifyRS256(token, pub)
		}
	}
	return auth.ParseAndVerifyHS256(token, v.secret)
}

func registerRoutes(mux *http.ServeMux, verifier *tokenVerifier) {
	transport := otelhttp.NewTransport(http.DefaultTransport)
	authProxy := newProxy(config.String("AUTH_URL", "http://auth-service:8081"), transport)
	providerProxy := newProxy(config.String("PROVIDER_URL", "http://provider-service:8082"), transport)
	bookingProxy := newProxy(config.String("BOOKING_URL", "http://booking-service:8083"), transport)
	billingProxy := newProxy(config.String("BILLING_URL", "http://billing-service:8084"), transport)
	notificationProxy := newProxy(config.String("NOTIFICATION_URL", "http://notification-service:8085"), transport)
	analyticsProxy := newProxy(config.String("ANALYTICS_URL", "http://analytics-service:8086"), transport)

	authed := func(next http.Handler) http.Handler { return requireAuth(next, verifier) }

	registerProxy(mux, "/api/v1/auth", authProxy)
	// Public discovery endpoints live on provider-service; slot search and
	// booking live on booking-service. ServeMux picks the longest prefix.
	registerProxy(mux, "/api/v1/public/providers", providerProxy)
	registerProxy(mux, "/api/v1/public/reviews", providerProxy)
	registerProxy(mux, "/api/v1/public", bookingProxy)
	registerProxy(mux, "/api/v1/provider", authed(requireRole(providerProxy, "provider", "admin")))
	registerProxy(mux, "/api/v1/appointments", authed(bookingProxy))
	registerProxy(mux, "/api/v1/reviews", authed(providerProxy))
	registerProxy(mux, "/api/v1/messages", authed(notificationProxy))
	registerProxy(mux, "/api/v1/admin/providers", authed(requireRole(providerProxy, "admin")))
	registerProxy(mux, "/api/v1/admin/metrics", authed(requireRole(analyticsProxy, "admin")))
	// Stripe reaches the webhook endpoint without a JWT; signature verification is the auth.
	registerProxy(mux, "/api/v1/billing/webhooks/stripe", billingProxy)
	// Checkout return page polls these without a JWT.
	registerProxy(mux, "/api/v1/billing/checkout/session", billingProxy)
	registerProxy(mux, "/api/v1/billing/checkout/session/ack", billingProxy)
	registerProxy(mux, "/api/v1/billing", authed(requireRole(billingProxy, "provider", "admin")))
	registerProxy(mux, "/.well-known/jwks.json", authProxy)

	mux.HandleFunc("/billing/success", func(w http.ResponseWriter, r *http.Request) {
		renderCheckoutReturnPage(w, r, "Payment successful", "success")
	})
	mux.HandleFunc("/billing/cancel", func(w http.ResponseWriter, r *http.Request) {
		renderCheckoutReturnPage(w, r, "Payment canceled", "cancel")
	})

	mux.HandleFunc("/openapi", func(w http.ResponseWriter, _ *http.Request) {
		data, err := openAPISpec.ReadFile("assets/gateway.v1.yaml")
		if err != nil {
			http.Error(w, "openapi not available", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/yaml")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
	})
}

func newProxy(rawURL string, transport http.RoundTripper) *httputil.ReverseProxy {
	u, err := url.Parse(rawURL)
	if err != nil {
		panic(err)
	}
	proxy := httputil.NewSingleHostReverseProxy(u)
	proxy.Transport = transport
	return proxy
}

func registerProxy(mux *http.ServeMux, prefix string, handler http.Handler) {
	if !strings.HasSuffix(prefix, "/") {
		mux.Handle(prefix, handler)
		mux.Handle(prefix+"/", handler)
		return
	}
	mux.Handle(prefix, handler)
}

// requireAuth verifies the bearer token and replaces any caller-supplied
// identity headers with the claims before forwarding upstream.
func requireAuth(next http.Handler, verifier *tokenVerifier) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
		if !strings.HasPrefix(authHeader, "Bearer ") || token == "" {
			http.Error(w, "missing or invalid Authorization header", http.StatusUnauthorized)
			return
		}

		claims, err := verifier.verify(token)
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}

		r.Header.Del("X-User-Id")
		r.Header.Del("X-Provider-Id")
		r.Header.Del("X-Role")
		r.Header.Set("X-User-Id", claims.Sub)
		r.Header.Set("X-Provider-Id", claims.ProviderID)
		r.Header.Set("X-Role", claims.Role)
		next.ServeHTTP(w, r)
	})
}

func requireRole(next http.Handler, roles ...string) http.Handler {
	allowed := map[string]struct{}{}
	for _, r := range roles {
		allowed[r] = struct{}{}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		role := r.Header.Get("X-Role")
		if _, ok := allowed[role]; !ok {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}
