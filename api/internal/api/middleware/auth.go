// api/internal/api/middleware/auth.go
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"

	"github.com/infrakt/infrakt/api/internal/core/auth"
	"github.com/infrakt/infrakt/api/internal/core/domain"
)

type contextKey string

// DeployKeyContextKey retrieves the *domain.DeployKey that authenticated
// the request, when RequireAnyKey matched a deploy key rather than the
// platform key.
const DeployKeyContextKey contextKey = "deploy_key"

// Auth holds the credentials the arbiter checks requests against: the
// single operator platform key and the deploy key roster. Webhook requests
// authenticate against a per-App secret instead and never go through this
// struct (see handlers.GithubWebhookHandler).
type Auth struct {
	PlatformKey string
	DeployKeys  domain.DeployKeyStore
	Logger      *slog.Logger
}

func NewAuth(platformKey string, deployKeys domain.DeployKeyStore, logger *slog.Logger) *Auth {
	return &Auth{PlatformKey: platformKey, DeployKeys: deployKeys, Logger: logger}
}

func extractKey(r *http.Request) string {
	if v := r.Header.Get("X-API-Key"); v != "" {
		return v
	}
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return ""
}

// RequirePlatformKey accepts only the single operator credential. Used for
// every route that can register/modify Servers, the object-store config,
// or the source integration token.
func (a *Auth) RequirePlatformKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := extractKey(r)
		if key == "" {
			http.Error(w, `{"message":"missing API key"}`, http.StatusUnauthorized)
			return
		}
		if !auth.VerifyPlatformKey(key, a.PlatformKey) {
			a.Logger.Warn("platform key rejected", slog.String("path", r.URL.Path))
			http.Error(w, `{"message":"invalid API key"}`, http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAnyKey accepts either the platform key or a non-revoked deploy
// key, for routes both the operator and CI automation may call (e.g.
// triggering a deploy). A matched deploy key is attached to the request
// context so a handler can enforce a narrower scope with RequireScope.
func (a *Auth) RequireAnyKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := extractKey(r)
		if key == "" {
			http.Error(w, `{"message":"missing API key"}`, http.StatusUnauthorized)
			return
		}
		if auth.VerifyPlatformKey(key, a.PlatformKey) {
			next.ServeHTTP(w, r)
			return
		}
		dk, err := a.DeployKeys.FindByPlaintext(key)
		if err != nil || dk == nil {
			a.Logger.Warn("deploy key rejected", slog.String("path", r.URL.Path))
			http.Error(w, `{"message":"invalid API key"}`, http.StatusForbidden)
			return
		}
		ctx := context.WithValue(r.Context(), DeployKeyContextKey, dk)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireScope rejects a request authenticated by a deploy key that lacks
// scope. A request authenticated by the platform key always passes, since
// the platform key is unscoped by definition.
func RequireScope(scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			dk, ok := r.Context().Value(DeployKeyContextKey).(*domain.DeployKey)
			if ok && !dk.HasScope(scope) {
				http.Error(w, `{"message":"deploy key missing required scope"}`, http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ==============================================================================
// Security & protocol enforcement (platform-agnostic, carried from the
// ambient stack)
// ==============================================================================

// EnforceTLS ensures no plaintext traffic interacts with the API, with a
// localhost bypass for local development.
func EnforceTLS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		isHTTPS := r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https"

		if !isHTTPS && !strings.HasPrefix(r.Host, "localhost:") && !strings.HasPrefix(r.Host, "127.0.0.1:") {
			target := "https://" + r.Host + r.URL.RequestURI()
			http.Redirect(w, r, target, http.StatusMovedPermanently)
			return
		}

		w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")

		next.ServeHTTP(w, r)
	})
}

// MaxBytes caps request body size to protect against memory-exhaustion.
func MaxBytes(limit int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, limit)
			next.ServeHTTP(w, r)
		})
	}
}

// ==============================================================================
// In-memory rate limiting (DoS protection)
// ==============================================================================

var (
	visitors = make(map[string]*visitor)
	vmu      sync.Mutex
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func init() {
	go func() {
		for {
			time.Sleep(time.Minute)
			vmu.Lock()
			for ip, v := range visitors {
				if time.Since(v.lastSeen) > 3*time.Minute {
					delete(visitors, ip)
				}
			}
			vmu.Unlock()
		}
	}()
}

// RateLimitMiddleware throttles requests per source IP to blunt
// credential-stuffing and brute-force attempts against the key checks
// above.
func RateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := r.RemoteAddr

		vmu.Lock()
		v, exists := visitors[ip]
		if !exists {
			v = &visitor{limiter: rate.NewLimiter(10, 30)}
			visitors[ip] = v
		}
		v.lastSeen = time.Now()
		limiter := v.limiter
		vmu.Unlock()

		if !limiter.Allow() {
			http.Error(w, `{"message":"too many requests"}`, http.StatusTooManyRequests)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// ==============================================================================
// Observability
// ==============================================================================

// StructuredLogger logs every request with its chi request ID for audit
// trails.
func StructuredLogger(logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			logger.Info("http access",
				slog.String("trace_id", middleware.GetReqID(r.Context())),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.Status()),
				slog.Duration("latency", time.Since(start)),
				slog.String("ip", r.RemoteAddr),
			)
		})
	}
}
