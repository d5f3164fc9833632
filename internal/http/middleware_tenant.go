package httpserver

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/time/rate"

	"schoolhub/internal/store"
	"schoolhub/internal/tenant"
)

type existenceChecker interface {
	SchemaExists(ctx context.Context, schema string) bool
}

// ResolveTenant validates the {schema} URL parameter, confirms the schema
// exists and stores it in the request context.
func ResolveTenant(checker existenceChecker) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			schema := chi.URLParam(r, "schema")
			if err := tenant.AssertValidSchemaName(schema); err != nil {
				writeTenantError(w, schema, err)
				return
			}
			if !checker.SchemaExists(r.Context(), schema) {
				writeTenantError(w, schema, store.ErrTenantNotFound)
				return
			}
			next.ServeHTTP(w, r.WithContext(tenant.ContextWithSchema(r.Context(), schema)))
		})
	}
}

type tenantLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// TenantRateLimiter keeps one token bucket per tenant schema.
type TenantRateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*tenantLimiter
	r        rate.Limit
	b        int
	stopCh   chan struct{}
	stopOnce sync.Once
}

func NewTenantRateLimiter(rps float64, burst int) *TenantRateLimiter {
	l := &TenantRateLimiter{
		limiters: make(map[string]*tenantLimiter),
		r:        rate.Limit(rps),
		b:        burst,
		stopCh:   make(chan struct{}),
	}
	go l.cleanup()
	return l
}

func (l *TenantRateLimiter) cleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.mu.Lock()
			for schema, tl := range l.limiters {
				if time.Since(tl.lastSeen) > 10*time.Minute {
					delete(l.limiters, schema)
				}
			}
			l.mu.Unlock()
		case <-l.stopCh:
			return
		}
	}
}

func (l *TenantRateLimiter) get(schema string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	tl, ok := l.limiters[schema]
	if !ok {
		tl = &tenantLimiter{limiter: rate.NewLimiter(l.r, l.b)}
		l.limiters[schema] = tl
	}
	tl.lastSeen = time.Now()
	return tl.limiter
}

// Stop ends the cleanup goroutine. Safe to call more than once.
func (l *TenantRateLimiter) Stop() {
	l.stopOnce.Do(func() { close(l.stopCh) })
}

// Middleware must run after ResolveTenant.
func (l *TenantRateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		schema, err := tenant.SchemaFromContext(r.Context())
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}
		reservation := l.get(schema).Reserve()
		if d := reservation.Delay(); d > 0 {
			reservation.Cancel()
			retryAfter := int(math.Ceil(d.Seconds()))
			if retryAfter < 1 {
				retryAfter = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			writeError(w, http.StatusTooManyRequests, "rate_limited", "tenant request rate exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}
