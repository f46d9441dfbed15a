package middleware

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nyumbahub/nyumba-backend/api/responses"
	"github.com/nyumbahub/nyumba-backend/internal/security"
	"github.com/nyumbahub/nyumba-backend/pkg/enums"
	pkgerrors "github.com/nyumbahub/nyumba-backend/pkg/errors"
	"github.com/nyumbahub/nyumba-backend/pkg/logger"
)

type rateLimiterStore interface {
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)
	TTL(ctx context.Context, key string) (time.Duration, error)
}

type securityEvents interface {
	LogAsync(event security.Event)
}

// RateLimitPolicy defines the throttling parameters for a payment surface.
// Counters key on the authenticated user when present, the client IP when not.
type RateLimitPolicy struct {
	name   string
	window time.Duration
	limit  int
}

// NewRateLimitPolicy builds a policy with the supplied window and limit.
func NewRateLimitPolicy(name string, window time.Duration, limit int) RateLimitPolicy {
	return RateLimitPolicy{
		name:   strings.ToLower(strings.TrimSpace(name)),
		window: window,
		limit:  limit,
	}
}

func (p RateLimitPolicy) enabled() bool {
	return p.window > 0 && p.limit > 0
}

func (p RateLimitPolicy) key(subject string) string {
	return fmt.Sprintf("rl:%s:%s", p.name, subject)
}

// PaymentRateLimit applies a fixed-window limit to payment-initiating traffic.
// Limiter outages fail open: losing the counter must not take payments down.
func PaymentRateLimit(policy RateLimitPolicy, store rateLimiterStore, events securityEvents, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !policy.enabled() || store == nil {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			ip := ClientIP(r)
			subject := UserIDFromContext(ctx)
			if subject == "" {
				subject = "ip:" + ip
			}

			key := policy.key(subject)
			count, err := store.IncrWithTTL(ctx, key, policy.window)
			if err != nil {
				if logg != nil {
					logg.Error(logg.WithField(ctx, "policy", policy.name), "rate limiter unavailable", err)
				}
				next.ServeHTTP(w, r)
				return
			}

			remaining := int64(policy.limit) - count
			if remaining < 0 {
				remaining = 0
			}
			reset := policy.window
			if ttl, ttlErr := store.TTL(ctx, key); ttlErr == nil && ttl > 0 {
				reset = ttl
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(policy.limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(reset).Unix(), 10))

			if count > int64(policy.limit) {
				w.Header().Set("Retry-After", strconv.Itoa(int(reset.Seconds())))

				if events != nil {
					event := security.Event{
						Type:      enums.SecurityEventRateLimitExceeded,
						IPAddress: ip,
						UserAgent: r.UserAgent(),
						Endpoint:  r.URL.Path,
						Method:    r.Method,
						Details: map[string]any{
							"policy":   policy.name,
							"attempts": count,
							"limit":    policy.limit,
						},
					}
					if parsed, parseErr := uuid.Parse(UserIDFromContext(ctx)); parseErr == nil {
						event.UserID = &parsed
					}
					events.LogAsync(event)
				}
				if logg != nil {
					logCtx := logg.WithFields(ctx, map[string]any{
						"policy":   policy.name,
						"attempts": count,
						"limit":    policy.limit,
					})
					logg.Warn(logCtx, "payment.rate_limit.blocked")
				}
				responses.WriteError(ctx, nil, w, pkgerrors.New(pkgerrors.CodeRateLimit, "rate limit exceeded"))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP extracts the originating address, preferring proxy headers.
func ClientIP(r *http.Request) string {
	if r == nil {
		return ""
	}
	if header := r.Header.Get("X-Forwarded-For"); header != "" {
		for _, part := range strings.Split(header, ",") {
			if ip := strings.TrimSpace(part); ip != "" {
				return ip
			}
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	return r.RemoteAddr
}
