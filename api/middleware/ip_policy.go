package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/nyumbahub/nyumba-backend/api/responses"
	"github.com/nyumbahub/nyumba-backend/internal/security"
	"github.com/nyumbahub/nyumba-backend/pkg/logger"
)

type ipPolicyChecker interface {
	Check(ctx context.Context, input security.IPGateInput) error
}

// IPPolicy rejects requests from denylisted addresses before they reach any
// handler. The gate itself decides what is blocking and what is advisory.
func IPPolicy(gate ipPolicyChecker, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if gate == nil {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			input := security.IPGateInput{
				IPAddress: ClientIP(r),
				UserAgent: r.UserAgent(),
				Endpoint:  r.URL.Path,
				Method:    r.Method,
			}
			if parsed, err := uuid.Parse(UserIDFromContext(ctx)); err == nil {
				input.UserID = &parsed
			}

			if err := gate.Check(ctx, input); err != nil {
				responses.WriteError(ctx, logg, w, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
