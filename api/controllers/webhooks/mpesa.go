package webhooks

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/nyumbahub/nyumba-backend/api/middleware"
	"github.com/nyumbahub/nyumba-backend/api/responses"
	"github.com/nyumbahub/nyumba-backend/internal/providers/mpesa"
	"github.com/nyumbahub/nyumba-backend/internal/security"
	"github.com/nyumbahub/nyumba-backend/pkg/enums"
	pkgerrors "github.com/nyumbahub/nyumba-backend/pkg/errors"
	"github.com/nyumbahub/nyumba-backend/pkg/logger"
)

const (
	maxCallbackBody  = 1 << 20
	callbackGuardTTL = 24 * time.Hour
)

type callbackHandler interface {
	HandleCallback(ctx context.Context, env mpesa.CallbackEnvelope) (*mpesa.CallbackResult, error)
}

type callbackGuard interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	IdempotencyKey(scope, id string) string
	Del(ctx context.Context, keys ...string) error
}

type securityEvents interface {
	LogAsync(event security.Event)
}

// MpesaCallback receives Daraja's asynchronous STK push result. Daraja retries
// anything that is not a 200, so every business outcome, failed pushes and
// unmatched references included, is acknowledged; only a malformed envelope is
// rejected.
func MpesaCallback(handler callbackHandler, guard callbackGuard, events securityEvents, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if handler == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "mpesa webhook unavailable"))
			return
		}

		body, err := io.ReadAll(io.LimitReader(r.Body, maxCallbackBody))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unreadable callback body"))
			return
		}

		var env mpesa.CallbackEnvelope
		if err := json.Unmarshal(body, &env); err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid callback payload"))
			return
		}

		// The guard keys each delivery on the checkout request so Daraja's
		// redeliveries are answered without touching the payment again. Guard
		// outages fail open; the finalize compare-and-swap still holds the line.
		checkoutID := env.Body.StkCallback.CheckoutRequestID
		guardKey := ""
		if guard != nil && checkoutID != "" {
			guardKey = guard.IdempotencyKey("mpesa_callback", checkoutID)
			marked, guardErr := guard.SetNX(ctx, guardKey, "1", callbackGuardTTL)
			if guardErr != nil {
				if logg != nil {
					logg.Error(ctx, "mpesa callback guard unavailable", guardErr)
				}
				guardKey = ""
			} else if !marked {
				if logg != nil {
					logg.Info(logg.WithField(ctx, "checkout_request_id", checkoutID), "mpesa callback already received")
				}
				responses.WriteSuccess(w, map[string]any{"received": true, "duplicate": true})
				return
			}
		}

		result, err := handler.HandleCallback(ctx, env)
		if err != nil {
			// Releasing the guard lets Daraja's retry reach the handler again.
			if guardKey != "" {
				if delErr := guard.Del(ctx, guardKey); delErr != nil && logg != nil {
					logg.Error(ctx, "mpesa callback guard release failed", delErr)
				}
			}
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if result.Anomaly != "" {
			if events != nil {
				events.LogAsync(security.Event{
					Type:      enums.SecurityEventCallbackAnomaly,
					IPAddress: middleware.ClientIP(r),
					UserAgent: r.UserAgent(),
					Endpoint:  r.URL.Path,
					Method:    r.Method,
					Details: map[string]any{
						"checkout_request_id": checkoutID,
						"reason":              result.Anomaly,
					},
				})
			}
			responses.WriteSuccess(w, map[string]any{"received": true, "matched": false})
			return
		}

		responses.WriteSuccess(w, map[string]any{
			"received": true,
			"applied":  result.Applied,
			"status":   result.Status.String(),
		})
	}
}
