package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/nyumbahub/nyumba-backend/api/responses"
	"github.com/nyumbahub/nyumba-backend/pkg/config"
	pkgerrors "github.com/nyumbahub/nyumba-backend/pkg/errors"
	"github.com/nyumbahub/nyumba-backend/pkg/logger"
)

const readyCheckTimeout = 2 * time.Second

type pinger interface {
	Ping(ctx context.Context) error
}

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Nyumba-Env", cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady reports whether the API can actually serve traffic: both the
// database and redis must answer a ping within the check timeout.
func HealthReady(cfg *config.Config, logg *logger.Logger, dbP pinger, redisP pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Nyumba-Env", cfg.App.Env)

		ctx, cancel := context.WithTimeout(r.Context(), readyCheckTimeout)
		defer cancel()

		checks := []struct {
			name   string
			target pinger
		}{
			{name: "database", target: dbP},
			{name: "redis", target: redisP},
		}
		status := map[string]string{}
		for _, check := range checks {
			if check.target == nil {
				continue
			}
			if err := check.target.Ping(ctx); err != nil {
				if logg != nil {
					logg.Error(logg.WithField(ctx, "dependency", check.name), "readiness check failed", err)
				}
				responses.WriteError(ctx, nil, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, check.name+" unavailable"))
				return
			}
			status[check.name] = "ok"
		}

		responses.WriteSuccess(w, map[string]any{"status": "ready", "checks": status})
	}
}
