package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/MrSnakeDoc/marks/internal/httpserver/deps"
	"github.com/MrSnakeDoc/marks/internal/logger"
	"github.com/MrSnakeDoc/marks/internal/redis"
)

const probeTimeout = 2 * time.Second

type readyzResponse struct {
	Ready  bool              `json:"ready"`
	Checks map[string]string `json:"checks"`
}

// Readyz reports ready when Redis and the backend both answer.
func Readyz(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), probeTimeout)
		defer cancel()

		resp := readyzResponse{Ready: true, Checks: map[string]string{}}
		check := func(name string, err error) {
			if err != nil {
				d.Logger.Warn("readiness check failed", logger.String("component", name), logger.Error(err))
				resp.Ready = false
				resp.Checks[name] = err.Error()
				return
			}
			resp.Checks[name] = "ok"
		}
		check("redis", redis.Healthy(ctx, d.RedisClient, probeTimeout))
		check("supabase", d.Supabase.Ping(ctx))

		status := http.StatusOK
		if !resp.Ready {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, resp)
	}
}
