package handlers

import (
	"context"
	"net/http"

	"github.com/MrSnakeDoc/marks/internal/httpserver/deps"
	"github.com/MrSnakeDoc/marks/internal/redis"
)

type componentStatus struct {
	OK     bool   `json:"ok"`
	Mode   string `json:"mode,omitempty"`
	Impact string `json:"impact,omitempty"`
	Error  string `json:"error,omitempty"`
}

type infraResponse struct {
	Status     string                     `json:"status"`
	Components map[string]componentStatus `json:"components"`
}

// Infra reports each component and what its loss means for users.
func Infra(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), probeTimeout)
		defer cancel()

		components := map[string]componentStatus{
			"supabase": checkSupabase(ctx, d),
			"redis":    checkRedis(ctx, d),
			"realtime": {
				OK:   true,
				Mode: realtimeMode(d.RealtimeEnabled),
			},
		}

		writeJSON(w, http.StatusOK, infraResponse{
			Status:     determineStatus(components),
			Components: components,
		})
	}
}

func realtimeMode(enabled bool) string {
	if enabled {
		return "supabase+redis"
	}
	return "redis-only"
}

func determineStatus(components map[string]componentStatus) string {
	// Without the backend nobody can sign in or read bookmarks.
	if sb, ok := components["supabase"]; ok && !sb.OK {
		return "critical"
	}
	// Without Redis codes are not claimed, sign-outs are not shared and
	// cross-instance change events stop.
	if rd, ok := components["redis"]; ok && !rd.OK {
		return "degraded"
	}
	return "operational"
}

func checkSupabase(ctx context.Context, d deps.Deps) componentStatus {
	if d.Supabase == nil {
		return componentStatus{OK: false, Impact: "sign-in-and-data-unavailable", Error: "client not initialized"}
	}
	if err := d.Supabase.Ping(ctx); err != nil {
		return componentStatus{OK: false, Impact: "sign-in-and-data-unavailable", Error: err.Error()}
	}
	return componentStatus{OK: true, Mode: "optimal"}
}

func checkRedis(ctx context.Context, d deps.Deps) componentStatus {
	if d.RedisClient == nil {
		return componentStatus{
			OK:     false,
			Mode:   "degraded",
			Impact: "code-claims-and-shared-sign-out-disabled",
			Error:  "client not initialized",
		}
	}
	if err := redis.Healthy(ctx, d.RedisClient, probeTimeout); err != nil {
		return componentStatus{
			OK:     false,
			Mode:   "degraded",
			Impact: "code-claims-and-shared-sign-out-disabled",
			Error:  err.Error(),
		}
	}
	return componentStatus{OK: true, Mode: "optimal"}
}
