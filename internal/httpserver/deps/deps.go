package deps

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MrSnakeDoc/marks/internal/logger"
	"github.com/MrSnakeDoc/marks/internal/notify"
	"github.com/MrSnakeDoc/marks/internal/session"
	redisstore "github.com/MrSnakeDoc/marks/internal/store/redis"
	"github.com/MrSnakeDoc/marks/internal/supabase"
)

type Deps struct {
	Logger    logger.Logger
	StartTime time.Time
	Version   string
	Commit    string
	BuildDate string
	GoVersion string

	AllowedHosts   []string      // Host headers allowed to access the server
	AllowedCIDRS   []string      // IPs allowed to access readyz/infra
	TrustProxy     bool          // true if running behind a trusted reverse proxy (e.g., cloudflared)
	CORSOrigins    []string      // browser origins allowed to call the API
	AuthRateBurst  int           // token bucket size for /auth/*
	AuthRatePerMin int           // refill per IP per minute for /auth/*
	RequestTimeout time.Duration // per-request timeout, streams excluded
	PublicURL      string        // overrides the request origin in redirects (optional)
	AuthProvider   string        // ex: "google"
	ImportMaxBytes int64         // body cap for imports

	StreamKeepAlive time.Duration   // how often a live stream re-checks its session
	StreamHeartbeat time.Duration   // idle comment frames keeping proxies from closing streams
	Streams         context.Context // cancelled on shutdown to end live streams (optional)

	RedisClient     *redis.Client     // Redis client connection
	Store           *redisstore.Store // code claims, revocations, change bus
	Sessions        *session.Manager  // cookie-backed sessions
	Supabase        *supabase.Client  // auth + data backend
	Notifier        notify.Notifier   // change subscriptions for live streams (nil disables them)
	RealtimeEnabled bool
}
