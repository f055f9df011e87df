package config

import (
	"fmt"
	"log"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const envDevelopment = "development"

type Config struct {
	ListenPort      string        // ex: ":8080"
	ShutdownTimeout time.Duration // ex: 5s
	RequestTimeout  time.Duration // per-request timeout for non-streaming routes

	LogLevel  string // "debug" | "info" | "warn" | "error"
	PrettyLog bool   // true => zap dev (color), false => zap prod (JSON)

	Env       string // "production" | "development"
	PublicURL string // optional, overrides the origin derived from the request

	// Supabase
	SupabaseURL            string // ex: https://abcd.supabase.co
	SupabaseAnonKey        string // public API key sent with every request
	SupabaseServiceRoleKey string // optional, server-only key used by the readiness probe
	SupabaseJWTSecret      string // optional, verifies access token signatures
	AuthProvider           string // ex: "google"
	RealtimeEnabled        bool   // subscribe to postgres changes over Supabase Realtime

	// Session cookies
	CookieDomain  string
	CookieSecure  bool
	SessionMaxAge time.Duration

	// Redis
	RedisAddr             string        // ex: "localhost:6379"
	RedisUser             string        // optional
	RedisPassword         string        // optional
	RedisPasswordRequired bool          // true => require password, false => allow empty password
	RedisDB               int           // Redis DB number
	RedisDT               time.Duration // Redis dial timeout (ex: 5s)
	RedisRT               time.Duration // Redis read timeout (ex: 3s)
	RedisWT               time.Duration // Redis write timeout (ex: 3s)
	RedisMaxWait          time.Duration // max wait between retries (ex: 10s)
	RedisPingTimeout      time.Duration // timeout for each ping attempt (ex: 5s)
	RedisPoolSize         int           // Redis connection pool size
	RedisConnectTimeout   time.Duration // Total time to retry connecting (ex: 30s)
	RedisRetryInterval    time.Duration // Initial wait between retries (ex: 2s, grows exponentially)
	RedisWarnThreshold    int           // warn after this many attempts

	AllowedHosts []string // restrict access to specific Host headers
	AllowedCIDRS []string // optional, restrict probes to specific IPs (e.g. "1.2.3.4, 10.0.0.0/8")
	TrustProxy   bool     // true => trust X-Forwarded-* headers (e.g. cloudflared)
	CORSOrigins  []string // optional, origins allowed to call the API from a browser

	AuthRateBurst  int   // token bucket size for /auth/*
	AuthRatePerMin int   // refill per IP per minute for /auth/*
	ImportMaxBytes int64 // max body size for bookmark imports
}

// IsDev reports whether the service runs in development mode.
func (c *Config) IsDev() bool { return c.Env == envDevelopment }

func Load() *Config {
	// A missing .env is the normal case outside local development.
	_ = godotenv.Load()

	env := strings.ToLower(getenv("MARKS_ENV", "production"))

	cfg := &Config{
		// Server settings
		ListenPort:      getenv("MARKS_LISTEN_PORT", ":8080"),
		ShutdownTimeout: mustDuration("MARKS_SHUTDOWN_TIMEOUT", 5*time.Second),
		RequestTimeout:  mustDuration("MARKS_REQUEST_TIMEOUT", 10*time.Second),

		// Logging
		LogLevel:  getenv("MARKS_LOG_LEVEL", "info"),
		PrettyLog: mustBool("MARKS_PRETTY_LOG", true),

		Env:       env,
		PublicURL: strings.TrimRight(getenv("MARKS_PUBLIC_URL", ""), "/"),

		// Supabase
		SupabaseURL:            strings.TrimRight(requireEnv("SUPABASE_URL"), "/"),
		SupabaseAnonKey:        requireEnv("SUPABASE_ANON_KEY"),
		SupabaseServiceRoleKey: getenv("SUPABASE_SERVICE_ROLE_KEY", ""),
		SupabaseJWTSecret:      getenv("SUPABASE_JWT_SECRET", ""),
		AuthProvider:           getenv("MARKS_AUTH_PROVIDER", "google"),
		RealtimeEnabled:        mustBool("MARKS_REALTIME_ENABLED", true),

		// Session cookies
		CookieDomain:  getenv("MARKS_COOKIE_DOMAIN", ""),
		CookieSecure:  mustBool("MARKS_COOKIE_SECURE", env != envDevelopment),
		SessionMaxAge: mustDuration("MARKS_SESSION_MAX_AGE", 7*24*time.Hour),

		// Redis settings
		RedisAddr:             requireEnv("MARKS_REDIS_ADDR"),
		RedisUser:             getenv("MARKS_REDIS_USERNAME", "default"),
		RedisPasswordRequired: mustBool("MARKS_REDIS_PASSWORD_REQUIRED", true),
		RedisPassword:         getenv("MARKS_REDIS_PASSWORD", ""),
		RedisDB:               requireEnvInt("MARKS_REDIS_DB"),
		RedisDT:               mustDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
		RedisRT:               mustDuration("REDIS_READ_TIMEOUT", 3*time.Second),
		RedisWT:               mustDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		RedisMaxWait:          mustDuration("REDIS_MAX_WAIT", 10*time.Second),
		RedisPingTimeout:      mustDuration("REDIS_PING_TIMEOUT", 5*time.Second),
		RedisPoolSize:         getenvInt("REDIS_POOL_SIZE", 10),
		RedisConnectTimeout:   mustDuration("REDIS_CONNECT_TIMEOUT", 30*time.Second),
		RedisRetryInterval:    mustDuration("REDIS_RETRY_INTERVAL", 2*time.Second),
		RedisWarnThreshold:    getenvInt("REDIS_WARN_THRESHOLD", 3),

		// Access restrictions
		AllowedHosts: requireEnvSlice("MARKS_ALLOWED_HOSTS"),
		AllowedCIDRS: parseAllowedIPs(getenv("MARKS_ALLOWED_CIDRS", "")),
		TrustProxy:   mustBool("MARKS_TRUST_PROXY", true),
		CORSOrigins:  splitAndTrim(getenv("MARKS_CORS_ORIGINS", "")),

		AuthRateBurst:  getenvInt("MARKS_AUTH_RATE_BURST", 10),
		AuthRatePerMin: getenvInt("MARKS_AUTH_RATE_PER_MIN", 30),
		ImportMaxBytes: int64(getenvInt("MARKS_IMPORT_MAX_BYTES", 1<<20)),
	}

	if cfg.RedisPasswordRequired && cfg.RedisPassword == "" {
		panic("❌ FATAL: MARKS_REDIS_PASSWORD is required when MARKS_REDIS_PASSWORD_REQUIRED=true")
	}
	if err := validateBaseURL(cfg.SupabaseURL); err != nil {
		panic(fmt.Sprintf("❌ FATAL: SUPABASE_URL: %v", err))
	}
	if cfg.PublicURL != "" {
		if err := validateBaseURL(cfg.PublicURL); err != nil {
			panic(fmt.Sprintf("❌ FATAL: MARKS_PUBLIC_URL: %v", err))
		}
	}

	// Log config only in debug mode with redacted sensitive fields
	if cfg.LogLevel == "debug" {
		log.Printf("[DEBUG] cfg: %+v\n", cfg.Redacted())
	}

	return cfg
}

// Redacted returns a copy safe to print.
func (c *Config) Redacted() Config {
	cp := *c
	cp.RedisPassword = redact(c.RedisPassword)
	if c.RedisUser != "" {
		cp.RedisUser = redact(c.RedisUser)
	}
	cp.SupabaseAnonKey = redact(c.SupabaseAnonKey)
	cp.SupabaseServiceRoleKey = redact(c.SupabaseServiceRoleKey)
	cp.SupabaseJWTSecret = redact(c.SupabaseJWTSecret)
	return cp
}

func redact(v string) string {
	if v == "" {
		return ""
	}
	return "***REDACTED***"
}

// validateBaseURL accepts absolute http(s) URLs without query or fragment.
func validateBaseURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("missing host in %q", raw)
	}
	if u.RawQuery != "" || u.Fragment != "" {
		return fmt.Errorf("must not carry a query or fragment")
	}
	return nil
}

// helpers
func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func requireEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		panic(fmt.Sprintf("❌ FATAL: Required environment variable %s is not set", key))
	}
	return v
}

func requireEnvInt(key string) int {
	v := os.Getenv(key)
	if v == "" {
		panic(fmt.Sprintf("❌ FATAL: Required environment variable %s is not set", key))
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		panic(fmt.Sprintf("❌ FATAL: Invalid integer value for %s: %s", key, v))
	}
	return i
}

func requireEnvSlice(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		panic(fmt.Sprintf("❌ FATAL: Required environment variable %s is not set", key))
	}
	return splitAndTrim(v)
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func mustBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func mustDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func parseAllowedIPs(allowed string) []string {
	if allowed == "" {
		return nil
	}
	ips := make([]string, 0, 4)
	for _, ip := range splitAndTrim(allowed) {
		if ip != "" {
			ips = append(ips, ip)
		}
	}
	return ips
}

func splitAndTrim(s string) []string {
	if s == "" {
		return nil
	}
	raw := strings.Split(s, ",")
	parts := make([]string, 0, len(raw))
	for _, part := range raw {
		trimmed := strings.TrimSpace(part)
		// Remove surrounding quotes if present
		trimmed = strings.Trim(trimmed, `"'`)
		if trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return parts
}
