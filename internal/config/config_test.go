package config

import (
	"strings"
	"testing"
	"time"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("SUPABASE_URL", "https://abcd.supabase.co/")
	t.Setenv("SUPABASE_ANON_KEY", "anon-key")
	t.Setenv("MARKS_REDIS_ADDR", "localhost:6379")
	t.Setenv("MARKS_REDIS_DB", "0")
	t.Setenv("MARKS_REDIS_PASSWORD_REQUIRED", "false")
	t.Setenv("MARKS_ALLOWED_HOSTS", "marks.domain.ext, localhost:8080")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)

	cfg := Load()

	if cfg.SupabaseURL != "https://abcd.supabase.co" {
		t.Errorf("SupabaseURL = %q, trailing slash should be trimmed", cfg.SupabaseURL)
	}
	if cfg.IsDev() {
		t.Error("IsDev() = true, want production by default")
	}
	if !cfg.CookieSecure {
		t.Error("CookieSecure = false, want true outside development")
	}
	if cfg.AuthProvider != "google" {
		t.Errorf("AuthProvider = %q, want google", cfg.AuthProvider)
	}
	if cfg.SessionMaxAge != 7*24*time.Hour {
		t.Errorf("SessionMaxAge = %v, want 168h", cfg.SessionMaxAge)
	}
	if len(cfg.AllowedHosts) != 2 || cfg.AllowedHosts[1] != "localhost:8080" {
		t.Errorf("AllowedHosts = %v", cfg.AllowedHosts)
	}
	if !cfg.RealtimeEnabled {
		t.Error("RealtimeEnabled = false, want true by default")
	}
	if cfg.ImportMaxBytes != 1<<20 {
		t.Errorf("ImportMaxBytes = %d", cfg.ImportMaxBytes)
	}
}

func TestLoadDevelopmentDisablesSecureCookies(t *testing.T) {
	setRequired(t)
	t.Setenv("MARKS_ENV", "Development")

	cfg := Load()

	if !cfg.IsDev() {
		t.Fatal("IsDev() = false, want true")
	}
	if cfg.CookieSecure {
		t.Error("CookieSecure = true, want false in development")
	}
}

func TestLoadExplicitCookieSecureWins(t *testing.T) {
	setRequired(t)
	t.Setenv("MARKS_ENV", "development")
	t.Setenv("MARKS_COOKIE_SECURE", "true")

	if cfg := Load(); !cfg.CookieSecure {
		t.Error("CookieSecure = false, want explicit override")
	}
}

func TestLoadPanics(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{name: "missing supabase url", key: "SUPABASE_URL", value: ""},
		{name: "invalid supabase url", key: "SUPABASE_URL", value: "ftp://abcd"},
		{name: "missing anon key", key: "SUPABASE_ANON_KEY", value: ""},
		{name: "invalid public url", key: "MARKS_PUBLIC_URL", value: "marks.domain.ext"},
		{name: "missing redis password", key: "MARKS_REDIS_PASSWORD_REQUIRED", value: "true"},
		{name: "missing hosts", key: "MARKS_ALLOWED_HOSTS", value: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequired(t)
			t.Setenv(tt.key, tt.value)

			defer func() {
				r := recover()
				if r == nil {
					t.Fatal("Load() should have panicked")
				}
				if msg, ok := r.(string); !ok || !strings.HasPrefix(msg, "❌ FATAL") {
					t.Errorf("panic = %v, want a FATAL message", r)
				}
			}()
			Load()
		})
	}
}

func TestRedacted(t *testing.T) {
	cfg := &Config{
		SupabaseAnonKey:        "anon",
		SupabaseServiceRoleKey: "service",
		SupabaseJWTSecret:      "",
		RedisUser:              "default",
		RedisPassword:          "hunter2",
	}

	got := cfg.Redacted()

	for name, v := range map[string]string{
		"anon":     got.SupabaseAnonKey,
		"service":  got.SupabaseServiceRoleKey,
		"user":     got.RedisUser,
		"password": got.RedisPassword,
	} {
		if v != "***REDACTED***" {
			t.Errorf("%s = %q, want redacted", name, v)
		}
	}
	if got.SupabaseJWTSecret != "" {
		t.Errorf("empty secret should stay empty, got %q", got.SupabaseJWTSecret)
	}
	if cfg.SupabaseAnonKey != "anon" {
		t.Error("Redacted() must not mutate the receiver")
	}
}

func TestRequireEnvInt(t *testing.T) {
	tests := []struct {
		name      string
		value     string
		expected  int
		wantPanic bool
	}{
		{name: "valid integer", value: "42", expected: 42},
		{name: "invalid integer", value: "not_a_number", wantPanic: true},
		{name: "missing variable", value: "", wantPanic: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("TEST_INT", tt.value)

			if tt.wantPanic {
				defer func() {
					if r := recover(); r == nil {
						t.Errorf("requireEnvInt() should have panicked")
					}
				}()
			}

			result := requireEnvInt("TEST_INT")
			if !tt.wantPanic && result != tt.expected {
				t.Errorf("requireEnvInt() = %v, want %v", result, tt.expected)
			}
		})
	}
}

func TestSplitAndTrim(t *testing.T) {
	tests := []struct {
		name     string
		in       string
		expected []string
	}{
		{name: "empty", in: "", expected: nil},
		{name: "single", in: "a", expected: []string{"a"}},
		{name: "spaces and quotes", in: ` "a" , 'b',, c `, expected: []string{"a", "b", "c"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := splitAndTrim(tt.in)
			if len(got) != len(tt.expected) {
				t.Fatalf("splitAndTrim(%q) = %v, want %v", tt.in, got, tt.expected)
			}
			for i := range got {
				if got[i] != tt.expected[i] {
					t.Errorf("splitAndTrim(%q)[%d] = %q, want %q", tt.in, i, got[i], tt.expected[i])
				}
			}
		})
	}
}

func TestMustDurationAndBool(t *testing.T) {
	t.Setenv("TEST_DURATION", "5s")
	t.Setenv("TEST_DURATION_INVALID", "soon")
	t.Setenv("TEST_BOOL", "false")
	t.Setenv("TEST_BOOL_INVALID", "maybe")

	if got := mustDuration("TEST_DURATION", time.Second); got != 5*time.Second {
		t.Errorf("mustDuration() = %v, want 5s", got)
	}
	if got := mustDuration("TEST_DURATION_INVALID", 10*time.Second); got != 10*time.Second {
		t.Errorf("mustDuration() invalid = %v, want default", got)
	}
	if got := mustBool("TEST_BOOL", true); got {
		t.Error("mustBool() = true, want false")
	}
	if got := mustBool("TEST_BOOL_INVALID", true); !got {
		t.Error("mustBool() invalid should use default")
	}
}
