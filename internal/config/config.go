// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes application settings
// such as server timeouts, logging, storage paths, the automation webhook
// destination, rate limiting, and observability.
package config

import (
	"errors"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig defines security-related settings such as HSTS.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "stackbuilder-backend")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// StoreConfig defines the embedded-database settings for submission storage.
//
// The store tries DBPath with the primary SQLite driver, then FallbackDBPath
// with the secondary driver, and finally degrades to an in-process volatile
// map. A quote-intake outage is worse than losing durability, so opening the
// store never prevents the process from serving.
type StoreConfig struct {
	DBPath         string // primary SQLite file (glebarez driver)
	FallbackDBPath string // secondary SQLite file (mattn-based driver); empty reuses DBPath
}

// WebhookConfig defines the outbound automation-endpoint settings.
type WebhookConfig struct {
	// DestinationURL is the external automation endpoint submissions are
	// forwarded to. Empty is allowed at boot; the proxy handler rejects
	// requests with a configuration error until it is set.
	DestinationURL string
	// ForwardTimeout bounds the outbound POST to the destination.
	ForwardTimeout time.Duration
	// PublicBaseURL overrides the callback base URL advertised to the
	// automation endpoint. When empty the request Host header is used.
	PublicBaseURL string
}

// ResolverConfig holds the defaults handed to polling response resolvers.
type ResolverConfig struct {
	PollInterval time.Duration // delay between poll attempts
	MaxAttempts  int           // not-found polls before synthesizing a fallback
	MaxErrors    int           // transport errors before giving up hard
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 20s
	IdleTimeout       time.Duration // e.g. 60s
	MaxHeaderBytes    int           // bytes
	GinMode           string        // debug|release|test

	// Logging
	LogLevel    string // debug|info|warn|error|fatal|panic
	LogPretty   bool   // pretty console logs in dev
	APIBasePath string // base path for API routes

	// App
	Store   StoreConfig
	Webhook WebhookConfig

	// AdminKey is the shared secret gating GET /admin. Empty disables the
	// inspector entirely (every request is rejected as unauthorized).
	AdminKey string

	// AllowLatestFallback enables the demo-only behavior of answering a poll
	// for an unknown submission id with the latest submission's response.
	// Returning another submission's in-flight plan is an information
	// disclosure hazard in multi-tenant settings, so it defaults to off.
	AllowLatestFallback bool

	// AdminMaxContentLen caps response content in admin listings.
	AdminMaxContentLen int

	// Resolver defaults for the polling client.
	Resolver ResolverConfig

	// Rate limiting
	RateRPS   float64 // tokens per second (>= 0)
	RateBurst int     // bucket size (>= 1)

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Observability
	OTEL OTELConfig
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables,
// applies defaults, normalizes values, and validates the result.
func Load() (Config, error) {
	cfg := Config{
		// Server
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		// Logging
		LogLevel:    strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:   getbool("LOG_PRETTY", false),
		APIBasePath: normalizeBasePath(getenv("API_BASE_PATH", "/api/v1")),

		// App
		Store: StoreConfig{
			DBPath:         getenv("DB_PATH", "submissions.db"),
			FallbackDBPath: getenv("DB_FALLBACK_PATH", ""),
		},
		Webhook: WebhookConfig{
			DestinationURL: getenv("WEBHOOK_URL", ""),
			ForwardTimeout: getdur("WEBHOOK_TIMEOUT", 25*time.Second),
			PublicBaseURL:  getenv("PUBLIC_BASE_URL", ""),
		},

		AdminKey:            getenv("ADMIN_KEY", ""),
		AllowLatestFallback: getbool("ALLOW_LATEST_FALLBACK", false),
		AdminMaxContentLen:  getint("ADMIN_MAX_CONTENT_LEN", 500),

		Resolver: ResolverConfig{
			PollInterval: getdur("POLL_INTERVAL", 3*time.Second),
			MaxAttempts:  getint("POLL_MAX_ATTEMPTS", 12),
			MaxErrors:    getint("POLL_MAX_ERRORS", 5),
		},

		// Rate limiting
		RateRPS:   getfloat("RATE_RPS", 5.0),
		RateBurst: getint("RATE_BURST", 10),

		// Web protection
		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS: getbool("ENABLE_HSTS", false),
			HSTSMaxAge: getdur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "stackbuilder-backend"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}

	// --- validation ---
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return cfg, errors.New("PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return cfg, errors.New("timeouts must be positive durations")
	}
	if cfg.MaxHeaderBytes <= 0 {
		return cfg, errors.New("MAX_HEADER_BYTES must be > 0")
	}
	if strings.TrimSpace(cfg.Store.DBPath) == "" {
		return cfg, errors.New("DB_PATH must not be empty")
	}
	if cfg.Webhook.DestinationURL != "" {
		if u, err := url.Parse(cfg.Webhook.DestinationURL); err != nil || u.Scheme == "" || u.Host == "" {
			return cfg, errors.New("WEBHOOK_URL must be an absolute URL")
		}
	}
	if cfg.Webhook.ForwardTimeout <= 0 {
		return cfg, errors.New("WEBHOOK_TIMEOUT must be > 0")
	}
	if cfg.Resolver.PollInterval <= 0 {
		return cfg, errors.New("POLL_INTERVAL must be > 0")
	}
	if cfg.Resolver.MaxAttempts < 1 {
		return cfg, errors.New("POLL_MAX_ATTEMPTS must be >= 1")
	}
	if cfg.Resolver.MaxErrors < 1 {
		return cfg, errors.New("POLL_MAX_ERRORS must be >= 1")
	}
	if cfg.AdminMaxContentLen < 1 {
		return cfg, errors.New("ADMIN_MAX_CONTENT_LEN must be >= 1")
	}
	if cfg.RateRPS < 0 {
		return cfg, errors.New("RATE_RPS must be >= 0")
	}
	if cfg.RateBurst < 1 {
		return cfg, errors.New("RATE_BURST must be >= 1")
	}
	if cfg.Security.HSTSMaxAge < 0 {
		return cfg, errors.New("HSTS_MAX_AGE must be >= 0")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}

	return cfg, nil
}

// ---- helpers (no external deps) ----

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// normalizeBasePath ensures leading '/' and strips trailing '/' (except root).
func normalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimRight(p, "/")
	}
	return p
}
