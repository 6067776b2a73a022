// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes application settings
// such as server timeouts, logging, database selection, RFI rules, the mail
// transport, rate limiting, and observability.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Rate-limit bucket keys (RATE_KEY).
const (
	RateKeyRoute = "route" // one bucket per route and client
	RateKeyIP    = "ip"    // one bucket per client
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
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "rfi-tracker")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// DBConfig selects and locates the database.
type DBConfig struct {
	Driver string // DB_DRIVER: sqlite|postgres
	Path   string // DB_PATH (sqlite file)
	URL    string // DATABASE_URL (postgres DSN)
}

// RFIConfig holds the registry rules.
type RFIConfig struct {
	SubjectMaxLen     int // RFI_SUBJECT_MAX_LEN
	QuestionMaxLen    int // RFI_QUESTION_MAX_LEN
	NumberMaxAttempts int // RFI_NUMBER_MAX_ATTEMPTS
}

// MailConfig configures the outbound/inbound mail transport.
type MailConfig struct {
	Transport       string // MAIL_TRANSPORT: gmail|disabled
	CredentialsFile string // GMAIL_CREDENTIALS_FILE (OAuth client JSON)
	TokenFile       string // GMAIL_TOKEN_FILE (stored OAuth token JSON)
	User            string // GMAIL_USER, "me" for the authorized account
	From            string // MAIL_FROM
	MessageIDDomain string // MAIL_MESSAGE_ID_DOMAIN, right side of generated Message-IDs
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

	// Logging / Docs
	LogLevel       string // debug|info|warn|error|fatal|panic
	LogPretty      bool   // pretty console logs in dev
	SwaggerEnabled bool   // enable Swagger UI route
	APIBasePath    string // base path for API routes

	// App
	DB   DBConfig
	RFI  RFIConfig
	Mail MailConfig

	// Webhook
	WebhookMaxBodyBytes int64 // WEBHOOK_MAX_BODY_BYTES

	// Rate limiting
	RateRPS   float64 // tokens per second (>= 0)
	RateBurst int     // bucket size (>= 1)
	RateKey   string  // RateKeyRoute or RateKeyIP

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Idempotency
	IdempotencyTTL time.Duration // how long a given Idempotency-Key is valid

	// Observability
	OTEL OTELConfig
}

// Load reads configuration from environment variables, applies defaults,
// normalizes values and validates the result. A variable that is set but
// cannot be parsed is an error, not a silent default. All problems are
// reported together.
func Load() (Config, error) {
	var e env
	cfg := Config{
		Port:              e.str("PORT", "8080"),
		ReadTimeout:       e.duration("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: e.duration("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      e.duration("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       e.duration("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    e.integer("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(e.str("GIN_MODE", "release")),

		LogLevel:       strings.ToLower(e.str("LOG_LEVEL", "info")),
		LogPretty:      e.flag("LOG_PRETTY", false),
		SwaggerEnabled: e.flag("SWAGGER_ENABLED", false),
		APIBasePath:    normalizeBasePath(e.str("API_BASE_PATH", "/api/v1")),

		DB: DBConfig{
			Driver: strings.ToLower(e.str("DB_DRIVER", "sqlite")),
			Path:   e.str("DB_PATH", "rfi.db"),
			URL:    e.str("DATABASE_URL", ""),
		},
		RFI: RFIConfig{
			SubjectMaxLen:     e.integer("RFI_SUBJECT_MAX_LEN", 255),
			QuestionMaxLen:    e.integer("RFI_QUESTION_MAX_LEN", 10000),
			NumberMaxAttempts: e.integer("RFI_NUMBER_MAX_ATTEMPTS", 10),
		},
		Mail: MailConfig{
			Transport:       strings.ToLower(e.str("MAIL_TRANSPORT", "disabled")),
			CredentialsFile: e.str("GMAIL_CREDENTIALS_FILE", ""),
			TokenFile:       e.str("GMAIL_TOKEN_FILE", ""),
			User:            e.str("GMAIL_USER", "me"),
			From:            e.str("MAIL_FROM", ""),
			MessageIDDomain: e.str("MAIL_MESSAGE_ID_DOMAIN", "rfi-tracker.local"),
		},
		WebhookMaxBodyBytes: int64(e.integer("WEBHOOK_MAX_BODY_BYTES", 256<<10)),

		RateRPS:   e.number("RATE_RPS", 5.0),
		RateBurst: e.integer("RATE_BURST", 10),
		RateKey:   strings.ToLower(e.str("RATE_KEY", RateKeyRoute)),

		CORS: CORSConfig{
			AllowedOrigins: splitCSV(e.str("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS: e.flag("ENABLE_HSTS", false),
			HSTSMaxAge: e.duration("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		IdempotencyTTL: e.duration("IDEMPOTENCY_TTL", 24*time.Hour),

		OTEL: OTELConfig{
			Enabled:     e.flag("OTEL_ENABLED", false),
			Endpoint:    e.str("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    e.flag("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: e.str("OTEL_SERVICE_NAME", "rfi-tracker"),
			SampleRatio: e.number("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}

	return cfg, errors.Join(append(e.errs, cfg.validate()...)...)
}

// validate returns every rule the configuration breaks.
func (cfg Config) validate() []error {
	var errs []error
	check := func(ok bool, msg string) {
		if !ok {
			errs = append(errs, errors.New(msg))
		}
	}

	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		check(false, "LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	check(strings.TrimSpace(cfg.Port) != "", "PORT must not be empty")
	check(cfg.ReadTimeout > 0 && cfg.ReadHeaderTimeout > 0 && cfg.WriteTimeout > 0 && cfg.IdleTimeout > 0,
		"timeouts must be positive durations")
	check(cfg.MaxHeaderBytes > 0, "MAX_HEADER_BYTES must be > 0")

	switch cfg.DB.Driver {
	case "sqlite":
		check(strings.TrimSpace(cfg.DB.Path) != "", "DB_PATH must not be empty")
	case "postgres":
		check(strings.TrimSpace(cfg.DB.URL) != "", "DATABASE_URL must be set when DB_DRIVER=postgres")
	default:
		check(false, "DB_DRIVER must be one of: sqlite, postgres")
	}

	check(cfg.RFI.SubjectMaxLen >= 1 && cfg.RFI.QuestionMaxLen >= 1,
		"RFI_SUBJECT_MAX_LEN and RFI_QUESTION_MAX_LEN must be >= 1")
	check(cfg.RFI.NumberMaxAttempts >= 1, "RFI_NUMBER_MAX_ATTEMPTS must be >= 1")

	switch cfg.Mail.Transport {
	case "disabled":
	case "gmail":
		check(cfg.Mail.CredentialsFile != "" && cfg.Mail.TokenFile != "",
			"GMAIL_CREDENTIALS_FILE and GMAIL_TOKEN_FILE are required when MAIL_TRANSPORT=gmail")
	default:
		check(false, "MAIL_TRANSPORT must be one of: gmail, disabled")
	}
	check(strings.TrimSpace(cfg.Mail.MessageIDDomain) != "", "MAIL_MESSAGE_ID_DOMAIN must not be empty")
	check(cfg.WebhookMaxBodyBytes > 0, "WEBHOOK_MAX_BODY_BYTES must be > 0")

	check(cfg.RateRPS >= 0, "RATE_RPS must be >= 0")
	check(cfg.RateBurst >= 1, "RATE_BURST must be >= 1")
	check(cfg.RateKey == RateKeyRoute || cfg.RateKey == RateKeyIP, "RATE_KEY must be one of: route, ip")
	check(cfg.Security.HSTSMaxAge >= 0, "HSTS_MAX_AGE must be >= 0")
	check(cfg.IdempotencyTTL > 0, "IDEMPOTENCY_TTL must be > 0")
	check(cfg.OTEL.SampleRatio >= 0 && cfg.OTEL.SampleRatio <= 1, "OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	return errs
}

// env reads typed variables and remembers the ones it could not parse.
// Unset or empty variables take the default.
type env struct {
	errs []error
}

func (e *env) lookup(k string) (string, bool) {
	v, ok := os.LookupEnv(k)
	return v, ok && v != ""
}

func (e *env) fail(k, v, kind string) {
	e.errs = append(e.errs, fmt.Errorf("%s=%q is not a valid %s", k, v, kind))
}

func (e *env) str(k, def string) string {
	if v, ok := e.lookup(k); ok {
		return v
	}
	return def
}

func (e *env) integer(k string, def int) int {
	v, ok := e.lookup(k)
	if !ok {
		return def
	}
	i, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		e.fail(k, v, "integer")
		return def
	}
	return i
}

func (e *env) number(k string, def float64) float64 {
	v, ok := e.lookup(k)
	if !ok {
		return def
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		e.fail(k, v, "number")
		return def
	}
	return f
}

func (e *env) flag(k string, def bool) bool {
	v, ok := e.lookup(k)
	if !ok {
		return def
	}
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	}
	e.fail(k, v, "boolean")
	return def
}

func (e *env) duration(k string, def time.Duration) time.Duration {
	v, ok := e.lookup(k)
	if !ok {
		return def
	}
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		e.fail(k, v, "duration")
		return def
	}
	return d
}

func splitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// normalizeBasePath ensures a leading '/' and strips trailing ones (except root).
func normalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if t := strings.TrimRight(p, "/"); t != "" {
		return t
	}
	return "/"
}
