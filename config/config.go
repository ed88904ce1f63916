// Package config loads process configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/adeilh/plot-auth/auth"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// DefaultExpirationMinutes applies when an expiration setting is missing or unusable.
const DefaultExpirationMinutes = 30

var (
	ErrMissingIssuer      = errors.New("config: AUTH_ISSUER is required")
	ErrMissingAudience    = errors.New("config: AUTH_AUDIENCE is required")
	ErrMissingSecret      = errors.New("config: AUTH_SESSION_SECRET and AUTH_RESET_SECRET are required")
	ErrWeakSecret         = errors.New("config: signing secrets are too short")
	ErrSecretsNotDistinct = errors.New("config: AUTH_SESSION_SECRET must differ from AUTH_RESET_SECRET")
	ErrMissingDatabaseURL = errors.New("config: DATABASE_URL is required")
	ErrInvalidResetLink   = errors.New("config: AUTH_RESET_LINK_BASE_URL must be an absolute URL")
)

type Config struct {
	Auth     AuthConfig
	HTTP     HTTPConfig
	Database DatabaseConfig
	Mail     MailConfig
	Log      LogConfig

	// Fallbacks records settings that were replaced by defaults while loading.
	Fallbacks []Fallback
}

type AuthConfig struct {
	Issuer           string
	Audience         string
	SessionSecret    string
	ResetSecret      string
	SessionTTL       time.Duration
	ResetTTL         time.Duration
	ClockSkew        time.Duration
	ResetLinkBaseURL string
	BcryptCost       int
	RehashOnLogin    bool
	SessionCookie    string
	SecureCookie     bool
}

type HTTPConfig struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	CORSOrigins     []string
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type MailConfig struct {
	APIURL     string
	APIKey     string
	From       string
	Timeout    time.Duration
	MaxRetries int
}

type LogConfig struct {
	Level  string
	Format string
}

// Fallback describes a setting that could not be used as given.
type Fallback struct {
	Key    string
	Value  string
	Reason string
	Used   string
}

// Load reads .env (when present) and the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("config: read .env: %w", err)
	}
	return FromLookup(os.LookupEnv), nil
}

// FromLookup builds a Config from an arbitrary key lookup.
func FromLookup(lookup func(string) (string, bool)) *Config {
	l := loader{lookup: lookup}
	cfg := &Config{
		Auth: AuthConfig{
			Issuer:           l.str("AUTH_ISSUER", ""),
			Audience:         l.str("AUTH_AUDIENCE", ""),
			SessionSecret:    l.raw("AUTH_SESSION_SECRET"),
			ResetSecret:      l.raw("AUTH_RESET_SECRET"),
			SessionTTL:       l.expirationMinutes("AUTH_SESSION_EXPIRATION_MINUTES"),
			ResetTTL:         l.expirationMinutes("AUTH_RESET_EXPIRATION_MINUTES"),
			ClockSkew:        time.Duration(l.integer("AUTH_CLOCK_SKEW_SECONDS", 0)) * time.Second,
			ResetLinkBaseURL: l.str("AUTH_RESET_LINK_BASE_URL", ""),
			BcryptCost:       l.integer("AUTH_BCRYPT_COST", 12),
			RehashOnLogin:    l.boolean("AUTH_REHASH_ON_LOGIN", true),
			SessionCookie:    l.str("AUTH_SESSION_COOKIE", auth.DefaultSessionCookie),
			SecureCookie:     l.boolean("AUTH_COOKIE_SECURE", true),
		},
		HTTP: HTTPConfig{
			Addr:            l.str("HTTP_ADDR", ":8080"),
			ReadTimeout:     l.duration("HTTP_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    l.duration("HTTP_WRITE_TIMEOUT", 15*time.Second),
			ShutdownTimeout: l.duration("HTTP_SHUTDOWN_TIMEOUT", 10*time.Second),
			CORSOrigins:     l.list("HTTP_CORS_ORIGINS"),
		},
		Database: DatabaseConfig{
			URL:             l.str("DATABASE_URL", ""),
			MaxOpenConns:    l.integer("DB_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    l.integer("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: l.duration("DB_CONN_MAX_LIFETIME", 30*time.Minute),
		},
		Mail: MailConfig{
			APIURL:     l.str("MAIL_API_URL", ""),
			APIKey:     l.raw("MAIL_API_KEY"),
			From:       l.str("MAIL_FROM", "no-reply@plot.local"),
			Timeout:    l.duration("MAIL_TIMEOUT", 10*time.Second),
			MaxRetries: l.integer("MAIL_MAX_RETRIES", 2),
		},
		Log: LogConfig{
			Level:  l.str("LOG_LEVEL", "info"),
			Format: l.str("LOG_FORMAT", "json"),
		},
	}
	cfg.Fallbacks = l.fallbacks
	return cfg
}

// Validate reports the first fatal configuration problem.
func (c *Config) Validate() error {
	a := c.Auth
	switch {
	case a.Issuer == "":
		return ErrMissingIssuer
	case a.Audience == "":
		return ErrMissingAudience
	case a.SessionSecret == "" || a.ResetSecret == "":
		return ErrMissingSecret
	case len(a.SessionSecret) < auth.MinSecretLength || len(a.ResetSecret) < auth.MinSecretLength:
		return fmt.Errorf("%w: need at least %d bytes", ErrWeakSecret, auth.MinSecretLength)
	case a.SessionSecret == a.ResetSecret:
		return ErrSecretsNotDistinct
	case c.Database.URL == "":
		return ErrMissingDatabaseURL
	}
	u, err := url.Parse(a.ResetLinkBaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ErrInvalidResetLink
	}
	return nil
}

// LogFallbacks writes one Warn entry per defaulted setting.
func (c *Config) LogFallbacks(logger *zap.Logger) {
	if logger == nil {
		return
	}
	for _, f := range c.Fallbacks {
		logger.Warn("configuration fallback applied",
			zap.String("key", f.Key),
			zap.String("value", f.Value),
			zap.String("reason", f.Reason),
			zap.String("using", f.Used))
	}
}

type loader struct {
	lookup    func(string) (string, bool)
	fallbacks []Fallback
}

func (l *loader) raw(key string) string {
	v, _ := l.lookup(key)
	return v
}

func (l *loader) str(key, def string) string {
	if v := strings.TrimSpace(l.raw(key)); v != "" {
		return v
	}
	return def
}

func (l *loader) integer(key string, def int) int {
	v := strings.TrimSpace(l.raw(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		l.fallback(key, v, "not an integer", strconv.Itoa(def))
		return def
	}
	return n
}

func (l *loader) boolean(key string, def bool) bool {
	v := strings.TrimSpace(l.raw(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		l.fallback(key, v, "not a boolean", strconv.FormatBool(def))
		return def
	}
	return b
}

func (l *loader) duration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(l.raw(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		l.fallback(key, v, "not a positive duration", def.String())
		return def
	}
	return d
}

func (l *loader) list(key string) []string {
	var out []string
	for _, part := range strings.Split(l.raw(key), ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// expirationMinutes never fails: missing, non-integer and non-positive
// values all resolve to DefaultExpirationMinutes.
func (l *loader) expirationMinutes(key string) time.Duration {
	def := time.Duration(DefaultExpirationMinutes) * time.Minute
	v := strings.TrimSpace(l.raw(key))
	if v == "" {
		l.fallback(key, v, "missing", def.String())
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		l.fallback(key, v, "not an integer", def.String())
		return def
	}
	if n <= 0 {
		l.fallback(key, v, "not positive", def.String())
		return def
	}
	return time.Duration(n) * time.Minute
}

func (l *loader) fallback(key, value, reason, used string) {
	l.fallbacks = append(l.fallbacks, Fallback{Key: key, Value: value, Reason: reason, Used: used})
}
