// Package daemon wires configuration, database, engine and transports into the pointsd process.
package daemon

import (
	"errors"
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/MarkoPoloResearchLab/communitypoints/internal/logging"
	"github.com/MarkoPoloResearchLab/communitypoints/pkg/points"
)

const (
	defaultDatabaseURL     = "sqlite://points.db"
	defaultHTTPListenAddr  = ":8080"
	defaultGRPCListenAddr  = ":7000"
	defaultAllowedOrigin   = "http://localhost:8000"
	defaultSessionIssuer   = "tauth"
	defaultSessionCookie   = "app_session"
	defaultTokenIssuer     = "pointsd"
	defaultTimeZone        = "UTC"
	defaultGormLogLevel    = "warn"
	defaultRequestTimeout  = 5 * time.Second
	defaultShutdownTimeout = 10 * time.Second
	defaultRetryBaseDelay  = points.DefaultRetryBaseDelay
	grpcListenDisabled     = "off"
)

// ErrInvalidConfig wraps every configuration problem reported by Validate.
var ErrInvalidConfig = errors.New("invalid config")

// Config aggregates runtime settings for pointsd.
type Config struct {
	DatabaseURL       string
	HTTPListenAddr    string
	GRPCListenAddr    string
	AllowedOrigins    []string
	SessionSigningKey string
	SessionIssuer     string
	SessionCookieName string
	TokenSigningKey   string
	TokenIssuer       string
	AdminIDs          []string
	AdminRole         string
	CatalogFile       string
	TimeZone          string
	DefaultCapacity   int
	CoworkingCost     int64
	WeeklyAllowance   int64
	RetryAttempts     int
	RequestTimeout    time.Duration
	ShutdownTimeout   time.Duration
	Log               logging.Config
	GormLogLevel      string
}

// Validate applies defaults and ensures the configuration contains sane values.
func (cfg *Config) Validate() error {
	cfg.DatabaseURL = defaultIfEmpty(cfg.DatabaseURL, defaultDatabaseURL)
	cfg.HTTPListenAddr = defaultIfEmpty(cfg.HTTPListenAddr, defaultHTTPListenAddr)
	cfg.GRPCListenAddr = defaultIfEmpty(cfg.GRPCListenAddr, defaultGRPCListenAddr)
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{defaultAllowedOrigin}
	}
	cfg.SessionIssuer = defaultIfEmpty(cfg.SessionIssuer, defaultSessionIssuer)
	cfg.SessionCookieName = defaultIfEmpty(cfg.SessionCookieName, defaultSessionCookie)
	cfg.TokenIssuer = defaultIfEmpty(cfg.TokenIssuer, defaultTokenIssuer)
	cfg.TimeZone = defaultIfEmpty(cfg.TimeZone, defaultTimeZone)
	cfg.GormLogLevel = defaultIfEmpty(cfg.GormLogLevel, defaultGormLogLevel)
	if cfg.DefaultCapacity == 0 {
		cfg.DefaultCapacity = points.DefaultCoworkingCapacity
	}
	if cfg.CoworkingCost == 0 {
		cfg.CoworkingCost = points.DefaultCoworkingCost
	}
	if cfg.WeeklyAllowance == 0 {
		cfg.WeeklyAllowance = points.DefaultWeeklyAllowance
	}
	if cfg.RetryAttempts == 0 {
		cfg.RetryAttempts = points.DefaultMaxAttempts
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = defaultShutdownTimeout
	}

	if cfg.DefaultCapacity < 0 {
		return fmt.Errorf("%w: default capacity must not be negative", ErrInvalidConfig)
	}
	if cfg.CoworkingCost < 0 {
		return fmt.Errorf("%w: coworking cost must not be negative", ErrInvalidConfig)
	}
	if cfg.WeeklyAllowance < 0 {
		return fmt.Errorf("%w: weekly allowance must not be negative", ErrInvalidConfig)
	}
	if cfg.RetryAttempts < 1 {
		return fmt.Errorf("%w: retry attempts must be at least 1", ErrInvalidConfig)
	}
	if _, err := cfg.Location(); err != nil {
		return err
	}
	if _, err := logging.ParseLevel(cfg.Log.Level); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if _, err := logging.ParseGormLevel(cfg.GormLogLevel); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

// validateServe checks the settings only the listeners need.
func (cfg Config) validateServe() error {
	if len(cfg.SessionSigningKey) == 0 {
		return fmt.Errorf("%w: session signing key is required", ErrInvalidConfig)
	}
	if strings.TrimSpace(cfg.SessionIssuer) == "" || strings.TrimSpace(cfg.SessionCookieName) == "" {
		return fmt.Errorf("%w: session issuer and cookie name are required", ErrInvalidConfig)
	}
	return nil
}

// GRPCEnabled reports whether the gRPC listener should start. It needs a token signing key and
// a listen address other than "off".
func (cfg Config) GRPCEnabled() bool {
	return len(cfg.TokenSigningKey) > 0 && !strings.EqualFold(strings.TrimSpace(cfg.GRPCListenAddr), grpcListenDisabled)
}

// Location loads the configured time zone.
func (cfg Config) Location() (*time.Location, error) {
	location, err := time.LoadLocation(defaultIfEmpty(cfg.TimeZone, defaultTimeZone))
	if err != nil {
		return nil, fmt.Errorf("%w: time zone %q: %w", ErrInvalidConfig, cfg.TimeZone, err)
	}
	return location, nil
}

func defaultIfEmpty(value string, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return strings.TrimSpace(value)
}

// ParseList splits comma-delimited values into a slice, dropping blanks.
func ParseList(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return []string{}
	}
	parts := strings.Split(raw, ",")
	normalized := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			normalized = append(normalized, trimmed)
		}
	}
	return normalized
}
