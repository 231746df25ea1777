// Package config loads and validates the connector configuration file. The
// configuration is read once at startup and the resulting ConnectorConfig is
// treated as immutable for the life of the process.
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bschlintz/panopto-index-connector/internal/fieldmap"
)

// ConnectorConfig is the validated connector configuration.
type ConnectorConfig struct {
	PanoptoSiteAddress      string
	PanoptoOAuthCredentials OAuthCredentials
	TargetAddress           string
	TargetCredentials       TargetCredentials
	TargetImplementation    string
	FieldMapping            *fieldmap.Mapping

	Polling PollingConfig
	Logging LoggingConfig
	Server  ServerConfig
	State   StateConfig
}

// OAuthCredentials holds the Panopto OAuth2 client settings. Username and
// Password are only used by the password grant and may be empty for other
// grant types.
type OAuthCredentials struct {
	Username     string
	Password     string
	ClientID     string
	ClientSecret string
	GrantType    string
}

// TargetCredentials holds the credentials for the downstream index target.
type TargetCredentials struct {
	Username string
	Password string
}

// PollingConfig controls the sync loop cadence.
type PollingConfig struct {
	Frequency    time.Duration // interval between successful sync cycles
	RetryMinimum time.Duration // wait after a failed cycle
	ItemThrottle time.Duration // pause between per-video syncs
	PageLimit    int           // max update pages per cycle
}

// LoggingConfig represents structured logging configuration.
type LoggingConfig struct {
	Level  slog.Level
	Format string
}

// ServerConfig holds the admin HTTP server parameters. An empty Port disables
// the server.
type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// StateConfig selects where the sync checkpoint is persisted.
type StateConfig struct {
	Backend string // "file" or "postgres"
	Path    string // file backend: override the default checkpoint path
	DSN     string // postgres backend: connection string
}

const (
	defaultPollingFrequency    = 10 * time.Minute
	defaultPollingRetryMinimum = 5 * time.Minute
	defaultItemThrottle        = 2 * time.Second
	defaultPageLimit           = 1000

	defaultLogFormat = "json"

	defaultReadTimeout     = 10 * time.Second
	defaultWriteTimeout    = 10 * time.Second
	defaultShutdownTimeout = 5 * time.Second

	// StateBackendFile persists the checkpoint in a local tracking file.
	StateBackendFile = "file"
	// StateBackendPostgres persists the checkpoint in a Postgres table.
	StateBackendPostgres = "postgres"
)

// Adapter identifiers accepted for target_implementation. The target package
// keeps its own registry keyed by the same names.
var supportedImplementations = []string{
	"coveo_implementation",
	"debug_implementation",
}

// SupportedImplementations returns the adapter identifiers accepted for
// target_implementation.
func SupportedImplementations() []string {
	out := make([]string, len(supportedImplementations))
	copy(out, supportedImplementations)
	return out
}

func isSupportedImplementation(name string) bool {
	for _, impl := range supportedImplementations {
		if impl == name {
			return true
		}
	}
	return false
}

func defaultPolling() PollingConfig {
	return PollingConfig{
		Frequency:    defaultPollingFrequency,
		RetryMinimum: defaultPollingRetryMinimum,
		ItemThrottle: defaultItemThrottle,
		PageLimit:    defaultPageLimit,
	}
}

func defaultLogging() LoggingConfig {
	return LoggingConfig{Level: slog.LevelInfo, Format: defaultLogFormat}
}

func defaultServer() ServerConfig {
	return ServerConfig{
		ReadTimeout:     defaultReadTimeout,
		WriteTimeout:    defaultWriteTimeout,
		ShutdownTimeout: defaultShutdownTimeout,
	}
}

func defaultState() StateConfig {
	return StateConfig{Backend: StateBackendFile}
}

// String renders a redacted summary suitable for startup logging. Secrets are
// never included.
func (c ConnectorConfig) String() string {
	return fmt.Sprintf(
		"panopto=%s target=%s implementation=%s grant_type=%s mapped_fields=%d state=%s",
		c.PanoptoSiteAddress,
		c.TargetAddress,
		c.TargetImplementation,
		c.PanoptoOAuthCredentials.GrantType,
		c.FieldMapping.Len(),
		c.State.Backend,
	)
}

func parseLogLevel(raw string) (slog.Level, error) {
	switch strings.ToLower(raw) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("must be one of debug, info, warn, error")
	}
}

func logLevelName(level slog.Level) string {
	switch level {
	case slog.LevelDebug:
		return "debug"
	case slog.LevelWarn:
		return "warn"
	case slog.LevelError:
		return "error"
	default:
		return "info"
	}
}
