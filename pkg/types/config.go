package types

import (
	"errors"
	"time"
)

// Config holds backend selection and parameters for Backend.Attach.
type Config struct {
	Backend     string `json:"backend" yaml:"backend"`
	DataDir     string `json:"data_dir" yaml:"data_dir"`
	PostgresDSN string `json:"postgres_dsn,omitempty" yaml:"postgres_dsn,omitempty"`
}

// Supported backend names.
const (
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

// Config validation errors.
var (
	ErrBackendEmpty   = errors.New("backend must not be empty")
	ErrBackendUnknown = errors.New("unknown backend")
	ErrDSNEmpty       = errors.New("postgres backend requires a DSN")
	ErrRetryInvalid   = errors.New("retry attempts must be positive")
)

var knownBackends = map[string]bool{
	BackendSQLite:   true,
	BackendPostgres: true,
	BackendMemory:   true,
}

// Validate checks that the Config is well-formed.
func (c Config) Validate() error {
	if c.Backend == "" {
		return ErrBackendEmpty
	}
	if !knownBackends[c.Backend] {
		return ErrBackendUnknown
	}
	if c.Backend == BackendPostgres && c.PostgresDSN == "" {
		return ErrDSNEmpty
	}
	return nil
}

// RetryPolicy bounds how often a ranking operation is re-run after a
// transient storage failure.
type RetryPolicy struct {
	MaxAttempts int           `json:"max_attempts" yaml:"max_attempts"`
	Backoff     time.Duration `json:"backoff" yaml:"backoff"`
}

// DefaultRetryPolicy is used when no policy is configured.
var DefaultRetryPolicy = RetryPolicy{MaxAttempts: 5, Backoff: 10 * time.Millisecond}

// Validate checks that the policy allows at least one attempt.
func (p RetryPolicy) Validate() error {
	if p.MaxAttempts < 1 {
		return ErrRetryInvalid
	}
	return nil
}
