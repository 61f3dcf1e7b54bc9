package cli

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/mesh-intelligence/boards/internal/archive"
	"github.com/mesh-intelligence/boards/internal/paths"
	"github.com/mesh-intelligence/boards/pkg/types"
)

const (
	configFileName = "config"
	configFileType = "yaml"

	cfgKeyBackend     = "backend"
	cfgKeyDataDir     = "data_dir"
	cfgKeyPostgresDSN = "postgres.dsn"
	cfgKeyRetryMax    = "retry.max_attempts"
	cfgKeyRetryDelay  = "retry.backoff"
	cfgKeyLogLevel    = "log.level"
	cfgKeyMetricsFile = "metrics.textfile"
	cfgKeyS3Region    = "archive.s3.region"
	cfgKeyS3Endpoint  = "archive.s3.endpoint"
	cfgKeyS3PathStyle = "archive.s3.path_style"

	// envPostgresDSN keeps credentials out of config.yaml.
	envPostgresDSN = "BOARDS_POSTGRES_DSN"
)

// defaultConfigYAML is written to config.yaml on first run.
const defaultConfigYAML = `# board CLI configuration

# Storage backend: sqlite, postgres or memory
backend: sqlite

# Data directory for the sqlite backend (optional; --data-dir wins)
# data_dir:

# postgres:
#   dsn: postgres://localhost/boards?sslmode=disable

retry:
  max_attempts: 5
  backoff: 10ms

log:
  level: warn

# metrics:
#   textfile: /var/lib/node_exporter/boards.prom

# archive:
#   s3:
#     region: us-east-1
#     endpoint: http://localhost:9000
#     path_style: true
`

// settings is the resolved configuration for one invocation.
type settings struct {
	ConfigDir   string
	Backend     types.Config
	Retry       types.RetryPolicy
	LogLevel    slog.Level
	MetricsFile string
	S3          archive.S3Config
}

// loadConfig reads config.yaml from configDir using Viper, writing a default
// file on first run.
func loadConfig(configDir string) (*viper.Viper, error) {
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return nil, fmt.Errorf("ensure config dir: %w", err)
	}
	if err := ensureDefaultConfigFile(configDir); err != nil {
		return nil, fmt.Errorf("ensure default config: %w", err)
	}

	v := viper.New()
	v.SetDefault(cfgKeyBackend, types.BackendSQLite)
	v.SetDefault(cfgKeyRetryMax, types.DefaultRetryPolicy.MaxAttempts)
	v.SetDefault(cfgKeyRetryDelay, types.DefaultRetryPolicy.Backoff)
	v.SetDefault(cfgKeyLogLevel, "warn")
	v.SetDefault(cfgKeyS3Region, "us-east-1")
	if err := v.BindEnv(cfgKeyPostgresDSN, envPostgresDSN); err != nil {
		return nil, fmt.Errorf("bind env: %w", err)
	}
	v.SetConfigName(configFileName)
	v.SetConfigType(configFileType)
	v.AddConfigPath(configDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return v, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	return v, nil
}

func ensureDefaultConfigFile(configDir string) error {
	path := paths.ConfigFile(configDir)
	_, err := os.Stat(path)
	if err == nil {
		return nil
	}
	if !os.IsNotExist(err) {
		return fmt.Errorf("stat config file: %w", err)
	}
	return os.WriteFile(path, []byte(defaultConfigYAML), 0o644)
}

// load resolves directories and configuration; it runs before every
// subcommand.
func (a *app) load() error {
	configDir, err := paths.ResolveConfigDir(a.flags.configDir)
	if err != nil {
		return fmt.Errorf("resolve config dir: %w", err)
	}
	v, err := loadConfig(configDir)
	if err != nil {
		return err
	}
	s, err := settingsFrom(v, a.flags)
	if err != nil {
		return err
	}
	s.ConfigDir = configDir
	a.settings = s
	return nil
}

func settingsFrom(v *viper.Viper, f rootFlags) (settings, error) {
	var s settings

	dataDir, err := paths.ResolveDataDir(f.dataDir, v.GetString(cfgKeyDataDir))
	if err != nil {
		return s, fmt.Errorf("resolve data dir: %w", err)
	}
	backend := v.GetString(cfgKeyBackend)
	if f.backend != "" {
		backend = f.backend
	}
	s.Backend = types.Config{
		Backend:     strings.ToLower(backend),
		DataDir:     dataDir,
		PostgresDSN: v.GetString(cfgKeyPostgresDSN),
	}
	if err := s.Backend.Validate(); err != nil {
		return s, fmt.Errorf("config: %w", err)
	}

	s.Retry = types.RetryPolicy{
		MaxAttempts: v.GetInt(cfgKeyRetryMax),
		Backoff:     v.GetDuration(cfgKeyRetryDelay),
	}
	if err := s.Retry.Validate(); err != nil {
		return s, fmt.Errorf("config: %w", err)
	}
	if s.Retry.Backoff < 0 || s.Retry.Backoff > time.Minute {
		return s, fmt.Errorf("config: retry.backoff %s out of range: %w", s.Retry.Backoff, errUsage)
	}

	if err := s.LogLevel.UnmarshalText([]byte(v.GetString(cfgKeyLogLevel))); err != nil {
		return s, fmt.Errorf("config: log.level: %w", errUsage)
	}
	if f.verbose {
		s.LogLevel = slog.LevelDebug
	}

	s.MetricsFile = v.GetString(cfgKeyMetricsFile)
	if f.metricsFile != "" {
		s.MetricsFile = f.metricsFile
	}
	s.S3 = archive.S3Config{
		Region:    v.GetString(cfgKeyS3Region),
		Endpoint:  v.GetString(cfgKeyS3Endpoint),
		PathStyle: v.GetBool(cfgKeyS3PathStyle),
	}
	return s, nil
}
