package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/viper"

	"github.com/mubeen104/uips-attendance/internal/notify"
)

type SyncConfig struct {
	// Global ceiling on in-flight device operations.
	MaxConcurrent int `mapstructure:"max_concurrent"`
	// Floor for per-device sync intervals, in seconds. Devices configured
	// below this are clamped to avoid hammering terminals.
	MinIntervalSeconds int `mapstructure:"min_interval_seconds"`
	// Dial/connect timeout for device probes, in seconds.
	ConnectTimeoutSeconds int `mapstructure:"connect_timeout_seconds"`
}

type EnrollConfig struct {
	// Captures scoring below this are rejected as low quality.
	MinQuality int `mapstructure:"min_quality"`
	// Whole multi-step capture window, in seconds.
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
}

type AttendanceConfig struct {
	// Minutes of lateness tolerated before a day is marked late.
	GraceMinutes int `mapstructure:"grace_minutes"`
	// Path to the leave deduction policy file. Empty uses built-in defaults.
	LeavePolicyFile string `mapstructure:"leave_policy_file"`
	// Daily reconciliation run time, "HH:MM" UTC.
	ReconcileTime string `mapstructure:"reconcile_time"`
}

type BridgeConfig struct {
	// Base URL of the local relay for devices that cannot be reached
	// directly (serial/USB or NAT'd TCP). Empty disables bridge dispatch.
	URL string `mapstructure:"url"`
	// Request token TTL in seconds.
	TokenTTL uint `mapstructure:"token_ttl"`
}

type Config struct {
	// Secret key for signing bridge request tokens. Must be set in production.
	Secret string `mapstructure:"secret"`

	LogLevel string `mapstructure:"log_level"`

	// Listen address for the admin API and device push endpoints.
	Listen string `mapstructure:"listen"`

	Sync       SyncConfig       `mapstructure:"sync"`
	Enroll     EnrollConfig     `mapstructure:"enroll"`
	Attendance AttendanceConfig `mapstructure:"attendance"`
	Bridge     BridgeConfig     `mapstructure:"bridge"`

	Storage Storage `mapstructure:"storage"`

	// Notification email configuration
	Email notify.SMTPConfig `mapstructure:"email"`
}

var Cfg *Config

// Check if running in Docker container by checking for the presence of /.dockerenv file
func runningInDocker() bool {
	if _, err := os.Stat("/.dockerenv"); err == nil {
		return true
	}
	return false
}

func getConfigPath() string {
	if runningInDocker() {
		return "/app/instance"
	}
	return "./instance"
}

// LoadConfig reads configuration from environment variables and returns a Config struct.
func LoadConfig(configFile ...string) (*Config, error) {
	var cfg Config

	v := viper.New()
	v.SetConfigName("config")
	v.AddConfigPath(getConfigPath())
	v.AddConfigPath(".")
	v.SetEnvPrefix("")

	if len(configFile) > 0 {
		for _, path := range configFile {
			v.SetConfigFile(path)
		}
	}

	for k, val := range Defaults() {
		v.SetDefault(k, val)
	}

	// Read the config file when one exists. No file on the search path is
	// fine (defaults plus environment carry a default deployment), but an
	// explicitly requested file that cannot be read is an operator error.
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("unable to read config file: %v", err)
		}
	}

	// Load configuration from environment variables
	v.AutomaticEnv()

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %v", err)
	}

	if cfg.Sync.MinIntervalSeconds < 10 {
		slog.Warn("SYNC.MIN_INTERVAL_SECONDS below hard floor, clamping", slog.Int("actual", cfg.Sync.MinIntervalSeconds), slog.Int("floor", 10))
		cfg.Sync.MinIntervalSeconds = 10
	}

	// Convert relative sqlite path to absolute instance folder
	if cfg.Storage.SQLite != nil {
		if cfg.Storage.SQLite.Path == ":memory:" {
			// In-memory database, do nothing
		} else if !os.IsPathSeparator(cfg.Storage.SQLite.Path[0]) {
			cfg.Storage.SQLite.Path = fmt.Sprintf("%s/%s", getConfigPath(), cfg.Storage.SQLite.Path)
		}
	}

	// Warn if secret is missing - bridge request tokens are unverifiable without it
	if cfg.Secret == "" {
		if os.Getenv("GIN_MODE") == "release" {
			panic("SECRET configuration variable is required in production")
		} else {
			slog.Warn("Secret is not set. Do not use in production.")
		}
	}

	return &cfg, nil
}
