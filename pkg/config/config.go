// Package config loads and validates the Octopus server configuration.
//
// Configuration sources (in order of precedence):
//  1. Environment variables (OCTOPUS_*)
//  2. Configuration file (YAML)
//  3. Default values
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/octopus-bim/octopus/pkg/storage/disk"
	"github.com/octopus-bim/octopus/pkg/storage/s3"
	"github.com/octopus-bim/octopus/pkg/store"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config is the Octopus server configuration.
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Telemetry controls OpenTelemetry distributed tracing
	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`

	// ShutdownTimeout is the maximum time to wait for graceful shutdown
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0" yaml:"shutdown_timeout"`

	// Database configures persistence (SQLite or PostgreSQL)
	Database store.Config `mapstructure:"database" yaml:"database"`

	// Storage configures where file bytes live (disk or s3)
	Storage StorageConfig `mapstructure:"storage" yaml:"storage"`

	// Auth configures how request principals are established
	Auth AuthConfig `mapstructure:"auth" yaml:"auth"`

	// OAuth configures the built-in OAuth2 authorization server
	OAuth OAuthConfig `mapstructure:"oauth" yaml:"oauth"`

	// API contains HTTP server configuration
	API APIConfig `mapstructure:"api" yaml:"api"`

	// Uploads configures the upload session lifecycle
	Uploads UploadsConfig `mapstructure:"uploads" yaml:"uploads"`

	// Processing configures the background pipeline
	Processing ProcessingConfig `mapstructure:"processing" yaml:"processing"`

	// Quota configures storage limits
	Quota QuotaConfig `mapstructure:"quota" yaml:"quota"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive)
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`

	// Format specifies the log output format
	// Valid values: text, json
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// TelemetryConfig controls OpenTelemetry distributed tracing. When enabled,
// trace data is exported to an OTLP-compatible collector.
type TelemetryConfig struct {
	// Enabled controls whether distributed tracing is enabled
	// Default: false
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Endpoint is the OTLP collector endpoint (host:port)
	// Default: "localhost:4317"
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`

	// Insecure controls whether to use a non-TLS connection
	// Default: true (for local development)
	Insecure bool `mapstructure:"insecure" yaml:"insecure"`

	// SampleRate controls the trace sampling rate (0.0 to 1.0)
	// Default: 1.0
	SampleRate float64 `mapstructure:"sample_rate" validate:"omitempty,gte=0,lte=1" yaml:"sample_rate"`

	// ServiceName overrides the reported service name
	// Default: "octopus"
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
}

// StorageConfig selects and configures the byte storage provider.
type StorageConfig struct {
	// Provider selects the storage backend
	// Valid values: disk, s3
	Provider string `mapstructure:"provider" validate:"required,oneof=disk s3" yaml:"provider"`

	// Disk configures the local filesystem provider
	Disk disk.Config `mapstructure:"disk" yaml:"disk"`

	// S3 configures the S3-compatible blob provider
	S3 s3.Config `mapstructure:"s3" yaml:"s3"`
}

// AuthConfig controls how request principals are established.
type AuthConfig struct {
	// Mode selects the authentication strategy
	// Valid values:
	//   development - a static local principal, no credentials required
	//   oidc        - bearer tokens validated against SigningKey
	Mode string `mapstructure:"mode" validate:"required,oneof=development oidc" yaml:"mode"`

	// DevelopmentSubject is the principal subject used in development mode
	// Default: "dev-user"
	DevelopmentSubject string `mapstructure:"development_subject" yaml:"development_subject"`

	// DevelopmentEmail is the principal email used in development mode
	DevelopmentEmail string `mapstructure:"development_email" yaml:"development_email"`

	// DevelopmentDisplayName is the principal display name used in
	// development mode
	// Default: the development subject
	DevelopmentDisplayName string `mapstructure:"development_display_name" yaml:"development_display_name"`

	// SigningKey verifies bearer tokens in oidc mode and signs tokens issued
	// by the OAuth2 server. Must be at least 32 characters.
	SigningKey string `mapstructure:"signing_key" yaml:"signing_key"`
}

// OAuthConfig configures the built-in OAuth2 authorization server.
type OAuthConfig struct {
	// Issuer is the token issuer claim
	// Default: "octopus"
	Issuer string `mapstructure:"issuer" yaml:"issuer"`

	// AccessTokenTTL is the access token lifetime
	// Default: 1h
	AccessTokenTTL time.Duration `mapstructure:"access_token_ttl" yaml:"access_token_ttl"`

	// CodeTTL is the authorization code lifetime
	// Default: 60s
	CodeTTL time.Duration `mapstructure:"code_ttl" yaml:"code_ttl"`
}

// APIConfig contains HTTP server configuration.
type APIConfig struct {
	// Host is the listen address
	// Default: "0.0.0.0"
	Host string `mapstructure:"host" yaml:"host"`

	// Port is the HTTP listen port
	// Default: 8080
	Port int `mapstructure:"port" validate:"required,min=1,max=65535" yaml:"port"`

	// RequestTimeout bounds request handling, streaming endpoints excluded
	// Default: 60s
	RequestTimeout time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`

	// MaxUploadBytes caps multipart upload request bodies
	// Default: 2GiB
	MaxUploadBytes int64 `mapstructure:"max_upload_bytes" yaml:"max_upload_bytes"`
}

// UploadsConfig configures the upload session lifecycle.
type UploadsConfig struct {
	// ReserveTTL is how long a reserved session stays usable
	// Default: 24h
	ReserveTTL time.Duration `mapstructure:"reserve_ttl" yaml:"reserve_ttl"`

	// SweepInterval is the period of the expiry sweeper
	// Default: 1m
	SweepInterval time.Duration `mapstructure:"sweep_interval" yaml:"sweep_interval"`
}

// ProcessingConfig configures the background pipeline.
type ProcessingConfig struct {
	// Workers is the number of concurrent pipeline workers
	// Default: 2
	Workers int `mapstructure:"workers" validate:"omitempty,min=1" yaml:"workers"`

	// QueueSize bounds the in-process job queue
	// Default: 64
	QueueSize int `mapstructure:"queue_size" yaml:"queue_size"`

	// MaxAttempts is the delivery budget per job
	// Default: 5
	MaxAttempts int `mapstructure:"max_attempts" yaml:"max_attempts"`

	// BackoffBase is the first retry delay; each retry doubles it
	// Default: 2s
	BackoffBase time.Duration `mapstructure:"backoff_base" yaml:"backoff_base"`

	// BackoffMax caps the retry delay
	// Default: 5m
	BackoffMax time.Duration `mapstructure:"backoff_max" yaml:"backoff_max"`

	// PollInterval is how often the outbox dispatcher polls for due jobs
	// Default: 1s
	PollInterval time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`

	// ConverterCommand is the external IFC to WexBIM converter executable.
	// Empty disables conversion (jobs fail after their attempt budget).
	ConverterCommand string `mapstructure:"converter_command" yaml:"converter_command"`

	// ConverterArgs are passed to the converter; {input} and {output} are
	// replaced with the IFC and WexBIM paths
	ConverterArgs []string `mapstructure:"converter_args" yaml:"converter_args,omitempty"`
}

// QuotaConfig configures storage limits.
type QuotaConfig struct {
	// WorkspaceBytes is the default per-workspace storage quota in bytes.
	// 0 means unlimited. Workspaces can override it individually.
	WorkspaceBytes int64 `mapstructure:"workspace_bytes" validate:"omitempty,min=0" yaml:"workspace_bytes"`
}

// Load loads configuration from file, environment, and defaults.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	configFileFound, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}
	if !configFileFound {
		cfg := GetDefaultConfig()
		return cfg, nil
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

// MustLoad loads configuration with helpful error messages when the file is
// missing.
func MustLoad(configPath string) (*Config, error) {
	if configPath == "" {
		if !DefaultConfigExists() {
			return nil, fmt.Errorf("no configuration file found at default location: %s\n\n"+
				"Please initialize a configuration file first:\n"+
				"  octopus init\n\n"+
				"Or specify a custom config file:\n"+
				"  octopus <command> --config /path/to/config.yaml",
				GetDefaultConfigPath())
		}
		configPath = GetDefaultConfigPath()
	} else if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("configuration file not found: %s\n\n"+
			"Please create the configuration file:\n"+
			"  octopus init --config %s",
			configPath, configPath)
	}

	cfg, err := Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

// SaveConfig writes the configuration as YAML. Config files may hold
// secrets, so permissions are restricted to the owner.
func SaveConfig(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func setupViper(v *viper.Viper, configPath string) {
	// Example: OCTOPUS_LOGGING_LEVEL=DEBUG
	v.SetEnvPrefix("OCTOPUS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read config file: %w", err)
	}
	return true, nil
}

func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		durationDecodeHook(),
	)
}

// durationDecodeHook converts strings like "30s", "5m" to time.Duration.
func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}
		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}

// getConfigDir returns the configuration directory, honoring XDG_CONFIG_HOME.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "octopus")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "octopus")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// DefaultConfigExists checks if a config file exists at the default location.
func DefaultConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}

// GetConfigDir returns the configuration directory path.
func GetConfigDir() string {
	return getConfigDir()
}
