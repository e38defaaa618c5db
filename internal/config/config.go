package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is read when CONFIG_PATH is not set
const DefaultPath = "config.yaml"

// Config holds the application configuration
type Config struct {
	ServiceName     string
	HTTPHost        string
	HTTPPort        int
	ShutdownTimeout time.Duration

	Workers   int
	QueueSize int

	LogFile   string
	LogFormat string
	LogLevel  string

	OTelEnabled  bool
	OTLPEndpoint string
	Environment  string
}

type configFile struct {
	Service struct {
		Name string `yaml:"name"`
	} `yaml:"service"`
	HTTP struct {
		Host                   string `yaml:"host"`
		Port                   int    `yaml:"port"`
		ShutdownTimeoutSeconds int    `yaml:"shutdown_timeout_seconds"`
	} `yaml:"http"`
	Queue struct {
		Workers int `yaml:"workers"`
		Size    int `yaml:"size"`
	} `yaml:"queue"`
	Log struct {
		File   *string `yaml:"file"`
		Format string  `yaml:"format"`
		Level  string  `yaml:"level"`
	} `yaml:"log"`
	OTel struct {
		Enabled     *bool  `yaml:"enabled"`
		Endpoint    string `yaml:"endpoint"`
		Environment string `yaml:"environment"`
	} `yaml:"otel"`
}

// Default returns the configuration used when neither a file nor env overrides are present
func Default() Config {
	return Config{
		ServiceName:     "framehook",
		HTTPHost:        "0.0.0.0",
		HTTPPort:        8000,
		ShutdownTimeout: 10 * time.Second,
		Workers:         min(32, runtime.NumCPU()+4),
		QueueSize:       1024,
		LogFile:         "log_file.log",
		LogFormat:       "text",
		LogLevel:        "info",
		OTLPEndpoint:    "localhost:4318",
		Environment:     "development",
	}
}

// Load loads configuration from an optional YAML file and then environment variables.
// A missing file is not an error; an unreadable or malformed one is.
func Load(path string) (Config, error) {
	cfg := Default()

	raw, err := os.ReadFile(path)
	switch {
	case err == nil:
		var f configFile
		if err := yaml.Unmarshal(raw, &f); err != nil {
			return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
		cfg.apply(f)
	case errors.Is(err, fs.ErrNotExist):
	default:
		return Config{}, fmt.Errorf("read config file %s: %w", path, err)
	}

	cfg.ServiceName = envOrDefault("SERVICE_NAME", cfg.ServiceName)
	cfg.HTTPHost = envOrDefault("HTTP_HOST", cfg.HTTPHost)
	cfg.HTTPPort = envInt("HTTP_PORT", cfg.HTTPPort)
	cfg.ShutdownTimeout = time.Duration(envInt("SHUTDOWN_TIMEOUT_SECONDS", int(cfg.ShutdownTimeout/time.Second))) * time.Second
	cfg.Workers = envInt("QUEUE_WORKERS", cfg.Workers)
	cfg.QueueSize = envInt("QUEUE_SIZE", cfg.QueueSize)
	if v, ok := os.LookupEnv("LOG_FILE"); ok {
		cfg.LogFile = v
	}
	cfg.LogFormat = strings.ToLower(envOrDefault("LOG_FORMAT", cfg.LogFormat))
	cfg.LogLevel = strings.ToLower(envOrDefault("LOG_LEVEL", cfg.LogLevel))
	cfg.OTelEnabled = envBool("OTEL_ENABLED", cfg.OTelEnabled)
	cfg.OTLPEndpoint = envOrDefault("OTEL_EXPORTER_OTLP_ENDPOINT", cfg.OTLPEndpoint)
	cfg.Environment = envOrDefault("DEPLOY_ENV", cfg.Environment)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) apply(f configFile) {
	if f.Service.Name != "" {
		c.ServiceName = f.Service.Name
	}
	if f.HTTP.Host != "" {
		c.HTTPHost = f.HTTP.Host
	}
	if f.HTTP.Port > 0 {
		c.HTTPPort = f.HTTP.Port
	}
	if f.HTTP.ShutdownTimeoutSeconds > 0 {
		c.ShutdownTimeout = time.Duration(f.HTTP.ShutdownTimeoutSeconds) * time.Second
	}
	if f.Queue.Workers > 0 {
		c.Workers = f.Queue.Workers
	}
	if f.Queue.Size > 0 {
		c.QueueSize = f.Queue.Size
	}
	if f.Log.File != nil {
		c.LogFile = *f.Log.File
	}
	if f.Log.Format != "" {
		c.LogFormat = strings.ToLower(f.Log.Format)
	}
	if f.Log.Level != "" {
		c.LogLevel = strings.ToLower(f.Log.Level)
	}
	if f.OTel.Enabled != nil {
		c.OTelEnabled = *f.OTel.Enabled
	}
	if f.OTel.Endpoint != "" {
		c.OTLPEndpoint = f.OTel.Endpoint
	}
	if f.OTel.Environment != "" {
		c.Environment = f.OTel.Environment
	}
}

// Validate reports the first setting that the service cannot start with
func (c Config) Validate() error {
	if c.HTTPPort <= 0 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid http port %d", c.HTTPPort)
	}
	if c.Workers <= 0 {
		return fmt.Errorf("queue workers must be positive, got %d", c.Workers)
	}
	if c.QueueSize <= 0 {
		return fmt.Errorf("queue size must be positive, got %d", c.QueueSize)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("unsupported log format %q", c.LogFormat)
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("unsupported log level %q", c.LogLevel)
	}
	return nil
}

// Addr is the listen address for the HTTP server
func (c Config) Addr() string {
	return net.JoinHostPort(c.HTTPHost, strconv.Itoa(c.HTTPPort))
}

func envOrDefault(name, fallback string) string {
	if value := os.Getenv(name); value != "" {
		return value
	}
	return fallback
}

func envInt(name string, fallback int) int {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}

func envBool(name string, fallback bool) bool {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}
	return value
}
