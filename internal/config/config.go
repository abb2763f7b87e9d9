package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Default container paths, shared between the orchestrator and the sandbox image.
const (
	DefaultManifestsPath = "/moonlight/manifests"
	DefaultDistPath      = "/moonlight/dist"
	DefaultWorkPath      = "/moonlight/work"
	DefaultGroupPath     = "/moonlight/group"
	DefaultStorePath     = "/moonlight/store"

	DefaultImage = "moonlight-mod/extensions-runner:latest"
)

// Config represents the runner configuration. Every field can be set from the YAML
// file and overridden through the environment.
type Config struct {
	Mode    Mode          `yaml:"mode" env:"MOONLIGHT_BUILD_MODE"`
	Author  AuthorConfig  `yaml:"author"`
	Paths   PathsConfig   `yaml:"paths"`
	Sandbox SandboxConfig `yaml:"sandbox"`
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
	History HistoryConfig `yaml:"history"`
	Notify  NotifyConfig  `yaml:"notify"`
	Publish PublishConfig `yaml:"publish"`
}

// AuthorConfig identifies who triggered the run. It is supplied by CI and never verified here.
type AuthorConfig struct {
	ID       string `yaml:"id" env:"MOONLIGHT_AUTHOR_ID"`
	Username string `yaml:"username" env:"MOONLIGHT_AUTHOR_USERNAME"`
	PR       string `yaml:"pr,omitempty" env:"MOONLIGHT_AUTHOR_PR"`
}

// PathsConfig holds the directories the runner reads from and writes to.
type PathsConfig struct {
	Manifests string `yaml:"manifests" env:"MOONLIGHT_MANIFESTS_PATH"`
	Dist      string `yaml:"dist" env:"MOONLIGHT_DIST_PATH"`
	Work      string `yaml:"work" env:"MOONLIGHT_WORK_PATH"`
	// WorkHost is Work as seen by the container daemon. It differs from Work when the
	// runner itself runs in a container with the docker socket mounted.
	WorkHost string `yaml:"work_host" env:"MOONLIGHT_WORK_HOST_PATH"`
	// Group and Store are the in-container mount points used by the group phases.
	Group string `yaml:"group" env:"MOONLIGHT_GROUP_PATH"`
	Store string `yaml:"store" env:"MOONLIGHT_STORE_PATH"`
}

// SandboxConfig controls the containers that run the fetch and build phases.
type SandboxConfig struct {
	Image         string  `yaml:"image" env:"EXTRUNNER_SANDBOX_IMAGE"`
	Concurrency   int     `yaml:"concurrency" env:"EXTRUNNER_SANDBOX_CONCURRENCY"`
	StorePerGroup bool    `yaml:"store_per_group" env:"EXTRUNNER_SANDBOX_STORE_PER_GROUP"`
	MemoryMB      int64   `yaml:"memory_mb,omitempty" env:"EXTRUNNER_SANDBOX_MEMORY_MB"`
	CPUs          float64 `yaml:"cpus,omitempty" env:"EXTRUNNER_SANDBOX_CPUS"`
	PidsLimit     int64   `yaml:"pids_limit,omitempty" env:"EXTRUNNER_SANDBOX_PIDS_LIMIT"`
	PhaseTimeout  string  `yaml:"phase_timeout,omitempty" env:"EXTRUNNER_SANDBOX_PHASE_TIMEOUT"`
}

// LoggingConfig controls the slog handler installed by the CLI.
type LoggingConfig struct {
	Level  LogLevel  `yaml:"level" env:"EXTRUNNER_LOG_LEVEL"`
	Format LogFormat `yaml:"format" env:"EXTRUNNER_LOG_FORMAT"`
}

// MetricsConfig enables Prometheus text file export of run metrics.
type MetricsConfig struct {
	Textfile string `yaml:"textfile,omitempty" env:"EXTRUNNER_METRICS_TEXTFILE"`
}

// HistoryConfig enables the SQLite run history.
type HistoryConfig struct {
	Path string `yaml:"path,omitempty" env:"EXTRUNNER_HISTORY_PATH"`
}

// NotifyConfig enables publishing a run summary to NATS JetStream.
type NotifyConfig struct {
	URL     string `yaml:"url,omitempty" env:"EXTRUNNER_NATS_URL"`
	Subject string `yaml:"subject,omitempty" env:"EXTRUNNER_NATS_SUBJECT"`
}

// PublishConfig enables mirroring archives and state to an S3 compatible bucket.
type PublishConfig struct {
	Endpoint  string      `yaml:"endpoint,omitempty" env:"EXTRUNNER_S3_ENDPOINT"`
	Region    string      `yaml:"region,omitempty" env:"EXTRUNNER_S3_REGION"`
	AccessKey string      `yaml:"access_key,omitempty" env:"EXTRUNNER_S3_ACCESS_KEY"`
	SecretKey string      `yaml:"secret_key,omitempty" env:"EXTRUNNER_S3_SECRET_KEY"`
	Bucket    string      `yaml:"bucket,omitempty" env:"EXTRUNNER_S3_BUCKET"`
	Prefix    string      `yaml:"prefix,omitempty" env:"EXTRUNNER_S3_PREFIX"`
	UseSSL    bool        `yaml:"use_ssl" env:"EXTRUNNER_S3_USE_SSL"`
	Retry     RetryConfig `yaml:"retry"`
}

// RetryConfig describes the backoff used for publish uploads.
type RetryConfig struct {
	Backoff    RetryBackoffMode `yaml:"backoff" env:"EXTRUNNER_S3_RETRY_BACKOFF"`
	Initial    string           `yaml:"initial" env:"EXTRUNNER_S3_RETRY_INITIAL"`
	Max        string           `yaml:"max" env:"EXTRUNNER_S3_RETRY_MAX"`
	MaxRetries int              `yaml:"max_retries" env:"EXTRUNNER_S3_RETRY_MAX_RETRIES"`
}

// Default returns a configuration populated with the built-in defaults.
func Default() *Config {
	return &Config{
		Paths: PathsConfig{
			Manifests: DefaultManifestsPath,
			Dist:      DefaultDistPath,
			Work:      DefaultWorkPath,
			Group:     DefaultGroupPath,
			Store:     DefaultStorePath,
		},
		Sandbox: SandboxConfig{
			Image:       DefaultImage,
			Concurrency: 1,
		},
		Logging: LoggingConfig{
			Level:  LogLevelInfo,
			Format: LogFormatText,
		},
		Notify: NotifyConfig{
			Subject: "extrunner.runs",
		},
		Publish: PublishConfig{
			UseSSL: true,
			Retry: RetryConfig{
				Backoff:    RetryBackoffExponential,
				Initial:    "1s",
				Max:        "30s",
				MaxRetries: 3,
			},
		},
	}
}

// Load builds the configuration from defaults, the optional YAML file at configPath and
// the environment, in that order of increasing precedence.
func Load(configPath string) (*Config, error) {
	if err := loadEnvFile(); err != nil {
		slog.Debug("No .env file loaded", slog.String("reason", err.Error()))
	}

	cfg := Default()

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			slog.Debug("Configuration file not found, using defaults and environment", slog.String("path", configPath))
		case err != nil:
			return nil, fmt.Errorf("failed to read config file: %w", err)
		default:
			// Expand environment variables in the YAML content
			expanded := os.ExpandEnv(string(data))
			if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
				return nil, fmt.Errorf("failed to unmarshal config: %w", err)
			}
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) normalize() error {
	if c.Mode != "" {
		mode, err := modeNormalizer.NormalizeWithError(string(c.Mode))
		if err != nil {
			return fmt.Errorf("invalid build mode: %w", err)
		}
		c.Mode = mode
	}
	c.Logging.Level = NormalizeLogLevel(string(c.Logging.Level))
	c.Logging.Format = NormalizeLogFormat(string(c.Logging.Format))
	if c.Publish.Retry.Backoff != "" {
		c.Publish.Retry.Backoff = NormalizeRetryBackoff(string(c.Publish.Retry.Backoff))
	}
	if c.Sandbox.Concurrency <= 0 {
		c.Sandbox.Concurrency = 1
	}
	if c.Sandbox.Image == "" {
		c.Sandbox.Image = DefaultImage
	}
	return nil
}
