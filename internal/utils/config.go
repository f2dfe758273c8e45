package utils

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/benmeehan/action-verifier/internal/constants"
	"github.com/benmeehan/action-verifier/pkg/file"
)

// VerificationRequiredEnv overrides Verification.Required when set.
const VerificationRequiredEnv = "VERIFICATION_REQUIRED"

// ProviderConfig describes one vision-capable model provider.
type ProviderConfig struct {
	Name      string `yaml:"name"`        // Identifier used when a caller prefers this provider
	Kind      string `yaml:"kind"`        // Wire format: openai, anthropic or gemini
	Endpoint  string `yaml:"endpoint"`    // Chat/completion endpoint, defaults per kind
	Model     string `yaml:"model"`       // Model identifier sent with each request
	APIKeyEnv string `yaml:"api_key_env"` // Environment variable holding the API key
}

// Config represents the structure of the configuration file.
type Config struct {
	LogLevel string `yaml:"log_level"` // zerolog level name

	Verification struct {
		Required         bool    `yaml:"required"`          // Refuse success without evidence
		MinConfidence    float64 `yaml:"min_confidence"`    // Floor below which a verdict is inconclusive
		StrictConfidence bool    `yaml:"strict_confidence"` // Treat inconclusive verdicts as failures
	} `yaml:"verification"`

	Dispatch struct {
		PollInterval    time.Duration `yaml:"poll_interval"`     // Interval between command status reads
		MaxWait         time.Duration `yaml:"max_wait"`          // Maximum time to wait for a device
		DeviceTTL       time.Duration `yaml:"device_ttl"`        // Online devices silent for longer are skipped; 0 disables
		MinAgentVersion string        `yaml:"min_agent_version"` // Semver constraint on eligible devices
	} `yaml:"dispatch"`

	Store struct {
		Driver     string `yaml:"driver"`      // sqlite or memory
		SQLitePath string `yaml:"sqlite_path"` // Path to the sqlite database file
	} `yaml:"store"`

	Storage struct {
		Endpoint        string        `yaml:"endpoint"`          // Object storage endpoint (host:port)
		AccessKeyID     string        `yaml:"access_key_id"`     // Access key
		SecretAccessKey string        `yaml:"secret_access_key"` // Secret key
		UseSSL          bool          `yaml:"use_ssl"`           // Use TLS towards the endpoint
		Bucket          string        `yaml:"bucket"`            // Bucket holding screenshots
		Region          string        `yaml:"region"`            // Region used when creating the bucket
		URLExpiry       time.Duration `yaml:"url_expiry"`        // Lifetime of presigned URLs
		PublicBaseURL   string        `yaml:"public_base_url"`   // When set, public URLs replace presigned ones
	} `yaml:"storage"`

	MQTT struct {
		Enabled       bool   `yaml:"enabled"`        // Relay commands and heartbeats over MQTT
		Broker        string `yaml:"broker"`         // MQTT broker address
		ClientID      string `yaml:"client_id"`      // MQTT client ID
		CACertificate string `yaml:"ca_certificate"` // Path to the CA certificate
		Username      string `yaml:"username"`       // Broker username
		Password      string `yaml:"password"`       // Broker password
		QOS           int    `yaml:"qos"`            // QoS for all relay traffic
	} `yaml:"mqtt"`

	Topics struct {
		Commands   string `yaml:"commands"`    // Prefix for per-device command topics
		Results    string `yaml:"results"`     // Prefix for per-device result topics
		Heartbeats string `yaml:"heartbeats"`  // Topic devices publish liveness on
		Jobs       string `yaml:"jobs"`        // Topic verification jobs arrive on
		JobResults string `yaml:"job_results"` // Prefix for verified result topics
	} `yaml:"topics"`

	Vision struct {
		Timeout       time.Duration    `yaml:"timeout"`        // Network timeout per provider call
		Temperature   float64          `yaml:"temperature"`    // Sampling temperature
		MaxTokens     int              `yaml:"max_tokens"`     // Response token budget
		FallbackDepth int              `yaml:"fallback_depth"` // Providers tried per verification
		Providers     []ProviderConfig `yaml:"providers"`      // Ordered primary, secondary, tertiary
	} `yaml:"vision"`

	Audit struct {
		Enabled bool   `yaml:"enabled"` // Record verified results
		Path    string `yaml:"path"`    // bbolt file
	} `yaml:"audit"`

	Workers struct {
		PoolSize int `yaml:"pool_size"` // Concurrent verification jobs
	} `yaml:"workers"`
}

// DefaultConfig returns a Config with production defaults.
func DefaultConfig() *Config {
	cfg := &Config{LogLevel: "info"}

	cfg.Verification.Required = true
	cfg.Verification.MinConfidence = constants.DefaultMinConfidence

	cfg.Dispatch.PollInterval = constants.DefaultPollInterval
	cfg.Dispatch.MaxWait = constants.DefaultMaxWait
	cfg.Dispatch.DeviceTTL = 5 * time.Minute

	cfg.Store.Driver = "sqlite"
	cfg.Store.SQLitePath = "verifier.db"

	cfg.Storage.Bucket = "screenshots"
	cfg.Storage.Region = "us-east-1"
	cfg.Storage.URLExpiry = 7 * 24 * time.Hour

	cfg.MQTT.ClientID = "action-verifier"
	cfg.MQTT.QOS = 1

	cfg.Topics.Commands = "verifier/commands"
	cfg.Topics.Results = "verifier/results"
	cfg.Topics.Heartbeats = "verifier/heartbeats"
	cfg.Topics.Jobs = "verifier/jobs"
	cfg.Topics.JobResults = "verifier/job-results"

	cfg.Vision.Timeout = 30 * time.Second
	cfg.Vision.Temperature = 0.1
	cfg.Vision.MaxTokens = 1024
	cfg.Vision.FallbackDepth = 2
	cfg.Vision.Providers = []ProviderConfig{
		{Name: "openai", Kind: "openai", Model: "gpt-4o", APIKeyEnv: "OPENAI_API_KEY"},
		{Name: "anthropic", Kind: "anthropic", Model: "claude-3-5-sonnet-20240620", APIKeyEnv: "ANTHROPIC_API_KEY"},
		{Name: "gemini", Kind: "gemini", Model: "gemini-1.5-flash", APIKeyEnv: "GEMINI_API_KEY"},
	}

	cfg.Audit.Enabled = true
	cfg.Audit.Path = "audit.db"

	cfg.Workers.PoolSize = 4
	return cfg
}

// LoadConfig loads the YAML configuration from the specified file on top of DefaultConfig.
// A missing file yields the defaults. ${VAR} references are expanded from the environment.
func LoadConfig(filename string, fileClient file.FileOperations) (*Config, error) {
	config := DefaultConfig()

	exists, err := fileClient.IsFileExists(filename)
	if err != nil {
		return nil, err
	}
	if exists {
		if err := fileClient.ReadYamlFile(filename, config); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", filename, err)
		}
	}

	if raw, ok := os.LookupEnv(VerificationRequiredEnv); ok {
		required, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid %s value %q: %w", VerificationRequiredEnv, raw, err)
		}
		config.Verification.Required = required
	}

	if config.Dispatch.PollInterval <= 0 {
		config.Dispatch.PollInterval = constants.DefaultPollInterval
	}
	if config.Dispatch.MaxWait <= 0 {
		config.Dispatch.MaxWait = constants.DefaultMaxWait
	}
	if config.Workers.PoolSize <= 0 {
		config.Workers.PoolSize = 1
	}

	return config, nil
}
