package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const envPrefix = "MIRADOR_FEEDBACK_"

// Provider names accepted by the integrations section.
const (
	ProviderHTTP   = "http"
	ProviderOpenAI = "openai"
	ProviderGitHub = "github"
	ProviderNATS   = "nats"
	ProviderMemory = "memory"
	ProviderNoop   = "noop"
)

// Config captures the settings required to boot the feedback engine.
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Storage      StorageConfig      `yaml:"storage"`
	Integrations IntegrationsConfig `yaml:"integrations"`
	Logging      LoggingConfig      `yaml:"logging"`
	Rules        RulesConfig        `yaml:"rules"`
	Cache        CacheConfig        `yaml:"cache"`
	Execution    ExecutionConfig    `yaml:"execution"`
}

// ServerConfig controls the HTTP, gRPC and metrics listeners.
type ServerConfig struct {
	HTTPAddress        string        `yaml:"httpAddress"`
	GRPCAddress        string        `yaml:"grpcAddress"`
	MetricsAddress     string        `yaml:"metricsAddress"`
	GracefulTimeout    time.Duration `yaml:"gracefulTimeout"`
	RateLimitPerMinute int           `yaml:"rateLimitPerMinute"`
	RateLimitBurst     int           `yaml:"rateLimitBurst"`
}

// StorageConfig configures the embedded Badger store.
type StorageConfig struct {
	Path           string        `yaml:"path"`
	InMemory       bool          `yaml:"inMemory"`
	SyncWrites     bool          `yaml:"syncWrites"`
	GCInterval     time.Duration `yaml:"gcInterval"`
	GCDiscardRatio float64       `yaml:"gcDiscardRatio"`
}

// IntegrationsConfig groups the outbound integrations used by rule actions.
type IntegrationsConfig struct {
	BaseURL       string              `yaml:"baseURL"`
	TestGenerator TestGeneratorConfig `yaml:"testGenerator"`
	Ticketing     TicketingConfig     `yaml:"ticketing"`
	Notifications NotificationsConfig `yaml:"notifications"`
}

// TestGeneratorConfig selects and configures the regression test generator.
type TestGeneratorConfig struct {
	Provider      string        `yaml:"provider"`
	Path          string        `yaml:"path"`
	Timeout       time.Duration `yaml:"timeout"`
	RatePerSecond float64       `yaml:"ratePerSecond"`
	Burst         int           `yaml:"burst"`
	OpenAI        OpenAIConfig  `yaml:"openai"`
}

// OpenAIConfig configures an OpenAI-compatible chat completion endpoint.
type OpenAIConfig struct {
	APIKey  string `yaml:"apiKey"`
	BaseURL string `yaml:"baseURL"`
	Model   string `yaml:"model"`
}

// TicketingConfig selects and configures the ticketing integration.
type TicketingConfig struct {
	Provider string        `yaml:"provider"`
	Path     string        `yaml:"path"`
	Timeout  time.Duration `yaml:"timeout"`
	GitHub   GitHubConfig  `yaml:"github"`
}

// GitHubConfig targets a GitHub repository for issue creation.
type GitHubConfig struct {
	Token string `yaml:"token"`
	Owner string `yaml:"owner"`
	Repo  string `yaml:"repo"`
}

// NotificationsConfig selects and configures the notification integration.
type NotificationsConfig struct {
	Provider string        `yaml:"provider"`
	Path     string        `yaml:"path"`
	Timeout  time.Duration `yaml:"timeout"`
	NATS     NATSConfig    `yaml:"nats"`
}

// NATSConfig configures notification publishing over NATS.
type NATSConfig struct {
	URL           string `yaml:"url"`
	SubjectPrefix string `yaml:"subjectPrefix"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// RulesConfig points at the rule pack seeded into the store at startup.
type RulesConfig struct {
	Path string `yaml:"path"`
}

// CacheConfig controls caching of enabled rules per tenant.
type CacheConfig struct {
	Provider   string        `yaml:"provider"`
	RulesTTL   time.Duration `yaml:"rulesTTL"`
	MaxEntries int           `yaml:"maxEntries"`
}

// ExecutionConfig bounds detached rule executions.
type ExecutionConfig struct {
	MaxConcurrent int `yaml:"maxConcurrent"`
}

// Load initialises Config from defaults, an optional YAML file and environment overrides.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv(envPrefix + "CONFIG")
	}

	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config file %s not found: %w", path, err)
			}
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects provider names and limits the engine cannot wire.
func (c Config) Validate() error {
	if err := oneOf("integrations.testGenerator.provider", c.Integrations.TestGenerator.Provider, ProviderHTTP, ProviderOpenAI); err != nil {
		return err
	}
	if err := oneOf("integrations.ticketing.provider", c.Integrations.Ticketing.Provider, ProviderHTTP, ProviderGitHub); err != nil {
		return err
	}
	if err := oneOf("integrations.notifications.provider", c.Integrations.Notifications.Provider, ProviderHTTP, ProviderNATS); err != nil {
		return err
	}
	if err := oneOf("cache.provider", c.Cache.Provider, ProviderMemory, ProviderNoop); err != nil {
		return err
	}
	if c.Execution.MaxConcurrent < 0 {
		return fmt.Errorf("execution.maxConcurrent must not be negative")
	}
	if !c.Storage.InMemory && c.Storage.Path == "" {
		return fmt.Errorf("storage.path is required unless storage.inMemory is set")
	}
	return nil
}

func oneOf(field, value string, allowed ...string) error {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return fmt.Errorf("%s: unsupported value %q (want one of %s)", field, value, strings.Join(allowed, ", "))
}

func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			HTTPAddress:        ":8080",
			GRPCAddress:        ":50051",
			MetricsAddress:     ":2112",
			GracefulTimeout:    10 * time.Second,
			RateLimitPerMinute: 1000,
			RateLimitBurst:     100,
		},
		Storage: StorageConfig{
			Path:           "data/feedback",
			GCInterval:     5 * time.Minute,
			GCDiscardRatio: 0.5,
		},
		Integrations: IntegrationsConfig{
			TestGenerator: TestGeneratorConfig{
				Provider:      ProviderHTTP,
				Path:          "/api/v1/generate",
				Timeout:       60 * time.Second,
				RatePerSecond: 2,
				Burst:         4,
			},
			Ticketing: TicketingConfig{
				Provider: ProviderHTTP,
				Path:     "/api/v1/jira/tickets",
				Timeout:  30 * time.Second,
			},
			Notifications: NotificationsConfig{
				Provider: ProviderHTTP,
				Path:     "/api/v1/notifications",
				Timeout:  10 * time.Second,
				NATS:     NATSConfig{SubjectPrefix: "feedback.notifications"},
			},
		},
		Logging:   LoggingConfig{Level: "info", JSON: false},
		Rules:     RulesConfig{Path: "configs/rules/default.yaml"},
		Cache:     CacheConfig{Provider: ProviderMemory, RulesTTL: 30 * time.Second, MaxEntries: 10000},
		Execution: ExecutionConfig{MaxConcurrent: 16},
	}
}

func applyEnvOverrides(cfg *Config) {
	setString(&cfg.Server.HTTPAddress, "HTTP_ADDRESS")
	setString(&cfg.Server.GRPCAddress, "GRPC_ADDRESS")
	setString(&cfg.Server.MetricsAddress, "METRICS_ADDRESS")
	setDuration(&cfg.Server.GracefulTimeout, "GRACEFUL_TIMEOUT")
	setInt(&cfg.Server.RateLimitPerMinute, "RATE_LIMIT_PER_MINUTE")
	setInt(&cfg.Server.RateLimitBurst, "RATE_LIMIT_BURST")

	setString(&cfg.Storage.Path, "STORAGE_PATH")
	setBool(&cfg.Storage.InMemory, "STORAGE_IN_MEMORY")
	setBool(&cfg.Storage.SyncWrites, "STORAGE_SYNC_WRITES")
	setDuration(&cfg.Storage.GCInterval, "STORAGE_GC_INTERVAL")

	setString(&cfg.Integrations.BaseURL, "INTEGRATIONS_BASE_URL")
	setString(&cfg.Integrations.TestGenerator.Provider, "TEST_GENERATOR_PROVIDER")
	setDuration(&cfg.Integrations.TestGenerator.Timeout, "TEST_GENERATOR_TIMEOUT")
	setString(&cfg.Integrations.TestGenerator.OpenAI.APIKey, "OPENAI_API_KEY")
	setString(&cfg.Integrations.TestGenerator.OpenAI.BaseURL, "OPENAI_BASE_URL")
	setString(&cfg.Integrations.TestGenerator.OpenAI.Model, "OPENAI_MODEL")
	setString(&cfg.Integrations.Ticketing.Provider, "TICKETING_PROVIDER")
	setDuration(&cfg.Integrations.Ticketing.Timeout, "TICKETING_TIMEOUT")
	setString(&cfg.Integrations.Ticketing.GitHub.Token, "GITHUB_TOKEN")
	setString(&cfg.Integrations.Ticketing.GitHub.Owner, "GITHUB_OWNER")
	setString(&cfg.Integrations.Ticketing.GitHub.Repo, "GITHUB_REPO")
	setString(&cfg.Integrations.Notifications.Provider, "NOTIFICATIONS_PROVIDER")
	setDuration(&cfg.Integrations.Notifications.Timeout, "NOTIFICATIONS_TIMEOUT")
	setString(&cfg.Integrations.Notifications.NATS.URL, "NATS_URL")
	setString(&cfg.Integrations.Notifications.NATS.SubjectPrefix, "NATS_SUBJECT_PREFIX")

	setString(&cfg.Logging.Level, "LOG_LEVEL")
	if v := os.Getenv(envPrefix + "LOG_FORMAT"); v != "" {
		cfg.Logging.JSON = strings.EqualFold(v, "json")
	}
	setString(&cfg.Rules.Path, "RULES_PATH")
	setString(&cfg.Cache.Provider, "CACHE_PROVIDER")
	setDuration(&cfg.Cache.RulesTTL, "CACHE_RULES_TTL")
	setInt(&cfg.Cache.MaxEntries, "CACHE_MAX_ENTRIES")
	setInt(&cfg.Execution.MaxConcurrent, "EXECUTION_MAX_CONCURRENT")
}

func setString(dst *string, key string) {
	if v := os.Getenv(envPrefix + key); v != "" {
		*dst = v
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(envPrefix + key); v != "" {
		*dst = strings.EqualFold(v, "true") || v == "1"
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(envPrefix + key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(envPrefix + key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
