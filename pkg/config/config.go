package config

import (
	"fmt"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration for ekaya-decisions.
// Configuration can come from YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets (passwords, keys) must only come from environment variables.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"3443"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	LogLevel string `yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`
	Version  string `yaml:"-"` // Set at load time, not from config

	// Database configuration (PostgreSQL)
	Database DatabaseConfig `yaml:"database"`

	// Evaluation bounds and cost display
	Evaluation EvaluationConfig `yaml:"evaluation"`

	// Optional LLM used to explain recommendations
	LLM LLMConfig `yaml:"llm"`
}

// DatabaseConfig holds PostgreSQL database configuration.
type DatabaseConfig struct {
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"ekaya"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"ekaya_decisions"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"25"`
	MaxIdleConns   int32  `yaml:"max_idle_conns" env:"PGMAX_IDLE_CONNS" env-default:"5"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
}

// EvaluationConfig bounds the work of a single tree evaluation.
// Zero for a max_* value disables that bound.
type EvaluationConfig struct {
	MaxPaths             int           `yaml:"max_paths" env:"EVAL_MAX_PATHS" env-default:"100000"`
	MaxDepth             int           `yaml:"max_depth" env:"EVAL_MAX_DEPTH" env-default:"12"`
	MaxNodes             int           `yaml:"max_nodes" env:"EVAL_MAX_NODES" env-default:"500"`
	ProbabilityTolerance float64       `yaml:"probability_tolerance" env:"EVAL_PROBABILITY_TOLERANCE" env-default:"0.01"`
	Timeout              time.Duration `yaml:"timeout" env:"EVAL_TIMEOUT" env-default:"10s"`
	BaseUnitLabel        string        `yaml:"base_unit_label" env:"EVAL_BASE_UNIT_LABEL" env-default:"만원"`
	LargeUnitLabel       string        `yaml:"large_unit_label" env:"EVAL_LARGE_UNIT_LABEL" env-default:"억원"`
}

// LLM providers supported by the recommendation explainer.
const (
	LLMProviderOpenAI    = "openai"
	LLMProviderAnthropic = "anthropic"
)

// LLMConfig configures the recommendation explainer. An empty provider disables it.
type LLMConfig struct {
	Provider    string  `yaml:"provider" env:"LLM_PROVIDER" env-default:""`
	BaseURL     string  `yaml:"base_url" env:"LLM_BASE_URL" env-default:""`
	Model       string  `yaml:"model" env:"LLM_MODEL" env-default:""`
	APIKey      string  `yaml:"-" env:"LLM_API_KEY"` // Secret - not in YAML
	Temperature float64 `yaml:"temperature" env:"LLM_TEMPERATURE" env-default:"0.2"`
	MaxTokens   int     `yaml:"max_tokens" env:"LLM_MAX_TOKENS" env-default:"1024"`
}

// IsEnabled returns true if a provider and model are configured.
func (c *LLMConfig) IsEnabled() bool {
	return c.Provider != "" && c.Model != ""
}

// Load reads configuration from config.yaml with environment variable overrides.
// The version parameter is injected at build time and set on the returned Config.
// Secrets (PGPASSWORD, LLM_API_KEY) must come from environment variables (yaml:"-" fields).
func Load(version string) (*Config, error) {
	return LoadFile("config.yaml", version)
}

// LoadFile is Load with an explicit config path.
func LoadFile(path, version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	if err := cleanenv.ReadConfig(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	cfg.Database.Host = ResolveHostForDocker(cfg.Database.Host)

	return cfg, nil
}

func (c *Config) validate() error {
	e := c.Evaluation
	if e.MaxPaths < 0 || e.MaxDepth < 0 || e.MaxNodes < 0 {
		return fmt.Errorf("evaluation limits must not be negative")
	}
	if e.ProbabilityTolerance < 0 {
		return fmt.Errorf("evaluation.probability_tolerance must not be negative")
	}
	if e.Timeout <= 0 {
		return fmt.Errorf("evaluation.timeout must be positive")
	}

	switch c.LLM.Provider {
	case "", LLMProviderOpenAI, LLMProviderAnthropic:
	default:
		return fmt.Errorf("llm.provider %q is not supported (use %q or %q)",
			c.LLM.Provider, LLMProviderOpenAI, LLMProviderAnthropic)
	}
	if c.LLM.Provider != "" && c.LLM.Model == "" {
		return fmt.Errorf("llm.model is required when llm.provider is set")
	}
	return nil
}

// ConnectionString returns a PostgreSQL connection string.
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}
