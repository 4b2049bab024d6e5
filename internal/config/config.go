package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Rate limit backends.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Config holds the searchscout API configuration.
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Auth      AuthConfig      `yaml:"auth"`
	Search    SearchConfig    `yaml:"search"`
	Extract   ExtractConfig   `yaml:"extract"`
	AI        AIConfig        `yaml:"ai"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Database  DatabaseConfig  `yaml:"database"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds API authentication settings. Empty disables auth.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// SearchConfig holds SearXNG backend settings.
type SearchConfig struct {
	SearxngURL     string `yaml:"searxng_url"`
	TimeoutSec     int    `yaml:"timeout_sec"`
	DefaultResults int    `yaml:"default_results"`
	MaxResults     int    `yaml:"max_results"`
}

// ExtractConfig holds page fetching settings.
type ExtractConfig struct {
	TimeoutSec       int    `yaml:"timeout_sec"`
	MaxContentLength int    `yaml:"max_content_length"` // characters
	UserAgent        string `yaml:"user_agent"`
}

// AIConfig holds LLM backend settings. An empty APIKey disables AI features.
type AIConfig struct {
	APIKey            string  `yaml:"api_key"`
	BaseURL           string  `yaml:"base_url"`
	SummaryModel      string  `yaml:"summary_model"`
	EmbeddingModel    string  `yaml:"embedding_model"`
	TimeoutSec        int     `yaml:"timeout_sec"`
	RequestsPerMinute int     `yaml:"requests_per_minute"` // 0 = unthrottled
	Burst             int     `yaml:"burst"`
	DedupThreshold    *float64 `yaml:"dedup_threshold"` // nil = default; 0 is valid

	Budget         BudgetConfig         `yaml:"budget"`
	EmbeddingCache EmbeddingCacheConfig `yaml:"embedding_cache"`
}

// Budget actions.
const (
	BudgetActionWarn   = "warn"
	BudgetActionReject = "reject"
)

// BudgetConfig caps language model token spend. Zero limits mean unlimited.
// Counters persist to the database when database.addrs is set.
type BudgetConfig struct {
	DailyTokens   int64  `yaml:"daily_tokens"`
	MonthlyTokens int64  `yaml:"monthly_tokens"`
	Action        string `yaml:"action"` // warn (default), reject
}

// EmbeddingCacheConfig enables the database-backed embedding cache.
type EmbeddingCacheConfig struct {
	Enabled bool `yaml:"enabled"`
	TTLSec  int  `yaml:"ttl_sec"`
}

// Enabled reports whether an LLM credential is configured.
func (c AIConfig) Enabled() bool { return c.APIKey != "" }

// DefaultDedupThreshold applies when ai.dedup_threshold is absent.
const DefaultDedupThreshold = 0.95

// Threshold returns the configured dedup threshold, or the default when unset.
func (c AIConfig) Threshold() float64 {
	if c.DedupThreshold == nil {
		return DefaultDedupThreshold
	}
	return *c.DedupThreshold
}

// RateLimitConfig holds per-identity admission settings.
type RateLimitConfig struct {
	PerMinute        int    `yaml:"per_minute"`
	SweepIntervalSec int    `yaml:"sweep_interval_sec"`
	RetentionSec     int    `yaml:"retention_sec"`
	Backend          string `yaml:"backend"` // memory (default), redis
}

// DatabaseConfig holds Redis connection settings shared by the redis rate limit
// backend, token budget persistence and the embedding cache.
type DatabaseConfig struct {
	Addrs            []string `yaml:"addrs"`
	Username         string   `yaml:"username"`
	Password         string   `yaml:"password"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// PipelineConfig holds orchestrator settings.
type PipelineConfig struct {
	MaxConcurrency int `yaml:"max_concurrency"` // 0 = unbounded
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
// A .env file, if present, is loaded into the process environment first.
func Load(env string) (Config, error) {
	if err := loadDotEnv(); err != nil {
		return Config{}, err
	}

	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	return Parse(data)
}

// Parse decodes YAML after ${VAR} expansion, applies defaults and validates.
func Parse(data []byte) (Config, error) {
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.Port == 0 {
		c.HTTP.Port = 8000
	}
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 120
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Search.SearxngURL == "" {
		c.Search.SearxngURL = "http://localhost:8080"
	}
	if c.Search.TimeoutSec <= 0 {
		c.Search.TimeoutSec = 30
	}
	if c.Search.MaxResults <= 0 {
		c.Search.MaxResults = 50
	}
	if c.Search.DefaultResults <= 0 {
		c.Search.DefaultResults = 10
	}
	if c.Extract.TimeoutSec <= 0 {
		c.Extract.TimeoutSec = 10
	}
	if c.Extract.MaxContentLength <= 0 {
		c.Extract.MaxContentLength = 5000
	}
	if c.AI.TimeoutSec <= 0 {
		c.AI.TimeoutSec = 30
	}
	if c.AI.DedupThreshold == nil {
		threshold := DefaultDedupThreshold
		c.AI.DedupThreshold = &threshold
	}
	if c.AI.Budget.Action == "" {
		c.AI.Budget.Action = BudgetActionWarn
	}
	if c.AI.EmbeddingCache.TTLSec <= 0 {
		c.AI.EmbeddingCache.TTLSec = 7 * 24 * 3600
	}
	if c.RateLimit.PerMinute <= 0 {
		c.RateLimit.PerMinute = 60
	}
	if c.RateLimit.SweepIntervalSec <= 0 {
		c.RateLimit.SweepIntervalSec = 300
	}
	if c.RateLimit.RetentionSec <= 0 {
		c.RateLimit.RetentionSec = 300
	}
	if c.RateLimit.Backend == "" {
		c.RateLimit.Backend = BackendMemory
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if c.Search.DefaultResults > c.Search.MaxResults {
		return fmt.Errorf("search.default_results (%d) must not exceed search.max_results (%d)",
			c.Search.DefaultResults, c.Search.MaxResults)
	}
	if c.Extract.TimeoutSec >= c.AI.TimeoutSec {
		return fmt.Errorf("extract.timeout_sec (%d) must be less than ai.timeout_sec (%d)",
			c.Extract.TimeoutSec, c.AI.TimeoutSec)
	}
	if t := c.AI.Threshold(); t < 0 || t > 1 {
		return fmt.Errorf("ai.dedup_threshold must be between 0 and 1, got %g", t)
	}
	if c.AI.RequestsPerMinute < 0 {
		return fmt.Errorf("ai.requests_per_minute must not be negative, got %d", c.AI.RequestsPerMinute)
	}
	if c.AI.Budget.DailyTokens < 0 || c.AI.Budget.MonthlyTokens < 0 {
		return errors.New("ai.budget token limits must not be negative")
	}
	if c.AI.Budget.Action != BudgetActionWarn && c.AI.Budget.Action != BudgetActionReject {
		return fmt.Errorf("ai.budget.action must be %q or %q, got %q",
			BudgetActionWarn, BudgetActionReject, c.AI.Budget.Action)
	}
	if c.AI.EmbeddingCache.Enabled && len(c.Database.Addrs) == 0 {
		return errors.New("database.addrs is required for ai.embedding_cache")
	}
	switch c.RateLimit.Backend {
	case BackendMemory:
	case BackendRedis:
		if len(c.Database.Addrs) == 0 {
			return errors.New("database.addrs is required for the redis rate limit backend")
		}
	default:
		return fmt.Errorf("rate_limit.backend must be %q or %q, got %q",
			BackendMemory, BackendRedis, c.RateLimit.Backend)
	}
	return nil
}

// loadDotEnv loads ./.env without overriding variables that are already set.
func loadDotEnv() error {
	err := godotenv.Load()
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("failed to load .env: %w", err)
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
