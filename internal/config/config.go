package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the ragchat API configuration.
type Config struct {
	HTTP    HTTPConfig    `yaml:"http"`
	Auth    AuthConfig    `yaml:"auth"`
	LLM     LLMConfig     `yaml:"llm"`
	RAG     RAGConfig     `yaml:"rag"`
	Stream  StreamConfig  `yaml:"stream"`
	Memory  MemoryConfig  `yaml:"memory"`
	Logging LoggingConfig `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port           int `yaml:"port"`
	ReadTimeoutSec int `yaml:"read_timeout_sec"`
	ShutdownSec    int `yaml:"shutdown_timeout_sec"`
}

// LLMConfig holds text-generation provider settings. A blank api_key
// disables the provider and every answer takes the fallback path.
type LLMConfig struct {
	APIKey      string  `yaml:"api_key"`
	BaseURL     string  `yaml:"base_url"`
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
}

// RAGConfig holds retrieval settings.
type RAGConfig struct {
	Enabled      bool   `yaml:"enabled"`
	DocsPath     string `yaml:"docs_path"`
	TopK         int    `yaml:"top_k"`
	MaxDocChars  int    `yaml:"max_doc_chars"`
	ChunkSize    int    `yaml:"chunk_size"`
	ChunkOverlap int    `yaml:"chunk_overlap"`
}

// StreamConfig holds streaming delivery settings.
type StreamConfig struct {
	MaxConcurrent   int `yaml:"max_concurrent"`
	TokenDelayMs    int `yaml:"token_delay_ms"`
	TargetTotalMs   int `yaml:"target_total_ms"`
	HeartbeatMs     int `yaml:"heartbeat_ms"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"` // long-lived SSE writes
}

// MemoryConfig holds conversation-history settings.
type MemoryConfig struct {
	Driver   string   `yaml:"driver"` // memory, redis (default: memory)
	MaxTurns int      `yaml:"max_turns"`
	Addrs    []string `yaml:"addrs"`
	Password string   `yaml:"password"`
	// ReadinessTimeout bounds the startup wait for redis.
	ReadinessTimeout int `yaml:"readiness_timeout_sec"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	// Substitute env variables of the form ${VAR}
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
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.LLM.Model == "" {
		c.LLM.Model = "gpt-4o-mini"
	}
	if c.LLM.Temperature <= 0 {
		c.LLM.Temperature = 0.3
	}
	if c.LLM.MaxTokens <= 0 {
		c.LLM.MaxTokens = 512
	}
	if c.RAG.TopK <= 0 {
		c.RAG.TopK = 3
	}
	if c.RAG.MaxDocChars <= 0 {
		c.RAG.MaxDocChars = 20000
	}
	if c.RAG.ChunkSize <= 0 {
		c.RAG.ChunkSize = 700
	}
	if c.RAG.ChunkOverlap < 0 {
		c.RAG.ChunkOverlap = 0
	} else if c.RAG.ChunkOverlap == 0 {
		c.RAG.ChunkOverlap = 120
	}
	if c.Stream.MaxConcurrent <= 0 {
		c.Stream.MaxConcurrent = 16
	}
	if c.Stream.TokenDelayMs <= 0 {
		c.Stream.TokenDelayMs = 8
	}
	if c.Stream.TargetTotalMs <= 0 {
		c.Stream.TargetTotalMs = 2500
	}
	if c.Stream.HeartbeatMs <= 0 {
		c.Stream.HeartbeatMs = 15000
	}
	if c.Stream.WriteTimeoutSec <= 0 {
		c.Stream.WriteTimeoutSec = 120
	}
	if c.Memory.Driver == "" {
		c.Memory.Driver = "memory"
	}
	if c.Memory.MaxTurns <= 0 {
		c.Memory.MaxTurns = 8
	}
	if c.Memory.ReadinessTimeout <= 0 {
		c.Memory.ReadinessTimeout = 10
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	switch c.Memory.Driver {
	case "memory":
	case "redis":
		if len(c.Memory.Addrs) == 0 {
			return fmt.Errorf("memory.addrs is required for the redis driver")
		}
	default:
		return fmt.Errorf("memory.driver must be \"memory\" or \"redis\", got %q", c.Memory.Driver)
	}
	if c.RAG.Enabled && c.RAG.DocsPath == "" {
		return fmt.Errorf("rag.docs_path is required when rag is enabled")
	}
	if c.RAG.ChunkOverlap >= c.RAG.ChunkSize {
		return fmt.Errorf("rag.chunk_overlap (%d) must be smaller than rag.chunk_size (%d)",
			c.RAG.ChunkOverlap, c.RAG.ChunkSize)
	}
	return nil
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
