package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	internal "github.com/ZanzyTHEbar/jarvis/jarvis"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

// Config stores all configuration of the application.
// The values are read by viper from a config file or environment variables.
type Config struct {
	Assistant AssistantConfig `mapstructure:"assistant"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Scene     SceneConfig     `mapstructure:"scene"`
	Search    SearchConfig    `mapstructure:"search"`
	Knowledge KnowledgeConfig `mapstructure:"knowledge"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Harness   HarnessConfig   `mapstructure:"harness"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// AssistantConfig stores identity and conversation window settings.
type AssistantConfig struct {
	Name              string `mapstructure:"name"`
	Timezone          string `mapstructure:"timezone"`            // IANA name, empty means local time
	MaxTurns          int    `mapstructure:"max_turns"`           // history keeps 2x this many turns
	SummaryMaxLength  int    `mapstructure:"summary_max_length"`  // rolling summary cap in characters
	SummaryTrimLength int    `mapstructure:"summary_trim_length"` // characters kept when the cap is exceeded
}

// LLMConfig stores the conversational model settings.
type LLMConfig struct {
	Provider    string        `mapstructure:"provider"` // "openai" (any OpenAI-compatible endpoint)
	BaseURL     string        `mapstructure:"base_url"`
	APIKey      string        `mapstructure:"api_key"`
	Model       string        `mapstructure:"model"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Temperature float32       `mapstructure:"temperature"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// SceneConfig stores the structured scene generation settings.
type SceneConfig struct {
	Model           string        `mapstructure:"model"` // empty means llm.model
	MaxTokens       int           `mapstructure:"max_tokens"`
	Temperature     float32       `mapstructure:"temperature"`
	Timeout         time.Duration `mapstructure:"timeout"`
	SceneCharBudget int           `mapstructure:"scene_char_budget"` // serialized scene size sent on modify
	FallbackObjects int           `mapstructure:"fallback_objects"`  // objects sent when the budget is exceeded
}

// SearchConfig stores web search and page fetch settings.
type SearchConfig struct {
	Providers       []string      `mapstructure:"providers"` // ordered fallback chain
	MaxResults      int           `mapstructure:"max_results"`
	Timeout         time.Duration `mapstructure:"timeout"` // per provider
	UserAgent       string        `mapstructure:"user_agent"`
	CacheEnabled    bool          `mapstructure:"cache_enabled"`
	CacheCapacity   int           `mapstructure:"cache_capacity"`
	CacheTTLSeconds int           `mapstructure:"cache_ttl_seconds"`
	FetchTimeout    time.Duration `mapstructure:"fetch_timeout"`
	FetchMaxChars   int           `mapstructure:"fetch_max_chars"`
}

// KnowledgeConfig stores long-term knowledge base limits.
type KnowledgeConfig struct {
	MaxEntries int    `mapstructure:"max_entries"`
	MaxContent int    `mapstructure:"max_content"`
	Eviction   string `mapstructure:"eviction"` // "oldest" or "lexical"
	StorageKey string `mapstructure:"storage_key"`
}

// DatabaseConfig stores database connection details.
type DatabaseConfig struct {
	Enabled      bool   `mapstructure:"enabled"` // false keeps everything in memory
	Type         string `mapstructure:"type"`
	DSN          string `mapstructure:"dsn"` // path to the embedded database file
	JournalMode  string `mapstructure:"journal_mode"`
	SyncMode     string `mapstructure:"sync_mode"`
	CacheSize    int    `mapstructure:"cache_size"`
	TempStore    string `mapstructure:"temp_store"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
}

// HarnessConfig stores dispatcher infrastructure settings.
type HarnessConfig struct {
	// Rate limiting
	RateLimitEnabled    bool          `mapstructure:"rate_limit_enabled"`     // Enable rate limiting
	RateLimitCapacity   int           `mapstructure:"rate_limit_capacity"`    // Token bucket capacity
	RateLimitRefillRate time.Duration `mapstructure:"rate_limit_refill_rate"` // Refill rate

	// Telemetry
	EnableTracing bool `mapstructure:"enable_tracing"` // Enable structured logging/tracing
}

// LoggingConfig stores logger settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // "console" or "json"
}

var AppConfig Config

// LoadConfig reads configuration from file or environment variables.
func LoadConfig(configPath string) (*Config, error) {
	viper.Reset()

	if configPath != "" {
		viper.SetConfigFile(configPath)
	} else {
		viper.AddConfigPath(".")
		viper.AddConfigPath(filepath.Join("etc", internal.DefaultAppName))
		viper.AddConfigPath(internal.DefaultConfigPath)
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	setDefaults()

	viper.SetEnvPrefix(internal.DefaultAppName)
	viper.AutomaticEnv()
	// Replace dots with underscores in env var names e.g. llm.api_key becomes JARVIS_LLM_API_KEY
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	if err := viper.BindEnv("llm.api_key", "JARVIS_LLM_API_KEY", "GROQ_API_KEY"); err != nil {
		return nil, fmt.Errorf("failed to bind api key env: %w", err)
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found; defaults and environment apply.
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}
	cfg.normalize()

	AppConfig = cfg
	return &AppConfig, nil
}

func setDefaults() {
	// Assistant defaults
	viper.SetDefault("assistant.name", internal.DefaultAssistantName)
	viper.SetDefault("assistant.timezone", "")
	viper.SetDefault("assistant.max_turns", 10)
	viper.SetDefault("assistant.summary_max_length", 800)
	viper.SetDefault("assistant.summary_trim_length", 400)

	// LLM defaults (Groq, OpenAI-compatible)
	viper.SetDefault("llm.provider", "openai")
	viper.SetDefault("llm.base_url", "https://api.groq.com/openai/v1")
	viper.SetDefault("llm.api_key", "")
	viper.SetDefault("llm.model", "llama-3.3-70b-versatile")
	viper.SetDefault("llm.max_tokens", 1024)
	viper.SetDefault("llm.temperature", 0.7)
	viper.SetDefault("llm.timeout", "15s")

	// Scene generation defaults (large outputs, low temperature)
	viper.SetDefault("scene.model", "")
	viper.SetDefault("scene.max_tokens", 8000)
	viper.SetDefault("scene.temperature", 0.25)
	viper.SetDefault("scene.timeout", "60s")
	viper.SetDefault("scene.scene_char_budget", 4000)
	viper.SetDefault("scene.fallback_objects", 20)

	// Search defaults
	viper.SetDefault("search.providers", []string{"ddg_instant", "ddg_lite", "ddg_html"})
	viper.SetDefault("search.max_results", 4)
	viper.SetDefault("search.timeout", "8s")
	viper.SetDefault("search.user_agent", "Mozilla/5.0 (X11; Linux x86_64) jarvis/1.0")
	viper.SetDefault("search.cache_enabled", true)
	viper.SetDefault("search.cache_capacity", 256)
	viper.SetDefault("search.cache_ttl_seconds", 600)
	viper.SetDefault("search.fetch_timeout", "10s")
	viper.SetDefault("search.fetch_max_chars", 4000)

	// Knowledge defaults
	viper.SetDefault("knowledge.max_entries", 50)
	viper.SetDefault("knowledge.max_content", 1000)
	viper.SetDefault("knowledge.eviction", "oldest")
	viper.SetDefault("knowledge.storage_key", "learned_knowledge")

	// Database defaults (embedded libsql)
	viper.SetDefault("database.enabled", true)
	viper.SetDefault("database.type", internal.DefaultDatabaseType)
	viper.SetDefault("database.dsn", internal.DefaultDatabaseDSN)
	viper.SetDefault("database.journal_mode", "WAL")
	viper.SetDefault("database.sync_mode", "NORMAL")
	viper.SetDefault("database.cache_size", -16000)
	viper.SetDefault("database.temp_store", "MEMORY")
	viper.SetDefault("database.max_open_conns", 4)
	viper.SetDefault("database.max_idle_conns", 4)

	// Harness defaults
	viper.SetDefault("harness.rate_limit_enabled", true)
	viper.SetDefault("harness.rate_limit_capacity", 10)
	viper.SetDefault("harness.rate_limit_refill_rate", "1s")
	viper.SetDefault("harness.enable_tracing", false)

	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "console")
}

// normalize repairs values that would break invariants downstream.
func (c *Config) normalize() {
	if c.Assistant.MaxTurns <= 0 {
		c.Assistant.MaxTurns = 10
	}
	if c.Assistant.SummaryMaxLength <= 0 {
		c.Assistant.SummaryMaxLength = 800
	}
	if c.Assistant.SummaryTrimLength <= 0 || c.Assistant.SummaryTrimLength > c.Assistant.SummaryMaxLength {
		c.Assistant.SummaryTrimLength = c.Assistant.SummaryMaxLength / 2
	}
	if c.Scene.Model == "" {
		c.Scene.Model = c.LLM.Model
	}
	if c.Knowledge.MaxEntries <= 0 {
		c.Knowledge.MaxEntries = 50
	}
	if c.Knowledge.MaxContent <= 0 {
		c.Knowledge.MaxContent = 1000
	}
	c.LLM.BaseURL = strings.TrimSuffix(c.LLM.BaseURL, "/")
}

// WatchConfig re-reads the config file on change and hands the assistant section to onChange.
// It is a no-op when no config file is in use.
func WatchConfig(logger zerolog.Logger, onChange func(AssistantConfig)) {
	if viper.ConfigFileUsed() == "" {
		return
	}

	viper.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}

		var assistant AssistantConfig
		if err := viper.UnmarshalKey("assistant", &assistant); err != nil {
			logger.Warn().Err(err).Str("file", e.Name).Msg("Config reload failed")
			return
		}

		logger.Info().Str("file", e.Name).Str("assistant", assistant.Name).Msg("Config reloaded")
		if onChange != nil {
			onChange(assistant)
		}
	})
	viper.WatchConfig()
}
