// Package config loads streambot configuration from an optional YAML file
// and environment variables. Environment variables use the flat names the
// deployment scripts already export (OLLAMA_BASE_URL, BOT_PREFIX, ...), so a
// bare environment with no config file is a fully supported setup.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Ollama    OllamaConfig    `mapstructure:"ollama" yaml:"ollama"`
	Bot       BotConfig       `mapstructure:"bot" yaml:"bot"`
	Memory    MemoryConfig    `mapstructure:"memory" yaml:"memory"`
	Intent    IntentConfig    `mapstructure:"intent" yaml:"intent"`
	Discord   DiscordConfig   `mapstructure:"discord" yaml:"discord"`
	Twitch    TwitchConfig    `mapstructure:"twitch" yaml:"twitch"`
	Knowledge KnowledgeConfig `mapstructure:"knowledge" yaml:"knowledge"`
	Providers ProviderConfig  `mapstructure:"providers" yaml:"providers"`
	Server    ServerConfig    `mapstructure:"server" yaml:"server"`
	Logging   LoggingConfig   `mapstructure:"logging" yaml:"logging"`
}

// OllamaConfig configures the local model backend.
type OllamaConfig struct {
	// BaseURL is the Ollama HTTP endpoint.
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`
	// Model is the chat model name.
	Model string `mapstructure:"model" yaml:"model"`
	// EmbedModel is the embedding model used by the memory store.
	EmbedModel string `mapstructure:"embed_model" yaml:"embed_model"`
	// CompleteTimeout bounds a blocking completion call.
	CompleteTimeout time.Duration `mapstructure:"complete_timeout" yaml:"complete_timeout"`
	// StreamTimeout bounds a streaming completion call.
	StreamTimeout time.Duration `mapstructure:"stream_timeout" yaml:"stream_timeout"`
	// ClassifyTimeout bounds the should-respond classification call.
	ClassifyTimeout time.Duration `mapstructure:"classify_timeout" yaml:"classify_timeout"`
}

// BotConfig configures routing behavior shared by all platforms.
type BotConfig struct {
	Prefix              string             `mapstructure:"prefix" yaml:"prefix"`
	EnableAIResponse    bool               `mapstructure:"enable_ai_response" yaml:"enable_ai_response"`
	TriggerPhrase       string             `mapstructure:"trigger_phrase" yaml:"trigger_phrase"`
	ResponseProbability float64            `mapstructure:"response_probability" yaml:"response_probability"`
	DefaultPersona      string             `mapstructure:"default_persona" yaml:"default_persona"`
	Language            string             `mapstructure:"language" yaml:"language"`
	HistorySize         int                `mapstructure:"history_size" yaml:"history_size"`
	GlobalContextSize   int                `mapstructure:"global_context_size" yaml:"global_context_size"`
	// AlwaysRespond lists platforms that answer every non-command message
	// without waiting for the trigger phrase.
	AlwaysRespond []string `mapstructure:"always_respond" yaml:"always_respond"`
	// Personas maps persona name to its system prompt.
	Personas map[string]string `mapstructure:"personas" yaml:"personas"`
	// LanguagePrompts maps language name to its directive prompt.
	LanguagePrompts map[string]string `mapstructure:"language_prompts" yaml:"language_prompts"`
}

// MemoryConfig configures the vector memory store.
type MemoryConfig struct {
	Enabled             bool    `mapstructure:"enabled" yaml:"enabled"`
	DBPath              string  `mapstructure:"db_path" yaml:"db_path"`
	SimilarityThreshold float64 `mapstructure:"similarity_threshold" yaml:"similarity_threshold"`
	MaxResults          int     `mapstructure:"max_results" yaml:"max_results"`
}

// IntentConfig configures rule-based intent detection.
type IntentConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	// Platforms limits intent detection to the named platforms. Empty
	// means all platforms.
	Platforms []string `mapstructure:"platforms" yaml:"platforms"`
}

// DiscordConfig configures the Discord adapter.
type DiscordConfig struct {
	Token      string   `mapstructure:"token" yaml:"token"`
	MasterUser string   `mapstructure:"master_user" yaml:"master_user"`
	Channels   []string `mapstructure:"channels" yaml:"channels"`
}

// TwitchConfig configures the Twitch adapter.
type TwitchConfig struct {
	Token      string `mapstructure:"token" yaml:"token"`
	Nick       string `mapstructure:"nick" yaml:"nick"`
	Channel    string `mapstructure:"channel" yaml:"channel"`
	MasterUser string `mapstructure:"master_user" yaml:"master_user"`
}

// KnowledgeConfig configures knowledge-file loading.
type KnowledgeConfig struct {
	Dir string `mapstructure:"dir" yaml:"dir"`
	// RescanSchedule is a cron expression for the periodic directory
	// rescan and vector import. Empty disables the job.
	RescanSchedule string `mapstructure:"rescan_schedule" yaml:"rescan_schedule"`
}

// ProviderConfig configures external data providers.
type ProviderConfig struct {
	Garage61APIKey   string `mapstructure:"garage61_api_key" yaml:"garage61_api_key"`
	Garage61BaseURL  string `mapstructure:"garage61_base_url" yaml:"garage61_base_url"`
	Garage61SpecPath string `mapstructure:"garage61_spec_path" yaml:"garage61_spec_path"`
}

// ServerConfig configures the metrics/health HTTP listener.
type ServerConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr"`
}

// LoggingConfig configures log output.
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Pretty bool   `mapstructure:"pretty" yaml:"pretty"`
}

// DefaultPersonas are the built-in persona prompts, used when the config
// supplies none.
var DefaultPersonas = map[string]string{
	"default":   "You are a helpful assistant integrated with a Twitch and Discord bot. Keep responses concise, friendly, and appropriate for streaming platforms.",
	"streamer":  "You are a charismatic and entertaining streaming personality. Your responses should be energetic, engaging, and fun.",
	"expert":    "You are a knowledgeable expert providing accurate and detailed information while maintaining a professional tone.",
	"comedian":  "You are a witty comedian with a lighthearted sense of humor. Your responses should be funny but appropriate for all audiences.",
	"motivator": "You are an inspirational motivator offering encouraging and supportive messages.",
}

// DefaultLanguagePrompts are the built-in language directives.
var DefaultLanguagePrompts = map[string]string{
	"english": "Always respond in English, regardless of the language of the input. Your responses should be in grammatically correct and natural-sounding English.",
	"spanish": "Always respond in Spanish (español), regardless of the language of the input. Your responses should be in grammatically correct and natural-sounding Spanish.",
}

// envBindings maps viper keys to the flat environment variable names.
var envBindings = map[string]string{
	"ollama.base_url":             "OLLAMA_BASE_URL",
	"ollama.model":                "OLLAMA_MODEL",
	"ollama.embed_model":          "OLLAMA_EMBED_MODEL",
	"bot.prefix":                  "BOT_PREFIX",
	"bot.enable_ai_response":      "ENABLE_AI_RESPONSE",
	"bot.trigger_phrase":          "AI_TRIGGER_PHRASE",
	"bot.response_probability":    "AI_RESPONSE_PROBABILITY",
	"bot.default_persona":         "DEFAULT_PERSONA",
	"bot.language":                "LANGUAGE",
	"bot.history_size":            "MEMORY_SIZE",
	"bot.global_context_size":     "GLOBAL_CONTEXT_SIZE",
	"memory.enabled":              "ENABLE_VECTOR_MEMORY",
	"memory.db_path":              "MEMORY_DATABASE_PATH",
	"memory.similarity_threshold": "MEMORY_SIMILARITY_THRESHOLD",
	"memory.max_results":          "MEMORY_MAX_RESULTS",
	"intent.enabled":              "ENABLE_INTENT_DETECTION",
	"discord.token":               "DISCORD_TOKEN",
	"discord.master_user":         "DISCORD_MASTER_USER",
	"twitch.token":                "TWITCH_TOKEN",
	"twitch.nick":                 "TWITCH_NICK",
	"twitch.channel":              "TWITCH_CHANNEL",
	"twitch.master_user":          "TWITCH_MASTER_USER",
	"knowledge.dir":               "KNOWLEDGE_DIR",
	"providers.garage61_api_key":  "GARAGE61_API_KEY",
	"server.addr":                 "SERVER_ADDR",
	"logging.level":               "LOG_LEVEL",
}

// Load reads configuration from the given file path (optional, "" skips the
// file) plus the environment, applying defaults for everything unset.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("ollama.base_url", "http://localhost:11434")
	v.SetDefault("ollama.model", "llama3")
	v.SetDefault("ollama.embed_model", "nomic-embed-text")
	v.SetDefault("ollama.complete_timeout", 45*time.Second)
	v.SetDefault("ollama.stream_timeout", 60*time.Second)
	v.SetDefault("ollama.classify_timeout", 10*time.Second)
	v.SetDefault("bot.prefix", "!")
	v.SetDefault("bot.enable_ai_response", true)
	v.SetDefault("bot.trigger_phrase", "@bot")
	v.SetDefault("bot.response_probability", 0.1)
	v.SetDefault("bot.default_persona", "default")
	v.SetDefault("bot.language", "english")
	v.SetDefault("bot.history_size", 20)
	v.SetDefault("bot.global_context_size", 5)
	v.SetDefault("memory.enabled", true)
	v.SetDefault("memory.db_path", "data/memory.db")
	v.SetDefault("memory.similarity_threshold", 0.75)
	v.SetDefault("memory.max_results", 5)
	v.SetDefault("intent.enabled", true)
	v.SetDefault("knowledge.dir", "knowledge")
	v.SetDefault("knowledge.rescan_schedule", "@every 1h")
	v.SetDefault("providers.garage61_base_url", "https://garage61.net/api")
	v.SetDefault("providers.garage61_spec_path", "spec/garage61_v1.json")
	v.SetDefault("server.addr", ":9090")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.pretty", false)

	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", env, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if len(cfg.Bot.Personas) == 0 {
		cfg.Bot.Personas = DefaultPersonas
	}
	if len(cfg.Bot.LanguagePrompts) == 0 {
		cfg.Bot.LanguagePrompts = DefaultLanguagePrompts
	}
	cfg.Bot.Language = strings.ToLower(strings.TrimSpace(cfg.Bot.Language))
	if _, ok := cfg.Bot.LanguagePrompts[cfg.Bot.Language]; !ok {
		cfg.Bot.Language = "english"
	}
	if _, ok := cfg.Bot.Personas[cfg.Bot.DefaultPersona]; !ok {
		cfg.Bot.DefaultPersona = "default"
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks invariants that would otherwise fail deep inside a handler.
func (c *Config) Validate() error {
	if c.Ollama.BaseURL == "" {
		return fmt.Errorf("ollama base_url is required")
	}
	if c.Bot.Prefix == "" {
		return fmt.Errorf("bot prefix must not be empty")
	}
	if c.Bot.ResponseProbability < 0 || c.Bot.ResponseProbability > 1 {
		return fmt.Errorf("response_probability must be in [0,1], got %v", c.Bot.ResponseProbability)
	}
	if c.Memory.SimilarityThreshold < 0 || c.Memory.SimilarityThreshold > 1 {
		return fmt.Errorf("similarity_threshold must be in [0,1], got %v", c.Memory.SimilarityThreshold)
	}
	if c.Bot.HistorySize <= 0 {
		return fmt.Errorf("history_size must be positive")
	}
	return nil
}

// AlwaysRespondOn reports whether the platform answers every non-command
// message.
func (c *Config) AlwaysRespondOn(platform string) bool {
	for _, p := range c.Bot.AlwaysRespond {
		if strings.EqualFold(p, platform) {
			return true
		}
	}
	return false
}

// IntentEnabledOn reports whether intent detection applies to the platform.
func (c *Config) IntentEnabledOn(platform string) bool {
	if !c.Intent.Enabled {
		return false
	}
	if len(c.Intent.Platforms) == 0 {
		return true
	}
	for _, p := range c.Intent.Platforms {
		if strings.EqualFold(p, platform) {
			return true
		}
	}
	return false
}

// MasterUser returns the configured master user for a platform, or "".
func (c *Config) MasterUser(platform string) string {
	switch strings.ToLower(platform) {
	case "discord":
		return c.Discord.MasterUser
	case "twitch":
		return c.Twitch.MasterUser
	case "console":
		// The local console is always trusted.
		return "console"
	}
	return ""
}
