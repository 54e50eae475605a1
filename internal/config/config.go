// Package config loads and validates parley configuration from a YAML file
// with environment overrides.
package config

import "fmt"

// ConfigError represents a configuration error.
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s", e.Message)
}

// Config is the root configuration for parley.
type Config struct {
	Server  ServerConfig  `yaml:"server,omitempty"`
	Model   ModelConfig   `yaml:"model,omitempty"`
	Agent   AgentConfig   `yaml:"agent,omitempty"`
	Tools   ToolsConfig   `yaml:"tools,omitempty"`
	Session SessionConfig `yaml:"session,omitempty"`
	Logging LoggingConfig `yaml:"logging,omitempty"`
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Port           int      `yaml:"port,omitempty"`
	Bind           string   `yaml:"bind,omitempty"` // "loopback" | "lan" | "custom"
	CustomBindHost string   `yaml:"customBindHost,omitempty"`
	AllowedOrigins []string `yaml:"allowedOrigins,omitempty"`
}

// ModelConfig selects and configures the model gateway provider.
type ModelConfig struct {
	Provider    string   `yaml:"provider,omitempty"` // "gemini"
	APIKey      string   `yaml:"apiKey,omitempty"`
	Model       string   `yaml:"model,omitempty"`
	Endpoint    string   `yaml:"endpoint,omitempty"`
	Temperature *float64 `yaml:"temperature,omitempty"`
	MaxTokens   int      `yaml:"maxTokens,omitempty"`
}

// AgentConfig bounds the orchestration loop.
type AgentConfig struct {
	MaxRounds          int `yaml:"maxRounds,omitempty"`          // tool rounds per turn
	GatewayAttempts    int `yaml:"gatewayAttempts,omitempty"`    // model call attempts before giving up
	RetryBackoffMs     int `yaml:"retryBackoffMs,omitempty"`     // base backoff between attempts
	TurnTimeoutSeconds int `yaml:"turnTimeoutSeconds,omitempty"` // whole-turn deadline
}

// ToolsConfig configures the built-in tools and the result cache policy.
type ToolsConfig struct {
	WeatherAPIKey     string `yaml:"weatherApiKey,omitempty"`     // OpenWeatherMap
	SearchAPIKey      string `yaml:"searchApiKey,omitempty"`      // Google Programmable Search
	SearchEngineID    string `yaml:"searchEngineId,omitempty"`    // Programmable Search engine id (cx)
	CacheTTLMinutes   int    `yaml:"cacheTtlMinutes,omitempty"`   // result cache TTL for cacheable tools
	TimeoutSeconds    int    `yaml:"timeoutSeconds,omitempty"`    // default per-tool execution timeout
	DispatchGraceSecs int    `yaml:"dispatchGraceSecs,omitempty"` // grace margin on the dispatch deadline
}

// SessionConfig controls conversation storage and eviction.
type SessionConfig struct {
	Store          string `yaml:"store,omitempty"` // "memory" | "sqlite"
	IdleTTLMinutes int    `yaml:"idleTtlMinutes,omitempty"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level string `yaml:"level,omitempty"`
}

// Defaults returns a Config with sensible defaults applied.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 8000,
			Bind: "loopback",
		},
		Model: ModelConfig{
			Provider: "gemini",
			Model:    "gemini-2.0-flash",
		},
		Agent: AgentConfig{
			MaxRounds:          4,
			GatewayAttempts:    3,
			RetryBackoffMs:     250,
			TurnTimeoutSeconds: 120,
		},
		Tools: ToolsConfig{
			CacheTTLMinutes:   30,
			TimeoutSeconds:    10,
			DispatchGraceSecs: 2,
		},
		Session: SessionConfig{
			Store:          "memory",
			IdleTTLMinutes: 120,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// applyDefaults fills zero-value fields with sensible defaults.
func applyDefaults(cfg *Config) {
	def := Defaults()
	if cfg.Server.Port == 0 {
		cfg.Server.Port = def.Server.Port
	}
	if cfg.Server.Bind == "" {
		cfg.Server.Bind = def.Server.Bind
	}
	if cfg.Model.Provider == "" {
		cfg.Model.Provider = def.Model.Provider
	}
	if cfg.Model.Model == "" {
		cfg.Model.Model = def.Model.Model
	}
	if cfg.Agent.MaxRounds == 0 {
		cfg.Agent.MaxRounds = def.Agent.MaxRounds
	}
	if cfg.Agent.GatewayAttempts == 0 {
		cfg.Agent.GatewayAttempts = def.Agent.GatewayAttempts
	}
	if cfg.Agent.RetryBackoffMs == 0 {
		cfg.Agent.RetryBackoffMs = def.Agent.RetryBackoffMs
	}
	if cfg.Agent.TurnTimeoutSeconds == 0 {
		cfg.Agent.TurnTimeoutSeconds = def.Agent.TurnTimeoutSeconds
	}
	if cfg.Tools.CacheTTLMinutes == 0 {
		cfg.Tools.CacheTTLMinutes = def.Tools.CacheTTLMinutes
	}
	if cfg.Tools.TimeoutSeconds == 0 {
		cfg.Tools.TimeoutSeconds = def.Tools.TimeoutSeconds
	}
	if cfg.Tools.DispatchGraceSecs == 0 {
		cfg.Tools.DispatchGraceSecs = def.Tools.DispatchGraceSecs
	}
	if cfg.Session.Store == "" {
		cfg.Session.Store = def.Session.Store
	}
	if cfg.Session.IdleTTLMinutes == 0 {
		cfg.Session.IdleTTLMinutes = def.Session.IdleTTLMinutes
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = def.Logging.Level
	}
}
