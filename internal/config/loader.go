package config

import (
	"os"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// envVarPattern matches ${VAR_NAME} patterns in strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnvVars replaces ${VAR} patterns with environment variable values.
// Unset variables are left unchanged.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := match[2 : len(match)-1]
		if val, ok := os.LookupEnv(varName); ok {
			return val
		}
		return match
	})
}

// expandSensitiveFields processes environment variable references in
// credential fields so API keys can be stored as ${ENV_VAR}.
func expandSensitiveFields(cfg *Config) {
	cfg.Model.APIKey = expandEnvVars(cfg.Model.APIKey)
	cfg.Tools.WeatherAPIKey = expandEnvVars(cfg.Tools.WeatherAPIKey)
	cfg.Tools.SearchAPIKey = expandEnvVars(cfg.Tools.SearchAPIKey)
}

// Load reads the config file, applies environment overrides, and returns a
// merged Config. A missing file produces defaults only.
func Load(path string) (Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			applyEnvOverrides(&cfg)
			return cfg, nil
		}
		return cfg, err
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, &ConfigError{Message: "failed to parse config: " + err.Error()}
	}

	applyDefaults(&cfg)
	applyEnvOverrides(&cfg)
	expandSensitiveFields(&cfg)
	return cfg, nil
}

// applyEnvOverrides reads PARLEY_* environment variables and overrides
// config values. GOOGLE_API_KEY is honored as the model key when the config
// carries none, matching the original deployment convention.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("PARLEY_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("PARLEY_BIND"); v != "" {
		cfg.Server.Bind = v
	}
	if v := os.Getenv("PARLEY_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
	if v := os.Getenv("PARLEY_SESSION_STORE"); v != "" {
		cfg.Session.Store = v
	}
	if v := os.Getenv("GOOGLE_API_KEY"); v != "" && cfg.Model.APIKey == "" {
		cfg.Model.APIKey = v
	}
	if v := os.Getenv("OPENWEATHERMAP_API_KEY"); v != "" && cfg.Tools.WeatherAPIKey == "" {
		cfg.Tools.WeatherAPIKey = v
	}
}
