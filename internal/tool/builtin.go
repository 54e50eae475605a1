package tool

import (
	"net/http"
	"time"

	"github.com/dmaher/parley/internal/config"
)

// httpClient is shared by the built-in tools that call external APIs.
// Per-call deadlines come from the dispatcher's context; the client timeout
// is a backstop for connections that outlive their context.
var httpClient = &http.Client{Timeout: 30 * time.Second}

// Builtins returns the standard tool set wired from config: weather, web
// search, calculator, dictionary lookup, and current date/time.
func Builtins(cfg config.ToolsConfig) []*Tool {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	cacheTTL := time.Duration(cfg.CacheTTLMinutes) * time.Minute

	return []*Tool{
		NewWeatherTool(cfg.WeatherAPIKey, openWeatherMapURL, timeout, cacheTTL),
		NewSearchTool(cfg.SearchAPIKey, cfg.SearchEngineID, timeout),
		NewCalculateTool(timeout),
		NewDefineTool(dictionaryAPIURL, timeout, cacheTTL),
		NewDatetimeTool(),
	}
}

// RegistryFromConfig builds a registry holding the built-in tool set.
func RegistryFromConfig(cfg config.ToolsConfig) *Registry {
	reg := NewRegistry()
	for _, t := range Builtins(cfg) {
		reg.Register(t)
	}
	return reg
}
