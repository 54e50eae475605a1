package config

import "fmt"

// Issue is a single validation problem with the config.
type Issue struct {
	Path    string
	Message string
}

// Validate checks the config for inconsistent or out-of-range values.
// It returns all issues found rather than stopping at the first.
func Validate(cfg *Config) []Issue {
	var issues []Issue

	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		issues = append(issues, Issue{
			Path:    "server.port",
			Message: fmt.Sprintf("port %d out of range", cfg.Server.Port),
		})
	}
	switch cfg.Server.Bind {
	case "loopback", "lan", "custom":
	default:
		issues = append(issues, Issue{
			Path:    "server.bind",
			Message: fmt.Sprintf("unknown bind mode %q", cfg.Server.Bind),
		})
	}
	if cfg.Server.Bind == "custom" && cfg.Server.CustomBindHost == "" {
		issues = append(issues, Issue{
			Path:    "server.customBindHost",
			Message: "bind mode custom requires customBindHost",
		})
	}

	if cfg.Model.Provider != "gemini" && cfg.Model.Provider != "mock" {
		issues = append(issues, Issue{
			Path:    "model.provider",
			Message: fmt.Sprintf("unknown provider %q", cfg.Model.Provider),
		})
	}

	if cfg.Agent.MaxRounds < 1 {
		issues = append(issues, Issue{
			Path:    "agent.maxRounds",
			Message: "maxRounds must be at least 1",
		})
	}
	if cfg.Agent.GatewayAttempts < 1 {
		issues = append(issues, Issue{
			Path:    "agent.gatewayAttempts",
			Message: "gatewayAttempts must be at least 1",
		})
	}

	switch cfg.Session.Store {
	case "memory", "sqlite":
	default:
		issues = append(issues, Issue{
			Path:    "session.store",
			Message: fmt.Sprintf("unknown session store %q", cfg.Session.Store),
		})
	}

	return issues
}
