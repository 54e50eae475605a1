package cli

import (
	"context"
	"fmt"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dmaher/parley/internal/agent"
	"github.com/dmaher/parley/internal/api"
	"github.com/dmaher/parley/internal/cache"
	"github.com/dmaher/parley/internal/config"
	"github.com/dmaher/parley/internal/logging"
	"github.com/dmaher/parley/internal/model"
	"github.com/dmaher/parley/internal/store"
	"github.com/dmaher/parley/internal/tool"
)

func newServeCmd() *cobra.Command {
	var (
		port int
		bind string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the agent HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(paths.Config)
			if err != nil {
				return err
			}

			if port != 0 {
				cfg.Server.Port = port
			}
			if bind != "" {
				cfg.Server.Bind = bind
			}

			issues := config.Validate(&cfg)
			if len(issues) > 0 {
				for _, issue := range issues {
					log.Error().Str("path", issue.Path).Msg(issue.Message)
				}
				return fmt.Errorf("config validation failed with %d issue(s)", len(issues))
			}

			// The --log-level flag wins over the config file.
			if logLevel == "" && cfg.Logging.Level != "" {
				log = logging.New(nil, cfg.Logging.Level)
			}

			if err := paths.EnsureDirs(); err != nil {
				return fmt.Errorf("creating data directories: %w", err)
			}

			orch, cleanup, err := buildOrchestrator(cfg)
			if err != nil {
				return err
			}
			defer cleanup()

			if !orch.Ready() {
				log.Warn().Msg("no model API key configured — turns will return degraded answers")
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			srv := api.New(cfg, orch, log)
			return srv.Start(ctx)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "override server port")
	cmd.Flags().StringVar(&bind, "bind", "", "override bind mode (loopback, lan, custom)")

	return cmd
}

// buildOrchestrator wires the conversation store, tool registry, result
// cache, model gateway, and dispatcher into an orchestrator. The returned
// cleanup closes everything the wiring opened.
func buildOrchestrator(cfg config.Config) (*agent.Orchestrator, func(), error) {
	idleTTL := time.Duration(cfg.Session.IdleTTLMinutes) * time.Minute

	var convs store.ConversationStore
	var closers []func()

	if cfg.Session.Store == "sqlite" {
		dbPath := filepath.Join(paths.Data, "parley.db")
		db, err := store.Open(dbPath, log)
		if err != nil {
			return nil, nil, fmt.Errorf("opening database: %w", err)
		}
		s := store.NewSQLiteStore(db, idleTTL)
		convs = s
		closers = append(closers, func() { s.Close(); db.Close() })
		log.Info().Str("path", dbPath).Msg("using SQLite conversation store")
	} else {
		s := store.NewMemoryStore(idleTTL, log)
		convs = s
		closers = append(closers, func() { s.Close() })
		log.Info().Msg("using in-memory conversation store")
	}

	results := cache.New(time.Minute)
	closers = append(closers, results.Close)

	registry := tool.RegistryFromConfig(cfg.Tools)
	gateway := newGateway(cfg.Model)
	dispatcher := agent.NewDispatcher(registry, results, cfg.Tools, log)
	orch := agent.NewOrchestrator(gateway, convs, registry, dispatcher, cfg.Agent, log)

	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	return orch, cleanup, nil
}

func newGateway(cfg config.ModelConfig) model.Gateway {
	switch cfg.Provider {
	case "mock":
		return &model.MockGateway{}
	default:
		return model.NewGeminiGateway(cfg)
	}
}
