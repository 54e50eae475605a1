package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dmaher/parley/internal/config"
)

func newAskCmd() *cobra.Command {
	var conversationID string

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask the agent a single question without starting the server",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(paths.Config)
			if err != nil {
				return err
			}

			issues := config.Validate(&cfg)
			if len(issues) > 0 {
				for _, issue := range issues {
					log.Error().Str("path", issue.Path).Msg(issue.Message)
				}
				return fmt.Errorf("config validation failed with %d issue(s)", len(issues))
			}

			orch, cleanup, err := buildOrchestrator(cfg)
			if err != nil {
				return err
			}
			defer cleanup()

			query := strings.Join(args, " ")
			result, err := orch.HandleTurn(context.Background(), conversationID, query)
			if err != nil {
				return err
			}

			for _, call := range result.ToolCalls {
				status := "ok"
				if call.Result.Failed() {
					status = string(call.Result.Failure.Kind)
				}
				log.Debug().Str("tool", call.Name).Str("status", status).Msg("tool call")
			}

			fmt.Println(result.Response)
			return nil
		},
	}

	cmd.Flags().StringVar(&conversationID, "conversation", "", "continue an existing conversation id")

	return cmd
}
