// File: cmd/run.go
package cmd

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/deskpilot/internal/observability"
	"github.com/xkilldash9x/deskpilot/internal/session"
)

// newRunCmd creates the `run` command, which drives one objective to a
// terminal state and exits.
func newRunCmd(runners runnerFactory) *cobra.Command {
	var objective string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Runs a single objective against the desktop",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			objective = strings.TrimSpace(objective)
			if objective == "" {
				return errors.New("--objective must not be empty")
			}

			ctx := cmd.Context()
			cfg, err := configFrom(ctx)
			if err != nil {
				return err
			}
			logger := observability.GetLogger()

			runner, cleanup, err := runners(ctx, cfg, logger)
			defer cleanup()
			if err != nil {
				return fmt.Errorf("failed to initialize agent: %w", err)
			}

			logger.Info("Starting objective",
				zap.String("objective", objective),
				zap.String("mode", string(cfg.Session.Mode)),
				zap.Int("max_steps", cfg.Session.MaxSteps),
			)

			res := runner.Execute(ctx, session.Request{Objective: objective})
			printResult(cmd.OutOrStdout(), res)
			return res.Err
		},
	}

	cmd.Flags().StringVarP(&objective, "objective", "o", "", "natural-language objective to accomplish")
	cmd.Flags().Int("max-steps", 0, "global iteration ceiling, 0 disables (overrides session.max_steps)")
	cmd.Flags().String("mode", "", "pointer protocol: direct or confirm (overrides session.mode)")
	_ = cmd.MarkFlagRequired("objective")
	bindFlag(cmd, "max-steps", "session.max_steps")
	bindFlag(cmd, "mode", "session.mode")
	return cmd
}

func printResult(w io.Writer, res session.Result) {
	fmt.Fprintf(w, "session:        %s\n", res.ID)
	fmt.Fprintf(w, "state:          %s\n", res.State)
	fmt.Fprintf(w, "steps:          %d completed, %d exhausted, %d planned\n", res.StepsCompleted, res.StepsExhausted, len(res.Plan))
	fmt.Fprintf(w, "iterations:     %d\n", res.Iterations)
	fmt.Fprintf(w, "batch failures: %d\n", res.BatchFailures)
	if res.Err != nil {
		fmt.Fprintf(w, "reason:         %v\n", res.Err)
	}
}
