// File: cmd/serve.go
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/deskpilot/internal/observability"
	"github.com/xkilldash9x/deskpilot/internal/server"
)

// newServeCmd creates the `serve` command: the HTTP launcher that accepts one
// objective at a time until the process is signalled.
func newServeCmd(runners runnerFactory) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Starts the HTTP launcher (POST /agent)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
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

			srv := server.New(cfg.Server, logger, runner)
			if err := srv.ListenAndServe(ctx); err != nil {
				return fmt.Errorf("launcher stopped: %w", err)
			}
			logger.Info("Launcher stopped")
			return nil
		},
	}

	cmd.Flags().String("addr", "", "listen address (overrides server.addr)")
	bindFlag(cmd, "addr", "server.addr")
	return cmd
}
