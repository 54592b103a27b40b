// File: cmd/components.go
package cmd

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/deskpilot/internal/config"
	"github.com/xkilldash9x/deskpilot/internal/device"
	"github.com/xkilldash9x/deskpilot/internal/executor"
	"github.com/xkilldash9x/deskpilot/internal/humanoid"
	"github.com/xkilldash9x/deskpilot/internal/llmclient"
	"github.com/xkilldash9x/deskpilot/internal/oracle"
	"github.com/xkilldash9x/deskpilot/internal/server"
	"github.com/xkilldash9x/deskpilot/internal/session"
	"github.com/xkilldash9x/deskpilot/internal/store"
)

// runnerFactory builds the objective runner for a command. The returned
// cleanup is never nil and must be called even when err is non-nil.
type runnerFactory func(ctx context.Context, cfg *config.Config, logger *zap.Logger) (server.Runner, func(), error)

// agentComponents tracks everything newAgentRunner opened so it can be
// released in reverse order.
type agentComponents struct {
	logger   *zap.Logger
	closers  []func() error
	closeLog []string
}

func (c *agentComponents) add(name string, fn func() error) {
	c.closers = append(c.closers, fn)
	c.closeLog = append(c.closeLog, name)
}

// Shutdown gracefully closes all components.
func (c *agentComponents) Shutdown() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			c.logger.Warn("Failed to close component", zap.String("component", c.closeLog[i]), zap.Error(err))
		}
	}
	c.closers = nil
	c.closeLog = nil
}

// newAgentRunner wires the desktop, the model client, the oracle, the executor
// and the optional journal into a session controller.
func newAgentRunner(ctx context.Context, cfg *config.Config, logger *zap.Logger) (server.Runner, func(), error) {
	components := &agentComponents{logger: logger}

	client, err := llmclient.NewClient(ctx, cfg.LLM, logger)
	if err != nil {
		return nil, components.Shutdown, fmt.Errorf("failed to initialize LLM client: %w", err)
	}
	components.add("llm_client", client.Close)

	robot := device.NewRobot(logger)
	motion := humanoid.New(cfg.Humanoid, logger, robot)
	exec := executor.New(logger, motion, cfg.Session.BatchDepth)
	o := oracle.New(client, logger, oracle.Options{Timeout: cfg.Session.OracleTimeout})

	opts := []session.Option{session.WithPointer(motion)}
	if cfg.Database.URL != "" {
		st, err := store.Open(ctx, cfg.Database.URL, logger)
		if err != nil {
			return nil, components.Shutdown, fmt.Errorf("failed to initialize session journal: %w", err)
		}
		components.add("store", func() error { st.Close(); return nil })
		opts = append(opts, session.WithJournal(st))
	} else {
		logger.Debug("No database configured, session journal disabled")
	}

	controller := session.NewController(cfg.Session, logger, o, robot, exec, opts...)
	return controller, components.Shutdown, nil
}
