// File: cmd/root.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/deskpilot/internal/config"
	"github.com/xkilldash9x/deskpilot/internal/observability"
)

type contextKey string

const configKey contextKey = "deskpilot.config"

// viperKeyAnnotation maps a command flag onto a configuration key so the flag
// overrides the config file and environment.
const viperKeyAnnotation = "deskpilot_viper_key"

// NewRootCommand builds a fresh command tree. The interactive shell builds one
// per line so flags never leak between invocations.
func NewRootCommand() *cobra.Command {
	return newRootCmd(newAgentRunner, openJournalReader)
}

func newRootCmd(runners runnerFactory, journals journalFactory) *cobra.Command {
	var cfgFile string

	cmd := &cobra.Command{
		Use:           "deskpilot",
		Short:         "deskpilot drives the desktop toward an objective with a vision model.",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			v := viper.New()
			config.SetDefaults(v)

			if err := initializeConfig(cmd, v, cfgFile); err != nil {
				observability.InitializeLogger(config.LoggerConfig{Level: "info", Format: "console", ServiceName: "deskpilot"})
				return fmt.Errorf("failed to initialize configuration: %w", err)
			}

			cfg, err := config.NewConfigFromViper(v)
			if err != nil {
				observability.InitializeLogger(config.LoggerConfig{Level: "info", Format: "console", ServiceName: "deskpilot"})
				return fmt.Errorf("failed to load or validate config: %w", err)
			}

			observability.InitializeLogger(cfg.Logger)
			observability.GetLogger().Debug("Starting deskpilot", zap.String("version", Version))

			cmd.SetContext(context.WithValue(cmd.Context(), configKey, cfg))
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./config.yaml or ~/.deskpilot/config.yaml)")
	cmd.SetVersionTemplate(`{{printf "%s version %s\n" .Name .Version}}`)

	cmd.AddCommand(newRunCmd(runners))
	cmd.AddCommand(newServeCmd(runners))
	cmd.AddCommand(newJournalCmd(journals))
	cmd.AddCommand(newVersionCmd())
	return cmd
}

// Execute runs the command line with the signal-aware context from main.
func Execute(ctx context.Context) error {
	root := NewRootCommand()
	err := root.ExecuteContext(ctx)
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		observability.GetLogger().Warn("Command aborted")
	} else {
		fmt.Fprintln(os.Stderr, "Error:", err)
		observability.GetLogger().Error("Command execution failed", zap.Error(err))
	}
	observability.Sync()
	return err
}

// initializeConfig reads the config file and environment into v and binds the
// executing command's annotated flags.
func initializeConfig(cmd *cobra.Command, v *viper.Viper, cfgFile string) error {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		if home, err := homedir.Expand("~/.deskpilot"); err == nil {
			v.AddConfigPath(home)
		}
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("DESKPILOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	var bindErr error
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		keys := f.Annotations[viperKeyAnnotation]
		if len(keys) == 0 || bindErr != nil {
			return
		}
		bindErr = v.BindPFlag(keys[0], f)
	})
	return bindErr
}

// bindFlag annotates a flag with the configuration key it overrides.
func bindFlag(cmd *cobra.Command, flag, key string) {
	_ = cmd.Flags().SetAnnotation(flag, viperKeyAnnotation, []string{key})
}

func configFrom(ctx context.Context) (*config.Config, error) {
	cfg, ok := ctx.Value(configKey).(*config.Config)
	if !ok || cfg == nil {
		return nil, errors.New("configuration not initialized")
	}
	return cfg, nil
}
