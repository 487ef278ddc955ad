// File: cmd/root.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/locsmith/internal/config"
	"github.com/xkilldash9x/locsmith/internal/observability"
)

type contextKey string

// configKey stores the validated config.Interface on the command context.
const configKey contextKey = "config"

// fallbackLoggerConfig is used when the real configuration cannot be loaded,
// so the failure itself can still be logged.
var fallbackLoggerConfig = config.LoggerConfig{Level: "info", Format: "console", ServiceName: "locsmith"}

// newRootCmd builds the command tree. Every call returns an independent tree,
// which keeps tests free of shared flag state.
func newRootCmd() *cobra.Command {
	var cfgFile string

	cmd := &cobra.Command{
		Use:          "locsmith",
		Short:        "Locsmith identifies UI elements on app screens and builds verified XPath locators.",
		Version:      Version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			v := viper.New()
			config.SetDefaults(v)

			if err := initializeConfig(v, cfgFile); err != nil {
				observability.InitializeLogger(fallbackLoggerConfig)
				return fmt.Errorf("failed to initialize configuration: %w", err)
			}

			cfg, err := config.Load(v)
			if err != nil {
				observability.InitializeLogger(fallbackLoggerConfig)
				return fmt.Errorf("failed to load or validate config: %w", err)
			}

			observability.InitializeLogger(cfg.Logger())
			observability.GetLogger().Debug("Starting locsmith",
				zap.String("version", Version),
				zap.String("command", cmd.Name()))

			cmd.SetContext(context.WithValue(cmd.Context(), configKey, config.Interface(cfg)))
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			observability.Sync()
		},
	}

	cmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./locsmith.yaml)")
	cmd.SetVersionTemplate(`{{printf "%s version %s\n" .Name .Version}}`)

	cmd.AddCommand(
		newAnalyzeCmd(),
		newSynthesizeCmd(),
		newRepairCmd(),
		newRunCmd(),
		newEvalCmd(),
		newSimplifyCmd(),
		newConfigCmd(),
		newVersionCmd(),
	)
	return cmd
}

// Execute runs the command tree under ctx.
func Execute(ctx context.Context) error {
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		if !errors.Is(err, context.Canceled) {
			observability.GetLogger().Error("Command execution failed", zap.Error(err))
		}
		observability.Sync()
		return err
	}
	return nil
}

// initializeConfig reads the config file and LOCSMITH_* environment variables
// into v. A missing default config file is not an error.
func initializeConfig(v *viper.Viper, cfgFile string) error {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("locsmith")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("LOCSMITH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}
	return nil
}

// configFromContext returns the config stored by the root pre-run hook.
func configFromContext(ctx context.Context) (config.Interface, error) {
	cfg, ok := ctx.Value(configKey).(config.Interface)
	if !ok || cfg == nil {
		return nil, fmt.Errorf("configuration not found in command context")
	}
	return cfg, nil
}
