// File: cmd/config.go
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/xkilldash9x/locsmith/internal/config"
)

// effectiveConfig mirrors config.Config with yaml keys matching the file layout.
type effectiveConfig struct {
	Logger   config.LoggerConfig    `yaml:"logger"`
	LLM      config.LLMRouterConfig `yaml:"llm"`
	Pipeline config.PipelineConfig  `yaml:"pipeline"`
	Repair   config.RepairConfig    `yaml:"repair"`
}

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML",
		Long: `Prints the configuration after merging defaults, the config file and LOCSMITH_*
environment variables. API keys are never printed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configFromContext(cmd.Context())
			if err != nil {
				return err
			}

			out := effectiveConfig{
				Logger:   cfg.Logger(),
				LLM:      cfg.LLM(),
				Pipeline: cfg.Pipeline(),
				Repair:   cfg.Repair(),
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(out); err != nil {
				return fmt.Errorf("failed to encode configuration: %w", err)
			}
			return enc.Close()
		},
	}
}
