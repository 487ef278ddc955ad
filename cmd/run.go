// File: cmd/run.go
package cmd

import (
	"github.com/spf13/cobra"

	"github.com/xkilldash9x/locsmith/api/schemas"
	"github.com/xkilldash9x/locsmith/internal/orchestrator"
)

func newRunCmd() *cobra.Command {
	var (
		pagePath  string
		platforms []string
		output    string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Identify, synthesize and repair locators for a page in one pass",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var page schemas.Page
			if err := readJSONFile(pagePath, &page); err != nil {
				return err
			}

			mc, err := setupModelCommand(cmd)
			if err != nil {
				return err
			}
			defer mc.Close()

			pipeline, err := orchestrator.NewPipeline(mc.cfg, mc.client, mc.sink, mc.logger)
			if err != nil {
				return err
			}
			res, err := pipeline.Run(cmd.Context(), page, platforms)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), output, res)
		},
	}

	cmd.Flags().StringVar(&pagePath, "page", "", "page JSON file")
	cmd.Flags().StringSliceVar(&platforms, "platforms", nil, "target platforms (default: the configured default platform)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default: stdout)")
	_ = cmd.MarkFlagRequired("page")
	return cmd
}
