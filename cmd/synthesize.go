// File: cmd/synthesize.go
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/locsmith/api/schemas"
	"github.com/xkilldash9x/locsmith/internal/orchestrator"
)

func newSynthesizeCmd() *cobra.Command {
	var (
		elementsPath string
		pagePath     string
		platforms    []string
		runs         int
		output       string
		report       bool
	)

	cmd := &cobra.Command{
		Use:   "synthesize",
		Short: "Generate and verify XPath locators for identified elements",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var elements []schemas.Element
			if err := readJSONFile(elementsPath, &elements); err != nil {
				return err
			}
			var page schemas.Page
			if err := readJSONFile(pagePath, &page); err != nil {
				return err
			}

			mc, err := setupModelCommand(cmd)
			if err != nil {
				return err
			}
			defer mc.Close()

			synth, err := orchestrator.NewLocatorSynthesisOrchestrator(mc.client, nil, mc.sink, mc.cfg.Pipeline(), mc.logger)
			if err != nil {
				return err
			}
			res, err := synth.Synthesize(cmd.Context(), elements, page, platforms, runs)
			if err != nil {
				return fmt.Errorf("locator synthesis failed: %w", err)
			}
			mc.logger.Info("Synthesis complete",
				zap.Int("groups", len(res.Groups)),
				zap.Int("locators", len(res.Elements)))

			if report {
				return writeJSON(cmd.OutOrStdout(), output, res)
			}
			return writeJSON(cmd.OutOrStdout(), output, res.Elements)
		},
	}

	cmd.Flags().StringVar(&elementsPath, "elements", "", "elements JSON file")
	cmd.Flags().StringVar(&pagePath, "page", "", "page JSON file")
	cmd.Flags().StringSliceVar(&platforms, "platforms", nil, "target platforms (default: the configured default platform)")
	cmd.Flags().IntVar(&runs, "runs", 0, "generation attempts per group (default: pipeline.synthesis_runs)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default: stdout)")
	cmd.Flags().BoolVar(&report, "report", false, "write per-group reports as well as the locators")
	_ = cmd.MarkFlagRequired("elements")
	_ = cmd.MarkFlagRequired("page")
	return cmd
}
