// File: cmd/repair.go
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/locsmith/api/schemas"
	"github.com/xkilldash9x/locsmith/internal/orchestrator"
)

func newRepairCmd() *cobra.Command {
	var (
		locatorsPath string
		pagePath     string
		output       string
		report       bool
	)

	cmd := &cobra.Command{
		Use:   "repair",
		Short: "Repair locators that do not match exactly one node",
		Long: `Groups failing locators by state and platform, asks for ranked candidates in
batches and keeps only candidates that match exactly one node in the state's XML.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var locators []schemas.ElementWithLocator
			if err := readJSONFile(locatorsPath, &locators); err != nil {
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

			repairer, err := orchestrator.NewLocatorRepairOrchestrator(mc.client, nil, mc.sink, mc.cfg.Repair(), mc.logger)
			if err != nil {
				return err
			}
			res, err := repairer.Repair(cmd.Context(), locators, page)
			if err != nil {
				return fmt.Errorf("locator repair failed: %w", err)
			}
			mc.logger.Info("Repair complete",
				zap.Int("groups", len(res.Groups)),
				zap.Int("applied", res.Applied))

			if report {
				return writeJSON(cmd.OutOrStdout(), output, res)
			}
			return writeJSON(cmd.OutOrStdout(), output, res.Elements)
		},
	}

	cmd.Flags().StringVar(&locatorsPath, "locators", "", "locators JSON file")
	cmd.Flags().StringVar(&pagePath, "page", "", "page JSON file")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default: stdout)")
	cmd.Flags().BoolVar(&report, "report", false, "write per-group reports as well as the locators")
	_ = cmd.MarkFlagRequired("locators")
	_ = cmd.MarkFlagRequired("page")
	return cmd
}
