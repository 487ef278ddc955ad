// File: cmd/analyze.go
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/locsmith/api/schemas"
	"github.com/xkilldash9x/locsmith/internal/orchestrator"
)

func newAnalyzeCmd() *cobra.Command {
	var (
		pagePath  string
		platforms []string
		runs      int
		output    string
		report    bool
	)

	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Identify the named elements of a page",
		Long: `Runs several identification attempts on the default platform, keeps the
best scoring element list and maps it onto every other requested platform.`,
		Args: cobra.NoArgs,
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

			visual, err := orchestrator.NewVisualAnalysisOrchestrator(mc.client, mc.sink, mc.cfg.Pipeline(), mc.logger)
			if err != nil {
				return err
			}
			res, err := visual.Analyze(cmd.Context(), page, platforms, runs)
			if err != nil {
				return fmt.Errorf("element identification failed: %w", err)
			}
			mc.logger.Info("Analysis complete",
				zap.String("page_id", page.ID),
				zap.Int("elements", len(res.Elements)),
				zap.Int("best_run", res.BestRun))

			if report {
				return writeJSON(cmd.OutOrStdout(), output, res)
			}
			return writeJSON(cmd.OutOrStdout(), output, res.Elements)
		},
	}

	cmd.Flags().StringVar(&pagePath, "page", "", "page JSON file")
	cmd.Flags().StringSliceVar(&platforms, "platforms", nil, "target platforms (default: the configured default platform)")
	cmd.Flags().IntVar(&runs, "runs", 0, "identification attempts (default: pipeline.analysis_runs)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default: stdout)")
	cmd.Flags().BoolVar(&report, "report", false, "write the full analysis report instead of the element list")
	_ = cmd.MarkFlagRequired("page")
	return cmd
}
