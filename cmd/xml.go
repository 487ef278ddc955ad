// File: cmd/xml.go
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/locsmith/internal/observability"
	"github.com/xkilldash9x/locsmith/internal/xpatheval"
)

func readXMLFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	return string(data), nil
}

func newEvalCmd() *cobra.Command {
	var (
		xmlPath    string
		expression string
		output     string
	)

	cmd := &cobra.Command{
		Use:   "eval",
		Short: "Evaluate an XPath expression against an XML page source",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			xml, err := readXMLFile(xmlPath)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), output, xpatheval.Evaluate(xml, expression))
		},
	}

	cmd.Flags().StringVar(&xmlPath, "xml", "", "XML page source file")
	cmd.Flags().StringVar(&expression, "xpath", "", "XPath expression")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default: stdout)")
	_ = cmd.MarkFlagRequired("xml")
	_ = cmd.MarkFlagRequired("xpath")
	return cmd
}

func newSimplifyCmd() *cobra.Command {
	var (
		xmlPath string
		depth   int
		output  string
	)

	cmd := &cobra.Command{
		Use:   "simplify",
		Short: "Truncate an XML page source below a depth",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			xml, err := readXMLFile(xmlPath)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("depth") {
				if cfg, err := configFromContext(cmd.Context()); err == nil {
					depth = cfg.Repair().SimplifyDepth
				}
			}

			simplified, removed, err := xpatheval.Simplify(xml, depth)
			if err != nil {
				return err
			}
			observability.GetLogger().Info("Simplified XML",
				zap.Int("depth", depth),
				zap.Int("bytes_before", len(xml)),
				zap.Int("bytes_after", len(simplified)),
				zap.Int("omitted_nodes", removed))

			return writeOutput(cmd.OutOrStdout(), output, []byte(simplified+"\n"))
		},
	}

	cmd.Flags().StringVar(&xmlPath, "xml", "", "XML page source file")
	cmd.Flags().IntVar(&depth, "depth", 10, "deepest element depth kept (root is 0); defaults to repair.simplify_depth")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default: stdout)")
	_ = cmd.MarkFlagRequired("xml")
	return cmd
}
