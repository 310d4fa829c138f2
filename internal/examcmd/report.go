package examcmd

import (
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lehigh-university-libraries/examtag/internal/ledger"
)

// NewReportCmd creates the report command for Parquet scan ledgers
func NewReportCmd() *cobra.Command {
	var ledgerPaths []string
	var format string

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Summarize scan ledgers",
		Long: `Report reads one or more Parquet ledgers written by check or results scan and
prints page counts, untagged and rotated pages and the tests found per group.`,
		Example: `  examtag report --ledger scan.parquet
  examtag report --ledger monday.parquet --ledger tuesday.parquet --format csv > pages.csv`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ledger.Formats, format) {
				return fmt.Errorf("unsupported format: %s (supported: %s)", format, strings.Join(ledger.Formats, ", "))
			}

			var rows []ledger.Row
			for _, p := range ledgerPaths {
				r, err := ledger.ReadFile(p)
				if err != nil {
					return err
				}
				rows = append(rows, r...)
			}
			return ledger.WriteReport(cmd.OutOrStdout(), rows, format)
		},
	}

	cmd.Flags().StringArrayVar(&ledgerPaths, "ledger", nil, "Parquet ledger file (repeatable)")
	cmd.Flags().StringVarP(&format, "format", "f", "text", "Output format: text, json, csv or yaml")
	_ = cmd.MarkFlagRequired("ledger")

	return cmd
}
