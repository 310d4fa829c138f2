package cmd

import (
	"github.com/spf13/cobra"

	"github.com/lehigh-university-libraries/examtag/internal/examcmd"
)

func newResultsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "results",
		Short: "Split scanned tests into one PDF per student",
		Long: `Result tools for handing graded tests back.

A session starts with scan, collects student links with assign and ends with
export (or abort). Sessions live on disk between commands.`,
	}

	// Add results subcommands
	cmd.AddCommand(examcmd.NewScanCmd())
	cmd.AddCommand(examcmd.NewAssignCmd())
	cmd.AddCommand(examcmd.NewExportCmd())
	cmd.AddCommand(examcmd.NewAbortCmd())
	cmd.AddCommand(examcmd.NewListCmd())

	return cmd
}
