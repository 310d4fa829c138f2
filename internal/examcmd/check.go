package examcmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/lehigh-university-libraries/examtag/internal/router"
)

// NewCheckCmd creates the check command that reorders scanned tests for grading
func NewCheckCmd() *cobra.Command {
	var opts router.Options
	var inputs []string
	var ledgerPath string
	var workers int

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Sort and split scanned tests for grading",
		Long: `Check scans the QR tag of every page, turns upside-down pages upright and
writes the tagged pages in grading order: either one document per group or a
single merged document, sorted by page number or by test number.

Pages without a readable tag are reported and left out.`,
		Example: `  # group A and B separately, all first pages together
  examtag check --input scan.pdf --sort-by-page --split-by-group --output-a a.pdf --output-b b.pdf

  # one document, test after test
  examtag check --input scan1.pdf --input scan2.pdf --sort-by-test --merged --output-a all.pdf`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.Validate(); err != nil {
				return err
			}
			if len(inputs) == 0 {
				return fmt.Errorf("%w: at least one --input is required", router.ErrInvalidOptions)
			}

			cfg, err := settings(cmd)
			if err != nil {
				return err
			}

			doc, results, err := scanInputs(cmd.Context(), cfg, inputs, workers, false)
			if err != nil {
				return err
			}

			plan, err := router.Route(results, opts)
			if err != nil {
				return err
			}
			written, err := router.Write(plan, doc)
			if err != nil {
				return err
			}
			if err := writeLedger(ledgerPath, documentName(inputs), results); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, o := range plan.Outputs {
				if len(o.Pages) == 0 {
					continue
				}
				label := "merged"
				if o.Group != "" {
					label = "group " + o.Group
				}
				fmt.Fprintf(out, "%s: %d pages -> %s\n", label, len(o.Pages), o.Path)
			}
			if len(plan.Untagged) > 0 {
				fmt.Fprintf(out, "Untagged pages (1-based): %v\n", oneBased(plan.Untagged))
			}
			slog.Debug("Check complete", "outputs", len(written), "untagged", len(plan.Untagged))
			return nil
		},
	}

	cmd.Flags().StringArrayVarP(&inputs, "input", "i", nil, "Scanned PDF (repeatable, merged in order)")
	cmd.Flags().BoolVar(&opts.SortByPageNumber, "sort-by-page", false, "Order by page number, then test number")
	cmd.Flags().BoolVar(&opts.SortByTestNumber, "sort-by-test", false, "Order by test number, then page number")
	cmd.Flags().BoolVar(&opts.SplitByGroup, "split-by-group", false, "Write group A and group B to separate documents")
	cmd.Flags().BoolVar(&opts.MergedSingle, "merged", false, "Write all pages to one document")
	cmd.Flags().StringVar(&opts.OutputA, "output-a", "", "Output for group A, or the merged document")
	cmd.Flags().StringVar(&opts.OutputB, "output-b", "", "Output for group B")
	cmd.Flags().StringVar(&ledgerPath, "ledger", "", "Write a Parquet ledger of every scanned page")
	cmd.Flags().IntVar(&workers, "workers", 0, "Pages scanned in parallel (default from config)")

	return cmd
}

func oneBased(pages []int) []int {
	out := make([]int, len(pages))
	for i, p := range pages {
		out[i] = p + 1
	}
	return out
}
