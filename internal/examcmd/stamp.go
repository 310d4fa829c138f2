package examcmd

import (
	"fmt"
	"strings"

	"cloud.google.com/go/civil"
	"github.com/spf13/cobra"

	"github.com/lehigh-university-libraries/examtag/internal/stamper"
)

// NewStampCmd creates the stamp command for printing numbered exam copies
func NewStampCmd() *cobra.Command {
	var req stamper.Request
	var date string

	cmd := &cobra.Command{
		Use:   "stamp",
		Short: "Create numbered, QR-tagged copies of exam templates",
		Long: `Stamp copies one or two templates (group A and group B) into a single printable
document. Every copy gets a unique test id; the first page of each copy gets the
name box, date, subject and title, and every page gets a QR tag in the
top-right corner.`,
		Example: `  # 25 copies of group A and 25 of group B
  examtag stamp --subject Fyzika --name "Optika" --date 2026-03-12 \
    --template-a a.pdf --count-a 25 --template-b b.pdf --count-b 25 --output print.pdf`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(date) != "" {
				d, err := civil.ParseDate(strings.TrimSpace(date))
				if err != nil {
					return fmt.Errorf("%w: date %q is not yyyy-mm-dd", stamper.ErrInvalidRequest, date)
				}
				req.Date = d
			}

			cfg, err := settings(cmd)
			if err != nil {
				return err
			}

			summary, err := stamper.New(cfg.Stamp).Stamp(cmd.Context(), req, &stamper.Counter{})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(summary.Copies) == 0 {
				fmt.Fprintln(out, "No copies requested, nothing written.")
				return nil
			}
			fmt.Fprintf(out, "Wrote %s: %d copies, %d pages, test ids %d-%d\n",
				summary.Output, len(summary.Copies), summary.Pages, summary.FirstTestID(), summary.LastTestID())
			return nil
		},
	}

	cmd.Flags().StringVar(&req.Subject, "subject", "", "Subject printed in the header")
	cmd.Flags().StringVar(&req.Name, "name", "", "Test name (required)")
	cmd.Flags().StringVar(&date, "date", "", "Test date, yyyy-mm-dd (required)")
	cmd.Flags().StringVar(&req.A.Path, "template-a", "", "Template for group A")
	cmd.Flags().IntVar(&req.A.Count, "count-a", 0, "Number of group A copies")
	cmd.Flags().StringVar(&req.B.Path, "template-b", "", "Template for group B")
	cmd.Flags().IntVar(&req.B.Count, "count-b", 0, "Number of group B copies")
	cmd.Flags().StringVarP(&req.Output, "output", "o", "", "Output PDF path (required)")

	return cmd
}
