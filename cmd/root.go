package cmd

import (
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/lehigh-university-libraries/examtag/internal/config"
	"github.com/lehigh-university-libraries/examtag/internal/examcmd"
)

func NewRootCmd() *cobra.Command {
	var configPath string
	var verbose bool

	cmd := &cobra.Command{
		Use:   "examtag",
		Short: "Print, scan and redistribute QR-tagged paper exams",
		Long: `Examtag stamps numbered copies of exam templates with a QR tag on every page,
then reads the tags back from scans: to reorder pages for grading, and to split
a scanned class into one PDF per student.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Load .env file if present (ignore errors)
			_ = godotenv.Load()

			level := slog.LevelInfo
			if verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			cmd.SetContext(config.WithContext(cmd.Context(), cfg))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML config file (EXAMTAG_* env vars override it)")
	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	// Add subcommands
	cmd.AddCommand(examcmd.NewStampCmd())
	cmd.AddCommand(examcmd.NewCheckCmd())
	cmd.AddCommand(newResultsCmd())
	cmd.AddCommand(examcmd.NewReportCmd())

	return cmd
}
