package examcmd

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/lehigh-university-libraries/examtag/internal/models"
	"github.com/lehigh-university-libraries/examtag/internal/pdfdoc"
	"github.com/lehigh-university-libraries/examtag/internal/raster"
	"github.com/lehigh-university-libraries/examtag/internal/results"
	"github.com/lehigh-university-libraries/examtag/internal/scanner"
)

// NewScanCmd creates the results scan command that starts a session
func NewScanCmd() *cobra.Command {
	var inputs []string
	var ledgerPath string
	var workers int

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Scan written tests and start an assignment session",
		Long: `Scan merges the scanned batches into one combined document, reads the QR tag
of every page and records which pages belong to which test. The first page of
every test is cropped to a name box preview so it can be matched to a student.`,
		Example: `  examtag results scan --input batch1.pdf --input batch2.pdf`,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			if len(inputs) == 0 {
				return fmt.Errorf("at least one --input is required")
			}
			cfg, err := settings(cmd)
			if err != nil {
				return err
			}

			doc, err := pdfdoc.MergeFiles(inputs)
			if err != nil {
				return err
			}

			store := sessionStore(cfg)
			session, err := store.Create(doc.Bytes(), inputs)
			if err != nil {
				return err
			}
			// a session that failed halfway is never listed
			defer func() {
				if err == nil {
					return
				}
				if delErr := store.Delete(session.ID); delErr != nil {
					slog.Warn("Failed to discard session", "id", session.ID, "err", delErr)
				}
			}()

			src, err := raster.OpenPDF(doc.Bytes())
			if err != nil {
				return err
			}
			defer src.Close()

			sc := scanner.New(nil, scanOptions(cfg, workers, true))
			pages, err := results.Scan(cmd.Context(), sc, src, session)
			if err != nil {
				return err
			}
			if err := store.Save(session); err != nil {
				return err
			}
			if err := writeLedger(ledgerPath, documentName(inputs), pages); err != nil {
				return err
			}

			printSession(cmd, store.Dir(session.ID), session)
			return nil
		},
	}

	cmd.Flags().StringArrayVarP(&inputs, "input", "i", nil, "Scanned PDF (repeatable, merged in order)")
	cmd.Flags().StringVar(&ledgerPath, "ledger", "", "Write a Parquet ledger of every scanned page")
	cmd.Flags().IntVar(&workers, "workers", 0, "Pages scanned in parallel (default from config)")

	return cmd
}

// assignmentFile is the YAML layout accepted by --assignments.
type assignmentFile struct {
	Assignments []models.StudentAssignment `yaml:"assignments"`
}

// NewAssignCmd creates the results assign command
func NewAssignCmd() *cobra.Command {
	var sessionID, student, file string
	var testID int

	cmd := &cobra.Command{
		Use:   "assign",
		Short: "Link students to scanned tests",
		Long: `Assign links a student to a test id. Assigning the same student again replaces
the earlier link. Many links can be loaded at once from a YAML file:

  assignments:
    - student: Jan Novak
      test_id: 3`,
		Example: `  examtag results assign --session <id> --student "Jan Novak" --test 3
  examtag results assign --session <id> --assignments students.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := settings(cmd)
			if err != nil {
				return err
			}
			store := sessionStore(cfg)
			session, err := store.Get(sessionID)
			if err != nil {
				return err
			}

			var pending []models.StudentAssignment
			if file != "" {
				data, err := os.ReadFile(file)
				if err != nil {
					return fmt.Errorf("failed to read assignments: %w", err)
				}
				var af assignmentFile
				if err := yaml.Unmarshal(data, &af); err != nil {
					return fmt.Errorf("failed to parse assignments: %w", err)
				}
				pending = append(pending, af.Assignments...)
			}
			if student != "" || testID != 0 {
				pending = append(pending, models.StudentAssignment{Student: student, TestID: testID})
			}
			if len(pending) == 0 {
				return fmt.Errorf("%w: give --student and --test, or --assignments", results.ErrInvalidAssignment)
			}

			for _, a := range pending {
				if err := results.Assign(session, a.Student, a.TestID); err != nil {
					return err
				}
			}
			if err := store.Save(session); err != nil {
				return err
			}

			printSession(cmd, store.Dir(session.ID), session)
			return nil
		},
	}

	cmd.Flags().StringVarP(&sessionID, "session", "s", "", "Session id from results scan (required)")
	cmd.Flags().StringVar(&student, "student", "", "Student display name")
	cmd.Flags().IntVar(&testID, "test", 0, "Test id written by the student")
	cmd.Flags().StringVar(&file, "assignments", "", "YAML file with many assignments")
	_ = cmd.MarkFlagRequired("session")

	return cmd
}

// NewExportCmd creates the results export command
func NewExportCmd() *cobra.Command {
	var sessionID, outputDir string
	var keep bool

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write one PDF per assigned student",
		Long: `Export writes {student}_Test_{id}.pdf for every assignment whose test has
scanned pages, with upside-down pages turned upright. The session is removed
afterwards unless --keep is given.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := settings(cmd)
			if err != nil {
				return err
			}
			store := sessionStore(cfg)
			session, err := store.Get(sessionID)
			if err != nil {
				return err
			}

			doc, err := pdfdoc.Open(store.CombinedPath(session))
			if err != nil {
				return err
			}

			written, err := results.ExportPerStudent(cmd.Context(), doc, session, outputDir)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, p := range written {
				fmt.Fprintln(out, p)
			}
			fmt.Fprintf(out, "Exported %d of %d assignments to %s\n", len(written), len(session.Assignments), outputDir)

			if keep {
				return nil
			}
			return store.Delete(session.ID)
		},
	}

	cmd.Flags().StringVarP(&sessionID, "session", "s", "", "Session id from results scan (required)")
	cmd.Flags().StringVarP(&outputDir, "output", "o", ".", "Output folder")
	cmd.Flags().BoolVar(&keep, "keep", false, "Keep the session after exporting")
	_ = cmd.MarkFlagRequired("session")

	return cmd
}

// NewAbortCmd creates the results abort command
func NewAbortCmd() *cobra.Command {
	var sessionID string

	cmd := &cobra.Command{
		Use:   "abort",
		Short: "Discard a session without exporting",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := settings(cmd)
			if err != nil {
				return err
			}
			if err := sessionStore(cfg).Delete(sessionID); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Session %s discarded\n", sessionID)
			return nil
		},
	}

	cmd.Flags().StringVarP(&sessionID, "session", "s", "", "Session id (required)")
	_ = cmd.MarkFlagRequired("session")

	return cmd
}

// NewListCmd creates the results list command
func NewListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List open sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := settings(cmd)
			if err != nil {
				return err
			}
			sessions, err := sessionStore(cfg).List()
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "SESSION\tCREATED\tPAGES\tTESTS\tASSIGNED")
			for _, s := range sessions {
				assigned := 0
				for _, t := range s.Tests {
					if t.Assigned {
						assigned++
					}
				}
				fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\n", s.ID, s.CreatedAt.Format("2006-01-02 15:04"), s.PageCount, len(s.Tests), assigned)
			}
			return w.Flush()
		},
	}
}

func printSession(cmd *cobra.Command, dir string, s *models.Session) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Session: %s\n", s.ID)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TEST\tGROUP\tPAGES\tSTUDENT\tNAME BOX")
	for _, t := range s.Tests {
		student := "-"
		for _, a := range s.Assignments {
			if a.TestID == t.TestID {
				student = a.Student
			}
		}
		preview := "-"
		if t.NameBoxFile != "" {
			preview = filepath.Join(dir, t.NameBoxFile)
		}
		fmt.Fprintf(w, "%d\t%s\t%v\t%s\t%s\n", t.TestID, t.Group, oneBased(s.Pages[t.TestID]), student, preview)
	}
	_ = w.Flush()

	if len(s.Untagged) > 0 {
		fmt.Fprintf(out, "Untagged pages (1-based): %v\n", oneBased(s.Untagged))
	}
}
