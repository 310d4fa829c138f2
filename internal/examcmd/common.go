package examcmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lehigh-university-libraries/examtag/internal/config"
	"github.com/lehigh-university-libraries/examtag/internal/ledger"
	"github.com/lehigh-university-libraries/examtag/internal/pdfdoc"
	"github.com/lehigh-university-libraries/examtag/internal/raster"
	"github.com/lehigh-university-libraries/examtag/internal/scanner"
	"github.com/lehigh-university-libraries/examtag/internal/storage"
)

// settings returns the configuration loaded by the root command, falling back
// to defaults and environment when a command runs on its own.
func settings(cmd *cobra.Command) (*config.Config, error) {
	if cfg := config.FromContext(cmd.Context()); cfg != nil {
		return cfg, nil
	}
	return config.Load("")
}

func sessionStore(cfg *config.Config) *storage.SessionStore {
	return storage.New(cfg.SessionsDir)
}

// scanInputs merges the input documents and scans every page.
func scanInputs(ctx context.Context, cfg *config.Config, inputs []string, workers int, snapshots bool) (*pdfdoc.Document, []scanner.PageResult, error) {
	doc, err := pdfdoc.MergeFiles(inputs)
	if err != nil {
		return nil, nil, err
	}
	results, err := scanDocument(ctx, cfg, doc, workers, snapshots)
	if err != nil {
		return nil, nil, err
	}
	return doc, results, nil
}

func scanDocument(ctx context.Context, cfg *config.Config, doc *pdfdoc.Document, workers int, snapshots bool) ([]scanner.PageResult, error) {
	src, err := raster.OpenPDF(doc.Bytes())
	if err != nil {
		return nil, err
	}
	defer src.Close()

	return scanner.New(nil, scanOptions(cfg, workers, snapshots)).ScanDocument(ctx, src)
}

func scanOptions(cfg *config.Config, workers int, snapshots bool) scanner.Options {
	opts := cfg.Scan.ScannerOptions(snapshots)
	if workers > 0 {
		opts.Workers = workers
	}
	return opts
}

func writeLedger(path, document string, results []scanner.PageResult) error {
	if path == "" {
		return nil
	}
	return ledger.WriteFile(path, ledger.FromResults(document, results))
}

func documentName(inputs []string) string {
	if len(inputs) == 1 {
		return inputs[0]
	}
	return fmt.Sprintf("%s (+%d)", inputs[0], len(inputs)-1)
}
