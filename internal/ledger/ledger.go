// Package ledger records the outcome of every scanned page in a Parquet file.
package ledger

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/parquet-go/parquet-go"

	"github.com/lehigh-university-libraries/examtag/internal/scanner"
)

// Row is one scanned page
type Row struct {
	Document   string `parquet:"document" json:"document" yaml:"document"`
	SourcePage int32  `parquet:"source_page" json:"source_page" yaml:"source_page"`
	Tagged     bool   `parquet:"tagged" json:"tagged" yaml:"tagged"`
	Rotation   int32  `parquet:"rotation" json:"rotation" yaml:"rotation"`
	TestID     int32  `parquet:"test_id" json:"test_id,omitempty" yaml:"test_id,omitempty"`
	Group      string `parquet:"group" json:"group,omitempty" yaml:"group,omitempty"`
	Page       int32  `parquet:"page" json:"page" yaml:"page"`
	Subject    string `parquet:"subject" json:"subject,omitempty" yaml:"subject,omitempty"`
	Name       string `parquet:"name" json:"name,omitempty" yaml:"name,omitempty"`
	Date       string `parquet:"date" json:"date,omitempty" yaml:"date,omitempty"`
	Reason     string `parquet:"reason" json:"reason,omitempty" yaml:"reason,omitempty"`
}

// FromResults converts a scan of document into ledger rows.
func FromResults(document string, results []scanner.PageResult) []Row {
	rows := make([]Row, 0, len(results))
	for _, r := range results {
		row := Row{
			Document:   document,
			SourcePage: int32(r.SourcePage),
			Tagged:     r.Tagged(),
			Rotation:   int32(r.Rotation),
		}
		if r.Tagged() {
			row.TestID = int32(r.Tag.TestID)
			row.Group = r.Tag.Group.String()
			row.Page = int32(r.Tag.Page)
			row.Subject = r.Tag.Subject
			row.Name = r.Tag.Name
			if r.Tag.Date.IsValid() {
				row.Date = r.Tag.Date.String()
			}
		} else if r.Err != nil {
			row.Reason = r.Err.Error()
		}
		rows = append(rows, row)
	}
	return rows
}

// WriteFile saves rows to a Parquet file at path.
func WriteFile(path string, rows []Row) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create ledger directory: %w", err)
		}
	}
	if err := parquet.WriteFile(path, rows); err != nil {
		return fmt.Errorf("failed to write ledger: %w", err)
	}
	slog.Info("Wrote scan ledger", "path", path, "rows", len(rows))
	return nil
}

// ReadFile loads every row of a ledger.
func ReadFile(path string) ([]Row, error) {
	slog.Debug("Opening ledger", "path", path)

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	pf, err := parquet.OpenFile(file, info.Size())
	if err != nil {
		return nil, fmt.Errorf("failed to open parquet: %w", err)
	}

	reader := parquet.NewGenericReader[Row](pf)
	defer reader.Close()

	var rows []Row
	batch := make([]Row, 128)
	for {
		n, err := reader.Read(batch)
		rows = append(rows, batch[:n]...)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read ledger rows: %w", err)
		}
	}

	slog.Debug("Finished reading ledger", "rows", len(rows), "row_groups", len(pf.RowGroups()))
	return rows, nil
}

// Summary aggregates a ledger.
type Summary struct {
	Documents    int            `json:"documents" yaml:"documents"`
	Pages        int            `json:"pages" yaml:"pages"`
	Tagged       int            `json:"tagged" yaml:"tagged"`
	Untagged     int            `json:"untagged" yaml:"untagged"`
	Rotated      int            `json:"rotated" yaml:"rotated"`
	TestsByGroup map[string]int `json:"tests_by_group" yaml:"tests_by_group"`
}

func Summarize(rows []Row) Summary {
	s := Summary{TestsByGroup: map[string]int{}}
	docs := map[string]bool{}
	tests := map[string]map[int32]bool{}
	for _, r := range rows {
		docs[r.Document] = true
		s.Pages++
		if !r.Tagged {
			s.Untagged++
			continue
		}
		s.Tagged++
		if r.Rotation != 0 {
			s.Rotated++
		}
		if tests[r.Group] == nil {
			tests[r.Group] = map[int32]bool{}
		}
		tests[r.Group][r.TestID] = true
	}
	s.Documents = len(docs)
	for g, ids := range tests {
		s.TestsByGroup[g] = len(ids)
	}
	return s
}
