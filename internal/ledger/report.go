package ledger

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Formats lists the accepted report formats.
var Formats = []string{"text", "json", "csv", "yaml"}

// Report is the serialized form of a ledger summary plus its rows.
type Report struct {
	Summary Summary `json:"summary" yaml:"summary"`
	Rows    []Row   `json:"rows" yaml:"rows"`
}

// WriteReport renders rows to w in the given format.
func WriteReport(w io.Writer, rows []Row, format string) error {
	report := Report{Summary: Summarize(rows), Rows: rows}

	switch format {
	case "text":
		return writeText(w, report)
	case "json":
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(report)
	case "csv":
		return writeCSV(w, rows)
	case "yaml":
		encoder := yaml.NewEncoder(w)
		encoder.SetIndent(2)
		if err := encoder.Encode(report); err != nil {
			return fmt.Errorf("failed to encode report: %w", err)
		}
		return encoder.Close()
	default:
		return fmt.Errorf("unsupported format: %s", format)
	}
}

func writeText(out io.Writer, r Report) error {
	w := bufio.NewWriter(out)
	s := r.Summary
	fmt.Fprintln(w, "========================================")
	fmt.Fprintln(w, "Scan Ledger Report")
	fmt.Fprintln(w, "========================================")
	fmt.Fprintf(w, "Documents: %d\n", s.Documents)
	fmt.Fprintf(w, "Pages:     %d\n", s.Pages)
	fmt.Fprintf(w, "Tagged:    %d\n", s.Tagged)
	fmt.Fprintf(w, "Untagged:  %d\n", s.Untagged)
	fmt.Fprintf(w, "Rotated:   %d\n", s.Rotated)

	groups := make([]string, 0, len(s.TestsByGroup))
	for g := range s.TestsByGroup {
		groups = append(groups, g)
	}
	sort.Strings(groups)
	for _, g := range groups {
		fmt.Fprintf(w, "Tests in group %s: %d\n", g, s.TestsByGroup[g])
	}

	fmt.Fprintln(w, "\nPages:")
	fmt.Fprintln(w, "========================================")
	for _, row := range r.Rows {
		if !row.Tagged {
			fmt.Fprintf(w, "  %s #%d  untagged: %s\n", row.Document, row.SourcePage, row.Reason)
			continue
		}
		rot := ""
		if row.Rotation != 0 {
			rot = fmt.Sprintf("  (rotated %d)", row.Rotation)
		}
		fmt.Fprintf(w, "  %s #%d  test %d [%s] page %d%s\n",
			row.Document, row.SourcePage, row.TestID, row.Group, row.Page, rot)
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

func writeCSV(w io.Writer, rows []Row) error {
	writer := csv.NewWriter(w)

	header := []string{"Document", "Source Page", "Tagged", "Rotation", "Test ID", "Group", "Page", "Subject", "Name", "Date", "Reason"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, r := range rows {
		record := []string{
			r.Document,
			strconv.Itoa(int(r.SourcePage)),
			strconv.FormatBool(r.Tagged),
			strconv.Itoa(int(r.Rotation)),
			strconv.Itoa(int(r.TestID)),
			r.Group,
			strconv.Itoa(int(r.Page)),
			r.Subject,
			r.Name,
			r.Date,
			r.Reason,
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}
