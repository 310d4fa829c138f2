// Package results turns a combined scan of written exams into per-student files.
package results

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"unicode"

	"github.com/lehigh-university-libraries/examtag/internal/models"
	"github.com/lehigh-university-libraries/examtag/internal/pdfdoc"
	"github.com/lehigh-university-libraries/examtag/internal/raster"
	"github.com/lehigh-university-libraries/examtag/internal/scanner"
)

var ErrInvalidAssignment = errors.New("invalid assignment")

// PageWriter saves a selection of pages as a new document.
type PageWriter interface {
	WritePages(path string, pages []pdfdoc.Placement) error
}

// Scan reads every page of src and records tests, pages and rotations in
// session. The scanner should be configured with a snapshot region so name
// boxes are captured.
func Scan(ctx context.Context, sc *scanner.Scanner, src raster.Source, session *models.Session) ([]scanner.PageResult, error) {
	pages, err := sc.ScanDocument(ctx, src)
	if err != nil {
		return nil, err
	}
	session.PageCount = src.PageCount()
	if err := Index(session, pages); err != nil {
		return nil, err
	}
	return pages, nil
}

// Index rebuilds the bookkeeping of session from scan results given in
// source order. Assignments are kept. Running it twice on the same results
// gives the same session.
func Index(session *models.Session, pages []scanner.PageResult) error {
	session.Tests = nil
	session.Pages = models.PageIndex{}
	session.Rotations = nil
	session.Untagged = nil

	seen := make(map[int]bool)
	for _, r := range pages {
		if !r.Tagged() {
			session.Untagged = append(session.Untagged, r.SourcePage)
			continue
		}

		tag := r.Tag
		session.Pages.Add(tag.TestID, r.SourcePage)
		if r.Rotation != 0 {
			if session.Rotations == nil {
				session.Rotations = make(map[int]int)
			}
			session.Rotations[r.SourcePage] = r.Rotation
		}

		if tag.Page != 0 {
			continue
		}
		if seen[tag.TestID] {
			slog.Debug("Duplicate first page ignored", "test_id", tag.TestID, "page", r.SourcePage)
			continue
		}
		seen[tag.TestID] = true

		rec := models.TestRecord{
			TestID:  tag.TestID,
			Group:   tag.Group.String(),
			Subject: tag.Subject,
			Name:    tag.Name,
		}
		if r.Snapshot != nil {
			png, err := raster.EncodePNG(r.Snapshot)
			if err != nil {
				return fmt.Errorf("failed to store name box of test %d: %w", tag.TestID, err)
			}
			rec.NameBox = png
		}
		session.Tests = append(session.Tests, rec)
	}

	session.Pages.Normalize()
	sort.Slice(session.Tests, func(i, j int) bool {
		return session.Tests[i].TestID < session.Tests[j].TestID
	})
	markAssigned(session)

	slog.Info("Indexed scan",
		"tests", len(session.Tests),
		"tagged_pages", len(pages)-len(session.Untagged),
		"untagged_pages", len(session.Untagged),
		"rotated_pages", len(session.Rotations))
	return nil
}

// Assign links student to testID, replacing any earlier link of that
// student. Test ids that were never scanned are accepted and skipped on
// export.
func Assign(session *models.Session, student string, testID int) error {
	student = strings.TrimSpace(student)
	if student == "" {
		return fmt.Errorf("%w: student name is empty", ErrInvalidAssignment)
	}
	if testID < 1 {
		return fmt.Errorf("%w: test id %d", ErrInvalidAssignment, testID)
	}

	replaced := false
	for i := range session.Assignments {
		if session.Assignments[i].Student == student {
			session.Assignments[i].TestID = testID
			replaced = true
			break
		}
	}
	if !replaced {
		session.Assignments = append(session.Assignments, models.StudentAssignment{Student: student, TestID: testID})
	}
	if session.Test(testID) == nil {
		slog.Debug("Assigned a test that was not scanned", "student", student, "test_id", testID)
	}

	markAssigned(session)
	return nil
}

// Unassign removes the link of student, if any.
func Unassign(session *models.Session, student string) {
	student = strings.TrimSpace(student)
	kept := session.Assignments[:0]
	for _, a := range session.Assignments {
		if a.Student != student {
			kept = append(kept, a)
		}
	}
	session.Assignments = kept
	markAssigned(session)
}

func markAssigned(session *models.Session) {
	linked := make(map[int]bool, len(session.Assignments))
	for _, a := range session.Assignments {
		linked[a.TestID] = true
	}
	for i := range session.Tests {
		session.Tests[i].Assigned = linked[session.Tests[i].TestID]
	}
}

// FileName is the export name of one student's test.
func FileName(student string, testID int) string {
	return fmt.Sprintf("%s_Test_%d.pdf", Sanitize(student), testID)
}

// ExportPerStudent writes one document per assignment with scanned pages into
// outputDir and returns the written paths. Assignments whose test has no pages
// are skipped.
func ExportPerStudent(ctx context.Context, w PageWriter, session *models.Session, outputDir string) ([]string, error) {
	var written []string
	for _, a := range session.Assignments {
		if err := ctx.Err(); err != nil {
			return written, err
		}

		pages := session.Pages[a.TestID]
		if len(pages) == 0 {
			slog.Debug("No pages for assignment", "student", a.Student, "test_id", a.TestID)
			continue
		}

		placements := make([]pdfdoc.Placement, len(pages))
		for i, p := range pages {
			placements[i] = pdfdoc.Placement{SourcePage: p, Rotation: session.Rotation(p)}
		}

		path := filepath.Join(outputDir, FileName(a.Student, a.TestID))
		if err := w.WritePages(path, placements); err != nil {
			return written, fmt.Errorf("failed to export test %d for %s: %w", a.TestID, a.Student, err)
		}
		written = append(written, path)
	}

	slog.Info("Export complete", "files", len(written), "assignments", len(session.Assignments))
	return written, nil
}

// Sanitize makes a student name safe to use in a file name.
func Sanitize(name string) string {
	name = strings.TrimSpace(name)
	out := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) || unicode.IsControl(r) || strings.ContainsRune(`<>:"/\|?*`, r) {
			return '_'
		}
		return r
	}, name)
	if out == "" {
		return "student"
	}
	return out
}
