package results

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lehigh-university-libraries/examtag/internal/models"
	"github.com/lehigh-university-libraries/examtag/internal/pdfdoc"
	"github.com/lehigh-university-libraries/examtag/internal/qrtag"
	"github.com/lehigh-university-libraries/examtag/internal/scanner"
)

func tagged(src, rotation, testID, page int, snapshot image.Image) scanner.PageResult {
	return scanner.PageResult{
		SourcePage: src,
		Rotation:   rotation,
		Tag:        &qrtag.Payload{TestID: testID, Group: qrtag.GroupA, Subject: "Dějepis", Name: "Novověk", Page: page},
		Snapshot:   snapshot,
	}
}

// combinedScan is a batch where test 3 spans pages 2, 5, 6 and 7. Page 5 is
// upside down, page 6 repeats the first page and page 7 is reported twice.
func combinedScan() []scanner.PageResult {
	first := imaging.New(40, 10, color.Black)
	second := imaging.New(40, 10, color.White)
	return []scanner.PageResult{
		tagged(0, 0, 1, 0, first),
		tagged(1, 0, 1, 1, nil),
		tagged(2, 0, 3, 0, first),
		{SourcePage: 3, Err: scanner.ErrTagNotFound},
		tagged(4, 0, 2, 0, first),
		tagged(5, 180, 3, 1, nil),
		tagged(6, 0, 3, 0, second), // rescanned first page, ignored for the preview
		tagged(7, 0, 3, 2, nil),
		tagged(7, 0, 3, 2, nil),
	}
}

func TestIndex(t *testing.T) {
	session := &models.Session{}
	require.NoError(t, Index(session, combinedScan()))

	wantPages := models.PageIndex{1: {0, 1}, 2: {4}, 3: {2, 5, 6, 7}}
	if diff := cmp.Diff(wantPages, session.Pages); diff != "" {
		t.Errorf("Unexpected page index (-want +got):\n%s", diff)
	}

	ids := make([]int, len(session.Tests))
	for i, rec := range session.Tests {
		ids[i] = rec.TestID
	}
	assert.Equal(t, []int{1, 2, 3}, ids)
	assert.Equal(t, []int{3}, session.Untagged)
	assert.Equal(t, map[int]int{5: 180}, session.Rotations)

	// first page-0 occurrence of test 3 wins
	preview, err := imaging.Decode(bytes.NewReader(session.Test(3).NameBox))
	require.NoError(t, err)
	r, g, b, _ := preview.At(0, 0).RGBA()
	assert.Zero(t, r+g+b, "expected the black preview from source page 2")
}

func TestIndexIdempotent(t *testing.T) {
	a := &models.Session{}
	b := &models.Session{}
	require.NoError(t, Index(a, combinedScan()))
	require.NoError(t, Index(b, combinedScan()))
	require.NoError(t, Index(b, combinedScan()))

	if diff := cmp.Diff(a, b); diff != "" {
		t.Errorf("Repeated scans differ (-first +repeat):\n%s", diff)
	}
}

func TestAssign(t *testing.T) {
	session := &models.Session{}
	require.NoError(t, Index(session, combinedScan()))

	require.NoError(t, Assign(session, "Jan Novak", 1))
	assert.True(t, session.Test(1).Assigned)

	// reassigning moves the link and frees test 1
	require.NoError(t, Assign(session, "  Jan Novak ", 3))
	assert.False(t, session.Test(1).Assigned)
	assert.True(t, session.Test(3).Assigned)
	assert.Equal(t, []models.StudentAssignment{{Student: "Jan Novak", TestID: 3}}, session.Assignments)

	// unknown ids are accepted
	require.NoError(t, Assign(session, "Eva Svobodova", 42))
	assert.Len(t, session.Assignments, 2)

	Unassign(session, "Jan Novak")
	assert.False(t, session.Test(3).Assigned)

	assert.ErrorIs(t, Assign(session, "   ", 1), ErrInvalidAssignment)
	assert.ErrorIs(t, Assign(session, "Petr", 0), ErrInvalidAssignment)
}

type recordingWriter struct {
	paths []string
	pages map[string][]pdfdoc.Placement
	fail  error
}

func (w *recordingWriter) WritePages(path string, pages []pdfdoc.Placement) error {
	if w.fail != nil {
		return w.fail
	}
	if w.pages == nil {
		w.pages = map[string][]pdfdoc.Placement{}
	}
	w.paths = append(w.paths, path)
	w.pages[path] = pages
	return nil
}

func TestExportPerStudent(t *testing.T) {
	session := &models.Session{
		Pages:     models.PageIndex{3: {2, 5, 7}, 1: {0, 1}},
		Rotations: map[int]int{5: 180},
		Assignments: []models.StudentAssignment{
			{Student: "Jan Novak", TestID: 3},
			{Student: "Typo", TestID: 99},
		},
	}
	out := t.TempDir()
	w := &recordingWriter{}

	written, err := ExportPerStudent(context.Background(), w, session, out)
	require.NoError(t, err)

	want := filepath.Join(out, "Jan_Novak_Test_3.pdf")
	assert.Equal(t, []string{want}, written)
	assert.Equal(t, []pdfdoc.Placement{
		{SourcePage: 2},
		{SourcePage: 5, Rotation: 180},
		{SourcePage: 7},
	}, w.pages[want])
}

func TestExportPropagatesWriteErrors(t *testing.T) {
	session := &models.Session{
		Pages:       models.PageIndex{1: {0}},
		Assignments: []models.StudentAssignment{{Student: "A", TestID: 1}},
	}
	boom := errors.New("disk full")

	_, err := ExportPerStudent(context.Background(), &recordingWriter{fail: boom}, session, t.TempDir())
	assert.ErrorIs(t, err, boom)
}

func TestExportStopsOnCancel(t *testing.T) {
	session := &models.Session{
		Pages:       models.PageIndex{1: {0}},
		Assignments: []models.StudentAssignment{{Student: "A", TestID: 1}},
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	w := &recordingWriter{}
	_, err := ExportPerStudent(ctx, w, session, t.TempDir())
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, w.paths)
}

func TestSanitize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "Jan Novak", want: "Jan_Novak"},
		{in: "  Eva  ", want: "Eva"},
		{in: `a/b\c:d*e?f"g<h>i|j`, want: "a_b_c_d_e_f_g_h_i_j"},
		{in: "Žofie Dvořáková", want: "Žofie_Dvořáková"},
		{in: "tab\there", want: "tab_here"},
		{in: "   ", want: "student"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := Sanitize(tt.in); got != tt.want {
				t.Errorf("Expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestFileName(t *testing.T) {
	if got := FileName("Jan Novak", 3); got != "Jan_Novak_Test_3.pdf" {
		t.Errorf("Unexpected file name %q", got)
	}
}
