package stamper

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"cloud.google.com/go/civil"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lehigh-university-libraries/examtag/internal/pdfdoc"
	"github.com/lehigh-university-libraries/examtag/internal/pdfdoc/pdftest"
	"github.com/lehigh-university-libraries/examtag/internal/qrtag"
	"github.com/lehigh-university-libraries/examtag/internal/raster"
	"github.com/lehigh-university-libraries/examtag/internal/scanner"
)

func TestPlanNumbersAcrossGroups(t *testing.T) {
	counter := &Counter{}
	copies := Plan(counter, []GroupJob{
		{Group: qrtag.GroupA, Count: 2, Pages: 3},
		{Group: qrtag.GroupB, Count: 0, Pages: 5},
		{Group: qrtag.GroupB, Count: 2, Pages: 1},
	})

	want := []Copy{
		{TestID: 1, Group: qrtag.GroupA, FirstPage: 0, Pages: 3},
		{TestID: 2, Group: qrtag.GroupA, FirstPage: 3, Pages: 3},
		{TestID: 3, Group: qrtag.GroupB, FirstPage: 6, Pages: 1},
		{TestID: 4, Group: qrtag.GroupB, FirstPage: 7, Pages: 1},
	}
	if diff := cmp.Diff(want, copies); diff != "" {
		t.Errorf("Unexpected plan (-want +got):\n%s", diff)
	}
	if counter.Issued() != 4 {
		t.Errorf("Expected 4 ids issued, got %d", counter.Issued())
	}

	// the counter carries over to the next run
	more := Plan(counter, []GroupJob{{Group: qrtag.GroupA, Count: 1, Pages: 1}})
	if more[0].TestID != 5 {
		t.Errorf("Expected id 5 to continue the sequence, got %d", more[0].TestID)
	}
}

func validRequest() Request {
	return Request{
		Subject: "Matematika",
		Name:    "Zlomky",
		Date:    civil.Date{Year: 2026, Month: 3, Day: 12},
		A:       Template{Path: "a.pdf", Count: 2},
		Output:  "out.pdf",
	}
}

func TestRequestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(r *Request)
		field  string
	}{
		{name: "valid", mutate: func(r *Request) {}},
		{name: "only group B", mutate: func(r *Request) { r.A = Template{}; r.B = Template{Path: "b.pdf", Count: 1} }},
		{name: "zero count is fine", mutate: func(r *Request) { r.A.Count = 0 }},
		{name: "negative count without path is ignored", mutate: func(r *Request) { r.B.Count = -1 }},
		{name: "empty name", mutate: func(r *Request) { r.Name = "" }, field: "Name"},
		{name: "missing date", mutate: func(r *Request) { r.Date = civil.Date{} }, field: "Date"},
		{name: "no templates", mutate: func(r *Request) { r.A = Template{} }, field: "A.Path"},
		{name: "negative count", mutate: func(r *Request) { r.A.Count = -1 }, field: "A.Count"},
		{name: "pipe in subject", mutate: func(r *Request) { r.Subject = "Mat|ematika" }, field: "Subject"},
		{name: "pipe in name", mutate: func(r *Request) { r.Name = "a|b" }, field: "Name"},
		{name: "no output", mutate: func(r *Request) { r.Output = "" }, field: "Output"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validRequest()
			tt.mutate(&req)
			err := req.Validate()
			if tt.field == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidRequest), "expected ErrInvalidRequest, got %v", err)
			assert.Contains(t, err.Error(), tt.field)
		})
	}
}

func TestStampRejectsBeforeIO(t *testing.T) {
	out := filepath.Join(t.TempDir(), "out.pdf")
	req := validRequest()
	req.Name = ""
	req.Output = out

	counter := &Counter{}
	_, err := New(DefaultStyle()).Stamp(context.Background(), req, counter)
	assert.ErrorIs(t, err, ErrInvalidRequest)
	assert.NoFileExists(t, out)
	assert.Zero(t, counter.Issued())
}

func TestStampZeroCopies(t *testing.T) {
	dir := t.TempDir()
	tmpl := filepath.Join(dir, "a.pdf")
	require.NoError(t, os.WriteFile(tmpl, pdftest.Blank(1), 0644))

	req := validRequest()
	req.A = Template{Path: tmpl, Count: 0}
	req.Output = filepath.Join(dir, "out.pdf")

	summary, err := New(DefaultStyle()).Stamp(context.Background(), req, &Counter{})
	require.NoError(t, err)
	assert.Empty(t, summary.Copies)
	assert.Zero(t, summary.FirstTestID())
	assert.NoFileExists(t, req.Output)
}

func TestStampMissingTemplate(t *testing.T) {
	req := validRequest()
	req.A = Template{Path: filepath.Join(t.TempDir(), "nope.pdf"), Count: 1}
	req.Output = filepath.Join(t.TempDir(), "out.pdf")

	_, err := New(DefaultStyle()).Stamp(context.Background(), req, &Counter{})
	assert.ErrorIs(t, err, os.ErrNotExist)
}

// TestStampedTagsScanBack prints copies of two templates and reads every tag
// back through the renderer and scanner.
func TestStampedTagsScanBack(t *testing.T) {
	dir := t.TempDir()
	tmplA := filepath.Join(dir, "a.pdf")
	tmplB := filepath.Join(dir, "b.pdf")
	require.NoError(t, os.WriteFile(tmplA, pdftest.Blank(2), 0644))
	require.NoError(t, os.WriteFile(tmplB, pdftest.Blank(1), 0644))

	req := validRequest()
	req.A = Template{Path: tmplA, Count: 2}
	req.B = Template{Path: tmplB, Count: 1}
	req.Output = filepath.Join(dir, "print", "out.pdf")

	summary, err := New(DefaultStyle()).Stamp(context.Background(), req, &Counter{})
	require.NoError(t, err)
	assert.Equal(t, 5, summary.Pages)
	assert.Equal(t, 1, summary.FirstTestID())
	assert.Equal(t, 3, summary.LastTestID())

	doc, err := pdfdoc.Open(req.Output)
	require.NoError(t, err)
	require.Equal(t, 5, doc.PageCount())

	src, err := raster.OpenPDF(doc.Bytes())
	require.NoError(t, err)
	defer src.Close()

	opts := scanner.DefaultOptions()
	opts.Workers = 2
	results, err := scanner.New(nil, opts).ScanDocument(context.Background(), src)
	require.NoError(t, err)

	want := [][3]int{ // test id, group, page
		{1, 'A', 0}, {1, 'A', 1},
		{2, 'A', 0}, {2, 'A', 1},
		{3, 'B', 0},
	}
	require.Len(t, results, len(want))
	for i, r := range results {
		require.True(t, r.Tagged(), "page %d: %v", i, r.Err)
		got := [3]int{r.Tag.TestID, int(r.Tag.Group), r.Tag.Page}
		assert.Equal(t, want[i], got, "page %d", i)
		assert.Equal(t, req.Subject, r.Tag.Subject)
		assert.Equal(t, req.Name, r.Tag.Name)
		assert.Equal(t, req.Date, r.Tag.Date)
		assert.Equal(t, 0, r.Rotation)
	}
}

func TestQRPixels(t *testing.T) {
	s := New(DefaultStyle())
	if got := s.QRPixels(); got != 417 {
		t.Errorf("Expected 417 px for 100pt at 300 DPI, got %d", got)
	}
}
