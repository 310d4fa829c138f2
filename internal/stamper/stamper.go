// Package stamper produces numbered, QR-tagged copies of exam templates.
package stamper

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"

	"cloud.google.com/go/civil"
	"github.com/disintegration/imaging"
	"github.com/go-playground/validator/v10"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
	qrgen "github.com/skip2/go-qrcode"

	"github.com/lehigh-university-libraries/examtag/internal/pdfdoc"
	"github.com/lehigh-university-libraries/examtag/internal/qrtag"
	"github.com/lehigh-university-libraries/examtag/internal/raster"
)

var ErrInvalidRequest = errors.New("invalid stamp request")

// Template is one group's source document and how many copies to make.
type Template struct {
	Path  string
	Count int
}

// Request describes one stamping run.
type Request struct {
	Subject string `validate:"excludesall=0x7C"`
	Name    string `validate:"required,excludesall=0x7C"`
	Date    civil.Date
	A       Template
	B       Template
	Output  string `validate:"required"`
}

// Style holds the printed geometry, in points, and the header labels.
type Style struct {
	Margin    float64 `mapstructure:"margin" validate:"gte=0"`
	QRSize    float64 `mapstructure:"qr_size" validate:"gt=0"`
	QRDPI     int     `mapstructure:"qr_dpi" validate:"gte=72"`
	NameLabel string  `mapstructure:"name_label"`
	DateLabel string  `mapstructure:"date_label"`
}

// DefaultStyle matches the printed sheets the scanner regions are tuned for.
func DefaultStyle() Style {
	return Style{
		Margin:    25,
		QRSize:    100,
		QRDPI:     raster.DefaultDPI,
		NameLabel: "jméno:",
		DateLabel: "datum:",
	}
}

// Summary reports what a run produced.
type Summary struct {
	Output string
	Copies []Copy
	Pages  int
}

// FirstTestID returns the lowest id issued, or 0 when nothing was stamped.
func (s Summary) FirstTestID() int {
	if len(s.Copies) == 0 {
		return 0
	}
	return s.Copies[0].TestID
}

func (s Summary) LastTestID() int {
	if len(s.Copies) == 0 {
		return 0
	}
	return s.Copies[len(s.Copies)-1].TestID
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterStructValidation(requestLevel, Request{})
	return v
}

func requestLevel(sl validator.StructLevel) {
	req := sl.Current().Interface().(Request)
	if !req.Date.IsValid() {
		sl.ReportError(req.Date, "Date", "Date", "required", "")
	}
	if strings.TrimSpace(req.A.Path) == "" && strings.TrimSpace(req.B.Path) == "" {
		sl.ReportError(req.A.Path, "A.Path", "Path", "required_without", "B.Path")
	}
	if req.A.Path != "" && req.A.Count < 0 {
		sl.ReportError(req.A.Count, "A.Count", "Count", "gte", "0")
	}
	if req.B.Path != "" && req.B.Count < 0 {
		sl.ReportError(req.B.Count, "B.Count", "Count", "gte", "0")
	}
}

// Validate checks the request before any file is touched.
func (r Request) Validate() error {
	err := validate.Struct(r)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s failed %s=%s", fe.Namespace(), fe.Tag(), fe.Param()))
			continue
		}
		msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
	}
	return fmt.Errorf("%w: %s", ErrInvalidRequest, strings.Join(msgs, "; "))
}

// Stamper writes tagged copies.
type Stamper struct {
	style Style
}

func New(style Style) *Stamper {
	def := DefaultStyle()
	if style.QRSize <= 0 {
		style.QRSize = def.QRSize
	}
	if style.QRDPI <= 0 {
		style.QRDPI = def.QRDPI
	}
	if style.NameLabel == "" {
		style.NameLabel = def.NameLabel
	}
	if style.DateLabel == "" {
		style.DateLabel = def.DateLabel
	}
	return &Stamper{style: style}
}

// Stamp builds the copies for req, numbering them with counter, and writes a
// single document with group A copies before group B copies.
func (s *Stamper) Stamp(ctx context.Context, req Request, counter *Counter) (Summary, error) {
	if err := req.Validate(); err != nil {
		return Summary{}, err
	}

	var jobs []GroupJob
	for _, t := range []struct {
		group qrtag.Group
		tmpl  Template
	}{{qrtag.GroupA, req.A}, {qrtag.GroupB, req.B}} {
		if t.tmpl.Path == "" || t.tmpl.Count == 0 {
			continue
		}
		doc, err := pdfdoc.Open(t.tmpl.Path)
		if err != nil {
			return Summary{}, fmt.Errorf("failed to open template %s: %w", t.group, err)
		}
		jobs = append(jobs, GroupJob{Group: t.group, Count: t.tmpl.Count, Pages: doc.PageCount(), Data: doc.Bytes()})
	}

	copies := Plan(counter, jobs)
	if len(copies) == 0 {
		slog.Info("Nothing to stamp", "output", req.Output)
		return Summary{Output: req.Output}, nil
	}

	var sources [][]byte
	for _, j := range jobs {
		for i := 0; i < j.Count; i++ {
			sources = append(sources, j.Data)
		}
	}
	var merged bytes.Buffer
	if err := pdfdoc.Merge(&merged, sources...); err != nil {
		return Summary{}, err
	}

	if err := ctx.Err(); err != nil {
		return Summary{}, err
	}

	stamps, err := s.watermarks(req, copies)
	if err != nil {
		return Summary{}, err
	}

	var out bytes.Buffer
	if err := api.AddWatermarksSliceMap(bytes.NewReader(merged.Bytes()), &out, stamps, pdfdoc.Configuration()); err != nil {
		return Summary{}, fmt.Errorf("failed to stamp pages: %w", err)
	}

	if dir := filepath.Dir(req.Output); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return Summary{}, fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	if err := os.WriteFile(req.Output, out.Bytes(), 0644); err != nil {
		return Summary{}, fmt.Errorf("failed to write stamped document: %w", err)
	}

	last := copies[len(copies)-1]
	summary := Summary{Output: req.Output, Copies: copies, Pages: last.FirstPage + last.Pages}
	slog.Info("Stamped templates",
		"output", req.Output,
		"copies", len(copies),
		"pages", summary.Pages,
		"first_test_id", summary.FirstTestID(),
		"last_test_id", summary.LastTestID())
	return summary, nil
}

// watermarks returns the stamps of every output page, keyed by 1-based page number.
func (s *Stamper) watermarks(req Request, copies []Copy) (map[int][]*model.Watermark, error) {
	nameBox, err := s.nameBoxPNG()
	if err != nil {
		return nil, err
	}

	stamps := make(map[int][]*model.Watermark)
	for _, c := range copies {
		for p := 0; p < c.Pages; p++ {
			pageNr := c.FirstPage + p + 1

			if p == 0 {
				header, err := s.header(req, c.Group, nameBox)
				if err != nil {
					return nil, err
				}
				stamps[pageNr] = append(stamps[pageNr], header...)
			}

			tag := qrtag.Payload{
				TestID:  c.TestID,
				Group:   c.Group,
				Subject: req.Subject,
				Name:    req.Name,
				Date:    req.Date,
				Page:    p,
			}
			qr, err := s.qrStamp(tag)
			if err != nil {
				return nil, fmt.Errorf("failed to build tag for test %d page %d: %w", c.TestID, p, err)
			}
			stamps[pageNr] = append(stamps[pageNr], qr)
		}
	}
	return stamps, nil
}

func (s *Stamper) textDesc(points int, pos string, dx, dy float64) string {
	return fmt.Sprintf("fontname:Helvetica-Bold, points:%d, position:%s, offset:%g %g, scalefactor:1 abs, rotation:0, fillcolor:#000000, opacity:1",
		points, pos, dx, dy)
}

// header is the static text printed on the first page of a copy.
func (s *Stamper) header(req Request, group qrtag.Group, nameBox []byte) ([]*model.Watermark, error) {
	m := s.style.Margin
	texts := []struct {
		text string
		desc string
	}{
		{s.style.NameLabel, s.textDesc(10, "tl", m, -(m + 7))},
		{fmt.Sprintf("%s %s", s.style.DateLabel, req.Date.String()), s.textDesc(10, "tl", m+330, -(m + 7))},
		{fmt.Sprintf("%s [%s]", req.Subject, group), s.textDesc(15, "tc", 0, -(m + 45))},
		{req.Name, s.textDesc(15, "tc", 0, -(m + 65))},
	}

	var out []*model.Watermark
	for _, t := range texts {
		wm, err := api.TextWatermark(t.text, t.desc, true, false, types.POINTS)
		if err != nil {
			return nil, fmt.Errorf("failed to prepare header text: %w", err)
		}
		out = append(out, wm)
	}

	box, err := api.ImageWatermarkForReader(bytes.NewReader(nameBox),
		fmt.Sprintf("position:tl, offset:%g %g, scalefactor:%g abs, rotation:0, opacity:1", m+45, -m, 1.0/nameBoxScale),
		true, false, types.POINTS)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare name box: %w", err)
	}
	return append(out, box), nil
}

const (
	nameBoxW     = 270
	nameBoxH     = 30
	nameBoxScale = 4 // pixels per point
)

// nameBoxPNG draws the empty rectangle students write their name into.
func (s *Stamper) nameBoxPNG() ([]byte, error) {
	w, h := nameBoxW*nameBoxScale, nameBoxH*nameBoxScale
	img := imaging.New(w, h, color.Transparent)
	line := nameBoxScale
	img = imaging.Paste(img, imaging.New(w, line, color.Black), image.Pt(0, 0))
	img = imaging.Paste(img, imaging.New(w, line, color.Black), image.Pt(0, h-line))
	img = imaging.Paste(img, imaging.New(line, h, color.Black), image.Pt(0, 0))
	img = imaging.Paste(img, imaging.New(line, h, color.Black), image.Pt(w-line, 0))
	return raster.EncodePNG(img)
}

// QRPixels is the bitmap size of a tag, sized so it prints at QRDPI.
func (s *Stamper) QRPixels() int {
	return int(math.Round(s.style.QRSize * float64(s.style.QRDPI) / 72.0))
}

func (s *Stamper) qrStamp(tag qrtag.Payload) (*model.Watermark, error) {
	q, err := qrgen.New(qrtag.Encode(tag), qrgen.Medium)
	if err != nil {
		return nil, err
	}
	px := s.QRPixels()
	png, err := q.PNG(px)
	if err != nil {
		return nil, err
	}
	inset := s.style.Margin - 10
	desc := fmt.Sprintf("position:tr, offset:%g %g, scalefactor:%g abs, rotation:0, opacity:1",
		-inset, -inset, s.style.QRSize/float64(px))
	return api.ImageWatermarkForReader(bytes.NewReader(png), desc, true, false, types.POINTS)
}
