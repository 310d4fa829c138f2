package raster

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"log/slog"

	"github.com/disintegration/imaging"
	"github.com/gen2brain/go-fitz"
)

// DefaultDPI keeps a ~100pt QR code legible inside a 45% corner crop.
const DefaultDPI = 300

// Rect is a rectangle in page-relative units, origin top-left, all values in [0,1].
type Rect struct {
	X float64 `mapstructure:"x" yaml:"x" validate:"gte=0,lte=1"`
	Y float64 `mapstructure:"y" yaml:"y" validate:"gte=0,lte=1"`
	W float64 `mapstructure:"w" yaml:"w" validate:"gt=0,lte=1"`
	H float64 `mapstructure:"h" yaml:"h" validate:"gt=0,lte=1"`
}

var (
	// QRRegion is the top-right corner searched for the tag.
	QRRegion = Rect{X: 0.55, Y: 0, W: 0.45, H: 0.45}
	// NameBoxRegion covers the handwritten name box printed on a copy's first page.
	NameBoxRegion = Rect{X: 0.10, Y: 0.0095, W: 0.49, H: 0.06}
)

// Source is a paged document that can be rasterized one page at a time.
type Source interface {
	PageCount() int
	RenderPage(ctx context.Context, index int, dpi float64) (image.Image, error)
	Close() error
}

// PDFSource renders PDF pages with MuPDF.
type PDFSource struct {
	doc *fitz.Document
}

// OpenPDF opens an in-memory PDF for rendering.
func OpenPDF(data []byte) (*PDFSource, error) {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, fmt.Errorf("failed to open document for rendering: %w", err)
	}
	slog.Debug("Opened document for rendering", "pages", doc.NumPage())
	return &PDFSource{doc: doc}, nil
}

func (s *PDFSource) PageCount() int {
	return s.doc.NumPage()
}

// RenderPage rasterizes one 0-based page. go-fitz serializes access to the
// document, so concurrent callers queue here.
func (s *PDFSource) RenderPage(ctx context.Context, index int, dpi float64) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if index < 0 || index >= s.doc.NumPage() {
		return nil, fmt.Errorf("page %d out of range (document has %d pages)", index, s.doc.NumPage())
	}
	if dpi <= 0 {
		dpi = DefaultDPI
	}
	img, err := s.doc.ImageDPI(index, dpi)
	if err != nil {
		return nil, fmt.Errorf("failed to render page %d: %w", index, err)
	}
	return img, nil
}

func (s *PDFSource) Close() error {
	return s.doc.Close()
}

// CropRelative extracts r from img. The origin is clamped inside the image and
// the size is at least one pixel but never runs past the edge.
func CropRelative(img image.Image, r Rect) *image.NRGBA {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	x := clamp(int(float64(w)*r.X), 0, max(0, w-1))
	y := clamp(int(float64(h)*r.Y), 0, max(0, h-1))
	cw := clamp(int(float64(w)*r.W), 1, w-x)
	ch := clamp(int(float64(h)*r.H), 1, h-y)

	return imaging.Crop(img, image.Rect(b.Min.X+x, b.Min.Y+y, b.Min.X+x+cw, b.Min.Y+y+ch))
}

// Rotate180 returns a rotated copy; img is not modified.
func Rotate180(img image.Image) *image.NRGBA {
	return imaging.Rotate180(img)
}

// EncodePNG returns the PNG bytes of img. Output is deterministic for equal input.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, fmt.Errorf("failed to encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodePNG is the inverse of EncodePNG, used for stored previews.
func DecodePNG(data []byte) (image.Image, error) {
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return img, nil
}

func clamp(v, lo, hi int) int {
	if hi < lo {
		hi = lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
