package scanner

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"

	"github.com/makiuchi-d/gozxing"
	zxingqr "github.com/makiuchi-d/gozxing/qrcode"
	"golang.org/x/sync/errgroup"

	"github.com/lehigh-university-libraries/examtag/internal/qrtag"
	"github.com/lehigh-university-libraries/examtag/internal/raster"
)

var (
	ErrTagNotFound  = errors.New("no QR tag found")
	ErrTagMalformed = errors.New("QR tag could not be parsed")
)

// Decoder turns a cropped bitmap into the text of a QR code.
type Decoder interface {
	Decode(img image.Image) (string, error)
}

// QRDecoder reads QR codes only. Rotation is left to the scanner, so the
// decoder never tries other orientations of the crop on its own.
type QRDecoder struct{}

func (QRDecoder) Decode(img image.Image) (string, error) {
	bmp, err := gozxing.NewBinaryBitmapFromImage(img)
	if err != nil {
		return "", fmt.Errorf("failed to binarize image: %w", err)
	}
	hints := map[gozxing.DecodeHintType]interface{}{
		gozxing.DecodeHintType_TRY_HARDER:       true,
		gozxing.DecodeHintType_CHARACTER_SET:    "UTF-8",
		gozxing.DecodeHintType_POSSIBLE_FORMATS: []gozxing.BarcodeFormat{gozxing.BarcodeFormat_QR_CODE},
	}
	// readers keep per-call state; a fresh one keeps Decode safe for concurrent use
	result, err := zxingqr.NewQRCodeReader().Decode(bmp, hints)
	if err != nil {
		return "", err
	}
	return result.GetText(), nil
}

// Options controls a scan pass.
type Options struct {
	DPI      float64
	QRRegion raster.Rect
	// SnapshotRegion, when set, is cropped from the upright page of every
	// page-0 tag (the name box of a copy's first page).
	SnapshotRegion *raster.Rect
	Workers        int
}

// DefaultOptions scans the top-right corner at 300 DPI, one page at a time.
func DefaultOptions() Options {
	return Options{
		DPI:      raster.DefaultDPI,
		QRRegion: raster.QRRegion,
		Workers:  1,
	}
}

// PageResult is the outcome for one source page.
type PageResult struct {
	SourcePage int
	Rotation   int // 0 or 180, degrees clockwise that make the tag upright
	Tag        *qrtag.Payload
	Snapshot   image.Image
	Err        error // ErrTagNotFound or ErrTagMalformed when Tag is nil
}

func (r PageResult) Tagged() bool {
	return r.Tag != nil
}

// Scanner locates tags on rendered pages.
type Scanner struct {
	decoder Decoder
	opts    Options
}

// New returns a scanner. A nil decoder selects QRDecoder.
func New(decoder Decoder, opts Options) *Scanner {
	if decoder == nil {
		decoder = QRDecoder{}
	}
	if opts.DPI <= 0 {
		opts.DPI = raster.DefaultDPI
	}
	if opts.QRRegion == (raster.Rect{}) {
		opts.QRRegion = raster.QRRegion
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	return &Scanner{decoder: decoder, opts: opts}
}

type orientation int

const (
	upright orientation = iota
	rotated180
)

func (o orientation) degrees() int {
	if o == rotated180 {
		return 180
	}
	return 0
}

// Detection is the result of locating a tag on one bitmap.
type Detection struct {
	Rotation int
	Text     string
	Found    bool
	// Oriented is the bitmap in the orientation that produced the tag.
	Oriented image.Image
}

// Locate tries the page upright and then turned 180°.
func (s *Scanner) Locate(page image.Image) Detection {
	state := upright
	current := page
	for {
		text, err := s.decoder.Decode(raster.CropRelative(current, s.opts.QRRegion))
		if err == nil {
			return Detection{Rotation: state.degrees(), Text: text, Found: true, Oriented: current}
		}
		switch state {
		case upright:
			state = rotated180
			current = raster.Rotate180(page)
		default:
			return Detection{}
		}
	}
}

// ScanImage runs detection and payload parsing on one rendered page.
func (s *Scanner) ScanImage(index int, page image.Image) PageResult {
	res := PageResult{SourcePage: index}

	det := s.Locate(page)
	if !det.Found {
		res.Err = ErrTagNotFound
		slog.Warn("QR tag not found", "page", index)
		return res
	}

	tag, err := qrtag.Decode(det.Text)
	if err != nil {
		res.Err = fmt.Errorf("%w: %v", ErrTagMalformed, err)
		slog.Warn("Malformed QR tag", "page", index, "text", det.Text, "err", err)
		return res
	}

	res.Rotation = det.Rotation
	res.Tag = &tag
	if s.opts.SnapshotRegion != nil && tag.Page == 0 {
		res.Snapshot = raster.CropRelative(det.Oriented, *s.opts.SnapshotRegion)
	}

	slog.Debug("QR tag found",
		"page", index,
		"test_id", tag.TestID,
		"group", tag.Group.String(),
		"tag_page", tag.Page,
		"rotation", det.Rotation)
	return res
}

// ScanPage renders and scans one page of src.
func (s *Scanner) ScanPage(ctx context.Context, src raster.Source, index int) (PageResult, error) {
	img, err := src.RenderPage(ctx, index, s.opts.DPI)
	if err != nil {
		return PageResult{}, err
	}
	return s.ScanImage(index, img), nil
}

// ScanDocument scans every page of src and returns results in source order.
// Recognition failures are reported per page; render failures abort the pass.
func (s *Scanner) ScanDocument(ctx context.Context, src raster.Source) ([]PageResult, error) {
	results := make([]PageResult, src.PageCount())

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Workers)

	for i := range results {
		g.Go(func() error {
			res, err := s.ScanPage(ctx, src, i)
			if err != nil {
				return err
			}
			// one slot per page, so no locking is needed
			results[i] = res
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to scan document: %w", err)
	}

	tagged := 0
	for _, r := range results {
		if r.Tagged() {
			tagged++
		}
	}
	slog.Info("Scan complete", "pages", len(results), "tagged", tagged, "untagged", len(results)-tagged)

	return results, nil
}

// Tagged filters results down to pages that carry a parsed tag.
func Tagged(results []PageResult) []PageResult {
	out := make([]PageResult, 0, len(results))
	for _, r := range results {
		if r.Tagged() {
			out = append(out, r)
		}
	}
	return out
}

// Untagged returns the source indexes of pages without a usable tag.
func Untagged(results []PageResult) []int {
	var out []int
	for _, r := range results {
		if !r.Tagged() {
			out = append(out, r.SourcePage)
		}
	}
	return out
}
