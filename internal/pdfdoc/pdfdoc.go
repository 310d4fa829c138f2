// Package pdfdoc is the paged-document layer: open, merge, pick pages and save.
package pdfdoc

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

var configOnce sync.Once

// Configuration returns a relaxed pdfcpu configuration. Scanner software
// produces plenty of slightly broken PDFs, so strict validation is off.
func Configuration() *model.Configuration {
	configOnce.Do(api.DisableConfigDir)
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return conf
}

// Placement is one source page to copy into an output document.
type Placement struct {
	SourcePage int // 0-based
	Rotation   int // degrees added to the page's own rotation
}

// Document is a PDF held in memory.
type Document struct {
	data  []byte
	pages int
}

// Open reads and validates a PDF file.
func Open(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read pdf: %w", err)
	}
	doc, err := FromBytes(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return doc, nil
}

// FromBytes wraps PDF bytes.
func FromBytes(data []byte) (*Document, error) {
	n, err := api.PageCount(bytes.NewReader(data), Configuration())
	if err != nil {
		return nil, fmt.Errorf("failed to read page count: %w", err)
	}
	return &Document{data: data, pages: n}, nil
}

func (d *Document) PageCount() int {
	return d.pages
}

func (d *Document) Bytes() []byte {
	return d.data
}

// Merge concatenates documents in order.
func Merge(w io.Writer, docs ...[]byte) error {
	if len(docs) == 0 {
		return fmt.Errorf("nothing to merge")
	}
	if len(docs) == 1 {
		_, err := w.Write(docs[0])
		return err
	}
	rsc := make([]io.ReadSeeker, len(docs))
	for i, d := range docs {
		rsc[i] = bytes.NewReader(d)
	}
	if err := api.MergeRaw(rsc, w, false, Configuration()); err != nil {
		return fmt.Errorf("failed to merge documents: %w", err)
	}
	return nil
}

// MergeFiles opens each path and merges them into one document.
func MergeFiles(paths []string) (*Document, error) {
	docs := make([][]byte, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("failed to read pdf: %w", err)
		}
		docs = append(docs, data)
	}

	var buf bytes.Buffer
	if err := Merge(&buf, docs...); err != nil {
		return nil, err
	}
	slog.Info("Merged input documents", "inputs", len(paths), "bytes", buf.Len())
	return FromBytes(buf.Bytes())
}

// Extract writes the placed pages, in order, to w. Pages with a rotation
// have it added to their /Rotate entry.
func (d *Document) Extract(w io.Writer, pages []Placement) error {
	if len(pages) == 0 {
		return fmt.Errorf("no pages to extract")
	}

	selected := make([]string, 0, len(pages))
	rotations := make(map[int][]string)
	for i, p := range pages {
		if p.SourcePage < 0 || p.SourcePage >= d.pages {
			return fmt.Errorf("page %d out of range (document has %d pages)", p.SourcePage, d.pages)
		}
		selected = append(selected, strconv.Itoa(p.SourcePage+1))
		if r := normalizeRotation(p.Rotation); r != 0 {
			rotations[r] = append(rotations[r], strconv.Itoa(i+1))
		}
	}

	conf := Configuration()
	var collected bytes.Buffer
	if err := api.Collect(bytes.NewReader(d.data), &collected, selected, conf); err != nil {
		return fmt.Errorf("failed to collect pages: %w", err)
	}

	out := collected.Bytes()
	for _, deg := range []int{90, 180, 270} {
		positions, ok := rotations[deg]
		if !ok {
			continue
		}
		var rotated bytes.Buffer
		if err := api.Rotate(bytes.NewReader(out), &rotated, deg, positions, conf); err != nil {
			return fmt.Errorf("failed to rotate pages: %w", err)
		}
		out = rotated.Bytes()
	}

	_, err := w.Write(out)
	return err
}

// WritePages saves the placed pages as a new PDF at path.
func (d *Document) WritePages(path string, pages []Placement) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	var buf bytes.Buffer
	if err := d.Extract(&buf, pages); err != nil {
		return err
	}
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write pdf: %w", err)
	}
	slog.Info("Wrote document", "path", path, "pages", len(pages))
	return nil
}

func normalizeRotation(deg int) int {
	deg = ((deg % 360) + 360) % 360
	switch deg {
	case 90, 180, 270:
		return deg
	default:
		return 0
	}
}
