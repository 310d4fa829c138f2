package router

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/go-playground/validator/v10"

	"github.com/lehigh-university-libraries/examtag/internal/pdfdoc"
	"github.com/lehigh-university-libraries/examtag/internal/qrtag"
	"github.com/lehigh-university-libraries/examtag/internal/scanner"
)

var ErrInvalidOptions = errors.New("invalid routing options")

// PageWriter saves a selection of pages as a new document.
type PageWriter interface {
	WritePages(path string, pages []pdfdoc.Placement) error
}

// Options selects exactly one sort policy and exactly one split policy.
type Options struct {
	SortByPageNumber bool
	SortByTestNumber bool
	SplitByGroup     bool
	MergedSingle     bool

	// OutputA receives group A, or every page when merged.
	OutputA string `validate:"required"`
	OutputB string `validate:"required_if=SplitByGroup true"`
}

var validate = validator.New()

// Validate reports flag combinations that cannot be routed.
func (o Options) Validate() error {
	if o.SortByPageNumber == o.SortByTestNumber {
		return fmt.Errorf("%w: select exactly one of sort-by-page and sort-by-test", ErrInvalidOptions)
	}
	if o.SplitByGroup == o.MergedSingle {
		return fmt.Errorf("%w: select exactly one of split-by-group and merged", ErrInvalidOptions)
	}
	if err := validate.Struct(o); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("%w: %s is required", ErrInvalidOptions, verrs[0].Field())
		}
		return fmt.Errorf("%w: %v", ErrInvalidOptions, err)
	}
	return nil
}

// Page is one tagged page placed in an output.
type Page struct {
	SourcePage int
	Rotation   int
	Tag        qrtag.Payload
}

// Output is a planned document.
type Output struct {
	Path  string
	Group string // "A", "B" or empty when merged
	Pages []Page
}

func (o Output) Placements() []pdfdoc.Placement {
	out := make([]pdfdoc.Placement, len(o.Pages))
	for i, p := range o.Pages {
		out[i] = pdfdoc.Placement{SourcePage: p.SourcePage, Rotation: p.Rotation}
	}
	return out
}

// Plan is the result of routing one scanned document.
type Plan struct {
	Outputs  []Output
	Untagged []int
}

// Route sorts and splits the tagged pages of a scan. It does no I/O.
func Route(results []scanner.PageResult, opts Options) (Plan, error) {
	if err := opts.Validate(); err != nil {
		return Plan{}, err
	}

	var plan Plan
	pages := make([]Page, 0, len(results))
	for _, r := range results {
		if !r.Tagged() {
			plan.Untagged = append(plan.Untagged, r.SourcePage)
			continue
		}
		pages = append(pages, Page{SourcePage: r.SourcePage, Rotation: r.Rotation, Tag: *r.Tag})
	}

	Sort(pages, opts.SortByTestNumber)

	if opts.MergedSingle {
		plan.Outputs = []Output{{Path: opts.OutputA, Pages: pages}}
		return plan, nil
	}

	a := Output{Path: opts.OutputA, Group: qrtag.GroupA.String()}
	b := Output{Path: opts.OutputB, Group: qrtag.GroupB.String()}
	for _, p := range pages {
		if p.Tag.Group == qrtag.GroupA {
			a.Pages = append(a.Pages, p)
		} else {
			b.Pages = append(b.Pages, p)
		}
	}
	plan.Outputs = []Output{a, b}
	return plan, nil
}

// Sort orders pages by (page, test) or, with byTest, by (test, page).
// Source order breaks remaining ties.
func Sort(pages []Page, byTest bool) {
	sort.SliceStable(pages, func(i, j int) bool {
		a, b := pages[i], pages[j]
		k1a, k2a, k1b, k2b := a.Tag.Page, a.Tag.TestID, b.Tag.Page, b.Tag.TestID
		if byTest {
			k1a, k2a, k1b, k2b = k2a, k1a, k2b, k1b
		}
		if k1a != k1b {
			return k1a < k1b
		}
		if k2a != k2b {
			return k2a < k2b
		}
		return a.SourcePage < b.SourcePage
	})
}

// Write saves every non-empty output of the plan and returns the written paths.
func Write(plan Plan, w PageWriter) ([]string, error) {
	var written []string
	for _, out := range plan.Outputs {
		if len(out.Pages) == 0 {
			slog.Info("Skipping empty output", "group", out.Group, "path", out.Path)
			continue
		}
		if err := w.WritePages(out.Path, out.Placements()); err != nil {
			return written, fmt.Errorf("failed to write %s: %w", out.Path, err)
		}
		written = append(written, out.Path)
	}
	if len(plan.Untagged) > 0 {
		slog.Warn("Pages without a tag were left out", "count", len(plan.Untagged), "pages", plan.Untagged)
	}
	return written, nil
}
