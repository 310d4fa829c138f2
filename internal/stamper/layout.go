package stamper

import "github.com/lehigh-university-libraries/examtag/internal/qrtag"

// Counter hands out test ids for one stamping run. Ids start at 1 and
// increase by one per copy, across groups.
type Counter struct {
	last int
}

// Next returns the next test id.
func (c *Counter) Next() int {
	c.last++
	return c.last
}

// Issued is the number of ids handed out so far.
func (c *Counter) Issued() int {
	return c.last
}

// Copy is one numbered replication of a template.
type Copy struct {
	TestID int
	Group  qrtag.Group
	// FirstPage is the 0-based page of the copy in the output document.
	FirstPage int
	Pages     int
}

// Plan lays out copies for the groups in order. Groups with a zero count
// contribute nothing.
func Plan(counter *Counter, groups []GroupJob) []Copy {
	var copies []Copy
	next := 0
	for _, g := range groups {
		for i := 0; i < g.Count; i++ {
			copies = append(copies, Copy{
				TestID:    counter.Next(),
				Group:     g.Group,
				FirstPage: next,
				Pages:     g.Pages,
			})
			next += g.Pages
		}
	}
	return copies
}

// GroupJob is a template already opened, with its page count known.
type GroupJob struct {
	Group qrtag.Group
	Count int
	Pages int
	Data  []byte
}
