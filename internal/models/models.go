package models

import (
	"slices"
	"time"
)

// Session is one scan-and-assign run over a combined document of results.
type Session struct {
	ID           string              `yaml:"id"`
	CreatedAt    time.Time           `yaml:"created_at"`
	Inputs       []string            `yaml:"inputs,omitempty"`
	CombinedPath string              `yaml:"combined_path"`
	PageCount    int                 `yaml:"page_count"`
	Tests        []TestRecord        `yaml:"tests"`
	Pages        PageIndex           `yaml:"pages"`
	Rotations    map[int]int         `yaml:"rotations,omitempty"` // source page -> degrees
	Untagged     []int               `yaml:"untagged,omitempty"`
	Assignments  []StudentAssignment `yaml:"assignments,omitempty"`
}

// TestRecord represents one printed copy seen on its first page
type TestRecord struct {
	TestID   int    `yaml:"test_id"`
	Group    string `yaml:"group"`
	Subject  string `yaml:"subject,omitempty"`
	Name     string `yaml:"name,omitempty"`
	Assigned bool   `yaml:"assigned"`
	// NameBoxFile is the preview image, relative to the session directory.
	NameBoxFile string `yaml:"name_box,omitempty"`
	NameBox     []byte `yaml:"-"`
}

// StudentAssignment links a student to the test they wrote
type StudentAssignment struct {
	Student string `yaml:"student"`
	TestID  int    `yaml:"test_id"`
}

// PageIndex maps a test id to the source pages carrying it.
type PageIndex map[int][]int

func (p PageIndex) Add(testID, sourcePage int) {
	p[testID] = append(p[testID], sourcePage)
}

// Normalize sorts every page list and removes duplicates.
func (p PageIndex) Normalize() {
	for id, pages := range p {
		slices.Sort(pages)
		p[id] = slices.Compact(pages)
	}
}

// Test returns the record for testID, or nil.
func (s *Session) Test(testID int) *TestRecord {
	for i := range s.Tests {
		if s.Tests[i].TestID == testID {
			return &s.Tests[i]
		}
	}
	return nil
}

// Rotation returns the correction recorded for a source page.
func (s *Session) Rotation(sourcePage int) int {
	return s.Rotations[sourcePage]
}
