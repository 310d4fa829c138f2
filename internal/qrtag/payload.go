package qrtag

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/civil"
)

var (
	ErrMalformedPayload = errors.New("malformed QR payload")
	ErrInvalidGroup     = errors.New("invalid group")
	ErrInvalidNumber    = errors.New("invalid number")
)

// Group is one of the two parallel test variants.
type Group byte

const (
	GroupA Group = 'A'
	GroupB Group = 'B'
)

func (g Group) String() string {
	return string(rune(g))
}

// ParseGroup accepts any string whose first character is a or b in either case.
func ParseGroup(s string) (Group, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("%w: empty group", ErrInvalidGroup)
	}
	switch Group(strings.ToUpper(s[:1])[0]) {
	case GroupA:
		return GroupA, nil
	case GroupB:
		return GroupB, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidGroup, s)
}

// Payload is the metadata printed as a QR code on every page of a test copy.
type Payload struct {
	TestID  int
	Group   Group
	Subject string
	Name    string
	Date    civil.Date // zero value means no date
	Page    int        // 0-based within the copy
}

// Validate reports whether the payload can be encoded and decoded back unchanged.
func (p Payload) Validate() error {
	if err := checkRange(p.TestID, p.Page); err != nil {
		return err
	}
	if p.Group != GroupA && p.Group != GroupB {
		return fmt.Errorf("%w: %q", ErrInvalidGroup, p.Group.String())
	}
	if strings.Contains(p.Subject, fieldSep) || strings.Contains(p.Name, fieldSep) {
		return fmt.Errorf("%w: subject and name must not contain %q", ErrMalformedPayload, fieldSep)
	}
	if !p.Date.IsZero() && !p.Date.IsValid() {
		return fmt.Errorf("%w: date %s", ErrMalformedPayload, p.Date)
	}
	return nil
}

const (
	fieldSep = "|"
	keySep   = ":"

	keyTestID  = "TESTID"
	keyGroupID = "GROUPID"
	keySubject = "TESTSUBJECT"
	keyName    = "TESTNAME"
	keyDate    = "TESTDATE"
	keyPage    = "PAGE"

	dateLayout = "2006-01-02"
)

// Encode renders the compact positional form testId|group|subject|name|date|page.
func Encode(p Payload) string {
	return strings.Join([]string{
		strconv.Itoa(p.TestID),
		p.Group.String(),
		p.Subject,
		p.Name,
		formatDate(p.Date),
		strconv.Itoa(p.Page),
	}, fieldSep)
}

// EncodeVerbose renders the legacy KEY:value form printed on older sheets.
func EncodeVerbose(p Payload) string {
	return strings.Join([]string{
		keyTestID + keySep + strconv.Itoa(p.TestID),
		keyGroupID + keySep + p.Group.String(),
		keySubject + keySep + p.Subject,
		keyName + keySep + p.Name,
		keyDate + keySep + formatDate(p.Date),
		keyPage + keySep + strconv.Itoa(p.Page),
	}, fieldSep)
}

func formatDate(d civil.Date) string {
	if d.IsZero() {
		return ""
	}
	return d.String()
}

// strategy is one wire format. matched reports whether the text had the
// format's shape at all, which decides whose error is returned.
type strategy struct {
	name  string
	parse func(text string) (p Payload, matched bool, err error)
}

// strategies are tried in order; compact sheets are the common case.
var strategies = []strategy{
	{name: "compact", parse: parseCompact},
	{name: "verbose", parse: parseVerbose},
}

// Decode parses either wire format.
func Decode(text string) (Payload, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Payload{}, fmt.Errorf("%w: empty", ErrMalformedPayload)
	}

	var firstMatchErr error
	for _, s := range strategies {
		p, matched, err := s.parse(text)
		if err == nil {
			return p, nil
		}
		if matched && firstMatchErr == nil {
			firstMatchErr = fmt.Errorf("%s payload: %w", s.name, err)
		}
	}
	if firstMatchErr != nil {
		return Payload{}, firstMatchErr
	}
	return Payload{}, fmt.Errorf("%w: %q", ErrMalformedPayload, text)
}

func parseCompact(text string) (Payload, bool, error) {
	fields := strings.Split(text, fieldSep)
	if len(fields) < 6 {
		return Payload{}, false, fmt.Errorf("%w: %d fields", ErrMalformedPayload, len(fields))
	}
	// A KEY:value first field is the verbose form, not a bad compact one.
	if strings.Contains(fields[0], keySep) {
		return Payload{}, false, fmt.Errorf("%w: keyed field in compact payload", ErrMalformedPayload)
	}

	last := len(fields) - 1
	testID, err := parseInt(fields[0], "test id")
	if err != nil {
		return Payload{}, true, err
	}
	page, err := parseInt(fields[last], "page")
	if err != nil {
		return Payload{}, true, err
	}
	if err := checkRange(testID, page); err != nil {
		return Payload{}, true, err
	}
	group, err := ParseGroup(fields[1])
	if err != nil {
		return Payload{}, true, err
	}

	return Payload{
		TestID:  testID,
		Group:   group,
		Subject: fields[2],
		// surplus separators can only have come from the name
		Name: strings.Join(fields[3:last-1], fieldSep),
		Date: parseDate(fields[last-1]),
		Page: page,
	}, true, nil
}

func parseVerbose(text string) (Payload, bool, error) {
	values := make(map[string]string)
	for _, part := range strings.Split(text, fieldSep) {
		idx := strings.Index(part, keySep)
		if idx <= 0 {
			continue
		}
		key := strings.ToUpper(strings.TrimSpace(part[:idx]))
		values[key] = strings.TrimSpace(part[idx+1:])
	}
	if len(values) == 0 {
		return Payload{}, false, fmt.Errorf("%w: no keyed fields", ErrMalformedPayload)
	}

	for _, key := range []string{keyTestID, keyGroupID, keySubject, keyName, keyPage} {
		if _, ok := values[key]; !ok {
			return Payload{}, true, fmt.Errorf("%w: %s missing", ErrMalformedPayload, key)
		}
	}

	testID, err := parseInt(values[keyTestID], "test id")
	if err != nil {
		return Payload{}, true, err
	}
	page, err := parseInt(values[keyPage], "page")
	if err != nil {
		return Payload{}, true, err
	}
	if err := checkRange(testID, page); err != nil {
		return Payload{}, true, err
	}
	group, err := ParseGroup(values[keyGroupID])
	if err != nil {
		return Payload{}, true, err
	}

	return Payload{
		TestID:  testID,
		Group:   group,
		Subject: values[keySubject],
		Name:    values[keyName],
		Date:    parseDate(values[keyDate]),
		Page:    page,
	}, true, nil
}

// checkRange holds test ids to 1 and up and pages to 0 and up.
func checkRange(testID, page int) error {
	if testID < 1 {
		return fmt.Errorf("%w: test id %d", ErrInvalidNumber, testID)
	}
	if page < 0 {
		return fmt.Errorf("%w: page %d", ErrInvalidNumber, page)
	}
	return nil
}

func parseInt(s, what string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("%w: %s %q", ErrInvalidNumber, what, s)
	}
	return n, nil
}

// fallbackDateLayouts cover dates typed by hand on older sheets.
var fallbackDateLayouts = []string{
	"2.1.2006",
	"02.01.2006",
	"2. 1. 2006",
	"1/2/2006",
	"01/02/2006",
	"2006/01/02",
	"2006.01.02",
	"Jan 2, 2006",
	"January 2, 2006",
	"2 January 2006",
	time.RFC3339,
}

// parseDate never fails: an unreadable date is treated as absent.
func parseDate(s string) civil.Date {
	s = strings.TrimSpace(s)
	if s == "" {
		return civil.Date{}
	}
	if t, err := time.Parse(dateLayout, s); err == nil {
		return civil.DateOf(t)
	}
	for _, layout := range fallbackDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return civil.DateOf(t)
		}
	}
	return civil.Date{}
}
