// Package metadata parses the METADATA comment blocks that tag catalog articles.
//
// A block looks like:
//
//	<!--METADATA
//	intent: do
//	id: editing_palette
//	category: application
//	synonyms: palette editor, color palette
//	codes: P100, palette
//	see:
//	    - palette_feature
//	    - color_settings
//	-->
package metadata

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Intent values.
const (
	IntentDo      = "do"
	IntentLearn   = "learn"
	IntentTrouble = "trouble"
)

// Category values.
const (
	CategoryApplication = "application"
	CategoryData        = "data"
)

// ErrInvalid is wrapped by every *Error so callers can match with errors.Is.
var ErrInvalid = errors.New("invalid metadata")

var (
	// BlockPattern matches a whole METADATA block; group 1 is the body.
	BlockPattern = regexp.MustCompile(`(?is)<!--\s*METADATA\s*\n(.*?)\n\s*-->`)
	stripPattern = regexp.MustCompile(`(?is)<!--\s*METADATA\s*\n.*?\n\s*-->\s*\n?`)
	idPattern    = regexp.MustCompile(`^[a-z0-9_-]+$`)
)

// Record is a validated metadata block.
type Record struct {
	Intent   string   `json:"intent"`
	ID       string   `json:"id"`
	Category string   `json:"category"`
	See      []string `json:"see,omitempty"`
	Synonyms []string `json:"synonyms,omitempty"`
	Codes    []string `json:"codes,omitempty"`
}

// Error describes a malformed or incomplete metadata block.
type Error struct {
	Field  string
	Reason string
}

func (e *Error) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("metadata: %s", e.Reason)
	}
	return fmt.Sprintf("metadata: %s: %s", e.Field, e.Reason)
}

func (e *Error) Unwrap() error { return ErrInvalid }

// Parse finds the first METADATA block in content and parses it.
// It returns nil, nil when content holds no block.
func Parse(content string) (*Record, error) {
	m := BlockPattern.FindStringSubmatch(content)
	if m == nil {
		return nil, nil
	}
	return ParseBody(m[1])
}

// ParseBody parses the text between the block markers.
func ParseBody(body string) (*Record, error) {
	fields, err := parseFields(body)
	if err != nil {
		return nil, err
	}
	return validate(fields)
}

// Strip removes the first METADATA block (and one trailing newline) from content.
func Strip(content string) string {
	loc := stripPattern.FindStringIndex(content)
	if loc == nil {
		return content
	}
	return content[:loc[0]] + content[loc[1]:]
}

// value is either a scalar or a list, mirroring how the block is written.
type value struct {
	scalar string
	list   []string
	isList bool
}

func parseFields(body string) (map[string]value, error) {
	fields := make(map[string]value)
	currentKey := ""
	var items []string

	flush := func() {
		if currentKey != "" && len(items) > 0 {
			fields[currentKey] = value{list: items, isList: true}
		}
		items = nil
	}

	for _, raw := range strings.Split(body, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "-") {
			if currentKey == "" {
				return nil, &Error{Reason: fmt.Sprintf("list item without a key: %q", line)}
			}
			items = append(items, strings.TrimSpace(line[1:]))
			continue
		}
		key, val, ok := strings.Cut(line, ":")
		if !ok {
			return nil, &Error{Reason: fmt.Sprintf("invalid line: %q", line)}
		}
		flush()
		key = strings.TrimSpace(key)
		val = strings.TrimSpace(val)
		if val != "" {
			fields[key] = value{scalar: val}
			currentKey = ""
			continue
		}
		// empty value: a list follows
		currentKey = key
	}
	flush()
	return fields, nil
}

func validate(fields map[string]value) (*Record, error) {
	for _, name := range []string{"intent", "id", "category"} {
		if _, ok := fields[name]; !ok {
			return nil, &Error{Field: name, Reason: "missing required field"}
		}
	}
	rec := &Record{}
	var err error
	if rec.Intent, err = requireScalar(fields, "intent"); err != nil {
		return nil, err
	}
	if rec.ID, err = requireScalar(fields, "id"); err != nil {
		return nil, err
	}
	if rec.Category, err = requireScalar(fields, "category"); err != nil {
		return nil, err
	}
	if !ValidIntent(rec.Intent) {
		return nil, &Error{Field: "intent", Reason: fmt.Sprintf("%q must be one of do, learn, trouble", rec.Intent)}
	}
	if !ValidCategory(rec.Category) {
		return nil, &Error{Field: "category", Reason: fmt.Sprintf("%q must be one of application, data", rec.Category)}
	}
	if !idPattern.MatchString(rec.ID) {
		return nil, &Error{Field: "id", Reason: fmt.Sprintf("%q may contain only lowercase letters, digits, underscore and hyphen", rec.ID)}
	}
	if v, ok := fields["see"]; ok {
		if v.isList {
			rec.See = append([]string(nil), v.list...)
		} else {
			rec.See = []string{v.scalar}
		}
	}
	if v, ok := fields["synonyms"]; ok {
		rec.Synonyms = splitTerms(v, false)
	}
	if v, ok := fields["codes"]; ok {
		rec.Codes = splitTerms(v, true)
	}
	return rec, nil
}

func requireScalar(fields map[string]value, name string) (string, error) {
	v := fields[name]
	if v.isList {
		return "", &Error{Field: name, Reason: "must be a single value"}
	}
	return v.scalar, nil
}

// splitTerms accepts a comma-separated scalar or a list; entries are trimmed and empties dropped.
func splitTerms(v value, upper bool) []string {
	src := v.list
	if !v.isList {
		src = strings.Split(v.scalar, ",")
	}
	out := make([]string, 0, len(src))
	for _, s := range src {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if upper {
			s = strings.ToUpper(s)
		}
		out = append(out, s)
	}
	return out
}

// ValidIntent reports whether s is do, learn or trouble.
func ValidIntent(s string) bool {
	return s == IntentDo || s == IntentLearn || s == IntentTrouble
}

// ValidCategory reports whether s is application or data.
func ValidCategory(s string) bool {
	return s == CategoryApplication || s == CategoryData
}
