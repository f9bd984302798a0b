// Package entries parses the id,label block that drives a fill run.
package entries

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

const (
	DefaultClickPrefix  = "td_"
	DefaultSelectPrefix = "con__"
)

var ErrMalformedLine = errors.New("malformed entry line")

// Entry is one row to process: the element id suffix and the option label
// that should end up selected.
type Entry struct {
	ID    string `json:"id" yaml:"id"`
	Label string `json:"label" yaml:"label"`
}

func (e Entry) ClickKey(prefix string) string {
	return prefix + e.ID
}

func (e Entry) SelectKey(prefix string) string {
	return prefix + e.ID
}

func (e Entry) String() string {
	return e.ID + "," + e.Label
}

// Parse reads one entry per line. Blank lines are skipped; every other line
// must hold exactly one comma.
func Parse(block string) ([]Entry, error) {
	block = strings.TrimSpace(block)
	if block == "" {
		return nil, nil
	}

	var out []Entry
	for i, line := range strings.Split(block, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		fields := strings.Split(line, ",")
		if len(fields) != 2 {
			return nil, fmt.Errorf("%w %d: %q: want id,label", ErrMalformedLine, i+1, line)
		}

		id := strings.TrimSpace(fields[0])
		if id == "" {
			return nil, fmt.Errorf("%w %d: %q: empty id", ErrMalformedLine, i+1, line)
		}

		out = append(out, Entry{ID: id, Label: fields[1]})
	}

	return out, nil
}

func Load(path string) ([]Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read entries file: %w", err)
	}

	list, err := Parse(string(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return list, nil
}
