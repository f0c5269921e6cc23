// Package plan describes which files an experiment sends and how often.
package plan

import (
	"fmt"
	"strconv"
	"strings"
)

// Entry asks for File to be transferred Repeats times.
type Entry struct {
	File    string
	Repeats int
}

// Plan is an ordered list of entries. It implements flag.Value using the
// form name:count[,name:count...].
type Plan []Entry

// Default is the plan used when none is given.
var Default = Plan{
	{File: "1MB", Repeats: 10000},
	{File: "10KB", Repeats: 1000},
	{File: "10MB", Repeats: 100},
	{File: "100B", Repeats: 10},
}

// Parse reads a plan of the form name:count[,name:count...]. A count of
// zero is allowed and sends nothing.
func Parse(s string) (Plan, error) {
	var p Plan
	for _, field := range strings.Split(s, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		i := strings.LastIndex(field, ":")
		if i <= 0 {
			return nil, fmt.Errorf("plan entry %q: want name:count", field)
		}
		n, err := strconv.Atoi(field[i+1:])
		if err != nil {
			return nil, fmt.Errorf("plan entry %q: %w", field, err)
		}
		if n < 0 {
			return nil, fmt.Errorf("plan entry %q: negative count", field)
		}
		p = append(p, Entry{File: field[:i], Repeats: n})
	}
	if len(p) == 0 {
		return nil, fmt.Errorf("empty plan %q", s)
	}
	return p, nil
}

// String implements flag.Value.
func (p *Plan) String() string {
	if p == nil {
		return ""
	}
	fields := make([]string, 0, len(*p))
	for _, e := range *p {
		fields = append(fields, e.File+":"+strconv.Itoa(e.Repeats))
	}
	return strings.Join(fields, ",")
}

// Set implements flag.Value.
func (p *Plan) Set(s string) error {
	parsed, err := Parse(s)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}
