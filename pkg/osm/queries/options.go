package queries

import (
	"strconv"
	"strings"
)

// Timeout bounds in seconds.
const (
	DefaultTimeout = 30
	MinTimeout     = 1
	MaxTimeout     = 1800
)

// Format is the Overpass output format.
type Format string

// Output formats.
const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
)

// DefaultCSVColumns is used when CSV output is requested without columns.
var DefaultCSVColumns = []string{"::id", "::type", "::lat", "::lon"}

// Options are the global settings of a query.
type Options struct {
	Timeout int      `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	Format  Format   `json:"format,omitempty" yaml:"format,omitempty"`
	Columns []string `json:"columns,omitempty" yaml:"columns,omitempty"`
}

// ClampTimeout limits t to [MinTimeout, MaxTimeout]. Zero and negative
// values mean "not set" and give DefaultTimeout.
func ClampTimeout(t int) int {
	switch {
	case t < MinTimeout:
		return DefaultTimeout
	case t > MaxTimeout:
		return MaxTimeout
	}
	return t
}

// ParseTimeout reads a timeout field, falling back to DefaultTimeout when
// the text is not an integer.
func ParseTimeout(s string) int {
	t, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return DefaultTimeout
	}
	return ClampTimeout(t)
}

// ParseFormat maps user input to a Format; anything but "csv" is JSON.
func ParseFormat(s string) Format {
	if strings.EqualFold(strings.TrimSpace(s), string(FormatCSV)) {
		return FormatCSV
	}
	return FormatJSON
}

// ParseColumns splits a comma separated column list.
func ParseColumns(s string) []string {
	return NormalizeColumns(strings.Split(s, ","))
}

// NormalizeColumns trims column names, drops empty ones and rewrites the
// @-prefixed special columns (@id, @type, @lat, @lon, ...) to their ::
// form.
func NormalizeColumns(cols []string) []string {
	out := make([]string, 0, len(cols))
	for _, c := range cols {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		if strings.HasPrefix(c, "@") && len(c) > 1 {
			c = "::" + c[1:]
		}
		out = append(out, c)
	}
	return out
}

// normalized returns a copy with every field defaulted.
func (o Options) normalized() Options {
	n := Options{
		Timeout: ClampTimeout(o.Timeout),
		Format:  o.Format,
	}
	if n.Format != FormatCSV {
		n.Format = FormatJSON
	}
	if n.Format == FormatCSV {
		n.Columns = NormalizeColumns(o.Columns)
		if len(n.Columns) == 0 {
			n.Columns = append([]string(nil), DefaultCSVColumns...)
		}
	}
	return n
}

// settings renders the leading settings statement.
func (o Options) settings() string {
	n := o.normalized()
	out := "[out:json]"
	if n.Format == FormatCSV {
		cols := make([]string, len(n.Columns))
		for i, c := range n.Columns {
			cols[i] = csvColumn(c)
		}
		out = "[out:csv(" + strings.Join(cols, ",") + ")]"
	}
	return out + "[timeout:" + strconv.Itoa(n.Timeout) + "];"
}

// trailer renders the output statements.
func (o Options) trailer() string {
	if o.normalized().Format == FormatCSV {
		return "out center;\n>;\nout skel qt;"
	}
	return "out body;\n>;\nout skel qt;"
}

// csvColumn leaves special and plain identifier columns bare and quotes the
// rest (for example "addr:street").
func csvColumn(c string) string {
	if strings.HasPrefix(c, "::") || isIdent(c) {
		return c
	}
	return quote(c)
}

func isIdent(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if !(ch == '_' || ch >= '0' && ch <= '9' || ch >= 'a' && ch <= 'z' || ch >= 'A' && ch <= 'Z') {
			return false
		}
	}
	return true
}
