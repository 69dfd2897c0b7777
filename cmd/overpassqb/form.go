package main

import (
	"strings"

	"github.com/spf13/pflag"

	"github.com/NERVsystems/overpassqb/pkg/core"
	"github.com/NERVsystems/overpassqb/pkg/osm/queries"
)

// operators in match order: longer operators sharing a prefix come first.
var operators = []queries.Operator{
	queries.NotPrefixMatch,
	queries.PrefixMatch,
	queries.NotMatches,
	queries.NotEquals,
	queries.Matches,
	queries.Equals,
}

// parseCondition reads a condition written as [type:]key[op value], for
// example "node:amenity=cafe", "highway" or "way:name~^Main". The type
// prefix is only taken when it names an element type, so keys such as
// "addr:street" stay intact.
func parseCondition(s string) (queries.Condition, error) {
	s = strings.TrimSpace(s)
	var c queries.Condition

	if i := strings.Index(s, ":"); i > 0 {
		switch t := queries.ElementType(strings.ToLower(s[:i])); t {
		case queries.Node, queries.Way, queries.Relation, queries.NWR:
			c.ElementType = t
			s = s[i+1:]
		}
	}
	if c.ElementType == "" {
		c.ElementType = queries.NWR
	}

	for i := 0; i < len(s); i++ {
		for _, op := range operators {
			if strings.HasPrefix(s[i:], string(op)) {
				c.Key = strings.TrimSpace(s[:i])
				c.Operator = op
				c.Value = s[i+len(op):]
				return c, checkConditionKey(c)
			}
		}
	}
	c.Key = s
	return c, checkConditionKey(c)
}

func checkConditionKey(c queries.Condition) error {
	if c.Key == "" {
		return core.NewValidationError(core.ErrInvalidParameter, "condition has no key").
			WithGuidance(`Write conditions as [type:]key[op value], for example node:amenity=cafe.`)
	}
	return nil
}

// parseBBox reads "south,west,north,east". Each field is kept as text;
// the query builder validates the numbers.
func parseBBox(s string) (queries.BBoxFields, error) {
	if strings.TrimSpace(s) == "" {
		return queries.BBoxFields{}, nil
	}
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return queries.BBoxFields{}, core.InvalidBBoxError("expected four comma separated values: south,west,north,east")
	}
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return queries.BBoxFields{South: parts[0], West: parts[1], North: parts[2], East: parts[3]}, nil
}

// formFlags are the query form inputs shared by build, run and export.
type formFlags struct {
	conditions []string
	area       string
	bbox       string
	timeout    int
	format     string
	columns    string
}

func (f *formFlags) register(fs *pflag.FlagSet) {
	fs.StringArrayVarP(&f.conditions, "cond", "c", nil, "condition [type:]key[op value] (repeatable)")
	fs.StringVarP(&f.area, "area", "a", "", "place name, relation id (relation:62422) or empty for the map view")
	fs.StringVarP(&f.bbox, "bbox", "b", "", "bounding box south,west,north,east")
	fs.IntVar(&f.timeout, "timeout", 0, "query timeout in seconds")
	fs.StringVar(&f.format, "format", "json", "Overpass output format (json, csv)")
	fs.StringVar(&f.columns, "columns", "", "comma separated CSV columns")
}

func (f *formFlags) request() (queries.Request, error) {
	req := queries.Request{
		AreaText: f.area,
		Options: queries.Options{
			Timeout: f.timeout,
			Format:  queries.ParseFormat(f.format),
			Columns: queries.ParseColumns(f.columns),
		},
	}
	for _, s := range f.conditions {
		c, err := parseCondition(s)
		if err != nil {
			return req, err
		}
		req.Conditions = append(req.Conditions, c)
	}
	bbox, err := parseBBox(f.bbox)
	if err != nil {
		return req, err
	}
	req.BBox = bbox
	return req, nil
}
