package queries

import (
	"strings"

	"github.com/NERVsystems/overpassqb/pkg/core"
)

// Request bundles the raw inputs of one query form.
type Request struct {
	Conditions []Condition `json:"conditions" yaml:"conditions"`
	AreaText   string      `json:"area,omitempty" yaml:"area,omitempty"`
	BBox       BBoxFields  `json:"bbox,omitempty" yaml:"bbox,omitempty"`
	Options    Options     `json:"options,omitempty" yaml:"options,omitempty"`
}

// Build generates the query for the request.
func (r Request) Build() (string, error) {
	return Build(r.Conditions, r.AreaText, r.BBox, r.Options)
}

// Build composes a complete Overpass QL program.
//
// The area is resolved first, so an invalid bounding box or relation id is
// reported even when the conditions are also unusable. Conditions with an
// empty key are dropped; if none remain the result is a NO_VALID_CONDITIONS
// error.
func Build(conditions []Condition, areaText string, bbox BBoxFields, opts Options) (string, error) {
	area, err := ResolveArea(bbox, areaText)
	if err != nil {
		return "", err
	}
	return BuildForArea(conditions, area, opts)
}

// BuildForArea composes a program for an already resolved area.
func BuildForArea(conditions []Condition, area Area, opts Options) (string, error) {
	groups, err := groupFragments(conditions)
	if err != nil {
		return "", err
	}

	emission := area.Emit()

	var b strings.Builder
	b.WriteString(opts.settings())
	b.WriteString("\n")
	b.WriteString(emission.Comment)
	b.WriteString("\n")
	if emission.Header != "" {
		b.WriteString(emission.Header)
		b.WriteString("\n\n")
	}

	b.WriteString("(\n")
	for _, t := range elementOrder {
		frags, ok := groups[t]
		if !ok {
			continue
		}
		b.WriteString("  ")
		b.WriteString(string(t))
		b.WriteString(strings.Join(frags, ""))
		b.WriteString(emission.Suffix)
		b.WriteString(";\n")
	}
	b.WriteString(");\n")

	b.WriteString("\n// Print results\n")
	b.WriteString(opts.trailer())
	return b.String(), nil
}

// groupFragments renders each usable condition and groups the fragments by
// element type, keeping input order inside a group.
func groupFragments(conditions []Condition) (map[ElementType][]string, error) {
	groups := make(map[ElementType][]string)
	count := 0
	for _, c := range conditions {
		frag, ok := c.Fragment()
		if !ok {
			continue
		}
		t, err := ParseElementType(string(c.ElementType))
		if err != nil {
			return nil, err
		}
		if _, err := ParseOperator(string(c.Operator)); err != nil {
			return nil, err
		}
		groups[t] = append(groups[t], frag)
		count++
	}
	if count == 0 {
		return nil, core.NoValidConditionsError()
	}
	return groups, nil
}

// ErrorComment renders a build error the way it is shown in place of a
// query.
func ErrorComment(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	if mcpErr, ok := err.(*core.MCPError); ok {
		msg = mcpErr.Message
	}
	return "// Error: " + oneLine(msg)
}
