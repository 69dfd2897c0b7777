package queries

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/NERVsystems/overpassqb/pkg/core"
	"github.com/NERVsystems/overpassqb/pkg/geo"
)

// RelationAreaOffset maps a relation id into the Overpass area id space.
const RelationAreaOffset int64 = 3600000000

// decimalPattern is the number syntax Overpass accepts in a bbox filter.
var decimalPattern = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?$`)

// BBoxFields holds the raw text of the four bounding box inputs.
type BBoxFields struct {
	South string `json:"south,omitempty" yaml:"south,omitempty"`
	West  string `json:"west,omitempty" yaml:"west,omitempty"`
	North string `json:"north,omitempty" yaml:"north,omitempty"`
	East  string `json:"east,omitempty" yaml:"east,omitempty"`
}

// BBoxFieldsFrom formats a parsed box as input fields.
func BBoxFieldsFrom(bb geo.BoundingBox) BBoxFields {
	f := func(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
	return BBoxFields{South: f(bb.MinLat), West: f(bb.MinLon), North: f(bb.MaxLat), East: f(bb.MaxLon)}
}

// Present reports whether all four fields hold text.
func (f BBoxFields) Present() bool {
	for _, v := range f.values() {
		if v == "" {
			return false
		}
	}
	return true
}

func (f BBoxFields) values() [4]string {
	return [4]string{
		strings.TrimSpace(f.South),
		strings.TrimSpace(f.West),
		strings.TrimSpace(f.North),
		strings.TrimSpace(f.East),
	}
}

// UnmarshalJSON accepts every field as a JSON string or number. Numbers
// keep their literal spelling so the emitted query matches the input.
func (f *BBoxFields) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for name, dst := range map[string]*string{"south": &f.South, "west": &f.West, "north": &f.North, "east": &f.East} {
		v, ok := raw[name]
		if !ok {
			continue
		}
		text, err := fieldText(v)
		if err != nil {
			return fmt.Errorf("bbox %s: %w", name, err)
		}
		*dst = text
	}
	return nil
}

func fieldText(v json.RawMessage) (string, error) {
	switch {
	case string(v) == "null":
		return "", nil
	case len(v) > 0 && v[0] == '"':
		var s string
		err := json.Unmarshal(v, &s)
		return s, err
	}
	var n json.Number
	if err := json.Unmarshal(v, &n); err != nil {
		return "", err
	}
	return n.String(), nil
}

// BindView replaces the {{bbox}} placeholder of a default-area query with
// the given view box, the way a map client substitutes its current view.
func BindView(query string, view BBoxFields) (string, error) {
	if !strings.Contains(query, "{{bbox}}") {
		return query, nil
	}
	if _, err := view.Parse(); err != nil {
		return "", err
	}
	v := view.values()
	return strings.ReplaceAll(query, "{{bbox}}", strings.Join(v[:], ",")), nil
}

// Parse converts the fields into a bounding box.
func (f BBoxFields) Parse() (geo.BoundingBox, error) {
	vals := f.values()
	names := [4]string{"south", "west", "north", "east"}
	var nums [4]float64
	for i, v := range vals {
		if !decimalPattern.MatchString(v) {
			return geo.BoundingBox{}, core.InvalidBBoxError(fmt.Sprintf("%s %q is not a number", names[i], v))
		}
		n, err := strconv.ParseFloat(v, 64)
		if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
			return geo.BoundingBox{}, core.InvalidBBoxError(fmt.Sprintf("%s %q is not a number", names[i], v))
		}
		nums[i] = n
	}
	bb := geo.BoundingBox{MinLat: nums[0], MinLon: nums[1], MaxLat: nums[2], MaxLon: nums[3]}
	if bb.MinLat >= bb.MaxLat {
		return geo.BoundingBox{}, core.InvalidBBoxError("south must be less than north")
	}
	if bb.MinLon >= bb.MaxLon {
		return geo.BoundingBox{}, core.InvalidBBoxError("west must be less than east")
	}
	return bb, nil
}

// AreaKind discriminates the Area variants.
type AreaKind int

// Area variants.
const (
	AreaDefault AreaKind = iota
	AreaBBox
	AreaPlaceName
	AreaRelation
)

// String returns the variant name.
func (k AreaKind) String() string {
	switch k {
	case AreaBBox:
		return "bbox"
	case AreaPlaceName:
		return "place_name"
	case AreaRelation:
		return "relation_id"
	default:
		return "default"
	}
}

// Area is the resolved spatial constraint of a query. Exactly one variant
// is active, selected by Kind.
type Area struct {
	Kind AreaKind

	// BBox variant. Text keeps the user's numeric spelling for emission.
	Box  geo.BoundingBox
	Text BBoxFields

	// PlaceName variant.
	Name string

	// RelationId variant.
	RelationID int64
}

// OverpassAreaID returns the area id Overpass uses for the relation.
func (a Area) OverpassAreaID() int64 {
	return a.RelationID + RelationAreaOffset
}

// ResolveArea selects the area variant from the raw form inputs.
// A complete bounding box wins over area text; otherwise the text is read
// as a relation reference or a place name; with neither the query runner's
// current view is used.
func ResolveArea(bbox BBoxFields, areaText string) (Area, error) {
	if bbox.Present() {
		bb, err := bbox.Parse()
		if err != nil {
			return Area{}, err
		}
		v := bbox.values()
		return Area{
			Kind: AreaBBox,
			Box:  bb,
			Text: BBoxFields{South: v[0], West: v[1], North: v[2], East: v[3]},
		}, nil
	}

	text := strings.TrimSpace(areaText)
	if text == "" {
		return Area{Kind: AreaDefault}, nil
	}

	id, matched, err := parseRelationRef(text)
	if err != nil {
		return Area{}, err
	}
	if matched {
		return Area{Kind: AreaRelation, RelationID: id}, nil
	}
	return Area{Kind: AreaPlaceName, Name: text}, nil
}

// parseRelationRef recognises "relation:<id>", "r<id>", "R<id>" and bare
// digits. The relation: prefix always selects the relation variant so that
// a malformed id is reported instead of being searched as a name.
func parseRelationRef(text string) (int64, bool, error) {
	const prefix = "relation:"
	if len(text) >= len(prefix) && strings.EqualFold(text[:len(prefix)], prefix) {
		digits := strings.TrimSpace(text[len(prefix):])
		id, ok := parseID(digits)
		if !ok {
			return 0, true, core.InvalidRelationIDError(text)
		}
		return id, true, nil
	}

	digits := text
	if text[0] == 'r' || text[0] == 'R' {
		digits = text[1:]
	}
	if !allDigits(digits) {
		return 0, false, nil
	}
	id, ok := parseID(digits)
	if !ok {
		return 0, true, core.InvalidRelationIDError(text)
	}
	return id, true, nil
}

// parseID accepts a positive decimal id that still fits once offset.
func parseID(s string) (int64, bool) {
	if !allDigits(s) {
		return 0, false
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 || id > math.MaxInt64-RelationAreaOffset {
		return 0, false
	}
	return id, true
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// Emission is the query text an area contributes.
type Emission struct {
	// Comment describes the area; it is written after the settings line.
	Comment string
	// Header is an area statement placed before the statement group, or "".
	Header string
	// Suffix is appended to every element statement.
	Suffix string
}

// Emit renders the area.
func (a Area) Emit() Emission {
	switch a.Kind {
	case AreaBBox:
		coords := strings.Join([]string{a.Text.South, a.Text.West, a.Text.North, a.Text.East}, ",")
		return Emission{
			Comment: "// Using bounding box: " + coords,
			Suffix:  "(" + coords + ")",
		}
	case AreaPlaceName:
		return Emission{
			Comment: "// Using area name: " + oneLine(a.Name),
			Header:  "area[name=" + quote(a.Name) + "]->.searchArea;",
			Suffix:  "(area.searchArea)",
		}
	case AreaRelation:
		return Emission{
			Comment: fmt.Sprintf("// Using relation ID: %d (Overpass ID: %d)", a.RelationID, a.OverpassAreaID()),
			Header:  fmt.Sprintf("area(%d)->.searchArea;", a.OverpassAreaID()),
			Suffix:  "(area.searchArea)",
		}
	default:
		return Emission{
			Comment: "// Using current map view bbox",
			Suffix:  "({{bbox}})",
		}
	}
}

// oneLine keeps user text from ending a // comment early.
func oneLine(s string) string {
	return strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ").Replace(s)
}
