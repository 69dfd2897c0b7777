// Package osm provides clients for the OpenStreetMap services a query form
// talks to: Overpass for execution, Nominatim for place search and Taginfo
// for tag suggestions.
package osm

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// Point is a coordinate pair as Overpass encodes it.
type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Member is a relation member.
type Member struct {
	Type     string  `json:"type"`
	Ref      int64   `json:"ref"`
	Role     string  `json:"role"`
	Geometry []Point `json:"geometry,omitempty"`
}

// Element represents an element returned from the Overpass API.
// Nodes carry Lat/Lon; ways and relations carry Center (out center) or
// Geometry (out geom) depending on the output mode.
type Element struct {
	ID       int64             `json:"id"`
	Type     string            `json:"type"`
	Lat      *float64          `json:"lat,omitempty"`
	Lon      *float64          `json:"lon,omitempty"`
	Center   *Point            `json:"center,omitempty"`
	Geometry []Point           `json:"geometry,omitempty"`
	Tags     map[string]string `json:"tags,omitempty"`
	Nodes    []int64           `json:"nodes,omitempty"`
	Members  []Member          `json:"members,omitempty"`

	// TagOrder lists the tag keys in the order the response carried them.
	TagOrder []string `json:"-"`
}

// UnmarshalJSON decodes an element and records the order of its tags.
func (e *Element) UnmarshalJSON(data []byte) error {
	type plain Element
	var aux struct {
		plain
		Tags json.RawMessage `json:"tags,omitempty"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	tags, order, err := decodeTags(aux.Tags)
	if err != nil {
		return fmt.Errorf("element %s/%d: %w", aux.Type, aux.ID, err)
	}
	*e = Element(aux.plain)
	e.Tags = tags
	e.TagOrder = order
	return nil
}

func decodeTags(raw json.RawMessage) (map[string]string, []string, error) {
	if len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil, nil, nil
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return nil, nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, nil, fmt.Errorf("tags: expected object, got %v", tok)
	}

	tags := make(map[string]string)
	var order []string
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, nil, fmt.Errorf("tags: unexpected token %v", tok)
		}
		var value string
		if err := dec.Decode(&value); err != nil {
			return nil, nil, fmt.Errorf("tags: value of %q: %w", key, err)
		}
		if _, dup := tags[key]; !dup {
			order = append(order, key)
		}
		tags[key] = value
	}
	if _, err := dec.Token(); err != nil {
		return nil, nil, err
	}
	return tags, order, nil
}

// TagKeys returns the element's tag keys in response order. Keys missing
// from TagOrder, as on elements built in code, follow in sorted order.
func (e Element) TagKeys() []string {
	keys := make([]string, 0, len(e.Tags))
	listed := make(map[string]bool, len(e.TagOrder))
	for _, k := range e.TagOrder {
		if _, ok := e.Tags[k]; ok && !listed[k] {
			listed[k] = true
			keys = append(keys, k)
		}
	}
	var rest []string
	for k := range e.Tags {
		if !listed[k] {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	return append(keys, rest...)
}

// NewNode returns a node element at lat/lon.
func NewNode(id int64, lat, lon float64, tags map[string]string) Element {
	return Element{ID: id, Type: "node", Lat: &lat, Lon: &lon, Tags: tags}
}

// Coordinates returns the element's own position, falling back to its
// center. ok is false when neither is present.
func (e Element) Coordinates() (lat, lon float64, ok bool) {
	if e.Lat != nil && e.Lon != nil {
		return *e.Lat, *e.Lon, true
	}
	if e.Center != nil {
		return e.Center.Lat, e.Center.Lon, true
	}
	return 0, 0, false
}

// Response is the JSON document returned by the Overpass interpreter.
type Response struct {
	Version   float64   `json:"version,omitempty"`
	Generator string    `json:"generator,omitempty"`
	Remark    string    `json:"remark,omitempty"`
	Elements  []Element `json:"elements"`
}
