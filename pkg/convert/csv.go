// Package convert turns Overpass results into downloadable CSV, JSON and
// GeoJSON documents. Every function is pure.
package convert

import (
	"strconv"
	"strings"

	"github.com/NERVsystems/overpassqb/pkg/osm"
)

// BaseColumns lead the derived CSV header.
var BaseColumns = []string{"id", "type", "lat", "lon"}

// ToCSV renders elements as comma separated text.
//
// Without columns the header is id,type,lat,lon followed by every tag key
// in first-seen order, keys of one element in the order the response
// listed them. With no elements the result is just the header of the given
// columns, or empty when none were given. The id, type, lat and lon cells
// are written bare, lat/lon falling back to the element center; tag values
// are always double quoted and a missing tag leaves the cell empty. Rows
// are separated by a single newline.
func ToCSV(elements []osm.Element, columns []string) string {
	if len(elements) == 0 && len(columns) == 0 {
		return ""
	}
	if len(columns) == 0 {
		columns = DeriveColumns(elements)
	}

	lines := make([]string, 0, len(elements)+1)

	header := make([]string, len(columns))
	for i, c := range columns {
		header[i] = headerCell(c)
	}
	lines = append(lines, strings.Join(header, ","))

	cells := make([]string, len(columns))
	for _, e := range elements {
		for i, c := range columns {
			cells[i] = cell(e, c)
		}
		lines = append(lines, strings.Join(cells, ","))
	}
	return strings.Join(lines, "\n")
}

// DeriveColumns returns BaseColumns followed by the union of tag keys.
func DeriveColumns(elements []osm.Element) []string {
	cols := append([]string(nil), BaseColumns...)
	seen := make(map[string]bool)
	for _, c := range BaseColumns {
		seen[c] = true
	}
	for _, e := range elements {
		for _, k := range e.TagKeys() {
			if !seen[k] {
				seen[k] = true
				cols = append(cols, k)
			}
		}
	}
	return cols
}

// special maps the id/type/lat/lon column spellings, including the
// Overpass ::x and @x forms, to their base name.
func special(column string) (string, bool) {
	name := strings.TrimPrefix(strings.TrimPrefix(column, "::"), "@")
	switch name {
	case "id", "type", "lat", "lon":
		return name, true
	}
	return "", false
}

func cell(e osm.Element, column string) string {
	if name, ok := special(column); ok {
		switch name {
		case "id":
			return strconv.FormatInt(e.ID, 10)
		case "type":
			return e.Type
		case "lat", "lon":
			lat, lon, ok := e.Coordinates()
			if !ok {
				return ""
			}
			if name == "lat" {
				return formatNumber(lat)
			}
			return formatNumber(lon)
		}
	}
	v, ok := e.Tags[column]
	if !ok {
		return ""
	}
	return quoteCSV(v)
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// quoteCSV wraps v in double quotes, doubling embedded quotes.
func quoteCSV(v string) string {
	return `"` + strings.ReplaceAll(v, `"`, `""`) + `"`
}

// headerCell leaves ordinary names bare and quotes names that would
// otherwise break the row.
func headerCell(name string) string {
	if strings.ContainsAny(name, ",\"\r\n") {
		return quoteCSV(name)
	}
	return name
}
