package convert

import (
	"encoding/json"

	geojson "github.com/paulmach/go.geojson"

	"github.com/NERVsystems/overpassqb/pkg/osm"
)

// ToFeatureCollection maps each element to one feature.
//
// Nodes become points. Elements with embedded geometry become a point
// (one coordinate), a polygon (four or more coordinates, closed) or a line
// string. Anything else is placed at [0,0] rather than dropped, so the
// feature count always equals the element count. Properties are the tags
// plus id and type.
func ToFeatureCollection(elements []osm.Element) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, e := range elements {
		fc.AddFeature(feature(e))
	}
	return fc
}

// ToGeoJSON renders elements as an indented FeatureCollection.
func ToGeoJSON(elements []osm.Element) (string, error) {
	out, err := json.MarshalIndent(ToFeatureCollection(elements), "", "  ")
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func feature(e osm.Element) *geojson.Feature {
	var f *geojson.Feature
	g := e.Geometry

	switch {
	case e.Lat != nil && e.Lon != nil:
		f = geojson.NewPointFeature([]float64{*e.Lon, *e.Lat})
	case len(g) == 1:
		f = geojson.NewPointFeature(position(g[0]))
	case len(g) >= 4 && g[0] == g[len(g)-1]:
		f = geojson.NewPolygonFeature([][][]float64{positions(g)})
	case len(g) > 1:
		f = geojson.NewLineStringFeature(positions(g))
	default:
		f = geojson.NewPointFeature([]float64{0, 0})
	}

	f.Properties = make(map[string]interface{}, len(e.Tags)+2)
	for k, v := range e.Tags {
		f.Properties[k] = v
	}
	f.Properties["id"] = e.ID
	f.Properties["type"] = e.Type
	return f
}

// position converts to GeoJSON [lon, lat] order.
func position(p osm.Point) []float64 {
	return []float64{p.Lon, p.Lat}
}

func positions(ps []osm.Point) [][]float64 {
	out := make([][]float64, len(ps))
	for i, p := range ps {
		out[i] = position(p)
	}
	return out
}
