package convert

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/NERVsystems/overpassqb/pkg/core"
	"github.com/NERVsystems/overpassqb/pkg/osm"
	"github.com/NERVsystems/overpassqb/pkg/osm/queries"
)

// ExportFormat is a downloadable file format.
type ExportFormat string

// Export formats.
const (
	ExportCSV     ExportFormat = "csv"
	ExportJSON    ExportFormat = "json"
	ExportGeoJSON ExportFormat = "geojson"
)

// ExportFormats lists the supported formats.
var ExportFormats = []ExportFormat{ExportCSV, ExportJSON, ExportGeoJSON}

// ParseExportFormat validates a format name.
func ParseExportFormat(s string) (ExportFormat, error) {
	switch f := ExportFormat(strings.ToLower(strings.TrimSpace(s))); f {
	case ExportCSV, ExportJSON, ExportGeoJSON:
		return f, nil
	}
	return "", core.UnsupportedExportFormatError(s)
}

// MIMEType returns the content type of the format.
func (f ExportFormat) MIMEType() string {
	switch f {
	case ExportCSV:
		return "text/csv"
	case ExportGeoJSON:
		return "application/geo+json"
	default:
		return "application/json"
	}
}

// FileName returns overpass-export-<date>.<format> for the UTC date of now.
func (f ExportFormat) FileName(now time.Time) string {
	return "overpass-export-" + now.UTC().Format("2006-01-02") + "." + string(f)
}

// File is an encoded export.
type File struct {
	Name     string `json:"name"`
	MIMEType string `json:"mime_type"`
	Content  []byte `json:"-"`
}

// Export encodes a query result as format. A native CSV result can only be
// exported as csv and is passed through unchanged.
func Export(res *osm.Result, format string, now time.Time) (*File, error) {
	f, err := ParseExportFormat(format)
	if err != nil {
		return nil, err
	}
	if res == nil || res.Empty() {
		return nil, core.EmptyResultSetError()
	}

	var content []byte
	if res.Format == queries.FormatCSV {
		if f != ExportCSV {
			return nil, core.UnsupportedExportFormatError(format).
				WithGuidance("The query requested CSV output; rebuild it with JSON output to export " + string(f) + ".")
		}
		content = []byte(res.Raw)
	} else {
		switch f {
		case ExportCSV:
			content = []byte(ToCSV(res.Elements, nil))
		case ExportJSON:
			content, err = json.MarshalIndent(osm.Response{Elements: res.Elements}, "", "  ")
		case ExportGeoJSON:
			var s string
			s, err = ToGeoJSON(res.Elements)
			content = []byte(s)
		}
		if err != nil {
			return nil, core.NewError(core.ErrInternalError, "failed to encode export").WithCause(err)
		}
	}

	return &File{
		Name:     f.FileName(now),
		MIMEType: f.MIMEType(),
		Content:  content,
	}, nil
}
