package osm

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/NERVsystems/overpassqb/pkg/core"
	"github.com/NERVsystems/overpassqb/pkg/geo"
	"github.com/NERVsystems/overpassqb/pkg/osm/queries"
	"github.com/NERVsystems/overpassqb/pkg/tracing"
)

// Place search limits.
const (
	MinPlaceQueryLength = 3
	PlaceResultLimit    = 5
	placeCacheTTL       = 10 * time.Minute
)

// Place is one Nominatim search hit.
type Place struct {
	DisplayName string            `json:"display_name"`
	Type        string            `json:"type"`
	OSMType     string            `json:"osm_type"`
	OSMID       int64             `json:"osm_id"`
	Lat         float64           `json:"lat"`
	Lon         float64           `json:"lon"`
	BoundingBox []string          `json:"boundingbox"`
	Address     map[string]string `json:"address,omitempty"`
}

// nominatimPlace mirrors the wire format, where numbers arrive as strings.
type nominatimPlace struct {
	DisplayName string            `json:"display_name"`
	Type        string            `json:"type"`
	OSMType     string            `json:"osm_type"`
	OSMID       int64             `json:"osm_id"`
	Lat         string            `json:"lat"`
	Lon         string            `json:"lon"`
	BoundingBox []string          `json:"boundingbox"`
	Address     map[string]string `json:"address"`
}

// BBoxFields returns the place's bounding box as query input. Nominatim
// orders the box south, north, west, east; the text is kept as sent so the
// query preserves its precision.
func (p Place) BBoxFields() (queries.BBoxFields, bool) {
	if len(p.BoundingBox) != 4 {
		return queries.BBoxFields{}, false
	}
	return queries.BBoxFields{
		South: p.BoundingBox[0],
		North: p.BoundingBox[1],
		West:  p.BoundingBox[2],
		East:  p.BoundingBox[3],
	}, true
}

// Box parses the bounding box.
func (p Place) Box() (geo.BoundingBox, error) {
	fields, ok := p.BBoxFields()
	if !ok {
		return geo.BoundingBox{}, core.InvalidBBoxError("place has no bounding box")
	}
	return fields.Parse()
}

// AreaText returns the area input that selects this place: a relation
// reference when the place is a relation, its display name otherwise.
func (p Place) AreaText() string {
	if p.OSMType == "relation" && p.OSMID > 0 {
		return "relation:" + strconv.FormatInt(p.OSMID, 10)
	}
	return p.DisplayName
}

// PlaceSearcher queries Nominatim.
type PlaceSearcher struct {
	svc    *service
	cache  *TTLCache[string, []Place]
	logger *slog.Logger
}

// NewPlaceSearcher creates a searcher. A nil httpClient uses core.DefaultClient.
func NewPlaceSearcher(cfg ServiceConfig, httpClient *http.Client, logger *slog.Logger) *PlaceSearcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &PlaceSearcher{
		svc:    newService(tracing.ServiceNominatim, cfg, NominatimBaseURL, 1, httpClient),
		cache:  NewTTLCache[string, []Place](placeCacheTTL),
		logger: logger,
	}
}

// Search looks up places matching text. Inputs shorter than
// MinPlaceQueryLength return no results without a request.
func (s *PlaceSearcher) Search(ctx context.Context, text string) ([]Place, error) {
	text = strings.TrimSpace(text)
	if len([]rune(text)) < MinPlaceQueryLength {
		return nil, nil
	}

	key := strings.ToLower(text)
	if places, ok := s.cache.Get(key); ok {
		reportCache(tracing.CacheTypePlaces, true)
		return places, nil
	}
	reportCache(tracing.CacheTypePlaces, false)

	params := url.Values{}
	params.Set("q", text)
	params.Set("format", "json")
	params.Set("limit", strconv.Itoa(PlaceResultLimit))
	params.Set("addressdetails", "1")
	params.Set("dedupe", "1")

	body, err := s.svc.get(ctx, "search", "/search", params)
	if err != nil {
		s.logger.Error("place search failed", "query", text, "error", err)
		return nil, err
	}

	var raw []nominatimPlace
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, core.NewError(core.ErrParseError, "failed to decode Nominatim response").WithCause(err)
	}

	places := make([]Place, 0, len(raw))
	for _, r := range raw {
		lat, _ := strconv.ParseFloat(r.Lat, 64)
		lon, _ := strconv.ParseFloat(r.Lon, 64)
		places = append(places, Place{
			DisplayName: r.DisplayName,
			Type:        r.Type,
			OSMType:     r.OSMType,
			OSMID:       r.OSMID,
			Lat:         lat,
			Lon:         lon,
			BoundingBox: r.BoundingBox,
			Address:     r.Address,
		})
	}

	s.cache.Set(key, places)
	s.logger.Debug("place search", "query", text, "results", len(places))
	return places, nil
}

// CheckHealth reports whether Nominatim answers.
func (s *PlaceSearcher) CheckHealth(ctx context.Context) error {
	return checkHealth(ctx, s.svc.client, s.svc.baseURL+"/status")
}
