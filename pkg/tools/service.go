package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/NERVsystems/overpassqb/pkg/convert"
	"github.com/NERVsystems/overpassqb/pkg/core"
	"github.com/NERVsystems/overpassqb/pkg/export"
	"github.com/NERVsystems/overpassqb/pkg/geo"
	"github.com/NERVsystems/overpassqb/pkg/monitoring"
	"github.com/NERVsystems/overpassqb/pkg/osm"
	"github.com/NERVsystems/overpassqb/pkg/osm/queries"
	"github.com/NERVsystems/overpassqb/pkg/preset"
	"github.com/NERVsystems/overpassqb/pkg/tracing"
	"github.com/NERVsystems/overpassqb/pkg/version"
)

// QueryRunner executes Overpass QL.
type QueryRunner interface {
	Execute(ctx context.Context, query string) (*osm.Result, error)
}

// PlaceFinder searches places by name.
type PlaceFinder interface {
	Search(ctx context.Context, text string) ([]osm.Place, error)
}

// TagSuggester suggests tag keys and values.
type TagSuggester interface {
	Keys(ctx context.Context, query string) ([]osm.Suggestion, error)
	Values(ctx context.Context, key, query string) ([]osm.Suggestion, error)
}

// Deps are the collaborators of the registry. Nil services make the tools
// that need them report SERVICE_UNAVAILABLE.
type Deps struct {
	Overpass QueryRunner
	Places   PlaceFinder
	Tags     TagSuggester
	Presets  *preset.Store
	Sink     export.Sink

	// Defaults fills options a request leaves unset.
	Defaults queries.Options

	// Now is used for export file names; time.Now when nil.
	Now func() time.Time
}

// QueryResult is a generated query with its viewer links.
type QueryResult struct {
	Query    string `json:"query"`
	Area     string `json:"area"`
	TurboURL string `json:"turbo_url"`
	UltraURL string `json:"ultra_url"`
}

// IDQueryInput selects one OSM element.
type IDQueryInput struct {
	ElementType queries.ElementType `json:"element_type"`
	ID          int64               `json:"id"`
	RecurseDown bool                `json:"recurse_down,omitempty"`
	Timeout     int                 `json:"timeout,omitempty"`
}

// AreaInput holds the area fields of a form.
type AreaInput struct {
	Area string             `json:"area,omitempty"`
	BBox queries.BBoxFields `json:"bbox,omitempty"`
}

// AreaResult describes a resolved area.
type AreaResult struct {
	Kind           string           `json:"kind"`
	Comment        string           `json:"comment"`
	Header         string           `json:"header,omitempty"`
	Suffix         string           `json:"suffix"`
	Name           string           `json:"name,omitempty"`
	RelationID     int64            `json:"relation_id,omitempty"`
	OverpassAreaID int64            `json:"overpass_area_id,omitempty"`
	BBox           *geo.BoundingBox `json:"bbox,omitempty"`
}

// BBoxAreaResult is the estimated surface of a bounding box.
type BBoxAreaResult struct {
	BBox      geo.BoundingBox `json:"bbox"`
	AreaKm2   float64         `json:"area_km2"`
	Formatted string          `json:"formatted"`
}

// RunInput selects what to execute: raw Overpass QL, or a form that is
// built first. View fills a {{bbox}} placeholder.
type RunInput struct {
	Query   string             `json:"query,omitempty"`
	Request *queries.Request   `json:"request,omitempty"`
	View    queries.BBoxFields `json:"view,omitempty"`
	Limit   int                `json:"limit,omitempty"`
}

// RunResult is an executed query. Elements is cut to the requested limit;
// Count always reports the full result size.
type RunResult struct {
	Query     string        `json:"query"`
	Count     int           `json:"count"`
	Elements  []osm.Element `json:"elements,omitempty"`
	Raw       string        `json:"raw,omitempty"`
	Remark    string        `json:"remark,omitempty"`
	Truncated bool          `json:"truncated,omitempty"`
}

// ExportInput executes a query and encodes the result as Format.
type ExportInput struct {
	RunInput
	Format string `json:"format"`
	Upload bool   `json:"upload,omitempty"`
}

// ExportResult is an encoded export. Location is set when the file was
// stored in the configured sink.
type ExportResult struct {
	File     *convert.File `json:"file"`
	Count    int           `json:"count"`
	Location string        `json:"location,omitempty"`
}

// ConvertInput holds elements to convert without executing anything.
type ConvertInput struct {
	Elements []osm.Element `json:"elements"`
	Format   string        `json:"format"`
	Columns  []string      `json:"columns,omitempty"`
}

// PlaceResult is a place search hit ready to be used as query area.
type PlaceResult struct {
	osm.Place
	AreaText string              `json:"area_text"`
	BBox     *queries.BBoxFields `json:"bbox,omitempty"`
}

// PresetSummary lists a preset without its conditions.
type PresetSummary struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Conditions  int    `json:"conditions"`
	Path        string `json:"path"`
}

// PresetResult is a preset with its generated query.
type PresetResult struct {
	Preset *preset.Preset `json:"preset"`
	QueryResult
}

func (r *Registry) now() time.Time {
	if r.deps.Now != nil {
		return r.deps.Now()
	}
	return time.Now()
}

func (r *Registry) withDefaults(opts queries.Options) queries.Options {
	if opts.Timeout == 0 {
		opts.Timeout = r.deps.Defaults.Timeout
	}
	if opts.Format == "" {
		opts.Format = r.deps.Defaults.Format
	}
	return opts
}

func validateRequest(req queries.Request) error {
	if err := core.ValidateCount("conditions", len(req.Conditions), core.MaxConditions); err != nil {
		return err
	}
	if err := core.ValidateCount("columns", len(req.Options.Columns), core.MaxColumns); err != nil {
		return err
	}
	for _, c := range req.Conditions {
		if err := core.ValidateTag(c.Key, c.Value); err != nil {
			return err
		}
	}
	return core.ValidateLength("Area", req.AreaText, core.MaxAreaLength)
}

func unavailable(service string) error {
	return core.NewError(core.ErrServiceUnavailable, service+" is not configured")
}

func links(query string) (turbo, ultra string) {
	return queries.TurboURL(query), queries.UltraURL(query)
}

// BuildQuery generates the query of a form. A failed build returns an
// MCPError whose Query holds the "// Error:" comment shown in place of
// the query.
func (r *Registry) BuildQuery(ctx context.Context, req queries.Request) (*QueryResult, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	req.Options = r.withDefaults(req.Options)

	ctx, span := tracing.StartSpan(ctx, "query.build")
	defer span.End()

	area, err := queries.ResolveArea(req.BBox, req.AreaText)
	if err != nil {
		return nil, r.buildFailed(ctx, "invalid", err)
	}
	q, err := queries.BuildForArea(req.Conditions, area, req.Options)
	if err != nil {
		return nil, r.buildFailed(ctx, area.Kind.String(), err)
	}

	monitoring.RecordQueryBuild(area.Kind.String(), "ok")
	span.SetAttributes(tracing.QueryAttributes(q, string(req.Options.Format), area.Kind.String(), len(req.Conditions))...)

	turbo, ultra := links(q)
	return &QueryResult{Query: q, Area: area.Kind.String(), TurboURL: turbo, UltraURL: ultra}, nil
}

func (r *Registry) buildFailed(ctx context.Context, area string, err error) error {
	code := core.CodeOf(err)
	if code == "" {
		code = core.ErrInternalError
	}
	monitoring.RecordQueryBuild(area, string(code))
	tracing.RecordError(ctx, err)
	return AsMCPError(err).WithQuery(queries.ErrorComment(err))
}

// BuildIDQuery generates a lookup query for one element.
func (r *Registry) BuildIDQuery(in IDQueryInput) (*QueryResult, error) {
	timeout := in.Timeout
	if timeout == 0 {
		timeout = r.deps.Defaults.Timeout
	}
	q, err := queries.BuildIDQuery(in.ElementType, in.ID, in.RecurseDown, timeout)
	if err != nil {
		return nil, err
	}
	turbo, ultra := links(q)
	return &QueryResult{Query: q, Area: "id", TurboURL: turbo, UltraURL: ultra}, nil
}

// ResolveArea reports which area a form selects and the text it emits.
func (r *Registry) ResolveArea(in AreaInput) (*AreaResult, error) {
	if err := core.ValidateLength("Area", in.Area, core.MaxAreaLength); err != nil {
		return nil, err
	}
	area, err := queries.ResolveArea(in.BBox, in.Area)
	if err != nil {
		return nil, err
	}
	em := area.Emit()
	out := &AreaResult{
		Kind:    area.Kind.String(),
		Comment: em.Comment,
		Header:  em.Header,
		Suffix:  em.Suffix,
	}
	switch area.Kind {
	case queries.AreaBBox:
		box := area.Box
		out.BBox = &box
	case queries.AreaPlaceName:
		out.Name = area.Name
	case queries.AreaRelation:
		out.RelationID = area.RelationID
		out.OverpassAreaID = area.OverpassAreaID()
	}
	return out, nil
}

// BBoxArea estimates the surface a bounding box covers.
func (r *Registry) BBoxArea(fields queries.BBoxFields) (*BBoxAreaResult, error) {
	box, err := fields.Parse()
	if err != nil {
		return nil, err
	}
	km2 := box.AreaKm2()
	return &BBoxAreaResult{BBox: box, AreaKm2: km2, Formatted: geo.FormatArea(km2)}, nil
}

// resolveQuery returns the query text a run refers to.
func (r *Registry) resolveQuery(ctx context.Context, in RunInput) (string, error) {
	query := in.Query
	if strings.TrimSpace(query) == "" && in.Request != nil {
		built, err := r.BuildQuery(ctx, *in.Request)
		if err != nil {
			return "", err
		}
		query = built.Query
	}
	if err := core.ValidateQuery(query); err != nil {
		return "", err
	}
	if in.View == (queries.BBoxFields{}) {
		return query, nil
	}
	return queries.BindView(query, in.View)
}

// Run executes a query.
func (r *Registry) Run(ctx context.Context, in RunInput) (*RunResult, error) {
	if r.deps.Overpass == nil {
		return nil, unavailable("Overpass")
	}
	if in.Limit < 0 {
		return nil, core.NewValidationError(core.ErrInvalidParameter,
			fmt.Sprintf("limit must not be negative, got %d", in.Limit))
	}
	query, err := r.resolveQuery(ctx, in)
	if err != nil {
		return nil, err
	}

	res, err := r.deps.Overpass.Execute(ctx, query)
	if err != nil {
		return nil, err
	}

	out := &RunResult{
		Query:    res.Query,
		Count:    res.Count(),
		Elements: res.Elements,
		Raw:      res.Raw,
		Remark:   res.Remark,
	}
	if in.Limit > 0 && len(out.Elements) > in.Limit {
		out.Elements = out.Elements[:in.Limit]
		out.Truncated = true
	}
	r.logger.Debug("query executed", "query_length", len(query), "element_count", out.Count)
	return out, nil
}

// Export executes a query and encodes the result. With Upload the file is
// stored in the configured sink as well.
func (r *Registry) Export(ctx context.Context, in ExportInput) (*ExportResult, error) {
	if _, err := convert.ParseExportFormat(in.Format); err != nil {
		return nil, err
	}
	if in.Upload && r.deps.Sink == nil {
		return nil, core.NewValidationError(core.ErrInvalidParameter, "no export sink is configured").
			WithGuidance(GuidanceNoSink)
	}
	if r.deps.Overpass == nil {
		return nil, unavailable("Overpass")
	}

	ctx, span := tracing.StartSpan(ctx, "export")
	defer span.End()
	span.SetAttributes(attribute.String(tracing.AttrExportFormat, in.Format))

	query, err := r.resolveQuery(ctx, in.RunInput)
	if err != nil {
		return nil, err
	}
	res, err := r.deps.Overpass.Execute(ctx, query)
	if err != nil {
		return nil, err
	}

	sinkType := ""
	if in.Upload {
		sinkType = r.deps.Sink.Type()
	}
	format := strings.ToLower(strings.TrimSpace(in.Format))

	file, err := convert.Export(res, in.Format, r.now())
	if err != nil {
		monitoring.RecordExport(format, sinkType, 0, false)
		return nil, err
	}
	out := &ExportResult{File: file, Count: res.Count()}

	if in.Upload {
		loc, err := r.deps.Sink.Put(ctx, file)
		if err != nil {
			monitoring.RecordExport(format, sinkType, 0, false)
			tracing.RecordError(ctx, err)
			return nil, core.NewError(core.ErrServiceUnavailable, "failed to store export").WithCause(err)
		}
		out.Location = loc
		r.logger.Info("export stored", "name", file.Name, "location", loc, "size", len(file.Content))
	}
	monitoring.RecordExport(format, sinkType, len(file.Content), true)
	return out, nil
}

// ConvertElements encodes caller supplied elements.
func (r *Registry) ConvertElements(in ConvertInput) (string, error) {
	f, err := convert.ParseExportFormat(in.Format)
	if err != nil {
		return "", err
	}
	if err := core.ValidateCount("columns", len(in.Columns), core.MaxColumns); err != nil {
		return "", err
	}
	switch f {
	case convert.ExportCSV:
		return convert.ToCSV(in.Elements, in.Columns), nil
	case convert.ExportGeoJSON:
		return convert.ToGeoJSON(in.Elements)
	default:
		elements := in.Elements
		if elements == nil {
			elements = []osm.Element{}
		}
		b, err := json.MarshalIndent(osm.Response{Elements: elements}, "", "  ")
		return string(b), err
	}
}

// SearchPlaces looks up places for the area field.
func (r *Registry) SearchPlaces(ctx context.Context, text string) ([]PlaceResult, error) {
	if r.deps.Places == nil {
		return nil, unavailable("Nominatim")
	}
	if err := core.ValidateLength("Place query", text, core.MaxAreaLength); err != nil {
		return nil, err
	}
	places, err := r.deps.Places.Search(ctx, text)
	if err != nil {
		return nil, err
	}
	out := make([]PlaceResult, 0, len(places))
	for _, p := range places {
		pr := PlaceResult{Place: p, AreaText: p.AreaText()}
		if fields, ok := p.BBoxFields(); ok {
			pr.BBox = &fields
		}
		out = append(out, pr)
	}
	return out, nil
}

// SuggestKeys returns tag keys matching query.
func (r *Registry) SuggestKeys(ctx context.Context, query string) ([]osm.Suggestion, error) {
	if r.deps.Tags == nil {
		return nil, unavailable("Taginfo")
	}
	if err := core.ValidateLength("Key query", query, core.MaxTagLength); err != nil {
		return nil, err
	}
	return r.deps.Tags.Keys(ctx, query)
}

// SuggestValues returns values of key matching query.
func (r *Registry) SuggestValues(ctx context.Context, key, query string) ([]osm.Suggestion, error) {
	if r.deps.Tags == nil {
		return nil, unavailable("Taginfo")
	}
	if err := core.ValidateTag(key, query); err != nil {
		return nil, err
	}
	return r.deps.Tags.Values(ctx, key, query)
}

// ListPresets returns the loaded presets.
func (r *Registry) ListPresets() []PresetSummary {
	if r.deps.Presets == nil {
		return []PresetSummary{}
	}
	list := r.deps.Presets.List()
	out := make([]PresetSummary, 0, len(list))
	for _, p := range list {
		out = append(out, PresetSummary{
			Name:        p.Name,
			Description: p.Description,
			Conditions:  len(p.Conditions),
			Path:        p.Path,
		})
	}
	return out
}

// BuildPreset generates the query of a named preset.
func (r *Registry) BuildPreset(ctx context.Context, name string) (*PresetResult, error) {
	if strings.TrimSpace(name) == "" {
		return nil, core.NewError(core.ErrEmptyParameter, "Preset name cannot be empty")
	}
	if r.deps.Presets == nil {
		return nil, unavailable("Preset directory")
	}
	p, ok := r.deps.Presets.Get(name)
	if !ok {
		names := make([]string, 0)
		for _, s := range r.ListPresets() {
			names = append(names, s.Name)
		}
		return nil, core.NewError(core.ErrNoResults, fmt.Sprintf("no preset named %q", name)).
			WithSuggestions(names...)
	}
	built, err := r.BuildQuery(ctx, p.Request())
	if err != nil {
		return nil, err
	}
	return &PresetResult{Preset: p, QueryResult: *built}, nil
}

// Version returns build information.
func (r *Registry) Version() map[string]string {
	return version.Info()
}
