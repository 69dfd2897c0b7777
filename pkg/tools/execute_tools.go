package tools

import (
	"context"
	"log/slog"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/NERVsystems/overpassqb/pkg/osm/queries"
)

// DefaultRunLimit caps the elements returned by run_overpass_query when
// the call sets no limit.
const DefaultRunLimit = 100

type runArgs struct {
	Query string `json:"query,omitempty"`
	formArgs
	View  queries.BBoxFields `json:"view,omitempty"`
	Limit int                `json:"limit,omitempty"`
}

func (a runArgs) input() RunInput {
	in := RunInput{Query: a.Query, View: a.View, Limit: a.Limit}
	if strings.TrimSpace(a.Query) == "" {
		req := a.request()
		in.Request = &req
	}
	return in
}

func runOptions() []mcp.ToolOption {
	opts := []mcp.ToolOption{
		mcp.WithString("query",
			mcp.Description("Overpass QL to execute; when empty the query is built from the form fields"),
		),
	}
	opts = append(opts, formOptions(false)...)
	return append(opts,
		mcp.WithObject("view",
			mcp.Description("Bounding box substituted for {{bbox}}"),
			mcp.Properties(bboxProperties),
		),
	)
}

// RunOverpassQueryTool returns a tool definition for executing queries
func RunOverpassQueryTool() mcp.Tool {
	opts := append([]mcp.ToolOption{
		mcp.WithDescription("Execute Overpass QL, or build it from the form fields first, and return the matching elements"),
	}, runOptions()...)
	opts = append(opts, mcp.WithNumber("limit",
		mcp.Description("Maximum number of elements to return (default 100)"),
	))
	return mcp.NewTool("run_overpass_query", opts...)
}

// HandleRunOverpassQuery executes a query
func (r *Registry) HandleRunOverpassQuery(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return WithParsedInput(r.logger, "run_overpass_query",
		func(ctx context.Context, args runArgs, logger *slog.Logger) (interface{}, error) {
			in := args.input()
			if in.Limit == 0 {
				in.Limit = DefaultRunLimit
			}
			return r.Run(ctx, in)
		},
	)(ctx, req)
}

type exportArgs struct {
	runArgs
	Format string `json:"export_format"`
	Upload bool   `json:"upload,omitempty"`
}

// ExportOutput is the tool view of an export. Content is only inlined
// when the file was not uploaded.
type ExportOutput struct {
	Name     string `json:"name"`
	MIMEType string `json:"mime_type"`
	Count    int    `json:"count"`
	Size     int    `json:"size"`
	Location string `json:"location,omitempty"`
	Content  string `json:"content,omitempty"`
}

// ExportOverpassResultsTool returns a tool definition for exports
func ExportOverpassResultsTool() mcp.Tool {
	opts := append([]mcp.ToolOption{
		mcp.WithDescription("Execute a query and export the result as CSV, JSON or GeoJSON, optionally storing the file in the configured export sink"),
		mcp.WithString("export_format",
			mcp.Required(),
			mcp.Description("Export file format"),
			mcp.Enum("csv", "json", "geojson"),
		),
		mcp.WithBoolean("upload",
			mcp.Description("Store the file in the export sink and return its location"),
		),
	}, runOptions()...)
	return mcp.NewTool("export_overpass_results", opts...)
}

// HandleExportOverpassResults exports a query result
func (r *Registry) HandleExportOverpassResults(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return WithParsedInput(r.logger, "export_overpass_results",
		func(ctx context.Context, args exportArgs, logger *slog.Logger) (interface{}, error) {
			res, err := r.Export(ctx, ExportInput{RunInput: args.input(), Format: args.Format, Upload: args.Upload})
			if err != nil {
				return nil, err
			}
			out := ExportOutput{
				Name:     res.File.Name,
				MIMEType: res.File.MIMEType,
				Count:    res.Count,
				Size:     len(res.File.Content),
				Location: res.Location,
			}
			if res.Location == "" {
				out.Content = string(res.File.Content)
			}
			return out, nil
		},
	)(ctx, req)
}

// ConvertElementsTool returns a tool definition for converting elements
func ConvertElementsTool() mcp.Tool {
	return mcp.NewTool("convert_elements",
		mcp.WithDescription("Convert Overpass JSON elements to CSV, JSON or GeoJSON"),
		mcp.WithArray("elements",
			mcp.Required(),
			mcp.Description("Elements as returned by the Overpass JSON API"),
			mcp.Items(map[string]any{"type": "object"}),
		),
		mcp.WithString("format",
			mcp.Required(),
			mcp.Description("Target format"),
			mcp.Enum("csv", "json", "geojson"),
		),
		mcp.WithArray("columns",
			mcp.Description("CSV columns; defaults to id, type, lat, lon and every tag key"),
			mcp.Items(map[string]any{"type": "string"}),
		),
	)
}

// HandleConvertElements converts elements
func (r *Registry) HandleConvertElements(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	logger := r.logger.With("tool", "convert_elements")

	in, errResult, err := InputParser[ConvertInput](req)
	if err != nil {
		logger.Error("failed to parse input", "error", err)
		return errResult, nil
	}

	content, err := r.ConvertElements(in)
	if err != nil {
		logger.Warn("conversion failed", "error", err)
		return ErrorResult(err), nil
	}
	return mcp.NewToolResultText(content), nil
}
