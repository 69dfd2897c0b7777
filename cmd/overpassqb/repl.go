package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/peterh/liner"
	"github.com/spf13/cobra"

	"github.com/NERVsystems/overpassqb/pkg/osm/queries"
	"github.com/NERVsystems/overpassqb/pkg/tools"
)

func (c *cli) newREPLCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "repl",
		Short: "Edit a query form interactively",
		Long: `Start an interactive session holding one query form. Conditions, area and
options are edited with short commands; the query is rebuilt after every
change. Type "help" in the session for the command list.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := c.load(cmd)
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			r := newREPL(cmd.Context(), a.registry, cmd.OutOrStdout())
			return r.Run()
		},
	}
}

// REPL is the interactive query form.
type REPL struct {
	ctx      context.Context
	registry *tools.Registry
	out      io.Writer
	liner    *liner.State

	req  queries.Request
	view queries.BBoxFields
}

func newREPL(ctx context.Context, registry *tools.Registry, out io.Writer) *REPL {
	return &REPL{
		ctx:      ctx,
		registry: registry,
		out:      out,
		req:      queries.Request{Options: queries.Options{Format: queries.FormatJSON}},
	}
}

// historyFile returns the path to the history file.
func historyFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".overpassqb_history")
}

// Run starts the REPL loop.
func (r *REPL) Run() error {
	r.liner = liner.NewLiner()
	defer r.liner.Close()

	r.liner.SetCtrlCAborts(true)
	r.liner.SetCompleter(r.completer)

	if f, err := os.Open(historyFile()); err == nil {
		_, _ = r.liner.ReadHistory(f)
		f.Close()
	}

	fmt.Fprintln(r.out, "overpassqb - interactive Overpass query builder")
	fmt.Fprintln(r.out, "Type 'help' for available commands.")
	fmt.Fprintln(r.out)

	for {
		line, err := r.liner.Prompt("overpass> ")
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				fmt.Fprintln(r.out, "\nBye!")
				break
			}
			return fmt.Errorf("reading input: %w", err)
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		r.liner.AppendHistory(line)

		if r.exec(line) {
			break
		}
	}

	r.saveHistory()
	return nil
}

// saveHistory persists command history to disk.
func (r *REPL) saveHistory() {
	if path := historyFile(); path != "" {
		if f, err := os.Create(path); err == nil {
			_, _ = r.liner.WriteHistory(f)
			f.Close()
		}
	}
}

var replCommands = []string{
	"add", "rm", "conds", "area", "bbox", "view", "timeout", "format", "columns",
	"show", "links", "run", "export", "places", "keys", "values", "preset",
	"reset", "help", "exit", "quit", "q",
}

// completer provides tab completion for commands.
func (r *REPL) completer(line string) []string {
	var completions []string
	lower := strings.ToLower(line)
	for _, cmd := range replCommands {
		if strings.HasPrefix(cmd, lower) {
			completions = append(completions, cmd)
		}
	}
	return completions
}

// exec runs one command line and reports whether the session should end.
func (r *REPL) exec(line string) bool {
	cmd, rest, _ := strings.Cut(strings.TrimSpace(line), " ")
	rest = strings.TrimSpace(rest)

	switch strings.ToLower(cmd) {
	case "exit", "quit", "q":
		fmt.Fprintln(r.out, "Bye!")
		return true

	case "help", "?":
		r.printHelp()

	case "add":
		c, err := parseCondition(rest)
		if err != nil {
			r.fail(err)
			return false
		}
		r.req.Conditions = append(r.req.Conditions, c)
		r.show(false)

	case "rm":
		n, err := strconv.Atoi(rest)
		if err != nil || n < 1 || n > len(r.req.Conditions) {
			fmt.Fprintf(r.out, "usage: rm <1..%d>\n", len(r.req.Conditions))
			return false
		}
		r.req.Conditions = append(r.req.Conditions[:n-1], r.req.Conditions[n:]...)
		r.show(false)

	case "conds", "ls":
		r.printConditions()

	case "area":
		r.req.AreaText = rest
		r.show(false)

	case "bbox":
		bbox, err := parseOptionalBBox(rest)
		if err != nil {
			r.fail(err)
			return false
		}
		r.req.BBox = bbox
		r.show(false)

	case "view":
		view, err := parseOptionalBBox(rest)
		if err != nil {
			r.fail(err)
			return false
		}
		r.view = view

	case "timeout":
		r.req.Options.Timeout = queries.ParseTimeout(rest)
		r.show(false)

	case "format":
		format, columns, _ := strings.Cut(rest, " ")
		r.req.Options.Format = queries.ParseFormat(format)
		if columns != "" {
			r.req.Options.Columns = queries.ParseColumns(columns)
		}
		r.show(false)

	case "columns":
		r.req.Options.Columns = queries.ParseColumns(rest)
		r.show(false)

	case "show", "build":
		r.show(false)

	case "links":
		r.show(true)

	case "run":
		r.cmdRun(rest)

	case "export":
		r.cmdExport(rest)

	case "places":
		places, err := r.registry.SearchPlaces(r.ctx, rest)
		if err != nil {
			r.fail(err)
			return false
		}
		_ = printPlaces(r.out, places)

	case "keys":
		list, err := r.registry.SuggestKeys(r.ctx, rest)
		if err != nil {
			r.fail(err)
			return false
		}
		_ = printSuggestions(r.out, list)

	case "values":
		key, query, _ := strings.Cut(rest, " ")
		list, err := r.registry.SuggestValues(r.ctx, key, strings.TrimSpace(query))
		if err != nil {
			r.fail(err)
			return false
		}
		_ = printSuggestions(r.out, list)

	case "preset":
		res, err := r.registry.BuildPreset(r.ctx, rest)
		if err != nil {
			r.fail(err)
			return false
		}
		r.req = res.Preset.Request()
		r.req.Conditions = append([]queries.Condition(nil), r.req.Conditions...)
		r.show(false)

	case "reset":
		r.req = queries.Request{Options: queries.Options{Format: queries.FormatJSON}}
		r.view = queries.BBoxFields{}
		fmt.Fprintln(r.out, "form cleared")

	default:
		fmt.Fprintf(r.out, "Unknown command: %s (type 'help' for commands)\n", cmd)
	}
	return false
}

// show rebuilds and prints the query, or the error comment in its place.
func (r *REPL) show(withLinks bool) {
	res, err := r.registry.BuildQuery(r.ctx, r.req)
	if err != nil {
		fmt.Fprintln(r.out, queries.ErrorComment(err))
		return
	}
	printQuery(r.out, res, withLinks)
}

func (r *REPL) cmdRun(arg string) {
	limit := 20
	if arg != "" {
		n, err := strconv.Atoi(arg)
		if err != nil || n < 0 {
			fmt.Fprintln(r.out, "usage: run [limit]")
			return
		}
		limit = n
	}

	req := r.req
	res, err := r.registry.Run(r.ctx, tools.RunInput{Request: &req, View: r.view, Limit: limit})
	if err != nil {
		r.fail(err)
		return
	}
	if res.Raw != "" {
		fmt.Fprint(r.out, res.Raw)
		return
	}
	for _, e := range res.Elements {
		name := e.Tags["name"]
		if lat, lon, ok := e.Coordinates(); ok {
			fmt.Fprintf(r.out, "%s/%d\t%.6f,%.6f\t%s\n", e.Type, e.ID, lat, lon, name)
		} else {
			fmt.Fprintf(r.out, "%s/%d\t-\t%s\n", e.Type, e.ID, name)
		}
	}
	fmt.Fprintf(r.out, "%d elements", res.Count)
	if res.Truncated {
		fmt.Fprintf(r.out, " (showing %d)", len(res.Elements))
	}
	fmt.Fprintln(r.out)
}

func (r *REPL) cmdExport(arg string) {
	format, path, _ := strings.Cut(arg, " ")
	if format == "" {
		fmt.Fprintln(r.out, "usage: export <csv|json|geojson> [path]")
		return
	}

	req := r.req
	res, err := r.registry.Export(r.ctx, tools.ExportInput{
		RunInput: tools.RunInput{Request: &req, View: r.view},
		Format:   format,
	})
	if err != nil {
		r.fail(err)
		return
	}
	written, err := writeExport(res.File, strings.TrimSpace(path))
	if err != nil {
		r.fail(err)
		return
	}
	fmt.Fprintf(r.out, "exported %d elements to %s\n", res.Count, written)
}

func (r *REPL) printConditions() {
	if len(r.req.Conditions) == 0 {
		fmt.Fprintln(r.out, "no conditions")
		return
	}
	for i, c := range r.req.Conditions {
		fragment, _ := c.Fragment()
		fmt.Fprintf(r.out, "%d. %s%s\n", i+1, c.ElementType, fragment)
	}
}

func (r *REPL) fail(err error) {
	printError(r.out, err)
}

func (r *REPL) printHelp() {
	fmt.Fprintln(r.out, "Commands:")
	fmt.Fprintln(r.out, "  add <[type:]key[op value]>     Add a condition (node:amenity=cafe)")
	fmt.Fprintln(r.out, "  rm <n>                         Remove condition n")
	fmt.Fprintln(r.out, "  conds                          List conditions")
	fmt.Fprintln(r.out, "  area <text>                    Place name or relation:<id>; empty clears")
	fmt.Fprintln(r.out, "  bbox <s,w,n,e>                 Set the bounding box; empty clears")
	fmt.Fprintln(r.out, "  view <s,w,n,e>                 Map view used for {{bbox}} when running")
	fmt.Fprintln(r.out, "  timeout <seconds>              Query timeout")
	fmt.Fprintln(r.out, "  format <json|csv> [columns]    Output format")
	fmt.Fprintln(r.out, "  columns <a,b,c>                CSV columns")
	fmt.Fprintln(r.out, "  show / links                   Print the query (with viewer links)")
	fmt.Fprintln(r.out, "  run [limit]                    Execute and list elements")
	fmt.Fprintln(r.out, "  export <format> [path]         Execute and write csv, json or geojson")
	fmt.Fprintln(r.out, "  places <text>                  Search places")
	fmt.Fprintln(r.out, "  keys <query>                   Suggest tag keys")
	fmt.Fprintln(r.out, "  values <key> [query]           Suggest tag values")
	fmt.Fprintln(r.out, "  preset <name>                  Load a preset into the form")
	fmt.Fprintln(r.out, "  reset                          Clear the form")
	fmt.Fprintln(r.out, "  help                           Show this help")
	fmt.Fprintln(r.out, "  exit / quit / q                Exit")
}

// parseOptionalBBox is parseBBox where "clear" also empties the box.
func parseOptionalBBox(s string) (queries.BBoxFields, error) {
	if strings.EqualFold(strings.TrimSpace(s), "clear") {
		return queries.BBoxFields{}, nil
	}
	return parseBBox(s)
}
