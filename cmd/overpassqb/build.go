package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/NERVsystems/overpassqb/pkg/core"
	"github.com/NERVsystems/overpassqb/pkg/osm/queries"
	"github.com/NERVsystems/overpassqb/pkg/tools"
)

func (c *cli) newBuildCmd() *cobra.Command {
	var (
		form       formFlags
		presetName string
		showLinks  bool
	)

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build an Overpass QL query",
		Example: `  overpassqb build -c node:amenity=restaurant -b 37.7,-122.5,37.8,-122.4
  overpassqb build -c shop=bakery -a "Wien" --format csv --columns ::id,name
  overpassqb build --preset cafes --links`,
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

			var res *tools.QueryResult
			if presetName != "" {
				var pr *tools.PresetResult
				pr, err = a.registry.BuildPreset(cmd.Context(), presetName)
				if pr != nil {
					res = &pr.QueryResult
				}
			} else {
				var req queries.Request
				req, err = form.request()
				if err == nil {
					res, err = a.registry.BuildQuery(cmd.Context(), req)
				}
			}

			out := cmd.OutOrStdout()
			if err != nil {
				fmt.Fprintln(out, queries.ErrorComment(err))
				return err
			}
			printQuery(out, res, showLinks)
			return nil
		},
	}

	form.register(cmd.Flags())
	cmd.Flags().StringVar(&presetName, "preset", "", "build the named preset instead of the flags")
	cmd.Flags().BoolVar(&showLinks, "links", false, "print Overpass Turbo and Ultra links")
	return cmd
}

func (c *cli) newIDCmd() *cobra.Command {
	var (
		recurse   bool
		timeout   int
		showLinks bool
	)

	cmd := &cobra.Command{
		Use:     "id <node|way|relation> <id>",
		Short:   "Build a query that fetches one OSM element",
		Example: `  overpassqb id relation 62422 --recurse`,
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := c.load(cmd)
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}

			elementType, err := queries.ParseElementType(args[0])
			if err != nil {
				return err
			}
			id, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil {
				return core.NewValidationError(core.ErrInvalidParameter, fmt.Sprintf("invalid OSM id %q", args[1]))
			}

			res, err := a.registry.BuildIDQuery(tools.IDQueryInput{
				ElementType: elementType,
				ID:          id,
				RecurseDown: recurse,
				Timeout:     timeout,
			})
			if err != nil {
				return err
			}
			printQuery(cmd.OutOrStdout(), res, showLinks)
			return nil
		},
	}

	cmd.Flags().BoolVar(&recurse, "recurse", false, "also fetch member ways and nodes")
	cmd.Flags().IntVar(&timeout, "timeout", 0, "query timeout in seconds")
	cmd.Flags().BoolVar(&showLinks, "links", false, "print Overpass Turbo and Ultra links")
	return cmd
}

func (c *cli) newAreaCmd() *cobra.Command {
	var (
		area string
		bbox string
	)

	cmd := &cobra.Command{
		Use:   "area",
		Short: "Show how an area input is resolved",
		Long: `Resolve an area the way the query builder does. A complete bounding box
wins over the area text; with only a bounding box its estimated surface is
printed as well.`,
		Example: `  overpassqb area -a relation:62422
  overpassqb area -b 48.1,16.2,48.3,16.5`,
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
			fields, err := parseBBox(bbox)
			if err != nil {
				return err
			}

			res, err := a.registry.ResolveArea(tools.AreaInput{Area: area, BBox: fields})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintf(tw, "kind:\t%s\n", res.Kind)
			fmt.Fprintf(tw, "comment:\t%s\n", res.Comment)
			if res.Header != "" {
				fmt.Fprintf(tw, "header:\t%s\n", strings.TrimSpace(res.Header))
			}
			fmt.Fprintf(tw, "suffix:\t%s\n", res.Suffix)
			if res.OverpassAreaID != 0 {
				fmt.Fprintf(tw, "area id:\t%d\n", res.OverpassAreaID)
			}
			if err := tw.Flush(); err != nil {
				return err
			}

			if res.BBox != nil {
				size, err := a.registry.BBoxArea(fields)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "size:     %s\n", size.Formatted)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&area, "area", "a", "", "place name or relation id")
	cmd.Flags().StringVarP(&bbox, "bbox", "b", "", "bounding box south,west,north,east")
	return cmd
}

func (c *cli) newPresetsCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "presets",
		Short: "List the presets of the preset directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := c.load(cmd)
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}

			list := a.registry.ListPresets()
			out := cmd.OutOrStdout()
			if asJSON {
				return writeJSON(out, list)
			}
			if len(list) == 0 {
				fmt.Fprintln(out, "no presets")
				return nil
			}
			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tCONDITIONS\tDESCRIPTION")
			for _, p := range list {
				fmt.Fprintf(tw, "%s\t%d\t%s\n", p.Name, p.Conditions, p.Description)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func printQuery(w io.Writer, res *tools.QueryResult, showLinks bool) {
	fmt.Fprintln(w, res.Query)
	if showLinks {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Overpass Turbo: %s\n", res.TurboURL)
		fmt.Fprintf(w, "Overpass Ultra: %s\n", res.UltraURL)
	}
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
