package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/NERVsystems/overpassqb/pkg/osm"
	"github.com/NERVsystems/overpassqb/pkg/tools"
)

func (c *cli) newPlacesCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:     "places <text>",
		Short:   "Search places with Nominatim",
		Example: `  overpassqb places "Wien"`,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := c.load(cmd)
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}

			places, err := a.registry.SearchPlaces(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), places)
			}
			return printPlaces(cmd.OutOrStdout(), places)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func (c *cli) newTagsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tags",
		Short: "Suggest tag keys and values from Taginfo",
	}

	keys := &cobra.Command{
		Use:     "keys <query>",
		Short:   "Suggest tag keys",
		Example: `  overpassqb tags keys amen`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := c.load(cmd)
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			list, err := a.registry.SuggestKeys(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printSuggestions(cmd.OutOrStdout(), list)
		},
	}

	values := &cobra.Command{
		Use:     "values <key> [query]",
		Short:   "Suggest values of a tag key",
		Example: `  overpassqb tags values amenity ca`,
		Args:    cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := c.load(cmd)
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			query := ""
			if len(args) == 2 {
				query = args[1]
			}
			list, err := a.registry.SuggestValues(cmd.Context(), args[0], query)
			if err != nil {
				return err
			}
			return printSuggestions(cmd.OutOrStdout(), list)
		},
	}

	cmd.AddCommand(keys, values)
	return cmd
}

func printPlaces(w io.Writer, places []tools.PlaceResult) error {
	if len(places) == 0 {
		fmt.Fprintln(w, "no places found")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "AREA\tTYPE\tBBOX\tNAME")
	for _, p := range places {
		bbox := "-"
		if p.BBox != nil {
			bbox = strings.Join([]string{p.BBox.South, p.BBox.West, p.BBox.North, p.BBox.East}, ",")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", p.AreaText, p.Type, bbox, p.DisplayName)
	}
	return tw.Flush()
}

func printSuggestions(w io.Writer, list []osm.Suggestion) error {
	if len(list) == 0 {
		fmt.Fprintln(w, "no suggestions")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, s := range list {
		fmt.Fprintf(tw, "%s\t%d\n", s.Value, s.Count)
	}
	return tw.Flush()
}
