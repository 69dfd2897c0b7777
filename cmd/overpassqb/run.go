package main

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/natefinch/atomic"
	"github.com/spf13/cobra"

	"github.com/NERVsystems/overpassqb/pkg/convert"
	"github.com/NERVsystems/overpassqb/pkg/tools"
)

// runFlags select the query to execute: a file of raw Overpass QL, or the
// query form flags.
type runFlags struct {
	form      formFlags
	queryFile string
	view      string
}

func (f *runFlags) register(cmd *cobra.Command) {
	f.form.register(cmd.Flags())
	cmd.Flags().StringVarP(&f.queryFile, "query-file", "q", "", `file with Overpass QL to run ("-" reads stdin)`)
	cmd.Flags().StringVar(&f.view, "view", "", "bounding box south,west,north,east filling a {{bbox}} placeholder")
}

func (f *runFlags) input(stdin io.Reader) (tools.RunInput, error) {
	var in tools.RunInput
	view, err := parseBBox(f.view)
	if err != nil {
		return in, err
	}
	in.View = view

	if f.queryFile != "" {
		var data []byte
		if f.queryFile == "-" {
			data, err = io.ReadAll(stdin)
		} else {
			data, err = os.ReadFile(f.queryFile)
		}
		if err != nil {
			return in, fmt.Errorf("reading query: %w", err)
		}
		in.Query = string(data)
		return in, nil
	}

	req, err := f.form.request()
	if err != nil {
		return in, err
	}
	in.Request = &req
	return in, nil
}

func (c *cli) newRunCmd() *cobra.Command {
	var (
		flags runFlags
		limit int
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Build and execute a query, printing the elements as JSON",
		Example: `  overpassqb run -c node:amenity=drinking_water -b 48.19,16.35,48.22,16.39 --limit 10
  overpassqb run -q query.overpassql --view 48.19,16.35,48.22,16.39`,
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
			in, err := flags.input(cmd.InOrStdin())
			if err != nil {
				return err
			}
			in.Limit = limit

			res, err := a.registry.Run(cmd.Context(), in)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if res.Raw != "" {
				_, err := io.WriteString(out, res.Raw)
				return err
			}
			return writeJSON(out, res)
		},
	}

	flags.register(cmd)
	cmd.Flags().IntVar(&limit, "limit", 0, "print at most this many elements (0 prints all)")
	return cmd
}

func (c *cli) newExportCmd() *cobra.Command {
	var (
		flags  runFlags
		format string
		output string
		upload bool
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Execute a query and write the result as CSV, JSON or GeoJSON",
		Long: `Execute a query and encode the result. The file is written to the
current directory under its export name (overpass-export-YYYY-MM-DD.<ext>)
unless --output names a path or "-" for stdout. With --upload the file is
stored in the configured export sink instead.`,
		Example: `  overpassqb export -c node:amenity=cafe -a Wien --export-format geojson
  overpassqb export -q query.overpassql --export-format csv -o cafes.csv
  overpassqb export -c shop=bakery -b 48.1,16.2,48.3,16.5 --upload --export-type s3`,
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
			in, err := flags.input(cmd.InOrStdin())
			if err != nil {
				return err
			}

			res, err := a.registry.Export(cmd.Context(), tools.ExportInput{
				RunInput: in,
				Format:   format,
				Upload:   upload,
			})
			if err != nil {
				return err
			}

			if upload {
				fmt.Fprintf(cmd.OutOrStdout(), "exported %d elements to %s\n", res.Count, res.Location)
				return nil
			}
			if output == "-" {
				_, err := cmd.OutOrStdout().Write(res.File.Content)
				return err
			}
			path, err := writeExport(res.File, output)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "exported %d elements to %s\n", res.Count, path)
			return nil
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVar(&format, "export-format", "csv", "export format (csv, json, geojson)")
	cmd.Flags().StringVarP(&output, "output", "o", "", `output path ("-" for stdout)`)
	cmd.Flags().BoolVar(&upload, "upload", false, "store the file in the configured export sink")
	return cmd
}

// writeExport atomically writes f to path. An empty path or a directory
// uses the export file name.
func writeExport(f *convert.File, path string) (string, error) {
	if path == "" {
		path = f.Name
	} else if info, err := os.Stat(path); err == nil && info.IsDir() {
		path = filepath.Join(path, f.Name)
	} else if strings.HasSuffix(path, string(filepath.Separator)) {
		if err := os.MkdirAll(path, 0o750); err != nil {
			return "", fmt.Errorf("creating output directory: %w", err)
		}
		path = filepath.Join(path, f.Name)
	}

	if err := atomic.WriteFile(path, bytes.NewReader(f.Content)); err != nil {
		return "", fmt.Errorf("writing export: %w", err)
	}
	return path, nil
}
