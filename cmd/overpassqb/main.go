// Package main provides the overpassqb command line tool: an MCP and REST
// server for Overpass query building, plus direct commands for building,
// running and exporting queries.
package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/NERVsystems/overpassqb/pkg/config"
	"github.com/NERVsystems/overpassqb/pkg/core"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		printError(os.Stderr, err)
		os.Exit(1)
	}
}

// cli carries the state shared by all subcommands of one root command.
type cli struct {
	v       *viper.Viper
	cfgFile string
	debug   bool
}

func newRootCmd() *cobra.Command {
	c := &cli{v: viper.New()}

	root := &cobra.Command{
		Use:   "overpassqb",
		Short: "Overpass QL query builder",
		Long: `overpassqb builds Overpass QL queries from tag conditions and an area
(bounding box, place name or relation id), runs them against an Overpass
interpreter and converts the results to CSV or GeoJSON.

Run "overpassqb serve" to expose the same operations as MCP tools and a
REST API.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&c.cfgFile, "config", "", "config file (default: ./overpassqb.yaml)")
	pf.BoolVar(&c.debug, "debug", false, "enable debug logging")
	pf.String("log-level", "info", "log level (debug, info, warn, error)")
	pf.String("log-format", "text", "log format (json, text)")
	pf.String("user-agent", "", "User-Agent for requests to the OSM services")
	pf.String("overpass-url", "", "Overpass interpreter URL")
	pf.String("nominatim-url", "", "Nominatim base URL")
	pf.String("taginfo-url", "", "Taginfo base URL")
	pf.String("presets-dir", "", "directory holding query presets")
	pf.String("export-type", "", "export sink (none, local, s3, azure)")
	pf.String("export-dir", "", "directory of the local export sink")

	_ = c.v.BindPFlag("logging.level", pf.Lookup("log-level"))
	_ = c.v.BindPFlag("logging.format", pf.Lookup("log-format"))
	_ = c.v.BindPFlag("user_agent", pf.Lookup("user-agent"))
	_ = c.v.BindPFlag("overpass.base_url", pf.Lookup("overpass-url"))
	_ = c.v.BindPFlag("nominatim.base_url", pf.Lookup("nominatim-url"))
	_ = c.v.BindPFlag("taginfo.base_url", pf.Lookup("taginfo-url"))
	_ = c.v.BindPFlag("presets.dir", pf.Lookup("presets-dir"))
	_ = c.v.BindPFlag("export.type", pf.Lookup("export-type"))
	_ = c.v.BindPFlag("export.local.dir", pf.Lookup("export-dir"))

	root.AddCommand(
		c.newServeCmd(),
		c.newBuildCmd(),
		c.newIDCmd(),
		c.newAreaCmd(),
		c.newRunCmd(),
		c.newExportCmd(),
		c.newPlacesCmd(),
		c.newTagsCmd(),
		c.newPresetsCmd(),
		c.newREPLCmd(),
		newVersionCmd(),
	)
	return root
}

// load reads the configuration and sets up the logger on stderr.
func (c *cli) load(cmd *cobra.Command) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(c.v, c.cfgFile)
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}
	if c.debug {
		cfg.Logging.Level = "debug"
	}
	logger := setupLogger(cfg.Logging, cmd.ErrOrStderr())
	slog.SetDefault(logger)
	return cfg, logger, nil
}

func setupLogger(cfg config.LoggingConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if strings.ToLower(cfg.Format) == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

// printError writes err to w, with the guidance and suggestions of a
// structured error on their own lines.
func printError(w io.Writer, err error) {
	var mcpErr *core.MCPError
	if !errors.As(err, &mcpErr) {
		fmt.Fprintf(w, "error: %v\n", err)
		return
	}
	fmt.Fprintf(w, "error [%s]: %s\n", mcpErr.Code, mcpErr.Message)
	if mcpErr.Guidance != "" {
		fmt.Fprintf(w, "  %s\n", mcpErr.Guidance)
	}
	if len(mcpErr.Suggestions) > 0 {
		fmt.Fprintf(w, "  try: %s\n", strings.Join(mcpErr.Suggestions, ", "))
	}
}
