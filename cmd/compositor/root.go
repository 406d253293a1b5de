package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/robert-malhotra/stac-composite/internal/backend"
	"github.com/robert-malhotra/stac-composite/internal/composite"
	"github.com/robert-malhotra/stac-composite/internal/translate"
)

// globalOptions are shared by every subcommand.
type globalOptions struct {
	data       string
	collection string
	datetime   string
	window     float64
	property   string
	nodata     string
	workers    int
	verbose    bool
}

func NewRootCommand() *cobra.Command {
	opts := &globalOptions{}

	command := &cobra.Command{
		Use:          "compositor",
		Short:        "Moving-window temporal composites of raster records",
		SilenceUsage: true,
	}

	flags := command.PersistentFlags()
	flags.StringVar(&opts.data, "data", "./data", "Records file or directory of records files")
	flags.StringVar(&opts.collection, "collection", "", "Collection ID; defaults to the only loaded collection")
	flags.StringVar(&opts.datetime, "datetime", "", "Datetime or interval selecting input records, e.g. 2020-01-01/2020-02-01")
	flags.Float64Var(&opts.window, "window", 5, "Window half-width in days")
	flags.StringVar(&opts.property, "property", composite.DefaultMatchingProperty, "Property records are matched on")
	flags.StringVar(&opts.nodata, "nodata", string(composite.Propagate), "NoData policy: propagate or filter")
	flags.IntVar(&opts.workers, "workers", 0, "Concurrent reductions, 0 for GOMAXPROCS")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "Log progress to stderr")

	command.AddCommand(NewSmoothCommand(opts))
	command.AddCommand(NewCoverCommand(opts))
	return command
}

func (o *globalOptions) logger(cmd *cobra.Command) *slog.Logger {
	level := slog.LevelWarn
	if o.verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
}

// loadService loads the records into a memory backend and resolves the
// collection to work on.
func (o *globalOptions) loadService(logger *slog.Logger) (*backend.MemoryBackend, string, error) {
	svc := backend.NewMemoryBackend(logger)

	info, err := os.Stat(o.data)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read %s: %w", o.data, err)
	}
	if info.IsDir() {
		err = svc.LoadDir(o.data)
	} else {
		err = svc.LoadFile(o.data)
	}
	if err != nil {
		return nil, "", err
	}

	if o.collection != "" {
		return svc, o.collection, nil
	}
	ids := svc.IDs()
	if len(ids) != 1 {
		return nil, "", fmt.Errorf("--collection is required when %d collections are loaded", len(ids))
	}
	return svc, ids[0], nil
}

// fetchParams builds fetch parameters from the shared flags.
func (o *globalOptions) fetchParams(collectionID string) (backend.FetchParams, error) {
	params := backend.FetchParams{CollectionID: collectionID}
	if o.datetime != "" {
		start, end, err := translate.ParseDateTimeInterval(o.datetime)
		if err != nil {
			return params, err
		}
		params.Start, params.End = start, end
	}
	return params, nil
}

func (o *globalOptions) compositor(logger *slog.Logger) (*composite.Compositor, composite.Window, error) {
	policy, err := composite.ParseNoDataPolicy(o.nodata)
	if err != nil {
		return nil, composite.Window{}, err
	}
	window := composite.Window{Size: o.window, Unit: composite.Days, Property: o.property}
	if err := window.Validate(); err != nil {
		return nil, composite.Window{}, err
	}
	c := composite.NewCompositor(
		composite.WithReducer(composite.MeanReducer{Policy: policy}),
		composite.WithWorkers(o.workers),
		composite.WithLogger(logger),
	)
	return c, window, nil
}

func closeQuietly(c io.Closer) {
	_ = c.Close()
}
