package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/robert-malhotra/stac-composite/internal/composite"
	"github.com/robert-malhotra/stac-composite/internal/config"
	"github.com/robert-malhotra/stac-composite/internal/cover"
	"github.com/robert-malhotra/stac-composite/internal/translate"
	"github.com/robert-malhotra/stac-composite/pkg/geojson"
)

func NewCoverCommand(global *globalOptions) *cobra.Command {
	var (
		bbox      []float64
		regionWKT string
		maskWKT   string
		format    string
		settings  = *config.MODISSnowCover()
	)

	command := &cobra.Command{
		Use:   "cover",
		Short: "Compute the cover fraction and area series of a region",
		Long: `Smooths the records with the moving window, then sums the transformed
pixel values inside the region for every composite. Defaults follow MODIS
NDSI snow cover.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if format != "table" && format != "json" {
				return fmt.Errorf("unsupported format %q, must be table or json", format)
			}

			region, err := parseRegion(bbox, regionWKT, maskWKT)
			if err != nil {
				return err
			}

			logger := global.logger(cmd)
			svc, collectionID, err := global.loadService(logger)
			if err != nil {
				return err
			}
			params, err := global.fetchParams(collectionID)
			if err != nil {
				return err
			}
			compositor, window, err := global.compositor(logger)
			if err != nil {
				return err
			}

			pipeline := cover.NewPipeline(svc, compositor, logger)
			result, err := pipeline.Run(cmd.Context(), cover.Request{
				CollectionID: collectionID,
				Start:        params.Start,
				End:          params.End,
				Region:       region,
				Window:       window,
				Extractor:    cover.NewExtractor(&settings),
				NoDataValue:  settings.NoDataValue,
			})
			switch {
			case errors.Is(err, composite.ErrEmptyInput):
				// Nothing in range: an empty series.
				result = &cover.Result{
					CollectionID: collectionID,
					Window:       window.Size,
					Timestamps:   []int64{},
					Fraction:     []float64{},
					Area:         []float64{},
					Counts:       []int{},
				}
			case err != nil:
				return err
			}

			if format == "json" {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(result)
			}
			return renderCover(cmd.OutOrStdout(), result)
		},
	}

	flags := command.Flags()
	flags.Float64SliceVar(&bbox, "bbox", nil, "Region bounding box: west,south,east,north")
	flags.StringVar(&regionWKT, "region", "", "Region as WKT, instead of --bbox")
	flags.StringVar(&maskWKT, "mask", "", "WKT geometry removed from the region")
	flags.StringVar(&format, "format", "table", "Output format: table or json")
	flags.Float64Var(&settings.Scale, "scale", settings.Scale, "Scale applied to raw values")
	flags.Float64Var(&settings.Offset, "offset", settings.Offset, "Offset added after scaling")
	flags.Float64Var(&settings.PixelArea, "pixel-area", settings.PixelArea, "Pixel area in square meters")
	flags.Float64Var(&settings.ValidMax, "valid-max", settings.ValidMax, "Raw values above this are skipped, 0 disables")
	return command
}

func parseRegion(bbox []float64, regionWKT, maskWKT string) (cover.Region, error) {
	var region cover.Region
	var err error

	switch {
	case len(bbox) > 0 && regionWKT != "":
		return region, fmt.Errorf("--bbox and --region are mutually exclusive")
	case len(bbox) > 0:
		region.Include, err = translate.BBoxToGeometry(bbox)
	case regionWKT != "":
		region.Include, err = geojson.FromWKT(regionWKT)
	default:
		return region, fmt.Errorf("one of --bbox or --region is required")
	}
	if err != nil {
		return region, fmt.Errorf("invalid region: %w", err)
	}

	if maskWKT != "" {
		if region.Exclude, err = geojson.FromWKT(maskWKT); err != nil {
			return region, fmt.Errorf("invalid mask: %w", err)
		}
	}
	return region, nil
}

func renderCover(w io.Writer, result *cover.Result) error {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"datetime", "count", "fraction", "area (m²)"})
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	table.SetAlignment(tablewriter.ALIGN_RIGHT)

	for i := range result.Fraction {
		table.Append([]string{
			translate.FormatSTACTime(translate.MillisToTime(result.Timestamps[i])),
			strconv.Itoa(result.Counts[i]),
			strconv.FormatFloat(result.Fraction[i], 'f', 4, 64),
			strconv.FormatFloat(result.Area[i], 'f', 1, 64),
		})
	}
	table.Render()

	if len(result.Fraction) == 0 {
		return nil
	}
	fraction, area, err := result.Summaries()
	if err != nil {
		return err
	}

	summary := tablewriter.NewWriter(w)
	summary.SetHeader([]string{"series", "count", "min", "max", "mean", "median", "stddev"})
	summary.SetAutoFormatHeaders(false)
	for _, row := range []struct {
		name string
		s    cover.Summary
	}{{"fraction", fraction}, {"area", area}} {
		summary.Append([]string{
			row.name,
			strconv.Itoa(row.s.Count),
			strconv.FormatFloat(row.s.Min, 'g', 6, 64),
			strconv.FormatFloat(row.s.Max, 'g', 6, 64),
			strconv.FormatFloat(row.s.Mean, 'g', 6, 64),
			strconv.FormatFloat(row.s.Median, 'g', 6, 64),
			strconv.FormatFloat(row.s.StdDev, 'g', 6, 64),
		})
	}
	summary.Render()
	return nil
}
