// Script to compare local and remote moving-window composites of a collection
package main

import (
	"context"
	"fmt"
	"math"
	"os"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	flag "github.com/spf13/pflag"

	"github.com/robert-malhotra/stac-composite/internal/backend"
	"github.com/robert-malhotra/stac-composite/internal/composite"
	"github.com/robert-malhotra/stac-composite/internal/grid"
	"github.com/robert-malhotra/stac-composite/internal/remote"
	"github.com/robert-malhotra/stac-composite/internal/translate"
)

func main() {
	remoteURL := flag.String("remote", "http://localhost:9000", "Remote collection service URL")
	collection := flag.String("collection", "MODIS/006/MOD10A1", "Collection ID")
	datetime := flag.String("datetime", "", "Datetime interval selecting the records")
	window := flag.Float64("window", 5, "Window half-width in days")
	tolerance := flag.Float64("tolerance", 1e-6, "Largest accepted pixel difference")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	client := remote.NewClient(*remoteURL, 60*time.Second)
	if key := os.Getenv("REMOTE_API_KEY"); key != "" {
		client = client.WithAPIKey(key)
	}
	defer client.Close()
	svc := backend.NewRemoteBackend(client, nil)

	params := backend.FetchParams{CollectionID: *collection}
	if *datetime != "" {
		start, end, err := translate.ParseDateTimeInterval(*datetime)
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid datetime: %v\n", err)
			os.Exit(2)
		}
		params.Start, params.End = start, end
	}

	fmt.Printf("=== Reducer Comparison: %s (window %g days) ===\n", *collection, *window)

	coll, err := svc.Fetch(ctx, params)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fetch failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Fetched %d records\n\n", coll.Len())

	w := composite.Window{Size: *window, Unit: composite.Days}

	fmt.Println("Compositing locally...")
	local, err := composite.NewCompositor().MovingAverage(ctx, coll, w)
	if err != nil {
		fmt.Fprintf(os.Stderr, "local composite failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Compositing on the remote service...")
	remoteComposites, err := composite.NewCompositor(
		composite.WithReducer(backend.RemoteReducer{Service: svc}),
	).MovingAverage(ctx, coll, w)
	if err != nil {
		fmt.Fprintf(os.Stderr, "remote composite failed: %v\n", err)
		os.Exit(1)
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"datetime", "count", "max diff", "nodata mismatches"})
	table.SetAutoFormatHeaders(false)

	mismatched := 0
	for i := range local.Records {
		maxDiff, nodata := compareGrids(local.Records[i].Grid, remoteComposites.Records[i].Grid)
		if maxDiff > *tolerance || nodata > 0 {
			mismatched++
		}
		count, _ := local.Records[i].Value(composite.PropCount)
		table.Append([]string{
			translate.FormatSTACTime(translate.MillisToTime(local.Records[i].Timestamp)),
			strconv.Itoa(int(count)),
			strconv.FormatFloat(maxDiff, 'g', 4, 64),
			strconv.Itoa(nodata),
		})
	}
	table.Render()

	fmt.Println("\n=== Comparison ===")
	if mismatched == 0 {
		fmt.Println("✓ Composites match!")
		return
	}
	fmt.Printf("✗ %d of %d composites differ\n", mismatched, local.Len())
	fmt.Println("\nNote: Differences may occur due to:")
	fmt.Println("  - The remote service applying its own nodata policy")
	fmt.Println("  - Float32 storage on the remote side")
	os.Exit(1)
}

// compareGrids returns the largest absolute difference between valid pixels
// and the number of pixels that are nodata in only one grid.
func compareGrids(a, b *grid.Grid) (float64, int) {
	if !a.SameShape(b) {
		return math.Inf(1), a.Len()
	}
	maxDiff, nodata := 0.0, 0
	for r := 0; r < a.Rows; r++ {
		for c := 0; c < a.Cols; c++ {
			va, vb := a.At(r, c), b.At(r, c)
			if grid.IsNoData(va) || grid.IsNoData(vb) {
				if grid.IsNoData(va) != grid.IsNoData(vb) {
					nodata++
				}
				continue
			}
			maxDiff = math.Max(maxDiff, math.Abs(va-vb))
		}
	}
	return maxDiff, nodata
}
