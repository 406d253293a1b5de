package translate

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/planetlabs/go-stac"

	"github.com/robert-malhotra/stac-composite/internal/composite"
	intstac "github.com/robert-malhotra/stac-composite/internal/stac"
	"github.com/robert-malhotra/stac-composite/pkg/geojson"
)

// Property keys set on composite items besides composite:count and
// composite:window.
const (
	PropMatching = "composite:property"
	PropNoData   = "composite:nodata"
	PropMin      = "composite:min"
	PropMax      = "composite:max"
	PropMean     = "composite:mean"
	PropGrid     = "composite:grid"
)

// reservedProperties are set by the translator and never copied from records.
var reservedProperties = map[string]bool{
	"datetime":                        true,
	composite.DefaultMatchingProperty: true,
	PropGrid:                          true,
}

// ItemOptions controls how composite records are rendered.
type ItemOptions struct {
	CollectionID string
	BaseURL      string
	StacVersion  string

	Property string
	NoData   composite.NoDataPolicy

	// IncludeGrid inlines the composite grid in the item properties.
	IncludeGrid bool
}

// CompositeItemID returns the item ID of the seq-th composite of a collection.
func CompositeItemID(collectionID string, timestamp int64, seq int) string {
	return fmt.Sprintf("%s_%s_%d", collectionID, MillisToTime(timestamp).Format("20060102T150405Z"), seq)
}

// TranslateCompositeToItem converts a composite record to a STAC Item.
// seq is the record's position in the full composite collection.
func TranslateCompositeToItem(rec composite.Record, seq int, opts ItemOptions) (*stac.Item, error) {
	if rec.Grid == nil {
		return nil, fmt.Errorf("composite record %d has no grid", seq)
	}

	item := intstac.NewItem(CompositeItemID(opts.CollectionID, rec.Timestamp, seq), opts.CollectionID, opts.StacVersion)

	// Footprint of the grid
	bbox := rec.Grid.Bounds()
	geom, err := geojson.NewPolygonFromBBox(bbox)
	if err != nil {
		return nil, fmt.Errorf("failed to build footprint: %w", err)
	}
	item.Geometry = geom
	item.Bbox = bbox

	// Anchor properties first so translator-owned keys win.
	for k, v := range rec.Properties {
		if reservedProperties[k] {
			continue
		}
		item.Properties[k] = v
	}

	item.Properties["datetime"] = FormatSTACTime(MillisToTime(rec.Timestamp))

	property := opts.Property
	if property == "" {
		property = composite.DefaultMatchingProperty
	}
	item.Properties[PropMatching] = property
	if opts.NoData != "" {
		item.Properties[PropNoData] = string(opts.NoData)
	}

	if lo, hi, mean, ok := rec.Grid.Stats(); ok {
		item.Properties[PropMin] = lo
		item.Properties[PropMax] = hi
		item.Properties[PropMean] = mean
	}

	// Projection extension properties
	item.Properties["proj:shape"] = []int{rec.Grid.Rows, rec.Grid.Cols}
	item.Properties["proj:transform"] = rec.Grid.Transform[:]
	if epsg, ok := parseEPSG(rec.Grid.CRS); ok {
		item.Properties["proj:epsg"] = epsg
	}

	if opts.IncludeGrid {
		item.Properties[PropGrid] = rec.Grid
	}

	addCompositeLinks(item, opts.CollectionID, opts.BaseURL)

	return item, nil
}

// parseEPSG extracts the code from an "EPSG:4326" style CRS.
func parseEPSG(crs string) (int, bool) {
	code, ok := strings.CutPrefix(strings.ToUpper(strings.TrimSpace(crs)), "EPSG:")
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(code)
	if err != nil {
		return 0, false
	}
	return n, true
}

// addCompositeLinks adds parent, collection and root links to the item.
// Composites are computed on request, so there is no self link.
func addCompositeLinks(item *stac.Item, collectionID, baseURL string) {
	collectionURL := fmt.Sprintf("%s/collections/%s", baseURL, collectionID)

	item.Links = append(item.Links,
		&stac.Link{
			Rel:  "parent",
			Href: collectionURL,
			Type: "application/json",
		},
		&stac.Link{
			Rel:  "collection",
			Href: collectionURL,
			Type: "application/json",
		},
		&stac.Link{
			Rel:  "root",
			Href: baseURL + "/",
			Type: "application/json",
		},
	)
}
