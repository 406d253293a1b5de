package translate

import (
	"fmt"

	"github.com/planetlabs/go-stac"

	"github.com/robert-malhotra/stac-composite/internal/config"
	intstac "github.com/robert-malhotra/stac-composite/internal/stac"
)

// TranslateCollection converts a CollectionConfig to a STAC Collection with
// links to its composites and, when enabled, its cover series.
func TranslateCollection(cfg *config.CollectionConfig, baseURL, stacVersion string, withCover bool) *stac.Collection {
	collection := intstac.NewCollection(cfg.ID, cfg.Title, cfg.Description, stacVersion)

	collection.License = cfg.License
	collection.Keywords = cfg.Keywords

	if len(cfg.Providers) > 0 {
		collection.Providers = make([]*stac.Provider, len(cfg.Providers))
		for i, p := range cfg.Providers {
			collection.Providers[i] = &stac.Provider{
				Name:        p.Name,
				Description: p.Description,
				Roles:       p.Roles,
				Url:         p.URL,
			}
		}
	}

	collection.Extent = &stac.Extent{
		Spatial: &stac.SpatialExtent{
			Bbox: cfg.Extent.Spatial.BBox,
		},
		Temporal: &stac.TemporalExtent{
			Interval: cfg.Extent.Temporal.Interval,
		},
	}

	for k, v := range cfg.Summaries {
		collection.Summaries[k] = v
	}
	if cfg.Band != "" {
		collection.Summaries["composite:band"] = []string{cfg.Band}
	}

	collectionURL := fmt.Sprintf("%s/collections/%s", baseURL, cfg.ID)
	collection.Links = append(collection.Links,
		&stac.Link{
			Rel:  "self",
			Href: collectionURL,
			Type: "application/json",
		},
		&stac.Link{
			Rel:  "root",
			Href: baseURL + "/",
			Type: "application/json",
		},
		&stac.Link{
			Rel:  "parent",
			Href: baseURL + "/",
			Type: "application/json",
		},
		&stac.Link{
			Rel:   "items",
			Href:  collectionURL + "/composites",
			Type:  "application/geo+json",
			Title: "Moving-window composites",
		},
	)

	if withCover && cfg.Cover != nil {
		collection.Links = append(collection.Links, &stac.Link{
			Rel:   "cover",
			Href:  collectionURL + "/cover",
			Type:  "application/json",
			Title: "Cover fraction and area series",
		})
	}

	return collection
}
