package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// CollectionConfig represents a STAC collection served by the composite API.
// It names the backing dataset in the collection service and carries the
// radiometric settings used when extracting region statistics. This is
// typically loaded from JSON files in the collections directory.
type CollectionConfig struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	// Dataset is the collection ID in the collection service. Defaults to ID.
	Dataset string `json:"dataset,omitempty"`
	// Band names the raster band carried by the records.
	Band       string                 `json:"band,omitempty"`
	Cover      *CoverSettings         `json:"cover,omitempty"`
	License    string                 `json:"license"`
	Keywords   []string               `json:"keywords,omitempty"`
	Providers  []Provider             `json:"providers,omitempty"`
	Extent     Extent                 `json:"extent"`
	Summaries  map[string]interface{} `json:"summaries,omitempty"`
	Extensions []string               `json:"stac_extensions,omitempty"`
}

// CoverSettings configures region statistic extraction for a collection.
type CoverSettings struct {
	// Scale and Offset map raw samples to physical values: v*Scale + Offset.
	Scale  float64 `json:"scale"`
	Offset float64 `json:"offset"`
	// PixelArea is the area of one pixel in square meters.
	PixelArea float64 `json:"pixel_area"`
	// ValidMax drops raw samples above it. Zero disables the check.
	ValidMax float64 `json:"valid_max,omitempty"`
	// NoDataValue is a raw sentinel converted to NoData on fetch.
	NoDataValue *float64 `json:"nodata_value,omitempty"`
}

// MODISSnowCover returns the cover settings for MODIS NDSI snow cover:
// NDSI*1.45 - 1.00 scaled to a fraction, 500 m pixels, samples above 100 masked.
func MODISSnowCover() *CoverSettings {
	return &CoverSettings{
		Scale:     0.0145,
		Offset:    -0.01,
		PixelArea: 500 * 500,
		ValidMax:  100,
	}
}

// Provider represents a data provider in a STAC collection.
type Provider struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Roles       []string `json:"roles,omitempty"`
	URL         string   `json:"url,omitempty"`
}

// Extent defines the spatial and temporal extent of a collection.
type Extent struct {
	Spatial  SpatialExtent  `json:"spatial"`
	Temporal TemporalExtent `json:"temporal"`
}

// SpatialExtent defines the bounding boxes for a collection.
type SpatialExtent struct {
	BBox [][]float64 `json:"bbox"`
}

// TemporalExtent defines the time intervals for a collection.
type TemporalExtent struct {
	Interval [][]interface{} `json:"interval"`
}

// DatasetID returns the collection service ID backing this collection.
func (c *CollectionConfig) DatasetID() string {
	if c.Dataset != "" {
		return c.Dataset
	}
	return c.ID
}

// CollectionRegistry holds all loaded collection configurations indexed by ID.
type CollectionRegistry struct {
	collections map[string]*CollectionConfig
}

// NewCollectionRegistry creates a new empty collection registry.
func NewCollectionRegistry() *CollectionRegistry {
	return &CollectionRegistry{
		collections: make(map[string]*CollectionConfig),
	}
}

// LoadCollections loads collection definitions from JSON files in the specified directory.
// Only files with a .json extension are processed.
func LoadCollections(collectionsDir string) (*CollectionRegistry, error) {
	registry := NewCollectionRegistry()

	info, err := os.Stat(collectionsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to access collections directory %q: %w", collectionsDir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("collections path %q is not a directory", collectionsDir)
	}

	entries, err := os.ReadDir(collectionsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read collections directory %q: %w", collectionsDir, err)
	}

	loadedCount := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		filename := entry.Name()
		if !strings.HasSuffix(strings.ToLower(filename), ".json") {
			continue
		}

		filePath := filepath.Join(collectionsDir, filename)
		collection, err := loadCollectionFile(filePath)
		if err != nil {
			return nil, fmt.Errorf("failed to load collection from %q: %w", filePath, err)
		}

		if err := registry.Add(collection); err != nil {
			return nil, fmt.Errorf("failed to add collection from %q: %w", filePath, err)
		}

		loadedCount++
	}

	if loadedCount == 0 {
		return nil, fmt.Errorf("no collection files found in %q", collectionsDir)
	}

	return registry, nil
}

func loadCollectionFile(filePath string) (*CollectionConfig, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var collection CollectionConfig
	if err := json.Unmarshal(data, &collection); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}

	if err := validateCollection(&collection); err != nil {
		return nil, fmt.Errorf("invalid collection configuration: %w", err)
	}

	return &collection, nil
}

// validateCollection checks that a collection configuration is valid.
func validateCollection(c *CollectionConfig) error {
	if c.ID == "" {
		return fmt.Errorf("collection ID is required")
	}

	if c.Title == "" {
		return fmt.Errorf("collection title is required")
	}

	if c.Description == "" {
		return fmt.Errorf("collection description is required")
	}

	if c.License == "" {
		return fmt.Errorf("collection license is required")
	}

	if c.Cover != nil {
		if c.Cover.Scale == 0 {
			return fmt.Errorf("cover scale must be non-zero")
		}
		if c.Cover.PixelArea <= 0 {
			return fmt.Errorf("cover pixel area must be positive, got %v", c.Cover.PixelArea)
		}
		if c.Cover.ValidMax < 0 {
			return fmt.Errorf("cover valid max must be non-negative, got %v", c.Cover.ValidMax)
		}
	}

	if len(c.Extent.Spatial.BBox) == 0 {
		return fmt.Errorf("collection must have at least one spatial bbox")
	}

	for i, bbox := range c.Extent.Spatial.BBox {
		if len(bbox) != 4 && len(bbox) != 6 {
			return fmt.Errorf("bbox[%d] must have 4 or 6 values, got %d", i, len(bbox))
		}
	}

	if len(c.Extent.Temporal.Interval) == 0 {
		return fmt.Errorf("collection must have at least one temporal interval")
	}

	for i, interval := range c.Extent.Temporal.Interval {
		if len(interval) != 2 {
			return fmt.Errorf("temporal interval[%d] must have exactly 2 values, got %d", i, len(interval))
		}
	}

	return nil
}

// Add registers a collection in the registry.
// Returns an error if a collection with the same ID already exists.
func (r *CollectionRegistry) Add(collection *CollectionConfig) error {
	if collection == nil {
		return fmt.Errorf("cannot add nil collection")
	}

	if _, exists := r.collections[collection.ID]; exists {
		return fmt.Errorf("collection with ID %q already exists", collection.ID)
	}

	r.collections[collection.ID] = collection
	return nil
}

// Get retrieves a collection by ID.
// Returns nil if the collection does not exist.
func (r *CollectionRegistry) Get(id string) *CollectionConfig {
	return r.collections[id]
}

// Has checks if a collection with the given ID exists in the registry.
func (r *CollectionRegistry) Has(id string) bool {
	_, exists := r.collections[id]
	return exists
}

// All returns all collections in the registry, sorted by ID.
func (r *CollectionRegistry) All() []*CollectionConfig {
	collections := make([]*CollectionConfig, 0, len(r.collections))
	for _, collection := range r.collections {
		collections = append(collections, collection)
	}
	sort.Slice(collections, func(i, j int) bool {
		return collections[i].ID < collections[j].ID
	})
	return collections
}

// IDs returns all collection IDs in the registry, sorted.
func (r *CollectionRegistry) IDs() []string {
	ids := make([]string, 0, len(r.collections))
	for id := range r.collections {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Count returns the number of collections in the registry.
func (r *CollectionRegistry) Count() int {
	return len(r.collections)
}

// GetCoverSettings returns the cover settings for the given collection ID.
// Returns nil if the collection does not exist or has no cover settings.
func (r *CollectionRegistry) GetCoverSettings(collectionID string) *CoverSettings {
	collection := r.Get(collectionID)
	if collection == nil {
		return nil
	}
	return collection.Cover
}

// FindByDataset returns all collections backed by the specified dataset.
func (r *CollectionRegistry) FindByDataset(dataset string) []*CollectionConfig {
	var matches []*CollectionConfig
	for _, collection := range r.All() {
		if collection.DatasetID() == dataset {
			matches = append(matches, collection)
		}
	}
	return matches
}
