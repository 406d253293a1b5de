package stac

import "fmt"

// SortDirection represents the sort direction.
type SortDirection string

const (
	// SortAsc represents ascending sort order.
	SortAsc SortDirection = "asc"
	// SortDesc represents descending sort order.
	SortDesc SortDirection = "desc"
)

// CompositeSortField maps a STAC sort field to the composite attribute it
// orders by. Composites only carry an anchor instant and a group size.
func CompositeSortField(stacField string) (string, error) {
	switch stacField {
	case "datetime", "properties.datetime":
		return "datetime", nil
	case "composite:count", "properties.composite:count":
		return "composite:count", nil
	default:
		return "", fmt.Errorf("unsupported sort field: %s", stacField)
	}
}
