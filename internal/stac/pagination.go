package stac

import (
	"net/url"
	"strconv"
)

// PaginationInfo holds information needed to generate pagination links
type PaginationInfo struct {
	BaseURL       string
	CurrentPage   int
	Limit         int
	TotalCount    *int // nil if unknown
	ReturnedCount int
	QueryParams   url.Values // Original query parameters
}

// PageBounds returns the [start, end) slice bounds of a 1-based page over
// total elements.
func PageBounds(page, limit, total int) (start, end int) {
	if page < 1 {
		page = 1
	}
	start = (page - 1) * limit
	if start > total {
		start = total
	}
	end = start + limit
	if end > total {
		end = total
	}
	return start, end
}

// BuildPaginationLinks generates next and prev links based on pagination info
func BuildPaginationLinks(info PaginationInfo) []*Link {
	links := make([]*Link, 0, 2)

	if info.CurrentPage > 1 {
		links = append(links, &Link{
			Rel:  "prev",
			Href: buildPageURL(info.BaseURL, info.QueryParams, info.CurrentPage-1, info.Limit),
			Type: "application/geo+json",
		})
	}

	var hasNextPage bool
	if info.TotalCount != nil {
		totalPages := (*info.TotalCount + info.Limit - 1) / info.Limit
		hasNextPage = info.CurrentPage < totalPages
	} else {
		hasNextPage = info.ReturnedCount >= info.Limit
	}

	if hasNextPage {
		links = append(links, &Link{
			Rel:  "next",
			Href: buildPageURL(info.BaseURL, info.QueryParams, info.CurrentPage+1, info.Limit),
			Type: "application/geo+json",
		})
	}

	return links
}

func buildPageURL(baseURL string, params url.Values, page, limit int) string {
	newParams := url.Values{}
	for key, values := range params {
		for _, value := range values {
			newParams.Add(key, value)
		}
	}

	newParams.Set("page", strconv.Itoa(page))
	if limit > 0 {
		newParams.Set("limit", strconv.Itoa(limit))
	}

	return baseURL + "?" + newParams.Encode()
}
