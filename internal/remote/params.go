package remote

import (
	"net/url"
	"strconv"
	"time"
)

// RecordsParams filters a records request.
type RecordsParams struct {
	// Temporal filters: Start is inclusive, End is exclusive.
	Start *time.Time
	End   *time.Time

	// IntersectsWith is a WKT geometry; records whose footprint misses it
	// are dropped.
	IntersectsWith string

	// Limit caps the number of records. Zero means no limit.
	Limit int
}

// ToQueryString converts RecordsParams to a URL query string
func (p *RecordsParams) ToQueryString() string {
	return p.ToURLValues().Encode()
}

// ToURLValues converts RecordsParams to url.Values
func (p *RecordsParams) ToURLValues() url.Values {
	values := url.Values{}

	if p.Start != nil {
		values.Set("start", formatTime(p.Start))
	}
	if p.End != nil {
		values.Set("end", formatTime(p.End))
	}

	if p.IntersectsWith != "" {
		values.Set("intersectsWith", p.IntersectsWith)
	}

	if p.Limit > 0 {
		values.Set("limit", strconv.Itoa(p.Limit))
	}

	return values
}

func formatTime(t *time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
