package remote

import "github.com/robert-malhotra/stac-composite/internal/composite"

// RecordsResponse is returned by GET /collections/{id}/records.
type RecordsResponse struct {
	ID      string             `json:"id"`
	Records []composite.Record `json:"records"`

	// Total is the number of matching records before any limit was applied.
	Total *int `json:"total,omitempty"`
}

// ReduceRequest is the body of POST /reduce/mean.
type ReduceRequest struct {
	Records []composite.Record `json:"records"`
}

// ReduceResponse carries the reduced record.
type ReduceResponse struct {
	Record composite.Record `json:"record"`
}

// AggregateRequest is the body of POST /aggregate.
type AggregateRequest struct {
	Records []composite.Record `json:"records"`
	Field   string             `json:"field"`
}

// AggregateResponse carries one value per record, in timestamp order.
type AggregateResponse struct {
	Field  string    `json:"field"`
	Values []float64 `json:"values"`
}

// ErrorResponse is the error body returned by the collection service.
type ErrorResponse struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}
