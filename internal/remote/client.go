// Package remote is an HTTP client for a remote collection service that
// stores time-stamped grids and evaluates reductions next to the data.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/robert-malhotra/stac-composite/internal/composite"
)

// ErrNotFound is returned when the service answers 404.
var ErrNotFound = errors.New("not found")

// StatusError is a non-2xx answer from the collection service.
type StatusError struct {
	StatusCode  int
	Code        string
	Description string
}

func (e *StatusError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("collection service returned status %d (%s): %s", e.StatusCode, e.Code, e.Description)
	}
	return fmt.Sprintf("collection service returned status %d: %s", e.StatusCode, e.Description)
}

// Unwrap maps 404 answers to ErrNotFound.
func (e *StatusError) Unwrap() error {
	if e.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	return nil
}

// Client handles communication with the remote collection service
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a new collection service client
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 100,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		logger: slog.Default(),
	}
}

// WithLogger sets a custom logger for the client
func (c *Client) WithLogger(logger *slog.Logger) *Client {
	c.logger = logger
	return c
}

// WithAPIKey sends key as a bearer token on every request.
func (c *Client) WithAPIKey(key string) *Client {
	c.apiKey = key
	return c
}

// Close releases idle connections held by the client.
func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}

// Records fetches the records of a collection.
func (c *Client) Records(ctx context.Context, collectionID string, params RecordsParams) (*RecordsResponse, error) {
	reqURL, err := c.buildURL(params.ToQueryString(), "collections", collectionID, "records")
	if err != nil {
		return nil, fmt.Errorf("failed to build records URL: %w", err)
	}

	c.logger.DebugContext(ctx, "fetching records",
		slog.String("collection", collectionID),
		slog.String("url", reqURL),
	)

	var result RecordsResponse
	if err := c.do(ctx, http.MethodGet, reqURL, nil, &result); err != nil {
		return nil, err
	}

	c.logger.DebugContext(ctx, "records fetched",
		slog.String("collection", collectionID),
		slog.Int("record_count", len(result.Records)),
	)

	return &result, nil
}

// ReduceMean asks the service for the pixel-wise mean of records.
func (c *Client) ReduceMean(ctx context.Context, records []composite.Record) (*composite.Record, error) {
	reqURL, err := c.buildURL("", "reduce", "mean")
	if err != nil {
		return nil, fmt.Errorf("failed to build reduce URL: %w", err)
	}

	var result ReduceResponse
	if err := c.do(ctx, http.MethodPost, reqURL, ReduceRequest{Records: records}, &result); err != nil {
		return nil, err
	}
	if result.Record.Grid == nil {
		return nil, fmt.Errorf("collection service returned a record without a grid")
	}

	return &result.Record, nil
}

// Aggregate asks the service for the named property of every record.
func (c *Client) Aggregate(ctx context.Context, records []composite.Record, field string) ([]float64, error) {
	reqURL, err := c.buildURL("", "aggregate")
	if err != nil {
		return nil, fmt.Errorf("failed to build aggregate URL: %w", err)
	}

	var result AggregateResponse
	if err := c.do(ctx, http.MethodPost, reqURL, AggregateRequest{Records: records, Field: field}, &result); err != nil {
		return nil, err
	}
	if len(result.Values) != len(records) {
		return nil, fmt.Errorf("collection service returned %d values for %d records", len(result.Values), len(records))
	}

	return result.Values, nil
}

func (c *Client) do(ctx context.Context, method, reqURL string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "stac-composite/1.0")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.ErrorContext(ctx, "collection service request failed",
			slog.String("error", err.Error()),
			slog.String("url", reqURL),
		)
		return fmt.Errorf("collection service request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		c.logger.ErrorContext(ctx, "collection service returned non-200 status",
			slog.Int("status_code", resp.StatusCode),
			slog.String("response_body", string(raw)),
		)
		statusErr := &StatusError{StatusCode: resp.StatusCode, Description: string(raw)}
		var apiErr ErrorResponse
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Code != "" {
			statusErr.Code = apiErr.Code
			statusErr.Description = apiErr.Description
		}
		return statusErr
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		c.logger.ErrorContext(ctx, "failed to decode collection service response",
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("failed to decode collection service response: %w", err)
	}

	return nil
}

// buildURL appends escaped path segments to the base URL. Collection IDs
// may contain slashes, which must survive as %2F.
func (c *Client) buildURL(rawQuery string, segments ...string) (string, error) {
	base, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid base URL: %w", err)
	}

	path := strings.TrimRight(base.Path, "/")
	rawPath := strings.TrimRight(base.EscapedPath(), "/")
	for _, seg := range segments {
		path += "/" + seg
		rawPath += "/" + url.PathEscape(seg)
	}
	base.Path = path
	base.RawPath = rawPath
	base.RawQuery = rawQuery

	return base.String(), nil
}
