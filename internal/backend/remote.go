package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/robert-malhotra/stac-composite/internal/composite"
	"github.com/robert-malhotra/stac-composite/internal/remote"
	"github.com/robert-malhotra/stac-composite/pkg/geojson"
)

// RemoteBackend implements CollectionService over a remote collection
// service. Every failure it returns wraps composite.ErrBackendFailure.
type RemoteBackend struct {
	client *remote.Client
	logger *slog.Logger
}

var _ CollectionService = (*RemoteBackend)(nil)

// NewRemoteBackend creates a new remote backend.
func NewRemoteBackend(client *remote.Client, logger *slog.Logger) *RemoteBackend {
	if logger == nil {
		logger = slog.Default()
	}
	return &RemoteBackend{
		client: client,
		logger: logger,
	}
}

// Name returns the backend name.
func (b *RemoteBackend) Name() string {
	return "remote"
}

// Fetch implements CollectionService.
func (b *RemoteBackend) Fetch(ctx context.Context, params FetchParams) (*composite.Collection, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	rp := remote.RecordsParams{Start: params.Start, End: params.End}
	if params.Region != nil {
		wkt, err := geojson.ToWKT(params.Region)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid region: %v", composite.ErrInvalidConfiguration, err)
		}
		rp.IntersectsWith = wkt
	}

	resp, err := b.client.Records(ctx, params.CollectionID, rp)
	if err != nil {
		if errors.Is(err, remote.ErrNotFound) {
			return nil, fmt.Errorf("%w: %w: %s", composite.ErrBackendFailure, ErrCollectionNotFound, params.CollectionID)
		}
		return nil, b.wrap(ctx, "fetch", err)
	}

	id := resp.ID
	if id == "" {
		id = params.CollectionID
	}
	return &composite.Collection{ID: id, Records: resp.Records}, nil
}

// ReduceMean implements CollectionService.
func (b *RemoteBackend) ReduceMean(ctx context.Context, records []composite.Record) (composite.Record, error) {
	if len(records) == 0 {
		return composite.Record{}, composite.ErrEmptyInput
	}

	rec, err := b.client.ReduceMean(ctx, records)
	if err != nil {
		return composite.Record{}, b.wrap(ctx, "reduce mean", err)
	}
	return *rec, nil
}

// AggregateScalar implements CollectionService.
func (b *RemoteBackend) AggregateScalar(ctx context.Context, records []composite.Record, field string) ([]float64, error) {
	if field == "" {
		return nil, fmt.Errorf("%w: aggregate field is required", composite.ErrInvalidConfiguration)
	}

	values, err := b.client.Aggregate(ctx, records, field)
	if err != nil {
		return nil, b.wrap(ctx, "aggregate", err)
	}
	return values, nil
}

// wrap marks err as a backend failure. A 400 answer also counts as a
// configuration error, since the service rejected our parameters.
func (b *RemoteBackend) wrap(ctx context.Context, op string, err error) error {
	b.logger.WarnContext(ctx, "remote collection service call failed",
		slog.String("op", op),
		slog.String("error", err.Error()),
	)

	var statusErr *remote.StatusError
	if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusBadRequest {
		return fmt.Errorf("%w: %w: %s: %w", composite.ErrBackendFailure, composite.ErrInvalidConfiguration, op, err)
	}
	return fmt.Errorf("%w: %s: %w", composite.ErrBackendFailure, op, err)
}

// RemoteReducer is a composite.GroupReducer that delegates each group to a
// collection service. Service errors are returned unchanged.
type RemoteReducer struct {
	Service CollectionService
}

var _ composite.GroupReducer = RemoteReducer{}

// Reduce implements composite.GroupReducer. The result keeps the anchor's
// timestamp and properties whatever the service returns.
func (r RemoteReducer) Reduce(ctx context.Context, anchor composite.Record, members []composite.Record) (composite.Record, error) {
	if len(members) == 0 {
		return composite.Record{}, fmt.Errorf("%w: neighbor group is empty", composite.ErrInvalidConfiguration)
	}

	rec, err := r.Service.ReduceMean(ctx, members)
	if err != nil {
		return composite.Record{}, err
	}

	return composite.Record{
		Timestamp:  anchor.Timestamp,
		Grid:       rec.Grid,
		Properties: anchor.Properties,
	}.WithProperty(composite.PropCount, len(members)), nil
}
