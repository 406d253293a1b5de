package composite

import (
	"context"
	"log/slog"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"
)

// Compositor runs the moving-window pipeline: match every record to its
// neighbor group, then reduce each group into a composite.
type Compositor struct {
	matcher WindowMatcher
	reducer GroupReducer
	workers int
	logger  *slog.Logger
}

// Option configures a Compositor.
type Option func(*Compositor)

// WithMatcher sets the window matcher. Default: SweepMatcher.
func WithMatcher(m WindowMatcher) Option {
	return func(c *Compositor) {
		c.matcher = m
	}
}

// WithReducer sets the group reducer. Default: MeanReducer with Propagate.
func WithReducer(r GroupReducer) Option {
	return func(c *Compositor) {
		c.reducer = r
	}
}

// WithWorkers bounds the number of concurrent reductions.
// Values below 1 fall back to GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(c *Compositor) {
		c.workers = n
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Compositor) {
		c.logger = logger
	}
}

// NewCompositor creates a compositor with the given options.
func NewCompositor(opts ...Option) *Compositor {
	c := &Compositor{
		matcher: SweepMatcher{},
		reducer: MeanReducer{Policy: Propagate},
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.workers < 1 {
		c.workers = runtime.GOMAXPROCS(0)
	}
	return c
}

// Match validates the collection and returns the neighbor group of every record.
func (c *Compositor) Match(coll *Collection, w Window) ([]NeighborGroup, error) {
	if err := coll.Validate(); err != nil {
		return nil, err
	}
	return c.matcher.Match(coll.Records, w)
}

// MovingAverage replaces every record with the mean of its neighbor group.
// The output has the input's length, order and timestamps. Reductions run
// concurrently; the first error stops the run and is returned unchanged.
func (c *Compositor) MovingAverage(ctx context.Context, coll *Collection, w Window) (*Collection, error) {
	start := time.Now()

	groups, err := c.Match(coll, w)
	if err != nil {
		return nil, err
	}

	out := make([]Record, len(groups))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.workers)
	for _, group := range groups {
		group := group
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			members := make([]Record, len(group.Members))
			for i, idx := range group.Members {
				members[i] = coll.Records[idx]
			}
			rec, err := c.reducer.Reduce(gctx, coll.Records[group.Anchor], members)
			if err != nil {
				return err
			}
			out[group.Anchor] = rec.WithProperty(PropWindow, w.Size)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	c.logger.Debug("moving average computed",
		slog.String("collection", coll.ID),
		slog.Int("records", len(out)),
		slog.Float64("window", w.Size),
		slog.Duration("duration", time.Since(start)),
	)

	return &Collection{ID: coll.ID, Records: out}, nil
}
