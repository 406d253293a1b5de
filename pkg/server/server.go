// Package server provides a public API for embedding the composite STAC API.
package server

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/robert-malhotra/stac-composite/internal/api"
	"github.com/robert-malhotra/stac-composite/internal/backend"
	"github.com/robert-malhotra/stac-composite/internal/config"
	"github.com/robert-malhotra/stac-composite/internal/metrics"
	"github.com/robert-malhotra/stac-composite/internal/remote"
	"github.com/robert-malhotra/stac-composite/internal/translate"
)

// BackendType specifies which collection service to use.
type BackendType string

const (
	// BackendMemory serves collections loaded from local JSON files.
	BackendMemory BackendType = "memory"
	// BackendRemote delegates fetches and reductions to an HTTP collection service.
	BackendRemote BackendType = "remote"
)

// Options configures the composite server.
type Options struct {
	// BaseURL is the public-facing URL for self-referential links (required).
	// Example: "https://api.example.com/composite" or "http://localhost:8080"
	BaseURL string

	// Backend specifies the collection service.
	// Default: BackendMemory
	Backend BackendType

	// DataDir holds the memory backend's records files.
	// Default: "./data"
	DataDir string

	// RemoteBaseURL is the remote collection service URL.
	// Default: "http://localhost:9000"
	RemoteBaseURL string

	// RemoteAPIKey is sent as a bearer token to the remote service.
	RemoteAPIKey string

	// Timeout is the remote request timeout.
	// Default: 60s
	Timeout time.Duration

	// Title is the STAC API title.
	// Default: "Composite STAC API"
	Title string

	// Description is the STAC API description.
	Description string

	// DefaultWindowDays is the window half-width used when a request has none.
	// Default: 5
	DefaultWindowDays float64

	// MaxWindowDays caps requested windows.
	// Default: 365
	MaxWindowDays float64

	// NoDataPolicy is "propagate" or "filter".
	// Default: "propagate"
	NoDataPolicy string

	// RemoteReducer computes group means on the collection service.
	RemoteReducer bool

	// Workers bounds concurrent reductions. Default: GOMAXPROCS
	Workers int

	// CacheSize is the number of cached fetch results; negative disables caching.
	// Default: 128
	CacheSize int

	// DefaultLimit is the default number of composites per page.
	// Default: 100
	DefaultLimit int

	// MaxLimit is the maximum number of composites per page.
	// Default: 1000
	MaxLimit int

	// DisableCover turns off the /cover endpoints.
	DisableCover bool

	// EnableMetrics serves Prometheus metrics on /metrics.
	EnableMetrics bool

	// CollectionsDir is the path to collection definition JSON files.
	// Default: "" (empty registry)
	CollectionsDir string

	// Logger is the slog logger to use.
	// Default: slog.Default()
	Logger *slog.Logger
}

// Server is a composite STAC server that can be embedded in another application.
type Server struct {
	router  chi.Router
	service backend.CollectionService
	metrics *metrics.Metrics
	closers []func()
}

// New creates a composite server with the given options.
func New(opts Options) (*Server, error) {
	if opts.Backend == "" {
		opts.Backend = BackendMemory
	}
	if opts.DataDir == "" {
		opts.DataDir = "./data"
	}
	if opts.RemoteBaseURL == "" {
		opts.RemoteBaseURL = "http://localhost:9000"
	}
	if opts.Timeout == 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.Title == "" {
		opts.Title = "Composite STAC API"
	}
	if opts.Description == "" {
		opts.Description = "Moving-window temporal composites of raster collections"
	}
	if opts.DefaultWindowDays == 0 {
		opts.DefaultWindowDays = 5
	}
	if opts.MaxWindowDays == 0 {
		opts.MaxWindowDays = 365
	}
	if opts.NoDataPolicy == "" {
		opts.NoDataPolicy = "propagate"
	}
	switch {
	case opts.CacheSize == 0:
		opts.CacheSize = 128
	case opts.CacheSize < 0:
		opts.CacheSize = 0
	}
	if opts.DefaultLimit == 0 {
		opts.DefaultLimit = 100
	}
	if opts.MaxLimit == 0 {
		opts.MaxLimit = 1000
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	reducer := "local"
	if opts.RemoteReducer {
		reducer = "remote"
	}

	cfg := &config.Config{
		Backend: config.BackendConfig{Type: string(opts.Backend)},
		Memory:  config.MemoryConfig{DataDir: opts.DataDir},
		Remote: config.RemoteConfig{
			BaseURL: opts.RemoteBaseURL,
			Timeout: opts.Timeout,
			APIKey:  opts.RemoteAPIKey,
		},
		Composite: config.CompositeConfig{
			DefaultWindowDays: opts.DefaultWindowDays,
			MaxWindowDays:     opts.MaxWindowDays,
			MatchingProperty:  "system:time_start",
			NoDataPolicy:      opts.NoDataPolicy,
			Reducer:           reducer,
			Workers:           opts.Workers,
		},
		Cache:       config.CacheConfig{Size: opts.CacheSize},
		Collections: config.CollectionsConfig{Dir: opts.CollectionsDir},
		STAC: config.STACConfig{
			Version:     "1.0.0",
			BaseURL:     opts.BaseURL,
			Title:       opts.Title,
			Description: opts.Description,
		},
		Features: config.FeatureConfig{
			EnableCover:   !opts.DisableCover,
			EnableMetrics: opts.EnableMetrics,
			DefaultLimit:  opts.DefaultLimit,
			MaxLimit:      opts.MaxLimit,
		},
	}

	if cfg.STAC.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}

	return FromConfig(cfg, opts.Logger)
}

// FromConfig creates a composite server from a loaded configuration.
func FromConfig(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}

	collections := config.NewCollectionRegistry()
	if cfg.Collections.Dir != "" {
		loaded, err := config.LoadCollections(cfg.Collections.Dir)
		if err != nil {
			logger.Warn("failed to load collections, using empty registry",
				"dir", cfg.Collections.Dir,
				"error", err,
			)
		} else {
			collections = loaded
		}
	}
	logger.Info("loaded collections", "count", collections.Count())

	s := &Server{}
	if cfg.Features.EnableMetrics {
		s.metrics = metrics.New()
	}

	service, err := s.buildService(cfg, logger)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.service = service

	translator := translate.NewTranslator(cfg, collections, logger)
	handlers := api.NewHandlers(cfg, service, translator, collections, logger)
	if s.metrics != nil {
		handlers.WithMetrics(s.metrics)
	}
	s.router = api.NewRouter(handlers, logger, s.metrics)

	return s, nil
}

// buildService creates the configured collection service, instrumented and
// cached as configured.
func (s *Server) buildService(cfg *config.Config, logger *slog.Logger) (backend.CollectionService, error) {
	var service backend.CollectionService
	switch BackendType(cfg.Backend.Type) {
	case BackendRemote:
		client := remote.NewClient(cfg.Remote.BaseURL, cfg.Remote.Timeout).WithLogger(logger)
		if cfg.Remote.APIKey != "" {
			client = client.WithAPIKey(cfg.Remote.APIKey)
		}
		s.closers = append(s.closers, client.Close)
		service = backend.NewRemoteBackend(client, logger)
		logger.Info("using remote collection service", "base_url", cfg.Remote.BaseURL)
	case BackendMemory, "":
		mem := backend.NewMemoryBackend(logger)
		if err := mem.LoadDir(cfg.Memory.DataDir); err != nil {
			return nil, fmt.Errorf("failed to load records from %s: %w", cfg.Memory.DataDir, err)
		}
		service = mem
		logger.Info("using memory collection service", "data_dir", cfg.Memory.DataDir, "collections", len(mem.IDs()))
	default:
		return nil, fmt.Errorf("unknown backend type %q", cfg.Backend.Type)
	}

	if s.metrics != nil {
		service = s.metrics.Instrument(service)
	}

	if cfg.Cache.Size > 0 {
		cached, err := backend.NewCachedService(service, cfg.Cache.Size, logger)
		if err != nil {
			return nil, err
		}
		if s.metrics != nil {
			s.metrics.RegisterCache(cached)
		}
		service = cached
	}

	return service, nil
}

// Router returns the chi.Router for mounting in another application.
func (s *Server) Router() chi.Router {
	return s.router
}

// Service returns the collection service behind the API.
func (s *Server) Service() backend.CollectionService {
	return s.service
}

// Close releases idle connections to the remote collection service.
func (s *Server) Close() {
	for _, c := range s.closers {
		c()
	}
	s.closers = nil
}
