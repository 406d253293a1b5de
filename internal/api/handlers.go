package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/planetlabs/go-stac"

	"github.com/robert-malhotra/stac-composite/internal/backend"
	"github.com/robert-malhotra/stac-composite/internal/composite"
	"github.com/robert-malhotra/stac-composite/internal/config"
	"github.com/robert-malhotra/stac-composite/internal/metrics"
	intstac "github.com/robert-malhotra/stac-composite/internal/stac"
	"github.com/robert-malhotra/stac-composite/internal/translate"
)

// Handlers contains all HTTP handlers for the STAC API.
type Handlers struct {
	cfg         *config.Config
	service     backend.CollectionService
	translator  *translate.Translator
	collections *config.CollectionRegistry
	metrics     *metrics.Metrics
	logger      *slog.Logger
}

// NewHandlers creates a new Handlers instance with the given dependencies.
func NewHandlers(
	cfg *config.Config,
	service backend.CollectionService,
	translator *translate.Translator,
	collections *config.CollectionRegistry,
	logger *slog.Logger,
) *Handlers {
	return &Handlers{
		cfg:         cfg,
		service:     service,
		translator:  translator,
		collections: collections,
		logger:      logger,
	}
}

// WithMetrics enables composite run metrics.
func (h *Handlers) WithMetrics(m *metrics.Metrics) *Handlers {
	h.metrics = m
	return h
}

// LandingPage returns the STAC API landing page (root catalog).
// GET /
func (h *Handlers) LandingPage(w http.ResponseWriter, r *http.Request) {
	baseURL := h.cfg.STAC.BaseURL

	landing := intstac.NewLandingPage(
		"stac-composite-root",
		h.cfg.STAC.Title,
		h.cfg.STAC.Description,
		h.cfg.STAC.Version,
		intstac.DefaultConformance(),
	)

	landing.AddLink("self", baseURL+"/", "application/json")
	landing.AddLink("root", baseURL+"/", "application/json")
	landing.AddLink("conformance", baseURL+"/conformance", "application/json")
	landing.AddLink("data", baseURL+"/collections", "application/json")

	for _, coll := range h.collections.All() {
		landing.Links = append(landing.Links, &stac.Link{
			Rel:   "child",
			Href:  fmt.Sprintf("%s/collections/%s", baseURL, coll.ID),
			Type:  "application/json",
			Title: coll.Title,
		})
	}

	WriteJSON(w, http.StatusOK, landing)
}

// Conformance returns the conformance classes supported by this API.
// GET /conformance
func (h *Handlers) Conformance(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, &intstac.Conformance{
		ConformsTo: intstac.DefaultConformance(),
	})
}

// Collections returns the list of all available collections.
// GET /collections
func (h *Handlers) Collections(w http.ResponseWriter, r *http.Request) {
	baseURL := h.cfg.STAC.BaseURL

	configs := h.collections.All()
	collections := make([]*stac.Collection, 0, len(configs))
	for _, cfg := range configs {
		collections = append(collections, translate.TranslateCollection(cfg, baseURL, h.cfg.STAC.Version, h.cfg.Features.EnableCover))
	}

	response := intstac.NewCollectionsList(collections)
	response.Links = append(response.Links,
		&stac.Link{
			Rel:  "self",
			Href: baseURL + "/collections",
			Type: "application/json",
		},
		&stac.Link{
			Rel:  "root",
			Href: baseURL + "/",
			Type: "application/json",
		},
	)

	WriteJSON(w, http.StatusOK, response)
}

// Collection returns a single collection by ID.
// GET /collections/{collectionId}
func (h *Handlers) Collection(w http.ResponseWriter, r *http.Request) {
	collectionID := chi.URLParam(r, "collectionId")

	cfg := h.collections.Get(collectionID)
	if cfg == nil {
		WriteNotFound(w, fmt.Sprintf("collection %q not found", collectionID))
		return
	}

	WriteJSON(w, http.StatusOK, translate.TranslateCollection(cfg, h.cfg.STAC.BaseURL, h.cfg.STAC.Version, h.cfg.Features.EnableCover))
}

// Composites returns one page of moving-window composites of a collection.
// GET  /collections/{collectionId}/composites
// POST /collections/{collectionId}/composites
func (h *Handlers) Composites(w http.ResponseWriter, r *http.Request) {
	collectionID := chi.URLParam(r, "collectionId")

	req, ok := h.parseCompositeRequest(w, r)
	if !ok {
		return
	}

	q, err := h.translator.TranslateCompositeRequest(req, collectionID)
	if err != nil {
		WriteCompositeError(w, err)
		return
	}

	ctx := r.Context()
	start := time.Now()

	composites, err := h.runComposites(r, q)
	h.observe("composites", start, composites.Len(), err)
	if err != nil {
		h.logger.ErrorContext(ctx, "composite run failed",
			slog.String("collection", collectionID),
			slog.String("service", h.service.Name()),
			slog.String("error", err.Error()),
		)
		WriteCompositeError(w, err)
		return
	}

	itemCollection, err := h.translator.TranslateComposites(composites, q, req)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to translate composites", slog.String("error", err.Error()))
		WriteInternalError(w, "failed to build item collection")
		return
	}

	WriteGeoJSON(w, http.StatusOK, itemCollection)
}

// runComposites fetches, filters and smooths the query's records. An empty
// selection yields an empty collection, not an error.
func (h *Handlers) runComposites(r *http.Request, q *translate.CompositeQuery) (*composite.Collection, error) {
	coll, err := h.service.Fetch(r.Context(), q.Fetch)
	if err != nil {
		return nil, err
	}
	coll = q.ApplyFilter(coll)
	if coll.Len() == 0 {
		return &composite.Collection{ID: coll.ID}, nil
	}
	return h.compositor(q.Policy).MovingAverage(r.Context(), coll, q.Window)
}

// compositor builds a compositor whose reducer honors the request's nodata
// policy. Remote reductions always use the service's own policy.
func (h *Handlers) compositor(policy composite.NoDataPolicy) *composite.Compositor {
	var reducer composite.GroupReducer = composite.MeanReducer{Policy: policy}
	if h.cfg.Composite.Reducer == "remote" {
		reducer = backend.RemoteReducer{Service: h.service}
	}
	return composite.NewCompositor(
		composite.WithReducer(reducer),
		composite.WithWorkers(h.cfg.Composite.Workers),
		composite.WithLogger(h.logger),
	)
}

func (h *Handlers) parseCompositeRequest(w http.ResponseWriter, r *http.Request) (*intstac.CompositeRequest, bool) {
	var (
		req *intstac.CompositeRequest
		err error
	)
	switch r.Method {
	case http.MethodGet:
		req, err = intstac.ParseCompositeRequest(r)
	case http.MethodPost:
		defer r.Body.Close()
		req, err = intstac.ParseCompositeRequestBody(r.Body)
	default:
		WriteError(w, http.StatusMethodNotAllowed, "MethodNotAllowed", "method not allowed")
		return nil, false
	}
	if err != nil {
		WriteInvalidParameter(w, fmt.Sprintf("invalid composite request: %v", err))
		return nil, false
	}
	return req, true
}

func (h *Handlers) observe(kind string, start time.Time, produced int, err error) {
	if h.metrics == nil {
		return
	}
	if errors.Is(err, composite.ErrEmptyInput) {
		err = nil
	}
	h.metrics.ObserveComposite(kind, start, produced, err)
}

// Health returns the health status of the service.
// GET /health
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"service":     h.service.Name(),
		"collections": h.collections.Count(),
	})
}
