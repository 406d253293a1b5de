package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/planetlabs/go-stac"

	"github.com/robert-malhotra/stac-composite/internal/composite"
	"github.com/robert-malhotra/stac-composite/internal/cover"
	"github.com/robert-malhotra/stac-composite/internal/translate"
)

// CoverPoint is one composite of a cover series.
type CoverPoint struct {
	Datetime string  `json:"datetime"`
	Fraction float64 `json:"fraction"`
	Area     float64 `json:"area"`
	Count    int     `json:"count"`
}

// CoverResponse is the body of a cover series response.
type CoverResponse struct {
	Collection string         `json:"collection"`
	Window     float64        `json:"window"`
	Series     []CoverPoint   `json:"series"`
	Fraction   *cover.Summary `json:"fraction_summary,omitempty"`
	Area       *cover.Summary `json:"area_summary,omitempty"`
	Links      []*stac.Link   `json:"links"`
}

// Cover returns the cover fraction and area series of a region.
// GET  /collections/{collectionId}/cover
// POST /collections/{collectionId}/cover
func (h *Handlers) Cover(w http.ResponseWriter, r *http.Request) {
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
	if q.Collection.Cover == nil {
		WriteNotFound(w, fmt.Sprintf("collection %q has no cover settings", collectionID))
		return
	}
	if q.Fetch.Region == nil {
		WriteInvalidParameter(w, "cover requires a bbox or intersects region")
		return
	}
	if q.HasFilter {
		WriteInvalidParameter(w, "filter is not supported for cover requests")
		return
	}

	ctx := r.Context()
	start := time.Now()

	pipeline := cover.NewPipeline(h.service, h.compositor(q.Policy), h.logger)
	result, err := pipeline.Run(ctx, cover.Request{
		CollectionID: q.Fetch.CollectionID,
		Start:        q.Fetch.Start,
		End:          q.Fetch.End,
		Region:       cover.Region{Include: q.Fetch.Region, Exclude: q.Mask},
		Window:       q.Window,
		Extractor:    cover.NewExtractor(q.Collection.Cover),
		NoDataValue:  q.Collection.Cover.NoDataValue,
	})

	produced := 0
	if result != nil {
		produced = len(result.Fraction)
	}
	h.observe("cover", start, produced, err)

	response := &CoverResponse{
		Collection: collectionID,
		Window:     q.Window.Size,
		Series:     []CoverPoint{},
	}

	switch {
	case errors.Is(err, composite.ErrEmptyInput):
		// Nothing in range: an empty series.
	case err != nil:
		h.logger.ErrorContext(ctx, "cover run failed",
			slog.String("collection", collectionID),
			slog.String("error", err.Error()),
		)
		WriteCompositeError(w, err)
		return
	default:
		response.Series = coverSeries(result)
		if fraction, area, err := result.Summaries(); err == nil {
			response.Fraction = &fraction
			response.Area = &area
		}
	}

	baseURL := h.cfg.STAC.BaseURL
	collectionURL := fmt.Sprintf("%s/collections/%s", baseURL, collectionID)
	selfURL := collectionURL + "/cover"
	if params := req.ToQueryParams(); len(params) > 0 {
		selfURL += "?" + params.Encode()
	}
	response.Links = []*stac.Link{
		{Rel: "self", Href: selfURL, Type: "application/json"},
		{Rel: "collection", Href: collectionURL, Type: "application/json"},
		{Rel: "root", Href: baseURL + "/", Type: "application/json"},
	}

	WriteJSON(w, http.StatusOK, response)
}

func coverSeries(result *cover.Result) []CoverPoint {
	points := make([]CoverPoint, len(result.Fraction))
	for i := range points {
		points[i] = CoverPoint{
			Datetime: translate.FormatSTACTime(translate.MillisToTime(result.Timestamps[i])),
			Fraction: result.Fraction[i],
			Area:     result.Area[i],
		}
		if i < len(result.Counts) {
			points[i].Count = result.Counts[i]
		}
	}
	return points
}
