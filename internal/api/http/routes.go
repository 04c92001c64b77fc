package httpapi

import (
	"context"
	"errors"
	"log/slog"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/i474232898/gdelt-news-cache/internal/logging"
	"github.com/i474232898/gdelt-news-cache/internal/news"
	"github.com/i474232898/gdelt-news-cache/internal/table"
)

var validate = validator.New()

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, service *news.Service, logger *slog.Logger) {
	h := &handlers{service: service, logger: logging.OrNop(logger)}
	v1 := app.Group("/api/v1")

	v1.Get("/searches", h.listSearches)
	v1.Post("/searches", h.createSearch)
	v1.Get("/searches/:hash/volume", h.volume)
	v1.Get("/searches/:hash/clips", h.clips)
}

type handlers struct {
	service *news.Service
	logger  *slog.Logger
}

// searchRequest is the body of POST /searches.
type searchRequest struct {
	Topic      string   `json:"topic" validate:"required"`
	Stations   []string `json:"stations" validate:"required,min=1,dive,required"`
	Start      string   `json:"start" validate:"omitempty,datetime=01/02/2006"`
	End        string   `json:"end" validate:"omitempty,datetime=01/02/2006"`
	Resolution string   `json:"resolution" validate:"omitempty,oneof=monthly weekly"`
	Refresh    bool     `json:"refresh"`
	Export     bool     `json:"export"`
}

func (r searchRequest) metadata() news.Metadata {
	return news.Metadata{Topic: r.Topic, Stations: r.Stations, Start: r.Start, End: r.End}
}

// searchSummary describes a search and, once fetched, its row counts.
type searchSummary struct {
	Hash     string         `json:"hash"`
	Meta     news.Metadata  `json:"metadata"`
	Volume   map[string]int `json:"volume_rows,omitempty"`
	Clips    map[string]int `json:"clip_rows,omitempty"`
	Combined *int           `json:"combined_rows,omitempty"`
}

func (h *handlers) listSearches(c *fiber.Ctx) error {
	out := []searchSummary{}
	for meta, err := range h.service.List(c.UserContext()) {
		if err != nil {
			return h.fail(err)
		}
		search, err := news.NewSearch(meta)
		if err != nil {
			continue
		}
		out = append(out, searchSummary{Hash: search.Hash, Meta: meta})
	}
	return c.JSON(fiber.Map{"searches": out})
}

func (h *handlers) createSearch(c *fiber.Ctx) error {
	var req searchRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	ctx := c.UserContext()
	analysis := h.service.NewAnalysis()
	opts := news.SearchOptions{Resolution: news.Resolution(req.Resolution), Refresh: req.Refresh}
	if err := analysis.Search(ctx, req.metadata(), opts); err != nil {
		return h.fail(err)
	}
	if req.Export && analysis.Clips != nil {
		if err := analysis.Export(ctx); err != nil {
			return h.fail(err)
		}
	}

	summary := searchSummary{Hash: analysis.Current().Hash, Meta: req.metadata()}
	if analysis.Volume != nil {
		n := analysis.Volume.Combined.Len()
		summary.Combined = &n
		summary.Volume = rowCounts(analysis.Volume.Stations)
	}
	if analysis.Clips != nil {
		summary.Clips = rowCounts(analysis.Clips.Stations)
	}
	return c.Status(fiber.StatusCreated).JSON(summary)
}

func (h *handlers) volume(c *fiber.Ctx) error {
	ctx := c.UserContext()
	analysis, err := h.open(ctx, c.Params("hash"))
	if err != nil {
		return err
	}
	if err := analysis.FetchVolume(ctx, false); err != nil {
		return h.fail(err)
	}

	station := c.Query("station")
	t := analysis.Volume.Combined
	if station != "" {
		var ok bool
		if t, ok = analysis.Volume.Stations[station]; !ok {
			return fiber.NewError(fiber.StatusNotFound, "station is not part of this search")
		}
	}
	return c.JSON(rowsResponse(analysis.Current().Hash, station, t))
}

func (h *handlers) clips(c *fiber.Ctx) error {
	station := c.Query("station")
	if station == "" {
		return fiber.NewError(fiber.StatusBadRequest, "station query parameter is required")
	}

	ctx := c.UserContext()
	analysis, err := h.open(ctx, c.Params("hash"))
	if err != nil {
		return err
	}
	if !analysis.Current().HasSpan() {
		return fiber.NewError(fiber.StatusBadRequest, "search has no explicit start and end")
	}
	if err := analysis.FetchClips(ctx, "", false); err != nil {
		return h.fail(err)
	}
	t, ok := analysis.Clips.Stations[station]
	if !ok {
		return fiber.NewError(fiber.StatusNotFound, "station is not part of this search")
	}
	return c.JSON(rowsResponse(analysis.Current().Hash, station, t))
}

// open starts an analysis over a stored search.
func (h *handlers) open(ctx context.Context, hash string) (*news.Analysis, error) {
	search, err := h.service.Find(ctx, hash)
	if err != nil {
		return nil, h.fail(err)
	}
	analysis := h.service.NewAnalysis()
	if err := analysis.Open(ctx, search.Meta); err != nil {
		return nil, h.fail(err)
	}
	return analysis, nil
}

// fail maps domain errors to HTTP errors.
func (h *handlers) fail(err error) error {
	switch {
	case errors.Is(err, news.ErrUnknownSearch):
		return fiber.NewError(fiber.StatusNotFound, "no stored search with this hash")
	case errors.Is(err, news.ErrInvalidQuery), errors.Is(err, news.ErrInvalidRange):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return fiber.NewError(fiber.StatusServiceUnavailable, "request cancelled")
	}
	h.logger.Error("request failed", "err", err)
	return fiber.NewError(fiber.StatusInternalServerError, "failed to load search data")
}

func rowCounts(tables map[string]*table.Table) map[string]int {
	out := make(map[string]int, len(tables))
	for station, t := range tables {
		out[station] = t.Len()
	}
	return out
}

func rowsResponse(hash, station string, t *table.Table) fiber.Map {
	rows := []table.Row{}
	if t != nil {
		rows = append(rows, t.Rows...)
	}
	return fiber.Map{
		"hash":    hash,
		"station": station,
		"count":   len(rows),
		"rows":    rows,
	}
}
