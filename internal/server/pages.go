package server

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/mohammad-safakhou/pagechat/internal/apperr"
	"github.com/mohammad-safakhou/pagechat/internal/telemetry"
	"github.com/mohammad-safakhou/pagechat/models"
)

// Scraper is satisfied by *web_ingest.Ingest.
type Scraper interface {
	Ingest(ctx context.Context, url string) (models.IngestResponse, error)
}

type PagesHandler struct {
	Scraper Scraper
	Metrics *telemetry.Metrics
}

func (h *PagesHandler) Register(g *echo.Group) {
	g.POST("/scrape", h.scrape)
}

type scrapeRequest struct {
	URL string `json:"url"`
}

type scrapeResponse struct {
	SessionID string `json:"session_id"`
	URL       string `json:"url"`
	Chunks    int    `json:"chunks"`
	Message   string `json:"message"`
}

func (h *PagesHandler) scrape(c echo.Context) error {
	var req scrapeRequest
	if err := c.Bind(&req); err != nil {
		h.Metrics.Scrape(string(apperr.KindValidation))
		return apperr.Wrap(apperr.KindValidation, "scrape", err)
	}
	res, err := h.Scraper.Ingest(c.Request().Context(), req.URL)
	h.Metrics.Scrape(statusLabel(err))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, scrapeResponse{
		SessionID: res.SessionID,
		URL:       res.URL,
		Chunks:    res.Chunks,
		Message:   "Website scraped successfully",
	})
}
