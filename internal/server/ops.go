package server

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/mohammad-safakhou/pagechat/session"
)

// OpsHandler serves the operational endpoints. clear_sessions exists only in debug mode.
type OpsHandler struct {
	Store     session.Store
	HasAPIKey bool
	Debug     bool
}

func (h *OpsHandler) Register(g *echo.Group) {
	g.GET("/check_api_key", h.checkAPIKey)
	if h.Debug {
		g.POST("/clear_sessions", h.clearSessions)
	}
}

func (h *OpsHandler) checkAPIKey(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]bool{"has_api_key": h.HasAPIKey})
}

func (h *OpsHandler) clearSessions(c echo.Context) error {
	n, err := h.Store.Clear(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]int{"cleared": n})
}
