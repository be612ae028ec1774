package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/mohammad-safakhou/pagechat/internal/answer"
	"github.com/mohammad-safakhou/pagechat/internal/apperr"
	"github.com/mohammad-safakhou/pagechat/internal/telemetry"
	"github.com/mohammad-safakhou/pagechat/models"
	"github.com/mohammad-safakhou/pagechat/session"
)

// Answerer is satisfied by *answer.Answerer.
type Answerer interface {
	Answer(ctx context.Context, question string, retriever answer.Retriever, history []models.Turn) (string, []models.Turn, error)
}

type ChatHandler struct {
	Store    session.Store
	Answerer Answerer
	Metrics  *telemetry.Metrics
}

func (h *ChatHandler) Register(g *echo.Group) {
	g.POST("/chat", h.chat)
}

type chatRequest struct {
	SessionID string `json:"session_id"`
	Query     string `json:"query"`
}

type chatResponse struct {
	Response  string `json:"response"`
	URL       string `json:"url"`
	SessionID string `json:"session_id"`
}

func (h *ChatHandler) chat(c echo.Context) error {
	res, err := h.turn(c)
	h.Metrics.Chat(statusLabel(err))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

// turn answers one question. The session lock is held from Get through AppendTurn so
// concurrent questions on one session see each other's history in order.
func (h *ChatHandler) turn(c echo.Context) (chatResponse, error) {
	const op = "chat"
	var req chatRequest
	if err := c.Bind(&req); err != nil {
		return chatResponse{}, apperr.Wrap(apperr.KindValidation, op, err)
	}
	req.SessionID = strings.TrimSpace(req.SessionID)
	if req.SessionID == "" || strings.TrimSpace(req.Query) == "" {
		return chatResponse{}, apperr.New(apperr.KindValidation, op, "session_id and query are required")
	}

	ctx := c.Request().Context()
	unlock, err := h.Store.Lock(ctx, req.SessionID)
	if err != nil {
		return chatResponse{}, err
	}
	defer unlock()

	sess, err := h.Store.Get(ctx, req.SessionID)
	if err != nil {
		return chatResponse{}, err
	}
	reply, _, err := h.Answerer.Answer(ctx, req.Query, sess.Index, sess.History)
	if err != nil {
		return chatResponse{}, err
	}
	if err := h.Store.AppendTurn(ctx, sess.ID, req.Query, reply); err != nil {
		return chatResponse{}, err
	}
	return chatResponse{Response: reply, URL: sess.URL, SessionID: sess.ID}, nil
}
