// Package answer produces chat replies grounded in a session's page content.
package answer

import (
	"context"
	"log"

	"github.com/mohammad-safakhou/pagechat/internal/apperr"
	"github.com/mohammad-safakhou/pagechat/internal/telemetry"
	"github.com/mohammad-safakhou/pagechat/models"
	"github.com/mohammad-safakhou/pagechat/provider"
	"github.com/mohammad-safakhou/pagechat/session"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Answerer runs a primary strategy and, if it fails, one fallback.
type Answerer struct {
	primary  Strategy
	fallback Strategy
	metrics  *telemetry.Metrics
	logger   *log.Logger
}

// New uses HistoryAware first and Simple as the fallback.
func New(model provider.ChatModel, params provider.Params, topK int, metrics *telemetry.Metrics, logger *log.Logger) *Answerer {
	return NewWithStrategies(
		HistoryAware{Model: model, Params: params, TopK: topK},
		Simple{Model: model, Params: params, TopK: topK},
		metrics, logger,
	)
}

// NewWithStrategies builds an Answerer from explicit strategies. fallback may be nil.
func NewWithStrategies(primary, fallback Strategy, metrics *telemetry.Metrics, logger *log.Logger) *Answerer {
	if logger == nil {
		logger = log.Default()
	}
	return &Answerer{primary: primary, fallback: fallback, metrics: metrics, logger: logger}
}

var tracer = otel.Tracer("github.com/mohammad-safakhou/pagechat/internal/answer")

// Answer returns the reply and the history extended by this exchange. The caller
// persists the new turns.
func (a *Answerer) Answer(ctx context.Context, question string, retriever Retriever, history []models.Turn) (string, []models.Turn, error) {
	ctx, span := tracer.Start(ctx, "answer", trace.WithAttributes(attribute.Int("history.turns", len(history))))
	defer span.End()
	out, updated, err := a.answer(ctx, question, retriever, history)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(apperr.KindOf(err)))
	}
	return out, updated, err
}

func (a *Answerer) answer(ctx context.Context, question string, retriever Retriever, history []models.Turn) (string, []models.Turn, error) {
	const op = "answer"
	if question == "" {
		return "", nil, apperr.New(apperr.KindValidation, op, "question is required")
	}

	out, err := a.primary.Answer(ctx, question, retriever, history)
	if err != nil {
		if ctx.Err() != nil || a.fallback == nil {
			return "", nil, apperr.Wrap(apperr.KindAnswer, op, err)
		}
		a.logger.Printf("%s failed, falling back to %s: %v", a.primary.Name(), a.fallback.Name(), err)
		a.metrics.Fallback()
		trace.SpanFromContext(ctx).AddEvent("fallback", trace.WithAttributes(
			attribute.String("strategy", a.fallback.Name()),
		))
		out, err = a.fallback.Answer(ctx, question, retriever, history)
		if err != nil {
			return "", nil, apperr.Wrap(apperr.KindAnswer, op, err)
		}
	}

	updated := make([]models.Turn, 0, len(history)+2)
	updated = append(updated, history...)
	updated = append(updated, session.TurnPair(question, out)...)
	return out, updated, nil
}
