package web_ingest

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/mohammad-safakhou/pagechat/internal/apperr"
	"github.com/mohammad-safakhou/pagechat/internal/helpers"
	"github.com/mohammad-safakhou/pagechat/internal/telemetry"
	"github.com/mohammad-safakhou/pagechat/models"
	"github.com/mohammad-safakhou/pagechat/session"
	"github.com/mohammad-safakhou/pagechat/tools/search"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Extractor is satisfied by web_extract.Extractor.
type Extractor interface {
	Extract(ctx context.Context, url string) ([]models.Segment, error)
}

// Ingest turns a URL into a registered session.
type Ingest struct {
	Extractor Extractor
	Chunker   Chunker
	Embedder  search.Embedder
	Search    search.Options
	Store     session.Store
	Metrics   *telemetry.Metrics
	Logger    *log.Logger
}

var tracer = otel.Tracer("github.com/mohammad-safakhou/pagechat/tools/web_ingest")

// Ingest scrapes url, indexes its chunks and registers a new session. Nothing is
// registered unless every step succeeds.
func (i *Ingest) Ingest(ctx context.Context, rawURL string) (models.IngestResponse, error) {
	ctx, span := tracer.Start(ctx, "ingest")
	defer span.End()
	res, err := i.ingest(ctx, rawURL)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(apperr.KindOf(err)))
		return res, err
	}
	span.SetAttributes(
		attribute.String("url", res.URL),
		attribute.String("strategy", res.Strategy),
		attribute.Int("chunks", res.Chunks),
	)
	return res, nil
}

func (i *Ingest) ingest(ctx context.Context, rawURL string) (models.IngestResponse, error) {
	t0 := time.Now()
	if strings.TrimSpace(rawURL) == "" {
		return models.IngestResponse{}, apperr.New(apperr.KindValidation, "scrape", "url is required")
	}
	url, err := helpers.CanonicalURL(rawURL)
	if err != nil {
		return models.IngestResponse{}, apperr.Wrap(apperr.KindValidation, "scrape", err)
	}

	if err := i.Chunker.Validate(); err != nil {
		return models.IngestResponse{}, apperr.Wrap(apperr.KindIndex, "scrape", err)
	}

	segments, err := i.Extractor.Extract(ctx, url)
	if err != nil {
		return models.IngestResponse{}, err
	}

	var chunks []models.Chunk
	for _, seg := range segments {
		for _, c := range i.Chunker.Chunk(seg.Text, seg.Source) {
			c.Index = len(chunks)
			chunks = append(chunks, c)
		}
	}

	index, err := search.Build(ctx, chunks, i.Embedder, i.Search)
	if err != nil {
		return models.IngestResponse{}, err
	}

	id, err := i.Store.Create(ctx, url, index)
	if err != nil {
		return models.IngestResponse{}, err
	}

	strategy := ""
	if len(segments) > 0 {
		strategy = segments[0].Strategy
	}
	i.Metrics.Extracted(strategy)
	took := time.Since(t0)
	i.logf("session %s: %d chunks from %s via %s in %s", id, len(chunks), url, strategy, took.Round(time.Millisecond))

	return models.IngestResponse{
		SessionID: id,
		URL:       url,
		Chunks:    len(chunks),
		Strategy:  strategy,
		Took:      took,
	}, nil
}

func (i *Ingest) logf(format string, args ...interface{}) {
	if i.Logger != nil {
		i.Logger.Printf(format, args...)
	}
}
