package web_extract

import (
	"context"
	"fmt"
	"log"
	"strings"
	"unicode/utf8"

	"github.com/mohammad-safakhou/pagechat/config"
	"github.com/mohammad-safakhou/pagechat/internal/apperr"
	"github.com/mohammad-safakhou/pagechat/internal/helpers"
	"github.com/mohammad-safakhou/pagechat/models"
	"github.com/mohammad-safakhou/pagechat/tools/web_fetch"
)

const (
	DefaultMinTextLength = 100
	DefaultMaxChars      = 200000
)

// Strategy turns a fetched page into plain text. Implementations must not keep
// state between calls.
type Strategy interface {
	Name() string
	Extract(page models.Page) (text, title string, err error)
}

// Extractor fetches a page once and returns the output of the first strategy that
// yields enough text. The last strategy only needs to yield non-empty text.
type Extractor struct {
	fetcher       web_fetch.WebFetcher
	strategies    []Strategy
	minTextLength int
	maxChars      int
	logger        *log.Logger
}

// NewExtractor wires the default chain: readability, markdown, rawtext.
func NewExtractor(fetcher web_fetch.WebFetcher, cfg config.ExtractConfig, logger *log.Logger) *Extractor {
	return NewExtractorWithStrategies(fetcher, cfg, logger, Readability{}, NewMarkdown(), RawText{})
}

func NewExtractorWithStrategies(fetcher web_fetch.WebFetcher, cfg config.ExtractConfig, logger *log.Logger, strategies ...Strategy) *Extractor {
	minLen := cfg.MinTextLength
	if minLen <= 0 {
		minLen = DefaultMinTextLength
	}
	maxChars := cfg.MaxChars
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Extractor{
		fetcher:       fetcher,
		strategies:    strategies,
		minTextLength: minLen,
		maxChars:      maxChars,
		logger:        logger,
	}
}

// Extract fetches url and returns its readable text as segments.
func (e *Extractor) Extract(ctx context.Context, url string) ([]models.Segment, error) {
	page, err := e.fetcher.Exec(ctx, url)
	if err != nil {
		return nil, err
	}
	source := page.FinalURL
	if source == "" {
		source = url
	}

	var failures []string
	for i, s := range e.strategies {
		if err := ctx.Err(); err != nil {
			return nil, apperr.Wrap(apperr.KindExtraction, "extract "+url, err)
		}
		text, title, err := s.Extract(page)
		if err != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", s.Name(), err))
			continue
		}
		text = helpers.NormalizeWhitespace(text)
		last := i == len(e.strategies)-1
		if n := utf8.RuneCountInString(text); n == 0 || (!last && n < e.minTextLength) {
			failures = append(failures, fmt.Sprintf("%s: %d runes", s.Name(), n))
			continue
		}
		text = helpers.TruncateRunes(text, e.maxChars)
		e.logger.Printf("extracted %d runes from %s using %s", utf8.RuneCountInString(text), source, s.Name())
		return []models.Segment{{
			Text:     text,
			Source:   source,
			Title:    strings.TrimSpace(title),
			Strategy: s.Name(),
		}}, nil
	}

	msg := "no content extracted"
	if len(failures) > 0 {
		msg += " (" + strings.Join(failures, "; ") + ")"
	}
	return nil, apperr.New(apperr.KindExtraction, "extract "+url, msg)
}
