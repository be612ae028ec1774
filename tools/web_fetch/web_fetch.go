package web_fetch

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/mohammad-safakhou/pagechat/config"
	"github.com/mohammad-safakhou/pagechat/internal/apperr"
	"github.com/mohammad-safakhou/pagechat/models"
	"github.com/mohammad-safakhou/pagechat/tools/web_fetch/chromedp"
	"github.com/mohammad-safakhou/pagechat/tools/web_fetch/httpfetch"
)

const (
	DefaultTimeout  = 15 * time.Second
	DefaultMaxBytes = 5 << 20
)

// WebFetcher retrieves the raw HTML of a page.
type WebFetcher interface {
	Exec(ctx context.Context, url string) (models.Page, error)
}

type FetcherType string

const (
	HTTPFetcherType     FetcherType = "http"
	ChromedpFetcherType FetcherType = "chromedp"
)

// NewWebFetcher builds the fetcher selected by cfg.Type.
func NewWebFetcher(cfg config.FetchConfig) (WebFetcher, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	maxBytes := cfg.MaxBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}

	var f WebFetcher
	switch FetcherType(cfg.Type) {
	case HTTPFetcherType, "":
		f = httpfetch.New(httpfetch.Options{
			Timeout:      timeout,
			UserAgent:    cfg.UserAgent,
			MaxBytes:     maxBytes,
			AllowPrivate: cfg.AllowPrivate,
		})
	case ChromedpFetcherType:
		f = &chromedp.Fetch{Timeout: timeout, UserAgent: cfg.UserAgent, AllowPrivate: cfg.AllowPrivate}
	default:
		return nil, fmt.Errorf("unsupported fetcher type %q", cfg.Type)
	}
	return WithPolicy(f, cfg.Policy), nil
}

// WithPolicy refuses URLs whose host, or final host after redirects, the policy
// does not permit. An empty policy returns next unchanged.
func WithPolicy(next WebFetcher, policy config.HostPolicyConfig) WebFetcher {
	policy = policy.Normalize()
	if policy.Empty() {
		return next
	}
	return &policyFetcher{next: next, policy: policy}
}

type policyFetcher struct {
	next   WebFetcher
	policy config.HostPolicyConfig
}

func (p *policyFetcher) Exec(ctx context.Context, rawURL string) (models.Page, error) {
	op := "fetch " + rawURL
	if err := p.check(rawURL); err != nil {
		return models.Page{}, apperr.Wrap(apperr.KindValidation, op, err)
	}
	page, err := p.next.Exec(ctx, rawURL)
	if err != nil {
		return page, err
	}
	if page.FinalURL != "" {
		if err := p.check(page.FinalURL); err != nil {
			return models.Page{}, apperr.Wrap(apperr.KindFetch, op, fmt.Errorf("redirect blocked: %w", err))
		}
	}
	return page, nil
}

func (p *policyFetcher) check(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	if !p.policy.Permits(u.Hostname()) {
		return fmt.Errorf("host %q is not permitted by fetch policy", u.Hostname())
	}
	return nil
}
