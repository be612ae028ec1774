package chromedp

import (
	"context"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/mohammad-safakhou/pagechat/internal/apperr"
	"github.com/mohammad-safakhou/pagechat/internal/helpers"
	"github.com/mohammad-safakhou/pagechat/models"
)

// Fetch renders pages in headless Chrome, for sites that build their content with JavaScript.
type Fetch struct {
	Timeout      time.Duration
	UserAgent    string
	AllowPrivate bool
}

func (f Fetch) Exec(ctx context.Context, url string) (models.Page, error) {
	const op = "chromedp fetch"
	if strings.TrimSpace(url) == "" {
		return models.Page{}, apperr.New(apperr.KindValidation, op, "invalid url")
	}
	if !f.AllowPrivate {
		if err := helpers.CheckPublicHost(url); err != nil {
			return models.Page{}, apperr.Wrap(apperr.KindFetch, op, err)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, f.Timeout)
	defer cancel()
	t0 := time.Now()

	html, finalURL, err := f.render(ctx, url)
	if err != nil {
		if ctx.Err() != nil {
			err = ctx.Err()
		}
		return models.Page{}, apperr.Wrap(apperr.KindFetch, op+" "+url, err)
	}

	return models.Page{
		URL:         url,
		FinalURL:    finalURL,
		Status:      200,
		ContentType: "text/html",
		HTML:        html,
		FetchMS:     int(time.Since(t0) / time.Millisecond),
	}, nil
}

func (f Fetch) render(ctx context.Context, url string) (string, string, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
	)
	if f.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(f.UserAgent))
	}
	actx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()
	bctx, cancelBrowser := chromedp.NewContext(actx)
	defer cancelBrowser()

	var html, location string
	err := chromedp.Run(bctx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Location(&location),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	return html, location, err
}
