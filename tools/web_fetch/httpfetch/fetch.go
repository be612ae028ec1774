package httpfetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/mohammad-safakhou/pagechat/internal/apperr"
	"github.com/mohammad-safakhou/pagechat/internal/helpers"
	"github.com/mohammad-safakhou/pagechat/models"
)

const maxRedirects = 5

// Options configures a Fetch.
type Options struct {
	Timeout      time.Duration
	UserAgent    string
	MaxBytes     int64
	AllowPrivate bool // permits loopback and private targets, e.g. for tests
}

// Fetch retrieves pages over plain HTTP with SSRF protection.
type Fetch struct {
	client *http.Client
	opts   Options
}

// New creates a fetcher. Unless AllowPrivate is set, every resolved address is checked
// before dialing so DNS rebinding cannot reach internal hosts.
func New(opts Options) *Fetch {
	dialer := &net.Dialer{
		Timeout:   10 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	dial := dialer.DialContext
	if !opts.AllowPrivate {
		dial = func(ctx context.Context, network, addr string) (net.Conn, error) {
			host, port, err := net.SplitHostPort(addr)
			if err != nil {
				return nil, fmt.Errorf("invalid address: %w", err)
			}
			ips, err := net.DefaultResolver.LookupIPAddr(ctx, host)
			if err != nil {
				return nil, fmt.Errorf("dns lookup failed: %w", err)
			}
			for _, ip := range ips {
				if helpers.IsPrivateIP(ip.IP) {
					return nil, fmt.Errorf("connection to private address %s is not allowed", ip.IP)
				}
			}
			var lastErr error
			for _, ip := range ips {
				conn, err := dialer.DialContext(ctx, network, net.JoinHostPort(ip.IP.String(), port))
				if err == nil {
					return conn, nil
				}
				lastErr = err
			}
			if lastErr == nil {
				lastErr = errors.New("no addresses resolved")
			}
			return nil, lastErr
		}
	}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dial,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: opts.Timeout,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
	}
	return &Fetch{
		opts: opts,
		client: &http.Client{
			Transport: transport,
			Timeout:   opts.Timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return fmt.Errorf("too many redirects (max %d)", maxRedirects)
				}
				if req.URL.Scheme != "http" && req.URL.Scheme != "https" {
					return fmt.Errorf("redirect to unsupported scheme %q", req.URL.Scheme)
				}
				if !opts.AllowPrivate {
					if err := helpers.CheckPublicHost(req.URL.String()); err != nil {
						return fmt.Errorf("redirect blocked: %w", err)
					}
				}
				return nil
			},
		},
	}
}

// Exec downloads url and returns its HTML.
func (f *Fetch) Exec(ctx context.Context, url string) (models.Page, error) {
	op := "fetch " + url
	if !f.opts.AllowPrivate {
		if err := helpers.CheckPublicHost(url); err != nil {
			return models.Page{}, apperr.Wrap(apperr.KindFetch, op, err)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, f.opts.Timeout)
	defer cancel()
	t0 := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return models.Page{}, apperr.Wrap(apperr.KindFetch, op, err)
	}
	if f.opts.UserAgent != "" {
		req.Header.Set("User-Agent", f.opts.UserAgent)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")

	resp, err := f.client.Do(req)
	if err != nil {
		return models.Page{}, apperr.Wrap(apperr.KindFetch, op, timeoutAware(err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return models.Page{}, apperr.New(apperr.KindFetch, op, fmt.Sprintf("HTTP %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode)))
	}
	contentType := resp.Header.Get("Content-Type")
	if !acceptableContentType(contentType) {
		return models.Page{}, apperr.New(apperr.KindFetch, op, fmt.Sprintf("unsupported content type %q", contentType))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.opts.MaxBytes+1))
	if err != nil {
		return models.Page{}, apperr.Wrap(apperr.KindFetch, op, timeoutAware(err))
	}
	if int64(len(body)) > f.opts.MaxBytes {
		return models.Page{}, apperr.New(apperr.KindFetch, op, fmt.Sprintf("content too large (exceeds %d bytes)", f.opts.MaxBytes))
	}

	return models.Page{
		URL:         url,
		FinalURL:    resp.Request.URL.String(),
		Status:      resp.StatusCode,
		ContentType: contentType,
		HTML:        string(body),
		FetchMS:     int(time.Since(t0) / time.Millisecond),
	}, nil
}

func acceptableContentType(ct string) bool {
	if strings.TrimSpace(ct) == "" {
		return true
	}
	mediaType, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return false
	}
	switch mediaType {
	case "text/html", "application/xhtml+xml", "text/plain", "application/xml", "text/xml":
		return true
	}
	return false
}

// timeoutAware turns client-side timeouts into apperr.ErrTimeout.
func timeoutAware(err error) error {
	var ne net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
		return &apperr.Error{Kind: apperr.KindTimeout, Msg: "page fetch timed out", Err: err}
	}
	return err
}
