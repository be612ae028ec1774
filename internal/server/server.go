package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/mohammad-safakhou/pagechat/config"
	"github.com/mohammad-safakhou/pagechat/internal/apperr"
	"github.com/mohammad-safakhou/pagechat/internal/telemetry"
	"github.com/mohammad-safakhou/pagechat/session"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Deps are the collaborators the HTTP layer needs. Build assembles them from config;
// tests construct them directly.
type Deps struct {
	Scraper  Scraper
	Answerer Answerer
	Store    session.Store
	Sweeper  *session.Sweeper
	Metrics  *telemetry.Metrics
	Gatherer prometheus.Gatherer
	Logger   *log.Logger
	Closers  []func() error
}

// Server is the pagechat HTTP API.
type Server struct {
	cfg  *config.Config
	echo *echo.Echo
	deps Deps
}

// New wires routes and middleware onto a fresh echo instance.
func New(cfg *config.Config, deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = log.New(log.Writer(), "[HTTP] ", log.LstdFlags)
	}
	if deps.Gatherer == nil {
		deps.Gatherer = prometheus.NewRegistry()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.HTTPErrorHandler = errorHandler(deps.Logger)
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: cfg.Server.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderContentType},
	}))
	e.Use(observe(deps.Metrics))

	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))

	if dir := cfg.Server.StaticDir; dir != "" {
		e.Static("/", dir)
	}

	api := e.Group("/api")
	(&PagesHandler{Scraper: deps.Scraper, Metrics: deps.Metrics}).Register(api)
	(&ChatHandler{Store: deps.Store, Answerer: deps.Answerer, Metrics: deps.Metrics}).Register(api)
	(&OpsHandler{Store: deps.Store, HasAPIKey: cfg.LLM.HasAPIKey(), Debug: cfg.Server.Debug}).Register(api)

	return &Server{cfg: cfg, echo: e, deps: deps}
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.echo }

// Run serves until ctx is cancelled, then drains in-flight requests and stops the sweeper.
func (s *Server) Run(ctx context.Context, addr string) error {
	if addr == "" {
		addr = s.cfg.Server.Address
	}
	if s.deps.Sweeper != nil {
		s.deps.Sweeper.Start()
	}
	defer s.close()

	errCh := make(chan error, 1)
	go func() {
		s.deps.Logger.Printf("listening on %s", addr)
		errCh <- s.echo.Start(addr)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.deps.Logger.Printf("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := s.echo.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func (s *Server) close() {
	if s.deps.Sweeper != nil {
		s.deps.Sweeper.Stop()
	}
	for _, c := range s.deps.Closers {
		if err := c(); err != nil {
			s.deps.Logger.Printf("close: %v", err)
		}
	}
}

// errorHandler renders every failure as {"error": msg}. Classified errors map to
// their HTTP status; anything else is a 500.
func errorHandler(logger *log.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := err.Error()
		var he *echo.HTTPError
		if errors.As(err, &he) {
			code = he.Code
			if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
		} else if kind := apperr.KindOf(err); kind != "" {
			code = apperr.HTTPStatus(kind)
		}
		req := c.Request()
		logger.Printf("%d %s %s from %s: %v", code, req.Method, req.URL.Path, c.RealIP(), err)
		if !c.Response().Committed {
			_ = c.JSON(code, map[string]interface{}{"error": msg})
		}
	}
}

func observe(m *telemetry.Metrics) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			t0 := time.Now()
			err := next(c)
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			m.ObserveRequest(route, time.Since(t0))
			return err
		}
	}
}

// statusLabel is the metrics label for a request outcome.
func statusLabel(err error) string {
	if err == nil {
		return "ok"
	}
	if kind := apperr.KindOf(err); kind != "" {
		return string(kind)
	}
	return "error"
}
