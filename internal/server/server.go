// Package server exposes the population API over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"popstats/internal/analytics"
	"popstats/internal/gateway"
	"popstats/internal/model"
)

const (
	defaultAddr               = ":8080"
	defaultDashboardCacheSize = 32
	shutdownTimeout           = 10 * time.Second
)

type Config struct {
	Addr               string `env:"POPSTATS_HTTP_ADDR"`
	DBPath             string `env:"POPSTATS_DB_PATH"`
	DashboardCacheSize int    `env:"POPSTATS_DASHBOARD_CACHE_SIZE"`
}

func ConfigFromEnv() (Config, error) {
	cfg := Config{
		Addr:               defaultAddr,
		DashboardCacheSize: defaultDashboardCacheSize,
	}
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("server: parse env: %w", err)
	}
	return cfg, nil
}

type errorBody struct {
	Detail string `json:"detail"`
}

type Server struct {
	config    Config
	echo      *echo.Echo
	source    gateway.Gateway
	dashboard *lru.Cache[int, model.AnalyticsData]
	logger    *zap.Logger
}

// New wires the routes over source, usually an analytics.Service.
func New(source gateway.Gateway, cfg Config, logger *zap.Logger) (*Server, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Addr == "" {
		cfg.Addr = defaultAddr
	}
	if cfg.DashboardCacheSize <= 0 {
		cfg.DashboardCacheSize = defaultDashboardCacheSize
	}
	cache, err := lru.New[int, model.AnalyticsData](cfg.DashboardCacheSize)
	if err != nil {
		return nil, fmt.Errorf("server: dashboard cache: %w", err)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = errorHandler(logger)
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			logger.Debug("request",
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency),
			)
			return nil
		},
	}))

	s := &Server{config: cfg, echo: e, source: source, dashboard: cache, logger: logger}
	s.routes()
	return s, nil
}

func (s *Server) routes() {
	s.echo.GET("/health", s.health)

	api := s.echo.Group("/api")
	api.GET("/countries", s.countries)
	api.GET("/countries/", s.countries)
	api.GET("/countries/:code/population", s.population)
	api.GET("/countries/:code/growth/:year", s.growth)
	api.GET("/analytics/trends/:code", s.trends)
	api.GET("/analytics/dashboard", s.dashboardAnalytics)
}

func (s *Server) Handler() http.Handler {
	return s.echo
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", zap.String("addr", s.config.Addr))
		errCh <- s.echo.Start(s.config.Addr)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.echo.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) countries(c echo.Context) error {
	list, err := s.source.Countries(c.Request().Context())
	if err != nil {
		return s.fail(err)
	}
	return c.JSON(http.StatusOK, list)
}

func (s *Server) population(c echo.Context) error {
	raw, err := url.PathUnescape(c.Param("code"))
	if err != nil || strings.TrimSpace(raw) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "Country codes cannot be empty")
	}
	data, err := s.source.Population(c.Request().Context(), strings.Split(raw, ","))
	if err != nil {
		return s.fail(err)
	}
	return c.JSON(http.StatusOK, data)
}

func (s *Server) growth(c echo.Context) error {
	year, err := strconv.Atoi(c.Param("year"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Year must be an integer")
	}
	metrics, err := s.source.GrowthMetrics(c.Request().Context(), c.Param("code"), year)
	if err != nil {
		return s.fail(err)
	}
	return c.JSON(http.StatusOK, metrics)
}

func (s *Server) trends(c echo.Context) error {
	start, err := optionalYear(c, "start_year")
	if err != nil {
		return err
	}
	end, err := optionalYear(c, "end_year")
	if err != nil {
		return err
	}
	years := model.YearRange{StartYear: start, EndYear: end}
	list, err := s.source.PopulationTrends(c.Request().Context(), c.Param("code"), years)
	if err != nil {
		return s.fail(err)
	}
	return c.JSON(http.StatusOK, list)
}

func (s *Server) dashboardAnalytics(c echo.Context) error {
	year, err := optionalYear(c, "year")
	if err != nil {
		return err
	}
	if year == 0 {
		year = model.LastDataYear
	}
	if data, ok := s.dashboard.Get(year); ok {
		return c.JSON(http.StatusOK, data)
	}
	data, err := s.source.Dashboard(c.Request().Context(), year)
	if err != nil {
		return s.fail(err)
	}
	s.dashboard.Add(year, data)
	return c.JSON(http.StatusOK, data)
}

// optionalYear reads an optional year query parameter. Absent is zero.
func optionalYear(c echo.Context, name string) (int, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return 0, nil
	}
	year, err := strconv.Atoi(raw)
	if err != nil {
		return 0, echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("%s must be an integer", name))
	}
	if err := analytics.CheckYear(year); err != nil {
		return 0, echo.NewHTTPError(http.StatusBadRequest, detail(err))
	}
	return year, nil
}

// fail maps a source error onto an HTTP status with a user-facing detail.
func (s *Server) fail(err error) error {
	switch {
	case errors.Is(err, analytics.ErrInvalidInput):
		return echo.NewHTTPError(http.StatusBadRequest, detail(err))
	case errors.Is(err, gateway.ErrNotFound), errors.Is(err, gateway.ErrEmptyResult):
		return echo.NewHTTPError(http.StatusNotFound, detail(err))
	default:
		s.logger.Error("request failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "Internal server error")
	}
}

func detail(err error) string {
	var reqErr *analytics.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.Detail
	}
	return err.Error()
}

func errorHandler(logger *zap.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		status := http.StatusInternalServerError
		message := "Internal server error"
		var httpErr *echo.HTTPError
		if errors.As(err, &httpErr) {
			status = httpErr.Code
			message = fmt.Sprint(httpErr.Message)
		} else {
			logger.Error("unhandled error", zap.Error(err))
		}
		if err := c.JSON(status, errorBody{Detail: message}); err != nil {
			logger.Warn("write error response", zap.Error(err))
		}
	}
}
