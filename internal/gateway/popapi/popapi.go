package popapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"popstats/internal/gateway"
	"popstats/internal/model"
)

const (
	defaultBaseURL         = "http://localhost:8080/api"
	defaultRateLimitPerSec = 5
	defaultRateLimitBurst  = 5
	defaultTimeout         = 20 * time.Second
	defaultMaxRetries      = 3
	defaultRetryInterval   = 200 * time.Millisecond
	defaultUserAgent       = "popstats/0.1"
	maxErrorBody           = 4 << 10
)

var errNoCodes = errors.New("popapi: at least one country code is required")

type Config struct {
	BaseURL         string        `env:"POPSTATS_API_BASE_URL"`
	Timeout         time.Duration `env:"POPSTATS_API_TIMEOUT"`
	RateLimitPerSec int           `env:"POPSTATS_API_RATE_LIMIT_PER_SEC"`
	RateLimitBurst  int           `env:"POPSTATS_API_RATE_LIMIT_BURST"`
	// MaxRetries of zero selects the default; negative disables retries.
	MaxRetries      int           `env:"POPSTATS_API_MAX_RETRIES"`
	RetryInterval   time.Duration `env:"POPSTATS_API_RETRY_INTERVAL"`
	UserAgent       string        `env:"POPSTATS_API_USER_AGENT"`
}

// Client talks to the population REST API. It holds no per-call state; the
// zero value is not usable, construct it with New or NewWithConfig.
type Client struct {
	config  Config
	client  *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger
	tracer  trace.Tracer
}

type Option func(*Client)

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.client = client
		}
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func New(opts ...Option) (*Client, error) {
	cfg, err := ConfigFromEnv()
	if err != nil {
		return nil, err
	}
	return NewWithConfig(cfg, opts...)
}

func NewWithConfig(cfg Config, opts ...Option) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("popapi: invalid base url: %w", err)
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.RateLimitPerSec <= 0 {
		cfg.RateLimitPerSec = defaultRateLimitPerSec
	}
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = defaultRateLimitBurst
	}
	switch {
	case cfg.MaxRetries == 0:
		cfg.MaxRetries = defaultMaxRetries
	case cfg.MaxRetries < 0:
		cfg.MaxRetries = 0
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = defaultRetryInterval
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}

	c := &Client{
		config:  cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimitPerSec), cfg.RateLimitBurst),
		logger:  zap.NewNop(),
		tracer:  otel.Tracer("popstats/internal/gateway/popapi"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// ConfigFromEnv reads the client configuration; unset values fall back to
// the defaults applied by NewWithConfig.
func ConfigFromEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("popapi: parse env: %w", err)
	}
	return cfg, nil
}

func (c *Client) Countries(ctx context.Context) ([]model.Country, error) {
	var countries []model.Country
	if err := c.doJSON(ctx, "countries", nil, &countries); err != nil {
		return nil, err
	}
	if len(countries) == 0 {
		return nil, fmt.Errorf("popapi: countries: %w", gateway.ErrEmptyResult)
	}
	for _, country := range countries {
		if err := country.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %v", gateway.ErrInvalidResponse, err)
		}
	}
	return countries, nil
}

func (c *Client) Population(ctx context.Context, codes []string) ([]model.PopulationData, error) {
	escaped := make([]string, 0, len(codes))
	for _, code := range codes {
		code = strings.TrimSpace(code)
		if code == "" {
			continue
		}
		escaped = append(escaped, url.PathEscape(code))
	}
	if len(escaped) == 0 {
		return nil, errNoCodes
	}

	var data []model.PopulationData
	if err := c.doJSON(ctx, "countries/"+strings.Join(escaped, ",")+"/population", nil, &data); err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("popapi: population: %w", gateway.ErrEmptyResult)
	}
	for _, series := range data {
		if err := series.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %v", gateway.ErrInvalidResponse, err)
		}
	}
	return data, nil
}

func (c *Client) GrowthMetrics(ctx context.Context, code string, year int) (model.GrowthMetrics, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return model.GrowthMetrics{}, errNoCodes
	}
	path := "countries/" + url.PathEscape(code) + "/growth/" + strconv.Itoa(year)

	var metrics model.GrowthMetrics
	if err := c.doJSON(ctx, path, nil, &metrics); err != nil {
		return model.GrowthMetrics{}, err
	}
	if err := metrics.Validate(); err != nil {
		return model.GrowthMetrics{}, fmt.Errorf("%w: %v", gateway.ErrInvalidResponse, err)
	}
	return metrics, nil
}

func (c *Client) PopulationTrends(ctx context.Context, code string, years model.YearRange) ([]model.PopulationTrend, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, errNoCodes
	}
	params := url.Values{}
	if years.StartYear != 0 {
		params.Set("start_year", strconv.Itoa(years.StartYear))
	}
	if years.EndYear != 0 {
		params.Set("end_year", strconv.Itoa(years.EndYear))
	}

	var trends []model.PopulationTrend
	if err := c.doJSON(ctx, "analytics/trends/"+url.PathEscape(code), params, &trends); err != nil {
		return nil, err
	}
	if len(trends) == 0 {
		return nil, fmt.Errorf("popapi: trends %s: %w", code, gateway.ErrEmptyResult)
	}
	for _, trend := range trends {
		if err := trend.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", gateway.ErrInvalidResponse, code, err)
		}
	}
	return trends, nil
}

func (c *Client) Dashboard(ctx context.Context, year int) (model.AnalyticsData, error) {
	params := url.Values{}
	if year != 0 {
		params.Set("year", strconv.Itoa(year))
	}

	var data model.AnalyticsData
	if err := c.doJSON(ctx, "analytics/dashboard", params, &data); err != nil {
		return model.AnalyticsData{}, err
	}
	if err := data.Validate(); err != nil {
		return model.AnalyticsData{}, fmt.Errorf("%w: %v", gateway.ErrInvalidResponse, err)
	}
	return data, nil
}

func (c *Client) doJSON(ctx context.Context, path string, params url.Values, dest any) error {
	body, err := c.doRequest(ctx, path, params)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, dest); err != nil {
		return fmt.Errorf("%w: %s: %v", gateway.ErrInvalidResponse, path, err)
	}
	return nil
}

func (c *Client) doRequest(ctx context.Context, path string, params url.Values) ([]byte, error) {
	endpoint := c.buildURL(path, params)

	ctx, span := c.tracer.Start(ctx, "popapi.get", trace.WithAttributes(
		attribute.String("popapi.path", path),
	))
	defer span.End()

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.config.RetryInterval

	attempt := 0
	body, err := backoff.Retry(ctx, func() ([]byte, error) {
		attempt++
		body, err := c.get(ctx, endpoint)
		if err == nil {
			return body, nil
		}
		if !retryable(ctx, err) {
			return nil, backoff.Permanent(err)
		}
		c.logger.Debug("retrying request",
			zap.String("path", path),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		return nil, err
	}, backoff.WithBackOff(policy), backoff.WithMaxTries(uint(c.config.MaxRetries+1)))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.logger.Warn("request failed", zap.String("path", path), zap.Int("attempts", attempt), zap.Error(err))
		return nil, err
	}
	return body, nil
}

func (c *Client) get(ctx context.Context, endpoint string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.config.UserAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", gateway.ErrNotFound, errorDetail(body))
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, &gateway.StatusError{StatusCode: resp.StatusCode, Detail: errorDetail(body)}
	}
	return body, nil
}

func (c *Client) buildURL(path string, params url.Values) string {
	endpoint := c.config.BaseURL + "/" + strings.TrimLeft(path, "/")
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}
	return endpoint
}

func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	if errors.Is(err, gateway.ErrNotFound) {
		return false
	}
	var statusErr *gateway.StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Retryable()
	}
	return true
}

// errorDetail extracts the server's {"detail": ...} message, falling back to
// the trimmed body.
func errorDetail(body []byte) string {
	var payload struct {
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Detail != "" {
		return payload.Detail
	}
	if len(body) > maxErrorBody {
		body = body[:maxErrorBody]
	}
	return strings.TrimSpace(string(body))
}

var _ gateway.Gateway = (*Client)(nil)
