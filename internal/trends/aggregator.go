package trends

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"popstats/internal/gateway"
	"popstats/internal/model"
)

type Policy string

const (
	// FailAll aborts the whole aggregation on the first entity failure and
	// discards everything already fetched.
	FailAll Policy = "fail-all"
	// Isolate keeps successful entities and records per-entity errors.
	Isolate Policy = "isolate"
)

const (
	DefaultTopN           = 5
	defaultMaxConcurrency = 8
)

var ErrAggregation = errors.New("trends: failed to load population trends")

type Config struct {
	Policy         Policy `yaml:"policy"`
	TopN           int    `yaml:"top_n"`
	MaxConcurrency int    `yaml:"max_concurrency"`
}

type Result struct {
	Trends map[string][]model.PopulationTrend
	Errors map[string]error
}

// Codes returns the codes that produced trends, sorted.
func (r Result) Codes() []string {
	out := make([]string, 0, len(r.Trends))
	for code := range r.Trends {
		out = append(out, code)
	}
	sort.Strings(out)
	return out
}

func (r Result) Partial() bool {
	return len(r.Errors) > 0
}

type Aggregator struct {
	source gateway.TrendSource
	config Config
	logger *zap.Logger
	tracer trace.Tracer
}

func ParsePolicy(value string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", string(FailAll), "failall":
		return FailAll, nil
	case string(Isolate):
		return Isolate, nil
	default:
		return "", fmt.Errorf("trends: unknown failure policy: %s", value)
	}
}

// New normalises cfg.Policy; an unknown policy falls back to FailAll.
func New(source gateway.TrendSource, cfg Config, logger *zap.Logger) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}
	policy, err := ParsePolicy(string(cfg.Policy))
	if err != nil {
		logger.Warn("unknown trend failure policy, using fail-all", zap.String("policy", string(cfg.Policy)))
		policy = FailAll
	}
	cfg.Policy = policy
	if cfg.TopN <= 0 {
		cfg.TopN = DefaultTopN
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = defaultMaxConcurrency
	}
	return &Aggregator{
		source: source,
		config: cfg,
		logger: logger,
		tracer: otel.Tracer("popstats/internal/trends"),
	}
}

func (a *Aggregator) Config() Config {
	return a.config
}

// AggregateTop fans out over the first TopN entries of an already ranked
// list.
func (a *Aggregator) AggregateTop(ctx context.Context, ranked []model.TopCountry, years model.YearRange) (Result, error) {
	limit := a.config.TopN
	if len(ranked) < limit {
		limit = len(ranked)
	}
	codes := make([]string, 0, limit)
	for _, country := range ranked[:limit] {
		codes = append(codes, country.Code)
	}
	return a.Aggregate(ctx, codes, years)
}

// Aggregate fetches the trend series of every distinct code concurrently and
// merges them keyed by code once all requests have completed.
func (a *Aggregator) Aggregate(ctx context.Context, codes []string, years model.YearRange) (Result, error) {
	if err := years.Validate(); err != nil {
		return Result{}, err
	}
	codes = uniqueCodes(codes)

	ctx, span := a.tracer.Start(ctx, "trends.aggregate", trace.WithAttributes(
		attribute.Int("trends.entities", len(codes)),
		attribute.String("trends.policy", string(a.config.Policy)),
		attribute.Int("trends.start_year", years.StartYear),
		attribute.Int("trends.end_year", years.EndYear),
	))
	defer span.End()

	slots := make([][]model.PopulationTrend, len(codes))
	failures := make([]error, len(codes))

	group := &errgroup.Group{}
	fetchCtx := ctx
	if a.config.Policy == FailAll {
		group, fetchCtx = errgroup.WithContext(ctx)
	}
	group.SetLimit(a.config.MaxConcurrency)

	for i, code := range codes {
		group.Go(func() error {
			trends, err := a.source.PopulationTrends(fetchCtx, code, years)
			if err != nil {
				failures[i] = err
				if a.config.Policy == FailAll {
					return fmt.Errorf("%s: %w", code, err)
				}
				a.logger.Warn("trend fetch failed", zap.String("code", code), zap.Error(err))
				return nil
			}
			slots[i] = sortByYear(trends)
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, "aggregation failed")
		a.logger.Warn("trend aggregation failed", zap.Int("entities", len(codes)), zap.Error(err))
		return Result{}, fmt.Errorf("%w: %w", ErrAggregation, err)
	}

	result := Result{
		Trends: make(map[string][]model.PopulationTrend, len(codes)),
		Errors: make(map[string]error),
	}
	for i, code := range codes {
		if failures[i] != nil {
			result.Errors[code] = failures[i]
			continue
		}
		result.Trends[code] = slots[i]
	}

	if len(codes) > 0 && len(result.Trends) == 0 {
		err := fmt.Errorf("%w: all %d requests failed: %w", ErrAggregation, len(codes), errors.Join(failures...))
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, "all entities failed")
		return result, err
	}
	if result.Partial() {
		span.SetAttributes(attribute.Int("trends.failed", len(result.Errors)))
	}
	return result, nil
}

func uniqueCodes(codes []string) []string {
	seen := make(map[string]struct{}, len(codes))
	out := make([]string, 0, len(codes))
	for _, code := range codes {
		code = strings.TrimSpace(code)
		if code == "" {
			continue
		}
		if _, ok := seen[code]; ok {
			continue
		}
		seen[code] = struct{}{}
		out = append(out, code)
	}
	return out
}

func sortByYear(trends []model.PopulationTrend) []model.PopulationTrend {
	out := append([]model.PopulationTrend(nil), trends...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Year < out[j].Year })
	return out
}
