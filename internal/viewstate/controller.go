package viewstate

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/biter777/countries"
	"go.uber.org/zap"

	"popstats/internal/gateway"
	"popstats/internal/model"
	"popstats/internal/trends"
)

// ErrSuperseded is returned by a refresh whose result was dropped because a
// newer refresh of the same view started after it.
var ErrSuperseded = errors.New("viewstate: refresh superseded")

// generation tracks the latest refresh of one fetch. Starting a refresh
// cancels the previous one; only the latest may write to the store.
type generation struct {
	mu     sync.Mutex
	seq    uint64
	cancel context.CancelFunc
}

func (g *generation) begin(ctx context.Context) (context.Context, uint64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.cancel != nil {
		g.cancel()
	}
	ctx, cancel := context.WithCancel(ctx)
	g.seq++
	g.cancel = cancel
	return ctx, g.seq
}

// commit runs fn while seq is still the latest generation. fn must not start
// a refresh synchronously.
func (g *generation) commit(seq uint64, fn func()) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if seq != g.seq {
		return false
	}
	fn()
	return true
}

func (g *generation) finish(seq uint64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if seq == g.seq && g.cancel != nil {
		g.cancel()
		g.cancel = nil
	}
}

// observer runs refreshes triggered by parameter changes in the background.
type observer struct {
	wg sync.WaitGroup
}

func (o *observer) spawn(fn func()) {
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		fn()
	}()
}

// Wait blocks until every background refresh has returned.
func (o *observer) Wait() {
	o.wg.Wait()
}

type AnalyticsController struct {
	observer
	gateway    gateway.Gateway
	aggregator *trends.Aggregator
	store      *Store[AnalyticsView]
	logger     *zap.Logger
	gen        generation
}

func NewAnalyticsController(gw gateway.Gateway, aggregator *trends.Aggregator, store *Store[AnalyticsView], logger *zap.Logger) *AnalyticsController {
	if logger == nil {
		logger = zap.NewNop()
	}
	if aggregator == nil {
		aggregator = trends.New(gw, trends.Config{}, logger)
	}
	return &AnalyticsController{gateway: gw, aggregator: aggregator, store: store, logger: logger}
}

func (c *AnalyticsController) Store() *Store[AnalyticsView] {
	return c.store
}

// Refresh loads the dashboard for the selected year and the trends of its
// top populated countries over the year range.
func (c *AnalyticsController) Refresh(ctx context.Context) error {
	ctx, seq := c.gen.begin(ctx)
	defer c.gen.finish(seq)

	c.gen.commit(seq, func() { c.store.Dispatch(FetchStart{}) })
	view := c.store.State()

	payload, err := c.load(ctx, view)
	if err != nil {
		c.logger.Warn("analytics refresh failed",
			zap.Int("year", view.SelectedYear),
			zap.Int("start_year", view.YearRange.StartYear),
			zap.Int("end_year", view.YearRange.EndYear),
			zap.Error(err),
		)
		if !c.gen.commit(seq, func() { c.store.Dispatch(FetchError{Message: MsgAnalytics}) }) {
			return ErrSuperseded
		}
		return err
	}
	if !c.gen.commit(seq, func() { c.store.Dispatch(FetchSuccess[*AnalyticsPayload]{Payload: payload}) }) {
		c.logger.Debug("discarding superseded analytics response", zap.Uint64("generation", seq))
		return ErrSuperseded
	}
	return nil
}

func (c *AnalyticsController) load(ctx context.Context, view AnalyticsView) (*AnalyticsPayload, error) {
	analytics, err := c.gateway.Dashboard(ctx, view.SelectedYear)
	if err != nil {
		return nil, fmt.Errorf("load dashboard %d: %w", view.SelectedYear, err)
	}
	result, err := c.aggregator.AggregateTop(ctx, analytics.TopPopulatedCountries, view.YearRange)
	if err != nil {
		return nil, err
	}

	payload := &AnalyticsPayload{Analytics: analytics, GrowthTrends: result.Trends}
	if payload.GrowthTrends == nil {
		payload.GrowthTrends = map[string][]model.PopulationTrend{}
	}
	if result.Partial() {
		payload.TrendErrors = make(map[string]string, len(result.Errors))
		for code, cause := range result.Errors {
			c.logger.Warn("trend series unavailable", zap.String("code", code), zap.Error(cause))
			payload.TrendErrors[code] = MsgTrends
		}
	}
	return payload, nil
}

// Observe refreshes in the background whenever the selected year or the
// year range changes. The returned func stops observing.
func (c *AnalyticsController) Observe(ctx context.Context) func() {
	return c.store.Subscribe(func(prev, next AnalyticsView) {
		if prev.SelectedYear == next.SelectedYear && prev.YearRange == next.YearRange {
			return
		}
		c.spawn(func() { _ = c.Refresh(ctx) })
	})
}

type ComparisonController struct {
	observer
	gateway    gateway.Gateway
	store      *Store[ComparisonView]
	logger     *zap.Logger
	population generation
	metrics    generation
}

func NewComparisonController(gw gateway.Gateway, store *Store[ComparisonView], logger *zap.Logger) *ComparisonController {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ComparisonController{gateway: gw, store: store, logger: logger}
}

func (c *ComparisonController) Store() *Store[ComparisonView] {
	return c.store
}

// LoadCountries fills the list the selector filters over.
func (c *ComparisonController) LoadCountries(ctx context.Context) error {
	list, err := c.gateway.Countries(ctx)
	if err != nil {
		c.logger.Warn("loading countries failed", zap.Error(err))
		c.store.Dispatch(FetchError{Message: MsgCountries})
		return err
	}
	c.store.Dispatch(SetAvailableCountries{Countries: list})
	return nil
}

// RefreshPopulation loads the series of the selected countries. An empty
// selection clears the data without calling the gateway.
func (c *ComparisonController) RefreshPopulation(ctx context.Context) error {
	ctx, seq := c.population.begin(ctx)
	defer c.population.finish(seq)

	view := c.store.State()
	if len(view.Selected) == 0 {
		c.population.commit(seq, func() {
			c.store.Dispatch(FetchSuccess[[]model.PopulationData]{Payload: []model.PopulationData{}})
		})
		return nil
	}

	c.population.commit(seq, func() { c.store.Dispatch(FetchStart{}) })
	data, err := c.gateway.Population(ctx, view.Selected)
	if err != nil {
		c.logger.Warn("loading population failed", zap.Strings("codes", view.Selected), zap.Error(err))
		if !c.population.commit(seq, func() { c.store.Dispatch(FetchError{Message: MsgPopulation}) }) {
			return ErrSuperseded
		}
		return err
	}

	named := make([]model.PopulationData, len(data))
	for i, series := range data {
		if series.Name == "" {
			series.Name = displayName(series.Code, view)
		}
		named[i] = series
	}
	if !c.population.commit(seq, func() {
		c.store.Dispatch(FetchSuccess[[]model.PopulationData]{Payload: named})
	}) {
		c.logger.Debug("discarding superseded population response", zap.Uint64("generation", seq))
		return ErrSuperseded
	}
	return nil
}

// ShowGrowthMetrics loads the 1, 3 and 5 year deltas of one country at one
// year and makes that year the selected one.
func (c *ComparisonController) ShowGrowthMetrics(ctx context.Context, code string, year int) error {
	ctx, seq := c.metrics.begin(ctx)
	defer c.metrics.finish(seq)

	metrics, err := c.gateway.GrowthMetrics(ctx, code, year)
	if err != nil {
		c.logger.Warn("loading growth metrics failed", zap.String("code", code), zap.Int("year", year), zap.Error(err))
		if !c.metrics.commit(seq, func() { c.store.Dispatch(FetchError{Message: MsgGrowth}) }) {
			return ErrSuperseded
		}
		return err
	}

	selected := &SelectedMetrics{
		Metrics:     metrics,
		CountryName: displayName(code, c.store.State()),
		Year:        year,
	}
	if !c.metrics.commit(seq, func() {
		c.store.Dispatch(SetSelectedMetrics{Metrics: selected}, SetSelectedYear{Year: year})
	}) {
		return ErrSuperseded
	}
	return nil
}

// Observe refreshes the population series whenever the selection changes.
func (c *ComparisonController) Observe(ctx context.Context) func() {
	return c.store.Subscribe(func(prev, next ComparisonView) {
		if slices.Equal(prev.Selected, next.Selected) {
			return
		}
		c.spawn(func() { _ = c.RefreshPopulation(ctx) })
	})
}

type CountriesController struct {
	gateway gateway.Gateway
	store   *Store[CountriesView]
	logger  *zap.Logger
	gen     generation
}

func NewCountriesController(gw gateway.Gateway, store *Store[CountriesView], logger *zap.Logger) *CountriesController {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CountriesController{gateway: gw, store: store, logger: logger}
}

func (c *CountriesController) Store() *Store[CountriesView] {
	return c.store
}

func (c *CountriesController) Refresh(ctx context.Context) error {
	ctx, seq := c.gen.begin(ctx)
	defer c.gen.finish(seq)

	c.gen.commit(seq, func() { c.store.Dispatch(FetchStart{}) })
	list, err := c.gateway.Countries(ctx)
	if err != nil {
		c.logger.Warn("loading countries failed", zap.Error(err))
		if !c.gen.commit(seq, func() { c.store.Dispatch(FetchError{Message: MsgCountries}) }) {
			return ErrSuperseded
		}
		return err
	}
	if !c.gen.commit(seq, func() { c.store.Dispatch(FetchSuccess[[]model.Country]{Payload: list}) }) {
		return ErrSuperseded
	}
	return nil
}

// displayName prefers names the view already knows, then the ISO registry,
// then the code itself.
func displayName(code string, view ComparisonView) string {
	for _, series := range view.Population.Data {
		if series.Code == code && series.Name != "" {
			return series.Name
		}
	}
	for _, country := range view.Available {
		if country.Code == code && country.Name != "" {
			return country.Name
		}
	}
	if iso := countries.ByName(code); iso != countries.Unknown {
		return iso.String()
	}
	return code
}
