package viewstate

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"popstats/internal/gateway"
	"popstats/internal/gateway/gatewaytest"
	"popstats/internal/model"
	"popstats/internal/trends"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestReduceTransitions(t *testing.T) {
	s := State[string]{Data: "old", Error: "previous failure"}

	s = Reduce(s, FetchStart{})
	assert.Equal(t, State[string]{Data: "old", Loading: true}, s, "start keeps data and clears error")

	s = Reduce(s, FetchSuccess[string]{Payload: "new"})
	assert.Equal(t, State[string]{Data: "new"}, s)

	s = Reduce(Reduce(s, FetchStart{}), FetchError{Message: "boom"})
	assert.Equal(t, State[string]{Data: "new", Error: "boom"}, s, "error leaves data untouched")
}

func TestReduceIgnoresForeignActions(t *testing.T) {
	s := State[string]{Data: "kept", Loading: true}
	assert.Equal(t, s, Reduce(s, FetchSuccess[int]{Payload: 1}))
	assert.Equal(t, s, Reduce(s, SelectCountry{Code: "AAA"}))
	assert.Equal(t, s, Reduce(s, nil))
}

func TestReplayIsDeterministic(t *testing.T) {
	actions := []Action{
		SetAvailableCountries{Countries: []model.Country{{Code: "AAA", Name: "Alpha"}}},
		SelectCountry{Code: "AAA"},
		FetchStart{},
		FetchSuccess[[]model.PopulationData]{Payload: []model.PopulationData{{Code: "AAA"}}},
		SelectCountry{Code: "BBB"},
		SetContinent{Continent: "Asia"},
		FetchError{Message: MsgPopulation},
	}

	first := Replay(NewComparisonView(), ReduceComparison, actions...)
	second := Replay(NewComparisonView(), ReduceComparison, actions...)
	assert.Equal(t, first, second)
	assert.Equal(t, []string{"AAA", "BBB"}, first.Selected)
	assert.Equal(t, MsgPopulation, first.Population.Error)
	assert.Len(t, first.Population.Data, 1)
}

func TestNewAnalyticsView(t *testing.T) {
	view := NewAnalyticsView(0)
	assert.Equal(t, 2022, view.SelectedYear)
	assert.Equal(t, model.YearRange{StartYear: 2017, EndYear: 2022}, view.YearRange)
	assert.True(t, view.Fetch.Loading)

	next := ReduceAnalytics(view, UpdateYearRange{Range: model.YearRange{StartYear: 2000, EndYear: 2010}})
	assert.Equal(t, 2000, next.YearRange.StartYear)
	assert.True(t, next.Fetch.Loading, "parameter actions leave the fetch state alone")
}

func TestSelectCountryToggleDoesNotAlias(t *testing.T) {
	base := ReduceComparison(NewComparisonView(), SelectCountry{Code: "AAA"})
	withB := ReduceComparison(base, SelectCountry{Code: "BBB"})
	withoutA := ReduceComparison(withB, SelectCountry{Code: "AAA"})

	assert.Equal(t, []string{"AAA"}, base.Selected)
	assert.Equal(t, []string{"AAA", "BBB"}, withB.Selected)
	assert.Equal(t, []string{"BBB"}, withoutA.Selected)
	assert.True(t, withB.IsSelected("BBB"))
	assert.False(t, withoutA.IsSelected("AAA"))
}

func TestFilteredCountries(t *testing.T) {
	view := ReduceComparison(NewComparisonView(), SetAvailableCountries{Countries: []model.Country{
		{Code: "IND", Name: "India"},
		{Code: "IDN", Name: "Indonesia"},
		{Code: "DEU", Name: "Germany"},
		{Code: "XKX", Name: "Kosovo"},
	}})

	view = ReduceComparison(view, SetSearchQuery{Query: "IND"})
	assert.Len(t, view.FilteredCountries(), 2)

	view = ReduceComparison(view, SetSearchQuery{Query: ""})
	view = ReduceComparison(view, SetContinent{Continent: "Europe"})
	assert.Equal(t, []model.Country{{Code: "DEU", Name: "Germany"}}, view.FilteredCountries())

	view = ReduceComparison(view, SetContinent{Continent: model.OtherRegion})
	assert.Equal(t, []model.Country{{Code: "XKX", Name: "Kosovo"}}, view.FilteredCountries())

	view = ReduceComparison(view, SetContinent{Continent: model.OtherRegion})
	assert.Empty(t, view.Continent, "selecting the same continent twice clears the filter")
	assert.Len(t, view.FilteredCountries(), 4)
}

func TestStoreNotifiesSubscribers(t *testing.T) {
	store := NewStore(State[int]{}, Reduce[int])

	var seen []State[int]
	unsubscribe := store.Subscribe(func(prev, next State[int]) {
		seen = append(seen, prev, next)
	})

	store.Dispatch(FetchStart{}, FetchSuccess[int]{Payload: 7})
	require.Len(t, seen, 2)
	assert.Equal(t, State[int]{}, seen[0])
	assert.Equal(t, State[int]{Data: 7}, seen[1])

	unsubscribe()
	store.Dispatch(FetchStart{})
	assert.Len(t, seen, 2)
	assert.True(t, store.State().Loading)
}

func dashboardFake() *gatewaytest.Fake {
	years := model.YearRange{StartYear: 2010, EndYear: 2022}
	return &gatewaytest.Fake{
		Analytics: map[int]model.AnalyticsData{
			2022: {
				TotalPopulation: 300,
				TopPopulatedCountries: []model.TopCountry{
					{Code: "AAA", Name: "Alpha", Value: 200},
					{Code: "BBB", Name: "Beta", Value: 100},
				},
			},
		},
		Trends: map[string][]model.PopulationTrend{
			"AAA": gatewaytest.LinearTrends(years, 150, 5),
			"BBB": gatewaytest.LinearTrends(years, 80, 2),
		},
	}
}

func TestAnalyticsRefresh(t *testing.T) {
	fake := dashboardFake()
	controller := NewAnalyticsController(fake, nil, NewStore(NewAnalyticsView(2022), ReduceAnalytics), nil)

	require.NoError(t, controller.Refresh(context.Background()))

	view := controller.Store().State()
	assert.False(t, view.Fetch.Loading)
	assert.Empty(t, view.Fetch.Error)
	require.NotNil(t, view.Fetch.Data)
	assert.Equal(t, 300.0, view.Fetch.Data.Analytics.TotalPopulation)
	require.Len(t, view.Fetch.Data.GrowthTrends, 2)
	assert.Len(t, view.Fetch.Data.GrowthTrends["AAA"], 6)
	assert.Contains(t, fake.Calls(), "trends:AAA:2017-2022")
}

func TestAnalyticsRefreshFailureKeepsData(t *testing.T) {
	fake := dashboardFake()
	controller := NewAnalyticsController(fake, nil, NewStore(NewAnalyticsView(2022), ReduceAnalytics), nil)
	require.NoError(t, controller.Refresh(context.Background()))

	fake.Failures = map[string]error{"trends:BBB": errors.New("connection reset")}
	err := controller.Refresh(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, trends.ErrAggregation))

	view := controller.Store().State()
	assert.Equal(t, MsgAnalytics, view.Fetch.Error)
	assert.False(t, view.Fetch.Loading)
	require.NotNil(t, view.Fetch.Data, "stale data stays visible")
	assert.Len(t, view.Fetch.Data.GrowthTrends, 2)
}

func TestAnalyticsRefreshIsolatedTrendFailure(t *testing.T) {
	fake := dashboardFake()
	fake.Failures = map[string]error{"trends:BBB": gateway.ErrNotFound}
	aggregator := trends.New(fake, trends.Config{Policy: trends.Isolate}, nil)
	controller := NewAnalyticsController(fake, aggregator, NewStore(NewAnalyticsView(2022), ReduceAnalytics), nil)

	require.NoError(t, controller.Refresh(context.Background()))

	payload := controller.Store().State().Fetch.Data
	require.NotNil(t, payload)
	assert.Len(t, payload.GrowthTrends, 1)
	assert.Equal(t, map[string]string{"BBB": MsgTrends}, payload.TrendErrors)
}

func TestAnalyticsDiscardsStaleResponse(t *testing.T) {
	fake := dashboardFake()
	entered := make(chan struct{})
	release := make(chan struct{})
	var calls atomic.Int32
	fake.DashboardHook = func(ctx context.Context, year int) (model.AnalyticsData, error) {
		if calls.Add(1) == 1 {
			close(entered)
			<-release
			return model.AnalyticsData{TotalPopulation: 1}, nil
		}
		return model.AnalyticsData{TotalPopulation: 2}, nil
	}
	controller := NewAnalyticsController(fake, nil, NewStore(NewAnalyticsView(2022), ReduceAnalytics), nil)

	firstErr := make(chan error, 1)
	go func() { firstErr <- controller.Refresh(context.Background()) }()
	<-entered

	require.NoError(t, controller.Refresh(context.Background()))
	close(release)

	select {
	case err := <-firstErr:
		assert.True(t, errors.Is(err, ErrSuperseded))
	case <-time.After(2 * time.Second):
		t.Fatal("first refresh did not return")
	}
	assert.Equal(t, 2.0, controller.Store().State().Fetch.Data.Analytics.TotalPopulation)
}

func TestAnalyticsObserveRefetchesOnRangeChange(t *testing.T) {
	fake := dashboardFake()
	store := NewStore(NewAnalyticsView(2022), ReduceAnalytics)
	controller := NewAnalyticsController(fake, nil, store, nil)

	stop := controller.Observe(context.Background())
	defer stop()

	store.Dispatch(FetchStart{})
	controller.Wait()
	assert.Empty(t, fake.Calls(), "fetch actions do not trigger a refresh")

	store.Dispatch(UpdateYearRange{Range: model.YearRange{StartYear: 2015, EndYear: 2020}})
	controller.Wait()
	assert.Contains(t, fake.Calls(), "trends:AAA:2015-2020")
	assert.NotNil(t, store.State().Fetch.Data)
}

func comparisonFake() *gatewaytest.Fake {
	return &gatewaytest.Fake{
		CountryList: []model.Country{{Code: "AAA", Name: "Alpha"}, {Code: "BBB", Name: "Beta"}},
		Series: map[string]model.PopulationData{
			"AAA": {Code: "AAA", Population: map[string]float64{"2000": 1, "2001": 2}},
			"BBB": {Code: "BBB", Name: "Beta", Population: map[string]float64{"2000": 3}},
		},
		Growth: map[string]model.GrowthMetrics{
			"AAA": {OneYear: model.Delta{Absolute: model.Int(1), Percentage: model.Float(100)}},
		},
	}
}

func TestComparisonEmptySelectionSkipsGateway(t *testing.T) {
	fake := comparisonFake()
	controller := NewComparisonController(fake, NewStore(NewComparisonView(), ReduceComparison), nil)

	require.NoError(t, controller.RefreshPopulation(context.Background()))
	assert.Empty(t, fake.Calls())

	view := controller.Store().State()
	assert.NotNil(t, view.Population.Data)
	assert.Empty(t, view.Population.Data)
	assert.False(t, view.Population.Loading)
}

func TestComparisonObserveLoadsSelection(t *testing.T) {
	fake := comparisonFake()
	store := NewStore(NewComparisonView(), ReduceComparison)
	controller := NewComparisonController(fake, store, nil)
	require.NoError(t, controller.LoadCountries(context.Background()))

	stop := controller.Observe(context.Background())
	defer stop()

	store.Dispatch(SelectCountry{Code: "AAA"})
	controller.Wait()
	store.Dispatch(SelectCountry{Code: "BBB"})
	controller.Wait()

	view := store.State()
	require.Len(t, view.Population.Data, 2)
	assert.Equal(t, "Alpha", view.Population.Data[0].Name, "name filled from the country list")
	assert.Equal(t, "Beta", view.Population.Data[1].Name)
	assert.Contains(t, fake.Calls(), "population:[AAA BBB]")
}

func TestComparisonGrowthMetrics(t *testing.T) {
	fake := comparisonFake()
	store := NewStore(NewComparisonView(), ReduceComparison)
	controller := NewComparisonController(fake, store, nil)
	require.NoError(t, controller.LoadCountries(context.Background()))

	require.NoError(t, controller.ShowGrowthMetrics(context.Background(), "AAA", 2001))
	view := store.State()
	require.NotNil(t, view.Metrics)
	assert.Equal(t, "Alpha", view.Metrics.CountryName)
	assert.Equal(t, 2001, view.Metrics.Year)
	assert.Equal(t, 2001, view.SelectedYear)

	err := controller.ShowGrowthMetrics(context.Background(), "ZZZ", 2001)
	require.Error(t, err)
	assert.True(t, errors.Is(err, gateway.ErrNotFound))
	assert.Equal(t, MsgGrowth, store.State().Population.Error)
	assert.NotNil(t, store.State().Metrics, "previous metrics are kept")
}

func TestComparisonPopulationFailure(t *testing.T) {
	fake := comparisonFake()
	fake.Failures = map[string]error{"population": errors.New("timeout")}
	store := NewStore(ReduceComparison(NewComparisonView(), SelectCountry{Code: "AAA"}), ReduceComparison)
	controller := NewComparisonController(fake, store, nil)

	require.Error(t, controller.RefreshPopulation(context.Background()))
	assert.Equal(t, MsgPopulation, store.State().Population.Error)
	assert.False(t, store.State().Population.Loading)
}

func TestCountriesRefresh(t *testing.T) {
	fake := comparisonFake()
	controller := NewCountriesController(fake, NewStore(CountriesView{}, ReduceCountries), nil)
	require.NoError(t, controller.Refresh(context.Background()))
	assert.Len(t, controller.Store().State().Data, 2)

	fake.Failures = map[string]error{"countries": errors.New("down")}
	require.Error(t, controller.Refresh(context.Background()))
	state := controller.Store().State()
	assert.Equal(t, MsgCountries, state.Error)
	assert.Len(t, state.Data, 2)
}

func TestDisplayNameFallsBackToCode(t *testing.T) {
	assert.Equal(t, "Alpha", displayName("AAA", ComparisonView{Available: []model.Country{{Code: "AAA", Name: "Alpha"}}}))
	assert.NotEmpty(t, displayName("DEU", ComparisonView{}))
}
