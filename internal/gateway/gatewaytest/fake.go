// Package gatewaytest provides an in-memory gateway.Gateway for tests.
package gatewaytest

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"popstats/internal/gateway"
	"popstats/internal/model"
)

// Fake serves canned data. Hooks, when set, take precedence over the canned
// maps so tests can inject latency, failures or cancellation checks.
type Fake struct {
	CountryList []model.Country
	Series      map[string]model.PopulationData
	Growth      map[string]model.GrowthMetrics
	Trends      map[string][]model.PopulationTrend
	Analytics   map[int]model.AnalyticsData
	Failures    map[string]error

	TrendsHook     func(ctx context.Context, code string, years model.YearRange) ([]model.PopulationTrend, error)
	DashboardHook  func(ctx context.Context, year int) (model.AnalyticsData, error)
	PopulationHook func(ctx context.Context, codes []string) ([]model.PopulationData, error)

	mu    sync.Mutex
	calls []string
}

func (f *Fake) record(call string) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
}

// Calls returns the recorded calls sorted, since fan-out order is not
// deterministic.
func (f *Fake) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := append([]string(nil), f.calls...)
	sort.Strings(out)
	return out
}

func (f *Fake) failure(key string) error {
	if f.Failures == nil {
		return nil
	}
	return f.Failures[key]
}

func (f *Fake) Countries(ctx context.Context) ([]model.Country, error) {
	f.record("countries")
	if err := f.failure("countries"); err != nil {
		return nil, err
	}
	if len(f.CountryList) == 0 {
		return nil, gateway.ErrEmptyResult
	}
	return append([]model.Country(nil), f.CountryList...), nil
}

func (f *Fake) Population(ctx context.Context, codes []string) ([]model.PopulationData, error) {
	f.record(fmt.Sprintf("population:%v", codes))
	if f.PopulationHook != nil {
		return f.PopulationHook(ctx, codes)
	}
	if err := f.failure("population"); err != nil {
		return nil, err
	}
	out := make([]model.PopulationData, 0, len(codes))
	for _, code := range codes {
		if series, ok := f.Series[code]; ok {
			out = append(out, series)
		}
	}
	if len(out) == 0 {
		return nil, gateway.ErrNotFound
	}
	return out, nil
}

func (f *Fake) GrowthMetrics(ctx context.Context, code string, year int) (model.GrowthMetrics, error) {
	f.record(fmt.Sprintf("growth:%s:%d", code, year))
	if err := f.failure("growth:" + code); err != nil {
		return model.GrowthMetrics{}, err
	}
	metrics, ok := f.Growth[code]
	if !ok {
		return model.GrowthMetrics{}, gateway.ErrNotFound
	}
	return metrics, nil
}

func (f *Fake) PopulationTrends(ctx context.Context, code string, years model.YearRange) ([]model.PopulationTrend, error) {
	f.record(fmt.Sprintf("trends:%s:%d-%d", code, years.StartYear, years.EndYear))
	if f.TrendsHook != nil {
		return f.TrendsHook(ctx, code, years)
	}
	if err := f.failure("trends:" + code); err != nil {
		return nil, err
	}
	all, ok := f.Trends[code]
	if !ok {
		return nil, gateway.ErrNotFound
	}
	out := make([]model.PopulationTrend, 0, len(all))
	for _, trend := range all {
		if years.Contains(trend.Year) {
			out = append(out, trend)
		}
	}
	return out, nil
}

func (f *Fake) Dashboard(ctx context.Context, year int) (model.AnalyticsData, error) {
	f.record(fmt.Sprintf("dashboard:%d", year))
	if f.DashboardHook != nil {
		return f.DashboardHook(ctx, year)
	}
	if err := f.failure("dashboard"); err != nil {
		return model.AnalyticsData{}, err
	}
	data, ok := f.Analytics[year]
	if !ok {
		return model.AnalyticsData{}, gateway.ErrNotFound
	}
	return data, nil
}

// LinearTrends builds one record per year growing by step from base, with
// growth rates relative to the previous year.
func LinearTrends(years model.YearRange, base, step float64) []model.PopulationTrend {
	out := make([]model.PopulationTrend, 0, years.EndYear-years.StartYear+1)
	prev := 0.0
	for year := years.StartYear; year <= years.EndYear; year++ {
		pop := base + step*float64(year-years.StartYear)
		trend := model.PopulationTrend{Year: year, Population: pop}
		if year > years.StartYear && prev != 0 {
			trend.GrowthRate = model.Float((pop - prev) / prev * 100)
		}
		out = append(out, trend)
		prev = pop
	}
	return out
}

var _ gateway.Gateway = (*Fake)(nil)
