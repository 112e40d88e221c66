package analytics

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"popstats/internal/gateway"
	"popstats/internal/model"
	"popstats/internal/store"
)

// Service answers the population API from a store. It satisfies
// gateway.Gateway, so the client side can run against a local database.
type Service struct {
	store  store.Store
	logger *zap.Logger
}

func NewService(st store.Store, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: st, logger: logger}
}

// Countries lists every stored country except regional aggregates.
func (s *Service) Countries(ctx context.Context) ([]model.Country, error) {
	all, err := s.store.ListCountries(ctx)
	if err != nil {
		return nil, fmt.Errorf("list countries: %w", err)
	}
	out := make([]model.Country, 0, len(all))
	for _, country := range all {
		if IsAggregate(country.Code) || country.Name == "" {
			continue
		}
		out = append(out, country)
	}
	return out, nil
}

func (s *Service) Population(ctx context.Context, codes []string) ([]model.PopulationData, error) {
	if len(codes) == 0 {
		return nil, invalidf("Country codes cannot be empty")
	}
	var invalid []string
	for _, code := range codes {
		if strings.TrimSpace(code) == "" {
			invalid = append(invalid, code)
		}
	}
	if len(invalid) > 0 {
		return nil, invalidf("Invalid country codes: %q", invalid)
	}

	data, err := s.store.Population(ctx, codes)
	if err != nil {
		return nil, fmt.Errorf("load population: %w", err)
	}
	if len(data) == 0 {
		return nil, notFoundf("No data found for specified countries")
	}
	return data, nil
}

func (s *Service) GrowthMetrics(ctx context.Context, code string, year int) (model.GrowthMetrics, error) {
	if strings.TrimSpace(code) == "" {
		return model.GrowthMetrics{}, invalidf("Country code cannot be empty")
	}
	if err := CheckYear(year); err != nil {
		return model.GrowthMetrics{}, err
	}
	series, err := s.series(ctx, code)
	if err != nil {
		return model.GrowthMetrics{}, err
	}
	return Growth(series, year)
}

// PopulationTrends defaults a zero start or end year to the dataset bounds.
func (s *Service) PopulationTrends(ctx context.Context, code string, years model.YearRange) ([]model.PopulationTrend, error) {
	if strings.TrimSpace(code) == "" {
		return nil, invalidf("Country code cannot be empty")
	}
	years, err := ResolveRange(years)
	if err != nil {
		return nil, err
	}
	series, err := s.series(ctx, code)
	if err != nil {
		return nil, err
	}
	trends := Trends(series, years)
	if len(trends) == 0 {
		return nil, notFoundf("No population trends found for country code %s", code)
	}
	return trends, nil
}

// Dashboard defaults a zero year to the latest data year.
func (s *Service) Dashboard(ctx context.Context, year int) (model.AnalyticsData, error) {
	if year == 0 {
		year = model.LastDataYear
	}
	if err := CheckYear(year); err != nil {
		return model.AnalyticsData{}, err
	}
	all, err := s.store.AllPopulation(ctx)
	if err != nil {
		return model.AnalyticsData{}, fmt.Errorf("load population: %w", err)
	}
	data, err := Dashboard(all, year)
	if err != nil {
		return model.AnalyticsData{}, err
	}
	s.logger.Debug("dashboard computed", zap.Int("year", year), zap.Int("series", len(all)))
	return data, nil
}

func (s *Service) series(ctx context.Context, code string) (model.PopulationData, error) {
	data, err := s.store.Population(ctx, []string{code})
	if err != nil {
		return model.PopulationData{}, fmt.Errorf("load population: %w", err)
	}
	if len(data) == 0 {
		return model.PopulationData{}, notFoundf("Unknown country code %s", code)
	}
	return data[0], nil
}

var _ gateway.Gateway = (*Service)(nil)
