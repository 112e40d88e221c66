package store

import (
	"context"
	"strconv"
	"sync"

	"popstats/internal/model"
)

// Observation is one country's population in one year.
type Observation struct {
	Code       string
	Year       int
	Population float64
}

type Store interface {
	UpsertCountries(ctx context.Context, countries []model.Country) error
	UpsertObservations(ctx context.Context, observations []Observation) error
	ListCountries(ctx context.Context) ([]model.Country, error)
	// Population returns the series of the requested codes in import order.
	// Unknown codes are skipped.
	Population(ctx context.Context, codes []string) ([]model.PopulationData, error)
	AllPopulation(ctx context.Context) ([]model.PopulationData, error)
	Close() error
}

// MemoryStore keeps everything in maps. Used by tests and by the server when
// no database path is configured.
type MemoryStore struct {
	mu     sync.RWMutex
	order  []string
	names  map[string]string
	series map[string]map[int]float64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		names:  make(map[string]string),
		series: make(map[string]map[int]float64),
	}
}

func (s *MemoryStore) UpsertCountries(ctx context.Context, countries []model.Country) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, country := range countries {
		if _, ok := s.names[country.Code]; !ok {
			s.order = append(s.order, country.Code)
		}
		s.names[country.Code] = country.Name
	}
	return nil
}

func (s *MemoryStore) UpsertObservations(ctx context.Context, observations []Observation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, observation := range observations {
		if _, ok := s.names[observation.Code]; !ok {
			s.order = append(s.order, observation.Code)
			s.names[observation.Code] = ""
		}
		years, ok := s.series[observation.Code]
		if !ok {
			years = make(map[int]float64)
			s.series[observation.Code] = years
		}
		years[observation.Year] = observation.Population
	}
	return nil
}

func (s *MemoryStore) ListCountries(ctx context.Context) ([]model.Country, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Country, 0, len(s.order))
	for _, code := range s.order {
		out = append(out, model.Country{Code: code, Name: s.names[code]})
	}
	return out, nil
}

func (s *MemoryStore) Population(ctx context.Context, codes []string) ([]model.PopulationData, error) {
	wanted := make(map[string]struct{}, len(codes))
	for _, code := range codes {
		wanted[code] = struct{}{}
	}
	return s.collect(func(code string) bool {
		_, ok := wanted[code]
		return ok
	}), nil
}

func (s *MemoryStore) AllPopulation(ctx context.Context) ([]model.PopulationData, error) {
	return s.collect(func(string) bool { return true }), nil
}

func (s *MemoryStore) collect(keep func(code string) bool) []model.PopulationData {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.PopulationData, 0)
	for _, code := range s.order {
		if !keep(code) {
			continue
		}
		out = append(out, model.PopulationData{
			Code:       code,
			Name:       s.names[code],
			Population: yearKeyed(s.series[code]),
		})
	}
	return out
}

func (s *MemoryStore) Close() error {
	return nil
}

func yearKeyed(series map[int]float64) map[string]float64 {
	out := make(map[string]float64, len(series))
	for year, value := range series {
		out[strconv.Itoa(year)] = value
	}
	return out
}
