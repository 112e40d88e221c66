package model

import (
	"sort"
	"strconv"
)

// Queries and dashboard defaults stop at LastDataYear; the store keeps the
// export through LastStoredYear.
const (
	FirstDataYear  = 1960
	LastDataYear   = 2022
	LastStoredYear = 2023
)

type Country struct {
	Code string `json:"country_code"`
	Name string `json:"country_name"`
}

type PopulationData struct {
	Code       string             `json:"country_code"`
	Name       string             `json:"country_name"`
	Population map[string]float64 `json:"population"`
}

// Years returns the years present in the series, ascending. Keys that are
// not plain years are ignored.
func (p PopulationData) Years() []int {
	years := make([]int, 0, len(p.Population))
	for key := range p.Population {
		year, err := strconv.Atoi(key)
		if err != nil {
			continue
		}
		years = append(years, year)
	}
	sort.Ints(years)
	return years
}

func (p PopulationData) Value(year int) (float64, bool) {
	value, ok := p.Population[strconv.Itoa(year)]
	return value, ok
}

// Series returns the population keyed by integer year.
func (p PopulationData) Series() map[int]float64 {
	series := make(map[int]float64, len(p.Population))
	for key, value := range p.Population {
		year, err := strconv.Atoi(key)
		if err != nil {
			continue
		}
		series[year] = value
	}
	return series
}

// Delta is a fixed-window population change. A nil field means there was not
// enough history to compute it.
type Delta struct {
	Absolute   *int64   `json:"absolute"`
	Percentage *float64 `json:"percentage"`
}

type GrowthMetrics struct {
	OneYear   Delta `json:"one_year"`
	ThreeYear Delta `json:"three_year"`
	FiveYear  Delta `json:"five_year"`
}

type YearRange struct {
	StartYear int `json:"start_year" yaml:"start_year"`
	EndYear   int `json:"end_year" yaml:"end_year"`
}

// RangeEndingAt returns the window of span years ending at year, the default
// range used by the analytics dashboard.
func RangeEndingAt(year, span int) YearRange {
	return YearRange{StartYear: year - span, EndYear: year}
}

func (r YearRange) Contains(year int) bool {
	return year >= r.StartYear && year <= r.EndYear
}

type PopulationTrend struct {
	Year       int      `json:"year"`
	Population float64  `json:"population"`
	GrowthRate *float64 `json:"growth_rate"`
}

type RegionalData struct {
	RegionName      string   `json:"region_name"`
	TotalPopulation float64  `json:"total_population"`
	Countries       []string `json:"countries"`
	GrowthRate      float64  `json:"growth_rate"`
}

type PopulationDistribution struct {
	Ranges           []string            `json:"ranges"`
	Counts           []int               `json:"counts"`
	CountriesInRange map[string][]string `json:"countries_in_range"`
}

type TopCountry struct {
	Name       string  `json:"country_name"`
	Code       string  `json:"country_code"`
	Value      float64 `json:"value"`
	GrowthRate float64 `json:"growth_rate"`
}

type AnalyticsData struct {
	TotalPopulation        float64                `json:"total_population"`
	AverageGrowthRate      float64                `json:"average_growth_rate"`
	PopulationDistribution PopulationDistribution `json:"population_distribution"`
	TopGrowingCountries    []TopCountry           `json:"top_growing_countries"`
	TopPopulatedCountries  []TopCountry           `json:"top_populated_countries"`
	RegionalData           []RegionalData         `json:"regional_data"`
}

// Float returns a pointer to v, for optional numeric fields.
func Float(v float64) *float64 {
	return &v
}

func Int(v int64) *int64 {
	return &v
}
