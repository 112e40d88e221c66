package viewmodel

import (
	"sort"
	"strconv"

	"popstats/internal/model"
)

type Dataset struct {
	Label string     `json:"label"`
	Code  string     `json:"code,omitempty"`
	Data  []*float64 `json:"data"`
}

type LineChart struct {
	Labels   []string  `json:"labels"`
	Datasets []Dataset `json:"datasets"`
}

// PopulationChart lays out one dataset per country over the union of all
// years, with nil where a country has no value for a year.
func PopulationChart(data []model.PopulationData) LineChart {
	yearSet := make(map[int]struct{})
	for _, series := range data {
		for _, year := range series.Years() {
			yearSet[year] = struct{}{}
		}
	}
	years := sortedYears(yearSet)

	chart := LineChart{
		Labels:   yearLabels(years),
		Datasets: make([]Dataset, 0, len(data)),
	}
	for _, series := range data {
		points := make([]*float64, len(years))
		for i, year := range years {
			if value, ok := series.Value(year); ok {
				points[i] = model.Float(value)
			}
		}
		label := series.Name
		if label == "" {
			label = series.Code
		}
		chart.Datasets = append(chart.Datasets, Dataset{Label: label, Code: series.Code, Data: points})
	}
	return chart
}

// TrendChart plots aggregated trends, population or growth rate, one dataset
// per code. order fixes the dataset order; when empty the codes are sorted.
func TrendChart(trends map[string][]model.PopulationTrend, names map[string]string, order []string, growth bool) LineChart {
	if len(order) == 0 {
		order = make([]string, 0, len(trends))
		for code := range trends {
			order = append(order, code)
		}
		sort.Strings(order)
	}

	yearSet := make(map[int]struct{})
	for _, series := range trends {
		for _, trend := range series {
			yearSet[trend.Year] = struct{}{}
		}
	}
	years := sortedYears(yearSet)
	index := make(map[int]int, len(years))
	for i, year := range years {
		index[year] = i
	}

	chart := LineChart{Labels: yearLabels(years), Datasets: make([]Dataset, 0, len(order))}
	for _, code := range order {
		series, ok := trends[code]
		if !ok {
			continue
		}
		points := make([]*float64, len(years))
		for _, trend := range series {
			if growth {
				if rate, ok := TrendGrowthRate(trend); ok {
					points[index[trend.Year]] = model.Float(rate)
				}
				continue
			}
			points[index[trend.Year]] = model.Float(trend.Population)
		}
		label := names[code]
		if label == "" {
			label = code
		}
		chart.Datasets = append(chart.Datasets, Dataset{Label: label, Code: code, Data: points})
	}
	return chart
}

type KeyStats struct {
	TotalPopulation    string `json:"total_population"`
	AverageGrowthRate  string `json:"average_growth_rate"`
	DistributionRanges int    `json:"distribution_ranges"`
	TopGrowingCount    int    `json:"top_growing_countries"`
}

type Dashboard struct {
	Stats        KeyStats   `json:"stats"`
	Regions      Projection `json:"regions"`
	TopPopulated Projection `json:"top_populated"`
	TopGrowing   Projection `json:"top_growing"`
	Trends       LineChart  `json:"trends"`
}

// DashboardCharts derives every chart of the analytics dashboard.
func DashboardCharts(data model.AnalyticsData, trends map[string][]model.PopulationTrend) Dashboard {
	// Propagate never fails, the errors are always nil.
	regions, _ := Project(data.RegionalData, RegionName, RegionPopulation, Propagate)
	populated, _ := Project(data.TopPopulatedCountries, CountryName, CountryValue, Propagate)
	growing, _ := Project(data.TopGrowingCountries, CountryName, CountryGrowthRate, Propagate)

	names := make(map[string]string, len(data.TopPopulatedCountries))
	order := make([]string, 0, len(data.TopPopulatedCountries))
	for _, country := range data.TopPopulatedCountries {
		names[country.Code] = country.Name
		if _, ok := trends[country.Code]; ok {
			order = append(order, country.Code)
		}
	}

	return Dashboard{
		Stats: KeyStats{
			TotalPopulation:    FormatCount(data.TotalPopulation),
			AverageGrowthRate:  FormatPercent(data.AverageGrowthRate, false),
			DistributionRanges: len(data.PopulationDistribution.Ranges),
			TopGrowingCount:    len(data.TopGrowingCountries),
		},
		Regions:      regions,
		TopPopulated: populated,
		TopGrowing:   growing,
		Trends:       TrendChart(trends, names, order, false),
	}
}

func sortedYears(set map[int]struct{}) []int {
	years := make([]int, 0, len(set))
	for year := range set {
		years = append(years, year)
	}
	sort.Ints(years)
	return years
}

func yearLabels(years []int) []string {
	labels := make([]string, len(years))
	for i, year := range years {
		labels[i] = strconv.Itoa(year)
	}
	return labels
}
