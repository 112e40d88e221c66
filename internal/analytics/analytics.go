// Package analytics computes trends, growth metrics and dashboard aggregates
// from stored population series.
package analytics

import (
	"math"
	"slices"
	"sort"

	"popstats/internal/model"
)

const topListSize = 10

var aggregateCodes = map[string]struct{}{"AFE": {}, "AFW": {}, "ARB": {}}

// IsAggregate reports whether code is a regional aggregate rather than a
// country.
func IsAggregate(code string) bool {
	_, ok := aggregateCodes[code]
	return ok
}

type bucket struct {
	label  string
	lo, hi float64
}

var buckets = []bucket{
	{"<1M", 0, 1e6},
	{"1M-10M", 1e6, 10e6},
	{"10M-50M", 10e6, 50e6},
	{"50M-100M", 50e6, 100e6},
	{"100M-500M", 100e6, 500e6},
	{">500M", 500e6, math.Inf(1)},
}

// CheckYear enforces the dataset bounds on a requested year.
func CheckYear(year int) error {
	if year < model.FirstDataYear || year > model.LastDataYear {
		return invalidf("Year must be between %d and %d", model.FirstDataYear, model.LastDataYear)
	}
	return nil
}

// ResolveRange fills zero bounds with the dataset bounds and validates the
// result.
func ResolveRange(years model.YearRange) (model.YearRange, error) {
	if years.StartYear == 0 {
		years.StartYear = model.FirstDataYear
	}
	if years.EndYear == 0 {
		years.EndYear = model.LastDataYear
	}
	if err := CheckYear(years.StartYear); err != nil {
		return years, err
	}
	if err := CheckYear(years.EndYear); err != nil {
		return years, err
	}
	if years.StartYear > years.EndYear {
		return years, invalidf("Start year must be less than or equal to end year")
	}
	return years, nil
}

// Trends lists the yearly values of series within years. The growth rate is
// relative to the previous year and is nil for the first year of the range
// or when the previous year is missing or zero.
func Trends(series model.PopulationData, years model.YearRange) []model.PopulationTrend {
	out := make([]model.PopulationTrend, 0, years.EndYear-years.StartYear+1)
	for year := years.StartYear; year <= years.EndYear; year++ {
		current, ok := series.Value(year)
		if !ok {
			continue
		}
		trend := model.PopulationTrend{Year: year, Population: current}
		if year > years.StartYear {
			if prev, ok := series.Value(year - 1); ok && prev != 0 {
				trend.GrowthRate = model.Float(round2((current - prev) / prev * 100))
			}
		}
		out = append(out, trend)
	}
	return out
}

// Growth computes the 1, 3 and 5 year deltas ending at year.
func Growth(series model.PopulationData, year int) (model.GrowthMetrics, error) {
	current, ok := series.Value(year)
	if !ok {
		return model.GrowthMetrics{}, notFoundf("No data available for year %d", year)
	}
	delta := func(back int) model.Delta {
		if year-back < model.FirstDataYear {
			return model.Delta{}
		}
		past, ok := series.Value(year - back)
		if !ok {
			return model.Delta{}
		}
		absolute := current - past
		d := model.Delta{Absolute: model.Int(int64(absolute))}
		if past != 0 {
			d.Percentage = model.Float(round2(absolute / past * 100))
		}
		return d
	}
	return model.GrowthMetrics{
		OneYear:   delta(1),
		ThreeYear: delta(3),
		FiveYear:  delta(5),
	}, nil
}

type countryYear struct {
	code, name string
	value      float64
	growth     float64
	hasGrowth  bool
}

// Dashboard aggregates every non-aggregate series for one year.
func Dashboard(all []model.PopulationData, year int) (model.AnalyticsData, error) {
	var rows []countryYear
	var total, prevTotal float64
	byCode := make(map[string]countryYear)
	distribution := model.PopulationDistribution{CountriesInRange: make(map[string][]string)}
	for _, series := range all {
		if IsAggregate(series.Code) {
			continue
		}
		if prev, ok := series.Value(year - 1); ok {
			prevTotal += prev
		}
		value, ok := series.Value(year)
		if !ok {
			continue
		}
		total += value
		row := countryYear{code: series.Code, name: series.Name, value: value}
		if prev, ok := series.Value(year - 1); ok && prev != 0 {
			row.growth = (value - prev) / prev * 100
			row.hasGrowth = true
		}
		rows = append(rows, row)
		byCode[row.code] = row
	}
	if len(rows) == 0 {
		return model.AnalyticsData{}, notFoundf("No analytics data found")
	}

	for _, b := range buckets {
		names := make([]string, 0)
		for _, row := range rows {
			if row.value >= b.lo && row.value < b.hi {
				names = append(names, row.name)
			}
		}
		distribution.Ranges = append(distribution.Ranges, b.label)
		distribution.Counts = append(distribution.Counts, len(names))
		distribution.CountriesInRange[b.label] = names
	}

	data := model.AnalyticsData{
		TotalPopulation:        total,
		AverageGrowthRate:      round2(percentChange(prevTotal, total)),
		PopulationDistribution: distribution,
		TopPopulatedCountries:  topBy(rows, func(r countryYear) (float64, bool) { return r.value, true }),
		TopGrowingCountries:    topBy(rows, func(r countryYear) (float64, bool) { return r.growth, r.hasGrowth }),
		RegionalData:           regional(all, byCode, year),
	}
	return data, nil
}

// topBy ranks rows descending by key, keeping input order between ties and
// leaving out rows without a key.
func topBy(rows []countryYear, key func(countryYear) (float64, bool)) []model.TopCountry {
	ranked := make([]countryYear, 0, len(rows))
	for _, row := range rows {
		if _, ok := key(row); ok {
			ranked = append(ranked, row)
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		a, _ := key(ranked[i])
		b, _ := key(ranked[j])
		return a > b
	})
	if len(ranked) > topListSize {
		ranked = ranked[:topListSize]
	}
	out := make([]model.TopCountry, len(ranked))
	for i, row := range ranked {
		out[i] = model.TopCountry{Name: row.name, Code: row.code, Value: row.value}
		if row.hasGrowth {
			out[i].GrowthRate = round2(row.growth)
		}
	}
	return out
}

func regional(all []model.PopulationData, byCode map[string]countryYear, year int) []model.RegionalData {
	out := make([]model.RegionalData, 0, len(model.Regions))
	for _, region := range model.Regions {
		var (
			total, prev float64
			names       []string
		)
		for _, series := range all {
			if !slices.Contains(region.Codes, series.Code) {
				continue
			}
			if row, ok := byCode[series.Code]; ok {
				total += row.value
			}
			if v, ok := series.Value(year - 1); ok {
				prev += v
			}
			names = append(names, series.Name)
		}
		if len(names) == 0 {
			continue
		}
		out = append(out, model.RegionalData{
			RegionName:      region.Name,
			TotalPopulation: total,
			Countries:       names,
			GrowthRate:      round2(percentChange(prev, total)),
		})
	}
	return out
}

func percentChange(prev, current float64) float64 {
	if prev <= 0 {
		return 0
	}
	return (current - prev) / prev * 100
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
