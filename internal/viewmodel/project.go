package viewmodel

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"

	"popstats/internal/model"
)

// MissingPolicy decides what a projection does with a record whose value
// field is absent or not numeric.
type MissingPolicy int

const (
	// Propagate keeps the slot and emits null.
	Propagate MissingPolicy = iota
	// ZeroFill substitutes 0.
	ZeroFill
	// Fail aborts the projection with ErrMissingField.
	Fail
)

var ErrMissingField = errors.New("viewmodel: missing field")

// Projection is the label/value pair a chart consumes. Values is parallel
// to Labels; a nil entry is a missing value.
type Projection struct {
	Labels []string   `json:"labels"`
	Values []*float64 `json:"values"`
}

func (p Projection) Len() int {
	return len(p.Labels)
}

// Project maps records to parallel label and value arrays.
func Project[T any](source []T, label func(T) string, value func(T) (float64, bool), policy MissingPolicy) (Projection, error) {
	out := Projection{
		Labels: make([]string, 0, len(source)),
		Values: make([]*float64, 0, len(source)),
	}
	for i, item := range source {
		v, ok := value(item)
		if ok && (math.IsNaN(v) || math.IsInf(v, 0)) {
			ok = false
		}
		if !ok {
			switch policy {
			case Fail:
				return Projection{}, fmt.Errorf("%w: record %d", ErrMissingField, i)
			case ZeroFill:
				v, ok = 0, true
			}
		}
		out.Labels = append(out.Labels, label(item))
		if ok {
			out.Values = append(out.Values, model.Float(v))
		} else {
			out.Values = append(out.Values, nil)
		}
	}
	return out, nil
}

// Record is a loosely typed row, for projecting payloads by field name.
type Record map[string]any

// ProjectRecords projects heterogeneous records by field name.
func ProjectRecords(source []Record, labelField, valueField string, policy MissingPolicy) (Projection, error) {
	return Project(source,
		func(r Record) string {
			switch typed := r[labelField].(type) {
			case nil:
				return ""
			case string:
				return typed
			default:
				return fmt.Sprint(typed)
			}
		},
		func(r Record) (float64, bool) {
			return numeric(r[valueField])
		},
		policy,
	)
}

func numeric(value any) (float64, bool) {
	switch typed := value.(type) {
	case float64:
		return typed, true
	case float32:
		return float64(typed), true
	case int:
		return float64(typed), true
	case int64:
		return float64(typed), true
	case int32:
		return float64(typed), true
	case *float64:
		if typed == nil {
			return 0, false
		}
		return *typed, true
	case json.Number:
		parsed, err := typed.Float64()
		return parsed, err == nil
	default:
		return 0, false
	}
}

func RegionName(r model.RegionalData) string { return r.RegionName }

func RegionPopulation(r model.RegionalData) (float64, bool) { return r.TotalPopulation, true }

func CountryName(c model.TopCountry) string { return c.Name }

func CountryValue(c model.TopCountry) (float64, bool) { return c.Value, true }

func CountryGrowthRate(c model.TopCountry) (float64, bool) { return c.GrowthRate, true }

func TrendYear(t model.PopulationTrend) string { return fmt.Sprint(t.Year) }

func TrendPopulation(t model.PopulationTrend) (float64, bool) { return t.Population, true }

func TrendGrowthRate(t model.PopulationTrend) (float64, bool) {
	if t.GrowthRate == nil {
		return 0, false
	}
	return *t.GrowthRate, true
}

// PercentChange is the two-point change between the earliest and latest
// years of a series, in percent. ok is false when there are fewer than two
// points or the first value is zero.
func PercentChange(series map[int]float64) (float64, bool) {
	if len(series) < 2 {
		return 0, false
	}
	years := make([]int, 0, len(series))
	for year := range series {
		years = append(years, year)
	}
	sort.Ints(years)

	first := series[years[0]]
	last := series[years[len(years)-1]]
	if first == 0 {
		return 0, false
	}
	change := (last - first) / first * 100
	if math.IsNaN(change) || math.IsInf(change, 0) {
		return 0, false
	}
	return change, true
}

func TrendPercentChange(trends []model.PopulationTrend) (float64, bool) {
	series := make(map[int]float64, len(trends))
	for _, trend := range trends {
		series[trend.Year] = trend.Population
	}
	return PercentChange(series)
}
