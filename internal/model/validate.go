package model

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

var ErrInvalidRange = errors.New("model: start year must be less than or equal to end year")

func (r YearRange) Validate() error {
	if r.StartYear > r.EndYear {
		return fmt.Errorf("%w (start=%d end=%d)", ErrInvalidRange, r.StartYear, r.EndYear)
	}
	return nil
}

func (c Country) Validate() error {
	if strings.TrimSpace(c.Code) == "" {
		return errors.New("country: missing code")
	}
	return nil
}

func (p PopulationData) Validate() error {
	if strings.TrimSpace(p.Code) == "" {
		return errors.New("population: missing country code")
	}
	for key, value := range p.Population {
		if _, err := strconv.Atoi(key); err != nil {
			return fmt.Errorf("population %s: invalid year %q", p.Code, key)
		}
		if !finite(value) || value < 0 {
			return fmt.Errorf("population %s: invalid value for %s", p.Code, key)
		}
	}
	return nil
}

func (m GrowthMetrics) Validate() error {
	for name, delta := range map[string]Delta{"one_year": m.OneYear, "three_year": m.ThreeYear, "five_year": m.FiveYear} {
		if delta.Percentage != nil && !finite(*delta.Percentage) {
			return fmt.Errorf("growth %s: percentage is not finite", name)
		}
	}
	return nil
}

func (t PopulationTrend) Validate() error {
	if !finite(t.Population) || t.Population < 0 {
		return fmt.Errorf("trend %d: invalid population", t.Year)
	}
	if t.GrowthRate != nil && !finite(*t.GrowthRate) {
		return fmt.Errorf("trend %d: growth rate is not finite", t.Year)
	}
	return nil
}

func (a AnalyticsData) Validate() error {
	if !finite(a.TotalPopulation) || !finite(a.AverageGrowthRate) {
		return errors.New("analytics: totals are not finite")
	}
	dist := a.PopulationDistribution
	if len(dist.Ranges) != len(dist.Counts) {
		return fmt.Errorf("analytics: distribution has %d ranges but %d counts", len(dist.Ranges), len(dist.Counts))
	}
	for _, list := range [][]TopCountry{a.TopGrowingCountries, a.TopPopulatedCountries} {
		for _, country := range list {
			if strings.TrimSpace(country.Code) == "" {
				return errors.New("analytics: top country without code")
			}
		}
	}
	for _, region := range a.RegionalData {
		if strings.TrimSpace(region.RegionName) == "" {
			return errors.New("analytics: region without name")
		}
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
