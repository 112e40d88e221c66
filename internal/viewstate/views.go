package viewstate

import (
	"slices"
	"strings"

	"popstats/internal/model"
)

const (
	DefaultSelectedYear = model.LastDataYear
	DefaultRangeSpan    = 5
)

const (
	MsgAnalytics  = "Failed to load analytics data"
	MsgPopulation = "Failed to load population data"
	MsgCountries  = "Failed to load countries"
	MsgGrowth     = "Failed to load growth metrics"
	MsgTrends     = "Failed to load population trends"
)

// Parameter actions. They only touch their own field.
type (
	UpdateYearRange       struct{ Range model.YearRange }
	SelectCountry         struct{ Code string }
	SetSearchQuery        struct{ Query string }
	SetContinent          struct{ Continent string }
	SetSelectedYear       struct{ Year int }
	SetSelectedMetrics    struct{ Metrics *SelectedMetrics }
	SetAvailableCountries struct{ Countries []model.Country }
)

func (UpdateYearRange) action()       {}
func (SelectCountry) action()         {}
func (SetSearchQuery) action()        {}
func (SetContinent) action()          {}
func (SetSelectedYear) action()       {}
func (SetSelectedMetrics) action()    {}
func (SetAvailableCountries) action() {}

// AnalyticsPayload is what one dashboard refresh produces.
type AnalyticsPayload struct {
	Analytics    model.AnalyticsData                `json:"analytics"`
	GrowthTrends map[string][]model.PopulationTrend `json:"growth_trends"`
	// TrendErrors lists the codes whose trends could not be loaded when the
	// aggregator isolates failures.
	TrendErrors map[string]string `json:"trend_errors,omitempty"`
}

type AnalyticsView struct {
	Fetch        State[*AnalyticsPayload] `json:"fetch"`
	SelectedYear int                      `json:"selected_year"`
	YearRange    model.YearRange          `json:"year_range"`
}

// NewAnalyticsView starts in Loading with the range covering the five years
// before selectedYear. A zero year selects the latest data year.
func NewAnalyticsView(selectedYear int) AnalyticsView {
	if selectedYear == 0 {
		selectedYear = DefaultSelectedYear
	}
	return AnalyticsView{
		Fetch:        State[*AnalyticsPayload]{Loading: true},
		SelectedYear: selectedYear,
		YearRange:    model.RangeEndingAt(selectedYear, DefaultRangeSpan),
	}
}

func ReduceAnalytics(v AnalyticsView, a Action) AnalyticsView {
	switch a := a.(type) {
	case UpdateYearRange:
		v.YearRange = a.Range
	case SetSelectedYear:
		v.SelectedYear = a.Year
	default:
		v.Fetch = Reduce(v.Fetch, a)
	}
	return v
}

type SelectedMetrics struct {
	Metrics     model.GrowthMetrics `json:"metrics"`
	CountryName string              `json:"country_name"`
	Year        int                 `json:"year"`
}

// ComparisonView is the population comparison screen. Population errors and
// growth metric errors share the Population error slot.
type ComparisonView struct {
	Available    []model.Country               `json:"available_countries"`
	Selected     []string                      `json:"selected_countries"`
	Population   State[[]model.PopulationData] `json:"population"`
	Metrics      *SelectedMetrics              `json:"selected_metrics,omitempty"`
	SelectedYear int                           `json:"selected_year"`
	SearchQuery  string                        `json:"search_query,omitempty"`
	Continent    string                        `json:"continent,omitempty"`
}

func NewComparisonView() ComparisonView {
	return ComparisonView{SelectedYear: DefaultSelectedYear}
}

func ReduceComparison(v ComparisonView, a Action) ComparisonView {
	switch a := a.(type) {
	case SelectCountry:
		v.Selected = toggle(v.Selected, a.Code)
	case SetSearchQuery:
		v.SearchQuery = a.Query
	case SetContinent:
		if v.Continent == a.Continent {
			v.Continent = ""
		} else {
			v.Continent = a.Continent
		}
	case SetSelectedYear:
		v.SelectedYear = a.Year
	case SetSelectedMetrics:
		v.Metrics = a.Metrics
	case SetAvailableCountries:
		v.Available = a.Countries
	default:
		v.Population = Reduce(v.Population, a)
	}
	return v
}

// FilteredCountries applies the search query (case-insensitive substring of
// the name) and the continent filter to the available countries.
func (v ComparisonView) FilteredCountries() []model.Country {
	query := strings.ToLower(v.SearchQuery)
	out := make([]model.Country, 0, len(v.Available))
	for _, country := range v.Available {
		if !strings.Contains(strings.ToLower(country.Name), query) {
			continue
		}
		if v.Continent != "" && model.RegionOf(country.Code) != v.Continent {
			continue
		}
		out = append(out, country)
	}
	return out
}

func (v ComparisonView) IsSelected(code string) bool {
	return slices.Contains(v.Selected, code)
}

type CountriesView = State[[]model.Country]

func ReduceCountries(v CountriesView, a Action) CountriesView {
	return Reduce(v, a)
}

// toggle returns a new slice so earlier states keep their own backing array.
func toggle(list []string, code string) []string {
	if idx := slices.Index(list, code); idx >= 0 {
		out := make([]string, 0, len(list)-1)
		out = append(out, list[:idx]...)
		return append(out, list[idx+1:]...)
	}
	out := make([]string, 0, len(list)+1)
	out = append(out, list...)
	return append(out, code)
}
