package main

import (
	"errors"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"popstats/internal/model"
	"popstats/internal/trends"
	"popstats/internal/viewmodel"
	"popstats/internal/viewstate"
)

var (
	searchQuery string
	continent   string

	compareCodes []string
	metricsCode  string
	metricsYear  int

	selectedYear int
	startYear    int
	endYear      int
	topN         int
	isolate      bool

	trendCodes []string
	growthMode bool
)

var countriesCmd = &cobra.Command{
	Use:   "countries",
	Short: "List countries, filtered by name and continent",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store := viewstate.NewStore(viewstate.CountriesView{}, viewstate.ReduceCountries)
		if err := viewstate.NewCountriesController(source, store, logger).Refresh(cmd.Context()); err != nil {
			return err
		}
		if continent == "" {
			continent = settings.Continent
		}
		view := viewstate.Replay(viewstate.NewComparisonView(), viewstate.ReduceComparison,
			viewstate.SetAvailableCountries{Countries: store.State().Data},
			viewstate.SetSearchQuery{Query: searchQuery},
			viewstate.SetContinent{Continent: continent},
		)
		return emit("countries", view.FilteredCountries())
	},
}

type comparisonOutput struct {
	Comparison  viewstate.ComparisonView `json:"comparison"`
	Chart       viewmodel.LineChart      `json:"chart"`
	GrowthCards []viewmodel.GrowthCard   `json:"growth_cards,omitempty"`
}

var compareCmd = &cobra.Command{
	Use:   "compare",
	Short: "Compare the population series of selected countries",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		codes := normalizeCodes(compareCodes)
		if len(codes) == 0 {
			codes = settings.Countries
		}
		if len(codes) == 0 {
			return errors.New("no countries selected (use --countries or the profile)")
		}

		store := viewstate.NewStore(viewstate.NewComparisonView(), viewstate.ReduceComparison)
		ctrl := viewstate.NewComparisonController(source, store, logger)
		if err := ctrl.LoadCountries(ctx); err != nil {
			return err
		}

		stop := ctrl.Observe(ctx)
		selections := make([]viewstate.Action, 0, len(codes))
		for _, code := range codes {
			selections = append(selections, viewstate.SelectCountry{Code: code})
		}
		store.Dispatch(selections...)
		ctrl.Wait()
		stop()

		if message := store.State().Population.Error; message != "" {
			return errors.New(message)
		}

		out := comparisonOutput{}
		if code := normalizeCodes([]string{metricsCode}); len(code) == 1 {
			year := metricsYear
			if year == 0 {
				year = settings.SelectedYear
			}
			if err := ctrl.ShowGrowthMetrics(ctx, code[0], year); err != nil {
				return err
			}
			out.GrowthCards = viewmodel.GrowthCards(store.State().Metrics.Metrics)
		}

		out.Comparison = store.State()
		out.Chart = viewmodel.PopulationChart(out.Comparison.Population.Data)
		return emit("compare", out)
	},
}

type dashboardOutput struct {
	Analytics viewstate.AnalyticsView `json:"analytics"`
	Charts    viewmodel.Dashboard     `json:"charts"`
}

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Render the analytics dashboard with top country trends",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		year := selectedYear
		if year == 0 {
			year = settings.SelectedYear
		}
		store := viewstate.NewStore(viewstate.NewAnalyticsView(year), viewstate.ReduceAnalytics)
		if years, ok := flagRange(); ok {
			store.Dispatch(viewstate.UpdateYearRange{Range: years})
		} else if selectedYear == 0 {
			store.Dispatch(viewstate.UpdateYearRange{Range: settings.YearRange})
		}

		aggregator := trends.New(source, trendConfig(), logger)
		ctrl := viewstate.NewAnalyticsController(source, aggregator, store, logger)
		if err := ctrl.Refresh(cmd.Context()); err != nil {
			return err
		}

		view := store.State()
		payload := view.Fetch.Data
		for code, message := range payload.TrendErrors {
			logger.Warn("trend missing from dashboard", zap.String("code", code), zap.String("reason", message))
		}
		return emit("dashboard", dashboardOutput{
			Analytics: view,
			Charts:    viewmodel.DashboardCharts(payload.Analytics, payload.GrowthTrends),
		})
	},
}

type trendsOutput struct {
	Range  model.YearRange                    `json:"year_range"`
	Trends map[string][]model.PopulationTrend `json:"trends"`
	Errors map[string]string                  `json:"errors,omitempty"`
	Chart  viewmodel.LineChart                `json:"chart"`
}

var trendsCmd = &cobra.Command{
	Use:   "trends",
	Short: "Fetch the trend series of several countries concurrently",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		codes := normalizeCodes(trendCodes)
		if len(codes) == 0 {
			codes = settings.Countries
		}
		if len(codes) == 0 {
			return errors.New("no countries selected (use --countries or the profile)")
		}
		years, ok := flagRange()
		if !ok {
			years = settings.YearRange
		}

		result, err := trends.New(source, trendConfig(), logger).Aggregate(cmd.Context(), codes, years)
		if err != nil {
			return err
		}

		out := trendsOutput{
			Range:  years,
			Trends: result.Trends,
			Chart:  viewmodel.TrendChart(result.Trends, nil, codes, growthMode),
		}
		if result.Partial() {
			out.Errors = make(map[string]string, len(result.Errors))
			for code, cause := range result.Errors {
				out.Errors[code] = cause.Error()
			}
		}
		return emit("trends", out)
	},
}

func init() {
	countriesCmd.Flags().StringVar(&searchQuery, "search", "", "Case-insensitive name filter")
	countriesCmd.Flags().StringVar(&continent, "continent", "", "Only countries of this continent")

	compareCmd.Flags().StringSliceVar(&compareCodes, "countries", nil, "Country codes to compare")
	compareCmd.Flags().StringVar(&metricsCode, "metrics", "", "Show growth metrics of this country")
	compareCmd.Flags().IntVar(&metricsYear, "year", 0, "Year of the growth metrics")

	dashboardCmd.Flags().IntVar(&selectedYear, "year", 0, "Dashboard year")
	for _, cmd := range []*cobra.Command{dashboardCmd, trendsCmd} {
		cmd.Flags().IntVar(&startYear, "start", 0, "First year of the trend range")
		cmd.Flags().IntVar(&endYear, "end", 0, "Last year of the trend range")
		cmd.Flags().IntVar(&topN, "top-n", 0, "Number of top countries to fetch trends for")
		cmd.Flags().BoolVar(&isolate, "isolate", false, "Keep partial results when some series fail")
	}
	trendsCmd.Flags().StringSliceVar(&trendCodes, "countries", nil, "Country codes to fetch")
	trendsCmd.Flags().BoolVar(&growthMode, "growth", false, "Chart growth rates instead of population")
}

// flagRange reports the range given on the command line, if any.
func flagRange() (model.YearRange, bool) {
	if startYear == 0 && endYear == 0 {
		return model.YearRange{}, false
	}
	years := model.YearRange{StartYear: startYear, EndYear: endYear}
	if years.StartYear == 0 {
		years.StartYear = model.FirstDataYear
	}
	if years.EndYear == 0 {
		years.EndYear = model.LastDataYear
	}
	return years, true
}

func trendConfig() trends.Config {
	cfg := settings.Trends
	if topN > 0 {
		cfg.TopN = topN
	}
	if isolate {
		cfg.Policy = trends.Isolate
	}
	logger.Debug("trend aggregation", zap.String("policy", string(cfg.Policy)), zap.Int("top_n", cfg.TopN))
	return cfg
}
