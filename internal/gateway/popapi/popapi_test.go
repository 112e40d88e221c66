package popapi

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"popstats/internal/gateway"
	"popstats/internal/model"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewWithConfig(Config{
		BaseURL:         server.URL + "/api/",
		RateLimitPerSec: 1000,
		RateLimitBurst:  1000,
		MaxRetries:      2,
		RetryInterval:   time.Millisecond,
	})
	require.NoError(t, err)
	return client
}

func TestCountries(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/countries", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		_, _ = w.Write([]byte(`[{"country_code":"AAA","country_name":"Alpha"},{"country_code":"BBB","country_name":"Beta"}]`))
	})

	countries, err := client.Countries(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []model.Country{{Code: "AAA", Name: "Alpha"}, {Code: "BBB", Name: "Beta"}}, countries)
}

func TestPopulationJoinsCodes(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/countries/AAA,BBB/population", r.URL.Path)
		_, _ = w.Write([]byte(`[{"country_code":"AAA","country_name":"Alpha","population":{"2000":100,"2010":150}}]`))
	})

	data, err := client.Population(context.Background(), []string{"AAA", " ", "BBB"})
	require.NoError(t, err)
	require.Len(t, data, 1)
	assert.Equal(t, []int{2000, 2010}, data[0].Years())
}

func TestPopulationRequiresCodes(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	})

	_, err := client.Population(context.Background(), nil)
	require.Error(t, err)
}

func TestPopulationTrendsQuery(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/analytics/trends/AAA", r.URL.Path)
		assert.Equal(t, "2000", r.URL.Query().Get("start_year"))
		assert.Equal(t, "2010", r.URL.Query().Get("end_year"))
		_, _ = w.Write([]byte(`[{"year":2000,"population":100,"growth_rate":null},{"year":2001,"population":110,"growth_rate":10}]`))
	})

	trends, err := client.PopulationTrends(context.Background(), "AAA", model.YearRange{StartYear: 2000, EndYear: 2010})
	require.NoError(t, err)
	require.Len(t, trends, 2)
	assert.Nil(t, trends[0].GrowthRate)
	require.NotNil(t, trends[1].GrowthRate)
	assert.Equal(t, 10.0, *trends[1].GrowthRate)
}

func TestDashboardOmitsZeroYear(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.URL.RawQuery)
		_, _ = w.Write([]byte(`{"total_population":10,"average_growth_rate":1.5,"population_distribution":{"ranges":["<1M"],"counts":[1],"countries_in_range":{"<1M":["Alpha"]}},"top_growing_countries":[],"top_populated_countries":[],"regional_data":[]}`))
	})

	data, err := client.Dashboard(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 1.5, data.AverageGrowthRate)
}

func TestNotFoundIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"detail":"No population trends found for country code ZZZ"}`))
	})

	_, err := client.PopulationTrends(context.Background(), "ZZZ", model.YearRange{StartYear: 2000, EndYear: 2001})
	require.Error(t, err)
	assert.True(t, errors.Is(err, gateway.ErrNotFound))
	assert.Contains(t, err.Error(), "ZZZ")
	assert.Equal(t, int32(1), calls.Load())
}

func TestServerErrorsAreRetried(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"one_year":{"absolute":5,"percentage":1.25},"three_year":{"absolute":null,"percentage":null},"five_year":{"absolute":null,"percentage":null}}`))
	})

	metrics, err := client.GrowthMetrics(context.Background(), "AAA", 2020)
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
	require.NotNil(t, metrics.OneYear.Absolute)
	assert.Equal(t, int64(5), *metrics.OneYear.Absolute)
	assert.Nil(t, metrics.FiveYear.Percentage)
}

func TestClientErrorsArePermanent(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"detail":"Year must be between 1960 and 2022"}`))
	})

	_, err := client.GrowthMetrics(context.Background(), "AAA", 1900)
	require.Error(t, err)

	var statusErr *gateway.StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusBadRequest, statusErr.StatusCode)
	assert.Equal(t, "Year must be between 1960 and 2022", statusErr.Detail)
	assert.Equal(t, int32(1), calls.Load())
}

func TestInvalidPayloads(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "malformed json", body: `[{"country_code":`},
		{name: "missing code", body: `[{"country_name":"Nowhere"}]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(tt.body))
			})
			_, err := client.Countries(context.Background())
			require.Error(t, err)
			assert.True(t, errors.Is(err, gateway.ErrInvalidResponse))
		})
	}
}

func TestEmptyCountriesIsEmptyResult(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	})

	_, err := client.Countries(context.Background())
	assert.True(t, errors.Is(err, gateway.ErrEmptyResult))
}

func TestNewWithConfigAppliesDefaults(t *testing.T) {
	client, err := NewWithConfig(Config{})
	require.NoError(t, err)
	assert.Equal(t, defaultMaxRetries, client.config.MaxRetries)
	assert.Equal(t, defaultBaseURL, client.config.BaseURL)
	assert.Equal(t, defaultTimeout, client.config.Timeout)

	client, err = NewWithConfig(Config{MaxRetries: -1})
	require.NoError(t, err)
	assert.Equal(t, 0, client.config.MaxRetries)
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("POPSTATS_API_BASE_URL", "https://example.test/api")
	t.Setenv("POPSTATS_API_TIMEOUT", "3s")
	t.Setenv("POPSTATS_API_MAX_RETRIES", "1")

	cfg, err := ConfigFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "https://example.test/api", cfg.BaseURL)
	assert.Equal(t, 3*time.Second, cfg.Timeout)
	assert.Equal(t, 1, cfg.MaxRetries)

	client, err := NewWithConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, defaultRateLimitPerSec, client.config.RateLimitPerSec)
	assert.Equal(t, "https://example.test/api/countries?year=1", client.buildURL("/countries", map[string][]string{"year": {"1"}}))
}
