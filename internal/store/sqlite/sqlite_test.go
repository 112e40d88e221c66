package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"popstats/internal/model"
	"popstats/internal/store"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "popstats.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestNewRequiresPath(t *testing.T) {
	_, err := New("")
	assert.Error(t, err)
}

func TestUpsertAndQuery(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	require.NoError(t, s.UpsertCountries(ctx, []model.Country{
		{Code: "BBB", Name: "Beta"},
		{Code: "AAA", Name: "Alpha"},
		{Code: "CCC", Name: "Gamma"},
	}))
	require.NoError(t, s.UpsertObservations(ctx, []store.Observation{
		{Code: "AAA", Year: 2000, Population: 10},
		{Code: "AAA", Year: 2001, Population: 11},
		{Code: "BBB", Year: 2000, Population: 20},
	}))

	countries, err := s.ListCountries(ctx)
	require.NoError(t, err)
	assert.Equal(t, []model.Country{
		{Code: "BBB", Name: "Beta"},
		{Code: "AAA", Name: "Alpha"},
		{Code: "CCC", Name: "Gamma"},
	}, countries)

	series, err := s.Population(ctx, []string{"AAA", "BBB", "ZZZ"})
	require.NoError(t, err)
	require.Len(t, series, 2)
	assert.Equal(t, "BBB", series[0].Code, "import order is kept")
	assert.Equal(t, map[string]float64{"2000": 10, "2001": 11}, series[1].Population)

	all, err := s.AllPopulation(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Empty(t, all[2].Population)
}

func TestUpsertOverwrites(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	require.NoError(t, s.UpsertCountries(ctx, []model.Country{{Code: "AAA", Name: "Old"}}))
	require.NoError(t, s.UpsertObservations(ctx, []store.Observation{{Code: "AAA", Year: 2000, Population: 1}}))
	require.NoError(t, s.UpsertCountries(ctx, []model.Country{{Code: "AAA", Name: "New"}}))
	require.NoError(t, s.UpsertObservations(ctx, []store.Observation{{Code: "AAA", Year: 2000, Population: 2}}))

	series, err := s.Population(ctx, []string{"AAA"})
	require.NoError(t, err)
	require.Len(t, series, 1)
	assert.Equal(t, "New", series[0].Name)
	assert.Equal(t, 2.0, series[0].Population["2000"])
}

func TestPopulationEmptyCodes(t *testing.T) {
	series, err := openTestStore(t).Population(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, series)
}
