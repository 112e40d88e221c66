// Package dataset reads the World Bank population export, a tab-separated
// file with one row per country and one column per year.
package dataset

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"popstats/internal/model"
	"popstats/internal/store"
)

const (
	nameColumn = "Country Name"
	codeColumn = "Country Code"
)

type Table struct {
	Countries    []model.Country
	Observations []store.Observation
}

// Read parses a TSV export. Year columns outside the stored bounds and
// cells that are empty or not numeric are skipped.
func Read(r io.Reader) (*Table, error) {
	reader := csv.NewReader(r)
	reader.Comma = '\t'
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed reading header: %w", err)
	}

	nameCol, codeCol := -1, -1
	yearCols := make(map[int]int)
	for i, column := range header {
		column = strings.TrimSpace(strings.TrimLeft(column, "\ufeff"))
		switch column {
		case nameColumn:
			nameCol = i
		case codeColumn:
			codeCol = i
		default:
			year, err := strconv.Atoi(column)
			if err != nil || year < model.FirstDataYear || year > model.LastStoredYear {
				continue
			}
			yearCols[i] = year
		}
	}
	if nameCol < 0 {
		return nil, fmt.Errorf("missing column %q", nameColumn)
	}
	if codeCol < 0 {
		return nil, fmt.Errorf("missing column %q", codeColumn)
	}
	if len(yearCols) == 0 {
		return nil, errors.New("no year columns")
	}

	table := &Table{}
	seen := make(map[string]struct{})
	for line := 2; ; line++ {
		values, err := reader.Read()
		if err == io.EOF {
			break
		} else if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if codeCol >= len(values) || nameCol >= len(values) {
			continue
		}
		code := strings.TrimSpace(values[codeCol])
		name := strings.TrimSpace(values[nameCol])
		if code == "" || name == "" {
			continue
		}
		if _, dup := seen[code]; dup {
			continue
		}
		seen[code] = struct{}{}
		table.Countries = append(table.Countries, model.Country{Code: code, Name: name})

		for col, year := range yearCols {
			if col >= len(values) {
				continue
			}
			population, err := strconv.ParseFloat(strings.TrimSpace(values[col]), 64)
			if err != nil {
				continue
			}
			table.Observations = append(table.Observations, store.Observation{Code: code, Year: year, Population: population})
		}
	}
	return table, nil
}

type Stats struct {
	Countries    int
	Observations int
}

// Import reads path and upserts its contents into st.
func Import(ctx context.Context, st store.Store, path string, logger *zap.Logger) (Stats, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	f, err := os.Open(path)
	if err != nil {
		return Stats{}, err
	}
	defer f.Close()

	table, err := Read(f)
	if err != nil {
		return Stats{}, fmt.Errorf("%s: %w", path, err)
	}
	if err := st.UpsertCountries(ctx, table.Countries); err != nil {
		return Stats{}, fmt.Errorf("store countries: %w", err)
	}
	if err := st.UpsertObservations(ctx, table.Observations); err != nil {
		return Stats{}, fmt.Errorf("store observations: %w", err)
	}

	stats := Stats{Countries: len(table.Countries), Observations: len(table.Observations)}
	logger.Info("dataset imported",
		zap.String("path", path),
		zap.Int("countries", stats.Countries),
		zap.Int("observations", stats.Observations),
	)
	return stats, nil
}
