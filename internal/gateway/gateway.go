package gateway

import (
	"context"
	"errors"
	"fmt"

	"popstats/internal/model"
)

var (
	ErrNotFound        = errors.New("gateway: not found")
	ErrEmptyResult     = errors.New("gateway: empty result")
	ErrInvalidResponse = errors.New("gateway: invalid response")
)

// Gateway is the remote population API as seen by the analytics layer.
type Gateway interface {
	Countries(ctx context.Context) ([]model.Country, error)
	Population(ctx context.Context, codes []string) ([]model.PopulationData, error)
	GrowthMetrics(ctx context.Context, code string, year int) (model.GrowthMetrics, error)
	PopulationTrends(ctx context.Context, code string, years model.YearRange) ([]model.PopulationTrend, error)
	Dashboard(ctx context.Context, year int) (model.AnalyticsData, error)
}

// TrendSource is the subset of Gateway the trend aggregator needs.
type TrendSource interface {
	PopulationTrends(ctx context.Context, code string, years model.YearRange) ([]model.PopulationTrend, error)
}

// StatusError is returned for non-2xx responses that are not mapped to a
// sentinel error.
type StatusError struct {
	StatusCode int
	Detail     string
}

func (e *StatusError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("gateway: request failed with status %d", e.StatusCode)
	}
	return fmt.Sprintf("gateway: request failed with status %d: %s", e.StatusCode, e.Detail)
}

// Retryable reports whether the failure is worth retrying.
func (e *StatusError) Retryable() bool {
	return e.StatusCode == 429 || e.StatusCode >= 500
}
