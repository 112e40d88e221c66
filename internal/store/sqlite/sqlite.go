package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"popstats/internal/model"
	"popstats/internal/store"
)

type Store struct {
	db *sql.DB
}

func New(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite: path is required")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return s, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) UpsertCountries(ctx context.Context, countries []model.Country) error {
	if len(countries) == 0 {
		return nil
	}
	return s.inTx(ctx, `
		INSERT INTO countries (code, name) VALUES (?, ?)
		ON CONFLICT(code) DO UPDATE SET name = excluded.name
	`, len(countries), func(stmt *sql.Stmt, i int) error {
		_, err := stmt.ExecContext(ctx, countries[i].Code, countries[i].Name)
		return err
	})
}

func (s *Store) UpsertObservations(ctx context.Context, observations []store.Observation) error {
	if len(observations) == 0 {
		return nil
	}
	now := time.Now().UTC()
	return s.inTx(ctx, `
		INSERT INTO population (code, year, value, ingested_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(code, year) DO UPDATE SET
			value = excluded.value,
			ingested_at = excluded.ingested_at
	`, len(observations), func(stmt *sql.Stmt, i int) error {
		observation := observations[i]
		_, err := stmt.ExecContext(ctx, observation.Code, observation.Year, observation.Population, now)
		return err
	})
}

// inTx prepares query once and executes it n times in one transaction.
func (s *Store) inTx(ctx context.Context, query string, n int, exec func(stmt *sql.Stmt, i int) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()

	for i := 0; i < n; i++ {
		if err := exec(stmt, i); err != nil {
			_ = tx.Rollback()
			return err
		}
	}

	return tx.Commit()
}

func (s *Store) ListCountries(ctx context.Context) ([]model.Country, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT code, name FROM countries ORDER BY rowid`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Country
	for rows.Next() {
		var country model.Country
		if err := rows.Scan(&country.Code, &country.Name); err != nil {
			return nil, err
		}
		out = append(out, country)
	}
	return out, rows.Err()
}

func (s *Store) Population(ctx context.Context, codes []string) ([]model.PopulationData, error) {
	if len(codes) == 0 {
		return []model.PopulationData{}, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(codes)), ",")
	args := make([]any, len(codes))
	for i, code := range codes {
		args[i] = code
	}
	return s.queryPopulation(ctx, "WHERE c.code IN ("+placeholders+")", args...)
}

func (s *Store) AllPopulation(ctx context.Context) ([]model.PopulationData, error) {
	return s.queryPopulation(ctx, "")
}

func (s *Store) queryPopulation(ctx context.Context, where string, args ...any) ([]model.PopulationData, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.code, c.name, p.year, p.value
		FROM countries c
		LEFT JOIN population p ON p.code = c.code
		`+where+`
		ORDER BY c.rowid, p.year
	`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]model.PopulationData, 0)
	for rows.Next() {
		var (
			code, name string
			year       sql.NullInt64
			value      sql.NullFloat64
		)
		if err := rows.Scan(&code, &name, &year, &value); err != nil {
			return nil, err
		}
		if len(out) == 0 || out[len(out)-1].Code != code {
			out = append(out, model.PopulationData{Code: code, Name: name, Population: map[string]float64{}})
		}
		if year.Valid && value.Valid {
			out[len(out)-1].Population[strconv.FormatInt(year.Int64, 10)] = value.Float64
		}
	}
	return out, rows.Err()
}

func (s *Store) migrate() error {
	statements := []string{
		`PRAGMA foreign_keys = ON;`,
		`CREATE TABLE IF NOT EXISTS countries (
			code TEXT PRIMARY KEY,
			name TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS population (
			code TEXT NOT NULL REFERENCES countries(code),
			year INTEGER NOT NULL,
			value REAL NOT NULL,
			ingested_at TEXT NOT NULL,
			PRIMARY KEY (code, year)
		);`,
	}

	for _, statement := range statements {
		if _, err := s.db.Exec(statement); err != nil {
			return err
		}
	}

	return nil
}

var _ store.Store = (*Store)(nil)
