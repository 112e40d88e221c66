// Package profile loads the saved view settings of the client CLI.
package profile

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"popstats/internal/model"
	"popstats/internal/trends"
	"popstats/internal/viewstate"
)

// Profile is what popview starts from before flags are applied.
type Profile struct {
	Countries    []string        `yaml:"countries"`
	SelectedYear int             `yaml:"selected_year"`
	YearRange    model.YearRange `yaml:"year_range"`
	Continent    string          `yaml:"continent"`
	Trends       trends.Config   `yaml:"trends"`
	// OutputDir receives one JSON file per command when set; otherwise the
	// view is written to stdout.
	OutputDir string `yaml:"output_dir"`
}

func Default() *Profile {
	return &Profile{
		SelectedYear: viewstate.DefaultSelectedYear,
		YearRange:    model.RangeEndingAt(viewstate.DefaultSelectedYear, viewstate.DefaultRangeSpan),
		Trends: trends.Config{
			Policy: trends.FailAll,
			TopN:   trends.DefaultTopN,
		},
	}
}

// Load reads path over the defaults. A missing file is not an error.
func Load(path string) (*Profile, error) {
	p := Default()
	if strings.TrimSpace(path) == "" {
		return p, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return p, nil
		}
		return nil, fmt.Errorf("failed to read profile: %w", err)
	}
	if err := yaml.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("failed to parse profile: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Profile) Validate() error {
	if p.SelectedYear < model.FirstDataYear || p.SelectedYear > model.LastDataYear {
		return fmt.Errorf("profile: selected_year %d outside %d-%d", p.SelectedYear, model.FirstDataYear, model.LastDataYear)
	}
	if err := p.YearRange.Validate(); err != nil {
		return fmt.Errorf("profile: year_range: %w", err)
	}
	policy, err := trends.ParsePolicy(string(p.Trends.Policy))
	if err != nil {
		return fmt.Errorf("profile: %w", err)
	}
	p.Trends.Policy = policy
	for i, code := range p.Countries {
		p.Countries[i] = strings.ToUpper(strings.TrimSpace(code))
	}
	return nil
}
