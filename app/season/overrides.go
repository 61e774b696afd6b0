package season

import (
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

// Overrides adjusts the scraped listing: excluded index ids are dropped and
// included indices are added when the listing does not already carry them.
type Overrides struct {
	Exclude []string `yaml:"exclude"`
	Include []Index  `yaml:"include"`
}

// LoadOverrides reads the YAML overrides file. An empty path yields empty
// overrides.
func LoadOverrides(path string) (*Overrides, error) {
	if path == "" {
		return &Overrides{}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var overrides Overrides
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := overrides.validate(); err != nil {
		return nil, fmt.Errorf("invalid overrides %s: %w", path, err)
	}

	slog.Debug("Overrides loaded", "path", path, "exclude", len(overrides.Exclude), "include", len(overrides.Include))

	return &overrides, nil
}

func (o *Overrides) validate() error {
	for i, id := range o.Exclude {
		if id == "" {
			return fmt.Errorf("exclude entry at index %d is empty", i)
		}
	}

	for i, idx := range o.Include {
		if idx.ID == "" {
			return fmt.Errorf("include entry at index %d has no id", i)
		}
		if idx.Year <= 1900 {
			return fmt.Errorf("include entry at index %d has invalid year %d", i, idx.Year)
		}
		if idx.Month < 1 || idx.Month > 12 {
			return fmt.Errorf("include entry at index %d has invalid month %d", i, idx.Month)
		}
	}

	return nil
}

// Apply returns a new slice; listing order is kept and included indices
// are appended in file order.
func (o *Overrides) Apply(indices []Index) []Index {
	if o == nil || (len(o.Exclude) == 0 && len(o.Include) == 0) {
		return indices
	}

	excluded := make(map[string]bool, len(o.Exclude))
	for _, id := range o.Exclude {
		excluded[id] = true
	}

	result := make([]Index, 0, len(indices)+len(o.Include))
	seen := make(map[string]bool, len(indices))
	for _, idx := range indices {
		if excluded[idx.ID] {
			continue
		}
		seen[idx.ID] = true
		result = append(result, idx)
	}

	for _, idx := range o.Include {
		if excluded[idx.ID] || seen[idx.ID] {
			continue
		}
		if idx.Title == "" {
			idx.Title = fmt.Sprintf("%d年%d月", idx.Year, idx.Month)
		}
		seen[idx.ID] = true
		result = append(result, idx)
	}

	return result
}
