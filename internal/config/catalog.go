package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"secbrief/internal/types"
)

// SourceEntry describes one evidence source in the catalog file.
type SourceEntry struct {
	Type         string `yaml:"type"`
	Enabled      bool   `yaml:"enabled"`
	LookbackDays int    `yaml:"lookback_days,omitempty"`
}

// SourceCatalog is the operator-editable list of evidence sources. The
// number of enabled sources selects the pipeline gathering mode:
// exactly one enabled source runs the single-source configuration,
// more than one runs multi-source.
type SourceCatalog struct {
	Sources []SourceEntry `yaml:"sources"`
}

// DefaultSourceCatalog enables the three standard sources.
func DefaultSourceCatalog() SourceCatalog {
	return SourceCatalog{
		Sources: []SourceEntry{
			{Type: string(types.SourceFilings), Enabled: true},
			{Type: string(types.SourceAnalyst), Enabled: true},
			{Type: string(types.SourceMarket), Enabled: true},
		},
	}
}

// LoadSourceCatalog reads the YAML catalog. A missing file yields the
// default catalog; a malformed file or unknown source type is an error.
func LoadSourceCatalog(path string) (SourceCatalog, error) {
	if path == "" {
		return DefaultSourceCatalog(), nil
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return DefaultSourceCatalog(), nil
	}
	if err != nil {
		return SourceCatalog{}, err
	}

	var catalog SourceCatalog
	if err := yaml.Unmarshal(data, &catalog); err != nil {
		return SourceCatalog{}, fmt.Errorf("failed to parse source catalog: %w", err)
	}

	for _, entry := range catalog.Sources {
		switch types.SourceType(entry.Type) {
		case types.SourceFilings, types.SourceAnalyst, types.SourceMarket, types.SourceNews:
		default:
			return SourceCatalog{}, fmt.Errorf("unknown source type %q in catalog", entry.Type)
		}
	}
	if len(catalog.Sources) == 0 {
		return DefaultSourceCatalog(), nil
	}
	return catalog, nil
}

// EnabledTypes returns the enabled source types in catalog order.
func (c SourceCatalog) EnabledTypes() []types.SourceType {
	var enabled []types.SourceType
	for _, entry := range c.Sources {
		if entry.Enabled {
			enabled = append(enabled, types.SourceType(entry.Type))
		}
	}
	return enabled
}
