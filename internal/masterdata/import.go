package masterdata

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"dispatchline/internal/domain"
)

// Import is a reference data snapshot loaded from YAML:
//
//	workers:
//	  - {id: w1, display_name: Sato, active: true}
//	sites:
//	  - {id: s1, display_name: Shibuya Tower 3F}
type Import struct {
	Workers []domain.Worker `yaml:"workers"`
	Sites   []domain.Site   `yaml:"sites"`
}

// ParseImport decodes and validates a reference data snapshot.
func ParseImport(data []byte) (Import, error) {
	var imp Import
	if err := yaml.Unmarshal(data, &imp); err != nil {
		return Import{}, fmt.Errorf("invalid master data yaml: %w", err)
	}
	return NormalizeImport(imp)
}

// NormalizeImport rejects missing or duplicate ids and defaults display names to the id.
func NormalizeImport(imp Import) (Import, error) {
	seen := map[string]bool{}
	for i, w := range imp.Workers {
		if w.ID == "" {
			return Import{}, fmt.Errorf("workers[%d]: id is required", i)
		}
		if seen["w:"+w.ID] {
			return Import{}, fmt.Errorf("workers[%d]: duplicate id %s", i, w.ID)
		}
		seen["w:"+w.ID] = true
		if w.DisplayName == "" {
			imp.Workers[i].DisplayName = w.ID
		}
	}
	for i, s := range imp.Sites {
		if s.ID == "" {
			return Import{}, fmt.Errorf("sites[%d]: id is required", i)
		}
		if seen["s:"+s.ID] {
			return Import{}, fmt.Errorf("sites[%d]: duplicate id %s", i, s.ID)
		}
		seen["s:"+s.ID] = true
		if s.DisplayName == "" {
			imp.Sites[i].DisplayName = s.ID
		}
	}
	return imp, nil
}
