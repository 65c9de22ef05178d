package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Examiner is one entry of the known-examiner registry: the preferred spelling
// plus the variants found on title pages.
type Examiner struct {
	Name     string   `yaml:"name" json:"name"`
	Variants []string `yaml:"variants" json:"variants"`
}

// examinersFile is the on-disk shape. JSON files parse as YAML too.
type examinersFile struct {
	Examiners []Examiner `yaml:"examiners"`
}

// LoadExaminers reads the examiner registry at path. Entries without a name
// are rejected.
func LoadExaminers(path string) ([]Examiner, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read examiners %s: %w", path, err)
	}
	var f examinersFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("config: parse examiners %s: %w", path, err)
	}
	for i, e := range f.Examiners {
		if strings.TrimSpace(e.Name) == "" {
			return nil, fmt.Errorf("config: examiners %s: entry %d has no name", path, i)
		}
	}
	return f.Examiners, nil
}
