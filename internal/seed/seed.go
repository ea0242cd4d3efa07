// Package seed ships the built-in scenarios that a fresh store is populated with.
package seed

import (
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"

	"github.com/tatianab/atelos/internal/models"
	"gopkg.in/yaml.v3"
)

//go:embed scenarios/*.yaml
var scenarioFS embed.FS

// Parse decodes a scenario document.
func Parse(data []byte) (*models.ScenarioDefinition, error) {
	var def models.ScenarioDefinition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("parse scenario: %w", err)
	}
	return &def, nil
}

// Scenarios returns every built-in scenario sorted by id.
func Scenarios() ([]*models.ScenarioDefinition, error) {
	entries, err := fs.ReadDir(scenarioFS, "scenarios")
	if err != nil {
		return nil, err
	}
	var defs []*models.ScenarioDefinition
	for _, e := range entries {
		data, err := scenarioFS.ReadFile(path.Join("scenarios", e.Name()))
		if err != nil {
			return nil, err
		}
		def, err := Parse(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", e.Name(), err)
		}
		defs = append(defs, def)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].ScenarioID < defs[j].ScenarioID })
	return defs, nil
}

// Scenario returns the built-in scenario with the given id.
func Scenario(id string) (*models.ScenarioDefinition, error) {
	defs, err := Scenarios()
	if err != nil {
		return nil, err
	}
	for _, d := range defs {
		if d.ScenarioID == id {
			return d, nil
		}
	}
	return nil, fmt.Errorf("no built-in scenario %q", id)
}

// ShelterZero is the id of the sample scenario used by the clients.
const ShelterZero = "shelter-zero"
