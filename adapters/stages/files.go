// Package stages holds deterministic reference implementations of the
// pipeline stages. They are small rule-based collaborators; any of them can
// be replaced by a model-backed stage without touching the orchestrator.
package stages

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"hypoforge/domain/research"
)

// LoadTickets reads a ticket list from a JSON or YAML file.
func LoadTickets(path string) ([]research.Ticket, error) {
	var tickets []research.Ticket
	if err := decodeFile(path, &tickets); err != nil {
		return nil, err
	}
	for _, t := range tickets {
		if err := t.Validate(); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	}
	return tickets, nil
}

// LoadHints reads a hint list from a JSON or YAML file.
func LoadHints(path string) ([]research.Hint, error) {
	var hints []research.Hint
	if err := decodeFile(path, &hints); err != nil {
		return nil, err
	}
	for _, h := range hints {
		if err := h.Validate(); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	}
	return hints, nil
}

func decodeFile(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		// yaml.v3 does not honor json tags; round-trip through a generic value.
		var generic any
		if err := yaml.Unmarshal(data, &generic); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
		data, err = json.Marshal(generic)
		if err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}
