// Package roster loads recipient lists from yaml files.
package roster

import (
	"fmt"
	"os"

	yaml "go.yaml.in/yaml/v3"

	"wablast/internal/dispatch"
)

type file struct {
	Recipients []dispatch.Recipient `yaml:"recipients"`
}

// Load reads a recipients file. Entry order is preserved: it defines
// delivery order. Every entry needs an id and a phone; duplicate ids
// are reported to the caller but accepted (the dispatcher reconciles
// by position).
func Load(path string) ([]dispatch.Recipient, []string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}

	var f file
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, nil, fmt.Errorf("roster %s: %w", path, err)
	}

	var warnings []string
	seen := make(map[string]bool, len(f.Recipients))
	for i, r := range f.Recipients {
		if r.ID == "" {
			return nil, nil, fmt.Errorf("roster %s: entry %d has no id", path, i+1)
		}
		if r.Phone == "" {
			return nil, nil, fmt.Errorf("roster %s: entry %q has no phone", path, r.ID)
		}
		if seen[r.ID] {
			warnings = append(warnings, fmt.Sprintf("duplicate recipient id %q", r.ID))
		}
		seen[r.ID] = true
	}
	return f.Recipients, warnings, nil
}
