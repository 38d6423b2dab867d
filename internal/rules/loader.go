package rules

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type file struct {
	Rules []Rule `yaml:"rules"`
}

// LoadFile reads a YAML rule table. An empty path yields the defaults.
func LoadFile(path string) (Set, error) {
	if path == "" {
		return Defaults(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules file: %w", err)
	}
	return Parse(raw)
}

func Parse(raw []byte) (Set, error) {
	var f file
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse rules: %w", err)
	}
	set := Set(f.Rules)
	if err := set.Validate(); err != nil {
		return nil, err
	}
	return set, nil
}

// Validate checks that rule types are unique and every rule is well formed.
func (s Set) Validate() error {
	if len(s) == 0 {
		return errors.New("rules: empty rule set")
	}
	seen := make(map[string]bool, len(s))
	for i, r := range s {
		if r.Type == "" {
			return fmt.Errorf("rules: rule %d has no type", i)
		}
		if seen[r.Type] {
			return fmt.Errorf("rules: duplicate type %q", r.Type)
		}
		seen[r.Type] = true
		if !r.Severity.Valid() {
			return fmt.Errorf("rules: %s: invalid severity %q", r.Type, r.Severity)
		}
		if len(r.Conditions) == 0 {
			return fmt.Errorf("rules: %s: no conditions", r.Type)
		}
		for _, c := range r.Conditions {
			if c.Metric == "" {
				return fmt.Errorf("rules: %s: condition without metric", r.Type)
			}
			if !c.Op.Valid() {
				return fmt.Errorf("rules: %s: invalid operator %q", r.Type, c.Op)
			}
		}
	}
	return nil
}
