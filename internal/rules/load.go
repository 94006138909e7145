package rules

import (
	"os"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

type rulesFile struct {
	Rules []Rule `yaml:"rules"`
}

// Parse decodes a rules document. Rules without a UID are given one, and
// the result is sorted.
//
//	rules:
//	  - alias: cpu
//	    pattern: "host.*.cpu"
//	    cells: [cell-3, cell-4]
//	    script: "return value > 0.9 and 2 or 0"
func Parse(data []byte) ([]Rule, error) {
	var f rulesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, errors.Wrap(err, "decode rules")
	}
	seen := make(map[string]bool, len(f.Rules))
	for i := range f.Rules {
		r := &f.Rules[i]
		if r.UID == "" {
			r.UID = uuid.NewString()
		}
		if seen[r.UID] {
			return nil, errors.Errorf("rule %d: duplicate uid %q", i, r.UID)
		}
		seen[r.UID] = true
	}
	Sort(f.Rules)
	return f.Rules, nil
}

// LoadFile reads and parses a rules file.
func LoadFile(path string) ([]Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read rules %s", path)
	}
	rules, err := Parse(data)
	if err != nil {
		return nil, errors.Wrapf(err, "parse %s", path)
	}
	return rules, nil
}
