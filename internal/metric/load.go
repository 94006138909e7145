package metric

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

type seriesFile struct {
	Series []Series `yaml:"series"`
}

// Parse decodes a series document:
//
//	series:
//	  - name: cpu.load
//	    points:
//	      - {at: 2026-01-02T15:04:05Z, value: 0.7}
func Parse(data []byte) ([]Series, error) {
	var f seriesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, errors.Wrap(err, "decode series")
	}
	for i, s := range f.Series {
		if s.Name == "" {
			return nil, errors.Errorf("series %d: missing name", i)
		}
	}
	return f.Series, nil
}

// LoadFile reads and parses a series file.
func LoadFile(path string) ([]Series, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read series %s", path)
	}
	series, err := Parse(data)
	if err != nil {
		return nil, errors.Wrapf(err, "parse %s", path)
	}
	return series, nil
}
