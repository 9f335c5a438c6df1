package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type settingsFile struct {
	Thresholds *Thresholds `yaml:"thresholds"`
	Coverage   *Coverage   `yaml:"coverage"`
}

// loadSettingsFile overrides thresholds and coverage minimums with the
// non zero values of a YAML file:
//
//	thresholds:
//	  license: 45
//	coverage:
//	  property_minimum: 100000000
func (c *Config) loadSettingsFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var s settingsFile
	if err := yaml.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if t := s.Thresholds; t != nil {
		if t.License > 0 {
			c.Thresholds.License = t.License
		}
		if t.Vehicle > 0 {
			c.Thresholds.Vehicle = t.Vehicle
		}
		if t.Insurance > 0 {
			c.Thresholds.Insurance = t.Insurance
		}
	}
	if cv := s.Coverage; cv != nil {
		if cv.PropertyMinimum > 0 {
			c.Coverage.PropertyMinimum = cv.PropertyMinimum
		}
		if cv.PassengerMinimum > 0 {
			c.Coverage.PassengerMinimum = cv.PassengerMinimum
		}
	}
	return nil
}
