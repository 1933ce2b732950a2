// Package config provides YAML/TOML configuration loading with environment variable expansion.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Validator is an interface for configuration validation.
type Validator interface {
	Validate() error
}

// Load loads configuration from a YAML or TOML file with environment
// variable expansion. The format is chosen by extension (.toml selects TOML,
// anything else YAML). overrides run after decoding and before validation.
func Load[T any](filename string, target *T, overrides ...func(*T)) error {
	if err := decode(filename, target); err != nil {
		return err
	}
	return finish(target, overrides)
}

// LoadOptional is Load for a file that may be absent: a missing file leaves
// target untouched, and overrides and validation still run. It reports
// whether the file was read.
func LoadOptional[T any](filename string, target *T, overrides ...func(*T)) (bool, error) {
	found := true
	if _, err := os.Stat(filename); errors.Is(err, os.ErrNotExist) {
		found = false
	} else if err := decode(filename, target); err != nil {
		return true, err
	}
	return found, finish(target, overrides)
}

func decode[T any](filename string, target *T) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", filename, err)
	}

	expandedData := []byte(os.ExpandEnv(string(data)))

	if strings.EqualFold(filepath.Ext(filename), ".toml") {
		err = toml.Unmarshal(expandedData, target)
	} else {
		err = yaml.Unmarshal(expandedData, target)
	}
	if err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", filename, err)
	}
	return nil
}

func finish[T any](target *T, overrides []func(*T)) error {
	for _, o := range overrides {
		o(target)
	}
	if validator, ok := any(target).(Validator); ok {
		if err := validator.Validate(); err != nil {
			return fmt.Errorf("config validation failed: %w", err)
		}
	}
	return nil
}
