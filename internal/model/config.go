package model

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// Config describes a simulated acquisition scenario for the CLI. It exists
// for demos and manual testing, real deployments drive the coordinator
// directly from the microscope back-end.
type Config struct {
	Version int            `yaml:"version"` // fixed 0 for now
	Streams []StreamConfig `yaml:"streams"`
}

// StreamConfig describes one simulated stream.
type StreamConfig struct {
	Name string `yaml:"name"`
	Kind string `yaml:"kind"` // one of the Kind string forms

	// Wavelengths in meters, fluorescence kinds only.
	Excitation []float64 `yaml:"excitation,omitempty"`
	Emission   []float64 `yaml:"emission,omitempty"`

	// Duration of one simulated acquisition, seconds.
	Exposure float64 `yaml:"exposure,omitempty"`

	// Absolute focus positions in meters. More than one entry makes the
	// stream part of a Z-stack.
	ZLevels []float64 `yaml:"zlevels,omitempty"`
}

var kindNames = map[string]Kind{
	"fluo":         KindFluo,
	"scanned-fluo": KindScannedFluo,
	"optical":      KindOptical,
	"flim":         KindFLIM,
	"electron":     KindElectron,
	"sem-compound": KindSEMCompound,
	"overlay":      KindOverlay,
}

// ParseKind converts the yaml string form into a Kind.
func ParseKind(s string) (Kind, error) {
	k, ok := kindNames[s]
	if !ok {
		return KindUnknown, fmt.Errorf("unknown stream kind %q", s)
	}
	return k, nil
}

// ParseConfig decodes and validates a scenario config.
func ParseConfig(r io.Reader) (Config, error) {
	var c Config
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil {
		return Config{}, fmt.Errorf("decoding scenario: %w", err)
	}
	if c.Version != 0 {
		return Config{}, fmt.Errorf("config version %d is not supported, expected 0", c.Version)
	}
	if len(c.Streams) == 0 {
		return Config{}, fmt.Errorf("scenario has no streams")
	}
	for i, s := range c.Streams {
		if s.Name == "" {
			return Config{}, fmt.Errorf("stream %d has no name", i)
		}
		if _, err := ParseKind(s.Kind); err != nil {
			return Config{}, fmt.Errorf("stream %q: %w", s.Name, err)
		}
		if s.Exposure < 0 {
			return Config{}, fmt.Errorf("stream %q: negative exposure", s.Name)
		}
	}
	return c, nil
}
