package applet

import (
	_ "embed"
	"errors"
	"fmt"
	"os"

	"github.com/goccy/go-yaml"

	"github.com/neighbourhoods/forum-applet/internal/shared/types"
)

//go:embed forum.yaml
var defaultConfig []byte

var (
	validPrograms   = map[string]bool{"sum": true, "average": true}
	validThresholds = map[string]bool{"greater_than": true, "less_than": true, "equal": true}
	validDirections = map[string]bool{"asc": true, "desc": true}
)

// DefaultConfig returns the built-in forum applet config
func DefaultConfig() (types.AppletConfigInput, error) {
	return ParseConfig(defaultConfig)
}

// LoadConfig reads an applet config document from path, or returns the
// built-in one when path is empty.
func LoadConfig(path string) (types.AppletConfigInput, error) {
	if path == "" {
		return DefaultConfig()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return types.AppletConfigInput{}, fmt.Errorf("read applet config: %w", err)
	}
	cfg, err := ParseConfig(data)
	if err != nil {
		return types.AppletConfigInput{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// ParseConfig decodes and validates a YAML applet config document
func ParseConfig(data []byte) (types.AppletConfigInput, error) {
	var cfg types.AppletConfigInput
	if err := yaml.UnmarshalWithOptions(data, &cfg, yaml.DisallowUnknownField()); err != nil {
		return types.AppletConfigInput{}, fmt.Errorf("parse applet config: %w", err)
	}
	if err := ValidateConfig(cfg); err != nil {
		return types.AppletConfigInput{}, err
	}
	return cfg, nil
}

// ValidateConfig checks that every reference in cfg names a declared item
func ValidateConfig(cfg types.AppletConfigInput) error {
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if cfg.Name == "" {
		fail("applet config has no name")
	}

	ranges := make(map[string]bool, len(cfg.Ranges))
	for _, r := range cfg.Ranges {
		if ranges[r.Name] {
			fail("range %q declared twice", r.Name)
		}
		if r.Min > r.Max {
			fail("range %q: min %d above max %d", r.Name, r.Min, r.Max)
		}
		ranges[r.Name] = true
	}

	dims := make(map[string]bool, len(cfg.Dimensions))
	for _, d := range cfg.Dimensions {
		if dims[d.Name] {
			fail("dimension %q declared twice", d.Name)
		}
		if !ranges[d.Range] {
			fail("dimension %q: unknown range %q", d.Name, d.Range)
		}
		dims[d.Name] = true
	}

	defs := make(map[string]bool, len(cfg.ResourceDefs))
	for _, r := range cfg.ResourceDefs {
		if len(r.BaseTypes) == 0 {
			fail("resource def %q has no base types", r.Name)
		}
		for _, d := range r.Dimensions {
			if !dims[d] {
				fail("resource def %q: unknown dimension %q", r.Name, d)
			}
		}
		defs[r.Name] = true
	}

	for _, m := range cfg.Methods {
		if !defs[m.TargetResourceDef] {
			fail("method %q: unknown resource def %q", m.Name, m.TargetResourceDef)
		}
		for _, d := range m.InputDimensions {
			if !dims[d] {
				fail("method %q: unknown input dimension %q", m.Name, d)
			}
		}
		if !dims[m.OutputDimension] {
			fail("method %q: unknown output dimension %q", m.Name, m.OutputDimension)
		}
		if !validPrograms[m.Program] {
			fail("method %q: unknown program %q", m.Name, m.Program)
		}
	}

	for _, c := range cfg.CulturalContexts {
		if !defs[c.ResourceDef] {
			fail("cultural context %q: unknown resource def %q", c.Name, c.ResourceDef)
		}
		for _, th := range c.Thresholds {
			if !dims[th.Dimension] {
				fail("cultural context %q: unknown threshold dimension %q", c.Name, th.Dimension)
			}
			if !validThresholds[th.Kind] {
				fail("cultural context %q: unknown threshold kind %q", c.Name, th.Kind)
			}
		}
		for _, o := range c.OrderBy {
			if !dims[o.Dimension] {
				fail("cultural context %q: unknown order dimension %q", c.Name, o.Dimension)
			}
			if !validDirections[o.Direction] {
				fail("cultural context %q: unknown direction %q", c.Name, o.Direction)
			}
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid applet config: %w", errors.Join(errs...))
	}
	return nil
}
