package types

import (
	"errors"
	"fmt"
	"time"
)

// PlanConfig is the test plan loaded from YAML.
type PlanConfig struct {
	Fixtures []FixtureConfig `yaml:"fixtures,omitempty"`
	Classes  []ClassConfig   `yaml:"classes"`
}

// FixtureConfig declares a fixture. Scope defaults to function.
type FixtureConfig struct {
	Name        string         `yaml:"name"`
	Scope       FixtureScope   `yaml:"scope,omitempty"`
	Distributed bool           `yaml:"distributed,omitempty"`
	WorldSize   int            `yaml:"world_size,omitempty"`
	Command     []string       `yaml:"command"`
	Timeout     *time.Duration `yaml:"timeout,omitempty"`
}

// ClassConfig declares a test class. A distributed class runs each of its
// tests in a process group of WorldSize ranks.
type ClassConfig struct {
	Name        string         `yaml:"name"`
	Distributed bool           `yaml:"distributed,omitempty"`
	WorldSize   int            `yaml:"world_size,omitempty"`
	Timeout     *time.Duration `yaml:"timeout,omitempty"`
	Tests       []TestConfig   `yaml:"tests"`
}

// TestConfig represents a test configuration
type TestConfig struct {
	Name     string         `yaml:"name"`
	Command  []string       `yaml:"command,omitempty"`
	Fixtures []string       `yaml:"fixtures,omitempty"`
	Skip     string         `yaml:"skip,omitempty"`
	Timeout  *time.Duration `yaml:"timeout,omitempty"`
}

// EffectiveWorldSize returns WorldSize, defaulting to 1.
func (c ClassConfig) EffectiveWorldSize() int {
	if c.WorldSize == 0 {
		return 1
	}
	return c.WorldSize
}

// EffectiveWorldSize returns WorldSize, defaulting to 1.
func (f FixtureConfig) EffectiveWorldSize() int {
	if f.WorldSize == 0 {
		return 1
	}
	return f.WorldSize
}

// TestTimeout resolves the timeout for a test: the test's own, then the
// class's, then fallback.
func (c ClassConfig) TestTimeout(test TestConfig, fallback time.Duration) time.Duration {
	if test.Timeout != nil {
		return *test.Timeout
	}
	if c.Timeout != nil {
		return *c.Timeout
	}
	return fallback
}

// ItemID returns the identifier used for a test of this class.
func ItemID(class, name string) string {
	if class == "" {
		return name
	}
	return class + "::" + name
}

// Validate checks names, references and world sizes. All problems are joined
// into one error.
func (p *PlanConfig) Validate() error {
	var errs []error

	fixtures := make(map[string]bool)
	for i, f := range p.Fixtures {
		if f.Name == "" {
			errs = append(errs, fmt.Errorf("fixture #%d has no name", i))
			continue
		}
		if fixtures[f.Name] {
			errs = append(errs, fmt.Errorf("duplicate fixture %q", f.Name))
		}
		fixtures[f.Name] = true
		if f.WorldSize < 0 {
			errs = append(errs, fmt.Errorf("fixture %q has invalid world_size %d", f.Name, f.WorldSize))
		}
		if len(f.Command) == 0 {
			errs = append(errs, fmt.Errorf("fixture %q has no command", f.Name))
		}
		switch f.Scope {
		case "", FixtureScopeFunction, FixtureScopeSession:
		default:
			errs = append(errs, fmt.Errorf("fixture %q has invalid scope %q", f.Name, f.Scope))
		}
	}

	if len(p.Classes) == 0 {
		errs = append(errs, errors.New("plan has no classes"))
	}

	classes := make(map[string]bool)
	for i, c := range p.Classes {
		if c.Name == "" {
			errs = append(errs, fmt.Errorf("class #%d has no name", i))
			continue
		}
		if classes[c.Name] {
			errs = append(errs, fmt.Errorf("duplicate class %q", c.Name))
		}
		classes[c.Name] = true
		if c.WorldSize < 0 {
			errs = append(errs, fmt.Errorf("class %q has invalid world_size %d", c.Name, c.WorldSize))
		}

		tests := make(map[string]bool)
		for j, test := range c.Tests {
			if test.Name == "" {
				errs = append(errs, fmt.Errorf("class %q test #%d has no name", c.Name, j))
				continue
			}
			id := ItemID(c.Name, test.Name)
			if tests[test.Name] {
				errs = append(errs, fmt.Errorf("duplicate test %q", id))
			}
			tests[test.Name] = true
			if len(test.Command) == 0 && test.Skip == "" {
				errs = append(errs, fmt.Errorf("test %q has no command", id))
			}
			for _, name := range test.Fixtures {
				if !fixtures[name] {
					errs = append(errs, fmt.Errorf("test %q requires unknown fixture %q", id, name))
				}
			}
		}
	}

	return errors.Join(errs...)
}
