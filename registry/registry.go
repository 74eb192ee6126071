package registry

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"sync"

	"github.com/ethereum/go-ethereum/log"
	"gopkg.in/yaml.v3"

	"github.com/ethereum-optimism/infra/op-disttest/types"
)

// Registry records which test classes and fixtures run through the
// distributed path. Membership is explicit: a class or fixture is distributed
// if and only if a factory was registered for its name.
type Registry struct {
	config   Config
	plan     *types.PlanConfig
	tests    map[string]types.TestFactory
	fixtures map[string]types.FixtureFactory
	mu       sync.RWMutex
}

// Config contains registry configuration
type Config struct {
	Log      log.Logger
	PlanFile string // optional; loaded and validated when set
}

// NewRegistry creates a new registry instance
func NewRegistry(cfg Config) (*Registry, error) {
	if cfg.Log == nil {
		cfg.Log = log.New()
		cfg.Log.Error("No logger provided, using default")
	}

	r := &Registry{
		config:   cfg,
		tests:    make(map[string]types.TestFactory),
		fixtures: make(map[string]types.FixtureFactory),
	}

	if cfg.PlanFile != "" {
		plan, err := LoadPlan(cfg.PlanFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load plan: %w", err)
		}
		r.plan = plan
		cfg.Log.Debug("Registry loaded plan", "path", cfg.PlanFile,
			"len(classes)", len(plan.Classes), "len(fixtures)", len(plan.Fixtures))
	}

	return r, nil
}

// Plan returns the loaded plan, or nil if the registry was created without one.
func (r *Registry) Plan() *types.PlanConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.plan
}

// RegisterDistTest marks class as distributed. factory is called with no
// arguments for every test of the class.
func (r *Registry) RegisterDistTest(class string, factory types.TestFactory) error {
	if class == "" {
		return errors.New("class name is required")
	}
	if factory == nil {
		return fmt.Errorf("nil factory for class %q", class)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tests[class]; exists {
		return fmt.Errorf("class %q is already registered as a distributed test", class)
	}
	r.tests[class] = factory
	r.config.Log.Debug("Registered distributed test class", "class", class)
	return nil
}

// RegisterDistFixture marks fixture name as distributed. factory is called
// with no arguments to obtain the wrapper that replaces the default setup.
func (r *Registry) RegisterDistFixture(name string, factory types.FixtureFactory) error {
	if name == "" {
		return errors.New("fixture name is required")
	}
	if factory == nil {
		return fmt.Errorf("nil factory for fixture %q", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.fixtures[name]; exists {
		return fmt.Errorf("fixture %q is already registered as a distributed fixture", name)
	}
	r.fixtures[name] = factory
	r.config.Log.Debug("Registered distributed fixture", "fixture", name)
	return nil
}

// DistTest returns the factory registered for class.
func (r *Registry) DistTest(class string) (types.TestFactory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.tests[class]
	return f, ok
}

// DistFixture returns the factory registered for the fixture.
func (r *Registry) DistFixture(name string) (types.FixtureFactory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.fixtures[name]
	return f, ok
}

func (r *Registry) IsDistTest(class string) bool {
	_, ok := r.DistTest(class)
	return ok
}

func (r *Registry) IsDistFixture(name string) bool {
	_, ok := r.DistFixture(name)
	return ok
}

// Classes returns the registered distributed classes, sorted.
func (r *Registry) Classes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tests))
	for name := range r.tests {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// FixtureNames returns the registered distributed fixtures, sorted.
func (r *Registry) FixtureNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.fixtures))
	for name := range r.fixtures {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// GetConfig returns the registry configuration
func (r *Registry) GetConfig() Config {
	return r.config
}

// LoadPlan reads and validates a plan file
func LoadPlan(path string) (*types.PlanConfig, error) {
	log.Debug("Reading plan file", "path", path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading plan file: %w", err)
	}

	var plan types.PlanConfig
	if err := yaml.Unmarshal(data, &plan); err != nil {
		return nil, fmt.Errorf("parsing plan file: %w", err)
	}
	if err := plan.Validate(); err != nil {
		return nil, fmt.Errorf("invalid plan file %s: %w", path, err)
	}

	return &plan, nil
}
