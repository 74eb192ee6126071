package disttest

import (
	"fmt"

	"github.com/ethereum-optimism/infra/op-disttest/launcher"
	"github.com/ethereum-optimism/infra/op-disttest/registry"
	"github.com/ethereum-optimism/infra/op-disttest/types"
)

// buildSession turns the registry's plan into test items and fixture
// definitions. Distributed classes and fixtures get launcher factories
// registered in reg; everything else runs as a single plain process. output
// may be nil.
func buildSession(reg *registry.Registry, cfg *Config, output launcher.OutputSink) ([]*types.Item, map[string]*types.FixtureDef, error) {
	plan := reg.Plan()
	if plan == nil {
		return nil, nil, fmt.Errorf("registry has no plan")
	}

	base := launcher.Config{
		MasterAddr: cfg.MasterAddr,
		MasterPort: cfg.MasterPort,
		WorkDir:    cfg.WorkDir,
		Log:        cfg.Log,
		Output:     output,
	}

	// Test timeouts are applied per item by the session.
	single, err := launcher.Single(base)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create launcher: %w", err)
	}

	fixtures := make(map[string]*types.FixtureDef, len(plan.Fixtures))
	for _, f := range plan.Fixtures {
		fcfg := base
		fcfg.Timeout = cfg.DefaultTimeout
		if f.Timeout != nil {
			fcfg.Timeout = *f.Timeout
		}

		local, err := launcher.Single(fcfg)
		if err != nil {
			return nil, nil, fmt.Errorf("fixture %q: %w", f.Name, err)
		}
		fixtures[f.Name] = &types.FixtureDef{
			Name:    f.Name,
			Command: f.Command,
			Scope:   f.Scope,
			Func:    local.FixtureFunc(f.Command),
		}

		if !f.Distributed {
			continue
		}
		fcfg.WorldSize = f.EffectiveWorldSize()
		group, err := launcher.NewGroup(fcfg)
		if err != nil {
			return nil, nil, fmt.Errorf("fixture %q: %w", f.Name, err)
		}
		if err := reg.RegisterDistFixture(f.Name, launcher.FixtureFactory(group, f.Name, f.Command)); err != nil {
			return nil, nil, err
		}
		cfg.Log.Debug("Registered distributed fixture", "fixture", f.Name, "world_size", fcfg.WorldSize)
	}

	var items []*types.Item
	for _, c := range plan.Classes {
		if c.Distributed {
			gcfg := base
			gcfg.WorldSize = c.EffectiveWorldSize()
			group, err := launcher.NewGroup(gcfg)
			if err != nil {
				return nil, nil, fmt.Errorf("class %q: %w", c.Name, err)
			}
			if err := reg.RegisterDistTest(c.Name, launcher.TestFactory(group)); err != nil {
				return nil, nil, err
			}
			cfg.Log.Debug("Registered distributed class", "class", c.Name, "world_size", gcfg.WorldSize)
		}

		for _, tc := range c.Tests {
			item := &types.Item{
				ID:       types.ItemID(c.Name, tc.Name),
				Class:    c.Name,
				Name:     tc.Name,
				Command:  tc.Command,
				Fixtures: tc.Fixtures,
				Skip:     tc.Skip,
				Timeout:  c.TestTimeout(tc, cfg.DefaultTimeout),
			}
			item.RunTest = single.RunFunc(item)
			items = append(items, item)
		}
	}

	return items, fixtures, nil
}
