// Package dispatch routes tests and fixtures of distributed classes to their
// registered implementations instead of the default in-process path.
package dispatch

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/log"

	"github.com/ethereum-optimism/infra/op-disttest/metrics"
	"github.com/ethereum-optimism/infra/op-disttest/registry"
	"github.com/ethereum-optimism/infra/op-disttest/runner"
	"github.com/ethereum-optimism/infra/op-disttest/types"
)

const (
	TestDispatcherName    = "dist-test"
	FixtureDispatcherName = "dist-fixture"
)

// TestDispatcher runs items whose class is registered as a distributed test.
type TestDispatcher struct {
	reg *registry.Registry
	log log.Logger
}

func NewTestDispatcher(reg *registry.Registry, logger log.Logger) *TestDispatcher {
	return &TestDispatcher{reg: reg, log: logger}
}

func (d *TestDispatcher) Name() string { return TestDispatcherName }

// RunTestCall builds a fresh instance of the class and calls it with the
// item's request. On success the item's run slot becomes a no-op so the
// default hook does not run the body a second time. On failure the slot is
// left alone and the error fails the item.
func (d *TestDispatcher) RunTestCall(ctx context.Context, item *types.Item) error {
	factory, ok := d.reg.DistTest(item.Class)
	if !ok {
		return nil
	}

	d.log.Debug("Dispatching distributed test", "test", item.ID, "class", item.Class)
	inst := factory()
	if inst == nil {
		err := fmt.Errorf("distributed test %q factory returned nil", item.Class)
		metrics.RecordDispatch("test", item.Class, err)
		return err
	}

	err := inst.Call(ctx, item.Request)
	metrics.RecordDispatch("test", item.Class, err)
	if err != nil {
		return err
	}

	item.RunTest = types.NoopRun
	item.Dispatched = true
	return nil
}

// FixtureDispatcher sets up fixtures registered as distributed fixtures.
type FixtureDispatcher struct {
	reg *registry.Registry
	log log.Logger
}

func NewFixtureDispatcher(reg *registry.Registry, logger log.Logger) *FixtureDispatcher {
	return &FixtureDispatcher{reg: reg, log: logger}
}

func (d *FixtureDispatcher) Name() string { return FixtureDispatcherName }

// FixtureSetup handles def when it is registered, which suppresses the
// default setup. Unregistered fixtures fall through.
func (d *FixtureDispatcher) FixtureSetup(ctx context.Context, def *types.FixtureDef, req *types.Request) (bool, error) {
	factory, ok := d.reg.DistFixture(def.Name)
	if !ok {
		return false, nil
	}

	d.log.Debug("Dispatching distributed fixture", "fixture", def.Name)
	wrapper := factory()
	if wrapper == nil {
		err := fmt.Errorf("distributed fixture %q factory returned nil", def.Name)
		metrics.RecordDispatch("fixture", def.Name, err)
		return true, err
	}

	err := wrapper.Call(ctx, req)
	metrics.RecordDispatch("fixture", def.Name, err)
	return true, err
}

// Register adds both dispatchers to pm ahead of every other hook.
func Register(pm *runner.PluginManager, reg *registry.Registry, logger log.Logger) error {
	if err := pm.Register(NewTestDispatcher(reg, logger), runner.TryFirst); err != nil {
		return fmt.Errorf("failed to register test dispatcher: %w", err)
	}
	if err := pm.Register(NewFixtureDispatcher(reg, logger), runner.TryFirst); err != nil {
		return fmt.Errorf("failed to register fixture dispatcher: %w", err)
	}
	return nil
}
