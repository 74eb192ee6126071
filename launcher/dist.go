package launcher

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum-optimism/infra/op-disttest/types"
)

var (
	_ types.DistributedTest    = (*Test)(nil)
	_ types.DistributedFixture = (*Fixture)(nil)
)

// Test runs the requesting item's command across the group.
type Test struct {
	group *Group
}

func (t *Test) Call(ctx context.Context, req *types.Request) error {
	if req == nil || req.Item == nil {
		return errors.New("distributed test called without an item")
	}
	if len(req.Item.Command) == 0 {
		return fmt.Errorf("test %q has no command", req.Item.ID)
	}
	return t.group.run(ctx, req.Item.ID, req.Item.Command, req.Log)
}

// Fixture runs a fixture command across the group.
type Fixture struct {
	group   *Group
	name    string
	command []string
}

func (f *Fixture) Call(ctx context.Context, req *types.Request) error {
	if len(f.command) == 0 {
		return fmt.Errorf("fixture %q has no command", f.name)
	}
	logger := f.group.cfg.Log
	if req != nil && req.Log != nil {
		logger = req.Log.New("fixture", f.name)
	}
	return f.group.run(ctx, f.name, f.command, logger)
}

// TestFactory returns a factory building a fresh Test on g for every call.
func TestFactory(g *Group) types.TestFactory {
	return func() types.DistributedTest {
		return &Test{group: g}
	}
}

// FixtureFactory returns a factory building a fresh Fixture on g for every call.
func FixtureFactory(g *Group, name string, command []string) types.FixtureFactory {
	return func() types.DistributedFixture {
		return &Fixture{group: g, name: name, command: command}
	}
}

// RunFunc runs the item's command on g as the body of a non-distributed test.
func (g *Group) RunFunc(item *types.Item) types.RunFunc {
	return func(ctx context.Context) error {
		if len(item.Command) == 0 {
			return fmt.Errorf("test %q has no command", item.ID)
		}
		logger := g.cfg.Log
		if item.Request != nil && item.Request.Log != nil {
			logger = item.Request.Log
		}
		return g.run(ctx, item.ID, item.Command, logger)
	}
}

// FixtureFunc runs command on g as a fixture provider.
func (g *Group) FixtureFunc(command []string) types.FixtureFunc {
	return func(ctx context.Context, req *types.Request) error {
		logger := g.cfg.Log
		label := ""
		if req != nil {
			label = req.Fixture
			if req.Log != nil {
				logger = req.Log.New("fixture", req.Fixture)
			}
		}
		return g.run(ctx, label, command, logger)
	}
}
