package runner

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/ethereum-optimism/infra/op-disttest/types"
)

// Priority orders hooks. Lower values run first.
type Priority int

const (
	TryFirst Priority = iota
	Normal
	TryLast
)

func (p Priority) String() string {
	switch p {
	case TryFirst:
		return "tryfirst"
	case Normal:
		return "normal"
	case TryLast:
		return "trylast"
	default:
		return fmt.Sprintf("priority(%d)", int(p))
	}
}

// Plugin is anything registered with a PluginManager. It must implement at
// least one of the hook interfaces below.
type Plugin interface {
	Name() string
}

// RunTestCallHook is called for every item that is not skipped and whose
// fixtures were set up. All hooks run in order; the first error stops the
// chain and fails the item.
type RunTestCallHook interface {
	Plugin
	RunTestCall(ctx context.Context, item *types.Item) error
}

// FixtureSetupHook sets up a fixture. Hooks run in order until one reports
// handled; the rest are not called.
type FixtureSetupHook interface {
	Plugin
	FixtureSetup(ctx context.Context, def *types.FixtureDef, req *types.Request) (handled bool, err error)
}

type pluginEntry struct {
	plugin   Plugin
	priority Priority
	seq      int
}

// PluginManager holds the registered hooks.
type PluginManager struct {
	mu      sync.RWMutex
	entries []pluginEntry
	seq     int
}

// NewPluginManager returns a manager with the default hooks registered at TryLast.
func NewPluginManager() *PluginManager {
	m := &PluginManager{}
	// Defaults can never collide with each other.
	_ = m.Register(defaultRunTest{}, TryLast)
	_ = m.Register(defaultFixtureSetup{}, TryLast)
	return m
}

// Register adds p at the given priority. Among hooks of equal priority,
// earlier registrations run first.
func (m *PluginManager) Register(p Plugin, priority Priority) error {
	if p == nil {
		return errors.New("plugin cannot be nil")
	}
	_, isRunTest := p.(RunTestCallHook)
	_, isFixture := p.(FixtureSetupHook)
	if !isRunTest && !isFixture {
		return fmt.Errorf("plugin %q implements no hooks", p.Name())
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.entries {
		if e.plugin.Name() == p.Name() {
			return fmt.Errorf("plugin %q is already registered", p.Name())
		}
	}
	m.entries = append(m.entries, pluginEntry{plugin: p, priority: priority, seq: m.seq})
	m.seq++
	sort.SliceStable(m.entries, func(i, j int) bool {
		if m.entries[i].priority != m.entries[j].priority {
			return m.entries[i].priority < m.entries[j].priority
		}
		return m.entries[i].seq < m.entries[j].seq
	})
	return nil
}

// Plugins returns the registered plugins in call order.
func (m *PluginManager) Plugins() []Plugin {
	m.mu.RLock()
	defer m.mu.RUnlock()
	plugins := make([]Plugin, 0, len(m.entries))
	for _, e := range m.entries {
		plugins = append(plugins, e.plugin)
	}
	return plugins
}

// CallRunTest runs every RunTestCallHook for item.
func (m *PluginManager) CallRunTest(ctx context.Context, item *types.Item) error {
	for _, p := range m.Plugins() {
		hook, ok := p.(RunTestCallHook)
		if !ok {
			continue
		}
		if err := hook.RunTestCall(ctx, item); err != nil {
			return err
		}
	}
	return nil
}

// CallFixtureSetup runs FixtureSetupHooks until one handles def. It returns
// the name of the handling plugin.
func (m *PluginManager) CallFixtureSetup(ctx context.Context, def *types.FixtureDef, req *types.Request) (string, error) {
	for _, p := range m.Plugins() {
		hook, ok := p.(FixtureSetupHook)
		if !ok {
			continue
		}
		handled, err := hook.FixtureSetup(ctx, def, req)
		if err != nil {
			return p.Name(), err
		}
		if handled {
			return p.Name(), nil
		}
	}
	return "", fmt.Errorf("no plugin set up fixture %q", def.Name)
}

const (
	DefaultRunTestPlugin      = "runner"
	DefaultFixtureSetupPlugin = "fixtures"
)

// defaultRunTest calls the item's run slot.
type defaultRunTest struct{}

func (defaultRunTest) Name() string { return DefaultRunTestPlugin }

func (defaultRunTest) RunTestCall(ctx context.Context, item *types.Item) error {
	if item.RunTest == nil {
		return fmt.Errorf("test %q has no run function", item.ID)
	}
	return item.RunTest(ctx)
}

// defaultFixtureSetup calls the fixture provider.
type defaultFixtureSetup struct{}

func (defaultFixtureSetup) Name() string { return DefaultFixtureSetupPlugin }

func (defaultFixtureSetup) FixtureSetup(ctx context.Context, def *types.FixtureDef, req *types.Request) (bool, error) {
	if def.Func == nil {
		return true, fmt.Errorf("fixture %q has no provider", def.Name)
	}
	return true, def.Func(ctx, req)
}
