// Package types contains shared types used across the op-disttest packages
package types

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/log"
)

// TestStatus represents the possible states of a test execution
type TestStatus string

const (
	TestStatusPass  TestStatus = "pass"
	TestStatusFail  TestStatus = "fail"
	TestStatusSkip  TestStatus = "skip"
	TestStatusError TestStatus = "error" // fixture setup failed
)

// RunFunc runs a test body.
type RunFunc func(ctx context.Context) error

// NoopRun always succeeds. It replaces Item.RunTest once a test has been run
// through the distributed path so the default path does not run it again.
func NoopRun(context.Context) error { return nil }

// FixtureFunc sets up a fixture for the requesting item.
type FixtureFunc func(ctx context.Context, req *Request) error

// Item is a single test invocation.
type Item struct {
	ID       string
	Class    string
	Name     string
	Command  []string
	Fixtures []string
	Skip     string        // skip reason, empty to run
	Timeout  time.Duration // zero means no limit

	// RunTest is the run slot used by the default runtest hook. Hooks may replace it.
	RunTest RunFunc
	Request *Request

	// Dispatched is set by a hook that ran the item outside the default path.
	Dispatched bool
}

// FixtureScope says how long a fixture setup is reused.
type FixtureScope string

const (
	// FixtureScopeFunction sets the fixture up again for every item that needs it.
	FixtureScopeFunction FixtureScope = "function"
	// FixtureScopeSession sets the fixture up once and reuses the outcome.
	FixtureScopeSession FixtureScope = "session"
)

// FixtureDef is a fixture provider.
type FixtureDef struct {
	Name    string
	Command []string
	Scope   FixtureScope // empty means function
	Func    FixtureFunc
}

// SessionScoped reports whether the fixture is set up once per session.
func (d *FixtureDef) SessionScoped() bool {
	return d.Scope == FixtureScopeSession
}

// Request is the per-invocation context handed to tests and fixtures.
type Request struct {
	Item    *Item
	Fixture string // set while a fixture is being set up
	WorkDir string
	Env     []string
	Log     log.Logger
}

// ForFixture returns a copy of r scoped to the named fixture.
func (r *Request) ForFixture(name string) *Request {
	cp := *r
	cp.Fixture = name
	return &cp
}

// TestResult captures the outcome of a single test run
type TestResult struct {
	Item       *Item
	Status     TestStatus
	Error      error
	Duration   time.Duration
	Dispatched bool // run through the distributed path
}
