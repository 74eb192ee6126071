package types

import "context"

// DistributedTest runs every test of a distributed class. It is constructed
// fresh for each item and called once with the item's request.
type DistributedTest interface {
	Call(ctx context.Context, req *Request) error
}

// DistributedFixture replaces the default setup of a distributed fixture.
type DistributedFixture interface {
	Call(ctx context.Context, req *Request) error
}

// TestFactory builds a DistributedTest with no arguments.
type TestFactory func() DistributedTest

// FixtureFactory builds a DistributedFixture wrapper with no arguments.
type FixtureFactory func() DistributedFixture

// DistributedTestFunc adapts a function to DistributedTest.
type DistributedTestFunc func(ctx context.Context, req *Request) error

func (f DistributedTestFunc) Call(ctx context.Context, req *Request) error { return f(ctx, req) }

// DistributedFixtureFunc adapts a function to DistributedFixture.
type DistributedFixtureFunc func(ctx context.Context, req *Request) error

func (f DistributedFixtureFunc) Call(ctx context.Context, req *Request) error { return f(ctx, req) }
