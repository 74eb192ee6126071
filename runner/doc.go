// Package runner runs a session of test items through an ordered chain of hooks.
//
// The main components are:
//   - PluginManager: Orders hooks by Priority and dispatches the runtest and fixture-setup calls
//   - Session: Runs the one-time environment check, sets up fixtures once per session and runs each item
//   - SessionResult: Aggregates item results per class with pass/fail/skip/error statistics
//
// The built-in hooks run at TryLast and provide the default behaviour: calling Item.RunTest
// and calling FixtureDef.Func. Hooks registered at TryFirst can run an item or fixture in
// another way and suppress the default.
package runner
