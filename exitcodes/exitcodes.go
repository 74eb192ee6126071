// Package exitcodes defines the standard exit codes used by op-disttest.
package exitcodes

// Exit code constants used by op-disttest
// These constants define the exit codes that the application uses to indicate
// various states when it exits:
//
// * Success (0): Used when all tests pass or are skipped
// * TestFailure (1): Used when one or more tests fail or error during fixture setup
// * RuntimeErr (2): Used for runtime errors, including a torch/cuda version mismatch
const (
	Success     = 0 // All tests pass
	TestFailure = 1 // Test failures
	RuntimeErr  = 2 // Runtime errors or environment mismatch
)
