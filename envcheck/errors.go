package envcheck

import (
	"errors"
	"fmt"

	"github.com/ethereum-optimism/infra/op-disttest/exitcodes"
)

// MismatchError is returned when an installed version does not match the
// expected one. It always maps to exitcodes.RuntimeErr.
type MismatchError struct {
	Component string
	Expected  string
	Found     string
}

func (e *MismatchError) Error() string {
	found := e.Found
	if found == "" {
		found = "None"
	}
	return fmt.Sprintf("expected %s version %s did not match found %s version %s",
		e.Component, e.Expected, e.Component, found)
}

// ExitCode implements cli.ExitCoder
func (e *MismatchError) ExitCode() int {
	return exitcodes.RuntimeErr
}

// IsMismatch checks if the error is or wraps a MismatchError
func IsMismatch(err error) bool {
	var mismatch *MismatchError
	return err != nil && errors.As(err, &mismatch)
}
