// SPDX-License-Identifier: MPL-2.0

package cmd

import "fmt"

// ExitCode is the process exit status of modlink.
type ExitCode int

const (
	// ExitOK reports success.
	ExitOK ExitCode = 0
	// ExitFailure reports a link that could not be completed.
	ExitFailure ExitCode = 1
	// ExitBadArgs reports invalid arguments or configuration.
	ExitBadArgs ExitCode = 2
	// ExitSystem reports an I/O or other system failure.
	ExitSystem ExitCode = 3
	// ExitAbnormal reports an unexpected internal failure.
	ExitAbnormal ExitCode = 4
)

// ExitError signals a non-zero exit code without forcing os.Exit in RunE
// handlers. The error has already been rendered when ExitError is returned.
type ExitError struct {
	Code ExitCode
	Err  error
}

// Error returns the error message for ExitError.
func (e *ExitError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("exit status %d", e.Code)
}

// Unwrap returns the underlying error, if any.
func (e *ExitError) Unwrap() error {
	return e.Err
}
