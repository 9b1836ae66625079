// SPDX-License-Identifier: MPL-2.0

package issue

import (
	"errors"
	"fmt"
	"strings"
)

// verboseHint is appended to the short form of errors linked to a catalogue
// entry, which only verbose output renders.
const verboseHint = "Run again with --verbose for help on this error."

type (
	// ActionableError is the user-facing form of a failed link, resolve or
	// image operation: what was attempted, on which module or path, how to
	// fix it, and which catalogue entry explains the failure class.
	//
	//	err := issue.NewErrorContext().
	//		WithOperation("resolve modules").
	//		WithResource("app").
	//		WithSuggestion("Add the directory holding app to --module-path").
	//		WithIssue(issue.ModuleNotFoundId).
	//		Wrap(originalErr).
	//		Build()
	ActionableError struct {
		// Operation is a verb phrase such as "link image" or "write image".
		Operation string

		// Resource names the module, file or directory involved (optional).
		Resource string

		// Suggestions are printed one per line below the message.
		Suggestions []string

		// Issue points at the catalogue entry explaining this class of
		// failure. Zero means none.
		Issue Id

		Cause error
	}

	// ErrorContext builds an ActionableError.
	ErrorContext struct {
		operation   string
		resource    string
		suggestions []string
		issue       Id
		cause       error
	}
)

// NewErrorContext creates a new ErrorContext builder.
func NewErrorContext() *ErrorContext {
	return &ErrorContext{}
}

// Error returns "failed to <operation>[: <resource>][: <cause>]".
func (e *ActionableError) Error() string {
	var msg strings.Builder

	msg.WriteString("failed to ")
	msg.WriteString(e.Operation)
	if e.Resource != "" {
		msg.WriteString(": ")
		msg.WriteString(e.Resource)
	}
	if e.Cause != nil {
		msg.WriteString(": ")
		msg.WriteString(e.Cause.Error())
	}
	return msg.String()
}

// Unwrap returns the underlying cause error for use with errors.Is/As.
func (e *ActionableError) Unwrap() error {
	return e.Cause
}

// Format renders the error for the terminal:
//
//	failed to <operation>: <resource>: <cause message>
//
//	  • <suggestion 1>
//	  • <suggestion 2>
//
// The short form ends with a hint to rerun verbosely when the error has a
// catalogue entry. The verbose form lists the error chain instead. Errors
// that join a sentinel with their cause, like the image write and archive
// format errors, show both branches nested under their parent.
func (e *ActionableError) Format(verbose bool) string {
	var msg strings.Builder

	msg.WriteString(e.Error())

	if len(e.Suggestions) > 0 {
		msg.WriteString("\n")
		for _, suggestion := range e.Suggestions {
			msg.WriteString("\n  • ")
			msg.WriteString(suggestion)
		}
	}

	switch {
	case verbose && e.Cause != nil:
		msg.WriteString("\n\nError chain:")
		depth := 1
		writeChain(&msg, e.Cause, &depth, "  ")
	case !verbose && e.Issue != 0:
		msg.WriteString("\n\n")
		msg.WriteString(verboseHint)
	}

	return msg.String()
}

// writeChain writes err and everything it wraps. Single wraps continue the
// numbered list; joined wraps are nested one level deeper.
func writeChain(msg *strings.Builder, err error, depth *int, indent string) {
	for err != nil {
		fmt.Fprintf(msg, "\n%s%d. %s", indent, *depth, err.Error())
		*depth++

		switch u := err.(type) {
		case interface{ Unwrap() []error }:
			for _, branch := range u.Unwrap() {
				sub := 1
				writeChain(msg, branch, &sub, indent+"   ")
			}
			return
		default:
			err = errors.Unwrap(err)
		}
	}
}

// WithOperation sets the operation being performed.
func (c *ErrorContext) WithOperation(op string) *ErrorContext {
	c.operation = op
	return c
}

// WithResource sets the module, file or directory involved.
func (c *ErrorContext) WithResource(res string) *ErrorContext {
	c.resource = res
	return c
}

// WithSuggestion adds a suggestion for how to fix the issue.
func (c *ErrorContext) WithSuggestion(sug string) *ErrorContext {
	c.suggestions = append(c.suggestions, sug)
	return c
}

// WithSuggestions adds multiple suggestions at once.
func (c *ErrorContext) WithSuggestions(sugs ...string) *ErrorContext {
	c.suggestions = append(c.suggestions, sugs...)
	return c
}

// WithIssue links the error to a catalogue entry.
func (c *ErrorContext) WithIssue(id Id) *ErrorContext {
	c.issue = id
	return c
}

// Wrap sets the underlying cause.
func (c *ErrorContext) Wrap(err error) *ErrorContext {
	c.cause = err
	return c
}

// Build returns nil when no operation was set.
func (c *ErrorContext) Build() *ActionableError {
	if c.operation == "" {
		return nil
	}
	return &ActionableError{
		Operation:   c.operation,
		Resource:    c.resource,
		Suggestions: c.suggestions,
		Issue:       c.issue,
		Cause:       c.cause,
	}
}

// BuildError is Build returning a plain error, nil when no operation was
// set.
func (c *ErrorContext) BuildError() error {
	ae := c.Build()
	if ae == nil {
		return nil
	}
	return ae
}
