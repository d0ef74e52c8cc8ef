// Package errors provides categorized CLI errors carrying remediation steps.
package errors

import (
	stderrors "errors"
)

// ErrorCategory classifies a CLIError for display and exit-code selection.
type ErrorCategory int

const (
	// Argument covers bad flags, positional arguments and flag combinations.
	Argument ErrorCategory = iota
	// Configuration covers deployer settings and pipeline config files.
	Configuration
	// Prerequisite covers missing directories, pipelines or credentials.
	Prerequisite
	// Runtime covers failures while compiling, uploading or calling Vertex AI.
	Runtime
)

func (c ErrorCategory) String() string {
	switch c {
	case Argument:
		return "Argument Error"
	case Configuration:
		return "Configuration Error"
	case Prerequisite:
		return "Prerequisite Error"
	case Runtime:
		return "Runtime Error"
	default:
		return "Error"
	}
}

// CLIError is an error meant to be shown to the user with optional usage
// text and a list of remediation steps.
type CLIError struct {
	Category    ErrorCategory
	Message     string
	Usage       string
	Remediation []string
	Err         error
}

func (e *CLIError) Error() string {
	return e.Message
}

// Unwrap exposes the underlying cause, if any.
func (e *CLIError) Unwrap() error {
	return e.Err
}

func newError(cat ErrorCategory, msg string, remediation []string) *CLIError {
	return &CLIError{Category: cat, Message: msg, Remediation: remediation}
}

func NewArgumentError(msg string, remediation ...string) *CLIError {
	return newError(Argument, msg, remediation)
}

func NewArgumentErrorWithUsage(msg, usage string, remediation ...string) *CLIError {
	e := newError(Argument, msg, remediation)
	e.Usage = usage
	return e
}

func NewConfigError(msg string, remediation ...string) *CLIError {
	return newError(Configuration, msg, remediation)
}

func NewPrerequisiteError(msg string, remediation ...string) *CLIError {
	return newError(Prerequisite, msg, remediation)
}

func NewRuntimeError(msg string, remediation ...string) *CLIError {
	return newError(Runtime, msg, remediation)
}

// Wrap turns err into a CLIError of the given category. A nil err yields nil.
func Wrap(err error, cat ErrorCategory, remediation ...string) *CLIError {
	if err == nil {
		return nil
	}
	e := newError(cat, err.Error(), remediation)
	e.Err = err
	return e
}

// WrapWithMessage is like Wrap but prefixes the message with msg.
func WrapWithMessage(err error, cat ErrorCategory, msg string, remediation ...string) *CLIError {
	if err == nil {
		return nil
	}
	e := newError(cat, msg+": "+err.Error(), remediation)
	e.Err = err
	return e
}

// IsCLIError reports whether err, or anything it wraps, is a *CLIError.
func IsCLIError(err error) bool {
	return AsCLIError(err) != nil
}

// AsCLIError returns the first *CLIError in err's chain, or nil.
func AsCLIError(err error) *CLIError {
	var cliErr *CLIError
	if stderrors.As(err, &cliErr) {
		return cliErr
	}
	return nil
}
