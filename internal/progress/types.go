// Package progress reports the steps of a deployment on the terminal: a
// spinner while a step runs, then a check mark or a cross.
package progress

import "fmt"

// StepStatus is the execution state of a deployment step.
type StepStatus int

const (
	StepPending StepStatus = iota
	StepRunning
	StepDone
	StepFailed
)

func (s StepStatus) String() string {
	switch s {
	case StepPending:
		return "pending"
	case StepRunning:
		return "running"
	case StepDone:
		return "done"
	case StepFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Step is one deployment step, e.g. "compile" as step 2 of 4.
type Step struct {
	Name   string
	Number int
	Total  int
	Status StepStatus
}

// Validate checks the step counter.
func (s Step) Validate() error {
	switch {
	case s.Name == "":
		return fmt.Errorf("step name cannot be empty")
	case s.Number <= 0:
		return fmt.Errorf("step number must be > 0")
	case s.Total <= 0:
		return fmt.Errorf("total steps must be > 0")
	case s.Number > s.Total:
		return fmt.Errorf("step number %d exceeds total steps %d", s.Number, s.Total)
	}
	return nil
}

// TerminalCapabilities are the detected features of the output terminal.
type TerminalCapabilities struct {
	IsTTY           bool
	SupportsColor   bool
	SupportsUnicode bool
	Width           int // 0 when unknown
}

// Symbols is the character set used for step results.
type Symbols struct {
	Checkmark string
	Failure   string
	// SpinnerSet indexes spinner.CharSets.
	SpinnerSet int
}
