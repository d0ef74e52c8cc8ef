package progress

import (
	"fmt"
	"io"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
)

// Display prints deployment steps to a writer. On a TTY a spinner runs while
// a step is in progress.
type Display struct {
	out     io.Writer
	caps    TerminalCapabilities
	symbols Symbols
	spinner *spinner.Spinner
}

// NewDisplay returns a Display writing to out.
func NewDisplay(out io.Writer, caps TerminalCapabilities) *Display {
	return &Display{out: out, caps: caps, symbols: SelectSymbols(caps)}
}

// Start announces step and starts the spinner on a TTY.
func (d *Display) Start(step Step) error {
	if err := step.Validate(); err != nil {
		return err
	}
	d.Stop()

	msg := stepMessage(step, "Running")
	if !d.caps.IsTTY {
		fmt.Fprintln(d.out, msg)
		return nil
	}
	d.spinner = spinner.New(spinner.CharSets[d.symbols.SpinnerSet], 100*time.Millisecond,
		spinner.WithWriter(d.out))
	d.spinner.Suffix = " " + msg
	d.spinner.Start()
	return nil
}

// Done stops the spinner and prints a success line for step.
func (d *Display) Done(step Step) {
	d.Stop()
	mark := paint(d.symbols.Checkmark, d.caps.SupportsColor, color.FgGreen)
	fmt.Fprintf(d.out, "%s %s %s done\n", mark, formatCounter(step.Number, step.Total), capitalize(step.Name))
}

// Fail stops the spinner and prints err for step.
func (d *Display) Fail(step Step, err error) {
	d.Stop()
	mark := paint(d.symbols.Failure, d.caps.SupportsColor, color.FgRed)
	fmt.Fprintf(d.out, "%s %s %s failed: %v\n", mark, formatCounter(step.Number, step.Total), capitalize(step.Name), err)
}

// Stop halts the spinner without printing a result.
func (d *Display) Stop() {
	if d.spinner != nil {
		d.spinner.Stop()
		d.spinner = nil
	}
}

// Steps numbers names as a sequence of pending steps.
func Steps(names ...string) []Step {
	steps := make([]Step, len(names))
	for i, name := range names {
		steps[i] = Step{Name: name, Number: i + 1, Total: len(names)}
	}
	return steps
}

// Spin runs a spinner labelled msg until the returned function is called.
// Nothing is printed when the output is not a terminal.
func (d *Display) Spin(msg string) (stop func()) {
	if !d.caps.IsTTY {
		return func() {}
	}
	d.Stop()
	d.spinner = spinner.New(spinner.CharSets[d.symbols.SpinnerSet], 100*time.Millisecond,
		spinner.WithWriter(d.out))
	d.spinner.Suffix = " " + msg
	d.spinner.Start()
	return d.Stop
}
