package progress

import (
	"os"

	"golang.org/x/term"
)

// ASCIIEnv forces ASCII symbols when set to 1.
const ASCIIEnv = "VERTEX_DEPLOYER_ASCII"

// DetectTerminalCapabilities inspects f, usually os.Stderr.
func DetectTerminalCapabilities(f *os.File) TerminalCapabilities {
	isTTY := term.IsTerminal(int(f.Fd()))

	width := 0
	if isTTY {
		if w, _, err := term.GetSize(int(f.Fd())); err == nil {
			width = w
		}
	}

	return TerminalCapabilities{
		IsTTY:           isTTY,
		SupportsColor:   isTTY && os.Getenv("NO_COLOR") == "",
		SupportsUnicode: isTTY && os.Getenv(ASCIIEnv) != "1",
		Width:           width,
	}
}

// SelectSymbols returns the symbol set for caps.
func SelectSymbols(caps TerminalCapabilities) Symbols {
	if caps.SupportsUnicode {
		return Symbols{Checkmark: "✓", Failure: "✗", SpinnerSet: 14}
	}
	return Symbols{Checkmark: "[OK]", Failure: "[FAIL]", SpinnerSet: 9}
}
