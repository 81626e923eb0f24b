// Writer selection for STDOUT output
package record

import (
	"os"

	"golang.org/x/term"
)

// NewStdoutWriter returns a ColorStdoutWriter when STDOUT is a terminal and
// a JSONStdoutWriter otherwise, so piped output stays machine readable.
func NewStdoutWriter(ov *Overview) TickWriter {
	if term.IsTerminal(int(os.Stdout.Fd())) {
		return NewColorStdoutWriter(ov)
	}
	return NewJSONStdoutWriter()
}
