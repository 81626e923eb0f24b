package record

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// JSONStdoutWriter prints rows as JSON lines to STDOUT.
type JSONStdoutWriter struct {
	out io.Writer
}

// NewJSONStdoutWriter creates a JSONStdoutWriter writing to os.Stdout.
func NewJSONStdoutWriter() *JSONStdoutWriter {
	return &JSONStdoutWriter{out: os.Stdout}
}

func (w *JSONStdoutWriter) print(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w.out, string(data))
	return err
}

// WriteTick outputs a tick row in JSON format.
func (w *JSONStdoutWriter) WriteTick(row TickRow) error { return w.print(row) }

// WriteEvent outputs an event row in JSON format.
func (w *JSONStdoutWriter) WriteEvent(row EventRow) error { return w.print(row) }

// WriteStats outputs a stats row in JSON format.
func (w *JSONStdoutWriter) WriteStats(row StatsRow) error { return w.print(row) }

// WriteRun outputs a run summary in JSON format.
func (w *JSONStdoutWriter) WriteRun(row RunRow) error { return w.print(row) }
