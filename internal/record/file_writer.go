package record

import (
	"bufio"
	"encoding/json"
	"os"
	"strings"

	"github.com/klauspost/compress/zstd"
)

const zstdSuffix = ".zst"

// FilePaths names the JSONL files of a FileWriter. Empty paths other than
// Ticks skip that row kind. A path ending in ".zst" is zstd compressed.
type FilePaths struct {
	Ticks  string
	Events string
	Stats  string
	Runs   string
}

// FilePathsFor derives sibling paths for events, stats and runs from the
// tick log path, keeping a trailing ".zst" in place.
func FilePathsFor(ticks string) FilePaths {
	sibling := func(kind string) string {
		if strings.HasSuffix(ticks, zstdSuffix) {
			return strings.TrimSuffix(ticks, zstdSuffix) + "." + kind + zstdSuffix
		}
		return ticks + "." + kind
	}
	return FilePaths{Ticks: ticks, Events: sibling("events"), Stats: sibling("stats"), Runs: sibling("runs")}
}

// jsonlFile is one append-only JSONL file, optionally zstd compressed.
type jsonlFile struct {
	f   *os.File
	zw  *zstd.Encoder
	buf *bufio.Writer
	enc *json.Encoder
}

func createJSONL(path string) (*jsonlFile, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	jf := &jsonlFile{f: f}
	if strings.HasSuffix(path, zstdSuffix) {
		zw, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
		if err != nil {
			f.Close()
			return nil, err
		}
		jf.zw = zw
		jf.buf = bufio.NewWriterSize(zw, 64*1024)
	} else {
		jf.buf = bufio.NewWriter(f)
	}
	jf.enc = json.NewEncoder(jf.buf)
	return jf, nil
}

func (j *jsonlFile) encode(v any) error {
	if j == nil {
		return nil
	}
	if err := j.enc.Encode(v); err != nil {
		return err
	}
	if j.zw != nil {
		// Compressed frames are flushed on Close.
		return nil
	}
	return j.buf.Flush()
}

func (j *jsonlFile) close() error {
	if j == nil {
		return nil
	}
	err := j.buf.Flush()
	if j.zw != nil {
		if e := j.zw.Close(); e != nil && err == nil {
			err = e
		}
	}
	if e := j.f.Close(); e != nil && err == nil {
		err = e
	}
	return err
}

// FileWriter writes rows to JSONL files.
type FileWriter struct {
	ticks  *jsonlFile
	events *jsonlFile
	stats  *jsonlFile
	runs   *jsonlFile
}

// NewFileWriter creates the files named in paths.
func NewFileWriter(paths FilePaths) (*FileWriter, error) {
	fw := &FileWriter{}
	var err error
	if fw.ticks, err = createJSONL(paths.Ticks); err != nil {
		return nil, err
	}
	open := func(path string, dst **jsonlFile) {
		if err != nil || path == "" {
			return
		}
		*dst, err = createJSONL(path)
	}
	open(paths.Events, &fw.events)
	open(paths.Stats, &fw.stats)
	open(paths.Runs, &fw.runs)
	if err != nil {
		fw.Close()
		return nil, err
	}
	return fw, nil
}

// WriteTick logs a single tick row.
func (f *FileWriter) WriteTick(row TickRow) error {
	return f.ticks.encode(row)
}

// WriteTicks logs multiple tick rows.
func (f *FileWriter) WriteTicks(rows []TickRow) error {
	for _, r := range rows {
		if err := f.WriteTick(r); err != nil {
			return err
		}
	}
	return nil
}

// WriteEvent logs an event row, if enabled.
func (f *FileWriter) WriteEvent(row EventRow) error {
	return f.events.encode(row)
}

// WriteStats logs a stats row, if enabled.
func (f *FileWriter) WriteStats(row StatsRow) error {
	return f.stats.encode(row)
}

// WriteRun logs a run summary, if enabled.
func (f *FileWriter) WriteRun(row RunRow) error {
	return f.runs.encode(row)
}

// Close flushes and closes all underlying files.
func (f *FileWriter) Close() error {
	var err error
	for _, j := range []*jsonlFile{f.ticks, f.events, f.stats, f.runs} {
		if e := j.close(); e != nil && err == nil {
			err = e
		}
	}
	return err
}
