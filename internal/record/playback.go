package record

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/klauspost/compress/zstd"
)

var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

type zstdReadCloser struct {
	dec *zstd.Decoder
	f   *os.File
}

func (z *zstdReadCloser) Read(p []byte) (int, error) { return z.dec.Read(p) }

func (z *zstdReadCloser) Close() error {
	z.dec.Close()
	return z.f.Close()
}

type fileReadCloser struct {
	*bufio.Reader
	f *os.File
}

func (r fileReadCloser) Close() error { return r.f.Close() }

// OpenLog opens a JSONL log written by FileWriter. Compressed files are
// recognized by their zstd frame header, not by name.
func OpenLog(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	br := bufio.NewReader(f)
	head, _ := br.Peek(len(zstdMagic))
	if !bytes.Equal(head, zstdMagic) {
		return fileReadCloser{Reader: br, f: f}, nil
	}
	dec, err := zstd.NewReader(br)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return &zstdReadCloser{dec: dec, f: f}, nil
}

// ReadTicks decodes tick rows from r and calls fn for each, in order.
func ReadTicks(r io.Reader, fn func(TickRow) error) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		b := bytes.TrimSpace(sc.Bytes())
		if len(b) == 0 {
			continue
		}
		var row TickRow
		if err := json.Unmarshal(b, &row); err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
		if err := fn(row); err != nil {
			return err
		}
	}
	return sc.Err()
}

// ReplayLog replays tick rows from r to writer. A speed >0 paces playback
// by the recorded timestamps divided by speed. If speed <= 0, no artificial
// delay is inserted.
func ReplayLog(r io.Reader, writer TickWriter, speed float64) error {
	var prev time.Time
	return ReadTicks(r, func(row TickRow) error {
		if !prev.IsZero() && speed > 0 {
			diff := row.Timestamp.Sub(prev)
			if speed != 1 {
				diff = time.Duration(float64(diff) / speed)
			}
			if diff > 0 {
				time.Sleep(diff)
			}
		}
		prev = row.Timestamp
		return writer.WriteTick(row)
	})
}

// ReplayLogFile opens a file and replays its tick rows.
func ReplayLogFile(path string, writer TickWriter, speed float64) error {
	rc, err := OpenLog(path)
	if err != nil {
		return err
	}
	defer rc.Close()
	return ReplayLog(rc, writer, speed)
}
