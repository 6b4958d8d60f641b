package feed

import (
	"bufio"
	"io"
	"os"
	"strings"
)

// Reader streams events from an event file. It is a plain pull iterator:
//
//	for r.Next() { ev := r.Event() ... }
//
// Lines that fail to parse are counted and skipped, never fatal.
type Reader struct {
	file    *os.File
	scanner *bufio.Scanner

	ev        Event
	skipped   uint64
	onBadLine func(line string, err error)
}

// Open opens an event file for streaming.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return NewReader(f), nil
}

// maxLineBytes caps one feed line. Well-formed events are tiny; the headroom
// exists so a corrupt oversized line is rejected like any other bad line
// instead of killing the scanner.
const maxLineBytes = 1 << 20

// NewReader wraps an arbitrary source; Close is a no-op for non-file sources.
func NewReader(src io.Reader) *Reader {
	sc := bufio.NewScanner(src)
	sc.Buffer(make([]byte, 64*1024), maxLineBytes)
	r := &Reader{scanner: sc}
	if f, ok := src.(*os.File); ok {
		r.file = f
	}
	return r
}

// OnBadLine installs a hook invoked for every rejected line.
func (r *Reader) OnBadLine(fn func(line string, err error)) { r.onBadLine = fn }

// Next advances to the next well-formed event. It returns false at EOF.
func (r *Reader) Next() bool {
	for r.scanner.Scan() {
		line := strings.TrimSpace(r.scanner.Text())
		if line == "" {
			continue
		}
		ev, err := ParseEvent(line)
		if err != nil {
			r.skipped++
			if r.onBadLine != nil {
				r.onBadLine(line, err)
			}
			continue
		}
		r.ev = ev
		return true
	}
	return false
}

// Event returns the record produced by the last successful Next.
func (r *Reader) Event() Event { return r.ev }

// Skipped reports how many malformed lines were rejected so far.
func (r *Reader) Skipped() uint64 { return r.skipped }

func (r *Reader) Err() error { return r.scanner.Err() }

func (r *Reader) Close() error {
	if r.file != nil {
		return r.file.Close()
	}
	return nil
}
