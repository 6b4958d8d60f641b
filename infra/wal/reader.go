package wal

import (
	"bufio"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
)

var ErrCRCMismatch = errors.New("wal: crc mismatch")

// Reader replays the journal in order: sealed segments first (by index),
// then the current segment. It stops on the first corrupt frame.
type Reader struct {
	dir   string
	ser   Serializer
	files []string
	idx   int

	file   *os.File
	buf    *bufio.Reader
	rec    *Record
	err    error
	closed bool
}

// OpenReader opens the journal directory for replay.
func OpenReader(dir string) (*Reader, error) {
	return OpenReaderWith(dir, ProtoSerializer{})
}

func OpenReaderWith(dir string, ser Serializer) (*Reader, error) {
	segs, err := loadSegments(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, s := range segs {
		files = append(files, filepath.Join(dir, s.File))
	}
	current := filepath.Join(dir, "current.wal")
	if _, err := os.Stat(current); err == nil {
		files = append(files, current)
	}
	return &Reader{dir: dir, ser: ser, files: files}, nil
}

// Next advances to the next record; false at end of journal or on error.
func (r *Reader) Next() bool {
	if r.err != nil || r.closed {
		return false
	}
	for {
		if r.buf == nil {
			if r.idx >= len(r.files) {
				return false
			}
			f, err := os.Open(r.files[r.idx])
			if err != nil {
				r.err = err
				return false
			}
			r.file = f
			r.buf = bufio.NewReader(f)
			r.idx++
		}

		rec, err := readFrame(r.buf, r.ser)
		if err == io.EOF {
			r.file.Close()
			r.file = nil
			r.buf = nil
			continue
		}
		if err != nil {
			r.err = err
			return false
		}
		r.rec = rec
		return true
	}
}

// Record returns the entry produced by the last successful Next.
func (r *Reader) Record() *Record { return r.rec }

func (r *Reader) Err() error { return r.err }

func (r *Reader) Close() error {
	r.closed = true
	if r.file != nil {
		return r.file.Close()
	}
	return nil
}

func readFrame(br *bufio.Reader, ser Serializer) (*Record, error) {
	var header [frameHeaderSize]byte
	if _, err := io.ReadFull(br, header[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, io.EOF // torn tail, treat as end of segment
		}
		return nil, err
	}
	payloadLen := binary.LittleEndian.Uint32(header[:4])
	payload := make([]byte, payloadLen)
	if _, err := io.ReadFull(br, payload); err != nil {
		if err == io.EOF || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, io.EOF
		}
		return nil, err
	}
	if crc32.ChecksumIEEE(payload) != binary.LittleEndian.Uint32(header[4:]) {
		return nil, ErrCRCMismatch
	}
	return ser.Decode(payload)
}
