package wal

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"time"
)

const frameHeaderSize = 8 // length(4) + crc32(4)

const (
	defaultSegmentSize     = 64 << 20
	defaultSegmentDuration = time.Hour
)

// Config tunes the journal. Zero values pick sane defaults.
type Config struct {
	Dir             string
	SegmentSize     uint64
	SegmentDuration time.Duration
	Serializer      Serializer
}

// WAL is a single-writer append-only journal. Frames are
// `len(4)|crc32(4)|payload`; full segments rotate into numbered files
// tracked by a JSON-lines index, and a torn tail in the current segment is
// truncated on open.
type WAL struct {
	cfg             Config
	file            *os.File
	writer          *bufio.Writer
	seq             uint64
	segmentID       int
	segmentStartSeq uint64
	bytesWritten    uint64
	lastRotationAt  time.Time
}

// Open creates or resumes the journal in cfg.Dir.
func Open(cfg Config) (*WAL, error) {
	if cfg.SegmentSize == 0 {
		cfg.SegmentSize = defaultSegmentSize
	}
	if cfg.SegmentDuration == 0 {
		cfg.SegmentDuration = defaultSegmentDuration
	}
	if cfg.Serializer == nil {
		cfg.Serializer = ProtoSerializer{}
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, err
	}

	var segID int
	var seq uint64
	if last, err := lastSegment(cfg.Dir); err == nil && last != nil {
		segID = last.ID
		seq = last.LastSeq
	}

	path := filepath.Join(cfg.Dir, "current.wal")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}

	w := &WAL{
		cfg:             cfg,
		file:            f,
		segmentID:       segID,
		segmentStartSeq: seq + 1,
		seq:             seq,
		lastRotationAt:  time.Now(),
	}

	if err := w.recoverCurrentState(); err != nil {
		f.Close()
		return nil, err
	}
	if _, err := w.file.Seek(0, io.SeekEnd); err != nil {
		f.Close()
		return nil, err
	}
	w.writer = bufio.NewWriterSize(f, 1<<20)

	return w, nil
}

// Append assigns the next sequence number to rec and writes it.
func (w *WAL) Append(rec *Record) error {
	rec.Seq = w.seq + 1
	data, err := w.cfg.Serializer.Encode(rec)
	if err != nil {
		return err
	}

	frameSize := frameHeaderSize + len(data)
	if w.shouldRotate(frameSize) {
		if err := w.rotate(); err != nil {
			return err
		}
	}

	w.seq++
	if err := writeFrame(w.writer, data); err != nil {
		return err
	}
	w.bytesWritten += uint64(frameSize)
	return nil
}

// LastSeq returns the sequence of the most recently appended record.
func (w *WAL) LastSeq() uint64 { return w.seq }

func (w *WAL) Sync() error {
	if err := w.writer.Flush(); err != nil {
		return err
	}
	return w.file.Sync()
}

func (w *WAL) Close() error {
	if err := w.Sync(); err != nil {
		return err
	}
	return w.file.Close()
}

func (w *WAL) shouldRotate(nextSize int) bool {
	return w.bytesWritten+uint64(nextSize) >= w.cfg.SegmentSize ||
		time.Since(w.lastRotationAt) >= w.cfg.SegmentDuration
}

func (w *WAL) rotate() error {
	if err := w.Sync(); err != nil {
		return err
	}
	if err := w.file.Close(); err != nil {
		return err
	}

	newID := w.segmentID + 1
	sealed := fmt.Sprintf("%06d.wal", newID)
	oldPath := filepath.Join(w.cfg.Dir, "current.wal")
	if err := os.Rename(oldPath, filepath.Join(w.cfg.Dir, sealed)); err != nil {
		return err
	}
	if err := appendSegment(w.cfg.Dir, segment{
		ID:       newID,
		File:     sealed,
		FirstSeq: w.segmentStartSeq,
		LastSeq:  w.seq,
		SealedAt: time.Now().UTC().Format(time.RFC3339),
	}); err != nil {
		return err
	}

	f, err := os.OpenFile(oldPath, os.O_CREATE|os.O_RDWR|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	w.file = f
	w.writer = bufio.NewWriterSize(f, 1<<20)
	w.segmentID = newID
	w.segmentStartSeq = w.seq + 1
	w.bytesWritten = 0
	w.lastRotationAt = time.Now()
	return nil
}

// recoverCurrentState scans the current segment, restores the sequence
// counter and truncates anything after the last intact frame.
func (w *WAL) recoverCurrentState() error {
	info, err := w.file.Stat()
	if err != nil {
		return err
	}
	if info.Size() == 0 {
		w.bytesWritten = 0
		return nil
	}

	path := filepath.Join(w.cfg.Dir, "current.wal")
	r, err := os.Open(path)
	if err != nil {
		return err
	}
	defer r.Close()

	var (
		validBytes int64
		header     [frameHeaderSize]byte
	)
	for {
		if _, err := io.ReadFull(r, header[:]); err != nil {
			if err == io.EOF {
				break
			}
			if errors.Is(err, io.ErrUnexpectedEOF) {
				return w.truncateCurrent(validBytes)
			}
			return err
		}
		payloadLen := binary.LittleEndian.Uint32(header[:4])
		payload := make([]byte, payloadLen)
		if _, err := io.ReadFull(r, payload); err != nil {
			if err == io.EOF || errors.Is(err, io.ErrUnexpectedEOF) {
				return w.truncateCurrent(validBytes)
			}
			return err
		}
		if crc32.ChecksumIEEE(payload) != binary.LittleEndian.Uint32(header[4:]) {
			return w.truncateCurrent(validBytes)
		}
		rec, err := w.cfg.Serializer.Decode(payload)
		if err != nil {
			return w.truncateCurrent(validBytes)
		}
		w.seq = rec.Seq
		validBytes += int64(frameHeaderSize + len(payload))
	}
	w.bytesWritten = uint64(validBytes)
	return nil
}

func (w *WAL) truncateCurrent(validBytes int64) error {
	if err := w.file.Truncate(validBytes); err != nil {
		return err
	}
	if _, err := w.file.Seek(validBytes, io.SeekStart); err != nil {
		return err
	}
	w.bytesWritten = uint64(validBytes)
	return nil
}

func writeFrame(wr io.Writer, payload []byte) error {
	var header [frameHeaderSize]byte
	binary.LittleEndian.PutUint32(header[:4], uint32(len(payload)))
	binary.LittleEndian.PutUint32(header[4:], crc32.ChecksumIEEE(payload))
	if _, err := wr.Write(header[:]); err != nil {
		return err
	}
	_, err := wr.Write(payload)
	return err
}
