// Package outbox is a durable staging area for trading signals. The engine
// writes every emitted signal here before anything leaves the process; the
// broadcaster drains pending entries and flips their state as delivery
// progresses, so a crash between emit and publish never loses a signal.
package outbox

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/cockroachdb/pebble"
)

// -------------------- State --------------------

type State uint8

const (
	StateNew State = iota
	StateSent
	StateAcked
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "NEW"
	case StateSent:
		return "SENT"
	case StateAcked:
		return "ACKED"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// -------------------- Signal --------------------

// Signal is one strategy decision pinned to the event that produced it.
// Action is -1 (sell), 0 (hold, never stored) or +1 (buy).
type Signal struct {
	Seq       uint64
	Action    int8
	Price     float64
	Quantity  float64
	EmittedAt int64
	Strategy  string
}

// Entry wraps a signal with its delivery bookkeeping.
type Entry struct {
	State       State
	Retries     uint32
	LastAttempt int64
	Signal      Signal
}

const entryHeaderLen = 1 + 4 + 8 + 1 + 8 + 8 + 8

// binary encoding:
// [state:1][retries:4][lastAttempt:8][action:1][price:8][qty:8][emittedAt:8][strategy...]
func encodeEntry(e Entry) []byte {
	buf := make([]byte, entryHeaderLen, entryHeaderLen+len(e.Signal.Strategy))
	buf[0] = byte(e.State)
	binary.BigEndian.PutUint32(buf[1:5], e.Retries)
	binary.BigEndian.PutUint64(buf[5:13], uint64(e.LastAttempt))
	buf[13] = byte(e.Signal.Action)
	binary.BigEndian.PutUint64(buf[14:22], math.Float64bits(e.Signal.Price))
	binary.BigEndian.PutUint64(buf[22:30], math.Float64bits(e.Signal.Quantity))
	binary.BigEndian.PutUint64(buf[30:38], uint64(e.Signal.EmittedAt))
	return append(buf, e.Signal.Strategy...)
}

func decodeEntry(b []byte) (Entry, error) {
	if len(b) < entryHeaderLen {
		return Entry{}, errors.New("invalid outbox entry length")
	}
	return Entry{
		State:       State(b[0]),
		Retries:     binary.BigEndian.Uint32(b[1:5]),
		LastAttempt: int64(binary.BigEndian.Uint64(b[5:13])),
		Signal: Signal{
			Action:    int8(b[13]),
			Price:     math.Float64frombits(binary.BigEndian.Uint64(b[14:22])),
			Quantity:  math.Float64frombits(binary.BigEndian.Uint64(b[22:30])),
			EmittedAt: int64(binary.BigEndian.Uint64(b[30:38])),
			Strategy:  string(b[entryHeaderLen:]),
		},
	}, nil
}

// -------------------- Outbox --------------------

type Outbox struct {
	db *pebble.DB
}

func Open(dir string) (*Outbox, error) {
	db, err := pebble.Open(dir, &pebble.Options{
		DisableWAL: false, // we WANT durability
	})
	if err != nil {
		return nil, err
	}
	return &Outbox{db: db}, nil
}

func (o *Outbox) Close() error {
	return o.db.Close()
}

// -------------------- API --------------------

// Put stages a freshly emitted signal (called by the engine loop).
func (o *Outbox) Put(sig Signal) error {
	e := Entry{
		State:  StateNew,
		Signal: sig,
	}
	return o.db.Set(keyFor(sig.Seq), encodeEntry(e), pebble.Sync)
}

// MarkSent records a delivery attempt.
func (o *Outbox) MarkSent(seq uint64) error {
	return o.transition(seq, StateSent, 1)
}

// MarkAcked records broker confirmation.
func (o *Outbox) MarkAcked(seq uint64) error {
	return o.transition(seq, StateAcked, 0)
}

// MarkFailed records a failed attempt so the broadcaster can retry it.
func (o *Outbox) MarkFailed(seq uint64) error {
	return o.transition(seq, StateFailed, 1)
}

func (o *Outbox) transition(seq uint64, state State, retryDelta uint32) error {
	e, err := o.Get(seq)
	if err != nil {
		return err
	}
	e.State = state
	e.Retries += retryDelta
	e.LastAttempt = time.Now().UnixNano()
	return o.db.Set(keyFor(seq), encodeEntry(e), pebble.Sync)
}

// Delete removes ACKED entries (cleanup).
func (o *Outbox) Delete(seq uint64) error {
	return o.db.Delete(keyFor(seq), pebble.Sync)
}

// Get returns the entry for a signal sequence.
func (o *Outbox) Get(seq uint64) (Entry, error) {
	val, closer, err := o.db.Get(keyFor(seq))
	if err != nil {
		return Entry{}, err
	}
	defer closer.Close()

	return decodeEntry(val)
}

// -------------------- Scan --------------------

// ScanByState iterates all entries in the given state in sequence order.
// This is used by the broadcaster.
func (o *Outbox) ScanByState(
	state State,
	fn func(seq uint64, e Entry) error,
) error {
	iter, err := o.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte("signal/"),
		UpperBound: []byte("signal/~"),
	})
	if err != nil {
		return err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		e, err := decodeEntry(iter.Value())
		if err != nil {
			return err
		}
		if e.State != state {
			continue
		}

		seq, err := parseKey(iter.Key())
		if err != nil {
			return err
		}
		e.Signal.Seq = seq

		if err := fn(seq, e); err != nil {
			return err
		}
	}
	return iter.Error()
}

// -------------------- Helpers --------------------

func keyFor(seq uint64) []byte {
	return []byte(fmt.Sprintf("signal/%020d", seq))
}

func parseKey(b []byte) (uint64, error) {
	var seq uint64
	_, err := fmt.Sscanf(string(bytes.TrimPrefix(b, []byte("signal/"))), "%d", &seq)
	return seq, err
}
