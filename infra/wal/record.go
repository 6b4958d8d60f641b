// Package wal journals every update the engine applies to the book as an
// append-only, CRC-framed segment log. The journal is operator tooling for
// replay, audit and offline debugging, not a durability guarantee for book
// state.
package wal

type RecordType byte

const (
	// RecordUpdate is an applied market-data update (snapshot or delta).
	RecordUpdate RecordType = 1
	// RecordReset marks a full book resynchronization.
	RecordReset RecordType = 2
	// RecordSignal is a strategy signal emitted during the run.
	RecordSignal RecordType = 3
)

// Record is one journal entry. Seq is assigned by the WAL on append and is
// monotonic across segments.
type Record struct {
	Type RecordType
	Seq  uint64
	Time int64
	Data []byte
}
