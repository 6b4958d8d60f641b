package snapshot

import (
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"

	"argus/domain/orderbook"
)

// ErrNoSnapshot is returned by Latest when the store holds no snapshots yet.
var ErrNoSnapshot = errors.New("snapshot: store is empty")

// Store keeps snapshots in a pebble keyspace ordered by journal sequence, so
// the most recent image is always the last key.
type Store struct {
	db *pebble.DB
}

func OpenStore(dir string) (*Store, error) {
	db, err := pebble.Open(dir, &pebble.Options{
		DisableWAL: false,
	})
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

func (st *Store) Close() error {
	return st.db.Close()
}

// Save captures the book state at seq and persists it.
func (st *Store) Save(seq uint64, book *orderbook.OrderBook) error {
	data, err := encodeSnapshot(Capture(seq, book))
	if err != nil {
		return err
	}
	return st.db.Set(keyFor(seq), data, pebble.Sync)
}

// Load returns the snapshot taken at exactly seq.
func (st *Store) Load(seq uint64) (*Snapshot, error) {
	val, closer, err := st.db.Get(keyFor(seq))
	if err != nil {
		return nil, err
	}
	defer closer.Close()

	return decodeSnapshot(val)
}

// Latest returns the snapshot with the highest sequence, or ErrNoSnapshot.
func (st *Store) Latest() (*Snapshot, error) {
	iter, err := st.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte("snap/"),
		UpperBound: []byte("snap/~"),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	if !iter.Last() {
		if err := iter.Error(); err != nil {
			return nil, err
		}
		return nil, ErrNoSnapshot
	}
	return decodeSnapshot(iter.Value())
}

// Prune deletes every snapshot older than keepFrom, freeing space once a
// checkpoint is no longer a recovery candidate.
func (st *Store) Prune(keepFrom uint64) error {
	return st.db.DeleteRange([]byte("snap/"), keyFor(keepFrom), pebble.Sync)
}

func keyFor(seq uint64) []byte {
	return []byte(fmt.Sprintf("snap/%020d", seq))
}
