package snapshot

import (
	"bytes"
	"encoding/gob"
	"time"

	"argus/domain/orderbook"
)

// Snapshot is one complete image of the book: every synthetic order on both
// sides, in FIFO order within each price level.
type Snapshot struct {
	Seq     uint64
	Symbol  string
	Created time.Time
	Orders  []OrderEntry
}

// OrderEntry is one resting synthetic order. Entries for the same
// (Side, Price) appear in queue order.
type OrderEntry struct {
	Side      int
	Price     float64
	Quantity  float64
	Timestamp int64
}

// Capture walks both sides of the book, best price outward, and collects
// every resting order.
func Capture(seq uint64, book *orderbook.OrderBook) *Snapshot {
	s := &Snapshot{
		Seq:     seq,
		Symbol:  book.Symbol,
		Created: time.Now().UTC(),
		Orders:  make([]OrderEntry, 0, 1024),
	}

	collect := func(side orderbook.Side) {
		for _, lvl := range book.Depth(book.Levels(side), side) {
			for _, o := range book.OrdersAt(lvl.Price, side) {
				s.Orders = append(s.Orders, OrderEntry{
					Side:      int(side),
					Price:     o.Price,
					Quantity:  o.Quantity,
					Timestamp: o.Timestamp,
				})
			}
		}
	}
	collect(orderbook.Bid)
	collect(orderbook.Ask)
	return s
}

// Restore rebuilds the book from the snapshot. The book is reset first, so
// synthetic order ids restart from 1; queue order within each level is
// preserved exactly.
func (s *Snapshot) Restore(book *orderbook.OrderBook) error {
	book.Reset()

	totals := make(map[[2]float64]float64) // (side, price) -> running volume
	for _, e := range s.Orders {
		key := [2]float64{float64(e.Side), e.Price}
		totals[key] += e.Quantity
		if _, err := book.ApplyUpdate(e.Price, totals[key], orderbook.Side(e.Side), e.Timestamp); err != nil {
			return err
		}
	}
	return nil
}

func encodeSnapshot(s *Snapshot) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(s); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeSnapshot(b []byte) (*Snapshot, error) {
	var s Snapshot
	if err := gob.NewDecoder(bytes.NewReader(b)).Decode(&s); err != nil {
		return nil, err
	}
	return &s, nil
}
