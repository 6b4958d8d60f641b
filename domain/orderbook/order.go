package orderbook

type Side int

const (
	Bid Side = iota
	Ask
)

func (s Side) String() string {
	if s == Bid {
		return "BID"
	}
	return "ASK"
}

// Epsilon is the tolerance used for every floating-point comparison in the
// book: volume deltas below it are noise, and a level whose total volume
// falls under it is considered empty.
const Epsilon = 1e-6

// SyntheticOrder is a resting order inferred from an aggregate volume delta.
// The upstream feed is L2 (price + total volume only), so individual orders
// are reconstructed: every positive delta becomes a new order at the back of
// its level's queue, and every negative delta consumes orders from the front.
type SyntheticOrder struct {
	ID        uint64
	Price     float64
	Quantity  float64
	Side      Side
	Timestamp int64
}

// IDAllocator hands out synthetic order ids. It is implemented by OrderBook
// so that each book owns its own counter; two books never share id space.
type IDAllocator interface {
	NextOrderID() uint64
}
