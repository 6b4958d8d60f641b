package orderbook

import (
	"fmt"
	"math"
)

// PriceLevel is the aggregate state of one price plus the FIFO queue of
// synthetic orders that explains it. The queue is owned exclusively by the
// level: orders are appended by ApplyDelta and consumed by reduceFIFO,
// never touched from outside.
type PriceLevel struct {
	Price       float64
	TotalVolume float64

	queue []SyntheticOrder
}

// ApplyDelta moves the level's aggregate volume to target.
//
// A positive delta is modeled as a brand-new resting order arriving behind
// every existing order at this price (price-time priority). A negative delta
// is consumed from the front of the queue, oldest order first. Deltas within
// Epsilon are noise and ignored.
func (l *PriceLevel) ApplyDelta(target float64, side Side, ts int64, ids IDAllocator) {
	delta := target - l.TotalVolume
	switch {
	case delta > Epsilon:
		l.queue = append(l.queue, SyntheticOrder{
			ID:        ids.NextOrderID(),
			Price:     l.Price,
			Quantity:  delta,
			Side:      side,
			Timestamp: ts,
		})
		l.TotalVolume += delta
	case delta < -Epsilon:
		l.reduceFIFO(-delta)
	}
}

// reduceFIFO removes amount from the front of the queue and returns how much
// was actually removed. If amount exceeds everything resting here the queue
// empties and the shortfall is dropped silently; the caller asked for a state
// the book never held, so the best we can do is drain what exists.
func (l *PriceLevel) reduceFIFO(amount float64) float64 {
	removed := 0.0
	for amount > Epsilon && len(l.queue) > 0 {
		front := &l.queue[0]
		if front.Quantity <= amount {
			removed += front.Quantity
			amount -= front.Quantity
			l.queue = l.queue[1:]
		} else {
			front.Quantity -= amount
			removed += amount
			amount = 0
		}
	}
	l.TotalVolume -= removed
	return removed
}

// Orders returns a copy of the FIFO queue, front (oldest) first.
func (l *PriceLevel) Orders() []SyntheticOrder {
	out := make([]SyntheticOrder, len(l.queue))
	copy(out, l.queue)
	return out
}

func (l *PriceLevel) OrderCount() int { return len(l.queue) }

func (l *PriceLevel) Empty() bool { return len(l.queue) == 0 }

// Validate checks the level's invariants:
//   - the queued quantities sum to TotalVolume within Epsilon,
//   - no order holds a negative quantity,
//   - an essentially-zero level has no orders and vice versa.
func (l *PriceLevel) Validate() error {
	sum := 0.0
	for i := range l.queue {
		if l.queue[i].Quantity < 0 {
			return fmt.Errorf("level %.8f: order %d has negative quantity %.8f",
				l.Price, l.queue[i].ID, l.queue[i].Quantity)
		}
		sum += l.queue[i].Quantity
	}
	if math.Abs(sum-l.TotalVolume) > Epsilon {
		return fmt.Errorf("level %.8f: queue sums to %.8f, stored volume %.8f",
			l.Price, sum, l.TotalVolume)
	}
	if (l.TotalVolume < Epsilon) != (len(l.queue) == 0) {
		return fmt.Errorf("level %.8f: volume %.8f with %d queued orders",
			l.Price, l.TotalVolume, len(l.queue))
	}
	return nil
}

func (l *PriceLevel) String() string {
	return fmt.Sprintf("PriceLevel{price=%.8f vol=%.8f orders=%d}",
		l.Price, l.TotalVolume, len(l.queue))
}
