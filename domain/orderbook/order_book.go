package orderbook

import (
	"math"
)

// ValidationMode controls what happens when a level invariant check fails
// after a mutation.
type ValidationMode int

const (
	// ValidationOff skips invariant checks entirely.
	ValidationOff ValidationMode = iota
	// ValidationAdvisory runs the checks and reports violations through the
	// diagnostics hook, but never fails the update. This is the default:
	// a live feed is noisy and a tolerance breach is a signal, not a fault.
	ValidationAdvisory
	// ValidationStrict returns the violation as an error from ApplyUpdate.
	ValidationStrict
)

// DiagKind classifies a diagnostic emission.
type DiagKind int

const (
	DiagCrossedRepair DiagKind = iota
	DiagInvariant
)

// Diagnostic is an advisory signal surfaced to the caller's observability
// hook. It never carries a hard failure.
type Diagnostic struct {
	Kind    DiagKind
	Side    Side
	Price   float64
	Volume  float64
	Message string
}

// RemovedLevel records one level discarded by crossed-book repair.
type RemovedLevel struct {
	Side   Side
	Price  float64
	Volume float64
}

// RepairReport is returned by ApplyUpdate and lists every level the repair
// step removed. An empty report means the book was already well ordered.
type RepairReport struct {
	Removed []RemovedLevel
}

func (r RepairReport) Repaired() bool { return len(r.Removed) > 0 }

// Option configures an OrderBook.
type Option func(*OrderBook)

// WithValidation sets the invariant-check policy.
func WithValidation(mode ValidationMode) Option {
	return func(b *OrderBook) { b.validation = mode }
}

// WithDiagnostics installs a hook receiving repair and invariant advisories.
func WithDiagnostics(fn func(Diagnostic)) Option {
	return func(b *OrderBook) { b.onDiagnostic = fn }
}

// OrderBook reconstructs a per-price FIFO queue of synthetic orders from an
// aggregated L2 feed. It owns both sides and the order-id counter; a single
// caller applies updates one at a time, so no locking is needed and the
// resulting state is a deterministic function of the update sequence.
type OrderBook struct {
	Symbol string

	bids *BookSide
	asks *BookSide

	nextOrderID  uint64
	validation   ValidationMode
	onDiagnostic func(Diagnostic)
}

func NewOrderBook(symbol string, opts ...Option) *OrderBook {
	b := &OrderBook{
		Symbol:      symbol,
		bids:        NewBookSide(Bid),
		asks:        NewBookSide(Ask),
		nextOrderID: 1,
		validation:  ValidationAdvisory,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// NextOrderID implements IDAllocator. Ids are monotonic per book and only
// restart after an explicit Reset.
func (b *OrderBook) NextOrderID() uint64 {
	id := b.nextOrderID
	b.nextOrderID++
	return id
}

func (b *OrderBook) sideOf(s Side) *BookSide {
	if s == Bid {
		return b.bids
	}
	return b.asks
}

// ApplyUpdate moves the level at price to the given aggregate volume and
// then runs the crossed-book repair as an explicit, sequenced step. A volume
// within Epsilon of zero deletes the level outright, queue and all; there is
// no gradual FIFO drain on deletion.
//
// The returned error is non-nil only under ValidationStrict.
func (b *OrderBook) ApplyUpdate(price, volume float64, side Side, ts int64) (RepairReport, error) {
	bs := b.sideOf(side)

	if math.Abs(volume) < Epsilon {
		bs.Delete(price)
		return b.repairCrossed(), nil
	}

	lvl := bs.Upsert(price)
	lvl.ApplyDelta(volume, side, ts, b)

	var verr error
	if b.validation != ValidationOff {
		if err := lvl.Validate(); err != nil {
			if b.validation == ValidationStrict {
				verr = err
			} else {
				b.emit(Diagnostic{
					Kind:    DiagInvariant,
					Side:    side,
					Price:   price,
					Volume:  lvl.TotalVolume,
					Message: err.Error(),
				})
			}
		}
	}

	// A negative target drains the queue; an empty level must not linger as
	// a phantom best price.
	if lvl.TotalVolume < Epsilon {
		bs.Delete(price)
	}

	return b.repairCrossed(), verr
}

// repairCrossed restores bestBid <= bestAsk after a corrupting update
// (out-of-order delivery, dropped deletes). Bid levels strictly above the
// best ask go first; then ask levels strictly below the recomputed best bid.
// Best effort only: it restores the ordering invariant, not the true state.
func (b *OrderBook) repairCrossed() RepairReport {
	var report RepairReport

	for {
		bestBid := b.bids.Best()
		bestAsk := b.asks.Best()
		if bestBid == nil || bestAsk == nil || bestBid.Price <= bestAsk.Price {
			break
		}

		askPrice := bestAsk.Price
		for {
			top := b.bids.Best()
			if top == nil || top.Price <= askPrice {
				break
			}
			report.Removed = append(report.Removed, RemovedLevel{
				Side: Bid, Price: top.Price, Volume: top.TotalVolume,
			})
			b.bids.Delete(top.Price)
		}

		newBestBid := b.bids.Best()
		if newBestBid == nil {
			break
		}
		for {
			top := b.asks.Best()
			if top == nil || top.Price >= newBestBid.Price {
				break
			}
			report.Removed = append(report.Removed, RemovedLevel{
				Side: Ask, Price: top.Price, Volume: top.TotalVolume,
			})
			b.asks.Delete(top.Price)
		}
	}

	for _, rm := range report.Removed {
		b.emit(Diagnostic{
			Kind:    DiagCrossedRepair,
			Side:    rm.Side,
			Price:   rm.Price,
			Volume:  rm.Volume,
			Message: "crossed book: level removed",
		})
	}
	return report
}

func (b *OrderBook) emit(d Diagnostic) {
	if b.onDiagnostic != nil {
		b.onDiagnostic(d)
	}
}

// Reset discards every level on both sides and restarts the id counter at 1.
// Used for full resynchronization after a sequence gap or a fresh snapshot.
func (b *OrderBook) Reset() {
	b.bids.Clear()
	b.asks.Clear()
	b.nextOrderID = 1
}

/******************** Queries (read-only) ********************/

// BestBid returns the highest bid price, or ok=false on an empty side.
func (b *OrderBook) BestBid() (float64, bool) {
	lvl := b.bids.Best()
	if lvl == nil {
		return 0, false
	}
	return lvl.Price, true
}

// BestAsk returns the lowest ask price, or ok=false on an empty side.
func (b *OrderBook) BestAsk() (float64, bool) {
	lvl := b.asks.Best()
	if lvl == nil {
		return 0, false
	}
	return lvl.Price, true
}

// MidPrice is the bid/ask midpoint; absent unless both sides are populated.
func (b *OrderBook) MidPrice() (float64, bool) {
	bid, okB := b.BestBid()
	ask, okA := b.BestAsk()
	if !okB || !okA {
		return 0, false
	}
	return (bid + ask) / 2, true
}

// Spread is bestAsk - bestBid; absent unless both sides are populated.
func (b *OrderBook) Spread() (float64, bool) {
	bid, okB := b.BestBid()
	ask, okA := b.BestAsk()
	if !okB || !okA {
		return 0, false
	}
	return ask - bid, true
}

// VolumeAt returns the aggregate volume resting at price, 0 if absent.
func (b *OrderBook) VolumeAt(price float64, side Side) float64 {
	lvl := b.sideOf(side).Find(price)
	if lvl == nil {
		return 0
	}
	return lvl.TotalVolume
}

// Depth returns up to n (price, volume) rows, nearest-to-best first.
func (b *OrderBook) Depth(n int, side Side) []Level {
	return b.sideOf(side).Depth(n)
}

// TotalVolume sums resting volume over the top depth levels of one side.
func (b *OrderBook) TotalVolume(depth int, side Side) float64 {
	return b.sideOf(side).TotalVolume(depth)
}

// Imbalance is (bidVol-askVol)/(bidVol+askVol) over the top depth levels per
// side, 0 when the book is too thin for the ratio to mean anything.
func (b *OrderBook) Imbalance(depth int) float64 {
	bidVol := b.bids.TotalVolume(depth)
	askVol := b.asks.TotalVolume(depth)
	total := bidVol + askVol
	if total < Epsilon {
		return 0
	}
	return (bidVol - askVol) / total
}

// OrdersAt returns an immutable view of the FIFO queue at price, oldest
// first, or an empty slice if the level is absent.
func (b *OrderBook) OrdersAt(price float64, side Side) []SyntheticOrder {
	lvl := b.sideOf(side).Find(price)
	if lvl == nil {
		return nil
	}
	return lvl.Orders()
}

// Levels returns how many levels are populated on the given side.
func (b *OrderBook) Levels(side Side) int {
	return b.sideOf(side).Len()
}

// Validate walks every level on both sides and returns the first invariant
// violation found. Intended for tests and debug tooling.
func (b *OrderBook) Validate() error {
	var err error
	check := func(lvl *PriceLevel) bool {
		if e := lvl.Validate(); e != nil {
			err = e
			return false
		}
		return true
	}
	b.bids.Walk(check)
	if err != nil {
		return err
	}
	b.asks.Walk(check)
	return err
}
