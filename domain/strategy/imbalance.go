package strategy

import "argus/domain/orderbook"

// Imbalance signals with the flow: a book much heavier on the bid side is
// read as upward pressure and vice versa.
type Imbalance struct {
	Threshold float64 // trigger level in (0, 1)
	Depth     int     // levels per side to aggregate

	lastImbalance float64
}

func NewImbalance(threshold float64, depth int) *Imbalance {
	return &Imbalance{Threshold: threshold, Depth: depth}
}

func (s *Imbalance) Name() string { return "imbalance" }

func (s *Imbalance) Evaluate(book *orderbook.OrderBook, _ int64) int {
	imb := book.Imbalance(s.Depth)
	s.lastImbalance = imb

	switch {
	case imb > s.Threshold:
		return SignalBuy
	case imb < -s.Threshold:
		return SignalSell
	default:
		return SignalHold
	}
}

// LastImbalance reports the value seen on the most recent evaluation.
func (s *Imbalance) LastImbalance() float64 { return s.lastImbalance }
