// Package strategy holds the signal evaluators that read the reconstructed
// book. An evaluator is pure policy: it sees a read-only book plus a
// timestamp and answers buy (+1), sell (-1) or hold (0). Execution,
// logging and persistence live elsewhere.
package strategy

import (
	"math"

	"argus/domain/orderbook"
)

// Signal values returned by an Evaluator.
const (
	SignalSell = -1
	SignalHold = 0
	SignalBuy  = 1
)

// Evaluator is the closed contract every strategy variant implements.
type Evaluator interface {
	Name() string
	Evaluate(book *orderbook.OrderBook, ts int64) int
}

// Position tracks inventory, average entry price and realized PnL for one
// strategy instance.
type Position struct {
	Quantity      float64
	AvgEntryPrice float64
	PnL           float64
}

// Apply books a fill of qty (signed) at price, updating PnL against the
// running average entry before moving the position.
func (p *Position) Apply(qty, price float64) {
	if p.Quantity != 0 {
		p.PnL += -qty * (price - p.AvgEntryPrice)
	}

	newQty := p.Quantity + qty
	if math.Abs(newQty) > orderbook.Epsilon {
		p.AvgEntryPrice = (p.Quantity*p.AvgEntryPrice + qty*price) / newQty
	} else {
		p.AvgEntryPrice = 0
	}
	p.Quantity = newQty
}
