package strategy

import "argus/domain/orderbook"

// MarketMaker signals around a simplified Avellaneda-Stoikov reservation
// price: r = mid - inventory * riskAversion. Heavy inventory forces
// reduction regardless of price.
type MarketMaker struct {
	RiskAversion   float64
	InventoryLimit float64

	Position Position

	reservationPrice float64
}

const reservationBand = 0.0001

func NewMarketMaker(riskAversion, inventoryLimit float64) *MarketMaker {
	return &MarketMaker{RiskAversion: riskAversion, InventoryLimit: inventoryLimit}
}

func (s *MarketMaker) Name() string { return "market_maker" }

func (s *MarketMaker) Evaluate(book *orderbook.OrderBook, _ int64) int {
	mid, ok := book.MidPrice()
	if !ok {
		return SignalHold
	}

	s.reservationPrice = mid - s.Position.Quantity*s.RiskAversion

	// Aggressive inventory reduction comes first.
	ratio := s.Position.Quantity / s.InventoryLimit
	if ratio > 0.7 {
		return SignalSell
	}
	if ratio < -0.7 {
		return SignalBuy
	}

	if mid < s.reservationPrice-reservationBand {
		return SignalBuy
	}
	if mid > s.reservationPrice+reservationBand {
		return SignalSell
	}
	return SignalHold
}

// ReservationPrice reports the value computed on the most recent evaluation.
func (s *MarketMaker) ReservationPrice() float64 { return s.reservationPrice }
