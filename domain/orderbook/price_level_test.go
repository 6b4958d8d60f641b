package orderbook

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingAllocator struct{ next uint64 }

func (a *countingAllocator) NextOrderID() uint64 {
	a.next++
	return a.next
}

func quantities(lvl *PriceLevel) []float64 {
	orders := lvl.Orders()
	out := make([]float64, len(orders))
	for i, o := range orders {
		out[i] = o.Quantity
	}
	return out
}

func TestApplyDeltaIncreaseAppendsOrder(t *testing.T) {
	ids := &countingAllocator{}
	lvl := &PriceLevel{Price: 100}

	lvl.ApplyDelta(50, Bid, 1000, ids)

	require.Equal(t, []float64{50}, quantities(lvl))
	assert.InDelta(t, 50, lvl.TotalVolume, Epsilon)
	assert.NoError(t, lvl.Validate())
}

func TestApplyDeltaSecondIncreaseQueuesBehind(t *testing.T) {
	ids := &countingAllocator{}
	lvl := &PriceLevel{Price: 100}

	lvl.ApplyDelta(50, Bid, 1000, ids)
	lvl.ApplyDelta(80, Bid, 1001, ids)

	require.Equal(t, []float64{50, 30}, quantities(lvl))
	assert.InDelta(t, 80, lvl.TotalVolume, Epsilon)

	orders := lvl.Orders()
	assert.Equal(t, uint64(1), orders[0].ID)
	assert.Equal(t, uint64(2), orders[1].ID)
	assert.Less(t, orders[0].Timestamp, orders[1].Timestamp)
}

func TestApplyDeltaPartialReductionHitsFront(t *testing.T) {
	ids := &countingAllocator{}
	lvl := &PriceLevel{Price: 100}

	lvl.ApplyDelta(50, Bid, 1000, ids)
	lvl.ApplyDelta(80, Bid, 1001, ids) // [50, 30]
	lvl.ApplyDelta(60, Bid, 1002, ids) // -20 from the front

	require.Equal(t, []float64{30, 30}, quantities(lvl))
	assert.InDelta(t, 60, lvl.TotalVolume, Epsilon)
	assert.NoError(t, lvl.Validate())
}

func TestApplyDeltaFullFillPlusPartial(t *testing.T) {
	ids := &countingAllocator{}
	lvl := &PriceLevel{Price: 100}

	lvl.ApplyDelta(50, Bid, 1000, ids)
	lvl.ApplyDelta(80, Bid, 1001, ids) // [50, 30]
	lvl.ApplyDelta(60, Bid, 1002, ids) // [30, 30]
	lvl.ApplyDelta(10, Bid, 1003, ids) // -50: first gone, second reduced

	require.Equal(t, []float64{10}, quantities(lvl))
	assert.InDelta(t, 10, lvl.TotalVolume, Epsilon)
	assert.NoError(t, lvl.Validate())
}

func TestApplyDeltaNoiseWithinEpsilonIsNoop(t *testing.T) {
	ids := &countingAllocator{}
	lvl := &PriceLevel{Price: 100}

	lvl.ApplyDelta(50, Bid, 1000, ids)
	lvl.ApplyDelta(50+Epsilon/2, Bid, 1001, ids)

	require.Equal(t, []float64{50}, quantities(lvl))
	assert.Equal(t, 1, lvl.OrderCount())
}

func TestFIFOLawEarlierOrdersExhaustFirst(t *testing.T) {
	ids := &countingAllocator{}
	lvl := &PriceLevel{Price: 100}

	lvl.ApplyDelta(10, Bid, 1000, ids)
	lvl.ApplyDelta(25, Bid, 1001, ids)
	lvl.ApplyDelta(45, Bid, 1002, ids)
	lvl.ApplyDelta(70, Bid, 1003, ids)
	require.Equal(t, []float64{10, 15, 20, 25}, quantities(lvl))

	// -30 must remove the first two orders and reduce the third by 5.
	lvl.ApplyDelta(40, Bid, 1004, ids)
	require.Equal(t, []float64{15, 25}, quantities(lvl))

	orders := lvl.Orders()
	assert.Equal(t, uint64(3), orders[0].ID, "third arrival must now be front")
	assert.Equal(t, uint64(4), orders[1].ID, "fourth arrival untouched")
	assert.NoError(t, lvl.Validate())
}

func TestReduceFIFOOverReductionDrainsQueue(t *testing.T) {
	ids := &countingAllocator{}
	lvl := &PriceLevel{Price: 100}

	lvl.ApplyDelta(50, Bid, 1000, ids)
	removed := lvl.reduceFIFO(500)

	assert.InDelta(t, 50, removed, Epsilon)
	assert.True(t, lvl.Empty())
	assert.InDelta(t, 0, lvl.TotalVolume, Epsilon)
	assert.NoError(t, lvl.Validate())
}

func TestValidateCatchesCorruption(t *testing.T) {
	ids := &countingAllocator{}
	lvl := &PriceLevel{Price: 100}
	lvl.ApplyDelta(50, Bid, 1000, ids)

	lvl.TotalVolume = 75 // break conservation by hand
	assert.Error(t, lvl.Validate())

	lvl.TotalVolume = 50
	lvl.queue[0].Quantity = -1
	assert.Error(t, lvl.Validate())
}
