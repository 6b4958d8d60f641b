package orderbook

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustApply(t *testing.T, b *OrderBook, price, vol float64, side Side, ts int64) RepairReport {
	t.Helper()
	report, err := b.ApplyUpdate(price, vol, side, ts)
	require.NoError(t, err)
	return report
}

func TestVolumeIncreaseCreatesSyntheticOrder(t *testing.T) {
	b := NewOrderBook("BTCUSDT", WithValidation(ValidationStrict))

	mustApply(t, b, 100, 50, Bid, 1000)

	orders := b.OrdersAt(100, Bid)
	require.Len(t, orders, 1)
	assert.InDelta(t, 50, orders[0].Quantity, Epsilon)
	assert.InDelta(t, 50, b.VolumeAt(100, Bid), Epsilon)
}

func TestSecondIncreaseQueuesNewOrder(t *testing.T) {
	b := NewOrderBook("BTCUSDT", WithValidation(ValidationStrict))

	mustApply(t, b, 100, 50, Bid, 1000)
	mustApply(t, b, 100, 80, Bid, 1001)

	orders := b.OrdersAt(100, Bid)
	require.Len(t, orders, 2)
	assert.InDelta(t, 50, orders[0].Quantity, Epsilon)
	assert.InDelta(t, 30, orders[1].Quantity, Epsilon)
	assert.InDelta(t, 80, b.VolumeAt(100, Bid), Epsilon)
}

func TestDecreaseReducesFIFO(t *testing.T) {
	b := NewOrderBook("BTCUSDT", WithValidation(ValidationStrict))

	mustApply(t, b, 100, 50, Bid, 1000)
	mustApply(t, b, 100, 80, Bid, 1001) // [50, 30]
	mustApply(t, b, 100, 60, Bid, 1002) // [30, 30]

	orders := b.OrdersAt(100, Bid)
	require.Len(t, orders, 2)
	assert.InDelta(t, 30, orders[0].Quantity, Epsilon)
	assert.InDelta(t, 30, orders[1].Quantity, Epsilon)

	mustApply(t, b, 100, 10, Bid, 1003) // [10]
	orders = b.OrdersAt(100, Bid)
	require.Len(t, orders, 1)
	assert.InDelta(t, 10, orders[0].Quantity, Epsilon)
	assert.InDelta(t, 10, b.VolumeAt(100, Bid), Epsilon)
}

func TestZeroVolumeDeletesLevelOutright(t *testing.T) {
	b := NewOrderBook("BTCUSDT", WithValidation(ValidationStrict))

	mustApply(t, b, 100, 50, Bid, 1000)
	mustApply(t, b, 100, 80, Bid, 1001)
	mustApply(t, b, 100, 0, Bid, 1002)

	assert.Empty(t, b.OrdersAt(100, Bid))
	assert.Zero(t, b.VolumeAt(100, Bid))
	assert.Equal(t, 0, b.Levels(Bid))
}

func TestNegativeVolumeDrainsAndDeletesLevel(t *testing.T) {
	b := NewOrderBook("BTCUSDT", WithValidation(ValidationStrict))

	mustApply(t, b, 100, 50, Bid, 1000)
	mustApply(t, b, 100, -5, Bid, 1001)

	// Draining the queue must not leave a phantom zero-volume best bid.
	assert.Equal(t, 0, b.Levels(Bid))
	assert.Zero(t, b.VolumeAt(100, Bid))
	_, ok := b.BestBid()
	assert.False(t, ok)
}

func TestSnapshotRebuildAfterClear(t *testing.T) {
	b := NewOrderBook("BTCUSDT", WithValidation(ValidationStrict))

	mustApply(t, b, 100, 50, Bid, 1000)
	mustApply(t, b, 100, 80, Bid, 1001)

	b.Reset()
	mustApply(t, b, 100, 100, Bid, 2000)

	orders := b.OrdersAt(100, Bid)
	require.Len(t, orders, 1)
	assert.InDelta(t, 100, orders[0].Quantity, Epsilon)
	assert.Equal(t, uint64(1), orders[0].ID, "ids restart at 1 after reset")
}

func TestResetClearsBothSides(t *testing.T) {
	b := NewOrderBook("BTCUSDT")

	mustApply(t, b, 100, 50, Bid, 1000)
	mustApply(t, b, 99, 20, Bid, 1001)
	mustApply(t, b, 101, 30, Ask, 1002)

	b.Reset()

	assert.Equal(t, 0, b.Levels(Bid))
	assert.Equal(t, 0, b.Levels(Ask))
	_, ok := b.BestBid()
	assert.False(t, ok)
	_, ok = b.BestAsk()
	assert.False(t, ok)
	assert.Zero(t, b.VolumeAt(100, Bid))
}

func TestTopLevelQueries(t *testing.T) {
	b := NewOrderBook("BTCUSDT", WithValidation(ValidationStrict))

	mustApply(t, b, 100, 50, Bid, 1000)
	mustApply(t, b, 99, 30, Bid, 1001)
	mustApply(t, b, 101, 40, Ask, 1002)
	mustApply(t, b, 102, 20, Ask, 1003)

	bid, ok := b.BestBid()
	require.True(t, ok)
	assert.Equal(t, 100.0, bid)

	ask, ok := b.BestAsk()
	require.True(t, ok)
	assert.Equal(t, 101.0, ask)

	mid, ok := b.MidPrice()
	require.True(t, ok)
	assert.InDelta(t, 100.5, mid, Epsilon)

	spread, ok := b.Spread()
	require.True(t, ok)
	assert.InDelta(t, 1.0, spread, Epsilon)

	depth := b.Depth(2, Bid)
	require.Len(t, depth, 2)
	assert.Equal(t, 100.0, depth[0].Price, "nearest-to-best first")
	assert.Equal(t, 99.0, depth[1].Price)

	depth = b.Depth(5, Ask)
	require.Len(t, depth, 2)
	assert.Equal(t, 101.0, depth[0].Price)

	// bids 80, asks 60 over full depth
	imb := b.Imbalance(5)
	assert.InDelta(t, (80.0-60.0)/(80.0+60.0), imb, Epsilon)
}

func TestQueriesOnEmptyBook(t *testing.T) {
	b := NewOrderBook("BTCUSDT")

	_, ok := b.BestBid()
	assert.False(t, ok)
	_, ok = b.MidPrice()
	assert.False(t, ok)
	_, ok = b.Spread()
	assert.False(t, ok)
	assert.Zero(t, b.Imbalance(5))
	assert.Empty(t, b.Depth(5, Ask))
	assert.Nil(t, b.OrdersAt(123, Bid))
}

func TestMidAndSpreadAbsentWithOneSide(t *testing.T) {
	b := NewOrderBook("BTCUSDT")
	mustApply(t, b, 100, 50, Bid, 1000)

	_, ok := b.MidPrice()
	assert.False(t, ok)
	_, ok = b.Spread()
	assert.False(t, ok)
	assert.InDelta(t, 1.0, b.Imbalance(5), Epsilon, "all volume on the bid side")
}

func TestCrossedBookRepairRemovesOffendingBids(t *testing.T) {
	var diags []Diagnostic
	b := NewOrderBook("BTCUSDT",
		WithValidation(ValidationStrict),
		WithDiagnostics(func(d Diagnostic) { diags = append(diags, d) }),
	)

	mustApply(t, b, 99, 10, Bid, 1000)
	mustApply(t, b, 100, 10, Ask, 1001)

	// A bid arriving above the best ask crosses the book.
	report := mustApply(t, b, 101, 5, Bid, 1002)

	require.True(t, report.Repaired())
	require.Len(t, report.Removed, 1)
	assert.Equal(t, Bid, report.Removed[0].Side)
	assert.Equal(t, 101.0, report.Removed[0].Price)

	bid, _ := b.BestBid()
	ask, _ := b.BestAsk()
	assert.LessOrEqual(t, bid, ask)

	require.Len(t, diags, 1)
	assert.Equal(t, DiagCrossedRepair, diags[0].Kind)
}

func TestCrossedBookRepairMultipleLevels(t *testing.T) {
	b := NewOrderBook("BTCUSDT")

	mustApply(t, b, 98, 10, Bid, 1000)
	mustApply(t, b, 103, 10, Ask, 1001)
	mustApply(t, b, 104, 10, Ask, 1002)

	// Two bids land above the ask at 103.
	mustApply(t, b, 105, 5, Bid, 1003)
	report := mustApply(t, b, 106, 5, Bid, 1004)

	assert.True(t, report.Repaired())
	bid, okB := b.BestBid()
	ask, okA := b.BestAsk()
	require.True(t, okB)
	require.True(t, okA)
	assert.LessOrEqual(t, bid, ask)
	assert.Equal(t, 98.0, bid)
}

func TestEqualBestPricesTolerated(t *testing.T) {
	b := NewOrderBook("BTCUSDT")

	mustApply(t, b, 100, 10, Bid, 1000)
	report := mustApply(t, b, 100, 10, Ask, 1001)

	assert.False(t, report.Repaired(), "touching book is transiently valid")
	assert.Equal(t, 1, b.Levels(Bid))
	assert.Equal(t, 1, b.Levels(Ask))
}

func TestVolumeConservationAcrossRandomishSequence(t *testing.T) {
	b := NewOrderBook("BTCUSDT", WithValidation(ValidationStrict))

	seq := []struct {
		price float64
		vol   float64
		side  Side
	}{
		{100, 50, Bid}, {100, 80, Bid}, {99.5, 12, Bid}, {100, 60, Bid},
		{101, 40, Ask}, {101, 15, Ask}, {101.5, 7, Ask}, {100, 10, Bid},
		{99.5, 0, Bid}, {101, 90, Ask}, {100, 33.25, Bid},
	}
	ts := int64(1000)
	for _, u := range seq {
		mustApply(t, b, u.price, u.vol, u.side, ts)
		ts++
	}

	require.NoError(t, b.Validate())
}

func TestIDsMonotonicPerBookAndIndependentAcrossBooks(t *testing.T) {
	a := NewOrderBook("AAA")
	b := NewOrderBook("BBB")

	mustApply(t, a, 100, 10, Bid, 1)
	mustApply(t, a, 101, 10, Bid, 2)
	mustApply(t, b, 200, 10, Ask, 3)

	assert.Equal(t, uint64(1), a.OrdersAt(100, Bid)[0].ID)
	assert.Equal(t, uint64(2), a.OrdersAt(101, Bid)[0].ID)
	assert.Equal(t, uint64(1), b.OrdersAt(200, Ask)[0].ID, "books own independent counters")
}

func TestOrdersAtReturnsCopy(t *testing.T) {
	b := NewOrderBook("BTCUSDT")
	mustApply(t, b, 100, 50, Bid, 1000)

	view := b.OrdersAt(100, Bid)
	view[0].Quantity = 1e9

	assert.InDelta(t, 50, b.OrdersAt(100, Bid)[0].Quantity, Epsilon)
}

func TestStrictValidationSurfacesViolations(t *testing.T) {
	b := NewOrderBook("BTCUSDT", WithValidation(ValidationStrict))
	mustApply(t, b, 100, 50, Bid, 1000)

	// Corrupt the level behind the book's back, then touch it again.
	lvl := b.sideOf(Bid).Find(100)
	lvl.TotalVolume = 70

	_, err := b.ApplyUpdate(100, 70+Epsilon/2, Bid, 1001)
	assert.Error(t, err)
}

func TestAdvisoryValidationNeverFails(t *testing.T) {
	var diags []Diagnostic
	b := NewOrderBook("BTCUSDT", WithDiagnostics(func(d Diagnostic) { diags = append(diags, d) }))
	mustApply(t, b, 100, 50, Bid, 1000)

	lvl := b.sideOf(Bid).Find(100)
	lvl.TotalVolume = 70

	_, err := b.ApplyUpdate(100, 70+Epsilon/2, Bid, 1001)
	assert.NoError(t, err)
	require.NotEmpty(t, diags)
	assert.Equal(t, DiagInvariant, diags[0].Kind)
}
