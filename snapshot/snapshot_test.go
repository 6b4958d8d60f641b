package snapshot

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"argus/domain/orderbook"
)

func buildBook(t *testing.T) *orderbook.OrderBook {
	t.Helper()
	book := orderbook.NewOrderBook("BTC-USDT")

	// Two orders queued at the 100.0 bid, one each elsewhere.
	mustApply(t, book, 100.0, 5.0, orderbook.Bid, 1)
	mustApply(t, book, 100.0, 8.0, orderbook.Bid, 2)
	mustApply(t, book, 99.5, 2.0, orderbook.Bid, 3)
	mustApply(t, book, 100.5, 4.0, orderbook.Ask, 4)
	mustApply(t, book, 101.0, 6.0, orderbook.Ask, 5)
	return book
}

func mustApply(t *testing.T, book *orderbook.OrderBook, price, vol float64, side orderbook.Side, ts int64) {
	t.Helper()
	_, err := book.ApplyUpdate(price, vol, side, ts)
	require.NoError(t, err)
}

func TestCaptureRestoreRoundTrip(t *testing.T) {
	book := buildBook(t)
	s := Capture(77, book)

	assert.Equal(t, uint64(77), s.Seq)
	assert.Equal(t, "BTC-USDT", s.Symbol)
	assert.Len(t, s.Orders, 5)

	restored := orderbook.NewOrderBook("BTC-USDT")
	require.NoError(t, s.Restore(restored))

	assert.Equal(t, 8.0, restored.VolumeAt(100.0, orderbook.Bid))
	assert.Equal(t, 2.0, restored.VolumeAt(99.5, orderbook.Bid))
	assert.Equal(t, 4.0, restored.VolumeAt(100.5, orderbook.Ask))
	assert.Equal(t, 6.0, restored.VolumeAt(101.0, orderbook.Ask))

	// Queue order at 100.0 must survive: 5 then 3.
	queue := restored.OrdersAt(100.0, orderbook.Bid)
	require.Len(t, queue, 2)
	assert.Equal(t, 5.0, queue[0].Quantity)
	assert.Equal(t, 3.0, queue[1].Quantity)
	assert.Less(t, queue[0].ID, queue[1].ID)

	require.NoError(t, restored.Validate())
}

func TestStoreSaveAndLatest(t *testing.T) {
	st, err := OpenStore(t.TempDir())
	require.NoError(t, err)
	defer st.Close()

	book := buildBook(t)
	require.NoError(t, st.Save(100, book))

	mustApply(t, book, 98.0, 1.0, orderbook.Bid, 6)
	require.NoError(t, st.Save(200, book))

	latest, err := st.Latest()
	require.NoError(t, err)
	assert.Equal(t, uint64(200), latest.Seq)
	assert.Len(t, latest.Orders, 6)

	older, err := st.Load(100)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), older.Seq)
	assert.Len(t, older.Orders, 5)
}

func TestStoreLatestEmpty(t *testing.T) {
	st, err := OpenStore(t.TempDir())
	require.NoError(t, err)
	defer st.Close()

	_, err = st.Latest()
	assert.ErrorIs(t, err, ErrNoSnapshot)
}

func TestStorePrune(t *testing.T) {
	st, err := OpenStore(t.TempDir())
	require.NoError(t, err)
	defer st.Close()

	book := buildBook(t)
	for _, seq := range []uint64{10, 20, 30} {
		require.NoError(t, st.Save(seq, book))
	}
	require.NoError(t, st.Prune(30))

	_, err = st.Load(10)
	assert.Error(t, err)
	_, err = st.Load(20)
	assert.Error(t, err)

	latest, err := st.Latest()
	require.NoError(t, err)
	assert.Equal(t, uint64(30), latest.Seq)
}
