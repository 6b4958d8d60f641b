package broadcaster

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"argus/infra/outbox"
)

func newTestBroadcaster(t *testing.T) (*Broadcaster, *outbox.Outbox, *mocks.SyncProducer) {
	t.Helper()

	ob, err := outbox.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { ob.Close() })

	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	producer := mocks.NewSyncProducer(t, cfg)

	b := newWithProducer(ob, producer, "signals", zaptest.NewLogger(t))
	return b, ob, producer
}

func TestDrainPublishesAndAcks(t *testing.T) {
	b, ob, producer := newTestBroadcaster(t)

	require.NoError(t, ob.Put(outbox.Signal{
		Seq: 1, Action: 1, Price: 100.5, Quantity: 0.1, Strategy: "imbalance",
	}))

	producer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		var m Message
		if err := json.Unmarshal(val, &m); err != nil {
			return err
		}
		if m.Seq != 1 || m.Action != 1 || m.Price != 100.5 {
			return errors.New("unexpected message body")
		}
		return nil
	})

	b.drainOnce()

	e, err := ob.Get(1)
	require.NoError(t, err)
	assert.Equal(t, outbox.StateAcked, e.State)
}

func TestDrainKeepsFailedForRetry(t *testing.T) {
	b, ob, producer := newTestBroadcaster(t)

	require.NoError(t, ob.Put(outbox.Signal{Seq: 2, Action: -1, Price: 99, Quantity: 1}))
	producer.ExpectSendMessageAndFail(errors.New("broker down"))

	b.drainOnce()

	e, err := ob.Get(2)
	require.NoError(t, err)
	assert.Equal(t, outbox.StateFailed, e.State)

	// Next tick picks the failed entry back up.
	producer.ExpectSendMessageAndSucceed()
	b.drainOnce()

	e, err = ob.Get(2)
	require.NoError(t, err)
	assert.Equal(t, outbox.StateAcked, e.State)
}

func TestDrainReplaysStrandedSent(t *testing.T) {
	dir := t.TempDir()

	// Simulate a crash between send and ack: the entry is flipped to SENT,
	// then the process dies before the broker confirms.
	ob, err := outbox.Open(dir)
	require.NoError(t, err)
	require.NoError(t, ob.Put(outbox.Signal{Seq: 11, Action: 1, Price: 42, Quantity: 1}))
	require.NoError(t, ob.MarkSent(11))
	require.NoError(t, ob.Close())

	ob, err = outbox.Open(dir)
	require.NoError(t, err)
	defer ob.Close()

	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	producer := mocks.NewSyncProducer(t, cfg)

	b := newWithProducer(ob, producer, "signals", zaptest.NewLogger(t))
	b.resendAfter = -time.Second // every SENT entry is past the window

	producer.ExpectSendMessageAndSucceed()
	b.drainOnce()

	e, err := ob.Get(11)
	require.NoError(t, err)
	assert.Equal(t, outbox.StateAcked, e.State)
	assert.Equal(t, uint32(2), e.Retries, "replay is a second attempt")
}

func TestDrainLeavesRecentSentAlone(t *testing.T) {
	b, ob, _ := newTestBroadcaster(t)

	require.NoError(t, ob.Put(outbox.Signal{Seq: 12, Action: 1, Price: 42, Quantity: 1}))
	require.NoError(t, ob.MarkSent(12))

	// Within the redelivery window: no producer expectations, a publish
	// attempt would fail the mock.
	b.drainOnce()

	e, err := ob.Get(12)
	require.NoError(t, err)
	assert.Equal(t, outbox.StateSent, e.State)
}

func TestDrainSkipsAcked(t *testing.T) {
	b, ob, _ := newTestBroadcaster(t)

	require.NoError(t, ob.Put(outbox.Signal{Seq: 3, Action: 1, Price: 10, Quantity: 1}))
	require.NoError(t, ob.MarkSent(3))
	require.NoError(t, ob.MarkAcked(3))

	// No producer expectations: a publish attempt would fail the mock.
	b.drainOnce()
}
