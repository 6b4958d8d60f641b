// Package broadcaster drains the signal outbox onto a Kafka topic. Delivery
// is at-least-once: an entry is marked SENT before publish and ACKED only
// after the broker confirms, so a crash in between replays the signal.
package broadcaster

import (
	"context"
	"encoding/json"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"argus/infra/outbox"
)

// Message is the wire format for a published signal.
type Message struct {
	V        int     `json:"v"`
	Type     string  `json:"type"`
	Seq      uint64  `json:"seq"`
	Action   int8    `json:"action"`
	Price    float64 `json:"price"`
	Quantity float64 `json:"quantity"`
	Strategy string  `json:"strategy"`
	Emitted  int64   `json:"emitted_at"`
}

type Broadcaster struct {
	outbox   *outbox.Outbox
	producer sarama.SyncProducer
	topic    string
	interval time.Duration
	// resendAfter bounds how long an entry may sit in SENT: past it the
	// send is presumed interrupted before the ack and is replayed.
	resendAfter time.Duration
	log         *zap.Logger
}

func New(
	ob *outbox.Outbox,
	brokers []string,
	topic string,
	log *zap.Logger,
) (*Broadcaster, error) {
	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 5

	producer, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, err
	}
	return newWithProducer(ob, producer, topic, log), nil
}

func newWithProducer(
	ob *outbox.Outbox,
	producer sarama.SyncProducer,
	topic string,
	log *zap.Logger,
) *Broadcaster {
	return &Broadcaster{
		outbox:      ob,
		producer:    producer,
		topic:       topic,
		interval:    250 * time.Millisecond,
		resendAfter: 30 * time.Second,
		log:         log,
	}
}

// Start launches the drain loop; it stops when ctx is cancelled.
func (b *Broadcaster) Start(ctx context.Context) {
	b.log.Info("broadcaster started", zap.String("topic", b.topic))

	go func() {
		ticker := time.NewTicker(b.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				b.drainOnce()
			}
		}
	}()
}

// drainOnce pushes every pending entry once; failures stay in the outbox for
// the next tick. SENT entries older than resendAfter are replayed too: a
// crash between the send and the ack leaves them stranded otherwise.
// The batch is collected before any publish, so an entry gets at most one
// attempt per tick.
func (b *Broadcaster) drainOnce() {
	type pending struct {
		seq uint64
		e   outbox.Entry
	}
	var batch []pending

	for _, state := range []outbox.State{outbox.StateNew, outbox.StateFailed} {
		err := b.outbox.ScanByState(state, func(seq uint64, e outbox.Entry) error {
			batch = append(batch, pending{seq, e})
			return nil
		})
		if err != nil {
			b.log.Warn("outbox scan failed", zap.Error(err))
		}
	}

	cutoff := time.Now().Add(-b.resendAfter).UnixNano()
	err := b.outbox.ScanByState(outbox.StateSent, func(seq uint64, e outbox.Entry) error {
		if e.LastAttempt > cutoff {
			return nil
		}
		b.log.Warn("replaying stranded entry", zap.Uint64("seq", seq))
		batch = append(batch, pending{seq, e})
		return nil
	})
	if err != nil {
		b.log.Warn("outbox scan failed", zap.Error(err))
	}

	for _, p := range batch {
		if err := b.publish(p.seq, p.e); err != nil {
			b.log.Warn("publish bookkeeping failed",
				zap.Uint64("seq", p.seq), zap.Error(err))
		}
	}
}

func (b *Broadcaster) publish(seq uint64, e outbox.Entry) error {
	payload, err := json.Marshal(Message{
		V:        1,
		Type:     "signal",
		Seq:      seq,
		Action:   e.Signal.Action,
		Price:    e.Signal.Price,
		Quantity: e.Signal.Quantity,
		Strategy: e.Signal.Strategy,
		Emitted:  e.Signal.EmittedAt,
	})
	if err != nil {
		return err
	}

	if err := b.outbox.MarkSent(seq); err != nil {
		return err
	}

	if _, _, err := b.producer.SendMessage(&sarama.ProducerMessage{
		Topic: b.topic,
		Value: sarama.ByteEncoder(payload),
	}); err != nil {
		b.log.Warn("publish failed, will retry",
			zap.Uint64("seq", seq), zap.Error(err))
		return b.outbox.MarkFailed(seq)
	}

	return b.outbox.MarkAcked(seq)
}

func (b *Broadcaster) Close() error {
	return b.producer.Close()
}
