package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
)

// BookState is the periodic market summary published downstream. Pointer
// fields are omitted when the corresponding side of the book is empty.
type BookState struct {
	Symbol    string       `json:"symbol"`
	Seq       uint64       `json:"seq"`
	Timestamp int64        `json:"timestamp"`
	BestBid   *float64     `json:"best_bid,omitempty"`
	BestAsk   *float64     `json:"best_ask,omitempty"`
	MidPrice  *float64     `json:"mid_price,omitempty"`
	Spread    *float64     `json:"spread,omitempty"`
	Imbalance float64      `json:"imbalance"`
	Bids      [][2]float64 `json:"bids"`
	Asks      [][2]float64 `json:"asks"`
}

type Producer struct {
	writer *kafka.Writer
}

func NewProducer(brokers []string, topic string) *Producer {
	return &Producer{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			RequiredAcks: kafka.RequireAll,
			Async:        false,
			BatchTimeout: 10 * time.Millisecond,
		},
	}
}

func (p *Producer) Send(
	ctx context.Context,
	key []byte,
	value []byte,
) error {
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   key,
		Value: value,
	})
}

// PublishState serializes the book state and sends it keyed by symbol, so a
// partitioned topic preserves per-symbol ordering.
func (p *Producer) PublishState(ctx context.Context, st BookState) error {
	data, err := json.Marshal(st)
	if err != nil {
		return err
	}
	return p.Send(ctx, []byte(st.Symbol), data)
}

func (p *Producer) Close() error {
	return p.writer.Close()
}
