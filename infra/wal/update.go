package wal

import (
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

// Update is the payload of a RecordUpdate entry: the raw feed event the
// engine applied. Side and Kind are small enums mirrored from the feed
// (0=BID/1=ASK, 0=SNAPSHOT/1=UPDATE) so the journal stays decodable without
// importing the domain.
type Update struct {
	FeedSeq    uint64
	ExchangeTS int64
	LocalTS    int64
	Kind       uint8
	Side       uint8
	Price      float64
	Quantity   float64
}

const (
	updFieldFeedSeq    = 1
	updFieldExchangeTS = 2
	updFieldLocalTS    = 3
	updFieldKind       = 4
	updFieldSide       = 5
	updFieldPrice      = 6
	updFieldQuantity   = 7
)

// Marshal encodes the update in protobuf wire format.
func (u Update) Marshal() []byte {
	var buf []byte
	buf = protowire.AppendTag(buf, updFieldFeedSeq, protowire.VarintType)
	buf = protowire.AppendVarint(buf, u.FeedSeq)
	buf = protowire.AppendTag(buf, updFieldExchangeTS, protowire.VarintType)
	buf = protowire.AppendVarint(buf, uint64(u.ExchangeTS))
	buf = protowire.AppendTag(buf, updFieldLocalTS, protowire.VarintType)
	buf = protowire.AppendVarint(buf, uint64(u.LocalTS))
	buf = protowire.AppendTag(buf, updFieldKind, protowire.VarintType)
	buf = protowire.AppendVarint(buf, uint64(u.Kind))
	buf = protowire.AppendTag(buf, updFieldSide, protowire.VarintType)
	buf = protowire.AppendVarint(buf, uint64(u.Side))
	buf = protowire.AppendTag(buf, updFieldPrice, protowire.Fixed64Type)
	buf = protowire.AppendFixed64(buf, math.Float64bits(u.Price))
	buf = protowire.AppendTag(buf, updFieldQuantity, protowire.Fixed64Type)
	buf = protowire.AppendFixed64(buf, math.Float64bits(u.Quantity))
	return buf
}

// UnmarshalUpdate decodes an Update payload.
func UnmarshalUpdate(b []byte) (Update, error) {
	var u Update
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return Update{}, ErrCorruptRecord
		}
		b = b[n:]

		switch typ {
		case protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return Update{}, ErrCorruptRecord
			}
			b = b[n:]
			switch num {
			case updFieldFeedSeq:
				u.FeedSeq = v
			case updFieldExchangeTS:
				u.ExchangeTS = int64(v)
			case updFieldLocalTS:
				u.LocalTS = int64(v)
			case updFieldKind:
				u.Kind = uint8(v)
			case updFieldSide:
				u.Side = uint8(v)
			}
		case protowire.Fixed64Type:
			v, n := protowire.ConsumeFixed64(b)
			if n < 0 {
				return Update{}, ErrCorruptRecord
			}
			b = b[n:]
			switch num {
			case updFieldPrice:
				u.Price = math.Float64frombits(v)
			case updFieldQuantity:
				u.Quantity = math.Float64frombits(v)
			}
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return Update{}, ErrCorruptRecord
			}
			b = b[n:]
		}
	}
	return u, nil
}
