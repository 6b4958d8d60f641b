// Package feed reads the pipe-delimited market-data event files produced by
// the ingestion layer. One line per event:
//
//	seq|exchange_ts_ms|local_ts_ms|type|price|qty|side
//
// Malformed lines are rejected and skipped; the stream keeps going.
package feed

import (
	"fmt"
	"strconv"
	"strings"

	"argus/domain/orderbook"
)

type EventType int

const (
	EventSnapshot EventType = iota
	EventUpdate
)

func (t EventType) String() string {
	if t == EventSnapshot {
		return "SNAPSHOT"
	}
	return "UPDATE"
}

// Event is one normalized market-data record.
type Event struct {
	Seq        uint64
	ExchangeTS int64 // exchange event time, ms
	LocalTS    int64 // local ingest time, ms
	Type       EventType
	Price      float64
	Quantity   float64
	Side       orderbook.Side
}

const fieldCount = 7

// ParseEvent parses a single event line.
func ParseEvent(line string) (Event, error) {
	fields := strings.Split(line, "|")
	if len(fields) != fieldCount {
		return Event{}, fmt.Errorf("feed: expected %d fields, got %d: %q", fieldCount, len(fields), line)
	}

	var ev Event
	var err error

	if ev.Seq, err = strconv.ParseUint(fields[0], 10, 64); err != nil {
		return Event{}, fmt.Errorf("feed: bad seq %q: %w", fields[0], err)
	}
	if ev.ExchangeTS, err = strconv.ParseInt(fields[1], 10, 64); err != nil {
		return Event{}, fmt.Errorf("feed: bad exchange ts %q: %w", fields[1], err)
	}
	if ev.LocalTS, err = strconv.ParseInt(fields[2], 10, 64); err != nil {
		return Event{}, fmt.Errorf("feed: bad local ts %q: %w", fields[2], err)
	}

	switch fields[3] {
	case "SNAPSHOT":
		ev.Type = EventSnapshot
	case "UPDATE":
		ev.Type = EventUpdate
	default:
		return Event{}, fmt.Errorf("feed: unknown event type %q", fields[3])
	}

	if ev.Price, err = strconv.ParseFloat(fields[4], 64); err != nil {
		return Event{}, fmt.Errorf("feed: bad price %q: %w", fields[4], err)
	}
	if ev.Quantity, err = strconv.ParseFloat(fields[5], 64); err != nil {
		return Event{}, fmt.Errorf("feed: bad quantity %q: %w", fields[5], err)
	}

	switch fields[6] {
	case "BID":
		ev.Side = orderbook.Bid
	case "ASK":
		ev.Side = orderbook.Ask
	default:
		return Event{}, fmt.Errorf("feed: unknown side %q", fields[6])
	}

	return ev, nil
}
