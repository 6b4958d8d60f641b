package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"argus/config"
	"argus/domain/orderbook"
	"argus/domain/strategy"
	"argus/infra/feed"
	"argus/infra/kafka"
	"argus/infra/metrics"
	"argus/infra/outbox"
	"argus/infra/wal"
	"argus/snapshot"
)

// StatePublisher pushes periodic book summaries downstream.
type StatePublisher interface {
	PublishState(ctx context.Context, st kafka.BookState) error
}

// Deps are the engine's collaborators. Journal and Log are required; every
// other field may be nil, which disables that concern (tests and offline
// runs use this).
type Deps struct {
	Journal   *wal.WAL
	Outbox    *outbox.Outbox
	Snapshots *snapshot.Store
	Publisher StatePublisher
	Metrics   *metrics.Logger
	Counters  *metrics.Collectors
	Log       *zap.Logger
}

// Stats summarizes one replay run.
type Stats struct {
	EventsProcessed uint64
	SkippedLines    uint64
	TradesExecuted  uint64
	SignalsEmitted  uint64
	RepairsApplied  uint64
	LevelsRemoved   uint64
	AvgLatencyUs    float64
	FinalPosition   float64
	FinalPnL        float64
}

/*
Engine is the ONLY write entry point into the system.

All coordination between:
- domain (orderbook, strategy)
- infra (feed, wal, outbox, metrics)
- snapshot
happens here, one event at a time.
*/
type Engine struct {
	cfg      *config.Config
	book     *orderbook.OrderBook
	strat    strategy.Evaluator
	position *strategy.Position
	deps     Deps

	prevType       feed.EventType
	sawFirstEvent  bool
	totalLatencyUs uint64
	stats          Stats
}

// NewEngine wires all dependencies. The position pointer must be the same
// one the strategy reads, so fills influence inventory-aware evaluators.
func NewEngine(
	cfg *config.Config,
	book *orderbook.OrderBook,
	strat strategy.Evaluator,
	position *strategy.Position,
	deps Deps,
) *Engine {
	return &Engine{
		cfg:      cfg,
		book:     book,
		strat:    strat,
		position: position,
		deps:     deps,
	}
}

// Run drains the feed to exhaustion, applying every event to the book and
// driving strategy, metrics, state publishing and snapshots on their
// configured cadences. It returns the run statistics.
func (e *Engine) Run(ctx context.Context, r *feed.Reader) (Stats, error) {
	log := e.deps.Log
	log.Info("engine started",
		zap.String("symbol", e.cfg.App.Symbol),
		zap.String("strategy", e.strat.Name()))

	for r.Next() {
		select {
		case <-ctx.Done():
			return e.finish(r), ctx.Err()
		default:
		}

		ev := r.Event()
		start := time.Now()

		if err := e.applyEvent(ctx, ev); err != nil {
			return e.finish(r), err
		}

		latencyUs := time.Since(start).Microseconds()
		e.totalLatencyUs += uint64(latencyUs)

		if e.stats.EventsProcessed%uint64(e.cfg.Engine.LatencyInterval) == 0 {
			if e.deps.Metrics != nil {
				// Feed timestamps are ms; the latency sink works in us.
				localUs := ev.LocalTS * 1000
				e.deps.Metrics.LogLatency(ev.ExchangeTS*1000, localUs, localUs+latencyUs)
			}
		}

		e.stats.EventsProcessed++
		if e.deps.Metrics != nil {
			e.deps.Metrics.CountEvent()
		}
		if e.deps.Counters != nil {
			e.deps.Counters.EventsProcessed.Inc()
		}

		if e.stats.EventsProcessed%10000 == 0 {
			log.Info("progress", zap.Uint64("events", e.stats.EventsProcessed))
		}
	}
	if err := r.Err(); err != nil {
		return e.finish(r), err
	}
	return e.finish(r), nil
}

func (e *Engine) applyEvent(ctx context.Context, ev feed.Event) error {
	// A snapshot block starting after updates optionally resynchronizes the
	// book from scratch.
	if ev.Type == feed.EventSnapshot &&
		e.cfg.Engine.ResetOnSnapshot &&
		(!e.sawFirstEvent || e.prevType != feed.EventSnapshot) {
		e.book.Reset()
		if err := e.deps.Journal.Append(&wal.Record{
			Type: wal.RecordReset,
			Time: ev.LocalTS,
		}); err != nil {
			return fmt.Errorf("journal reset: %w", err)
		}
	}
	e.prevType = ev.Type
	e.sawFirstEvent = true

	if err := e.journalUpdate(ev); err != nil {
		return err
	}

	report, err := e.book.ApplyUpdate(ev.Price, ev.Quantity, ev.Side, ev.ExchangeTS)
	if err != nil {
		return fmt.Errorf("apply update seq %d: %w", ev.Seq, err)
	}
	if report.Repaired() {
		e.stats.RepairsApplied++
		e.stats.LevelsRemoved += uint64(len(report.Removed))
		if e.deps.Counters != nil {
			e.deps.Counters.CrossedRepairs.Inc()
			e.deps.Counters.LevelsRemoved.Add(float64(len(report.Removed)))
		}
		e.deps.Log.Warn("crossed book repaired",
			zap.Uint64("seq", ev.Seq),
			zap.Int("levels_removed", len(report.Removed)))
	}

	if e.stats.EventsProcessed%uint64(e.cfg.Engine.EvalInterval) == 0 {
		e.evaluateStrategy(ev)
	}

	if e.stats.EventsProcessed%uint64(e.cfg.Engine.StateInterval) == 0 {
		e.publishState(ctx, ev)
	}

	if e.deps.Snapshots != nil &&
		e.stats.EventsProcessed > 0 &&
		e.stats.EventsProcessed%uint64(e.cfg.Engine.SnapshotEvery) == 0 {
		if err := e.deps.Snapshots.Save(e.deps.Journal.LastSeq(), e.book); err != nil {
			return fmt.Errorf("snapshot at seq %d: %w", e.deps.Journal.LastSeq(), err)
		}
		if e.deps.Counters != nil {
			e.deps.Counters.SnapshotsTaken.Inc()
		}
	}
	return nil
}

func (e *Engine) journalUpdate(ev feed.Event) error {
	kind := uint8(0)
	if ev.Type == feed.EventUpdate {
		kind = 1
	}
	upd := wal.Update{
		FeedSeq:    ev.Seq,
		ExchangeTS: ev.ExchangeTS,
		LocalTS:    ev.LocalTS,
		Kind:       kind,
		Side:       uint8(ev.Side),
		Price:      ev.Price,
		Quantity:   ev.Quantity,
	}
	if err := e.deps.Journal.Append(&wal.Record{
		Type: wal.RecordUpdate,
		Time: ev.LocalTS,
		Data: upd.Marshal(),
	}); err != nil {
		return fmt.Errorf("journal update seq %d: %w", ev.Seq, err)
	}
	return nil
}

func (e *Engine) evaluateStrategy(ev feed.Event) {
	signal := e.strat.Evaluate(e.book, ev.LocalTS)
	if signal == strategy.SignalHold {
		return
	}

	mid, ok := e.book.MidPrice()
	if !ok {
		return
	}

	qty := float64(signal) * e.cfg.Strategy.OrderSize
	e.position.Apply(qty, mid)
	e.stats.SignalsEmitted++
	e.stats.TradesExecuted++

	side := "BUY"
	action := "buy"
	if signal < 0 {
		side = "SELL"
		action = "sell"
	}

	if e.deps.Metrics != nil {
		e.deps.Metrics.LogTrade(ev.LocalTS, mid, e.cfg.Strategy.OrderSize, side)
		e.deps.Metrics.LogInventory(ev.LocalTS, e.position.Quantity, e.position.PnL)
		e.deps.Metrics.LogPnL(ev.LocalTS, e.position.PnL, e.position.PnL, 0)
	}
	if e.deps.Counters != nil {
		e.deps.Counters.Signals.WithLabelValues(action).Inc()
	}

	if e.deps.Outbox != nil {
		sig := outbox.Signal{
			Seq:       ev.Seq,
			Action:    int8(signal),
			Price:     mid,
			Quantity:  e.cfg.Strategy.OrderSize,
			EmittedAt: ev.LocalTS,
			Strategy:  e.strat.Name(),
		}
		if err := e.deps.Outbox.Put(sig); err != nil {
			e.deps.Log.Error("outbox put failed", zap.Uint64("seq", ev.Seq), zap.Error(err))
		}
	}
	if err := e.deps.Journal.Append(&wal.Record{
		Type: wal.RecordSignal,
		Time: ev.LocalTS,
		Data: signalPayload(ev, signal, mid, e.cfg.Strategy.OrderSize),
	}); err != nil {
		e.deps.Log.Error("journal signal failed", zap.Uint64("seq", ev.Seq), zap.Error(err))
	}
}

// signalPayload reuses the update codec for signal journal entries: the
// fields line up, with Kind carrying the action (1=buy, 2=sell).
func signalPayload(ev feed.Event, signal int, price, qty float64) []byte {
	kind := uint8(1)
	if signal < 0 {
		kind = 2
	}
	return wal.Update{
		FeedSeq:  ev.Seq,
		LocalTS:  ev.LocalTS,
		Kind:     kind,
		Price:    price,
		Quantity: qty,
	}.Marshal()
}

func (e *Engine) publishState(ctx context.Context, ev feed.Event) {
	bid, okBid := e.book.BestBid()
	ask, okAsk := e.book.BestAsk()
	mid, okMid := e.book.MidPrice()
	spread, okSpread := e.book.Spread()
	imbalance := e.book.Imbalance(e.cfg.Strategy.ImbalanceDepth)

	if e.deps.Metrics != nil && okBid && okAsk && okMid && okSpread {
		e.deps.Metrics.LogBookState(ev.LocalTS, bid, ask, mid, spread, imbalance)
	}

	if e.deps.Publisher == nil {
		return
	}

	st := kafka.BookState{
		Symbol:    e.cfg.App.Symbol,
		Seq:       ev.Seq,
		Timestamp: ev.LocalTS,
		Imbalance: imbalance,
		Bids:      depthRows(e.book, orderbook.Bid, e.cfg.Strategy.ImbalanceDepth),
		Asks:      depthRows(e.book, orderbook.Ask, e.cfg.Strategy.ImbalanceDepth),
	}
	if okBid {
		st.BestBid = &bid
	}
	if okAsk {
		st.BestAsk = &ask
	}
	if okMid {
		st.MidPrice = &mid
	}
	if okSpread {
		st.Spread = &spread
	}

	if err := e.deps.Publisher.PublishState(ctx, st); err != nil {
		e.deps.Log.Warn("state publish failed", zap.Uint64("seq", ev.Seq), zap.Error(err))
	}
}

func depthRows(book *orderbook.OrderBook, side orderbook.Side, n int) [][2]float64 {
	levels := book.Depth(n, side)
	rows := make([][2]float64, 0, len(levels))
	for _, lvl := range levels {
		rows = append(rows, [2]float64{lvl.Price, lvl.Volume})
	}
	return rows
}

func (e *Engine) finish(r *feed.Reader) Stats {
	e.stats.SkippedLines = r.Skipped()
	if e.deps.Counters != nil {
		e.deps.Counters.MalformedLines.Add(float64(e.stats.SkippedLines))
	}
	if e.stats.EventsProcessed > 0 {
		e.stats.AvgLatencyUs = float64(e.totalLatencyUs) / float64(e.stats.EventsProcessed)
	}
	e.stats.FinalPosition = e.position.Quantity
	e.stats.FinalPnL = e.position.PnL

	if e.deps.Metrics != nil {
		if err := e.deps.Metrics.Summary(); err != nil {
			e.deps.Log.Warn("summary write failed", zap.Error(err))
		}
		if err := e.deps.Metrics.Flush(); err != nil {
			e.deps.Log.Warn("metrics flush failed", zap.Error(err))
		}
	}

	fields := []zap.Field{
		zap.Uint64("events", e.stats.EventsProcessed),
		zap.Uint64("skipped", e.stats.SkippedLines),
		zap.Uint64("trades", e.stats.TradesExecuted),
		zap.Uint64("repairs", e.stats.RepairsApplied),
		zap.Float64("avg_latency_us", e.stats.AvgLatencyUs),
		zap.Float64("position", e.stats.FinalPosition),
		zap.Float64("pnl", e.stats.FinalPnL),
	}
	if bid, ok := e.book.BestBid(); ok {
		fields = append(fields, zap.Float64("best_bid", bid))
	}
	if ask, ok := e.book.BestAsk(); ok {
		fields = append(fields, zap.Float64("best_ask", ask))
	}
	e.deps.Log.Info("run complete", fields...)

	return e.stats
}
