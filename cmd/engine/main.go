package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"argus/config"
	"argus/domain/orderbook"
	"argus/domain/strategy"
	"argus/infra/feed"
	"argus/infra/kafka"
	"argus/infra/metrics"
	"argus/infra/outbox"
	"argus/infra/wal"
	"argus/jobs/broadcaster"
	"argus/service"
	"argus/snapshot"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML config file")
	flag.Parse()

	if flag.NArg() < 1 {
		fmt.Fprintf(os.Stderr, "Usage: %s [-config file.yaml] <event_file>\n", os.Args[0])
		os.Exit(1)
	}
	eventFile := flag.Arg(0)

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	log, err := buildLogger(cfg.App.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(cfg, log, eventFile); err != nil {
		log.Fatal("engine failed", zap.Error(err))
	}
}

func run(cfg *config.Config, log *zap.Logger, eventFile string) error {
	// ---------------- Journal ----------------

	journal, err := wal.Open(wal.Config{Dir: cfg.App.WALDir})
	if err != nil {
		return fmt.Errorf("journal init: %w", err)
	}
	defer journal.Close()

	// ---------------- Outbox ----------------

	ob, err := outbox.Open(cfg.App.OutboxDir)
	if err != nil {
		return fmt.Errorf("outbox init: %w", err)
	}
	defer ob.Close()

	// ---------------- Snapshots ----------------

	snaps, err := snapshot.OpenStore(cfg.App.SnapshotDir)
	if err != nil {
		return fmt.Errorf("snapshot store init: %w", err)
	}
	defer snaps.Close()

	// ---------------- Domain ----------------

	book := orderbook.NewOrderBook(cfg.App.Symbol,
		orderbook.WithValidation(validationMode(cfg.Engine.Validation)),
		orderbook.WithDiagnostics(func(d orderbook.Diagnostic) {
			log.Debug("book diagnostic",
				zap.Int("kind", int(d.Kind)),
				zap.Float64("price", d.Price),
				zap.String("message", d.Message))
		}))

	// Resume from the most recent checkpoint when one exists.
	if snap, err := snaps.Latest(); err == nil {
		if err := snap.Restore(book); err != nil {
			return fmt.Errorf("snapshot restore: %w", err)
		}
		log.Info("restored from snapshot", zap.Uint64("seq", snap.Seq))
	} else if err != snapshot.ErrNoSnapshot {
		return fmt.Errorf("snapshot load: %w", err)
	}

	strat, position := buildStrategy(cfg)
	log.Info("using strategy", zap.String("name", strat.Name()))

	// ---------------- Metrics ----------------

	sinks, err := metrics.NewLogger(cfg.App.Symbol, cfg.App.MetricsDir)
	if err != nil {
		return fmt.Errorf("metrics init: %w", err)
	}
	defer sinks.Close()
	log.Info("metrics sinks created", zap.String("dir", sinks.Dir()))

	counters := metrics.NewCollectors(prometheus.DefaultRegisterer)

	// ---------------- Kafka ----------------

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var publisher service.StatePublisher
	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.StateTopic)
		defer producer.Close()
		publisher = producer

		bc, err := broadcaster.New(ob, cfg.Kafka.Brokers, cfg.Kafka.SignalTopic, log)
		if err != nil {
			return fmt.Errorf("broadcaster init: %w", err)
		}
		defer bc.Close()
		bc.Start(ctx)
	}

	// ---------------- Feed ----------------

	reader, err := feed.Open(eventFile)
	if err != nil {
		return fmt.Errorf("open event file: %w", err)
	}
	defer reader.Close()
	reader.OnBadLine(func(line string, err error) {
		log.Debug("skipping malformed line", zap.String("line", line), zap.Error(err))
	})

	// ---------------- Run ----------------

	eng := service.NewEngine(cfg, book, strat, position, service.Deps{
		Journal:   journal,
		Outbox:    ob,
		Snapshots: snaps,
		Publisher: publisher,
		Metrics:   sinks,
		Counters:  counters,
		Log:       log,
	})

	stats, err := eng.Run(ctx, reader)
	if err != nil {
		return err
	}

	log.Info("session summary",
		zap.Uint64("events", stats.EventsProcessed),
		zap.Uint64("skipped", stats.SkippedLines),
		zap.Uint64("trades", stats.TradesExecuted),
		zap.Float64("avg_latency_us", stats.AvgLatencyUs),
		zap.Float64("final_position", stats.FinalPosition),
		zap.Float64("final_pnl", stats.FinalPnL))
	return nil
}

func buildStrategy(cfg *config.Config) (strategy.Evaluator, *strategy.Position) {
	switch cfg.Strategy.Name {
	case "market_maker":
		mm := strategy.NewMarketMaker(cfg.Strategy.RiskAversion, cfg.Strategy.InventoryLimit)
		return mm, &mm.Position
	default:
		return strategy.NewImbalance(cfg.Strategy.ImbalanceThreshold, cfg.Strategy.ImbalanceDepth), &strategy.Position{}
	}
}

func validationMode(name string) orderbook.ValidationMode {
	switch name {
	case "off":
		return orderbook.ValidationOff
	case "strict":
		return orderbook.ValidationStrict
	default:
		return orderbook.ValidationAdvisory
	}
}

func buildLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, err
	}
	cfg.Level = lvl
	return cfg.Build()
}
