// Package metrics writes per-session CSV sinks for offline analysis and
// exposes prometheus counters for live scraping. Each run gets its own
// timestamped directory so sessions never clobber each other.
package metrics

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// Logger owns the per-session CSV files. It is not safe for concurrent use;
// the engine loop is the only writer.
type Logger struct {
	asset string
	dir   string

	trades    *sink
	latency   *sink
	inventory *sink
	pnl       *sink
	orderbook *sink

	ingestLatenciesUs  []int64
	processLatenciesUs []int64
	totalEvents        uint64
	totalTrades        uint64
}

type sink struct {
	f *os.File
	w *bufio.Writer
}

func newSink(path, header string) (*sink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	s := &sink{f: f, w: bufio.NewWriter(f)}
	if _, err := s.w.WriteString(header + "\n"); err != nil {
		f.Close()
		return nil, err
	}
	return s, nil
}

func (s *sink) writeLine(line string) {
	if s == nil {
		return
	}
	s.w.WriteString(line)
	s.w.WriteByte('\n')
}

func (s *sink) close() error {
	if s == nil {
		return nil
	}
	if err := s.w.Flush(); err != nil {
		return err
	}
	return s.f.Close()
}

// NewLogger creates <outputDir>/<asset>_<YYYY_MM_DD_HH_MM_SS>/ and opens the
// five session sinks inside it.
func NewLogger(asset, outputDir string) (*Logger, error) {
	dir := filepath.Join(outputDir,
		fmt.Sprintf("%s_%s", asset, time.Now().Format("2006_01_02_15_04_05")))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	l := &Logger{asset: asset, dir: dir}

	var err error
	if l.trades, err = newSink(filepath.Join(dir, "trades.log"), "Time,Price,Quantity,Side"); err != nil {
		return nil, err
	}
	if l.latency, err = newSink(filepath.Join(dir, "latency.log"), "Time,ExchangeTS,LocalTS,ProcessingTS,Engine_Latency_us"); err != nil {
		return nil, err
	}
	if l.inventory, err = newSink(filepath.Join(dir, "inventory.log"), "Time,Position,PnL"); err != nil {
		return nil, err
	}
	if l.pnl, err = newSink(filepath.Join(dir, "pnl.log"), "Time,GrossPnL,NetPnL,Fees"); err != nil {
		return nil, err
	}
	if l.orderbook, err = newSink(filepath.Join(dir, "orderbook.log"), "Time,BestBid,BestAsk,MidPrice,Spread,Imbalance"); err != nil {
		return nil, err
	}
	return l, nil
}

// Dir returns the session directory the sinks live in.
func (l *Logger) Dir() string { return l.dir }

func (l *Logger) LogTrade(tsMillis int64, price, quantity float64, side string) {
	l.totalTrades++
	l.trades.writeLine(fmt.Sprintf("%s,%g,%g,%s", formatTime(tsMillis), price, quantity, side))
}

// LogLatency records both legs: exchange->local (ingest) and
// local->processing (engine). Timestamps are microseconds.
func (l *Logger) LogLatency(exchangeTS, localTS, processingTS int64) {
	engineLatency := processingTS - localTS
	l.ingestLatenciesUs = append(l.ingestLatenciesUs, localTS-exchangeTS)
	l.processLatenciesUs = append(l.processLatenciesUs, engineLatency)
	l.latency.writeLine(fmt.Sprintf("%s,%d,%d,%d,%d",
		formatTime(processingTS/1000), exchangeTS, localTS, processingTS, engineLatency))
}

func (l *Logger) LogInventory(tsMillis int64, position, pnl float64) {
	l.inventory.writeLine(fmt.Sprintf("%s,%g,%g", formatTime(tsMillis), position, pnl))
}

func (l *Logger) LogPnL(tsMillis int64, grossPnL, netPnL, fees float64) {
	l.pnl.writeLine(fmt.Sprintf("%s,%g,%g,%g", formatTime(tsMillis), grossPnL, netPnL, fees))
}

func (l *Logger) LogBookState(tsMillis int64, bestBid, bestAsk, midPrice, spread, imbalance float64) {
	l.orderbook.writeLine(fmt.Sprintf("%s,%g,%g,%g,%g,%g",
		formatTime(tsMillis), bestBid, bestAsk, midPrice, spread, imbalance))
}

// CountEvent bumps the per-session event counter used by the summary.
func (l *Logger) CountEvent() { l.totalEvents++ }

func (l *Logger) Flush() error {
	for _, s := range []*sink{l.trades, l.latency, l.inventory, l.pnl, l.orderbook} {
		if err := s.w.Flush(); err != nil {
			return err
		}
	}
	return nil
}

// Summary writes end-of-session statistics, including latency percentiles
// for both legs, to summary.log in the session directory.
func (l *Logger) Summary() error {
	f, err := os.Create(filepath.Join(l.dir, "summary.log"))
	if err != nil {
		return err
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	fmt.Fprintf(w, "asset=%s\n", l.asset)
	fmt.Fprintf(w, "total_events=%d\n", l.totalEvents)
	fmt.Fprintf(w, "total_trades=%d\n", l.totalTrades)
	writePercentiles(w, "ingest_latency_us", l.ingestLatenciesUs)
	writePercentiles(w, "engine_latency_us", l.processLatenciesUs)
	return w.Flush()
}

func (l *Logger) Close() error {
	var firstErr error
	for _, s := range []*sink{l.trades, l.latency, l.inventory, l.pnl, l.orderbook} {
		if err := s.close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func writePercentiles(w *bufio.Writer, name string, samples []int64) {
	if len(samples) == 0 {
		return
	}
	sorted := make([]int64, len(samples))
	copy(sorted, samples)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	for _, p := range []float64{50, 95, 99} {
		fmt.Fprintf(w, "%s_p%g=%d\n", name, p, percentile(sorted, p))
	}
}

// percentile uses nearest-rank on a sorted sample.
func percentile(sorted []int64, p float64) int64 {
	idx := int(p / 100 * float64(len(sorted)))
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func formatTime(tsMillis int64) string {
	return time.UnixMilli(tsMillis).Format("15:04:05")
}
