// Package storage persists closed trades, performance metrics and the
// order audit trail.
package storage

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/volbreak/volbreak/core"
)

const (
	tradesFile      = "trades.jsonl"
	performanceFile = "performance.json"
)

// TradeLog is the append-only log of closed trades, one JSON record per
// line. Writes are O_APPEND with a flush per record; loading tolerates
// a truncated last line (dropped silently). After every append the
// latest metrics snapshot overwrites performance.json.
type TradeLog struct {
	mu       sync.Mutex
	file     *os.File
	perfPath string
	trades   []core.Trade
	log      core.Logger
}

func NewTradeLog(dir string, log core.Logger) (*TradeLog, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	path := filepath.Join(dir, tradesFile)
	trades, err := loadTrades(path)
	if err != nil {
		return nil, err
	}

	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open trade log: %w", err)
	}

	return &TradeLog{
		file:     file,
		perfPath: filepath.Join(dir, performanceFile),
		trades:   trades,
		log:      log.WithField("component", "tradelog"),
	}, nil
}

// Append writes one trade record and refreshes the metrics snapshot.
func (t *TradeLog) Append(trade core.Trade) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	line, err := json.Marshal(trade)
	if err != nil {
		return fmt.Errorf("marshal trade: %w", err)
	}
	if _, err := t.file.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("append trade: %w", err)
	}
	if err := t.file.Sync(); err != nil {
		return fmt.Errorf("sync trade log: %w", err)
	}

	t.trades = append(t.trades, trade)
	t.writePerformanceLocked()
	return nil
}

// All returns a copy of every recorded trade, oldest first.
func (t *TradeLog) All() []core.Trade {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]core.Trade, len(t.trades))
	copy(out, t.trades)
	return out
}

// Metrics computes the performance summary over all recorded trades.
func (t *TradeLog) Metrics() Metrics {
	t.mu.Lock()
	defer t.mu.Unlock()
	return computeMetrics(t.trades)
}

// Close flushes and closes the underlying file.
func (t *TradeLog) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.file.Close()
}

// writePerformanceLocked overwrites performance.json with the latest
// metrics. Failures are logged, never fatal: the trade record itself is
// already on disk.
func (t *TradeLog) writePerformanceLocked() {
	metrics := computeMetrics(t.trades)
	content, err := json.MarshalIndent(metrics, "", "  ")
	if err != nil {
		t.log.WithError(err).Error("marshal performance snapshot")
		return
	}
	if err := os.WriteFile(t.perfPath, content, 0o644); err != nil {
		t.log.WithError(err).Error("write performance snapshot")
	}
}

func loadTrades(path string) ([]core.Trade, error) {
	file, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open trade log: %w", err)
	}
	defer file.Close()

	var trades []core.Trade
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var trade core.Trade
		if err := json.Unmarshal(scanner.Bytes(), &trade); err != nil {
			// A truncated or corrupt trailing record is dropped.
			continue
		}
		trades = append(trades, trade)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read trade log: %w", err)
	}
	return trades, nil
}
