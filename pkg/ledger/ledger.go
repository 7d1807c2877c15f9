// Package ledger keeps the durable record of executed fills. The store is
// a single human-readable JSON file holding the ordered trade list plus a
// net-position projection; it is reloaded wholesale at startup and
// rewritten on every append.
package ledger

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/quantdesk/tradeterm/pkg/models"
	"github.com/sirupsen/logrus"
)

// Entry is one executed fill projected into the ledger, with the symbol
// and side context the raw execution event carried.
type Entry struct {
	Symbol     string    `json:"symbol"`
	Side       string    `json:"side"`
	Quantity   int64     `json:"quantity"`
	Price      float64   `json:"price"`
	Commission float64   `json:"commission"`
	Timestamp  time.Time `json:"timestamp"`
}

type store struct {
	Trades    []Entry          `json:"trades"`
	Positions map[string]int64 `json:"positions"`
}

type Ledger struct {
	mu        sync.Mutex
	path      string
	entries   []Entry
	positions map[string]int64
	logger    *logrus.Logger
}

// Open loads the ledger at path. A missing or corrupt file yields an
// empty ledger; startup never fails on history.
func Open(path string, logger *logrus.Logger) *Ledger {
	l := &Ledger{
		path:      path,
		positions: make(map[string]int64),
		logger:    logger,
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.WithError(err).WithField("path", path).Warn("Could not read trade history, starting empty")
		}
		return l
	}

	var s store
	if err := json.Unmarshal(data, &s); err != nil {
		logger.WithError(err).WithField("path", path).Warn("Corrupt trade history, starting empty")
		return l
	}

	l.entries = s.Trades
	if s.Positions != nil {
		l.positions = s.Positions
	}
	logger.WithField("trades", len(l.entries)).Info("Loaded trade history")
	return l
}

// Append records a fill and persists the whole store before returning, so
// a crash loses at most the in-flight fill.
func (l *Ledger) Append(fill models.Fill, symbol string, side models.OrderSide) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry := Entry{
		Symbol:     symbol,
		Side:       string(side),
		Quantity:   fill.Quantity,
		Price:      fill.Price,
		Commission: fill.Commission,
		Timestamp:  fill.Timestamp,
	}
	l.entries = append(l.entries, entry)

	delta := fill.Quantity
	if side == models.OrderSideSell {
		delta = -delta
	}
	l.positions[symbol] += delta
	if l.positions[symbol] == 0 {
		delete(l.positions, symbol)
	}

	return l.persist()
}

// All returns the entries in append order.
func (l *Ledger) All() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Positions returns the net position projection derived from the ledger.
func (l *Ledger) Positions() map[string]int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[string]int64, len(l.positions))
	for sym, qty := range l.positions {
		out[sym] = qty
	}
	return out
}

func (l *Ledger) persist() error {
	s := store{Trades: l.entries, Positions: l.positions}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode trade history: %w", err)
	}

	// Write-then-rename so a crash mid-write cannot clobber the existing
	// history file.
	tmp := l.path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("failed to create ledger dir: %w", err)
	}
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write trade history: %w", err)
	}
	if err := os.Rename(tmp, l.path); err != nil {
		return fmt.Errorf("failed to replace trade history: %w", err)
	}
	return nil
}
