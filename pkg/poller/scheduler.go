// Package poller runs the background refresh loop: each tick it resolves
// a quote for every watched symbol and queries the session for the
// account snapshot, open orders and recent executions, emitting each
// result as an event. The presentation layer only ever subscribes; it
// never blocks the worker and the worker never touches presentation
// state.
package poller

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/quantdesk/tradeterm/pkg/gateway"
	"github.com/quantdesk/tradeterm/pkg/models"
	"github.com/sirupsen/logrus"
)

// QuoteResolver yields a quote for a symbol. The production resolver is
// the market data cascade, which never returns an error.
type QuoteResolver interface {
	Resolve(ctx context.Context, symbol string) (models.Quote, error)
}

// SessionSource is the slice of the session manager the scheduler reads.
type SessionSource interface {
	AccountSnapshot(ctx context.Context) models.PortfolioSnapshot
	OpenOrders(ctx context.Context) ([]gateway.OpenOrder, error)
	Executions(ctx context.Context) ([]gateway.Execution, error)
}

const (
	failureThreshold = 5
	minInterval      = time.Second
)

// backoffPause is a variable so tests can shorten it.
var backoffPause = 5 * time.Second

type Scheduler struct {
	resolver QuoteResolver
	session  SessionSource
	interval time.Duration
	logger   *logrus.Logger

	mu      sync.Mutex
	symbols []string
	subs    []chan Event

	dropped atomic.Int64

	started  atomic.Bool
	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}

	// consecutive failure count, touched only by the worker goroutine.
	failures int
}

// NewScheduler builds a scheduler polling the given symbols. The interval
// is clamped to a 1s floor.
func NewScheduler(resolver QuoteResolver, session SessionSource, symbols []string, interval time.Duration, logger *logrus.Logger) *Scheduler {
	if interval < minInterval {
		interval = minInterval
	}
	s := &Scheduler{
		resolver: resolver,
		session:  session,
		interval: interval,
		logger:   logger,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	s.symbols = append(s.symbols, symbols...)
	return s
}

// Subscribe returns a channel of scheduler events with the given buffer.
// Sends never block the worker: an event that does not fit is dropped.
// The channel is closed when the scheduler stops.
func (s *Scheduler) Subscribe(buffer int) <-chan Event {
	ch := make(chan Event, buffer)
	s.mu.Lock()
	s.subs = append(s.subs, ch)
	s.mu.Unlock()
	return ch
}

// Watch adds a symbol to the watched set, effective at the next tick.
func (s *Scheduler) Watch(symbol string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sym := range s.symbols {
		if sym == symbol {
			return
		}
	}
	s.symbols = append(s.symbols, symbol)
}

// Unwatch removes a symbol from the watched set, effective at the next
// tick.
func (s *Scheduler) Unwatch(symbol string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, sym := range s.symbols {
		if sym == symbol {
			s.symbols = append(s.symbols[:i], s.symbols[i+1:]...)
			return
		}
	}
}

// Symbols returns the currently watched set.
func (s *Scheduler) Symbols() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.symbols))
	copy(out, s.symbols)
	return out
}

// Dropped reports how many events were discarded on full subscriber
// buffers.
func (s *Scheduler) Dropped() int64 {
	return s.dropped.Load()
}

// Start launches the worker goroutine. Only the first call starts a
// worker.
func (s *Scheduler) Start(ctx context.Context) {
	if !s.started.CompareAndSwap(false, true) {
		return
	}
	go s.run(ctx)
}

// Stop signals the worker and waits for it to exit. An in-flight network
// call completes or fails naturally; only the next iteration is skipped.
// Stopping a scheduler that was never started is a no-op.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
	})
	if !s.started.Load() {
		return
	}
	<-s.doneCh
}

func (s *Scheduler) run(ctx context.Context) {
	defer close(s.doneCh)
	defer s.closeSubs()

	s.logger.WithField("interval", s.interval).Info("Polling scheduler started")
	for {
		s.tick(ctx)
		if !s.sleep(ctx, s.interval) {
			s.logger.Info("Polling scheduler stopped")
			return
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	for _, symbol := range s.Symbols() {
		if s.stopped(ctx) {
			return
		}
		quote, err := s.resolver.Resolve(ctx, symbol)
		if err != nil {
			s.failures++
			s.emit(Event{Type: EventError, Symbol: symbol, Err: err})
			if s.failures >= failureThreshold {
				s.logger.WithField("failures", s.failures).Warn("Too many consecutive errors, backing off")
				if !s.sleep(ctx, backoffPause) {
					return
				}
				s.failures = 0
			}
			continue
		}
		s.failures = 0
		q := quote
		s.emit(Event{Type: EventQuote, Symbol: symbol, Quote: &q})
	}

	if s.stopped(ctx) {
		return
	}
	snap := s.session.AccountSnapshot(ctx)
	s.emit(Event{Type: EventPortfolio, Portfolio: &snap})

	if s.stopped(ctx) {
		return
	}
	if orders, err := s.session.OpenOrders(ctx); err != nil {
		s.emit(Event{Type: EventError, Err: err})
	} else {
		s.emit(Event{Type: EventOrders, Orders: orders})
	}

	if s.stopped(ctx) {
		return
	}
	if execs, err := s.session.Executions(ctx); err != nil {
		s.emit(Event{Type: EventError, Err: err})
	} else {
		s.emit(Event{Type: EventExecutions, Executions: execs})
	}
}

func (s *Scheduler) emit(ev Event) {
	s.mu.Lock()
	subs := s.subs
	s.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- ev:
		default:
			s.dropped.Add(1)
		}
	}
}

func (s *Scheduler) stopped(ctx context.Context) bool {
	select {
	case <-s.stopCh:
		return true
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

// sleep waits for d, returning false immediately if the scheduler is
// stopping.
func (s *Scheduler) sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-s.stopCh:
		return false
	case <-ctx.Done():
		return false
	}
}

func (s *Scheduler) closeSubs() {
	s.mu.Lock()
	subs := s.subs
	s.subs = nil
	s.mu.Unlock()
	for _, ch := range subs {
		close(ch)
	}
}
