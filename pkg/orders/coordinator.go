// Package orders validates order requests against live price state and
// composes multi-leg bracket submissions. Trading is never permitted on
// stale or absent market data: switching the selected symbol disables
// placement until a fresh quote for the new symbol arrives.
package orders

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/quantdesk/tradeterm/pkg/models"
	"github.com/sirupsen/logrus"
)

var (
	ErrNoMarketData   = errors.New("no market data for symbol")
	ErrPartialBracket = errors.New("bracket order partially submitted")
)

// BracketError reports a bracket submission that failed part-way. The
// coordinator already attempted best-effort cancellation of the accepted
// legs; they are listed so the caller can verify via the event stream.
type BracketError struct {
	Accepted []int64
	Cause    error
}

func (e *BracketError) Error() string {
	return fmt.Sprintf("bracket order partially submitted (%d legs accepted): %v", len(e.Accepted), e.Cause)
}

func (e *BracketError) Unwrap() error { return ErrPartialBracket }

// OrderPlacer is the slice of the session manager the coordinator needs.
type OrderPlacer interface {
	PlaceOrder(ctx context.Context, req models.OrderRequest) (int64, error)
	CancelOrder(ctx context.Context, orderID int64) error
}

// SubmitResult carries either a single order id or the three ids of a
// bracket group.
type SubmitResult struct {
	OrderID int64
	Bracket *models.BracketIDs
}

const defaultMaxQuoteAge = 30 * time.Second

type Coordinator struct {
	session OrderPlacer
	logger  *logrus.Logger
	maxAge  time.Duration

	mu       sync.Mutex
	selected string
	quote    *models.Quote
}

func NewCoordinator(session OrderPlacer, maxQuoteAge time.Duration, logger *logrus.Logger) *Coordinator {
	if maxQuoteAge <= 0 {
		maxQuoteAge = defaultMaxQuoteAge
	}
	return &Coordinator{
		session: session,
		maxAge:  maxQuoteAge,
		logger:  logger,
	}
}

// Select switches the active symbol. The cached quote is discarded, so
// order placement stays disabled until a fresh quote for the new symbol
// is observed; a stale price from the previous symbol can never size or
// price a new order.
func (c *Coordinator) Select(symbol string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.selected == symbol {
		return
	}
	c.selected = symbol
	c.quote = nil
}

func (c *Coordinator) Selected() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.selected
}

// OnQuote feeds the coordinator a quote update, typically from the
// polling scheduler's event stream. Quotes for symbols other than the
// selected one are ignored.
func (c *Coordinator) OnQuote(q models.Quote) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if q.Symbol != c.selected {
		return
	}
	c.quote = &q
}

// Quote returns the cached quote for the selected symbol, if any.
func (c *Coordinator) Quote() (models.Quote, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.quote == nil {
		return models.Quote{}, false
	}
	return *c.quote, true
}

// Ready reports whether order placement is currently permitted for
// symbol.
func (c *Coordinator) Ready(symbol string) bool {
	return c.freshQuote(symbol) == nil
}

func (c *Coordinator) freshQuote(symbol string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if symbol == "" || symbol != c.selected || c.quote == nil {
		return fmt.Errorf("%w: %s", ErrNoMarketData, symbol)
	}
	if c.quote.Last <= 0 || time.Since(c.quote.ObservedAt) > c.maxAge {
		return fmt.Errorf("%w: quote for %s is stale", ErrNoMarketData, symbol)
	}
	return nil
}

// Submit validates the request against live price state and routes it:
// simple kinds go straight to the session, brackets are composed as three
// linked legs.
func (c *Coordinator) Submit(ctx context.Context, req models.OrderRequest) (SubmitResult, error) {
	if err := req.Validate(); err != nil {
		return SubmitResult{}, err
	}
	if err := c.freshQuote(req.Symbol); err != nil {
		return SubmitResult{}, err
	}

	if req.Kind == models.OrderKindBracket {
		ids, err := c.submitBracket(ctx, req)
		if err != nil {
			return SubmitResult{}, err
		}
		return SubmitResult{OrderID: ids.Parent, Bracket: &ids}, nil
	}

	orderID, err := c.session.PlaceOrder(ctx, models.OrderRequest{
		Symbol:      req.Symbol,
		Side:        req.Side,
		Quantity:    req.Quantity,
		Kind:        req.Kind,
		LimitPrice:  req.LimitPrice,
		StopPrice:   req.StopPrice,
		TimeInForce: req.TimeInForce,
		Transmit:    true,
	})
	if err != nil {
		return SubmitResult{}, err
	}
	return SubmitResult{OrderID: orderID}, nil
}

// submitBracket places the three legs as one logical unit: a parent entry
// that is not transmitted, a take-profit child that is not transmitted,
// and a stop-loss child with transmit set, which releases the whole group
// atomically as seen by the gateway. Any leg failure is compensated by
// best-effort cancellation of the legs already accepted.
func (c *Coordinator) submitBracket(ctx context.Context, req models.OrderRequest) (models.BracketIDs, error) {
	exit := req.Side.Opposite()

	parentID, err := c.session.PlaceOrder(ctx, models.OrderRequest{
		Symbol:      req.Symbol,
		Side:        req.Side,
		Quantity:    req.Quantity,
		Kind:        models.OrderKindLimit,
		LimitPrice:  req.LimitPrice,
		TimeInForce: req.TimeInForce,
		Transmit:    false,
	})
	if err != nil {
		return models.BracketIDs{}, &BracketError{Cause: err}
	}

	tpID, err := c.session.PlaceOrder(ctx, models.OrderRequest{
		Symbol:      req.Symbol,
		Side:        exit,
		Quantity:    req.Quantity,
		Kind:        models.OrderKindLimit,
		LimitPrice:  req.TakeProfit,
		TimeInForce: req.TimeInForce,
		ParentID:    parentID,
		Transmit:    false,
	})
	if err != nil {
		c.compensate(ctx, parentID)
		return models.BracketIDs{}, &BracketError{Accepted: []int64{parentID}, Cause: err}
	}

	slID, err := c.session.PlaceOrder(ctx, models.OrderRequest{
		Symbol:      req.Symbol,
		Side:        exit,
		Quantity:    req.Quantity,
		Kind:        models.OrderKindStop,
		StopPrice:   req.StopLoss,
		TimeInForce: req.TimeInForce,
		ParentID:    parentID,
		Transmit:    true,
	})
	if err != nil {
		c.compensate(ctx, tpID, parentID)
		return models.BracketIDs{}, &BracketError{Accepted: []int64{parentID, tpID}, Cause: err}
	}

	c.logger.WithFields(logrus.Fields{
		"symbol":      req.Symbol,
		"parent":      parentID,
		"take_profit": tpID,
		"stop_loss":   slID,
	}).Info("Bracket order submitted")
	return models.BracketIDs{Parent: parentID, TakeProfit: tpID, StopLoss: slID}, nil
}

// compensate cancels the given legs best-effort. Not a transaction: a
// cancel that fails here is only logged and the caller still sees the
// bracket error with the accepted ids.
func (c *Coordinator) compensate(ctx context.Context, orderIDs ...int64) {
	for _, id := range orderIDs {
		if err := c.session.CancelOrder(ctx, id); err != nil {
			c.logger.WithError(err).WithField("order_id", id).Warn("Failed to cancel bracket leg")
		}
	}
}
