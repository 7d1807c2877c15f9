package models

import (
	"errors"
	"fmt"
	"time"
)

type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

// Opposite returns the logical inverse of the side, used for bracket
// child legs.
func (s OrderSide) Opposite() OrderSide {
	if s == OrderSideBuy {
		return OrderSideSell
	}
	return OrderSideBuy
}

type OrderKind string

const (
	OrderKindMarket  OrderKind = "MKT"
	OrderKindLimit   OrderKind = "LMT"
	OrderKindStop    OrderKind = "STP"
	OrderKindBracket OrderKind = "BRACKET"
)

type OrderStatus string

const (
	OrderStatusSubmitted       OrderStatus = "Submitted"
	OrderStatusAcknowledged    OrderStatus = "Acknowledged"
	OrderStatusPartiallyFilled OrderStatus = "PartiallyFilled"
	OrderStatusFilled          OrderStatus = "Filled"
	OrderStatusCancelled       OrderStatus = "Cancelled"
	OrderStatusRejected        OrderStatus = "Rejected"
)

// Terminal reports whether the status is final. Terminal records remain
// queryable but are no longer mutated.
func (s OrderStatus) Terminal() bool {
	switch s {
	case OrderStatusFilled, OrderStatusCancelled, OrderStatusRejected:
		return true
	}
	return false
}

// OrderRequest describes an order before submission. ParentID and Transmit
// are filled in by the bracket composer; callers placing simple orders
// leave them zero-valued.
type OrderRequest struct {
	Symbol      string
	Side        OrderSide
	Quantity    int64
	Kind        OrderKind
	LimitPrice  float64
	StopPrice   float64
	TakeProfit  float64
	StopLoss    float64
	TimeInForce string
	ParentID    int64
	Transmit    bool
}

// Validate rejects requests that must never reach the gateway. A request
// that fails validation is never partially submitted.
func (r OrderRequest) Validate() error {
	if r.Symbol == "" {
		return errors.New("order request missing symbol")
	}
	if r.Side != OrderSideBuy && r.Side != OrderSideSell {
		return fmt.Errorf("invalid order side %q", r.Side)
	}
	if r.Quantity <= 0 {
		return fmt.Errorf("order quantity must be positive, got %d", r.Quantity)
	}
	switch r.Kind {
	case OrderKindMarket:
	case OrderKindLimit:
		if r.LimitPrice <= 0 {
			return errors.New("limit order requires a positive limit price")
		}
	case OrderKindStop:
		if r.StopPrice <= 0 {
			return errors.New("stop order requires a positive stop price")
		}
	case OrderKindBracket:
		if r.LimitPrice <= 0 || r.TakeProfit <= 0 || r.StopLoss <= 0 {
			return errors.New("bracket order requires entry, take-profit and stop-loss prices")
		}
	default:
		return fmt.Errorf("unknown order kind %q", r.Kind)
	}
	return nil
}

// OrderRecord tracks a submitted order through its status transitions.
// Status changes are driven only by gateway-pushed events.
type OrderRecord struct {
	OrderID   int64
	Request   OrderRequest
	Status    OrderStatus
	Filled    int64
	Legs      []int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// BracketIDs holds the order ids of a submitted bracket group.
type BracketIDs struct {
	Parent     int64
	TakeProfit int64
	StopLoss   int64
}
