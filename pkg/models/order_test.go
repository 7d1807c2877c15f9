package models

import (
	"testing"
)

func TestOrderSideOpposite(t *testing.T) {
	if OrderSideBuy.Opposite() != OrderSideSell {
		t.Error("buy should invert to sell")
	}
	if OrderSideSell.Opposite() != OrderSideBuy {
		t.Error("sell should invert to buy")
	}
}

func TestOrderStatusTerminal(t *testing.T) {
	terminal := []OrderStatus{OrderStatusFilled, OrderStatusCancelled, OrderStatusRejected}
	for _, s := range terminal {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	open := []OrderStatus{OrderStatusSubmitted, OrderStatusAcknowledged, OrderStatusPartiallyFilled}
	for _, s := range open {
		if s.Terminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}

func TestOrderRequestValidate(t *testing.T) {
	valid := OrderRequest{Symbol: "AAPL", Side: OrderSideBuy, Quantity: 10, Kind: OrderKindMarket}
	if err := valid.Validate(); err != nil {
		t.Errorf("valid market order rejected: %v", err)
	}

	cases := map[string]OrderRequest{
		"missing symbol":      {Side: OrderSideBuy, Quantity: 10, Kind: OrderKindMarket},
		"zero quantity":       {Symbol: "AAPL", Side: OrderSideBuy, Kind: OrderKindMarket},
		"negative quantity":   {Symbol: "AAPL", Side: OrderSideBuy, Quantity: -5, Kind: OrderKindMarket},
		"bad side":            {Symbol: "AAPL", Side: "SHORT", Quantity: 10, Kind: OrderKindMarket},
		"limit without price": {Symbol: "AAPL", Side: OrderSideBuy, Quantity: 10, Kind: OrderKindLimit},
		"stop without price":  {Symbol: "AAPL", Side: OrderSideBuy, Quantity: 10, Kind: OrderKindStop},
		"unknown kind":        {Symbol: "AAPL", Side: OrderSideBuy, Quantity: 10, Kind: "TRAIL"},
		"incomplete bracket":  {Symbol: "AAPL", Side: OrderSideBuy, Quantity: 10, Kind: OrderKindBracket, LimitPrice: 150, TakeProfit: 160},
	}
	for name, req := range cases {
		if err := req.Validate(); err == nil {
			t.Errorf("%s: expected validation error", name)
		}
	}
}

func TestPnLPercent(t *testing.T) {
	// 2500 pnl on a 17500 market value position: basis is 15000.
	if got := PnLPercent(17500, 2500); got < 16.66 || got > 16.67 {
		t.Errorf("got %f, want ~16.67", got)
	}
	// Short position with negative market value.
	if got := PnLPercent(-14256, 294); got < 2.01 || got > 2.03 {
		t.Errorf("short position pct = %f, want ~2.02", got)
	}
	if got := PnLPercent(1000, 1000); got != 0 {
		t.Errorf("zero denominator must yield 0, got %f", got)
	}
}
