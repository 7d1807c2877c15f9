package models

import (
	"math"
	"time"
)

// Position is one holding in the account, with unrealized P&L as reported
// or derived from the gateway's portfolio items.
type Position struct {
	Symbol       string
	Quantity     int64
	AvgCost      float64
	CurrentPrice float64
	MarketValue  float64
	PnL          float64
	PnLPct       float64
}

// PnLPercent computes the unrealized P&L percentage the way the terminal
// has always reported it: pnl relative to |marketValue - pnl|, not to cost
// basis. Returns 0 when the denominator is zero.
func PnLPercent(marketValue, pnl float64) float64 {
	denom := math.Abs(marketValue - pnl)
	if denom == 0 {
		return 0
	}
	return pnl / denom * 100
}

// PortfolioSnapshot aggregates the account summary and open positions.
// Demo reports true when the snapshot is canned data served while
// disconnected.
type PortfolioSnapshot struct {
	TotalValue     float64
	DayChange      float64
	DayChangePct   float64
	CashBalance    float64
	BuyingPower    float64
	Positions      []Position
	AccountSummary map[string]float64
	Demo           bool
	AsOf           time.Time
}
