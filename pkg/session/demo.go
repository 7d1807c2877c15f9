package session

import (
	"time"

	"github.com/quantdesk/tradeterm/pkg/models"
)

// demoSnapshot is what the terminal shows while disconnected with no live
// snapshot cached. Fixed numbers, so paper-trading screens look sane.
func demoSnapshot() models.PortfolioSnapshot {
	return models.PortfolioSnapshot{
		TotalValue:   125450.00,
		DayChange:    2340.50,
		DayChangePct: 1.90,
		CashBalance:  15230.00,
		BuyingPower:  45690.00,
		Positions: []models.Position{
			{Symbol: "AAPL", Quantity: 100, AvgCost: 150.00, CurrentPrice: 175.43, MarketValue: 17543.00, PnL: 2543.00, PnLPct: 16.95},
			{Symbol: "TSLA", Quantity: 50, AvgCost: 220.00, CurrentPrice: 248.50, MarketValue: 12425.00, PnL: 1425.00, PnLPct: 12.95},
			{Symbol: "NVDA", Quantity: 25, AvgCost: 380.00, CurrentPrice: 432.10, MarketValue: 10802.50, PnL: 1302.50, PnLPct: 13.71},
			{Symbol: "META", Quantity: -30, AvgCost: 485.00, CurrentPrice: 475.20, MarketValue: -14256.00, PnL: 294.00, PnLPct: 2.02},
		},
		AccountSummary: map[string]float64{
			"NetLiquidation": 125450.00,
			"TotalCashValue": 15230.00,
			"BuyingPower":    45690.00,
			"UnrealizedPnL":  5564.50,
			"RealizedPnL":    1250.00,
		},
		Demo: true,
		AsOf: time.Now(),
	}
}
