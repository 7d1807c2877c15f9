package models

import (
	"time"
)

// QuoteSource identifies which layer of the data cascade produced a quote.
type QuoteSource string

const (
	QuoteSourceLive      QuoteSource = "live"
	QuoteSourceSecondary QuoteSource = "secondary"
	QuoteSourceSynthetic QuoteSource = "synthetic"
)

// Quote is a point-in-time snapshot of a symbol's trading state. A fresh
// Quote replaces the previous one for the symbol; it is never mutated.
// Synthetic sources may produce bid/last/ask out of order, so consumers
// must not assume bid <= last <= ask.
type Quote struct {
	Symbol        string
	Last          float64
	Bid           float64
	Ask           float64
	Volume        int64
	Change        float64
	PercentChange float64
	Source        QuoteSource
	ObservedAt    time.Time
}

// Bar is one aggregation interval from the secondary market-data provider.
type Bar struct {
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    int64
	Timestamp time.Time
}
