package models

import (
	"time"
)

// Fill is one execution event pushed by the gateway. Immutable; appended
// to the trade ledger exactly once.
type Fill struct {
	OrderID    int64
	Quantity   int64
	Price      float64
	Commission float64
	Timestamp  time.Time
}

// NewsItem is a headline pushed by the gateway news stream.
type NewsItem struct {
	Provider   string
	ArticleID  string
	Headline   string
	Timestamp  time.Time
	ReceivedAt time.Time
}
