package poller

import (
	"github.com/quantdesk/tradeterm/pkg/gateway"
	"github.com/quantdesk/tradeterm/pkg/models"
)

type EventType string

const (
	EventQuote      EventType = "quote"
	EventPortfolio  EventType = "portfolio"
	EventOrders     EventType = "orders"
	EventExecutions EventType = "executions"
	EventError      EventType = "error"
)

// Event is one asynchronous result emitted by the scheduler. Exactly one
// payload field is set, per Type.
type Event struct {
	Type       EventType
	Symbol     string
	Quote      *models.Quote
	Portfolio  *models.PortfolioSnapshot
	Orders     []gateway.OpenOrder
	Executions []gateway.Execution
	Err        error
}
