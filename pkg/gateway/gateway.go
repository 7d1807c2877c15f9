package gateway

import (
	"context"
	"errors"

	"github.com/quantdesk/tradeterm/pkg/models"
)

var (
	ErrNotConnected     = errors.New("gateway not connected")
	ErrContractNotFound = errors.New("contract could not be qualified")
	ErrTimeout          = errors.New("gateway request timed out")
)

// ConnectAck is the gateway's handshake response. NextOrderID seeds the
// session's order id allocator.
type ConnectAck struct {
	NextOrderID int64  `json:"next_order_id"`
	Account     string `json:"account"`
}

// Contract is an instrument qualified by the gateway.
type Contract struct {
	ConID    int64  `json:"con_id"`
	Symbol   string `json:"symbol"`
	Exchange string `json:"exchange"`
	Currency string `json:"currency"`
}

// PortfolioItem is one holding as reported by the gateway portfolio query.
type PortfolioItem struct {
	Symbol        string  `json:"symbol"`
	Position      int64   `json:"position"`
	MarketPrice   float64 `json:"market_price"`
	MarketValue   float64 `json:"market_value"`
	AvgCost       float64 `json:"avg_cost"`
	UnrealizedPnL float64 `json:"unrealized_pnl"`
}

// OpenOrder is one working order as reported by the gateway.
type OpenOrder struct {
	OrderID  int64              `json:"order_id"`
	Symbol   string             `json:"symbol"`
	Side     models.OrderSide   `json:"side"`
	Kind     models.OrderKind   `json:"kind"`
	Quantity int64              `json:"quantity"`
	Status   models.OrderStatus `json:"status"`
}

// OrderStatusUpdate is pushed by the gateway when an order transitions.
type OrderStatusUpdate struct {
	OrderID int64              `json:"order_id"`
	Status  models.OrderStatus `json:"status"`
	Filled  int64              `json:"filled"`
}

// Execution is pushed by the gateway when an order (partially) fills.
type Execution struct {
	OrderID    int64   `json:"order_id"`
	Symbol     string  `json:"symbol"`
	Side       string  `json:"side"`
	Quantity   int64   `json:"quantity"`
	Price      float64 `json:"price"`
	Commission float64 `json:"commission"`
	Timestamp  int64   `json:"timestamp"`
}

// NewsTick is pushed by the gateway news stream.
type NewsTick struct {
	Provider  string `json:"provider"`
	ArticleID string `json:"article_id"`
	Headline  string `json:"headline"`
	Timestamp int64  `json:"timestamp"`
}

// Handlers receives gateway push events. All fields are optional; nil
// handlers are skipped. Handlers are invoked from the gateway's read
// goroutine, in the order the gateway produced the events.
type Handlers struct {
	OrderStatus  func(OrderStatusUpdate)
	Execution    func(Execution)
	NewsTick     func(NewsTick)
	Disconnected func(error)
}

// Client is the transport to the brokerage gateway. Implementations are
// opaque to the rest of the engine; the session layer owns all order and
// connection bookkeeping on top of it.
type Client interface {
	Connect(ctx context.Context, host string, port int, clientID int) (ConnectAck, error)
	Disconnect() error
	Connected() bool
	SetHandlers(h Handlers)

	QualifyContract(ctx context.Context, symbol string) (Contract, error)
	PlaceOrder(ctx context.Context, contract Contract, orderID int64, req models.OrderRequest) error
	CancelOrder(ctx context.Context, orderID int64) error
	CancelAll(ctx context.Context) error

	MarketData(ctx context.Context, symbol string) (models.Quote, error)
	AccountSummary(ctx context.Context) (map[string]float64, error)
	Portfolio(ctx context.Context) ([]PortfolioItem, error)
	OpenOrders(ctx context.Context) ([]OpenOrder, error)
	Executions(ctx context.Context) ([]Execution, error)
}
