package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/quantdesk/tradeterm/pkg/models"
	"github.com/sirupsen/logrus"
)

// WSClient talks to a TWS-style gateway bridge over a websocket carrying
// JSON frames. Request frames carry a req_id and receive exactly one
// response frame with the same req_id; frames without a req_id are pushes.
type WSClient struct {
	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool
	handlers  Handlers

	reqSeq  atomic.Int64
	pending map[int64]chan frame
	pmu     sync.Mutex

	timeout time.Duration
	logger  *logrus.Logger
}

type frame struct {
	Type  string          `json:"type"`
	ReqID int64           `json:"req_id,omitempty"`
	Error string          `json:"error,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

func NewWSClient(timeout time.Duration, logger *logrus.Logger) *WSClient {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &WSClient{
		pending: make(map[int64]chan frame),
		timeout: timeout,
		logger:  logger,
	}
}

func (c *WSClient) SetHandlers(h Handlers) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers = h
}

func (c *WSClient) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

type connectPayload struct {
	ClientID int `json:"client_id"`
}

// Connect dials the bridge and performs the client-id handshake. Any prior
// connection is torn down first.
func (c *WSClient) Connect(ctx context.Context, host string, port int, clientID int) (ConnectAck, error) {
	c.Disconnect()

	u := url.URL{Scheme: "ws", Host: fmt.Sprintf("%s:%d", host, port), Path: "/ws"}
	dialer := websocket.Dialer{HandshakeTimeout: c.timeout}

	dialCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	conn, _, err := dialer.DialContext(dialCtx, u.String(), nil)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || dialCtx.Err() != nil {
			return ConnectAck{}, fmt.Errorf("dial %s: %w", u.Host, ErrTimeout)
		}
		return ConnectAck{}, fmt.Errorf("failed to dial gateway at %s: %w", u.Host, err)
	}

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.mu.Unlock()

	go c.readLoop(conn)

	var ack ConnectAck
	if err := c.request(ctx, "connect", connectPayload{ClientID: clientID}, &ack); err != nil {
		c.Disconnect()
		return ConnectAck{}, err
	}
	return ack, nil
}

func (c *WSClient) Disconnect() error {
	c.mu.Lock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.connected = false
	c.mu.Unlock()

	c.failPending()
	return nil
}

// failPending aborts requests still waiting on a response.
func (c *WSClient) failPending() {
	c.pmu.Lock()
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
	c.pmu.Unlock()
}

// request sends one frame and waits for the matching response, bounded by
// ctx and the client timeout. The result data is unmarshaled into out when
// out is non-nil.
func (c *WSClient) request(ctx context.Context, typ string, payload interface{}, out interface{}) error {
	c.mu.Lock()
	conn := c.conn
	connected := c.connected
	c.mu.Unlock()

	if !connected || conn == nil {
		return ErrNotConnected
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode %s request: %w", typ, err)
	}

	id := c.reqSeq.Add(1)
	ch := make(chan frame, 1)
	c.pmu.Lock()
	c.pending[id] = ch
	c.pmu.Unlock()
	defer func() {
		c.pmu.Lock()
		delete(c.pending, id)
		c.pmu.Unlock()
	}()

	c.mu.Lock()
	err = conn.WriteJSON(frame{Type: typ, ReqID: id, Data: data})
	c.mu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to send %s request: %w", typ, err)
	}

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	select {
	case resp, ok := <-ch:
		if !ok {
			return fmt.Errorf("%s request aborted: %w", typ, ErrNotConnected)
		}
		if resp.Error != "" {
			return fmt.Errorf("gateway rejected %s: %s", typ, resp.Error)
		}
		if out != nil {
			if err := json.Unmarshal(resp.Data, out); err != nil {
				return fmt.Errorf("failed to decode %s response: %w", typ, err)
			}
		}
		return nil
	case <-timer.C:
		return fmt.Errorf("%s request after %s: %w", typ, c.timeout, ErrTimeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *WSClient) readLoop(conn *websocket.Conn) {
	for {
		var msg frame
		if err := conn.ReadJSON(&msg); err != nil {
			c.handleDisconnect(conn, err)
			return
		}

		if msg.ReqID != 0 {
			// Claim the pending slot under pmu so a concurrent Disconnect
			// cannot close the channel mid-send.
			c.pmu.Lock()
			ch, ok := c.pending[msg.ReqID]
			if ok {
				delete(c.pending, msg.ReqID)
			}
			c.pmu.Unlock()
			if ok {
				ch <- msg
			}
			continue
		}

		c.dispatch(msg)
	}
}

func (c *WSClient) dispatch(msg frame) {
	c.mu.Lock()
	h := c.handlers
	c.mu.Unlock()

	switch msg.Type {
	case "order_status":
		var upd OrderStatusUpdate
		if err := json.Unmarshal(msg.Data, &upd); err != nil {
			c.logger.WithError(err).Warn("Malformed order_status frame")
			return
		}
		if h.OrderStatus != nil {
			h.OrderStatus(upd)
		}
	case "execution":
		var exec Execution
		if err := json.Unmarshal(msg.Data, &exec); err != nil {
			c.logger.WithError(err).Warn("Malformed execution frame")
			return
		}
		if h.Execution != nil {
			h.Execution(exec)
		}
	case "news":
		var tick NewsTick
		if err := json.Unmarshal(msg.Data, &tick); err != nil {
			c.logger.WithError(err).Warn("Malformed news frame")
			return
		}
		if h.NewsTick != nil {
			h.NewsTick(tick)
		}
	default:
		c.logger.WithField("type", msg.Type).Debug("Ignoring unknown frame type")
	}
}

// handleDisconnect tears the client down after a read failure on conn.
// A read loop left over from a replaced connection must not touch the
// current one, so anything but the active conn is ignored.
func (c *WSClient) handleDisconnect(conn *websocket.Conn, err error) {
	c.mu.Lock()
	if c.conn != conn {
		c.mu.Unlock()
		return
	}
	wasConnected := c.connected
	c.connected = false
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	h := c.handlers
	c.mu.Unlock()

	c.failPending()

	if wasConnected {
		c.logger.WithError(err).Warn("Gateway connection lost")
		if h.Disconnected != nil {
			h.Disconnected(err)
		}
	}
}

type symbolPayload struct {
	Symbol string `json:"symbol"`
}

func (c *WSClient) QualifyContract(ctx context.Context, symbol string) (Contract, error) {
	var contracts []Contract
	if err := c.request(ctx, "qualify_contract", symbolPayload{Symbol: symbol}, &contracts); err != nil {
		return Contract{}, err
	}
	if len(contracts) == 0 {
		return Contract{}, fmt.Errorf("%w: %s", ErrContractNotFound, symbol)
	}
	return contracts[0], nil
}

type placeOrderPayload struct {
	Contract Contract          `json:"contract"`
	OrderID  int64             `json:"order_id"`
	Request  placeOrderRequest `json:"order"`
}

type placeOrderRequest struct {
	Side        models.OrderSide `json:"side"`
	Quantity    int64            `json:"quantity"`
	Kind        models.OrderKind `json:"kind"`
	LimitPrice  float64          `json:"limit_price,omitempty"`
	StopPrice   float64          `json:"stop_price,omitempty"`
	TimeInForce string           `json:"tif,omitempty"`
	ParentID    int64            `json:"parent_id,omitempty"`
	Transmit    bool             `json:"transmit"`
}

func (c *WSClient) PlaceOrder(ctx context.Context, contract Contract, orderID int64, req models.OrderRequest) error {
	payload := placeOrderPayload{
		Contract: contract,
		OrderID:  orderID,
		Request: placeOrderRequest{
			Side:        req.Side,
			Quantity:    req.Quantity,
			Kind:        req.Kind,
			LimitPrice:  req.LimitPrice,
			StopPrice:   req.StopPrice,
			TimeInForce: req.TimeInForce,
			ParentID:    req.ParentID,
			Transmit:    req.Transmit,
		},
	}
	return c.request(ctx, "place_order", payload, nil)
}

type cancelPayload struct {
	OrderID int64 `json:"order_id"`
}

func (c *WSClient) CancelOrder(ctx context.Context, orderID int64) error {
	return c.request(ctx, "cancel_order", cancelPayload{OrderID: orderID}, nil)
}

func (c *WSClient) CancelAll(ctx context.Context) error {
	return c.request(ctx, "cancel_all", struct{}{}, nil)
}

type marketDataResponse struct {
	Symbol        string  `json:"symbol"`
	Last          float64 `json:"last"`
	Bid           float64 `json:"bid"`
	Ask           float64 `json:"ask"`
	Volume        int64   `json:"volume"`
	Change        float64 `json:"change"`
	PercentChange float64 `json:"percent_change"`
}

func (c *WSClient) MarketData(ctx context.Context, symbol string) (models.Quote, error) {
	var resp marketDataResponse
	if err := c.request(ctx, "market_data", symbolPayload{Symbol: symbol}, &resp); err != nil {
		return models.Quote{}, err
	}
	return models.Quote{
		Symbol:        resp.Symbol,
		Last:          resp.Last,
		Bid:           resp.Bid,
		Ask:           resp.Ask,
		Volume:        resp.Volume,
		Change:        resp.Change,
		PercentChange: resp.PercentChange,
		Source:        models.QuoteSourceLive,
		ObservedAt:    time.Now(),
	}, nil
}

func (c *WSClient) AccountSummary(ctx context.Context) (map[string]float64, error) {
	var summary map[string]float64
	if err := c.request(ctx, "account_summary", struct{}{}, &summary); err != nil {
		return nil, err
	}
	return summary, nil
}

func (c *WSClient) Portfolio(ctx context.Context) ([]PortfolioItem, error) {
	var items []PortfolioItem
	if err := c.request(ctx, "portfolio", struct{}{}, &items); err != nil {
		return nil, err
	}
	return items, nil
}

func (c *WSClient) OpenOrders(ctx context.Context) ([]OpenOrder, error) {
	var orders []OpenOrder
	if err := c.request(ctx, "open_orders", struct{}{}, &orders); err != nil {
		return nil, err
	}
	return orders, nil
}

func (c *WSClient) Executions(ctx context.Context) ([]Execution, error) {
	var execs []Execution
	if err := c.request(ctx, "executions", struct{}{}, &execs); err != nil {
		return nil, err
	}
	return execs, nil
}
