// Package session owns the brokerage connection lifecycle and all order
// and account bookkeeping on top of the gateway transport: order id
// allocation, order records, portfolio aggregation, the news buffer, and
// dispatch of gateway-pushed events to registered observers and to the
// trade ledger.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/quantdesk/tradeterm/pkg/gateway"
	"github.com/quantdesk/tradeterm/pkg/ledger"
	"github.com/quantdesk/tradeterm/pkg/models"
	"github.com/sirupsen/logrus"
)

type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
)

// Endpoint identifies the gateway the session talks to.
type Endpoint struct {
	Host     string
	Port     int
	ClientID int
}

// Observer receives session events. Nil fields are skipped. Callbacks run
// on the gateway's event goroutine and must not block.
type Observer struct {
	OrderStatus func(models.OrderRecord)
	Fill        func(symbol string, side models.OrderSide, fill models.Fill)
	News        func(models.NewsItem)
}

const newsBufferCap = 200

type Manager struct {
	client gateway.Client
	trades *ledger.Ledger
	logger *logrus.Logger

	autoReconnect bool

	mu           sync.Mutex
	state        State
	endpoint     Endpoint
	account      string
	nextOrderID  int64
	orders       map[int64]*models.OrderRecord
	lastSnapshot *models.PortfolioSnapshot
	news         []models.NewsItem
	observers    []Observer
	wantSession  bool
}

func NewManager(client gateway.Client, trades *ledger.Ledger, autoReconnect bool, logger *logrus.Logger) *Manager {
	m := &Manager{
		client:        client,
		trades:        trades,
		logger:        logger,
		autoReconnect: autoReconnect,
		state:         StateDisconnected,
		orders:        make(map[int64]*models.OrderRecord),
	}
	client.SetHandlers(gateway.Handlers{
		OrderStatus:  m.onOrderStatus,
		Execution:    m.onExecution,
		NewsTick:     m.onNewsTick,
		Disconnected: m.onDisconnected,
	})
	return m
}

// Observe registers an observer for session events.
func (m *Manager) Observe(o Observer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observers = append(m.observers, o)
}

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Manager) Connected() bool {
	return m.State() == StateConnected
}

func (m *Manager) NextOrderID() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.nextOrderID
}

// Connect establishes the gateway session. Idempotent: any prior live
// connection is torn down first. The gateway's reported next order id
// seeds the session allocator.
func (m *Manager) Connect(ctx context.Context, host string, port int, clientID int) error {
	m.mu.Lock()
	m.state = StateConnecting
	m.endpoint = Endpoint{Host: host, Port: port, ClientID: clientID}
	m.wantSession = true
	m.mu.Unlock()

	log := m.logger.WithFields(logrus.Fields{
		"host":      host,
		"port":      port,
		"client_id": clientID,
	})
	log.Info("Connecting to gateway")

	ack, err := m.client.Connect(ctx, host, port, clientID)
	if err != nil {
		m.mu.Lock()
		m.state = StateDisconnected
		m.mu.Unlock()

		if errors.Is(err, gateway.ErrTimeout) {
			return fmt.Errorf("%w: %v", ErrConnectTimeout, err)
		}
		return fmt.Errorf("%w: %v", ErrConnectRejected, err)
	}

	m.mu.Lock()
	m.state = StateConnected
	m.account = ack.Account
	m.nextOrderID = ack.NextOrderID
	if m.nextOrderID < 1 {
		m.nextOrderID = 1
	}
	m.mu.Unlock()

	log.WithField("next_order_id", ack.NextOrderID).Info("Connected to gateway")
	return nil
}

// Disconnect tears the session down. Best effort: it always succeeds from
// the caller's perspective. The order id allocator and in-memory order
// records are reset; the trade ledger is untouched.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	m.wantSession = false
	m.state = StateDisconnected
	m.nextOrderID = 0
	m.orders = make(map[int64]*models.OrderRecord)
	m.mu.Unlock()

	if err := m.client.Disconnect(); err != nil {
		m.logger.WithError(err).Debug("Gateway disconnect error")
	}
	m.logger.Info("Disconnected from gateway")
}

// PlaceOrder qualifies the instrument, allocates an order id and submits.
// The order record starts in Submitted; all later transitions come from
// gateway pushes.
func (m *Manager) PlaceOrder(ctx context.Context, req models.OrderRequest) (int64, error) {
	if !m.Connected() {
		return 0, ErrNotConnected
	}

	contract, err := m.client.QualifyContract(ctx, req.Symbol)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrContractUnresolved, err)
	}

	// The record goes in before the gateway call: the gateway may push a
	// status for the new order on the event stream before PlaceOrder
	// returns, and that push must find the record.
	now := time.Now()
	rec := &models.OrderRecord{
		Request:   req,
		Status:    models.OrderStatusSubmitted,
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.mu.Lock()
	orderID := m.nextOrderID
	m.nextOrderID++
	rec.OrderID = orderID
	m.orders[orderID] = rec
	if req.ParentID != 0 {
		if parent, ok := m.orders[req.ParentID]; ok {
			parent.Legs = append(parent.Legs, orderID)
		}
	}
	m.mu.Unlock()

	if err := m.client.PlaceOrder(ctx, contract, orderID, req); err != nil {
		m.mu.Lock()
		delete(m.orders, orderID)
		if req.ParentID != 0 {
			if parent, ok := m.orders[req.ParentID]; ok {
				for i, leg := range parent.Legs {
					if leg == orderID {
						parent.Legs = append(parent.Legs[:i], parent.Legs[i+1:]...)
						break
					}
				}
			}
		}
		m.mu.Unlock()
		return 0, fmt.Errorf("%w: %v", ErrGatewayRejected, err)
	}

	m.logger.WithFields(logrus.Fields{
		"order_id": orderID,
		"symbol":   req.Symbol,
		"side":     req.Side,
		"quantity": req.Quantity,
		"kind":     req.Kind,
	}).Info("Order placed")
	return orderID, nil
}

// CancelOrder requests cancellation of a single working order.
func (m *Manager) CancelOrder(ctx context.Context, orderID int64) error {
	if !m.Connected() {
		return ErrNotConnected
	}
	if err := m.client.CancelOrder(ctx, orderID); err != nil {
		return fmt.Errorf("%w: %v", ErrGatewayRejected, err)
	}
	return nil
}

// CancelAll requests bulk cancellation of every working order. Fire and
// forget: final statuses arrive on the event stream.
func (m *Manager) CancelAll(ctx context.Context) error {
	if !m.Connected() {
		return ErrNotConnected
	}
	if err := m.client.CancelAll(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrGatewayRejected, err)
	}
	m.logger.Info("Requested cancellation of all orders")
	return nil
}

// AccountSnapshot aggregates the live account summary and position list.
// Disconnected sessions degrade to the last known snapshot, or to the
// demo snapshot when none exists; reads never fail outright.
func (m *Manager) AccountSnapshot(ctx context.Context) models.PortfolioSnapshot {
	if !m.Connected() {
		return m.cachedOrDemo()
	}

	summary, err := m.client.AccountSummary(ctx)
	if err != nil {
		m.logger.WithError(err).Warn("Account summary query failed, serving cached snapshot")
		return m.cachedOrDemo()
	}
	items, err := m.client.Portfolio(ctx)
	if err != nil {
		m.logger.WithError(err).Warn("Portfolio query failed, serving cached snapshot")
		return m.cachedOrDemo()
	}

	snap := models.PortfolioSnapshot{
		TotalValue:     summary["NetLiquidation"],
		CashBalance:    summary["TotalCashValue"],
		BuyingPower:    summary["BuyingPower"],
		AccountSummary: summary,
		AsOf:           time.Now(),
	}
	for _, item := range items {
		if item.Position == 0 {
			continue
		}
		snap.Positions = append(snap.Positions, models.Position{
			Symbol:       item.Symbol,
			Quantity:     item.Position,
			AvgCost:      item.AvgCost,
			CurrentPrice: item.MarketPrice,
			MarketValue:  item.MarketValue,
			PnL:          item.UnrealizedPnL,
			PnLPct:       models.PnLPercent(item.MarketValue, item.UnrealizedPnL),
		})
	}

	m.mu.Lock()
	m.lastSnapshot = &snap
	m.mu.Unlock()
	return snap
}

func (m *Manager) cachedOrDemo() models.PortfolioSnapshot {
	m.mu.Lock()
	cached := m.lastSnapshot
	m.mu.Unlock()
	if cached != nil {
		return *cached
	}
	return demoSnapshot()
}

// OpenOrders returns the gateway's working orders, or nothing while
// disconnected.
func (m *Manager) OpenOrders(ctx context.Context) ([]gateway.OpenOrder, error) {
	if !m.Connected() {
		return nil, nil
	}
	return m.client.OpenOrders(ctx)
}

// Executions returns recent gateway executions, or nothing while
// disconnected.
func (m *Manager) Executions(ctx context.Context) ([]gateway.Execution, error) {
	if !m.Connected() {
		return nil, nil
	}
	return m.client.Executions(ctx)
}

// Order returns a copy of the record for orderID.
func (m *Manager) Order(orderID int64) (models.OrderRecord, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.orders[orderID]
	if !ok {
		return models.OrderRecord{}, false
	}
	return *rec, true
}

// Orders returns copies of every order record in the current session.
func (m *Manager) Orders() []models.OrderRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.OrderRecord, 0, len(m.orders))
	for _, rec := range m.orders {
		out = append(out, *rec)
	}
	return out
}

// News returns buffered headlines, newest first, optionally filtered by a
// case-insensitive symbol match against the headline text.
func (m *Manager) News(symbol string) []models.NewsItem {
	m.mu.Lock()
	items := make([]models.NewsItem, len(m.news))
	copy(items, m.news)
	m.mu.Unlock()

	out := make([]models.NewsItem, 0, len(items))
	for i := len(items) - 1; i >= 0; i-- {
		if symbol == "" || strings.Contains(strings.ToUpper(items[i].Headline), strings.ToUpper(symbol)) {
			out = append(out, items[i])
		}
	}
	return out
}

func (m *Manager) onOrderStatus(upd gateway.OrderStatusUpdate) {
	m.mu.Lock()
	rec, ok := m.orders[upd.OrderID]
	if !ok {
		m.mu.Unlock()
		m.logger.WithField("order_id", upd.OrderID).Warn("Status for unknown order, ignoring")
		return
	}
	if rec.Status.Terminal() {
		m.mu.Unlock()
		return
	}
	rec.Status = upd.Status
	rec.Filled = upd.Filled
	rec.UpdatedAt = time.Now()
	snapshot := *rec
	observers := m.observerList()
	m.mu.Unlock()

	m.logger.WithFields(logrus.Fields{
		"order_id": upd.OrderID,
		"status":   upd.Status,
	}).Info("Order status update")

	for _, o := range observers {
		if o.OrderStatus != nil {
			o.OrderStatus(snapshot)
		}
	}
}

func (m *Manager) onExecution(exec gateway.Execution) {
	fill := models.Fill{
		OrderID:    exec.OrderID,
		Quantity:   exec.Quantity,
		Price:      exec.Price,
		Commission: exec.Commission,
		Timestamp:  time.Unix(exec.Timestamp, 0),
	}

	symbol := exec.Symbol
	side := models.OrderSide(exec.Side)
	m.mu.Lock()
	if rec, ok := m.orders[exec.OrderID]; ok {
		symbol = rec.Request.Symbol
		side = rec.Request.Side
	}
	observers := m.observerList()
	m.mu.Unlock()

	m.logger.WithFields(logrus.Fields{
		"order_id": exec.OrderID,
		"symbol":   symbol,
		"quantity": exec.Quantity,
		"price":    exec.Price,
	}).Info("Execution")

	if err := m.trades.Append(fill, symbol, side); err != nil {
		m.logger.WithError(err).Error("Failed to persist fill")
	}

	for _, o := range observers {
		if o.Fill != nil {
			o.Fill(symbol, side, fill)
		}
	}
}

func (m *Manager) onNewsTick(tick gateway.NewsTick) {
	item := models.NewsItem{
		Provider:   tick.Provider,
		ArticleID:  tick.ArticleID,
		Headline:   tick.Headline,
		Timestamp:  time.Unix(tick.Timestamp, 0),
		ReceivedAt: time.Now(),
	}

	m.mu.Lock()
	m.news = append(m.news, item)
	if len(m.news) > newsBufferCap {
		m.news = m.news[len(m.news)-newsBufferCap:]
	}
	observers := m.observerList()
	m.mu.Unlock()

	for _, o := range observers {
		if o.News != nil {
			o.News(item)
		}
	}
}

func (m *Manager) onDisconnected(err error) {
	m.mu.Lock()
	m.state = StateDisconnected
	want := m.wantSession
	endpoint := m.endpoint
	m.mu.Unlock()

	if !want || !m.autoReconnect {
		return
	}

	go func() {
		b := backoff.NewExponentialBackOff()
		b.InitialInterval = time.Second
		b.MaxInterval = 30 * time.Second
		b.MaxElapsedTime = 5 * time.Minute

		err := backoff.Retry(func() error {
			m.mu.Lock()
			want := m.wantSession
			m.mu.Unlock()
			if !want {
				return backoff.Permanent(errors.New("session closed"))
			}
			return m.Connect(context.Background(), endpoint.Host, endpoint.Port, endpoint.ClientID)
		}, b)
		if err != nil {
			m.logger.WithError(err).Error("Gave up reconnecting to gateway")
		}
	}()
}

// observerList must be called with m.mu held.
func (m *Manager) observerList() []Observer {
	out := make([]Observer, len(m.observers))
	copy(out, m.observers)
	return out
}
