// Package api exposes the engine state over HTTP for presentation
// clients. The server subscribes to the polling scheduler's event stream
// and serves from its own cache, so a request never blocks on the worker
// and the worker never blocks on a request.
package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/quantdesk/tradeterm/pkg/ledger"
	"github.com/quantdesk/tradeterm/pkg/models"
	"github.com/quantdesk/tradeterm/pkg/orders"
	"github.com/quantdesk/tradeterm/pkg/poller"
	"github.com/quantdesk/tradeterm/pkg/session"
	"github.com/sirupsen/logrus"
)

type Server struct {
	session     *session.Manager
	coordinator *orders.Coordinator
	scheduler   *poller.Scheduler
	trades      *ledger.Ledger
	logger      *logrus.Logger
	port        string
	authSecret  string

	mu        sync.RWMutex
	quotes    map[string]models.Quote
	portfolio *models.PortfolioSnapshot
}

func NewServer(sess *session.Manager, coord *orders.Coordinator, sched *poller.Scheduler, trades *ledger.Ledger, port, authSecret string, logger *logrus.Logger) *Server {
	return &Server{
		session:     sess,
		coordinator: coord,
		scheduler:   sched,
		trades:      trades,
		logger:      logger,
		port:        port,
		authSecret:  authSecret,
		quotes:      make(map[string]models.Quote),
	}
}

// Start consumes scheduler events and serves HTTP until the listener
// fails.
func (s *Server) Start() error {
	go s.consume(s.scheduler.Subscribe(256))

	mux := http.NewServeMux()
	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/quotes", s.handleQuotes)
	mux.HandleFunc("/api/portfolio", s.handlePortfolio)
	mux.HandleFunc("/api/orders", s.handleOrders)
	mux.HandleFunc("/api/orders/cancel_all", s.handleCancelAll)
	mux.HandleFunc("/api/select", s.handleSelect)
	mux.HandleFunc("/api/trades", s.handleTrades)
	mux.HandleFunc("/api/news", s.handleNews)

	handler := corsMiddleware(authMiddleware(s.authSecret, mux))

	s.logger.Infof("Starting API server on port %s", s.port)
	return http.ListenAndServe(":"+s.port, handler)
}

func (s *Server) consume(events <-chan poller.Event) {
	for ev := range events {
		switch ev.Type {
		case poller.EventQuote:
			if ev.Quote == nil {
				continue
			}
			s.coordinator.OnQuote(*ev.Quote)
			s.mu.Lock()
			s.quotes[ev.Symbol] = *ev.Quote
			s.mu.Unlock()
		case poller.EventPortfolio:
			if ev.Portfolio == nil {
				continue
			}
			s.mu.Lock()
			s.portfolio = ev.Portfolio
			s.mu.Unlock()
		case poller.EventError:
			s.logger.WithError(ev.Err).WithField("symbol", ev.Symbol).Debug("Poll error event")
		}
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"session":   s.session.State(),
		"timestamp": time.Now().UTC(),
	})
}

func (s *Server) handleQuotes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if symbol := r.URL.Query().Get("symbol"); symbol != "" {
		quote, ok := s.quotes[symbol]
		if !ok {
			http.Error(w, "no quote for symbol", http.StatusNotFound)
			return
		}
		s.writeJSON(w, http.StatusOK, quote)
		return
	}

	out := make([]models.Quote, 0, len(s.quotes))
	for _, q := range s.quotes {
		out = append(out, q)
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handlePortfolio(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.mu.RLock()
	snap := s.portfolio
	s.mu.RUnlock()

	if snap == nil {
		http.Error(w, "no portfolio snapshot yet", http.StatusServiceUnavailable)
		return
	}
	s.writeJSON(w, http.StatusOK, snap)
}

type placeOrderRequest struct {
	Symbol      string  `json:"symbol"`
	Side        string  `json:"side"`
	Quantity    int64   `json:"quantity"`
	Kind        string  `json:"kind"`
	LimitPrice  float64 `json:"limit_price"`
	StopPrice   float64 `json:"stop_price"`
	TakeProfit  float64 `json:"take_profit"`
	StopLoss    float64 `json:"stop_loss"`
	TimeInForce string  `json:"tif"`
}

func (s *Server) handleOrders(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.writeJSON(w, http.StatusOK, s.session.Orders())
	case http.MethodPost:
		var req placeOrderRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		result, err := s.coordinator.Submit(r.Context(), models.OrderRequest{
			Symbol:      req.Symbol,
			Side:        models.OrderSide(req.Side),
			Quantity:    req.Quantity,
			Kind:        models.OrderKind(req.Kind),
			LimitPrice:  req.LimitPrice,
			StopPrice:   req.StopPrice,
			TakeProfit:  req.TakeProfit,
			StopLoss:    req.StopLoss,
			TimeInForce: req.TimeInForce,
		})
		if err != nil {
			s.writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
			return
		}
		s.writeJSON(w, http.StatusOK, result)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleCancelAll(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := s.session.CancelAll(r.Context()); err != nil {
		s.writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "cancel requested"})
}

type selectRequest struct {
	Symbol string `json:"symbol"`
}

func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req selectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Symbol == "" {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	s.coordinator.Select(req.Symbol)
	s.scheduler.Watch(req.Symbol)
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"selected": req.Symbol,
		"ready":    s.coordinator.Ready(req.Symbol),
	})
}

func (s *Server) handleTrades(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"trades":    s.trades.All(),
		"positions": s.trades.Positions(),
	})
}

func (s *Server) handleNews(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.writeJSON(w, http.StatusOK, s.session.News(r.URL.Query().Get("symbol")))
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.WithError(err).Error("Failed to encode response")
	}
}
