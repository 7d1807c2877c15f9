package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/quantdesk/tradeterm/pkg/models"
	"golang.org/x/time/rate"
)

// BarSource queries a secondary market-data provider for the current day's
// 1-minute bars and derives a quote from them: last is the final close,
// change is measured against the first bar's open, volume is the day sum.
// Calls are rate limited so polling many symbols stays inside the
// provider's request quota.
type BarSource struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
}

func NewBarSource(baseURL, apiKey string, requestsPerSec float64) *BarSource {
	if requestsPerSec <= 0 {
		requestsPerSec = 5
	}
	return &BarSource{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		limiter:    rate.NewLimiter(rate.Limit(requestsPerSec), 1),
	}
}

func (s *BarSource) Name() string { return "secondary" }

type barsResponse struct {
	Symbol string `json:"symbol"`
	Bars   []struct {
		Open      float64 `json:"open"`
		High      float64 `json:"high"`
		Low       float64 `json:"low"`
		Close     float64 `json:"close"`
		Volume    int64   `json:"volume"`
		Timestamp int64   `json:"timestamp"`
	} `json:"bars"`
}

func (s *BarSource) Quote(ctx context.Context, symbol string) (models.Quote, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return models.Quote{}, err
	}

	u := fmt.Sprintf("%s/v1/bars?symbol=%s&interval=1m&range=1d", s.baseURL, url.QueryEscape(symbol))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return models.Quote{}, err
	}
	if s.apiKey != "" {
		req.Header.Set("X-Api-Key", s.apiKey)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return models.Quote{}, fmt.Errorf("bar request failed for %s: %w", symbol, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return models.Quote{}, fmt.Errorf("bar provider returned %d for %s", resp.StatusCode, symbol)
	}

	var payload barsResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return models.Quote{}, fmt.Errorf("failed to decode bars for %s: %w", symbol, err)
	}
	if len(payload.Bars) == 0 {
		return models.Quote{}, fmt.Errorf("no bars returned for %s", symbol)
	}

	first := payload.Bars[0]
	last := payload.Bars[len(payload.Bars)-1]

	lastPrice := last.Close
	change := lastPrice - first.Open
	percentChange := 0.0
	if first.Open != 0 {
		percentChange = change / first.Open * 100
	}

	var volume int64
	for _, b := range payload.Bars {
		volume += b.Volume
	}

	return models.Quote{
		Symbol:        symbol,
		Last:          lastPrice,
		Bid:           lastPrice * 0.999,
		Ask:           lastPrice * 1.001,
		Volume:        volume,
		Change:        change,
		PercentChange: percentChange,
		Source:        models.QuoteSourceSecondary,
		ObservedAt:    time.Now(),
	}, nil
}
