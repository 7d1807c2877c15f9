package marketdata

import (
	"context"

	"github.com/quantdesk/tradeterm/pkg/gateway"
	"github.com/quantdesk/tradeterm/pkg/models"
)

// LiveSource serves quotes from the brokerage gateway's market data feed.
// Unusable whenever the gateway session is down.
type LiveSource struct {
	client gateway.Client
}

func NewLiveSource(client gateway.Client) *LiveSource {
	return &LiveSource{client: client}
}

func (s *LiveSource) Name() string { return "live" }

func (s *LiveSource) Quote(ctx context.Context, symbol string) (models.Quote, error) {
	if !s.client.Connected() {
		return models.Quote{}, gateway.ErrNotConnected
	}
	return s.client.MarketData(ctx, symbol)
}
