package marketdata

import (
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/quantdesk/tradeterm/pkg/models"
)

// Baselines for symbols the terminal ships with; anything else perturbs
// around the default.
var defaultBaselines = map[string]float64{
	"AAPL": 175, "GOOGL": 135, "TSLA": 250, "AMZN": 145,
	"MSFT": 415, "NVDA": 430, "META": 485, "SPY": 450,
	"QQQ": 380, "AMD": 140,
}

const defaultBaseline = 100

// SyntheticSource generates a plausible quote around a per-symbol
// baseline. It is the cascade's terminal layer and never fails, so the
// terminal always has something to render.
type SyntheticSource struct {
	mu        sync.Mutex
	rng       *rand.Rand
	baselines map[string]float64
}

func NewSyntheticSource() *SyntheticSource {
	return &SyntheticSource{
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
		baselines: defaultBaselines,
	}
}

func (s *SyntheticSource) Generate(symbol string) models.Quote {
	s.mu.Lock()
	defer s.mu.Unlock()

	base, ok := s.baselines[symbol]
	if !ok {
		base = defaultBaseline
	}

	last := round2(base + s.rng.Float64()*10 - 5)
	change := round2(s.rng.Float64()*6 - 3)

	return models.Quote{
		Symbol:        symbol,
		Last:          last,
		Bid:           round2(last * 0.999),
		Ask:           round2(last * 1.001),
		Volume:        1_000_000 + s.rng.Int63n(49_000_000),
		Change:        change,
		PercentChange: round2(change / last * 100),
		Source:        models.QuoteSourceSynthetic,
		ObservedAt:    time.Now(),
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
