package orders

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/quantdesk/tradeterm/pkg/models"
	"github.com/sirupsen/logrus"
)

type fakePlacer struct {
	nextID    int64
	failAt    int   // fail the nth PlaceOrder call (1-based), 0 = never
	calls     int
	placed    []models.OrderRequest
	placedIDs []int64
	cancelled []int64
}

func (f *fakePlacer) PlaceOrder(ctx context.Context, req models.OrderRequest) (int64, error) {
	f.calls++
	if f.failAt != 0 && f.calls == f.failAt {
		return 0, errors.New("gateway rejected the order")
	}
	f.nextID++
	f.placed = append(f.placed, req)
	f.placedIDs = append(f.placedIDs, f.nextID)
	return f.nextID, nil
}

func (f *fakePlacer) CancelOrder(ctx context.Context, orderID int64) error {
	f.cancelled = append(f.cancelled, orderID)
	return nil
}

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

func readyCoordinator(placer *fakePlacer, symbol string) *Coordinator {
	c := NewCoordinator(placer, time.Minute, testLogger())
	c.Select(symbol)
	c.OnQuote(models.Quote{Symbol: symbol, Last: 150, ObservedAt: time.Now()})
	return c
}

func TestSubmitWithoutMarketData(t *testing.T) {
	placer := &fakePlacer{}
	c := NewCoordinator(placer, time.Minute, testLogger())
	c.Select("AAPL")

	_, err := c.Submit(context.Background(), models.OrderRequest{
		Symbol: "AAPL", Side: models.OrderSideBuy, Quantity: 10, Kind: models.OrderKindMarket,
	})
	if !errors.Is(err, ErrNoMarketData) {
		t.Fatalf("expected ErrNoMarketData before any quote, got %v", err)
	}
	if placer.calls != 0 {
		t.Error("nothing may reach the session without market data")
	}
}

func TestSubmitRejectsStaleQuote(t *testing.T) {
	placer := &fakePlacer{}
	c := NewCoordinator(placer, time.Minute, testLogger())
	c.Select("AAPL")
	c.OnQuote(models.Quote{Symbol: "AAPL", Last: 150, ObservedAt: time.Now().Add(-2 * time.Minute)})

	_, err := c.Submit(context.Background(), models.OrderRequest{
		Symbol: "AAPL", Side: models.OrderSideBuy, Quantity: 10, Kind: models.OrderKindMarket,
	})
	if !errors.Is(err, ErrNoMarketData) {
		t.Fatalf("expected ErrNoMarketData for stale quote, got %v", err)
	}
}

func TestSymbolSwitchResetsPriceState(t *testing.T) {
	placer := &fakePlacer{}
	c := readyCoordinator(placer, "AAPL")

	if !c.Ready("AAPL") {
		t.Fatal("fresh quote should enable placement")
	}

	// Switching to B must disable placement even though A's quote is cached.
	c.Select("MSFT")
	if c.Ready("MSFT") {
		t.Fatal("placement must stay disabled until a fresh quote for the new symbol arrives")
	}
	if _, ok := c.Quote(); ok {
		t.Error("cached quote must be cleared on symbol switch")
	}

	// A quote for the old symbol must not re-enable it.
	c.OnQuote(models.Quote{Symbol: "AAPL", Last: 151, ObservedAt: time.Now()})
	if c.Ready("MSFT") {
		t.Fatal("old symbol's quote must not satisfy the new selection")
	}

	c.OnQuote(models.Quote{Symbol: "MSFT", Last: 410, ObservedAt: time.Now()})
	if !c.Ready("MSFT") {
		t.Fatal("fresh quote for the new symbol should re-enable placement")
	}
}

func TestSubmitSimpleOrder(t *testing.T) {
	placer := &fakePlacer{}
	c := readyCoordinator(placer, "AAPL")

	result, err := c.Submit(context.Background(), models.OrderRequest{
		Symbol: "AAPL", Side: models.OrderSideBuy, Quantity: 100,
		Kind: models.OrderKindLimit, LimitPrice: 149.5, TimeInForce: "DAY",
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if result.Bracket != nil {
		t.Error("simple order must not produce bracket ids")
	}
	if len(placer.placed) != 1 {
		t.Fatalf("expected exactly one submission, got %d", len(placer.placed))
	}
	got := placer.placed[0]
	if got.Kind != models.OrderKindLimit || got.LimitPrice != 149.5 || !got.Transmit {
		t.Errorf("simple order malformed: %+v", got)
	}
}

func TestSubmitValidation(t *testing.T) {
	placer := &fakePlacer{}
	c := readyCoordinator(placer, "AAPL")

	cases := []models.OrderRequest{
		{Symbol: "AAPL", Side: models.OrderSideBuy, Quantity: 0, Kind: models.OrderKindMarket},
		{Symbol: "AAPL", Side: "HOLD", Quantity: 1, Kind: models.OrderKindMarket},
		{Symbol: "AAPL", Side: models.OrderSideBuy, Quantity: 1, Kind: models.OrderKindLimit},
		{Symbol: "AAPL", Side: models.OrderSideBuy, Quantity: 1, Kind: models.OrderKindBracket, LimitPrice: 150},
	}
	for _, req := range cases {
		if _, err := c.Submit(context.Background(), req); err == nil {
			t.Errorf("request %+v should fail validation", req)
		}
	}
	if placer.calls != 0 {
		t.Error("invalid requests must never be partially submitted")
	}
}

func TestSubmitBracket(t *testing.T) {
	placer := &fakePlacer{}
	c := readyCoordinator(placer, "AAPL")

	result, err := c.Submit(context.Background(), models.OrderRequest{
		Symbol: "AAPL", Side: models.OrderSideBuy, Quantity: 100,
		Kind: models.OrderKindBracket, LimitPrice: 150, TakeProfit: 160, StopLoss: 145,
	})
	if err != nil {
		t.Fatalf("submit bracket: %v", err)
	}
	if result.Bracket == nil {
		t.Fatal("bracket submission must return bracket ids")
	}
	if len(placer.placed) != 3 {
		t.Fatalf("expected 3 legs, got %d", len(placer.placed))
	}

	parent, tp, sl := placer.placed[0], placer.placed[1], placer.placed[2]
	parentID := placer.placedIDs[0]

	if parent.Side != models.OrderSideBuy || parent.Kind != models.OrderKindLimit || parent.LimitPrice != 150 {
		t.Errorf("parent leg malformed: %+v", parent)
	}
	if parent.Transmit {
		t.Error("parent must not transmit")
	}

	if tp.Side != models.OrderSideSell || tp.Kind != models.OrderKindLimit || tp.LimitPrice != 160 {
		t.Errorf("take-profit leg malformed: %+v", tp)
	}
	if tp.ParentID != parentID || tp.Transmit {
		t.Errorf("take-profit linkage wrong: parent=%d transmit=%v", tp.ParentID, tp.Transmit)
	}

	if sl.Side != models.OrderSideSell || sl.Kind != models.OrderKindStop || sl.StopPrice != 145 {
		t.Errorf("stop-loss leg malformed: %+v", sl)
	}
	if sl.ParentID != parentID || !sl.Transmit {
		t.Errorf("only the stop-loss leg releases the group: parent=%d transmit=%v", sl.ParentID, sl.Transmit)
	}

	if result.Bracket.Parent != parentID {
		t.Errorf("result parent id %d != %d", result.Bracket.Parent, parentID)
	}
}

func TestSubmitBracketSellInvertsChildren(t *testing.T) {
	placer := &fakePlacer{}
	c := readyCoordinator(placer, "AAPL")

	c.Submit(context.Background(), models.OrderRequest{
		Symbol: "AAPL", Side: models.OrderSideSell, Quantity: 50,
		Kind: models.OrderKindBracket, LimitPrice: 150, TakeProfit: 140, StopLoss: 155,
	})
	if placer.placed[1].Side != models.OrderSideBuy || placer.placed[2].Side != models.OrderSideBuy {
		t.Error("children of a sell bracket must be buys")
	}
}

func TestBracketPartialFailureCompensates(t *testing.T) {
	placer := &fakePlacer{failAt: 3}
	c := readyCoordinator(placer, "AAPL")

	_, err := c.Submit(context.Background(), models.OrderRequest{
		Symbol: "AAPL", Side: models.OrderSideBuy, Quantity: 100,
		Kind: models.OrderKindBracket, LimitPrice: 150, TakeProfit: 160, StopLoss: 145,
	})
	if !errors.Is(err, ErrPartialBracket) {
		t.Fatalf("expected ErrPartialBracket, got %v", err)
	}

	var bracketErr *BracketError
	if !errors.As(err, &bracketErr) {
		t.Fatalf("expected *BracketError, got %T", err)
	}
	if len(bracketErr.Accepted) != 2 {
		t.Errorf("accepted legs = %v, want the parent and take-profit", bracketErr.Accepted)
	}
	if len(placer.cancelled) != 2 {
		t.Errorf("both accepted legs should be cancelled best-effort, got %v", placer.cancelled)
	}
}

func TestBracketParentFailure(t *testing.T) {
	placer := &fakePlacer{failAt: 1}
	c := readyCoordinator(placer, "AAPL")

	_, err := c.Submit(context.Background(), models.OrderRequest{
		Symbol: "AAPL", Side: models.OrderSideBuy, Quantity: 100,
		Kind: models.OrderKindBracket, LimitPrice: 150, TakeProfit: 160, StopLoss: 145,
	})
	if !errors.Is(err, ErrPartialBracket) {
		t.Fatalf("expected ErrPartialBracket, got %v", err)
	}
	if len(placer.cancelled) != 0 {
		t.Error("nothing to compensate when the parent never submitted")
	}
}
