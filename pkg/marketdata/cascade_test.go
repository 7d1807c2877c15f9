package marketdata

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/quantdesk/tradeterm/pkg/models"
	"github.com/sirupsen/logrus"
)

type stubSource struct {
	name  string
	quote models.Quote
	err   error
	calls int
}

func (s *stubSource) Name() string { return s.name }

func (s *stubSource) Quote(ctx context.Context, symbol string) (models.Quote, error) {
	s.calls++
	return s.quote, s.err
}

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

func TestResolveFallsBackToSynthetic(t *testing.T) {
	failing := &stubSource{name: "live", err: errors.New("feed down")}
	empty := &stubSource{name: "secondary", err: errors.New("no bars")}
	c := NewCascade(testLogger(), NewSyntheticSource(), failing, empty)

	quote, err := c.Resolve(context.Background(), "ZZZQ")
	if err != nil {
		t.Fatalf("Resolve must never fail, got %v", err)
	}
	if quote.Source != models.QuoteSourceSynthetic {
		t.Errorf("expected synthetic provenance, got %s", quote.Source)
	}
	if quote.Last <= 0 {
		t.Errorf("synthetic quote must have positive last, got %f", quote.Last)
	}
	if quote.Symbol != "ZZZQ" {
		t.Errorf("wrong symbol: %s", quote.Symbol)
	}
	if failing.calls != 1 || empty.calls != 1 {
		t.Errorf("every layer should be tried once, got %d/%d", failing.calls, empty.calls)
	}
}

func TestResolveUsesFirstUsableSource(t *testing.T) {
	live := &stubSource{name: "live", quote: models.Quote{
		Symbol: "AAPL", Last: 187.5, Source: models.QuoteSourceLive, ObservedAt: time.Now(),
	}}
	secondary := &stubSource{name: "secondary"}
	c := NewCascade(testLogger(), NewSyntheticSource(), live, secondary)

	quote, _ := c.Resolve(context.Background(), "AAPL")
	if quote.Source != models.QuoteSourceLive || quote.Last != 187.5 {
		t.Errorf("expected live quote, got %+v", quote)
	}
	if secondary.calls != 0 {
		t.Error("secondary source should not be consulted when live succeeds")
	}
}

func TestResolveSkipsNonPositiveLast(t *testing.T) {
	// A connected feed can still report 0 before the first tick arrives.
	zero := &stubSource{name: "live", quote: models.Quote{Symbol: "AAPL", Source: models.QuoteSourceLive}}
	good := &stubSource{name: "secondary", quote: models.Quote{
		Symbol: "AAPL", Last: 101, Source: models.QuoteSourceSecondary,
	}}
	c := NewCascade(testLogger(), NewSyntheticSource(), zero, good)

	quote, _ := c.Resolve(context.Background(), "AAPL")
	if quote.Source != models.QuoteSourceSecondary {
		t.Errorf("expected fallthrough past zero-priced quote, got %s", quote.Source)
	}
}

func TestSyntheticBaselines(t *testing.T) {
	s := NewSyntheticSource()

	q := s.Generate("AAPL")
	if q.Last < 170 || q.Last > 180 {
		t.Errorf("AAPL synthetic last outside baseline band: %f", q.Last)
	}
	if q.Bid >= q.Ask {
		t.Errorf("synthetic bid %f should sit under ask %f", q.Bid, q.Ask)
	}

	q = s.Generate("UNKNOWN")
	if q.Last < 95 || q.Last > 105 {
		t.Errorf("unknown symbol should perturb around default baseline: %f", q.Last)
	}
	if q.Volume < 1_000_000 {
		t.Errorf("implausible synthetic volume %d", q.Volume)
	}
}

func TestBarSourceQuote(t *testing.T) {
	var gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("X-Api-Key")
		if got := r.URL.Query().Get("symbol"); got != "MSFT" {
			t.Errorf("unexpected symbol query %q", got)
		}
		fmt.Fprint(w, `{"symbol":"MSFT","bars":[
			{"open":400.0,"high":402.0,"low":399.5,"close":401.0,"volume":1000,"timestamp":1},
			{"open":401.0,"high":405.0,"low":400.0,"close":404.0,"volume":2500,"timestamp":2},
			{"open":404.0,"high":411.0,"low":403.0,"close":410.0,"volume":1500,"timestamp":3}
		]}`)
	}))
	defer srv.Close()

	src := NewBarSource(srv.URL, "k3y", 100)
	quote, err := src.Quote(context.Background(), "MSFT")
	if err != nil {
		t.Fatalf("Quote: %v", err)
	}

	if gotKey != "k3y" {
		t.Errorf("api key header not sent, got %q", gotKey)
	}
	if quote.Last != 410.0 {
		t.Errorf("last should be final close, got %f", quote.Last)
	}
	if quote.Change != 10.0 {
		t.Errorf("change should be last minus period open, got %f", quote.Change)
	}
	if quote.PercentChange != 2.5 {
		t.Errorf("percent change relative to period open, got %f", quote.PercentChange)
	}
	if quote.Volume != 5000 {
		t.Errorf("volume should sum bars, got %d", quote.Volume)
	}
	if quote.Source != models.QuoteSourceSecondary {
		t.Errorf("wrong provenance %s", quote.Source)
	}
}

func TestBarSourceEmptyPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"symbol":"MSFT","bars":[]}`)
	}))
	defer srv.Close()

	src := NewBarSource(srv.URL, "", 100)
	if _, err := src.Quote(context.Background(), "MSFT"); err == nil {
		t.Fatal("empty bar payload must be unusable")
	}
}

func TestBarSourceHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	src := NewBarSource(srv.URL, "", 100)
	if _, err := src.Quote(context.Background(), "MSFT"); err == nil {
		t.Fatal("non-200 response must be unusable")
	}
}
