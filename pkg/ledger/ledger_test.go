package ledger

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/quantdesk/tradeterm/pkg/models"
	"github.com/sirupsen/logrus"
)

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

func TestAppendAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trade_history.json")
	l := Open(path, testLogger())

	fill1 := models.Fill{OrderID: 1, Quantity: 100, Price: 175.50, Commission: 1.0, Timestamp: time.Unix(1000, 0)}
	fill2 := models.Fill{OrderID: 2, Quantity: 40, Price: 176.10, Commission: 0.8, Timestamp: time.Unix(2000, 0)}

	if err := l.Append(fill1, "AAPL", models.OrderSideBuy); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := l.Append(fill2, "AAPL", models.OrderSideSell); err != nil {
		t.Fatalf("append: %v", err)
	}

	// Simulated restart.
	reloaded := Open(path, testLogger())
	entries := reloaded.All()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries after reload, got %d", len(entries))
	}
	if entries[0].Price != 175.50 || entries[1].Price != 176.10 {
		t.Errorf("entries out of order: %+v", entries)
	}
	if entries[0].Side != "BUY" || entries[1].Side != "SELL" {
		t.Errorf("side context lost: %+v", entries)
	}

	positions := reloaded.Positions()
	if positions["AAPL"] != 60 {
		t.Errorf("expected net position 60, got %d", positions["AAPL"])
	}
}

func TestFlatPositionDropped(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trade_history.json")
	l := Open(path, testLogger())

	fill := models.Fill{OrderID: 1, Quantity: 50, Price: 250, Timestamp: time.Now()}
	l.Append(fill, "TSLA", models.OrderSideBuy)
	l.Append(fill, "TSLA", models.OrderSideSell)

	if _, ok := l.Positions()["TSLA"]; ok {
		t.Error("flat position should not linger in the projection")
	}
}

func TestOpenMissingFile(t *testing.T) {
	l := Open(filepath.Join(t.TempDir(), "nope.json"), testLogger())
	if len(l.All()) != 0 {
		t.Error("missing file must yield an empty ledger")
	}
}

func TestOpenCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trade_history.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	l := Open(path, testLogger())
	if len(l.All()) != 0 {
		t.Error("corrupt file must yield an empty ledger, not fail startup")
	}

	// The ledger must still be writable afterwards.
	if err := l.Append(models.Fill{OrderID: 1, Quantity: 1, Price: 1, Timestamp: time.Now()}, "SPY", models.OrderSideBuy); err != nil {
		t.Fatalf("append after corrupt load: %v", err)
	}
	if len(Open(path, testLogger()).All()) != 1 {
		t.Error("append after corrupt load did not persist")
	}
}
