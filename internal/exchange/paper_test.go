package exchange

import (
	"context"
	"math"
	"testing"

	"perp-trader/internal/errors"
	"perp-trader/internal/models"
)

func newTestVenue() *PaperExchange {
	return NewPaperExchange(PaperConfig{
		InitialBalance: 10000,
		Prices:         map[string]float64{"BTCUSDT": 50000, "ETHUSDT": 3000},
	})
}

func TestPaperExchange_OpenCommitsMargin(t *testing.T) {
	venue := newTestVenue()
	ctx := context.Background()

	if _, err := venue.OpenLong(ctx, "BTCUSDT", 0.1, 5); err != nil {
		t.Fatalf("open failed: %v", err)
	}

	snap, err := venue.GetAccountBalance(ctx)
	if err != nil {
		t.Fatalf("balance failed: %v", err)
	}
	// 0.1 * 50000 / 5 = 1000 of margin committed.
	if math.Abs(snap.AvailableBalance-9000) > 1e-9 {
		t.Errorf("expected available 9000, got %.2f", snap.AvailableBalance)
	}
	if snap.TotalWalletBalance != 10000 {
		t.Errorf("wallet must not move on open, got %.2f", snap.TotalWalletBalance)
	}
}

func TestPaperExchange_InsufficientMarginRejected(t *testing.T) {
	venue := newTestVenue()

	_, err := venue.OpenLong(context.Background(), "BTCUSDT", 1.0, 1)
	if !errors.Is(err, errors.ErrInsufficientMargin) {
		t.Fatalf("expected ErrInsufficientMargin, got %v", err)
	}
}

func TestPaperExchange_CloseSettlesPnl(t *testing.T) {
	venue := newTestVenue()
	ctx := context.Background()

	if _, err := venue.OpenLong(ctx, "ETHUSDT", 1.0, 2); err != nil {
		t.Fatalf("open failed: %v", err)
	}
	venue.SetPrice("ETHUSDT", 3300)

	result, err := venue.ClosePosition(ctx, "ETHUSDT", models.SideLong, nil)
	if err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if !result.FullyClosed || result.ClosedQuantity != 1.0 {
		t.Errorf("expected full close of 1.0, got %+v", result)
	}

	snap, _ := venue.GetAccountBalance(ctx)
	if math.Abs(snap.TotalWalletBalance-10300) > 1e-9 {
		t.Errorf("expected settled wallet 10300, got %.2f", snap.TotalWalletBalance)
	}
	if positions, _ := venue.GetPositions(ctx); len(positions) != 0 {
		t.Errorf("expected no positions, got %d", len(positions))
	}
}

func TestPaperExchange_PartialClose(t *testing.T) {
	venue := newTestVenue()
	ctx := context.Background()

	if _, err := venue.OpenShort(ctx, "ETHUSDT", 2.0, 1); err != nil {
		t.Fatalf("open failed: %v", err)
	}

	qty := 0.5
	result, err := venue.ClosePosition(ctx, "ETHUSDT", models.SideShort, &qty)
	if err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if result.FullyClosed {
		t.Error("partial close must not report fully closed")
	}

	positions, _ := venue.GetPositions(ctx)
	if len(positions) != 1 || math.Abs(positions[0].PositionAmt-1.5) > 1e-9 {
		t.Errorf("expected 1.5 remaining, got %+v", positions)
	}
}

func TestPaperExchange_LongAndShortCoexist(t *testing.T) {
	venue := newTestVenue()
	ctx := context.Background()

	if _, err := venue.OpenLong(ctx, "BTCUSDT", 0.01, 2); err != nil {
		t.Fatalf("open long failed: %v", err)
	}
	if _, err := venue.OpenShort(ctx, "BTCUSDT", 0.02, 2); err != nil {
		t.Fatalf("open short failed: %v", err)
	}

	positions, _ := venue.GetPositions(ctx)
	if len(positions) != 2 {
		t.Fatalf("expected hedged long and short, got %d", len(positions))
	}
}

func TestPaperExchange_KlinesEndAtLivePrice(t *testing.T) {
	venue := newTestVenue()

	klines, err := venue.GetKlines(context.Background(), "BTCUSDT", "3m", 50)
	if err != nil {
		t.Fatalf("klines failed: %v", err)
	}
	if len(klines) != 50 {
		t.Fatalf("expected 50 klines, got %d", len(klines))
	}
	if klines[len(klines)-1].Close != 50000 {
		t.Errorf("last close must equal live price, got %.2f", klines[len(klines)-1].Close)
	}
	for i, k := range klines {
		if k.High < k.Low || k.High < k.Close || k.Low > k.Close {
			t.Errorf("kline %d inconsistent: %+v", i, k)
		}
	}
}

func TestPaperExchange_FundingRate(t *testing.T) {
	venue := newTestVenue()
	ctx := context.Background()

	rate, err := venue.GetFundingRate(ctx, "BTCUSDT")
	if err != nil || rate != nil {
		t.Errorf("unset funding rate must be nil, got %v (%v)", rate, err)
	}

	venue.SetFundingRate("BTCUSDT", 0.05)
	rate, err = venue.GetFundingRate(ctx, "BTCUSDT")
	if err != nil || rate == nil || *rate != 0.05 {
		t.Errorf("expected 0.05, got %v (%v)", rate, err)
	}
}

func TestPaperExchange_UnknownSymbol(t *testing.T) {
	venue := newTestVenue()

	_, err := venue.GetMarketPrice(context.Background(), "DOGEUSDT")
	if !errors.Is(err, errors.ErrSymbolNotFound) {
		t.Fatalf("expected ErrSymbolNotFound, got %v", err)
	}
}
