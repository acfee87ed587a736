package performance

import (
	"math"
	"strings"
	"testing"

	"perp-trader/internal/models"
)

func TestCalculate_EmptyHistory(t *testing.T) {
	m := Calculate(nil)
	if m.TotalTrades != 0 || m.WinRate != 0 || m.TotalPnlUsdt != 0 {
		t.Errorf("empty history must be all zeros, got %+v", m)
	}
	if m.Format() != "" {
		t.Error("empty history must format to an empty string")
	}
}

func TestCalculate(t *testing.T) {
	trades := []models.TradeRecord{
		{PnlUsdt: 100},
		{PnlUsdt: -40},
		{PnlUsdt: 60},
		{PnlUsdt: 0}, // break-even counts as a loss
	}

	m := Calculate(trades)
	if m.TotalTrades != 4 || m.Wins != 2 || m.Losses != 2 {
		t.Errorf("unexpected counts: %+v", m)
	}
	if math.Abs(m.WinRate-50) > 1e-9 {
		t.Errorf("expected win rate 50, got %.2f", m.WinRate)
	}
	if math.Abs(m.TotalPnlUsdt-120) > 1e-9 {
		t.Errorf("expected total 120, got %.2f", m.TotalPnlUsdt)
	}
	if math.Abs(m.AvgPnlUsdt-30) > 1e-9 {
		t.Errorf("expected avg 30, got %.2f", m.AvgPnlUsdt)
	}
	if m.BestPnlUsdt != 100 || m.WorstPnlUsdt != -40 {
		t.Errorf("unexpected best/worst: %+v", m)
	}
}

func TestFormat(t *testing.T) {
	m := Calculate([]models.TradeRecord{{PnlUsdt: 25}, {PnlUsdt: -10}})
	out := m.Format()

	for _, want := range []string{"Trades: 2", "50.0%", "1W/1L", "+15.00"} {
		if !strings.Contains(out, want) {
			t.Errorf("formatted output missing %q:\n%s", want, out)
		}
	}
}
