package analysis

import (
	"testing"
	"time"

	"perp-trader/internal/models"
)

func candles(closes []float64) []models.Kline {
	out := make([]models.Kline, len(closes))
	for i, c := range closes {
		out[i] = models.Kline{
			OpenTime: time.Now().Add(time.Duration(i-len(closes)) * time.Minute),
			Open:     c,
			High:     c * 1.001,
			Low:      c * 0.999,
			Close:    c,
			Volume:   1000,
		}
	}
	return out
}

func TestAnalyze_EmptySeries(t *testing.T) {
	set := NewTechnicalAnalyzer().Analyze(nil, "3m")
	if set.Interval != "3m" {
		t.Errorf("interval must carry through, got %s", set.Interval)
	}
	if set.LastPrice != 0 || set.VolumeRatio != 1 {
		t.Errorf("unexpected zero-series defaults: %+v", set)
	}
}

func TestAnalyze_LastPriceTracksSeries(t *testing.T) {
	closes := make([]float64, 60)
	for i := range closes {
		closes[i] = 100 + float64(i)
	}

	set := NewTechnicalAnalyzer().Analyze(candles(closes), "1h")
	if set.LastPrice != 159 {
		t.Errorf("expected last price 159, got %.2f", set.LastPrice)
	}
}

func TestRSI_MonotonicSeriesSaturates(t *testing.T) {
	rising := make([]float64, 40)
	falling := make([]float64, 40)
	for i := range rising {
		rising[i] = 100 + float64(i)
		falling[i] = 140 - float64(i)
	}

	up := NewTechnicalAnalyzer().Analyze(candles(rising), "3m")
	if up.RSI != 100 {
		t.Errorf("all gains must read RSI 100, got %.2f", up.RSI)
	}

	down := NewTechnicalAnalyzer().Analyze(candles(falling), "3m")
	if down.RSI > 1 {
		t.Errorf("all losses must read RSI near 0, got %.2f", down.RSI)
	}
}

func TestRSI_ShortSeriesIsNeutral(t *testing.T) {
	set := NewTechnicalAnalyzer().Analyze(candles([]float64{100, 101, 102}), "3m")
	if set.RSI != 50 {
		t.Errorf("short series must default to neutral 50, got %.2f", set.RSI)
	}
}

func TestVolumeRatio_SpikeDetected(t *testing.T) {
	klines := candles(make([]float64, 30))
	for i := range klines {
		klines[i].Close = 100
		klines[i].Open = 100
		klines[i].High = 100.1
		klines[i].Low = 99.9
		klines[i].Volume = 1000
	}
	klines[len(klines)-1].Volume = 3000

	set := NewTechnicalAnalyzer().Analyze(klines, "15m")
	if set.VolumeRatio < 2.9 || set.VolumeRatio > 3.1 {
		t.Errorf("expected volume ratio near 3, got %.2f", set.VolumeRatio)
	}
}

func TestMACD_SignMatchesTrend(t *testing.T) {
	rising := make([]float64, 60)
	for i := range rising {
		rising[i] = 100 * (1 + 0.01*float64(i))
	}

	set := NewTechnicalAnalyzer().Analyze(candles(rising), "4h")
	if set.MACD <= 0 {
		t.Errorf("uptrend must give positive MACD, got %.4f", set.MACD)
	}
}
