// Package analysis computes the technical readings attached to market
// snapshots. The trading core treats this as a collaborator: it consumes
// the Analyzer interface and never inspects how values are derived.
package analysis

import "perp-trader/internal/models"

// Analyzer turns a candle series into one indicator set.
type Analyzer interface {
	Analyze(klines []models.Kline, interval string) models.IndicatorSet
}

// TechnicalAnalyzer implements Analyzer with standard formulas: Wilder
// RSI(14) and ADX(14), EMA(20), MACD(12,26) and a 20-period volume ratio.
type TechnicalAnalyzer struct{}

// NewTechnicalAnalyzer creates a TechnicalAnalyzer.
func NewTechnicalAnalyzer() *TechnicalAnalyzer {
	return &TechnicalAnalyzer{}
}

// Analyze computes the indicator set for one timeframe.
func (a *TechnicalAnalyzer) Analyze(klines []models.Kline, interval string) models.IndicatorSet {
	set := models.IndicatorSet{Interval: interval, VolumeRatio: 1}
	if len(klines) == 0 {
		return set
	}

	closes := make([]float64, len(klines))
	for i, k := range klines {
		closes[i] = k.Close
	}

	set.LastPrice = closes[len(closes)-1]
	set.RSI = rsi(closes, 14)
	set.ADX = adx(klines, 14)
	set.EMA20 = ema(closes, 20)
	set.MACD = ema(closes, 12) - ema(closes, 26)
	set.VolumeRatio = volumeRatio(klines, 20)
	return set
}

func ema(values []float64, period int) float64 {
	if len(values) == 0 {
		return 0
	}
	if len(values) < period {
		period = len(values)
	}
	k := 2.0 / float64(period+1)
	out := values[0]
	for _, v := range values[1:] {
		out = v*k + out*(1-k)
	}
	return out
}

func rsi(closes []float64, period int) float64 {
	if len(closes) <= period {
		return 50
	}

	var avgGain, avgLoss float64
	for i := 1; i <= period; i++ {
		delta := closes[i] - closes[i-1]
		if delta > 0 {
			avgGain += delta
		} else {
			avgLoss -= delta
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)

	for i := period + 1; i < len(closes); i++ {
		delta := closes[i] - closes[i-1]
		gain, loss := 0.0, 0.0
		if delta > 0 {
			gain = delta
		} else {
			loss = -delta
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
	}

	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

func adx(klines []models.Kline, period int) float64 {
	if len(klines) <= 2*period {
		return 0
	}

	var trSum, plusDMSum, minusDMSum float64
	dxs := make([]float64, 0, len(klines))

	for i := 1; i < len(klines); i++ {
		cur, prev := klines[i], klines[i-1]

		tr := cur.High - cur.Low
		if hc := abs(cur.High - prev.Close); hc > tr {
			tr = hc
		}
		if lc := abs(cur.Low - prev.Close); lc > tr {
			tr = lc
		}

		upMove := cur.High - prev.High
		downMove := prev.Low - cur.Low
		plusDM, minusDM := 0.0, 0.0
		if upMove > downMove && upMove > 0 {
			plusDM = upMove
		}
		if downMove > upMove && downMove > 0 {
			minusDM = downMove
		}

		if i <= period {
			trSum += tr
			plusDMSum += plusDM
			minusDMSum += minusDM
			continue
		}

		// Wilder smoothing
		trSum = trSum - trSum/float64(period) + tr
		plusDMSum = plusDMSum - plusDMSum/float64(period) + plusDM
		minusDMSum = minusDMSum - minusDMSum/float64(period) + minusDM

		if trSum == 0 {
			continue
		}
		plusDI := 100 * plusDMSum / trSum
		minusDI := 100 * minusDMSum / trSum
		if plusDI+minusDI == 0 {
			continue
		}
		dxs = append(dxs, 100*abs(plusDI-minusDI)/(plusDI+minusDI))
	}

	if len(dxs) < period {
		return 0
	}
	out := dxs[0]
	for _, dx := range dxs[1:] {
		out = (out*float64(period-1) + dx) / float64(period)
	}
	return out
}

func volumeRatio(klines []models.Kline, period int) float64 {
	if len(klines) < 2 {
		return 1
	}
	start := len(klines) - 1 - period
	if start < 0 {
		start = 0
	}
	var sum float64
	n := 0
	for _, k := range klines[start : len(klines)-1] {
		sum += k.Volume
		n++
	}
	if n == 0 || sum == 0 {
		return 1
	}
	return klines[len(klines)-1].Volume / (sum / float64(n))
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
