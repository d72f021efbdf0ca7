// Package activation detects the current market regime, scores
// candidate strategies against it using historical condition matching,
// decides which strategies should be active, and evolves new strategy
// genomes from backtest history via a genetic algorithm.
package activation

import (
	"math"
	"time"

	"github.com/Edgame2/masterTrade-sub003/pkg/types"
	"github.com/shopspring/decimal"
)

// shortWindow/longWindow are the moving-average cross lengths used for
// regime labeling.
const (
	shortWindow = 12
	longWindow  = 36

	highVolStdevRatio = 0.025
	lowVolStdevRatio  = 0.005
)

// ClassifyRegime labels the regime of the most recent candle using a
// short/long moving-average cross with volatility bands: a close
// stdev-to-mean ratio >= 0.025 is high_volatility, <= 0.005 is
// low_volatility; otherwise bull/bear on the MA relationship and last
// close direction, else sideways_range.
func ClassifyRegime(candles []types.OHLCV) types.Regime {
	n := len(candles)
	if n < longWindow+1 {
		return types.RegimeSidewaysRange
	}

	closes := make([]float64, n)
	for i, c := range candles {
		f, _ := c.Close.Float64()
		closes[i] = f
	}

	shortMA := mean(closes[n-shortWindow:])
	longMA := mean(closes[n-longWindow:])
	stdev := stdDev(closes[n-longWindow:])
	meanLong := mean(closes[n-longWindow:])

	ratio := 0.0
	if meanLong != 0 {
		ratio = stdev / math.Abs(meanLong)
	}

	if ratio >= highVolStdevRatio {
		return types.RegimeHighVol
	}
	if ratio <= lowVolStdevRatio {
		return types.RegimeLowVol
	}

	lastUp := closes[n-1] > closes[n-2]
	switch {
	case shortMA > longMA && lastUp:
		return types.RegimeBullTrending
	case shortMA < longMA && !lastUp:
		return types.RegimeBearTrending
	default:
		return types.RegimeSidewaysRange
	}
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func stdDev(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	m := mean(xs)
	sum := 0.0
	for _, x := range xs {
		d := x - m
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(xs)-1))
}

// BuildConditions derives a MarketConditions snapshot from a candle
// window for the live activation loop, which has no independent
// sentiment/fear-greed/macro feed: regime, volatility and trend come
// from the same moving-average/stdev features ClassifyRegime uses,
// volume trend compares the recent half of the window to the older
// half, and the feed-less features are left at their neutral midpoint.
func BuildConditions(candles []types.OHLCV, at time.Time) types.MarketConditions {
	regime := ClassifyRegime(candles)

	n := len(candles)
	if n < 2 {
		return types.MarketConditions{Timestamp: at, Regime: regime, FearGreedIndex: 50, Liquidity: 0.5}
	}

	closes := make([]float64, n)
	volumes := make([]float64, n)
	for i, c := range candles {
		closes[i] = decimalToFloat(c.Close)
		volumes[i] = decimalToFloat(c.Volume)
	}

	window := longWindow
	if window > n {
		window = n
	}
	recent := closes[n-window:]
	stdev := stdDev(recent)
	meanClose := mean(recent)
	volatility := 0.0
	if meanClose != 0 {
		volatility = stdev / math.Abs(meanClose)
	}

	shortLen := shortWindow
	if shortLen > n {
		shortLen = n
	}
	shortMA := mean(closes[n-shortLen:])
	longMA := mean(recent)
	trendStrength := 0.0
	if longMA != 0 {
		trendStrength = (shortMA - longMA) / math.Abs(longMA)
	}

	half := n / 2
	volumeTrend := 0.0
	if half > 0 {
		older := mean(volumes[:half])
		newer := mean(volumes[half:])
		if older != 0 {
			volumeTrend = (newer - older) / older
		}
	}

	return types.MarketConditions{
		Timestamp:      at,
		Regime:         regime,
		Volatility:     clampUnit(volatility),
		TrendStrength:  clampUnit(trendStrength),
		VolumeTrend:    clampUnit(volumeTrend),
		SentimentScore: 0,
		FearGreedIndex: 50,
		BTCCorrelation: 0,
		Liquidity:      0.5,
		Macro:          0,
	}
}

func clampUnit(x float64) float64 {
	if x > 1 {
		return 1
	}
	if x < -1 {
		return -1
	}
	return x
}

// regimeSuitability is the fixed lookup table of §4.6 step 4: how well
// each strategy type is expected to perform in each regime.
var regimeSuitability = map[types.StrategyType]map[types.Regime]float64{
	types.StrategyMomentum: {
		types.RegimeBullTrending: 1.0, types.RegimeBearTrending: 0.4, types.RegimeSidewaysRange: 0.3,
		types.RegimeHighVol: 0.5, types.RegimeLowVol: 0.6, types.RegimeCrisis: 0.2, types.RegimeRecovery: 0.8,
	},
	types.StrategyMeanReversion: {
		types.RegimeBullTrending: 0.4, types.RegimeBearTrending: 0.4, types.RegimeSidewaysRange: 1.0,
		types.RegimeHighVol: 0.3, types.RegimeLowVol: 0.9, types.RegimeCrisis: 0.1, types.RegimeRecovery: 0.5,
	},
	types.StrategyBreakout: {
		types.RegimeBullTrending: 0.8, types.RegimeBearTrending: 0.6, types.RegimeSidewaysRange: 0.3,
		types.RegimeHighVol: 0.8, types.RegimeLowVol: 0.3, types.RegimeCrisis: 0.3, types.RegimeRecovery: 0.7,
	},
	types.StrategyTrendFollow: {
		types.RegimeBullTrending: 1.0, types.RegimeBearTrending: 0.9, types.RegimeSidewaysRange: 0.2,
		types.RegimeHighVol: 0.5, types.RegimeLowVol: 0.4, types.RegimeCrisis: 0.2, types.RegimeRecovery: 0.6,
	},
	types.StrategyScalping: {
		types.RegimeBullTrending: 0.5, types.RegimeBearTrending: 0.5, types.RegimeSidewaysRange: 0.7,
		types.RegimeHighVol: 0.9, types.RegimeLowVol: 0.4, types.RegimeCrisis: 0.2, types.RegimeRecovery: 0.5,
	},
	types.StrategySwing: {
		types.RegimeBullTrending: 0.8, types.RegimeBearTrending: 0.6, types.RegimeSidewaysRange: 0.6,
		types.RegimeHighVol: 0.4, types.RegimeLowVol: 0.7, types.RegimeCrisis: 0.2, types.RegimeRecovery: 0.7,
	},
	types.StrategyArbitrage: {
		types.RegimeBullTrending: 0.5, types.RegimeBearTrending: 0.5, types.RegimeSidewaysRange: 0.6,
		types.RegimeHighVol: 0.3, types.RegimeLowVol: 0.7, types.RegimeCrisis: 0.6, types.RegimeRecovery: 0.5,
	},
	types.StrategyHybrid: {
		types.RegimeBullTrending: 0.7, types.RegimeBearTrending: 0.7, types.RegimeSidewaysRange: 0.6,
		types.RegimeHighVol: 0.6, types.RegimeLowVol: 0.6, types.RegimeCrisis: 0.4, types.RegimeRecovery: 0.6,
	},
}

// RegimeSuitability returns the fixed-lookup suitability of a strategy
// type for a regime, 0.5 if not tabulated.
func RegimeSuitability(t types.StrategyType, r types.Regime) float64 {
	if byRegime, ok := regimeSuitability[t]; ok {
		if v, ok := byRegime[r]; ok {
			return v
		}
	}
	return 0.5
}

// decimalToFloat is a small helper for feature extraction from decimal
// OHLCV fields elsewhere in the package.
func decimalToFloat(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}
