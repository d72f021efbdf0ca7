package backtest

import (
	"math"

	"github.com/Edgame2/masterTrade-sub003/pkg/types"
	"github.com/shopspring/decimal"
)

// RegimeLabeler classifies bars into a qualitative market regime using
// a fast/slow moving-average cross plus a volatility band, the same
// two-signal shape the teacher's regime detector used for live
// classification, replayed here bar-by-bar over historical data.
type RegimeLabeler struct {
	fast       *SMAFloat
	slow       *SMAFloat
	volatility *SMAFloat
	prevClose  float64
	haveClose  bool
}

// NewRegimeLabeler builds a labeler with a fastPeriod/slowPeriod MA
// cross (12/36 bars is the default) and a volatility lookback.
func NewRegimeLabeler(fastPeriod, slowPeriod, volPeriod int) *RegimeLabeler {
	return &RegimeLabeler{
		fast:       NewSMAFloat(fastPeriod),
		slow:       NewSMAFloat(slowPeriod),
		volatility: NewSMAFloat(volPeriod),
	}
}

// Add feeds the next close and returns the regime label as of that bar.
func (r *RegimeLabeler) Add(close float64) types.Regime {
	ret := 0.0
	if r.haveClose && r.prevClose != 0 {
		ret = (close - r.prevClose) / r.prevClose
	}
	r.prevClose = close
	r.haveClose = true

	fast := r.fast.Add(close)
	slow := r.slow.Add(close)
	vol := r.volatility.Add(math.Abs(ret))

	const highVolThreshold = 0.03
	const crisisVolThreshold = 0.08
	const trendThreshold = 0.02

	switch {
	case vol >= crisisVolThreshold && fast < slow:
		return types.RegimeCrisis
	case vol >= highVolThreshold:
		return types.RegimeHighVol
	case fast > slow*(1+trendThreshold):
		return types.RegimeBullTrending
	case fast < slow*(1-trendThreshold):
		return types.RegimeBearTrending
	case vol < highVolThreshold/3:
		return types.RegimeLowVol
	default:
		return types.RegimeSidewaysRange
	}
}

// SMAFloat is a streaming float64 simple moving average, used where
// decimal precision would only add overhead (regime scoring is
// dimensionless, per the core's money/score separation).
type SMAFloat struct {
	period int
	values []float64
	sum    float64
}

func NewSMAFloat(period int) *SMAFloat {
	return &SMAFloat{period: period, values: make([]float64, 0, period)}
}

func (s *SMAFloat) Add(v float64) float64 {
	s.values = append(s.values, v)
	s.sum += v
	if len(s.values) > s.period {
		s.sum -= s.values[0]
		s.values = s.values[1:]
	}
	if len(s.values) == 0 {
		return 0
	}
	return s.sum / float64(len(s.values))
}

// SentimentGate decides whether a signal may be admitted under a
// strategy's sentiment profile, and the scaling multiplier to apply to
// position size if it is.
type SentimentGate struct {
	profile types.SentimentProfile
}

func NewSentimentGate(profile types.SentimentProfile) *SentimentGate {
	return &SentimentGate{profile: profile}
}

// Evaluate applies the sentiment bias rules: risk_on strategies need
// positive alignment to enter, fear_buy strategies need sentiment below
// the negative-buy threshold, contrarian strategies invert the raw
// score, and balanced strategies apply no gate. Missing sentiment
// (hasSentiment false) is allowed through only if AllowMissing is set.
func (g *SentimentGate) Evaluate(sentimentScore float64, hasSentiment bool) (admit bool, sizeMultiplier float64) {
	if !hasSentiment {
		return g.profile.AllowMissing, 1.0
	}

	switch g.profile.Bias {
	case types.BiasRiskOn:
		if sentimentScore < g.profile.MinAlignment {
			return false, 0
		}
		return true, 1.0 + sentimentScore*0.5
	case types.BiasFearBuy:
		if sentimentScore > g.profile.NegativeBuyThreshold {
			return false, 0
		}
		return true, 1.0 + (-sentimentScore)*0.5
	case types.BiasContrarian:
		inverted := -sentimentScore
		if math.Abs(sentimentScore) < g.profile.ExtremeThreshold {
			return false, 0
		}
		return true, 1.0 + math.Abs(inverted)*0.3
	default: // BiasBalanced
		return true, 1.0
	}
}
