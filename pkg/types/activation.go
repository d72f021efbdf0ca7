package types

import "time"

// Regime is a qualitative market-state label.
type Regime string

const (
	RegimeBullTrending  Regime = "bull_trending"
	RegimeBearTrending  Regime = "bear_trending"
	RegimeSidewaysRange Regime = "sideways_range"
	RegimeHighVol       Regime = "high_volatility"
	RegimeLowVol        Regime = "low_volatility"
	RegimeCrisis        Regime = "crisis"
	RegimeRecovery      Regime = "recovery"
)

// StrategyType is one of the eight strategy families named in the
// glossary.
type StrategyType string

const (
	StrategyMomentum      StrategyType = "momentum"
	StrategyMeanReversion StrategyType = "mean_reversion"
	StrategyBreakout      StrategyType = "breakout"
	StrategyTrendFollow   StrategyType = "trend_following"
	StrategyScalping      StrategyType = "scalping"
	StrategySwing         StrategyType = "swing"
	StrategyArbitrage     StrategyType = "arbitrage"
	StrategyHybrid        StrategyType = "hybrid"
)

// StrategyStatus is the activation lifecycle state of a strategy.
type StrategyStatus string

const (
	StrategyStatusActive   StrategyStatus = "active"
	StrategyStatusInactive StrategyStatus = "inactive"
)

// MarketConditions is a single snapshot of the 8-feature market state
// vector used for regime classification and historical condition
// matching.
type MarketConditions struct {
	Timestamp       time.Time `json:"timestamp"`
	Regime          Regime    `json:"regime"`
	Volatility      float64   `json:"volatility"`
	TrendStrength   float64   `json:"trendStrength"`
	VolumeTrend     float64   `json:"volumeTrend"`
	SentimentScore  float64   `json:"sentimentScore"`
	FearGreedIndex  float64   `json:"fearGreedIndex"`
	BTCCorrelation  float64   `json:"btcCorrelation"`
	Liquidity       float64   `json:"liquidity"`
	Macro           float64   `json:"macro"`
}

// FeatureVector returns the raw 8-feature vector used for Euclidean
// nearest-neighbor matching against historical conditions; the matcher
// standardizes it against the history's mean and spread.
func (m MarketConditions) FeatureVector() [8]float64 {
	return [8]float64{
		m.Volatility,
		m.TrendStrength,
		m.VolumeTrend,
		m.SentimentScore,
		m.FearGreedIndex,
		m.BTCCorrelation,
		m.Liquidity,
		m.Macro,
	}
}

// SentimentProfile controls how the backtest sentiment gate admits or
// scales entries.
type SentimentBias string

const (
	BiasRiskOn     SentimentBias = "risk_on"
	BiasFearBuy    SentimentBias = "fear_buy"
	BiasContrarian SentimentBias = "contrarian"
	BiasBalanced   SentimentBias = "balanced"
)

type SentimentProfile struct {
	Bias                 SentimentBias `json:"bias"`
	MinAlignment         float64       `json:"minAlignment"`
	NegativeBuyThreshold float64       `json:"negativeBuyThreshold"`
	ExtremeThreshold      float64       `json:"extremeThreshold"`
	AllowMissing          bool          `json:"allowMissing"`
}

// RiskParams bounds a strategy's position sizing and exposure.
type RiskParams struct {
	PositionSizePct  float64 `json:"positionSizePct"`
	MaxPositions     int     `json:"maxPositions"`
	StopLossPct      float64 `json:"stopLossPct"`
	TakeProfitPct    float64 `json:"takeProfitPct"`
}

// StrategyRecord is the full specification of one tradable strategy.
type StrategyRecord struct {
	ID                string            `json:"id"`
	Type              StrategyType      `json:"type"`
	Parameters        map[string]float64 `json:"parameters"`
	Indicators        []string          `json:"indicators"`
	RiskParams        RiskParams        `json:"riskParams"`
	Symbols           []string          `json:"symbols"`
	Timeframe         Timeframe         `json:"timeframe"`
	Status            StrategyStatus    `json:"status"`
	SentimentProfile  SentimentProfile  `json:"sentimentProfile"`
	RegimePreferences []Regime          `json:"regimePreferences"`
}
