package backtest

import (
	"github.com/Edgame2/masterTrade-sub003/pkg/types"
	"github.com/shopspring/decimal"
)

// BarState is the indicator snapshot computed for one symbol as of the
// current bar, fed to the strategy predicate dispatch below.
type BarState struct {
	Close      decimal.Decimal
	RSI        decimal.Decimal
	Bollinger  BollingerValue
	ATR        decimal.Decimal
	FastSMA    decimal.Decimal
	SlowSMA    decimal.Decimal
	HighestN   decimal.Decimal
	LowestN    decimal.Decimal
	Regime     types.Regime
}

// StrategyDecision is a candidate entry direction and conviction
// strength in [0,1]; Side is empty when the strategy has no opinion.
type StrategyDecision struct {
	Side     types.OrderSide
	Strength float64
}

// evaluator is one strategy family's entry rule.
type evaluator func(state BarState, params map[string]float64) StrategyDecision

// evaluatorFor dispatches on strategy type, mirroring the one-struct-
// per-strategy-family shape the live strategy registry uses, but as
// pure predicates over a precomputed indicator snapshot since the
// simulation loop already owns bar sequencing.
func evaluatorFor(t types.StrategyType) evaluator {
	switch t {
	case types.StrategyMomentum:
		return evaluateMomentum
	case types.StrategyMeanReversion:
		return evaluateMeanReversion
	case types.StrategyBreakout:
		return evaluateBreakout
	case types.StrategyTrendFollow:
		return evaluateTrendFollowing
	case types.StrategyScalping:
		return evaluateScalping
	case types.StrategySwing:
		return evaluateSwing
	case types.StrategyHybrid:
		return evaluateHybrid
	default:
		// Arbitrage needs a cross-venue quote feed the single-symbol
		// bar simulation doesn't carry; it never fires here.
		return func(BarState, map[string]float64) StrategyDecision { return StrategyDecision{} }
	}
}

func evaluateMomentum(state BarState, params map[string]float64) StrategyDecision {
	threshold := paramOr(params, "rsi_threshold", 60)
	if state.RSI.GreaterThan(decimal.NewFromFloat(threshold)) {
		return StrategyDecision{Side: types.OrderSideBuy, Strength: rsiStrength(state.RSI, threshold, true)}
	}
	if state.RSI.LessThan(decimal.NewFromFloat(100 - threshold)) {
		return StrategyDecision{Side: types.OrderSideSell, Strength: rsiStrength(state.RSI, 100-threshold, false)}
	}
	return StrategyDecision{}
}

func evaluateMeanReversion(state BarState, params map[string]float64) StrategyDecision {
	if state.Close.LessThanOrEqual(state.Bollinger.Lower) {
		return StrategyDecision{Side: types.OrderSideBuy, Strength: 0.7}
	}
	if state.Close.GreaterThanOrEqual(state.Bollinger.Upper) {
		return StrategyDecision{Side: types.OrderSideSell, Strength: 0.7}
	}
	return StrategyDecision{}
}

func evaluateBreakout(state BarState, params map[string]float64) StrategyDecision {
	if state.Close.GreaterThanOrEqual(state.HighestN) {
		return StrategyDecision{Side: types.OrderSideBuy, Strength: 0.8}
	}
	if state.Close.LessThanOrEqual(state.LowestN) {
		return StrategyDecision{Side: types.OrderSideSell, Strength: 0.8}
	}
	return StrategyDecision{}
}

func evaluateTrendFollowing(state BarState, params map[string]float64) StrategyDecision {
	if state.FastSMA.GreaterThan(state.SlowSMA) {
		return StrategyDecision{Side: types.OrderSideBuy, Strength: 0.6}
	}
	if state.FastSMA.LessThan(state.SlowSMA) {
		return StrategyDecision{Side: types.OrderSideSell, Strength: 0.6}
	}
	return StrategyDecision{}
}

func evaluateScalping(state BarState, params map[string]float64) StrategyDecision {
	if state.RSI.LessThan(decimal.NewFromInt(25)) {
		return StrategyDecision{Side: types.OrderSideBuy, Strength: 0.5}
	}
	if state.RSI.GreaterThan(decimal.NewFromInt(75)) {
		return StrategyDecision{Side: types.OrderSideSell, Strength: 0.5}
	}
	return StrategyDecision{}
}

func evaluateSwing(state BarState, params map[string]float64) StrategyDecision {
	if state.Regime != types.RegimeBullTrending && state.Regime != types.RegimeBearTrending {
		return StrategyDecision{}
	}
	decision := evaluateTrendFollowing(state, params)
	decision.Strength *= 0.9
	return decision
}

func evaluateHybrid(state BarState, params map[string]float64) StrategyDecision {
	momentum := evaluateMomentum(state, params)
	reversion := evaluateMeanReversion(state, params)
	if momentum.Side != "" && momentum.Side == reversion.Side {
		return StrategyDecision{Side: momentum.Side, Strength: (momentum.Strength + reversion.Strength) / 2}
	}
	if momentum.Strength >= reversion.Strength {
		return momentum
	}
	return reversion
}

func rsiStrength(rsi decimal.Decimal, threshold float64, above bool) float64 {
	v, _ := rsi.Float64()
	if above {
		return clamp01((v - threshold) / (100 - threshold))
	}
	return clamp01((threshold - v) / threshold)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func paramOr(params map[string]float64, key string, fallback float64) float64 {
	if v, ok := params[key]; ok {
		return v
	}
	return fallback
}
