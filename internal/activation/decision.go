package activation

import (
	"math"

	"github.com/Edgame2/masterTrade-sub003/pkg/types"
)

// Action is the outcome of evaluating a candidate strategy against the
// current regime and its own historical performance.
type Action string

const (
	ActionActivate   Action = "activate"
	ActionKeep       Action = "keep"
	ActionDeactivate Action = "deactivate"
)

// Decision is the structured result of one strategy evaluation; every
// evaluator returns (action, reason) rather than raising for control
// flow, per the no-panics-in-the-loop design note.
type Decision struct {
	StrategyID          string
	Action              Action
	Reason              string
	ExpectedSharpe      float64
	ConditionSimilarity float64
	SentimentAlignment  float64
	Score               HistoricalScore
}

// Thresholds bundles the §4.6 step-5 decision thresholds.
type Thresholds struct {
	MinHistoricalTrades int
	MinSimilarity       float64
	MinAlignment        float64
	MinExpectedSharpe   float64
	StrongSharpe        float64
	MaxActiveStrategies int
}

// DefaultThresholds are the spec-named defaults.
func DefaultThresholds(maxActive int) Thresholds {
	return Thresholds{
		MinHistoricalTrades: 20,
		MinSimilarity:       0.7,
		MinAlignment:        0.45,
		MinExpectedSharpe:   1.0,
		StrongSharpe:        1.5,
		MaxActiveStrategies: maxActive,
	}
}

// HistoricalScore is the bundle computed in §4.6 step 3.
type HistoricalScore struct {
	Sharpe       float64
	WinRate      float64
	MaxDrawdown  float64
	ProfitFactor float64
	Consistency  float64
	NumTrades    int
}

// ScoreHistory computes the Sharpe/win-rate/drawdown/profit-factor/
// consistency bundle over a strategy's trades inside the matched
// historical windows. consistency = positive_ratio * (1 - min(1, σ/0.1)).
func ScoreHistory(trades []TradeOutcome) HistoricalScore {
	if len(trades) == 0 {
		return HistoricalScore{}
	}

	returns := make([]float64, len(trades))
	wins, losses := 0, 0
	grossWin, grossLoss := 0.0, 0.0
	peak, trough, cum := 0.0, 0.0, 0.0
	maxDD := 0.0

	for i, t := range trades {
		returns[i] = t.ReturnPct
		cum += t.ReturnPct
		if cum > peak {
			peak = cum
		}
		dd := peak - cum
		if dd > maxDD {
			maxDD = dd
		}
		_ = trough
		if t.Won {
			wins++
			grossWin += t.ReturnPct
		} else {
			losses++
			grossLoss += -t.ReturnPct
		}
	}

	m := mean(returns)
	sd := stdDev(returns)
	sharpe := 0.0
	if sd > 0 {
		sharpe = m / sd * math.Sqrt(252)
	}

	winRate := float64(wins) / float64(len(trades))
	profitFactor := 0.0
	if grossLoss > 0 {
		profitFactor = grossWin / grossLoss
	} else if grossWin > 0 {
		profitFactor = math.Inf(1)
	}

	positiveRatio := winRate
	consistency := positiveRatio * (1 - math.Min(1, sd/0.1))

	return HistoricalScore{
		Sharpe: sharpe, WinRate: winRate, MaxDrawdown: maxDD,
		ProfitFactor: profitFactor, Consistency: consistency, NumTrades: len(trades),
	}
}

// SentimentAlignment blends recent symbol and global sentiment
// (weights 0.6/0.4) and decays toward neutral (0.5) when stale.
func SentimentAlignment(symbolScore, globalScore float64, ageHours float64) float64 {
	combined := 0.6*symbolScore + 0.4*globalScore
	alignment := (combined + 1) / 2

	if ageHours > 24 {
		decay := math.Max(0.3, 1-(ageHours-24)/(24*7))
		alignment = 0.5 + (alignment-0.5)*decay
	}
	return alignment
}

// Evaluate implements §4.6 steps 3-6 for one candidate strategy.
func Evaluate(
	strategy types.StrategyRecord,
	current types.MarketConditions,
	history []HistoricalSnapshot,
	k int,
	symbolSentiment, globalSentiment, sentimentAgeHours float64,
	isCurrentlyActive bool,
	activeCount int,
	th Thresholds,
) Decision {
	neighbors := KNearest(current, history, k)

	var trades []TradeOutcome
	for _, n := range neighbors {
		trades = append(trades, n.Trades...)
	}

	if len(trades) < th.MinHistoricalTrades {
		return deactivateOrKeep(strategy.ID, isCurrentlyActive, "insufficient historical trades")
	}

	score := ScoreHistory(trades)
	similarity := AverageSimilarity(current, neighbors, history)
	alignment := SentimentAlignment(symbolSentiment, globalSentiment, sentimentAgeHours)

	suitability := RegimeSuitability(strategy.Type, current.Regime)
	expectedSharpe := score.Sharpe * suitability

	d := Decision{
		StrategyID: strategy.ID, ExpectedSharpe: expectedSharpe,
		ConditionSimilarity: similarity, SentimentAlignment: alignment, Score: score,
	}

	if similarity < th.MinSimilarity {
		d.Action, d.Reason = deactivateOrKeepAction(isCurrentlyActive, "condition similarity below threshold")
		return d
	}
	if alignment < th.MinAlignment {
		d.Action, d.Reason = deactivateOrKeepAction(isCurrentlyActive, "sentiment alignment below threshold")
		return d
	}
	if expectedSharpe < th.MinExpectedSharpe {
		d.Action, d.Reason = deactivateOrKeepAction(isCurrentlyActive, "expected Sharpe below threshold")
		return d
	}

	if expectedSharpe >= th.StrongSharpe {
		if !isCurrentlyActive && activeCount >= th.MaxActiveStrategies {
			d.Action = ActionKeep
			d.Reason = "strong candidate but max active strategies reached"
			return d
		}
		d.Action = ActionActivate
		d.Reason = "strong expected Sharpe"
		return d
	}

	// marginal: qualifies but isn't strong
	if isCurrentlyActive {
		d.Action = ActionDeactivate
		d.Reason = "marginal expected Sharpe, deactivating"
	} else {
		d.Action = ActionKeep
		d.Reason = "marginal expected Sharpe, not activating"
	}
	return d
}

func deactivateOrKeep(id string, isActive bool, reason string) Decision {
	action, r := deactivateOrKeepAction(isActive, reason)
	return Decision{StrategyID: id, Action: action, Reason: r}
}

func deactivateOrKeepAction(isActive bool, reason string) (Action, string) {
	if isActive {
		return ActionDeactivate, reason
	}
	return ActionKeep, reason
}
