package activation

import (
	"testing"
	"time"

	"github.com/Edgame2/masterTrade-sub003/pkg/types"
)

func candle(close float64) types.OHLCV {
	return types.OHLCV{Close: decimalFromFloat(close), High: decimalFromFloat(close), Low: decimalFromFloat(close)}
}

func TestClassifyRegimeHighVolatility(t *testing.T) {
	candles := make([]types.OHLCV, 0, 40)
	price := 100.0
	for i := 0; i < 40; i++ {
		if i%2 == 0 {
			price = 100 + 8
		} else {
			price = 100 - 8
		}
		candles = append(candles, candle(price))
	}
	regime := ClassifyRegime(candles)
	if regime != types.RegimeHighVol {
		t.Fatalf("expected high_volatility, got %s", regime)
	}
}

func TestClassifyRegimeBullTrending(t *testing.T) {
	candles := make([]types.OHLCV, 0, 40)
	price := 100.0
	for i := 0; i < 40; i++ {
		price += 0.1
		candles = append(candles, candle(price))
	}
	regime := ClassifyRegime(candles)
	if regime != types.RegimeBullTrending {
		t.Fatalf("expected bull_trending, got %s", regime)
	}
}

func TestClassifyRegimeInsufficientHistory(t *testing.T) {
	candles := []types.OHLCV{candle(100), candle(101)}
	if got := ClassifyRegime(candles); got != types.RegimeSidewaysRange {
		t.Fatalf("expected sideways_range default, got %s", got)
	}
}

func TestKNearestFindsClosestConditions(t *testing.T) {
	near := types.MarketConditions{Volatility: 0.01, TrendStrength: 0.5, VolumeTrend: 0.1, SentimentScore: 0.2, FearGreedIndex: 50, BTCCorrelation: 0.5, Liquidity: 0.8, Macro: 0.1}
	far := types.MarketConditions{Volatility: 0.9, TrendStrength: -0.9, VolumeTrend: -0.9, SentimentScore: -0.9, FearGreedIndex: 5, BTCCorrelation: -0.9, Liquidity: 0.1, Macro: -0.9}
	candidate := types.MarketConditions{Volatility: 0.011, TrendStrength: 0.49, VolumeTrend: 0.11, SentimentScore: 0.19, FearGreedIndex: 51, BTCCorrelation: 0.49, Liquidity: 0.79, Macro: 0.11}

	history := []HistoricalSnapshot{
		{Conditions: near, Trades: []TradeOutcome{{ReturnPct: 0.02, Won: true}}},
		{Conditions: far, Trades: []TradeOutcome{{ReturnPct: -0.05, Won: false}}},
	}

	nearest := KNearest(candidate, history, 1)
	if len(nearest) != 1 {
		t.Fatalf("expected 1 neighbor, got %d", len(nearest))
	}
	if nearest[0].Conditions != near {
		t.Fatalf("expected nearest snapshot to be the close one")
	}
}

func TestEvaluateDeactivatesOnInsufficientHistory(t *testing.T) {
	strategy := types.StrategyRecord{ID: "s1", Type: types.StrategyMomentum}
	conditions := types.MarketConditions{Regime: types.RegimeBullTrending}

	d := Evaluate(strategy, conditions, nil, 5, 0.5, 0.5, 1, true, 1, DefaultThresholds(5))
	if d.Action != ActionDeactivate {
		t.Fatalf("expected deactivate with no history, got %s (%s)", d.Action, d.Reason)
	}
}

func TestEvaluateActivatesStrongCandidate(t *testing.T) {
	strategy := types.StrategyRecord{ID: "s1", Type: types.StrategyMomentum}
	conditions := types.MarketConditions{Regime: types.RegimeBullTrending, TrendStrength: 0.8}

	var trades []TradeOutcome
	for i := 0; i < 30; i++ {
		trades = append(trades, TradeOutcome{ReturnPct: 0.02 + 0.01*float64(i%2), Won: true})
	}
	history := []HistoricalSnapshot{{Conditions: conditions, Trades: trades}}

	d := Evaluate(strategy, conditions, history, 5, 0.8, 0.8, 1, false, 0, DefaultThresholds(5))
	if d.Action != ActionActivate {
		t.Fatalf("expected activate for strong uniform winning history, got %s (%s)", d.Action, d.Reason)
	}
}

func TestEvaluateCapsAtMaxActiveStrategies(t *testing.T) {
	strategy := types.StrategyRecord{ID: "s1", Type: types.StrategyMomentum}
	conditions := types.MarketConditions{Regime: types.RegimeBullTrending, TrendStrength: 0.8}

	var trades []TradeOutcome
	for i := 0; i < 30; i++ {
		trades = append(trades, TradeOutcome{ReturnPct: 0.02 + 0.01*float64(i%2), Won: true})
	}
	history := []HistoricalSnapshot{{Conditions: conditions, Trades: trades}}

	th := DefaultThresholds(2)
	d := Evaluate(strategy, conditions, history, 5, 0.8, 0.8, 1, false, 2, th)
	if d.Action != ActionKeep {
		t.Fatalf("expected keep when at capacity, got %s", d.Action)
	}
}

func TestGeneticCrossoverAveragesNumericParameters(t *testing.T) {
	s := NewSynthesizer(DefaultGeneticConfig(), 42)

	p1 := Genome{
		Type: types.StrategyMomentum, Timeframe: types.Timeframe1h,
		Parameters:      map[string]float64{"rsi_period": 10},
		ParameterBounds: map[string][2]float64{"rsi_period": {5, 30}},
		Symbols:         []string{"BTC-USD"},
	}
	p2 := Genome{
		Type: types.StrategyMomentum, Timeframe: types.Timeframe1h,
		Parameters:      map[string]float64{"rsi_period": 20},
		ParameterBounds: map[string][2]float64{"rsi_period": {5, 30}},
		Symbols:         []string{"ETH-USD"},
	}

	child := s.crossover(p1, p2)
	if child.Parameters["rsi_period"] != 15 {
		t.Fatalf("expected averaged parameter 15, got %v", child.Parameters["rsi_period"])
	}
	if len(child.Symbols) != 2 {
		t.Fatalf("expected union of symbols, got %v", child.Symbols)
	}
}

func TestGeneticEvolveImprovesFitness(t *testing.T) {
	s := NewSynthesizer(GeneticConfig{PopulationSize: 10, Generations: 5, MutationRate: 0.3, EliteCount: 1, TournamentSize: 3, MaxSymbols: 3}, 7)

	seed := []Genome{{
		Type:            types.StrategyMomentum,
		Parameters:      map[string]float64{"x": 0},
		ParameterBounds: map[string][2]float64{"x": {0, 100}},
	}}

	fitness := func(g Genome) float64 { return -((g.Parameters["x"] - 50) * (g.Parameters["x"] - 50)) }

	initial := fitness(seed[0])
	best := s.Evolve(seed, fitness)
	if best.Fitness < initial {
		t.Fatalf("expected evolution to not regress fitness: initial=%v best=%v", initial, best.Fitness)
	}
}

func TestPatternLearnerAccruesRewardAndPenalty(t *testing.T) {
	pl := NewPatternLearner(testLogger())
	key := PatternKey{Type: types.StrategyMomentum, Timeframe: types.Timeframe1h, Indicators: "rsi,macd"}

	pl.RecordOutcome(key, 0.04, 1.8, true, types.BiasRiskOn, types.RegimeBullTrending, time.Now())
	pl.RecordOutcome(key, -0.02, 0, false, types.BiasFearBuy, types.RegimeBearTrending, time.Now())

	score := pl.Score(key)
	if score.Trades != 2 || score.Wins != 1 {
		t.Fatalf("expected 2 trades 1 win, got %+v", score)
	}
	expected := 1.8*0.04 - 0.02
	if diff := score.Score - expected; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("expected score %v, got %v", expected, score.Score)
	}
	if score.BestRegime() != types.RegimeBullTrending {
		t.Fatalf("expected bull_trending to dominate, got %s", score.BestRegime())
	}
}

// The t-test/Mann-Whitney/chi-square/Sharpe-difference/SPRT statistical
// significance tests live in internal/activation/abtest and are tested
// there.
