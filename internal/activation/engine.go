package activation

import (
	"sync"
	"time"

	"github.com/Edgame2/masterTrade-sub003/internal/activation/abtest"
	"github.com/Edgame2/masterTrade-sub003/pkg/types"
	"go.uber.org/zap"
)

// Engine is the stateful service wrapping regime classification,
// historical condition matching, the activate/keep/deactivate
// decision, pattern learning, and genome synthesis behind a single
// mutex-guarded surface, mirroring the shape of the platform's other
// manager types.
type Engine struct {
	logger *zap.Logger
	mu     sync.RWMutex

	thresholds   Thresholds
	strategies   map[string]types.StrategyRecord
	activeSet    map[string]bool
	history      map[types.StrategyType][]HistoricalSnapshot
	learner      *PatternLearner
	synth        *Synthesizer
	k            int
}

// EngineConfig bundles the engine's tunables.
type EngineConfig struct {
	Thresholds Thresholds
	K          int
	Genetic    GeneticConfig
	Seed       int64
}

// NewEngine creates an empty activation engine.
func NewEngine(logger *zap.Logger, cfg EngineConfig) *Engine {
	return &Engine{
		logger:     logger.Named("activation-engine"),
		thresholds: cfg.Thresholds,
		strategies: make(map[string]types.StrategyRecord),
		activeSet:  make(map[string]bool),
		history:    make(map[types.StrategyType][]HistoricalSnapshot),
		learner:    NewPatternLearner(logger),
		synth:      NewSynthesizer(cfg.Genetic, cfg.Seed),
		k:          cfg.K,
	}
}

// Register adds or replaces a candidate strategy.
func (e *Engine) Register(strategy types.StrategyRecord) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.strategies[strategy.ID] = strategy
	if strategy.Status == types.StrategyStatusActive {
		e.activeSet[strategy.ID] = true
	}
}

// RecordHistory attaches a historical condition/outcome snapshot used
// for k-nearest matching.
func (e *Engine) RecordHistory(strategyType types.StrategyType, snapshot HistoricalSnapshot) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.history[strategyType] = append(e.history[strategyType], snapshot)
}

// EvaluateAll runs the activate/keep/deactivate decision for every
// registered strategy against the current conditions, enforcing the
// max-active-strategies cap across the whole candidate set.
func (e *Engine) EvaluateAll(current types.MarketConditions, symbolSentiment, globalSentiment, sentimentAgeHours float64) []Decision {
	e.mu.RLock()
	strategies := make([]types.StrategyRecord, 0, len(e.strategies))
	for _, s := range e.strategies {
		strategies = append(strategies, s)
	}
	activeCount := len(e.activeSet)
	e.mu.RUnlock()

	decisions := make([]Decision, 0, len(strategies))
	for _, s := range strategies {
		e.mu.RLock()
		isActive := e.activeSet[s.ID]
		hist := e.history[s.Type]
		e.mu.RUnlock()

		d := Evaluate(s, current, hist, e.k, symbolSentiment, globalSentiment, sentimentAgeHours, isActive, activeCount, e.thresholds)
		decisions = append(decisions, d)

		e.mu.Lock()
		switch d.Action {
		case ActionActivate:
			if !isActive {
				activeCount++
			}
			e.activeSet[s.ID] = true
		case ActionDeactivate:
			if isActive {
				activeCount--
			}
			delete(e.activeSet, s.ID)
		}
		e.mu.Unlock()
	}
	return decisions
}

// RecordOutcome feeds a completed trade's reward/penalty into the
// pattern learner, keyed by strategy type/timeframe/indicators.
func (e *Engine) RecordOutcome(strategy types.StrategyRecord, returnPct, sharpe float64, won bool, regime types.Regime, at time.Time) {
	key := PatternKey{Type: strategy.Type, Timeframe: strategy.Timeframe, Indicators: joinIndicators(strategy.Indicators)}
	e.learner.RecordOutcome(key, returnPct, sharpe, won, strategy.SentimentProfile.Bias, regime, at)
}

// PatternScore exposes the learner's accrued score for a strategy's pattern bucket.
func (e *Engine) PatternScore(strategy types.StrategyRecord) PatternScore {
	key := PatternKey{Type: strategy.Type, Timeframe: strategy.Timeframe, Indicators: joinIndicators(strategy.Indicators)}
	return e.learner.Score(key)
}

// ComparisonResult bundles the A/B significance tests run between two
// strategies' recorded pattern outcomes.
type ComparisonResult struct {
	Control    PatternScore
	Treatment  PatternScore
	TTest      abtest.SignificanceTest
	ChiSquare  abtest.SignificanceTest
	Sharpe     abtest.SignificanceTest
	SPRT       abtest.SPRTResult
}

// CompareStrategies runs the full abtest suite between a control and
// treatment strategy's recorded pattern outcomes: the t-test and
// Sharpe-difference test on their raw returns, the chi-square test on
// win/loss counts, and a SPRT decision for early stopping.
func (e *Engine) CompareStrategies(control, treatment types.StrategyRecord, confidenceLevel float64) ComparisonResult {
	controlScore := e.PatternScore(control)
	treatmentScore := e.PatternScore(treatment)

	return ComparisonResult{
		Control:   controlScore,
		Treatment: treatmentScore,
		TTest:     abtest.TTest(controlScore.Returns, treatmentScore.Returns, confidenceLevel),
		ChiSquare: abtest.ChiSquareTest(controlScore.Wins, controlScore.Trades-controlScore.Wins, treatmentScore.Wins, treatmentScore.Trades-treatmentScore.Wins, confidenceLevel),
		Sharpe:    abtest.SharpeDifferenceTest(controlScore.Returns, treatmentScore.Returns, confidenceLevel),
		SPRT:      abtest.SequentialProbabilityRatioTest(controlScore.Wins, controlScore.Trades-controlScore.Wins, treatmentScore.Wins, treatmentScore.Trades-treatmentScore.Wins, 1-confidenceLevel, 0.20),
	}
}

// Synthesize evolves a new strategy genome from the given seed genomes,
// scoring each candidate with the caller-supplied fitness function.
func (e *Engine) Synthesize(seed []Genome, fitness FitnessFunc) Genome {
	return e.synth.Evolve(seed, fitness)
}

// Get returns a registered strategy by ID.
func (e *Engine) Get(id string) (types.StrategyRecord, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	s, ok := e.strategies[id]
	return s, ok
}

// ActiveStrategyIDs returns the current active set.
func (e *Engine) ActiveStrategyIDs() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	ids := make([]string, 0, len(e.activeSet))
	for id := range e.activeSet {
		ids = append(ids, id)
	}
	return ids
}

func joinIndicators(indicators []string) string {
	out := ""
	for i, ind := range indicators {
		if i > 0 {
			out += ","
		}
		out += ind
	}
	return out
}
