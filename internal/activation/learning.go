package activation

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/Edgame2/masterTrade-sub003/pkg/types"
	"go.uber.org/zap"
)

// PatternKey identifies a reward/penalty bucket: strategy type, the
// timeframe it ran on, and the indicator list it used.
type PatternKey struct {
	Type       types.StrategyType
	Timeframe  types.Timeframe
	Indicators string // comma-joined indicator names, in the order given
}

func (k PatternKey) String() string {
	return fmt.Sprintf("%s_%s_%s", k.Type, k.Timeframe, k.Indicators)
}

// PatternScore accumulates reward for one pattern bucket plus its
// attributed sentiment-bias and regime-preference breakdowns.
type PatternScore struct {
	Key          PatternKey
	Score        float64
	Trades       int
	Wins         int
	LastUpdated  time.Time
	BySentiment  map[types.SentimentBias]float64
	ByRegime     map[types.Regime]float64
	// Returns holds the trailing returnPct of every recorded trade,
	// capped at maxReturnsHistory, feeding abtest's significance tests
	// when two patterns are compared head to head.
	Returns []float64
}

// maxReturnsHistory bounds PatternScore.Returns so a long-lived pattern
// bucket doesn't grow its sample history without limit.
const maxReturnsHistory = 500

// PatternLearner tracks reward/penalty accrual per pattern bucket so
// the synthesizer and decision engine can favor patterns that have
// actually paid off.
type PatternLearner struct {
	logger *zap.Logger
	mu     sync.RWMutex
	scores map[string]*PatternScore
}

// NewPatternLearner creates an empty learner.
func NewPatternLearner(logger *zap.Logger) *PatternLearner {
	return &PatternLearner{logger: logger.Named("pattern-learner"), scores: make(map[string]*PatternScore)}
}

func (pl *PatternLearner) ensure(key PatternKey) *PatternScore {
	k := key.String()
	s, ok := pl.scores[k]
	if !ok {
		s = &PatternScore{
			Key:         key,
			BySentiment: make(map[types.SentimentBias]float64),
			ByRegime:    make(map[types.Regime]float64),
		}
		pl.scores[k] = s
	}
	return s
}

// RecordOutcome applies the reward/penalty rule for one completed
// trade: winners add sharpe*returnPct to the pattern score, losers
// subtract |returnPct|, both attributed to the active sentiment bias
// and regime at trade time.
func (pl *PatternLearner) RecordOutcome(key PatternKey, returnPct, sharpe float64, won bool, bias types.SentimentBias, regime types.Regime, at time.Time) {
	pl.mu.Lock()
	defer pl.mu.Unlock()

	s := pl.ensure(key)
	s.Trades++
	s.LastUpdated = at

	var delta float64
	if won {
		s.Wins++
		delta = sharpe * returnPct
	} else {
		delta = -math.Abs(returnPct)
	}
	s.Score += delta
	s.BySentiment[bias] += delta
	s.ByRegime[regime] += delta
	s.Returns = append(s.Returns, returnPct)
	if len(s.Returns) > maxReturnsHistory {
		s.Returns = s.Returns[len(s.Returns)-maxReturnsHistory:]
	}

	pl.logger.Debug("pattern outcome recorded",
		zap.String("pattern", key.String()),
		zap.Float64("delta", delta),
		zap.Float64("score", s.Score))
}

// Score returns a copy of a pattern's accumulated state, or the zero
// value with Trades==0 if the pattern has never been recorded.
func (pl *PatternLearner) Score(key PatternKey) PatternScore {
	pl.mu.RLock()
	defer pl.mu.RUnlock()

	s, ok := pl.scores[key.String()]
	if !ok {
		return PatternScore{Key: key}
	}
	return cloneScore(s)
}

// Top returns the n highest-scoring patterns, descending.
func (pl *PatternLearner) Top(n int) []PatternScore {
	pl.mu.RLock()
	defer pl.mu.RUnlock()

	all := make([]PatternScore, 0, len(pl.scores))
	for _, s := range pl.scores {
		all = append(all, cloneScore(s))
	}
	for i := 0; i < len(all); i++ {
		for j := i + 1; j < len(all); j++ {
			if all[j].Score > all[i].Score {
				all[i], all[j] = all[j], all[i]
			}
		}
	}
	if n > len(all) {
		n = len(all)
	}
	return all[:n]
}

// BestSentiment returns the sentiment bias that has contributed the
// most positive score to this pattern, used to bias genome synthesis
// toward conditions that historically worked.
func (s PatternScore) BestSentiment() types.SentimentBias {
	best := types.BiasBalanced
	bestScore := math.Inf(-1)
	for bias, score := range s.BySentiment {
		if score > bestScore {
			best, bestScore = bias, score
		}
	}
	return best
}

// BestRegime returns the regime that has contributed the most positive
// score to this pattern.
func (s PatternScore) BestRegime() types.Regime {
	best := types.RegimeSidewaysRange
	bestScore := math.Inf(-1)
	for regime, score := range s.ByRegime {
		if score > bestScore {
			best, bestScore = regime, score
		}
	}
	return best
}

func cloneScore(s *PatternScore) PatternScore {
	clone := *s
	clone.BySentiment = make(map[types.SentimentBias]float64, len(s.BySentiment))
	for k, v := range s.BySentiment {
		clone.BySentiment[k] = v
	}
	clone.ByRegime = make(map[types.Regime]float64, len(s.ByRegime))
	for k, v := range s.ByRegime {
		clone.ByRegime[k] = v
	}
	clone.Returns = append([]float64(nil), s.Returns...)
	return clone
}
