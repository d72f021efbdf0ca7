package activation

import (
	"math"
	"math/rand"

	"github.com/Edgame2/masterTrade-sub003/pkg/types"
)

// Genome is the breedable representation of a StrategyRecord: numeric
// parameters cross by averaging, categorical fields by coin-flip
// selection, and set-valued fields (symbols, regime preferences) by
// union-and-trim.
type Genome struct {
	Type              types.StrategyType
	Parameters        map[string]float64
	ParameterBounds   map[string][2]float64
	Indicators        []string
	RiskParams        types.RiskParams
	Symbols           []string
	Timeframe         types.Timeframe
	RegimePreferences []types.Regime
	Fitness           float64
}

// GeneticConfig bundles the GA's tunables.
type GeneticConfig struct {
	PopulationSize int
	Generations    int
	MutationRate   float64
	EliteCount     int
	TournamentSize int
	MaxSymbols     int
}

// DefaultGeneticConfig mirrors the defaults used for strategy
// parameter optimization elsewhere in the platform.
func DefaultGeneticConfig() GeneticConfig {
	return GeneticConfig{
		PopulationSize: 30,
		Generations:    20,
		MutationRate:   0.15,
		EliteCount:     2,
		TournamentSize: 3,
		MaxSymbols:     6,
	}
}

// FitnessFunc scores one candidate genome, typically by running it
// against historical conditions via ScoreHistory.
type FitnessFunc func(Genome) float64

// Synthesizer evolves new strategy genomes from a seed population
// drawn from backtest history.
type Synthesizer struct {
	cfg GeneticConfig
	rng *rand.Rand
}

// NewSynthesizer builds a synthesizer seeded from a caller-supplied
// source so results are reproducible in tests.
func NewSynthesizer(cfg GeneticConfig, seed int64) *Synthesizer {
	return &Synthesizer{cfg: cfg, rng: rand.New(rand.NewSource(seed))}
}

// Evolve runs the genetic algorithm for cfg.Generations and returns the
// fittest genome found.
func (s *Synthesizer) Evolve(seed []Genome, fitness FitnessFunc) Genome {
	population := s.initializePopulation(seed)
	scores := s.scorePopulation(population, fitness)

	best := bestOf(population, scores)

	for gen := 0; gen < s.cfg.Generations; gen++ {
		population = s.evolveGeneration(population, scores)
		scores = s.scorePopulation(population, fitness)

		candidate := bestOf(population, scores)
		if candidate.Fitness > best.Fitness {
			best = candidate
		}
	}
	return best
}

func (s *Synthesizer) initializePopulation(seed []Genome) []Genome {
	if len(seed) == 0 {
		return nil
	}
	population := make([]Genome, s.cfg.PopulationSize)
	for i := range population {
		population[i] = s.mutate(cloneGenome(seed[s.rng.Intn(len(seed))]))
	}
	return population
}

func (s *Synthesizer) scorePopulation(population []Genome, fitness FitnessFunc) []float64 {
	scores := make([]float64, len(population))
	for i := range population {
		scores[i] = fitness(population[i])
		population[i].Fitness = scores[i]
	}
	return scores
}

func bestOf(population []Genome, scores []float64) Genome {
	bestIdx := 0
	for i, sc := range scores {
		if sc > scores[bestIdx] {
			bestIdx = i
		}
	}
	g := cloneGenome(population[bestIdx])
	g.Fitness = scores[bestIdx]
	return g
}

func (s *Synthesizer) evolveGeneration(population []Genome, scores []float64) []Genome {
	next := make([]Genome, 0, len(population))

	elite := eliteIndices(scores, s.cfg.EliteCount)
	for _, idx := range elite {
		next = append(next, cloneGenome(population[idx]))
	}

	for len(next) < len(population) {
		p1 := s.tournamentSelect(population, scores)
		p2 := s.tournamentSelect(population, scores)
		child := s.crossover(p1, p2)
		child = s.mutate(child)
		next = append(next, child)
	}
	return next
}

func eliteIndices(scores []float64, n int) []int {
	idx := make([]int, len(scores))
	for i := range idx {
		idx[i] = i
	}
	for i := 0; i < len(idx); i++ {
		for j := i + 1; j < len(idx); j++ {
			if scores[idx[j]] > scores[idx[i]] {
				idx[i], idx[j] = idx[j], idx[i]
			}
		}
	}
	if n > len(idx) {
		n = len(idx)
	}
	return idx[:n]
}

func (s *Synthesizer) tournamentSelect(population []Genome, scores []float64) Genome {
	bestIdx := s.rng.Intn(len(population))
	for i := 1; i < s.cfg.TournamentSize; i++ {
		idx := s.rng.Intn(len(population))
		if scores[idx] > scores[bestIdx] {
			bestIdx = idx
		}
	}
	return population[bestIdx]
}

// crossover breeds a child genome: numeric parameters average, the
// strategy type and timeframe pick one parent by coin flip, symbols
// and regime preferences union and trim to MaxSymbols/as-is.
func (s *Synthesizer) crossover(p1, p2 Genome) Genome {
	child := Genome{
		Parameters:      make(map[string]float64),
		ParameterBounds: p1.ParameterBounds,
	}

	if s.rng.Float64() < 0.5 {
		child.Type = p1.Type
		child.Timeframe = p1.Timeframe
	} else {
		child.Type = p2.Type
		child.Timeframe = p2.Timeframe
	}

	for k, v1 := range p1.Parameters {
		if v2, ok := p2.Parameters[k]; ok {
			child.Parameters[k] = (v1 + v2) / 2
		} else {
			child.Parameters[k] = v1
		}
	}
	for k, v2 := range p2.Parameters {
		if _, ok := child.Parameters[k]; !ok {
			child.Parameters[k] = v2
		}
	}

	child.RiskParams = types.RiskParams{
		PositionSizePct: (p1.RiskParams.PositionSizePct + p2.RiskParams.PositionSizePct) / 2,
		MaxPositions:    chooseInt(s.rng, p1.RiskParams.MaxPositions, p2.RiskParams.MaxPositions),
		StopLossPct:     (p1.RiskParams.StopLossPct + p2.RiskParams.StopLossPct) / 2,
		TakeProfitPct:   (p1.RiskParams.TakeProfitPct + p2.RiskParams.TakeProfitPct) / 2,
	}

	child.Indicators = unionTrim(p1.Indicators, p2.Indicators, 0)
	child.Symbols = unionTrim(p1.Symbols, p2.Symbols, s.cfg.MaxSymbols)
	child.RegimePreferences = unionRegimes(p1.RegimePreferences, p2.RegimePreferences)

	return child
}

// mutate applies bounded jitter to numeric parameters at
// cfg.MutationRate per gene and, at the same rate, a jitter of up to
// ±10% to the stop-loss percentage. Categorical fields (type,
// timeframe, indicators, symbols, regimes) are not mutated.
func (s *Synthesizer) mutate(g Genome) Genome {
	mutated := cloneGenome(g)

	for k, v := range mutated.Parameters {
		if s.rng.Float64() >= s.cfg.MutationRate {
			continue
		}
		bounds, ok := mutated.ParameterBounds[k]
		lo, hi := 0.0, math.MaxFloat64
		if ok {
			lo, hi = bounds[0], bounds[1]
		}
		span := hi - lo
		if span <= 0 || math.IsInf(span, 0) {
			span = math.Abs(v) + 1
		}
		jittered := v + s.rng.NormFloat64()*span*0.1
		if ok {
			jittered = math.Max(lo, math.Min(hi, jittered))
		}
		mutated.Parameters[k] = jittered
	}

	if s.rng.Float64() < s.cfg.MutationRate {
		mutated.RiskParams.StopLossPct *= 1 + (s.rng.Float64()-0.5)*0.2
	}

	return mutated
}

func cloneGenome(g Genome) Genome {
	clone := g
	clone.Parameters = make(map[string]float64, len(g.Parameters))
	for k, v := range g.Parameters {
		clone.Parameters[k] = v
	}
	clone.Indicators = append([]string(nil), g.Indicators...)
	clone.Symbols = append([]string(nil), g.Symbols...)
	clone.RegimePreferences = append([]types.Regime(nil), g.RegimePreferences...)
	return clone
}

func chooseInt(rng *rand.Rand, a, b int) int {
	if rng.Float64() < 0.5 {
		return a
	}
	return b
}

func unionTrim(a, b []string, max int) []string {
	seen := make(map[string]bool)
	var out []string
	for _, x := range append(append([]string{}, a...), b...) {
		if !seen[x] {
			seen[x] = true
			out = append(out, x)
		}
	}
	if max > 0 && len(out) > max {
		out = out[:max]
	}
	return out
}

func unionRegimes(a, b []types.Regime) []types.Regime {
	seen := make(map[types.Regime]bool)
	var out []types.Regime
	for _, x := range append(append([]types.Regime{}, a...), b...) {
		if !seen[x] {
			seen[x] = true
			out = append(out, x)
		}
	}
	return out
}
