package activation

import (
	"math"
	"sort"

	"github.com/Edgame2/masterTrade-sub003/pkg/types"
)

// HistoricalSnapshot pairs a past market-conditions reading with the
// trades a strategy took while those conditions held.
type HistoricalSnapshot struct {
	Conditions types.MarketConditions
	Trades     []TradeOutcome
}

// TradeOutcome is the minimal per-trade record the activation engine
// needs to score a strategy's historical performance.
type TradeOutcome struct {
	ReturnPct float64
	Won       bool
}

// featureStats holds per-feature mean/stddev used to standardize the
// 8-feature vector before Euclidean distance comparisons.
type featureStats struct {
	mean [8]float64
	std  [8]float64
}

func computeFeatureStats(history []HistoricalSnapshot) featureStats {
	var stats featureStats
	if len(history) == 0 {
		for i := range stats.std {
			stats.std[i] = 1
		}
		return stats
	}

	n := float64(len(history))
	for _, h := range history {
		fv := h.Conditions.FeatureVector()
		for i, v := range fv {
			stats.mean[i] += v
		}
	}
	for i := range stats.mean {
		stats.mean[i] /= n
	}

	for _, h := range history {
		fv := h.Conditions.FeatureVector()
		for i, v := range fv {
			d := v - stats.mean[i]
			stats.std[i] += d * d
		}
	}
	for i := range stats.std {
		if n > 1 {
			stats.std[i] = math.Sqrt(stats.std[i] / (n - 1))
		}
		if stats.std[i] == 0 {
			stats.std[i] = 1
		}
	}
	return stats
}

func standardize(fv [8]float64, st featureStats) [8]float64 {
	var out [8]float64
	for i, v := range fv {
		out[i] = (v - st.mean[i]) / st.std[i]
	}
	return out
}

func euclidean(a, b [8]float64) float64 {
	sum := 0.0
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}

type neighbor struct {
	snapshot HistoricalSnapshot
	distance float64
}

// KNearest finds the k historical snapshots whose standardized feature
// vector is closest (Euclidean) to candidate, nearest first.
func KNearest(candidate types.MarketConditions, history []HistoricalSnapshot, k int) []HistoricalSnapshot {
	if len(history) == 0 || k <= 0 {
		return nil
	}

	st := computeFeatureStats(history)
	target := standardize(candidate.FeatureVector(), st)

	neighbors := make([]neighbor, 0, len(history))
	for _, h := range history {
		d := euclidean(standardize(h.Conditions.FeatureVector(), st), target)
		neighbors = append(neighbors, neighbor{snapshot: h, distance: d})
	}

	sort.Slice(neighbors, func(i, j int) bool { return neighbors[i].distance < neighbors[j].distance })

	if k > len(neighbors) {
		k = len(neighbors)
	}
	out := make([]HistoricalSnapshot, k)
	for i := 0; i < k; i++ {
		out[i] = neighbors[i].snapshot
	}
	return out
}

// AverageSimilarity converts the mean of the nearest-neighbor
// distances into a [0,1] similarity score (1 = identical conditions),
// using a soft exponential decay so similarity degrades gracefully
// rather than hitting zero at a fixed distance threshold.
func AverageSimilarity(candidate types.MarketConditions, neighbors []HistoricalSnapshot, history []HistoricalSnapshot) float64 {
	if len(neighbors) == 0 {
		return 0
	}
	st := computeFeatureStats(history)
	target := standardize(candidate.FeatureVector(), st)

	total := 0.0
	for _, n := range neighbors {
		d := euclidean(standardize(n.Conditions.FeatureVector(), st), target)
		total += d
	}
	avgDist := total / float64(len(neighbors))
	return math.Exp(-avgDist / float64(len(target)))
}
