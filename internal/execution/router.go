package execution

import (
	"sort"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Edgame2/masterTrade-sub003/pkg/types"
)

const priceLiquidityFeeEpsilon = 1e-8

// Router selects one or more venues for a slice quantity from live
// per-venue quotes.
type Router struct {
	logger *zap.Logger
	quotes map[string]types.ExchangeQuote // keyed by exchange
}

// NewRouter builds a Router with no quotes loaded.
func NewRouter(logger *zap.Logger) *Router {
	return &Router{logger: logger.Named("execution.router"), quotes: make(map[string]types.ExchangeQuote)}
}

// UpdateQuote records (or replaces) the latest quote for a venue.
func (r *Router) UpdateQuote(q types.ExchangeQuote) {
	r.quotes[q.Exchange] = q
}

func (r *Router) snapshot() []types.ExchangeQuote {
	out := make([]types.ExchangeQuote, 0, len(r.quotes))
	for _, q := range r.quotes {
		out = append(out, q)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Exchange < out[j].Exchange })
	return out
}

func sidePrice(q types.ExchangeQuote, side types.OrderSide) decimal.Decimal {
	if side == types.OrderSideBuy {
		return q.Ask
	}
	return q.Bid
}

func sideSize(q types.ExchangeQuote, side types.OrderSide) decimal.Decimal {
	if side == types.OrderSideBuy {
		return q.AskSize
	}
	return q.BidSize
}

func liquidityScore(size, quantity decimal.Decimal) float64 {
	if quantity.IsZero() {
		return 0
	}
	score, _ := size.Div(quantity).Mul(decimal.NewFromInt(100)).Float64()
	if score > 100 {
		return 100
	}
	return score
}

// Route selects a single venue for quantity under strategy. Returns
// false when no quotes are loaded for this router.
func (r *Router) Route(side types.OrderSide, quantity decimal.Decimal, strategy types.RoutingStrategy) (types.RoutingDecision, bool) {
	quotes := r.snapshot()
	if len(quotes) == 0 {
		return types.RoutingDecision{}, false
	}

	var selected types.ExchangeQuote
	switch strategy {
	case types.RoutingBestPrice:
		selected = selectBestPrice(quotes, side)
	case types.RoutingBestLiquidity:
		selected = selectBestLiquidity(quotes, side, quantity)
	case types.RoutingLowestFee:
		selected = selectLowestFee(quotes)
	default:
		selected = selectBalanced(quotes, side, quantity)
	}

	price := sidePrice(selected, side)
	size := sideSize(selected, side)
	decision := types.RoutingDecision{
		Exchange: selected.Exchange,
		Quantity: quantity,
		Price:    price,
		Score:    liquidityScore(size, quantity),
	}
	r.logger.Info("routed order", zap.String("exchange", decision.Exchange), zap.String("strategy", string(strategy)))
	return decision, true
}

func selectBestPrice(quotes []types.ExchangeQuote, side types.OrderSide) types.ExchangeQuote {
	best := quotes[0]
	for _, q := range quotes[1:] {
		if side == types.OrderSideBuy {
			if q.Ask.LessThan(best.Ask) {
				best = q
			}
		} else if q.Bid.GreaterThan(best.Bid) {
			best = q
		}
	}
	return best
}

func selectBestLiquidity(quotes []types.ExchangeQuote, side types.OrderSide, quantity decimal.Decimal) types.ExchangeQuote {
	candidates := make([]types.ExchangeQuote, 0, len(quotes))
	for _, q := range quotes {
		if sideSize(q, side).GreaterThanOrEqual(quantity) {
			candidates = append(candidates, q)
		}
	}
	if len(candidates) == 0 {
		candidates = quotes
	}
	best := candidates[0]
	for _, q := range candidates[1:] {
		if sideSize(q, side).GreaterThan(sideSize(best, side)) {
			best = q
		}
	}
	return best
}

func selectLowestFee(quotes []types.ExchangeQuote) types.ExchangeQuote {
	best := quotes[0]
	for _, q := range quotes[1:] {
		if q.FeeBps.LessThan(best.FeeBps) {
			best = q
		}
	}
	return best
}

// normalizedScore maps value into [0,100] relative to [lo,hi], higher-is-better
// when invert is false.
func normalizedScore(value, lo, hi decimal.Decimal, invert bool) float64 {
	rangeF, _ := hi.Sub(lo).Float64()
	valF, _ := value.Sub(lo).Float64()
	pct := valF / (rangeF + priceLiquidityFeeEpsilon) * 100
	if invert {
		return 100 - pct
	}
	return pct
}

// selectBalanced reproduces the 50/30/20 weighted score over
// normalized price/liquidity/fee metrics (spec §4.4).
func selectBalanced(quotes []types.ExchangeQuote, side types.OrderSide, quantity decimal.Decimal) types.ExchangeQuote {
	minAsk, maxAsk := quotes[0].Ask, quotes[0].Ask
	minBid, maxBid := quotes[0].Bid, quotes[0].Bid
	minFee, maxFee := quotes[0].FeeBps, quotes[0].FeeBps
	for _, q := range quotes[1:] {
		if q.Ask.LessThan(minAsk) {
			minAsk = q.Ask
		}
		if q.Ask.GreaterThan(maxAsk) {
			maxAsk = q.Ask
		}
		if q.Bid.LessThan(minBid) {
			minBid = q.Bid
		}
		if q.Bid.GreaterThan(maxBid) {
			maxBid = q.Bid
		}
		if q.FeeBps.LessThan(minFee) {
			minFee = q.FeeBps
		}
		if q.FeeBps.GreaterThan(maxFee) {
			maxFee = q.FeeBps
		}
	}

	best := quotes[0]
	bestScore := -1.0
	for _, q := range quotes {
		var priceScore float64
		if side == types.OrderSideBuy {
			priceScore = normalizedScore(q.Ask, minAsk, maxAsk, true)
		} else {
			priceScore = normalizedScore(q.Bid, minBid, maxBid, false)
		}
		liqScore := liquidityScore(sideSize(q, side), quantity)
		feeScore := normalizedScore(q.FeeBps, minFee, maxFee, true)

		total := 0.5*priceScore + 0.3*liqScore + 0.2*feeScore
		if total > bestScore {
			bestScore = total
			best = q
		}
	}
	return best
}

// RouteSplit allocates quantity across every quoted venue, best price
// first, greedily filling each venue's available size (spec §4.4
// split routing). Returns one decision per venue used; the final
// decision's quantity may be less than its quoted size if total
// quantity is exhausted first.
func (r *Router) RouteSplit(side types.OrderSide, totalQuantity decimal.Decimal) []types.RoutingDecision {
	quotes := r.snapshot()
	if len(quotes) == 0 {
		return nil
	}
	sort.Slice(quotes, func(i, j int) bool {
		if side == types.OrderSideBuy {
			return quotes[i].Ask.LessThan(quotes[j].Ask)
		}
		return quotes[i].Bid.GreaterThan(quotes[j].Bid)
	})

	decisions := make([]types.RoutingDecision, 0, len(quotes))
	remaining := totalQuantity
	for _, q := range quotes {
		if !remaining.IsPositive() {
			break
		}
		available := sideSize(q, side)
		allocated := remaining
		if available.LessThan(remaining) {
			allocated = available
		}
		if !allocated.IsPositive() {
			continue
		}
		decisions = append(decisions, types.RoutingDecision{
			Exchange: q.Exchange,
			Quantity: allocated,
			Price:    sidePrice(q, side),
			Score:    liquidityScore(allocated, totalQuantity),
		})
		remaining = remaining.Sub(allocated)
	}
	r.logger.Info("split order across venues", zap.Int("venues", len(decisions)))
	return decisions
}
