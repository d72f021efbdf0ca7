package execution

import (
	"testing"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Edgame2/masterTrade-sub003/pkg/types"
)

func dec(f float64) decimal.Decimal { return decimal.NewFromFloat(f) }

func sampleQuotes() []types.ExchangeQuote {
	return []types.ExchangeQuote{
		{Exchange: "binance", Bid: dec(99.9), Ask: dec(100.0), BidSize: dec(5), AskSize: dec(5), FeeBps: dec(10)},
		{Exchange: "okx", Bid: dec(99.8), Ask: dec(100.2), BidSize: dec(50), AskSize: dec(50), FeeBps: dec(5)},
		{Exchange: "coinbase", Bid: dec(100.0), Ask: dec(100.1), BidSize: dec(2), AskSize: dec(2), FeeBps: dec(20)},
	}
}

func newTestRouter(t *testing.T) *Router {
	t.Helper()
	r := NewRouter(zap.NewNop())
	for _, q := range sampleQuotes() {
		r.UpdateQuote(q)
	}
	return r
}

func TestRouter_BestPrice_Buy_PicksLowestAsk(t *testing.T) {
	r := newTestRouter(t)
	decision, ok := r.Route(types.OrderSideBuy, dec(1), types.RoutingBestPrice)
	if !ok {
		t.Fatalf("expected a routing decision")
	}
	if decision.Exchange != "binance" {
		t.Fatalf("expected binance (lowest ask 100.0), got %s", decision.Exchange)
	}
}

func TestRouter_BestPrice_Sell_PicksHighestBid(t *testing.T) {
	r := newTestRouter(t)
	decision, ok := r.Route(types.OrderSideSell, dec(1), types.RoutingBestPrice)
	if !ok {
		t.Fatalf("expected a routing decision")
	}
	if decision.Exchange != "coinbase" {
		t.Fatalf("expected coinbase (highest bid 100.0), got %s", decision.Exchange)
	}
}

func TestRouter_BestLiquidity_PrefersDeepestBook(t *testing.T) {
	r := newTestRouter(t)
	decision, ok := r.Route(types.OrderSideBuy, dec(1), types.RoutingBestLiquidity)
	if !ok {
		t.Fatalf("expected a routing decision")
	}
	if decision.Exchange != "okx" {
		t.Fatalf("expected okx (deepest ask size 50), got %s", decision.Exchange)
	}
}

func TestRouter_LowestFee(t *testing.T) {
	r := newTestRouter(t)
	decision, ok := r.Route(types.OrderSideBuy, dec(1), types.RoutingLowestFee)
	if !ok {
		t.Fatalf("expected a routing decision")
	}
	if decision.Exchange != "okx" {
		t.Fatalf("expected okx (lowest fee 5bps), got %s", decision.Exchange)
	}
}

func TestRouter_Balanced_FavorsLiquidityAndFeeOverSmallPriceEdge(t *testing.T) {
	r := NewRouter(zap.NewNop())
	r.UpdateQuote(types.ExchangeQuote{Exchange: "binance", Bid: dec(99.9), Ask: dec(100.0), BidSize: dec(1), AskSize: dec(1), FeeBps: dec(50)})
	r.UpdateQuote(types.ExchangeQuote{Exchange: "okx", Bid: dec(99.85), Ask: dec(100.05), BidSize: dec(100), AskSize: dec(100), FeeBps: dec(1)})
	r.UpdateQuote(types.ExchangeQuote{Exchange: "coinbase", Bid: dec(99.7), Ask: dec(100.2), BidSize: dec(10), AskSize: dec(10), FeeBps: dec(10)})

	decision, ok := r.Route(types.OrderSideBuy, dec(10), types.RoutingBalanced)
	if !ok {
		t.Fatalf("expected a routing decision")
	}
	// binance has the best headline price but almost no depth and the
	// worst fee; the 50/30/20 weighting should still favor okx once
	// liquidity and fees are accounted for.
	if decision.Exchange != "okx" {
		t.Fatalf("expected okx under balanced strategy, got %s", decision.Exchange)
	}
}

func TestRouter_Route_NoQuotesReturnsFalse(t *testing.T) {
	r := NewRouter(zap.NewNop())
	if _, ok := r.Route(types.OrderSideBuy, dec(1), types.RoutingBestPrice); ok {
		t.Fatalf("expected no decision when no quotes are loaded")
	}
}

func TestRouter_RouteSplit_AllocatesAcrossVenuesBestPriceFirst(t *testing.T) {
	r := newTestRouter(t)
	decisions := r.RouteSplit(types.OrderSideBuy, dec(8))

	if len(decisions) == 0 {
		t.Fatalf("expected at least one split decision")
	}
	if decisions[0].Exchange != "binance" {
		t.Fatalf("expected binance (best ask) to be filled first, got %s", decisions[0].Exchange)
	}

	total := decimal.Zero
	for _, d := range decisions {
		total = total.Add(d.Quantity)
	}
	if !total.Equal(dec(8)) {
		t.Fatalf("expected split quantities to sum to requested total, got %s", total)
	}
}
