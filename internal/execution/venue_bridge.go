package execution

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Edgame2/masterTrade-sub003/pkg/types"
)

// ExecutorVenueAdapter bridges the heavier order-level ExchangeAdapter
// (used for whole-order paper/live trading) into the VenueAdapter
// contract a PlanRunner needs for per-slice submission. It lets
// TWAP/VWAP/POV/Adaptive plans execute against the same exchange
// adapters the rest of the system already registers with Executor.
type ExecutorVenueAdapter struct {
	adapters map[string]ExchangeAdapter
}

// NewExecutorVenueAdapter wraps a set of exchange adapters keyed by
// venue name (matching types.ExchangeQuote.Exchange/RoutingDecision.Exchange).
func NewExecutorVenueAdapter(adapters map[string]ExchangeAdapter) *ExecutorVenueAdapter {
	return &ExecutorVenueAdapter{adapters: adapters}
}

func (e *ExecutorVenueAdapter) pick(venue string) (ExchangeAdapter, error) {
	if venue != "" {
		if a, ok := e.adapters[venue]; ok {
			return a, nil
		}
	}
	for _, a := range e.adapters {
		return a, nil
	}
	return nil, types.NewResourceUpstreamError("no exchange adapter registered", nil)
}

// Quote asks one registered adapter (whichever map iteration yields
// first; Quote takes no venue) for its current price and reports that
// price as both bid and ask, with a nominal size of 1 on each side and
// no fee; it carries no real depth.
func (e *ExecutorVenueAdapter) Quote(ctx context.Context, symbol string) (types.ExchangeQuote, error) {
	a, err := e.pick("")
	if err != nil {
		return types.ExchangeQuote{}, err
	}
	price, err := a.GetPrice(ctx, symbol)
	if err != nil {
		return types.ExchangeQuote{}, types.NewResourceUpstreamError("quote fetch failed", err)
	}
	return types.ExchangeQuote{
		Exchange: a.Name(),
		Bid:      price,
		Ask:      price,
		BidSize:  decimal.NewFromInt(1),
		AskSize:  decimal.NewFromInt(1),
	}, nil
}

// Submit places a market order for quantity at venue and translates
// the resulting OrderResult into a Fill.
func (e *ExecutorVenueAdapter) Submit(ctx context.Context, symbol string, side types.OrderSide, quantity decimal.Decimal, venue string) (types.Fill, error) {
	a, err := e.pick(venue)
	if err != nil {
		return types.Fill{}, err
	}

	order := &types.Order{
		ID:       uuid.NewString(),
		Symbol:   symbol,
		Side:     side,
		Type:     types.OrderTypeMarket,
		Quantity: quantity,
	}

	result, err := a.PlaceOrder(ctx, order)
	if err != nil {
		return types.Fill{}, types.NewExchangeError(fmt.Sprintf("slice submit failed on %s", venue), err)
	}
	if result.FilledQty.IsZero() {
		return types.Fill{}, types.NewExchangeError(fmt.Sprintf("slice unfilled on %s", venue), nil)
	}

	return types.Fill{
		FillID:    result.OrderID,
		Timestamp: result.Timestamp,
		Price:     result.AvgPrice,
		Size:      result.FilledQty,
		Fee:       result.Commission,
	}, nil
}
