package execution

import (
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Edgame2/masterTrade-sub003/pkg/types"
)

// SplitStrategy selects how OrderSlicer divides a parent quantity.
type SplitStrategy string

const (
	SplitEqual       SplitStrategy = "equal"
	SplitRandom      SplitStrategy = "random"
	SplitExponential SplitStrategy = "exponential"
)

// OrderSlicer divides a parent order quantity into child slices by a
// chosen proportion strategy, independent of scheduling (see Planner
// for time-scheduled slicing).
type OrderSlicer struct {
	logger   *zap.Logger
	strategy SplitStrategy
}

// NewOrderSlicer builds an OrderSlicer for the given strategy.
func NewOrderSlicer(logger *zap.Logger, strategy SplitStrategy) *OrderSlicer {
	return &OrderSlicer{logger: logger.Named("execution.slicer"), strategy: strategy}
}

// Split divides total into numSlices child slices under the
// configured strategy, tagging each with a deterministic slice id.
func (s *OrderSlicer) Split(orderID, symbol string, side types.OrderSide, total decimal.Decimal, numSlices int) []*types.Slice {
	var proportions []float64
	switch s.strategy {
	case SplitRandom:
		proportions = randomProportions(numSlices)
	case SplitExponential:
		proportions = exponentialProportions(numSlices)
	default:
		proportions = equalProportions(numSlices)
	}

	slices := make([]*types.Slice, 0, numSlices)
	allocated := decimal.Zero
	now := time.Now()
	for i, p := range proportions {
		var qty decimal.Decimal
		if i == numSlices-1 {
			qty = total.Sub(allocated)
		} else {
			qty = total.Mul(decimal.NewFromFloat(p))
			allocated = allocated.Add(qty)
		}
		slices = append(slices, &types.Slice{
			SliceID:       fmt.Sprintf("%s_slice_%d", orderID, i),
			Quantity:      qty,
			ScheduledTime: now,
			Status:        types.SliceStatusPending,
		})
	}
	s.logger.Info("split order", zap.String("orderId", orderID), zap.String("strategy", string(s.strategy)), zap.Int("slices", numSlices))
	return slices
}

func equalProportions(n int) []float64 {
	props := make([]float64, n)
	for i := range props {
		props[i] = 1.0 / float64(n)
	}
	return props
}

func randomProportions(n int) []float64 {
	props := make([]float64, n)
	sum := 0.0
	for i := range props {
		props[i] = rand.Float64()
		sum += props[i]
	}
	for i := range props {
		props[i] /= sum
	}
	return props
}

// exponentialProportions weights slice i by 2^-i, largest first.
func exponentialProportions(n int) []float64 {
	weights := make([]float64, n)
	sum := 0.0
	for i := range weights {
		weights[i] = math.Pow(2, -float64(i))
		sum += weights[i]
	}
	for i := range weights {
		weights[i] /= sum
	}
	return weights
}

// Iceberg shows a fixed visible clip of a larger hidden order,
// re-issuing a fresh visible slice as each clip fills (spec §4.4
// order splitting: hides the bulk of a position from the book).
type Iceberg struct {
	Symbol          string
	Side            types.OrderSide
	TotalQuantity   decimal.Decimal
	VisibleQuantity decimal.Decimal
	LimitPrice      *decimal.Decimal
	filledQuantity  decimal.Decimal
}

// NewIceberg builds an Iceberg tracker for a parent order.
func NewIceberg(symbol string, side types.OrderSide, total, visible decimal.Decimal, limitPrice *decimal.Decimal) *Iceberg {
	return &Iceberg{
		Symbol:          symbol,
		Side:            side,
		TotalQuantity:   total,
		VisibleQuantity: visible,
		LimitPrice:      limitPrice,
	}
}

// NextVisibleSlice returns the next clip to show the book, or nil once
// the whole order has filled.
func (ib *Iceberg) NextVisibleSlice() *types.Slice {
	if ib.filledQuantity.GreaterThanOrEqual(ib.TotalQuantity) {
		return nil
	}
	remaining := ib.TotalQuantity.Sub(ib.filledQuantity)
	qty := ib.VisibleQuantity
	if remaining.LessThan(qty) {
		qty = remaining
	}
	return &types.Slice{
		SliceID:       fmt.Sprintf("iceberg_%s_%d", ib.Symbol, time.Now().UnixNano()),
		Quantity:      qty,
		ScheduledTime: time.Now(),
		Status:        types.SliceStatusPending,
	}
}

// MarkFilled records quantity filled against the current visible clip.
func (ib *Iceberg) MarkFilled(quantity decimal.Decimal) {
	ib.filledQuantity = ib.filledQuantity.Add(quantity)
}

// IsComplete reports whether the full iceberg has filled.
func (ib *Iceberg) IsComplete() bool {
	return ib.filledQuantity.GreaterThanOrEqual(ib.TotalQuantity)
}
