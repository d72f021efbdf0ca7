package execution

import (
	"testing"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Edgame2/masterTrade-sub003/pkg/types"
)

func TestOrderSlicer_Equal_ProducesEvenSlicesSummingToTotal(t *testing.T) {
	s := NewOrderSlicer(zap.NewNop(), SplitEqual)
	slices := s.Split("order1", "BTCUSDT", types.OrderSideBuy, decimal.NewFromInt(100), 4)

	if len(slices) != 4 {
		t.Fatalf("expected 4 slices, got %d", len(slices))
	}
	want := decimal.NewFromInt(25)
	for i, sl := range slices[:3] {
		if !sl.Quantity.Equal(want) {
			t.Fatalf("slice %d: expected %s, got %s", i, want, sl.Quantity)
		}
	}
	total := decimal.Zero
	for _, sl := range slices {
		total = total.Add(sl.Quantity)
	}
	if !total.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("expected slices to sum to total, got %s", total)
	}
}

func TestOrderSlicer_Exponential_DecreasesSliceSize(t *testing.T) {
	s := NewOrderSlicer(zap.NewNop(), SplitExponential)
	slices := s.Split("order2", "ETHUSDT", types.OrderSideSell, decimal.NewFromInt(100), 4)

	for i := 1; i < len(slices)-1; i++ {
		if !slices[i-1].Quantity.GreaterThan(slices[i].Quantity) {
			t.Fatalf("expected strictly decreasing sizes, slice %d (%s) <= slice %d (%s)", i-1, slices[i-1].Quantity, i, slices[i].Quantity)
		}
	}
}

func TestOrderSlicer_Random_SumsToTotal(t *testing.T) {
	s := NewOrderSlicer(zap.NewNop(), SplitRandom)
	slices := s.Split("order3", "SOLUSDT", types.OrderSideBuy, decimal.NewFromInt(50), 5)

	total := decimal.Zero
	for _, sl := range slices {
		if sl.Quantity.IsNegative() {
			t.Fatalf("expected non-negative slice quantity, got %s", sl.Quantity)
		}
		total = total.Add(sl.Quantity)
	}
	if !total.Equal(decimal.NewFromInt(50)) {
		t.Fatalf("expected random slices to sum to total, got %s", total)
	}
}

func TestIceberg_NextVisibleSlice_CapsAtVisibleQuantity(t *testing.T) {
	ib := NewIceberg("BTCUSDT", types.OrderSideBuy, decimal.NewFromInt(100), decimal.NewFromInt(10), nil)

	slice := ib.NextVisibleSlice()
	if slice == nil || !slice.Quantity.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("expected first clip of 10, got %v", slice)
	}

	ib.MarkFilled(decimal.NewFromInt(10))
	if ib.IsComplete() {
		t.Fatalf("expected iceberg not complete after first clip")
	}
}

func TestIceberg_LastClipShrinksToRemaining(t *testing.T) {
	ib := NewIceberg("BTCUSDT", types.OrderSideBuy, decimal.NewFromInt(25), decimal.NewFromInt(10), nil)
	ib.MarkFilled(decimal.NewFromInt(20))

	slice := ib.NextVisibleSlice()
	if slice == nil || !slice.Quantity.Equal(decimal.NewFromInt(5)) {
		t.Fatalf("expected final clip of 5 (remaining), got %v", slice)
	}
}

func TestIceberg_IsCompleteAfterFullFill(t *testing.T) {
	ib := NewIceberg("BTCUSDT", types.OrderSideBuy, decimal.NewFromInt(10), decimal.NewFromInt(10), nil)
	ib.MarkFilled(decimal.NewFromInt(10))

	if !ib.IsComplete() {
		t.Fatalf("expected iceberg complete after full fill")
	}
	if slice := ib.NextVisibleSlice(); slice != nil {
		t.Fatalf("expected no further visible slices once complete, got %v", slice)
	}
}
