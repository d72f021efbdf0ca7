package execution

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Edgame2/masterTrade-sub003/pkg/types"
)

// Scenario 1 (spec §8): TWAP split of total=100 over 30 minutes
// produces 6 slices of size 100/6 at the start of every 5 minute
// window.
func TestPlanner_TWAP_Scenario1(t *testing.T) {
	p := NewPlanner(zap.NewNop())
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	plan := p.TWAP("order1", "BTCUSDT", types.OrderSideBuy, decimal.NewFromInt(100), start, 30)

	if len(plan.Slices) != 6 {
		t.Fatalf("expected 6 slices, got %d", len(plan.Slices))
	}

	expectedSize := decimal.NewFromInt(100).Div(decimal.NewFromInt(6))
	total := decimal.Zero
	for i, s := range plan.Slices {
		if !s.Quantity.Sub(expectedSize).Abs().LessThan(decimal.NewFromFloat(0.01)) && i != len(plan.Slices)-1 {
			t.Fatalf("slice %d: expected ~%s, got %s", i, expectedSize, s.Quantity)
		}
		wantTime := start.Add(time.Duration(i*5) * time.Minute)
		if !s.ScheduledTime.Equal(wantTime) {
			t.Fatalf("slice %d: expected scheduled time %v, got %v", i, wantTime, s.ScheduledTime)
		}
		total = total.Add(s.Quantity)
	}
	if !total.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("expected slices to sum to 100, got %s", total)
	}
}

func TestPlanner_TWAP_FloorsAtFiveSlices(t *testing.T) {
	p := NewPlanner(zap.NewNop())
	start := time.Now()

	plan := p.TWAP("order2", "ETHUSDT", types.OrderSideSell, decimal.NewFromInt(10), start, 5)
	if len(plan.Slices) != 5 {
		t.Fatalf("expected minimum of 5 slices for a short duration, got %d", len(plan.Slices))
	}
}

func TestPlanner_VWAP_DefaultProfileSumsToTotal(t *testing.T) {
	p := NewPlanner(zap.NewNop())
	start := time.Now()

	plan := p.VWAP("order3", "BTCUSDT", types.OrderSideBuy, decimal.NewFromInt(1000), start, 60, nil)

	total := decimal.Zero
	for _, s := range plan.Slices {
		total = total.Add(s.Quantity)
	}
	if !total.Equal(decimal.NewFromInt(1000)) {
		t.Fatalf("expected VWAP slices to sum to total, got %s", total)
	}

	// U-shaped profile: the middle slice should never be larger than
	// the first or last.
	n := len(plan.Slices)
	mid := plan.Slices[n/2].Quantity
	if mid.GreaterThan(plan.Slices[0].Quantity) {
		t.Fatalf("expected U-shaped profile, middle slice %s heavier than first %s", mid, plan.Slices[0].Quantity)
	}
}

func TestPlanner_POV_AllocatesProportionallyToForecastVolume(t *testing.T) {
	p := NewPlanner(zap.NewNop())
	start := time.Now()
	forecast := []decimal.Decimal{
		decimal.NewFromInt(100),
		decimal.NewFromInt(300),
		decimal.NewFromInt(600),
	}

	plan := p.POV("order4", "SOLUSDT", types.OrderSideBuy, decimal.NewFromInt(100), start, 30, 0.1, forecast)

	if len(plan.Slices) != 3 {
		t.Fatalf("expected one slice per forecast period, got %d", len(plan.Slices))
	}
	if !plan.Slices[0].Quantity.LessThan(plan.Slices[2].Quantity) {
		t.Fatalf("expected POV allocation to track rising forecast volume")
	}
	total := decimal.Zero
	for _, s := range plan.Slices {
		total = total.Add(s.Quantity)
	}
	if !total.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("expected POV slices to sum to total, got %s", total)
	}
}

func TestSelectAlgorithm_MatchesHeuristic(t *testing.T) {
	cases := []struct {
		name      string
		size      decimal.Decimal
		daily     decimal.Decimal
		urgency   float64
		want      types.ExecutionAlgorithm
	}{
		{"tiny order", decimal.NewFromInt(1000), decimal.NewFromInt(10_000_000), 0.2, types.AlgoTWAP},
		{"mid order urgent", decimal.NewFromInt(300_000), decimal.NewFromInt(10_000_000), 0.9, types.AlgoPOV},
		{"mid order patient", decimal.NewFromInt(300_000), decimal.NewFromInt(10_000_000), 0.2, types.AlgoVWAP},
		{"large order urgent", decimal.NewFromInt(2_000_000), decimal.NewFromInt(10_000_000), 0.8, types.AlgoAdaptive},
		{"large order patient", decimal.NewFromInt(2_000_000), decimal.NewFromInt(10_000_000), 0.2, types.AlgoVWAP},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := SelectAlgorithm(c.size, c.daily, c.urgency)
			if got != c.want {
				t.Fatalf("expected %s, got %s", c.want, got)
			}
		})
	}
}

func TestAdaptiveExecutor_NextSliceSizeShrinksOnHighVolatility(t *testing.T) {
	exec := NewAdaptivePlan("order5", "BTCUSDT", types.OrderSideBuy, decimal.NewFromInt(100), time.Now(), 60, 10, 0.5)

	before := exec.NextSliceSize()
	exec.Adapt(0.05, 10, 0) // high volatility
	after := exec.NextSliceSize()

	if !after.LessThan(before) {
		t.Fatalf("expected adjustment factor to shrink next slice size under high volatility: before=%s after=%s", before, after)
	}
}

func TestAdaptiveExecutor_NextSliceSizeZeroWhenComplete(t *testing.T) {
	exec := NewAdaptivePlan("order6", "BTCUSDT", types.OrderSideBuy, decimal.NewFromInt(10), time.Now(), 10, 1, 0.5)
	exec.Plan().Slices[0].Status = types.SliceStatusCompleted

	if size := exec.NextSliceSize(); !size.IsZero() {
		t.Fatalf("expected zero next slice size once all slices complete, got %s", size)
	}
}
