package execution

import (
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Edgame2/masterTrade-sub003/pkg/types"
)

// minTWAPSlices is the floor on slice count for TWAP/VWAP plans,
// matching spec §4.3: N = max(5, duration_min/5).
const minTWAPSlices = 5

// SelectAlgorithm is the reference heuristic (spec §4.3) choosing a
// slicing algorithm from order size relative to daily volume and
// declared urgency. Reproducible from its inputs alone.
func SelectAlgorithm(orderSize, dailyVolume decimal.Decimal, urgency float64) types.ExecutionAlgorithm {
	if dailyVolume.IsZero() {
		return types.AlgoAdaptive
	}
	orderPct, _ := orderSize.Div(dailyVolume).Float64()
	switch {
	case orderPct < 0.01:
		return types.AlgoTWAP
	case orderPct < 0.05:
		if urgency > 0.7 {
			return types.AlgoPOV
		}
		return types.AlgoVWAP
	default:
		if urgency > 0.5 {
			return types.AlgoAdaptive
		}
		return types.AlgoVWAP
	}
}

// Planner builds an ExecutionPlan for a parent order under one of the
// four slicing algorithms. It holds no per-plan state; Adaptive's
// stateful re-slicing lives in AdaptiveExecutor below.
type Planner struct {
	logger *zap.Logger
}

// NewPlanner builds a Planner.
func NewPlanner(logger *zap.Logger) *Planner {
	return &Planner{logger: logger.Named("execution.planner")}
}

func numSlices(durationMinutes int) int {
	n := durationMinutes / 5
	if n < minTWAPSlices {
		n = minTWAPSlices
	}
	return n
}

func newPlan(orderID, symbol string, side types.OrderSide, total decimal.Decimal, algo types.ExecutionAlgorithm, start, end time.Time) *types.ExecutionPlan {
	return &types.ExecutionPlan{
		OrderID:       orderID,
		Symbol:        symbol,
		Side:          side,
		TotalQuantity: total,
		Algorithm:     algo,
		StartTime:     start,
		EndTime:       end,
		Slices:        nil,
	}
}

func newSlice(prefix string, i int, qty decimal.Decimal, scheduled time.Time) *types.Slice {
	return &types.Slice{
		SliceID:       fmt.Sprintf("%s_%d_%d", prefix, i, scheduled.Unix()),
		Quantity:      qty,
		ScheduledTime: scheduled,
		Status:        types.SliceStatusPending,
	}
}

// TWAP splits total evenly over duration, one slice every
// duration/N minutes, N = max(5, duration/5). Scenario 1 (spec §8):
// total=100, duration=30min => N=6, size≈16.6667, times at
// {0,5,10,15,20,25} minutes from start.
func (p *Planner) TWAP(orderID, symbol string, side types.OrderSide, total decimal.Decimal, start time.Time, durationMinutes int) *types.ExecutionPlan {
	n := numSlices(durationMinutes)
	end := start.Add(time.Duration(durationMinutes) * time.Minute)
	plan := newPlan(orderID, symbol, side, total, types.AlgoTWAP, start, end)

	sliceQty := total.Div(decimal.NewFromInt(int64(n)))
	interval := time.Duration(float64(durationMinutes)/float64(n)*60) * time.Second

	slices := make([]*types.Slice, 0, n)
	allocated := decimal.Zero
	for i := 0; i < n; i++ {
		qty := sliceQty
		if i == n-1 {
			qty = total.Sub(allocated) // absorb rounding remainder on the last slice
		}
		allocated = allocated.Add(qty)
		scheduled := start.Add(time.Duration(i) * interval)
		slices = append(slices, newSlice("twap_"+symbol, i, qty, scheduled))
	}
	plan.Slices = slices
	p.logger.Info("generated TWAP plan", zap.String("orderId", orderID), zap.Int("slices", n))
	return plan
}

// defaultVolumeProfile returns a U-shaped weight profile (higher at the
// open and close, lower mid-session), normalized to sum to 1.
func defaultVolumeProfile(n int) []float64 {
	profile := make([]float64, n)
	for i := 0; i < n; i++ {
		distanceFromCenter := math.Abs(2*float64(i)/float64(n) - 1)
		profile[i] = 0.5 + 0.5*distanceFromCenter
	}
	return normalize(profile)
}

func normalize(weights []float64) []float64 {
	sum := 0.0
	for _, w := range weights {
		sum += w
	}
	if sum <= 0 {
		// All-zero profile falls back to the default U-shape (spec §8
		// boundary case).
		return defaultVolumeProfile(len(weights))
	}
	out := make([]float64, len(weights))
	for i, w := range weights {
		out[i] = w / sum
	}
	return out
}

// VWAP allocates total proportionally to volumeProfile (or the default
// U-shape if empty or all-zero), at the same equal time spacing as TWAP.
func (p *Planner) VWAP(orderID, symbol string, side types.OrderSide, total decimal.Decimal, start time.Time, durationMinutes int, volumeProfile []float64) *types.ExecutionPlan {
	n := numSlices(durationMinutes)
	end := start.Add(time.Duration(durationMinutes) * time.Minute)
	plan := newPlan(orderID, symbol, side, total, types.AlgoVWAP, start, end)

	profile := volumeProfile
	if len(profile) == 0 {
		profile = defaultVolumeProfile(n)
	} else {
		if len(profile) > n {
			profile = profile[:n]
		}
		for len(profile) < n {
			profile = append(profile, 0)
		}
		profile = normalize(profile)
	}

	interval := time.Duration(float64(durationMinutes)/float64(n)*60) * time.Second
	slices := make([]*types.Slice, 0, n)
	allocated := decimal.Zero
	for i := 0; i < n; i++ {
		var qty decimal.Decimal
		if i == n-1 {
			qty = total.Sub(allocated)
		} else {
			qty = total.Mul(decimal.NewFromFloat(profile[i]))
			allocated = allocated.Add(qty)
		}
		scheduled := start.Add(time.Duration(i) * interval)
		slices = append(slices, newSlice("vwap_"+symbol, i, qty, scheduled))
	}
	plan.Slices = slices
	p.logger.Info("generated VWAP plan", zap.String("orderId", orderID), zap.Int("slices", n))
	return plan
}

// POV allocates one slice per forecast period, raw size =
// participationRate * period volume, then rescales so slices sum to
// total exactly.
func (p *Planner) POV(orderID, symbol string, side types.OrderSide, total decimal.Decimal, start time.Time, durationMinutes int, participationRate float64, forecastVolumes []decimal.Decimal) *types.ExecutionPlan {
	n := len(forecastVolumes)
	end := start.Add(time.Duration(durationMinutes) * time.Minute)
	plan := newPlan(orderID, symbol, side, total, types.AlgoPOV, start, end)
	if n == 0 {
		plan.Slices = nil
		return plan
	}

	raw := make([]decimal.Decimal, n)
	sum := decimal.Zero
	rate := decimal.NewFromFloat(participationRate)
	for i, v := range forecastVolumes {
		raw[i] = v.Mul(rate)
		sum = sum.Add(raw[i])
	}

	interval := time.Duration(float64(durationMinutes)/float64(n)*60) * time.Second
	slices := make([]*types.Slice, 0, n)
	allocated := decimal.Zero
	for i := 0; i < n; i++ {
		var qty decimal.Decimal
		if sum.IsZero() {
			qty = decimal.Zero
		} else if i == n-1 {
			qty = total.Sub(allocated)
		} else {
			qty = raw[i].Div(sum).Mul(total)
			allocated = allocated.Add(qty)
		}
		scheduled := start.Add(time.Duration(i) * interval)
		slices = append(slices, newSlice("pov_"+symbol, i, qty, scheduled))
	}
	plan.Slices = slices
	p.logger.Info("generated POV plan", zap.String("orderId", orderID), zap.Int("slices", n))
	return plan
}

// AdaptiveExecutor is the stateful Adaptive algorithm (spec §4.3): it
// starts with equal-weighted slices and re-evaluates urgency/size on
// each adapt() call, unlike TWAP/VWAP/POV which are pure functions of
// their inputs.
type AdaptiveExecutor struct {
	plan             *types.ExecutionPlan
	urgency          float64
	adjustmentFactor float64
}

// NewAdaptivePlan seeds an Adaptive execution with equal-weighted
// initial slices and returns the stateful executor that owns them.
func NewAdaptivePlan(orderID, symbol string, side types.OrderSide, total decimal.Decimal, start time.Time, durationMinutes int, initialSlices int, urgency float64) *AdaptiveExecutor {
	if initialSlices <= 0 {
		initialSlices = 10
	}
	end := start.Add(time.Duration(durationMinutes) * time.Minute)
	plan := newPlan(orderID, symbol, side, total, types.AlgoAdaptive, start, end)

	sliceQty := total.Div(decimal.NewFromInt(int64(initialSlices)))
	interval := time.Duration(float64(durationMinutes)/float64(initialSlices)*60) * time.Second
	slices := make([]*types.Slice, 0, initialSlices)
	allocated := decimal.Zero
	for i := 0; i < initialSlices; i++ {
		qty := sliceQty
		if i == initialSlices-1 {
			qty = total.Sub(allocated)
		}
		allocated = allocated.Add(qty)
		scheduled := start.Add(time.Duration(i) * interval)
		slices = append(slices, newSlice("adaptive_"+symbol, i, qty, scheduled))
	}
	plan.Slices = slices

	return &AdaptiveExecutor{plan: plan, urgency: urgency, adjustmentFactor: 1.0}
}

// Plan returns the underlying execution plan.
func (a *AdaptiveExecutor) Plan() *types.ExecutionPlan { return a.plan }

// Adapt re-tunes urgency and the size adjustment factor from live
// market feedback (spec §4.3): behind-schedule raises urgency,
// high volatility shrinks slices, wide spread lowers urgency.
func (a *AdaptiveExecutor) Adapt(volatility, spreadBps, shortfall float64) {
	if shortfall < -0.05 {
		a.urgency = math.Min(1.0, a.urgency+0.1)
	}
	switch {
	case volatility > 0.03:
		a.adjustmentFactor = 0.8
	case volatility < 0.01:
		a.adjustmentFactor = 1.2
	}
	if spreadBps > 50 {
		a.urgency = math.Max(0.0, a.urgency-0.1)
	}
}

// NextSliceSize returns remaining/remaining_slices * urgency *
// adjustment (spec Design Note (b): adjustment_factor is read here,
// unlike the source this spec is distilled from). Returns 0 when no
// slices remain (spec §8 boundary case).
func (a *AdaptiveExecutor) NextSliceSize() decimal.Decimal {
	remainingQty := decimal.Zero
	remainingSlices := 0
	for _, s := range a.plan.Slices {
		if s.Status != types.SliceStatusCompleted {
			remainingSlices++
			remainingQty = remainingQty.Add(s.Quantity)
		}
	}
	if remainingSlices == 0 {
		return decimal.Zero
	}
	base := remainingQty.Div(decimal.NewFromInt(int64(remainingSlices)))
	adjusted := base.Mul(decimal.NewFromFloat(a.urgency)).Mul(decimal.NewFromFloat(a.adjustmentFactor))
	if adjusted.GreaterThan(remainingQty) {
		adjusted = remainingQty
	}
	return adjusted
}

