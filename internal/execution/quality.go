package execution

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Edgame2/masterTrade-sub003/pkg/types"
)

// SlippageMetrics captures post-trade slippage for one completed
// parent order against its arrival price.
type SlippageMetrics struct {
	OrderID          string
	Symbol           string
	Side             types.OrderSide
	ArrivalPrice     decimal.Decimal
	AvgExecutedPrice decimal.Decimal
	BenchmarkVWAP    *decimal.Decimal
	TotalQuantity    decimal.Decimal
	FilledQuantity   decimal.Decimal
	TotalCost        decimal.Decimal
	AbsoluteSlippage decimal.Decimal
	PercentSlippage  float64
	SlippageBps      float64
	MarketImpactBps  float64
	RecordedAt       time.Time
}

// calculate fills in AbsoluteSlippage/PercentSlippage/SlippageBps from
// Side/ArrivalPrice/AvgExecutedPrice. For buys a higher fill price is
// worse; for sells a lower fill price is worse.
func (m *SlippageMetrics) calculate() {
	if m.Side == types.OrderSideBuy {
		m.AbsoluteSlippage = m.AvgExecutedPrice.Sub(m.ArrivalPrice)
	} else {
		m.AbsoluteSlippage = m.ArrivalPrice.Sub(m.AvgExecutedPrice)
	}
	if m.ArrivalPrice.IsZero() {
		return
	}
	pct, _ := m.AbsoluteSlippage.Div(m.ArrivalPrice).Mul(decimal.NewFromInt(100)).Float64()
	m.PercentSlippage = pct
	m.SlippageBps = pct * 100
}

// ExecutionQuality is the 0-100 price/speed/fill/overall scorecard for
// one completed order.
type ExecutionQuality struct {
	OrderID        string
	Symbol         string
	PriceQuality   float64
	SpeedQuality   float64
	FillQuality    float64
	OverallQuality float64
	BeatArrival    bool
	BeatVWAP       bool
	AssessedAt     time.Time
}

// Stats is an aggregate slippage summary over a lookback window.
type Stats struct {
	NumExecutions       int
	AvgSlippageBps      float64
	MedianSlippageBps   float64
	MaxSlippageBps      float64
	MinSlippageBps      float64
	StdSlippageBps      float64
	AvgMarketImpactBps  float64
}

// QualityStats is an aggregate quality summary over a lookback window.
type QualityStats struct {
	NumAssessments    int
	AvgOverallQuality float64
	AvgPriceQuality   float64
	AvgSpeedQuality   float64
	AvgFillQuality    float64
	BeatArrivalRate   float64
	BeatVWAPRate      float64
}

// Tracker records post-trade execution outcomes and scores them
// against arrival price, VWAP and expected duration.
type Tracker struct {
	logger *zap.Logger

	mu         sync.RWMutex
	executions map[string]*SlippageMetrics
	quality    map[string]*ExecutionQuality
}

// NewTracker builds an empty Tracker.
func NewTracker(logger *zap.Logger) *Tracker {
	return &Tracker{
		logger:     logger.Named("execution.quality"),
		executions: make(map[string]*SlippageMetrics),
		quality:    make(map[string]*ExecutionQuality),
	}
}

// RecordExecution computes the fill-quantity-weighted average price
// from fills and stores the resulting slippage metrics. Returns false
// if fills is empty or its total quantity is zero.
func (t *Tracker) RecordExecution(orderID, symbol string, side types.OrderSide, arrivalPrice decimal.Decimal, fills []types.Fill) (*SlippageMetrics, bool) {
	totalValue := decimal.Zero
	totalQty := decimal.Zero
	for _, f := range fills {
		totalValue = totalValue.Add(f.Price.Mul(f.Size))
		totalQty = totalQty.Add(f.Size)
	}
	if !totalQty.IsPositive() {
		t.logger.Warn("no fills for order", zap.String("orderId", orderID))
		return nil, false
	}

	m := &SlippageMetrics{
		OrderID:          orderID,
		Symbol:           symbol,
		Side:             side,
		ArrivalPrice:     arrivalPrice,
		AvgExecutedPrice: totalValue.Div(totalQty),
		TotalQuantity:    totalQty,
		FilledQuantity:   totalQty,
		TotalCost:        totalValue,
		RecordedAt:       time.Now(),
	}
	m.calculate()

	t.mu.Lock()
	t.executions[orderID] = m
	t.mu.Unlock()

	t.logger.Info("recorded slippage", zap.String("orderId", orderID), zap.Float64("slippageBps", m.SlippageBps))
	return m, true
}

// AddBenchmark attaches a VWAP benchmark to a previously recorded
// execution and recomputes its market impact in basis points.
func (t *Tracker) AddBenchmark(orderID string, vwap decimal.Decimal) {
	t.mu.Lock()
	defer t.mu.Unlock()

	m, ok := t.executions[orderID]
	if !ok {
		return
	}
	m.BenchmarkVWAP = &vwap
	if vwap.IsZero() {
		return
	}
	var impact decimal.Decimal
	if m.Side == types.OrderSideBuy {
		impact = m.AvgExecutedPrice.Sub(vwap).Div(vwap)
	} else {
		impact = vwap.Sub(m.AvgExecutedPrice).Div(vwap)
	}
	bps, _ := impact.Mul(decimal.NewFromInt(10000)).Float64()
	m.MarketImpactBps = bps
}

// AssessQuality scores a recorded execution's price, speed and fill
// quality and combines them 50/30/20 into an overall score.
func (t *Tracker) AssessQuality(orderID string, expectedDuration, actualDuration time.Duration) (*ExecutionQuality, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	m, ok := t.executions[orderID]
	if !ok {
		t.logger.Warn("no execution data for order", zap.String("orderId", orderID))
		return nil, false
	}

	// <5bps = 100, >50bps = 0, linear between.
	priceQuality := math.Max(0, math.Min(100, 100-(m.SlippageBps-5.0)/45.0*100))

	speedRatio := float64(actualDuration) / float64(expectedDuration)
	var speedQuality float64
	switch {
	case speedRatio <= 1.0:
		speedQuality = 100
	case speedRatio >= 2.0:
		speedQuality = 0
	default:
		speedQuality = 100 - (speedRatio-1.0)*100
	}

	fillRate := 0.0
	if m.TotalQuantity.IsPositive() {
		fillRate, _ = m.FilledQuantity.Div(m.TotalQuantity).Float64()
	}
	fillQuality := fillRate * 100

	overall := 0.5*priceQuality + 0.3*speedQuality + 0.2*fillQuality

	beatArrival := !m.AbsoluteSlippage.IsPositive()
	beatVWAP := false
	if m.BenchmarkVWAP != nil && !m.BenchmarkVWAP.IsZero() {
		if m.Side == types.OrderSideBuy {
			beatVWAP = m.AvgExecutedPrice.LessThanOrEqual(*m.BenchmarkVWAP)
		} else {
			beatVWAP = m.AvgExecutedPrice.GreaterThanOrEqual(*m.BenchmarkVWAP)
		}
	}

	q := &ExecutionQuality{
		OrderID:        orderID,
		Symbol:         m.Symbol,
		PriceQuality:   priceQuality,
		SpeedQuality:   speedQuality,
		FillQuality:    fillQuality,
		OverallQuality: overall,
		BeatArrival:    beatArrival,
		BeatVWAP:       beatVWAP,
		AssessedAt:     time.Now(),
	}
	t.quality[orderID] = q
	t.logger.Info("assessed execution quality", zap.String("orderId", orderID), zap.Float64("overall", overall))
	return q, true
}

// Statistics aggregates slippage across executions within lookback
// for the given symbol (all symbols when empty).
func (t *Tracker) Statistics(symbol string, lookback time.Duration) Stats {
	t.mu.RLock()
	defer t.mu.RUnlock()

	cutoff := time.Now().Add(-lookback)
	var slippages, impacts []float64
	for _, m := range t.executions {
		if m.RecordedAt.Before(cutoff) {
			continue
		}
		if symbol != "" && m.Symbol != symbol {
			continue
		}
		slippages = append(slippages, m.SlippageBps)
		if m.MarketImpactBps != 0 {
			impacts = append(impacts, m.MarketImpactBps)
		}
	}
	if len(slippages) == 0 {
		return Stats{}
	}

	sort.Float64s(slippages)
	return Stats{
		NumExecutions:       len(slippages),
		AvgSlippageBps:      mean(slippages),
		MedianSlippageBps:   median(slippages),
		MaxSlippageBps:      slippages[len(slippages)-1],
		MinSlippageBps:      slippages[0],
		StdSlippageBps:      stddev(slippages),
		AvgMarketImpactBps:  mean(impacts),
	}
}

// QualityStatistics aggregates quality assessments within lookback.
func (t *Tracker) QualityStatistics(lookback time.Duration) QualityStats {
	t.mu.RLock()
	defer t.mu.RUnlock()

	cutoff := time.Now().Add(-lookback)
	var overall, price, speed, fill []float64
	beatArrival, beatVWAP := 0, 0
	n := 0
	for _, q := range t.quality {
		if q.AssessedAt.Before(cutoff) {
			continue
		}
		n++
		overall = append(overall, q.OverallQuality)
		price = append(price, q.PriceQuality)
		speed = append(speed, q.SpeedQuality)
		fill = append(fill, q.FillQuality)
		if q.BeatArrival {
			beatArrival++
		}
		if q.BeatVWAP {
			beatVWAP++
		}
	}
	if n == 0 {
		return QualityStats{}
	}
	return QualityStats{
		NumAssessments:    n,
		AvgOverallQuality: mean(overall),
		AvgPriceQuality:   mean(price),
		AvgSpeedQuality:   mean(speed),
		AvgFillQuality:    mean(fill),
		BeatArrivalRate:   float64(beatArrival) / float64(n) * 100,
		BeatVWAPRate:      float64(beatVWAP) / float64(n) * 100,
	}
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func median(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	n := len(xs)
	if n%2 == 1 {
		return xs[n/2]
	}
	return (xs[n/2-1] + xs[n/2]) / 2
}

func stddev(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	m := mean(xs)
	sumSq := 0.0
	for _, x := range xs {
		d := x - m
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(len(xs)))
}
