package execution

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Edgame2/masterTrade-sub003/pkg/types"
)

func TestTracker_RecordExecution_ComputesSlippageBps(t *testing.T) {
	tr := NewTracker(zap.NewNop())
	fills := []types.Fill{
		{Price: dec(101), Size: dec(5)},
		{Price: dec(102), Size: dec(5)},
	}

	m, ok := tr.RecordExecution("order1", "BTCUSDT", types.OrderSideBuy, dec(100), fills)
	if !ok {
		t.Fatalf("expected recording to succeed")
	}
	// avg fill = 101.5, arrival = 100 -> absolute slippage 1.5,
	// percentage 1.5%, bps 150.
	if !m.AvgExecutedPrice.Equal(dec(101.5)) {
		t.Fatalf("expected avg executed price 101.5, got %s", m.AvgExecutedPrice)
	}
	if m.SlippageBps < 149.9 || m.SlippageBps > 150.1 {
		t.Fatalf("expected slippage ~150bps, got %f", m.SlippageBps)
	}
}

func TestTracker_RecordExecution_NoFillsReturnsFalse(t *testing.T) {
	tr := NewTracker(zap.NewNop())
	if _, ok := tr.RecordExecution("order2", "BTCUSDT", types.OrderSideBuy, dec(100), nil); ok {
		t.Fatalf("expected no metrics recorded for empty fills")
	}
}

func TestTracker_AssessQuality_PerfectExecutionScoresHigh(t *testing.T) {
	tr := NewTracker(zap.NewNop())
	fills := []types.Fill{{Price: dec(100), Size: dec(10)}}
	tr.RecordExecution("order3", "BTCUSDT", types.OrderSideBuy, dec(100), fills)

	q, ok := tr.AssessQuality("order3", time.Minute, 30*time.Second)
	if !ok {
		t.Fatalf("expected quality assessment")
	}
	if q.PriceQuality != 100 {
		t.Fatalf("expected perfect price quality for zero slippage, got %f", q.PriceQuality)
	}
	if q.SpeedQuality != 100 {
		t.Fatalf("expected perfect speed quality for beating expected duration, got %f", q.SpeedQuality)
	}
	if q.FillQuality != 100 {
		t.Fatalf("expected perfect fill quality for full fill, got %f", q.FillQuality)
	}
	if q.OverallQuality != 100 {
		t.Fatalf("expected overall quality 100, got %f", q.OverallQuality)
	}
	if !q.BeatArrival {
		t.Fatalf("expected beat-arrival true for zero slippage")
	}
}

func TestTracker_AssessQuality_SlowExecutionScoresZeroSpeed(t *testing.T) {
	tr := NewTracker(zap.NewNop())
	fills := []types.Fill{{Price: dec(100), Size: dec(10)}}
	tr.RecordExecution("order4", "BTCUSDT", types.OrderSideBuy, dec(100), fills)

	q, ok := tr.AssessQuality("order4", time.Minute, 3*time.Minute) // 3x expected duration
	if !ok {
		t.Fatalf("expected quality assessment")
	}
	if q.SpeedQuality != 0 {
		t.Fatalf("expected zero speed quality at >=2x expected duration, got %f", q.SpeedQuality)
	}
}

func TestTracker_AssessQuality_UnknownOrderReturnsFalse(t *testing.T) {
	tr := NewTracker(zap.NewNop())
	if _, ok := tr.AssessQuality("missing", time.Minute, time.Minute); ok {
		t.Fatalf("expected no assessment for unknown order")
	}
}

func TestTracker_AddBenchmark_ComputesMarketImpact(t *testing.T) {
	tr := NewTracker(zap.NewNop())
	fills := []types.Fill{{Price: dec(101), Size: dec(10)}}
	tr.RecordExecution("order5", "BTCUSDT", types.OrderSideBuy, dec(100), fills)

	tr.AddBenchmark("order5", dec(100.5))

	// (101 - 100.5) / 100.5 * 10000 ≈ 49.75 bps against the benchmark.
	if impact := tr.executions["order5"].MarketImpactBps; impact < 49.7 || impact > 49.8 {
		t.Fatalf("expected market impact ~49.75bps, got %f", impact)
	}

	q, ok := tr.AssessQuality("order5", time.Minute, time.Minute)
	if !ok {
		t.Fatalf("expected quality assessment")
	}
	if q.BeatVWAP {
		t.Fatalf("expected not to beat VWAP when fill price (101) is worse than benchmark (100.5) for a buy")
	}
}

func TestTracker_Statistics_AggregatesRecentExecutions(t *testing.T) {
	tr := NewTracker(zap.NewNop())
	tr.RecordExecution("o1", "BTCUSDT", types.OrderSideBuy, dec(100), []types.Fill{{Price: dec(101), Size: dec(1)}})
	tr.RecordExecution("o2", "BTCUSDT", types.OrderSideBuy, dec(100), []types.Fill{{Price: dec(102), Size: dec(1)}})

	stats := tr.Statistics("BTCUSDT", time.Hour)
	if stats.NumExecutions != 2 {
		t.Fatalf("expected 2 executions, got %d", stats.NumExecutions)
	}
	if stats.AvgSlippageBps <= 0 {
		t.Fatalf("expected positive average slippage, got %f", stats.AvgSlippageBps)
	}
}

func TestTracker_Statistics_EmptyWindowReturnsZeroValue(t *testing.T) {
	tr := NewTracker(zap.NewNop())
	stats := tr.Statistics("BTCUSDT", time.Hour)
	if stats.NumExecutions != 0 {
		t.Fatalf("expected zero executions for empty tracker, got %d", stats.NumExecutions)
	}
}
