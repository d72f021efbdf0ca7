package position

import (
	"testing"
	"time"

	"github.com/Edgame2/masterTrade-sub003/pkg/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	return NewManager(zap.NewNop())
}

func TestOpenAddReduceClose(t *testing.T) {
	m := newTestManager(t)
	now := time.Now()

	pos, err := m.Open(OpenRequest{
		Symbol: "BTC/USDT", StrategyID: "s1", Side: types.PositionSideLong,
		EntryPrice: d("100"), Size: d("10"), EntryTime: now,
	})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if !pos.CurrentSize.Equal(d("10")) {
		t.Fatalf("expected size 10, got %s", pos.CurrentSize)
	}

	// scale in
	pos, err = m.Add(pos.PositionID, "f1", d("120"), d("10"), d("0"), now.Add(time.Minute))
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if !pos.AverageEntryPrice.Equal(d("110")) {
		t.Fatalf("expected avg entry 110, got %s", pos.AverageEntryPrice)
	}

	// reject oversized reduce
	if _, _, err := m.Reduce(pos.PositionID, "fbad", d("110"), d("100"), d("0"), now.Add(2*time.Minute)); err == nil {
		t.Fatalf("expected validation error reducing beyond current size")
	}

	// full close via a half reduction and a close, verifying round-trip
	half := pos.CurrentSize.Div(d("2"))
	pos, pnl1, err := m.Reduce(pos.PositionID, "f2", d("132"), half, d("0"), now.Add(3*time.Minute))
	if err != nil {
		t.Fatalf("reduce: %v", err)
	}
	if pos.Status != types.PositionStatusPartiallyClosed {
		t.Fatalf("expected partially_closed, got %s", pos.Status)
	}

	pos, pnl2, err := m.Close(pos.PositionID, "f3", d("132"), d("0"), now.Add(4*time.Minute))
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if pos.CurrentSize.Sign() != 0 {
		t.Fatalf("expected current_size 0 at close, got %s", pos.CurrentSize)
	}
	if pos.Status != types.PositionStatusClosed {
		t.Fatalf("expected closed, got %s", pos.Status)
	}

	expectedPnl := d("132").Sub(d("110")).Mul(d("20"))
	total := pnl1.Add(pnl2)
	if !total.Equal(expectedPnl) {
		t.Fatalf("round-trip realized pnl mismatch: got %s want %s", total, expectedPnl)
	}
	if m.Get(pos.PositionID) == nil {
		t.Fatalf("archived position should still be queryable by id")
	}
}

func TestReduceRejectsOverSizeWithoutMutation(t *testing.T) {
	m := newTestManager(t)
	now := time.Now()
	pos, _ := m.Open(OpenRequest{Symbol: "ETH/USDT", StrategyID: "s1", Side: types.PositionSideLong, EntryPrice: d("2000"), Size: d("1"), EntryTime: now})

	_, _, err := m.Reduce(pos.PositionID, "bad", d("2100"), d("2"), d("0"), now.Add(time.Minute))
	if err == nil {
		t.Fatalf("expected error")
	}

	after := m.Get(pos.PositionID)
	if !after.CurrentSize.Equal(d("1")) {
		t.Fatalf("state must be unchanged after rejected reduce, got %s", after.CurrentSize)
	}
}

func TestMAEMFEInvariant(t *testing.T) {
	m := newTestManager(t)
	now := time.Now()
	pos, _ := m.Open(OpenRequest{Symbol: "BTC/USDT", StrategyID: "s1", Side: types.PositionSideLong, EntryPrice: d("100"), Size: d("1"), EntryTime: now})

	for _, p := range []string{"95", "110", "90", "105"} {
		updated, _, err := m.UpdatePrice(pos.PositionID, d(p), now)
		if err != nil {
			t.Fatalf("update_price: %v", err)
		}
		if updated.MaxAdverseExcursion.IsPositive() {
			t.Fatalf("MAE must be <= 0, got %s", updated.MaxAdverseExcursion)
		}
		if updated.MaxFavorableExcursion.IsNegative() {
			t.Fatalf("MFE must be >= 0, got %s", updated.MaxFavorableExcursion)
		}
	}
}

// TestPercentageTrailingStopScenario reproduces spec.md scenario #2:
// entry 100, trail 5%; prices 100,110,108,104.5 -> stop trajectory
// 95, 104.5, 104.5, triggered at 104.5.
func TestPercentageTrailingStopScenario(t *testing.T) {
	m := newTestManager(t)
	now := time.Now()
	pos, _ := m.Open(OpenRequest{Symbol: "BTC/USDT", StrategyID: "s1", Side: types.PositionSideLong, EntryPrice: d("100"), Size: d("1"), EntryTime: now})

	m.Stops().CreatePercentage(pos.PositionID, d("0.05"), d("100"), true)

	prices := []string{"100", "110", "108", "104.5"}
	wantStops := []string{"95", "104.5", "104.5", "104.5"}
	var triggered bool
	for i, p := range prices {
		_, trig, err := m.UpdatePrice(pos.PositionID, d(p), now.Add(time.Duration(i)*time.Minute))
		if err != nil {
			t.Fatalf("update_price: %v", err)
		}
		stop, ok := m.Stops().CurrentStop(pos.PositionID)
		if !ok {
			t.Fatalf("expected stop to exist")
		}
		if !stop.Equal(d(wantStops[i])) {
			t.Fatalf("step %d: expected stop %s, got %s", i, wantStops[i], stop)
		}
		triggered = trig
	}
	if !triggered {
		t.Fatalf("expected trailing stop to trigger at 104.5")
	}
}

func TestScaleInEqualLadderTriggers(t *testing.T) {
	sm := NewScaleManager(zap.NewNop())
	cfg := LadderConfig{TotalSize: d("30"), NumLevels: 3, Distribution: DistributionEqual, PriceSpacingPct: d("0.05")}
	sm.CreateScaleIn("p1", cfg, d("100"), true)

	// first level is at entry price itself (100), should trigger immediately
	triggered := sm.CheckScaleIn("p1", d("100"))
	if len(triggered) != 1 {
		t.Fatalf("expected 1 level triggered at entry price, got %d", len(triggered))
	}
	if !triggered[0].Size.Equal(d("10")) {
		t.Fatalf("expected equal distribution of 10 per level, got %s", triggered[0].Size)
	}
}

func TestExitManagerPriorityOrdering(t *testing.T) {
	em := NewExitManager(zap.NewNop())
	now := time.Now()
	em.AddMaxHoldingPeriod("p1", now.Add(-48*time.Hour), d("100"), true, 24, decimal.NewFromInt(1), 5)
	em.AddProfitTargets("p1", now.Add(-48*time.Hour), d("100"), true, []decimal.Decimal{d("0.05")}, []decimal.Decimal{decimal.NewFromFloat(0.5)}, 1)

	triggered := em.CheckAll("p1", d("106"), now)
	if len(triggered) != 2 {
		t.Fatalf("expected both conditions to trigger, got %d", len(triggered))
	}
	if triggered[0].Priority > triggered[1].Priority {
		t.Fatalf("expected ascending priority order")
	}
}

func TestHedgeNetExposure(t *testing.T) {
	m := newTestManager(t)
	now := time.Now()
	pos, _ := m.Open(OpenRequest{Symbol: "BTC/USDT", StrategyID: "s1", Side: types.PositionSideLong, EntryPrice: d("100"), Size: d("10"), EntryTime: now})

	m.Hedges().OpenPartial(pos.PositionID, "BTC/USDT", types.PositionSideLong, pos.CurrentSize, d("0.5"), d("100"), now)

	// hedge size is 10 * 0.5 = 5; net = 10 - 5 * 0.5 = 7.5
	net := m.Hedges().NetExposure(pos.PositionID)
	if !net.Equal(d("7.5")) {
		t.Fatalf("expected net exposure 7.5, got %s", net)
	}
}
