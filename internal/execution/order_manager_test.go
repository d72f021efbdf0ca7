package execution

import (
	"testing"
	"time"

	"github.com/Edgame2/masterTrade-sub003/internal/position"
	"github.com/Edgame2/masterTrade-sub003/pkg/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func trackedBuyOrder(om *OrderManager, symbol, signalID string, qty decimal.Decimal) *ManagedOrder {
	order := &types.Order{
		ID:       "ord-" + symbol + "-" + signalID,
		Symbol:   symbol,
		Side:     types.OrderSideBuy,
		Type:     types.OrderTypeMarket,
		Quantity: qty,
	}
	return om.TrackOrder(order, "paper", signalID)
}

func TestRecordFillOpensPositionOnFirstFill(t *testing.T) {
	logger := zap.NewNop()
	positions := position.NewManager(logger)
	om := NewOrderManager(logger, positions)

	managed := trackedBuyOrder(om, "BTCUSDT", "sig-1", decimal.NewFromInt(1))

	om.RecordFill(OrderFill{
		OrderID:   managed.Order.ID,
		TradeID:   "trade-1",
		Price:     decimal.NewFromInt(50000),
		Quantity:  decimal.NewFromInt(1),
		Timestamp: time.Now(),
	})

	open := positions.OpenPositions(position.Filter{Symbol: "BTCUSDT"})
	if len(open) != 1 {
		t.Fatalf("expected 1 open position, got %d", len(open))
	}
	if open[0].Side != types.PositionSideLong {
		t.Errorf("expected long position, got %s", open[0].Side)
	}
	if !open[0].CurrentSize.Equal(decimal.NewFromInt(1)) {
		t.Errorf("expected size 1, got %s", open[0].CurrentSize)
	}
}

func TestRecordFillSameDirectionAddsToPosition(t *testing.T) {
	logger := zap.NewNop()
	positions := position.NewManager(logger)
	om := NewOrderManager(logger, positions)

	first := trackedBuyOrder(om, "ETHUSDT", "sig-2", decimal.NewFromInt(2))
	om.RecordFill(OrderFill{OrderID: first.Order.ID, TradeID: "t1", Price: decimal.NewFromInt(3000), Quantity: decimal.NewFromInt(2), Timestamp: time.Now()})

	second := trackedBuyOrder(om, "ETHUSDT", "sig-2", decimal.NewFromInt(1))
	om.RecordFill(OrderFill{OrderID: second.Order.ID, TradeID: "t2", Price: decimal.NewFromInt(3100), Quantity: decimal.NewFromInt(1), Timestamp: time.Now()})

	open := positions.OpenPositions(position.Filter{Symbol: "ETHUSDT"})
	if len(open) != 1 {
		t.Fatalf("expected 1 open position, got %d", len(open))
	}
	if !open[0].CurrentSize.Equal(decimal.NewFromInt(3)) {
		t.Errorf("expected size 3 after add, got %s", open[0].CurrentSize)
	}
}

func TestRecordFillOppositeDirectionClosesPosition(t *testing.T) {
	logger := zap.NewNop()
	positions := position.NewManager(logger)
	om := NewOrderManager(logger, positions)

	open := trackedBuyOrder(om, "SOLUSDT", "sig-3", decimal.NewFromInt(5))
	om.RecordFill(OrderFill{OrderID: open.Order.ID, TradeID: "t1", Price: decimal.NewFromInt(100), Quantity: decimal.NewFromInt(5), Timestamp: time.Now()})

	closeOrder := &types.Order{ID: "ord-close", Symbol: "SOLUSDT", Side: types.OrderSideSell, Type: types.OrderTypeMarket, Quantity: decimal.NewFromInt(5)}
	managed := om.TrackOrder(closeOrder, "paper", "sig-3")
	om.RecordFill(OrderFill{OrderID: managed.Order.ID, TradeID: "t2", Price: decimal.NewFromInt(110), Quantity: decimal.NewFromInt(5), Timestamp: time.Now()})

	if len(positions.OpenPositions(position.Filter{Symbol: "SOLUSDT"})) != 0 {
		t.Error("expected position to be closed after opposite-direction fill covering full size")
	}
}

func TestGetAllPositionsReflectsOrderManagerFills(t *testing.T) {
	logger := zap.NewNop()
	positions := position.NewManager(logger)
	om := NewOrderManager(logger, positions)

	managed := trackedBuyOrder(om, "BNBUSDT", "sig-4", decimal.NewFromInt(10))
	om.RecordFill(OrderFill{OrderID: managed.Order.ID, TradeID: "t1", Price: decimal.NewFromInt(400), Quantity: decimal.NewFromInt(10), Timestamp: time.Now()})

	if len(om.GetAllPositions()) != 1 {
		t.Errorf("expected order manager to see 1 open position via the shared ledger")
	}
}
