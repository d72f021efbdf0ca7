// Package execution provides order management capabilities.
package execution

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Edgame2/masterTrade-sub003/internal/position"
	"github.com/Edgame2/masterTrade-sub003/pkg/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// OrderManager tracks live order state and turns every fill into a
// position-manager mutation (open/add/reduce/close), so C1's order
// surface and C2's position ledger never disagree about what is
// actually open: the manager itself owns no parallel notion of
// position, only the symbol+strategy -> positionID mapping needed to
// route a fill to the right position.Manager call.
type OrderManager struct {
	logger    *zap.Logger
	positions *position.Manager

	mu     sync.RWMutex
	orders map[string]*ManagedOrder
	open   map[string]string // positionKey -> position.Manager position ID

	orderUpdates chan OrderUpdate
	fills        chan OrderFill
}

// ManagedOrder wraps an order with management state.
type ManagedOrder struct {
	Order        *types.Order    `json:"order"`
	Exchange     string          `json:"exchange"`
	Status       OrderStatus     `json:"status"`
	FilledQty    decimal.Decimal `json:"filledQty"`
	AvgFillPrice decimal.Decimal `json:"avgFillPrice"`
	Commission   decimal.Decimal `json:"commission"`
	CreatedAt    time.Time       `json:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`
	Fills        []OrderFill     `json:"fills"`

	// Linked orders
	ParentOrderID string `json:"parentOrderId,omitempty"`
	StopLossID    string `json:"stopLossId,omitempty"`
	TakeProfitID  string `json:"takeProfitId,omitempty"`

	// Tracking
	SignalID string   `json:"signalId,omitempty"`
	Tags     []string `json:"tags,omitempty"`
}

// OrderStatus represents order status.
type OrderStatus string

const (
	OrderStatusPending     OrderStatus = "pending"
	OrderStatusOpen        OrderStatus = "open"
	OrderStatusPartialFill OrderStatus = "partial_fill"
	OrderStatusFilled      OrderStatus = "filled"
	OrderStatusCancelled   OrderStatus = "cancelled"
	OrderStatusRejected    OrderStatus = "rejected"
	OrderStatusExpired     OrderStatus = "expired"
)

// OrderUpdate represents an order state update.
type OrderUpdate struct {
	OrderID   string      `json:"orderId"`
	Status    OrderStatus `json:"status"`
	Message   string      `json:"message,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// OrderFill represents a trade fill.
type OrderFill struct {
	OrderID    string          `json:"orderId"`
	TradeID    string          `json:"tradeId"`
	Price      decimal.Decimal `json:"price"`
	Quantity   decimal.Decimal `json:"quantity"`
	Commission decimal.Decimal `json:"commission"`
	Timestamp  time.Time       `json:"timestamp"`
}

// NewOrderManager creates a new order manager backed by the position
// manager every fill is forwarded into.
func NewOrderManager(logger *zap.Logger, positions *position.Manager) *OrderManager {
	return &OrderManager{
		logger:       logger.Named("order-manager"),
		positions:    positions,
		orders:       make(map[string]*ManagedOrder),
		open:         make(map[string]string),
		orderUpdates: make(chan OrderUpdate, 1000),
		fills:        make(chan OrderFill, 1000),
	}
}

// positionKey groups fills that should land on the same position: same
// symbol, same originating strategy/signal.
func positionKey(symbol, signalID string) string {
	return fmt.Sprintf("%s|%s", symbol, signalID)
}

// TrackOrder starts tracking an order.
func (om *OrderManager) TrackOrder(order *types.Order, exchange string, signalID string) *ManagedOrder {
	om.mu.Lock()
	defer om.mu.Unlock()

	managed := &ManagedOrder{
		Order:     order,
		Exchange:  exchange,
		Status:    OrderStatusPending,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
		SignalID:  signalID,
	}

	om.orders[order.ID] = managed

	om.logger.Info("Tracking order",
		zap.String("orderId", order.ID),
		zap.String("symbol", order.Symbol),
		zap.String("side", string(order.Side)))

	return managed
}

// UpdateOrderStatus updates an order's status.
func (om *OrderManager) UpdateOrderStatus(orderID string, status OrderStatus, message string) {
	om.mu.Lock()
	defer om.mu.Unlock()

	order, ok := om.orders[orderID]
	if !ok {
		return
	}

	order.Status = status
	order.UpdatedAt = time.Now()

	// Send update notification
	select {
	case om.orderUpdates <- OrderUpdate{
		OrderID:   orderID,
		Status:    status,
		Message:   message,
		Timestamp: time.Now(),
	}:
	default:
		om.logger.Warn("Order update channel full")
	}
}

// RecordFill records a fill for an order and forwards it to the
// position manager as an open/add/reduce/close mutation.
func (om *OrderManager) RecordFill(fill OrderFill) {
	om.mu.Lock()
	order, ok := om.orders[fill.OrderID]
	om.mu.Unlock()
	if !ok {
		return
	}

	om.mu.Lock()
	order.Fills = append(order.Fills, fill)
	order.FilledQty = order.FilledQty.Add(fill.Quantity)
	order.Commission = order.Commission.Add(fill.Commission)

	totalValue := decimal.Zero
	totalQty := decimal.Zero
	for _, f := range order.Fills {
		totalValue = totalValue.Add(f.Price.Mul(f.Quantity))
		totalQty = totalQty.Add(f.Quantity)
	}
	if !totalQty.IsZero() {
		order.AvgFillPrice = totalValue.Div(totalQty)
	}

	order.UpdatedAt = time.Now()

	if order.FilledQty.GreaterThanOrEqual(order.Order.Quantity) {
		order.Status = OrderStatusFilled
	} else if order.FilledQty.GreaterThan(decimal.Zero) {
		order.Status = OrderStatusPartialFill
	}
	om.mu.Unlock()

	om.applyFillToPosition(order, fill)

	select {
	case om.fills <- fill:
	default:
		om.logger.Warn("Fill channel full")
	}
}

// applyFillToPosition routes a fill into the position manager: a fill
// in the same direction as the tracked position scales it in, a fill
// in the opposite direction reduces or closes it, and the first fill
// for a symbol/strategy pair opens a new position.
func (om *OrderManager) applyFillToPosition(order *ManagedOrder, fill OrderFill) {
	if om.positions == nil {
		return
	}

	key := positionKey(order.Order.Symbol, order.SignalID)
	at := fill.Timestamp
	if at.IsZero() {
		at = time.Now()
	}

	om.mu.RLock()
	posID, tracked := om.open[key]
	om.mu.RUnlock()

	if !tracked {
		side := types.PositionSideLong
		if order.Order.Side == types.OrderSideSell {
			side = types.PositionSideShort
		}
		pos, err := om.positions.Open(position.OpenRequest{
			Symbol:     order.Order.Symbol,
			StrategyID: order.SignalID,
			Side:       side,
			EntryPrice: fill.Price,
			Size:       fill.Quantity,
			EntryTime:  at,
		})
		if err != nil {
			om.logger.Error("failed to open position from fill",
				zap.String("orderId", order.Order.ID), zap.Error(err))
			return
		}
		om.mu.Lock()
		om.open[key] = pos.PositionID
		om.mu.Unlock()
		return
	}

	pos := om.positions.Get(posID)
	if pos == nil {
		om.mu.Lock()
		delete(om.open, key)
		om.mu.Unlock()
		return
	}

	sameDirection := (order.Order.Side == types.OrderSideBuy && pos.Side == types.PositionSideLong) ||
		(order.Order.Side == types.OrderSideSell && pos.Side == types.PositionSideShort)

	if sameDirection {
		if _, err := om.positions.Add(posID, fill.TradeID, fill.Price, fill.Quantity, fill.Commission, at); err != nil {
			om.logger.Error("failed to add to position from fill", zap.String("positionId", posID), zap.Error(err))
		}
		return
	}

	if fill.Quantity.GreaterThanOrEqual(pos.CurrentSize) {
		if _, _, err := om.positions.Close(posID, fill.TradeID, fill.Price, fill.Commission, at); err != nil {
			om.logger.Error("failed to close position from fill", zap.String("positionId", posID), zap.Error(err))
		}
		om.mu.Lock()
		delete(om.open, key)
		om.mu.Unlock()
		return
	}

	if _, _, err := om.positions.Reduce(posID, fill.TradeID, fill.Price, fill.Quantity, fill.Commission, at); err != nil {
		om.logger.Error("failed to reduce position from fill", zap.String("positionId", posID), zap.Error(err))
	}
}

// GetOrder returns a managed order by ID.
func (om *OrderManager) GetOrder(orderID string) *ManagedOrder {
	om.mu.RLock()
	defer om.mu.RUnlock()

	return om.orders[orderID]
}

// GetOpenOrders returns all open orders.
func (om *OrderManager) GetOpenOrders() []*ManagedOrder {
	om.mu.RLock()
	defer om.mu.RUnlock()

	var open []*ManagedOrder
	for _, order := range om.orders {
		if order.Status == OrderStatusPending || order.Status == OrderStatusOpen || order.Status == OrderStatusPartialFill {
			open = append(open, order)
		}
	}
	return open
}

// GetOrdersBySymbol returns orders for a symbol.
func (om *OrderManager) GetOrdersBySymbol(symbol string) []*ManagedOrder {
	om.mu.RLock()
	defer om.mu.RUnlock()

	var orders []*ManagedOrder
	for _, order := range om.orders {
		if order.Order.Symbol == symbol {
			orders = append(orders, order)
		}
	}
	return orders
}

// GetPosition returns the open position.Manager position for a symbol,
// if any.
func (om *OrderManager) GetPosition(symbol string) *types.Position {
	for _, pos := range om.positions.OpenPositions(position.Filter{Symbol: symbol}) {
		return pos
	}
	return nil
}

// GetAllPositions returns every position.Manager open position.
func (om *OrderManager) GetAllPositions() []*types.Position {
	return om.positions.OpenPositions(position.Filter{})
}

// OrderUpdates returns the order update channel.
func (om *OrderManager) OrderUpdates() <-chan OrderUpdate {
	return om.orderUpdates
}

// Fills returns the fill channel.
func (om *OrderManager) Fills() <-chan OrderFill {
	return om.fills
}

// CancelOrder marks an order as cancelled.
func (om *OrderManager) CancelOrder(orderID string) {
	om.UpdateOrderStatus(orderID, OrderStatusCancelled, "cancelled by user")
}

// ExpireOrder marks an order as expired.
func (om *OrderManager) ExpireOrder(orderID string) {
	om.UpdateOrderStatus(orderID, OrderStatusExpired, "order expired")
}

// CleanupOldOrders removes old completed orders.
func (om *OrderManager) CleanupOldOrders(maxAge time.Duration) int {
	om.mu.Lock()
	defer om.mu.Unlock()

	cutoff := time.Now().Add(-maxAge)
	removed := 0

	for id, order := range om.orders {
		// Only clean up terminal states
		if order.Status == OrderStatusFilled || order.Status == OrderStatusCancelled ||
			order.Status == OrderStatusRejected || order.Status == OrderStatusExpired {
			if order.UpdatedAt.Before(cutoff) {
				delete(om.orders, id)
				removed++
			}
		}
	}

	return removed
}

// MonitorOrders monitors orders for timeouts and updates.
func (om *OrderManager) MonitorOrders(ctx context.Context, adapter ExchangeAdapter, pollInterval time.Duration) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			om.checkOrders(ctx, adapter)
		}
	}
}

// checkOrders checks order status with exchange.
func (om *OrderManager) checkOrders(ctx context.Context, adapter ExchangeAdapter) {
	om.mu.RLock()
	var openOrders []*ManagedOrder
	for _, order := range om.orders {
		if order.Status == OrderStatusPending || order.Status == OrderStatusOpen || order.Status == OrderStatusPartialFill {
			openOrders = append(openOrders, order)
		}
	}
	om.mu.RUnlock()

	for _, managed := range openOrders {
		exchangeOrder, err := adapter.GetOrder(ctx, managed.Order.ID)
		if err != nil {
			om.logger.Debug("Failed to get order status", zap.String("orderId", managed.Order.ID), zap.Error(err))
			continue
		}

		// Update from exchange
		if exchangeOrder.Status != managed.Order.Status {
			om.UpdateOrderStatus(managed.Order.ID, OrderStatus(exchangeOrder.Status), "updated from exchange")
		}
	}
}

// GetOrderStats returns order statistics.
func (om *OrderManager) GetOrderStats() OrderStats {
	om.mu.RLock()
	defer om.mu.RUnlock()

	stats := OrderStats{
		TotalOrders: len(om.orders),
	}

	for _, order := range om.orders {
		switch order.Status {
		case OrderStatusPending, OrderStatusOpen, OrderStatusPartialFill:
			stats.OpenOrders++
		case OrderStatusFilled:
			stats.FilledOrders++
			stats.TotalVolume = stats.TotalVolume.Add(order.Order.Quantity.Mul(order.AvgFillPrice))
			stats.TotalCommission = stats.TotalCommission.Add(order.Commission)
		case OrderStatusCancelled:
			stats.CancelledOrders++
		case OrderStatusRejected:
			stats.RejectedOrders++
		}
	}

	stats.TotalPositions = len(om.positions.OpenPositions(position.Filter{}))

	return stats
}

// OrderStats contains order statistics.
type OrderStats struct {
	TotalOrders     int             `json:"totalOrders"`
	OpenOrders      int             `json:"openOrders"`
	FilledOrders    int             `json:"filledOrders"`
	CancelledOrders int             `json:"cancelledOrders"`
	RejectedOrders  int             `json:"rejectedOrders"`
	TotalPositions  int             `json:"totalPositions"`
	TotalVolume     decimal.Decimal `json:"totalVolume"`
	TotalCommission decimal.Decimal `json:"totalCommission"`
}

// LinkStopLoss links a stop loss order to a parent order.
func (om *OrderManager) LinkStopLoss(parentID, stopLossID string) {
	om.mu.Lock()
	defer om.mu.Unlock()

	if parent, ok := om.orders[parentID]; ok {
		parent.StopLossID = stopLossID
	}
	if sl, ok := om.orders[stopLossID]; ok {
		sl.ParentOrderID = parentID
	}
}

// LinkTakeProfit links a take profit order to a parent order.
func (om *OrderManager) LinkTakeProfit(parentID, takeProfitID string) {
	om.mu.Lock()
	defer om.mu.Unlock()

	if parent, ok := om.orders[parentID]; ok {
		parent.TakeProfitID = takeProfitID
	}
	if tp, ok := om.orders[takeProfitID]; ok {
		tp.ParentOrderID = parentID
	}
}

// CancelLinkedOrders cancels stop loss and take profit orders linked to a parent.
func (om *OrderManager) CancelLinkedOrders(parentID string) {
	om.mu.RLock()
	parent, ok := om.orders[parentID]
	if !ok {
		om.mu.RUnlock()
		return
	}
	slID := parent.StopLossID
	tpID := parent.TakeProfitID
	om.mu.RUnlock()

	if slID != "" {
		om.CancelOrder(slID)
	}
	if tpID != "" {
		om.CancelOrder(tpID)
	}
}
