// Package position owns the authoritative record of live positions:
// lifecycle (open/add/reduce/close), running average entry, realized and
// unrealized PnL, MAE/MFE, and the auxiliary structures (trailing stops,
// scale ladders, exit conditions, hedges) that only ever reference a
// position by ID rather than holding a back-pointer into this manager.
package position

import (
	"sync"
	"time"

	"github.com/Edgame2/masterTrade-sub003/pkg/types"
	"github.com/Edgame2/masterTrade-sub003/pkg/utils"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// OpenRequest is the input to Manager.Open.
type OpenRequest struct {
	Symbol      string
	StrategyID  string
	Side        types.PositionSide
	EntryPrice  decimal.Decimal
	Size        decimal.Decimal
	EntryTime   time.Time
	StopLoss    *decimal.Decimal
	TakeProfit  *decimal.Decimal
}

// PriceUpdate is fanned out to every per-position subscriber whenever a
// tracked position's mark price changes.
type PriceUpdate struct {
	PositionID string
	Price      decimal.Decimal
	Timestamp  time.Time
}

// Manager is the single writer for every position it owns; readers
// always observe a consistent snapshot via copy-on-read accessors.
type Manager struct {
	logger *zap.Logger

	mu       sync.RWMutex
	open     map[string]*types.Position
	archive  []*types.Position

	stops  *TrailingStopManager
	scales *ScaleManager
	exits  *ExitManager
	hedges *HedgeManager

	priceUpdates chan PriceUpdate
}

// NewManager creates a position manager with its auxiliary structures.
func NewManager(logger *zap.Logger) *Manager {
	m := &Manager{
		logger:       logger.Named("position-manager"),
		open:         make(map[string]*types.Position),
		priceUpdates: make(chan PriceUpdate, 4096),
	}
	m.stops = NewTrailingStopManager(m.logger)
	m.scales = NewScaleManager(m.logger)
	m.exits = NewExitManager(m.logger)
	m.hedges = NewHedgeManager(m, m.logger)
	return m
}

// Stops, Scales, Exits and Hedges expose the auxiliary managers so
// callers can configure stops/ladders/exits/hedges for a position
// without this manager holding back-pointers into them.
func (m *Manager) Stops() *TrailingStopManager { return m.stops }
func (m *Manager) Scales() *ScaleManager       { return m.scales }
func (m *Manager) Exits() *ExitManager         { return m.exits }
func (m *Manager) Hedges() *HedgeManager       { return m.hedges }

// PriceUpdates returns the read side of the price-update fan-out
// channel; per-position consumers should each maintain their own
// filtered subscription on top of this broadcast point.
func (m *Manager) PriceUpdates() <-chan PriceUpdate { return m.priceUpdates }

// Open creates a new position from the opening request.
func (m *Manager) Open(req OpenRequest) (*types.Position, error) {
	if req.Size.LessThanOrEqual(decimal.Zero) {
		return nil, types.NewValidationError("open: size must be positive")
	}
	if req.EntryPrice.LessThanOrEqual(decimal.Zero) {
		return nil, types.NewValidationError("open: entry price must be positive")
	}

	id := utils.GenerateID("pos")
	fill := types.Fill{
		FillID:    id + "_0",
		Timestamp: req.EntryTime,
		Price:     req.EntryPrice,
		Size:      req.Size,
		IsClosing: false,
	}

	pos := &types.Position{
		PositionID:        id,
		Symbol:            req.Symbol,
		StrategyID:        req.StrategyID,
		Side:              req.Side,
		Status:            types.PositionStatusOpen,
		InitialSize:       req.Size,
		CurrentSize:       req.Size,
		AverageEntryPrice: req.EntryPrice,
		CurrentPrice:      req.EntryPrice,
		LastUpdateTime:    req.EntryTime,
		StopLossPrice:     req.StopLoss,
		TakeProfitPrice:   req.TakeProfit,
		OpeningFills:      []types.Fill{fill},
		OpenedAt:          req.EntryTime,
		EntryPrice:        req.EntryPrice,
		Quantity:          req.Size,
	}

	m.mu.Lock()
	m.open[id] = pos
	m.mu.Unlock()

	m.logger.Info("opened position",
		zap.String("positionId", id),
		zap.String("symbol", req.Symbol),
		zap.String("side", string(req.Side)),
		zap.String("size", req.Size.String()),
		zap.String("entryPrice", req.EntryPrice.String()))

	return m.snapshot(pos), nil
}

// UpdatePrice recomputes unrealized PnL and MAE/MFE for the position,
// triggers the active trailing stop if crossed, and publishes the
// update on the price fan-out channel.
func (m *Manager) UpdatePrice(id string, price decimal.Decimal, at time.Time) (*types.Position, bool, error) {
	m.mu.Lock()
	pos, ok := m.open[id]
	if !ok {
		m.mu.Unlock()
		return nil, false, types.NewValidationError("update_price: position " + id + " not found")
	}

	pos.CurrentPrice = price
	pos.LastUpdateTime = at

	sign := decimal.NewFromInt(1)
	if pos.Side == types.PositionSideShort {
		sign = decimal.NewFromInt(-1)
	}
	diff := price.Sub(pos.AverageEntryPrice).Mul(sign)
	pos.UnrealizedPnL = diff.Mul(pos.CurrentSize)
	if !pos.AverageEntryPrice.IsZero() && !pos.CurrentSize.IsZero() {
		pos.UnrealizedPnLPct = pos.UnrealizedPnL.Div(pos.AverageEntryPrice.Mul(pos.CurrentSize))
	}

	if !pos.AverageEntryPrice.IsZero() {
		excursion := diff.Div(pos.AverageEntryPrice)
		if excursion.IsNegative() {
			if excursion.LessThan(pos.MaxAdverseExcursion) {
				pos.MaxAdverseExcursion = excursion
			}
		} else {
			if excursion.GreaterThan(pos.MaxFavorableExcursion) {
				pos.MaxFavorableExcursion = excursion
			}
		}
	}
	m.mu.Unlock()

	triggered := m.stops.Update(id, pos.Side == types.PositionSideLong, price, at)

	select {
	case m.priceUpdates <- PriceUpdate{PositionID: id, Price: price, Timestamp: at}:
	default:
		m.logger.Warn("price update channel full, dropping", zap.String("positionId", id))
	}

	if triggered {
		m.logger.Warn("trailing stop triggered", zap.String("positionId", id), zap.String("price", price.String()))
	}

	return m.Get(id), triggered, nil
}

// Add scales into an existing position (opening fill), recomputing the
// volume-weighted average entry price.
func (m *Manager) Add(id string, fillID string, price, size, fee decimal.Decimal, at time.Time) (*types.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	pos, ok := m.open[id]
	if !ok {
		return nil, types.NewValidationError("add: position " + id + " not found")
	}
	if size.LessThanOrEqual(decimal.Zero) {
		return nil, types.NewValidationError("add: size must be positive")
	}

	totalCost := pos.AverageEntryPrice.Mul(pos.CurrentSize).Add(price.Mul(size))
	pos.CurrentSize = pos.CurrentSize.Add(size)
	pos.AverageEntryPrice = totalCost.Div(pos.CurrentSize)
	pos.TotalFees = pos.TotalFees.Add(fee)
	pos.LastUpdateTime = at

	pos.OpeningFills = append(pos.OpeningFills, types.Fill{
		FillID:    fillID,
		Timestamp: at,
		Price:     price,
		Size:      size,
		IsClosing: false,
		Fee:       fee,
	})

	m.logger.Info("scaled into position",
		zap.String("positionId", id),
		zap.String("size", size.String()),
		zap.String("price", price.String()),
		zap.String("newAvgEntry", pos.AverageEntryPrice.String()))

	return m.snapshot(pos), nil
}

// Reduce partially (or, at full current size, fully) closes a
// position. realized PnL of this reduction = side * (price - avgEntry)
// * size - fee. Rejects a reduction larger than the current size
// without mutating state.
func (m *Manager) Reduce(id string, fillID string, price, size, fee decimal.Decimal, at time.Time) (*types.Position, decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	pos, ok := m.open[id]
	if !ok {
		return nil, decimal.Zero, types.NewValidationError("reduce: position " + id + " not found")
	}
	if size.LessThanOrEqual(decimal.Zero) {
		return nil, decimal.Zero, types.NewValidationError("reduce: size must be positive")
	}
	if size.GreaterThan(pos.CurrentSize) {
		return nil, decimal.Zero, types.NewValidationError("reduce: size exceeds current position size")
	}

	sign := decimal.NewFromInt(1)
	if pos.Side == types.PositionSideShort {
		sign = decimal.NewFromInt(-1)
	}
	pnl := price.Sub(pos.AverageEntryPrice).Mul(sign).Mul(size).Sub(fee)

	pos.ClosingFills = append(pos.ClosingFills, types.Fill{
		FillID:    fillID,
		Timestamp: at,
		Price:     price,
		Size:      size,
		IsClosing: true,
		Fee:       fee,
	})

	pos.CurrentSize = pos.CurrentSize.Sub(size)
	pos.RealizedPnL = pos.RealizedPnL.Add(pnl)
	pos.TotalFees = pos.TotalFees.Add(fee)
	pos.LastUpdateTime = at

	initialNotional := pos.AverageEntryPrice.Mul(pos.InitialSize)
	if !initialNotional.IsZero() {
		// realized_pnl_pct is reported against the initial notional at open
		pos.RealizedPnLPct = pos.RealizedPnL.Div(initialNotional)
	}

	if pos.CurrentSize.IsZero() {
		pos.Status = types.PositionStatusClosed
		now := at
		pos.ClosedAt = &now
		delete(m.open, id)
		m.archive = append(m.archive, pos)

		m.logger.Info("closed position",
			zap.String("positionId", id),
			zap.String("realizedPnl", pos.RealizedPnL.String()))
	} else {
		pos.Status = types.PositionStatusPartiallyClosed
		m.logger.Info("reduced position",
			zap.String("positionId", id),
			zap.String("remaining", pos.CurrentSize.String()),
			zap.String("pnl", pnl.String()))
	}

	return m.snapshot(pos), pnl, nil
}

// Close is a convenience wrapper reducing by the entire current size.
func (m *Manager) Close(id string, fillID string, price, fee decimal.Decimal, at time.Time) (*types.Position, decimal.Decimal, error) {
	m.mu.RLock()
	pos, ok := m.open[id]
	m.mu.RUnlock()
	if !ok {
		return nil, decimal.Zero, types.NewValidationError("close: position " + id + " not found")
	}
	return m.Reduce(id, fillID, price, pos.CurrentSize, fee, at)
}

// Get returns a copy of an open or archived position by ID, or nil.
func (m *Manager) Get(id string) *types.Position {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if pos, ok := m.open[id]; ok {
		return m.snapshot(pos)
	}
	for _, pos := range m.archive {
		if pos.PositionID == id {
			return m.snapshot(pos)
		}
	}
	return nil
}

// Filter describes a position query over open positions.
type Filter struct {
	Symbol     string
	StrategyID string
}

// OpenPositions returns copies of all currently open positions matching filter.
func (m *Manager) OpenPositions(filter Filter) []*types.Position {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*types.Position, 0, len(m.open))
	for _, pos := range m.open {
		if filter.Symbol != "" && pos.Symbol != filter.Symbol {
			continue
		}
		if filter.StrategyID != "" && pos.StrategyID != filter.StrategyID {
			continue
		}
		out = append(out, m.snapshot(pos))
	}
	return out
}

// Closed returns copies of archived (terminal) positions matching filter.
func (m *Manager) Closed(filter Filter) []*types.Position {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*types.Position, 0)
	for _, pos := range m.archive {
		if filter.Symbol != "" && pos.Symbol != filter.Symbol {
			continue
		}
		if filter.StrategyID != "" && pos.StrategyID != filter.StrategyID {
			continue
		}
		out = append(out, m.snapshot(pos))
	}
	return out
}

// Totals summarizes exposure and PnL across all open positions.
type Totals struct {
	OpenCount         int
	TotalExposure     decimal.Decimal
	TotalUnrealizedPnL decimal.Decimal
	TotalRealizedPnL  decimal.Decimal
}

// Totals computes aggregate figures across open (and, for realized
// PnL, archived) positions.
func (m *Manager) Totals(symbol string) Totals {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var t Totals
	for _, pos := range m.open {
		if symbol != "" && pos.Symbol != symbol {
			continue
		}
		t.OpenCount++
		t.TotalExposure = t.TotalExposure.Add(pos.CurrentSize.Mul(pos.CurrentPrice))
		t.TotalUnrealizedPnL = t.TotalUnrealizedPnL.Add(pos.UnrealizedPnL)
	}
	for _, pos := range m.archive {
		if symbol != "" && pos.Symbol != symbol {
			continue
		}
		t.TotalRealizedPnL = t.TotalRealizedPnL.Add(pos.RealizedPnL)
	}
	return t
}

func (m *Manager) snapshot(pos *types.Position) *types.Position {
	cp := *pos
	cp.OpeningFills = append([]types.Fill(nil), pos.OpeningFills...)
	cp.ClosingFills = append([]types.Fill(nil), pos.ClosingFills...)
	return &cp
}
