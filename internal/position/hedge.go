package position

import (
	"sync"
	"time"

	"github.com/Edgame2/masterTrade-sub003/pkg/types"
	"github.com/Edgame2/masterTrade-sub003/pkg/utils"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// HedgeKind enumerates the hedging approaches the hedge manager can
// open against a live position.
type HedgeKind string

const (
	HedgeFull       HedgeKind = "full"
	HedgePartial    HedgeKind = "partial"
	HedgeDelta      HedgeKind = "delta"
	HedgeCrossAsset HedgeKind = "cross_asset"
)

// Hedge is an opposite-side sibling position opened against an
// original position; it references the original only by ID.
type Hedge struct {
	HedgeID            string
	OriginalPositionID string
	Symbol             string
	Side               types.PositionSide
	Size               decimal.Decimal
	EntryPrice         decimal.Decimal
	EntryTime          time.Time
	Kind               HedgeKind
	Ratio              decimal.Decimal // size as a fraction of the original
	Active             bool
	ExitTime           *time.Time
	ExitPrice          *decimal.Decimal
}

// HedgeManager opens and tracks hedge positions for positions owned by
// the given position Manager, and computes net exposure.
type HedgeManager struct {
	logger *zap.Logger
	mgr    *Manager

	mu     sync.Mutex
	hedges map[string][]*Hedge // keyed by original position id
}

// NewHedgeManager creates a hedge manager bound to a position manager.
func NewHedgeManager(mgr *Manager, logger *zap.Logger) *HedgeManager {
	return &HedgeManager{logger: logger.Named("hedge-manager"), mgr: mgr, hedges: make(map[string][]*Hedge)}
}

func oppositeSide(side types.PositionSide) types.PositionSide {
	if side == types.PositionSideLong {
		return types.PositionSideShort
	}
	return types.PositionSideLong
}

// OpenFull opens a 100% opposite-side hedge.
func (hm *HedgeManager) OpenFull(positionID, symbol string, side types.PositionSide, size, price decimal.Decimal, at time.Time) *Hedge {
	return hm.open(positionID, symbol, side, HedgeFull, size, decimal.NewFromInt(1), price, at)
}

// OpenPartial opens a hedge covering hedgeRatio (0-1) of the original size.
func (hm *HedgeManager) OpenPartial(positionID, symbol string, side types.PositionSide, originalSize, hedgeRatio, price decimal.Decimal, at time.Time) *Hedge {
	size := originalSize.Mul(hedgeRatio)
	return hm.open(positionID, symbol, side, HedgePartial, size, hedgeRatio, price, at)
}

// OpenDelta opens a hedge scaled to the current option/position delta
// exposure rather than raw notional.
func (hm *HedgeManager) OpenDelta(positionID, symbol string, side types.PositionSide, originalSize, delta, price decimal.Decimal, at time.Time) *Hedge {
	size := originalSize.Mul(delta.Abs())
	return hm.open(positionID, symbol, side, HedgeDelta, size, delta.Abs(), price, at)
}

// OpenCrossAsset opens a hedge against a correlated but different
// symbol, sizing down by the absolute correlation (hedge size =
// original size × |correlation|, so a weaker correlation gives a
// smaller hedge).
func (hm *HedgeManager) OpenCrossAsset(positionID, originalSymbol, hedgeSymbol string, side types.PositionSide, originalSize, correlation, price decimal.Decimal, at time.Time) *Hedge {
	size := originalSize.Mul(correlation.Abs())
	h := hm.open(positionID, hedgeSymbol, side, HedgeCrossAsset, size, correlation.Abs(), price, at)
	return h
}

func (hm *HedgeManager) open(positionID, symbol string, originalSide types.PositionSide, kind HedgeKind, size, ratio, price decimal.Decimal, at time.Time) *Hedge {
	hm.mu.Lock()
	defer hm.mu.Unlock()

	h := &Hedge{
		HedgeID:            utils.GenerateID("hedge"),
		OriginalPositionID: positionID,
		Symbol:             symbol,
		Side:               oppositeSide(originalSide),
		Size:               size,
		EntryPrice:         price,
		EntryTime:          at,
		Kind:               kind,
		Ratio:              ratio,
		Active:             true,
	}
	hm.hedges[positionID] = append(hm.hedges[positionID], h)

	hm.logger.Info("opened hedge",
		zap.String("positionId", positionID),
		zap.String("hedgeId", h.HedgeID),
		zap.String("kind", string(kind)),
		zap.String("size", size.String()))

	return h
}

// Close marks a hedge inactive.
func (hm *HedgeManager) Close(positionID, hedgeID string, price decimal.Decimal, at time.Time) {
	hm.mu.Lock()
	defer hm.mu.Unlock()

	for _, h := range hm.hedges[positionID] {
		if h.HedgeID == hedgeID {
			h.Active = false
			now := at
			p := price
			h.ExitTime = &now
			h.ExitPrice = &p
			return
		}
	}
}

// Active returns the currently active hedges for a position.
func (hm *HedgeManager) Active(positionID string) []*Hedge {
	hm.mu.Lock()
	defer hm.mu.Unlock()

	var out []*Hedge
	for _, h := range hm.hedges[positionID] {
		if h.Active {
			cp := *h
			out = append(out, &cp)
		}
	}
	return out
}

// NetExposure computes position_size - sum(hedge_size * ratio) for the
// given position, using its current size from the bound manager.
func (hm *HedgeManager) NetExposure(positionID string) decimal.Decimal {
	pos := hm.mgr.Get(positionID)
	if pos == nil {
		return decimal.Zero
	}

	hm.mu.Lock()
	defer hm.mu.Unlock()

	exposure := pos.CurrentSize
	for _, h := range hm.hedges[positionID] {
		if !h.Active {
			continue
		}
		exposure = exposure.Sub(h.Size.Mul(h.Ratio))
	}
	return exposure
}
