package position

import (
	"sync"
	"time"

	"github.com/Edgame2/masterTrade-sub003/internal/backtest"
	"github.com/Edgame2/masterTrade-sub003/pkg/utils"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// TrailingStopKind enumerates the supported trailing stop types. Only
// one kind is active per position at a time.
type TrailingStopKind string

const (
	TrailingStopPercentage  TrailingStopKind = "percentage"
	TrailingStopATR         TrailingStopKind = "atr"
	TrailingStopChandelier  TrailingStopKind = "chandelier"
	TrailingStopParabolicSAR TrailingStopKind = "parabolic_sar"
)

// trailingStop is the internal state machine for one position's active
// stop. It never back-references the position; callers feed it price
// and (optionally) candle updates and read CurrentStop()/Triggered().
type trailingStop struct {
	kind   TrailingStopKind
	isLong bool

	stopPrice decimal.Decimal
	extreme   decimal.Decimal // highest (long) / lowest (short) price seen

	// percentage
	trailPct decimal.Decimal

	// atr / chandelier
	atrMultiplier decimal.Decimal
	atr           *backtest.ATR
	currentATR    decimal.Decimal
	lookback      int
	priceHistory  []decimal.Decimal

	// parabolic SAR
	af           decimal.Decimal
	maxAF        decimal.Decimal
	afIncrement  decimal.Decimal

	triggered   bool
	triggeredAt time.Time
}

func newPercentageStop(entryPrice, trailPct decimal.Decimal, isLong bool) *trailingStop {
	s := &trailingStop{kind: TrailingStopPercentage, isLong: isLong, trailPct: trailPct, extreme: entryPrice}
	if isLong {
		s.stopPrice = entryPrice.Mul(decimal.NewFromInt(1).Sub(trailPct))
	} else {
		s.stopPrice = entryPrice.Mul(decimal.NewFromInt(1).Add(trailPct))
	}
	return s
}

func newATRStop(entryPrice, initialATR, multiplier decimal.Decimal, isLong bool, period int) *trailingStop {
	s := &trailingStop{
		kind: TrailingStopATR, isLong: isLong, atrMultiplier: multiplier,
		currentATR: initialATR, extreme: entryPrice, atr: backtest.NewATR(period),
	}
	if isLong {
		s.stopPrice = entryPrice.Sub(initialATR.Mul(multiplier))
	} else {
		s.stopPrice = entryPrice.Add(initialATR.Mul(multiplier))
	}
	return s
}

func newChandelierStop(entryPrice, initialATR, multiplier decimal.Decimal, isLong bool, lookback int) *trailingStop {
	s := &trailingStop{
		kind: TrailingStopChandelier, isLong: isLong, atrMultiplier: multiplier,
		currentATR: initialATR, lookback: lookback, atr: backtest.NewATR(14),
		priceHistory: []decimal.Decimal{entryPrice},
	}
	if isLong {
		s.stopPrice = entryPrice.Sub(initialATR.Mul(multiplier))
	} else {
		s.stopPrice = entryPrice.Add(initialATR.Mul(multiplier))
	}
	return s
}

func newParabolicSARStop(entryPrice decimal.Decimal, isLong bool) *trailingStop {
	s := &trailingStop{
		kind: TrailingStopParabolicSAR, isLong: isLong,
		af: decimal.NewFromFloat(0.02), maxAF: decimal.NewFromFloat(0.20), afIncrement: decimal.NewFromFloat(0.02),
		extreme: entryPrice,
	}
	if isLong {
		s.stopPrice = entryPrice.Mul(decimal.NewFromFloat(0.98))
	} else {
		s.stopPrice = entryPrice.Mul(decimal.NewFromFloat(1.02))
	}
	return s
}

// candle is the minimal OHLC needed to refresh ATR-backed stops.
type candle struct {
	High, Low, Close decimal.Decimal
}

// update recalculates the stop from the latest price (and, for ATR
// variants, the latest candle) and reports whether it crossed.
func (s *trailingStop) update(price decimal.Decimal, bar *candle) bool {
	switch s.kind {
	case TrailingStopPercentage:
		s.updatePercentage(price)
	case TrailingStopATR:
		s.updateATR(price, bar)
	case TrailingStopChandelier:
		s.updateChandelier(price, bar)
	case TrailingStopParabolicSAR:
		s.updateSAR(price)
	}
	return s.shouldTrigger(price)
}

func (s *trailingStop) updatePercentage(price decimal.Decimal) {
	one := decimal.NewFromInt(1)
	if s.isLong {
		if price.GreaterThan(s.extreme) {
			s.extreme = price
			newStop := s.extreme.Mul(one.Sub(s.trailPct))
			if newStop.GreaterThan(s.stopPrice) {
				s.stopPrice = newStop
			}
		}
	} else {
		if price.LessThan(s.extreme) {
			s.extreme = price
			newStop := s.extreme.Mul(one.Add(s.trailPct))
			if newStop.LessThan(s.stopPrice) {
				s.stopPrice = newStop
			}
		}
	}
}

func (s *trailingStop) updateATR(price decimal.Decimal, bar *candle) {
	if bar != nil {
		s.currentATR = s.atr.Add(bar.High, bar.Low, bar.Close)
	}
	if s.isLong {
		if price.GreaterThan(s.extreme) {
			s.extreme = price
			newStop := s.extreme.Sub(s.currentATR.Mul(s.atrMultiplier))
			if newStop.GreaterThan(s.stopPrice) {
				s.stopPrice = newStop
			}
		}
	} else {
		if price.LessThan(s.extreme) {
			s.extreme = price
			newStop := s.extreme.Add(s.currentATR.Mul(s.atrMultiplier))
			if newStop.LessThan(s.stopPrice) {
				s.stopPrice = newStop
			}
		}
	}
}

func (s *trailingStop) updateChandelier(price decimal.Decimal, bar *candle) {
	s.priceHistory = append(s.priceHistory, price)
	if len(s.priceHistory) > s.lookback {
		s.priceHistory = s.priceHistory[1:]
	}
	if bar != nil {
		s.currentATR = s.atr.Add(bar.High, bar.Low, bar.Close)
	}

	if s.isLong {
		hh := s.priceHistory[0]
		for _, p := range s.priceHistory {
			if p.GreaterThan(hh) {
				hh = p
			}
		}
		newStop := hh.Sub(s.currentATR.Mul(s.atrMultiplier))
		if newStop.GreaterThan(s.stopPrice) {
			s.stopPrice = newStop
		}
	} else {
		ll := s.priceHistory[0]
		for _, p := range s.priceHistory {
			if p.LessThan(ll) {
				ll = p
			}
		}
		newStop := ll.Add(s.currentATR.Mul(s.atrMultiplier))
		if newStop.LessThan(s.stopPrice) {
			s.stopPrice = newStop
		}
	}
}

func (s *trailingStop) updateSAR(price decimal.Decimal) {
	if s.isLong {
		if price.GreaterThan(s.extreme) {
			s.extreme = price
			s.af = utils.MinDecimal(s.af.Add(s.afIncrement), s.maxAF)
		}
		newSAR := s.stopPrice.Add(s.af.Mul(s.extreme.Sub(s.stopPrice)))
		if newSAR.GreaterThan(s.stopPrice) {
			s.stopPrice = newSAR
		}
	} else {
		if price.LessThan(s.extreme) {
			s.extreme = price
			s.af = utils.MinDecimal(s.af.Add(s.afIncrement), s.maxAF)
		}
		newSAR := s.stopPrice.Sub(s.af.Mul(s.stopPrice.Sub(s.extreme)))
		if newSAR.LessThan(s.stopPrice) {
			s.stopPrice = newSAR
		}
	}
}

func (s *trailingStop) shouldTrigger(price decimal.Decimal) bool {
	if s.isLong {
		return price.LessThanOrEqual(s.stopPrice)
	}
	return price.GreaterThanOrEqual(s.stopPrice)
}

// TrailingStopManager tracks the one active trailing stop per position
// and re-evaluates it on every price update, never decreasing a long's
// stop nor increasing a short's.
type TrailingStopManager struct {
	logger *zap.Logger
	mu     sync.Mutex
	stops  map[string]*trailingStop
}

// NewTrailingStopManager creates an empty trailing stop manager.
func NewTrailingStopManager(logger *zap.Logger) *TrailingStopManager {
	return &TrailingStopManager{logger: logger.Named("trailing-stops"), stops: make(map[string]*trailingStop)}
}

// CreatePercentage attaches a percentage trailing stop to a position.
func (tm *TrailingStopManager) CreatePercentage(positionID string, trailPct, entryPrice decimal.Decimal, isLong bool) {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	tm.stops[positionID] = newPercentageStop(entryPrice, trailPct, isLong)
	tm.logger.Info("created percentage trailing stop", zap.String("positionId", positionID), zap.String("trailPct", trailPct.String()))
}

// CreateATR attaches an ATR-based trailing stop (Wilder average, period
// default 14) to a position.
func (tm *TrailingStopManager) CreateATR(positionID string, multiplier, entryPrice, initialATR decimal.Decimal, isLong bool, period int) {
	if period <= 0 {
		period = 14
	}
	tm.mu.Lock()
	defer tm.mu.Unlock()
	tm.stops[positionID] = newATRStop(entryPrice, initialATR, multiplier, isLong, period)
	tm.logger.Info("created ATR trailing stop", zap.String("positionId", positionID))
}

// CreateChandelier attaches a Chandelier exit (rolling lookback default
// 22) to a position.
func (tm *TrailingStopManager) CreateChandelier(positionID string, multiplier, entryPrice, initialATR decimal.Decimal, isLong bool, lookback int) {
	if lookback <= 0 {
		lookback = 22
	}
	tm.mu.Lock()
	defer tm.mu.Unlock()
	tm.stops[positionID] = newChandelierStop(entryPrice, initialATR, multiplier, isLong, lookback)
	tm.logger.Info("created chandelier stop", zap.String("positionId", positionID))
}

// CreateParabolicSAR attaches a classic Parabolic SAR stop (af starts
// at 0.02, +0.02 per new extreme, capped at 0.20).
func (tm *TrailingStopManager) CreateParabolicSAR(positionID string, entryPrice decimal.Decimal, isLong bool) {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	tm.stops[positionID] = newParabolicSARStop(entryPrice, isLong)
	tm.logger.Info("created parabolic SAR stop", zap.String("positionId", positionID))
}

// UpdateWithCandle recalculates the stop including the latest ATR
// input candle and reports whether it triggered.
func (tm *TrailingStopManager) UpdateWithCandle(positionID string, isLong bool, price decimal.Decimal, at time.Time, high, low, close decimal.Decimal) bool {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	s, ok := tm.stops[positionID]
	if !ok {
		return false
	}
	triggered := s.update(price, &candle{High: high, Low: low, Close: close})
	if triggered && !s.triggered {
		s.triggered = true
		s.triggeredAt = at
	}
	return triggered
}

// Update recalculates the stop from price alone (no fresh candle) and
// reports whether it triggered.
func (tm *TrailingStopManager) Update(positionID string, isLong bool, price decimal.Decimal, at time.Time) bool {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	s, ok := tm.stops[positionID]
	if !ok {
		return false
	}
	triggered := s.update(price, nil)
	if triggered && !s.triggered {
		s.triggered = true
		s.triggeredAt = at
	}
	return triggered
}

// CurrentStop returns the current stop price, or (zero, false) if no
// stop is configured for the position.
func (tm *TrailingStopManager) CurrentStop(positionID string) (decimal.Decimal, bool) {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	s, ok := tm.stops[positionID]
	if !ok {
		return decimal.Zero, false
	}
	return s.stopPrice, true
}

// Remove detaches the trailing stop for a closed or repurposed position.
func (tm *TrailingStopManager) Remove(positionID string) {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	delete(tm.stops, positionID)
}
