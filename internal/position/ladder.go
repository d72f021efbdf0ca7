package position

import (
	"math/rand"
	"strconv"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// SizeDistribution selects how ladder size is spread across levels.
type SizeDistribution string

const (
	DistributionEqual          SizeDistribution = "equal"
	DistributionRandom         SizeDistribution = "random"
	DistributionIncreasing     SizeDistribution = "increasing"
	DistributionDecreasing     SizeDistribution = "decreasing"
	DistributionPyramid        SizeDistribution = "pyramid"
	DistributionInversePyramid SizeDistribution = "inverse_pyramid"
)

// LadderDirection distinguishes a scale-in (building) ladder from a
// scale-out (reducing) ladder; it only changes which direction a price
// crossing must come from to trigger.
type LadderDirection string

const (
	LadderScaleIn  LadderDirection = "scale_in"
	LadderScaleOut LadderDirection = "scale_out"
)

// Level is a single rung of a scale-in/scale-out ladder.
type Level struct {
	LevelID      string
	PriceTrigger decimal.Decimal
	Size         decimal.Decimal
	Filled       bool
	FillPrice    decimal.Decimal
	FillTime     time.Time
	FillID       string
}

// LadderConfig configures a ladder's levels and size distribution.
type LadderConfig struct {
	TotalSize       decimal.Decimal
	NumLevels       int
	Distribution    SizeDistribution
	PriceSpacingPct decimal.Decimal
	PriceLevels     []decimal.Decimal // explicit levels override PriceSpacingPct
}

// ladder is a priced, sized sequence of levels for one position, one
// direction. It holds no back-pointer to the owning position.
type ladder struct {
	positionID string
	direction  LadderDirection
	entryPrice decimal.Decimal
	isLong     bool
	levels     []*Level
}

func buildLadder(positionID string, direction LadderDirection, cfg LadderConfig, entryPrice decimal.Decimal, isLong bool) *ladder {
	prices := cfg.PriceLevels
	if len(prices) == 0 {
		prices = calculatePriceLevels(direction, cfg, entryPrice, isLong)
	}

	weights := calculateSizeWeights(cfg.Distribution, cfg.NumLevels, direction, isLong)
	sum := decimal.Zero
	for _, w := range weights {
		sum = sum.Add(w)
	}

	levels := make([]*Level, 0, len(prices))
	for i, p := range prices {
		size := cfg.TotalSize
		if !sum.IsZero() && i < len(weights) {
			size = weights[i].Mul(cfg.TotalSize).Div(sum)
		}
		levels = append(levels, &Level{LevelID: ladderLevelID(direction, i), PriceTrigger: p, Size: size})
	}

	return &ladder{positionID: positionID, direction: direction, entryPrice: entryPrice, isLong: isLong, levels: levels}
}

func ladderLevelID(direction LadderDirection, i int) string {
	prefix := "scale_in_"
	if direction == LadderScaleOut {
		prefix = "scale_out_"
	}
	return prefix + strconv.Itoa(i)
}

// calculatePriceLevels derives a price ladder by compounding
// price_spacing_pct away from entry: scale-in moves against the
// position (favorable-to-add direction), scale-out moves with profit.
func calculatePriceLevels(direction LadderDirection, cfg LadderConfig, entryPrice decimal.Decimal, isLong bool) []decimal.Decimal {
	one := decimal.NewFromInt(1)
	levels := make([]decimal.Decimal, 0, cfg.NumLevels)
	price := entryPrice

	favorableAddDown := (direction == LadderScaleIn && isLong) || (direction == LadderScaleOut && !isLong)

	for i := 0; i < cfg.NumLevels; i++ {
		if direction == LadderScaleIn {
			levels = append(levels, price)
		}
		if favorableAddDown {
			price = price.Mul(one.Sub(cfg.PriceSpacingPct))
		} else {
			price = price.Mul(one.Add(cfg.PriceSpacingPct))
		}
		if direction == LadderScaleOut {
			levels = append(levels, price)
		}
	}
	return levels
}

// calculateSizeWeights returns unnormalized per-level weights for the
// configured distribution strategy.
func calculateSizeWeights(dist SizeDistribution, n int, direction LadderDirection, isLong bool) []decimal.Decimal {
	weights := make([]decimal.Decimal, n)

	switch dist {
	case DistributionIncreasing:
		for i := 0; i < n; i++ {
			weights[i] = decimal.NewFromInt(int64(i + 1))
		}
	case DistributionDecreasing:
		for i := 0; i < n; i++ {
			weights[i] = decimal.NewFromInt(int64(n - i))
		}
	case DistributionPyramid:
		// Larger at the bottom of a scale-in ladder (first levels,
		// nearer entry for longs); mirrored for shorts.
		front := isLong
		if direction == LadderScaleOut {
			front = !front
		}
		for i := 0; i < n; i++ {
			if front {
				weights[i] = decimal.NewFromInt(int64(n - i))
			} else {
				weights[i] = decimal.NewFromInt(int64(i + 1))
			}
		}
	case DistributionInversePyramid:
		front := isLong
		if direction == LadderScaleOut {
			front = !front
		}
		for i := 0; i < n; i++ {
			if front {
				weights[i] = decimal.NewFromInt(int64(i + 1))
			} else {
				weights[i] = decimal.NewFromInt(int64(n - i))
			}
		}
	case DistributionRandom:
		for i := 0; i < n; i++ {
			weights[i] = decimal.NewFromFloat(0.5 + rand.Float64())
		}
	default: // equal
		for i := 0; i < n; i++ {
			weights[i] = decimal.NewFromInt(1)
		}
	}
	return weights
}

// checkTriggers returns unfilled levels crossed in the favorable
// direction for this ladder's kind (in level order).
func (l *ladder) checkTriggers(price decimal.Decimal) []*Level {
	var triggered []*Level
	for _, lvl := range l.levels {
		if lvl.Filled {
			continue
		}
		crossed := false
		switch {
		case l.direction == LadderScaleIn && l.isLong:
			crossed = price.LessThanOrEqual(lvl.PriceTrigger)
		case l.direction == LadderScaleIn && !l.isLong:
			crossed = price.GreaterThanOrEqual(lvl.PriceTrigger)
		case l.direction == LadderScaleOut && l.isLong:
			crossed = price.GreaterThanOrEqual(lvl.PriceTrigger)
		case l.direction == LadderScaleOut && !l.isLong:
			crossed = price.LessThanOrEqual(lvl.PriceTrigger)
		}
		if crossed {
			triggered = append(triggered, lvl)
		}
	}
	return triggered
}

func (l *ladder) markFilled(levelID string, price decimal.Decimal, at time.Time, fillID string) {
	for _, lvl := range l.levels {
		if lvl.LevelID == levelID {
			lvl.Filled = true
			lvl.FillPrice = price
			lvl.FillTime = at
			lvl.FillID = fillID
			return
		}
	}
}

func (l *ladder) isComplete() bool {
	for _, lvl := range l.levels {
		if !lvl.Filled {
			return false
		}
	}
	return true
}

// ScaleManager owns every position's scale-in and scale-out ladders.
type ScaleManager struct {
	logger   *zap.Logger
	mu       sync.Mutex
	scaleIn  map[string]*ladder
	scaleOut map[string]*ladder
}

// NewScaleManager creates an empty scale manager.
func NewScaleManager(logger *zap.Logger) *ScaleManager {
	return &ScaleManager{logger: logger.Named("scale-manager"), scaleIn: make(map[string]*ladder), scaleOut: make(map[string]*ladder)}
}

// CreateScaleIn builds a scale-in ladder for a position.
func (sm *ScaleManager) CreateScaleIn(positionID string, cfg LadderConfig, entryPrice decimal.Decimal, isLong bool) {
	sm.mu.Lock()
	sm.scaleIn[positionID] = buildLadder(positionID, LadderScaleIn, cfg, entryPrice, isLong)
	sm.mu.Unlock()
	sm.logger.Info("created scale-in ladder", zap.String("positionId", positionID), zap.Int("levels", cfg.NumLevels))
}

// CreateScaleOut builds a scale-out (profit-taking) ladder for a position.
func (sm *ScaleManager) CreateScaleOut(positionID string, cfg LadderConfig, entryPrice decimal.Decimal, isLong bool) {
	sm.mu.Lock()
	sm.scaleOut[positionID] = buildLadder(positionID, LadderScaleOut, cfg, entryPrice, isLong)
	sm.mu.Unlock()
	sm.logger.Info("created scale-out ladder", zap.String("positionId", positionID), zap.Int("levels", cfg.NumLevels))
}

// CheckScaleIn returns scale-in levels crossed in the favorable
// direction, in ladder order.
func (sm *ScaleManager) CheckScaleIn(positionID string, price decimal.Decimal) []*Level {
	sm.mu.Lock()
	l, ok := sm.scaleIn[positionID]
	sm.mu.Unlock()
	if !ok {
		return nil
	}
	return l.checkTriggers(price)
}

// CheckScaleOut returns scale-out (profit target) levels crossed, in
// ladder order.
func (sm *ScaleManager) CheckScaleOut(positionID string, price decimal.Decimal) []*Level {
	sm.mu.Lock()
	l, ok := sm.scaleOut[positionID]
	sm.mu.Unlock()
	if !ok {
		return nil
	}
	return l.checkTriggers(price)
}

// MarkScaleInFilled records a scale-in level's execution.
func (sm *ScaleManager) MarkScaleInFilled(positionID, levelID string, price decimal.Decimal, at time.Time, fillID string) {
	sm.mu.Lock()
	l, ok := sm.scaleIn[positionID]
	sm.mu.Unlock()
	if ok {
		l.markFilled(levelID, price, at, fillID)
	}
}

// MarkScaleOutFilled records a scale-out level's execution.
func (sm *ScaleManager) MarkScaleOutFilled(positionID, levelID string, price decimal.Decimal, at time.Time, fillID string) {
	sm.mu.Lock()
	l, ok := sm.scaleOut[positionID]
	sm.mu.Unlock()
	if ok {
		l.markFilled(levelID, price, at, fillID)
	}
}

// Remove detaches both ladders for a closed position.
func (sm *ScaleManager) Remove(positionID string) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	delete(sm.scaleIn, positionID)
	delete(sm.scaleOut, positionID)
}
