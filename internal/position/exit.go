package position

import (
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ExitKind enumerates the exit condition families the exit manager
// composes: time-based (max-holding / wall-clock) and laddered profit
// targets. Conditions are prioritized numerically and every triggered
// condition on a tick is returned sorted by priority; the caller
// decides how many levels to action.
type ExitKind string

const (
	ExitKindTimeBased     ExitKind = "time_based"
	ExitKindProfitTarget  ExitKind = "profit_target"
)

// ExitCondition is one triggerable exit rule.
type ExitCondition struct {
	ConditionID string
	Kind        ExitKind
	Priority    int // lower = higher priority
	SizeToExit  decimal.Decimal
	Triggered   bool
	TriggerTime time.Time

	maxHoldingHours decimal.Decimal
	targetPrice     decimal.Decimal
}

type positionExits struct {
	entryTime  time.Time
	entryPrice decimal.Decimal
	isLong     bool
	conditions []*ExitCondition
}

// ExitManager composes and evaluates every exit condition attached to
// a position.
type ExitManager struct {
	logger *zap.Logger
	mu     sync.Mutex
	byPos  map[string]*positionExits
}

// NewExitManager creates an empty exit manager.
func NewExitManager(logger *zap.Logger) *ExitManager {
	return &ExitManager{logger: logger.Named("exit-manager"), byPos: make(map[string]*positionExits)}
}

func (em *ExitManager) ensure(positionID string, entryTime time.Time, entryPrice decimal.Decimal, isLong bool) *positionExits {
	pe, ok := em.byPos[positionID]
	if !ok {
		pe = &positionExits{entryTime: entryTime, entryPrice: entryPrice, isLong: isLong}
		em.byPos[positionID] = pe
	}
	return pe
}

// AddMaxHoldingPeriod registers a time-based exit after maxHours of
// holding, exiting sizeToExit (fraction 0-1) of the position.
func (em *ExitManager) AddMaxHoldingPeriod(positionID string, entryTime time.Time, entryPrice decimal.Decimal, isLong bool, maxHours float64, sizeToExit decimal.Decimal, priority int) {
	em.mu.Lock()
	defer em.mu.Unlock()

	pe := em.ensure(positionID, entryTime, entryPrice, isLong)
	pe.conditions = append(pe.conditions, &ExitCondition{
		ConditionID:     positionID + "_max_hold",
		Kind:            ExitKindTimeBased,
		Priority:        priority,
		SizeToExit:      sizeToExit,
		maxHoldingHours: decimal.NewFromFloat(maxHours),
	})
}

// AddProfitTargets adds a laddered sequence of profit targets derived
// from percentage moves off entry, paired index-for-index with a size
// distribution (fractions summing to <=1).
func (em *ExitManager) AddProfitTargets(positionID string, entryTime time.Time, entryPrice decimal.Decimal, isLong bool, targetPcts []decimal.Decimal, sizes []decimal.Decimal, basePriority int) {
	em.mu.Lock()
	defer em.mu.Unlock()

	pe := em.ensure(positionID, entryTime, entryPrice, isLong)
	one := decimal.NewFromInt(1)
	for i, pct := range targetPcts {
		var price decimal.Decimal
		if isLong {
			price = entryPrice.Mul(one.Add(pct))
		} else {
			price = entryPrice.Mul(one.Sub(pct))
		}
		size := decimal.Zero
		if i < len(sizes) {
			size = sizes[i]
		}
		pe.conditions = append(pe.conditions, &ExitCondition{
			ConditionID: positionID + "_target_" + strconv.Itoa(i),
			Kind:        ExitKindProfitTarget,
			Priority:    basePriority,
			SizeToExit:  size,
			targetPrice: price,
		})
	}
}

// CheckAll evaluates every exit condition for a position against the
// current price and wall-clock time, returning newly triggered
// conditions sorted ascending by priority.
func (em *ExitManager) CheckAll(positionID string, price decimal.Decimal, now time.Time) []*ExitCondition {
	em.mu.Lock()
	defer em.mu.Unlock()

	pe, ok := em.byPos[positionID]
	if !ok {
		return nil
	}

	var triggered []*ExitCondition
	for _, c := range pe.conditions {
		if c.Triggered {
			continue
		}
		switch c.Kind {
		case ExitKindTimeBased:
			hoursHeld := decimal.NewFromFloat(now.Sub(pe.entryTime).Hours())
			if hoursHeld.GreaterThan(c.maxHoldingHours) {
				c.Triggered = true
				c.TriggerTime = now
				triggered = append(triggered, c)
			}
		case ExitKindProfitTarget:
			hit := false
			if pe.isLong && price.GreaterThanOrEqual(c.targetPrice) {
				hit = true
			} else if !pe.isLong && price.LessThanOrEqual(c.targetPrice) {
				hit = true
			}
			if hit {
				c.Triggered = true
				c.TriggerTime = now
				triggered = append(triggered, c)
			}
		}
	}

	sort.Slice(triggered, func(i, j int) bool { return triggered[i].Priority < triggered[j].Priority })
	return triggered
}

// Remove detaches exit conditions for a closed position.
func (em *ExitManager) Remove(positionID string) {
	em.mu.Lock()
	defer em.mu.Unlock()
	delete(em.byPos, positionID)
}
