package backtest

import (
	"sync"

	"github.com/shopspring/decimal"
)

// KellySizer tracks a rolling trade-outcome history and sizes new
// positions as a capped fraction of full Kelly, the fixed-fractional
// behavior the engine's calculatePositionSize hook previously stubbed
// out with max-position-size alone.
type KellySizer struct {
	mu             sync.Mutex
	lookback       int
	kellyFraction  float64
	maxPositionPct decimal.Decimal
	wins           []decimal.Decimal
	losses         []decimal.Decimal
}

// NewKellySizer builds a sizer that risks kellyFraction (e.g. 0.5 for
// half-Kelly) of the full Kelly stake, never exceeding maxPositionPct
// of equity, using at most the last lookback trades.
func NewKellySizer(lookback int, kellyFraction float64, maxPositionPct decimal.Decimal) *KellySizer {
	return &KellySizer{
		lookback:       lookback,
		kellyFraction:  kellyFraction,
		maxPositionPct: maxPositionPct,
	}
}

// Record adds a closed trade's PnL to the rolling history.
func (k *KellySizer) Record(pnl decimal.Decimal) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if pnl.IsPositive() {
		k.wins = append(k.wins, pnl)
	} else if pnl.IsNegative() {
		k.losses = append(k.losses, pnl.Neg())
	}
	k.trim()
}

func (k *KellySizer) trim() {
	if len(k.wins) > k.lookback {
		k.wins = k.wins[len(k.wins)-k.lookback:]
	}
	if len(k.losses) > k.lookback {
		k.losses = k.losses[len(k.losses)-k.lookback:]
	}
}

// SizePct returns the equity fraction to risk on the next trade. With
// fewer than 10 combined samples it falls back to a conservative
// default fraction since Kelly estimates are unstable on thin history.
func (k *KellySizer) SizePct() decimal.Decimal {
	k.mu.Lock()
	defer k.mu.Unlock()

	total := len(k.wins) + len(k.losses)
	if total < 10 {
		return decimal.NewFromFloat(0.02)
	}

	winRate := float64(len(k.wins)) / float64(total)
	avgWin := averageDecimal(k.wins)
	avgLoss := averageDecimal(k.losses)
	if avgLoss == 0 {
		return decimal.NewFromFloat(0.02)
	}

	p := winRate
	q := 1 - p
	b := avgWin / avgLoss
	if b <= 0 {
		return decimal.Zero
	}

	kelly := p - q/b
	if kelly < 0 {
		return decimal.Zero
	}
	if kelly > 1 {
		kelly = 1
	}

	sized := decimal.NewFromFloat(kelly * k.kellyFraction)
	if sized.GreaterThan(k.maxPositionPct) {
		return k.maxPositionPct
	}
	return sized
}

func averageDecimal(values []decimal.Decimal) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := decimal.Zero
	for _, v := range values {
		sum = sum.Add(v)
	}
	avg, _ := sum.Div(decimal.NewFromInt(int64(len(values)))).Float64()
	return avg
}
