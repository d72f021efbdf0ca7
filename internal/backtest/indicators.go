package backtest

import (
	"github.com/Edgame2/masterTrade-sub003/pkg/utils"
	"github.com/shopspring/decimal"
)

// RSI calculates a streaming Wilder relative-strength index.
type RSI struct {
	period    int
	count     int
	avgGain   decimal.Decimal
	avgLoss   decimal.Decimal
	prevValue decimal.Decimal
	periodDec decimal.Decimal
}

// NewRSI creates an RSI calculator over the given period (14 is standard).
func NewRSI(period int) *RSI {
	return &RSI{period: period, periodDec: decimal.NewFromInt(int64(period))}
}

// Add feeds the next closing price and returns the current RSI (50
// while still warming up, matching a neutral-reading convention).
func (r *RSI) Add(value decimal.Decimal) decimal.Decimal {
	r.count++
	if r.count == 1 {
		r.prevValue = value
		return decimal.NewFromInt(50)
	}

	change := value.Sub(r.prevValue)
	r.prevValue = value

	gain := decimal.Zero
	loss := decimal.Zero
	if change.IsPositive() {
		gain = change
	} else {
		loss = change.Neg()
	}

	if r.count <= r.period+1 {
		r.avgGain = r.avgGain.Add(gain)
		r.avgLoss = r.avgLoss.Add(loss)
		if r.count == r.period+1 {
			r.avgGain = r.avgGain.Div(r.periodDec)
			r.avgLoss = r.avgLoss.Div(r.periodDec)
		} else {
			return decimal.NewFromInt(50)
		}
	} else {
		r.avgGain = r.avgGain.Mul(r.periodDec.Sub(decimal.NewFromInt(1))).Add(gain).Div(r.periodDec)
		r.avgLoss = r.avgLoss.Mul(r.periodDec.Sub(decimal.NewFromInt(1))).Add(loss).Div(r.periodDec)
	}

	if r.avgLoss.IsZero() {
		return decimal.NewFromInt(100)
	}
	rs := r.avgGain.Div(r.avgLoss)
	hundred := decimal.NewFromInt(100)
	return hundred.Sub(hundred.Div(decimal.NewFromInt(1).Add(rs)))
}

// BollingerBands is a streaming SMA-centered band with a stddev width.
type BollingerBands struct {
	sma     *utils.SMA
	period  int
	values  []decimal.Decimal
	stdDevN decimal.Decimal
}

// NewBollingerBands creates bands of stdDevN standard deviations
// around an SMA(period) midline (20/2 is the standard configuration).
func NewBollingerBands(period int, stdDevN decimal.Decimal) *BollingerBands {
	return &BollingerBands{
		sma:     utils.NewSMA(period),
		period:  period,
		values:  make([]decimal.Decimal, 0, period),
		stdDevN: stdDevN,
	}
}

// BollingerValue is one (middle, upper, lower) reading.
type BollingerValue struct {
	Middle decimal.Decimal
	Upper  decimal.Decimal
	Lower  decimal.Decimal
}

// Add feeds the next closing price and returns the current bands.
func (b *BollingerBands) Add(value decimal.Decimal) BollingerValue {
	mid := b.sma.Add(value)

	b.values = append(b.values, value)
	if len(b.values) > b.period {
		b.values = b.values[1:]
	}

	stddev := utils.CalculateStdDev(b.values)
	width := stddev.Mul(b.stdDevN)
	return BollingerValue{Middle: mid, Upper: mid.Add(width), Lower: mid.Sub(width)}
}

// ATR is a streaming Wilder average true range.
type ATR struct {
	period    int
	count     int
	prevClose decimal.Decimal
	avg       decimal.Decimal
	periodDec decimal.Decimal
}

// NewATR creates an ATR calculator over the given period (14 standard).
func NewATR(period int) *ATR {
	return &ATR{period: period, periodDec: decimal.NewFromInt(int64(period))}
}

// Add feeds the next (high, low, close) bar and returns the current ATR.
func (a *ATR) Add(high, low, close decimal.Decimal) decimal.Decimal {
	a.count++

	trueRange := high.Sub(low)
	if a.count > 1 {
		trueRange = utils.MaxDecimal(trueRange, utils.MaxDecimal(
			high.Sub(a.prevClose).Abs(), low.Sub(a.prevClose).Abs()))
	}
	a.prevClose = close

	if a.count <= a.period {
		a.avg = a.avg.Add(trueRange)
		if a.count == a.period {
			a.avg = a.avg.Div(a.periodDec)
		}
		return a.avg
	}

	a.avg = a.avg.Mul(a.periodDec.Sub(decimal.NewFromInt(1))).Add(trueRange).Div(a.periodDec)
	return a.avg
}
