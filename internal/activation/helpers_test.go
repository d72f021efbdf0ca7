package activation

import (
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func decimalFromFloat(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func testLogger() *zap.Logger {
	return zap.NewNop()
}
