package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// ExecutionAlgorithm identifies the slicing algorithm for a parent order.
type ExecutionAlgorithm string

const (
	AlgoTWAP     ExecutionAlgorithm = "TWAP"
	AlgoVWAP     ExecutionAlgorithm = "VWAP"
	AlgoPOV      ExecutionAlgorithm = "POV"
	AlgoAdaptive ExecutionAlgorithm = "Adaptive"
)

// SliceStatus is the lifecycle of a single execution slice.
type SliceStatus string

const (
	SliceStatusPending   SliceStatus = "pending"
	SliceStatusExecuting SliceStatus = "executing"
	SliceStatusCompleted SliceStatus = "completed"
	SliceStatusFailed    SliceStatus = "failed"
)

// Slice is a scheduled child order derived from a parent ExecutionPlan.
// Completed slices are never mutated again.
type Slice struct {
	SliceID        string          `json:"sliceId"`
	Quantity       decimal.Decimal `json:"quantity"`
	ScheduledTime  time.Time       `json:"scheduledTime"`
	Status         SliceStatus     `json:"status"`
	ExecutedPrice  *decimal.Decimal `json:"executedPrice,omitempty"`
	ExecutedQty    decimal.Decimal `json:"executedQuantity"`
	RetryCount     int             `json:"retryCount"`
}

// ExecutionPlan is the full slate of slices for a parent order.
type ExecutionPlan struct {
	OrderID        string             `json:"orderId"`
	Symbol         string             `json:"symbol"`
	Side           OrderSide          `json:"side"`
	TotalQuantity  decimal.Decimal    `json:"totalQuantity"`
	Algorithm      ExecutionAlgorithm `json:"algorithm"`
	StartTime      time.Time          `json:"startTime"`
	EndTime        time.Time          `json:"endTime"`
	Slices         []*Slice           `json:"slices"`
	Cancelled      bool               `json:"cancelled"`
}

// ExchangeQuote is a per-venue quote snapshot used for routing.
type ExchangeQuote struct {
	Exchange  string          `json:"exchange"`
	Bid       decimal.Decimal `json:"bid"`
	Ask       decimal.Decimal `json:"ask"`
	BidSize   decimal.Decimal `json:"bidSize"`
	AskSize   decimal.Decimal `json:"askSize"`
	FeeBps    decimal.Decimal `json:"feeBps"`
	LatencyMs int64           `json:"latencyMs"`
}

// RoutingStrategy selects which venue-selection rule is applied.
type RoutingStrategy string

const (
	RoutingBestPrice     RoutingStrategy = "best_price"
	RoutingBestLiquidity RoutingStrategy = "best_liquidity"
	RoutingLowestFee     RoutingStrategy = "lowest_fee"
	RoutingBalanced      RoutingStrategy = "balanced"
)

// RoutingDecision is the outcome of routing a (possibly partial) slice
// quantity to one venue.
type RoutingDecision struct {
	Exchange string          `json:"exchange"`
	Quantity decimal.Decimal `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
	Score    float64         `json:"score"`
}
