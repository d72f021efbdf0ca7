package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/Edgame2/masterTrade-sub003/internal/cache"
	"github.com/Edgame2/masterTrade-sub003/internal/execution"
	"github.com/Edgame2/masterTrade-sub003/internal/ratelimit"
	"github.com/Edgame2/masterTrade-sub003/pkg/types"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// quoteCacheNamespace is the cache.CacheManager namespace quote
// snapshots are tiered under; main.go registers it with a short TTL
// since a venue quote goes stale in seconds.
const quoteCacheNamespace = "quotes"

// ExecutionHandlers exposes slice-scheduled execution plans and their
// post-trade quality over HTTP.
type ExecutionHandlers struct {
	logger  *zap.Logger
	planner *execution.Planner
	router  *execution.Router
	tracker *execution.Tracker
	venue   execution.VenueAdapter
	limiter *ratelimit.Limiter
	cache   *cache.CacheManager

	mu      sync.RWMutex
	plans   map[string]*types.ExecutionPlan
	runners map[string]*execution.PlanRunner
}

// NewExecutionHandlers creates the execution plan handler group. venue
// is used to run created plans to completion on their own goroutine;
// limiter and cacheMgr gate and tier every quote fetched from venue so
// repeated plan creation for the same symbol within the same second
// doesn't hammer the exchange adapter. Either may be nil to run
// ungated (e.g. in tests).
func NewExecutionHandlers(logger *zap.Logger, planner *execution.Planner, router *execution.Router, tracker *execution.Tracker, venue execution.VenueAdapter, limiter *ratelimit.Limiter, cacheMgr *cache.CacheManager) *ExecutionHandlers {
	return &ExecutionHandlers{
		logger:  logger.Named("execution-api"),
		planner: planner,
		router:  router,
		tracker: tracker,
		venue:   venue,
		limiter: limiter,
		cache:   cacheMgr,
		plans:   make(map[string]*types.ExecutionPlan),
		runners: make(map[string]*execution.PlanRunner),
	}
}

// fetchQuote fetches a venue quote through the rate limiter and the
// tiered cache: a denied admission returns a resource-upstream error,
// any other admission status (including a store error) proceeds, and
// a cache miss calls the venue and populates the cache.
func (h *ExecutionHandlers) fetchQuote(ctx context.Context, symbol string) (types.ExchangeQuote, error) {
	if h.limiter != nil {
		if res := h.limiter.Check("execution-api", "/internal/venue-quote", "GET"); res.Status == types.RateLimitDenied {
			return types.ExchangeQuote{}, types.NewResourceUpstreamError("quote fetch rate limited", nil)
		}
	}

	if h.cache != nil {
		if raw, found, err := h.cache.Get(quoteCacheNamespace, symbol); err == nil && found {
			var q types.ExchangeQuote
			if jsonErr := json.Unmarshal(raw, &q); jsonErr == nil {
				return q, nil
			}
		}
	}

	q, err := h.venue.Quote(ctx, symbol)
	if err != nil {
		return types.ExchangeQuote{}, err
	}

	if h.cache != nil {
		if raw, jsonErr := json.Marshal(q); jsonErr == nil {
			if setErr := h.cache.Set(quoteCacheNamespace, symbol, raw, 0); setErr != nil {
				h.logger.Warn("failed to cache venue quote", zap.String("symbol", symbol), zap.Error(setErr))
			}
		}
	}
	return q, nil
}

// RegisterRoutes registers every execution endpoint on the given router.
func (h *ExecutionHandlers) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/api/v1/execution/plans", h.CreatePlan).Methods("POST")
	r.HandleFunc("/api/v1/execution/plans", h.ListPlans).Methods("GET")
	r.HandleFunc("/api/v1/execution/plans/{id}", h.GetPlan).Methods("GET")
	r.HandleFunc("/api/v1/execution/plans/{id}/cancel", h.CancelPlan).Methods("POST")
	r.HandleFunc("/api/v1/execution/quality", h.GetQualityStatistics).Methods("GET")
}

func (h *ExecutionHandlers) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("failed to encode response", zap.Error(err))
	}
}

type createPlanRequest struct {
	Symbol          string  `json:"symbol"`
	Side            string  `json:"side"`
	TotalQuantity   string  `json:"totalQuantity"`
	Algorithm       string  `json:"algorithm"`
	DurationMinutes int     `json:"durationMinutes"`
	Urgency         float64 `json:"urgency"`
}

// CreatePlan builds and starts a new TWAP/VWAP execution plan. POV and
// Adaptive plans require market-data inputs this surface does not yet
// accept and are rejected with a validation error.
func (h *ExecutionHandlers) CreatePlan(w http.ResponseWriter, r *http.Request) {
	var req createPlanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	qty, err := decimal.NewFromString(req.TotalQuantity)
	if err != nil || !qty.IsPositive() {
		http.Error(w, "totalQuantity must be a positive decimal", http.StatusBadRequest)
		return
	}

	side := types.OrderSide(req.Side)
	if side != types.OrderSideBuy && side != types.OrderSideSell {
		http.Error(w, "side must be buy or sell", http.StatusBadRequest)
		return
	}

	orderID := uuid.NewString()
	start := time.Now()

	var plan *types.ExecutionPlan
	switch types.ExecutionAlgorithm(req.Algorithm) {
	case types.AlgoTWAP:
		plan = h.planner.TWAP(orderID, req.Symbol, side, qty, start, req.DurationMinutes)
	case types.AlgoVWAP:
		plan = h.planner.VWAP(orderID, req.Symbol, side, qty, start, req.DurationMinutes, nil)
	default:
		http.Error(w, "unsupported algorithm for this endpoint: use twap or vwap", http.StatusBadRequest)
		return
	}

	var arrivalPrice decimal.Decimal
	if h.venue != nil {
		if q, err := h.fetchQuote(r.Context(), req.Symbol); err == nil {
			if side == types.OrderSideBuy {
				arrivalPrice = q.Ask
			} else {
				arrivalPrice = q.Bid
			}
		}
	}

	runner := execution.NewPlanRunner(h.logger, plan, h.venue, h.router)

	h.mu.Lock()
	h.plans[orderID] = plan
	h.runners[orderID] = runner
	h.mu.Unlock()

	go runner.Run(context.Background())
	go h.recordOutcome(orderID, plan, runner, arrivalPrice, start)

	h.writeJSON(w, http.StatusCreated, plan)
}

// recordOutcome waits for a plan to finish and feeds its fills into
// the slippage/quality tracker so GetQualityStatistics reflects every
// completed plan, not just ones the caller explicitly reports.
func (h *ExecutionHandlers) recordOutcome(orderID string, plan *types.ExecutionPlan, runner *execution.PlanRunner, arrivalPrice decimal.Decimal, start time.Time) {
	<-runner.Done()
	if h.tracker == nil || arrivalPrice.IsZero() {
		return
	}

	fills := runner.Fills()
	if len(fills) == 0 {
		return
	}
	if _, ok := h.tracker.RecordExecution(orderID, plan.Symbol, plan.Side, arrivalPrice, fills); ok {
		expected := plan.EndTime.Sub(plan.StartTime)
		actual := time.Since(start)
		h.tracker.AssessQuality(orderID, expected, actual)
	}
}

// ListPlans returns every execution plan created this session.
func (h *ExecutionHandlers) ListPlans(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	plans := make([]*types.ExecutionPlan, 0, len(h.plans))
	for _, p := range h.plans {
		plans = append(plans, p)
	}
	h.writeJSON(w, http.StatusOK, plans)
}

// GetPlan returns a single execution plan by its parent order id.
func (h *ExecutionHandlers) GetPlan(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	h.mu.RLock()
	plan, ok := h.plans[id]
	h.mu.RUnlock()
	if !ok {
		http.Error(w, "plan not found", http.StatusNotFound)
		return
	}
	h.writeJSON(w, http.StatusOK, plan)
}

// CancelPlan marks every pending slice of a plan failed and ends it.
func (h *ExecutionHandlers) CancelPlan(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	h.mu.RLock()
	runner, ok := h.runners[id]
	h.mu.RUnlock()
	if !ok {
		http.Error(w, "plan not found or not running", http.StatusNotFound)
		return
	}
	runner.Cancel()
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

// GetQualityStatistics returns aggregate post-trade slippage/quality
// over the trailing 24 hours, optionally filtered by symbol.
func (h *ExecutionHandlers) GetQualityStatistics(w http.ResponseWriter, r *http.Request) {
	symbol := r.URL.Query().Get("symbol")
	stats := h.tracker.Statistics(symbol, 24*time.Hour)
	quality := h.tracker.QualityStatistics(24 * time.Hour)
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"slippage": stats,
		"quality":  quality,
	})
}
