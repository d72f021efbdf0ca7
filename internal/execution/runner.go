package execution

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Edgame2/masterTrade-sub003/pkg/types"
)

// VenueAdapter submits a single slice to a venue and reports its fill,
// or a retryable *types.TradingError on rejection/partial reject.
// Distinct from, and lighter than, the order-level ExchangeAdapter:
// slicing only ever needs a quote and a submit/cancel round trip.
type VenueAdapter interface {
	Quote(ctx context.Context, symbol string) (types.ExchangeQuote, error)
	Submit(ctx context.Context, symbol string, side types.OrderSide, quantity decimal.Decimal, venue string) (types.Fill, error)
}

// PlanRunner drives a single ExecutionPlan's slice schedule to
// completion on its own goroutine: slices execute strictly in
// scheduled_time order and never concurrently within a plan.
type PlanRunner struct {
	logger *zap.Logger
	plan   *types.ExecutionPlan
	venue  VenueAdapter
	router *Router
	clock  func() time.Time

	mu       sync.Mutex
	fills    []types.Fill
	done     chan struct{}
	cancelCh chan struct{}
	canceled bool
	err      error
}

// NewPlanRunner builds a runner for plan, submitting slices through
// venue and (when router carries quotes) routing each slice before
// submission.
func NewPlanRunner(logger *zap.Logger, plan *types.ExecutionPlan, venue VenueAdapter, router *Router) *PlanRunner {
	return &PlanRunner{
		logger:   logger.Named("execution.runner"),
		plan:     plan,
		venue:    venue,
		router:   router,
		clock:    time.Now,
		done:     make(chan struct{}),
		cancelCh: make(chan struct{}),
	}
}

// Fills returns the fills recorded so far. Safe to call concurrently
// with Run.
func (r *PlanRunner) Fills() []types.Fill {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]types.Fill, len(r.fills))
	copy(out, r.fills)
	return out
}

// Done closes once Run returns.
func (r *PlanRunner) Done() <-chan struct{} { return r.done }

// Err returns the terminal error once Run has finished, nil while
// still running or on a fully clean completion.
func (r *PlanRunner) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Cancel marks every pending slice failed and ends the plan; an
// in-flight slice already submitted still completes or times out, and
// its result is recorded regardless.
func (r *PlanRunner) Cancel() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.canceled {
		return
	}
	r.canceled = true
	r.plan.Cancelled = true
	for _, s := range r.plan.Slices {
		if s.Status == types.SliceStatusPending {
			s.Status = types.SliceStatusFailed
		}
	}
	close(r.cancelCh)
}

// Run blocks until every slice has reached a terminal state, the plan
// is cancelled, or ctx is cancelled. It is meant to run on its own
// goroutine, one per live plan.
func (r *PlanRunner) Run(ctx context.Context) {
	defer close(r.done)

	for _, slice := range r.plan.Slices {
		if r.isCancelled() {
			break
		}
		if err := r.waitUntil(ctx, slice.ScheduledTime); err != nil {
			r.setErr(err)
			return
		}
		if r.isCancelled() {
			break
		}
		r.executeSlice(ctx, slice)
	}

	r.finalize()
}

func (r *PlanRunner) isCancelled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.plan.Cancelled
}

func (r *PlanRunner) waitUntil(ctx context.Context, t time.Time) error {
	delay := t.Sub(r.clock())
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-r.cancelCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// executeSlice submits a slice, retrying once against the next-best
// route on a retryable exchange error; two failures mark it failed
// and the plan continues (spec §4.3 failure semantics).
func (r *PlanRunner) executeSlice(ctx context.Context, slice *types.Slice) {
	slice.Status = types.SliceStatusExecuting

	venue := r.bestVenue(slice)
	fill, err := r.venue.Submit(ctx, r.plan.Symbol, r.plan.Side, slice.Quantity, venue)
	if err != nil && types.IsRetryable(err) {
		slice.RetryCount++
		venue = r.nextVenue(slice, venue)
		fill, err = r.venue.Submit(ctx, r.plan.Symbol, r.plan.Side, slice.Quantity, venue)
	}

	if err != nil {
		slice.Status = types.SliceStatusFailed
		r.logger.Warn("slice failed after retry", zap.String("sliceId", slice.SliceID), zap.Error(err))
		return
	}

	price := fill.Price
	slice.ExecutedPrice = &price
	slice.ExecutedQty = fill.Size
	slice.Status = types.SliceStatusCompleted

	r.mu.Lock()
	r.fills = append(r.fills, fill)
	r.mu.Unlock()
}

func (r *PlanRunner) bestVenue(slice *types.Slice) string {
	if r.router == nil {
		return ""
	}
	decision, ok := r.router.Route(r.plan.Side, slice.Quantity, types.RoutingBalanced)
	if !ok {
		return ""
	}
	return decision.Exchange
}

// nextVenue picks the best balanced-score venue other than the one that
// just failed, falling back to the same venue when only one is quoted.
func (r *PlanRunner) nextVenue(slice *types.Slice, failed string) string {
	if r.router == nil {
		return failed
	}
	var others []types.ExchangeQuote
	for _, q := range r.router.snapshot() {
		if q.Exchange != failed {
			others = append(others, q)
		}
	}
	if len(others) == 0 {
		return failed
	}
	return selectBalanced(others, r.plan.Side, slice.Quantity).Exchange
}

// finalize marks the plan's overall outcome: below 50% completion at
// expiration surfaces a partial_execution error (spec §4.3).
func (r *PlanRunner) finalize() {
	completed := decimal.Zero
	for _, s := range r.plan.Slices {
		if s.Status == types.SliceStatusCompleted {
			completed = completed.Add(s.ExecutedQty)
		}
	}
	if r.plan.TotalQuantity.IsZero() {
		return
	}
	rate, _ := completed.Div(r.plan.TotalQuantity).Float64()
	if rate < 0.5 {
		r.setErr(types.NewExchangeError("partial_execution", nil))
	}
}

func (r *PlanRunner) setErr(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
}
