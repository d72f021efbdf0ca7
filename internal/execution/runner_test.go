package execution

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Edgame2/masterTrade-sub003/pkg/types"
)

// fakeVenue is a scriptable VenueAdapter: Submit consults a per-venue
// queue of canned results (fill or error), falling back to a default
// fill once its queue is drained.
type fakeVenue struct {
	mu      sync.Mutex
	results map[string][]fakeResult
	calls   []string
}

type fakeResult struct {
	fill types.Fill
	err  error
}

func newFakeVenue() *fakeVenue {
	return &fakeVenue{results: make(map[string][]fakeResult)}
}

func (f *fakeVenue) enqueue(venue string, r fakeResult) {
	f.results[venue] = append(f.results[venue], r)
}

func (f *fakeVenue) Quote(ctx context.Context, symbol string) (types.ExchangeQuote, error) {
	return types.ExchangeQuote{Exchange: "sim", Bid: dec(100), Ask: dec(100)}, nil
}

func (f *fakeVenue) Submit(ctx context.Context, symbol string, side types.OrderSide, quantity decimal.Decimal, venue string) (types.Fill, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, venue)

	queue := f.results[venue]
	if len(queue) == 0 {
		return types.Fill{Price: dec(100), Size: quantity}, nil
	}
	next := queue[0]
	f.results[venue] = queue[1:]
	return next.fill, next.err
}

func planWithSlices(n int, qty decimal.Decimal, start time.Time) *types.ExecutionPlan {
	plan := &types.ExecutionPlan{
		OrderID:       "order1",
		Symbol:        "BTCUSDT",
		Side:          types.OrderSideBuy,
		TotalQuantity: qty.Mul(decimal.NewFromInt(int64(n))),
	}
	for i := 0; i < n; i++ {
		plan.Slices = append(plan.Slices, &types.Slice{
			SliceID:       "s" + string(rune('0'+i)),
			Quantity:      qty,
			ScheduledTime: start, // immediate, no scheduling delay under test
			Status:        types.SliceStatusPending,
		})
	}
	return plan
}

func TestPlanRunner_AllSlicesFillSuccessfully(t *testing.T) {
	plan := planWithSlices(3, dec(10), time.Now())
	venue := newFakeVenue()
	r := NewPlanRunner(zap.NewNop(), plan, venue, nil)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	r.Run(ctx)

	for _, s := range plan.Slices {
		if s.Status != types.SliceStatusCompleted {
			t.Fatalf("expected slice %s completed, got %s", s.SliceID, s.Status)
		}
	}
	if err := r.Err(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}

func TestPlanRunner_RetriesOnceThenFailsAfterTwoFailures(t *testing.T) {
	plan := planWithSlices(1, dec(10), time.Now())
	venue := newFakeVenue()
	venue.enqueue("", fakeResult{err: types.NewExchangeError("rejected", nil)})
	venue.enqueue("", fakeResult{err: types.NewExchangeError("rejected again", nil)})

	r := NewPlanRunner(zap.NewNop(), plan, venue, nil)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	r.Run(ctx)

	if plan.Slices[0].Status != types.SliceStatusFailed {
		t.Fatalf("expected slice failed after two rejections, got %s", plan.Slices[0].Status)
	}
	if plan.Slices[0].RetryCount != 1 {
		t.Fatalf("expected exactly one retry, got %d", plan.Slices[0].RetryCount)
	}
}

func TestPlanRunner_RetrySucceedsOnSecondAttempt(t *testing.T) {
	plan := planWithSlices(1, dec(10), time.Now())
	venue := newFakeVenue()
	venue.enqueue("", fakeResult{err: types.NewExchangeError("rejected", nil)})
	venue.enqueue("", fakeResult{fill: types.Fill{Price: dec(100), Size: dec(10)}})

	r := NewPlanRunner(zap.NewNop(), plan, venue, nil)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	r.Run(ctx)

	if plan.Slices[0].Status != types.SliceStatusCompleted {
		t.Fatalf("expected slice completed after a successful retry, got %s", plan.Slices[0].Status)
	}
}

func TestPlanRunner_PartialExecutionBelowFiftyPercent(t *testing.T) {
	plan := planWithSlices(4, dec(10), time.Now())
	venue := newFakeVenue()
	// Three of the four slices exhaust their retry and fail; the
	// fourth drains the queue and falls back to a default fill,
	// leaving completion at 25% regardless of which slice succeeds.
	for i := 0; i < 3; i++ {
		venue.enqueue("", fakeResult{err: types.NewExchangeError("rejected", nil)})
		venue.enqueue("", fakeResult{err: types.NewExchangeError("rejected again", nil)})
	}

	r := NewPlanRunner(zap.NewNop(), plan, venue, nil)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	r.Run(ctx)

	if err := r.Err(); err == nil {
		t.Fatalf("expected a partial_execution error below 50%% completion")
	}
}

func TestPlanRunner_Cancel_MarksPendingSlicesFailed(t *testing.T) {
	start := time.Now().Add(time.Hour) // far in the future, never reached
	plan := planWithSlices(2, dec(10), start)
	venue := newFakeVenue()
	r := NewPlanRunner(zap.NewNop(), plan, venue, nil)

	done := make(chan struct{})
	go func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		r.Run(ctx)
		close(done)
	}()

	r.Cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("expected Run to return promptly after Cancel")
	}

	for _, s := range plan.Slices {
		if s.Status != types.SliceStatusFailed {
			t.Fatalf("expected pending slice failed after cancel, got %s", s.Status)
		}
	}
}
