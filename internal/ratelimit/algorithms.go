package ratelimit

import (
	"fmt"
	"time"

	"github.com/Edgame2/masterTrade-sub003/pkg/types"
)

// stateTTL is how long algorithm state survives inactivity (spec §3:
// "Keys expire after 1 hour of inactivity").
const stateTTL = time.Hour

// algorithm evaluates one admission decision against the shared store
// for a single (rule, identifier) key. Implementations fail open: a
// store error returns (true, err) so the caller counts the error but
// still admits the request.
type algorithm interface {
	check(store Store, key string, rule types.RateLimitRule, now time.Time) (admitted bool, remaining int64, resetAt time.Time, err error)
}

// --- Token bucket ---------------------------------------------------

type tokenBucket struct{}

func (tokenBucket) check(store Store, key string, rule types.RateLimitRule, now time.Time) (bool, int64, time.Time, error) {
	fields, found, err := store.HashGet(key, "tokens", "last_refill")
	if err != nil {
		return true, 0, now, err
	}

	tokens := float64(rule.BurstSize)
	lastRefill := now
	if found {
		tokens = fields["tokens"]
		lastRefill = time.Unix(0, int64(fields["last_refill"]))
	}

	elapsed := now.Sub(lastRefill).Seconds()
	tokens += elapsed * rule.RequestsPerSec
	if tokens > float64(rule.BurstSize) {
		tokens = float64(rule.BurstSize)
	}

	admitted := tokens >= 1.0
	if admitted {
		tokens -= 1.0
	}

	if err := store.HashSet(key, map[string]float64{
		"tokens":      tokens,
		"last_refill": float64(now.UnixNano()),
	}, stateTTL); err != nil {
		return true, 0, now, err
	}

	remaining := int64(tokens)
	var resetAt time.Time
	if tokens < float64(rule.BurstSize) {
		secondsToFull := (float64(rule.BurstSize) - tokens) / rule.RequestsPerSec
		resetAt = now.Add(time.Duration(secondsToFull * float64(time.Second)))
	} else {
		resetAt = now
	}

	return admitted, remaining, resetAt, nil
}

// --- Sliding window --------------------------------------------------

type slidingWindow struct{}

func (slidingWindow) check(store Store, key string, rule types.RateLimitRule, now time.Time) (bool, int64, time.Time, error) {
	windowStart := now.Add(-time.Duration(rule.WindowSeconds * float64(time.Second)))

	if err := store.SortedSetRemoveByScore(key, float64(windowStart.UnixNano())); err != nil {
		return true, 0, now, err
	}

	count, err := store.SortedSetCard(key)
	if err != nil {
		return true, 0, now, err
	}

	limit := minInt64(int64(rule.RequestsPerSec*rule.WindowSeconds), rule.BurstSize)
	if rule.BurstSize == 0 {
		limit = int64(rule.RequestsPerSec * rule.WindowSeconds)
	}

	admitted := count < limit
	if admitted {
		if err := store.SortedSetAdd(key, float64(now.UnixNano()), fmt.Sprintf("%d", now.UnixNano())); err != nil {
			return true, 0, now, err
		}
		count++
	}
	if err := store.Expire(key, stateTTL); err != nil {
		return true, 0, now, err
	}

	remaining := limit - count
	if remaining < 0 {
		remaining = 0
	}
	resetAt := now.Add(time.Duration(rule.WindowSeconds * float64(time.Second)))
	return admitted, remaining, resetAt, nil
}

// --- Fixed window ------------------------------------------------------

type fixedWindow struct{}

func (fixedWindow) check(store Store, key string, rule types.RateLimitRule, now time.Time) (bool, int64, time.Time, error) {
	epoch := int64(float64(now.UnixNano()) / (rule.WindowSeconds * 1e9))
	windowKey := fmt.Sprintf("%s:%d", key, epoch)

	ttl := time.Duration(rule.WindowSeconds*float64(time.Second)) + 2*time.Second
	count, err := store.IncrementWithExpiry(windowKey, ttl)
	if err != nil {
		return true, 0, now, err
	}

	limit := minInt64(int64(rule.RequestsPerSec*rule.WindowSeconds), rule.BurstSize)
	if rule.BurstSize == 0 {
		limit = int64(rule.RequestsPerSec * rule.WindowSeconds)
	}

	admitted := count <= limit
	remaining := limit - count
	if remaining < 0 {
		remaining = 0
	}
	resetAt := time.Unix(0, int64(float64(epoch+1)*rule.WindowSeconds*1e9))
	return admitted, remaining, resetAt, nil
}

// --- Leaky bucket ------------------------------------------------------

type leakyBucket struct{}

func (leakyBucket) check(store Store, key string, rule types.RateLimitRule, now time.Time) (bool, int64, time.Time, error) {
	fields, found, err := store.HashGet(key, "volume", "last_leak")
	if err != nil {
		return true, 0, now, err
	}

	volume := 0.0
	lastLeak := now
	if found {
		volume = fields["volume"]
		lastLeak = time.Unix(0, int64(fields["last_leak"]))
	}

	elapsed := now.Sub(lastLeak).Seconds()
	volume -= elapsed * rule.RequestsPerSec
	if volume < 0 {
		volume = 0
	}

	admitted := volume < float64(rule.BurstSize)
	if admitted {
		volume++
	}

	if err := store.HashSet(key, map[string]float64{
		"volume":    volume,
		"last_leak": float64(now.UnixNano()),
	}, stateTTL); err != nil {
		return true, 0, now, err
	}

	remaining := int64(float64(rule.BurstSize) - volume)
	if remaining < 0 {
		remaining = 0
	}
	var resetAt time.Time
	if volume > 0 {
		secondsToDrain := volume / rule.RequestsPerSec
		resetAt = now.Add(time.Duration(secondsToDrain * float64(time.Second)))
	} else {
		resetAt = now
	}
	return admitted, remaining, resetAt, nil
}

func minInt64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

func algorithmFor(a types.RateLimitAlgorithm) (algorithm, error) {
	switch a {
	case types.AlgoTokenBucket:
		return tokenBucket{}, nil
	case types.AlgoSlidingWindow:
		return slidingWindow{}, nil
	case types.AlgoFixedWindow:
		return fixedWindow{}, nil
	case types.AlgoLeakyBucket:
		return leakyBucket{}, nil
	default:
		return nil, types.NewConfigurationError(fmt.Sprintf("unknown rate limit algorithm: %s", a))
	}
}
