// Package ratelimit implements distributed multi-algorithm request
// admission control (C3 of the core): token bucket, sliding window,
// fixed window and leaky bucket, evaluated against a shared state store
// so replicas agree on the same counters.
package ratelimit

import (
	"crypto/sha256"
	"encoding/hex"
	"path"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Edgame2/masterTrade-sub003/pkg/types"
	"go.uber.org/zap"
)

// sentinelRuleName is returned when no configured rule matches a
// request; such requests are always allowed.
const sentinelRuleName = "__unmatched__"

// Limiter is the C3 rate limiter orchestrator.
type Limiter struct {
	logger *zap.Logger
	store  Store
	pool   *pool

	mu    sync.RWMutex
	rules []types.RateLimitRule

	errors    atomic.Int64
	allowed   atomic.Int64
	denied    atomic.Int64
}

// NewLimiter builds a Limiter against store, starting its admission pool.
func NewLimiter(logger *zap.Logger, store Store) *Limiter {
	l := &Limiter{
		logger: logger.Named("ratelimit"),
		store:  store,
		pool:   newPool(logger.Named("ratelimit.pool"), defaultPoolConfig("ratelimit")),
	}
	l.pool.start()
	return l
}

// Stop drains the admission pool.
func (l *Limiter) Stop() error {
	return l.pool.stop()
}

// AddRule registers or replaces a rule by name.
func (l *Limiter) AddRule(rule types.RateLimitRule) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, r := range l.rules {
		if r.Name == rule.Name {
			l.rules[i] = rule
			l.sortRulesLocked()
			return
		}
	}
	l.rules = append(l.rules, rule)
	l.sortRulesLocked()
}

// RemoveRule deletes a rule by name.
func (l *Limiter) RemoveRule(name string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := l.rules[:0]
	for _, r := range l.rules {
		if r.Name != name {
			out = append(out, r)
		}
	}
	l.rules = out
}

func (l *Limiter) sortRulesLocked() {
	sort.SliceStable(l.rules, func(i, j int) bool {
		return l.rules[i].Priority > l.rules[j].Priority
	})
}

// matchRule returns the highest-priority rule whose method and
// path-glob match, or (zero, false) if none matches.
func (l *Limiter) matchRule(requestPath, method string) (types.RateLimitRule, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	for _, r := range l.rules {
		if !methodMatches(r.Methods, method) {
			continue
		}
		for _, pattern := range r.PathPatterns {
			if ok, _ := path.Match(pattern, requestPath); ok {
				return r, true
			}
		}
	}
	return types.RateLimitRule{}, false
}

func methodMatches(methods []string, method string) bool {
	if len(methods) == 0 {
		return true
	}
	for _, m := range methods {
		if m == "*" || m == method {
			return true
		}
	}
	return false
}

// Check evaluates admission for identifier against the rule matching
// (requestPath, method). extraIdentifiers, if supplied, must ALL pass
// under the matched rule or the whole request is denied — the first
// failure's reset time is what's returned.
func (l *Limiter) Check(identifier, requestPath, method string, extraIdentifiers ...string) types.RateLimitResult {
	rule, ok := l.matchRule(requestPath, method)
	if !ok {
		l.allowed.Add(1)
		return types.RateLimitResult{Status: types.RateLimitAllowed, RuleName: sentinelRuleName}
	}

	alg, err := algorithmFor(rule.Algorithm)
	if err != nil {
		l.logger.Error("unknown rate limit algorithm configured", zap.String("rule", rule.Name), zap.Error(err))
		l.allowed.Add(1)
		return types.RateLimitResult{Status: types.RateLimitAllowed, RuleName: rule.Name}
	}

	ids := append([]string{identifier}, extraIdentifiers...)
	now := time.Now()

	var worstDenied *types.RateLimitResult
	for _, id := range ids {
		key := compositeKey(rule.Name, id)

		var admitted bool
		var remaining int64
		var resetAt time.Time
		var checkErr error

		waitErr := l.pool.submitWait(func() error {
			admitted, remaining, resetAt, checkErr = alg.check(l.store, key, rule, now)
			return checkErr
		})
		_ = waitErr

		if checkErr != nil {
			l.errors.Add(1)
			l.logger.Warn("rate limit store error, failing open", zap.String("rule", rule.Name), zap.Error(checkErr))
			return types.RateLimitResult{Status: types.RateLimitError, RuleName: rule.Name, Remaining: 0}
		}

		if !admitted {
			res := types.RateLimitResult{
				Status:        types.RateLimitDenied,
				RuleName:      rule.Name,
				Remaining:     remaining,
				ResetAtUnix:   resetAt.Unix(),
				RetryAfterSec: resetAt.Sub(now).Seconds(),
			}
			if worstDenied == nil {
				worstDenied = &res
			}
		}
	}

	if worstDenied != nil {
		l.denied.Add(1)
		return *worstDenied
	}

	l.allowed.Add(1)
	return types.RateLimitResult{Status: types.RateLimitAllowed, RuleName: rule.Name}
}

// Reset clears stored state for an identifier under a rule (or all
// rules if rule is empty).
func (l *Limiter) Reset(identifier string, ruleName string) error {
	l.mu.RLock()
	rules := l.rules
	l.mu.RUnlock()

	for _, r := range rules {
		if ruleName != "" && r.Name != ruleName {
			continue
		}
		key := compositeKey(r.Name, identifier)
		if err := l.store.Expire(key, 0); err != nil {
			return err
		}
	}
	return nil
}

// Statistics reports aggregate admission counters.
type Statistics struct {
	Allowed int64
	Denied  int64
	Errors  int64
}

func (l *Limiter) Statistics() Statistics {
	return Statistics{
		Allowed: l.allowed.Load(),
		Denied:  l.denied.Load(),
		Errors:  l.errors.Load(),
	}
}

func compositeKey(ruleName, identifier string) string {
	h := sha256.Sum256([]byte(identifier))
	return "rate_limit:" + ruleName + ":" + hex.EncodeToString(h[:8])
}
