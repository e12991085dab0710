package resilience

import (
	"context"
	"sync"

	"github.com/cenkalti/backoff/v4"

	"github.com/softslim/soapbridge/config"
	"github.com/softslim/soapbridge/internal/errors"
)

// Policy wraps a backend call with the resolved resilience behavior: retry
// (outermost, when enabled) around the circuit breaker (when enabled) around
// the raw call. Retries cover every invocation error, circuit-open included.
type Policy struct {
	routeKey string
	retry    *config.RetryConfig
	breaker  *Breaker
}

func newPolicy(routeKey string, rc *config.ResilienceConfig) *Policy {
	p := &Policy{routeKey: routeKey}
	if rc == nil {
		return p
	}
	if rc.Retry != nil && rc.Retry.Enabled {
		p.retry = rc.Retry
	}
	if cb := rc.CircuitBreaker; cb != nil && cb.Enabled {
		p.breaker = NewBreaker(cb.WindowSize(), cb.Threshold(), cb.WaitDurationOpen())
	}
	return p
}

// Execute runs fn under the policy and returns the final error, if any.
func (p *Policy) Execute(ctx context.Context, fn func() error) error {
	call := func() error { return p.throughBreaker(fn) }

	if p.retry == nil {
		return call()
	}

	constant := backoff.WithMaxRetries(
		backoff.NewConstantBackOff(p.retry.Backoff()),
		uint64(p.retry.Attempts()-1),
	)
	return backoff.Retry(call, backoff.WithContext(constant, ctx))
}

func (p *Policy) throughBreaker(fn func() error) error {
	if p.breaker == nil {
		return fn()
	}
	done, err := p.breaker.Allow()
	if err != nil {
		return errors.CircuitOpen(p.routeKey)
	}
	err = fn()
	done(err)
	return err
}

// Breaker exposes the policy's circuit breaker, or nil when disabled.
func (p *Policy) Breaker() *Breaker {
	return p.breaker
}

// Cache holds one Policy per route key. A policy is built lazily on first
// use and is fixed for the process lifetime; concurrent first resolutions
// may both construct a policy, but only one is kept.
type Cache struct {
	policies sync.Map // route key -> *Policy
}

// NewCache creates an empty policy cache.
func NewCache() *Cache {
	return &Cache{}
}

// Resolve returns the policy for routeKey, building it from rc on first use.
func (c *Cache) Resolve(routeKey string, rc *config.ResilienceConfig) *Policy {
	if v, ok := c.policies.Load(routeKey); ok {
		return v.(*Policy)
	}
	actual, _ := c.policies.LoadOrStore(routeKey, newPolicy(routeKey, rc))
	return actual.(*Policy)
}

// Snapshots returns breaker snapshots for every cached policy that has one.
func (c *Cache) Snapshots() map[string]BreakerSnapshot {
	result := make(map[string]BreakerSnapshot)
	c.policies.Range(func(key, value any) bool {
		if b := value.(*Policy).Breaker(); b != nil {
			result[key.(string)] = b.Snapshot()
		}
		return true
	})
	return result
}
