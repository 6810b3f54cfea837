package ratelimit

import (
	"context"
	"time"

	"github.com/keithlinneman/linnemanlabs-edge/internal/routeclass"
)

// Decision is the outcome of one admission check.
type Decision struct {
	Allowed    bool
	Limit      int64
	Remaining  int64         // never negative
	RetryAfter time.Duration // zero when allowed
}

// Budgets maps a route class bucket to its per-window request budget.
type Budgets struct {
	Health int64
	API    int64
	Page   int64
}

// DefaultBudgets returns the production per-window budgets. Health is
// generous because orchestrators poll it; API is the tightest surface.
func DefaultBudgets() Budgets {
	return Budgets{Health: 100, API: 30, Page: 60}
}

// Limiter admits requests against fixed windows per (client, bucket).
// A store failure fails open: availability beats strict enforcement at
// this layer.
type Limiter struct {
	store   Store
	window  time.Duration
	budgets Budgets

	onDenied func(bucket string)
	onError  func(err error)
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithOnDenied installs a callback invoked on every denial, keyed by
// bucket. Used to feed metrics without coupling this package to them.
func WithOnDenied(fn func(bucket string)) Option {
	return func(l *Limiter) { l.onDenied = fn }
}

// WithOnError installs a callback invoked when the store fails and the
// limiter fails open.
func WithOnError(fn func(err error)) Option {
	return func(l *Limiter) { l.onError = fn }
}

// New creates a Limiter over the given store.
func New(store Store, window time.Duration, budgets Budgets, opts ...Option) *Limiter {
	l := &Limiter{store: store, window: window, budgets: budgets}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Admit records one hit for the client in the class's bucket and
// decides admission. Unbudgeted classes are always admitted with a
// zero-valued decision.
func (l *Limiter) Admit(ctx context.Context, clientID string, class routeclass.Class) Decision {
	bucket, limit := l.budget(class)
	if limit <= 0 {
		return Decision{Allowed: true}
	}

	key := "rl:" + clientID + ":" + bucket
	count, err := l.store.Incr(ctx, key, l.window)
	if err != nil {
		if l.onError != nil {
			l.onError(err)
		}
		return Decision{Allowed: true, Limit: limit, Remaining: limit}
	}

	remaining := limit - count
	if remaining < 0 {
		remaining = 0
	}
	if count > limit {
		if l.onDenied != nil {
			l.onDenied(bucket)
		}
		return Decision{Limit: limit, RetryAfter: l.window}
	}
	return Decision{Allowed: true, Limit: limit, Remaining: remaining}
}

// Window returns the configured window length.
func (l *Limiter) Window() time.Duration {
	return l.window
}

func (l *Limiter) budget(class routeclass.Class) (string, int64) {
	switch class {
	case routeclass.Health:
		return "health", l.budgets.Health
	case routeclass.API:
		return "api", l.budgets.API
	case routeclass.Page:
		return "page", l.budgets.Page
	default:
		return "", 0
	}
}
