// Package engine applies normalized board changes and card moves inside
// store transactions while keeping sibling orders dense.
package engine

import (
	"log/slog"
	"time"

	"kanban/api/internal/store"
)

const DefaultTxTimeout = 5 * time.Second

// Options are shared by the Executor and the Relocator.
type Options struct {
	TxTimeout time.Duration
	Retry     RetryPolicy
	Logger    *slog.Logger
	Metrics   *Metrics
	Now       func() time.Time
}

func (o Options) withDefaults() Options {
	if o.TxTimeout <= 0 {
		o.TxTimeout = DefaultTxTimeout
	}
	if o.Retry.MaxAttempts == 0 {
		sleep := o.Retry.Sleep
		o.Retry = DefaultRetryPolicy()
		o.Retry.Sleep = sleep
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Now == nil {
		o.Now = func() time.Time { return time.Now().UTC() }
	}
	return o
}

// Engine bundles both mutation paths over one store.
type Engine struct {
	*Executor
	*Relocator
}

func New(s store.Store, opts Options) *Engine {
	return &Engine{
		Executor:  NewExecutor(s, opts),
		Relocator: NewRelocator(s, opts),
	}
}
