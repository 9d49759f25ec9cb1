package server

import (
	"cmp"
	"context"
	"slices"
	"time"
)

// ShutdownHook runs during graceful shutdown, after the listeners are closed. The audit
// store and event channels are released this way.
type ShutdownHook struct {
	Name     string
	Priority int // lower runs first
	Timeout  time.Duration
	Hook     func(context.Context) error
}

// ShutdownHooks keeps hooks in execution order.
type ShutdownHooks []ShutdownHook

// add inserts hook after every hook of equal or lower priority.
func (h ShutdownHooks) add(hook ShutdownHook) ShutdownHooks {
	if hook.Timeout <= 0 {
		hook.Timeout = DefaultHookTimeout
	}
	h = append(h, hook)
	slices.SortStableFunc(h, func(a, b ShutdownHook) int { return cmp.Compare(a.Priority, b.Priority) })
	return h
}
