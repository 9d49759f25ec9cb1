package audit

import (
	"context"

	"github.com/cockroachdb/errors"
)

// CollectFunc captures the request of the call being intercepted.
type CollectFunc func(ctx context.Context) (*CapturedRequest, error)

// Auditor is the entry point interception hooks call once per request, before the handler runs.
type Auditor struct {
	dispatcher *Dispatcher
	level      Level
}

// NewAuditor creates an auditor whose hooks format entries at level unless told otherwise.
func NewAuditor(dispatcher *Dispatcher, level Level) *Auditor {
	return &Auditor{dispatcher: dispatcher, level: level}
}

// Level is the configured level hooks pass to OnIntercept.
func (a *Auditor) Level() Level { return a.level }

// OnIntercept collects the request and dispatches it. The error is a *CollectionError
// or a *ConfigurationError; sink write failures only show up in Result.
func (a *Auditor) OnIntercept(ctx context.Context, collect CollectFunc, mask Mask, level Level) (Result, error) {
	req, err := collect(ctx)
	if err != nil {
		var ce *CollectionError
		if !errors.As(err, &ce) {
			err = NewCollectionError("collect", err)
		}
		return Result{}, err
	}
	return a.dispatcher.Dispatch(ctx, req, level, mask)
}
