package audit

import (
	"context"
	"fmt"

	"github.com/DataDog/dd-trace-go/v2/ddtrace/tracer"
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/rainbow-me/api-audit/common/logger"
	"github.com/rainbow-me/api-audit/observability"
)

const (
	spanName = "audit.sink"

	opMinimal  = "minimal"
	opDetailed = "detailed"
)

// Outcome is the result of one sink call.
type Outcome struct {
	Sink SinkKind
	Op   string
	Err  error
}

// Result lists the sink calls of one dispatch in execution order.
type Result struct {
	ID       string
	Outcomes []Outcome
}

// Failed returns the outcomes that carry an error.
func (r Result) Failed() []Outcome {
	var failed []Outcome
	for _, o := range r.Outcomes {
		if o.Err != nil {
			failed = append(failed, o)
		}
	}
	return failed
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithIDGenerator replaces uuid.NewString for audit ids.
func WithIDGenerator(newID func() string) DispatcherOption {
	return func(d *Dispatcher) {
		if newID != nil {
			d.newID = newID
		}
	}
}

// Dispatcher fans a CapturedRequest out to the sinks of a Registry.
type Dispatcher struct {
	registry *Registry
	newID    func() string
}

func NewDispatcher(registry *Registry, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		registry: registry,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch writes the minimal file entry, then a detailed entry for every sink enabled
// in mask, in the order file, database, event. Sinks run synchronously and are isolated
// from each other: a failing sink never stops the next one. Cancellation of ctx is ignored.
//
// The returned error is non-nil only when a sink reported a *ConfigurationError; it is
// returned after every sink ran. All other failures are logged and listed in Result.
func (d *Dispatcher) Dispatch(ctx context.Context, req *CapturedRequest, level Level, mask Mask) (Result, error) {
	if req == nil {
		return Result{}, NewCollectionError("dispatch", errors.New("captured request is nil"))
	}

	ctx = context.WithoutCancel(ctx)
	res := Result{ID: d.newID()}
	log := logger.FromContext(ctx).With(logger.String("audit_id", res.ID))
	ctx = logger.ContextWithLogger(ctx, log)

	res.Outcomes = append(res.Outcomes, d.call(ctx, SinkFile, opMinimal, func(ctx context.Context, s Sink) error {
		return s.LogMinimal(ctx, res.ID, req)
	}))

	for _, kind := range detailedOrder {
		if !mask.Enabled(kind) {
			continue
		}
		res.Outcomes = append(res.Outcomes, d.call(ctx, kind, opDetailed, func(ctx context.Context, s Sink) error {
			return s.LogDetailed(ctx, res.ID, level, req, true)
		}))
	}

	var cfgErr error
	for _, o := range res.Failed() {
		var ce *ConfigurationError
		if errors.As(o.Err, &ce) {
			cfgErr = errors.CombineErrors(cfgErr, o.Err)
			continue
		}
		log.Warn("audit sink failed",
			logger.String("sink", o.Sink.String()),
			logger.String("op", o.Op),
			logger.Error(o.Err),
		)
	}
	return res, cfgErr
}

// call runs one sink operation under its own span, turning a panic into an error.
func (d *Dispatcher) call(ctx context.Context, kind SinkKind, op string, fn func(context.Context, Sink) error) (out Outcome) {
	out = Outcome{Sink: kind, Op: op}

	span, ctx := observability.StartSpan(ctx, spanName,
		tracer.ResourceName(fmt.Sprintf("%s.%s", kind, op)),
		tracer.Tag("audit.sink", kind.String()),
	)
	defer func() {
		if r := recover(); r != nil {
			logger.FromContext(ctx).Error("audit sink panicked", logger.WithPanic(r)...)
			out.Err = newSinkWriteError(kind, "", errors.Newf("panic: %v", r))
		}
		observability.FinishSpan(span, out.Err)
	}()

	s, err := d.registry.Sink(kind)
	if err != nil {
		out.Err = err
		return out
	}
	out.Err = fn(ctx, s)
	return out
}
