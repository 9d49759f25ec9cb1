package audit

import (
	"sync"

	"github.com/cockroachdb/errors"
)

// ErrSinkNotRegistered is returned for sink kinds the registry has no factory for.
var ErrSinkNotRegistered = errors.New("sink not registered")

// SinkFactory constructs a sink. It runs again only after a failure that is not a
// *ConfigurationError.
type SinkFactory func() (Sink, error)

// RegistryOption registers sinks on a Registry.
type RegistryOption func(*Registry)

// WithSink registers the factory for kind. A later registration of the same kind wins.
func WithSink(kind SinkKind, factory SinkFactory) RegistryOption {
	return func(r *Registry) {
		r.sinks[kind] = &lazySink{factory: factory}
	}
}

// WithSinkInstance registers an already constructed sink under its own kind.
func WithSinkInstance(s Sink) RegistryOption {
	return WithSink(s.Kind(), func() (Sink, error) { return s, nil })
}

// Registry owns one lazily constructed instance per sink kind. Concurrent first
// use constructs once. A built sink and a *ConfigurationError are kept for the
// registry's lifetime; any other construction error is retried on the next use.
type Registry struct {
	sinks map[SinkKind]*lazySink
}

func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{sinks: make(map[SinkKind]*lazySink)}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Sink returns the instance for kind, constructing it on first use.
func (r *Registry) Sink(kind SinkKind) (Sink, error) {
	lazy, ok := r.sinks[kind]
	if !ok {
		return nil, errors.Wrapf(ErrSinkNotRegistered, "%s", kind)
	}
	s, err := lazy.get()
	if err != nil {
		return nil, errors.Wrapf(err, "construct %s sink", kind)
	}
	return s, nil
}

type lazySink struct {
	factory SinkFactory

	mu   sync.Mutex
	done bool
	sink Sink
	err  error
}

func (l *lazySink) get() (Sink, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.done {
		return l.sink, l.err
	}

	s, err := l.factory()
	var ce *ConfigurationError
	if err == nil || errors.As(err, &ce) {
		l.done, l.sink, l.err = true, s, err
	}
	return s, err
}
