package correlation

import (
	"context"
	"encoding/json"
	"maps"
	"slices"

	"github.com/DataDog/dd-trace-go/v2/ddtrace/tracer"

	"github.com/rainbow-me/api-audit/common/headers"
	"github.com/rainbow-me/api-audit/common/logger"
)

// Standard correlation keys
const (
	IDKey        = "correlation_id"
	RequestIDKey = "request_id"
	AuditIDKey   = "audit_id"
)

// ContextCorrelationHeader HTTP/gRPC header name for correlation context
const ContextCorrelationHeader = headers.HeaderXCorrelationData

type correlationContextKey struct{}

// Key is the context key for storing correlation data
var Key = correlationContextKey{}

// Data represents the correlation context data
type Data map[string]string

// ContextWithCorrelation parses the correlation header value (if any) into ctx.
// A malformed header is logged and ignored.
func ContextWithCorrelation(ctx context.Context, val string) context.Context {
	if val == "" {
		return ctx
	}
	data, err := ParseCorrelationHeader(val)
	if err != nil {
		logger.FromContext(ctx).Warn("failed to parse correlation header", logger.Error(err))
		return ctx
	}
	return Set(ctx, data)
}

// Set merges values into a copy of the correlation data of ctx and returns the derived context.
// Empty keys and values are skipped. Values are propagated as span baggage and log fields.
func Set(ctx context.Context, values map[string]string) context.Context {
	if len(values) == 0 {
		return ctx
	}

	prev := Get(ctx)
	correlationMap := maps.Clone(prev)
	for k, v := range values {
		if k != "" && v != "" {
			correlationMap[k] = v
		}
	}

	if span, ok := tracer.SpanFromContext(ctx); ok {
		for k, v := range correlationMap {
			span.SetBaggageItem(k, v)
		}
	}

	ctx = context.WithValue(ctx, Key, correlationMap)
	return withLogFields(ctx, prev, correlationMap)
}

// SetKey sets a single key. An empty value removes the key.
func SetKey(ctx context.Context, key, value string) context.Context {
	if key == "" {
		return ctx
	}

	prev := Get(ctx)
	newMap := maps.Clone(prev)
	if value != "" {
		newMap[key] = value
	} else {
		delete(newMap, key)
	}

	if span, ok := tracer.SpanFromContext(ctx); ok && value != "" {
		span.SetBaggageItem(key, value)
	}

	ctx = context.WithValue(ctx, Key, newMap)
	return withLogFields(ctx, prev, newMap)
}

// logState remembers the logger correlation fields were last added to, so each
// correlation field appears once in the context logger.
type logState struct {
	base     *logger.Logger
	carried  Data // correlation fields base already logs
	produced *logger.Logger
}

type logStateKey struct{}

// withLogFields stores a context logger carrying next. While the context logger is
// still the one produced here it is rebuilt from base; once other fields were layered
// on top, only the changed keys are appended to it.
func withLogFields(ctx context.Context, prev, next Data) context.Context {
	current := logger.FromContext(ctx)
	st, ok := ctx.Value(logStateKey{}).(*logState)
	switch {
	case !ok:
		st = &logState{base: current, carried: Data{}}
	case st.produced != current:
		st = &logState{base: current, carried: prev}
	default:
		st = &logState{base: st.base, carried: st.carried}
	}

	st.produced = st.base.With(changedFields(st.carried, next)...)
	ctx = context.WithValue(ctx, logStateKey{}, st)
	return logger.ContextWithLogger(ctx, st.produced)
}

func changedFields(carried, next Data) []logger.Field {
	keys := slices.Sorted(maps.Keys(next))
	fields := make([]logger.Field, 0, len(keys))
	for _, k := range keys {
		if v := next[k]; v != "" && carried[k] != v {
			fields = append(fields, logger.String(k, v))
		}
	}
	return fields
}

// Get returns the correlation data from the context.
// Returns an empty map if no correlation data exists.
func Get(ctx context.Context) Data {
	if ctx == nil {
		return make(Data)
	}
	if v, ok := ctx.Value(Key).(Data); ok && v != nil {
		return v
	}
	return make(Data)
}

// GetValue returns a specific correlation value by key.
func GetValue(ctx context.Context, key string) string {
	if key == "" {
		return ""
	}
	return Get(ctx)[key]
}

// ToLogFields converts the correlation context to log fields.
func ToLogFields(ctx context.Context) []logger.Field {
	return toLogFields(Get(ctx))
}

func toLogFields(data Data) []logger.Field {
	if len(data) == 0 {
		return nil
	}
	fields := make([]logger.Field, 0, len(data))
	for key, value := range data {
		if value != "" {
			fields = append(fields, logger.String(key, value))
		}
	}
	return fields
}

// ID returns the correlation id.
func ID(ctx context.Context) string {
	return GetValue(ctx, IDKey)
}

// RequestID returns the inbound request id.
func RequestID(ctx context.Context) string {
	return GetValue(ctx, RequestIDKey)
}

// ContextWithRequestID stores the inbound request id, if any.
func ContextWithRequestID(ctx context.Context, requestID string) context.Context {
	if requestID == "" {
		return ctx
	}
	return SetKey(ctx, RequestIDKey, requestID)
}

// AuditID returns the id the audit dispatcher assigned to the current call.
func AuditID(ctx context.Context) string {
	return GetValue(ctx, AuditIDKey)
}

// SetAuditID stores the audit id so later log lines of the call carry it.
func SetAuditID(ctx context.Context, id string) context.Context {
	return SetKey(ctx, AuditIDKey, id)
}

// String returns the JSON representation of the correlation data.
func String(ctx context.Context) string {
	data := Get(ctx)
	if len(data) == 0 {
		return "{}"
	}
	j, _ := json.Marshal(data)
	return string(j)
}

// ParseCorrelationHeader parses the correlation header string into a Data map.
func ParseCorrelationHeader(headerVal string) (Data, error) {
	var data Data
	err := json.Unmarshal([]byte(headerVal), &data)
	return data, err
}
