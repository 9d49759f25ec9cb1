package logger

import (
	"fmt"
	"strconv"

	"github.com/DataDog/dd-trace-go/v2/ddtrace/tracer"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Logger = zap.Logger

type Field = zap.Field

var (
	Any        = zap.Any
	Bool       = zap.Bool
	ByteString = zap.ByteString
	Duration   = zap.Duration
	Int        = zap.Int
	Int64      = zap.Int64
	String     = zap.String
	Strings    = zap.Strings
	Time       = zap.Time
	Error      = zap.Error
	Errors     = zap.Errors
)

type Level = zapcore.Level

const (
	DebugLevel = zapcore.DebugLevel
	InfoLevel  = zapcore.InfoLevel
	WarnLevel  = zapcore.WarnLevel
	ErrorLevel = zapcore.ErrorLevel
)

// WithTrace returns the fields linking a log line to a DataDog trace.
func WithTrace(spanCtx *tracer.SpanContext) []Field {
	if spanCtx == nil {
		return nil
	}
	return []Field{
		String("dd.trace_id", spanCtx.TraceID()),
		String("dd.span_id", strconv.FormatUint(spanCtx.SpanID(), 10)),
	}
}

// WithPanic returns the fields describing a recovered panic value.
func WithPanic(r interface{}) []Field {
	return []Field{
		String("panic_value", fmt.Sprintf("%v", r)),
		String("panic_type", fmt.Sprintf("%T", r)),
		zap.Stack("stack_trace"),
	}
}
