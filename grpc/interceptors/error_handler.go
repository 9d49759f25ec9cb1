package interceptors

import (
	"context"

	"github.com/DataDog/dd-trace-go/v2/ddtrace/ext"
	"github.com/DataDog/dd-trace-go/v2/ddtrace/tracer"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
)

// UnaryErrorServerInterceptor tags the active span with the status of failed calls.
func UnaryErrorServerInterceptor(
	ctx context.Context,
	req any,
	_ *grpc.UnaryServerInfo,
	handler grpc.UnaryHandler,
) (any, error) {
	resp, err := handler(ctx, req)
	if err != nil {
		if s, ok := status.FromError(err); ok {
			tagSpanAsError(ctx, s.Code().String(), s.Message())
		} else {
			tagSpanAsError(ctx, "system", err.Error())
		}
	}
	return resp, err
}

func tagSpanAsError(ctx context.Context, errorType, errorMsg string) {
	span, ok := tracer.SpanFromContext(ctx)
	if !ok {
		return
	}
	span.SetTag(ext.Error, true)
	span.SetTag(ext.ErrorType, errorType)
	span.SetTag(ext.ErrorMsg, errorMsg)
}
