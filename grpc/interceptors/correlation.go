package interceptors

import (
	"context"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"

	"github.com/rainbow-me/api-audit/common/correlation"
	"github.com/rainbow-me/api-audit/common/headers"
)

// UnaryCorrelationServerInterceptor loads the caller's correlation data and request id
// from the incoming metadata into the context.
func UnaryCorrelationServerInterceptor(
	ctx context.Context,
	req any,
	_ *grpc.UnaryServerInfo,
	handler grpc.UnaryHandler,
) (any, error) {
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		ctx = correlation.ContextWithCorrelation(ctx, strings.Join(md.Get(correlation.ContextCorrelationHeader), ","))
		ctx = correlation.ContextWithRequestID(ctx, first(md, headers.HeaderXRequestID))
	}
	return handler(ctx, req)
}

func first(md metadata.MD, key string) string {
	if values := md.Get(key); len(values) > 0 {
		return values[0]
	}
	return ""
}

// UnaryCorrelationClientInterceptor forwards the request id and correlation data of ctx
// to the called service.
func UnaryCorrelationClientInterceptor(
	ctx context.Context,
	method string,
	req, reply any,
	cc *grpc.ClientConn,
	invoker grpc.UnaryInvoker,
	opts ...grpc.CallOption,
) error {
	if id := correlation.RequestID(ctx); id != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, headers.HeaderXRequestID, id)
	}
	if header := correlation.String(ctx); header != "{}" {
		ctx = metadata.AppendToOutgoingContext(ctx, correlation.ContextCorrelationHeader, header)
	}
	return invoker(ctx, method, req, reply, cc, opts...)
}
