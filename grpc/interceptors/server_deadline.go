package interceptors

import (
	"context"
	"time"

	"google.golang.org/grpc"
)

// ServerDeadlineInterceptor caps the handler context at timeout. A shorter client
// deadline still wins.
func ServerDeadlineInterceptor(timeout time.Duration) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, _ *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		return handler(ctx, req)
	}
}
