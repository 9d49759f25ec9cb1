package interceptors

import (
	"context"
	"fmt"
	"os"
	"runtime/debug"

	grpcrecovery "github.com/grpc-ecosystem/go-grpc-middleware/recovery"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/rainbow-me/api-audit/common/env"
	"github.com/rainbow-me/api-audit/common/logger"
)

// UnaryPanicRecoveryServerInterceptor turns handler panics into codes.Internal. The panic
// is logged through the context logger and tagged on the span; the client sees no details.
func UnaryPanicRecoveryServerInterceptor() grpc.UnaryServerInterceptor {
	return grpcrecovery.UnaryServerInterceptor(
		grpcrecovery.WithRecoveryHandlerContext(func(ctx context.Context, panicValue any) error {
			logger.FromContext(ctx).Error("Recovered from panic in gRPC handler", logger.WithPanic(panicValue)...)
			if env.IsLocalApplicationEnv() {
				_, _ = fmt.Fprintf(os.Stderr, "%s\n", debug.Stack())
			}
			tagSpanAsError(ctx, "panic", codes.Internal.String())
			return status.Error(codes.Internal, "Internal server error occurred")
		}),
	)
}
