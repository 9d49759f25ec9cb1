package interceptors

import (
	"context"

	"github.com/cockroachdb/errors"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var (
	statusCanceled         = status.New(codes.Canceled, "context canceled")          //nolint:gochecknoglobals
	statusDeadlineExceeded = status.New(codes.DeadlineExceeded, "deadline exceeded") //nolint:gochecknoglobals
)

// contextStatusError keeps the original context error behind a gRPC status.
type contextStatusError struct {
	*status.Status
	error
}

func (e *contextStatusError) GRPCStatus() *status.Status { return e.Status }

func (e *contextStatusError) Unwrap() error { return e.error }

// UnaryContextStatusInterceptor maps context.Canceled and context.DeadlineExceeded
// returned by handlers to the matching gRPC codes.
func UnaryContextStatusInterceptor(
	ctx context.Context,
	req any,
	_ *grpc.UnaryServerInfo,
	handler grpc.UnaryHandler,
) (any, error) {
	resp, err := handler(ctx, req)
	switch {
	case err == nil:
		return resp, nil
	case errors.Is(err, context.Canceled):
		return resp, &contextStatusError{Status: statusCanceled, error: err}
	case errors.Is(err, context.DeadlineExceeded):
		return resp, &contextStatusError{Status: statusDeadlineExceeded, error: err}
	default:
		return resp, err
	}
}
