package server

import (
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"

	"github.com/rainbow-me/api-audit/grpc/interceptors"
)

const (
	// DefaultGRPCMaxMsgSize defines the default gRPC max message size in
	// bytes the server can receive or send.
	DefaultGRPCMaxMsgSize = 1024 * 1024 * 10 // 10MB
)

// NewGRPCServer creates a gRPC server running chain for every unary call. Calls to
// unregistered services fail with codes.Unimplemented. Later serverOptions override the
// defaults.
//
// Example usage:
//
//	chain := interceptors.NewDefaultServerUnaryChain("orders", log, interceptors.WithAudit(auditor))
//	srv := server.NewGRPCServer(chain, true, grpc.MaxRecvMsgSize(4*1024*1024))
//	pb.RegisterOrdersServer(srv, &ordersService{})
func NewGRPCServer(
	chain *interceptors.UnaryServerInterceptorChain,
	enableReflection bool,
	serverOptions ...grpc.ServerOption,
) *grpc.Server {
	unknownHandler := func(_ any, _ grpc.ServerStream) error {
		return status.Error(codes.Unimplemented, "Unknown route")
	}

	opts := []grpc.ServerOption{
		grpc.UnknownServiceHandler(unknownHandler),
		grpc.MaxRecvMsgSize(DefaultGRPCMaxMsgSize),
		grpc.MaxSendMsgSize(DefaultGRPCMaxMsgSize),
		grpc.KeepaliveParams(keepalive.ServerParameters{
			Time:    30 * time.Second, // Ping every 30s if no activity.
			Timeout: 10 * time.Second, // Wait 10s for ping ack.
		}),
		grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
			MinTime:             5 * time.Second,
			PermitWithoutStream: true,
		}),
	}
	if chain != nil {
		opts = append(opts, grpc.UnaryInterceptor(chain.Commit()))
	}
	opts = append(opts, serverOptions...)

	srv := grpc.NewServer(opts...)
	if enableReflection {
		reflection.Register(srv)
	}
	return srv
}
