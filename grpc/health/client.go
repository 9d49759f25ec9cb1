package health

import (
	"context"
	"time"

	grpctrace "github.com/DataDog/dd-trace-go/contrib/google.golang.org/grpc/v2"
	"github.com/cockroachdb/errors"
	"google.golang.org/grpc"
	"google.golang.org/grpc/backoff"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"

	"github.com/rainbow-me/api-audit/common/headers"
	"github.com/rainbow-me/api-audit/grpc/interceptors"
)

const DefaultTarget = "localhost:9090"

type config struct {
	target      string
	apiKey      string
	dialTimeout time.Duration
	tracing     bool
	dialOptions []grpc.DialOption
}

// Option configures a HealthChecker.
type Option func(*config)

// WithTarget sets the server address, e.g. "localhost:9090".
func WithTarget(target string) Option {
	return func(c *config) {
		c.target = target
	}
}

// WithAPIKey sends "Bearer <key>" as the authorization metadata of every check.
func WithAPIKey(key string) Option {
	return func(c *config) {
		c.apiKey = key
	}
}

// WithDialTimeout bounds how long a connection attempt may take.
func WithDialTimeout(timeout time.Duration) Option {
	return func(c *config) {
		c.dialTimeout = timeout
	}
}

// WithTracing toggles the datadog client interceptor. Default is enabled.
func WithTracing(enabled bool) Option {
	return func(c *config) {
		c.tracing = enabled
	}
}

// WithDialOptions appends custom gRPC DialOptions.
func WithDialOptions(opts ...grpc.DialOption) Option {
	return func(c *config) {
		c.dialOptions = append(c.dialOptions, opts...)
	}
}

// HealthChecker calls the health service of an audited server and reports
// the audit id the server assigned to the call.
type HealthChecker struct {
	client grpc_health_v1.HealthClient
	conn   *grpc.ClientConn
	apiKey string
}

// Result is the outcome of a single Check.
type Result struct {
	Status  grpc_health_v1.HealthCheckResponse_ServingStatus
	AuditID string
}

// Check asks for the serving status of service. The empty service names the server itself.
func (h *HealthChecker) Check(ctx context.Context, service string, opts ...grpc.CallOption) (Result, error) {
	if h.apiKey != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, headers.HeaderAuthorization, "Bearer "+h.apiKey)
	}

	var header metadata.MD
	opts = append(opts, grpc.Header(&header))
	resp, err := h.client.Check(ctx, &grpc_health_v1.HealthCheckRequest{Service: service}, opts...)
	if err != nil {
		return Result{}, errors.Wrapf(err, "health check of %q failed", service)
	}

	res := Result{Status: resp.GetStatus()}
	if ids := header.Get(headers.HeaderXAuditID); len(ids) > 0 {
		res.AuditID = ids[0]
	}
	return res, nil
}

// Close closes the underlying gRPC connection.
func (h *HealthChecker) Close() error {
	if h.conn != nil {
		return h.conn.Close()
	}
	return nil
}

// NewHealthChecker creates the client connection. Calls forward the request id and
// correlation data of their context. The caller must Close the checker.
func NewHealthChecker(opts ...Option) (*HealthChecker, error) {
	c := &config{
		target:      DefaultTarget,
		dialTimeout: 10 * time.Second,
		tracing:     true,
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.target == "" {
		return nil, errors.New("target address is required")
	}

	unary := []grpc.UnaryClientInterceptor{interceptors.UnaryCorrelationClientInterceptor}
	if c.tracing {
		unary = append(unary, grpctrace.UnaryClientInterceptor())
	}

	dialOpts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithConnectParams(grpc.ConnectParams{
			Backoff:           backoff.DefaultConfig,
			MinConnectTimeout: c.dialTimeout,
		}),
		grpc.WithChainUnaryInterceptor(unary...),
	}, c.dialOptions...)

	conn, err := grpc.NewClient(c.target, dialOpts...)
	if err != nil {
		return nil, errors.Wrapf(err, "could not connect to %s", c.target)
	}

	return &HealthChecker{
		client: grpc_health_v1.NewHealthClient(conn),
		conn:   conn,
		apiKey: c.apiKey,
	}, nil
}
