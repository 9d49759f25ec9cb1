package interceptors

import (
	"time"

	grpctrace "github.com/DataDog/dd-trace-go/contrib/google.golang.org/grpc/v2"
	"go.uber.org/zap/zapcore"
	"google.golang.org/grpc/codes"

	"github.com/rainbow-me/api-audit/audit"
	"github.com/rainbow-me/api-audit/common/logger"
	"github.com/rainbow-me/api-audit/grpc/auth"
)

const (
	healthCheckMethod = "/grpc.health.v1.Health/Check"
)

// Config holds the options of the default server chain.
type Config struct {
	RequestTimeout time.Duration
	ServiceName    string

	PanicRecoveryEnabled bool
	TracingEnabled       bool

	LoggingOptions []LoggingInterceptorOption

	Auth *auth.Config

	Auditor      *audit.Auditor
	AuditOptions []AuditOption
}

// ConfigOption is a functional option for configuring the interceptor chain
type ConfigOption func(*Config)

// WithRequestTimeout sets the server-side request timeout duration
func WithRequestTimeout(timeout time.Duration) ConfigOption {
	return func(c *Config) {
		c.RequestTimeout = timeout
	}
}

// WithPanicRecovery enables or disables panic recovery interceptor
func WithPanicRecovery(enabled bool) ConfigOption {
	return func(c *Config) {
		c.PanicRecoveryEnabled = enabled
	}
}

// WithTracing enables or disables the Datadog tracing interceptor.
func WithTracing(enabled bool) ConfigOption {
	return func(c *Config) {
		c.TracingEnabled = enabled
	}
}

// WithLoggingOptions sets logging configuration using existing LoggingInterceptorOption functions
func WithLoggingOptions(opts ...LoggingInterceptorOption) ConfigOption {
	return func(c *Config) {
		c.LoggingOptions = append(c.LoggingOptions, opts...)
	}
}

// WithDetailedLogging logs request and response payloads.
func WithDetailedLogging() ConfigOption {
	return WithLoggingOptions(
		LogEnabled(true),
		LogLevel(zapcore.InfoLevel),
		ErrorLogLevel(zapcore.ErrorLevel),
		LogParams(true),
	)
}

// WithAuth authenticates calls with API keys before they are audited.
func WithAuth(cfg *auth.Config) ConfigOption {
	return func(c *Config) {
		c.Auth = cfg
	}
}

// WithAudit audits every call, except health checks, through auditor.
func WithAudit(auditor *audit.Auditor, opts ...AuditOption) ConfigOption {
	return func(c *Config) {
		c.Auditor = auditor
		c.AuditOptions = append(c.AuditOptions, opts...)
	}
}

// NewConfig creates a new configuration with sensible defaults
func NewConfig(serviceName string, opts ...ConfigOption) *Config {
	config := &Config{
		RequestTimeout:       30 * time.Second,
		ServiceName:          serviceName,
		PanicRecoveryEnabled: true,
		TracingEnabled:       true,
		LoggingOptions: []LoggingInterceptorOption{
			LogEnabled(true),
			LogLevel(zapcore.InfoLevel),
			WithSkippedLogsByMethods(healthCheckMethod),
			GrpcCodeLogLevel(
				map[codes.Code]zapcore.Level{ //nolint:exhaustive
					codes.Canceled: zapcore.WarnLevel,
				},
			),
		},
		AuditOptions: []AuditOption{WithAuditSkipMethods(healthCheckMethod)},
	}

	for _, opt := range opts {
		opt(config)
	}

	return config
}

// NewDefaultServerUnaryChain creates a server interceptor chain with sensible defaults.
// The audit hook runs after authentication so the caller's principal is recorded.
//
// Example usage:
//
//	chain := NewDefaultServerUnaryChain("orders", log,
//	    WithRequestTimeout(60*time.Second),
//	    WithAudit(auditor, WithAuditMask(audit.Mask{File: true, Database: true})),
//	)
func NewDefaultServerUnaryChain(
	serviceName string,
	log *logger.Logger,
	opts ...ConfigOption,
) *UnaryServerInterceptorChain {
	cfg := NewConfig(serviceName, opts...)

	chain := NewUnaryServerInterceptorChain()

	if cfg.RequestTimeout > 0 {
		chain.Push("server-deadline", ServerDeadlineInterceptor(cfg.RequestTimeout))
	}

	if cfg.TracingEnabled {
		chain.Push("trace", grpctrace.UnaryServerInterceptor(
			grpctrace.WithService(cfg.ServiceName),
			grpctrace.WithMetadataTags(),
			grpctrace.WithUntracedMethods(healthCheckMethod),
		))
	}

	chain.Push("correlation", UnaryCorrelationServerInterceptor)

	if log != nil {
		chain.Push("logger", UnaryLoggerServerInterceptor(log, cfg.LoggingOptions...))
	}

	if cfg.Auth != nil && cfg.Auth.Enabled {
		chain.Push("auth", UnaryAuthServerInterceptor(cfg.Auth))
	}

	if cfg.Auditor != nil {
		chain.Push("audit", UnaryAuditServerInterceptor(cfg.Auditor, cfg.AuditOptions...))
	}

	chain.Push("errors", UnaryErrorServerInterceptor)

	if cfg.PanicRecoveryEnabled {
		chain.Push("panic-recovery", UnaryPanicRecoveryServerInterceptor())
	}

	chain.Push("context-status", UnaryContextStatusInterceptor)

	return chain
}
