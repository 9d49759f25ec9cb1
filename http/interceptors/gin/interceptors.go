package gin

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/rainbow-me/api-audit/audit"
	"github.com/rainbow-me/api-audit/http/interceptors"
)

const (
	httpHandlerOp = "http.handler"
	componentName = "gin"
)

type interceptorCfg struct {
	TracingEnabled     bool
	CorrelationEnabled bool
	HTTPDebug          bool
	HTTPTrace          bool
	Timeout            time.Duration
	Auditor            *audit.Auditor
	AuditOpts          []interceptors.AuditOpt
}

type InterceptorOpt func(cfg *interceptorCfg)

// WithCorrelationEnabled enables/disables correlation. Default is enabled.
func WithCorrelationEnabled(enabled bool) InterceptorOpt {
	return func(cfg *interceptorCfg) {
		cfg.CorrelationEnabled = enabled
	}
}

// WithTimeout sets the http handler timeout. Default is 1 minute.
func WithTimeout(timeout time.Duration) InterceptorOpt {
	return func(cfg *interceptorCfg) {
		cfg.Timeout = timeout
	}
}

// WithTracingEnabled enables/disables tracing. Default is enabled.
func WithTracingEnabled(enabled bool) InterceptorOpt {
	return func(cfg *interceptorCfg) {
		cfg.TracingEnabled = enabled
	}
}

// WithHTTPDebug logs one line with method, path, status and duration per request.
func WithHTTPDebug() InterceptorOpt {
	return func(cfg *interceptorCfg) {
		cfg.HTTPDebug = true
	}
}

// WithHTTPTrace also logs request and response bodies.
func WithHTTPTrace() InterceptorOpt {
	return func(cfg *interceptorCfg) {
		cfg.HTTPDebug = true
		cfg.HTTPTrace = true
	}
}

// WithAudit audits every request through auditor. Disabled when auditor is nil.
func WithAudit(auditor *audit.Auditor, opts ...interceptors.AuditOpt) InterceptorOpt {
	return func(cfg *interceptorCfg) {
		cfg.Auditor = auditor
		cfg.AuditOpts = opts
	}
}

// DefaultInterceptors returns the default middleware chain for gin servers.
// The audit hook runs last so its entries carry trace and correlation fields.
func DefaultInterceptors(opts ...InterceptorOpt) []gin.HandlerFunc {
	cfg := &interceptorCfg{
		TracingEnabled:     true,
		CorrelationEnabled: true,
		Timeout:            time.Minute,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	middlewares := []gin.HandlerFunc{
		RequestLogging(loggingCfg{debug: cfg.HTTPDebug, trace: cfg.HTTPTrace}),
		PanicRecoveryMiddleware,
		ErrorHandlingMiddleware,
	}
	if cfg.TracingEnabled {
		middlewares = append(middlewares, TracingMiddleware)
	}
	if cfg.CorrelationEnabled {
		middlewares = append(middlewares, CorrelationMiddleware)
	}
	if cfg.Timeout > 0 {
		middlewares = append(middlewares, TimeoutMiddleware(cfg.Timeout))
	}
	if cfg.Auditor != nil {
		middlewares = append(middlewares, AuditMiddleware(cfg.Auditor, cfg.AuditOpts...))
	}
	return middlewares
}
