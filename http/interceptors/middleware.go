package interceptors

import (
	"context"
	"net/http"

	"github.com/rainbow-me/api-audit/audit"
	"github.com/rainbow-me/api-audit/common/correlation"
	"github.com/rainbow-me/api-audit/common/headers"
	"github.com/rainbow-me/api-audit/common/logger"
)

type auditCfg struct {
	mask        audit.Mask
	failOnError bool
	collectOpts []CollectOption
}

// AuditOpt customises AuditMiddleware.
type AuditOpt func(*auditCfg)

// WithMask selects the sinks receiving detailed entries. Default is the file sink only.
func WithMask(mask audit.Mask) AuditOpt {
	return func(cfg *auditCfg) {
		cfg.mask = mask
	}
}

// WithFailOnError makes collection and configuration failures abort the request with a 500.
// By default the request proceeds unaudited.
func WithFailOnError(fail bool) AuditOpt {
	return func(cfg *auditCfg) {
		cfg.failOnError = fail
	}
}

// WithCollectOptions passes options to Collect for every request.
func WithCollectOptions(opts ...CollectOption) AuditOpt {
	return func(cfg *auditCfg) {
		cfg.collectOpts = append(cfg.collectOpts, opts...)
	}
}

// NewAuditCfg applies opts over the defaults. Framework adapters share it.
func NewAuditCfg(opts ...AuditOpt) (mask audit.Mask, failOnError bool, collectOpts []CollectOption) {
	cfg := &auditCfg{mask: audit.Mask{File: true}}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg.mask, cfg.failOnError, cfg.collectOpts
}

// AuditMiddleware audits every request before handing it to next. The audit id is
// returned in the X-Audit-Id response header and stored in the request's correlation data.
func AuditMiddleware(auditor *audit.Auditor, next http.Handler, opts ...AuditOpt) http.Handler {
	mask, failOnError, collectOpts := NewAuditCfg(opts...)
	collectOpts = append([]CollectOption{WithHandler(next)}, collectOpts...)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		res, err := auditor.OnIntercept(ctx, func(context.Context) (*audit.CapturedRequest, error) {
			return Collect(r, collectOpts...)
		}, mask, auditor.Level())

		if res.ID != "" {
			w.Header().Set(headers.HeaderXAuditID, res.ID)
			ctx = correlation.SetAuditID(ctx, res.ID)
		}
		if err != nil {
			logger.FromContext(ctx).Error("audit hook failed", logger.Error(err))
			if failOnError {
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}
		}

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
