package gin

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/rainbow-me/api-audit/audit"
	"github.com/rainbow-me/api-audit/common/correlation"
	"github.com/rainbow-me/api-audit/common/headers"
	"github.com/rainbow-me/api-audit/common/logger"
	"github.com/rainbow-me/api-audit/http/interceptors"
)

// InfoHandlerRoute is the GeneralInfo key holding the matched gin route.
const InfoHandlerRoute = "HandlerRoute"

// Collect captures the request of c. Route parameters become action arguments and the
// handler identity comes from the last handler of the chain.
func Collect(c *gin.Context, opts ...interceptors.CollectOption) (*audit.CapturedRequest, error) {
	if c == nil || c.Request == nil {
		return nil, audit.NewCollectionError("collect", interceptors.ErrIncompleteRequest)
	}

	id := interceptors.IdentityFromFuncName(c.HandlerName())
	opts = append([]interceptors.CollectOption{interceptors.WithHandlerIdentity(id)}, opts...)

	b, err := interceptors.NewBuilder(c.Request, opts...)
	if err != nil {
		return nil, err
	}
	b.GeneralInfo(InfoHandlerRoute, c.FullPath())
	for _, p := range c.Params {
		b.Argument(p.Key, p.Value)
	}
	return b.Build()
}

// AuditMiddleware audits the request before the remaining handlers run.
func AuditMiddleware(auditor *audit.Auditor, opts ...interceptors.AuditOpt) gin.HandlerFunc {
	mask, failOnError, collectOpts := interceptors.NewAuditCfg(opts...)

	return func(c *gin.Context) {
		ctx := c.Request.Context()
		res, err := auditor.OnIntercept(ctx, func(context.Context) (*audit.CapturedRequest, error) {
			return Collect(c, collectOpts...)
		}, mask, auditor.Level())

		if res.ID != "" {
			c.Header(headers.HeaderXAuditID, res.ID)
			ctx = correlation.SetAuditID(ctx, res.ID)
			c.Request = c.Request.WithContext(ctx)
		}
		if err != nil {
			logger.FromContext(ctx).Error("audit hook failed", logger.Error(err))
			if failOnError {
				c.AbortWithStatusJSON(http.StatusInternalServerError, internalError)
				return
			}
		}
		c.Next()
	}
}
