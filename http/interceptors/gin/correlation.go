package gin

import (
	"github.com/gin-gonic/gin"

	"github.com/rainbow-me/api-audit/common/correlation"
	"github.com/rainbow-me/api-audit/common/headers"
)

// CorrelationMiddleware loads the correlation data and request id sent by the caller into the
// request context. Both end up as fields of every context logger further down the chain.
func CorrelationMiddleware(c *gin.Context) {
	ctx := correlation.ContextWithCorrelation(c.Request.Context(), c.GetHeader(correlation.ContextCorrelationHeader))
	ctx = correlation.ContextWithRequestID(ctx, c.GetHeader(headers.HeaderXRequestID))
	c.Request = c.Request.WithContext(ctx)
}
