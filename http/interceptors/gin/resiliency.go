package gin

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"runtime/debug"
	"time"

	"github.com/DataDog/dd-trace-go/v2/ddtrace/ext"
	"github.com/DataDog/dd-trace-go/v2/ddtrace/tracer"
	"github.com/gin-gonic/gin"

	"github.com/rainbow-me/api-audit/common/env"
	"github.com/rainbow-me/api-audit/common/logger"
)

var internalError = gin.H{"message": "internal server error"}

// ErrorHandlingMiddleware logs the last error a handler attached to the context, tags the span
// and answers 500 unless the handler already wrote a response.
func ErrorHandlingMiddleware(c *gin.Context) {
	c.Next()
	if len(c.Errors) == 0 {
		return
	}
	err := c.Errors.Last().Err
	ctx := c.Request.Context()
	logger.FromContext(ctx).Error("Error in gin http handler",
		logger.String("path", c.FullPath()),
		logger.Error(err),
	)
	if env.IsLocalApplicationEnv() {
		_, _ = fmt.Fprintf(os.Stderr, "Error in gin http handler: %+v\n", err)
	}
	tagSpanAsError(ctx, "internal", err.Error())
	if !c.Writer.Written() {
		c.JSON(http.StatusInternalServerError, internalError)
	}
}

// PanicRecoveryMiddleware turns a handler panic into a logged 500.
func PanicRecoveryMiddleware(c *gin.Context) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		ctx := c.Request.Context()
		logger.FromContext(ctx).Error("Recovered from panic in gin http handler", logger.WithPanic(r)...)
		if env.IsLocalApplicationEnv() {
			_, _ = fmt.Fprintf(os.Stderr, "%s\n", debug.Stack())
		}
		tagSpanAsError(ctx, "panic", fmt.Sprintf("%v", r))
		c.AbortWithStatusJSON(http.StatusInternalServerError, internalError)
	}()
	c.Next()
}

func tagSpanAsError(ctx context.Context, errorType string, errorMsg string) {
	if span, ok := tracer.SpanFromContext(ctx); ok {
		span.SetTag(ext.Error, true)
		span.SetTag(ext.ErrorType, errorType)
		span.SetTag(ext.ErrorMsg, errorMsg)
	}
}

// TimeoutMiddleware bounds the request context. Audit writes are not affected: the
// dispatcher detaches from cancellation.
func TimeoutMiddleware(timeout time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
		defer cancel()

		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
