package gin

import (
	"bytes"
	"io"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/rainbow-me/api-audit/common/logger"
)

type loggingCfg struct {
	debug bool
	trace bool
}

type bodyCapture struct {
	gin.ResponseWriter
	body bytes.Buffer
}

func (w *bodyCapture) Write(data []byte) (int, error) {
	w.body.Write(data)
	return w.ResponseWriter.Write(data)
}

// RequestLogging logs one line per handled request when debug is set; trace adds both bodies.
// The context logger is read after the chain ran, so the line carries the audit id.
func RequestLogging(cfg loggingCfg) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !cfg.debug {
			c.Next()
			return
		}

		var reqBody []byte
		if cfg.trace && c.Request.Body != nil {
			if raw, err := io.ReadAll(c.Request.Body); err == nil {
				reqBody = raw
				c.Request.Body = io.NopCloser(bytes.NewReader(raw))
			}
		}

		var capture *bodyCapture
		if cfg.trace {
			capture = &bodyCapture{ResponseWriter: c.Writer}
			c.Writer = capture
		}

		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		ctx := c.Request.Context()
		fields := []logger.Field{
			logger.String("method", c.Request.Method),
			logger.String("path", c.Request.URL.Path),
			logger.Int("status", status),
			logger.Duration("duration", time.Since(start)),
			logger.String("component", componentName),
		}
		if capture != nil {
			fields = append(fields,
				logger.ByteString("request_body", reqBody),
				logger.ByteString("response_body", capture.body.Bytes()),
			)
		}

		level := logger.DebugLevel
		switch {
		case status >= 500:
			level = logger.ErrorLevel
		case status >= 400:
			level = logger.WarnLevel
		}
		logger.FromContext(ctx).Log(level, "HTTP request handled", fields...)
	}
}
