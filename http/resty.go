// Package http builds outgoing HTTP clients that carry the correlation data audited
// services record.
package http

import (
	"net/http"

	"github.com/go-resty/resty/v2"

	"github.com/rainbow-me/api-audit/common/logger"
	interceptors "github.com/rainbow-me/api-audit/http/interceptors/resty"
)

// NewRestyWithClient wraps client with the resty interceptors. Resty's own logs go to log.
func NewRestyWithClient(client *http.Client, log *logger.Logger, opt ...interceptors.InterceptorOpt) *resty.Client {
	restyClient := resty.NewWithClient(client)
	interceptors.InjectInterceptors(restyClient, opt...)

	if log != nil {
		restyClient.SetLogger(log.Sugar())
	}
	return restyClient
}
