package audit

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
)

// Synthetic action argument keys. Callers may not use them as argument names.
const (
	ArgActionName      = "ActionName"
	ArgModuleVersionID = "ModuleVersionId"
	ArgModuleName      = "ModuleName"
)

// ReservedArgumentKeys are excluded from the caller argument view.
var ReservedArgumentKeys = []string{ArgActionName, ArgModuleVersionID, ArgModuleName}

// GeneralInfo keys filled by the builder.
const (
	InfoServerTime  = "Server Time"
	InfoRequestURI  = "Request URI"
	InfoHandlerName = "HandlerName"
)

// TimeLayout renders ServerTime and, bracketed, RequestTime.
const TimeLayout = "2006-01-02 15:04:05.000"

// FormatServerTime renders t the way CapturedRequest.ServerTime expects.
func FormatServerTime(t time.Time) string {
	return t.Local().Format(TimeLayout)
}

// FormatRequestTime renders t as a bracketed local time, e.g. "[2024-01-02 15:04:05.000]".
func FormatRequestTime(t time.Time) string {
	return "[" + t.Local().Format(TimeLayout) + "]"
}

// parseCapturedTime reverses FormatServerTime/FormatRequestTime. Unparseable text yields the zero time.
func parseCapturedTime(s string) time.Time {
	s = strings.TrimSpace(strings.Trim(strings.TrimSpace(s), "[]"))
	t, err := time.ParseInLocation(TimeLayout, s, time.Local)
	if err != nil {
		return time.Time{}
	}
	return t
}

// CapturedRequest is the metadata of one intercepted call. It is built once by a
// RequestBuilder and must be treated as read-only afterwards.
type CapturedRequest struct {
	ServerTime      string
	URI             string
	Method          string
	Scheme          string
	Host            string
	Port            string
	IsFile          bool
	HandlerName     string
	ActionName      string
	ModuleName      string
	ModuleVersionID string
	LocalAddr       string
	RemoteAddr      string
	RemoteHost      string
	ServerPort      string
	ServerProtocol  string
	ContentType     string
	RawHeaders      string
	RequestTime     string
	Body            string

	generalInfo     *Fields
	headers         *Fields
	actionArguments *Fields
	requestInfo     *Fields
}

func (r *CapturedRequest) GeneralInfo() *Fields     { return r.generalInfo }
func (r *CapturedRequest) Headers() *Fields         { return r.headers }
func (r *CapturedRequest) ActionArguments() *Fields { return r.actionArguments }
func (r *CapturedRequest) RequestInfo() *Fields     { return r.requestInfo }

// Arguments is the caller argument view: ActionArguments without the reserved keys.
func (r *CapturedRequest) Arguments() *Fields {
	return r.actionArguments.Without(ReservedArgumentKeys...)
}

// IncludesBody reports whether the body belongs in audit entries for this request's method.
func (r *CapturedRequest) IncludesBody() bool {
	return !IsBodyExempt(r.Method)
}

// RequestBuilder assembles a CapturedRequest. The first failed insert is kept and
// reported by Build; later calls are still accepted so chains stay readable.
type RequestBuilder struct {
	req        CapturedRequest
	generalExt *Fields
	headers    *Fields
	arguments  *Fields
	info       *Fields
	err        error
}

// NewRequestBuilder starts from the typed fields of base. Mappings of base are ignored.
func NewRequestBuilder(base CapturedRequest) *RequestBuilder {
	base.generalInfo, base.headers, base.actionArguments, base.requestInfo = nil, nil, nil, nil
	return &RequestBuilder{
		req:        base,
		generalExt: newFields(),
		headers:    newFields(),
		arguments:  newFields(),
		info:       newFields(),
	}
}

func (b *RequestBuilder) fail(err error) {
	if b.err == nil {
		b.err = err
	}
}

// GeneralInfo records handler identity details. Empty values are omitted.
func (b *RequestBuilder) GeneralInfo(key, value string) *RequestBuilder {
	if value == "" {
		return b
	}
	if key == InfoServerTime || key == InfoRequestURI || key == InfoHandlerName {
		b.fail(errors.Wrapf(ErrDuplicateKey, "general info key %q is derived from the request", key))
		return b
	}
	if err := b.generalExt.add(key, value); err != nil {
		b.fail(errors.Wrap(err, "general info"))
	}
	return b
}

// Header records one request header; multiple values are joined with a comma.
func (b *RequestBuilder) Header(key string, values ...string) *RequestBuilder {
	if err := b.headers.add(key, strings.Join(values, ",")); err != nil {
		b.fail(errors.Wrap(err, "headers"))
	}
	return b
}

// Argument records a handler argument as the JSON text of value.
func (b *RequestBuilder) Argument(name string, value any) *RequestBuilder {
	raw, err := json.Marshal(value)
	if err != nil {
		b.fail(errors.Wrapf(err, "argument %q is not JSON serializable", name))
		return b
	}
	return b.RawArgument(name, string(raw))
}

// RawArgument records a handler argument whose JSON text is already known.
func (b *RequestBuilder) RawArgument(name, jsonText string) *RequestBuilder {
	if slices.Contains(ReservedArgumentKeys, name) {
		b.fail(errors.Wrapf(ErrReservedKey, "argument %q", name))
		return b
	}
	if err := b.arguments.add(name, jsonText); err != nil {
		b.fail(errors.Wrap(err, "action arguments"))
	}
	return b
}

// RequestInfo records a request or server variable. Empty values are omitted.
func (b *RequestBuilder) RequestInfo(key, value string) *RequestBuilder {
	if value == "" {
		return b
	}
	if err := b.info.add(key, value); err != nil {
		b.fail(errors.Wrap(err, "request info"))
	}
	return b
}

// Build validates the collected data and returns the request.
// Failures are reported as *CollectionError.
func (b *RequestBuilder) Build() (*CapturedRequest, error) {
	if b.err != nil {
		return nil, NewCollectionError("build", b.err)
	}

	req := b.req
	req.Method = strings.ToUpper(req.Method)

	req.generalInfo = newFields()
	for _, kv := range [][2]string{
		{InfoServerTime, req.ServerTime},
		{InfoRequestURI, req.URI},
		{InfoHandlerName, req.HandlerName},
	} {
		if kv[1] != "" {
			_ = req.generalInfo.add(kv[0], kv[1])
		}
	}
	for k, v := range b.generalExt.All() {
		_ = req.generalInfo.add(k, v)
	}

	req.actionArguments = newFields()
	_ = req.actionArguments.add(ArgActionName, req.ActionName)
	for k, v := range b.arguments.All() {
		_ = req.actionArguments.add(k, v)
	}
	_ = req.actionArguments.add(ArgModuleVersionID, req.ModuleVersionID)
	_ = req.actionArguments.add(ArgModuleName, req.ModuleName)

	req.headers = b.headers
	req.requestInfo = b.info

	if req.RawHeaders == "" {
		req.RawHeaders = renderRawHeaders(req.headers)
	}

	return &req, nil
}

func renderRawHeaders(headers *Fields) string {
	var sb strings.Builder
	for k, v := range headers.All() {
		_, _ = fmt.Fprintf(&sb, "%s: %s\n", k, v)
	}
	return sb.String()
}
