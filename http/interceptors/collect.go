// Package interceptors captures net/http requests for the audit dispatcher.
package interceptors

import (
	"bytes"
	"context"
	"io"
	"net"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/rainbow-me/api-audit/audit"
	"github.com/rainbow-me/api-audit/common/headers"
)

// RequestInfo keys.
const (
	InfoMethod       = "Request Method"
	InfoAbsoluteURI  = "Request Absolute URI"
	InfoAbsolutePath = "Request Absolute Path"
	InfoLocalPath    = "Request Local Path"
	InfoAuthority    = "Request Authority"
	InfoHost         = "Request Host"
	InfoIsFile       = "Request is File"
	InfoPort         = "Request Request Port"
	InfoScheme       = "Request Scheme"
	InfoLogonUser    = "Request Logon User"
	InfoClaimIssuer  = "LogonUserIdentity  - issuer"
	InfoClaimOrigin  = "LogonUserIdentity  - originalIssuer"
	InfoClaimValue   = "LogonUserIdentity  - value"
	InfoClaimedUser  = "Request Claimed User"
	InfoClaimedAuth  = "Request Claimed Auth Type"
	InfoLongDate     = "Request Timestamp ( Long Date )"
	InfoLocalTime    = "Request Local Time"
)

// LongDateLayout formats the long date request variable.
const LongDateLayout = "Monday, January 2, 2006"

// ErrIncompleteRequest is wrapped in the CollectionError of requests missing a URL or headers.
var ErrIncompleteRequest = errors.New("incomplete request")

type argument struct {
	name  string
	value any
}

type collectConfig struct {
	clock         func() time.Time
	identity      HandlerIdentity
	actionName    string
	arguments     []argument
	moduleName    string
	moduleVersion string
	maxBodyBytes  int64
}

// CollectOption customises Collect.
type CollectOption func(*collectConfig)

// WithClock sets the clock used for the server and request times.
func WithClock(clock func() time.Time) CollectOption {
	return func(cfg *collectConfig) {
		cfg.clock = clock
	}
}

// WithHandler derives the handler identity (and default action name) from h.
func WithHandler(h any) CollectOption {
	return func(cfg *collectConfig) {
		cfg.identity = IdentityOf(h)
	}
}

// WithHandlerIdentity sets the handler identity directly.
func WithHandlerIdentity(id HandlerIdentity) CollectOption {
	return func(cfg *collectConfig) {
		cfg.identity = id
	}
}

// WithActionName overrides the action name derived from the handler.
func WithActionName(name string) CollectOption {
	return func(cfg *collectConfig) {
		cfg.actionName = name
	}
}

// WithArgument records a handler argument. Values are stored as JSON.
func WithArgument(name string, value any) CollectOption {
	return func(cfg *collectConfig) {
		cfg.arguments = append(cfg.arguments, argument{name: name, value: value})
	}
}

// WithModule overrides the module identity read from the build info.
func WithModule(name, version string) CollectOption {
	return func(cfg *collectConfig) {
		cfg.moduleName, cfg.moduleVersion = name, version
	}
}

// WithMaxBodyBytes truncates the recorded body to n bytes. Only those n bytes are
// buffered in memory; downstream handlers still read the whole body. Zero or less
// records the body whole.
func WithMaxBodyBytes(n int64) CollectOption {
	return func(cfg *collectConfig) {
		cfg.maxBodyBytes = n
	}
}

func newCollectConfig(opts []CollectOption) *collectConfig {
	cfg := &collectConfig{clock: time.Now}
	cfg.moduleName, cfg.moduleVersion = audit.MainModule()
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// Collect captures r. The body is read and put back so the handler can still consume it.
func Collect(r *http.Request, opts ...CollectOption) (*audit.CapturedRequest, error) {
	b, err := NewBuilder(r, opts...)
	if err != nil {
		return nil, err
	}
	return b.Build()
}

// NewBuilder captures r into a builder so framework adapters can add their own details.
func NewBuilder(r *http.Request, opts ...CollectOption) (*audit.RequestBuilder, error) {
	if r == nil || r.URL == nil || r.Header == nil {
		return nil, audit.NewCollectionError("collect", ErrIncompleteRequest)
	}
	cfg := newCollectConfig(opts)

	body, err := readBody(r, cfg.maxBodyBytes)
	if err != nil {
		return nil, audit.NewCollectionError("read body", err)
	}

	now := cfg.clock()
	scheme := requestScheme(r)
	hostname, port := splitHostPort(r.Host, defaultPort(scheme))
	localAddr := localAddress(r)
	_, serverPort := splitHostPort(localAddr, port)
	remoteHost, _ := splitHostPort(r.RemoteAddr, "")
	absoluteURI := scheme + "://" + r.Host + r.URL.RequestURI()
	rawHeaders := renderRawHeaders(r)

	action := cfg.actionName
	if action == "" {
		action = cfg.identity.Action
	}

	b := audit.NewRequestBuilder(audit.CapturedRequest{
		ServerTime:      audit.FormatServerTime(now),
		URI:             absoluteURI,
		Method:          r.Method,
		Scheme:          scheme,
		Host:            hostname,
		Port:            port,
		IsFile:          strings.EqualFold(r.URL.Scheme, "file"),
		HandlerName:     cfg.identity.Name,
		ActionName:      action,
		ModuleName:      cfg.moduleName,
		ModuleVersionID: cfg.moduleVersion,
		LocalAddr:       localAddr,
		RemoteAddr:      r.RemoteAddr,
		RemoteHost:      remoteHost,
		ServerPort:      serverPort,
		ServerProtocol:  r.Proto,
		ContentType:     r.Header.Get("Content-Type"),
		RawHeaders:      rawHeaders,
		RequestTime:     audit.FormatRequestTime(now),
		Body:            body,
	})
	applyIdentity(b, cfg.identity, cfg.moduleName)

	if r.Host != "" && r.Header.Get("Host") == "" {
		b.Header("Host", r.Host)
	}
	for _, k := range sortedKeys(r.Header) {
		b.Header(k, r.Header.Values(k)...)
	}

	for _, arg := range cfg.arguments {
		b.Argument(arg.name, arg.value)
	}

	b.RequestInfo(InfoMethod, r.Method).
		RequestInfo(InfoAbsoluteURI, absoluteURI).
		RequestInfo(InfoAbsolutePath, r.URL.EscapedPath()).
		RequestInfo(InfoLocalPath, r.URL.Path).
		RequestInfo(InfoAuthority, r.Host).
		RequestInfo(InfoHost, hostname).
		RequestInfo(InfoIsFile, strconv.FormatBool(strings.EqualFold(r.URL.Scheme, "file"))).
		RequestInfo(InfoPort, port).
		RequestInfo(InfoScheme, scheme)

	for _, k := range sortedKeys(r.Header) {
		if strings.HasPrefix(k, "Content-") {
			b.RequestInfo(k, strings.Join(r.Header.Values(k), ","))
		}
	}

	for _, v := range serverVariables(r, hostname, serverPort, localAddr, remoteHost, scheme, rawHeaders) {
		b.RequestInfo(v[0], v[1])
	}

	AddPrincipalInfo(r.Context(), b, r.Header.Get(headers.HeaderAuthorization))

	b.RequestInfo(InfoLongDate, now.Format(LongDateLayout)).
		RequestInfo(InfoLocalTime, audit.FormatRequestTime(now))

	return b, nil
}

func readBody(r *http.Request, limit int64) (string, error) {
	if r.Body == nil || r.Body == http.NoBody {
		return "", nil
	}
	if limit <= 0 {
		raw, err := io.ReadAll(r.Body)
		_ = r.Body.Close()
		r.Body = io.NopCloser(bytes.NewReader(raw))
		if err != nil {
			return "", errors.Wrap(err, "failed reading request body")
		}
		return string(raw), nil
	}

	// Only the recorded prefix is buffered; the handler reads it back followed by the unread rest.
	body := r.Body
	head, err := io.ReadAll(io.LimitReader(body, limit))
	r.Body = &replayBody{Reader: io.MultiReader(bytes.NewReader(head), body), Closer: body}
	if err != nil {
		return "", errors.Wrap(err, "failed reading request body")
	}
	return string(head), nil
}

type replayBody struct {
	io.Reader
	io.Closer
}

func requestScheme(r *http.Request) string {
	if r.TLS != nil {
		return "https"
	}
	if proto := r.Header.Get(headers.HeaderXForwardedProto); proto != "" {
		return strings.ToLower(strings.TrimSpace(strings.Split(proto, ",")[0]))
	}
	if r.URL.Scheme != "" {
		return strings.ToLower(r.URL.Scheme)
	}
	return "http"
}

func defaultPort(scheme string) string {
	if scheme == "https" {
		return "443"
	}
	return "80"
}

func splitHostPort(hostport, fallbackPort string) (string, string) {
	host, port, err := net.SplitHostPort(hostport)
	if err != nil {
		return hostport, fallbackPort
	}
	return host, port
}

func localAddress(r *http.Request) string {
	if addr, ok := r.Context().Value(http.LocalAddrContextKey).(net.Addr); ok && addr != nil {
		return addr.String()
	}
	return ""
}

func sortedKeys(h http.Header) []string {
	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func renderRawHeaders(r *http.Request) string {
	var sb strings.Builder
	if r.Host != "" && r.Header.Get("Host") == "" {
		sb.WriteString("Host: " + r.Host + "\n")
	}
	for _, k := range sortedKeys(r.Header) {
		for _, v := range r.Header.Values(k) {
			sb.WriteString(k + ": " + v + "\n")
		}
	}
	return sb.String()
}

// serverVariables mirrors the CGI variables a web server exposes for the request.
func serverVariables(r *http.Request, hostname, serverPort, localAddr, remoteHost, scheme, rawHeaders string) [][2]string {
	https := "off"
	if scheme == "https" {
		https = "on"
	}
	contentLength := ""
	if r.ContentLength > 0 {
		contentLength = strconv.FormatInt(r.ContentLength, 10)
	}

	vars := [][2]string{
		{"ALL_RAW", strings.TrimRight(rawHeaders, "\n")},
		{"CONTENT_LENGTH", contentLength},
		{"CONTENT_TYPE", r.Header.Get("Content-Type")},
		{"HTTPS", https},
		{"LOCAL_ADDR", localAddr},
		{"PATH_INFO", r.URL.Path},
		{"QUERY_STRING", r.URL.RawQuery},
		{"REMOTE_ADDR", r.RemoteAddr},
		{"REMOTE_HOST", remoteHost},
		{"REQUEST_METHOD", r.Method},
		{"SERVER_NAME", hostname},
		{"SERVER_PORT", serverPort},
		{"SERVER_PROTOCOL", r.Proto},
	}
	// Distinct header keys such as X-Foo and X_foo map to the same variable name;
	// their values are joined so client input never yields a duplicate key.
	index := make(map[string]int)
	if r.Host != "" {
		index["HTTP_HOST"] = len(vars)
		vars = append(vars, [2]string{"HTTP_HOST", r.Host})
	}
	for _, k := range sortedKeys(r.Header) {
		if strings.HasPrefix(k, "Content-") || k == "Host" {
			continue
		}
		name := "HTTP_" + strings.ToUpper(strings.ReplaceAll(k, "-", "_"))
		value := strings.Join(r.Header.Values(k), ",")
		if i, ok := index[name]; ok {
			vars[i][1] = joinNonEmpty(vars[i][1], value)
			continue
		}
		index[name] = len(vars)
		vars = append(vars, [2]string{name, value})
	}
	return vars
}

func joinNonEmpty(a, b string) string {
	switch {
	case a == "":
		return b
	case b == "":
		return a
	}
	return a + "," + b
}

// AddPrincipalInfo records the caller identity. The logon user and claim keys come only
// from the principal authentication middleware stored in ctx. Without one, the identity
// named by the unverified authorization value is recorded as InfoClaimedUser.
func AddPrincipalInfo(ctx context.Context, b *audit.RequestBuilder, authorization string) {
	if p, ok := audit.PrincipalFromContext(ctx); ok {
		b.RequestInfo(InfoLogonUser, p.Name)
		if c, ok := p.FirstClaim(); ok {
			b.RequestInfo(InfoClaimIssuer, c.Issuer).
				RequestInfo(InfoClaimOrigin, c.OriginalIssuer).
				RequestInfo(InfoClaimValue, c.Value)
		}
		return
	}
	if p, ok := audit.ParseAuthorization(authorization); ok {
		b.RequestInfo(InfoClaimedUser, p.Name).
			RequestInfo(InfoClaimedAuth, p.AuthType)
	}
}
