package interceptors

import (
	"context"
	"net"
	"slices"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/fieldmaskpb"

	"github.com/rainbow-me/api-audit/audit"
	"github.com/rainbow-me/api-audit/common/correlation"
	"github.com/rainbow-me/api-audit/common/headers"
	"github.com/rainbow-me/api-audit/common/logger"
	httpinterceptors "github.com/rainbow-me/api-audit/http/interceptors"
)

const (
	// grpcMethod is the HTTP method every unary call travels as.
	grpcMethod   = "POST"
	grpcProtocol = "HTTP/2.0"
	requestArg   = "request"

	authorityKey = ":authority"
)

type auditConfig struct {
	mask        audit.Mask
	failOnError bool
	skip        map[string]bool
	blocklist   []fieldmaskpb.FieldMask
	clock       func() time.Time
}

// AuditOption customises the gRPC audit hook.
type AuditOption func(*auditConfig)

// WithAuditMask selects the sinks receiving detailed entries. Default is the file sink only.
func WithAuditMask(mask audit.Mask) AuditOption {
	return func(c *auditConfig) {
		c.mask = mask
	}
}

// WithAuditFailOnError rejects calls with codes.Internal when they cannot be audited.
func WithAuditFailOnError(fail bool) AuditOption {
	return func(c *auditConfig) {
		c.failOnError = fail
	}
}

// WithAuditSkipMethods leaves the given full methods unaudited.
func WithAuditSkipMethods(methods ...string) AuditOption {
	return func(c *auditConfig) {
		for _, m := range methods {
			c.skip[m] = true
		}
	}
}

// WithAuditBlocklist prunes the given message paths from the recorded body.
func WithAuditBlocklist(paths ...string) AuditOption {
	return func(c *auditConfig) {
		c.blocklist = append(c.blocklist, fieldmaskpb.FieldMask{Paths: paths})
	}
}

// WithAuditClock sets the clock used for the server and request times.
func WithAuditClock(clock func() time.Time) AuditOption {
	return func(c *auditConfig) {
		c.clock = clock
	}
}

func newAuditConfig(opts []AuditOption) *auditConfig {
	cfg := &auditConfig{
		mask:  audit.Mask{File: true},
		skip:  make(map[string]bool),
		clock: time.Now,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// UnaryAuditServerInterceptor audits every unary call before the handler runs. The audit
// id is sent back in the x-audit-id response header.
func UnaryAuditServerInterceptor(auditor *audit.Auditor, opts ...AuditOption) grpc.UnaryServerInterceptor {
	cfg := newAuditConfig(opts)

	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if cfg.skip[info.FullMethod] {
			return handler(ctx, req)
		}

		res, err := auditor.OnIntercept(ctx, func(ctx context.Context) (*audit.CapturedRequest, error) {
			return collectUnary(ctx, req, info, cfg)
		}, cfg.mask, auditor.Level())

		if res.ID != "" {
			_ = grpc.SetHeader(ctx, metadata.Pairs(headers.HeaderXAuditID, res.ID))
			ctx = correlation.SetAuditID(ctx, res.ID)
		}
		if err != nil {
			logger.FromContext(ctx).Error("audit hook failed", logger.Error(err))
			if cfg.failOnError {
				return nil, status.Error(codes.Internal, "request could not be audited")
			}
		}
		return handler(ctx, req)
	}
}

// CollectUnary captures a unary call. The request message is recorded as protojson, both
// as the body and as the handler's single argument.
func CollectUnary(ctx context.Context, req any, info *grpc.UnaryServerInfo, opts ...AuditOption) (*audit.CapturedRequest, error) {
	return collectUnary(ctx, req, info, newAuditConfig(opts))
}

func collectUnary(ctx context.Context, req any, info *grpc.UnaryServerInfo, cfg *auditConfig) (*audit.CapturedRequest, error) {
	if info == nil || info.FullMethod == "" {
		return nil, audit.NewCollectionError("collect", httpinterceptors.ErrIncompleteRequest)
	}

	body, err := messageBody(req, cfg.blocklist)
	if err != nil {
		return nil, audit.NewCollectionError("marshal request", err)
	}

	md, _ := metadata.FromIncomingContext(ctx)
	now := cfg.clock()
	service, method := GetServiceAndMethod(info.FullMethod)

	scheme, remoteAddr, localAddr := "http", "", ""
	if p, ok := peer.FromContext(ctx); ok {
		if _, tls := p.AuthInfo.(credentials.TLSInfo); tls {
			scheme = "https"
		}
		remoteAddr = addrString(p.Addr)
		localAddr = addrString(p.LocalAddr)
	}
	authority := first(md, authorityKey)
	host, port := splitHostPort(authority, "")
	remoteHost, _ := splitHostPort(remoteAddr, "")
	_, serverPort := splitHostPort(localAddr, port)
	uri := scheme + "://" + authority + info.FullMethod
	moduleName, moduleVersion := audit.MainModule()

	b := audit.NewRequestBuilder(audit.CapturedRequest{
		ServerTime:      audit.FormatServerTime(now),
		URI:             uri,
		Method:          grpcMethod,
		Scheme:          scheme,
		Host:            host,
		Port:            port,
		HandlerName:     service,
		ActionName:      method,
		ModuleName:      moduleName,
		ModuleVersionID: moduleVersion,
		LocalAddr:       localAddr,
		RemoteAddr:      remoteAddr,
		RemoteHost:      remoteHost,
		ServerPort:      serverPort,
		ServerProtocol:  grpcProtocol,
		ContentType:     first(md, "content-type"),
		RequestTime:     audit.FormatRequestTime(now),
		Body:            body,
	})

	pkg := ""
	if dot := strings.LastIndex(service, "."); dot >= 0 {
		pkg = service[:dot]
	}
	b.GeneralInfo(httpinterceptors.InfoHandlerFullName, info.FullMethod).
		GeneralInfo(httpinterceptors.InfoHandlerPackage, pkg).
		GeneralInfo(httpinterceptors.InfoHandlerModule, moduleName).
		GeneralInfo(httpinterceptors.InfoHandlerBaseType, "grpc")

	keys := make([]string, 0, len(md))
	for k := range md {
		if k != authorityKey {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)
	if authority != "" {
		b.Header("host", authority)
	}
	for _, k := range keys {
		b.Header(k, md.Get(k)...)
	}

	if body != "" {
		b.RawArgument(requestArg, body)
	}

	b.RequestInfo(httpinterceptors.InfoMethod, grpcMethod).
		RequestInfo(httpinterceptors.InfoAbsoluteURI, uri).
		RequestInfo(httpinterceptors.InfoAbsolutePath, info.FullMethod).
		RequestInfo(httpinterceptors.InfoLocalPath, info.FullMethod).
		RequestInfo(httpinterceptors.InfoAuthority, authority).
		RequestInfo(httpinterceptors.InfoHost, host).
		RequestInfo(httpinterceptors.InfoIsFile, "false").
		RequestInfo(httpinterceptors.InfoPort, port).
		RequestInfo(httpinterceptors.InfoScheme, scheme)

	httpinterceptors.AddPrincipalInfo(ctx, b, first(md, headers.HeaderAuthorization))

	b.RequestInfo(httpinterceptors.InfoLongDate, now.Format(httpinterceptors.LongDateLayout)).
		RequestInfo(httpinterceptors.InfoLocalTime, audit.FormatRequestTime(now))

	return b.Build()
}

func messageBody(req any, blocklist []fieldmaskpb.FieldMask) (string, error) {
	msg, ok := req.(proto.Message)
	if !ok || msg == nil {
		return "", nil
	}
	raw, err := protojson.Marshal(pruneMessage(msg, blocklist))
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func addrString(addr net.Addr) string {
	if addr == nil {
		return ""
	}
	return addr.String()
}

func splitHostPort(hostport, fallbackPort string) (string, string) {
	host, port, err := net.SplitHostPort(hostport)
	if err != nil {
		return hostport, fallbackPort
	}
	return host, port
}
