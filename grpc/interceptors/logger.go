package interceptors

import (
	"context"
	"reflect"
	"regexp"
	"strconv"
	"time"

	"github.com/DataDog/dd-trace-go/v2/ddtrace/tracer"
	"github.com/cockroachdb/errors"
	"github.com/grpc-ecosystem/go-grpc-middleware/logging/zap/ctxzap"
	"github.com/mennanov/fmutils"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/fieldmaskpb"

	"github.com/rainbow-me/api-audit/common/correlation"
	"github.com/rainbow-me/api-audit/common/headers"
	"github.com/rainbow-me/api-audit/common/logger"
)

const (
	durationKey   = "duration"
	traceIDKey    = "trace_id"
	spanIDKey     = "span_id"
	isNewTraceKey = "is_new_trace"
	requestIDKey  = "request_id"
	serviceKey    = "service"
	methodKey     = "method"
	grpcStatusKey = "status"
	requestKey    = "request"
	responseKey   = "response"
)

var methodRegex = regexp.MustCompile(`/(.+)/(.+)$`)

// UnaryLoggerServerInterceptor logs each call with its duration and status. The logger
// carrying the call's fields is stored in the context for handlers and later interceptors.
func UnaryLoggerServerInterceptor(log *logger.Logger, opts ...LoggingInterceptorOption) grpc.UnaryServerInterceptor {
	cfg := interceptorConfig(opts...)

	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if _, skip := cfg.skipLoggingByMethod[info.FullMethod]; skip {
			return handler(ctx, req)
		}

		log := log.WithOptions(zap.AddStacktrace(zap.ErrorLevel + 1))
		service, method := GetServiceAndMethod(info.FullMethod)
		log = log.With(baseLogFields(ctx, service, method)...)
		ctx = ctxzap.ToContext(logger.ContextWithLogger(ctx, log), log)

		start := time.Now()
		resp, err := handler(ctx, req)
		if !cfg.LogEnabled && err == nil {
			return resp, nil
		}

		fields := requestLogFields(cfg, req, resp, time.Since(start))
		fields = append(fields, zap.String(grpcStatusKey, status.Code(err).String()))
		if err != nil {
			fields = append(fields, zap.Error(err))
		}
		fields = append(fields, metadataLogFields(ctx)...)

		log.Check(logLevel(cfg, err), "server.request").Write(fields...)
		return resp, err
	}
}

func baseLogFields(ctx context.Context, service, method string) []zapcore.Field {
	var fields []zapcore.Field
	if span, ok := tracer.SpanFromContext(ctx); ok {
		fields = append(fields,
			zap.String(traceIDKey, span.Context().TraceID()),
			zap.String(spanIDKey, strconv.FormatUint(span.Context().SpanID(), 10)),
		)
	}
	fields = append(fields, correlation.ToLogFields(ctx)...)
	return append(fields, zap.String(methodKey, method), zap.String(serviceKey, service))
}

func requestLogFields(cfg *LoggingInterceptorConfig, req, resp any, d time.Duration) []zapcore.Field {
	var fields []zapcore.Field
	if cfg.LogParams || cfg.LogRequests {
		fields = append(fields, GrpcMessageField(requestKey, req, cfg.LogParamsBlocklist))
	}
	fields = append(fields, zap.Duration(durationKey, d))
	if (cfg.LogParams || cfg.LogResponses) && resp != nil && !reflect.ValueOf(resp).IsZero() {
		fields = append(fields, GrpcMessageField(responseKey, resp, cfg.LogParamsBlocklist))
	}
	return fields
}

func logLevel(cfg *LoggingInterceptorConfig, err error) zapcore.Level {
	if err == nil {
		return cfg.LogLevel
	}
	if level, ok := cfg.GrpcCodeLogLevel[status.Code(err)]; ok {
		return level
	}
	return cfg.ErrorLogLevel
}

func metadataLogFields(ctx context.Context) []zapcore.Field {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return nil
	}
	fields := []zapcore.Field{zap.Bool(isNewTraceKey, len(md.Get(tracer.DefaultTraceIDHeader)) == 0)}
	if ids := md.Get(headers.HeaderXRequestID); len(ids) > 0 {
		fields = append(fields, zap.String(requestIDKey, ids[0]))
	}
	return fields
}

// GrpcMessageField renders message as a log field with the masked paths pruned from a copy.
func GrpcMessageField(key string, message any, masks []fieldmaskpb.FieldMask) zapcore.Field {
	msg, ok := message.(proto.Message)
	if !ok {
		return zap.Any(key, message)
	}
	return zap.Object(key, &pbZapField{pruneMessage(msg, masks)})
}

// pruneMessage returns a clone of msg without the masked paths.
func pruneMessage(msg proto.Message, masks []fieldmaskpb.FieldMask) proto.Message {
	cloned := proto.Clone(msg)
	for i := range masks {
		fmutils.Prune(cloned, masks[i].GetPaths())
	}
	return cloned
}

// GetServiceAndMethod splits "/pkg.Service/Method" into its service and method.
func GetServiceAndMethod(fullMethod string) (string, string) {
	parts := methodRegex.FindStringSubmatch(fullMethod)
	if len(parts) < 3 {
		return "unknown", fullMethod
	}
	return parts[1], parts[2]
}

type pbZapField struct {
	pb proto.Message
}

func (p *pbZapField) MarshalLogObject(e zapcore.ObjectEncoder) error {
	return e.AddReflected("payload", p)
}

func (p *pbZapField) MarshalJSON() ([]byte, error) {
	b, err := protojson.Marshal(p.pb)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal protobuf message to JSON")
	}
	return b, nil
}
