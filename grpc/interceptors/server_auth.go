package interceptors

import (
	"context"
	"strings"

	"github.com/cockroachdb/errors"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/rainbow-me/api-audit/audit"
	"github.com/rainbow-me/api-audit/grpc/auth"
)

var (
	errAuthTokenNotFound   = errors.New("auth token not found")
	errInvalidAPIKeyFormat = errors.New("invalid API key format")
)

// UnaryAuthServerInterceptor checks the API key of every call not listed in cfg.SkipMethods.
// Accepted callers are stored as the audit principal so audit entries name the client.
func UnaryAuthServerInterceptor(cfg *auth.Config) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (any, error) {
		if !cfg.Enabled || cfg.SkipMethods[info.FullMethod] {
			return handler(ctx, req)
		}

		token, err := extractToken(ctx, cfg)
		if err != nil {
			if errors.Is(err, errAuthTokenNotFound) {
				return nil, status.Error(codes.Unauthenticated, "API key not found")
			}
			return nil, status.Error(codes.Unauthenticated, "invalid API key format")
		}

		client, ok := cfg.Keys[token]
		if !ok {
			tagSpanAsError(ctx, codes.Unauthenticated.String(), "invalid API key provided")
			return nil, status.Error(codes.Unauthenticated, "invalid API key provided")
		}

		ctx = audit.ContextWithPrincipal(ctx, audit.Principal{Name: client, AuthType: auth.AuthTypeAPIKey})
		return handler(ctx, req)
	}
}

// extractToken reads "<scheme> <token>" from the configured metadata key.
func extractToken(ctx context.Context, cfg *auth.Config) (string, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return "", errAuthTokenNotFound
	}

	values := md.Get(strings.ToLower(cfg.HeaderName))
	if len(values) == 0 || strings.TrimSpace(values[0]) == "" {
		return "", errAuthTokenNotFound
	}

	scheme, token, found := strings.Cut(strings.TrimSpace(values[0]), " ")
	if !found || scheme != cfg.Scheme {
		return "", errInvalidAPIKeyFormat
	}
	token = strings.TrimSpace(token)
	if token == "" || strings.Contains(token, " ") {
		return "", errInvalidAPIKeyFormat
	}
	return token, nil
}
