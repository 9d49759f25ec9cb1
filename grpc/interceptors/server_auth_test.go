package interceptors_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/rainbow-me/api-audit/audit"
	"github.com/rainbow-me/api-audit/grpc/auth"
	"github.com/rainbow-me/api-audit/grpc/interceptors"
)

// testHandler records whether it was called and the principal it saw.
type testHandler struct {
	called    bool
	principal audit.Principal
}

func (d *testHandler) handle(ctx context.Context, _ any) (any, error) {
	d.called = true
	d.principal, _ = audit.PrincipalFromContext(ctx)
	return "success", nil
}

// TestAuthUnaryInterceptor covers the branches of UnaryAuthServerInterceptor and extractToken.
func TestAuthUnaryInterceptor(t *testing.T) {
	tests := []struct {
		name           string
		cfg            *auth.Config
		fullMethod     string
		md             metadata.MD // Metadata to set in context
		expectErr      error       // Expected error (use status.Error for gRPC errors)
		expectCalled   bool        // Whether the handler should be called
		expectResponse any         // Expected response if no error
		expectClient   string
	}{
		{
			name: "Authentication disabled - proceeds to handler",
			cfg: &auth.Config{
				Enabled: false,
			},
			fullMethod:     "/service.Method",
			md:             nil,
			expectErr:      nil,
			expectCalled:   true,
			expectResponse: "success",
		},
		{
			name: "Method in skip list - proceeds to handler",
			cfg: &auth.Config{
				Enabled: true,
				SkipMethods: map[string]bool{
					"/service.SkippedMethod": true,
				},
			},
			fullMethod:     "/service.SkippedMethod",
			md:             nil,
			expectErr:      nil,
			expectCalled:   true,
			expectResponse: "success",
		},
		{
			name: "No metadata in context - returns 'API key not found'",
			cfg: &auth.Config{
				Enabled: true,
			},
			fullMethod:   "/service.Method",
			md:           nil,
			expectErr:    status.Error(codes.Unauthenticated, "API key not found"),
			expectCalled: false,
		},
		{
			name: "Metadata present but no header - returns 'API key not found'",
			cfg: &auth.Config{
				Enabled:    true,
				HeaderName: "Authorization",
			},
			fullMethod:   "/service.Method",
			md:           metadata.New(map[string]string{}),
			expectErr:    status.Error(codes.Unauthenticated, "API key not found"),
			expectCalled: false,
		},
		{
			name: "Header present but empty after trim - returns 'API key not found'",
			cfg: &auth.Config{
				Enabled:    true,
				HeaderName: "Authorization",
				Scheme:     "Bearer",
			},
			fullMethod: "/service.Method",
			md: metadata.New(map[string]string{
				"authorization": "   ",
			}),
			expectErr:    status.Error(codes.Unauthenticated, "API key not found"),
			expectCalled: false,
		},
		{
			name: "Header present but invalid format (no space) - returns 'invalid API key format'",
			cfg: &auth.Config{
				Enabled:    true,
				HeaderName: "Authorization",
				Scheme:     "Bearer",
			},
			fullMethod: "/service.Method",
			md: metadata.New(map[string]string{
				"authorization": "InvalidToken",
			}),
			expectErr:    status.Error(codes.Unauthenticated, "invalid API key format"),
			expectCalled: false,
		},
		{
			name: "Header present but scheme mismatch - returns 'invalid API key format'",
			cfg: &auth.Config{
				Enabled:    true,
				HeaderName: "Authorization",
				Scheme:     "Bearer",
			},
			fullMethod: "/service.Method",
			md: metadata.New(map[string]string{
				"authorization": "Basic token",
			}),
			expectErr:    status.Error(codes.Unauthenticated, "invalid API key format"),
			expectCalled: false,
		},
		{
			name: "Header present but token empty - returns 'invalid API key format'",
			cfg: &auth.Config{
				Enabled:    true,
				HeaderName: "Authorization",
				Scheme:     "Bearer",
			},
			fullMethod: "/service.Method",
			md: metadata.New(map[string]string{
				"authorization": "Bearer ",
			}),
			expectErr:    status.Error(codes.Unauthenticated, "invalid API key format"),
			expectCalled: false,
		},
		{
			name: "Header present but invalid format (multiple parts in token) - returns 'invalid API key format'",
			cfg: &auth.Config{
				Enabled:    true,
				HeaderName: "Authorization",
				Scheme:     "Bearer",
			},
			fullMethod: "/service.Method",
			md: metadata.New(map[string]string{
				"authorization": "Bearer extra part",
			}),
			expectErr:    status.Error(codes.Unauthenticated, "invalid API key format"),
			expectCalled: false,
		},
		{
			name: "Valid token but not in keys - returns 'invalid API key provided'",
			cfg: &auth.Config{
				Enabled:    true,
				HeaderName: "Authorization",
				Scheme:     "Bearer",
				Keys: map[string]string{
					"valid-key": "valid-key-client",
				},
			},
			fullMethod: "/service.Method",
			md: metadata.New(map[string]string{
				"authorization": "Bearer invalid-key",
			}),
			expectErr:    status.Error(codes.Unauthenticated, "invalid API key provided"),
			expectCalled: false,
		},
		{
			name: "Header with scheme mismatch (no space, wrong prefix) - returns 'invalid API key format'",
			cfg: &auth.Config{
				Enabled:    true,
				HeaderName: "Authorization",
				Scheme:     "Bearer",
			},
			fullMethod: "/service.Method",
			md: metadata.New(map[string]string{
				"authorization": "TokenBearer 123",
			}),
			expectErr:    status.Error(codes.Unauthenticated, "invalid API key format"),
			expectCalled: false,
		},
		{
			name: "Scheme mismatch due to extra space in config - returns 'invalid API key format'",
			cfg: &auth.Config{
				Enabled:    true,
				HeaderName: "Authorization",
				Scheme:     "Bearer ",
				Keys: map[string]string{
					"valid-key": "valid-key-client",
				},
			},
			fullMethod: "/service.Method",
			md: metadata.New(map[string]string{
				"authorization": "Bearer valid-key",
			}),
			expectErr:    status.Error(codes.Unauthenticated, "invalid API key format"),
			expectCalled: false,
		},
		{
			name: "Valid token in keys - proceeds to handler",
			cfg: &auth.Config{
				Enabled:    true,
				HeaderName: "Authorization",
				Scheme:     "Bearer",
				Keys: map[string]string{
					"valid-key": "valid-key-client",
				},
			},
			fullMethod: "/service.Method",
			md: metadata.New(map[string]string{
				"authorization": "Bearer  valid-key ", // With spaces to test trim
			}),
			expectErr:      nil,
			expectCalled:   true,
			expectResponse: "success",
			expectClient:   "valid-key-client",
		},
		{
			name: "Custom header and scheme - valid",
			cfg: &auth.Config{
				Enabled:    true,
				HeaderName: "X-API-Key",
				Scheme:     "ApiKey",
				Keys: map[string]string{
					"custom-key": "custom-key-client",
				},
			},
			fullMethod: "/service.Method",
			md: metadata.New(map[string]string{
				"x-api-key": "ApiKey custom-key",
			}),
			expectErr:      nil,
			expectCalled:   true,
			expectResponse: "success",
			expectClient:   "custom-key-client",
		},
		{
			name: "Multiple headers - uses first one",
			cfg: &auth.Config{
				Enabled:    true,
				HeaderName: "Authorization",
				Scheme:     "Bearer",
				Keys: map[string]string{
					"first-key": "first-key-client",
				},
			},
			fullMethod: "/service.Method",
			md: metadata.MD{
				"authorization": []string{"Bearer first-key", "Bearer second-key"},
			},
			expectErr:      nil,
			expectCalled:   true,
			expectResponse: "success",
			expectClient:   "first-key-client",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			if tt.md != nil {
				ctx = metadata.NewIncomingContext(ctx, tt.md)
			}

			dh := &testHandler{}
			interceptor := interceptors.UnaryAuthServerInterceptor(tt.cfg)
			resp, err := interceptor(ctx, "request", &grpc.UnaryServerInfo{FullMethod: tt.fullMethod}, dh.handle)

			if tt.expectErr != nil {
				require.Error(t, err)
				want, _ := status.FromError(tt.expectErr)
				got, _ := status.FromError(err)
				assert.Equal(t, want.Code(), got.Code())
				assert.Equal(t, want.Message(), got.Message())
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.expectResponse, resp)
			}

			assert.Equal(t, tt.expectCalled, dh.called)
			assert.Equal(t, tt.expectClient, dh.principal.Name)
			if tt.expectClient != "" {
				assert.Equal(t, auth.AuthTypeAPIKey, dh.principal.AuthType)
			}
		})
	}
}

func TestNewConfig(t *testing.T) {
	cfg := auth.NewConfig(
		auth.WithClientKey("wallet", "k1"),
		auth.WithSkipAuthMethods("/grpc.health.v1.Health/Check"),
	)

	assert.True(t, cfg.Enabled)
	assert.Equal(t, auth.DefaultHeaderName, cfg.HeaderName)
	assert.Equal(t, auth.DefaultScheme, cfg.Scheme)
	assert.Equal(t, "wallet", cfg.Keys["k1"])
	assert.True(t, cfg.SkipMethods["/grpc.health.v1.Health/Check"])
	assert.False(t, auth.NewConfig().Enabled)
}
