package logger_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rainbow-me/api-audit/common/env"
	"github.com/rainbow-me/api-audit/common/logger"
	"github.com/rainbow-me/api-audit/common/test"
)

func TestInitLogger(t *testing.T) {
	tests := []struct {
		name    string
		appEnv  string
		wantErr bool
	}{
		{name: "local", appEnv: "local"},
		{name: "development", appEnv: "development"},
		{name: "production", appEnv: "production"},
		{name: "invalid", appEnv: "moon", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(env.ApplicationEnvKey, tt.appEnv)

			log, err := logger.InitLogger()
			if tt.wantErr {
				require.Error(t, err)
				require.Contains(t, err.Error(), "invalid environment")
				return
			}
			require.NoError(t, err)
			require.NotNil(t, log)
		})
	}
}

func TestContextWithFields(t *testing.T) {
	base, logs := test.NewObservedLogger()

	ctx := logger.ContextWithLogger(context.Background(), base)
	ctx = logger.ContextWithFields(ctx, logger.String("audit_id", "u1"))

	logger.FromContext(ctx).Info("hello")

	entries := logs.All()
	require.Len(t, entries, 1)
	require.Equal(t, "u1", entries[0].ContextMap()["audit_id"])
}

func TestFromContextFallsBackToInstance(t *testing.T) {
	require.NotNil(t, logger.FromContext(context.Background()))
	//nolint:staticcheck
	require.NotNil(t, logger.FromContext(nil))
}
