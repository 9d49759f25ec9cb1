package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rainbow-me/api-audit/audit"
	"github.com/rainbow-me/api-audit/audit/store"
	"github.com/rainbow-me/api-audit/common/env"
	"github.com/rainbow-me/api-audit/common/test"
	"github.com/rainbow-me/api-audit/http/interceptors"
)

const testConfig = `
serviceName: orders-test
database:
  driver: sqlite
  dsn: %DSN%
audit:
  file: true
  database: true
appSettings:
  LogLevelIndicatorFlag: LogLevelTest
  LogLevelTest: INFO
  LogFilePathIndicator: LogFilePathTest
  LogFilePathTest: %DIR%
  ApplicationNameLog: orders-test
`

func writeConfig(t *testing.T) (configDir, logDir string) {
	t.Helper()
	configDir, logDir = t.TempDir(), t.TempDir()
	content := strings.NewReplacer(
		"%DSN%", filepath.Join(logDir, "audit.db"),
		"%DIR%", logDir,
	).Replace(testConfig)
	require.NoError(t, os.WriteFile(filepath.Join(configDir, "local.yaml"), []byte(content), 0o600))
	t.Setenv(env.ApplicationEnvKey, string(env.EnvironmentLocal))
	return configDir, logDir
}

func TestLoadConfig(t *testing.T) {
	configDir, logDir := writeConfig(t)

	cfg, settings, err := loadConfig(test.NewLogger(t), configDir)
	require.NoError(t, err)

	assert.Equal(t, "orders-test", cfg.ServiceName)
	assert.Equal(t, store.DriverSQLite, cfg.Database.Driver)
	assert.Equal(t, audit.Mask{File: true, Database: true}, cfg.Audit.Mask())

	assert.Equal(t, "info", settings.LogLevel)
	assert.Equal(t, logDir, settings.FilePath)
	assert.Equal(t, "orders-test", settings.ApplicationName)
}

func TestAuditStack(t *testing.T) {
	configDir, logDir := writeConfig(t)
	log := test.NewLogger(t)

	cfg, settings, err := loadConfig(log, configDir)
	require.NoError(t, err)

	stack := newAuditStack(cfg, settings, log)
	defer func() { require.NoError(t, stack.Close(context.Background())) }()

	h := interceptors.AuditMiddleware(stack.auditor, http.HandlerFunc(createOrder),
		interceptors.WithMask(cfg.Audit.Mask()),
	)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(`{"quantity":2}`)))

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.JSONEq(t, `{"quantity":2}`, rec.Body.String())
	id := rec.Header().Get("X-Audit-Id")
	require.NotEmpty(t, id)

	detail, err := os.ReadFile(filepath.Join(logDir, audit.DefaultDetailFileName))
	require.NoError(t, err)
	assert.Contains(t, string(detail), id)

	stack.mu.Lock()
	require.Len(t, stack.closers, 1, "database opened on first use")
	exec := stack.closers[0].(*store.Executor)
	stack.mu.Unlock()

	var rows []store.APILog
	require.NoError(t, exec.DB().Where(&store.APILog{RequestUuid: id}).Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, "orders-test", rows[0].ApplicationName)
}
