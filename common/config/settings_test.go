package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type mapStore map[string]string

func (m mapStore) GetString(key string) string { return m[key] }

func TestResolveSettings(t *testing.T) {
	tests := []struct {
		name     string
		store    KeyValueStore
		expected Settings
	}{
		{
			name:     "nil store",
			store:    nil,
			expected: Settings{LogLevel: DefaultLogLevel},
		},
		{
			name:     "empty store",
			store:    mapStore{},
			expected: Settings{LogLevel: DefaultLogLevel},
		},
		{
			name: "level indirection",
			store: mapStore{
				LogLevelIndicatorFlagKey: "LogLevelProd",
				"LogLevelProd":           "Minimal",
				"LogLevelDev":            "detailed",
			},
			expected: Settings{LogLevel: "minimal"},
		},
		{
			name: "indirection to a missing key keeps the default",
			store: mapStore{
				LogLevelIndicatorFlagKey: "LogLevelNowhere",
			},
			expected: Settings{LogLevel: DefaultLogLevel},
		},
		{
			name: "path indirection wins over direct path",
			store: mapStore{
				LogFilePathIndicatorKey: "LogFilePathProd",
				"LogFilePathProd":       "/var/log/api",
				LogFilePathKey:          "/tmp",
				LogFileNameKey:          " audit.log ",
				ApplicationNameKey:      "orders-api",
			},
			expected: Settings{
				LogLevel:        DefaultLogLevel,
				FileName:        "audit.log",
				FilePath:        "/var/log/api",
				ApplicationName: "orders-api",
			},
		},
		{
			name: "direct path when indirection is empty",
			store: mapStore{
				LogFilePathKey: "/tmp/audit",
			},
			expected: Settings{LogLevel: DefaultLogLevel, FilePath: "/tmp/audit"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.expected, ResolveSettings(tt.store))
		})
	}
}
