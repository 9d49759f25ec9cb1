package config

import "strings"

// Keys of the audit appSettings section. The two *Indicator* keys do not hold a value
// themselves: they name the key that does, so one file can carry several profiles
// (e.g. LogLevelIndicatorFlag: LogLevelProd, LogLevelProd: info).
const (
	LogLevelIndicatorFlagKey = "LogLevelIndicatorFlag"
	LogFilePathIndicatorKey  = "LogFilePathIndicator"
	LogFileNameKey           = "LogFileName"
	LogFilePathKey           = "LogFilePath"
	ApplicationNameKey       = "ApplicationNameLog"
)

// DefaultLogLevel is used when the level indirection does not resolve to a value.
const DefaultLogLevel = "info"

// KeyValueStore is the external settings store. *viper.Viper satisfies it.
type KeyValueStore interface {
	GetString(key string) string
}

// Settings are the already-resolved audit settings handed to the audit core.
// Empty strings mean "not configured"; each consumer applies its own default or
// fails, the audit core never reads the store itself.
type Settings struct {
	LogLevel        string
	FileName        string
	FilePath        string
	ApplicationName string
}

// ResolveSettings reads the audit keys from store, following the indicator indirections.
// A nil store yields zero Settings with the default level.
func ResolveSettings(store KeyValueStore) Settings {
	s := Settings{LogLevel: DefaultLogLevel}
	if store == nil {
		return s
	}

	if level := indirect(store, LogLevelIndicatorFlagKey); level != "" {
		s.LogLevel = strings.ToLower(level)
	}

	s.FileName = strings.TrimSpace(store.GetString(LogFileNameKey))

	s.FilePath = indirect(store, LogFilePathIndicatorKey)
	if s.FilePath == "" {
		s.FilePath = strings.TrimSpace(store.GetString(LogFilePathKey))
	}

	s.ApplicationName = strings.TrimSpace(store.GetString(ApplicationNameKey))

	return s
}

func indirect(store KeyValueStore, indicatorKey string) string {
	key := strings.TrimSpace(store.GetString(indicatorKey))
	if key == "" {
		return ""
	}
	return strings.TrimSpace(store.GetString(key))
}
