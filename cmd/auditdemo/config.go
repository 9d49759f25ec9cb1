package main

import (
	"context"
	"io"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/spf13/viper"

	"github.com/rainbow-me/api-audit/audit"
	"github.com/rainbow-me/api-audit/audit/store"
	"github.com/rainbow-me/api-audit/common/config"
	"github.com/rainbow-me/api-audit/common/logger"
	"github.com/rainbow-me/api-audit/grpc/server"
)

const appSettingsKey = "appSettings"

// Config is the demo's <env>.yaml. The audit keys live in the appSettings section and
// are resolved separately by config.ResolveSettings.
type Config struct {
	ServiceName string       `mapstructure:"serviceName"`
	HTTP        HTTPConfig   `mapstructure:"http"`
	GRPC        GRPCConfig   `mapstructure:"grpc"`
	Audit       AuditConfig  `mapstructure:"audit"`
	Database    store.Config `mapstructure:"database"`
}

type HTTPConfig struct {
	GinAddress string `mapstructure:"ginAddress"`
	MuxAddress string `mapstructure:"muxAddress"`
}

type GRPCConfig struct {
	Address    string            `mapstructure:"address"`
	Reflection bool              `mapstructure:"reflection"`
	APIKeys    map[string]string `mapstructure:"apiKeys"` // client -> key
}

// AuditConfig selects the sinks receiving detailed entries.
type AuditConfig struct {
	File        bool `mapstructure:"file"`
	Database    bool `mapstructure:"database"`
	Event       bool `mapstructure:"event"`
	FailOnError bool `mapstructure:"failOnError"`
}

func (c AuditConfig) Mask() audit.Mask {
	return audit.Mask{File: c.File, Database: c.Database, Event: c.Event}
}

func loadConfig(log *logger.Logger, configDir string) (*Config, config.Settings, error) {
	var opts []config.ReadConfigOption
	if configDir != "" {
		opts = append(opts, config.WithAbsolutePath(configDir))
	}

	cfg := &Config{}
	v, err := config.LoadConfig(cfg, log, opts...)
	if err != nil {
		return nil, config.Settings{}, err
	}
	return cfg, resolveSettings(v), nil
}

func resolveSettings(v *viper.Viper) config.Settings {
	if sub := v.Sub(appSettingsKey); sub != nil {
		return config.ResolveSettings(sub)
	}
	return config.ResolveSettings(nil)
}

// auditStack is the auditor with the resources its sinks opened lazily.
type auditStack struct {
	auditor *audit.Auditor

	mu      sync.Mutex
	closers []io.Closer
}

func (s *auditStack) track(c io.Closer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closers = append(s.closers, c)
}

// Close releases the database connection and event channel writers.
func (s *auditStack) Close(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var err error
	for _, c := range s.closers {
		err = errors.CombineErrors(err, c.Close())
	}
	s.closers = nil
	return err
}

func (s *auditStack) shutdownHook() server.ShutdownHook {
	return server.ShutdownHook{Name: "audit-sinks", Priority: 10, Hook: s.Close}
}

// newAuditStack registers the file, database and event sinks. The database and event
// sinks connect on first use, so a service whose mask never selects them never opens
// a connection.
func newAuditStack(cfg *Config, settings config.Settings, log *logger.Logger) *auditStack {
	s := &auditStack{}

	registry := audit.NewRegistry(
		audit.WithSinkInstance(audit.NewFileSink(settings.FileName, settings.FilePath, audit.WithFileLogger(log))),
		audit.WithSink(audit.SinkDatabase, func() (audit.Sink, error) {
			exec, err := store.Open(cfg.Database, log)
			if err != nil {
				return nil, err
			}
			s.track(exec)
			return audit.NewDatabaseSink(exec, settings.ApplicationName), nil
		}),
		audit.WithSink(audit.SinkEvent, func() (audit.Sink, error) {
			channel := audit.NewSystemEventChannel()
			if c, ok := channel.(io.Closer); ok {
				s.track(c)
			}
			return audit.NewEventSink(channel, settings.ApplicationName), nil
		}),
	)

	s.auditor = audit.NewAuditor(audit.NewDispatcher(registry), audit.ParseLevel(settings.LogLevel))
	return s
}
