// Package store executes the audit stored procedure through gorm.
package store

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlserver"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/rainbow-me/api-audit/audit"
	"github.com/rainbow-me/api-audit/common/logger"
)

// Supported drivers.
const (
	DriverSQLServer = "sqlserver"
	DriverMySQL     = "mysql"
	DriverPostgres  = "postgres"
	DriverSQLite    = "sqlite"
)

// ErrUnsupportedProcedure is returned by dialects that emulate a single known procedure.
var ErrUnsupportedProcedure = errors.New("procedure not supported by dialect")

// Config selects and tunes the database connection.
type Config struct {
	Driver        string        `mapstructure:"driver"`
	DSN           string        `mapstructure:"dsn"`
	AutoMigrate   bool          `mapstructure:"autoMigrate"`
	SlowThreshold time.Duration `mapstructure:"slowThreshold"`
}

// Executor implements audit.ProcedureExecutor on a gorm connection.
// Dialects without stored procedures (sqlite) insert into the api_logs table instead.
type Executor struct {
	db *gorm.DB
}

var _ audit.ProcedureExecutor = (*Executor)(nil)

// Open connects with cfg. An empty driver means sqlserver. SQL statements are logged at
// debug level through log, slow statements and errors at warn.
func Open(cfg Config, log *logger.Logger) (*Executor, error) {
	dialector, err := dialectorFor(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{Logger: newGormLogger(log, cfg.SlowThreshold)})
	if err != nil {
		return nil, errors.Wrapf(err, "failed opening %s connection", dialector.Name())
	}

	if cfg.AutoMigrate || dialector.Name() == DriverSQLite {
		if err := db.AutoMigrate(&APILog{}); err != nil {
			_ = NewExecutor(db).Close()
			return nil, errors.Wrap(err, "failed creating api_logs table")
		}
	}

	log.Info("audit database connected", logger.String("driver", dialector.Name()))
	return &Executor{db: db}, nil
}

// NewExecutor wraps an existing connection.
func NewExecutor(db *gorm.DB) *Executor {
	return &Executor{db: db}
}

func dialectorFor(driver, dsn string) (gorm.Dialector, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("database dsn is empty")
	}
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", DriverSQLServer:
		return sqlserver.Open(dsn), nil
	case DriverMySQL:
		return mysql.Open(dsn), nil
	case DriverPostgres:
		return postgres.Open(dsn), nil
	case DriverSQLite:
		return sqlite.Open(dsn), nil
	default:
		return nil, errors.Newf("unsupported database driver %q", driver)
	}
}

func newGormLogger(log *logger.Logger, slow time.Duration) gormlogger.Interface {
	if slow <= 0 {
		slow = 200 * time.Millisecond
	}
	return gormlogger.New(
		(*logger.Adapter)(log),
		gormlogger.Config{
			SlowThreshold:             slow,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
}

// ExecProcedure runs name with params. Results are discarded.
func (e *Executor) ExecProcedure(ctx context.Context, name string, params []sql.NamedArg) error {
	db := e.db.WithContext(ctx)

	if db.Dialector.Name() == DriverSQLite {
		return e.insertLog(db, name, params)
	}

	query, args := procedureSQL(db.Dialector.Name(), name, params)
	if err := db.Exec(query, args...).Error; err != nil {
		return errors.Wrapf(err, "exec %s", name)
	}
	return nil
}

// procedureSQL renders the call statement with positional placeholders.
// SQL Server binds by parameter name, the other dialects by position.
func procedureSQL(dialect, name string, params []sql.NamedArg) (string, []any) {
	args := make([]any, 0, len(params))
	parts := make([]string, 0, len(params))
	for _, p := range params {
		args = append(args, p.Value)
		if dialect == DriverSQLServer {
			parts = append(parts, "@"+p.Name+" = ?")
		} else {
			parts = append(parts, "?")
		}
	}

	if dialect == DriverSQLServer {
		return "EXEC " + name + " " + strings.Join(parts, ", "), args
	}
	return "CALL " + name + "(" + strings.Join(parts, ", ") + ")", args
}

func (e *Executor) insertLog(db *gorm.DB, name string, params []sql.NamedArg) error {
	if name != audit.ProcedureAddAPILog {
		return errors.Wrapf(ErrUnsupportedProcedure, "%s on %s", name, DriverSQLite)
	}

	values := make(map[string]any, len(params))
	for _, p := range params {
		values[p.Name] = p.Value
	}
	if err := db.Model(&APILog{}).Create(values).Error; err != nil {
		return errors.Wrap(err, "insert api log")
	}
	return nil
}

// DB exposes the underlying connection.
func (e *Executor) DB() *gorm.DB { return e.db }

// Close closes the connection pool.
func (e *Executor) Close() error {
	sqlDB, err := e.db.DB()
	if err != nil {
		return errors.Wrap(err, "get sql db")
	}
	return sqlDB.Close()
}
