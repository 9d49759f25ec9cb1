package audit

import (
	"context"
	"database/sql"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/beevik/etree"
	"github.com/cockroachdb/errors"
)

// ProcedureAddAPILog is the stored procedure receiving detailed entries.
const ProcedureAddAPILog = "api.pa_AddApiLog"

// ApplicationNameKey is the configuration key the database and event sinks require.
const ApplicationNameKey = "ApplicationNameLog"

// ProcedureExecutor runs a named stored procedure. Results are never read.
type ProcedureExecutor interface {
	ExecProcedure(ctx context.Context, name string, params []sql.NamedArg) error
}

// ProcedureExecutorFunc adapts a function to ProcedureExecutor.
type ProcedureExecutorFunc func(ctx context.Context, name string, params []sql.NamedArg) error

func (f ProcedureExecutorFunc) ExecProcedure(ctx context.Context, name string, params []sql.NamedArg) error {
	return f(ctx, name, params)
}

// DatabaseSinkOption configures a DatabaseSink.
type DatabaseSinkOption func(*DatabaseSink)

// WithDatabaseClock replaces time.Now for ServerEventTime.
func WithDatabaseClock(clock func() time.Time) DatabaseSinkOption {
	return func(s *DatabaseSink) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// DatabaseSink writes detailed entries through a stored procedure.
type DatabaseSink struct {
	exec    ProcedureExecutor
	appName func() (string, error)
	clock   func() time.Time
}

// NewDatabaseSink creates the sink. applicationName is validated on first use;
// an empty value yields a cached *ConfigurationError.
func NewDatabaseSink(exec ProcedureExecutor, applicationName string, opts ...DatabaseSinkOption) *DatabaseSink {
	s := &DatabaseSink{
		exec:    exec,
		appName: applicationNameResolver(SinkDatabase, applicationName),
		clock:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func applicationNameResolver(kind SinkKind, name string) func() (string, error) {
	return sync.OnceValues(func() (string, error) {
		name = strings.TrimSpace(name)
		if name == "" {
			return "", &ConfigurationError{Sink: kind, Key: ApplicationNameKey}
		}
		return name, nil
	})
}

func (s *DatabaseSink) Kind() SinkKind { return SinkDatabase }

// LogMinimal persists nothing; it only resolves the application name.
func (s *DatabaseSink) LogMinimal(_ context.Context, _ string, _ *CapturedRequest) error {
	_, err := s.appName()
	return err
}

// LogDetailed executes ProcedureAddAPILog with the parameters of req.
func (s *DatabaseSink) LogDetailed(ctx context.Context, id string, _ Level, req *CapturedRequest, isRequest bool) error {
	appName, err := s.appName()
	if err != nil {
		return err
	}

	params, err := s.procedureParams(appName, id, req, isRequest)
	if err != nil {
		return newSinkWriteError(SinkDatabase, ProcedureAddAPILog, err)
	}

	if err := s.exec.ExecProcedure(ctx, ProcedureAddAPILog, params); err != nil {
		return newSinkWriteError(SinkDatabase, ProcedureAddAPILog, err)
	}
	return nil
}

func (s *DatabaseSink) procedureParams(appName, id string, req *CapturedRequest, isRequest bool) ([]sql.NamedArg, error) {
	headersXML, err := HeadersXML(req.Headers())
	if err != nil {
		return nil, err
	}

	port, err := strconv.Atoi(strings.TrimSpace(req.ServerPort))
	if err != nil {
		port = 0
	}

	var body any
	if req.IncludesBody() {
		body = req.Body
	}

	return []sql.NamedArg{
		sql.Named("ApplicationName", appName),
		sql.Named("ServerEventTime", s.clock()),
		sql.Named("RequestURI", req.URI),
		sql.Named("RequestMethod", strings.ToUpper(req.Method)),
		sql.Named("RequestUuid", id),
		sql.Named("RequestEventTime", parseCapturedTime(req.RequestTime)),
		sql.Named("IsRequest", isRequest),
		sql.Named("ServerTime", parseCapturedTime(req.ServerTime)),
		sql.Named("ServerProtocol", req.ServerProtocol),
		sql.Named("IpLocalAddress", req.LocalAddr),
		sql.Named("IpRemoteAddress", req.RemoteAddr),
		sql.Named("RemoteHost", req.RemoteHost),
		sql.Named("ControllerName", req.HandlerName),
		sql.Named("ActionName", req.ActionName),
		sql.Named("ServerPort", port),
		sql.Named("IsFile", req.IsFile),
		sql.Named("ModuleVersionId", req.ModuleVersionID),
		sql.Named("ModuleName", req.ModuleName),
		sql.Named("Parameters", argumentsText(req.Arguments())),
		sql.Named("HeadersXML", headersXML),
		sql.Named("BodyContent", body),
	}, nil
}

// argumentsText renders one "[ key : value ]" line per argument.
func argumentsText(args *Fields) string {
	var sb strings.Builder
	for k, v := range args.All() {
		sb.WriteString("[ " + k + " : " + v + " ]\n")
	}
	return sb.String()
}

// HeadersXML renders headers as <headers><header key="..." value="..."/></headers>.
func HeadersXML(headers *Fields) (string, error) {
	doc := etree.NewDocument()
	root := doc.CreateElement("headers")
	for k, v := range headers.All() {
		h := root.CreateElement("header")
		h.CreateAttr("key", k)
		h.CreateAttr("value", v)
	}
	doc.Indent(2)

	out, err := doc.WriteToString()
	if err != nil {
		return "", errors.Wrap(err, "render headers xml")
	}
	return out, nil
}
