package audit

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/rainbow-me/api-audit/common/logger"
)

const (
	// DefaultFileName receives the minimal summary lines.
	DefaultFileName       = "ApiLogger.log"
	// DefaultDetailFileName receives detailed entries when no file name is configured.
	DefaultDetailFileName = "ApiLoggerDetail.log"

	errorFilePrefix  = "ApiLogger-error"
	errorFileLayout  = "2006-01-02T150405.000"
	logFileExtension = ".log"
	eventTimeLayout  = "2006-01-02 T 15:04:05.000"
	fieldSeparator   = " | "
)

// FileSinkOption configures a FileSink.
type FileSinkOption func(*FileSink)

// WithFileClock replaces time.Now for timestamps and fallback file names.
func WithFileClock(clock func() time.Time) FileSinkOption {
	return func(s *FileSink) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithFsync syncs every append to stable storage before the file is closed.
func WithFsync(enabled bool) FileSinkOption {
	return func(s *FileSink) {
		s.fsync = enabled
	}
}

// WithFileLogger sets the logger used for contained write failures.
// Defaults to the context logger.
func WithFileLogger(log *logger.Logger) FileSinkOption {
	return func(s *FileSink) {
		s.log = log
	}
}

// FileSink appends audit entries to text files in one directory.
// Write failures are diverted to a timestamped error file instead of being returned.
type FileSink struct {
	fileName string
	dir      string
	resolve  func() (string, string)

	clock     func() time.Time
	fsync     bool
	log       *logger.Logger
	formatter Formatter
	locks     pathLocks
}

// NewFileSink creates a sink writing detailed entries to fileName inside dir.
// Empty values fall back to DefaultDetailFileName and the directory of the running
// executable; both are resolved on first use and cached.
func NewFileSink(fileName, dir string, opts ...FileSinkOption) *FileSink {
	s := &FileSink{
		fileName: strings.TrimSpace(fileName),
		dir:      strings.TrimSpace(dir),
		clock:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.resolve = sync.OnceValues(s.resolveTarget)
	return s
}

func (s *FileSink) Kind() SinkKind { return SinkFile }

func (s *FileSink) resolveTarget() (string, string) {
	name := s.fileName
	if name == "" {
		name = DefaultDetailFileName
	}
	dir := s.dir
	if dir == "" {
		dir = executableDir()
	}
	return name, dir
}

func executableDir() string {
	exe, err := os.Executable()
	if err != nil {
		return "."
	}
	return filepath.Dir(exe)
}

// Dir returns the resolved output directory.
func (s *FileSink) Dir() string {
	_, dir := s.resolve()
	return dir
}

// DetailPath returns the resolved path of the detailed file.
func (s *FileSink) DetailPath() string {
	name, dir := s.resolve()
	return filepath.Join(dir, name)
}

// LogMinimal appends one pipe-delimited summary line to DefaultFileName.
func (s *FileSink) LogMinimal(ctx context.Context, id string, req *CapturedRequest) error {
	fields := []string{
		s.clock().Format(TimeLayout),
		id,
		strings.ToUpper(req.Scheme),
		strings.ToUpper(req.ServerProtocol),
		req.RemoteAddr,
		req.RemoteHost,
		req.LocalAddr,
		strings.ToUpper(req.Method),
		req.URI,
		req.HandlerName,
		req.ActionName,
		req.ContentType,
		req.RequestTime,
	}
	return s.save(ctx, DefaultFileName, strings.Join(fields, fieldSeparator)+"\n")
}

// LogDetailed appends a bordered block with the level-formatted request to the detailed file.
func (s *FileSink) LogDetailed(ctx context.Context, id string, level Level, req *CapturedRequest, isRequest bool) error {
	eventTime := s.clock().Format(eventTimeLayout)

	var sb strings.Builder
	sb.WriteString(splitter + "\n")
	sb.WriteString("# EventDateTime : " + eventTime + "\n")
	sb.WriteString("# IsRequest : " + strconv.FormatBool(isRequest) + "\n")
	sb.WriteString("# Request URI : " + req.URI + "\n")
	sb.WriteString("# Request Method : " + strings.ToUpper(req.Method) + "\n")
	sb.WriteString("# Request Uuid : " + id + "\n")
	sb.WriteString(splitter + "\n")
	sb.WriteString(s.formatter.Format(level, req))
	sb.WriteByte('\n')
	sb.WriteString(splitter + "\n")
	sb.WriteString("# End Request Uuid : " + id + "\n")
	sb.WriteString("# EventDateTime : " + eventTime + "\n")
	sb.WriteString(splitter + "\n")

	name, _ := s.resolve()
	return s.save(ctx, name, sb.String())
}

// save appends payload to name. On failure it writes a diagnostic record to a fallback
// file and only returns an error when that write fails as well.
func (s *FileSink) save(ctx context.Context, name, payload string) error {
	dir := s.Dir()
	target := filepath.Join(dir, name)

	err := s.appendTo(target, payload)
	if err == nil {
		return nil
	}

	log := s.logger(ctx).With(logger.String("path", target))
	log.Warn("audit file write failed, writing fallback record", logger.Error(err))

	fallback := filepath.Join(dir, errorFilePrefix+s.clock().Format(errorFileLayout)+logFileExtension)
	if ferr := s.appendTo(fallback, diagnosticRecord(err)); ferr != nil {
		log.Error("audit fallback write failed", logger.String("fallback", fallback), logger.Error(ferr))
		return newSinkWriteError(SinkFile, fallback, errors.WithSecondaryError(ferr, err))
	}
	return nil
}

// diagnosticRecord holds the error message and, when it wraps one, the root cause.
func diagnosticRecord(err error) string {
	record := err.Error() + "\n"
	if cause := errors.UnwrapAll(err); cause != nil && cause.Error() != err.Error() {
		record += cause.Error() + "\n"
	}
	return record
}

func (s *FileSink) appendTo(path string, payload string) error {
	mu := s.locks.get(path)
	mu.Lock()
	defer mu.Unlock()

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}

	_, werr := f.WriteString(payload)
	if werr == nil && s.fsync {
		werr = f.Sync()
	}
	if cerr := f.Close(); cerr != nil {
		werr = errors.CombineErrors(werr, cerr)
	}
	return errors.Wrapf(werr, "append %s", path)
}

func (s *FileSink) logger(ctx context.Context) *logger.Logger {
	if s.log != nil {
		return s.log
	}
	return logger.FromContext(ctx)
}

// pathLocks hands out one mutex per file path.
type pathLocks struct {
	mu sync.Mutex
	m  map[string]*sync.Mutex
}

func (l *pathLocks) get(path string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.m == nil {
		l.m = make(map[string]*sync.Mutex)
	}
	mu, ok := l.m[path]
	if !ok {
		mu = &sync.Mutex{}
		l.m[path] = mu
	}
	return mu
}
