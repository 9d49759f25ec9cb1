package audit_test

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/rainbow-me/api-audit/audit"
	"github.com/rainbow-me/api-audit/common/logger"
	"github.com/rainbow-me/api-audit/common/test"
)

type recordingSinks struct {
	file, database, event *recordingSink
	order                 *callOrder
}

func newRecordingSinks() *recordingSinks {
	order := &callOrder{}
	return &recordingSinks{
		file:     &recordingSink{kind: audit.SinkFile, order: order},
		database: &recordingSink{kind: audit.SinkDatabase, order: order},
		event:    &recordingSink{kind: audit.SinkEvent, order: order},
		order:    order,
	}
}

func (r *recordingSinks) dispatcher(opts ...audit.DispatcherOption) *audit.Dispatcher {
	return audit.NewDispatcher(audit.NewRegistry(
		audit.WithSinkInstance(r.file),
		audit.WithSinkInstance(r.database),
		audit.WithSinkInstance(r.event),
	), opts...)
}

func testContext(t *testing.T) context.Context {
	return logger.ContextWithLogger(context.Background(), zaptest.NewLogger(t))
}

func TestDispatchMask(t *testing.T) {
	tests := []struct {
		name      string
		mask      audit.Mask
		wantCalls []string
	}{
		{
			name:      "nothing enabled",
			mask:      audit.Mask{},
			wantCalls: []string{"file.minimal"},
		},
		{
			name:      "file only",
			mask:      audit.Mask{File: true},
			wantCalls: []string{"file.minimal", "file.detailed"},
		},
		{
			name:      "database only",
			mask:      audit.Mask{Database: true},
			wantCalls: []string{"file.minimal", "database.detailed"},
		},
		{
			name:      "event only",
			mask:      audit.Mask{Event: true},
			wantCalls: []string{"file.minimal", "event.detailed"},
		},
		{
			name:      "all enabled in fixed order",
			mask:      audit.Mask{File: true, Database: true, Event: true},
			wantCalls: []string{"file.minimal", "file.detailed", "database.detailed", "event.detailed"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sinks := newRecordingSinks()
			d := sinks.dispatcher(audit.WithIDGenerator(func() string { return "u1" }))

			res, err := d.Dispatch(testContext(t), newTestRequest(t, "POST", ""), audit.LevelInfo, tt.mask)
			require.NoError(t, err)

			assert.Equal(t, "u1", res.ID)
			assert.Equal(t, tt.wantCalls, sinks.order.calls)
			assert.Len(t, res.Outcomes, len(tt.wantCalls))
			assert.Empty(t, res.Failed())

			assert.Equal(t, 1, sinks.file.minimalCalls())
			assert.Equal(t, 0, sinks.database.minimalCalls())
			assert.Equal(t, 0, sinks.event.minimalCalls())

			for _, s := range []*recordingSink{sinks.file, sinks.database, sinks.event} {
				want := 0
				if tt.mask.Enabled(s.kind) {
					want = 1
				}
				assert.Equal(t, want, s.detailedCalls(), s.kind)
			}
		})
	}
}

func TestDispatchPassesIDAndLevel(t *testing.T) {
	sinks := newRecordingSinks()
	res, err := sinks.dispatcher().Dispatch(testContext(t), newTestRequest(t, "POST", ""), audit.LevelFull, audit.Mask{Database: true})
	require.NoError(t, err)

	require.NotEmpty(t, res.ID)
	assert.Equal(t, []string{res.ID}, sinks.file.minimal)
	assert.Equal(t, []detailedCall{{id: res.ID, level: audit.LevelFull, isRequest: true}}, sinks.database.detailed)
}

func TestDispatchGeneratesFreshIDs(t *testing.T) {
	sinks := newRecordingSinks()
	d := sinks.dispatcher()
	req := newTestRequest(t, "GET", "")

	first, err := d.Dispatch(testContext(t), req, audit.LevelInfo, audit.Mask{})
	require.NoError(t, err)
	second, err := d.Dispatch(testContext(t), req, audit.LevelInfo, audit.Mask{})
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, second.ID)
}

func TestDispatchIsolatesSinkFailures(t *testing.T) {
	sinks := newRecordingSinks()
	sinks.file.minimalErr = errors.New("disk full")
	sinks.database.detailedErr = errors.New("connection refused")
	sinks.event.detailedErr = errors.New("log full")

	res, err := sinks.dispatcher().Dispatch(testContext(t), newTestRequest(t, "POST", ""), audit.LevelInfo,
		audit.Mask{File: true, Database: true, Event: true})
	require.NoError(t, err, "write failures are not surfaced")

	assert.Equal(t, []string{"file.minimal", "file.detailed", "database.detailed", "event.detailed"}, sinks.order.calls)
	assert.Len(t, res.Failed(), 3)
}

func TestDispatchLogsContainedFailures(t *testing.T) {
	sinks := newRecordingSinks()
	sinks.database.detailedErr = errors.New("connection refused")

	log, logs := test.NewObservedLogger()
	ctx := logger.ContextWithLogger(context.Background(), log)
	res, err := sinks.dispatcher().Dispatch(ctx, newTestRequest(t, "POST", ""), audit.LevelInfo, audit.Mask{Database: true})
	require.NoError(t, err)

	failed := logs.FilterMessage("audit sink failed").All()
	require.Len(t, failed, 1)
	fields := failed[0].ContextMap()
	assert.Equal(t, "database", fields["sink"])
	assert.Equal(t, res.ID, fields["audit_id"])
}

func TestDispatchContainsPanics(t *testing.T) {
	sinks := newRecordingSinks()
	sinks.database.panicWith = "boom"

	res, err := sinks.dispatcher().Dispatch(testContext(t), newTestRequest(t, "POST", ""), audit.LevelInfo,
		audit.Mask{Database: true, Event: true})
	require.NoError(t, err)

	require.Len(t, res.Failed(), 1)
	assert.Equal(t, audit.SinkDatabase, res.Failed()[0].Sink)
	assert.Contains(t, res.Failed()[0].Err.Error(), "boom")
	assert.Equal(t, 1, sinks.event.detailedCalls())
}

func TestDispatchUnregisteredSink(t *testing.T) {
	file := &recordingSink{kind: audit.SinkFile}
	d := audit.NewDispatcher(audit.NewRegistry(audit.WithSinkInstance(file)))

	res, err := d.Dispatch(testContext(t), newTestRequest(t, "POST", ""), audit.LevelInfo, audit.Mask{Event: true})
	require.NoError(t, err)

	require.Len(t, res.Failed(), 1)
	assert.True(t, errors.Is(res.Failed()[0].Err, audit.ErrSinkNotRegistered))
}

func TestDispatchNilRequest(t *testing.T) {
	_, err := newRecordingSinks().dispatcher().Dispatch(testContext(t), nil, audit.LevelInfo, audit.Mask{})

	var ce *audit.CollectionError
	require.ErrorAs(t, err, &ce)
}

func TestDispatchIgnoresCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(testContext(t))
	cancel()

	sinks := newRecordingSinks()
	_, err := sinks.dispatcher().Dispatch(ctx, newTestRequest(t, "POST", ""), audit.LevelInfo, audit.Mask{File: true})
	require.NoError(t, err)
	assert.Equal(t, 1, sinks.file.detailedCalls())
}

// Scenario A: POST with a body, file sink enabled.
func TestDispatchFileScenario(t *testing.T) {
	dir := t.TempDir()
	registry := audit.NewRegistry(audit.WithSinkInstance(audit.NewFileSink("", dir, audit.WithFileClock(fixedClock))))
	d := audit.NewDispatcher(registry, audit.WithIDGenerator(func() string { return "u1" }))

	_, err := d.Dispatch(testContext(t), newTestRequest(t, "POST", `{"a":1}`), audit.LevelInfo, audit.Mask{File: true})
	require.NoError(t, err)

	minimal := readFile(t, filepath.Join(dir, audit.DefaultFileName))
	assert.Equal(t, 1, strings.Count(minimal, "\n"))
	assert.Contains(t, minimal, " | u1 | ")

	detail := readFile(t, filepath.Join(dir, audit.DefaultDetailFileName))
	assert.Equal(t, 1, strings.Count(detail, "# Request Uuid : u1\n"))
	assert.Contains(t, detail, `{"a":1}`)
}

// Scenario B: missing application name with database enabled.
func TestDispatchMissingApplicationName(t *testing.T) {
	dir := t.TempDir()
	exec := &fakeExecutor{}
	registry := audit.NewRegistry(
		audit.WithSinkInstance(audit.NewFileSink("", dir)),
		audit.WithSinkInstance(audit.NewDatabaseSink(exec, "")),
	)
	d := audit.NewDispatcher(registry)

	res, err := d.Dispatch(testContext(t), newTestRequest(t, "POST", "x"), audit.LevelInfo,
		audit.Mask{File: true, Database: true})

	var ce *audit.ConfigurationError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, audit.SinkDatabase, ce.Sink)
	assert.Empty(t, exec.calls)

	assert.FileExists(t, filepath.Join(dir, audit.DefaultFileName))
	assert.FileExists(t, filepath.Join(dir, audit.DefaultDetailFileName))
	require.Len(t, res.Outcomes, 3)
	assert.NoError(t, res.Outcomes[0].Err)
	assert.NoError(t, res.Outcomes[1].Err)
}

// Scenario C: the detailed file cannot be written.
func TestDispatchUnwritableTarget(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, audit.DefaultDetailFileName), 0o755))

	registry := audit.NewRegistry(audit.WithSinkInstance(audit.NewFileSink("", dir, audit.WithFileClock(fixedClock))))
	res, err := audit.NewDispatcher(registry).Dispatch(testContext(t), newTestRequest(t, "POST", "x"), audit.LevelInfo, audit.Mask{File: true})
	require.NoError(t, err)
	assert.Empty(t, res.Failed())

	fallback := filepath.Join(dir, "ApiLogger-error"+fixedTime.Format("2006-01-02T150405.000")+".log")
	assert.Contains(t, readFile(t, fallback), "is a directory")
}

func TestDispatchConcurrent(t *testing.T) {
	dir := t.TempDir()
	var fileBuilds, databaseBuilds, eventBuilds atomic.Int32

	exec := &lockedExecutor{}
	registry := audit.NewRegistry(
		audit.WithSink(audit.SinkFile, countingFactory(audit.NewFileSink("", dir), &fileBuilds)),
		audit.WithSink(audit.SinkDatabase, countingFactory(audit.NewDatabaseSink(exec, "orders-api"), &databaseBuilds)),
		audit.WithSink(audit.SinkEvent, countingFactory(audit.NewEventSink(&lockedChannel{}, "orders-api"), &eventBuilds)),
	)
	d := audit.NewDispatcher(registry)
	req := newTestRequest(t, "POST", `{"a":1}`)
	mask := audit.Mask{File: true, Database: true, Event: true}

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := d.Dispatch(context.Background(), req, audit.LevelInfo, mask)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), fileBuilds.Load())
	assert.Equal(t, int32(1), databaseBuilds.Load())
	assert.Equal(t, int32(1), eventBuilds.Load())
	assert.Equal(t, int32(100), exec.calls.Load())

	lines := strings.Split(strings.TrimSuffix(readFile(t, filepath.Join(dir, audit.DefaultFileName)), "\n"), "\n")
	require.Len(t, lines, 100)
	ids := make(map[string]struct{}, len(lines))
	for _, line := range lines {
		parts := strings.Split(line, " | ")
		require.Len(t, parts, 13)
		ids[parts[1]] = struct{}{}
	}
	assert.Len(t, ids, 100)
}

type lockedExecutor struct {
	calls atomic.Int32
}

func (e *lockedExecutor) ExecProcedure(context.Context, string, []sql.NamedArg) error {
	e.calls.Add(1)
	return nil
}

type lockedChannel struct {
	mu     sync.Mutex
	writes int
}

func (c *lockedChannel) EnsureChannel(string) error { return nil }

func (c *lockedChannel) Write(string, audit.Entry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writes++
	return nil
}
