package audit_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/rainbow-me/api-audit/audit"
)

func readFile(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(b)
}

func TestFileSinkLogMinimal(t *testing.T) {
	dir := t.TempDir()
	sink := audit.NewFileSink("", dir, audit.WithFileClock(fixedClock))

	req := newTestRequest(t, "post", "")
	require.NoError(t, sink.LogMinimal(context.Background(), "u1", req))

	expected := strings.Join([]string{
		fixedTime.Format(audit.TimeLayout),
		"u1",
		"HTTP",
		"HTTP/1.1",
		"10.0.0.1:5555",
		"10.0.0.1",
		"127.0.0.1:8080",
		"POST",
		"http://localhost:8080/orders/42?x=1",
		"orders.Handler",
		"Create",
		"application/json",
		audit.FormatRequestTime(fixedTime),
	}, " | ") + "\n"

	assert.Equal(t, expected, readFile(t, filepath.Join(dir, audit.DefaultFileName)))
	assert.NoFileExists(t, filepath.Join(dir, audit.DefaultDetailFileName))
}

func TestFileSinkLogDetailed(t *testing.T) {
	dir := t.TempDir()
	sink := audit.NewFileSink("detail.log", dir, audit.WithFileClock(fixedClock), audit.WithFsync(true))

	req := newTestRequest(t, "POST", `{"a":1}`)
	require.NoError(t, sink.LogDetailed(context.Background(), "u1", audit.LevelInfo, req, true))

	assert.Equal(t, filepath.Join(dir, "detail.log"), sink.DetailPath())
	out := readFile(t, sink.DetailPath())

	banner := strings.Repeat("#", 80)
	eventTime := fixedTime.Format("2006-01-02 T 15:04:05.000")
	assert.True(t, strings.HasPrefix(out, banner+"\n# EventDateTime : "+eventTime+"\n# IsRequest : true\n"))
	assert.Contains(t, out, "# Request URI : http://localhost:8080/orders/42?x=1\n")
	assert.Contains(t, out, "# Request Method : POST\n")
	assert.Contains(t, out, "# Request Uuid : u1\n")
	assert.Contains(t, out, `{"a":1}`)
	assert.True(t, strings.HasSuffix(out, "# End Request Uuid : u1\n# EventDateTime : "+eventTime+"\n"+banner+"\n"))
}

func TestFileSinkDefaults(t *testing.T) {
	sink := audit.NewFileSink(" ", "")

	exe, err := os.Executable()
	require.NoError(t, err)
	assert.Equal(t, filepath.Dir(exe), sink.Dir())
	assert.Equal(t, filepath.Join(filepath.Dir(exe), audit.DefaultDetailFileName), sink.DetailPath())
}

func TestFileSinkFallbackOnWriteFailure(t *testing.T) {
	dir := t.TempDir()
	// a directory where the detailed file should be makes every append fail
	require.NoError(t, os.Mkdir(filepath.Join(dir, "blocked.log"), 0o755))

	sink := audit.NewFileSink("blocked.log", dir,
		audit.WithFileClock(fixedClock),
		audit.WithFileLogger(zaptest.NewLogger(t)),
	)

	err := sink.LogDetailed(context.Background(), "u1", audit.LevelInfo, newTestRequest(t, "POST", "x"), true)
	require.NoError(t, err, "target failures are contained")

	fallback := filepath.Join(dir, "ApiLogger-error"+fixedTime.Format("2006-01-02T150405.000")+".log")
	require.FileExists(t, fallback)

	record := readFile(t, fallback)
	assert.Contains(t, record, filepath.Join(dir, "blocked.log"))
	assert.Contains(t, record, "is a directory")

	// a second failure within the same millisecond appends to the same record file
	require.NoError(t, sink.LogDetailed(context.Background(), "u2", audit.LevelInfo, newTestRequest(t, "POST", "x"), true))
	assert.Greater(t, len(readFile(t, fallback)), len(record))
}

func TestFileSinkFallbackFailure(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "missing")
	sink := audit.NewFileSink("", dir, audit.WithFileClock(fixedClock), audit.WithFileLogger(zaptest.NewLogger(t)))

	err := sink.LogMinimal(context.Background(), "u1", newTestRequest(t, "GET", ""))
	require.Error(t, err)

	var we *audit.SinkWriteError
	require.ErrorAs(t, err, &we)
	assert.Equal(t, audit.SinkFile, we.Sink)
	assert.Contains(t, we.Target, "ApiLogger-error")
}

func TestFileSinkConcurrentAppends(t *testing.T) {
	dir := t.TempDir()
	sink := audit.NewFileSink("", dir)
	req := newTestRequest(t, "POST", strings.Repeat("b", 4096))

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, sink.LogMinimal(context.Background(), "id", req))
			assert.NoError(t, sink.LogDetailed(context.Background(), "id", audit.LevelInfo, req, true))
		}()
	}
	wg.Wait()

	lines := strings.Split(strings.TrimSuffix(readFile(t, filepath.Join(dir, audit.DefaultFileName)), "\n"), "\n")
	require.Len(t, lines, 100)
	for _, line := range lines {
		assert.Len(t, strings.Split(line, " | "), 13)
	}

	detail := readFile(t, filepath.Join(dir, audit.DefaultDetailFileName))
	assert.Equal(t, 100, strings.Count(detail, "# End Request Uuid : id\n"))
	assert.Equal(t, 100, strings.Count(detail, strings.Repeat("b", 4096)))
}
