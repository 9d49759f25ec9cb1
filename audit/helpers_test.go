package audit_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rainbow-me/api-audit/audit"
)

var fixedTime = time.Date(2024, 1, 2, 3, 4, 5, 6_000_000, time.Local)

func fixedClock() time.Time { return fixedTime }

// newTestRequest builds a request with every typed field populated.
func newTestRequest(t *testing.T, method, body string) *audit.CapturedRequest {
	t.Helper()
	req, err := audit.NewRequestBuilder(audit.CapturedRequest{
		ServerTime:      audit.FormatServerTime(fixedTime),
		URI:             "http://localhost:8080/orders/42?x=1",
		Method:          method,
		Scheme:          "http",
		Host:            "localhost",
		Port:            "8080",
		HandlerName:     "orders.Handler",
		ActionName:      "Create",
		ModuleName:      "github.com/acme/orders",
		ModuleVersionID: "v1.2.3",
		LocalAddr:       "127.0.0.1:8080",
		RemoteAddr:      "10.0.0.1:5555",
		RemoteHost:      "10.0.0.1",
		ServerPort:      "8080",
		ServerProtocol:  "HTTP/1.1",
		ContentType:     "application/json",
		RequestTime:     audit.FormatRequestTime(fixedTime),
		Body:            body,
	}).
		Header("X-Test", "1", "2").
		Argument("id", "42").
		RequestInfo("Request Method", method).
		Build()
	require.NoError(t, err)
	return req
}

type detailedCall struct {
	id        string
	level     audit.Level
	isRequest bool
}

// recordingSink counts calls and can be told to fail or panic.
type recordingSink struct {
	kind        audit.SinkKind
	minimalErr  error
	detailedErr error
	panicWith   any

	mu       sync.Mutex
	minimal  []string
	detailed []detailedCall
	order    *callOrder
}

func (s *recordingSink) Kind() audit.SinkKind { return s.kind }

func (s *recordingSink) LogMinimal(_ context.Context, id string, _ *audit.CapturedRequest) error {
	s.mu.Lock()
	s.minimal = append(s.minimal, id)
	s.mu.Unlock()
	s.order.add(string(s.kind) + ".minimal")
	return s.minimalErr
}

func (s *recordingSink) LogDetailed(_ context.Context, id string, level audit.Level, _ *audit.CapturedRequest, isRequest bool) error {
	if s.panicWith != nil {
		panic(s.panicWith)
	}
	s.mu.Lock()
	s.detailed = append(s.detailed, detailedCall{id: id, level: level, isRequest: isRequest})
	s.mu.Unlock()
	s.order.add(string(s.kind) + ".detailed")
	return s.detailedErr
}

func (s *recordingSink) minimalCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.minimal)
}

func (s *recordingSink) detailedCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.detailed)
}

type callOrder struct {
	mu    sync.Mutex
	calls []string
}

func (o *callOrder) add(call string) {
	if o == nil {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls = append(o.calls, call)
}

// countingFactory wraps s and counts constructions.
func countingFactory(s audit.Sink, n *atomic.Int32) audit.SinkFactory {
	return func() (audit.Sink, error) {
		n.Add(1)
		return s, nil
	}
}
