package audit_test

import (
	"context"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rainbow-me/api-audit/audit"
)

func TestAuditorOnIntercept(t *testing.T) {
	sinks := newRecordingSinks()
	auditor := audit.NewAuditor(sinks.dispatcher(audit.WithIDGenerator(func() string { return "u1" })), audit.LevelInfo)
	assert.Equal(t, audit.LevelInfo, auditor.Level())

	req := newTestRequest(t, "POST", `{"a":1}`)
	res, err := auditor.OnIntercept(testContext(t), func(context.Context) (*audit.CapturedRequest, error) {
		return req, nil
	}, audit.Mask{Event: true}, audit.LevelDebug)
	require.NoError(t, err)

	assert.Equal(t, "u1", res.ID)
	assert.Equal(t, []string{"file.minimal", "event.detailed"}, sinks.order.calls)
	assert.Equal(t, audit.LevelDebug, sinks.event.detailed[0].level)
}

func TestAuditorOnInterceptCollectionFailure(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{name: "plain error is wrapped", err: errors.New("no request")},
		{name: "collection error is kept", err: audit.NewCollectionError("headers", errors.New("nil header map"))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sinks := newRecordingSinks()
			auditor := audit.NewAuditor(sinks.dispatcher(), audit.LevelInfo)

			_, err := auditor.OnIntercept(testContext(t), func(context.Context) (*audit.CapturedRequest, error) {
				return nil, tt.err
			}, audit.Mask{File: true}, audit.LevelInfo)

			var ce *audit.CollectionError
			require.ErrorAs(t, err, &ce)
			assert.ErrorIs(t, err, tt.err)
			assert.Zero(t, sinks.file.minimalCalls(), "no sink runs when collection fails")
		})
	}
}
