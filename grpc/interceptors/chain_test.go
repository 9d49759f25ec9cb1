package interceptors_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"

	"github.com/rainbow-me/api-audit/grpc/interceptors"
)

func recordingInterceptor(name string, calls *[]string) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, _ *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		*calls = append(*calls, name)
		return handler(ctx, req)
	}
}

// run commits the chain and returns the order the interceptors ran in.
func run(t *testing.T, build func(c *interceptors.UnaryServerInterceptorChain, calls *[]string)) []string {
	t.Helper()
	var calls []string
	c := interceptors.NewUnaryServerInterceptorChain()
	build(c, &calls)

	resp, err := c.Commit()(context.Background(), "req", &grpc.UnaryServerInfo{FullMethod: "/test.Svc/Do"},
		func(_ context.Context, req any) (any, error) { return req, nil })
	require.NoError(t, err)
	assert.Equal(t, "req", resp)
	assert.Equal(t, c.IDs(), calls)
	return calls
}

func TestUnaryServerInterceptorChain(t *testing.T) {
	t.Run("Push", func(t *testing.T) {
		calls := run(t, func(c *interceptors.UnaryServerInterceptorChain, calls *[]string) {
			assert.True(t, c.Push("a", recordingInterceptor("a", calls)))
			assert.False(t, c.Push("a", recordingInterceptor("a", calls)))
			assert.True(t, c.Push("b", recordingInterceptor("b", calls)))
			assert.True(t, c.Push("c", recordingInterceptor("c", calls)))
		})
		assert.Equal(t, []string{"a", "b", "c"}, calls)
	})

	t.Run("InsertAfter", func(t *testing.T) {
		calls := run(t, func(c *interceptors.UnaryServerInterceptorChain, calls *[]string) {
			c.Push("a", recordingInterceptor("a", calls))
			c.Push("b", recordingInterceptor("b", calls))
			assert.True(t, c.InsertAfter("a", "c", recordingInterceptor("c", calls)))
			assert.False(t, c.InsertAfter("missing", "d", recordingInterceptor("d", calls)))
		})
		assert.Equal(t, []string{"a", "c", "b"}, calls)
	})

	t.Run("InsertBefore", func(t *testing.T) {
		calls := run(t, func(c *interceptors.UnaryServerInterceptorChain, calls *[]string) {
			c.Push("a", recordingInterceptor("a", calls))
			c.Push("b", recordingInterceptor("b", calls))
			assert.True(t, c.InsertBefore("b", "c", recordingInterceptor("c", calls)))
			assert.False(t, c.InsertBefore("b", "a", recordingInterceptor("a", calls)))
		})
		assert.Equal(t, []string{"a", "c", "b"}, calls)
	})

	t.Run("Replace", func(t *testing.T) {
		calls := run(t, func(c *interceptors.UnaryServerInterceptorChain, calls *[]string) {
			c.Push("a", recordingInterceptor("a", calls))
			c.Push("b", recordingInterceptor("b", calls))
			assert.True(t, c.Replace("a", recordingInterceptor("a", calls)))
			assert.False(t, c.Replace("z", recordingInterceptor("z", calls)))
		})
		assert.Equal(t, []string{"a", "b"}, calls)
	})

	t.Run("Delete", func(t *testing.T) {
		calls := run(t, func(c *interceptors.UnaryServerInterceptorChain, calls *[]string) {
			c.Push("a", recordingInterceptor("a", calls))
			c.Push("b", recordingInterceptor("b", calls))
			c.Push("c", recordingInterceptor("c", calls))
			assert.True(t, c.Delete("b"))
			assert.False(t, c.Delete("b"))
			assert.False(t, c.Exists("b"))
		})
		assert.Equal(t, []string{"a", "c"}, calls)
	})
}
