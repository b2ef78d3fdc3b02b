package ratelimit

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestNewLimiter tests the Limiter constructor
func TestNewLimiter(t *testing.T) {
	t.Run("ValidBytesPerSecond", func(t *testing.T) {
		limiter := NewLimiter(1024 * 1024)
		require.NotNil(t, limiter)
		assert.Equal(t, int64(1024*1024), limiter.Limit())
		assert.Equal(t, 1024*1024, limiter.Burst())
	})

	t.Run("Disabled", func(t *testing.T) {
		assert.Nil(t, NewLimiter(0))
		assert.Nil(t, NewLimiter(-100))

		var nilLimiter *Limiter
		assert.Zero(t, nilLimiter.Limit())
		assert.Zero(t, nilLimiter.Burst())
	})

	t.Run("SmallBytesPerSecond", func(t *testing.T) {
		limiter := NewLimiter(1000)
		require.NotNil(t, limiter)
		assert.Equal(t, minBurst, limiter.Burst())
	})
}

// TestNewReader tests the Reader constructor
func TestNewReader(t *testing.T) {
	base := strings.NewReader("test content")

	reader := NewReader(context.Background(), base, NewLimiter(1024*1024))
	_, ok := reader.(*Reader)
	assert.True(t, ok, "NewReader() should return *Reader when limiter is provided")

	assert.Same(t, base, NewReader(context.Background(), base, nil))
}

// TestReaderRead tests the Read method
func TestReaderRead(t *testing.T) {
	t.Run("BasicRead", func(t *testing.T) {
		content := []byte("hello world")
		reader := NewReader(context.Background(), bytes.NewReader(content), NewLimiter(1024*1024))

		got, err := io.ReadAll(reader)
		require.NoError(t, err)
		assert.Equal(t, content, got)
	})

	t.Run("ContextCancellation", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		reader := NewReader(ctx, bytes.NewReader(make([]byte, 1024)), NewLimiter(1024*1024))
		_, err := reader.Read(make([]byte, 100))
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("ReadsAreCappedAtBurst", func(t *testing.T) {
		limiter := NewLimiter(minBurst)
		content := make([]byte, 3*minBurst)
		reader := NewReader(context.Background(), bytes.NewReader(content), limiter)

		n, err := reader.Read(make([]byte, len(content)))
		require.NoError(t, err)
		assert.Equal(t, minBurst, n)
	})

	t.Run("Throttles", func(t *testing.T) {
		// 64KB/s with a 64KB burst: the second 64KB waits about a second
		limiter := NewLimiter(minBurst)
		content := make([]byte, minBurst+minBurst/4)
		reader := NewReader(context.Background(), bytes.NewReader(content), limiter)

		start := time.Now()
		got, err := io.ReadAll(reader)
		require.NoError(t, err)
		assert.Len(t, got, len(content))
		assert.GreaterOrEqual(t, time.Since(start), 150*time.Millisecond)
	})
}

// TestNewReadCloser tests the ReadCloser constructor
func TestNewReadCloser(t *testing.T) {
	t.Run("WithLimiter", func(t *testing.T) {
		rc := NewReadCloser(context.Background(), io.NopCloser(strings.NewReader("x")), NewLimiter(1024))
		_, ok := rc.(*ReadCloser)
		assert.True(t, ok)
		assert.NoError(t, rc.Close())
	})

	t.Run("NilLimiter", func(t *testing.T) {
		base := io.NopCloser(strings.NewReader("x"))
		assert.Equal(t, base, NewReadCloser(context.Background(), base, nil))
	})
}
