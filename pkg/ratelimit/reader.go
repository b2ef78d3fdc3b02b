package ratelimit

import (
	"context"
	"io"
	"math"

	"golang.org/x/time/rate"
)

// minBurst keeps small limits from degenerating into tiny reads
const minBurst = 64 * 1024

// Limiter controls the rate of data transfer across multiple readers
type Limiter struct {
	limiter *rate.Limiter
	burst   int
}

// NewLimiter creates a limiter allowing bytesPerSecond on average.
// The burst is one second worth of data, at least 64KB.
// A limit <= 0 returns nil, which disables limiting.
func NewLimiter(bytesPerSecond int64) *Limiter {
	if bytesPerSecond <= 0 {
		return nil
	}

	burst := bytesPerSecond
	if burst < minBurst {
		burst = minBurst
	}
	if burst > math.MaxInt32 {
		burst = math.MaxInt32
	}

	return &Limiter{
		limiter: rate.NewLimiter(rate.Limit(bytesPerSecond), int(burst)),
		burst:   int(burst),
	}
}

// Limit returns the configured rate in bytes per second
func (l *Limiter) Limit() int64 {
	if l == nil {
		return 0
	}
	return int64(l.limiter.Limit())
}

// Burst returns the largest single read the limiter grants
func (l *Limiter) Burst() int {
	if l == nil {
		return 0
	}
	return l.burst
}

// Reader wraps an io.Reader with bandwidth limiting
type Reader struct {
	reader  io.Reader
	limiter *Limiter
	ctx     context.Context
}

// NewReader wraps an io.Reader with rate limiting
func NewReader(ctx context.Context, reader io.Reader, limiter *Limiter) io.Reader {
	if limiter == nil {
		return reader // No limiting
	}
	return &Reader{
		reader:  reader,
		limiter: limiter,
		ctx:     ctx,
	}
}

// Read reads at most one burst and waits for the tokens it consumed
func (r *Reader) Read(p []byte) (int, error) {
	if err := r.ctx.Err(); err != nil {
		return 0, err
	}

	if len(p) > r.limiter.burst {
		p = p[:r.limiter.burst]
	}

	n, err := r.reader.Read(p)
	if n > 0 {
		if werr := r.limiter.limiter.WaitN(r.ctx, n); werr != nil {
			return n, werr
		}
	}

	return n, err
}

// ReadCloser is a rate limited reader that closes the underlying source
type ReadCloser struct {
	io.Reader
	closer io.Closer
}

// NewReadCloser wraps an io.ReadCloser with rate limiting. Copies hand the
// result to the destination backend and close it when done.
func NewReadCloser(ctx context.Context, rc io.ReadCloser, limiter *Limiter) io.ReadCloser {
	if limiter == nil {
		return rc
	}
	return &ReadCloser{
		Reader: NewReader(ctx, rc, limiter),
		closer: rc,
	}
}

// Close implements io.Closer
func (rc *ReadCloser) Close() error {
	return rc.closer.Close()
}
