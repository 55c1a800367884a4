package synthesis

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/book-expert/tts-stream/internal/core"
)

// Transport opens a synthesis stream. The returned body yields the record
// stream; closing it cancels the underlying connection.
type Transport interface {
	Open(ctx context.Context, req Request) (io.ReadCloser, error)
}

// openGuard bounds the time from Open until the first byte of the stream.
// When it fires, the stream context is cancelled and every error observed
// afterwards is reported as a timeout rather than a transport failure.
type openGuard struct {
	parent   context.Context //nolint:containedctx // distinguishes caller cancellation
	ctx      context.Context //nolint:containedctx // cancelled on timeout or Close
	cancel   context.CancelFunc
	timeout  time.Duration
	timer    *time.Timer
	timedOut atomic.Bool
}

func newOpenGuard(parent context.Context, timeout time.Duration) *openGuard {
	ctx, cancel := context.WithCancel(parent)
	guard := &openGuard{parent: parent, ctx: ctx, cancel: cancel, timeout: timeout}

	if timeout > 0 {
		guard.timer = time.AfterFunc(timeout, func() {
			guard.timedOut.Store(true)
			cancel()
		})
	}

	return guard
}

// disarm stops the timer once the first byte arrived.
func (g *openGuard) disarm() {
	if g.timer != nil {
		g.timer.Stop()
	}
}

func (g *openGuard) release() {
	g.disarm()
	g.cancel()
}

// classify maps a failure observed under the guard to an engine error.
func (g *openGuard) classify(op string, err error) error {
	switch {
	case g.timedOut.Load():
		return core.Wrap(core.KindTimeout, op, fmt.Errorf("%w: no data within %s: %w", core.ErrTimeout, g.timeout, err))
	case g.parent.Err() != nil:
		return core.Wrap(core.KindCancelled, op, g.parent.Err())
	default:
		return core.Wrap(core.KindTransport, op, err)
	}
}

// guardedStream disarms the guard on the first byte and classifies read
// errors. io.EOF passes through untouched.
type guardedStream struct {
	body      io.ReadCloser
	guard     *openGuard
	firstOnce sync.Once
	closeOnce sync.Once
}

func newGuardedStream(body io.ReadCloser, guard *openGuard) *guardedStream {
	return &guardedStream{body: body, guard: guard}
}

func (s *guardedStream) Read(p []byte) (int, error) {
	n, err := s.body.Read(p)
	if n > 0 {
		s.firstOnce.Do(s.guard.disarm)
	}

	if err != nil && !errors.Is(err, io.EOF) {
		return n, s.guard.classify("read stream", err)
	}

	return n, err
}

func (s *guardedStream) Close() error {
	var err error

	s.closeOnce.Do(func() {
		s.guard.release()
		err = s.body.Close()
	})

	return err
}
