package playback

import (
	"context"
	"errors"
	"sync"

	"github.com/book-expert/tts-stream/internal/core"
)

var (
	// ErrAborted is delivered to appends discarded by Abort.
	ErrAborted = errors.New("append aborted")
	// ErrAppenderClosed indicates an append submitted after Finalize or Abort.
	ErrAppenderClosed = errors.New("appender closed")
	// ErrAppendPending indicates Finalize was called while appends were outstanding.
	ErrAppendPending = errors.New("finalize with appends outstanding")
)

type appendRequest struct {
	data []byte
	done chan error
}

// Appender serializes appends into a Buffer. At most one append is in flight;
// later ones wait in FIFO order and are issued when the buffer reports ready.
// It is safe for concurrent use.
type Appender struct {
	mu        sync.Mutex
	buffer    Buffer
	queue     []*appendRequest
	current   *appendRequest
	failure   error
	aborted   bool
	finalized bool
	abortCh   chan struct{}
}

// NewAppender wraps buffer.
func NewAppender(buffer Buffer) *Appender {
	return &Appender{
		buffer:  buffer,
		abortCh: make(chan struct{}),
	}
}

// Submit queues data and returns a channel that delivers the append's
// outcome exactly once.
func (a *Appender) Submit(data []byte) <-chan error {
	req := &appendRequest{data: data, done: make(chan error, 1)}

	a.mu.Lock()
	defer a.mu.Unlock()

	switch {
	case a.failure != nil:
		req.done <- a.failure
	case a.aborted, a.finalized:
		req.done <- ErrAppenderClosed
	default:
		a.queue = append(a.queue, req)

		if a.current == nil {
			a.issueNextLocked()
		}
	}

	return req.done
}

// Append submits data and waits until the buffer absorbed it.
func (a *Appender) Append(ctx context.Context, data []byte) error {
	select {
	case err := <-a.Submit(data):
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pending reports how many appends are queued or in flight.
func (a *Appender) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()

	pending := len(a.queue)
	if a.current != nil {
		pending++
	}

	return pending
}

// Finalize signals end of stream to the buffer. It is only allowed once the
// last append completed, or after Abort. Repeated calls are no-ops.
func (a *Appender) Finalize() error {
	a.mu.Lock()

	if a.finalized {
		a.mu.Unlock()

		return nil
	}

	if !a.aborted && (a.current != nil || len(a.queue) > 0) {
		a.mu.Unlock()

		return ErrAppendPending
	}

	a.finalized = true
	a.mu.Unlock()

	return core.Wrap(core.KindPlatform, "finalize", a.buffer.EndOfStream())
}

// Abort discards every pending append without waiting for the in-flight one.
// Discarded appends receive ErrAborted. Repeated calls are no-ops.
func (a *Appender) Abort() {
	a.mu.Lock()

	if a.aborted {
		a.mu.Unlock()

		return
	}

	a.aborted = true
	close(a.abortCh)

	if a.current != nil {
		a.current.done <- ErrAborted
		a.current = nil
	}

	for _, req := range a.queue {
		req.done <- ErrAborted
	}

	a.queue = nil
	a.mu.Unlock()

	_ = a.buffer.Abort()
}

func (a *Appender) issueNextLocked() {
	if len(a.queue) == 0 {
		return
	}

	req := a.queue[0]
	a.queue = a.queue[1:]

	ready, err := a.buffer.Append(req.data)
	if err != nil {
		a.failLocked(req, err)

		return
	}

	a.current = req

	go a.await(req, ready)
}

func (a *Appender) await(req *appendRequest, ready <-chan error) {
	var err error

	select {
	case err = <-ready:
	case <-a.abortCh:
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.current != req {
		return
	}

	a.current = nil

	if err != nil {
		a.failLocked(req, err)

		return
	}

	req.done <- nil

	a.issueNextLocked()
}

// failLocked poisons the appender: req and every queued append receive the
// classified failure, as will any later submission.
func (a *Appender) failLocked(req *appendRequest, err error) {
	a.failure = core.Wrap(core.KindPlatform, "append", err)
	req.done <- a.failure

	for _, queued := range a.queue {
		queued.done <- a.failure
	}

	a.queue = nil
}
