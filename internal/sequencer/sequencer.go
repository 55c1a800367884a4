// Package sequencer enforces the ordering invariants of the synthesis stream
// and fans each accepted event out to the registered sinks.
package sequencer

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/book-expert/logger"
	"github.com/book-expert/tts-stream/internal/core"
	"github.com/book-expert/tts-stream/internal/protocol"
)

// Error message formats.
const (
	errFmtDuplicateInit   = "%w: init received twice"
	errFmtLateInit        = "%w: init received after chunk %d"
	errFmtNegativeTotal   = "%w: negative total %d"
	errFmtOutOfOrder      = "%w: expected chunk %d, got %d"
	errFmtBeyondTotal     = "%w: chunk %d beyond announced total %d"
	errFmtCompleteCount   = "%w: complete reports %d chunks, received %d"
	errFmtCompleteInit    = "%w: complete reports %d chunks, init announced %d"
	errFmtEventAfterDone  = "%w: %s after complete"
	errFmtUnexpectedEvent = "%w: unexpected event %T"
)

// Log messages.
const (
	logChunkFailed    = "Chunk %d failed to synthesize: %s"
	logTrailingEvent  = "Ignoring %s received after complete; its data is lost"
	logTrailingFailed = "Stream after complete ended with error: %v"
)

// Sink receives accepted events in stream order. A non-nil error from any
// method aborts the session.
type Sink interface {
	Init(event protocol.Init) error
	Chunk(ctx context.Context, chunk protocol.Chunk) error
	ChunkFailed(ctx context.Context, failure protocol.ChunkError) error
	Complete(event protocol.Complete) error
}

// Source yields stream events; io.EOF marks the end of data.
type Source interface {
	Next() (protocol.Event, error)
}

// Sequencer validates the event sequence of one stream. It is single-use and
// not safe for concurrent use.
type Sequencer struct {
	sinks    []Sink
	log      *logger.Logger
	next     int
	total    int
	sawInit  bool
	complete bool
	failed   int
	trailing int
}

// New creates a Sequencer that fans out to sinks in the given order.
func New(log *logger.Logger, sinks ...Sink) *Sequencer {
	return &Sequencer{
		sinks: sinks,
		log:   log,
		total: -1,
	}
}

// Run consumes src until Complete, a fatal error or cancellation. Ending the
// data before Complete yields core.ErrIncompleteStream. Events are never
// dispatched once ctx is done. After Complete the rest of src is drained and
// every leftover event is logged and counted, never dispatched.
func (s *Sequencer) Run(ctx context.Context, src Source) error {
	for !s.complete {
		event, err := src.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return core.Wrap(core.KindProtocol, "sequence", core.ErrIncompleteStream)
			}

			return err
		}

		ctxErr := ctx.Err()
		if ctxErr != nil {
			return ctxErr
		}

		acceptErr := s.Accept(ctx, event)
		if acceptErr != nil {
			return acceptErr
		}
	}

	s.drain(ctx, src)

	return nil
}

// drain reads src to its end after Complete. Read errors end the drain
// without failing the stream.
func (s *Sequencer) drain(ctx context.Context, src Source) {
	for ctx.Err() == nil {
		event, err := src.Next()
		if err != nil {
			if !errors.Is(err, io.EOF) && ctx.Err() == nil {
				s.log.Warn(logTrailingFailed, err)
			}

			return
		}

		s.trailing++
		s.log.Warn(logTrailingEvent, describe(event))
	}
}

func describe(event protocol.Event) string {
	stringer, ok := event.(fmt.Stringer)
	if ok {
		return stringer.String()
	}

	return fmt.Sprintf("%T", event)
}

// Accept validates one event and forwards it to every sink.
func (s *Sequencer) Accept(ctx context.Context, event protocol.Event) error {
	if s.complete {
		return s.violation(errFmtEventAfterDone, core.ErrProtocolViolation, event)
	}

	switch typed := event.(type) {
	case protocol.Init:
		return s.acceptInit(typed)
	case protocol.Chunk:
		return s.acceptIndexed(typed.Index, func(sink Sink) error {
			return sink.Chunk(ctx, typed)
		})
	case protocol.ChunkError:
		s.failed++
		s.log.Warn(logChunkFailed, typed.Index, typed.Message)

		return s.acceptIndexed(typed.Index, func(sink Sink) error {
			return sink.ChunkFailed(ctx, typed)
		})
	case protocol.Complete:
		return s.acceptComplete(typed)
	default:
		return s.violation(errFmtUnexpectedEvent, core.ErrProtocolViolation, event)
	}
}

// Delivered reports how many indices have been accepted, failed ones included.
func (s *Sequencer) Delivered() int {
	return s.next
}

// Failed reports how many ChunkError events were accepted.
func (s *Sequencer) Failed() int {
	return s.failed
}

// Trailing reports how many events arrived after Complete.
func (s *Sequencer) Trailing() int {
	return s.trailing
}

// Completed reports whether the Complete event was accepted.
func (s *Sequencer) Completed() bool {
	return s.complete
}

func (s *Sequencer) acceptInit(event protocol.Init) error {
	if s.sawInit {
		return s.violation(errFmtDuplicateInit, core.ErrProtocolViolation)
	}

	if s.next > 0 {
		return s.violation(errFmtLateInit, core.ErrProtocolViolation, s.next-1)
	}

	if event.TotalChunks < 0 {
		return s.violation(errFmtNegativeTotal, core.ErrProtocolViolation, event.TotalChunks)
	}

	s.sawInit = true
	s.total = event.TotalChunks

	return s.fanOut(func(sink Sink) error { return sink.Init(event) })
}

func (s *Sequencer) acceptIndexed(index int, deliver func(Sink) error) error {
	if index != s.next {
		return s.violation(errFmtOutOfOrder, core.ErrProtocolViolation, s.next, index)
	}

	if s.total >= 0 && index >= s.total {
		return s.violation(errFmtBeyondTotal, core.ErrProtocolViolation, index, s.total)
	}

	s.next++

	return s.fanOut(deliver)
}

func (s *Sequencer) acceptComplete(event protocol.Complete) error {
	if event.TotalChunks != s.next {
		return s.violation(errFmtCompleteCount, core.ErrProtocolViolation, event.TotalChunks, s.next)
	}

	if s.total >= 0 && event.TotalChunks != s.total {
		return s.violation(errFmtCompleteInit, core.ErrProtocolViolation, event.TotalChunks, s.total)
	}

	s.complete = true

	return s.fanOut(func(sink Sink) error { return sink.Complete(event) })
}

func (s *Sequencer) fanOut(deliver func(Sink) error) error {
	for _, sink := range s.sinks {
		err := deliver(sink)
		if err != nil {
			return err
		}
	}

	return nil
}

func (s *Sequencer) violation(format string, args ...any) error {
	return core.Wrap(core.KindProtocol, "sequence", fmt.Errorf(format, args...))
}
