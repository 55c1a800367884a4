package sequencer_test

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/book-expert/logger"
	"github.com/book-expert/tts-stream/internal/core"
	"github.com/book-expert/tts-stream/internal/protocol"
	"github.com/book-expert/tts-stream/internal/sequencer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errSinkRejected = errors.New("sink rejected chunk")

// recordingSink captures every call in order.
type recordingSink struct {
	calls    []string
	audio    [][]byte
	failOnIx int
}

func newRecordingSink() *recordingSink {
	return &recordingSink{failOnIx: -1}
}

func (r *recordingSink) Init(event protocol.Init) error {
	r.calls = append(r.calls, event.String())

	return nil
}

func (r *recordingSink) Chunk(_ context.Context, chunk protocol.Chunk) error {
	if chunk.Index == r.failOnIx {
		return errSinkRejected
	}

	r.calls = append(r.calls, chunk.String())
	r.audio = append(r.audio, chunk.Audio)

	return nil
}

func (r *recordingSink) ChunkFailed(_ context.Context, failure protocol.ChunkError) error {
	r.calls = append(r.calls, failure.String())

	return nil
}

func (r *recordingSink) Complete(event protocol.Complete) error {
	r.calls = append(r.calls, event.String())

	return nil
}

// sliceSource replays a fixed list of events, then io.EOF.
type sliceSource struct {
	events []protocol.Event
	pos    int
}

func (s *sliceSource) Next() (protocol.Event, error) {
	if s.pos >= len(s.events) {
		return nil, io.EOF
	}

	event := s.events[s.pos]
	s.pos++

	return event, nil
}

// failingSource replays events, then fails with err.
type failingSource struct {
	events []protocol.Event
	err    error
}

func (s *failingSource) Next() (protocol.Event, error) {
	if len(s.events) == 0 {
		return nil, s.err
	}

	event := s.events[0]
	s.events = s.events[1:]

	return event, nil
}

func newTestLogger(t *testing.T) *logger.Logger {
	t.Helper()

	log, err := logger.New(t.TempDir(), "sequencer-test.log")
	require.NoError(t, err)

	t.Cleanup(func() { _ = log.Close() })

	return log
}

func chunk(index int, audio ...byte) protocol.Chunk {
	return protocol.Chunk{Index: index, ID: "c", Audio: audio}
}

func TestRun_FansOutInOrderToEverySink(t *testing.T) {
	t.Parallel()

	first, second := newRecordingSink(), newRecordingSink()
	seq := sequencer.New(newTestLogger(t), first, second)

	src := &sliceSource{events: []protocol.Event{
		protocol.Init{TotalChunks: 3},
		chunk(0, 1),
		chunk(1, 2, 3),
		protocol.ChunkError{Index: 2, Message: "rate limit"},
		protocol.Complete{TotalChunks: 3},
	}}

	require.NoError(t, seq.Run(context.Background(), src))

	assert.Equal(t, first.calls, second.calls)
	assert.Equal(t, [][]byte{{1}, {2, 3}}, first.audio)
	assert.Len(t, first.calls, 5)
	assert.True(t, seq.Completed())
	assert.Equal(t, 3, seq.Delivered())
	assert.Equal(t, 1, seq.Failed())
}

func TestRun_InitIsOptional(t *testing.T) {
	t.Parallel()

	seq := sequencer.New(newTestLogger(t), newRecordingSink())
	src := &sliceSource{events: []protocol.Event{chunk(0, 1), protocol.Complete{TotalChunks: 1}}}

	require.NoError(t, seq.Run(context.Background(), src))
}

func TestRun_ProtocolViolations(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		events []protocol.Event
	}{
		{"gap", []protocol.Event{protocol.Init{TotalChunks: 3}, chunk(0), chunk(2)}},
		{"duplicate", []protocol.Event{chunk(0), chunk(0)}},
		{"duplicate after error", []protocol.Event{protocol.ChunkError{Index: 0}, chunk(0)}},
		{"second init", []protocol.Event{protocol.Init{TotalChunks: 1}, protocol.Init{TotalChunks: 1}}},
		{"late init", []protocol.Event{chunk(0), protocol.Init{TotalChunks: 2}}},
		{"negative total", []protocol.Event{protocol.Init{TotalChunks: -1}}},
		{"beyond total", []protocol.Event{protocol.Init{TotalChunks: 1}, chunk(0), chunk(1)}},
		{"complete short", []protocol.Event{chunk(0), chunk(1), protocol.Complete{TotalChunks: 1}}},
		{"complete disagrees with init", []protocol.Event{
			protocol.Init{TotalChunks: 2}, chunk(0), protocol.Complete{TotalChunks: 1},
		}},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			seq := sequencer.New(newTestLogger(t), newRecordingSink())
			err := seq.Run(context.Background(), &sliceSource{events: testCase.events})

			require.ErrorIs(t, err, core.ErrProtocolViolation)
			assert.Equal(t, core.KindProtocol, core.KindOf(err))
		})
	}
}

func TestRun_MissingCompleteIsIncompleteStream(t *testing.T) {
	t.Parallel()

	seq := sequencer.New(newTestLogger(t), newRecordingSink())
	err := seq.Run(context.Background(), &sliceSource{events: []protocol.Event{chunk(0)}})

	require.ErrorIs(t, err, core.ErrIncompleteStream)
	assert.Equal(t, core.KindProtocol, core.KindOf(err))
}

func TestAccept_EventAfterCompleteIsRejected(t *testing.T) {
	t.Parallel()

	seq := sequencer.New(newTestLogger(t), newRecordingSink())
	ctx := context.Background()

	require.NoError(t, seq.Accept(ctx, protocol.Complete{TotalChunks: 0}))
	require.ErrorIs(t, seq.Accept(ctx, chunk(0)), core.ErrProtocolViolation)
}

func TestRun_DrainsEventsAfterComplete(t *testing.T) {
	t.Parallel()

	sink := newRecordingSink()
	seq := sequencer.New(newTestLogger(t), sink)

	src := &sliceSource{events: []protocol.Event{
		chunk(0, 1),
		protocol.Complete{TotalChunks: 1},
		chunk(1, 2),
		protocol.Complete{TotalChunks: 2},
	}}

	require.NoError(t, seq.Run(context.Background(), src))

	assert.Equal(t, 2, seq.Trailing())
	assert.Equal(t, len(src.events), src.pos)
	assert.Equal(t, [][]byte{{1}}, sink.audio)
	assert.Len(t, sink.calls, 2)
	assert.Equal(t, 1, seq.Delivered())
}

func TestRun_TrailingReadErrorIsNotFatal(t *testing.T) {
	t.Parallel()

	seq := sequencer.New(newTestLogger(t), newRecordingSink())
	src := &failingSource{
		events: []protocol.Event{protocol.Complete{TotalChunks: 0}},
		err:    errors.New("connection reset"),
	}

	require.NoError(t, seq.Run(context.Background(), src))
	assert.True(t, seq.Completed())
	assert.Zero(t, seq.Trailing())
}

func TestRun_StopsDispatchingOnceCancelled(t *testing.T) {
	t.Parallel()

	sink := newRecordingSink()
	seq := sequencer.New(newTestLogger(t), sink)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := seq.Run(ctx, &sliceSource{events: []protocol.Event{chunk(0, 9), protocol.Complete{TotalChunks: 1}}})

	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, sink.calls)
}

func TestRun_SinkErrorAbortsBeforeLaterSinks(t *testing.T) {
	t.Parallel()

	failing, later := newRecordingSink(), newRecordingSink()
	failing.failOnIx = 1
	seq := sequencer.New(newTestLogger(t), failing, later)

	err := seq.Run(context.Background(), &sliceSource{events: []protocol.Event{
		chunk(0, 1), chunk(1, 2), protocol.Complete{TotalChunks: 2},
	}})

	require.ErrorIs(t, err, errSinkRejected)
	assert.Equal(t, [][]byte{{1}}, later.audio)
}
