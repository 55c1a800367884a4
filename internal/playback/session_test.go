package playback_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/book-expert/tts-stream/internal/core"
	"github.com/book-expert/tts-stream/internal/playback"
)

type hookRecorder struct {
	mu          sync.Mutex
	transitions []playback.State
	started     int
	ended       int
	errs        []error
}

func (r *hookRecorder) hooks() playback.Hooks {
	return playback.Hooks{
		OnStateChange: func(_, to playback.State) {
			r.mu.Lock()
			defer r.mu.Unlock()

			r.transitions = append(r.transitions, to)
		},
		OnPlaybackStart: func() {
			r.mu.Lock()
			defer r.mu.Unlock()

			r.started++
		},
		OnPlaybackEnd: func() {
			r.mu.Lock()
			defer r.mu.Unlock()

			r.ended++
		},
		OnError: func(err error) {
			r.mu.Lock()
			defer r.mu.Unlock()

			r.errs = append(r.errs, err)
		},
	}
}

func (r *hookRecorder) snapshot() (transitions []playback.State, started, ended int, errs []error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]playback.State{}, r.transitions...), r.started, r.ended, append([]error{}, r.errs...)
}

func newPlayingSession(t *testing.T) (*playback.Session, *fakeSink, *hookRecorder) {
	t.Helper()

	buffer := &fakeBuffer{autoReady: true}
	sink := newFakeSink(true)
	recorder := &hookRecorder{}

	session := playback.NewSession(buffer, sink, newTestLogger(t), recorder.hooks())

	require.NoError(t, session.Append(context.Background(), []byte("chunk-0")))
	require.Equal(t, playback.StatePlaying, session.State())

	return session, sink, recorder
}

func TestSession_PlaysAfterFirstAppend(t *testing.T) {
	t.Parallel()

	session, sink, recorder := newPlayingSession(t)

	play, _, _ := sink.counts()
	transitions, started, _, _ := recorder.snapshot()

	assert.Equal(t, 1, play)
	assert.Equal(t, 1, started)
	assert.Equal(t, []playback.State{playback.StateBuffering, playback.StatePlaying}, transitions)
	assert.Equal(t, 1, session.Appended())

	require.NoError(t, session.Append(context.Background(), []byte("chunk-1")))

	play, _, _ = sink.counts()
	_, started, _, _ = recorder.snapshot()

	assert.Equal(t, 1, play)
	assert.Equal(t, 1, started)
	assert.Equal(t, 2, session.Appended())
}

func TestSession_WaitsForSinkReadiness(t *testing.T) {
	t.Parallel()

	buffer := &fakeBuffer{autoReady: true}
	sink := newFakeSink(false)
	session := playback.NewSession(buffer, sink, newTestLogger(t), playback.Hooks{})

	done := make(chan error, 1)

	go func() { done <- session.Append(context.Background(), []byte("chunk-0")) }()

	require.Eventually(t, func() bool { return session.Appended() == 1 }, waitTimeout, time.Millisecond)
	assert.Equal(t, playback.StateBuffering, session.State())

	close(sink.canPlay)

	require.NoError(t, receive(t, done))
	assert.Equal(t, playback.StatePlaying, session.State())
}

func TestSession_PauseResume(t *testing.T) {
	t.Parallel()

	session, sink, _ := newPlayingSession(t)

	require.NoError(t, session.Pause())
	require.NoError(t, session.Pause())
	assert.Equal(t, playback.StatePaused, session.State())

	require.NoError(t, session.Resume())
	require.NoError(t, session.Resume())
	assert.Equal(t, playback.StatePlaying, session.State())

	play, pause, _ := sink.counts()
	assert.Equal(t, 2, play)
	assert.Equal(t, 1, pause)
}

func TestSession_PauseBeforePlayingFails(t *testing.T) {
	t.Parallel()

	session := playback.NewSession(&fakeBuffer{}, newFakeSink(true), newTestLogger(t), playback.Hooks{})

	require.ErrorIs(t, session.Pause(), playback.ErrNotPlaying)
	require.ErrorIs(t, session.Resume(), playback.ErrNotPaused)
}

func TestSession_StopIsIdempotentAndClosesOnce(t *testing.T) {
	t.Parallel()

	session, sink, recorder := newPlayingSession(t)

	session.Stop()
	session.Stop()

	_, _, closed := sink.counts()
	assert.Equal(t, 1, closed)
	assert.Equal(t, playback.StateStopped, session.State())

	_, _, ended, errs := recorder.snapshot()
	assert.Equal(t, 0, ended)
	assert.Empty(t, errs)

	require.ErrorIs(t, session.Append(context.Background(), []byte("late")), core.ErrSessionClosed)
}

func TestSession_EndsWhenSinkDrains(t *testing.T) {
	t.Parallel()

	session, sink, recorder := newPlayingSession(t)

	require.NoError(t, session.Finish())

	sink.ended <- nil

	require.Eventually(t, func() bool { return session.State() == playback.StateStopped }, waitTimeout, time.Millisecond)
	require.Eventually(t, func() bool {
		_, _, ended, _ := recorder.snapshot()

		return ended == 1
	}, waitTimeout, time.Millisecond)

	_, _, closed := sink.counts()
	assert.Equal(t, 1, closed)
}

func TestSession_SinkErrorIsTerminal(t *testing.T) {
	t.Parallel()

	session, sink, recorder := newPlayingSession(t)

	sink.ended <- errors.New("device lost")

	require.Eventually(t, func() bool { return session.State() == playback.StateError }, waitTimeout, time.Millisecond)
	assert.Equal(t, core.KindPlatform, core.KindOf(session.Err()))

	_, _, _, errs := recorder.snapshot()
	require.Len(t, errs, 1)

	session.Stop()
	assert.Equal(t, playback.StateError, session.State())
}

func TestSession_AppendFailureMovesToError(t *testing.T) {
	t.Parallel()

	buffer := &fakeBuffer{appendErr: errors.New("unsupported codec")}
	sink := newFakeSink(true)
	session := playback.NewSession(buffer, sink, newTestLogger(t), playback.Hooks{})

	err := session.Append(context.Background(), []byte("chunk-0"))
	require.Error(t, err)

	assert.Equal(t, playback.StateError, session.State())
	assert.Equal(t, core.KindPlatform, core.KindOf(session.Err()))

	_, _, closed := sink.counts()
	assert.Equal(t, 1, closed)
}

func TestSession_FinishWithoutAudioEnds(t *testing.T) {
	t.Parallel()

	buffer := &fakeBuffer{}
	recorder := &hookRecorder{}
	session := playback.NewSession(buffer, newFakeSink(true), newTestLogger(t), recorder.hooks())

	require.NoError(t, session.Finish())

	assert.Equal(t, playback.StateStopped, session.State())
	assert.Equal(t, 1, buffer.eos())

	_, started, ended, _ := recorder.snapshot()
	assert.Equal(t, 0, started)
	assert.Equal(t, 1, ended)
}

func TestSession_StopDuringPendingAppend(t *testing.T) {
	t.Parallel()

	buffer := &fakeBuffer{}
	sink := newFakeSink(true)
	session := playback.NewSession(buffer, sink, newTestLogger(t), playback.Hooks{})

	done := make(chan error, 1)

	go func() { done <- session.Append(context.Background(), []byte("chunk-0")) }()

	require.Eventually(t, func() bool { return buffer.issued() == 1 }, waitTimeout, time.Millisecond)

	session.Stop()

	require.ErrorIs(t, receive(t, done), playback.ErrAborted)
	assert.Equal(t, playback.StateStopped, session.State())
}
