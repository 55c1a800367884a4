package playback

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/book-expert/logger"
	"github.com/book-expert/tts-stream/internal/core"
)

// State is the playback state of a session.
type State int

const (
	// StateIdle means nothing has been appended yet.
	StateIdle State = iota
	// StateBuffering means audio was queued but the sink is not producing it yet.
	StateBuffering
	// StatePlaying means the sink is producing audio.
	StatePlaying
	// StatePaused means the user paused the sink.
	StatePaused
	// StateStopped means the session was stopped or played to the end.
	StateStopped
	// StateError is terminal; retrying requires a new session.
	StateError
)

// String returns the human-readable name of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateBuffering:
		return "buffering"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateStopped:
		return "stopped"
	case StateError:
		return "error"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Terminal reports whether no further transition can leave this state.
func (s State) Terminal() bool {
	return s == StateStopped || s == StateError
}

var (
	// ErrNotPlaying indicates Pause outside the playing state.
	ErrNotPlaying = errors.New("session is not playing")
	// ErrNotPaused indicates Resume outside the paused state.
	ErrNotPaused = errors.New("session is not paused")
)

// Log messages.
const (
	logStateChange     = "Playback %s -> %s"
	logReleaseFailed   = "Failed to release playback sink: %v"
	logFinalizeFailed  = "Best-effort finalize after stop failed: %v"
	logPlaybackStarted = "Playback started after %d appended chunk(s)"
)

// Hooks report session events in the order they happen. OnStateChange runs
// with the session lock held and must not call back into the session; the
// other hooks run outside it.
type Hooks struct {
	OnStateChange   func(from, to State)
	OnPlaybackStart func()
	OnPlaybackEnd   func()
	OnError         func(err error)
}

// Session owns one buffer/sink pair and the playback state machine.
// It is safe for concurrent use.
type Session struct {
	mu          sync.Mutex
	state       State
	err         error
	appended    int
	appender    *Appender
	sink        Sink
	hooks       Hooks
	log         *logger.Logger
	releaseOnce sync.Once
	watchOnce   sync.Once
}

// NewSession creates an idle session over buffer and sink.
func NewSession(buffer Buffer, sink Sink, log *logger.Logger, hooks Hooks) *Session {
	return &Session{
		state:    StateIdle,
		appender: NewAppender(buffer),
		sink:     sink,
		hooks:    hooks,
		log:      log,
	}
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.state
}

// Err returns the error that moved the session to StateError, if any.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.err
}

// Appended returns how many chunks were absorbed by the buffer.
func (s *Session) Appended() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.appended
}

// Append queues one chunk and waits until the buffer absorbed it. After the
// first successful append, playback is requested immediately.
func (s *Session) Append(ctx context.Context, data []byte) error {
	s.mu.Lock()

	if s.state.Terminal() {
		s.mu.Unlock()

		return core.ErrSessionClosed
	}

	if s.state == StateIdle {
		s.transitionLocked(StateBuffering)
	}

	s.mu.Unlock()

	err := s.appender.Append(ctx, data)
	if err != nil {
		if errors.Is(err, ErrAborted) || errors.Is(err, ErrAppenderClosed) || ctx.Err() != nil {
			return err
		}

		s.Fail(err)

		return err
	}

	s.mu.Lock()
	s.appended++
	first := s.appended == 1
	s.mu.Unlock()

	if first {
		return s.startPlayback(ctx)
	}

	return nil
}

// Finish finalizes the buffer once the stream completed. A session that never
// received audio ends immediately.
func (s *Session) Finish() error {
	err := s.appender.Finalize()
	if err != nil {
		s.Fail(err)

		return err
	}

	s.mu.Lock()
	noAudio := s.state == StateIdle
	s.mu.Unlock()

	if noAudio {
		s.end()
	}

	return nil
}

// Pause pauses the sink. The append pipeline keeps running.
func (s *Session) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StatePaused:
		return nil
	case StatePlaying:
	default:
		return fmt.Errorf("%w: %s", ErrNotPlaying, s.state)
	}

	err := s.sink.Pause()
	if err != nil {
		return core.Wrap(core.KindPlatform, "pause", err)
	}

	s.transitionLocked(StatePaused)

	return nil
}

// Resume resumes a paused sink.
func (s *Session) Resume() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StatePlaying:
		return nil
	case StatePaused:
	default:
		return fmt.Errorf("%w: %s", ErrNotPaused, s.state)
	}

	err := s.sink.Play()
	if err != nil {
		return core.Wrap(core.KindPlatform, "resume", err)
	}

	s.transitionLocked(StatePlaying)

	return nil
}

// Stop discards pending appends and releases the sink. It is idempotent and
// a no-op on a session that already reached a terminal state.
func (s *Session) Stop() {
	s.mu.Lock()

	if s.state.Terminal() {
		s.mu.Unlock()

		return
	}

	s.transitionLocked(StateStopped)
	s.mu.Unlock()

	s.release()
}

// Fail moves the session to StateError, releases the sink and reports err.
// A session already in a terminal state ignores the failure.
func (s *Session) Fail(err error) {
	s.mu.Lock()

	if s.state.Terminal() {
		s.mu.Unlock()

		return
	}

	s.err = err
	s.transitionLocked(StateError)
	s.mu.Unlock()

	s.release()

	if s.hooks.OnError != nil {
		s.hooks.OnError(err)
	}
}

func (s *Session) startPlayback(ctx context.Context) error {
	select {
	case <-s.sink.CanPlay():
	case <-ctx.Done():
		return ctx.Err()
	}

	s.mu.Lock()

	if s.state != StateBuffering {
		terminal := s.state.Terminal()
		s.mu.Unlock()

		if terminal {
			return core.ErrSessionClosed
		}

		return nil
	}

	playErr := s.sink.Play()
	if playErr != nil {
		s.mu.Unlock()

		err := core.Wrap(core.KindPlatform, "play", playErr)
		s.Fail(err)

		return err
	}

	s.transitionLocked(StatePlaying)
	appended := s.appended
	s.mu.Unlock()

	s.log.Info(logPlaybackStarted, appended)

	if s.hooks.OnPlaybackStart != nil {
		s.hooks.OnPlaybackStart()
	}

	s.watchOnce.Do(func() { go s.watchEnd() })

	return nil
}

func (s *Session) watchEnd() {
	err := <-s.sink.Ended()
	if err != nil {
		s.Fail(core.Wrap(core.KindPlatform, "sink", err))

		return
	}

	s.end()
}

func (s *Session) end() {
	s.mu.Lock()

	if s.state.Terminal() {
		s.mu.Unlock()

		return
	}

	s.transitionLocked(StateStopped)
	s.mu.Unlock()

	s.release()

	if s.hooks.OnPlaybackEnd != nil {
		s.hooks.OnPlaybackEnd()
	}
}

// release tears down the buffer and sink exactly once.
func (s *Session) release() {
	s.releaseOnce.Do(func() {
		s.appender.Abort()

		finalizeErr := s.appender.Finalize()
		if finalizeErr != nil {
			s.log.Warn(logFinalizeFailed, finalizeErr)
		}

		closeErr := s.sink.Close()
		if closeErr != nil {
			s.log.Warn(logReleaseFailed, closeErr)
		}
	})
}

func (s *Session) transitionLocked(next State) {
	previous := s.state
	s.state = next

	s.log.Info(logStateChange, previous, next)

	if s.hooks.OnStateChange != nil {
		s.hooks.OnStateChange(previous, next)
	}
}
