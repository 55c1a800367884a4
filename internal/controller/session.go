package controller

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/book-expert/logger"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/book-expert/tts-stream/internal/asset"
	"github.com/book-expert/tts-stream/internal/observe"
	"github.com/book-expert/tts-stream/internal/playback"
	"github.com/book-expert/tts-stream/internal/protocol"
	"github.com/book-expert/tts-stream/internal/synthesis"
)

// Log messages.
const (
	logSessionStopped  = "Session %s stopped by caller"
	logSessionFailed   = "Session %s failed: %v"
	logSessionFinished = "Session %s finished (%s): %d ready, %d failed, total %d, %s"
	logPlaybackEnded   = "Session %s playback ended"
	logCloseStream     = "Failed to close synthesis stream for session %s: %v"
)

// Session is one synthesis run: the network stream, its playback and its
// accumulated asset. All methods are safe for concurrent use.
type Session struct {
	id         string
	request    synthesis.Request
	sourceText string
	startedAt  time.Time

	log     *logger.Logger
	metrics *observe.Metrics
	span    trace.Span

	playback    *playback.Session
	accumulator *asset.Accumulator
	lease       *playback.Lease
	cancel      context.CancelFunc

	terminal     chan struct{}
	terminalOnce sync.Once
	done         chan struct{}
	stopOnce     sync.Once

	mu            sync.Mutex
	chunks        []ChunkInfo
	total         int
	completed     int
	failed        int
	finishedAt    time.Time
	stopRequested bool
	listeners     []Listener
}

func newSession(id string, request synthesis.Request, sourceText string, log *logger.Logger, metrics *observe.Metrics) *Session {
	return &Session{
		id:          id,
		request:     request,
		sourceText:  sourceText,
		startedAt:   time.Now(),
		log:         log,
		metrics:     metrics,
		accumulator: asset.New(),
		terminal:    make(chan struct{}),
		done:        make(chan struct{}),
		total:       -1,
	}
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// Request returns the request sent to the service, after normalization.
func (s *Session) Request() synthesis.Request {
	return s.request
}

// SourceText returns the text as the caller submitted it.
func (s *Session) SourceText() string {
	return s.sourceText
}

// State returns the playback state.
func (s *Session) State() playback.State {
	return s.playback.State()
}

// Err returns the fatal error that ended the session, if any.
func (s *Session) Err() error {
	return s.playback.Err()
}

// Done is closed once the pipeline exited and playback reached a terminal state.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Progress returns a snapshot of the session's progress.
func (s *Session) Progress() Progress {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.progressLocked()
}

// Chunks returns a copy of the per-chunk status list.
func (s *Session) Chunks() []ChunkInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	chunks := make([]ChunkInfo, len(s.chunks))
	copy(chunks, s.chunks)

	return chunks
}

// Subscribe registers l for the session's events.
func (s *Session) Subscribe(l Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.listeners = append(s.listeners, l)
}

// Pause pauses playback; the stream keeps being read and accumulated.
func (s *Session) Pause() error {
	return s.playback.Pause()
}

// Resume resumes paused playback.
func (s *Session) Resume() error {
	return s.playback.Resume()
}

// Stop cancels the network read, discards pending appends and releases the
// sink. It is idempotent; what was accumulated so far is kept.
func (s *Session) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.stopRequested = true
		s.mu.Unlock()

		s.playback.Stop()
		s.cancel()
		s.releaseLease()

		s.log.Info(logSessionStopped, s.id)
	})
}

// Asset returns the combined audio, failing with core.ErrIncompleteAsset
// while any chunk is missing.
func (s *Session) Asset() ([]byte, error) {
	return s.accumulator.CombinedAsset()
}

// OpenAsset reopens the combined audio as a seekable file.
func (s *Session) OpenAsset() (io.ReadSeeker, error) {
	return s.accumulator.Open()
}

// Failures maps failed chunk indices to their messages.
func (s *Session) Failures() map[int]string {
	return s.accumulator.Failures()
}

func (s *Session) setLease(lease *playback.Lease) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lease = lease
}

func (s *Session) releaseLease() {
	s.mu.Lock()
	lease := s.lease
	s.mu.Unlock()

	if lease != nil {
		lease.Release()
	}
}

func (s *Session) progressLocked() Progress {
	end := s.finishedAt
	if end.IsZero() {
		end = time.Now()
	}

	return Progress{
		Completed: s.completed,
		Failed:    s.failed,
		Total:     s.total,
		Elapsed:   end.Sub(s.startedAt),
	}
}

func (s *Session) hooks() playback.Hooks {
	return playback.Hooks{
		OnStateChange: func(_, to playback.State) {
			if !to.Terminal() {
				return
			}

			if to == playback.StateStopped {
				s.markPlayed()
			}

			s.terminalOnce.Do(func() { close(s.terminal) })
		},
		OnPlaybackStart: s.playbackStarted,
		OnPlaybackEnd:   s.playbackEnded,
		OnError:         s.playbackFailed,
	}
}

func (s *Session) playbackStarted() {
	elapsed := time.Since(s.startedAt)
	s.metrics.RecordFirstAudio(context.Background(), elapsed)
	s.span.AddEvent("first_audio")

	for _, l := range s.snapshotListeners() {
		if l.OnPlaybackStart != nil {
			l.OnPlaybackStart()
		}
	}
}

// markPlayed promotes playing chunks once playback ran to the end. A stopped
// session keeps its marks.
func (s *Session) markPlayed() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopRequested {
		return
	}

	for i := range s.chunks {
		if s.chunks[i].Status == ChunkPlaying {
			s.chunks[i].Status = ChunkPlayed
		}
	}
}

func (s *Session) playbackEnded() {
	s.releaseLease()
	s.log.Info(logPlaybackEnded, s.id)

	for _, l := range s.snapshotListeners() {
		if l.OnPlaybackEnd != nil {
			l.OnPlaybackEnd()
		}
	}
}

func (s *Session) playbackFailed(err error) {
	s.releaseLease()
	s.log.Error(logSessionFailed, s.id, err)
	s.span.RecordError(err)
	s.span.SetStatus(codes.Error, err.Error())

	for _, l := range s.snapshotListeners() {
		if l.OnError != nil {
			l.OnError(err)
		}
	}
}

func (s *Session) snapshotListeners() []Listener {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]Listener(nil), s.listeners...)
}

func (s *Session) emitProgress() {
	s.mu.Lock()
	progress := s.progressLocked()
	listeners := append([]Listener(nil), s.listeners...)
	s.mu.Unlock()

	for _, l := range listeners {
		if l.OnProgress != nil {
			l.OnProgress(progress)
		}
	}
}

// run drives the stream through the sequencer and then waits for playback to
// reach a terminal state.
func (s *Session) run(ctx context.Context, transport synthesis.Transport) {
	defer s.finish()

	body, err := transport.Open(ctx, s.request)
	if err != nil {
		s.abort(ctx, err)

		return
	}

	closeBody := sync.OnceFunc(func() {
		closeErr := body.Close()
		if closeErr != nil {
			s.log.Warn(logCloseStream, s.id, closeErr)
		}
	})
	defer closeBody()

	// A peer that keeps the stream open after complete must not hold the
	// session once playback is over.
	go func() {
		<-s.terminal
		closeBody()
	}()

	err = s.pipeline().Run(ctx, protocol.NewReader(body, s.log))
	if err != nil {
		s.abort(ctx, err)
	}
}

// abort ends the session after a pipeline failure. A cancelled context means
// the caller stopped the session, which is not an error.
func (s *Session) abort(ctx context.Context, err error) {
	if ctx.Err() != nil {
		s.mu.Lock()
		s.stopRequested = true
		s.mu.Unlock()

		s.playback.Stop()

		return
	}

	s.playback.Fail(err)
}

func (s *Session) finish() {
	<-s.terminal

	err := s.playback.Err()

	s.mu.Lock()
	s.finishedAt = time.Now()
	progress := s.progressLocked()
	status := observe.StatusOK

	switch {
	case err != nil:
		status = observe.StatusError
	case s.stopRequested:
		status = observe.StatusCancelled
	}

	s.mu.Unlock()

	s.releaseLease()
	s.cancel()
	s.metrics.SessionFinished(context.Background(), status)
	s.span.End()

	s.log.Info(logSessionFinished, s.id, status, progress.Completed, progress.Failed, progress.Total, progress.Elapsed)

	close(s.done)
}
