package controller

import (
	"context"
	"time"

	"github.com/book-expert/tts-stream/internal/observe"
	"github.com/book-expert/tts-stream/internal/playback"
	"github.com/book-expert/tts-stream/internal/protocol"
	"github.com/book-expert/tts-stream/internal/sequencer"
)

// pipeline wires the sequencer sinks. The accumulator comes first so bytes
// are retained even when a later playback append fails; the tracker runs
// before playback so progress is reported while an append is pending.
func (s *Session) pipeline() *sequencer.Sequencer {
	return sequencer.New(s.log, s.accumulator, &statusTracker{session: s}, &playbackFeeder{session: s})
}

// statusTracker maintains the per-chunk status list and progress.
type statusTracker struct {
	session *Session
}

func (t *statusTracker) Init(event protocol.Init) error {
	s := t.session

	s.mu.Lock()
	s.total = event.TotalChunks
	s.ensureLocked(event.TotalChunks - 1)
	s.markGeneratingLocked(0)
	s.mu.Unlock()

	s.span.AddEvent("init")
	s.emitProgress()

	return nil
}

func (t *statusTracker) Chunk(ctx context.Context, chunk protocol.Chunk) error {
	s := t.session

	s.mu.Lock()
	s.ensureLocked(chunk.Index)
	s.chunks[chunk.Index] = ChunkInfo{
		Index:      chunk.Index,
		ID:         chunk.ID,
		SourceText: chunk.SourceText,
		Status:     ChunkReady,
		Size:       len(chunk.Audio),
	}
	s.completed++
	s.markGeneratingLocked(chunk.Index + 1)
	s.mu.Unlock()

	s.metrics.RecordChunk(ctx, observe.ChunkReady, len(chunk.Audio))
	s.emitProgress()

	return nil
}

func (t *statusTracker) ChunkFailed(ctx context.Context, failure protocol.ChunkError) error {
	s := t.session

	s.mu.Lock()
	s.ensureLocked(failure.Index)
	s.chunks[failure.Index] = ChunkInfo{
		Index:   failure.Index,
		Status:  ChunkFailed,
		Message: failure.Message,
	}
	s.failed++
	s.markGeneratingLocked(failure.Index + 1)
	s.mu.Unlock()

	s.metrics.RecordChunk(ctx, observe.ChunkFailed, 0)
	s.emitProgress()

	return nil
}

func (t *statusTracker) Complete(event protocol.Complete) error {
	s := t.session

	s.mu.Lock()
	s.total = event.TotalChunks
	s.mu.Unlock()

	s.span.AddEvent("complete")
	s.emitProgress()

	return nil
}

// ensureLocked grows the chunk list so index is addressable.
func (s *Session) ensureLocked(index int) {
	for len(s.chunks) <= index {
		s.chunks = append(s.chunks, ChunkInfo{Index: len(s.chunks), Status: ChunkPending})
	}
}

func (s *Session) markGeneratingLocked(index int) {
	if index < len(s.chunks) && s.chunks[index].Status == ChunkPending {
		s.chunks[index].Status = ChunkGenerating
	}
}

// playbackFeeder appends each chunk to the playback session in order and
// finalizes the buffer on Complete.
type playbackFeeder struct {
	session *Session
}

func (f *playbackFeeder) Init(protocol.Init) error {
	return nil
}

func (f *playbackFeeder) Chunk(ctx context.Context, chunk protocol.Chunk) error {
	s := f.session
	started := time.Now()

	err := s.playback.Append(ctx, chunk.Audio)
	if err != nil {
		return err
	}

	s.metrics.RecordAppend(ctx, time.Since(started))

	if s.playback.State() == playback.StatePlaying {
		s.mu.Lock()
		if s.chunks[chunk.Index].Status == ChunkReady {
			s.chunks[chunk.Index].Status = ChunkPlaying
		}
		s.mu.Unlock()
	}

	return nil
}

func (f *playbackFeeder) ChunkFailed(context.Context, protocol.ChunkError) error {
	return nil
}

func (f *playbackFeeder) Complete(protocol.Complete) error {
	return f.session.playback.Finish()
}
