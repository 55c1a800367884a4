package controller

import (
	"fmt"
	"time"
)

// ChunkStatus is the lifecycle of one chunk as the caller sees it.
// Playing and Played are display marks on top of Ready.
type ChunkStatus int

const (
	// ChunkPending has not been reached by the stream yet.
	ChunkPending ChunkStatus = iota
	// ChunkGenerating is the next index the stream will deliver.
	ChunkGenerating
	// ChunkReady carries audio.
	ChunkReady
	// ChunkFailed was reported as a per-chunk synthesis failure.
	ChunkFailed
	// ChunkPlaying was absorbed by the playback buffer while playing.
	ChunkPlaying
	// ChunkPlayed was played to the end.
	ChunkPlayed
)

// String returns the human-readable name of the status.
func (c ChunkStatus) String() string {
	switch c {
	case ChunkPending:
		return "pending"
	case ChunkGenerating:
		return "generating"
	case ChunkReady:
		return "ready"
	case ChunkFailed:
		return "error"
	case ChunkPlaying:
		return "playing"
	case ChunkPlayed:
		return "played"
	default:
		return fmt.Sprintf("chunk-status(%d)", int(c))
	}
}

// ChunkInfo describes one chunk of a session.
type ChunkInfo struct {
	Index      int
	ID         string
	SourceText string
	Status     ChunkStatus
	// Message is the synthesis failure for ChunkFailed.
	Message string
	// Size is the decoded audio size in bytes.
	Size int
}

// Progress is a snapshot of how far a session got.
type Progress struct {
	// Completed counts chunks that carry audio.
	Completed int
	// Failed counts chunks reported as failures.
	Failed int
	// Total is -1 until the stream announces it.
	Total   int
	Elapsed time.Duration
}

// Listener receives session events. Nil fields are skipped. Callbacks run on
// the session's goroutines and must not block.
type Listener struct {
	OnPlaybackStart func()
	OnPlaybackEnd   func()
	OnError         func(err error)
	OnProgress      func(progress Progress)
}
