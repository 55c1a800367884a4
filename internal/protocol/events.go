// Package protocol decodes the incremental synthesis stream into typed events.
//
// The stream is a sequence of newline-delimited records of the form
// "data: <json>". Records may be split across transport reads; the Reader
// reassembles them before decoding.
package protocol

import "fmt"

// Reserved chunk identifiers that mark the stream envelope.
const (
	ChunkIDInit     = "init"
	ChunkIDComplete = "complete"
)

// Event is one decoded stream record. It is one of Init, Chunk, ChunkError or Complete.
type Event interface {
	isEvent()
	fmt.Stringer
}

// Init opens the stream. It is emitted at most once, first.
type Init struct {
	TotalChunks int
	// EstimatedDurationSeconds is zero when the server gave no estimate.
	EstimatedDurationSeconds float64
}

// Chunk carries the audio for one contiguous slice of the requested text.
type Chunk struct {
	Index      int
	ID         string
	SourceText string
	Audio      []byte
}

// ChunkError replaces a Chunk whose synthesis failed. It does not end the stream.
type ChunkError struct {
	Index   int
	Message string
}

// Complete closes a successful stream. It is emitted exactly once, last.
type Complete struct {
	TotalChunks int
}

func (Init) isEvent()       {}
func (Chunk) isEvent()      {}
func (ChunkError) isEvent() {}
func (Complete) isEvent()   {}

func (e Init) String() string {
	return fmt.Sprintf("init(total=%d)", e.TotalChunks)
}

func (e Chunk) String() string {
	return fmt.Sprintf("chunk(index=%d, id=%s, bytes=%d)", e.Index, e.ID, len(e.Audio))
}

func (e ChunkError) String() string {
	return fmt.Sprintf("chunk-error(index=%d, message=%q)", e.Index, e.Message)
}

func (e Complete) String() string {
	return fmt.Sprintf("complete(total=%d)", e.TotalChunks)
}

// record is the wire form shared by every event variant.
type record struct {
	ChunkIndex        *int     `json:"chunkIndex,omitempty"`
	ChunkID           string   `json:"chunkId,omitempty"`
	Text              string   `json:"text,omitempty"`
	AudioData         *string  `json:"audioData,omitempty"`
	Error             *string  `json:"error,omitempty"`
	TotalChunks       int      `json:"totalChunks,omitempty"`
	EstimatedDuration *float64 `json:"estimatedDuration,omitempty"`
}
