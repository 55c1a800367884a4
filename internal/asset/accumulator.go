// Package asset accumulates synthesized chunks into one contiguous audio asset.
package asset

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/book-expert/tts-stream/internal/core"
	"github.com/book-expert/tts-stream/internal/protocol"
)

var (
	// ErrNegativeIndex indicates a segment recorded at an index below zero.
	ErrNegativeIndex = errors.New("segment index must be non-negative")
	// ErrTotalUnknown indicates the combined asset was requested before the chunk count was known.
	ErrTotalUnknown = errors.New("total chunk count unknown")
)

const errFmtMissing = "%w: %d of %d chunks missing (first missing index %d)"

// segment is one recorded chunk; failed segments are placeholders without audio.
type segment struct {
	audio   []byte
	failure string
	failed  bool
}

// Accumulator retains every chunk by index and builds the combined asset.
// It is safe for concurrent use.
type Accumulator struct {
	mu       sync.Mutex
	segments map[int]segment
	total    int
	combined []byte
}

// New creates an empty Accumulator with an unknown total.
func New() *Accumulator {
	return &Accumulator{
		segments: make(map[int]segment),
		total:    -1,
	}
}

// Record stores audio for index. Recording order does not matter.
func (a *Accumulator) Record(index int, audio []byte) error {
	if index < 0 {
		return fmt.Errorf("%w: %d", ErrNegativeIndex, index)
	}

	stored := make([]byte, len(audio))
	copy(stored, audio)

	a.mu.Lock()
	defer a.mu.Unlock()

	a.segments[index] = segment{audio: stored}
	a.combined = nil

	return nil
}

// RecordFailure stores a placeholder for an index whose synthesis failed.
func (a *Accumulator) RecordFailure(index int, message string) error {
	if index < 0 {
		return fmt.Errorf("%w: %d", ErrNegativeIndex, index)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	a.segments[index] = segment{failure: message, failed: true}
	a.combined = nil

	return nil
}

// SetTotal fixes the number of chunks the asset must contain.
func (a *Accumulator) SetTotal(total int) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.total = total
	a.combined = nil
}

// Total returns the expected chunk count, or -1 when unknown.
func (a *Accumulator) Total() int {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.total
}

// Succeeded returns how many indices hold audio.
func (a *Accumulator) Succeeded() int {
	a.mu.Lock()
	defer a.mu.Unlock()

	count := 0

	for _, seg := range a.segments {
		if !seg.failed {
			count++
		}
	}

	return count
}

// Missing returns the indices in [0, total) without audio, in ascending order.
func (a *Accumulator) Missing() []int {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.missingLocked()
}

// Failures returns the failure message recorded for each failed index.
func (a *Accumulator) Failures() map[int]string {
	a.mu.Lock()
	defer a.mu.Unlock()

	failures := make(map[int]string)

	for index, seg := range a.segments {
		if seg.failed {
			failures[index] = seg.failure
		}
	}

	return failures
}

// CombinedAsset concatenates every segment in index order. It fails with
// core.ErrIncompleteAsset when any index in [0, total) lacks audio. The
// concatenation is built once and reused until a new segment is recorded;
// each call returns a private copy of it.
func (a *Accumulator) CombinedAsset() ([]byte, error) {
	combined, err := a.combine()
	if err != nil {
		return nil, err
	}

	return bytes.Clone(combined), nil
}

// Open reopens the combined asset as a seekable reader.
func (a *Accumulator) Open() (io.ReadSeeker, error) {
	combined, err := a.combine()
	if err != nil {
		return nil, err
	}

	return bytes.NewReader(combined), nil
}

func (a *Accumulator) combine() ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.combined != nil {
		return a.combined, nil
	}

	if a.total < 0 {
		return nil, core.Wrap(core.KindIncomplete, "combine", ErrTotalUnknown)
	}

	missing := a.missingLocked()
	if len(missing) > 0 {
		return nil, core.Wrap(core.KindIncomplete, "combine",
			fmt.Errorf(errFmtMissing, core.ErrIncompleteAsset, len(missing), a.total, missing[0]))
	}

	size := 0
	for index := range a.total {
		size += len(a.segments[index].audio)
	}

	combined := make([]byte, 0, size)
	for index := range a.total {
		combined = append(combined, a.segments[index].audio...)
	}

	a.combined = combined

	return combined, nil
}

func (a *Accumulator) missingLocked() []int {
	total := a.total
	if total < 0 {
		total = a.highestIndexLocked() + 1
	}

	var missing []int

	for index := range total {
		seg, ok := a.segments[index]
		if !ok || seg.failed {
			missing = append(missing, index)
		}
	}

	return missing
}

func (a *Accumulator) highestIndexLocked() int {
	highest := -1

	for index := range a.segments {
		if index > highest {
			highest = index
		}
	}

	return highest
}

// Init implements sequencer.Sink.
func (a *Accumulator) Init(event protocol.Init) error {
	a.SetTotal(event.TotalChunks)

	return nil
}

// Chunk implements sequencer.Sink.
func (a *Accumulator) Chunk(_ context.Context, chunk protocol.Chunk) error {
	return a.Record(chunk.Index, chunk.Audio)
}

// ChunkFailed implements sequencer.Sink.
func (a *Accumulator) ChunkFailed(_ context.Context, failure protocol.ChunkError) error {
	return a.RecordFailure(failure.Index, failure.Message)
}

// Complete implements sequencer.Sink. The combined asset is built eagerly
// when every chunk succeeded.
func (a *Accumulator) Complete(event protocol.Complete) error {
	a.SetTotal(event.TotalChunks)

	_, _ = a.CombinedAsset()

	return nil
}
