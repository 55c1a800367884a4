package protocol

import (
	"bufio"
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/book-expert/logger"
)

const readBufferSize = 64 * 1024

// Log messages.
const (
	logMalformedRecord    = "Skipping malformed stream record: %v"
	logMissingChunkIndex  = "Skipping %s record without chunkIndex"
	logUnrecognizedRecord = "Skipping unrecognized stream record (chunkId=%q)"
	logUnprefixedLine     = "Skipping stream line without data prefix (%d bytes)"
)

var (
	dataPrefix   = []byte("data:")
	ssePrefixes  = [][]byte{[]byte(":"), []byte("event:"), []byte("id:"), []byte("retry:")}
	doneSentinel = []byte("[DONE]")
)

// Reader turns a byte stream into a lazy, single-pass sequence of events.
// It is not safe for concurrent use.
type Reader struct {
	src     *bufio.Reader
	log     *logger.Logger
	skipped int
	done    bool
}

// NewReader creates a Reader over src.
func NewReader(src io.Reader, log *logger.Logger) *Reader {
	return &Reader{
		src: bufio.NewReaderSize(src, readBufferSize),
		log: log,
	}
}

// Next returns the next decoded event. It returns io.EOF once the source is
// exhausted; whether a Complete event was seen is for the caller to judge.
// Any other error comes from the underlying source.
func (r *Reader) Next() (Event, error) {
	for {
		if r.done {
			return nil, io.EOF
		}

		line, readErr := r.src.ReadBytes('\n')
		if readErr != nil {
			if !errors.Is(readErr, io.EOF) {
				return nil, fmt.Errorf("read stream: %w", readErr)
			}

			// The final record may arrive without a terminating newline.
			r.done = true
		}

		event, ok := r.decodeLine(line)
		if ok {
			return event, nil
		}
	}
}

// Skipped reports how many records were dropped as malformed.
func (r *Reader) Skipped() int {
	return r.skipped
}

func (r *Reader) decodeLine(line []byte) (Event, bool) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return nil, false
	}

	if !bytes.HasPrefix(line, dataPrefix) {
		if !isSSEField(line) {
			r.log.Warn(logUnprefixedLine, len(line))
		}

		return nil, false
	}

	payload := bytes.TrimSpace(line[len(dataPrefix):])
	if len(payload) == 0 || bytes.Equal(payload, doneSentinel) {
		return nil, false
	}

	return r.decodePayload(payload)
}

func (r *Reader) decodePayload(payload []byte) (Event, bool) {
	var rec record

	err := json.Unmarshal(payload, &rec)
	if err != nil {
		r.skip(logMalformedRecord, err)

		return nil, false
	}

	switch {
	case rec.ChunkID == ChunkIDInit:
		event := Init{TotalChunks: rec.TotalChunks}
		if rec.EstimatedDuration != nil {
			event.EstimatedDurationSeconds = *rec.EstimatedDuration
		}

		return event, true

	case rec.ChunkID == ChunkIDComplete:
		return Complete{TotalChunks: rec.TotalChunks}, true

	case rec.Error != nil:
		if rec.ChunkIndex == nil {
			r.skip(logMissingChunkIndex, "error")

			return nil, false
		}

		return ChunkError{Index: *rec.ChunkIndex, Message: *rec.Error}, true

	case rec.AudioData != nil:
		if rec.ChunkIndex == nil {
			r.skip(logMissingChunkIndex, "chunk")

			return nil, false
		}

		return decodeChunk(rec), true

	default:
		r.skip(logUnrecognizedRecord, rec.ChunkID)

		return nil, false
	}
}

func (r *Reader) skip(format string, args ...any) {
	r.skipped++
	r.log.Warn(format, args...)
}

// decodeChunk turns an audio record into a Chunk. Audio that is not valid
// base64 degrades to a ChunkError for the same index so ordering is preserved.
func decodeChunk(rec record) Event {
	audio, err := base64.StdEncoding.DecodeString(*rec.AudioData)
	if err != nil {
		return ChunkError{
			Index:   *rec.ChunkIndex,
			Message: fmt.Sprintf("undecodable audio data: %v", err),
		}
	}

	return Chunk{
		Index:      *rec.ChunkIndex,
		ID:         rec.ChunkID,
		SourceText: rec.Text,
		Audio:      audio,
	}
}

func isSSEField(line []byte) bool {
	for _, prefix := range ssePrefixes {
		if bytes.HasPrefix(line, prefix) {
			return true
		}
	}

	return false
}
