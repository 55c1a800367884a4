package protocol

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// ErrUnknownEvent is returned when encoding a value that is not an Event variant.
var ErrUnknownEvent = errors.New("unknown event type")

// Marshal returns the JSON payload of event, without the "data:" prefix.
func Marshal(event Event) ([]byte, error) {
	var rec record

	switch typed := event.(type) {
	case Init:
		rec.ChunkID = ChunkIDInit
		rec.TotalChunks = typed.TotalChunks

		if typed.EstimatedDurationSeconds > 0 {
			estimate := typed.EstimatedDurationSeconds
			rec.EstimatedDuration = &estimate
		}
	case Chunk:
		index := typed.Index
		audio := base64.StdEncoding.EncodeToString(typed.Audio)
		rec.ChunkIndex = &index
		rec.ChunkID = typed.ID
		rec.Text = typed.SourceText
		rec.AudioData = &audio
	case ChunkError:
		index := typed.Index
		message := typed.Message
		rec.ChunkIndex = &index
		rec.Error = &message
	case Complete:
		rec.ChunkID = ChunkIDComplete
		rec.TotalChunks = typed.TotalChunks
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownEvent, event)
	}

	payload, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s: %w", event, err)
	}

	return payload, nil
}

// WriteEvent writes event to w as a "data: <json>" record followed by a blank line.
func WriteEvent(w io.Writer, event Event) error {
	payload, err := Marshal(event)
	if err != nil {
		return err
	}

	_, err = fmt.Fprintf(w, "data: %s\n\n", payload)
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", event, err)
	}

	return nil
}
