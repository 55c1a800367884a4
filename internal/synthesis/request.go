// Package synthesis opens incremental synthesis streams against the remote
// TTS service, over HTTP or WebSocket.
package synthesis

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/book-expert/tts-stream/internal/core"
)

// Encoding is the audio container the service produces.
type Encoding string

// Supported encodings.
const (
	EncodingMP3 Encoding = "mp3"
	EncodingWAV Encoding = "wav"
	EncodingOGG Encoding = "ogg"
	EncodingAAC Encoding = "aac"
)

// Tuning bounds.
const (
	MinRate      = 0.25
	MaxRate      = 4.0
	MinPitch     = -20.0
	MaxPitch     = 20.0
	MinVolume    = 0.0
	MaxVolume    = 2.0
	MinEmphasis  = 0.0
	MaxEmphasis  = 1.0
	MaxSilenceMs = 5000

	defaultRate   = 1.0
	defaultVolume = 1.0
)

// ErrInvalidRequest indicates a request that cannot be sent.
var ErrInvalidRequest = errors.New("invalid synthesis request")

// Error messages.
const (
	errTextCannotBeEmpty = "text cannot be empty"
	errFmtTextTooLong    = "text is %d characters, limit is %d"
	errFmtOutOfRange     = "%s %v outside [%v, %v]"
	errFmtUnknownFormat  = "unsupported encoding %q"
)

// ContentType returns the MIME type of the encoding.
func (e Encoding) ContentType() string {
	switch e {
	case EncodingWAV:
		return "audio/wav"
	case EncodingOGG:
		return "audio/ogg"
	case EncodingAAC:
		return "audio/aac"
	case EncodingMP3:
		return "audio/mpeg"
	default:
		return "application/octet-stream"
	}
}

// Extension returns the file extension for the encoding.
func (e Encoding) Extension() string {
	if e == "" {
		return string(EncodingMP3)
	}

	return string(e)
}

// Request is one synthesis job. It is immutable once a stream is opened.
type Request struct {
	// Text may carry lightweight markup; see package text.
	Text  string `json:"text"`
	Voice string `json:"voice,omitempty"`
	Style string `json:"style,omitempty"`

	// Zero values for Rate and Volume mean "service default" and are
	// replaced by 1 in WithDefaults.
	Rate     float64 `json:"rate"`
	Pitch    float64 `json:"pitch"`
	Volume   float64 `json:"volume"`
	Emphasis float64 `json:"emphasis"`

	Encoding Encoding `json:"format"`

	LeadingSilenceMs  int `json:"leadingSilenceMs,omitempty"`
	TrailingSilenceMs int `json:"trailingSilenceMs,omitempty"`
}

// WithDefaults returns a copy of r with unset fields filled in.
func (r Request) WithDefaults() Request {
	if r.Rate == 0 {
		r.Rate = defaultRate
	}

	if r.Volume == 0 {
		r.Volume = defaultVolume
	}

	if r.Encoding == "" {
		r.Encoding = EncodingMP3
	}

	return r
}

// Validate checks r against maxTextLength and the tuning bounds. A
// non-positive maxTextLength disables the length check. Call it on the
// result of WithDefaults.
func (r Request) Validate(maxTextLength int) error {
	if strings.TrimSpace(r.Text) == "" {
		return invalid(errors.New(errTextCannotBeEmpty))
	}

	length := len([]rune(r.Text))
	if maxTextLength > 0 && length > maxTextLength {
		return invalid(fmt.Errorf(errFmtTextTooLong, length, maxTextLength))
	}

	bounds := []struct {
		name     string
		value    float64
		min, max float64
	}{
		{"rate", r.Rate, MinRate, MaxRate},
		{"pitch", r.Pitch, MinPitch, MaxPitch},
		{"volume", r.Volume, MinVolume, MaxVolume},
		{"emphasis", r.Emphasis, MinEmphasis, MaxEmphasis},
		{"leading silence", float64(r.LeadingSilenceMs), 0, MaxSilenceMs},
		{"trailing silence", float64(r.TrailingSilenceMs), 0, MaxSilenceMs},
	}

	for _, bound := range bounds {
		if math.IsNaN(bound.value) || math.IsInf(bound.value, 0) ||
			bound.value < bound.min || bound.value > bound.max {
			return invalid(fmt.Errorf(errFmtOutOfRange, bound.name, bound.value, bound.min, bound.max))
		}
	}

	switch r.Encoding {
	case EncodingMP3, EncodingWAV, EncodingOGG, EncodingAAC:
	default:
		return invalid(fmt.Errorf(errFmtUnknownFormat, r.Encoding))
	}

	return nil
}

func invalid(err error) error {
	return core.Wrap(core.KindValidation, "validate request", fmt.Errorf("%w: %w", ErrInvalidRequest, err))
}
