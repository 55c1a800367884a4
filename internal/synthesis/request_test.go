package synthesis_test

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/book-expert/tts-stream/internal/core"
	"github.com/book-expert/tts-stream/internal/synthesis"
)

func TestRequest_WithDefaults(t *testing.T) {
	t.Parallel()

	req := synthesis.Request{Text: testText}.WithDefaults()

	assert.InDelta(t, 1.0, req.Rate, 0)
	assert.InDelta(t, 1.0, req.Volume, 0)
	assert.Equal(t, synthesis.EncodingMP3, req.Encoding)

	custom := synthesis.Request{Text: testText, Rate: 1.5, Encoding: synthesis.EncodingWAV}.WithDefaults()
	assert.InDelta(t, 1.5, custom.Rate, 0)
	assert.Equal(t, synthesis.EncodingWAV, custom.Encoding)
}

func TestRequest_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		req     synthesis.Request
		wantErr string
	}{
		{name: "valid", req: synthesis.Request{Text: testText}},
		{name: "empty text", req: synthesis.Request{Text: ""}, wantErr: "text cannot be empty"},
		{name: "blank text", req: synthesis.Request{Text: " \n\t"}, wantErr: "text cannot be empty"},
		{name: "too long", req: synthesis.Request{Text: strings.Repeat("a", 11)}, wantErr: "limit is 10"},
		{name: "rate too low", req: synthesis.Request{Text: testText, Rate: 0.1}, wantErr: "rate"},
		{name: "rate too high", req: synthesis.Request{Text: testText, Rate: 4.5}, wantErr: "rate"},
		{name: "rate not a number", req: synthesis.Request{Text: testText, Rate: math.NaN()}, wantErr: "rate"},
		{name: "pitch infinite", req: synthesis.Request{Text: testText, Pitch: math.Inf(1)}, wantErr: "pitch"},
		{name: "volume negative infinity", req: synthesis.Request{Text: testText, Volume: math.Inf(-1)}, wantErr: "volume"},
		{name: "emphasis not a number", req: synthesis.Request{Text: testText, Emphasis: math.NaN()}, wantErr: "emphasis"},
		{name: "pitch", req: synthesis.Request{Text: testText, Pitch: -21}, wantErr: "pitch"},
		{name: "volume", req: synthesis.Request{Text: testText, Volume: 2.5}, wantErr: "volume"},
		{name: "emphasis", req: synthesis.Request{Text: testText, Emphasis: 1.5}, wantErr: "emphasis"},
		{name: "silence", req: synthesis.Request{Text: testText, TrailingSilenceMs: 6000}, wantErr: "trailing silence"},
		{name: "negative silence", req: synthesis.Request{Text: testText, LeadingSilenceMs: -1}, wantErr: "leading silence"},
		{name: "encoding", req: synthesis.Request{Text: testText, Encoding: "flac"}, wantErr: "unsupported encoding"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := tt.req.WithDefaults().Validate(10)
			if tt.wantErr == "" {
				require.NoError(t, err)

				return
			}

			require.ErrorIs(t, err, synthesis.ErrInvalidRequest)
			assert.Equal(t, core.KindValidation, core.KindOf(err))
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestRequest_ValidateCountsRunes(t *testing.T) {
	t.Parallel()

	req := synthesis.Request{Text: "héllo wörld"}.WithDefaults()

	require.NoError(t, req.Validate(11))
	require.Error(t, req.Validate(10))
	require.NoError(t, req.Validate(0))
}

func TestEncoding_ContentType(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "audio/mpeg", synthesis.EncodingMP3.ContentType())
	assert.Equal(t, "audio/wav", synthesis.EncodingWAV.ContentType())
	assert.Equal(t, "audio/ogg", synthesis.EncodingOGG.ContentType())
	assert.Equal(t, "audio/aac", synthesis.EncodingAAC.ContentType())
	assert.Equal(t, "mp3", synthesis.Encoding("").Extension())
	assert.Equal(t, "ogg", synthesis.EncodingOGG.Extension())
}
