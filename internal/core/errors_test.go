package core_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/book-expert/tts-stream/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrap_KeepsOriginalKind(t *testing.T) {
	t.Parallel()

	inner := core.Wrap(core.KindTimeout, "open", core.ErrTimeout)
	outer := core.Wrap(core.KindTransport, "read", inner)

	assert.Equal(t, core.KindTimeout, core.KindOf(outer))
	require.ErrorIs(t, outer, core.ErrTimeout)
}

func TestWrap_Nil(t *testing.T) {
	t.Parallel()

	require.NoError(t, core.Wrap(core.KindProtocol, "op", nil))
}

func TestKindOf_Sentinels(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want core.Kind
	}{
		{"protocol", fmt.Errorf("%w: gap", core.ErrProtocolViolation), core.KindProtocol},
		{"incomplete stream", core.ErrIncompleteStream, core.KindProtocol},
		{"incomplete asset", core.ErrIncompleteAsset, core.KindIncomplete},
		{"deadline", context.DeadlineExceeded, core.KindTimeout},
		{"cancelled", context.Canceled, core.KindCancelled},
		{"platform", core.ErrPlatformUnsupported, core.KindPlatform},
		{"unknown", errors.New("boom"), core.KindUnknown},
		{"nil", nil, core.KindUnknown},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, testCase.want, core.KindOf(testCase.err))
		})
	}
}

func TestError_Message(t *testing.T) {
	t.Parallel()

	err := core.Wrap(core.KindPersistence, "upload", errors.New("bucket full"))

	assert.Equal(t, "persistence: upload: bucket full", err.Error())
}
