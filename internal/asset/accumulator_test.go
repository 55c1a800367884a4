package asset_test

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/book-expert/tts-stream/internal/asset"
	"github.com/book-expert/tts-stream/internal/core"
	"github.com/book-expert/tts-stream/internal/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCombinedAsset_ConcatenatesInIndexOrder(t *testing.T) {
	t.Parallel()

	acc := asset.New()
	acc.SetTotal(3)

	require.NoError(t, acc.Record(2, []byte("ccc")))
	require.NoError(t, acc.Record(0, []byte("a")))
	require.NoError(t, acc.Record(1, []byte("bb")))

	combined, err := acc.CombinedAsset()
	require.NoError(t, err)
	assert.Equal(t, []byte("abbccc"), combined)
	assert.Equal(t, 3, acc.Succeeded())
	assert.Empty(t, acc.Missing())
}

func TestCombinedAsset_RejectsMissingIndex(t *testing.T) {
	t.Parallel()

	acc := asset.New()
	acc.SetTotal(3)

	require.NoError(t, acc.Record(0, []byte("a")))
	require.NoError(t, acc.RecordFailure(1, "rate limit"))
	require.NoError(t, acc.Record(2, []byte("c")))

	combined, err := acc.CombinedAsset()
	require.ErrorIs(t, err, core.ErrIncompleteAsset)
	assert.Equal(t, core.KindIncomplete, core.KindOf(err))
	assert.Nil(t, combined)
	assert.Equal(t, []int{1}, acc.Missing())
	assert.Equal(t, map[int]string{1: "rate limit"}, acc.Failures())
	assert.Equal(t, 2, acc.Succeeded())
}

func TestCombinedAsset_UnknownTotal(t *testing.T) {
	t.Parallel()

	acc := asset.New()
	require.NoError(t, acc.Record(0, []byte("a")))

	_, err := acc.CombinedAsset()
	require.ErrorIs(t, err, asset.ErrTotalUnknown)
}

func TestCombinedAsset_EagerAndLazyAreIdentical(t *testing.T) {
	t.Parallel()

	chunks := []protocol.Chunk{
		{Index: 0, Audio: []byte{0x10, 0x11}},
		{Index: 1, Audio: []byte{0x20}},
		{Index: 2, Audio: []byte{0x30, 0x31, 0x32}},
	}

	eager := asset.New()
	lazy := asset.New()
	ctx := context.Background()

	var harness bytes.Buffer

	for _, acc := range []*asset.Accumulator{eager, lazy} {
		require.NoError(t, acc.Init(protocol.Init{TotalChunks: len(chunks)}))

		for _, chunk := range chunks {
			require.NoError(t, acc.Chunk(ctx, chunk))
		}
	}

	for _, chunk := range chunks {
		harness.Write(chunk.Audio)
	}

	require.NoError(t, eager.Complete(protocol.Complete{TotalChunks: len(chunks)}))
	eagerBytes, err := eager.CombinedAsset()
	require.NoError(t, err)

	lazy.SetTotal(len(chunks))
	lazyBytes, err := lazy.CombinedAsset()
	require.NoError(t, err)

	assert.Equal(t, harness.Bytes(), eagerBytes)
	assert.Equal(t, eagerBytes, lazyBytes)
}

func TestRecord_CopiesInput(t *testing.T) {
	t.Parallel()

	acc := asset.New()
	acc.SetTotal(1)

	audio := []byte("abc")
	require.NoError(t, acc.Record(0, audio))
	audio[0] = 'z'

	combined, err := acc.CombinedAsset()
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), combined)
}

func TestCombinedAsset_ReturnsCopy(t *testing.T) {
	t.Parallel()

	acc := asset.New()
	acc.SetTotal(2)
	require.NoError(t, acc.Record(0, []byte("ab")))
	require.NoError(t, acc.Record(1, []byte("cd")))

	first, err := acc.CombinedAsset()
	require.NoError(t, err)

	first[0] = 'z'

	second, err := acc.CombinedAsset()
	require.NoError(t, err)
	assert.Equal(t, []byte("abcd"), second)

	reader, err := acc.Open()
	require.NoError(t, err)

	opened, err := io.ReadAll(reader)
	require.NoError(t, err)
	assert.Equal(t, []byte("abcd"), opened)
}

func TestRecord_NegativeIndex(t *testing.T) {
	t.Parallel()

	acc := asset.New()

	require.ErrorIs(t, acc.Record(-1, nil), asset.ErrNegativeIndex)
	require.ErrorIs(t, acc.RecordFailure(-1, ""), asset.ErrNegativeIndex)
}

func TestOpen_IsSeekable(t *testing.T) {
	t.Parallel()

	acc := asset.New()
	acc.SetTotal(2)
	require.NoError(t, acc.Record(0, []byte("head")))
	require.NoError(t, acc.Record(1, []byte("tail")))

	reader, err := acc.Open()
	require.NoError(t, err)

	offset, err := reader.Seek(4, io.SeekStart)
	require.NoError(t, err)
	assert.Equal(t, int64(4), offset)

	rest, err := io.ReadAll(reader)
	require.NoError(t, err)
	assert.Equal(t, []byte("tail"), rest)
}
