package synthesis_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/book-expert/tts-stream/internal/core"
	"github.com/book-expert/tts-stream/internal/protocol"
	"github.com/book-expert/tts-stream/internal/synthesis"
)

func startWSServer(t *testing.T, handler func(ctx context.Context, conn *websocket.Conn)) *httptest.Server {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/synthesize/stream" {
			http.NotFound(w, r)

			return
		}

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
		if err != nil {
			return
		}

		defer conn.CloseNow()

		handler(r.Context(), conn)
	}))
	t.Cleanup(server.Close)

	return server
}

func TestWSClient_Open_StreamsOneRecordPerMessage(t *testing.T) {
	t.Parallel()

	requests := make(chan synthesis.Request, 1)

	server := startWSServer(t, func(ctx context.Context, conn *websocket.Conn) {
		_, data, err := conn.Read(ctx)
		if !assert.NoError(t, err) {
			return
		}

		var req synthesis.Request
		assert.NoError(t, json.Unmarshal(data, &req))
		requests <- req

		for _, record := range []string{
			`data: {"chunkId":"init","totalChunks":1}`,
			`data: {"chunkIndex":0,"chunkId":"c0","text":"Hello","audioData":"AAEC"}`,
			`data: {"chunkId":"complete","totalChunks":1}`,
		} {
			if conn.Write(ctx, websocket.MessageText, []byte(record)) != nil {
				return
			}
		}

		_ = conn.Close(websocket.StatusNormalClosure, "done")
	})

	log := newTestLogger(t)
	client := synthesis.NewWSClient(server.URL, time.Second, log)

	body, err := client.Open(context.Background(), synthesis.Request{Text: testText, Voice: "narrator"}.WithDefaults())
	require.NoError(t, err)

	t.Cleanup(func() { _ = body.Close() })

	events := readAllEvents(t, body, log)
	require.Len(t, events, 3)
	assert.Equal(t, protocol.Init{TotalChunks: 1}, events[0])
	assert.Equal(t, protocol.Chunk{Index: 0, ID: "c0", SourceText: "Hello", Audio: []byte{0, 1, 2}}, events[1])
	assert.Equal(t, protocol.Complete{TotalChunks: 1}, events[2])

	req := <-requests
	assert.Equal(t, testText, req.Text)
	assert.Equal(t, "narrator", req.Voice)
}

func TestWSClient_Open_TimesOutBeforeFirstMessage(t *testing.T) {
	t.Parallel()

	server := startWSServer(t, func(ctx context.Context, conn *websocket.Conn) {
		_, _, _ = conn.Read(ctx)
		_, _, _ = conn.Read(ctx)
	})

	client := synthesis.NewWSClient(server.URL, testTimeout, newTestLogger(t))

	body, err := client.Open(context.Background(), synthesis.Request{Text: testText}.WithDefaults())
	require.NoError(t, err)

	t.Cleanup(func() { _ = body.Close() })

	_, err = io.ReadAll(body)
	require.ErrorIs(t, err, core.ErrTimeout)
	assert.Equal(t, core.KindTimeout, core.KindOf(err))
}

func TestWSClient_Open_AbnormalCloseIsTransportError(t *testing.T) {
	t.Parallel()

	server := startWSServer(t, func(ctx context.Context, conn *websocket.Conn) {
		_, _, _ = conn.Read(ctx)
		_ = conn.Write(ctx, websocket.MessageText, []byte(`data: {"chunkId":"init","totalChunks":2}`))
		_ = conn.Close(websocket.StatusInternalError, "synthesis crashed")
	})

	client := synthesis.NewWSClient(server.URL, time.Second, newTestLogger(t))

	body, err := client.Open(context.Background(), synthesis.Request{Text: testText}.WithDefaults())
	require.NoError(t, err)

	t.Cleanup(func() { _ = body.Close() })

	data, err := io.ReadAll(body)
	require.Error(t, err)
	assert.Equal(t, core.KindTransport, core.KindOf(err))
	assert.True(t, strings.HasPrefix(string(data), "data: "))
}

func TestWSClient_Open_Unreachable(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	client := synthesis.NewWSClient(url, time.Second, newTestLogger(t))

	_, err := client.Open(context.Background(), synthesis.Request{Text: testText}.WithDefaults())
	require.Error(t, err)
	assert.Equal(t, core.KindTransport, core.KindOf(err))
}
