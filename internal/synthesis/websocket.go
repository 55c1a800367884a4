package synthesis

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/book-expert/logger"
	"github.com/coder/websocket"

	"github.com/book-expert/tts-stream/internal/core"
)

// maxMessageSize bounds one record; audio chunks are base64 inside JSON.
const maxMessageSize = 16 << 20

// WSClient opens synthesis streams over a WebSocket. The request is sent as
// the first text message; every message received afterwards is one record.
type WSClient struct {
	url         string
	openTimeout time.Duration
	log         *logger.Logger
}

// NewWSClient creates a WSClient for the service at baseURL. An http(s)
// scheme is rewritten to ws(s).
func NewWSClient(baseURL string, openTimeout time.Duration, log *logger.Logger) *WSClient {
	url := strings.TrimRight(baseURL, "/")
	switch {
	case strings.HasPrefix(url, "https://"):
		url = "wss://" + strings.TrimPrefix(url, "https://")
	case strings.HasPrefix(url, "http://"):
		url = "ws://" + strings.TrimPrefix(url, "http://")
	}

	return &WSClient{url: url + apiSynthesizeStream, openTimeout: openTimeout, log: log}
}

// Open implements Transport.
func (c *WSClient) Open(ctx context.Context, req Request) (io.ReadCloser, error) {
	requestBody, err := json.Marshal(req)
	if err != nil {
		return nil, core.Wrap(core.KindValidation, "encode request", err)
	}

	guard := newOpenGuard(ctx, c.openTimeout)

	conn, _, err := websocket.Dial(guard.ctx, c.url, nil)
	if err != nil {
		guard.release()

		return nil, guard.classify("open stream", fmt.Errorf("failed to reach TTS service at %s: %w", c.url, err))
	}

	conn.SetReadLimit(maxMessageSize)

	err = conn.Write(guard.ctx, websocket.MessageText, requestBody)
	if err != nil {
		_ = conn.Close(websocket.StatusInternalError, "failed to send request")
		guard.release()

		return nil, guard.classify("send request", err)
	}

	c.log.Info(logStreamOpened, c.url, len([]rune(req.Text)), req.Encoding)

	return newGuardedStream(&messageReader{conn: conn, ctx: guard.ctx}, guard), nil
}

// messageReader presents WebSocket messages as a line stream: each message
// is followed by a newline so it decodes as one record.
type messageReader struct {
	conn    *websocket.Conn
	ctx     context.Context //nolint:containedctx // bounds every message read
	pending []byte
}

func (m *messageReader) Read(p []byte) (int, error) {
	for len(m.pending) == 0 {
		_, msg, err := m.conn.Read(m.ctx)
		if err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				return 0, io.EOF
			}

			return 0, err
		}

		m.pending = append(msg, '\n')
	}

	n := copy(p, m.pending)
	m.pending = m.pending[n:]

	return n, nil
}

// Close ends the connection. The peer or a cancelled read may already have
// closed it, so the close handshake result is not reported.
func (m *messageReader) Close() error {
	_ = m.conn.Close(websocket.StatusNormalClosure, "done")

	return nil
}
