package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/book-expert/events"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/book-expert/tts-stream/internal/core"
)

// Client requests work creation from a Service. It implements core.WorkCreator.
type Client struct {
	natsConnection *nats.Conn
	subject        string
	timeout        time.Duration
}

// NewClient creates a Client. A zero timeout leaves the deadline to ctx.
func NewClient(natsConnection *nats.Conn, subject string, timeout time.Duration) *Client {
	return &Client{natsConnection: natsConnection, subject: subject, timeout: timeout}
}

// CreatePersistedWork sends req to the catalog service and returns the new work id.
func (c *Client) CreatePersistedWork(ctx context.Context, req core.WorkRequest) (core.PersistedWork, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	payload, err := json.Marshal(CreateWorkRequest{
		Header: events.EventHeader{
			Timestamp:  time.Now().UTC(),
			WorkflowID: uuid.NewString(),
			EventID:    uuid.NewString(),
		},
		Title:      req.Title,
		SourceText: req.SourceText,
		AssetURL:   req.AssetURL,
		AssetID:    req.AssetID,
	})
	if err != nil {
		return core.PersistedWork{}, fmt.Errorf("failed to marshal work request: %w", err)
	}

	msg, err := c.natsConnection.RequestWithContext(ctx, c.subject, payload)
	if err != nil {
		return core.PersistedWork{}, fmt.Errorf("work request on %s failed: %w", c.subject, err)
	}

	reply, err := decode[CreateWorkReply](msg.Data)
	if err != nil {
		return core.PersistedWork{}, fmt.Errorf("failed to unmarshal work reply: %w", err)
	}

	if reply.Error != "" {
		return core.PersistedWork{}, fmt.Errorf("%w: %s", ErrRejected, reply.Error)
	}

	return core.PersistedWork{WorkID: reply.WorkID}, nil
}
