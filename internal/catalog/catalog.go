// Package catalog records persisted works over NATS. The Service answers
// work-creation requests, stores each work in a JetStream key-value bucket and
// announces it; the Client is the requesting side used by the engine.
package catalog

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/book-expert/events"
)

var (
	// ErrTitleEmpty indicates a work request without a title.
	ErrTitleEmpty = errors.New("work title cannot be empty")
	// ErrAssetMissing indicates a work request without an asset reference.
	ErrAssetMissing = errors.New("work asset id and url are required")
	// ErrRejected indicates the service refused a work request.
	ErrRejected = errors.New("work request rejected")
	// ErrWorkNotFound indicates an unknown work id.
	ErrWorkNotFound = errors.New("work not found")
)

// CreateWorkRequest is the request payload on the work-creation subject.
type CreateWorkRequest struct {
	Header     events.EventHeader `json:"header"`
	Title      string             `json:"title"`
	SourceText string             `json:"sourceText"`
	AssetURL   string             `json:"assetUrl"`
	AssetID    string             `json:"assetId"`
}

// CreateWorkReply answers a CreateWorkRequest. Error is set on rejection.
type CreateWorkReply struct {
	WorkID string `json:"workId,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Work is a stored work record.
type Work struct {
	ID         string    `json:"id"`
	WorkflowID string    `json:"workflowId"`
	Title      string    `json:"title"`
	SourceText string    `json:"sourceText"`
	AssetURL   string    `json:"assetUrl"`
	AssetID    string    `json:"assetId"`
	CreatedAt  time.Time `json:"createdAt"`
}

func (r *CreateWorkRequest) validate() error {
	if r.Title == "" {
		return ErrTitleEmpty
	}

	if r.AssetID == "" || r.AssetURL == "" {
		return ErrAssetMissing
	}

	return nil
}

func decode[T any](data []byte) (T, error) {
	var value T

	err := json.Unmarshal(data, &value)

	return value, err
}
