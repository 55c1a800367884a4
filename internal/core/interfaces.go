// Package core defines the shared types, error taxonomy and collaborator
// interfaces of the streaming synthesis engine.
package core

import (
	"context"
	"io"
)

// StoredAsset identifies an audio asset held by the object store.
type StoredAsset struct {
	ID          string
	URL         string
	ContentType string
	Size        int
}

// WorkRequest describes a persisted work built around a stored asset.
type WorkRequest struct {
	Title      string
	SourceText string
	AssetURL   string
	AssetID    string
}

// PersistedWork is the collaborator's answer to a WorkRequest.
type PersistedWork struct {
	WorkID string
}

// SaveResult is what a successful save reports back to the caller.
type SaveResult struct {
	AssetURL string
	AssetID  string
	WorkID   string
}

// AssetUploader stores a finished audio asset and returns where it lives.
type AssetUploader interface {
	Upload(ctx context.Context, asset []byte, contentType string) (StoredAsset, error)
}

// AssetOpener reopens a stored asset as a seekable file.
type AssetOpener interface {
	Open(ctx context.Context, assetID string) (io.ReadSeeker, error)
}

// WorkCreator records a persisted work that references an uploaded asset.
type WorkCreator interface {
	CreatePersistedWork(ctx context.Context, req WorkRequest) (PersistedWork, error)
}
