// Package objectstore stores finished audio assets in a NATS JetStream object
// store bucket.
package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/book-expert/tts-stream/internal/core"
)

const (
	metadataContentType = "content-type"
	urlFormat           = "nats://%s/%s"
)

// ErrEmptyAsset indicates an upload with no bytes.
var ErrEmptyAsset = errors.New("asset cannot be empty")

var extensions = map[string]string{
	"audio/mpeg": ".mp3",
	"audio/wav":  ".wav",
	"audio/ogg":  ".ogg",
	"audio/aac":  ".aac",
}

// NatsObjectStore implements core.AssetUploader and core.AssetOpener using
// NATS JetStream.
type NatsObjectStore struct {
	bucket string
	store  nats.ObjectStore
}

// New creates the bucket, or binds to it when it already exists.
func New(jetstreamContext nats.JetStreamContext, bucketName string) (*NatsObjectStore, error) {
	store, err := jetstreamContext.CreateObjectStore(&nats.ObjectStoreConfig{
		Bucket:      bucketName,
		Description: fmt.Sprintf("Synthesized audio assets for the %s bucket.", bucketName),
		Storage:     nats.FileStorage,
		Replicas:    1,
	})
	if err != nil {
		if !errors.Is(err, jetstream.ErrBucketExists) && !errors.Is(err, nats.ErrStreamNameAlreadyInUse) {
			return nil, fmt.Errorf("failed to create object store bucket '%s': %w", bucketName, err)
		}

		store, err = jetstreamContext.ObjectStore(bucketName)
		if err != nil {
			return nil, fmt.Errorf("failed to bind to existing object store bucket '%s': %w", bucketName, err)
		}
	}

	return &NatsObjectStore{bucket: bucketName, store: store}, nil
}

// Upload stores asset under a fresh key and reports its location.
func (n *NatsObjectStore) Upload(_ context.Context, asset []byte, contentType string) (core.StoredAsset, error) {
	if len(asset) == 0 {
		return core.StoredAsset{}, ErrEmptyAsset
	}

	key := uuid.NewString() + extensions[contentType]

	_, err := n.store.Put(&nats.ObjectMeta{
		Name:        key,
		Description: "synthesized audio",
		Metadata:    map[string]string{metadataContentType: contentType},
	}, bytes.NewReader(asset))
	if err != nil {
		return core.StoredAsset{}, fmt.Errorf("failed to put object '%s' to bucket '%s': %w", key, n.bucket, err)
	}

	return core.StoredAsset{
		ID:          key,
		URL:         fmt.Sprintf(urlFormat, n.bucket, key),
		ContentType: contentType,
		Size:        len(asset),
	}, nil
}

// Open reads a stored asset back as a seekable reader.
func (n *NatsObjectStore) Open(_ context.Context, assetID string) (io.ReadSeeker, error) {
	obj, err := n.store.Get(assetID)
	if err != nil {
		return nil, fmt.Errorf("failed to get object '%s' from bucket '%s': %w", assetID, n.bucket, err)
	}

	data, readErr := io.ReadAll(obj)
	closeErr := obj.Close()

	if readErr != nil {
		return nil, fmt.Errorf("failed to read object '%s': %w", assetID, readErr)
	}

	if closeErr != nil {
		return nil, fmt.Errorf("failed to close object '%s': %w", assetID, closeErr)
	}

	return bytes.NewReader(data), nil
}

// ContentType returns the content type recorded for a stored asset.
func (n *NatsObjectStore) ContentType(assetID string) (string, error) {
	info, err := n.store.GetInfo(assetID)
	if err != nil {
		return "", fmt.Errorf("failed to stat object '%s' in bucket '%s': %w", assetID, n.bucket, err)
	}

	return info.Metadata[metadataContentType], nil
}
