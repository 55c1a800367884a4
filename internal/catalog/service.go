package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/book-expert/events"
	"github.com/book-expert/logger"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

const (
	queueGroup = "catalog"

	logWorkCreated    = "Created work %s for asset %s (workflow %s)"
	logRequestInvalid = "Rejected work request: %v"
	logRespondFailed  = "Failed to respond to work request: %v"
	logAnnounceFailed = "Failed to publish created event for work %s: %v"
)

// Service answers work-creation requests.
type Service struct {
	natsConnection *nats.Conn
	works          nats.KeyValue
	subject        string
	createdSubject string
	log            *logger.Logger
}

// NewService creates the works bucket, or binds to it, and prepares a
// service for subject. Every created work is announced on createdSubject.
func NewService(
	natsConnection *nats.Conn,
	jetstreamContext nats.JetStreamContext,
	subject, createdSubject, bucket string,
	log *logger.Logger,
) (*Service, error) {
	works, err := jetstreamContext.CreateKeyValue(&nats.KeyValueConfig{
		Bucket:      bucket,
		Description: "Persisted synthesis works.",
		Storage:     nats.FileStorage,
		Replicas:    1,
	})
	if err != nil {
		if !errors.Is(err, jetstream.ErrBucketExists) && !errors.Is(err, nats.ErrStreamNameAlreadyInUse) {
			return nil, fmt.Errorf("failed to create works bucket '%s': %w", bucket, err)
		}

		works, err = jetstreamContext.KeyValue(bucket)
		if err != nil {
			return nil, fmt.Errorf("failed to bind to existing works bucket '%s': %w", bucket, err)
		}
	}

	return &Service{
		natsConnection: natsConnection,
		works:          works,
		subject:        subject,
		createdSubject: createdSubject,
		log:            log,
	}, nil
}

// Run serves requests until ctx is done.
func (s *Service) Run(ctx context.Context) error {
	sub, err := s.natsConnection.QueueSubscribe(s.subject, queueGroup, s.handleMessage)
	if err != nil {
		return fmt.Errorf("failed to subscribe to subject %s: %w", s.subject, err)
	}

	<-ctx.Done()

	drainErr := sub.Drain()
	if drainErr != nil {
		return fmt.Errorf("failed to drain subscription: %w", drainErr)
	}

	return nil
}

// Get returns a stored work.
func (s *Service) Get(id string) (Work, error) {
	entry, err := s.works.Get(id)
	if err != nil {
		if errors.Is(err, nats.ErrKeyNotFound) {
			return Work{}, fmt.Errorf("%w: %s", ErrWorkNotFound, id)
		}

		return Work{}, fmt.Errorf("failed to read work %s: %w", id, err)
	}

	work, err := decode[Work](entry.Value())
	if err != nil {
		return Work{}, fmt.Errorf("failed to decode work %s: %w", id, err)
	}

	return work, nil
}

func (s *Service) handleMessage(msg *nats.Msg) {
	reply := CreateWorkReply{}

	work, err := s.createWork(msg.Data)
	if err != nil {
		s.log.Warn(logRequestInvalid, err)
		reply.Error = err.Error()
	} else {
		reply.WorkID = work.ID
		s.announce(work)
	}

	replyData, err := json.Marshal(reply)
	if err != nil {
		s.log.Error(logRespondFailed, err)

		return
	}

	err = msg.Respond(replyData)
	if err != nil {
		s.log.Error(logRespondFailed, err)
	}
}

func (s *Service) createWork(data []byte) (Work, error) {
	req, err := decode[CreateWorkRequest](data)
	if err != nil {
		return Work{}, fmt.Errorf("failed to unmarshal work request: %w", err)
	}

	req.Title = strings.TrimSpace(req.Title)

	err = req.validate()
	if err != nil {
		return Work{}, err
	}

	work := Work{
		ID:         uuid.NewString(),
		WorkflowID: req.Header.WorkflowID,
		Title:      req.Title,
		SourceText: req.SourceText,
		AssetURL:   req.AssetURL,
		AssetID:    req.AssetID,
		CreatedAt:  time.Now().UTC(),
	}

	workData, err := json.Marshal(work)
	if err != nil {
		return Work{}, fmt.Errorf("failed to marshal work: %w", err)
	}

	_, err = s.works.Create(work.ID, workData)
	if err != nil {
		return Work{}, fmt.Errorf("failed to store work %s: %w", work.ID, err)
	}

	s.log.Info(logWorkCreated, work.ID, work.AssetID, work.WorkflowID)

	return work, nil
}

// announce publishes the created work as a single-part audio event.
func (s *Service) announce(work Work) {
	event := events.AudioChunkCreatedEvent{
		Header: events.EventHeader{
			Timestamp:  work.CreatedAt,
			WorkflowID: work.WorkflowID,
			EventID:    uuid.NewString(),
		},
		AudioKey:   work.AssetID,
		PageNumber: 1,
		TotalPages: 1,
	}

	data, err := json.Marshal(event)
	if err != nil {
		s.log.Error(logAnnounceFailed, work.ID, err)

		return
	}

	err = s.natsConnection.Publish(s.createdSubject, data)
	if err != nil {
		s.log.Error(logAnnounceFailed, work.ID, err)
	}
}
