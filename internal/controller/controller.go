// Package controller runs synthesis sessions: it opens the network stream,
// drives the sequencer into playback and the asset accumulator, and saves the
// finished asset through the persistence collaborators.
package controller

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/book-expert/logger"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/book-expert/tts-stream/internal/core"
	"github.com/book-expert/tts-stream/internal/observe"
	"github.com/book-expert/tts-stream/internal/playback"
	"github.com/book-expert/tts-stream/internal/synthesis"
	"github.com/book-expert/tts-stream/internal/text"
)

var (
	// ErrTransportRequired indicates a controller without a synthesis transport.
	ErrTransportRequired = errors.New("synthesis transport is required")
	// ErrDeviceRequired indicates a controller without a playback device.
	ErrDeviceRequired = errors.New("playback device is required")
	// ErrLoggerRequired indicates a controller without a logger.
	ErrLoggerRequired = errors.New("logger is required")
	// ErrPersistenceUnavailable indicates Save on a controller without collaborators.
	ErrPersistenceUnavailable = errors.New("persistence collaborators are not configured")
	// ErrTitleRequired indicates Save without a title.
	ErrTitleRequired = errors.New("title cannot be empty")
	// ErrNothingToSpeak indicates text that is empty once normalized.
	ErrNothingToSpeak = errors.New("text has nothing to speak after normalization")
)

// Log messages.
const (
	logSessionStarted   = "Session %s started over %s (%d characters, trace %s)"
	logDeviceFallback   = "Progressive playback unavailable, falling back to chunked playback: %v"
	logSaveUploaded     = "Session %s asset uploaded as %s (%d bytes)"
	logSaveCreatedWork  = "Session %s saved as work %s"
	logSaveFailed       = "Session %s save failed: %v"
	logStoppingPrevious = "Stopping session %s to start %s"
)

const (
	spanSession = "synthesis.session"
	spanSave    = "synthesis.save"
)

// Options configures a Controller. Transport, Device and Log are required.
type Options struct {
	Transport synthesis.Transport
	// TransportName labels metrics and logs, e.g. "http" or "websocket".
	TransportName string
	Device        playback.Device
	// FallbackDevice is used when Device reports core.ErrPlatformUnsupported.
	FallbackDevice playback.Device
	Uploader       core.AssetUploader
	WorkCreator    core.WorkCreator
	// Normalizer is optional; without one text is sent verbatim.
	Normalizer *text.Normalizer
	// MaxTextLength bounds the submitted text in characters; zero disables it.
	MaxTextLength int
	Metrics       *observe.Metrics
	Tracer        trace.Tracer
	Log           *logger.Logger
}

// Controller is the single entry point for synthesis sessions. It owns the
// playback arbiter, so starting a session stops the active one first.
type Controller struct {
	options Options
	arbiter *playback.Arbiter

	// startMu serializes Start from stopping the previous session to
	// publishing the new one, so at most one sink is open.
	startMu sync.Mutex

	mu     sync.Mutex
	active *Session
}

// New creates a Controller.
func New(options Options) (*Controller, error) {
	switch {
	case options.Transport == nil:
		return nil, ErrTransportRequired
	case options.Device == nil:
		return nil, ErrDeviceRequired
	case options.Log == nil:
		return nil, ErrLoggerRequired
	}

	if options.TransportName == "" {
		options.TransportName = "http"
	}

	if options.Metrics == nil {
		options.Metrics = observe.DefaultMetrics()
	}

	if options.Tracer == nil {
		options.Tracer = observe.Tracer()
	}

	return &Controller{options: options, arbiter: playback.NewArbiter()}, nil
}

// Active returns the most recently started session, or nil.
func (c *Controller) Active() *Session {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.active
}

// Start validates req, stops any active session and starts a new one. The
// returned session runs until its stream completes and playback ends, it
// fails, or it is stopped. Cancelling ctx stops it.
func (c *Controller) Start(ctx context.Context, req synthesis.Request) (*Session, error) {
	req = req.WithDefaults()

	err := req.Validate(c.options.MaxTextLength)
	if err != nil {
		return nil, err
	}

	sourceText := req.Text

	if c.options.Normalizer != nil {
		req.Text = c.options.Normalizer.Normalize(req.Text)
		if req.Text == "" {
			return nil, core.Wrap(core.KindValidation, "normalize", ErrNothingToSpeak)
		}
	}

	session := newSession(uuid.NewString(), req, sourceText, c.options.Log, c.options.Metrics)

	c.startMu.Lock()
	defer c.startMu.Unlock()

	c.stopPrevious(session)

	buffer, sink, err := c.openDevice(ctx, req.Encoding.ContentType())
	if err != nil {
		return nil, err
	}

	session.playback = playback.NewSession(buffer, sink, c.options.Log, session.hooks())

	spanCtx, span := c.options.Tracer.Start(ctx, spanSession, trace.WithAttributes(
		attribute.String("session.id", session.id),
		attribute.String("synthesis.transport", c.options.TransportName),
		attribute.String("synthesis.voice", req.Voice),
		attribute.String("synthesis.encoding", string(req.Encoding)),
		attribute.Int("synthesis.text_length", len([]rune(req.Text))),
	))
	session.span = span

	runCtx, cancel := context.WithCancel(spanCtx)
	session.cancel = cancel

	session.setLease(c.arbiter.Acquire(session.id, session.Stop))

	c.mu.Lock()
	c.active = session
	c.mu.Unlock()

	c.options.Metrics.SessionStarted(ctx, c.options.TransportName)
	c.options.Log.Info(logSessionStarted, session.id, c.options.TransportName,
		len([]rune(req.Text)), observe.CorrelationID(spanCtx))

	go session.run(runCtx, c.options.Transport)

	return session, nil
}

// stopPrevious stops the active session before next opens the device.
func (c *Controller) stopPrevious(next *Session) {
	c.mu.Lock()
	previous := c.active
	c.mu.Unlock()

	if previous != nil && previous != next {
		c.options.Log.Info(logStoppingPrevious, previous.id, next.id)
		previous.Stop()
	}
}

func (c *Controller) openDevice(ctx context.Context, contentType string) (playback.Buffer, playback.Sink, error) {
	buffer, sink, err := c.options.Device.Open(ctx, contentType)
	if err == nil {
		return buffer, sink, nil
	}

	if c.options.FallbackDevice == nil || !errors.Is(err, core.ErrPlatformUnsupported) {
		return nil, nil, core.Wrap(core.KindPlatform, "open device", err)
	}

	c.options.Log.Warn(logDeviceFallback, err)

	buffer, sink, err = c.options.FallbackDevice.Open(ctx, contentType)
	if err != nil {
		return nil, nil, core.Wrap(core.KindPlatform, "open fallback device", err)
	}

	return buffer, sink, nil
}

// Pause pauses the session's playback.
func (c *Controller) Pause(session *Session) error {
	return session.Pause()
}

// Resume resumes the session's playback.
func (c *Controller) Resume(session *Session) error {
	return session.Resume()
}

// Stop stops the session. It is idempotent.
func (c *Controller) Stop(session *Session) {
	session.Stop()
}

// Save uploads the session's combined asset and records a persisted work for
// it. The session must have received every chunk. Collaborator failures are
// returned as core.KindPersistence and leave the session untouched.
func (c *Controller) Save(ctx context.Context, session *Session, title string) (core.SaveResult, error) {
	result, err := c.save(ctx, session, title)

	status := observe.StatusOK
	if err != nil {
		status = observe.StatusError
		c.options.Log.Error(logSaveFailed, session.id, err)
	}

	c.options.Metrics.RecordSave(ctx, status)

	return result, err
}

func (c *Controller) save(ctx context.Context, session *Session, title string) (core.SaveResult, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return core.SaveResult{}, core.Wrap(core.KindValidation, "save", ErrTitleRequired)
	}

	if c.options.Uploader == nil || c.options.WorkCreator == nil {
		return core.SaveResult{}, core.Wrap(core.KindPersistence, "save", ErrPersistenceUnavailable)
	}

	audio, err := session.Asset()
	if err != nil {
		return core.SaveResult{}, core.Wrap(core.KindIncomplete, "save", err)
	}

	ctx, span := c.options.Tracer.Start(ctx, spanSave, trace.WithAttributes(
		attribute.String("session.id", session.id),
		attribute.Int("asset.size", len(audio)),
	))
	defer span.End()

	stored, err := c.options.Uploader.Upload(ctx, audio, session.request.Encoding.ContentType())
	if err != nil {
		span.RecordError(err)

		return core.SaveResult{}, core.Wrap(core.KindPersistence, "upload asset", err)
	}

	c.options.Log.Info(logSaveUploaded, session.id, stored.ID, len(audio))

	work, err := c.options.WorkCreator.CreatePersistedWork(ctx, core.WorkRequest{
		Title:      title,
		SourceText: session.sourceText,
		AssetURL:   stored.URL,
		AssetID:    stored.ID,
	})
	if err != nil {
		span.RecordError(err)

		return core.SaveResult{}, core.Wrap(core.KindPersistence, "create work",
			fmt.Errorf("asset %s uploaded but work creation failed: %w", stored.ID, err))
	}

	c.options.Log.Info(logSaveCreatedWork, session.id, work.WorkID)

	return core.SaveResult{AssetURL: stored.URL, AssetID: stored.ID, WorkID: work.WorkID}, nil
}
