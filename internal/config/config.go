// Package config provides the configuration structure for tts-stream.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/book-expert/configurator"
	"github.com/book-expert/logger"
)

// Playback modes.
const (
	PlaybackProgressive = "progressive"
	PlaybackChunked     = "chunked"
	PlaybackNone        = "none"
)

// Synthesis transports.
const (
	TransportHTTP      = "http"
	TransportWebSocket = "websocket"
)

// Defaults applied by Validate.
const (
	defaultAudioBucket           = "AUDIO_ASSETS"
	defaultWorksBucket           = "AUDIO_WORKS"
	defaultWorkCreateSubject     = "works.create"
	defaultWorkCreatedSubject    = "works.created"
	defaultRequestTimeoutSeconds = 10
	defaultOpenTimeoutSeconds    = 15
	defaultMaxTextLength         = 20000
	defaultPlayerBinary          = "ffplay"
	defaultClipPlayerBinary      = "ffplay"
	defaultLogsDir               = "logs"
)

var (
	// ErrBaseURLRequired indicates a missing synthesis.base_url.
	ErrBaseURLRequired = errors.New("synthesis.base_url is required")
	// ErrUnknownTransport indicates an unsupported synthesis.transport.
	ErrUnknownTransport = errors.New("unknown synthesis transport")
	// ErrUnknownPlaybackMode indicates an unsupported playback.mode.
	ErrUnknownPlaybackMode = errors.New("unknown playback mode")
	// ErrNegativeSetting indicates a negative timeout or length.
	ErrNegativeSetting = errors.New("setting cannot be negative")
)

// NATSConfig holds the configuration for NATS.
type NATSConfig struct {
	URL                    string `toml:"url"`
	AudioObjectStoreBucket string `toml:"audio_object_store_bucket"`
	WorksBucket            string `toml:"works_bucket"`
	WorkCreateSubject      string `toml:"work_create_subject"`
	WorkCreatedSubject     string `toml:"work_created_subject"`
	RequestTimeoutSeconds  int    `toml:"request_timeout_seconds"`
}

// SynthesisConfig holds the remote synthesis service settings.
type SynthesisConfig struct {
	BaseURL            string `toml:"base_url"`
	Transport          string `toml:"transport"`
	OpenTimeoutSeconds int    `toml:"open_timeout_seconds"`
	MaxTextLength      int    `toml:"max_text_length"`
	NormalizeText      bool   `toml:"normalize_text"`
	Voice              string `toml:"voice"`
	Format             string `toml:"format"`
}

// PlaybackConfig selects how audio reaches the speakers.
type PlaybackConfig struct {
	Mode             string   `toml:"mode"`
	PlayerBinary     string   `toml:"player_binary"`
	PlayerArgs       []string `toml:"player_args"`
	ClipPlayerBinary string   `toml:"clip_player_binary"`
	ClipPlayerArgs   []string `toml:"clip_player_args"`
}

// MetricsConfig holds the Prometheus endpoint settings. An empty address
// disables the endpoint.
type MetricsConfig struct {
	ListenAddress string `toml:"listen_address"`
}

// PathsConfig holds the configuration for file paths.
type PathsConfig struct {
	BaseLogsDir string `toml:"base_logs_dir"`
}

// Config is the root configuration structure.
type Config struct {
	NATS      NATSConfig      `toml:"nats"`
	Synthesis SynthesisConfig `toml:"synthesis"`
	Playback  PlaybackConfig  `toml:"playback"`
	Metrics   MetricsConfig   `toml:"metrics"`
	Paths     PathsConfig     `toml:"paths"`
}

// Load loads the project configuration and validates it.
func Load(log *logger.Logger) (*Config, error) {
	var cfg Config

	err := configurator.Load(&cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration from configurator: %w", err)
	}

	err = cfg.Validate()
	if err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate fills in defaults and rejects settings the binaries cannot run with.
func (c *Config) Validate() error {
	c.applyDefaults()

	switch c.Synthesis.Transport {
	case TransportHTTP, TransportWebSocket:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownTransport, c.Synthesis.Transport)
	}

	switch c.Playback.Mode {
	case PlaybackProgressive, PlaybackChunked, PlaybackNone:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownPlaybackMode, c.Playback.Mode)
	}

	for name, value := range map[string]int{
		"synthesis.open_timeout_seconds": c.Synthesis.OpenTimeoutSeconds,
		"synthesis.max_text_length":      c.Synthesis.MaxTextLength,
		"nats.request_timeout_seconds":   c.NATS.RequestTimeoutSeconds,
	} {
		if value < 0 {
			return fmt.Errorf("%w: %s = %d", ErrNegativeSetting, name, value)
		}
	}

	return nil
}

func (c *Config) applyDefaults() {
	if c.NATS.AudioObjectStoreBucket == "" {
		c.NATS.AudioObjectStoreBucket = defaultAudioBucket
	}

	if c.NATS.WorksBucket == "" {
		c.NATS.WorksBucket = defaultWorksBucket
	}

	if c.NATS.WorkCreateSubject == "" {
		c.NATS.WorkCreateSubject = defaultWorkCreateSubject
	}

	if c.NATS.WorkCreatedSubject == "" {
		c.NATS.WorkCreatedSubject = defaultWorkCreatedSubject
	}

	if c.NATS.RequestTimeoutSeconds == 0 {
		c.NATS.RequestTimeoutSeconds = defaultRequestTimeoutSeconds
	}

	if c.Synthesis.Transport == "" {
		c.Synthesis.Transport = TransportHTTP
	}

	if c.Synthesis.OpenTimeoutSeconds == 0 {
		c.Synthesis.OpenTimeoutSeconds = defaultOpenTimeoutSeconds
	}

	if c.Synthesis.MaxTextLength == 0 {
		c.Synthesis.MaxTextLength = defaultMaxTextLength
	}

	if c.Playback.Mode == "" {
		c.Playback.Mode = PlaybackProgressive
	}

	if c.Playback.PlayerBinary == "" {
		c.Playback.PlayerBinary = defaultPlayerBinary
		c.Playback.PlayerArgs = []string{"-nodisp", "-autoexit", "-loglevel", "quiet", "-"}
	}

	if c.Playback.ClipPlayerBinary == "" {
		c.Playback.ClipPlayerBinary = defaultClipPlayerBinary
		c.Playback.ClipPlayerArgs = []string{"-nodisp", "-autoexit", "-loglevel", "quiet"}
	}

	if c.Paths.BaseLogsDir == "" {
		c.Paths.BaseLogsDir = defaultLogsDir
	}
}

// RequireSynthesis reports whether the synthesis service is configured.
func (c *Config) RequireSynthesis() error {
	if c.Synthesis.BaseURL == "" {
		return ErrBaseURLRequired
	}

	return nil
}

// OpenTimeout returns the stream open timeout.
func (c *Config) OpenTimeout() time.Duration {
	return time.Duration(c.Synthesis.OpenTimeoutSeconds) * time.Second
}

// RequestTimeout returns the NATS request timeout.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.NATS.RequestTimeoutSeconds) * time.Second
}
