package playback

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"

	"github.com/book-expert/logger"
)

// ClipPlayer plays one self-contained audio clip to the end.
type ClipPlayer interface {
	PlayClip(ctx context.Context, clip []byte) error
}

// ChunkDevice is the degraded fallback for platforms without a progressive
// primitive: every append is queued as its own clip and clips are played
// back to back, with a gap at each boundary. Pausing takes effect at the next
// clip boundary.
type ChunkDevice struct {
	player ClipPlayer
}

// NewChunkDevice creates a ChunkDevice over player.
func NewChunkDevice(player ClipPlayer) *ChunkDevice {
	return &ChunkDevice{player: player}
}

// Open implements Device.
func (d *ChunkDevice) Open(ctx context.Context, _ string) (Buffer, Sink, error) {
	playCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	clips := &clipQueue{
		player:  d.player,
		ctx:     playCtx,
		cancel:  cancel,
		canPlay: make(chan struct{}),
		ended:   make(chan error, 1),
	}
	clips.cond = sync.NewCond(&clips.mu)

	return clips, clips, nil
}

type clipQueue struct {
	player    ClipPlayer
	ctx       context.Context //nolint:containedctx // lifetime of the playback loop
	cancel    context.CancelFunc
	canPlay   chan struct{}
	ended     chan error
	firstOnce sync.Once
	closeOnce sync.Once

	mu      sync.Mutex
	cond    *sync.Cond
	queue   [][]byte
	started bool
	paused  bool
	eos     bool
	closed  bool
}

// Append queues the clip; it is absorbed as soon as it is queued.
func (c *clipQueue) Append(data []byte) (<-chan error, error) {
	clip := make([]byte, len(data))
	copy(clip, data)

	c.mu.Lock()
	c.queue = append(c.queue, clip)
	c.cond.Broadcast()
	c.mu.Unlock()

	c.firstOnce.Do(func() { close(c.canPlay) })

	ready := make(chan error, 1)
	ready <- nil

	return ready, nil
}

func (c *clipQueue) EndOfStream() error {
	c.mu.Lock()
	c.eos = true
	c.cond.Broadcast()
	c.mu.Unlock()

	return nil
}

func (c *clipQueue) Abort() error {
	c.mu.Lock()
	c.queue = nil
	c.mu.Unlock()

	return nil
}

func (c *clipQueue) CanPlay() <-chan struct{} {
	return c.canPlay
}

func (c *clipQueue) Play() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.paused = false

	if !c.started {
		c.started = true

		go c.loop()
	}

	c.cond.Broadcast()

	return nil
}

func (c *clipQueue) Pause() error {
	c.mu.Lock()
	c.paused = true
	c.mu.Unlock()

	return nil
}

func (c *clipQueue) Ended() <-chan error {
	return c.ended
}

func (c *clipQueue) Close() error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.queue = nil
		c.cond.Broadcast()
		c.mu.Unlock()

		c.cancel()
	})

	return nil
}

// next blocks until a clip may be played. It returns false once the queue is
// closed or drained after end of stream.
func (c *clipQueue) next() ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for !c.closed && (c.paused || (len(c.queue) == 0 && !c.eos)) {
		c.cond.Wait()
	}

	if c.closed || len(c.queue) == 0 {
		return nil, false
	}

	clip := c.queue[0]
	c.queue = c.queue[1:]

	return clip, true
}

func (c *clipQueue) loop() {
	for {
		clip, ok := c.next()
		if !ok {
			c.ended <- nil

			return
		}

		err := c.player.PlayClip(c.ctx, clip)
		if err != nil {
			if c.ctx.Err() != nil {
				c.ended <- nil

				return
			}

			c.ended <- err

			return
		}
	}
}

// Log messages.
const (
	logClipTempRemoveFailed = "Failed to remove temp clip '%s': %v"
)

// ExecClipPlayer plays each clip by writing it to a temp file and running the
// player binary on it.
type ExecClipPlayer struct {
	binary    string
	args      []string
	extension string
	log       *logger.Logger
}

// NewExecClipPlayer creates an ExecClipPlayer. The clip path is appended to args.
func NewExecClipPlayer(binary string, args []string, extension string, log *logger.Logger) (*ExecClipPlayer, error) {
	if binary == "" {
		return nil, ErrPlayerBinaryEmpty
	}

	return &ExecClipPlayer{binary: binary, args: args, extension: extension, log: log}, nil
}

// PlayClip implements ClipPlayer.
func (p *ExecClipPlayer) PlayClip(ctx context.Context, clip []byte) error {
	tempFile, err := os.CreateTemp("", "tts-clip-*."+p.extension)
	if err != nil {
		return fmt.Errorf("failed to create temp clip: %w", err)
	}

	defer func() {
		removeErr := os.Remove(tempFile.Name())
		if removeErr != nil {
			p.log.Warn(logClipTempRemoveFailed, tempFile.Name(), removeErr)
		}
	}()

	_, writeErr := tempFile.Write(clip)
	closeErr := tempFile.Close()

	err = errors.Join(writeErr, closeErr)
	if err != nil {
		return fmt.Errorf("failed to write temp clip: %w", err)
	}

	args := append(append([]string{}, p.args...), tempFile.Name())

	// #nosec G204 -- binary and args come from the operator's configuration
	cmd := exec.CommandContext(ctx, p.binary, args...)

	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("player %s failed: %w - output: %s", p.binary, err, string(output))
	}

	return nil
}
