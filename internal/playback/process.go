package playback

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"

	"github.com/book-expert/logger"
	"github.com/book-expert/tts-stream/internal/core"
)

// ErrPlayerBinaryEmpty indicates a process device without a player binary.
var ErrPlayerBinaryEmpty = errors.New("player binary cannot be empty")

// Log messages.
const (
	logPlayerStarted = "Started player %s (pid %d) for %s"
	logPlayerExited  = "Player %s exited: %v"
)

// ProcessDevice streams audio into the stdin of an external player such as
// "ffplay -nodisp -autoexit -". The pipe is the progressive buffer: each
// append is one write, and the player starts decoding as soon as bytes arrive.
type ProcessDevice struct {
	binary string
	args   []string
	log    *logger.Logger
}

// NewProcessDevice creates a ProcessDevice for binary with args.
func NewProcessDevice(binary string, args []string, log *logger.Logger) (*ProcessDevice, error) {
	if binary == "" {
		return nil, ErrPlayerBinaryEmpty
	}

	return &ProcessDevice{binary: binary, args: args, log: log}, nil
}

// Open starts the player process. A missing binary is reported as
// core.ErrPlatformUnsupported so callers can fall back to chunked playback.
func (d *ProcessDevice) Open(_ context.Context, contentType string) (Buffer, Sink, error) {
	// #nosec G204 -- binary and args come from the operator's configuration
	cmd := exec.Command(d.binary, d.args...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, nil, core.Wrap(core.KindPlatform, "open player", err)
	}

	err = cmd.Start()
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			err = fmt.Errorf("%w: %s not found: %w", core.ErrPlatformUnsupported, d.binary, err)
		}

		return nil, nil, core.Wrap(core.KindPlatform, "start player", err)
	}

	d.log.Info(logPlayerStarted, d.binary, cmd.Process.Pid, contentType)

	player := &processPlayer{
		cmd:     cmd,
		stdin:   stdin,
		canPlay: make(chan struct{}),
		ended:   make(chan error, 1),
		exited:  make(chan struct{}),
	}

	go player.wait(d.binary, d.log)

	return player, player, nil
}

type processPlayer struct {
	cmd       *exec.Cmd
	stdin     io.WriteCloser
	canPlay   chan struct{}
	ended     chan error
	exited    chan struct{}
	firstOnce sync.Once
	eosOnce   sync.Once
	closeOnce sync.Once

	mu     sync.Mutex
	paused bool
	closed bool
}

func (p *processPlayer) wait(binary string, log *logger.Logger) {
	err := p.cmd.Wait()
	close(p.exited)

	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()

	if closed {
		p.ended <- nil

		return
	}

	log.Info(logPlayerExited, binary, err)
	p.ended <- err
}

func (p *processPlayer) Append(data []byte) (<-chan error, error) {
	ready := make(chan error, 1)

	go func() {
		_, err := p.stdin.Write(data)
		if err == nil {
			p.firstOnce.Do(func() { close(p.canPlay) })
		}

		ready <- err
	}()

	return ready, nil
}

func (p *processPlayer) EndOfStream() error {
	var err error

	p.eosOnce.Do(func() { err = p.stdin.Close() })

	return err
}

// Abort is a no-op: bytes already written to the pipe belong to the player.
func (p *processPlayer) Abort() error {
	return nil
}

func (p *processPlayer) CanPlay() <-chan struct{} {
	return p.canPlay
}

// Play resumes a paused player. The player starts on its own as soon as it
// reads data, so the first call has nothing to do.
func (p *processPlayer) Play() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.paused {
		return nil
	}

	err := resumeProcess(p.cmd.Process)
	if err != nil {
		return err
	}

	p.paused = false

	return nil
}

func (p *processPlayer) Pause() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.paused {
		return nil
	}

	err := suspendProcess(p.cmd.Process)
	if err != nil {
		return err
	}

	p.paused = true

	return nil
}

func (p *processPlayer) Ended() <-chan error {
	return p.ended
}

func (p *processPlayer) Close() error {
	var err error

	p.closeOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		p.mu.Unlock()

		_ = p.EndOfStream()

		select {
		case <-p.exited:
			return
		default:
		}

		err = p.cmd.Process.Kill()
		if errors.Is(err, os.ErrProcessDone) {
			err = nil
		}
	})

	return err
}
