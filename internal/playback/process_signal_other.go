//go:build !unix

package playback

import (
	"errors"
	"os"
)

// ErrPauseUnsupported indicates the platform cannot suspend a player process.
var ErrPauseUnsupported = errors.New("pausing a player process is not supported on this platform")

func suspendProcess(_ *os.Process) error {
	return ErrPauseUnsupported
}

func resumeProcess(_ *os.Process) error {
	return ErrPauseUnsupported
}
