//go:build unix

package playback

import (
	"fmt"
	"os"
	"syscall"
)

func suspendProcess(process *os.Process) error {
	err := process.Signal(syscall.SIGSTOP)
	if err != nil {
		return fmt.Errorf("failed to suspend player: %w", err)
	}

	return nil
}

func resumeProcess(process *os.Process) error {
	err := process.Signal(syscall.SIGCONT)
	if err != nil {
		return fmt.Errorf("failed to resume player: %w", err)
	}

	return nil
}
