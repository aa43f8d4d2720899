package instance

import (
	"errors"
	"fmt"
	"os"

	"github.com/mitchellh/go-ps"
)

// ErrAlreadyRunning is returned when another process runs the same executable.
var ErrAlreadyRunning = errors.New("another instance is already running")

// lister returns the processes of the system.
type lister func() ([]ps.Process, error)

// finder returns the process with the given PID.
type finder func(pid int) (ps.Process, error)

// EnsureSingle returns ErrAlreadyRunning if another process shares the
// executable name of the current one.
func EnsureSingle() error {
	return ensureSingle(os.Getpid(), ps.FindProcess, ps.Processes)
}

// ensureSingle is EnsureSingle with injectable process table access.
func ensureSingle(selfPID int, find finder, list lister) error {
	self, err := find(selfPID)
	if err != nil {
		return fmt.Errorf("find current process: %w", err)
	}

	// Some platforms cannot describe the current process; nothing to compare against.
	if self == nil || self.Executable() == "" {
		return nil
	}

	processList, err := list()
	if err != nil {
		return fmt.Errorf("list processes: %w", err)
	}

	for _, process := range processList {
		if process.Pid() == selfPID {
			continue
		}

		if process.Executable() != self.Executable() {
			continue
		}

		return fmt.Errorf("%w: %s (pid %d)", ErrAlreadyRunning, process.Executable(), process.Pid())
	}

	return nil
}
