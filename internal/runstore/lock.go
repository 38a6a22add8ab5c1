package runstore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"
)

const (
	runLockDirName   = ".run.lock"
	runLockOwnerFile = "owner.json"
)

// RunLock guards a run directory so a batch pass and a review pass cannot
// mutate items.json and review.json at the same time.
type RunLock struct {
	lockDir string
}

type runLockOwner struct {
	PID       int    `json:"pid"`
	CreatedAt string `json:"created_at"`
	Hostname  string `json:"hostname,omitempty"`
	Command   string `json:"command,omitempty"`
}

func AcquireRunLock(runDir, command string) (RunLock, error) {
	target := strings.TrimSpace(runDir)
	if target == "" {
		return RunLock{}, fmt.Errorf("run directory is required")
	}

	lockDir := filepath.Join(target, runLockDirName)
	if err := os.Mkdir(lockDir, 0o755); err != nil {
		if !os.IsExist(err) {
			return RunLock{}, fmt.Errorf("acquire run lock for %s: %w", target, err)
		}
		owner, stale := inspectLockOwner(lockDir)
		if !stale {
			if owner.PID > 0 {
				return RunLock{}, fmt.Errorf(
					"run directory is locked: %s (pid=%d command=%s created_at=%s host=%s)",
					target, owner.PID, owner.Command, owner.CreatedAt, owner.Hostname,
				)
			}
			return RunLock{}, fmt.Errorf("run directory is locked: %s", target)
		}
		// previous owner on this host is gone; take the lock over
		_ = os.Remove(filepath.Join(lockDir, runLockOwnerFile))
		if err := os.Remove(lockDir); err != nil && !os.IsNotExist(err) {
			return RunLock{}, fmt.Errorf("clear stale run lock %s: %w", lockDir, err)
		}
		if err := os.Mkdir(lockDir, 0o755); err != nil {
			return RunLock{}, fmt.Errorf("run directory is locked: %s", target)
		}
	}

	owner := runLockOwner{
		PID:       os.Getpid(),
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
		Hostname:  hostnameOrUnknown(),
		Command:   strings.TrimSpace(command),
	}
	ownerPath := filepath.Join(lockDir, runLockOwnerFile)
	if err := WriteJSON(ownerPath, owner); err != nil {
		_ = os.Remove(lockDir)
		return RunLock{}, fmt.Errorf("write run lock owner for %s: %w", target, err)
	}

	return RunLock{lockDir: lockDir}, nil
}

func (l RunLock) Release() error {
	if strings.TrimSpace(l.lockDir) == "" {
		return nil
	}
	_ = os.Remove(filepath.Join(l.lockDir, runLockOwnerFile))
	if err := os.Remove(l.lockDir); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("release run lock %s: %w", l.lockDir, err)
	}
	return nil
}

// inspectLockOwner reports the recorded owner and whether the lock can be
// reclaimed. Only locks written on this host by a dead pid count as stale.
func inspectLockOwner(lockDir string) (runLockOwner, bool) {
	var owner runLockOwner
	if err := ReadJSON(filepath.Join(lockDir, runLockOwnerFile), &owner); err != nil {
		return runLockOwner{}, false
	}
	if owner.PID <= 0 || owner.Hostname != hostnameOrUnknown() {
		return owner, false
	}
	return owner, !processAlive(owner.PID)
}

func processAlive(pid int) bool {
	p, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = p.Signal(syscall.Signal(0))
	if err == nil {
		return true
	}
	// EPERM: exists but belongs to someone else
	return errors.Is(err, syscall.EPERM)
}

func hostnameOrUnknown() string {
	host, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	host = strings.TrimSpace(host)
	if host == "" {
		return "unknown"
	}
	return host
}
