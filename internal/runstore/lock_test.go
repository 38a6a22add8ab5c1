package runstore

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestAcquireRunLock_BlocksConcurrentAcquire(t *testing.T) {
	runDir := t.TempDir()

	lock, err := AcquireRunLock(runDir, "run")
	if err != nil {
		t.Fatalf("acquire first lock: %v", err)
	}
	defer func() {
		_ = lock.Release()
	}()

	_, err = AcquireRunLock(runDir, "review")
	if err == nil {
		t.Fatalf("expected second acquire to fail")
	}
	if !strings.Contains(err.Error(), "command=run") {
		t.Fatalf("expected owner command in lock error, got %v", err)
	}

	if err := lock.Release(); err != nil {
		t.Fatalf("release lock: %v", err)
	}

	lock2, err := AcquireRunLock(runDir, "review")
	if err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
	if err := lock2.Release(); err != nil {
		t.Fatalf("release second lock: %v", err)
	}
}

func TestAcquireRunLock_ReclaimsStaleLock(t *testing.T) {
	runDir := t.TempDir()
	lockDir := filepath.Join(runDir, runLockDirName)
	if err := os.Mkdir(lockDir, 0o755); err != nil {
		t.Fatal(err)
	}
	// pid far above any default pid_max
	stale := runLockOwner{PID: 1 << 30, CreatedAt: "2020-01-01T00:00:00Z", Hostname: hostnameOrUnknown()}
	if err := WriteJSON(filepath.Join(lockDir, runLockOwnerFile), stale); err != nil {
		t.Fatal(err)
	}

	lock, err := AcquireRunLock(runDir, "run")
	if err != nil {
		t.Fatalf("expected stale lock to be reclaimed: %v", err)
	}
	_ = lock.Release()
}

func TestAcquireRunLock_ForeignHostIsNotStale(t *testing.T) {
	runDir := t.TempDir()
	lockDir := filepath.Join(runDir, runLockDirName)
	if err := os.Mkdir(lockDir, 0o755); err != nil {
		t.Fatal(err)
	}
	owner := runLockOwner{PID: 1 << 30, CreatedAt: "2020-01-01T00:00:00Z", Hostname: "some-other-host.invalid"}
	if err := WriteJSON(filepath.Join(lockDir, runLockOwnerFile), owner); err != nil {
		t.Fatal(err)
	}
	if _, err := AcquireRunLock(runDir, "run"); err == nil {
		t.Fatalf("lock from another host must not be reclaimed")
	}
}

func TestNewRunIDAndResolve(t *testing.T) {
	now := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	id := NewRunID(now, "My Music!")
	if id != "20260304T050607Z_My_Music" {
		t.Fatalf("unexpected run id %q", id)
	}

	runsDir := t.TempDir()
	first, err := CreateRunDir(runsDir, NewRunID(now, "a"))
	if err != nil {
		t.Fatal(err)
	}
	second, err := CreateRunDir(runsDir, NewRunID(now.Add(time.Minute), "a"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := CreateRunDir(runsDir, NewRunID(now, "a")); err == nil {
		t.Fatalf("expected duplicate run dir to fail")
	}

	got, err := ResolveRunDir(runsDir, "", "")
	if err != nil || got != second {
		t.Fatalf("expected latest run %q, got %q err=%v", second, got, err)
	}
	got, err = ResolveRunDir(runsDir, filepath.Base(first), "")
	if err != nil || got != first {
		t.Fatalf("expected run by id %q, got %q err=%v", first, got, err)
	}
	if _, err := os.Stat(LogsDir(first)); err != nil {
		t.Fatalf("logs dir missing: %v", err)
	}
}
