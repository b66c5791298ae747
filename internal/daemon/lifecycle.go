package daemon

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"
)

// Lifecycle guards a data directory so only one daemon serves its socket.
type Lifecycle struct {
	lockFile   *LockFile
	pidFile    *PIDFile
	socketPath string
}

func NewLifecycle(baseDir, socketPath string) *Lifecycle {
	return &Lifecycle{
		lockFile:   NewLockFile(filepath.Join(baseDir, "daemon.lock")),
		pidFile:    NewPIDFile(filepath.Join(baseDir, "daemon.pid")),
		socketPath: socketPath,
	}
}

// Acquire takes the instance lock and records this process's PID. When another
// daemon holds the lock the returned error wraps ErrLockHeld and names its PID.
func (lc *Lifecycle) Acquire() error {
	if err := os.MkdirAll(filepath.Dir(lc.pidFile.Path()), 0700); err != nil {
		return err
	}

	if err := lc.lockFile.Acquire(); err != nil {
		if errors.Is(err, ErrLockHeld) {
			if pid, _ := lc.pidFile.Read(); pid > 0 {
				return fmt.Errorf("%w: pid %d", err, pid)
			}
		}
		return err
	}

	if err := lc.pidFile.Write(); err != nil {
		lc.lockFile.Release()
		return err
	}
	return nil
}

// SocketResponsive reports whether something accepts connections on the socket.
func (lc *Lifecycle) SocketResponsive() bool {
	conn, err := net.DialTimeout("unix", lc.socketPath, 500*time.Millisecond)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

func (lc *Lifecycle) Release() {
	if err := lc.pidFile.Remove(); err != nil && !os.IsNotExist(err) {
		log.Warn("failed to remove pid file", "error", err)
	}
	lc.lockFile.Release()
}

func (lc *Lifecycle) PIDFile() *PIDFile {
	return lc.pidFile
}
