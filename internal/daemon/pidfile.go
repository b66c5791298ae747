package daemon

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
)

var errPIDSymlink = errors.New("pid file is a symlink")

// PIDFile is daemon.pid in the data dir. It only names the process holding the
// instance lock; the lock itself decides who runs.
type PIDFile struct {
	path string
}

func NewPIDFile(path string) *PIDFile {
	return &PIDFile{path: path}
}

func (p *PIDFile) Path() string {
	return p.path
}

// Write replaces whatever is at the path with this process's pid. A file left by
// a crashed daemon is overwritten; a symlink is refused.
func (p *PIDFile) Write() error {
	if err := p.refuseSymlink(); err != nil {
		return err
	}
	if err := os.Remove(p.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove stale pid file: %w", err)
	}

	f, err := os.OpenFile(p.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("create pid file: %w", err)
	}
	_, err = fmt.Fprintf(f, "%d\n", os.Getpid())
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	return err
}

// Read returns 0 and no error when there is no pid file or it is empty.
func (p *PIDFile) Read() (int, error) {
	data, err := os.ReadFile(p.path)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	text := strings.TrimSpace(string(data))
	if text == "" {
		return 0, nil
	}
	pid, err := strconv.Atoi(text)
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("%s: bad pid %q", p.path, text)
	}
	return pid, nil
}

// Alive reports whether the recorded pid belongs to a running process.
func (p *PIDFile) Alive() bool {
	pid, err := p.Read()
	return err == nil && pid > 0 && processExists(pid)
}

func (p *PIDFile) Remove() error {
	if err := p.refuseSymlink(); err != nil {
		return err
	}
	return os.Remove(p.path)
}

func (p *PIDFile) refuseSymlink() error {
	info, err := os.Lstat(p.path)
	if err == nil && info.Mode()&os.ModeSymlink != 0 {
		return fmt.Errorf("%s: %w", p.path, errPIDSymlink)
	}
	return nil
}
