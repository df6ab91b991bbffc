// Package sessionlog manages per-session log directories and the
// per-port log files inside them. Log lines carry wall-clock timestamp
// prefixes; a "latest" symlink in the base directory always points at
// the current session.
package sessionlog

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const (
	// LineBufSize bounds a buffered partial line. Reaching it forces a
	// line break.
	LineBufSize = 2048

	// DefaultKeep is the usual session retention count. Prune has no
	// default of its own; callers pass keep explicitly.
	DefaultKeep = 10

	// maxSessionsPerScan bounds one Prune pass.
	maxSessionsPerScan = 256
)

const (
	stampFormat    = "2006-01-02 15:04:05.000"
	filenameFormat = "20060102-150405"
)

var timeNow = time.Now

// CreateSession makes <base>/session-<YYYYMMDD-HHMMSS> and repoints the
// latest symlink at it. Returns the session directory path.
func CreateSession(base string) (string, error) {
	if err := os.MkdirAll(base, 0755); err != nil {
		return "", fmt.Errorf("create %s: %w", base, err)
	}

	name := "session-" + timeNow().Format(filenameFormat)
	path := filepath.Join(base, name)
	if err := os.Mkdir(path, 0755); err != nil && !os.IsExist(err) {
		return "", fmt.Errorf("create %s: %w", path, err)
	}

	if err := updateSymlink(name, filepath.Join(base, "latest")); err != nil {
		return "", err
	}
	return path, nil
}

// updateSymlink atomically repoints linkpath at target via a temp
// symlink and rename.
func updateSymlink(target, linkpath string) error {
	tmp := fmt.Sprintf("%s.tmp.%d", linkpath, os.Getpid())
	os.Remove(tmp)
	if err := os.Symlink(target, tmp); err != nil {
		return err
	}
	if err := os.Rename(tmp, linkpath); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

// Prune removes session directories beyond the keep most recent. Names
// sort lexicographically which is chronological for the timestamped
// format. Dot-files inside a pruned session are left behind, which
// makes the rmdir fail and preserves the directory.
func Prune(base string, keep int) error {
	entries, err := os.ReadDir(base)
	if err != nil {
		return err
	}

	var sessions []string
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), "session-") {
			sessions = append(sessions, e.Name())
			if len(sessions) >= maxSessionsPerScan {
				break
			}
		}
	}
	if len(sessions) <= keep {
		return nil
	}
	sort.Strings(sessions)

	for _, name := range sessions[:len(sessions)-keep] {
		dir := filepath.Join(base, name)
		files, err := os.ReadDir(dir)
		if err == nil {
			for _, f := range files {
				if strings.HasPrefix(f.Name(), ".") {
					continue
				}
				os.Remove(filepath.Join(dir, f.Name()))
			}
		}
		os.Remove(dir)
	}
	return nil
}
