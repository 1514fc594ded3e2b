// Package lockfile provides an advisory lock around a ledger file. The
// ledger has a single-writer contract: a collection run and a retry patch
// must never rewrite the same file concurrently. The lock is a directory
// (mkdir is atomic on every platform we care about) holding an owner file
// for diagnostics.
package lockfile

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const ownerFileName = "owner.json"

type Lock struct {
	dir string
}

type owner struct {
	PID       int    `json:"pid"`
	CreatedAt string `json:"created_at"`
	Hostname  string `json:"hostname,omitempty"`
}

// Acquire takes the advisory lock for the given ledger path. If another
// process holds it, the error names the owner; stale locks from crashed
// processes are reported, never auto-broken.
func Acquire(ledgerPath string) (Lock, error) {
	dir := ledgerPath + ".lock"

	if err := os.Mkdir(dir, 0o755); err != nil {
		if os.IsExist(err) {
			var o owner
			data, readErr := os.ReadFile(filepath.Join(dir, ownerFileName))
			if readErr == nil && json.Unmarshal(data, &o) == nil && o.PID > 0 {
				return Lock{}, fmt.Errorf(
					"ledger is locked: %s (pid=%d created_at=%s host=%s); remove %s if the owner is gone",
					ledgerPath, o.PID, o.CreatedAt, o.Hostname, dir,
				)
			}
			return Lock{}, fmt.Errorf("ledger is locked: %s; remove %s if the owner is gone", ledgerPath, dir)
		}
		return Lock{}, fmt.Errorf("acquire lock for %s: %w", ledgerPath, err)
	}

	o := owner{
		PID:       os.Getpid(),
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
		Hostname:  hostnameOrUnknown(),
	}
	data, err := json.Marshal(o)
	if err == nil {
		err = os.WriteFile(filepath.Join(dir, ownerFileName), data, 0o644)
	}
	if err != nil {
		os.Remove(dir)
		return Lock{}, fmt.Errorf("write lock owner for %s: %w", ledgerPath, err)
	}

	return Lock{dir: dir}, nil
}

func (l Lock) Release() error {
	if l.dir == "" {
		return nil
	}
	os.Remove(filepath.Join(l.dir, ownerFileName))
	if err := os.Remove(l.dir); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("release lock %s: %w", l.dir, err)
	}
	return nil
}

func hostnameOrUnknown() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "unknown"
	}
	return host
}
