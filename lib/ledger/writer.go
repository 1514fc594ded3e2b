package ledger

import (
	"encoding/json"
	"fmt"
	"os"
)

// Writer appends records to a ledger file. Every append is synced to disk
// before returning so progress survives the process being killed mid-run.
// A ledger has exactly one writer at a time; see lockfile.
type Writer struct {
	f *os.File
}

func OpenWriter(path string) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("open ledger %s: %w", path, err)
	}
	return &Writer{f: f}, nil
}

func (w *Writer) Append(rec Record) error {
	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal ledger record %s: %w", rec.UnitID, err)
	}
	line = append(line, '\n')
	if _, err := w.f.Write(line); err != nil {
		return fmt.Errorf("append ledger record %s: %w", rec.UnitID, err)
	}
	if err := w.f.Sync(); err != nil {
		return fmt.Errorf("sync ledger: %w", err)
	}
	return nil
}

func (w *Writer) Close() error {
	return w.f.Close()
}
