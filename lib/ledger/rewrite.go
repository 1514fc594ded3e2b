package ledger

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"
)

// Rewrite copies the ledger at inputPath to outputPath, substituting the
// replacement record for every line whose unit id is in replacements; all
// other lines pass through byte-for-byte. The output is written to a
// temporary sibling first and atomically renamed into place, so a reader
// never observes a partial file and any failure before the rename leaves
// inputPath untouched.
func Rewrite(inputPath, outputPath string, replacements map[string]Record) error {
	in, err := os.Open(inputPath)
	if err != nil {
		return fmt.Errorf("open ledger %s: %w", inputPath, err)
	}
	defer in.Close()

	tmpPath := outputPath + ".tmp"
	tmp, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("create temp ledger %s: %w", tmpPath, err)
	}
	// the rename below is the only destructive step; on any earlier failure
	// the temp file is removed and the original is left alone
	defer func() {
		tmp.Close()
		os.Remove(tmpPath)
	}()

	out := bufio.NewWriter(tmp)
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var rec Record
		replaced := false
		if err := json.Unmarshal(line, &rec); err == nil && rec.UnitID != "" {
			if repl, ok := replacements[rec.UnitID]; ok {
				newLine, err := json.Marshal(repl)
				if err != nil {
					return fmt.Errorf("marshal replacement for %s: %w", rec.UnitID, err)
				}
				if _, err := out.Write(append(newLine, '\n')); err != nil {
					return fmt.Errorf("write temp ledger: %w", err)
				}
				replaced = true
			}
		}
		if !replaced {
			if _, err := out.Write(append(line, '\n')); err != nil {
				return fmt.Errorf("write temp ledger: %w", err)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scan ledger %s: %w", inputPath, err)
	}

	if err := out.Flush(); err != nil {
		return fmt.Errorf("flush temp ledger: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync temp ledger: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp ledger: %w", err)
	}

	if err := os.Rename(tmpPath, outputPath); err != nil {
		return fmt.Errorf("replace ledger %s: %w", outputPath, err)
	}
	return nil
}

// Backup copies the ledger to a timestamped sibling and returns its path.
// Backups are never deleted by this package.
func Backup(path string) (string, error) {
	backupPath := fmt.Sprintf("%s.bak-%s", path, time.Now().Format("20060102-150405"))

	in, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open ledger %s: %w", path, err)
	}
	defer in.Close()

	out, err := os.OpenFile(backupPath, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0644)
	if err != nil {
		return "", fmt.Errorf("create backup %s: %w", backupPath, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return "", fmt.Errorf("copy backup %s: %w", backupPath, err)
	}
	if err := out.Sync(); err != nil {
		return "", fmt.Errorf("sync backup %s: %w", backupPath, err)
	}
	return backupPath, nil
}
