package ledger

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
)

// payload lines can run to megabytes for prolific units
const maxLineBytes = 64 * 1024 * 1024

func scan(path string, visit func(rec Record)) (int, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("open ledger %s: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)

	lineNo := 0
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		lineNo++
		var rec Record
		if err := json.Unmarshal(line, &rec); err != nil {
			// a partial line from a previous crash is expected, skip it
			slog.Warn("skipping malformed ledger line", "path", path, "line", lineNo, "err", err)
			continue
		}
		if rec.UnitID == "" {
			slog.Warn("skipping ledger line without unit_id", "path", path, "line", lineNo)
			continue
		}
		visit(rec)
	}
	if err := scanner.Err(); err != nil {
		return lineNo, fmt.Errorf("scan ledger %s: %w", path, err)
	}
	return lineNo, nil
}

// ScanDone returns the set of unit ids that have any record in the ledger.
// Both ok and error records count: an error record means "attempted this
// run", and re-attempting errors is the retry patcher's explicit job.
// A missing file is an empty set, not an error.
func ScanDone(path string) (map[string]bool, error) {
	done := map[string]bool{}
	_, err := scan(path, func(rec Record) {
		done[rec.UnitID] = true
	})
	if err != nil {
		return nil, err
	}
	return done, nil
}

// ScanFailed returns the failed records by unit id. The last occurrence of a
// unit id in file order wins: a later ok record clears an earlier error.
// Payloads of failed records are retained so replacements can carry over
// name/role metadata.
func ScanFailed(path string) (map[string]Record, error) {
	failed := map[string]Record{}
	_, err := scan(path, func(rec Record) {
		if rec.Status == StatusError {
			failed[rec.UnitID] = rec
		} else {
			delete(failed, rec.UnitID)
		}
	})
	if err != nil {
		return nil, err
	}
	return failed, nil
}

// Stats summarizes a ledger file for reporting and post-patch verification.
type LedgerStats struct {
	Lines     int
	Parsed    int
	UniqueIDs int
	OKCount   int
	ErrCount  int
	Retried   int
	Items     int
}

func Stats(path string) (LedgerStats, error) {
	var stats LedgerStats
	seen := map[string]bool{}

	lines, err := scan(path, func(rec Record) {
		stats.Parsed++
		seen[rec.UnitID] = true
		if rec.Status == StatusError {
			stats.ErrCount++
		} else {
			stats.OKCount++
		}
		if rec.Retried {
			stats.Retried++
		}
		stats.Items += rec.ItemCount
	})
	if err != nil {
		return stats, err
	}
	stats.Lines = lines
	stats.UniqueIDs = len(seen)
	return stats, nil
}
