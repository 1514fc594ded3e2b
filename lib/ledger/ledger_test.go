package ledger

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func appendAll(t *testing.T, path string, recs ...Record) {
	w, err := OpenWriter(path)
	require.NoError(t, err)
	defer w.Close()
	for _, rec := range recs {
		require.NoError(t, w.Append(rec))
	}
}

func okRecord(id string, items int) Record {
	payload := make([]json.RawMessage, items)
	for i := range payload {
		payload[i] = json.RawMessage(`{"title":"pub"}`)
	}
	return Record{
		UnitID:       id,
		Status:       StatusOK,
		Payload:      payload,
		ItemCount:    items,
		AttemptCount: 1,
		Timestamp:    time.Now().UTC(),
	}
}

func errRecord(id string) Record {
	return Record{
		UnitID:       id,
		Status:       StatusError,
		Payload:      []json.RawMessage{},
		ErrorMessage: "HTTP 429",
		HTTPStatus:   429,
		AttemptCount: 1,
		Timestamp:    time.Now().UTC(),
	}
}

func TestAppendScanRoundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.jsonl")
	appendAll(t, path, okRecord("1001", 3), errRecord("1002"))

	done, err := ScanDone(path)
	require.NoError(t, err)
	require.Equal(t, map[string]bool{"1001": true, "1002": true}, done)

	failed, err := ScanFailed(path)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	require.Equal(t, 429, failed["1002"].HTTPStatus)
}

func TestScanMissingFile(t *testing.T) {
	done, err := ScanDone(filepath.Join(t.TempDir(), "nope.jsonl"))
	require.NoError(t, err)
	require.Empty(t, done)
}

func TestScanSkipsMalformedLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.jsonl")
	lines := []string{
		`{"unit_id":"1001","status":"ok","payload":[],"item_count":0,"attempt_count":1,"timestamp":"2026-08-01T00:00:00Z"}`,
		`{"unit_id":"1002","status":"ok","pay`, // torn write from a crash
		`{"status":"ok","payload":[]}`,
		`{"unit_id":"1003","status":"error","payload":[],"attempt_count":1,"timestamp":"2026-08-01T00:00:00Z"}`,
	}
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0644))

	done, err := ScanDone(path)
	require.NoError(t, err)
	require.Equal(t, map[string]bool{"1001": true, "1003": true}, done)

	stats, err := Stats(path)
	require.NoError(t, err)
	require.Equal(t, 4, stats.Lines)
	require.Equal(t, 2, stats.Parsed)
}

func TestLastOccurrenceWins(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.jsonl")
	appendAll(t, path,
		errRecord("1001"),
		okRecord("1001", 2),
		okRecord("1002", 1),
		errRecord("1002"),
	)

	failed, err := ScanFailed(path)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	require.Contains(t, failed, "1002")
}

func TestRewriteSubstitutesInPlace(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ledger.jsonl")
	appendAll(t, path, okRecord("a", 1), errRecord("b"), okRecord("c", 2))

	original, err := os.ReadFile(path)
	require.NoError(t, err)
	originalLines := strings.Split(strings.TrimRight(string(original), "\n"), "\n")

	repl := okRecord("b", 5)
	repl.Retried = true
	repl.AttemptCount = 2
	outPath := filepath.Join(dir, "patched.jsonl")
	require.NoError(t, Rewrite(path, outPath, map[string]Record{"b": repl}))

	patched, err := os.ReadFile(outPath)
	require.NoError(t, err)
	patchedLines := strings.Split(strings.TrimRight(string(patched), "\n"), "\n")
	require.Len(t, patchedLines, 3)

	// untouched lines pass through byte-for-byte, position is preserved
	require.Equal(t, originalLines[0], patchedLines[0])
	require.Equal(t, originalLines[2], patchedLines[2])

	var got Record
	require.NoError(t, json.Unmarshal([]byte(patchedLines[1]), &got))
	require.Equal(t, "b", got.UnitID)
	require.Equal(t, StatusOK, got.Status)
	require.True(t, got.Retried)
	require.Equal(t, 2, got.AttemptCount)

	// input untouched
	after, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, original, after)
}

func TestRewriteMissingInputLeavesNoOutput(t *testing.T) {
	dir := t.TempDir()
	outPath := filepath.Join(dir, "patched.jsonl")
	err := Rewrite(filepath.Join(dir, "nope.jsonl"), outPath, nil)
	require.Error(t, err)

	_, err = os.Stat(outPath)
	require.True(t, os.IsNotExist(err))
	_, err = os.Stat(outPath + ".tmp")
	require.True(t, os.IsNotExist(err))
}

func TestBackup(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.jsonl")
	appendAll(t, path, okRecord("a", 1))

	backupPath, err := Backup(path)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(backupPath, path+".bak-"))

	original, err := os.ReadFile(path)
	require.NoError(t, err)
	backup, err := os.ReadFile(backupPath)
	require.NoError(t, err)
	require.Equal(t, original, backup)
}

func TestStats(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.jsonl")
	retried := okRecord("b", 4)
	retried.Retried = true
	retried.AttemptCount = 2
	appendAll(t, path, okRecord("a", 3), errRecord("b"), retried)

	stats, err := Stats(path)
	require.NoError(t, err)
	require.Equal(t, 3, stats.Lines)
	require.Equal(t, 3, stats.Parsed)
	require.Equal(t, 2, stats.UniqueIDs)
	require.Equal(t, 2, stats.OKCount)
	require.Equal(t, 1, stats.ErrCount)
	require.Equal(t, 1, stats.Retried)
	require.Equal(t, 7, stats.Items)
}
