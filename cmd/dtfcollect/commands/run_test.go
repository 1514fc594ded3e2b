package commands

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// a config pointing at a closed port makes session establishment fail fast
// without touching the network
func writeUnreachableConfig(t *testing.T, dir string) {
	config := `{
		"base_url": "http://127.0.0.1:9",
		"settle_wait_seconds": 1
	}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "dtfcollect.json5"), []byte(config), 0644))
}

func TestRunFailureReleasesLock(t *testing.T) {
	dir := t.TempDir()
	cwd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(cwd) })

	writeUnreachableConfig(t, dir)
	snapshot := `{"entities": [{"unique_ID": "1001", "name": "Acme Robotics", "role": "company"}]}`
	require.NoError(t, os.WriteFile("universe.json", []byte(snapshot), 0644))

	ledgerPath := filepath.Join(dir, "ledger.jsonl")
	rootCmd.SetArgs([]string{"run", "--universe", "universe.json", "--output", ledgerPath})
	err = rootCmd.ExecuteContext(context.Background())
	require.Error(t, err)

	// a failed run must not leave its advisory lock behind
	_, statErr := os.Stat(ledgerPath + ".lock")
	require.True(t, os.IsNotExist(statErr))
}

func TestRetryFailureReleasesLock(t *testing.T) {
	dir := t.TempDir()
	cwd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(cwd) })

	writeUnreachableConfig(t, dir)
	ledgerPath := filepath.Join(dir, "ledger.jsonl")
	failedLine := `{"unit_id":"1001","status":"error","payload":[],"error_message":"HTTP 429","attempt_count":1,"timestamp":"2026-08-01T00:00:00Z"}` + "\n"
	require.NoError(t, os.WriteFile(ledgerPath, []byte(failedLine), 0644))

	rootCmd.SetArgs([]string{"retry", "--input", ledgerPath, "--inplace", "--max-attempts", "1"})
	err = rootCmd.ExecuteContext(context.Background())
	require.Error(t, err)

	_, statErr := os.Stat(ledgerPath + ".lock")
	require.True(t, os.IsNotExist(statErr))
}
