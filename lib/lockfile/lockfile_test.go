package lockfile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAcquireRelease(t *testing.T) {
	ledger := filepath.Join(t.TempDir(), "ledger.jsonl")

	lock, err := Acquire(ledger)
	require.NoError(t, err)

	_, err = os.Stat(ledger + ".lock")
	require.NoError(t, err)

	require.NoError(t, lock.Release())
	_, err = os.Stat(ledger + ".lock")
	require.True(t, os.IsNotExist(err))
}

func TestAcquireContention(t *testing.T) {
	ledger := filepath.Join(t.TempDir(), "ledger.jsonl")

	lock, err := Acquire(ledger)
	require.NoError(t, err)
	defer lock.Release()

	_, err = Acquire(ledger)
	require.Error(t, err)
	require.Contains(t, err.Error(), "ledger is locked")
}

func TestReacquireAfterRelease(t *testing.T) {
	ledger := filepath.Join(t.TempDir(), "ledger.jsonl")

	lock, err := Acquire(ledger)
	require.NoError(t, err)
	require.NoError(t, lock.Release())

	lock, err = Acquire(ledger)
	require.NoError(t, err)
	require.NoError(t, lock.Release())
}
