package fileutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommitAppliesAllWrites(t *testing.T) {
	dir := t.TempDir()

	tx := NewTransaction(dir)
	tx.Write("a", []byte("one"))
	tx.Write("b", []byte("two"))
	require.NoError(t, tx.Commit())

	a, err := os.ReadFile(filepath.Join(dir, "a"))
	require.NoError(t, err)
	assert.Equal(t, "one", string(a))
	b, err := os.ReadFile(filepath.Join(dir, "b"))
	require.NoError(t, err)
	assert.Equal(t, "two", string(b))
}

func TestCommitRemoves(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a"), []byte("old"), 0o600))

	tx := NewTransaction(dir)
	tx.Remove("a")
	tx.Remove("missing")
	require.NoError(t, tx.Commit())

	_, err := os.Stat(filepath.Join(dir, "a"))
	assert.True(t, os.IsNotExist(err))
}

func TestFailedCommitRestoresOriginals(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a"), []byte("original"), 0o600))

	// A write into a missing subdirectory fails after "a" has already been
	// replaced.
	tx := NewTransaction(dir)
	tx.Write("a", []byte("changed"))
	tx.Write(filepath.Join("no-such-dir", "b"), []byte("x"))
	require.Error(t, tx.Commit())

	a, err := os.ReadFile(filepath.Join(dir, "a"))
	require.NoError(t, err)
	assert.Equal(t, "original", string(a))
}
