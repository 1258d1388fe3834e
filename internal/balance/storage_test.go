package balance

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStorage_RoundTrip(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "cache", "balances.json")
	storage := NewFileStorage(path)
	assert.Equal(t, path, storage.Path())

	c := NewCache()
	c.Set(Entry{ChainID: 8453, Address: testHolder, Token: testToken, Raw: "1000000"})
	require.NoError(t, storage.Save(c))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	loaded, err := storage.Load()
	require.NoError(t, err)
	raw, ok := loaded.Fresh(8453, testHolder, testToken, DefaultTTL)
	require.True(t, ok)
	assert.Equal(t, "1000000", raw)
}

func TestFileStorage_LoadMissing(t *testing.T) {
	t.Parallel()
	loaded, err := NewFileStorage(filepath.Join(t.TempDir(), "none.json")).Load()
	require.NoError(t, err)
	assert.Equal(t, 0, loaded.Size())
}

func TestFileStorage_LoadCorrupt(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "balances.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	loaded, err := NewFileStorage(path).Load()
	require.ErrorIs(t, err, ErrCorruptCache)
	require.NotNil(t, loaded)
	assert.Equal(t, 0, loaded.Size())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, strings.HasPrefix(entries[0].Name(), "balances.json.corrupt."))
}

func TestFileStorage_LoadNullEntries(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "balances.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"entries":null}`), 0o600))

	loaded, err := NewFileStorage(path).Load()
	require.NoError(t, err)
	loaded.Set(Entry{ChainID: 1, Address: testHolder, Token: testToken, Raw: "1"})
	assert.Equal(t, 1, loaded.Size())
}

func TestFileStorage_Delete(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "balances.json")
	storage := NewFileStorage(path)

	require.NoError(t, storage.Delete())
	require.NoError(t, storage.Save(NewCache()))
	require.NoError(t, storage.Delete())

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}
