package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStoreContract(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	_, err := s.Get(ctx, KeyCart)
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Set(ctx, KeyCart, []byte(`{"items":[]}`)))
	got, err := s.Get(ctx, KeyCart)
	require.NoError(t, err)
	assert.JSONEq(t, `{"items":[]}`, string(got))

	require.NoError(t, s.Set(ctx, KeyCart, []byte(`{"items":[{"id":"a"}]}`)))
	got, err = s.Get(ctx, KeyCart)
	require.NoError(t, err)
	assert.JSONEq(t, `{"items":[{"id":"a"}]}`, string(got))

	require.NoError(t, s.Remove(ctx, KeyCart))
	_, err = s.Get(ctx, KeyCart)
	require.ErrorIs(t, err, ErrNotFound)

	// removing twice is fine
	require.NoError(t, s.Remove(ctx, KeyCart))
}

func TestMemoryStore(t *testing.T) {
	testStoreContract(t, NewMemoryStore())
}

func TestMemoryStore_CopiesValues(t *testing.T) {
	s := NewMemoryStore()
	buf := []byte("abc")
	require.NoError(t, s.Set(context.Background(), "k", buf))
	buf[0] = 'x'

	got, err := s.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(got))
}

func TestFileStore(t *testing.T) {
	fs, err := NewFileStore(filepath.Join(t.TempDir(), "nested", "store"))
	require.NoError(t, err)
	testStoreContract(t, fs)
}

func TestFileStore_WritesJSONFilePerKey(t *testing.T) {
	dir := t.TempDir()
	fs, err := NewFileStore(dir)
	require.NoError(t, err)

	require.NoError(t, fs.Set(context.Background(), KeyBookmarks, []byte(`[]`)))

	data, err := os.ReadFile(filepath.Join(dir, KeyBookmarks+".json"))
	require.NoError(t, err)
	assert.Equal(t, "[]", string(data))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")
}

func TestFileStore_RejectsPathKeys(t *testing.T) {
	fs, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	err = fs.Set(context.Background(), "../escape", []byte("x"))
	assert.ErrorContains(t, err, "invalid key")
}

func TestJSONHelpers(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	type snap struct {
		Items []string `json:"items"`
	}
	require.NoError(t, SaveJSON(ctx, s, KeyCart, snap{Items: []string{"a", "b"}}))

	var out snap
	require.NoError(t, LoadJSON(ctx, s, KeyCart, &out))
	assert.Equal(t, []string{"a", "b"}, out.Items)

	require.ErrorIs(t, LoadJSON(ctx, s, "missing", &out), ErrNotFound)

	require.NoError(t, s.Set(ctx, "broken", []byte("{")))
	assert.ErrorContains(t, LoadJSON(ctx, s, "broken", &out), "decode broken")
}
