package objectstore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestWriteThenRead(t *testing.T) {
	t.Parallel()

	store, err := New(t.TempDir())
	require.NoError(t, err)

	want := sample{Name: "foo", Count: 3}
	require.NoError(t, store.Write("suppliers/foo.json", want))

	var got sample
	require.NoError(t, store.Read("suppliers/foo.json", &got))
	assert.Equal(t, want, got)
}

func TestReadMissingFileReturnsZeroValue(t *testing.T) {
	t.Parallel()

	store, err := New(t.TempDir())
	require.NoError(t, err)

	var got sample
	require.NoError(t, store.Read("suppliers/missing.json", &got))
	assert.Equal(t, sample{}, got)
}

func TestReadCorruptFileReturnsZeroValue(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store, err := New(dir)
	require.NoError(t, err)

	corruptPath := filepath.Join(dir, "suppliers", "bad.json")
	require.NoError(t, store.Write("suppliers/bad.json", sample{Name: "x"}))
	require.NoError(t, os.WriteFile(corruptPath, []byte("{not json"), 0o644))

	var got sample
	require.NoError(t, store.Read("suppliers/bad.json", &got))
	assert.Equal(t, sample{}, got)
}

func TestListAndRemoveTree(t *testing.T) {
	t.Parallel()

	store, err := New(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.Write("context/a/config.json", sample{Name: "a"}))
	require.NoError(t, store.Write("context/b/config.json", sample{Name: "b"}))

	names, err := store.List("context")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b"}, names)

	require.NoError(t, store.RemoveTree("context/a"))
	names, err = store.List("context")
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, names)
}

func TestListMissingDirReturnsNil(t *testing.T) {
	t.Parallel()

	store, err := New(t.TempDir())
	require.NoError(t, err)

	names, err := store.List("nope")
	require.NoError(t, err)
	assert.Nil(t, names)
}
