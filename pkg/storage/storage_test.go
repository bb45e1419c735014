package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStore(t *testing.T, store Store) {
	var got map[string]string
	ok, err := store.Get("deployment", &got)
	require.NoError(t, err)
	assert.False(t, ok)

	exp := map[string]string{"/ws": "/home/dev"}
	require.NoError(t, store.Set("deployment", exp))

	ok, err = store.Get("deployment", &got)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, exp, got)

	// Overwrites replace the whole value.
	require.NoError(t, store.Set("deployment", map[string]string{"/other": "/srv"}))
	got = nil
	_, err = store.Get("deployment", &got)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"/other": "/srv"}, got)
}

func TestDiskStore(t *testing.T) {
	testStore(t, NewDiskStore(t.TempDir()))
}

func TestDiskStorePersists(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, NewDiskStore(dir).Set("deploymentStats", []int{1, 2}))

	var got []int
	ok, err := NewDiskStore(dir).Get("deploymentStats", &got)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []int{1, 2}, got)
}

func TestMemoryStore(t *testing.T) {
	testStore(t, NewMemoryStore())
}

func TestMemoryStoreCorruptValue(t *testing.T) {
	store := NewMemoryStore()
	require.NoError(t, store.Set("key", "string"))

	var into map[string]string
	_, err := store.Get("key", &into)
	assert.Error(t, err)
}
