package storage

import (
	"bytes"
	"crypto/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey(t *testing.T) []byte {
	t.Helper()
	key := make([]byte, 32)
	_, err := rand.Read(key)
	require.NoError(t, err)
	return key
}

func TestWriteRead(t *testing.T) {
	d, err := NewDisk(t.TempDir(), 0)
	require.NoError(t, err)
	key := testKey(t)
	data := []byte("not really a jpeg")

	path, err := d.Write("sess", "img", key, data)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(d.Dir(), "sess", "img.bin"), path)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.False(t, bytes.Contains(raw, data), "files are sealed at rest")

	got, err := d.Read(path, key)
	require.NoError(t, err)
	assert.Equal(t, data, got)

	_, err = d.Read(path, testKey(t))
	assert.Error(t, err)
}

func TestWrite_NoTempLeftovers(t *testing.T) {
	d, err := NewDisk(t.TempDir(), 0)
	require.NoError(t, err)

	_, err = d.Write("sess", "img", testKey(t), []byte("x"))
	require.NoError(t, err)

	entries, err := os.ReadDir(filepath.Join(d.Dir(), "sess"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "img.bin", entries[0].Name())
}

func TestWrite_InvalidNames(t *testing.T) {
	d, err := NewDisk(t.TempDir(), 0)
	require.NoError(t, err)

	for _, name := range []string{"", ".", "..", "../escape", "a/b"} {
		_, err := d.Write(name, "img", testKey(t), nil)
		assert.ErrorIs(t, err, ErrInvalidName, name)
		_, err = d.Write("sess", name, testKey(t), nil)
		assert.ErrorIs(t, err, ErrInvalidName, name)
	}
}

func TestWrite_NoSpace(t *testing.T) {
	dir := t.TempDir()
	if _, ok := freeBytes(dir); !ok {
		t.Skip("free space not available on this platform")
	}

	d, err := NewDisk(dir, 1<<62)
	require.NoError(t, err)

	_, err = d.Write("sess", "img", testKey(t), []byte("x"))
	assert.ErrorIs(t, err, ErrNoSpace)
}

func TestRemove_ToleratesMissing(t *testing.T) {
	d, err := NewDisk(t.TempDir(), 0)
	require.NoError(t, err)

	path, err := d.Write("sess", "img", testKey(t), []byte("x"))
	require.NoError(t, err)

	assert.NoError(t, d.Remove(path))
	assert.NoError(t, d.Remove(path))
}

func TestReclaim(t *testing.T) {
	d, err := NewDisk(t.TempDir(), 0)
	require.NoError(t, err)
	key := testKey(t)

	var paths []string
	for _, id := range []string{"a", "b", "c"} {
		p, err := d.Write("sess", id, key, []byte(id))
		require.NoError(t, err)
		paths = append(paths, p)
	}
	require.NoError(t, d.Remove(paths[0]))

	d.Reclaim("sess", paths)

	_, err = os.Stat(filepath.Join(d.Dir(), "sess"))
	assert.True(t, os.IsNotExist(err))
}

func TestReclaim_KeepsClaimedFile(t *testing.T) {
	d, err := NewDisk(t.TempDir(), 0)
	require.NoError(t, err)
	key := testKey(t)

	listed, err := d.Write("sess", "a", key, []byte("a"))
	require.NoError(t, err)
	claimed, err := d.Write("sess", "b", key, []byte("b"))
	require.NoError(t, err)

	d.Reclaim("sess", []string{listed})

	_, err = os.Stat(listed)
	assert.True(t, os.IsNotExist(err))
	got, err := d.Read(claimed, key)
	require.NoError(t, err)
	assert.Equal(t, []byte("b"), got)

	require.NoError(t, d.Remove(claimed))
	d.RemoveEmptyDir("sess")
	_, err = os.Stat(filepath.Join(d.Dir(), "sess"))
	assert.True(t, os.IsNotExist(err))
}

func TestPurge(t *testing.T) {
	dir := t.TempDir()
	d, err := NewDisk(dir, 0)
	require.NoError(t, err)

	_, err = d.Write("0b5e8f4a-6d1c-4f7e-9a2b-3c4d5e6f7a81", "img", testKey(t), []byte("x"))
	require.NoError(t, err)
	_, err = d.Write("7c9d1e2f-3a4b-4c5d-8e6f-9a0b1c2d3e4f", "img", testKey(t), []byte("x"))
	require.NoError(t, err)

	// things that are not session directories must survive
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("keep"), 0o600))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "other-app"), 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "0b5e8f4a-6d1c-4f7e-9a2b-3c4d5e6f7a82"), []byte("file"), 0o600))

	n, err := d.Purge()
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.ElementsMatch(t, []string{"notes.txt", "other-app", "0b5e8f4a-6d1c-4f7e-9a2b-3c4d5e6f7a82"}, names)
}

func TestOpen_ShortInput(t *testing.T) {
	_, err := open(testKey(t), []byte("short"))
	assert.ErrorIs(t, err, errShortCiphertext)
}
