package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSequentialRotator_Write_OpensFileLazily(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "app.log")
	rotator := NewSequentialRotator(path, 1, 0, 0)
	defer func() { _ = rotator.Close() }()

	assert.Nil(t, rotator.file)

	n, err := rotator.Write([]byte("hello\n"))
	require.NoError(t, err)
	assert.Equal(t, 6, n)
	assert.Equal(t, int64(6), rotator.size)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "hello\n", string(data))
}

func TestSequentialRotator_Write_RotatesWhenFull(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.log")
	rotator := NewSequentialRotator(path, 0, 0, 0)
	rotator.maxSize = 10
	defer func() { _ = rotator.Close() }()

	_, err := rotator.Write([]byte("0123456789"))
	require.NoError(t, err)
	_, err = rotator.Write([]byte("abc"))
	require.NoError(t, err)

	rotated, err := os.ReadFile(filepath.Join(dir, "app.1.log"))
	require.NoError(t, err)
	assert.Equal(t, "0123456789", string(rotated))

	current, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "abc", string(current))
}

func TestSequentialRotator_Cleanup_KeepsMaxBackups(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.log")
	rotator := NewSequentialRotator(path, 0, 0, 2)
	rotator.maxSize = 4
	defer func() { _ = rotator.Close() }()

	for i := 0; i < 5; i++ {
		_, err := rotator.Write([]byte("data"))
		require.NoError(t, err)
	}

	matches, err := filepath.Glob(filepath.Join(dir, "app.*.log"))
	require.NoError(t, err)
	assert.Len(t, matches, 2)
	for _, m := range matches {
		assert.False(t, strings.HasSuffix(m, "app.1.log"), "oldest backup should be removed")
	}
}

func TestSequentialRotator_Close_Idempotent(t *testing.T) {
	rotator := NewSequentialRotator(filepath.Join(t.TempDir(), "app.log"), 1, 0, 0)

	assert.NoError(t, rotator.Close())
	_, err := rotator.Write([]byte("x"))
	require.NoError(t, err)
	assert.NoError(t, rotator.Close())
	assert.NoError(t, rotator.Close())
}
