package storage_test

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mhmdtwsm/GradProject-sub000/internal/events"
	"github.com/mhmdtwsm/GradProject-sub000/internal/storage"
)

func newLocalStore(t *testing.T) (*storage.LocalStore, string) {
	t.Helper()
	tmpDir := t.TempDir()
	var buf bytes.Buffer
	logger := events.NewTestLogger(events.DebugLevel, "json", &buf)

	store, err := storage.NewLocalStore(tmpDir, logger)
	require.NoError(t, err)
	return store, tmpDir
}

func TestAtomicWrites(t *testing.T) {
	store, tmpDir := newLocalStore(t)

	t.Run("concurrent writes different files", func(t *testing.T) {
		var wg sync.WaitGroup
		errs := make(chan error, 10)

		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func(n int) {
				defer wg.Done()
				name := fmt.Sprintf("concurrent-%d.json", n)
				if err := store.Write(name, []byte(fmt.Sprintf("content-%d", n))); err != nil {
					errs <- err
				}
			}(i)
		}

		wg.Wait()
		close(errs)

		for err := range errs {
			t.Errorf("Write error: %v", err)
		}

		for i := 0; i < 10; i++ {
			data, err := store.Read(fmt.Sprintf("concurrent-%d.json", i))
			require.NoError(t, err)
			assert.Equal(t, fmt.Sprintf("content-%d", i), string(data))
		}
	})

	t.Run("overwrite replaces content", func(t *testing.T) {
		require.NoError(t, store.Write("replace.json", []byte("old content that is longer")))
		require.NoError(t, store.Write("replace.json", []byte("new")))

		data, err := store.Read("replace.json")
		require.NoError(t, err)
		assert.Equal(t, "new", string(data))
	})

	t.Run("files are private", func(t *testing.T) {
		if runtime.GOOS == "windows" {
			t.Skip("POSIX permissions")
		}
		require.NoError(t, store.Write("private.json", []byte("x")))

		info, err := os.Stat(filepath.Join(tmpDir, "private.json"))
		require.NoError(t, err)
		assert.Equal(t, storage.FileMode, info.Mode().Perm())
	})

	t.Run("size limit", func(t *testing.T) {
		small, _ := newLocalStore(t)
		small.SetMaxFileSize(1024)

		err := small.Write("large.json", bytes.Repeat([]byte("b"), 2048))
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "too large")

		exists, _ := small.Exists("large.json")
		assert.False(t, exists)
	})

	t.Run("write failure cleanup", func(t *testing.T) {
		// A directory in place of the target makes the rename fail.
		require.NoError(t, os.Mkdir(filepath.Join(tmpDir, "blocker"), 0700))

		err := store.Write("blocker", []byte("data"))
		assert.Error(t, err)

		entries, err := os.ReadDir(tmpDir)
		require.NoError(t, err)
		for _, e := range entries {
			assert.NotContains(t, e.Name(), ".tmp.", "Found temp file: %s", e.Name())
		}
	})
}

func TestCreateIsExclusive(t *testing.T) {
	store, tmpDir := newLocalStore(t)

	var wg sync.WaitGroup
	var wins atomic.Int32

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			err := store.Create("same.json", []byte(fmt.Sprintf("writer-%d", n)))
			if err == nil {
				wins.Add(1)
				return
			}
			assert.True(t, errors.Is(err, storage.ErrFileExists), "unexpected error: %v", err)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())

	data, err := store.Read("same.json")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "writer-"))

	entries, err := os.ReadDir(tmpDir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must be cleaned up")
}

func TestReadDeleteMissing(t *testing.T) {
	store, _ := newLocalStore(t)

	_, err := store.Read("missing.json")
	assert.ErrorIs(t, err, storage.ErrFileNotFound)

	err = store.Delete("missing.json")
	assert.ErrorIs(t, err, storage.ErrFileNotFound)

	require.NoError(t, store.Write("present.json", []byte("x")))
	require.NoError(t, store.Delete("present.json"))

	exists, err := store.Exists("present.json")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestCrashLeftovers(t *testing.T) {
	store, tmpDir := newLocalStore(t)

	require.NoError(t, store.Write("vault.json", []byte("committed")))

	// Simulate a crash between temp write and rename.
	stale := filepath.Join(tmpDir, "vault.json.tmp.12345")
	require.NoError(t, os.WriteFile(stale, []byte("half written"), 0600))

	files, err := store.ListDir()
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "vault.json", files[0].Name)

	data, err := store.Read("vault.json")
	require.NoError(t, err)
	assert.Equal(t, "committed", string(data))

	removed, err := store.CleanTemp()
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.NoFileExists(t, stale)
}

func TestListDirSkipsDirectories(t *testing.T) {
	store, tmpDir := newLocalStore(t)

	require.NoError(t, store.Write("a.json", []byte("a")))
	require.NoError(t, os.Mkdir(filepath.Join(tmpDir, "sub"), 0700))

	files, err := store.ListDir()
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "a.json", files[0].Name)
	assert.Equal(t, int64(1), files[0].Size)
}

func TestMockStoreFailureInjection(t *testing.T) {
	store := storage.NewMockStore()
	require.NoError(t, store.Create("a", []byte("1")))

	err := store.Create("a", []byte("2"))
	assert.ErrorIs(t, err, storage.ErrFileExists)

	boom := errors.New("disk full")
	store.FailWrites = boom
	assert.ErrorIs(t, store.Write("a", []byte("3")), boom)

	data, err := store.Read("a")
	require.NoError(t, err)
	assert.Equal(t, "1", string(data))

	store.FailDeletes = boom
	assert.ErrorIs(t, store.Delete("a"), boom)
	assert.True(t, store.FileExists("a"))
}
