package store_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mhmdtwsm/GradProject-sub000/internal/store"
	"github.com/mhmdtwsm/GradProject-sub000/test/testutil"
)

type changeLog struct {
	mu      sync.Mutex
	changes map[string][]store.ChangeKind
}

func (c *changeLog) record(kind store.ChangeKind, id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.changes[id] = append(c.changes[id], kind)
}

func (c *changeLog) has(id string, kind store.ChangeKind) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range c.changes[id] {
		if k == kind {
			return true
		}
	}
	return false
}

func TestWatcherReportsRecordChanges(t *testing.T) {
	dir := t.TempDir()
	logger := testutil.NewTestLogger()

	s, err := store.NewJSONStore(dir, logger)
	require.NoError(t, err)

	w, err := store.NewWatcher(dir, logger)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	log := &changeLog{changes: make(map[string][]store.ChangeKind)}
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx, log.record) }()

	fx := testutil.NewFixture(t, "Work", "pw", nil)
	require.NoError(t, s.Create(ctx, fx.Vault))

	testutil.WaitForCondition(t, func() bool {
		return log.has(fx.Vault.ID, store.ChangeWritten)
	}, 2*time.Second, "create reported")

	require.NoError(t, s.Delete(ctx, fx.Vault.ID))

	testutil.WaitForCondition(t, func() bool {
		return log.has(fx.Vault.ID, store.ChangeRemoved)
	}, 2*time.Second, "delete reported")

	// Foreign files are ignored.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0600))

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop")
	}

	log.mu.Lock()
	defer log.mu.Unlock()
	require.Len(t, log.changes, 1)
}
