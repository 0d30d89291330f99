package testutil

import (
	"context"
	"encoding/json"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mhmdtwsm/GradProject-sub000/internal/config"
)

// LogEntry represents a captured log entry for testing
type LogEntry struct {
	Level   string                 `json:"level"`
	Message string                 `json:"msg"`
	Fields  map[string]interface{} `json:"-"`
}

// TestTimeout provides timeout context for tests.
func TestTimeout(duration time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), duration)
}

// TestContext creates a test context with reasonable timeout.
func TestContext() (context.Context, context.CancelFunc) {
	return TestTimeout(30 * time.Second)
}

// TestConfigWithDir creates a test configuration rooted at dataDir.
func TestConfigWithDir(dataDir string) *config.Config {
	cfg := config.DefaultConfig()
	cfg.Storage.DataDir = dataDir
	cfg.Storage.VaultDir = dataDir + string(os.PathSeparator) + "vaults"
	cfg.Storage.SQLitePath = dataDir + string(os.PathSeparator) + "vaults.db"
	kdf := FastKDF()
	cfg.KDF = config.KDFConfig{
		Algorithm:   string(kdf.Algorithm),
		Iterations:  kdf.Iterations,
		MemoryKiB:   kdf.MemoryKiB,
		Parallelism: kdf.Parallelism,
	}
	cfg.Log = config.LogConfig{Level: "debug", Format: "json"}
	return cfg
}

// WaitForCondition waits for a condition to be true with timeout.
func WaitForCondition(t *testing.T, condition func() bool, timeout time.Duration, message string) {
	t.Helper()

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case <-timer.C:
			t.Fatalf("Timeout waiting for condition: %s", message)
		case <-ticker.C:
			if condition() {
				return
			}
		}
	}
}

// AssertFileMode checks the permission bits of path.
func AssertFileMode(t *testing.T, path string, want os.FileMode) {
	t.Helper()
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, want, info.Mode().Perm(), "mode of %s", path)
}

// LogOutput captures JSON log output for testing.
type LogOutput struct {
	mu      sync.RWMutex
	raw     strings.Builder
	entries []LogEntry
}

// NewLogOutput creates a new log output capturer.
func NewLogOutput() *LogOutput {
	return &LogOutput{}
}

// Write implements io.Writer to capture log output.
func (lo *LogOutput) Write(p []byte) (n int, err error) {
	lo.mu.Lock()
	defer lo.mu.Unlock()

	lo.raw.Write(p)

	var entry LogEntry
	if err := json.Unmarshal(p, &entry); err == nil {
		_ = json.Unmarshal(p, &entry.Fields)
		lo.entries = append(lo.entries, entry)
	}
	return len(p), nil
}

// Entries returns captured log entries.
func (lo *LogOutput) Entries() []LogEntry {
	lo.mu.RLock()
	defer lo.mu.RUnlock()

	entries := make([]LogEntry, len(lo.entries))
	copy(entries, lo.entries)
	return entries
}

// HasMessage checks if any log entry contains the message.
func (lo *LogOutput) HasMessage(message string) bool {
	lo.mu.RLock()
	defer lo.mu.RUnlock()

	for _, entry := range lo.entries {
		if strings.Contains(entry.Message, message) {
			return true
		}
	}
	return false
}

// String returns everything written so far.
func (lo *LogOutput) String() string {
	lo.mu.RLock()
	defer lo.mu.RUnlock()
	return lo.raw.String()
}

// SkipIfShort skips test if testing.Short() is true.
func SkipIfShort(t *testing.T, reason string) {
	if testing.Short() {
		t.Skipf("Skipping test in short mode: %s", reason)
	}
}
