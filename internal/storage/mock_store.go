package storage

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// MockStore provides an in-memory BlobStore for testing.
type MockStore struct {
	mu      sync.RWMutex
	files   map[string][]byte
	modTime map[string]time.Time

	// FailWrites makes Write and Create return this error without changing anything.
	FailWrites error
	// FailDeletes makes Delete return this error without changing anything.
	FailDeletes error
}

// NewMockStore creates a mock blob store.
func NewMockStore() *MockStore {
	return &MockStore{
		files:   make(map[string][]byte),
		modTime: make(map[string]time.Time),
	}
}

// Write saves data to a file.
func (m *MockStore) Write(name string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailWrites != nil {
		return m.FailWrites
	}

	m.put(name, data)
	return nil
}

// Create saves data to a new file.
func (m *MockStore) Create(name string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailWrites != nil {
		return m.FailWrites
	}
	if _, ok := m.files[name]; ok {
		return fmt.Errorf("%w: %s", ErrFileExists, name)
	}

	m.put(name, data)
	return nil
}

func (m *MockStore) put(name string, data []byte) {
	m.files[name] = append([]byte(nil), data...)
	m.modTime[name] = time.Now()
}

// Read retrieves file contents.
func (m *MockStore) Read(name string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if data, ok := m.files[name]; ok {
		return append([]byte(nil), data...), nil
	}

	return nil, fmt.Errorf("%w: %s", ErrFileNotFound, name)
}

// Delete removes a file.
func (m *MockStore) Delete(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailDeletes != nil {
		return m.FailDeletes
	}
	if _, ok := m.files[name]; !ok {
		return fmt.Errorf("%w: %s", ErrFileNotFound, name)
	}

	delete(m.files, name)
	delete(m.modTime, name)
	return nil
}

// Exists checks if a file exists.
func (m *MockStore) Exists(name string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, exists := m.files[name]
	return exists, nil
}

// ListDir returns all files sorted by name.
func (m *MockStore) ListDir() ([]FileInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	files := make([]FileInfo, 0, len(m.files))
	for name, data := range m.files {
		files = append(files, FileInfo{
			Name:    name,
			Size:    int64(len(data)),
			Mode:    FileMode,
			ModTime: m.modTime[name],
		})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })

	return files, nil
}

// Helper methods for testing

// Put stores raw bytes, bypassing failure injection.
func (m *MockStore) Put(name string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.put(name, data)
}

// FileExists checks if a file exists (helper for tests).
func (m *MockStore) FileExists(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, exists := m.files[name]
	return exists
}
