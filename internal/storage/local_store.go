package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync/atomic"
	"time"

	"github.com/mhmdtwsm/GradProject-sub000/internal/events"
)

const (
	// FileMode of every file the store writes.
	FileMode os.FileMode = 0600

	// DirMode of the store directory.
	DirMode os.FileMode = 0700

	maxNameLength = 255
)

var tempSeq atomic.Uint64

// LocalStore implements BlobStore on the local file system. Every write goes
// through a temp file that is synced and renamed over the target, followed by
// a sync of the directory, so a crash leaves either the old or the new file.
type LocalStore struct {
	baseDir     string
	logger      *events.Logger
	maxFileSize int64
}

// NewLocalStore creates a local file store rooted at baseDir.
func NewLocalStore(baseDir string, logger *events.Logger) (*LocalStore, error) {
	absPath, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("resolve base directory: %w", err)
	}

	if err := os.MkdirAll(absPath, DirMode); err != nil {
		return nil, fmt.Errorf("create base directory: %w", err)
	}

	return &LocalStore{
		baseDir:     absPath,
		logger:      logger.WithField("component", "local_store"),
		maxFileSize: 64 * 1024 * 1024,
	}, nil
}

// Dir returns the absolute base directory.
func (s *LocalStore) Dir() string {
	return s.baseDir
}

// SetMaxFileSize sets the maximum file size limit.
func (s *LocalStore) SetMaxFileSize(size int64) {
	s.maxFileSize = size
}

// Write saves data to a file atomically.
func (s *LocalStore) Write(name string, data []byte) error {
	safePath, err := s.sanitizeName(name)
	if err != nil {
		return fmt.Errorf("sanitize name: %w", err)
	}

	s.logger.WithFields(map[string]interface{}{
		"file": name,
		"size": len(data),
	}).Debug("Writing file")

	tempPath, err := s.writeTemp(safePath, data)
	if err != nil {
		return err
	}

	if err := os.Rename(tempPath, safePath); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("rename temp file: %w", err)
	}

	return s.syncDir()
}

// Create writes a new file atomically. Hard-linking the synced temp file into
// place fails if the target exists, so two creators can't both succeed.
func (s *LocalStore) Create(name string, data []byte) error {
	safePath, err := s.sanitizeName(name)
	if err != nil {
		return fmt.Errorf("sanitize name: %w", err)
	}

	s.logger.WithFields(map[string]interface{}{
		"file": name,
		"size": len(data),
	}).Debug("Creating file")

	tempPath, err := s.writeTemp(safePath, data)
	if err != nil {
		return err
	}
	defer os.Remove(tempPath)

	if err := os.Link(tempPath, safePath); err != nil {
		if errors.Is(err, os.ErrExist) {
			return fmt.Errorf("%w: %s", ErrFileExists, name)
		}
		return fmt.Errorf("link temp file: %w", err)
	}

	return s.syncDir()
}

func (s *LocalStore) writeTemp(safePath string, data []byte) (string, error) {
	if int64(len(data)) > s.maxFileSize {
		return "", fmt.Errorf("file too large: %d bytes (max: %d)", len(data), s.maxFileSize)
	}

	tempPath := fmt.Sprintf("%s%s%d-%d", safePath, tempMarker, time.Now().UnixNano(), tempSeq.Add(1))
	file, err := os.OpenFile(tempPath, os.O_CREATE|os.O_WRONLY|os.O_EXCL, FileMode)
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}

	success := false
	defer func() {
		if !success {
			_ = file.Close()
			_ = os.Remove(tempPath)
		}
	}()

	if _, err := file.Write(data); err != nil {
		return "", fmt.Errorf("write temp file: %w", err)
	}
	if err := file.Sync(); err != nil {
		return "", fmt.Errorf("sync temp file: %w", err)
	}
	if err := file.Close(); err != nil {
		return "", fmt.Errorf("close temp file: %w", err)
	}

	success = true
	return tempPath, nil
}

// syncDir makes a completed rename durable. Windows can't fsync directories.
func (s *LocalStore) syncDir() error {
	if runtime.GOOS == "windows" {
		return nil
	}

	dir, err := os.Open(s.baseDir)
	if err != nil {
		return fmt.Errorf("open directory: %w", err)
	}
	defer dir.Close()

	if err := dir.Sync(); err != nil {
		return fmt.Errorf("sync directory: %w", err)
	}
	return nil
}

// Read retrieves file contents.
func (s *LocalStore) Read(name string) ([]byte, error) {
	safePath, err := s.sanitizeName(name)
	if err != nil {
		return nil, fmt.Errorf("sanitize name: %w", err)
	}

	stat, err := os.Lstat(safePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrFileNotFound, name)
		}
		return nil, fmt.Errorf("stat file: %w", err)
	}
	if stat.Mode()&os.ModeSymlink != 0 {
		return nil, fmt.Errorf("symlinks not allowed: %s", name)
	}
	if stat.Size() > s.maxFileSize {
		return nil, fmt.Errorf("file too large: %d bytes (max: %d)", stat.Size(), s.maxFileSize)
	}

	data, err := os.ReadFile(safePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrFileNotFound, name)
		}
		return nil, fmt.Errorf("read file: %w", err)
	}

	return data, nil
}

// Delete removes a file.
func (s *LocalStore) Delete(name string) error {
	safePath, err := s.sanitizeName(name)
	if err != nil {
		return fmt.Errorf("sanitize name: %w", err)
	}

	s.logger.WithField("file", name).Debug("Deleting file")

	if err := os.Remove(safePath); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrFileNotFound, name)
		}
		return fmt.Errorf("delete file: %w", err)
	}

	return s.syncDir()
}

// Exists checks if a file exists.
func (s *LocalStore) Exists(name string) (bool, error) {
	safePath, err := s.sanitizeName(name)
	if err != nil {
		return false, fmt.Errorf("sanitize name: %w", err)
	}

	_, err = os.Lstat(safePath)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

// ListDir returns directory contents.
func (s *LocalStore) ListDir() ([]FileInfo, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		return nil, fmt.Errorf("read directory: %w", err)
	}

	var files []FileInfo
	for _, entry := range entries {
		if !entry.Type().IsRegular() || isTempName(entry.Name()) {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}

		files = append(files, FileInfo{
			Name:    entry.Name(),
			Size:    info.Size(),
			Mode:    info.Mode(),
			ModTime: info.ModTime(),
		})
	}

	return files, nil
}

// CleanTemp removes temp files left behind by an interrupted write and
// returns how many it removed.
func (s *LocalStore) CleanTemp() (int, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		return 0, fmt.Errorf("read directory: %w", err)
	}

	removed := 0
	for _, entry := range entries {
		if !entry.Type().IsRegular() || !isTempName(entry.Name()) {
			continue
		}
		if err := os.Remove(filepath.Join(s.baseDir, entry.Name())); err != nil && !os.IsNotExist(err) {
			return removed, fmt.Errorf("remove temp file: %w", err)
		}
		removed++
	}

	if removed > 0 {
		s.logger.WithField("count", removed).Info("Removed stale temp files")
	}
	return removed, nil
}

func isTempName(name string) bool {
	return strings.Contains(name, tempMarker)
}

// sanitizeName accepts only a plain file name directly inside the base directory.
func (s *LocalStore) sanitizeName(name string) (string, error) {
	if name == "" || name == "." || name == ".." {
		return "", fmt.Errorf("invalid name %q", name)
	}

	if strings.ContainsRune(name, 0) {
		return "", fmt.Errorf("name contains null bytes")
	}

	if strings.ContainsAny(name, `/\`) || filepath.Base(name) != name {
		return "", fmt.Errorf("invalid name: contains path separator")
	}

	if len(name) > maxNameLength {
		return "", fmt.Errorf("name too long: %d characters (max: %d)", len(name), maxNameLength)
	}

	if isTempName(name) {
		return "", fmt.Errorf("invalid name: reserved temp suffix")
	}

	if err := validatePlatformName(name); err != nil {
		return "", err
	}

	return filepath.Join(s.baseDir, name), nil
}

// validatePlatformName checks platform-specific name restrictions.
func validatePlatformName(name string) error {
	if runtime.GOOS != "windows" {
		return nil
	}

	reserved := []string{"CON", "PRN", "AUX", "NUL", "COM1", "COM2", "COM3", "COM4",
		"COM5", "COM6", "COM7", "COM8", "COM9", "LPT1", "LPT2", "LPT3",
		"LPT4", "LPT5", "LPT6", "LPT7", "LPT8", "LPT9"}

	baseName := strings.ToUpper(strings.TrimSuffix(name, filepath.Ext(name)))
	for _, r := range reserved {
		if baseName == r {
			return fmt.Errorf("invalid name: reserved name '%s'", name)
		}
	}

	for _, char := range `<>:"|?*` {
		if strings.ContainsRune(name, char) {
			return fmt.Errorf("invalid name: contains character '%c'", char)
		}
	}

	return nil
}
