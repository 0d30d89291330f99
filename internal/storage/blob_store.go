package storage

import (
	"errors"
	"os"
	"time"
)

var (
	// ErrFileNotFound is returned by Read and Delete for missing files.
	ErrFileNotFound = errors.New("file not found")

	// ErrFileExists is returned by Create when the name is taken.
	ErrFileExists = errors.New("file already exists")
)

// BlobStore manages flat, private files in one directory.
type BlobStore interface {
	// Write replaces name atomically. Readers see the old or the new content, never a mix.
	Write(name string, data []byte) error

	// Create writes name atomically, failing with ErrFileExists if it is present.
	Create(name string, data []byte) error

	// Read retrieves file contents.
	Read(name string) ([]byte, error)

	// Delete removes a file.
	Delete(name string) error

	// Exists checks if a file exists.
	Exists(name string) (bool, error)

	// ListDir returns the regular files in the store, temp files excluded.
	ListDir() ([]FileInfo, error)
}

// FileInfo contains file metadata.
type FileInfo struct {
	Name    string
	Size    int64
	Mode    os.FileMode
	ModTime time.Time
}

// tempMarker separates a target name from the suffix of its in-flight temp file.
const tempMarker = ".tmp."
