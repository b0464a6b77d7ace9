package utils

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"tstream/internal"
)

// LockSuffix is appended to an output path to form its lock file
const LockSuffix = ".lock"

// FileOperations provides file system utilities
type FileOperations struct{}

// NewFileOperations creates a new FileOperations instance
func NewFileOperations() *FileOperations {
	return &FileOperations{}
}

// EnsureDir creates the parent directory of path if it doesn't exist
func (f *FileOperations) EnsureDir(path string) error {
	dir := filepath.Dir(path)
	return os.MkdirAll(dir, 0755)
}

// FileExists checks if a file exists
func (f *FileOperations) FileExists(path string) bool {
	_, err := os.Stat(path)
	return !os.IsNotExist(err)
}

// GetFileSize returns the size of a file
func (f *FileOperations) GetFileSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// LockPath returns the advisory lock file guarding writes to path
func (f *FileOperations) LockPath(path string) string {
	return path + LockSuffix
}

// OpenInput opens path for reading
func (f *FileOperations) OpenInput(path string) (*os.File, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, classifyFileError(path, err)
	}
	if info.IsDir() {
		return nil, internal.NewOpenError(path, fmt.Errorf("%s is a directory", path))
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, classifyFileError(path, err)
	}
	return file, nil
}

// CreateOutput creates or truncates path for writing, creating parent directories
func (f *FileOperations) CreateOutput(path string) (*os.File, error) {
	if err := f.EnsureDir(path); err != nil {
		return nil, classifyFileError(path, err)
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return nil, classifyFileError(path, err)
	}
	return file, nil
}

// RemoveLock deletes the lock file of path, ignoring a missing file
func (f *FileOperations) RemoveLock(path string) error {
	err := os.Remove(f.LockPath(path))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func classifyFileError(path string, err error) *internal.TransferError {
	if errors.Is(err, fs.ErrPermission) {
		return internal.WrapTransferError(internal.ErrPermissionDenied, "open", err).WithURL(path)
	}
	return internal.NewOpenError(path, err)
}
