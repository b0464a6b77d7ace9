package stream

import (
	"fmt"
	"os"
	"sync"

	"github.com/gofrs/flock"

	"tstream/internal"
	"tstream/utils"
)

// FileStream is a local file endpoint. In write mode it holds an advisory
// lock on <path>.lock until closed, so two transfers cannot write the same file.
type FileStream struct {
	path    string
	url     string
	mode    Mode
	fileOps *utils.FileOperations

	mu   sync.Mutex
	file *os.File
	lock *flock.Flock
}

// NewFileStream creates an unopened file endpoint
func NewFileStream(path string, mode Mode) *FileStream {
	return &FileStream{
		path:    path,
		url:     "file://" + path,
		mode:    mode,
		fileOps: utils.NewFileOperations(),
	}
}

// Open opens the file, creating it and its parent directories in write mode
func (f *FileStream) Open() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.file != nil {
		return nil
	}

	if f.mode == ModeRead {
		file, err := f.fileOps.OpenInput(f.path)
		if err != nil {
			return err
		}
		f.file = file
		return nil
	}

	if err := f.fileOps.EnsureDir(f.path); err != nil {
		return internal.NewOpenError(f.url, err)
	}

	lock := flock.New(f.fileOps.LockPath(f.path))
	locked, err := lock.TryLock()
	if err != nil {
		return internal.NewOpenError(f.url, fmt.Errorf("lock %s: %w", lock.Path(), err))
	}
	if !locked {
		return internal.NewTransferError(internal.ErrFileLocked, "open",
			fmt.Sprintf("%s is being written by another transfer", f.path)).WithURL(f.url)
	}

	file, err := f.fileOps.CreateOutput(f.path)
	if err != nil {
		lock.Unlock()
		return err
	}

	f.file = file
	f.lock = lock
	internal.LogDebug("locked %s for writing", f.path)
	return nil
}

func (f *FileStream) IsOpened() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.file != nil
}

func (f *FileStream) handle() (*os.File, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.file == nil {
		return nil, ErrNotOpened
	}
	return f.file, nil
}

func (f *FileStream) Read(p []byte) (int, error) {
	if f.mode != ModeRead {
		return 0, internal.NewTransferError(internal.ErrUnsupportedOperation, "read", "file opened for writing")
	}
	file, err := f.handle()
	if err != nil {
		return 0, err
	}
	return file.Read(p)
}

func (f *FileStream) Write(p []byte) (int, error) {
	if f.mode != ModeWrite {
		return 0, internal.NewTransferError(internal.ErrUnsupportedOperation, "write", "file opened for reading")
	}
	file, err := f.handle()
	if err != nil {
		return 0, err
	}
	return file.Write(p)
}

// Close closes the file and releases the write lock
func (f *FileStream) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.file == nil {
		return nil
	}
	err := f.file.Close()
	f.file = nil

	if f.lock != nil {
		if rmErr := f.fileOps.RemoveLock(f.path); rmErr != nil {
			internal.LogWarn("failed to remove lock file for %s: %v", f.path, rmErr)
		}
		if unlockErr := f.lock.Unlock(); err == nil {
			err = unlockErr
		}
		f.lock = nil
	}
	return err
}

func (f *FileStream) URL() string {
	return f.url
}

// Path returns the local path of the file
func (f *FileStream) Path() string {
	return f.path
}

// Size returns the file size in read mode, -1 otherwise
func (f *FileStream) Size() int64 {
	if f.mode != ModeRead {
		return -1
	}
	size, err := f.fileOps.GetFileSize(f.path)
	if err != nil {
		return -1
	}
	return size
}
