// Package storage stages uploaded images on local disk for the lifetime of one
// request. Nothing written here outlives the request that wrote it.
package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/nidscan/nid-ocr-service/internal/errors"
	"github.com/nidscan/nid-ocr-service/internal/logging"
)

const (
	filePrefix = "nid-"
	fileSuffix = ".img"
)

// Scratch hands out request-scoped files under one directory. The directory
// must already exist.
type Scratch struct {
	dir    string
	logger *logging.Logger
}

// NewScratch creates a scratch area in dir
func NewScratch(dir string, logger *logging.Logger) *Scratch {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Scratch{dir: dir, logger: logger}
}

// Dir returns the scratch directory
func (s *Scratch) Dir() string {
	return s.dir
}

// Acquire writes data to a fresh, uniquely named file readable only by this
// process. The caller must Release the file on every exit path.
func (s *Scratch) Acquire(data []byte) (*ScratchFile, error) {
	path := filepath.Join(s.dir, filePrefix+uuid.NewString()+fileSuffix)

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return nil, apperrors.NewStorageFailedError(fmt.Errorf("create scratch file: %w", err))
	}
	sf := &ScratchFile{path: path, logger: s.logger}

	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = sf.Release()
		return nil, apperrors.NewStorageFailedError(fmt.Errorf("write scratch file: %w", err))
	}
	if err := f.Close(); err != nil {
		_ = sf.Release()
		return nil, apperrors.NewStorageFailedError(fmt.Errorf("close scratch file: %w", err))
	}
	return sf, nil
}

// PurgeStale removes scratch files older than olderThan, left behind by a
// process that died mid-request. It returns how many files were removed.
func (s *Scratch) PurgeStale(olderThan time.Duration) (int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, fmt.Errorf("read scratch dir: %w", err)
	}
	cutoff := time.Now().Add(-olderThan)
	removed := 0
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, fileSuffix) {
			continue
		}
		info, err := e.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, name)); err != nil && !os.IsNotExist(err) {
			s.logger.Warn("Failed to purge stale scratch file", "file", name, "error", err)
			continue
		}
		removed++
	}
	return removed, nil
}

// ScratchFile owns exactly one path for one request
type ScratchFile struct {
	path   string
	logger *logging.Logger

	once sync.Once
	err  error
}

// Path returns the file location
func (f *ScratchFile) Path() string {
	return f.path
}

// Release deletes the file. Safe to call more than once; failures are logged
// and returned but never retried.
func (f *ScratchFile) Release() error {
	f.once.Do(func() {
		if err := os.Remove(f.path); err != nil && !os.IsNotExist(err) {
			f.err = fmt.Errorf("remove scratch file: %w", err)
			f.logger.Warn("Failed to remove scratch file", "path", f.path, "error", err)
		}
	})
	return f.err
}
