package file

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// LocalStorage reads media from a directory. Keys are confined to baseDir.
type LocalStorage struct {
	baseDir  string
	maxBytes int64
}

// LocalOption configures LocalStorage.
type LocalOption func(*LocalStorage)

// WithLocalMaxBytes rejects files larger than n bytes. Zero disables the limit.
func WithLocalMaxBytes(n int64) LocalOption {
	return func(s *LocalStorage) {
		if n >= 0 {
			s.maxBytes = n
		}
	}
}

// NewLocalStorage creates a storage rooted at baseDir, creating the directory if needed.
func NewLocalStorage(baseDir string, opts ...LocalOption) (*LocalStorage, error) {
	if baseDir == "" {
		return nil, ErrInvalidConfig
	}

	abs, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFailedToGetAbsolutePath, err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	s := &LocalStorage{baseDir: abs}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Fetch reads the file stored under key.
func (s *LocalStorage) Fetch(ctx context.Context, key string) (*Blob, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	key, err := cleanKey(key)
	if err != nil {
		return nil, err
	}
	path, err := s.resolvePath(key)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrFileNotFound, key)
		}
		return nil, errors.Join(ErrFailedToReadFile, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrIsDirectory, key)
	}
	if s.maxBytes > 0 && info.Size() > s.maxBytes {
		return nil, fmt.Errorf("%w: %s is %d bytes", ErrFileTooLarge, key, info.Size())
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Join(ErrFailedToReadFile, err)
	}

	return &Blob{
		Data:        data,
		ContentType: DetectContentType(key, "", data),
		Filename:    SanitizeFilename(key),
	}, nil
}

// resolvePath keeps every resolved path inside baseDir.
func (s *LocalStorage) resolvePath(key string) (string, error) {
	abs, err := filepath.Abs(filepath.Join(s.baseDir, filepath.Clean(key)))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrFailedToGetAbsolutePath, err)
	}
	if !strings.HasPrefix(abs, s.baseDir+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrInvalidPath, key)
	}
	return abs, nil
}
