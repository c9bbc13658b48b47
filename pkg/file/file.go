package file

import (
	"context"
	"fmt"
	"mime"
	"net/http"
	"path/filepath"
	"strings"
)

// Blob is a stored file read fully into memory.
type Blob struct {
	Data        []byte
	ContentType string
	Filename    string
}

// Storage reads stored media by key.
type Storage interface {
	Fetch(ctx context.Context, key string) (*Blob, error)
}

// Backend names accepted by Config.Backend.
const (
	BackendLocal = "local"
	BackendS3    = "s3"
)

// Config selects and configures the media backend.
type Config struct {
	Backend  string `env:"MEDIA_BACKEND" envDefault:"local"`
	MaxBytes int64  `env:"MEDIA_MAX_BYTES" envDefault:"67108864"`
	LocalDir string `env:"MEDIA_LOCAL_DIR" envDefault:"./media"`

	S3 S3Config `envPrefix:"MEDIA_"`
}

// New builds the backend named by cfg.Backend.
func New(ctx context.Context, cfg Config, opts ...S3Option) (Storage, error) {
	switch strings.ToLower(cfg.Backend) {
	case BackendS3:
		return NewS3Storage(ctx, cfg.S3, append([]S3Option{WithS3MaxBytes(cfg.MaxBytes)}, opts...)...)
	case BackendLocal, "":
		return NewLocalStorage(cfg.LocalDir, WithLocalMaxBytes(cfg.MaxBytes))
	default:
		return nil, fmt.Errorf("%w: unknown media backend %q", ErrInvalidConfig, cfg.Backend)
	}
}

// DetectContentType picks a MIME type for data stored under key. A declared
// type wins unless it is empty or the generic octet-stream; then the extension
// is consulted, and finally the content is sniffed.
func DetectContentType(key, declared string, data []byte) string {
	if declared != "" && declared != "application/octet-stream" {
		return declared
	}
	if byExt := mime.TypeByExtension(strings.ToLower(filepath.Ext(key))); byExt != "" {
		return byExt
	}
	return http.DetectContentType(data)
}

// SanitizeFilename strips path components so a key can be used as a filename.
func SanitizeFilename(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = filepath.Base(name)
	name = strings.ReplaceAll(name, "\x00", "")

	if name == "." || name == ".." || name == "" || name == "/" {
		return "unnamed"
	}
	return name
}

func cleanKey(key string) (string, error) {
	key = strings.TrimPrefix(key, "/")
	if key == "" || strings.Contains(key, "..") {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, key)
	}
	return key, nil
}
