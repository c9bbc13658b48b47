package file_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/agendazap/dispatcher/pkg/file"
)

type MockS3Client struct {
	mock.Mock
}

func (m *MockS3Client) GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*s3.GetObjectOutput), args.Error(1)
}

func objectKey(key string) any {
	return mock.MatchedBy(func(in *s3.GetObjectInput) bool {
		return aws.ToString(in.Bucket) == "media" && aws.ToString(in.Key) == key
	})
}

func newS3(t *testing.T, client *MockS3Client, opts ...file.S3Option) *file.S3Storage {
	t.Helper()

	storage, err := file.NewS3Storage(context.Background(),
		file.S3Config{Bucket: "media", Region: "sa-east-1"},
		append([]file.S3Option{file.WithS3Client(client)}, opts...)...,
	)
	require.NoError(t, err)
	return storage
}

func TestS3Storage_Fetch(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("reads object", func(t *testing.T) {
		t.Parallel()

		client := new(MockS3Client)
		client.On("GetObject", mock.Anything, objectKey("owners/7/promo.png")).Return(&s3.GetObjectOutput{
			Body:          io.NopCloser(bytes.NewReader([]byte("png-bytes"))),
			ContentType:   aws.String("image/png"),
			ContentLength: aws.Int64(9),
		}, nil).Once()

		blob, err := newS3(t, client).Fetch(ctx, "/owners/7/promo.png")
		require.NoError(t, err)
		assert.Equal(t, []byte("png-bytes"), blob.Data)
		assert.Equal(t, "image/png", blob.ContentType)
		assert.Equal(t, "promo.png", blob.Filename)
		client.AssertExpectations(t)
	})

	t.Run("generic content type falls back to extension", func(t *testing.T) {
		t.Parallel()

		client := new(MockS3Client)
		client.On("GetObject", mock.Anything, objectKey("a/photo.jpg")).Return(&s3.GetObjectOutput{
			Body:        io.NopCloser(bytes.NewReader([]byte("jpg"))),
			ContentType: aws.String("application/octet-stream"),
		}, nil).Once()

		blob, err := newS3(t, client).Fetch(ctx, "a/photo.jpg")
		require.NoError(t, err)
		assert.Equal(t, "image/jpeg", blob.ContentType)
	})

	t.Run("missing object", func(t *testing.T) {
		t.Parallel()

		client := new(MockS3Client)
		client.On("GetObject", mock.Anything, objectKey("gone.png")).Return(nil, &types.NoSuchKey{}).Once()

		_, err := newS3(t, client).Fetch(ctx, "gone.png")
		assert.ErrorIs(t, err, file.ErrFileNotFound)
	})

	t.Run("access denied", func(t *testing.T) {
		t.Parallel()

		client := new(MockS3Client)
		client.On("GetObject", mock.Anything, objectKey("secret.png")).
			Return(nil, &smithy.GenericAPIError{Code: "AccessDenied"}).Once()

		_, err := newS3(t, client).Fetch(ctx, "secret.png")
		assert.ErrorIs(t, err, file.ErrAccessDenied)
	})

	t.Run("transport error", func(t *testing.T) {
		t.Parallel()

		client := new(MockS3Client)
		client.On("GetObject", mock.Anything, objectKey("x.png")).Return(nil, errors.New("dial tcp: refused")).Once()

		_, err := newS3(t, client).Fetch(ctx, "x.png")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "refused")
	})

	t.Run("too large", func(t *testing.T) {
		t.Parallel()

		client := new(MockS3Client)
		client.On("GetObject", mock.Anything, objectKey("big.png")).Return(&s3.GetObjectOutput{
			Body: io.NopCloser(bytes.NewReader(make([]byte, 16))),
		}, nil).Once()

		_, err := newS3(t, client, file.WithS3MaxBytes(8)).Fetch(ctx, "big.png")
		assert.ErrorIs(t, err, file.ErrFileTooLarge)
	})

	t.Run("invalid key", func(t *testing.T) {
		t.Parallel()

		_, err := newS3(t, new(MockS3Client)).Fetch(ctx, "../etc/passwd")
		assert.ErrorIs(t, err, file.ErrInvalidPath)
	})
}

func TestNewS3Storage_InvalidConfig(t *testing.T) {
	t.Parallel()

	_, err := file.NewS3Storage(context.Background(), file.S3Config{Region: "sa-east-1"})
	assert.ErrorIs(t, err, file.ErrInvalidConfig)
}

func TestLocalStorage_Fetch(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "owners", "7"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "owners", "7", "doc"), []byte("%PDF-1.4 body"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "big.png"), make([]byte, 32), 0o600))

	storage, err := file.NewLocalStorage(dir, file.WithLocalMaxBytes(16))
	require.NoError(t, err)

	ctx := context.Background()

	blob, err := storage.Fetch(ctx, "owners/7/doc")
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", blob.ContentType)
	assert.Equal(t, "doc", blob.Filename)

	_, err = storage.Fetch(ctx, "owners/7/missing.png")
	assert.ErrorIs(t, err, file.ErrFileNotFound)

	_, err = storage.Fetch(ctx, "owners")
	assert.ErrorIs(t, err, file.ErrIsDirectory)

	_, err = storage.Fetch(ctx, "big.png")
	assert.ErrorIs(t, err, file.ErrFileTooLarge)

	_, err = storage.Fetch(ctx, "../outside")
	assert.ErrorIs(t, err, file.ErrInvalidPath)

	_, err = storage.Fetch(ctx, "")
	assert.ErrorIs(t, err, file.ErrInvalidPath)
}

func TestNew(t *testing.T) {
	t.Parallel()

	storage, err := file.New(context.Background(), file.Config{Backend: "local", LocalDir: t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &file.LocalStorage{}, storage)

	_, err = file.New(context.Background(), file.Config{Backend: "ftp"})
	assert.ErrorIs(t, err, file.ErrInvalidConfig)
}

func TestDetectContentType(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		key      string
		declared string
		data     []byte
		want     string
	}{
		{"declared wins", "a.png", "audio/mpeg", nil, "audio/mpeg"},
		{"extension", "a.PNG", "", nil, "image/png"},
		{"octet stream ignored", "a.pdf", "application/octet-stream", nil, "application/pdf"},
		{"sniffed", "noext", "", []byte("%PDF-1.7"), "application/pdf"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, file.DetectContentType(tt.key, tt.declared, tt.data))
		})
	}
}

func TestSanitizeFilename(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "passwd", file.SanitizeFilename("../../etc/passwd"))
	assert.Equal(t, "file.txt", file.SanitizeFilename(`C:\Windows\file.txt`))
	assert.Equal(t, "unnamed", file.SanitizeFilename(""))
}
