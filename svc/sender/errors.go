package sender

import "errors"

var (
	// ErrTransport wraps delivery failures worth retrying.
	ErrTransport = errors.New("transport error")

	// ErrContent marks operations that can never succeed as built.
	ErrContent = errors.New("content error")

	// ErrTranscode is logged when audio conversion fails; the original file is sent instead.
	ErrTranscode = errors.New("transcode error")

	ErrClientNil      = errors.New("messaging client cannot be nil")
	ErrCredentialsNil = errors.New("credential resolver cannot be nil")
	ErrMediaStoreNil  = errors.New("media store cannot be nil")
	ErrBlobStoreNil   = errors.New("blob storage cannot be nil")
)
