package store

import "errors"

var ErrDBNil = errors.New("database cannot be nil")
