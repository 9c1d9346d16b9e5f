package store

import "errors"

// ErrMetaNotFound is returned by LoadMeta when key has no stored value.
var ErrMetaNotFound = errors.New("store: metadata key not found")

// ErrClosed is returned by any operation attempted after Close.
var ErrClosed = errors.New("store: closed")
