package local

import "errors"

var (
	// ErrEmptyKey is returned when a key is empty
	ErrEmptyKey = errors.New("empty key")
)
