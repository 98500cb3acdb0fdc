package service

import "errors"

// ErrInvalidInput rejects requests that are malformed regardless of state.
var ErrInvalidInput = errors.New("invalid input")
