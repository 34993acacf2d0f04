package domain

import (
	"context"
	"errors"
)

// Failure kinds. Backends wrap these so callers can branch with errors.Is.
var (
	ErrAuthUnavailable         = errors.New("auth unavailable")
	ErrDirectoryUnavailable    = errors.New("directory unavailable")
	ErrMessageStoreUnavailable = errors.New("message store unavailable")
	ErrSubscription            = errors.New("subscription failed")
	ErrPostStoreUnavailable    = errors.New("post store unavailable")
	ErrValidation              = errors.New("validation failed")
	ErrTimeout                 = errors.New("timed out")
	ErrNotFound                = errors.New("not found")
)

// Kind returns the sentinel a given error belongs to, or nil.
func Kind(err error) error {
	for _, k := range []error{
		ErrTimeout,
		ErrValidation,
		ErrNotFound,
		ErrAuthUnavailable,
		ErrDirectoryUnavailable,
		ErrMessageStoreUnavailable,
		ErrSubscription,
		ErrPostStoreUnavailable,
	} {
		if errors.Is(err, k) {
			return k
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout
	}
	return nil
}
