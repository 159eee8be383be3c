package share

import "errors"

var (
	// ErrInvalidRequest is an error that occurs when a share request has bad
	// input shape; reported before any mutation.
	ErrInvalidRequest = errors.New("invalid share request")

	// ErrGroupFailed is an error that occurs when the owning group can
	// neither be resolved nor created; structural, fatal.
	ErrGroupFailed = errors.New("owning group unavailable")

	// ErrDirectoryFailed is an error that occurs when the share directory
	// cannot be established; structural, fatal.
	ErrDirectoryFailed = errors.New("share directory unavailable")
)
