package fsprov

import "errors"

var (
	// ErrFormatFailed is an error that occurs when formatting the primary
	// data volume (or reading back its UUID) fails; never retried.
	ErrFormatFailed = errors.New("filesystem format failed")

	// ErrMountFailed is an error that occurs when registering or mounting
	// the persistent mount-table entry fails; never retried.
	ErrMountFailed = errors.New("filesystem mount failed")
)
