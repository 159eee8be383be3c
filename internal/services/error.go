package services

import "errors"

// ErrServiceFailed is an error that occurs when a service job settles in any
// state other than done.
var ErrServiceFailed = errors.New("service activation failed")
