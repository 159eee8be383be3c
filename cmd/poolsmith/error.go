package main

import "errors"

var (
	// ErrBadArguments occurs when the command line cannot be parsed into a
	// valid provisioning request.
	ErrBadArguments = errors.New("invalid command-line arguments")

	// ErrMissingTools occurs when a pipeline's subsystem tools are not all
	// resolvable on the system.
	ErrMissingTools = errors.New("required tools not installed")
)
