package schema

import "errors"

var (
	// ErrUnknownLevel is an error that occurs when a textual redundancy level
	// is not part of the fixed enumerated set of [RedundancyLevel].
	ErrUnknownLevel = errors.New("unknown redundancy level")

	// ErrUnknownFilesystem is an error that occurs when a textual filesystem
	// type is not part of the fixed enumerated set of [FilesystemType].
	ErrUnknownFilesystem = errors.New("unknown filesystem type")

	// ErrUnknownProtocol is an error that occurs when a textual sharing
	// protocol is not part of the fixed enumerated set of [Protocol].
	ErrUnknownProtocol = errors.New("unknown sharing protocol")
)
