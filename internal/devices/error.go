package devices

import "errors"

var (
	// ErrInsufficientDevices is an error that occurs when fewer candidate
	// devices are given than the redundancy level's minimum requires.
	ErrInsufficientDevices = errors.New("insufficient devices for redundancy level")

	// ErrDeviceNotFound is an error that occurs when a candidate path does
	// not resolve to a valid whole block device.
	ErrDeviceNotFound = errors.New("device not found")

	// ErrDeviceInUse is an error that occurs when a candidate device carries
	// a recognizable signature and destructive reuse was not authorized.
	ErrDeviceInUse = errors.New("device already in use")
)
