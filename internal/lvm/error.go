package lvm

import "errors"

var (
	// ErrVolumeCreateFailed is an error that occurs when the capacity pool or
	// the primary data volume cannot be allocated.
	ErrVolumeCreateFailed = errors.New("volume creation failed")

	// ErrCacheAttachFailed is an error that occurs when the cache tier cannot
	// be built or bound; the primary data volume is never rolled back by it,
	// the pool remains usable without a cache.
	ErrCacheAttachFailed = errors.New("cache tier attach failed")
)
