package lvm

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/desertwitch/poolsmith/internal/devices"
	"github.com/dustin/go-humanize"
)

const (
	// CacheMetaVolumeName is the cache-metadata sub-volume of a cache tier.
	CacheMetaVolumeName = "cache_meta"

	// CacheDataVolumeName is the cache-data sub-volume of a cache tier.
	CacheDataVolumeName = "cache_data"

	// cacheMetaDivisor sizes the metadata sub-volume as a fixed fraction
	// (one tenth, rounded down to whole extents) of the added cache capacity.
	cacheMetaDivisor = 10
)

// AttachCache extends the capacity pool with the given cache devices, carves
// a metadata and a data sub-volume out of the added capacity, merges them
// into a cache pool and binds it to the primary data volume. A cache tier may
// only be attached to an existing, not yet cached data volume. Any failure
// surfaces [ErrCacheAttachFailed] and leaves the data volume untouched.
func (h *Handler) AttachCache(ctx context.Context, pool *Pool, cacheDevices []*devices.BlockDevice) error {
	if pool.Cached {
		return fmt.Errorf("(lvm) %w: %s already carries a cache tier", ErrCacheAttachFailed, pool.DevicePath())
	}

	cachePaths := make([]string, 0, len(cacheDevices))
	for _, device := range cacheDevices {
		cachePaths = append(cachePaths, device.Path)
	}

	for _, path := range cachePaths {
		if _, err := h.runner.Run(ctx, "pvcreate", "-f", path); err != nil {
			return fmt.Errorf("(lvm) %w: physical volume on %s: %w", ErrCacheAttachFailed, path, err)
		}
	}

	args := append([]string{pool.VolumeGroup}, cachePaths...)
	if _, err := h.runner.Run(ctx, "vgextend", args...); err != nil {
		return fmt.Errorf("(lvm) %w: failed to extend %s: %w", ErrCacheAttachFailed, pool.VolumeGroup, err)
	}

	freeExtents, err := h.freeExtents(ctx, pool.VolumeGroup)
	if err != nil {
		return fmt.Errorf("(lvm) %w: %w", ErrCacheAttachFailed, err)
	}

	metaExtents := freeExtents / cacheMetaDivisor
	dataExtents := freeExtents - metaExtents

	if metaExtents == 0 || dataExtents == 0 {
		return fmt.Errorf("(lvm) %w: added cache capacity too small (%d free extents)",
			ErrCacheAttachFailed, freeExtents)
	}

	if _, err := h.runner.Run(ctx, "lvcreate",
		"-l", strconv.FormatUint(metaExtents, 10),
		"-n", CacheMetaVolumeName, pool.VolumeGroup); err != nil {
		return fmt.Errorf("(lvm) %w: metadata sub-volume: %w", ErrCacheAttachFailed, err)
	}

	if _, err := h.runner.Run(ctx, "lvcreate",
		"-l", strconv.FormatUint(dataExtents, 10),
		"-n", CacheDataVolumeName, pool.VolumeGroup); err != nil {
		return fmt.Errorf("(lvm) %w: data sub-volume: %w", ErrCacheAttachFailed, err)
	}

	if _, err := h.runner.Run(ctx, "lvconvert", "--yes",
		"--type", "cache-pool",
		"--poolmetadata", pool.VolumeGroup+"/"+CacheMetaVolumeName,
		pool.VolumeGroup+"/"+CacheDataVolumeName); err != nil {
		return fmt.Errorf("(lvm) %w: cache pool merge: %w", ErrCacheAttachFailed, err)
	}

	if _, err := h.runner.Run(ctx, "lvconvert", "--yes",
		"--type", "cache",
		"--cachepool", pool.VolumeGroup+"/"+CacheDataVolumeName,
		pool.VolumeGroup+"/"+pool.DataVolume); err != nil {
		return fmt.Errorf("(lvm) %w: cache bind to %s: %w", ErrCacheAttachFailed, pool.DevicePath(), err)
	}
	pool.Cached = true

	slog.Info("Attached cache tier to primary data volume.",
		"vg", pool.VolumeGroup,
		"lv", pool.DataVolume,
		"metaExtents", metaExtents,
		"dataExtents", dataExtents,
	)

	return nil
}

// CacheSize queries the total size of the cache devices for reporting.
func CacheSize(cacheDevices []*devices.BlockDevice) string {
	var total uint64
	for _, device := range cacheDevices {
		total += device.Size
	}

	return humanize.IBytes(total)
}

// freeExtents queries the currently unallocated extents of a volume group.
func (h *Handler) freeExtents(ctx context.Context, volumeGroup string) (uint64, error) {
	out, err := h.runner.Run(ctx, "vgs", "--noheadings", "-o", "vg_free_count", volumeGroup)
	if err != nil {
		return 0, fmt.Errorf("failed to query free extents of %s: %w", volumeGroup, err)
	}

	extents, err := strconv.ParseUint(strings.TrimSpace(out), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse free extents of %s (%q): %w", volumeGroup, out, err)
	}

	return extents, nil
}
