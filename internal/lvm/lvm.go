// Package lvm implements the volume manager layer of the storage pool
// builder. It wraps an assembled redundancy group as a single capacity pool,
// carves the primary data volume out of it and optionally binds a fast-tier
// cache pool made of solid-state devices to the data volume.
package lvm

import (
	"context"
	"fmt"
	"log/slog"
)

type commandRunner interface {
	Run(ctx context.Context, name string, args ...string) (string, error)
}

// DataVolumeName is the name of the primary data volume in every pool.
const DataVolumeName = "data"

// Pool is a provisioned capacity pool with its primary data volume.
type Pool struct {
	VolumeGroup string
	DataVolume  string
	Cached      bool
}

// DevicePath returns the device node of the primary data volume.
func (p *Pool) DevicePath() string {
	return fmt.Sprintf("/dev/%s/%s", p.VolumeGroup, p.DataVolume)
}

// Handler is the principal implementation of the volume manager layer.
type Handler struct {
	runner commandRunner
}

// NewHandler returns a pointer to a new volume manager [Handler].
func NewHandler(runner commandRunner) *Handler {
	return &Handler{
		runner: runner,
	}
}

// CreatePool wraps a redundancy group device as a capacity pool and allocates
// the primary data volume consuming all available capacity. Failures surface
// [ErrVolumeCreateFailed]; nothing is rolled back, the redundancy group stays
// intact for inspection.
func (h *Handler) CreatePool(ctx context.Context, name string, groupNode string) (*Pool, error) {
	if _, err := h.runner.Run(ctx, "pvcreate", "-f", groupNode); err != nil {
		return nil, fmt.Errorf("(lvm) %w: physical volume on %s: %w", ErrVolumeCreateFailed, groupNode, err)
	}

	if _, err := h.runner.Run(ctx, "vgcreate", name, groupNode); err != nil {
		return nil, fmt.Errorf("(lvm) %w: volume group %s: %w", ErrVolumeCreateFailed, name, err)
	}

	if _, err := h.runner.Run(ctx, "lvcreate", "-l", "100%FREE", "-n", DataVolumeName, name); err != nil {
		return nil, fmt.Errorf("(lvm) %w: data volume %s/%s: %w", ErrVolumeCreateFailed, name, DataVolumeName, err)
	}

	slog.Info("Created capacity pool with primary data volume.",
		"vg", name,
		"lv", DataVolumeName,
		"group", groupNode,
	)

	return &Pool{
		VolumeGroup: name,
		DataVolume:  DataVolumeName,
	}, nil
}
