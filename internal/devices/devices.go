// Package devices implements the device validator of the storage pool
// builder. It inspects candidate block devices and enforces the preconditions
// of a redundancy group assembly, without mutating any device itself.
package devices

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

type commandRunner interface {
	Run(ctx context.Context, name string, args ...string) (string, error)
}

// BlockDevice is a discovered block device, read-only from the point of view
// of this package; it is only ever consumed or rejected by later stages.
type BlockDevice struct {
	Path       string
	Name       string
	Size       uint64
	Rotational bool
	InUse      bool
	Signature  string
}

// Handler is the principal implementation of the device validator.
type Handler struct {
	runner commandRunner
}

// NewHandler returns a pointer to a new device [Handler].
func NewHandler(runner commandRunner) *Handler {
	return &Handler{
		runner: runner,
	}
}

type lsblkOutput struct {
	Blockdevices []lsblkDevice `json:"blockdevices"`
}

type lsblkDevice struct {
	Name       string        `json:"name"`
	Path       string        `json:"path"`
	Type       string        `json:"type"`
	Size       uint64        `json:"size"`
	Rotational bool          `json:"rota"`
	FSType     string        `json:"fstype"`
	Mountpoint string        `json:"mountpoint"`
	Children   []lsblkDevice `json:"children,omitempty"`
}

// Probe inspects a single candidate path, failing with [ErrDeviceNotFound]
// when the path does not resolve to a whole block device.
func (h *Handler) Probe(ctx context.Context, path string) (*BlockDevice, error) {
	out, err := h.runner.Run(ctx, "lsblk", "-b", "-J",
		"-o", "NAME,PATH,TYPE,SIZE,ROTA,FSTYPE,MOUNTPOINT", path)
	if err != nil {
		return nil, fmt.Errorf("(devices) %w: %s: %s", ErrDeviceNotFound, path, err)
	}

	var parsed lsblkOutput
	if err := json.Unmarshal([]byte(out), &parsed); err != nil {
		return nil, fmt.Errorf("(devices) failed to parse device listing (%s): %w", path, err)
	}

	for _, dev := range parsed.Blockdevices {
		if dev.Type != "disk" {
			continue
		}

		return &BlockDevice{
			Path:       dev.Path,
			Name:       dev.Name,
			Size:       dev.Size,
			Rotational: dev.Rotational,
			InUse:      deviceInUse(dev),
			Signature:  dev.FSType,
		}, nil
	}

	return nil, fmt.Errorf("(devices) %w: %s is not a whole block device", ErrDeviceNotFound, path)
}

// deviceInUse reports whether a device carries a recognizable signature, is
// partitioned, or is mounted anywhere in its device tree.
func deviceInUse(dev lsblkDevice) bool {
	if strings.TrimSpace(dev.FSType) != "" {
		return true
	}
	if strings.TrimSpace(dev.Mountpoint) != "" {
		return true
	}

	for _, child := range dev.Children {
		if child.Type == "part" || deviceInUse(child) {
			return true
		}
	}

	return false
}
