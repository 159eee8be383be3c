package devices

import (
	"context"
	"fmt"

	"github.com/desertwitch/poolsmith/internal/schema"
)

// Validate inspects all candidate paths for an assembly at the given
// redundancy level. It fails with [ErrInsufficientDevices] before touching
// the system when the candidate count is below the level's minimum, with
// [ErrDeviceNotFound] for any path that is not a whole block device and with
// [ErrDeviceInUse] for any device carrying a recognizable signature unless
// destructive reuse was authorized. No device is ever mutated here.
func (h *Handler) Validate(ctx context.Context, paths []string, level schema.RedundancyLevel, authorized bool) ([]*BlockDevice, error) {
	if len(paths) < level.MinDevices() {
		return nil, fmt.Errorf("(devices) %w: %s requires %d devices, %d given",
			ErrInsufficientDevices, level, level.MinDevices(), len(paths))
	}

	validated := make([]*BlockDevice, 0, len(paths))

	for _, path := range paths {
		device, err := h.Probe(ctx, path)
		if err != nil {
			return nil, err
		}

		if device.InUse && !authorized {
			return nil, fmt.Errorf("(devices) %w: %s (signature: %s)",
				ErrDeviceInUse, device.Path, signatureOrPartitions(device))
		}

		validated = append(validated, device)
	}

	return validated, nil
}

func signatureOrPartitions(device *BlockDevice) string {
	if device.Signature != "" {
		return device.Signature
	}

	return "partitioned or mounted"
}
