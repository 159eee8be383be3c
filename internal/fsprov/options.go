package fsprov

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// EnsureMountOption verifies that the persistent mount-table entry for a
// mountpoint carries the given mount option, durably adding it and remounting
// when it does not. It reports whether the entry had to be changed.
func (h *Handler) EnsureMountOption(ctx context.Context, mountpoint string, option string) (bool, error) {
	lines, err := h.mountTable.Lines()
	if err != nil {
		return false, err
	}

	for _, line := range lines {
		fields := strings.Fields(line)
		if len(fields) < 4 || fields[1] != mountpoint {
			continue
		}

		options := strings.Split(fields[3], ",")
		for _, existing := range options {
			if existing == option {
				return false, nil
			}
		}

		fields[3] = fields[3] + "," + option
		if err := h.mountTable.Replace(fields[0], strings.Join(fields, " ")); err != nil {
			return false, err
		}

		if _, err := h.runner.Run(ctx, "mount", "-o", "remount", mountpoint); err != nil {
			return false, fmt.Errorf("(fsprov) failed to remount %s with %s: %w", mountpoint, option, err)
		}

		slog.Info("Added durable mount option.",
			"mountpoint", mountpoint,
			"option", option,
		)

		return true, nil
	}

	return false, fmt.Errorf("(fsprov) %w: no mount-table entry for %s", ErrMountFailed, mountpoint)
}
