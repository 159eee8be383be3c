// Package fsprov implements the filesystem provisioner of the storage pool
// builder: formatting the primary data volume, registering a persistent
// mount-table entry keyed by the filesystem UUID and mounting it. It also
// owns the mount-option and filesystem-type probes the share access
// controller relies on.
package fsprov

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/desertwitch/poolsmith/internal/linefile"
	"github.com/desertwitch/poolsmith/internal/schema"
	"golang.org/x/sys/unix"
)

type commandRunner interface {
	Run(ctx context.Context, name string, args ...string) (string, error)
}

type unixProvider interface {
	Statfs(path string, buf *unix.Statfs_t) error
}

// MountedFilesystem is a formatted, persistently mounted filesystem.
type MountedFilesystem struct {
	Device     string
	Type       schema.FilesystemType
	UUID       string
	Mountpoint string
}

// Handler is the principal implementation of the filesystem provisioner.
type Handler struct {
	runner      commandRunner
	unixHandler unixProvider
	mountTable  *linefile.Store
}

// NewHandler returns a pointer to a new provisioner [Handler]. The mount
// table store must key on the fs_spec field (see [MountTableKey]).
func NewHandler(runner commandRunner, unixHandler unixProvider, mountTable *linefile.Store) *Handler {
	return &Handler{
		runner:      runner,
		unixHandler: unixHandler,
		mountTable:  mountTable,
	}
}

// MountTableKey is the [linefile.KeyFunc] for the persistent mount table:
// entries key on their fs_spec field ("UUID=... /mnt/pool xfs ...").
func MountTableKey(line string) (string, bool) {
	return linefile.FieldKey(0)(line)
}

// mkfsForce maps a filesystem type to its non-interactive overwrite flag.
var mkfsForce = map[schema.FilesystemType]string{
	schema.FilesystemXFS:   "-f",
	schema.FilesystemExt4:  "-F",
	schema.FilesystemBtrfs: "-f",
}

// Provision formats the device with the requested filesystem type, registers
// exactly one persistent mount-table entry keyed by the filesystem UUID and
// mounts all pending entries. Failures are fatal and never retried, since a
// retry without a re-wipe risks inconsistent on-disk state.
func (h *Handler) Provision(ctx context.Context, device string, fsType schema.FilesystemType, mountpoint string) (*MountedFilesystem, error) {
	if _, err := h.runner.Run(ctx, "mkfs."+fsType.String(), mkfsForce[fsType], device); err != nil {
		return nil, fmt.Errorf("(fsprov) %w: %s on %s: %w", ErrFormatFailed, fsType, device, err)
	}

	uuid, err := h.runner.Run(ctx, "blkid", "-s", "UUID", "-o", "value", device)
	if err != nil {
		return nil, fmt.Errorf("(fsprov) %w: failed to read UUID of %s: %w", ErrFormatFailed, device, err)
	}

	uuid = strings.TrimSpace(uuid)
	if uuid == "" {
		return nil, fmt.Errorf("(fsprov) %w: no UUID readable on %s", ErrFormatFailed, device)
	}

	entry := fmt.Sprintf("UUID=%s %s %s defaults 0 0", uuid, mountpoint, fsType)
	if err := h.mountTable.Replace("UUID="+uuid, entry); err != nil {
		return nil, fmt.Errorf("(fsprov) %w: mount-table entry for %s: %w", ErrMountFailed, uuid, err)
	}

	if _, err := h.runner.Run(ctx, "mkdir", "-p", mountpoint); err != nil {
		return nil, fmt.Errorf("(fsprov) %w: mountpoint %s: %w", ErrMountFailed, mountpoint, err)
	}

	if _, err := h.runner.Run(ctx, "mount", "-a"); err != nil {
		return nil, fmt.Errorf("(fsprov) %w: %w", ErrMountFailed, err)
	}

	slog.Info("Formatted and mounted filesystem.",
		"device", device,
		"type", fsType,
		"uuid", uuid,
		"mountpoint", mountpoint,
	)

	return &MountedFilesystem{
		Device:     device,
		Type:       fsType,
		UUID:       uuid,
		Mountpoint: mountpoint,
	}, nil
}

// TypeOf probes the filesystem type backing a path, for the ACL and quota
// capability decisions of the share access controller.
func (h *Handler) TypeOf(path string) (schema.FilesystemType, error) {
	var stat unix.Statfs_t
	if err := h.unixHandler.Statfs(path, &stat); err != nil {
		return "", fmt.Errorf("(fsprov) failed to statfs %s: %w", path, err)
	}

	switch stat.Type {
	case unix.XFS_SUPER_MAGIC:
		return schema.FilesystemXFS, nil
	case unix.EXT4_SUPER_MAGIC:
		return schema.FilesystemExt4, nil
	case unix.BTRFS_SUPER_MAGIC:
		return schema.FilesystemBtrfs, nil
	default:
		return "", fmt.Errorf("(fsprov) %w: magic 0x%x at %s", schema.ErrUnknownFilesystem, stat.Type, path)
	}
}

// MountpointOf resolves the mountpoint of the filesystem backing a path.
func (h *Handler) MountpointOf(ctx context.Context, path string) (string, error) {
	out, err := h.runner.Run(ctx, "findmnt", "-n", "-o", "TARGET", "--target", path)
	if err != nil {
		return "", fmt.Errorf("(fsprov) failed to resolve mountpoint of %s: %w", path, err)
	}

	return strings.TrimSpace(out), nil
}
