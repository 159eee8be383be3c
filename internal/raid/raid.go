// Package raid implements the redundancy group assembler of the storage pool
// builder. It wipes authorized member devices, creates the redundancy group
// on the next free group-device slot, waits (bounded) for the initial
// synchronization and persists the group descriptor to the system-wide
// registry for reassembly after a restart.
package raid

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/desertwitch/poolsmith/internal/devices"
	"github.com/desertwitch/poolsmith/internal/linefile"
	"github.com/desertwitch/poolsmith/internal/schema"
)

type commandRunner interface {
	Run(ctx context.Context, name string, args ...string) (string, error)
}

type osProvider interface {
	ReadDir(name string) ([]os.DirEntry, error)
}

// Group is an assembled redundancy group.
type Group struct {
	Node    string
	Level   schema.RedundancyLevel
	Members []string
}

// Handler is the principal implementation of the redundancy group assembler.
type Handler struct {
	runner    commandRunner
	osHandler osProvider
	registry  *linefile.Store
}

// NewHandler returns a pointer to a new assembler [Handler]. The registry
// store must key on the group-device field of a descriptor line (see
// [RegistryKey]).
func NewHandler(runner commandRunner, osHandler osProvider, registry *linefile.Store) *Handler {
	return &Handler{
		runner:    runner,
		osHandler: osHandler,
		registry:  registry,
	}
}

// RegistryKey is the [linefile.KeyFunc] for the redundancy-group registry:
// descriptor lines key on their group-device field ("ARRAY /dev/mdN ...").
func RegistryKey(line string) (string, bool) {
	key, ok := linefile.FieldKey(1)(line)
	if !ok {
		return "", false
	}

	if first, _ := linefile.FieldKey(0)(line); first != "ARRAY" {
		return "", false
	}

	return key, true
}

// Assemble wipes the validated member devices and creates a new redundancy
// group across them on the next free group-device slot. This is the
// destructive step of the pipeline; callers must have confirmed authorization
// through [devices.Handler.Validate] beforehand. On creation failure the
// partially created group is torn down before [ErrAssemblyFailed] surfaces.
func (h *Handler) Assemble(ctx context.Context, members []*devices.BlockDevice, level schema.RedundancyLevel) (*Group, error) {
	memberPaths := make([]string, 0, len(members))
	for _, device := range members {
		memberPaths = append(memberPaths, device.Path)
	}

	for _, path := range memberPaths {
		// No superblock to zero is fine; a failing wipe of signatures is not.
		if out, err := h.runner.Run(ctx, "mdadm", "--zero-superblock", "--force", path); err != nil {
			slog.Debug("No prior group membership to clear.", "device", path, "out", out)
		}

		if _, err := h.runner.Run(ctx, "wipefs", "-a", path); err != nil {
			return nil, fmt.Errorf("(raid) %w: failed to wipe %s: %w", ErrAssemblyFailed, path, err)
		}
	}

	node, err := h.nextFreeNode()
	if err != nil {
		return nil, fmt.Errorf("(raid) %w: %w", ErrAssemblyFailed, err)
	}

	args := []string{
		"--create", node,
		"--run", "--force",
		"--level=" + level.KernelName(),
		"--raid-devices=" + strconv.Itoa(len(memberPaths)),
	}
	args = append(args, memberPaths...)

	if _, err := h.runner.Run(ctx, "mdadm", args...); err != nil {
		if out, stopErr := h.runner.Run(ctx, "mdadm", "--stop", node); stopErr != nil {
			slog.Warn("Failed tearing down partially created group.",
				"node", node,
				"err", stopErr,
				"out", out,
			)
		}

		return nil, fmt.Errorf("(raid) %w: %w", ErrAssemblyFailed, err)
	}

	slog.Info("Assembled redundancy group.",
		"node", node,
		"level", level,
		"members", len(memberPaths),
	)

	return &Group{
		Node:    node,
		Level:   level,
		Members: memberPaths,
	}, nil
}

// Persist upserts the group descriptor into the system-wide registry, keyed
// by the group-device node, so re-provisioning never duplicates a descriptor
// and the group reassembles automatically after a restart.
func (h *Handler) Persist(ctx context.Context, group *Group) error {
	descriptor, err := h.runner.Run(ctx, "mdadm", "--detail", "--scan", group.Node)
	if err != nil {
		return fmt.Errorf("(raid) failed to read group descriptor (%s): %w", group.Node, err)
	}

	if err := h.registry.Replace(group.Node, descriptor); err != nil {
		return fmt.Errorf("(raid) failed to persist group descriptor (%s): %w", group.Node, err)
	}

	return nil
}
