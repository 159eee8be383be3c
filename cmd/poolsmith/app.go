package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/desertwitch/poolsmith/internal/configuration"
	"github.com/desertwitch/poolsmith/internal/devices"
	"github.com/desertwitch/poolsmith/internal/fsprov"
	"github.com/desertwitch/poolsmith/internal/lvm"
	"github.com/desertwitch/poolsmith/internal/raid"
	"github.com/desertwitch/poolsmith/internal/report"
	"github.com/desertwitch/poolsmith/internal/schema"
	"github.com/desertwitch/poolsmith/internal/share"
)

// PoolRequest describes one storage pool to be built.
type PoolRequest struct {
	Name         string
	DevicePaths  []string
	Level        schema.RedundancyLevel
	CachePaths   []string
	Filesystem   schema.FilesystemType
	Mountpoint   string
	ForceDestroy bool
}

type toolProber interface {
	LookPath(name string) (string, error)
}

// App wires the provisioning pipelines together and owns their driving order.
type App struct {
	settings *configuration.Settings
	prober   toolProber

	devicesHandler *devices.Handler
	raidHandler    *raid.Handler
	lvmHandler     *lvm.Handler
	fsHandler      *fsprov.Handler
	shareHandler   *share.Handler
	reportHandler  *report.Handler
}

//nolint:gochecknoglobals
var (
	poolTools = []string{
		"lsblk", "mdadm", "wipefs",
		"pvcreate", "vgcreate", "vgextend", "lvcreate", "lvconvert", "vgs",
		"blkid", "mkdir", "mount", "findmnt",
	}

	shareTools = []string{
		"getent", "groupadd", "useradd", "usermod",
		"setfacl", "smbpasswd", "xfs_quota", "exportfs", "testparm", "findmnt",
	}
)

// preflight verifies that every subsystem tool of a pipeline is resolvable
// before any mutation begins.
func (a *App) preflight(tools []string) error {
	var missing []string

	for _, tool := range tools {
		if _, err := a.prober.LookPath(tool); err != nil {
			missing = append(missing, tool)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingTools, strings.Join(missing, ", "))
	}

	return nil
}

// BuildPool runs the storage pool builder end to end: device validation,
// redundancy group assembly, capacity pool and data volume creation, the
// optional cache tier and finally filesystem provisioning. All outcomes land
// in the action log; a successful build also rewrites the pool summary.
func (a *App) BuildPool(ctx context.Context, req *PoolRequest) (err error) {
	var outcomes []schema.Outcome

	defer func() {
		if logErr := a.reportHandler.AppendActions("pool "+req.Name, outcomes); logErr != nil {
			slog.Warn("Failed to append to the action log.", "err", logErr)
		}
	}()

	fail := func(stage string, stageErr error) error {
		outcomes = append(outcomes, schema.Fatal(stage, stageErr.Error(), stageErr))

		return fmt.Errorf("pool %s: %w", req.Name, stageErr)
	}

	if err := a.preflight(poolTools); err != nil {
		return fail("tool-preflight", err)
	}
	outcomes = append(outcomes, schema.Success("tool-preflight"))

	members, err := a.devicesHandler.Validate(ctx, req.DevicePaths, req.Level, req.ForceDestroy)
	if err != nil {
		return fail("device-validation", err)
	}

	var cacheDevices []*devices.BlockDevice
	for _, path := range req.CachePaths {
		device, err := a.devicesHandler.Probe(ctx, path)
		if err != nil {
			return fail("device-validation", err)
		}
		if device.InUse && !req.ForceDestroy {
			return fail("device-validation",
				fmt.Errorf("cache device in use without -force: %s", device.Path))
		}
		cacheDevices = append(cacheDevices, device)
	}
	outcomes = append(outcomes, schema.Success("device-validation"))

	group, err := a.raidHandler.Assemble(ctx, members, req.Level)
	if err != nil {
		return fail("redundancy-group", err)
	}
	outcomes = append(outcomes, schema.Success("redundancy-group"))

	syncOutcome := a.raidHandler.WaitSync(ctx, group, a.settings.SyncWaitMax)
	outcomes = append(outcomes, syncOutcome)
	if syncOutcome.Status == schema.StatusWarning {
		slog.Warn("Proceeding while synchronization continues.", "reason", syncOutcome.Reason)
	}

	if err := a.raidHandler.Persist(ctx, group); err != nil {
		return fail("group-registry", err)
	}
	outcomes = append(outcomes, schema.Success("group-registry"))

	pool, err := a.lvmHandler.CreatePool(ctx, req.Name, group.Node)
	if err != nil {
		return fail("capacity-pool", err)
	}
	outcomes = append(outcomes, schema.Success("capacity-pool"))

	if len(cacheDevices) > 0 {
		if err := a.lvmHandler.AttachCache(ctx, pool, cacheDevices); err != nil {
			return fail("cache-tier", err)
		}
		outcomes = append(outcomes, schema.Success("cache-tier"))

		slog.Info("Cache tier attached.", "size", lvm.CacheSize(cacheDevices))
	}

	mounted, err := a.fsHandler.Provision(ctx, pool.DevicePath(), req.Filesystem, req.Mountpoint)
	if err != nil {
		return fail("filesystem", err)
	}
	outcomes = append(outcomes, schema.Success("filesystem"))

	var rawBytes uint64
	for _, device := range members {
		rawBytes += device.Size
	}

	summary := &report.PoolSummary{
		Name:        req.Name,
		Level:       req.Level.String(),
		GroupNode:   group.Node,
		Members:     group.Members,
		VolumeGroup: pool.VolumeGroup,
		DataVolume:  pool.DataVolume,
		Cached:      pool.Cached,
		Filesystem:  mounted.Type.String(),
		UUID:        mounted.UUID,
		Mountpoint:  mounted.Mountpoint,
		RawBytes:    rawBytes,
		BuiltAt:     time.Now(),
	}

	if err := a.reportHandler.WriteSummary(summary); err != nil {
		slog.Warn("Failed to write the pool summary.", "err", err)
		outcomes = append(outcomes, schema.Warning("pool-summary", "summary descriptor not written", err))
	}

	slog.Info("Storage pool built.",
		"pool", req.Name,
		"device", mounted.Device,
		"mountpoint", mounted.Mountpoint,
	)

	return nil
}

// ProvisionShare runs the share access controller for one share. Degraded
// stages are reported but never change the exit outcome; only structural
// failures do.
func (a *App) ProvisionShare(ctx context.Context, req *share.Request) error {
	if err := a.preflight(shareTools); err != nil {
		return fmt.Errorf("share %s: %w", req.Name, err)
	}

	outcomes, err := a.shareHandler.Provision(ctx, req)

	if len(outcomes) > 0 {
		if logErr := a.reportHandler.AppendActions("share "+req.Name, outcomes); logErr != nil {
			slog.Warn("Failed to append to the action log.", "err", logErr)
		}
	}

	if err != nil {
		return fmt.Errorf("share %s: %w", req.Name, err)
	}

	if warnings := schema.Warnings(outcomes); len(warnings) > 0 {
		for _, warning := range warnings {
			slog.Warn("Share provisioned with degradation.",
				"share", req.Name,
				"stage", warning.Stage,
				"reason", warning.Reason,
			)
		}
	}

	slog.Info("Share provisioned.",
		"share", req.Name,
		"path", req.Path,
		"group", req.GroupName(),
	)

	return nil
}
