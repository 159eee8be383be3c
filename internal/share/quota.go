package share

import (
	"context"
	"encoding/binary"
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/desertwitch/poolsmith/internal/linefile"
	"github.com/desertwitch/poolsmith/internal/schema"
	"github.com/zeebo/blake3"
)

// ProjectsKey is the [linefile.KeyFunc] for the project-path mapping table:
// entries are replaced by their numeric project identifier.
var ProjectsKey = linefile.SeparatorKey(":")

// ProjidKey is the [linefile.KeyFunc] for the project-name mapping table:
// entries are replaced by their project name.
var ProjidKey = linefile.SeparatorKey(":")

const (
	projectIDSpan = 9_000_000
	projectIDBase = 1_000_000
)

// ProjectID derives the stable quota project identifier for a share path.
// Hashing the cleaned path keeps the identifier reproducible across runs and
// hosts without any allocation registry; the offset keeps it clear of
// identifiers handed out by other tooling.
func ProjectID(path string) uint32 {
	sum := blake3.Sum256([]byte(filepath.Clean(path)))

	return binary.BigEndian.Uint32(sum[:4])%projectIDSpan + projectIDBase
}

// ensureQuota applies the optional capacity quota as a project quota on the
// share's backing filesystem: durable prjquota mount option, project mapping
// entries, recursive project setup and a hard block limit. Every failure
// degrades to a warning since an unlimited share is still a usable share.
func (h *Handler) ensureQuota(ctx context.Context, st *state) schema.Outcome {
	if st.req.QuotaBytes == 0 {
		return schema.Success("")
	}

	fsType := st.fsType
	if fsType == "" {
		probed, err := h.fsHandler.TypeOf(st.req.Path)
		if err != nil {
			return schema.Warning("", "failed to probe share filesystem type", err)
		}
		fsType = probed
	}

	if !fsType.SupportsProjectQuota() {
		return schema.Warning("",
			fmt.Sprintf("filesystem %s does not support project quotas, share remains unlimited", fsType),
			nil)
	}

	mountpoint, err := h.fsHandler.MountpointOf(ctx, st.req.Path)
	if err != nil {
		return schema.Warning("", "failed to resolve share mountpoint", err)
	}

	if _, err := h.fsHandler.EnsureMountOption(ctx, mountpoint, "prjquota"); err != nil {
		return schema.Warning("", "failed to enable project quota accounting", err)
	}

	projectID := ProjectID(st.req.Path)
	idString := strconv.FormatUint(uint64(projectID), 10)
	groupName := st.req.GroupName()

	if err := h.projects.Replace(idString, idString+":"+st.req.Path); err != nil {
		return schema.Warning("", fmt.Sprintf("failed to update %s", h.projects.Path()), err)
	}

	if err := h.projid.Replace(groupName, groupName+":"+idString); err != nil {
		return schema.Warning("", fmt.Sprintf("failed to update %s", h.projid.Path()), err)
	}

	setup := fmt.Sprintf("project -s %s", groupName)
	if out, err := h.runner.Run(ctx, "xfs_quota", "-x", "-c", setup, mountpoint); err != nil {
		return schema.Warning("", fmt.Sprintf("failed to initialize quota project (%s)", out), err)
	}

	limit := fmt.Sprintf("limit -p bhard=%d %s", st.req.QuotaBytes, groupName)
	if out, err := h.runner.Run(ctx, "xfs_quota", "-x", "-c", limit, mountpoint); err != nil {
		return schema.Warning("", fmt.Sprintf("failed to apply quota limit (%s)", out), err)
	}

	return schema.Success("")
}
