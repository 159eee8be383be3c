package share

import (
	"context"
	"fmt"
	"strings"

	"github.com/desertwitch/poolsmith/internal/schema"
)

// applyACLs reconciles the two protocols' permission models on the share
// directory. The anonymous squash identity receives explicit rwx entries so
// NFS writes land usable, and the default ACL makes everything created below
// inherit group access while locking out others.
//
// A filesystem without ACL support degrades to a compatibility warning: the
// setgid directory and owning group alone still give CIFS clients a working
// (if coarser) policy.
func (h *Handler) applyACLs(ctx context.Context, st *state) schema.Outcome {
	fsType, err := h.fsHandler.TypeOf(st.req.Path)
	if err != nil {
		return schema.Warning("", "failed to probe share filesystem type", err)
	}
	st.fsType = fsType

	if !fsType.SupportsACL() {
		return schema.Warning("",
			fmt.Sprintf("filesystem %s does not support POSIX ACLs, relying on group permissions only", fsType),
			nil)
	}

	anonUID, anonGID := h.resolveAnonymous(ctx, st)

	access := fmt.Sprintf("u:%d:rwx,g:%d:rwx", anonUID, anonGID)
	if out, err := h.runner.Run(ctx, "setfacl", "-m", access, st.req.Path); err != nil {
		return schema.Warning("", fmt.Sprintf("failed to set access ACLs (%s)", out), err)
	}

	defaults := strings.Join([]string{
		"u::rwx",
		"g::rwx",
		fmt.Sprintf("g:%d:rwx", st.gid),
		fmt.Sprintf("u:%d:rwx", anonUID),
		fmt.Sprintf("g:%d:rwx", anonGID),
		"m::rwx",
		"o::---",
	}, ",")

	if out, err := h.runner.Run(ctx, "setfacl", "-d", "-m", defaults, st.req.Path); err != nil {
		return schema.Warning("", fmt.Sprintf("failed to set default ACLs (%s)", out), err)
	}

	return schema.Success("")
}
