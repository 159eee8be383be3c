package share

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/desertwitch/poolsmith/internal/schema"
)

// AnonSentinelID is the fixed numeric fallback for the anonymous identity
// when the configured anonymous user/group cannot be resolved on the system.
const AnonSentinelID = 65534

// lookupGroupID resolves a group name into its numeric id.
func (h *Handler) lookupGroupID(ctx context.Context, name string) (int, bool) {
	out, err := h.runner.Run(ctx, "getent", "group", name)
	if err != nil {
		return 0, false
	}

	return parseIDField(out)
}

// lookupUserID resolves a user name into its numeric id.
func (h *Handler) lookupUserID(ctx context.Context, name string) (int, bool) {
	out, err := h.runner.Run(ctx, "getent", "passwd", name)
	if err != nil {
		return 0, false
	}

	return parseIDField(out)
}

// parseIDField extracts the numeric id out of a "name:x:id:..." entry.
func parseIDField(entry string) (int, bool) {
	fields := strings.Split(strings.TrimSpace(entry), ":")
	if len(fields) < 3 {
		return 0, false
	}

	id, err := strconv.Atoi(fields[2])
	if err != nil {
		return 0, false
	}

	return id, true
}

// resolveAnonymous resolves the anonymous squash identity once per run,
// falling back to [AnonSentinelID] when the configured identities are absent.
func (h *Handler) resolveAnonymous(ctx context.Context, st *state) (int, int) {
	if st.anonResolved {
		return st.anonUID, st.anonGID
	}

	uid, ok := h.lookupUserID(ctx, h.settings.AnonUser)
	if !ok {
		slog.Debug("Anonymous user not resolvable, using sentinel.",
			"user", h.settings.AnonUser,
			"sentinel", AnonSentinelID,
		)
		uid = AnonSentinelID
	}

	gid, ok := h.lookupGroupID(ctx, h.settings.AnonGroup)
	if !ok {
		slog.Debug("Anonymous group not resolvable, using sentinel.",
			"group", h.settings.AnonGroup,
			"sentinel", AnonSentinelID,
		)
		gid = AnonSentinelID
	}

	st.anonUID, st.anonGID = uid, gid
	st.anonResolved = true

	return uid, gid
}

// ensureGroup resolves or creates the owning group derived from the share
// name. The owning group is the anchor of the effective permission policy;
// without it nothing else is provisionable, so failure here is fatal.
func (h *Handler) ensureGroup(ctx context.Context, st *state) schema.Outcome {
	groupName := st.req.GroupName()

	if gid, exists := h.lookupGroupID(ctx, groupName); exists {
		st.gid = gid

		return schema.Success("")
	}

	if out, err := h.runner.Run(ctx, "groupadd", groupName); err != nil {
		return schema.Fatal("", fmt.Sprintf("failed to create owning group %s (%s)", groupName, out),
			fmt.Errorf("%w: %w", ErrGroupFailed, err))
	}

	gid, exists := h.lookupGroupID(ctx, groupName)
	if !exists {
		return schema.Fatal("", fmt.Sprintf("owning group %s not resolvable after creation", groupName),
			ErrGroupFailed)
	}
	st.gid = gid

	slog.Info("Created owning group.", "group", groupName, "gid", gid)

	return schema.Success("")
}

// ensureDirectory establishes the share directory: owner root, group set to
// the owning group, mode rwxrws--- so new files inherit the owning group.
func (h *Handler) ensureDirectory(_ context.Context, st *state) schema.Outcome {
	path := st.req.Path

	if err := h.osHandler.MkdirAll(path, 0o770); err != nil {
		return schema.Fatal("", fmt.Sprintf("failed to create %s", path),
			fmt.Errorf("%w: %w", ErrDirectoryFailed, err))
	}

	if err := h.unixHandler.Chown(path, 0, st.gid); err != nil {
		return schema.Fatal("", fmt.Sprintf("failed to chown %s", path),
			fmt.Errorf("%w: %w", ErrDirectoryFailed, err))
	}

	if err := h.unixHandler.Chmod(path, 0o2770); err != nil {
		return schema.Fatal("", fmt.Sprintf("failed to chmod %s", path),
			fmt.Errorf("%w: %w", ErrDirectoryFailed, err))
	}

	return schema.Success("")
}
