// Package share implements the share access controller. Given an existing
// mounted path it reconciles the two sharing protocols' independent
// permission models into one effective access policy: an owning group, a
// setgid base directory, POSIX ACLs granting the network-filesystem anonymous
// identity and the owning group equivalent rights, protocol export and
// share-definition entries, an optional restricted user and an optional
// capacity quota.
//
// The controller is a re-entrant state machine: re-running it with the same
// share name replaces its own prior entries (replace-by-path for exports,
// replace-by-name for share definitions, replace-by-identifier for quota
// mappings) rather than duplicating them.
package share

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/desertwitch/poolsmith/internal/configuration"
	"github.com/desertwitch/poolsmith/internal/linefile"
	"github.com/desertwitch/poolsmith/internal/schema"
)

type commandRunner interface {
	Run(ctx context.Context, name string, args ...string) (string, error)
	RunInput(ctx context.Context, input string, name string, args ...string) (string, error)
}

type osProvider interface {
	MkdirAll(path string, perm os.FileMode) error
	ReadFile(name string) ([]byte, error)
	OpenFile(name string, flag int, perm os.FileMode) (*os.File, error)
	Rename(oldpath, newpath string) error
	Remove(name string) error
}

type unixProvider interface {
	Chown(path string, uid, gid int) error
	Chmod(path string, mode uint32) error
}

type filesystemProvider interface {
	TypeOf(path string) (schema.FilesystemType, error)
	MountpointOf(ctx context.Context, path string) (string, error)
	EnsureMountOption(ctx context.Context, mountpoint string, option string) (bool, error)
}

type serviceProvider interface {
	ReloadOrRestart(ctx context.Context, units ...string) error
}

// GroupPrefix derives the owning group name from a share name.
const GroupPrefix = "share_"

const (
	unitNFS      = "nfs-server.service"
	unitSMB      = "smbd.service"
	unitNMB      = "nmbd.service"
	shellNologin = "/usr/sbin/nologin"
)

// Request describes one share to be provisioned (or re-provisioned).
type Request struct {
	Name           string
	Path           string
	Protocols      []schema.Protocol
	Clients        []string
	RestrictedUser string
	QuotaBytes     uint64
	NonInteractive bool
}

// GroupName returns the deterministically derived owning group name.
func (r *Request) GroupName() string {
	return GroupPrefix + r.Name
}

// HasProtocol reports whether a protocol is in the enabled set.
func (r *Request) HasProtocol(p schema.Protocol) bool {
	return slices.Contains(r.Protocols, p)
}

// Handler is the principal implementation of the share access controller.
type Handler struct {
	runner          commandRunner
	osHandler       osProvider
	unixHandler     unixProvider
	fsHandler       filesystemProvider
	servicesHandler serviceProvider
	settings        *configuration.Settings

	exports  *linefile.Store
	projects *linefile.Store
	projid   *linefile.Store
}

// NewHandler returns a pointer to a new share [Handler]. The exports store
// must key on the export path (see [ExportsKey]), the quota mapping stores on
// their identifier and name fields (see [ProjectsKey], [ProjidKey]).
func NewHandler(
	runner commandRunner,
	osHandler osProvider,
	unixHandler unixProvider,
	fsHandler filesystemProvider,
	servicesHandler serviceProvider,
	settings *configuration.Settings,
	exports *linefile.Store,
	projects *linefile.Store,
	projid *linefile.Store,
) *Handler {
	return &Handler{
		runner:          runner,
		osHandler:       osHandler,
		unixHandler:     unixHandler,
		fsHandler:       fsHandler,
		servicesHandler: servicesHandler,
		settings:        settings,
		exports:         exports,
		projects:        projects,
		projid:          projid,
	}
}

// state is the per-run working state shared between the stages.
type state struct {
	req *Request

	gid     int
	fsType  schema.FilesystemType
	anonUID int
	anonGID int

	anonResolved bool
}

// stage is one step of the controller's state machine. Structural stages are
// fatal on failure; everything past them degrades to a warning and the
// pipeline continues, because a partially configured share with manually
// correctable permissions beats an aborted one on a mounted filesystem.
type stage struct {
	name string
	fn   func(ctx context.Context, st *state) schema.Outcome
}

// Provision runs the controller's state machine for one share. It returns
// all stage outcomes for reporting; the returned error is non-nil only for a
// validation failure or a fatal structural stage.
func (h *Handler) Provision(ctx context.Context, req *Request) ([]schema.Outcome, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	st := &state{req: req}

	stages := []stage{
		{"owning-group", h.ensureGroup},
		{"share-directory", h.ensureDirectory},
		{"access-acls", h.applyACLs},
		{"nfs-exports", h.writeExports},
		{"cifs-definition", h.writeShareDefinition},
		{"restricted-user", h.ensureRestrictedUser},
		{"capacity-quota", h.ensureQuota},
		{"service-activation", h.activateServices},
	}

	outcomes := make([]schema.Outcome, 0, len(stages))

	for _, s := range stages {
		outcome := s.fn(ctx, st)
		outcome.Stage = s.name
		outcomes = append(outcomes, outcome)

		switch outcome.Status {
		case schema.StatusFatal:
			return outcomes, fmt.Errorf("(share) stage %s: %s: %w", s.name, outcome.Reason, outcome.Err)
		case schema.StatusWarning:
			slog.Warn("Share stage degraded (continuing).",
				"share", req.Name,
				"stage", s.name,
				"reason", outcome.Reason,
				"err", outcome.Err,
			)
		case schema.StatusSuccess:
			slog.Debug("Share stage complete.",
				"share", req.Name,
				"stage", s.name,
			)
		}
	}

	return outcomes, nil
}

// validateRequest rejects bad input shape before any mutation takes place.
func validateRequest(req *Request) error {
	if strings.TrimSpace(req.Name) == "" {
		return fmt.Errorf("(share) %w: empty share name", ErrInvalidRequest)
	}

	if !filepath.IsAbs(req.Path) {
		return fmt.Errorf("(share) %w: share path must be absolute: %s", ErrInvalidRequest, req.Path)
	}

	if len(req.Protocols) == 0 {
		return fmt.Errorf("(share) %w: no sharing protocol enabled", ErrInvalidRequest)
	}

	if req.HasProtocol(schema.ProtocolNFS) && len(req.Clients) == 0 {
		return fmt.Errorf("(share) %w: no allowed client ranges", ErrInvalidRequest)
	}

	return nil
}
