package share

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/desertwitch/poolsmith/internal/schema"
	"gopkg.in/ini.v1"
)

// writeShareDefinition upserts the CIFS share-definition block for the share,
// keyed on its section name. The whole definition file is round-tripped
// through an INI model so re-provisioning replaces the share's own block and
// leaves foreign blocks untouched.
func (h *Handler) writeShareDefinition(_ context.Context, st *state) schema.Outcome {
	if !st.req.HasProtocol(schema.ProtocolCIFS) {
		return schema.Success("")
	}

	cfg, err := h.loadShareDefinitions()
	if err != nil {
		return schema.Warning("", fmt.Sprintf("failed to read %s", h.settings.SambaSharesFile), err)
	}

	cfg.DeleteSection(st.req.Name)

	section, err := cfg.NewSection(st.req.Name)
	if err != nil {
		return schema.Warning("", "failed to build share definition", err)
	}

	validUsers := "@" + st.req.GroupName()
	if st.req.RestrictedUser != "" {
		validUsers += " " + st.req.RestrictedUser
	}

	for _, kv := range [][2]string{
		{"path", st.req.Path},
		{"valid users", validUsers},
		{"guest ok", "no"},
		{"browseable", "yes"},
		{"read only", "no"},
		{"force group", st.req.GroupName()},
		{"create mask", "0660"},
		{"directory mask", "0770"},
		{"inherit acls", "yes"},
	} {
		if _, err := section.NewKey(kv[0], kv[1]); err != nil {
			return schema.Warning("", "failed to build share definition", err)
		}
	}

	if err := h.writeShareDefinitions(cfg); err != nil {
		return schema.Warning("", fmt.Sprintf("failed to update %s", h.settings.SambaSharesFile), err)
	}

	return schema.Success("")
}

// loadShareDefinitions parses the share-definition file; a file that does not
// exist yet reads as empty.
func (h *Handler) loadShareDefinitions() (*ini.File, error) {
	data, err := h.osHandler.ReadFile(h.settings.SambaSharesFile)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ini.Empty(), nil
		}

		return nil, fmt.Errorf("(share-cifs) %w", err)
	}

	cfg, err := ini.Load(data)
	if err != nil {
		return nil, fmt.Errorf("(share-cifs) %w", err)
	}

	return cfg, nil
}

// writeShareDefinitions rewrites the share-definition file atomically via a
// temporary sibling, so a crashed run never leaves a torn definition behind.
func (h *Handler) writeShareDefinitions(cfg *ini.File) (err error) {
	var written bool

	tmpPath := h.settings.SambaSharesFile + ".poolsmith"
	defer func() {
		if !written {
			h.osHandler.Remove(tmpPath) //nolint:errcheck
		}
	}()

	var content strings.Builder
	if _, err := cfg.WriteTo(&content); err != nil {
		return fmt.Errorf("(share-cifs) failed to render definitions: %w", err)
	}

	file, err := h.osHandler.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("(share-cifs) failed to open %s: %w", tmpPath, err)
	}

	if _, err := file.WriteString(content.String()); err != nil {
		file.Close()

		return fmt.Errorf("(share-cifs) failed to write %s: %w", tmpPath, err)
	}

	if err := file.Sync(); err != nil {
		file.Close()

		return fmt.Errorf("(share-cifs) failed to sync %s: %w", tmpPath, err)
	}

	if err := file.Close(); err != nil {
		return fmt.Errorf("(share-cifs) failed to close %s: %w", tmpPath, err)
	}

	if err := h.osHandler.Rename(tmpPath, h.settings.SambaSharesFile); err != nil {
		return fmt.Errorf("(share-cifs) failed to rename %s: %w", tmpPath, err)
	}
	written = true

	return nil
}
