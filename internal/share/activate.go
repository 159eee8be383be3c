package share

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/desertwitch/poolsmith/internal/schema"
)

// activateServices pushes the rewritten tables into the running protocol
// daemons. Per-protocol failures are collected rather than short-circuited:
// the on-disk configuration is already correct at this point and the
// remaining daemons should still pick it up.
func (h *Handler) activateServices(ctx context.Context, st *state) schema.Outcome {
	var failures []string
	var errs []error

	if st.req.HasProtocol(schema.ProtocolNFS) {
		if out, err := h.runner.Run(ctx, "exportfs", "-ra"); err != nil {
			failures = append(failures, fmt.Sprintf("failed to re-export NFS table (%s)", out))
			errs = append(errs, err)
		} else if err := h.servicesHandler.ReloadOrRestart(ctx, unitNFS); err != nil {
			failures = append(failures, "failed to reload NFS server")
			errs = append(errs, err)
		}
	}

	if st.req.HasProtocol(schema.ProtocolCIFS) {
		if out, err := h.runner.Run(ctx, "testparm", "-s"); err != nil {
			failures = append(failures, fmt.Sprintf("CIFS configuration failed validation (%s)", out))
			errs = append(errs, err)
		} else if err := h.servicesHandler.ReloadOrRestart(ctx, unitSMB, unitNMB); err != nil {
			failures = append(failures, "failed to reload CIFS daemons")
			errs = append(errs, err)
		}
	}

	if len(failures) > 0 {
		return schema.Warning("", strings.Join(failures, "; "), errors.Join(errs...))
	}

	return schema.Success("")
}
