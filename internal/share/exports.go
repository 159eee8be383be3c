package share

import (
	"context"
	"fmt"

	"github.com/desertwitch/poolsmith/internal/linefile"
	"github.com/desertwitch/poolsmith/internal/schema"
)

// ExportsKey is the [linefile.KeyFunc] for the NFS export table: entries are
// replaced by their export path (first field).
var ExportsKey = linefile.FieldKey(0)

// writeExports upserts the NFS export entries for the share: one line per
// allowed client range, every line squashing all access to the anonymous
// identity. Replacing by path means re-provisioning with a narrower client
// set drops the wider grants rather than accumulating them.
func (h *Handler) writeExports(ctx context.Context, st *state) schema.Outcome {
	if !st.req.HasProtocol(schema.ProtocolNFS) {
		return schema.Success("")
	}

	anonUID, anonGID := h.resolveAnonymous(ctx, st)

	entries := make([]string, 0, len(st.req.Clients))
	for _, client := range st.req.Clients {
		entries = append(entries, fmt.Sprintf(
			"%s %s(rw,sync,no_subtree_check,all_squash,anonuid=%d,anongid=%d,sec=sys)",
			st.req.Path, client, anonUID, anonGID,
		))
	}

	if err := h.exports.Replace(st.req.Path, entries...); err != nil {
		return schema.Warning("", fmt.Sprintf("failed to update %s", h.exports.Path()), err)
	}

	return schema.Success("")
}
