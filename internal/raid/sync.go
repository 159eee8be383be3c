package raid

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/desertwitch/poolsmith/internal/schema"
	"github.com/juju/clock"
	"github.com/juju/retry"
)

const syncPollInterval = 10 * time.Second

// WaitSync blocks until the initial synchronization of the group completes
// or the bounded wait elapses. An elapsed wait is a degradation, never a
// failure: synchronization continues in the kernel regardless, so the
// pipeline may proceed with a warning outcome.
func (h *Handler) WaitSync(ctx context.Context, group *Group, maxWait time.Duration) schema.Outcome {
	attempts := int(maxWait/syncPollInterval) + 1

	err := retry.Call(retry.CallArgs{
		Func: func() error {
			return h.checkSynced(ctx, group.Node)
		},
		IsFatalError: func(err error) bool {
			return ctx.Err() != nil
		},
		NotifyFunc: func(err error, attempt int) {
			slog.Debug("Waiting for initial synchronization.",
				"node", group.Node,
				"attempt", attempt,
			)
		},
		Attempts: attempts,
		Delay:    syncPollInterval,
		Clock:    clock.WallClock,
		Stop:     ctx.Done(),
	})
	if err != nil {
		return schema.Warning("redundancy-sync",
			fmt.Sprintf("initial synchronization of %s still running after %s (continues in background)",
				group.Node, maxWait), nil)
	}

	slog.Info("Initial synchronization complete.", "node", group.Node)

	return schema.Success("redundancy-sync")
}

// checkSynced probes the group state once, returning [errStillSyncing] while
// the initial synchronization has not completed.
func (h *Handler) checkSynced(ctx context.Context, node string) error {
	out, err := h.runner.Run(ctx, "mdadm", "--detail", node)
	if err != nil {
		return fmt.Errorf("failed to read group detail (%s): %w", node, err)
	}

	state := detailState(out)

	switch {
	case strings.Contains(state, "resyncing"),
		strings.Contains(state, "recovering"),
		strings.Contains(state, "syncing"):
		return errStillSyncing
	default:
		return nil
	}
}

// detailState extracts the value of the "State :" line out of a group detail
// listing, lowercased for matching.
func detailState(detail string) string {
	for _, line := range strings.Split(detail, "\n") {
		trimmed := strings.TrimSpace(line)
		if after, found := strings.CutPrefix(trimmed, "State :"); found {
			return strings.ToLower(strings.TrimSpace(after))
		}
	}

	return ""
}
