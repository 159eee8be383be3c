package raid

import "errors"

var (
	// ErrAssemblyFailed is an error that occurs when the creation of a
	// redundancy group fails; the partially created group is torn down
	// (best effort) before it surfaces.
	ErrAssemblyFailed = errors.New("redundancy group assembly failed")

	// errStillSyncing signals that the initial synchronization of a
	// redundancy group has not completed yet (internal to the bounded wait).
	errStillSyncing = errors.New("initial synchronization still running")
)
