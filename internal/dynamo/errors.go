package dynamo

import (
	"errors"

	"github.com/ppriyankuu/dynamosim/internal/vclock"
)

// Network faults (drops, cuts, node failure) are absorbed by the scheduler
// and never surface as Go errors; only genuine protocol violations do.
var (
	// ErrUnknownMessage is returned by Rcvmsg when a node is handed a
	// message type it has no handler for.
	ErrUnknownMessage = errors.New("dynamo: unknown message type")

	// ErrClockRegression is vclock.ErrRegression, re-exported so callers
	// of this package can errors.Is against it without importing
	// internal/vclock directly. Coordinator.rcvClientPut raises it
	// (wrapped) when a client-supplied write-context clock already has an
	// entry for this coordinator at or above the seqno it just allocated —
	// a caller bug, not a transport fault, so it propagates out of Rcvmsg
	// instead of being absorbed.
	ErrClockRegression = vclock.ErrRegression
)
