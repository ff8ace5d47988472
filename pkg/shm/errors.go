package shm

import "errors"

// Failure taxonomy of Open/Create. Errors returned by those calls wrap one
// (occasionally two) of these and are meant to be checked with errors.Is.
var (
	// ErrInvalidArgument: zero sizes, non-power-of-two capacity, bad name or role.
	// Nothing was acquired.
	ErrInvalidArgument = errors.New("shm: invalid argument")
	// ErrResource: the segment could not be allocated, opened or mapped.
	ErrResource = errors.New("shm: segment resource error")
	// ErrProtocolMismatch: the segment's layout is incompatible with the request.
	ErrProtocolMismatch = errors.New("shm: protocol mismatch")
	// ErrNotReady: the writer did not publish the segment within the attach budget.
	ErrNotReady = errors.New("shm: segment not ready")
)

// Transient signals of the ring protocol. They are part of the normal
// control flow and recoverable by retrying.
var (
	ErrQueueFull    = errors.New("shm: queue is full")
	ErrQueueEmpty   = errors.New("shm: queue is empty")
	ErrNotConnected = errors.New("shm: no consumer connected")
)

// Handle misuse.
var (
	ErrDestroyed    = errors.New("shm: queue handle destroyed")
	ErrRoleMismatch = errors.New("shm: operation not allowed for this role")
)
