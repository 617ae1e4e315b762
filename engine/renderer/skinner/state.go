package skinner

// State is the lifecycle state of a Skinner.
type State int

const (
	// StateUninitialized is the state before construction completes.
	StateUninitialized State = iota

	// StateInitialized means buffers are allocated and the kernel variant is selected.
	StateInitialized

	// StateReady means at least one frame has been evaluated successfully.
	StateReady

	// StateDisposed means Release has been called. Further evaluations fail with ErrReleased.
	StateDisposed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitialized:
		return "initialized"
	case StateReady:
		return "ready"
	case StateDisposed:
		return "disposed"
	default:
		return "unknown"
	}
}
