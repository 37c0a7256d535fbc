package block

// State is the lifecycle position of a writable block.
type State int32

const (
	// StateClean means there is no dirty data in the block.
	StateClean State = iota

	// StateDirty means there is some dirty data in the block.
	StateDirty

	// StateFlushing means an outstanding flush operation is asynchronously
	// pushing dirty block data toward durable storage. Appends are rejected
	// from here on; the state holds until Close.
	StateFlushing

	// StateClosed means the block is closed and durable. No more operations
	// can be performed on it.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateClean:
		return "clean"
	case StateDirty:
		return "dirty"
	case StateFlushing:
		return "flushing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}
