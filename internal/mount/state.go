package mount

import "fmt"

// State is the lifecycle position of a Session.
type State int

const (
	StateCreated      State = iota
	StateMounting           // mount binary running
	StateAwaitingData       // mounted, mount point still empty
	StateReady              // mount point listed at least one entry
	StateFailed             // mount or readiness failed; teardown still pending
	StateTearingDown
	StateClosed
)

var stateNames = [...]string{
	"created", "mounting", "awaiting_data", "ready",
	"failed", "tearing_down", "closed",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("unknown(%d)", int(s))
}

// Terminal reports whether the session can no longer make progress.
func (s State) Terminal() bool {
	return s == StateFailed || s == StateTearingDown || s == StateClosed
}
