package capture

import "fmt"

// State is the lifecycle state of a Manager.
type State int

// Lifecycle: closed → opened → configured → started ⇄ stopped → released.
const (
	StateClosed State = iota
	StateOpened
	StateConfigured
	StateStarted
	StateStopped
	StateReleased
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpened:
		return "opened"
	case StateConfigured:
		return "configured"
	case StateStarted:
		return "started"
	case StateStopped:
		return "stopped"
	case StateReleased:
		return "released"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// DropPolicy decides what happens to completed frames the consumer has not collected when the
// hardware is about to run out of queued requests.
type DropPolicy string

const (
	// DropOldest recycles the oldest uncollected frame so capture never stalls.
	DropOldest = DropPolicy("drop_oldest")
	// KeepAll never discards a completed frame; capture pauses until the consumer catches up.
	KeepAll = DropPolicy("keep_all")
)

// Valid reports whether p is a known policy. The empty policy means DropOldest.
func (p DropPolicy) Valid() bool {
	switch p {
	case DropOldest, KeepAll, "":
		return true
	default:
		return false
	}
}
