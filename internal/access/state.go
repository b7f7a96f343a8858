package access

// State is the lifecycle position of one scope or path.
type State int

const (
	// StateUninitialized means no capability was handed out for the key yet.
	StateUninitialized State = iota
	// StateValid means the last capability for the key was accepted.
	StateValid
	// StateInvalidating means a rejected credential is being renewed.
	StateInvalidating
	// StatePermanentlyDenied means the last attempt needs user action. It is a
	// report, not a gate: the next live success moves the key back to valid.
	StatePermanentlyDenied
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateValid:
		return "valid"
	case StateInvalidating:
		return "invalidating"
	case StatePermanentlyDenied:
		return "permanently_denied"
	default:
		return "unknown"
	}
}
