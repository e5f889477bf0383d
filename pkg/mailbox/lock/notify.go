package lock

// NotifyKind classifies a wait notification.
type NotifyKind int

const (
	// NotifyAbort is sent while waiting for a contended lock. Returning
	// false from the callback aborts the wait, surfaced to the caller as a
	// timeout.
	NotifyAbort NotifyKind = iota

	// NotifyOverride is sent while waiting on a dotlock artifact that looks
	// stale. Returning false aborts the wait like NotifyAbort.
	NotifyOverride
)

// String returns a human-readable name for the notify kind.
func (k NotifyKind) String() string {
	switch k {
	case NotifyAbort:
		return "abort"
	case NotifyOverride:
		return "override"
	default:
		return "unknown"
	}
}

// NotifyFunc is invoked periodically during blocking waits with the number
// of seconds remaining before the deadline. It is the only cancellation
// channel for a wait in progress: returning false aborts the wait early and
// the lock request fails with a timeout.
//
// A nil NotifyFunc always continues.
type NotifyFunc func(kind NotifyKind, secsLeft uint) bool
