package lock

import (
	"math/rand"
	"time"
)

// outcome is the result of one backend apply call.
type outcome int

const (
	// outcomeOK means the backend was acquired or released.
	outcomeOK outcome = iota

	// outcomeTimeout means the backend is contended: the deadline expired,
	// the call was non-blocking, or the wait was aborted via the notify
	// callback.
	outcomeTimeout

	// outcomeFailed means an unexpected OS error; the accompanying error
	// carries the detail.
	outcomeFailed
)

// backend is one concrete lock primitive.
//
// apply acquires (KindShared/KindExclusive) or releases (KindNone) the
// backend's lock on the session's mailbox. A zero deadline makes the call
// non-blocking: the backend returns outcomeTimeout immediately instead of
// waiting. Releasing a backend that is not held is a no-op success.
//
// Backends are owned by a Handle (the dotlock backend carries artifact
// state that outlives a single session); sessions reach them through the
// handle's backend set.
type backend interface {
	id() BackendID
	apply(s *session, kind Kind, deadline time.Time) (outcome, error)
}

// backendSet holds the handle's backend instances, indexed by BackendID.
type backendSet [backendCount]backend

// newBackendSet builds the standard backend set for a mailbox path.
func newBackendSet(path string) backendSet {
	var set backendSet
	set[BackendDotlock] = newDotlockBackend(path)
	set[BackendFcntl] = fcntlBackend{}
	set[BackendFlock] = flockBackend{}
	set[BackendLockf] = lockfBackend{}
	return set
}

// backendSupported reports whether a backend is usable on this platform.
// All four backends are available on the unix targets this module supports;
// the hook exists so the configuration parser rejects names rather than
// dispatching to a missing implementation.
func backendSupported(BackendID) bool {
	return true
}

// lockRandomSleep sleeps for 100-200 microseconds. Used as retry backoff by
// the flock and lockf backends so concurrent waiters don't wake in step.
func lockRandomSleep() {
	time.Sleep(time.Duration(100+rand.Intn(100)) * time.Microsecond)
}

// secsLeft returns the whole seconds remaining until the deadline, never
// negative.
func secsLeft(now, deadline time.Time) uint {
	if !now.Before(deadline) {
		return 0
	}
	return uint(deadline.Sub(now) / time.Second)
}
