package lock

import (
	"github.com/google/uuid"
)

// Kind represents the lock level requested on a mailbox.
//
// The levels are totally ordered: KindNone < KindShared < KindExclusive.
// Promotion and demotion compare against this order.
type Kind int

const (
	// KindNone means no lock (release when requested from a backend).
	KindNone Kind = iota

	// KindShared is a shared (read) lock - multiple readers allowed.
	KindShared

	// KindExclusive is an exclusive (write) lock - no other locks allowed.
	KindExclusive
)

// String returns a human-readable name for the lock kind.
func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindShared:
		return "shared"
	case KindExclusive:
		return "exclusive"
	default:
		return "unknown"
	}
}

// BackendID identifies one concrete lock backend.
//
// The ordinals are stable and index the session held-state table. The
// textual names (dotlock, fcntl, flock, lockf) are an interoperability
// contract: unrelated programs configured with the same strings must end up
// with the same locking behavior.
type BackendID int

const (
	// BackendDotlock is the external lock-file artifact (<path>.lock).
	BackendDotlock BackendID = iota

	// BackendFcntl is a byte-range advisory lock over the whole file.
	BackendFcntl

	// BackendFlock is a whole-file advisory lock.
	BackendFlock

	// BackendLockf is an exclusive-only byte lock.
	BackendLockf

	backendCount
)

// String returns the configuration name of the backend.
func (id BackendID) String() string {
	switch id {
	case BackendDotlock:
		return "dotlock"
	case BackendFcntl:
		return "fcntl"
	case BackendFlock:
		return "flock"
	case BackendLockf:
		return "lockf"
	default:
		return "unknown"
	}
}

// parseBackendID resolves a configuration name to a BackendID.
func parseBackendID(name string) (BackendID, bool) {
	switch name {
	case "dotlock":
		return BackendDotlock, true
	case "fcntl":
		return BackendFcntl, true
	case "flock":
		return BackendFlock, true
	case "lockf":
		return BackendLockf, true
	default:
		return 0, false
	}
}

// Token is issued by a successful Handle.Lock call and must be presented to
// Unlock to release that specific lock instance.
//
// A token embeds the handle's lock epoch at issue time; the epoch advances
// whenever the OS lock is fully released, so tokens from before a full
// release can never validate again. The exclusive flag takes the place of
// the classic low bit of the packed lock id.
type Token struct {
	epoch     uint32
	exclusive bool
	id        string
}

// newToken creates a token for the given epoch and kind. The id is only
// used for logging and metrics correlation.
func newToken(epoch uint32, exclusive bool) Token {
	return Token{
		epoch:     epoch,
		exclusive: exclusive,
		id:        uuid.New().String(),
	}
}

// Exclusive reports whether the token was issued for an exclusive lock.
func (t Token) Exclusive() bool {
	return t.exclusive
}

// ID returns the token's correlation id.
func (t Token) ID() string {
	return t.id
}

// Value returns the packed numeric form of the token (epoch with the kind
// encoded in the low bit). Used for logging.
func (t Token) Value() uint32 {
	if t.exclusive {
		return t.epoch | 1
	}
	return t.epoch
}
