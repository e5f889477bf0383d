// Package lock implements the composite mbox locking protocol: a handle
// acquires an ordered list of lock backends (dotlock, fcntl, flock, lockf)
// so a mailbox stays consistent across every process that touches the
// spool, whatever combination of primitives those processes use.
//
// The backend lists come from a MethodTable built once at startup. Shared
// acquisition walks the read list, exclusive acquisition the write list;
// the read list being an ordered subsequence of the write list is what
// makes mixed readers and writers deadlock-free across processes.
package lock

import (
	"fmt"
	"sync"
	"time"

	"github.com/rarestuff/mboxd/internal/logger"
	"github.com/rarestuff/mboxd/pkg/mailbox"
	storeerrors "github.com/rarestuff/mboxd/pkg/mailbox/errors"
)

// Option configures a Handle.
type Option func(*Handle)

// WithNotify installs a callback invoked roughly once per second while a
// lock request waits. See NotifyFunc.
func WithNotify(fn NotifyFunc) Option {
	return func(h *Handle) { h.notify = fn }
}

// WithMetrics attaches Prometheus instrumentation to the handle.
func WithMetrics(m *Metrics) Option {
	return func(h *Handle) { h.metrics = m }
}

// Handle is the per-mailbox locking state machine. It tracks the current
// composite lock level, reference counts for nested acquisitions, and the
// epoch used to validate tokens at release time.
//
// Reference counting: each successful Lock/TryLock returns a Token and
// bumps a counter; the OS-level locks are touched only on the transitions
// that need them. Acquiring shared while the handle is exclusive keeps the
// exclusive OS locks. Releasing the last exclusive token while shared
// tokens remain demotes to shared in place, with no unlocked window.
// Releasing the last token releases everything and advances the epoch, so
// tokens from an earlier locked span can never release a later one.
//
// Upgrading is forbidden: requesting exclusive while the handle is shared
// panics, because an upgrade would have to release and re-acquire, and
// every caller holding a shared token believes the mailbox cannot change
// under it.
//
// Thread Safety: all methods are safe for concurrent use; a single mutex
// serializes the state machine. A Handle must not be shared between
// processes, only between goroutines.
type Handle struct {
	mu sync.Mutex

	file     *mailbox.File
	table    *MethodTable
	backends backendSet
	held     [backendCount]Kind

	notify  NotifyFunc
	metrics *Metrics

	level      Kind
	sharedRefs int
	exclRefs   int
	epoch      uint32
	lockedAt   time.Time
}

// NewHandle creates a locking handle for the mailbox file, using the given
// method table for backend ordering and timeouts.
func NewHandle(file *mailbox.File, table *MethodTable, opts ...Option) *Handle {
	h := &Handle{
		file:     file,
		table:    table,
		backends: newBackendSet(file.Path()),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Lock acquires the mailbox at the given level, waiting up to the table's
// lock timeout. kind must be KindShared or KindExclusive.
//
// Returns the token that must be passed to Unlock. On timeout the error
// satisfies errors.IsTimeout and no backend is left held that was not held
// before the call.
func (h *Handle) Lock(kind Kind) (Token, error) {
	return h.lock(kind, time.Now().Add(h.table.LockTimeout()))
}

// TryLock is Lock without waiting: contention on any backend fails the
// whole acquisition immediately with a timeout error.
func (h *Handle) TryLock(kind Kind) (Token, error) {
	return h.lock(kind, time.Time{})
}

func (h *Handle) lock(kind Kind, deadline time.Time) (Token, error) {
	if kind != KindShared && kind != KindExclusive {
		panic(fmt.Sprintf("mailbox/lock: Lock called with %v", kind))
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if kind == KindExclusive && h.level == KindShared {
		panic("mailbox/lock: cannot upgrade a shared mailbox lock to exclusive")
	}

	if h.level == KindNone {
		start := time.Now()
		if err := h.updateLocking(kind, deadline); err != nil {
			status := "error"
			if storeerrors.IsTimeout(err) {
				status = "timeout"
			}
			h.metrics.acquire(kind, status)
			return Token{}, err
		}
		h.epoch += 2
		h.lockedAt = time.Now()
		h.metrics.observeWait(kind, h.lockedAt.Sub(start))
		h.metrics.activeInc()
		logger.Debug("mailbox locked",
			logger.KeyPath, h.file.Path(),
			logger.KeyKind, kind.String(),
			logger.KeyEpoch, h.epoch)
	}

	if kind == KindExclusive {
		h.exclRefs++
	} else {
		h.sharedRefs++
	}
	h.metrics.acquire(kind, "ok")
	return newToken(h.epoch, kind == KindExclusive), nil
}

// Unlock releases one token.
//
// Releasing the last exclusive token while shared tokens remain demotes the
// composite lock to shared without an unlocked window. Releasing the last
// token of all releases every backend and advances the epoch.
//
// Panics on protocol violations: a token from a different epoch, or an
// unlock with no matching reference outstanding. These are caller bugs, not
// runtime conditions.
func (h *Handle) Unlock(tok Token) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if tok.epoch != h.epoch {
		panic(fmt.Sprintf(
			"mailbox/lock: Unlock with token from epoch %d, current epoch %d",
			tok.epoch, h.epoch))
	}
	if tok.exclusive {
		if h.exclRefs == 0 {
			panic("mailbox/lock: Unlock of exclusive token with no exclusive lock held")
		}
		h.exclRefs--
	} else {
		if h.sharedRefs == 0 {
			panic("mailbox/lock: Unlock of shared token with no shared lock held")
		}
		h.sharedRefs--
	}

	if h.exclRefs+h.sharedRefs > 0 {
		if h.exclRefs == 0 && h.level == KindExclusive {
			return h.updateLocking(KindShared, time.Now().Add(h.table.LockTimeout()))
		}
		return nil
	}

	h.epoch += 2
	return h.unlockFiles()
}

// updateLocking moves the composite lock from the current level to kind by
// walking the appropriate backend list. Demotion converts the backends that
// appear in both lists in place before releasing the write-only ones, so
// the mailbox is never observably unlocked during it.
func (h *Handle) updateLocking(kind Kind, deadline time.Time) error {
	s := newSession(h)

	if h.level == KindExclusive && kind == KindShared {
		out, err := s.lockList(KindShared, deadline, h.table.read)
		if err != nil {
			return err
		}
		if out != outcomeOK {
			return storeerrors.NewLockTimeoutError(h.file.Path())
		}
		for _, id := range h.table.write {
			if h.held[id] == KindNone || containsBackend(h.table.read, id) {
				continue
			}
			h.backends[id].apply(s, KindNone, time.Time{})
			h.held[id] = KindNone
		}
		h.level = KindShared
		logger.Debug("mailbox lock demoted to shared",
			logger.KeyPath, h.file.Path(), logger.KeyEpoch, h.epoch)
		return nil
	}

	list := h.table.listFor(kind, h.level)
	out, err := s.lockList(kind, deadline, list)
	if err != nil {
		s.unwind(list)
		return err
	}
	if out != outcomeOK {
		s.unwind(list)
		return storeerrors.NewLockTimeoutError(h.file.Path())
	}
	h.level = kind
	return nil
}

// unlockFiles releases every held backend and drops derived state tied to
// the locked span (the mapped view of the file, hold-time metrics).
func (h *Handle) unlockFiles() error {
	s := newSession(h)
	list := h.table.listFor(KindNone, h.level)

	out, err := s.lockList(KindNone, time.Time{}, list)

	h.file.CloseView()
	if !h.lockedAt.IsZero() {
		h.metrics.observeHold(time.Since(h.lockedAt))
		h.lockedAt = time.Time{}
	}
	h.metrics.activeDec()
	h.level = KindNone
	logger.Debug("mailbox unlocked",
		logger.KeyPath, h.file.Path(), logger.KeyEpoch, h.epoch)

	if err != nil {
		return err
	}
	if out != outcomeOK {
		return storeerrors.NewLockTimeoutError(h.file.Path())
	}
	return nil
}

// Touch refreshes the dotlock artifact's timestamp so long-running
// operations under an exclusive lock are not mistaken for a dead holder by
// other processes. A no-op when no dotlock is held.
func (h *Handle) Touch() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.held[BackendDotlock] == KindNone {
		return nil
	}
	dl, ok := h.backends[BackendDotlock].(*dotlockBackend)
	if !ok || !dl.owned {
		return nil
	}
	return dl.touch()
}

// Level returns the current composite lock level.
func (h *Handle) Level() Kind {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.level
}

// Epoch returns the current locking epoch. It advances by two when the
// handle transitions from unlocked to locked and again when it returns to
// unlocked.
func (h *Handle) Epoch() uint32 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.epoch
}

// Refs returns the outstanding shared and exclusive reference counts.
func (h *Handle) Refs() (shared, exclusive int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sharedRefs, h.exclRefs
}

func containsBackend(list []BackendID, id BackendID) bool {
	for _, v := range list {
		if v == id {
			return true
		}
	}
	return false
}
