package lock

import (
	"time"

	"github.com/rarestuff/mboxd/internal/logger"
	"github.com/rarestuff/mboxd/pkg/mailbox"
)

// staleState tracks what a session knows about the dotlock artifact's
// holder. A failed liveness probe is remembered so the wait does not
// hammer the other backends once per slice; any activity on the artifact
// resets the state and a later staleness detection probes again.
type staleState int

const (
	staleUnknown staleState = iota
	staleFresh
	staleStale
)

// staleDecision is the session's verdict on a stale-looking artifact.
type staleDecision int

const (
	staleDecisionKeepWaiting staleDecision = iota
	staleDecisionOverride
	staleDecisionAbort
)

// session carries the per-operation state of one locking walk: which list
// is being traversed, how far it got, and what the dotlock staleness
// machinery has learned. Held-backend state lives on the handle because it
// outlives any single walk.
type session struct {
	h    *Handle
	mbox *mailbox.File

	kind Kind
	list []BackendID
	idx  int

	checkedFile bool
	lastStale   staleState
}

func newSession(h *Handle) *session {
	return &session{h: h, mbox: h.file}
}

// ensureFile makes sure the mailbox fd the fd-based backends lock refers to
// the file currently at the path. Checked once per walk; the dotlock
// backend re-checks after its wait because the mailbox may have been
// replaced meanwhile.
func (s *session) ensureFile(kind Kind) error {
	if kind == KindNone || s.checkedFile {
		return nil
	}
	if err := s.mbox.EnsureOpen(); err != nil {
		return err
	}
	s.checkedFile = true
	return nil
}

// notifyWait forwards a progress report to the handle's notify callback.
// Returns false when the callback asks the wait to stop.
func (s *session) notifyWait(kind NotifyKind, secs uint) bool {
	if s.h.notify == nil {
		return true
	}
	return s.h.notify(kind, secs)
}

func (s *session) staleTimeout() time.Duration {
	return s.h.table.StaleTimeout()
}

func (s *session) metrics() *Metrics {
	return s.h.metrics
}

// lockList walks list in order, applying kind through each backend whose
// held state differs from it. Backends already at the wanted level are
// skipped, which makes the walk idempotent and lets the caller re-run it to
// unwind or demote. The walk stops at the first backend that fails or times
// out; the caller decides whether to unwind.
func (s *session) lockList(kind Kind, deadline time.Time, list []BackendID) (outcome, error) {
	s.kind = kind
	s.list = list

	for i, id := range list {
		if s.h.held[id] == kind {
			continue
		}
		s.idx = i
		out, err := s.h.backends[id].apply(s, kind, deadline)
		if out != outcomeOK || err != nil {
			logger.Debug("lock backend not acquired",
				logger.KeyPath, s.mbox.Path(),
				logger.KeyBackend, id.String(),
				logger.KeyKind, kind.String())
			return out, err
		}
		s.h.held[id] = kind
	}
	return outcomeOK, nil
}

// unwind releases every held backend in list. Used after a partial
// acquisition.
func (s *session) unwind(list []BackendID) {
	for _, id := range list {
		if s.h.held[id] == KindNone {
			continue
		}
		s.h.backends[id].apply(s, KindNone, time.Time{})
		s.h.held[id] = KindNone
	}
}

// dotlockStaleCheck decides what to do about an artifact that has not
// changed for the stale timeout. The artifact alone proves nothing about
// its creator being alive, so the other configured backends are probed
// non-blockingly: if any of them is held by someone, the holder is alive
// and the artifact is merely old. A failed probe is remembered in
// lastStale and not repeated until the artifact shows activity again.
func (s *session) dotlockStaleCheck(secsLeft uint) staleDecision {
	if s.lastStale == staleStale {
		if !s.notifyWait(NotifyAbort, secsLeft) {
			return staleDecisionAbort
		}
		return staleDecisionKeepWaiting
	}

	if s.probeOtherBackends() {
		if !s.notifyWait(NotifyOverride, secsLeft) {
			return staleDecisionAbort
		}
		return staleDecisionOverride
	}

	s.lastStale = staleStale
	s.metrics().staleOverride("holder_alive")
	if !s.notifyWait(NotifyAbort, secsLeft) {
		return staleDecisionAbort
	}
	return staleDecisionKeepWaiting
}

// probeOtherBackends non-blockingly tries the backends that come after the
// current one in the active list. Success (all acquired) means no live
// process holds the mailbox. The probe is side-effect free: everything it
// acquires is released and the held state is restored exactly, so backends
// that were already held before the probe are neither re-acquired nor
// dropped by it.
func (s *session) probeOtherBackends() bool {
	rest := s.list[s.idx+1:]
	if len(rest) == 0 {
		return true
	}
	rest = append([]BackendID(nil), rest...)

	snap := s.h.held
	savedKind, savedList, savedIdx := s.kind, s.list, s.idx

	out, err := s.lockList(savedKind, time.Time{}, rest)
	alive := out != outcomeOK || err != nil

	for _, id := range rest {
		if s.h.held[id] != KindNone && snap[id] == KindNone {
			s.h.backends[id].apply(s, KindNone, time.Time{})
		}
	}
	s.h.held = snap
	s.kind, s.list, s.idx = savedKind, savedList, savedIdx

	return !alive
}
