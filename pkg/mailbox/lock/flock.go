package lock

import (
	"errors"
	"time"

	"golang.org/x/sys/unix"

	storeerrors "github.com/rarestuff/mboxd/pkg/mailbox/errors"
)

// flockBackend implements whole-file advisory locking via flock(2).
// Coarser than fcntl (no byte ranges), but it distinguishes shared from
// exclusive and is what some cooperating mail software uses.
type flockBackend struct{}

func (flockBackend) id() BackendID { return BackendFlock }

func (b flockBackend) apply(s *session, kind Kind, deadline time.Time) (outcome, error) {
	if err := s.ensureFile(kind); err != nil {
		return outcomeFailed, err
	}
	if kind == KindNone && !s.mbox.IsOpen() {
		return outcomeOK, nil
	}

	var how int
	switch kind {
	case KindShared:
		how = unix.LOCK_SH
	case KindExclusive:
		how = unix.LOCK_EX
	default:
		how = unix.LOCK_UN
	}

	fd := int(s.mbox.File().Fd())
	var lastNotify int64
	for {
		err := unix.Flock(fd, how|unix.LOCK_NB)
		if err == nil {
			return outcomeOK, nil
		}
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if !errors.Is(err, unix.EWOULDBLOCK) {
			return outcomeFailed, storeerrors.NewSyscallError(s.mbox.Path(), "flock()", err)
		}

		if deadline.IsZero() {
			return outcomeTimeout, nil
		}
		now := time.Now()
		if !now.Before(deadline) {
			return outcomeTimeout, nil
		}

		if now.Unix() != lastNotify {
			lastNotify = now.Unix()
			if !s.notifyWait(NotifyAbort, secsLeft(now, deadline)) {
				return outcomeTimeout, nil
			}
		}

		lockRandomSleep()
	}
}
