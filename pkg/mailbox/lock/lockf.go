package lock

import (
	"errors"
	"time"

	"golang.org/x/sys/unix"

	storeerrors "github.com/rarestuff/mboxd/pkg/mailbox/errors"
)

// lockfBackend implements lockf-style locking: an exclusive-only byte lock
// over the whole file. There is no shared variant, so a shared request is a
// structural no-op; by configuration-time convention lockf never appears in
// read lists.
//
// lockf(3) is specified as a front end to fcntl record locking, so the lock
// is taken with F_WRLCK and interoperates with lockf users on the same
// file.
type lockfBackend struct{}

func (lockfBackend) id() BackendID { return BackendLockf }

func (b lockfBackend) apply(s *session, kind Kind, deadline time.Time) (outcome, error) {
	if kind == KindShared {
		return outcomeOK, nil
	}

	if err := s.ensureFile(kind); err != nil {
		return outcomeFailed, err
	}
	if kind == KindNone && !s.mbox.IsOpen() {
		return outcomeOK, nil
	}

	lockType := int16(unix.F_WRLCK)
	if kind == KindNone {
		lockType = unix.F_UNLCK
	}

	var lastNotify int64
	for {
		err := fcntlFlock(s.mbox.File().Fd(), lockType)
		if err == nil {
			return outcomeOK, nil
		}
		if !errors.Is(err, unix.EAGAIN) && !errors.Is(err, unix.EACCES) {
			return outcomeFailed, storeerrors.NewSyscallError(s.mbox.Path(), "lockf()", err)
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
