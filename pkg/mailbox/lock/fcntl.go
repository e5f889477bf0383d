package lock

import (
	"errors"
	"io"
	"time"

	"golang.org/x/sys/unix"

	storeerrors "github.com/rarestuff/mboxd/pkg/mailbox/errors"
)

// fcntlWaitSlice bounds how long the fcntl backend sleeps between lock
// attempts while waiting, so wait notifications stay timely.
const fcntlWaitSlice = time.Second

// fcntlBackend implements byte-range record locking over the whole mailbox
// (offset 0, length 0) via fcntl. This is the default read-lock method and
// the only backend with native shared/exclusive byte-range semantics.
//
// Traditional mbox lockers block in F_SETLKW with a signal-based interval
// timer for notifications; here the wait is a cooperative loop of
// non-blocking F_SETLK attempts with bounded sleeps, which is safe to
// combine with the notify callback and with other in-process retry logic.
type fcntlBackend struct{}

func (fcntlBackend) id() BackendID { return BackendFcntl }

func (b fcntlBackend) apply(s *session, kind Kind, deadline time.Time) (outcome, error) {
	if err := s.ensureFile(kind); err != nil {
		return outcomeFailed, err
	}
	if kind == KindNone && !s.mbox.IsOpen() {
		return outcomeOK, nil
	}

	var lockType int16
	switch kind {
	case KindShared:
		lockType = unix.F_RDLCK
	case KindExclusive:
		lockType = unix.F_WRLCK
	default:
		lockType = unix.F_UNLCK
	}

	var lastNotify int64
	for {
		err := fcntlFlock(s.mbox.File().Fd(), lockType)
		if err == nil {
			return outcomeOK, nil
		}
		// Some systems report contention as EACCES instead of EAGAIN.
		if !errors.Is(err, unix.EAGAIN) && !errors.Is(err, unix.EACCES) {
			return outcomeFailed, storeerrors.NewSyscallError(s.mbox.Path(), "fcntl()", err)
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

		slice := fcntlWaitSlice
		if remaining := deadline.Sub(now); remaining < slice {
			slice = remaining
		}
		time.Sleep(slice)
	}
}

// fcntlFlock issues one non-blocking F_SETLK over the entire file,
// retrying on EINTR.
func fcntlFlock(fd uintptr, lockType int16) error {
	flk := unix.Flock_t{
		Type:   lockType,
		Whence: io.SeekStart,
		Start:  0,
		Len:    0, // all bytes
	}
	for {
		err := unix.FcntlFlock(fd, unix.F_SETLK, &flk)
		if !errors.Is(err, unix.EINTR) {
			return err
		}
	}
}
