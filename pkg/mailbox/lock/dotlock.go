package lock

import (
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/rarestuff/mboxd/internal/logger"
	storeerrors "github.com/rarestuff/mboxd/pkg/mailbox/errors"
)

// dotlockWaitSlice bounds how long the dotlock backend sleeps between
// attempts when no filesystem event wakes it earlier.
const dotlockWaitSlice = time.Second

// dotlockBackend implements the external lock-file convention: the
// existence of <mailbox>.lock signals exclusivity to every cooperating
// process, including ones on other hosts sharing the spool over NFS. The
// artifact layout (a file containing "pid hostname") is a pre-existing
// contract, not something this package defines.
//
// Unlike the fd-based backends, dotlock ownership survives the session that
// acquired it, so the backend lives on the handle and carries state.
//
// Staleness: the artifact is considered stale once neither it nor the
// mailbox has changed for the configured stale timeout. A stale artifact is
// never overridden silently - the session first probes the other configured
// backends non-blockingly, and a live holder of any real lock vetoes the
// override (the artifact may merely look old due to clock skew or a slow
// holder).
type dotlockBackend struct {
	mboxPath string
	lockPath string

	// owned is true while this process holds the artifact.
	owned bool
	// ino and contents identify the artifact we created, so release never
	// removes an artifact that another process placed after overriding
	// ours. The inode alone is not enough: unlink and recreate in the same
	// directory commonly reuses the freed inode, so the "pid hostname"
	// contents are verified as well.
	ino      uint64
	contents string
}

func newDotlockBackend(mboxPath string) *dotlockBackend {
	return &dotlockBackend{
		mboxPath: mboxPath,
		lockPath: mboxPath + ".lock",
	}
}

func (b *dotlockBackend) id() BackendID { return BackendDotlock }

func (b *dotlockBackend) apply(s *session, kind Kind, deadline time.Time) (outcome, error) {
	if kind == KindNone {
		return b.release()
	}
	if b.owned {
		return outcomeOK, nil
	}

	s.lastStale = staleUnknown

	out, err := b.acquire(s, deadline)
	if out != outcomeOK {
		return out, err
	}

	// The mailbox may have been replaced while we waited for the artifact.
	if err := s.ensureFile(kind); err != nil {
		return outcomeFailed, err
	}
	return outcomeOK, nil
}

// release removes the artifact if this process created it. Releasing a
// dotlock that is not held is a no-op success. A removal failure is logged
// but does not fail the release walk: the remaining backends must still be
// released.
func (b *dotlockBackend) release() (outcome, error) {
	if !b.owned {
		return outcomeOK, nil
	}
	b.owned = false

	st, err := os.Stat(b.lockPath)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warn("dotlock release: stat failed",
				logger.KeyPath, b.mboxPath, logger.KeyError, err)
		}
		return outcomeOK, nil
	}
	if sys, ok := st.Sys().(*syscall.Stat_t); ok && uint64(sys.Ino) != b.ino {
		// Someone overrode our artifact; it is theirs now.
		logger.Warn("dotlock release: artifact was overridden by another process",
			logger.KeyPath, b.mboxPath)
		return outcomeOK, nil
	}
	data, err := os.ReadFile(b.lockPath)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warn("dotlock release: read failed, leaving artifact in place",
				logger.KeyPath, b.mboxPath, logger.KeyError, err)
		}
		return outcomeOK, nil
	}
	if string(data) != b.contents {
		// The inode matched but the contents are someone else's: the
		// overrider's artifact landed on our recycled inode.
		logger.Warn("dotlock release: artifact was overridden by another process",
			logger.KeyPath, b.mboxPath)
		return outcomeOK, nil
	}
	if err := os.Remove(b.lockPath); err != nil && !os.IsNotExist(err) {
		logger.Warn("dotlock release: unlink failed",
			logger.KeyPath, b.mboxPath, logger.KeyError, err)
	}
	return outcomeOK, nil
}

// acquire creates the artifact, waiting for a contended one to go away and
// running the stale-override protocol when it stops changing.
func (b *dotlockBackend) acquire(s *session, deadline time.Time) (outcome, error) {
	// A watcher on the spool directory wakes the wait as soon as the
	// artifact is removed; polling remains as fallback when the watcher
	// cannot be set up (e.g. on NFS mounts without event support).
	var watcher *fsnotify.Watcher
	if w, err := fsnotify.NewWatcher(); err == nil {
		if err := w.Add(filepath.Dir(b.lockPath)); err == nil {
			watcher = w
			defer w.Close()
		} else {
			w.Close()
		}
	}

	lastChange := time.Now()
	var prev artifactState
	havePrev := false

	for {
		err := b.tryCreate()
		if err == nil {
			return outcomeOK, nil
		}
		if !os.IsExist(err) {
			return outcomeFailed, storeerrors.NewSyscallError(b.mboxPath, "open(O_EXCL)", err)
		}

		now := time.Now()

		cur, statErr := b.statArtifact()
		switch {
		case os.IsNotExist(statErr):
			// Artifact vanished between attempts; retry immediately.
			continue
		case statErr != nil:
			return outcomeFailed, storeerrors.NewSyscallError(b.mboxPath, "stat()", statErr)
		}
		if !havePrev || cur != prev || b.mailboxChangedSince(lastChange) {
			lastChange = now
			havePrev = true
			prev = cur
			if s.lastStale == staleStale {
				// Holder showed activity; a future stale detection must
				// re-run the probe.
				s.lastStale = staleFresh
			}
		}

		if deadline.IsZero() {
			return outcomeTimeout, nil
		}
		if !now.Before(deadline) {
			return outcomeTimeout, nil
		}

		left := secsLeft(now, deadline)
		if now.Sub(lastChange) >= s.staleTimeout() {
			switch s.dotlockStaleCheck(left) {
			case staleDecisionOverride:
				logger.Warn("overriding stale dotlock",
					logger.KeyPath, b.mboxPath,
					"idle", now.Sub(lastChange).Round(time.Second))
				s.metrics().staleOverride("overridden")
				if err := os.Remove(b.lockPath); err != nil && !os.IsNotExist(err) {
					return outcomeFailed, storeerrors.NewSyscallError(b.mboxPath, "unlink()", err)
				}
				continue
			case staleDecisionAbort:
				return outcomeTimeout, nil
			default:
				// Confirmed live; keep waiting.
			}
		} else {
			if !s.notifyWait(NotifyAbort, left) {
				return outcomeTimeout, nil
			}
		}

		logger.Debug("waiting for dotlock",
			logger.KeyPath, b.mboxPath, logger.KeySecs, left)
		b.waitSlice(watcher, deadline)
	}
}

// tryCreate atomically creates the artifact, writing the conventional
// "pid hostname" contents and recording its inode for release.
func (b *dotlockBackend) tryCreate() error {
	f, err := os.OpenFile(b.lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}

	host, _ := os.Hostname()
	b.contents = fmt.Sprintf("%d %s\n", os.Getpid(), host)
	fmt.Fprintf(f, "%s", b.contents)

	st, err := f.Stat()
	if err != nil {
		f.Close()
		os.Remove(b.lockPath)
		return err
	}
	if sys, ok := st.Sys().(*syscall.Stat_t); ok {
		b.ino = uint64(sys.Ino)
	}
	if err := f.Close(); err != nil {
		os.Remove(b.lockPath)
		return err
	}

	b.owned = true
	logger.Debug("dotlock created",
		logger.KeyPath, b.mboxPath,
		logger.KeyPID, os.Getpid(),
		logger.KeyHost, host)
	return nil
}

// touch refreshes the artifact's timestamps so other processes watching
// for staleness see the holder as alive.
func (b *dotlockBackend) touch() error {
	now := time.Now()
	if err := os.Chtimes(b.lockPath, now, now); err != nil {
		return storeerrors.NewSyscallError(b.mboxPath, "utimes()", err)
	}
	return nil
}

// artifactState captures the attributes whose change resets the staleness
// clock.
type artifactState struct {
	ino   uint64
	size  int64
	mtime int64
}

func (b *dotlockBackend) statArtifact() (artifactState, error) {
	st, err := os.Stat(b.lockPath)
	if err != nil {
		return artifactState{}, err
	}
	state := artifactState{
		size:  st.Size(),
		mtime: st.ModTime().UnixNano(),
	}
	if sys, ok := st.Sys().(*syscall.Stat_t); ok {
		state.ino = uint64(sys.Ino)
	}
	return state, nil
}

// mailboxChangedSince reports whether the mailbox itself was modified after
// t. Holder activity on the mailbox keeps its artifact from looking stale.
func (b *dotlockBackend) mailboxChangedSince(t time.Time) bool {
	st, err := os.Stat(b.mboxPath)
	if err != nil {
		return false
	}
	return st.ModTime().After(t)
}

// waitSlice sleeps for one retry slice, waking early when the watcher sees
// the artifact disappear.
func (b *dotlockBackend) waitSlice(watcher *fsnotify.Watcher, deadline time.Time) {
	slice := dotlockWaitSlice
	if remaining := time.Until(deadline); remaining < slice {
		slice = remaining
	}
	if slice <= 0 {
		return
	}

	if watcher == nil {
		time.Sleep(slice)
		return
	}

	timer := time.NewTimer(slice)
	defer timer.Stop()
	for {
		select {
		case ev, ok := <-watcher.Events:
			if !ok {
				time.Sleep(slice)
				return
			}
			if ev.Name == b.lockPath && ev.Op.Has(fsnotify.Remove|fsnotify.Rename) {
				return
			}
		case <-watcher.Errors:
			// Watcher trouble is non-fatal; polling still bounds the wait.
		case <-timer.C:
			return
		}
	}
}
