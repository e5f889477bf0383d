// Package mailbox manages the file handle of a single mbox mailbox.
//
// A mailbox file may be replaced on disk at any time by another cooperating
// program (for example during an mbox rewrite), so the handle must be
// re-validated before lock acquisition: the device and inode of the path are
// compared against the currently open descriptor, and the file is reopened
// on mismatch.
package mailbox

import (
	"io"
	"os"
	"syscall"

	storeerrors "github.com/rarestuff/mboxd/pkg/mailbox/errors"
)

// File is the handle of one mbox mailbox file.
//
// File performs no internal synchronization; like the lock handle built on
// top of it, it assumes one thread of control per open mailbox.
type File struct {
	path string
	f    *os.File
	dev  uint64
	ino  uint64

	// view is an optional memory-mapped view of the mailbox contents.
	// It must be dropped before lock transitions so no caller keeps a
	// mapping across a lock boundary.
	view io.Closer
}

// New creates a handle for the mailbox at path. The file is not opened
// until EnsureOpen is called.
func New(path string) *File {
	return &File{path: path}
}

// Path returns the mailbox file path.
func (m *File) Path() string {
	return m.path
}

// IsOpen reports whether the underlying descriptor is currently open.
func (m *File) IsOpen() bool {
	return m.f != nil
}

// File returns the open descriptor, or nil if the mailbox is not open.
func (m *File) File() *os.File {
	return m.f
}

// EnsureOpen makes sure the handle refers to the file currently at the
// mailbox path. If the file was replaced (device or inode changed since the
// descriptor was opened), the stale descriptor is closed and the path is
// reopened.
func (m *File) EnsureOpen() error {
	if m.f != nil {
		st, err := os.Stat(m.path)
		if err != nil {
			if os.IsNotExist(err) {
				return storeerrors.NewNotFoundError(m.path)
			}
			return storeerrors.NewSyscallError(m.path, "stat()", err)
		}

		sys, ok := st.Sys().(*syscall.Stat_t)
		if !ok {
			return storeerrors.NewInvalidArgumentError("unsupported stat result")
		}
		if uint64(sys.Dev) != m.dev || uint64(sys.Ino) != m.ino {
			// File was replaced under us.
			m.closeFile()
		}
	}

	if m.f == nil {
		return m.open()
	}
	return nil
}

// open opens the mailbox file and records its identity.
func (m *File) open() error {
	f, err := os.OpenFile(m.path, os.O_RDWR, 0)
	if err != nil {
		if os.IsNotExist(err) {
			return storeerrors.NewNotFoundError(m.path)
		}
		return storeerrors.NewSyscallError(m.path, "open()", err)
	}

	st, err := f.Stat()
	if err != nil {
		f.Close()
		return storeerrors.NewSyscallError(m.path, "fstat()", err)
	}
	sys, ok := st.Sys().(*syscall.Stat_t)
	if !ok {
		f.Close()
		return storeerrors.NewInvalidArgumentError("unsupported stat result")
	}

	m.f = f
	m.dev = uint64(sys.Dev)
	m.ino = uint64(sys.Ino)
	return nil
}

// SetView registers a memory-mapped view of the mailbox. Any previously
// registered view is closed first.
func (m *File) SetView(view io.Closer) {
	m.CloseView()
	m.view = view
}

// CloseView drops the registered mapped view, if any. Called before lock
// transitions so callers never hold a mapping across a lock boundary.
func (m *File) CloseView() {
	if m.view != nil {
		m.view.Close()
		m.view = nil
	}
}

// closeFile closes the descriptor and any mapped view.
func (m *File) closeFile() {
	m.CloseView()
	if m.f != nil {
		m.f.Close()
		m.f = nil
	}
}

// Close closes the mailbox handle.
func (m *File) Close() error {
	m.closeFile()
	return nil
}
