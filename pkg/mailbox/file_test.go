package mailbox

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	storeerrors "github.com/rarestuff/mboxd/pkg/mailbox/errors"
)

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

func TestEnsureOpenOpensLazily(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "mbox")
	require.NoError(t, os.WriteFile(path, []byte("From a\n"), 0600))

	m := New(path)
	assert.False(t, m.IsOpen())
	assert.Equal(t, path, m.Path())

	require.NoError(t, m.EnsureOpen())
	assert.True(t, m.IsOpen())
	require.NotNil(t, m.File())

	require.NoError(t, m.Close())
	assert.False(t, m.IsOpen())
}

func TestEnsureOpenReopensReplacedFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "mbox")
	require.NoError(t, os.WriteFile(path, []byte("old\n"), 0600))

	m := New(path)
	require.NoError(t, m.EnsureOpen())
	defer m.Close()

	firstFd := m.File().Fd()

	// Replace the mailbox the way an mbox rewrite does: write a new file
	// and rename it over the old one.
	replacement := filepath.Join(dir, "mbox.new")
	require.NoError(t, os.WriteFile(replacement, []byte("new\n"), 0600))
	require.NoError(t, os.Rename(replacement, path))

	require.NoError(t, m.EnsureOpen())
	assert.True(t, m.IsOpen())

	buf := make([]byte, 4)
	n, err := m.File().ReadAt(buf, 0)
	require.NoError(t, err)
	assert.Equal(t, "new\n", string(buf[:n]), "descriptor must refer to the replacement")
	_ = firstFd
}

func TestEnsureOpenSameFileKeepsDescriptor(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "mbox")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0600))

	m := New(path)
	require.NoError(t, m.EnsureOpen())
	defer m.Close()

	f := m.File()
	require.NoError(t, m.EnsureOpen())
	assert.Same(t, f, m.File())
}

func TestEnsureOpenMissingFile(t *testing.T) {
	t.Parallel()

	m := New(filepath.Join(t.TempDir(), "absent"))
	err := m.EnsureOpen()
	require.Error(t, err)
	assert.Equal(t, storeerrors.ErrNotFound, storeerrors.CodeOf(err))
}

func TestViewClosedOnReplaceAndClose(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "mbox")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0600))

	m := New(path)
	require.NoError(t, m.EnsureOpen())

	closed := 0
	m.SetView(closerFunc(func() error { closed++; return nil }))

	// Registering a new view closes the previous one.
	m.SetView(closerFunc(func() error { closed++; return nil }))
	assert.Equal(t, 1, closed)

	m.CloseView()
	assert.Equal(t, 2, closed)

	// CloseView is idempotent.
	m.CloseView()
	assert.Equal(t, 2, closed)

	m.SetView(closerFunc(func() error { closed++; return nil }))
	require.NoError(t, m.Close())
	assert.Equal(t, 3, closed, "closing the mailbox must drop the view")
}
