package lock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	storeerrors "github.com/rarestuff/mboxd/pkg/mailbox/errors"
)

func TestNewMethodTableDefaults(t *testing.T) {
	t.Parallel()

	table, err := NewMethodTable(MethodTableConfig{})
	require.NoError(t, err)

	assert.Equal(t, []BackendID{BackendFcntl}, table.ReadOrder())
	assert.Equal(t, []BackendID{BackendDotlock, BackendFcntl}, table.WriteOrder())
	assert.Equal(t, DefaultLockTimeout, table.LockTimeout())
	assert.Equal(t, DefaultStaleTimeout, table.StaleTimeout())
}

func TestNewMethodTableParsesNames(t *testing.T) {
	t.Parallel()

	table, err := NewMethodTable(MethodTableConfig{
		ReadMethods:  "fcntl flock",
		WriteMethods: "dotlock fcntl flock lockf",
		LockTimeout:  30 * time.Second,
		StaleTimeout: 10 * time.Second,
	})
	require.NoError(t, err)

	assert.Equal(t, []BackendID{BackendFcntl, BackendFlock}, table.ReadOrder())
	assert.Equal(t,
		[]BackendID{BackendDotlock, BackendFcntl, BackendFlock, BackendLockf},
		table.WriteOrder())
	assert.Equal(t, 30*time.Second, table.LockTimeout())
	assert.Equal(t, 10*time.Second, table.StaleTimeout())
}

func TestNewMethodTableRejectsUnknownName(t *testing.T) {
	t.Parallel()

	_, err := NewMethodTable(MethodTableConfig{ReadMethods: "fcntl liblock"})
	require.Error(t, err)
	assert.Equal(t, storeerrors.ErrConfiguration, storeerrors.CodeOf(err))
	assert.Contains(t, err.Error(), "liblock")
}

func TestNewMethodTableRejectsDuplicates(t *testing.T) {
	t.Parallel()

	_, err := NewMethodTable(MethodTableConfig{WriteMethods: "dotlock dotlock"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicated")
}

func TestNewMethodTableRejectsEmptyList(t *testing.T) {
	t.Parallel()

	_, err := NewMethodTable(MethodTableConfig{ReadMethods: " \t "})
	require.Error(t, err)
	assert.Equal(t, storeerrors.ErrConfiguration, storeerrors.CodeOf(err))
}

func TestNewMethodTableOrderingRules(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		read  string
		write string
		ok    bool
	}{
		{"identical lists", "fcntl", "fcntl", true},
		{"write superset preserving order", "fcntl", "dotlock fcntl", true},
		{"write interleaves extras", "fcntl lockf", "dotlock fcntl flock lockf", true},
		{"read method missing from write", "flock", "dotlock fcntl", false},
		{"order reversed", "dotlock fcntl", "fcntl dotlock", false},
		{"partial overlap only", "fcntl flock", "dotlock flock", false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := NewMethodTable(MethodTableConfig{
				ReadMethods:  tt.read,
				WriteMethods: tt.write,
			})
			if tt.ok {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Equal(t, storeerrors.ErrConfiguration, storeerrors.CodeOf(err))
			}
		})
	}
}

func TestListForSelection(t *testing.T) {
	t.Parallel()

	table, err := NewMethodTable(MethodTableConfig{
		ReadMethods:  "fcntl",
		WriteMethods: "dotlock fcntl",
	})
	require.NoError(t, err)

	assert.Equal(t, table.read, table.listFor(KindShared, KindNone))
	assert.Equal(t, table.write, table.listFor(KindExclusive, KindNone))

	// Releasing from exclusive must walk the write list; from shared the
	// read list suffices.
	assert.Equal(t, table.write, table.listFor(KindNone, KindExclusive))
	assert.Equal(t, table.read, table.listFor(KindNone, KindShared))
}

func TestParseBackendID(t *testing.T) {
	t.Parallel()

	for _, name := range []string{"dotlock", "fcntl", "flock", "lockf"} {
		id, ok := parseBackendID(name)
		require.True(t, ok, name)
		assert.Equal(t, name, id.String())
	}

	_, ok := parseBackendID("")
	assert.False(t, ok)
}
