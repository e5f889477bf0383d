package lock

import (
	"slices"
	"strings"
	"time"

	storeerrors "github.com/rarestuff/mboxd/pkg/mailbox/errors"
)

// Default lock methods and timeouts. These match the conventional mbox
// locking defaults so mboxd interoperates with other mail software out of
// the box; deployments override them through configuration.
const (
	DefaultReadMethods  = "fcntl"
	DefaultWriteMethods = "dotlock fcntl"
	DefaultLockTimeout  = 10 * time.Minute
	DefaultStaleTimeout = 5 * time.Minute
)

// MethodTable is the process-wide lock method configuration: the ordered
// backend lists used for read (shared) and write (exclusive) acquisition,
// plus the timeouts.
//
// A MethodTable is immutable after construction. Build it once at startup
// with NewMethodTable and pass it by reference into every handle; all
// validation errors are configuration errors surfaced at construction time,
// never at lock time.
//
// The ordering of the lists is itself the cross-process deadlock-avoidance
// mechanism: every cooperating process must attempt backends in the same
// relative order. For that reason the read list must be an ordered
// subsequence of the write list (write may interleave extra backends
// anywhere, but cannot reorder the read subsequence).
type MethodTable struct {
	read  []BackendID
	write []BackendID

	lockTimeout  time.Duration
	staleTimeout time.Duration
}

// MethodTableConfig carries the raw configuration strings for NewMethodTable.
// Zero values select the defaults.
type MethodTableConfig struct {
	// ReadMethods is the whitespace-separated backend list for shared
	// acquisition, e.g. "fcntl".
	ReadMethods string

	// WriteMethods is the whitespace-separated backend list for exclusive
	// acquisition, e.g. "dotlock fcntl".
	WriteMethods string

	// LockTimeout bounds how long a blocking lock request may wait.
	LockTimeout time.Duration

	// StaleTimeout is how long a dotlock artifact and the mailbox must both
	// stay unchanged before the artifact is considered stale.
	StaleTimeout time.Duration
}

// NewMethodTable parses and validates the lock method configuration.
//
// Errors (all ErrConfiguration, fatal at startup):
//   - unknown backend name
//   - backend not supported on this platform
//   - duplicated backend within one list
//   - read list is not an ordered subsequence of the write list
func NewMethodTable(cfg MethodTableConfig) (*MethodTable, error) {
	readSpec := cfg.ReadMethods
	if readSpec == "" {
		readSpec = DefaultReadMethods
	}
	writeSpec := cfg.WriteMethods
	if writeSpec == "" {
		writeSpec = DefaultWriteMethods
	}

	read, err := parseMethods("read_methods", readSpec)
	if err != nil {
		return nil, err
	}
	write, err := parseMethods("write_methods", writeSpec)
	if err != nil {
		return nil, err
	}

	// The write list must contain at least the read list, in the same
	// relative order (and possibly more).
	r := 0
	for w := 0; w < len(write) && r < len(read); w++ {
		if read[r] == write[w] {
			r++
		}
	}
	if r < len(read) {
		return nil, storeerrors.NewConfigurationError(
			"read/write lock method lists are invalid: lock ordering must be " +
				"the same with both, and write_methods must contain all " +
				"read_methods (and possibly more)")
	}

	t := &MethodTable{
		read:         read,
		write:        write,
		lockTimeout:  cfg.LockTimeout,
		staleTimeout: cfg.StaleTimeout,
	}
	if t.lockTimeout <= 0 {
		t.lockTimeout = DefaultLockTimeout
	}
	if t.staleTimeout <= 0 {
		t.staleTimeout = DefaultStaleTimeout
	}
	return t, nil
}

// parseMethods parses one whitespace-separated backend name list.
func parseMethods(setting, spec string) ([]BackendID, error) {
	var ids []BackendID
	for _, name := range strings.Fields(spec) {
		id, ok := parseBackendID(strings.ToLower(name))
		if !ok {
			return nil, storeerrors.NewConfigurationError(
				"%s: invalid value %q", setting, name)
		}
		if !backendSupported(id) {
			return nil, storeerrors.NewConfigurationError(
				"%s: lock method %q is not supported on this platform",
				setting, name)
		}
		if slices.Contains(ids, id) {
			return nil, storeerrors.NewConfigurationError(
				"%s: duplicated value %q", setting, name)
		}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil, storeerrors.NewConfigurationError(
			"%s: no lock methods configured", setting)
	}
	return ids, nil
}

// ReadOrder returns a copy of the ordered backend list for shared
// acquisition.
func (t *MethodTable) ReadOrder() []BackendID {
	return slices.Clone(t.read)
}

// WriteOrder returns a copy of the ordered backend list for exclusive
// acquisition.
func (t *MethodTable) WriteOrder() []BackendID {
	return slices.Clone(t.write)
}

// LockTimeout returns the configured maximum lock wait.
func (t *MethodTable) LockTimeout() time.Duration {
	return t.lockTimeout
}

// StaleTimeout returns the configured dotlock staleness threshold.
func (t *MethodTable) StaleTimeout() time.Duration {
	return t.staleTimeout
}

// listFor selects the backend list for a request. The write list is used
// when acquiring exclusive, and when fully releasing from an exclusive
// state (everything acquired under the write list must be walked to release
// it); otherwise the read list.
func (t *MethodTable) listFor(kind Kind, lastLevel Kind) []BackendID {
	if kind == KindExclusive || (kind == KindNone && lastLevel == KindExclusive) {
		return t.write
	}
	return t.read
}
