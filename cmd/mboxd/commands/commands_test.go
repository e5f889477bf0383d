package commands

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveMailboxPath(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "/var/mail/alice", resolveMailboxPath("/var/mail", "alice"))
	assert.Equal(t, "/tmp/mbox", resolveMailboxPath("/var/mail", "/tmp/mbox"))
	assert.Equal(t, "spool/mbox", resolveMailboxPath("/var/mail", "spool/mbox"))
}

func TestRootCommandWiring(t *testing.T) {
	t.Parallel()

	root := GetRootCmd()
	require.NotNil(t, root)

	names := make(map[string]bool)
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["hold"])
	assert.True(t, names["status"])
	assert.True(t, names["init"])
	assert.True(t, names["version"])

	flag := root.PersistentFlags().Lookup("config")
	require.NotNil(t, flag)
}

func TestHoldNotifyAlwaysContinues(t *testing.T) {
	t.Parallel()

	// The CLI reports progress but never aborts a wait on its own.
	assert.True(t, holdNotify(0, 30))
}
