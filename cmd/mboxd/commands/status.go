package commands

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/rarestuff/mboxd/pkg/mailbox"
	"github.com/rarestuff/mboxd/pkg/mailbox/lock"
)

var statusCmd = &cobra.Command{
	Use:   "status MAILBOX",
	Short: "Show the lock status of a mailbox",
	Long: `Show the lock status of a mailbox: whether a dotlock artifact exists and
who created it, and whether shared and exclusive locks are currently
obtainable with the configured backend combination.

The availability probes acquire and immediately release real locks, exactly
as a mail reader or delivery agent would.`,
	Args: cobra.ExactArgs(1),
	RunE: runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	table, err := cfg.MethodTable()
	if err != nil {
		return err
	}

	path := resolveMailboxPath(cfg.Spool.Directory, args[0])

	st, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("cannot stat mailbox: %w", err)
	}
	fmt.Printf("Mailbox:  %s\n", path)
	fmt.Printf("Size:     %d bytes\n", st.Size())
	fmt.Printf("Modified: %s\n", st.ModTime().Format(time.RFC3339))
	fmt.Printf("Methods:  read=%v write=%v\n", table.ReadOrder(), table.WriteOrder())

	printDotlockStatus(path + ".lock")

	file := mailbox.New(path)
	defer file.Close()
	handle := lock.NewHandle(file, table)

	fmt.Printf("Shared:    %s\n", probe(handle, lock.KindShared))
	fmt.Printf("Exclusive: %s\n", probe(handle, lock.KindExclusive))
	return nil
}

func printDotlockStatus(lockPath string) {
	st, err := os.Stat(lockPath)
	if os.IsNotExist(err) {
		fmt.Println("Dotlock:  not held")
		return
	}
	if err != nil {
		fmt.Printf("Dotlock:  unreadable (%v)\n", err)
		return
	}

	owner := "unknown owner"
	if data, err := os.ReadFile(lockPath); err == nil {
		if fields := strings.Fields(string(data)); len(fields) >= 2 {
			owner = fmt.Sprintf("pid %s on %s", fields[0], fields[1])
		}
	}
	fmt.Printf("Dotlock:  held by %s, age %s\n",
		owner, time.Since(st.ModTime()).Round(time.Second))
}

// probe checks whether a lock of the given kind is obtainable right now.
func probe(h *lock.Handle, kind lock.Kind) string {
	tok, err := h.TryLock(kind)
	if err != nil {
		return fmt.Sprintf("busy (%v)", err)
	}
	if err := h.Unlock(tok); err != nil {
		return fmt.Sprintf("available, but release failed (%v)", err)
	}
	return "available"
}
