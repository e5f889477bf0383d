package commands

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/rarestuff/mboxd/internal/logger"
	"github.com/rarestuff/mboxd/pkg/mailbox"
	"github.com/rarestuff/mboxd/pkg/mailbox/lock"
)

var (
	holdExclusive bool
	holdTry       bool
)

var holdCmd = &cobra.Command{
	Use:   "hold [flags] MAILBOX [-- COMMAND [ARGS...]]",
	Short: "Hold a mailbox lock while running a command",
	Long: `Acquire a mailbox lock, run a command while it is held, and release it
when the command exits. Without a command, the lock is held until interrupted.

The lock is acquired with the configured backend combination, so the mailbox
is protected against every other program using any of the configured methods.

Examples:
  # Deliver safely into a mailbox
  mboxd hold --exclusive /var/mail/alice -- formail -s procmail

  # Read without blocking writers that only take the dotlock
  mboxd hold /var/mail/alice -- grep -c '^From ' /var/mail/alice

  # Fail immediately instead of waiting if the mailbox is busy
  mboxd hold --exclusive --try /var/mail/alice -- mutt -f /var/mail/alice`,
	Args: cobra.MinimumNArgs(1),
	RunE: runHold,
}

func init() {
	holdCmd.Flags().BoolVar(&holdExclusive, "exclusive", false, "Acquire an exclusive (write) lock instead of shared")
	holdCmd.Flags().BoolVar(&holdTry, "try", false, "Fail immediately if the lock cannot be acquired without waiting")
}

func runHold(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	table, err := cfg.MethodTable()
	if err != nil {
		return err
	}

	path := resolveMailboxPath(cfg.Spool.Directory, args[0])

	opts := []lock.Option{lock.WithNotify(holdNotify)}
	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		opts = append(opts, lock.WithMetrics(lock.NewMetrics(reg)))
		go serveMetrics(reg, cfg.Metrics.Port)
	}

	file := mailbox.New(path)
	defer file.Close()

	handle := lock.NewHandle(file, table, opts...)

	kind := lock.KindShared
	if holdExclusive {
		kind = lock.KindExclusive
	}

	var tok lock.Token
	if holdTry {
		tok, err = handle.TryLock(kind)
	} else {
		tok, err = handle.Lock(kind)
	}
	if err != nil {
		return fmt.Errorf("failed to lock %s: %w", path, err)
	}
	defer func() {
		if err := handle.Unlock(tok); err != nil {
			logger.Error("unlock failed", logger.KeyPath, path, logger.KeyError, err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if len(args) == 1 {
		fmt.Fprintf(os.Stderr, "holding %v lock on %s until interrupted\n", kind, path)
		<-ctx.Done()
		return nil
	}

	child := exec.CommandContext(ctx, args[1], args[2:]...)
	child.Stdin = os.Stdin
	child.Stdout = os.Stdout
	child.Stderr = os.Stderr
	return child.Run()
}

// resolveMailboxPath treats bare names as mailboxes in the spool directory
// and leaves explicit paths alone.
func resolveMailboxPath(spoolDir, arg string) string {
	if filepath.IsAbs(arg) || filepath.Dir(arg) != "." {
		return arg
	}
	return filepath.Join(spoolDir, arg)
}

// holdNotify reports lock wait progress on stderr roughly once per second.
func holdNotify(kind lock.NotifyKind, secsLeft uint) bool {
	switch kind {
	case lock.NotifyOverride:
		fmt.Fprintf(os.Stderr, "mailbox lock looks stale, overriding (timeout in %d secs)\n", secsLeft)
	default:
		fmt.Fprintf(os.Stderr, "waiting for mailbox lock (timeout in %d secs)\n", secsLeft)
	}
	return true
}

// serveMetrics exposes the Prometheus registry for the lifetime of the hold.
func serveMetrics(reg *prometheus.Registry, port int) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Warn("metrics server stopped", logger.KeyError, err)
	}
}
