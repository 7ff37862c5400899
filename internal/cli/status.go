package cli

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/harun/memoranda/internal/daemon"
	"github.com/harun/memoranda/pkg/store"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show storage and server status",
	Long:  `Show the storage root, memo counts and the memoranda servers currently running.`,
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	ctx := cmd.Context()

	fmt.Fprintf(out, "Root: %s\n", s.store.Root())

	dirs, err := s.store.StorageDirs(ctx)
	if err != nil {
		return err
	}
	if len(dirs) == 0 {
		fmt.Fprintln(out, "Storage: none (run 'memoranda init')")
	}
	for i, dir := range dirs {
		label := "Storage"
		if i == 0 {
			label = "Storage (primary)"
		}
		fmt.Fprintf(out, "%s: %s\n", label, dir)
	}

	memos, err := s.store.List(ctx)
	if err != nil && !errors.Is(err, store.ErrNoStorageRoot) {
		return err
	}
	fmt.Fprintf(out, "Memos: %d\n", len(memos))

	instances, err := daemon.ListInstances(s.cfg.DataDir)
	if err != nil {
		return err
	}
	if len(instances) == 0 {
		fmt.Fprintln(out, "Servers: stopped")
		return nil
	}

	fmt.Fprintf(out, "Servers: %d running\n", len(instances))
	for _, inst := range instances {
		marker := ""
		if inst.PID == os.Getpid() {
			marker = " (this process)"
		}
		fmt.Fprintf(out, "  PID %d%s  root=%s  uptime=%s\n",
			inst.PID, marker, inst.Root, formatDuration(time.Since(inst.StartedAt)))
	}

	return nil
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%dh%dm%ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm%ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}
