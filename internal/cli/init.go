package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/harun/memoranda/pkg/store"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the .memoranda directory",
	Long: `Create a .memoranda storage directory at the storage root (the
enclosing git repository unless --root is given).`,
	Args: cobra.NoArgs,
	RunE: runInit,
}

func init() {
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	wd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to get working directory: %w", err)
	}

	fsys := newFs()
	root, err := store.ResolveRoot(fsys, cfg.Storage.Root, wd)
	if err != nil {
		return err
	}

	dir, err := store.EnsureStorageDir(fsys, root)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Storage directory ready: %s\n", dir)
	return nil
}
