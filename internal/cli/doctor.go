package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/harun/memoranda/internal/config"
	"github.com/harun/memoranda/pkg/store"
)

var (
	green  = color.New(color.FgGreen).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	gray   = color.New(color.FgHiBlack).SprintFunc()
	bold   = color.New(color.Bold).SprintFunc()
)

type checkStatus int

const (
	checkPass checkStatus = iota
	checkWarn
	checkFail
)

type checkResult struct {
	Name    string
	Status  checkStatus
	Message string
	Fix     string
}

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Diagnose the memoranda setup",
	Long: `Check the git repository, storage directories, write permissions,
memo file formats and cache configuration, and suggest fixes.`,
	Args: cobra.NoArgs,
	RunE: runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

func runDoctor(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, bold("Memoranda doctor"))
	fmt.Fprintln(out)

	cfg, err := loadConfig()
	if err != nil {
		printCheck(out, checkResult{
			Name:    "Configuration",
			Status:  checkFail,
			Message: err.Error(),
			Fix:     "Run 'memoranda configure' or edit the config file",
		})
		return errors.New("doctor found problems")
	}

	wd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to get working directory: %w", err)
	}

	results := runChecks(cmd.Context(), cfg, newFs(), wd)

	failed := 0
	for _, r := range results {
		printCheck(out, r)
		if r.Status == checkFail {
			failed++
		}
	}

	fmt.Fprintln(out)
	if failed > 0 {
		fmt.Fprintln(out, red(fmt.Sprintf("%d check(s) failed", failed)))
		return errors.New("doctor found problems")
	}
	fmt.Fprintln(out, green("All checks passed"))
	return nil
}

func printCheck(w io.Writer, r checkResult) {
	var mark string
	switch r.Status {
	case checkPass:
		mark = green("✓")
	case checkWarn:
		mark = yellow("!")
	default:
		mark = red("✗")
	}

	fmt.Fprintf(w, "%s %s: %s\n", mark, bold(r.Name), r.Message)
	if r.Fix != "" && r.Status != checkPass {
		fmt.Fprintf(w, "    %s\n", gray("fix: "+r.Fix))
	}
}

// runChecks stops at the first failure that makes later checks
// meaningless.
func runChecks(ctx context.Context, cfg *config.Config, fsys afero.Fs, wd string) []checkResult {
	results := []checkResult{{Name: "Configuration", Status: checkPass, Message: "valid"}}

	gitRoot, gitErr := store.FindGitRoot(fsys, wd)
	switch {
	case gitErr == nil:
		results = append(results, checkResult{Name: "Git repository", Status: checkPass, Message: gitRoot})
	case cfg.Storage.Root != "":
		results = append(results, checkResult{
			Name:    "Git repository",
			Status:  checkWarn,
			Message: "not in a git repository, using configured root",
		})
	default:
		return append(results, checkResult{
			Name:    "Git repository",
			Status:  checkFail,
			Message: gitErr.Error(),
			Fix:     "Run inside a git repository, 'git init', or pass --root",
		})
	}

	root, err := store.ResolveRoot(fsys, cfg.Storage.Root, wd)
	if err != nil {
		return append(results, checkResult{Name: "Storage root", Status: checkFail, Message: err.Error()})
	}

	st, err := store.New(store.Config{
		Root:            root,
		Fs:              fsys,
		Cache:           cfg.CacheSettings(),
		Search:          cfg.Search,
		Retry:           cfg.RetryPolicy(),
		ContentPatterns: cfg.Storage.ContentPatterns,
	})
	if err != nil {
		return append(results, checkResult{Name: "Storage root", Status: checkFail, Message: err.Error()})
	}
	defer st.Close()

	dirs, err := st.StorageDirs(ctx)
	if err != nil {
		return append(results, checkResult{Name: "Storage directory", Status: checkFail, Message: err.Error()})
	}
	if len(dirs) == 0 {
		return append(results, checkResult{
			Name:    "Storage directory",
			Status:  checkFail,
			Message: "no .memoranda directory under " + root,
			Fix:     "Run 'memoranda init'",
		})
	}
	results = append(results, checkResult{
		Name:    "Storage directory",
		Status:  checkPass,
		Message: fmt.Sprintf("%s (%d found)", dirs[0], len(dirs)),
	})

	results = append(results, checkWritable(fsys, dirs[0]))

	reports, err := st.Diagnose(ctx)
	if err != nil {
		return append(results, checkResult{Name: "Memo files", Status: checkFail, Message: err.Error()})
	}
	results = append(results, summarizeFiles(reports))

	results = append(results, checkCache(cfg, len(reports)))

	return results
}

func checkWritable(fsys afero.Fs, dir string) checkResult {
	f, err := afero.TempFile(fsys, dir, ".doctor-*")
	if err != nil {
		fix := "Check the directory's owner and mode"
		if errors.Is(err, os.ErrPermission) {
			fix = "chmod u+w " + dir
		}
		return checkResult{Name: "Permissions", Status: checkFail, Message: err.Error(), Fix: fix}
	}
	name := f.Name()
	_ = f.Close()
	_ = fsys.Remove(name)

	return checkResult{Name: "Permissions", Status: checkPass, Message: "storage directory is writable"}
}

func summarizeFiles(reports []store.FileReport) checkResult {
	counts := make(map[store.FileStatus]int)
	var firstBad string
	for _, r := range reports {
		counts[r.Status]++
		if firstBad == "" && (r.Status == store.FileMalformed || r.Status == store.FileUnreadable) {
			firstBad = r.Path
		}
	}

	msg := fmt.Sprintf("%d file(s): %d ok, %d repaired, %d plain, %d malformed, %d unreadable",
		len(reports), counts[store.FileOK], counts[store.FileRepaired], counts[store.FilePlain],
		counts[store.FileMalformed], counts[store.FileUnreadable])

	switch {
	case counts[store.FileUnreadable] > 0:
		return checkResult{Name: "Memo files", Status: checkFail, Message: msg,
			Fix: "Check permissions on " + firstBad}
	case counts[store.FileMalformed] > 0:
		return checkResult{Name: "Memo files", Status: checkWarn, Message: msg,
			Fix: "Fix the JSON header of " + firstBad + "; it is listed using its filename until then"}
	case counts[store.FileRepaired] > 0:
		return checkResult{Name: "Memo files", Status: checkWarn, Message: msg,
			Fix: "Update the repaired memos to rewrite their headers"}
	default:
		return checkResult{Name: "Memo files", Status: checkPass, Message: msg}
	}
}

func checkCache(cfg *config.Config, files int) checkResult {
	msg := fmt.Sprintf("max %d memos, ttl %ds", cfg.Cache.MaxMemos, cfg.Cache.TTLSeconds)
	if files > cfg.Cache.MaxMemos {
		return checkResult{
			Name:    "Cache",
			Status:  checkWarn,
			Message: fmt.Sprintf("%s; %d memo files exceed the cache", msg, files),
			Fix:     fmt.Sprintf("Set cache.max_memos to at least %d", files),
		}
	}
	return checkResult{Name: "Cache", Status: checkPass, Message: msg}
}
