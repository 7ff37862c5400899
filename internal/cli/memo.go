package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/harun/memoranda/pkg/memo"
)

var (
	memoTitle   string
	memoContent string
	memoFile    string
)

var memoCmd = &cobra.Command{
	Use:   "memo",
	Short: "Manage memos from the command line",
}

var memoCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a memo",
	Long: `Create a memo. Content comes from --content, --file, or stdin when
neither is given.`,
	Args: cobra.NoArgs,
	RunE: runMemoCreate,
}

var memoGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Show a memo",
	Args:  cobra.ExactArgs(1),
	RunE:  runMemoGet,
}

var memoUpdateCmd = &cobra.Command{
	Use:   "update <id>",
	Short: "Replace a memo's content",
	Args:  cobra.ExactArgs(1),
	RunE:  runMemoUpdate,
}

var memoDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a memo",
	Args:  cobra.ExactArgs(1),
	RunE:  runMemoDelete,
}

var memoListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all memos",
	Args:  cobra.NoArgs,
	RunE:  runMemoList,
}

var memoSearchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search memos",
	Long: `Search memo titles, content and tags. Terms are ANDed by default;
OR, AND, "quoted phrases", * and ? wildcards and tag:name are supported.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runMemoSearch,
}

var memoContextCmd = &cobra.Command{
	Use:   "context",
	Short: "Print every memo as one Markdown document",
	Args:  cobra.NoArgs,
	RunE:  runMemoContext,
}

func init() {
	memoCreateCmd.Flags().StringVarP(&memoTitle, "title", "t", "", "memo title")
	memoCreateCmd.Flags().StringVarP(&memoContent, "content", "c", "", "memo content")
	memoCreateCmd.Flags().StringVarP(&memoFile, "file", "f", "", "read content from file")
	_ = memoCreateCmd.MarkFlagRequired("title")
	memoCreateCmd.MarkFlagsMutuallyExclusive("content", "file")

	memoUpdateCmd.Flags().StringVarP(&memoContent, "content", "c", "", "new content")
	memoUpdateCmd.Flags().StringVarP(&memoFile, "file", "f", "", "read new content from file")
	memoUpdateCmd.MarkFlagsMutuallyExclusive("content", "file")

	memoCmd.AddCommand(memoCreateCmd, memoGetCmd, memoUpdateCmd, memoDeleteCmd,
		memoListCmd, memoSearchCmd, memoContextCmd)
	rootCmd.AddCommand(memoCmd)
}

// readContent resolves --content, --file or stdin.
func readContent(cmd *cobra.Command) (string, error) {
	if cmd.Flags().Changed("content") {
		return memoContent, nil
	}
	if memoFile != "" {
		data, err := os.ReadFile(memoFile)
		if err != nil {
			return "", fmt.Errorf("failed to read %s: %w", memoFile, err)
		}
		return string(data), nil
	}
	data, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return "", fmt.Errorf("failed to read stdin: %w", err)
	}
	return string(data), nil
}

func runMemoCreate(cmd *cobra.Command, args []string) error {
	content, err := readContent(cmd)
	if err != nil {
		return err
	}

	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	m, err := s.store.Create(cmd.Context(), memoTitle, content)
	if err != nil {
		return err
	}
	return printValue(cmd.OutOrStdout(), m)
}

func runMemoGet(cmd *cobra.Command, args []string) error {
	id, err := memo.ParseID(args[0])
	if err != nil {
		return err
	}

	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	m, err := s.store.Get(cmd.Context(), id)
	if err != nil {
		return err
	}
	return printValue(cmd.OutOrStdout(), m)
}

func runMemoUpdate(cmd *cobra.Command, args []string) error {
	id, err := memo.ParseID(args[0])
	if err != nil {
		return err
	}

	content, err := readContent(cmd)
	if err != nil {
		return err
	}

	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	m, err := s.store.Update(cmd.Context(), id, content)
	if err != nil {
		return err
	}
	return printValue(cmd.OutOrStdout(), m)
}

func runMemoDelete(cmd *cobra.Command, args []string) error {
	id, err := memo.ParseID(args[0])
	if err != nil {
		return err
	}

	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.store.Delete(cmd.Context(), id); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Deleted memo %s\n", id)
	return nil
}

func runMemoList(cmd *cobra.Command, args []string) error {
	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	memos, err := s.store.List(cmd.Context())
	if err != nil {
		return err
	}
	return printValue(cmd.OutOrStdout(), memos)
}

func runMemoSearch(cmd *cobra.Command, args []string) error {
	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	results, err := s.store.Search(cmd.Context(), strings.Join(args, " "))
	if err != nil {
		return err
	}
	return printValue(cmd.OutOrStdout(), results)
}

func runMemoContext(cmd *cobra.Command, args []string) error {
	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	text, err := s.store.GetAllContext(cmd.Context())
	if err != nil {
		return err
	}
	_, err = io.WriteString(cmd.OutOrStdout(), text)
	return err
}
