package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// Wizard provides an interactive configuration wizard
type Wizard struct {
	reader *bufio.Reader
	out    io.Writer
}

// NewWizard creates a new configuration wizard on stdin/stdout
func NewWizard() *Wizard {
	return NewWizardWithIO(os.Stdin, os.Stdout)
}

// NewWizardWithIO creates a wizard reading answers from r.
func NewWizardWithIO(r io.Reader, w io.Writer) *Wizard {
	return &Wizard{
		reader: bufio.NewReader(r),
		out:    w,
	}
}

// Run runs the interactive configuration wizard, starting from base
// (or the defaults when base is nil).
func (w *Wizard) Run(base *Config) (*Config, error) {
	w.println("=== Memoranda Configuration Wizard ===")
	w.println()

	cfg := base
	if cfg == nil {
		cfg = DefaultConfig()
	}
	validator := NewValidator()

	// Storage
	w.println("Storage:")
	w.printf("Storage root (empty = git repository root) [%s]: ", cfg.Storage.Root)
	root, err := w.readLine()
	if err != nil {
		return nil, err
	}
	if root != "" {
		cfg.Storage.Root = root
	}

	for {
		w.printf("Content patterns, comma separated [%s]: ", strings.Join(cfg.Storage.ContentPatterns, ","))
		line, err := w.readLine()
		if err != nil {
			return nil, err
		}
		if line == "" {
			break
		}

		var patterns []string
		for _, p := range strings.Split(line, ",") {
			if p = strings.TrimSpace(p); p != "" {
				patterns = append(patterns, p)
			}
		}
		if err := validator.ValidateContentPatterns(patterns); err != nil {
			w.printf("Error: %v\n", err)
			continue
		}
		cfg.Storage.ContentPatterns = patterns
		break
	}

	w.printf("Watch storage directories for external changes? (y/n) [%s]: ", yesNo(cfg.Storage.Watch))
	watch, err := w.readLine()
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(watch) {
	case "y", "yes":
		cfg.Storage.Watch = true
	case "n", "no":
		cfg.Storage.Watch = false
	}

	w.println()

	// Cache
	w.println("Cache:")
	for {
		w.printf("Maximum cached memos [%d]: ", cfg.Cache.MaxMemos)
		line, err := w.readLine()
		if err != nil {
			return nil, err
		}
		if line == "" {
			break
		}
		n, err := strconv.Atoi(line)
		if err != nil || n <= 0 {
			w.println("Error: enter a positive number")
			continue
		}
		cfg.Cache.MaxMemos = n
		break
	}

	w.println()

	// Log Level
	w.println("Logging:")
	w.printf("Log level (trace/debug/info/warn/error) [%s]: ", cfg.Logging.Level)
	level, err := w.readLine()
	if err != nil {
		return nil, err
	}

	if level != "" {
		if err := validator.ValidateLogLevel(level); err != nil {
			w.printf("Warning: %v, keeping %s\n", err, cfg.Logging.Level)
		} else {
			cfg.Logging.Level = level
		}
	}

	w.println()
	w.println("Configuration complete!")

	return cfg, nil
}

func (w *Wizard) readLine() (string, error) {
	line, err := w.reader.ReadString('\n')
	if err != nil {
		if err == io.EOF && line != "" {
			return strings.TrimSpace(line), nil
		}
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func (w *Wizard) printf(format string, args ...interface{}) {
	fmt.Fprintf(w.out, format, args...)
}

func (w *Wizard) println(args ...interface{}) {
	fmt.Fprintln(w.out, args...)
}

func yesNo(b bool) string {
	if b {
		return "y"
	}
	return "n"
}
