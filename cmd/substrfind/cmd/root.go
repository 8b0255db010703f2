package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/dshills/substrfind/internal/config"
	"github.com/dshills/substrfind/internal/engine"
	"github.com/dshills/substrfind/internal/storage"
	"github.com/dshills/substrfind/pkg/types"
)

var (
	configPath  string
	journalPath string
	logLevel    string
	noJournal   bool

	cfg    *config.Config
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "substrfind",
	Short: "Index a directory and find literal substrings in its files",
	Long: `substrfind indexes every UTF-8 text file below a directory by its set of
3-byte substrings and answers exact substring queries with the byte offset
of the first occurrence in each matching file.

Indexed files are watched, so the index follows edits and deletions while
substrfind is running.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip initialization for help commands
		if cmd.Name() == "help" || cmd.Name() == "completion" {
			return nil
		}

		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("journal") {
			loaded.Journal.Path = journalPath
		}
		if noJournal {
			loaded.Journal.Enabled = false
		}
		if cmd.Flags().Changed("log-level") {
			if _, err := config.ParseLevel(logLevel); err != nil {
				return err
			}
			loaded.Log.Level = logLevel
		}

		cfg = loaded
		// stdout is reserved for results and the MCP protocol
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.Log.SlogLevel()}))
		slog.SetDefault(logger)
		return nil
	},
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.substrfind/config.toml)")
	rootCmd.PersistentFlags().StringVar(&journalPath, "journal", config.DefaultJournalPath(), "journal database path")
	rootCmd.PersistentFlags().BoolVar(&noJournal, "no-journal", false, "do not record scans and events")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
}

// openEngine builds an engine from the loaded configuration. The journal is
// opened when enabled and handed to the engine, which closes it.
func openEngine(opts ...engine.Option) (*engine.Engine, error) {
	opts = append([]engine.Option{engine.WithLogger(logger)}, opts...)

	if cfg.Journal.Enabled {
		store, err := storage.NewSQLiteStorage(cfg.Journal.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open journal: %w", err)
		}
		opts = append(opts, engine.WithStorage(store))
	}

	eng, err := engine.New(cfg, opts...)
	if err != nil {
		return nil, err
	}
	return eng, nil
}

// eventPrinter renders engine events on w. Progress lines overwrite each
// other on a terminal and are dropped otherwise.
type eventPrinter struct {
	mu       sync.Mutex
	w        io.Writer
	terminal bool
	pending  bool // a progress line is waiting to be overwritten
}

func newEventPrinter(f *os.File) *eventPrinter {
	return &eventPrinter{
		w:        f,
		terminal: isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()),
	}
}

func (p *eventPrinter) print(ev types.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if ev.Kind == types.EventProgress {
		if p.terminal {
			fmt.Fprintf(p.w, "\r\033[K%s", ev.Text)
			p.pending = true
		}
		return
	}

	if p.pending {
		fmt.Fprint(p.w, "\r\033[K")
		p.pending = false
	}
	if !ev.Save {
		return
	}
	if ev.Level == "info" {
		fmt.Fprintln(p.w, ev.Text)
		return
	}
	fmt.Fprintf(p.w, "[%s] %s\n", ev.Level, ev.Text)
}
