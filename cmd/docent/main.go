// Docent is a knowledge-base chat agent.
//
// It exposes an HTTP API for chat sessions backed by a completion
// provider and a local knowledge base. Conversation history is stored
// in SQLite; long conversations are summarized in the background to
// keep provider requests bounded. Configuration is loaded from a single
// YAML file discovered automatically (see [config.DefaultSearchPaths]).
//
// Usage:
//
//	docent serve             Start the API server
//	docent version           Print version and build information
//	docent -o json version   Output version information as JSON
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/docent-ai/docent/internal/agent"
	"github.com/docent-ai/docent/internal/api"
	"github.com/docent-ai/docent/internal/buildinfo"
	"github.com/docent-ai/docent/internal/config"
	"github.com/docent-ai/docent/internal/history"
	"github.com/docent-ai/docent/internal/kb"
	"github.com/docent-ai/docent/internal/llm"
	"github.com/docent-ai/docent/internal/store"
	"github.com/docent-ai/docent/internal/tools"

	_ "github.com/mattn/go-sqlite3" // SQLite driver for database/sql
)

// main is intentionally minimal. It constructs the OS-level environment
// (context, stdio, argv) and delegates immediately to [run] so the full
// startup-to-shutdown lifecycle can be driven from tests.
func main() {
	ctx := context.Background()

	if err := run(ctx, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

// run is the real entry point for the docent command. Arguments are
// parsed by hand: the flag package relies on package-level globals,
// which makes it impossible to call run() concurrently from tests, and
// the argument surface is small enough that manual parsing is clearer
// than bringing in a CLI framework.
func run(ctx context.Context, stdout io.Writer, stderr io.Writer, args []string) error {
	var configPath string
	var outputFmt string // "text" (default) or "json"
	var command string

	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "-config" && i+1 < len(args):
			configPath = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-config="):
			configPath = strings.TrimPrefix(args[i], "-config=")
		case (args[i] == "-o" || args[i] == "--output") && i+1 < len(args):
			outputFmt = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-o="):
			outputFmt = strings.TrimPrefix(args[i], "-o=")
		case strings.HasPrefix(args[i], "--output="):
			outputFmt = strings.TrimPrefix(args[i], "--output=")
		case args[i] == "-h" || args[i] == "-help" || args[i] == "--help":
			return printUsage(stdout)
		case !strings.HasPrefix(args[i], "-") && command == "":
			command = args[i]
		default:
			return fmt.Errorf("unknown flag: %s", args[i])
		}
	}

	if outputFmt == "" {
		outputFmt = "text"
	}
	if outputFmt != "text" && outputFmt != "json" {
		return fmt.Errorf("unknown output format: %q (expected text or json)", outputFmt)
	}

	switch command {
	case "serve":
		return runServe(ctx, stdout, configPath)
	case "version":
		return runVersion(stdout, outputFmt)
	case "":
		return printUsage(stdout)
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
}

// runVersion prints build metadata in the requested output format.
func runVersion(w io.Writer, outputFmt string) error {
	info := buildinfo.Info()
	if outputFmt == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}
	fmt.Fprintln(w, buildinfo.String())
	for _, k := range []string{"version", "git_commit", "build_time", "go_version", "os", "arch"} {
		if v, ok := info[k]; ok {
			fmt.Fprintf(w, "  %-12s %s\n", k+":", v)
		}
	}
	return nil
}

// printUsage writes the top-level help text to w.
func printUsage(w io.Writer) error {
	fmt.Fprintln(w, "Docent - Knowledge Base Chat Agent")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: docent [flags] <command>")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  serve        Start the API server")
	fmt.Fprintln(w, "  version      Show version information")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fmt.Fprintln(w, "  -config <path>    Path to config file (default: auto-discover)")
	fmt.Fprintln(w, "  -o, --output fmt  Output format: text (default) or json")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Config search order:")
	fmt.Fprintln(w, "  ./config.yaml, ~/.config/docent/config.yaml, /etc/docent/config.yaml")
	return nil
}

// runServe is the primary operating mode: loads config, opens the
// database, wires the knowledge base, tools, provider client, history
// manager, and agent loop together, starts the API server, and blocks
// until a shutdown signal arrives.
func runServe(ctx context.Context, stdout io.Writer, configPath string) error {
	logger := newLogger(stdout, slog.LevelInfo)
	logger.Info("starting Docent",
		"version", buildinfo.Version, "commit", buildinfo.GitCommit, "built", buildinfo.BuildTime)

	cfgPath, err := config.FindConfig(configPath)
	if err != nil {
		return err
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config %s: %w", cfgPath, err)
	}

	// Reconfigure now that the desired level is known. The initial
	// Info-level logger covers only the startup banner.
	if cfg.LogLevel != "" {
		// Already validated by config.Load, so the error path is
		// unreachable in practice.
		level, _ := config.ParseLogLevel(cfg.LogLevel)
		logger = newLogger(stdout, level)
	}
	logger.Info("config loaded",
		"path", cfgPath,
		"port", cfg.Listen.Port,
		"model", cfg.Provider.Model,
		"base_url", cfg.Provider.BaseURL,
	)

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("create data directory %s: %w", cfg.DataDir, err)
	}

	// --- Conversation store ---
	// SQLite-backed sessions, messages, and summaries. WAL keeps the
	// request path and background summarization from blocking each other.
	dbPath := cfg.DatabasePath()
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return fmt.Errorf("open database %s: %w", dbPath, err)
	}
	defer db.Close()

	st := store.New(db, logger)
	if err := st.Migrate(); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}
	logger.Info("database opened", "path", dbPath)

	// --- Knowledge base ---
	kbSvc, err := kb.NewService(cfg.KnowledgeBase.Dir, logger)
	if err != nil {
		return fmt.Errorf("open knowledge base %s: %w", cfg.KnowledgeBase.Dir, err)
	}
	logger.Info("knowledge base ready", "dir", cfg.KnowledgeBase.Dir, "items", len(kbSvc.Names()))

	// --- Tools ---
	registry := tools.NewRegistry(logger)
	tools.RegisterSearchKB(registry, kbSvc)

	// --- Completion provider ---
	client := llm.NewOpenAIClient(cfg.Provider.BaseURL, cfg.Provider.APIKey, cfg.Provider.Model,
		cfg.Provider.Timeout(), logger)
	if err := client.Ping(ctx); err != nil {
		logger.Warn("completion provider unreachable at startup", "error", err)
	}

	// --- History and agent loop ---
	taskRegistry := history.NewTaskRegistry()
	hist := history.NewManager(st, client, taskRegistry, logger)
	loop := agent.New(st, client, registry, hist, logger)

	// --- API server ---
	addr := fmt.Sprintf("%s:%d", cfg.Listen.Address, cfg.Listen.Port)
	server := api.NewServer(addr, loop, st, kbSvc, logger)

	// --- Signal handling and graceful shutdown ---
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	go func() {
		<-ctx.Done()
		logger.Info("shutdown signal received")

		// In-flight summarizations are abandoned; the next long
		// conversation triggers a fresh one.
		taskRegistry.CancelAll()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	if err := server.Start(ctx); err != nil {
		if ctx.Err() == nil {
			return fmt.Errorf("server failed: %w", err)
		}
	}

	logger.Info("Docent stopped")
	return nil
}

// newLogger creates a structured text logger writing to w at the given
// level. All log output goes through slog; this helper standardizes the
// handler configuration across subcommands.
func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: config.ReplaceLogLevelNames,
	}))
}
