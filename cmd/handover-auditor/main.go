package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"

	"github.com/a3tai/handover-auditor/internal/api"
	"github.com/a3tai/handover-auditor/internal/audit"
	"github.com/a3tai/handover-auditor/internal/config"
	"github.com/a3tai/handover-auditor/internal/history"
	"github.com/a3tai/handover-auditor/internal/hostname"
	"github.com/a3tai/handover-auditor/internal/mcp"
	"github.com/a3tai/handover-auditor/internal/pdf"
	"github.com/a3tai/handover-auditor/internal/progress"
	"github.com/a3tai/handover-auditor/internal/rules"
	"github.com/a3tai/handover-auditor/internal/sheet"
)

var (
	version   = "dev"     // This will be set by build flags
	buildTime = "unknown" // This will be set by build flags
	gitCommit = "unknown" // This will be set by build flags
)

// newLogger builds the process logger. Server mode logs JSON to stdout;
// stdio mode owns stdout for the protocol, so it logs text to stderr and
// only when debugging.
func newLogger(cfg *config.Config, stdout, stderr io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)}
	if cfg.IsServerMode() {
		return slog.New(slog.NewJSONHandler(stdout, opts))
	}
	if !cfg.IsDebug() {
		return slog.New(slog.NewTextHandler(io.Discard, opts))
	}
	return slog.New(slog.NewTextHandler(stderr, opts))
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// app holds the wired components for one process
type app struct {
	cfg      *config.Config
	docs     *pdf.Service
	workbook *sheet.Workbook
	hub      *progress.Hub
	store    *history.Store
	auditor  *audit.Service
	logger   *slog.Logger
}

func build(cfg *config.Config, logger *slog.Logger) (*app, error) {
	policy, err := rules.LoadPolicy(cfg.RulesFile)
	if err != nil {
		return nil, err
	}

	var hv rules.HostnameValidator
	if cfg.Hostname.Enabled() {
		client, err := hostname.New(hostname.Config{
			BaseURL:  cfg.Hostname.URL,
			Username: cfg.Hostname.User,
			Password: cfg.Hostname.Password,
			Domain:   cfg.Hostname.Domain,
			Timeout:  cfg.Hostname.Timeout,
			Logger:   logger,
		})
		if err != nil {
			return nil, err
		}
		hv = client
	} else {
		logger.Warn("hostname.registry.disabled")
	}

	validator, err := rules.NewValidator(policy, hv, logger)
	if err != nil {
		return nil, err
	}

	docs, err := pdf.NewService(cfg.MaxFileSize, cfg.InputDirectory, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create document service: %w", err)
	}

	workbook := sheet.New(cfg.OutputFile, logger)
	if err := workbook.EnsureExists(); err != nil {
		return nil, err
	}

	a := &app{
		cfg:      cfg,
		docs:     docs,
		workbook: workbook,
		hub:      progress.NewHub(progress.DefaultBuffer, logger),
		logger:   logger,
	}

	opts := audit.Options{
		Source:    docs.Reader(),
		Validator: validator,
		Sink:      workbook,
		Progress:  a.hub,
		Workers:   cfg.Workers,
		Logger:    logger,
	}
	if cfg.HistoryFile != "" {
		a.store, err = history.Open(cfg.HistoryFile, logger)
		if err != nil {
			return nil, err
		}
		opts.History = a.store
	}

	a.auditor, err = audit.NewService(opts)
	if err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

func (a *app) close() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Warn("history.close.failed", "error", err)
		}
	}
}

func (a *app) run(ctx context.Context) error {
	if a.cfg.IsServerMode() {
		var reader api.HistoryReader
		if a.store != nil {
			reader = a.store
		}
		srv, err := api.New(api.Options{
			Auditor:     a.auditor,
			Docs:        a.docs,
			Workbook:    a.workbook,
			Hub:         a.hub,
			History:     reader,
			AuditedDir:  a.cfg.AuditedDirectory,
			MaxFileSize: a.cfg.MaxFileSize,
			Logger:      a.logger,
		})
		if err != nil {
			return err
		}
		return srv.Run(ctx, a.cfg.Address())
	}

	server, err := mcp.NewServer(a.cfg, a.docs, a.auditor, a.logger)
	if err != nil {
		return fmt.Errorf("failed to create MCP server: %w", err)
	}
	return server.Run(ctx)
}

func isVersionArg(args []string) bool {
	for _, arg := range args {
		if arg == "-version" || arg == "--version" || arg == "-v" {
			return true
		}
	}
	return false
}

func main() {
	if isVersionArg(os.Args[1:]) {
		printVersion()
		return
	}

	cfg, err := config.LoadFromFlags()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if version != "dev" {
		cfg.Version = version
	}

	logger := newLogger(cfg, os.Stdout, os.Stderr)
	slog.SetDefault(logger)
	logger.Debug("config.loaded", "config", cfg.String())

	a, err := build(cfg, logger)
	if err != nil {
		logger.Error("startup.failed", "error", err)
		fmt.Fprintf(os.Stderr, "Failed to start: %v\n", err)
		os.Exit(1)
	}
	defer a.close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := a.run(ctx); err != nil {
		logger.Error("server.failed", "error", err)
		a.close()
		os.Exit(1)
	}
	logger.Info("server.stopped")
}

// printVersion prints version information
func printVersion() {
	fmt.Printf("Handover Auditor\n")
	fmt.Printf("Version: %s\n", version)
	fmt.Printf("Build Time: %s\n", buildTime)
	fmt.Printf("Git Commit: %s\n", gitCommit)
	fmt.Printf("Built with: %s\n", runtime.Version())
}
