// Package api exposes the auditor over HTTP: uploads, folder runs, the
// results workbook, run history and a progress websocket.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/a3tai/handover-auditor/internal/audit"
	"github.com/a3tai/handover-auditor/internal/history"
	"github.com/a3tai/handover-auditor/internal/pdf"
	"github.com/a3tai/handover-auditor/internal/pdf/security"
	"github.com/a3tai/handover-auditor/internal/progress"
	"github.com/a3tai/handover-auditor/internal/sheet"
)

const (
	// DefaultMaxUploadBytes bounds one /upload request body
	DefaultMaxUploadBytes = 512 << 20
	// multipart parts above this size are spooled to disk
	multipartMemory = 32 << 20

	shutdownTimeout = 10 * time.Second
)

// HistoryReader is the read side of the run history
type HistoryReader interface {
	List(ctx context.Context, limit int) ([]history.Entry, error)
	Runs(ctx context.Context, limit int) ([]history.RunSummary, error)
}

// Options wires the collaborators of the HTTP server. Auditor, Docs,
// Workbook and Hub are required.
type Options struct {
	Auditor  *audit.Service
	Docs     *pdf.Service
	Workbook *sheet.Workbook
	Hub      *progress.Hub
	History  HistoryReader

	// AuditedDir receives uploaded and processed documents. When empty,
	// folder runs read documents in place.
	AuditedDir     string
	MaxFileSize    int64
	MaxUploadBytes int64
	Logger         *slog.Logger
}

// Server is the HTTP front of the auditor
type Server struct {
	auditor   *audit.Service
	docs      *pdf.Service
	workbook  *sheet.Workbook
	downloads *security.PathValidator
	hub       *progress.Hub
	history   HistoryReader

	auditedDir     string
	maxFileSize    int64
	maxUploadBytes int64
	logger         *slog.Logger
	router         chi.Router
}

// New builds the server and its routes
func New(opts Options) (*Server, error) {
	if opts.Auditor == nil || opts.Docs == nil || opts.Workbook == nil || opts.Hub == nil {
		return nil, errors.New("api: auditor, docs, workbook and hub are required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if opts.MaxFileSize <= 0 {
		opts.MaxFileSize = opts.Docs.MaxFileSize()
	}

	downloads, err := security.NewPathValidator(filepath.Dir(opts.Workbook.Path()))
	if err != nil {
		return nil, fmt.Errorf("api: %w", err)
	}

	s := &Server{
		auditor:        opts.Auditor,
		docs:           opts.Docs,
		workbook:       opts.Workbook,
		downloads:      downloads,
		hub:            opts.Hub,
		history:        opts.History,
		auditedDir:     opts.AuditedDir,
		maxFileSize:    opts.MaxFileSize,
		maxUploadBytes: opts.MaxUploadBytes,
		logger:         opts.Logger,
	}
	s.routes()
	return s, nil
}

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.logger))
	r.Use(middleware.Recoverer)
	r.Use(cors)

	r.Get("/healthz", s.handleHealth)
	r.Post("/upload", s.handleUpload)
	r.Post("/process-folder", s.handleProcessFolder)
	r.Get("/download/{filename}", s.handleDownload)
	r.Get("/history", s.handleHistory)
	r.Get("/history/runs", s.handleHistoryRuns)
	r.Handle("/ws/progress", s.progressSocket())

	s.router = r
}

// Handler returns the root HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          slog.NewLogLogger(s.logger.Handler(), slog.LevelWarn),
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("api.listen", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("api: serve: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info("api.shutdown")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	// hijacked websocket connections are not tracked by Shutdown; closing
	// the hub ends their handlers
	s.hub.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("api: shutdown: %w", err)
	}
	return nil
}
