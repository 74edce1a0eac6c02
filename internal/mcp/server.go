// Package mcp exposes the auditor as Model Context Protocol tools over stdio.
package mcp

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/a3tai/handover-auditor/internal/audit"
	"github.com/a3tai/handover-auditor/internal/config"
	"github.com/a3tai/handover-auditor/internal/pdf"
)

// Server represents the MCP server instance
type Server struct {
	config    *config.Config
	docs      *pdf.Service
	auditor   *audit.Service
	mcpServer *server.MCPServer
	logger    *slog.Logger
}

// NewServer creates a new MCP server instance
func NewServer(cfg *config.Config, docs *pdf.Service, auditor *audit.Service, logger *slog.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if docs == nil {
		return nil, fmt.Errorf("document service cannot be nil")
	}
	if auditor == nil {
		return nil, fmt.Errorf("auditor cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	mcpServer := server.NewMCPServer(
		cfg.ServerName,
		cfg.Version,
		server.WithToolCapabilities(false),
	)

	s := &Server{
		config:    cfg,
		docs:      docs,
		auditor:   auditor,
		mcpServer: mcpServer,
		logger:    logger,
	}
	s.registerTools()
	return s, nil
}

func (s *Server) registerTools() {
	auditPDF := mcp.NewTool(
		"audit_pdf",
		mcp.WithDescription("Classify and validate the handover terms found in one PDF"),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("PDF path, absolute or relative to the input directory"),
		),
		mcp.WithBoolean("record",
			mcp.Description("Append the records to the results workbook (default false)"),
		),
	)
	s.mcpServer.AddTool(auditPDF, s.handleAuditPDF)

	auditDirectory := mcp.NewTool(
		"audit_directory",
		mcp.WithDescription("Audit every PDF of a directory inside the input directory"),
		mcp.WithString("directory",
			mcp.Description("Directory to audit (uses the input directory if empty)"),
		),
		mcp.WithBoolean("recursive",
			mcp.Description("Include subdirectories (default false)"),
		),
		mcp.WithBoolean("record",
			mcp.Description("Append the records to the results workbook (default false)"),
		),
	)
	s.mcpServer.AddTool(auditDirectory, s.handleAuditDirectory)

	readDocument := mcp.NewTool(
		"read_document",
		mcp.WithDescription("Return the extracted text of a PDF, as seen by the auditor"),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("PDF path, absolute or relative to the input directory"),
		),
	)
	s.mcpServer.AddTool(readDocument, s.handleReadDocument)

	serverInfo := mcp.NewTool(
		"audit_server_info",
		mcp.WithDescription("Get server information, configured directories and the active rule chains"),
	)
	s.mcpServer.AddTool(serverInfo, s.handleServerInfo)
}

func (s *Server) handleAuditPDF(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := request.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	resolved, err := s.docs.Resolve(path)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if request.GetBool("record", false) {
		run, err := s.auditor.ProcessBatch(ctx, []string{resolved})
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(formatRun(run)), nil
	}

	doc := s.auditor.ProcessDocument(ctx, resolved)
	if doc.Err != nil {
		return mcp.NewToolResultError(doc.Err.Error()), nil
	}
	return mcp.NewToolResultText(formatDocuments([]audit.DocumentResult{doc})), nil
}

func (s *Server) handleAuditDirectory(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	directory := request.GetString("directory", "")
	listing, err := s.docs.ListDirectory(directory, request.GetBool("recursive", false))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if request.GetBool("record", false) {
		run, err := s.auditor.ProcessBatch(ctx, listing.Paths())
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(formatRun(run)), nil
	}

	docs := make([]audit.DocumentResult, 0, listing.TotalCount)
	for _, p := range listing.Paths() {
		if err := ctx.Err(); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		docs = append(docs, s.auditor.ProcessDocument(ctx, p))
	}
	return mcp.NewToolResultText(formatDocuments(docs)), nil
}

func (s *Server) handleReadDocument(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := request.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	text, err := s.docs.TextOf(ctx, path)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(text), nil
}

func (s *Server) handleServerInfo(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "%s v%s\n", s.config.ServerName, s.config.Version)
	fmt.Fprintf(&b, "Input directory: %s\n", s.docs.Root())
	fmt.Fprintf(&b, "Results workbook: %s\n", s.config.OutputFile)
	if s.config.AuditedDirectory != "" {
		fmt.Fprintf(&b, "Audited directory: %s\n", s.config.AuditedDirectory)
	}
	fmt.Fprintf(&b, "Max file size: %d MB\n", s.docs.MaxFileSize()/(1024*1024))
	if s.config.Hostname.Enabled() {
		fmt.Fprintf(&b, "Hostname registry: %s\n", s.config.Hostname.URL)
	} else {
		b.WriteString("Hostname registry: not configured\n")
	}

	policy := s.auditor.Policy()
	b.WriteString("\nRule chains:\n")
	for _, term := range chainTerms(policy) {
		names := make([]string, 0, len(policy.Chains[term]))
		for _, r := range policy.Chains[term] {
			names = append(names, string(r))
		}
		fmt.Fprintf(&b, "  %s: %s\n", term, strings.Join(names, " -> "))
	}

	if listing, err := s.docs.ListDirectory("", false); err == nil {
		fmt.Fprintf(&b, "\nPending documents: %d\n", listing.TotalCount)
	} else {
		b.WriteString("\nPending documents: 0\n")
	}

	b.WriteString("\nTools: audit_pdf, audit_directory, read_document, audit_server_info\n")
	b.WriteString("Pass record=true to append results to the workbook; without it the audit is read-only.\n")
	return mcp.NewToolResultText(b.String()), nil
}

// Run serves MCP over the process's stdin and stdout until ctx ends
func (s *Server) Run(ctx context.Context) error {
	return s.Serve(ctx, os.Stdin, os.Stdout)
}

// Serve speaks MCP on in and out until ctx ends or in is closed
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	s.logger.Debug("mcp.listen", "input_directory", s.docs.Root())

	stdio := server.NewStdioServer(s.mcpServer)
	stdio.SetErrorLogger(slog.NewLogLogger(s.logger.Handler(), slog.LevelError))
	if err := stdio.Listen(ctx, in, out); err != nil && ctx.Err() == nil {
		return fmt.Errorf("failed to serve stdio: %w", err)
	}
	return nil
}
