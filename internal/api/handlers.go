package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"golang.org/x/net/websocket"

	"github.com/a3tai/handover-auditor/internal/audit"
	"github.com/a3tai/handover-auditor/internal/pdf"
	"github.com/a3tai/handover-auditor/internal/pdf/security"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// batchResponse is the body of /upload and /process-folder
type batchResponse struct {
	RunID     string          `json:"runId"`
	Results   []audit.Outcome `json:"results"`
	ExcelURL  string          `json:"excelUrl"`
	ChartData audit.Tally     `json:"chartData"`
	Failed    int             `json:"failed"`
}

// document is one input of a batch; err is set when it never reached the
// pipeline
type document struct {
	name string
	path string
	err  error
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":          "ok",
		"progressClients": s.hub.Clients(),
	})
}

// handleUpload audits the files of the multipart field "pdfs"
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid multipart form: %v", err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	files := r.MultipartForm.File["pdfs"]
	if len(files) == 0 {
		writeError(w, http.StatusBadRequest, "no files in field 'pdfs'")
		return
	}

	staging := s.auditedDir
	if staging == "" {
		staging = os.TempDir()
	}
	if err := os.MkdirAll(staging, 0o750); err != nil {
		writeError(w, http.StatusInternalServerError, "cannot create audited folder")
		return
	}

	docs := make([]document, 0, len(files))
	for _, fh := range files {
		docs = append(docs, s.saveUpload(fh, staging))
	}
	if s.auditedDir == "" {
		defer func() {
			for _, d := range docs {
				if d.err == nil {
					os.Remove(d.path)
				}
			}
		}()
	}

	s.runBatch(r.Context(), w, docs)
}

// saveUpload writes one part to temp_<id>_<name> in dir and renames it to
// its final, non-clashing name
func (s *Server) saveUpload(fh *multipart.FileHeader, dir string) document {
	name := uploadName(fh.Filename)
	doc := document{name: name}

	switch {
	case name == "":
		doc.err = errors.New("missing file name")
		return doc
	case !pdf.IsPDFName(name):
		doc.err = pdf.ErrNotPDF
		return doc
	case s.maxFileSize > 0 && fh.Size > s.maxFileSize:
		doc.err = fmt.Errorf("%w: %d bytes (max: %d bytes)", pdf.ErrTooLarge, fh.Size, s.maxFileSize)
		return doc
	}

	tmp := filepath.Join(dir, fmt.Sprintf("temp_%s_%s", strings.ReplaceAll(uuid.NewString(), "-", ""), name))
	defer os.Remove(tmp)

	if err := copyPart(fh, tmp); err != nil {
		s.logger.Error("api.upload.save_failed", "name", name, "error", err)
		doc.err = fmt.Errorf("save upload: %w", err)
		return doc
	}

	final := uniquePath(dir, name)
	if err := os.Rename(tmp, final); err != nil {
		doc.err = fmt.Errorf("save upload: %w", err)
		return doc
	}
	doc.name = filepath.Base(final)
	doc.path = final
	return doc
}

func copyPart(fh *multipart.FileHeader, dst string) error {
	src, err := fh.Open()
	if err != nil {
		return err
	}
	defer src.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// uploadName keeps the base name of a client supplied file name, which may
// carry a Windows path
func uploadName(filename string) string {
	name := path.Base(strings.ReplaceAll(filename, `\`, "/"))
	if name == "." || name == "/" || name == ".." {
		return ""
	}
	return name
}

type folderRequest struct {
	Directory string `json:"directory"`
}

// handleProcessFolder audits every PDF of a folder inside the input directory
func (s *Server) handleProcessFolder(w http.ResponseWriter, r *http.Request) {
	var req folderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	listing, err := s.docs.ListDirectory(req.Directory, false)
	switch {
	case errors.Is(err, security.ErrOutsideRoot):
		writeError(w, http.StatusForbidden, fmt.Sprintf("directory '%s' is outside the input folder", req.Directory))
		return
	case errors.Is(err, pdf.ErrNoPDFs):
		writeError(w, http.StatusNotFound, "no PDF files found in directory")
		return
	case err != nil:
		writeError(w, http.StatusNotFound, fmt.Sprintf("directory '%s' does not exist or cannot be read", req.Directory))
		return
	}

	docs := make([]document, 0, listing.TotalCount)
	for _, p := range listing.Paths() {
		archived, err := s.archive(p)
		docs = append(docs, document{name: filepath.Base(archived), path: archived, err: err})
		if err != nil {
			docs[len(docs)-1].name = filepath.Base(p)
			s.logger.Warn("api.archive.failed", "path", p, "error", err)
		}
	}

	s.runBatch(r.Context(), w, docs)
}

// runBatch audits the documents that made it to disk and reports one set of
// outcomes per document, in input order. The documents are already archived,
// so the batch is detached from the request: a client that goes away must
// not turn valid records into ERROR rows.
func (s *Server) runBatch(ctx context.Context, w http.ResponseWriter, docs []document) {
	ctx = context.WithoutCancel(ctx)
	if err := s.workbook.EnsureExists(); err != nil {
		s.logger.Error("api.workbook.failed", "error", err)
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("results workbook unavailable: %v", err))
		return
	}

	var paths []string
	for _, d := range docs {
		if d.err == nil {
			paths = append(paths, d.path)
		}
	}

	run, err := s.auditor.ProcessBatch(ctx, paths)
	if err != nil {
		s.logger.Warn("api.batch.interrupted", "error", err)
	}

	byName := make(map[string][]audit.Outcome)
	for _, o := range run.Outcomes {
		byName[o.Name] = append(byName[o.Name], o)
	}

	resp := batchResponse{
		RunID:     run.ID,
		Results:   make([]audit.Outcome, 0, len(run.Outcomes)+len(docs)),
		ExcelURL:  "/download/" + url.PathEscape(filepath.Base(s.workbook.Path())),
		ChartData: run.Tally,
		Failed:    run.Failed,
	}
	for _, d := range docs {
		if d.err != nil {
			resp.Failed++
			resp.Results = append(resp.Results, audit.Outcome{Name: d.name, Status: audit.OutcomeError, Error: d.err.Error()})
			continue
		}
		resp.Results = append(resp.Results, byName[d.name]...)
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleDownload serves a workbook from the output folder
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	name, err := url.PathUnescape(chi.URLParam(r, "filename"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid file name")
		return
	}
	if !strings.EqualFold(filepath.Ext(name), ".xlsx") {
		writeError(w, http.StatusNotFound, "file not found")
		return
	}
	p, err := s.downloads.Resolve(name)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid file name")
		return
	}

	f, err := os.Open(p)
	if err != nil {
		writeError(w, http.StatusNotFound, "file not found")
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil || info.IsDir() {
		writeError(w, http.StatusNotFound, "file not found")
		return
	}

	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	http.ServeContent(w, r, name, info.ModTime(), f)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusNotFound, "history is disabled")
		return
	}
	entries, err := s.history.List(r.Context(), queryInt(r, "limit", 0))
	if err != nil {
		s.logger.Error("api.history.failed", "error", err)
		writeError(w, http.StatusInternalServerError, "cannot read history")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": entries})
}

func (s *Server) handleHistoryRuns(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusNotFound, "history is disabled")
		return
	}
	runs, err := s.history.Runs(r.Context(), queryInt(r, "limit", 0))
	if err != nil {
		s.logger.Error("api.history.failed", "error", err)
		writeError(w, http.StatusInternalServerError, "cannot read history")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

// progressSocket streams {"progress": n} frames to one client until it
// disconnects or a send fails. Any origin is accepted.
func (s *Server) progressSocket() http.Handler {
	return websocket.Server{
		Handshake: func(*websocket.Config, *http.Request) error { return nil },
		Handler:   s.serveProgress,
	}
}

func (s *Server) serveProgress(ws *websocket.Conn) {
	id, updates := s.hub.Register()
	defer s.hub.Deregister(id)

	// the client never sends anything; a read error means it went away
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		var discard string
		for {
			if err := websocket.Message.Receive(ws, &discard); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case msg, ok := <-updates:
			if !ok {
				return
			}
			if err := websocket.JSON.Send(ws, msg); err != nil {
				s.logger.Debug("api.progress.send_failed", "client", id, "error", err)
				return
			}
		case <-gone:
			return
		}
	}
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
