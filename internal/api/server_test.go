package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/websocket"

	"github.com/a3tai/handover-auditor/internal/audit"
	"github.com/a3tai/handover-auditor/internal/handover"
	"github.com/a3tai/handover-auditor/internal/history"
	"github.com/a3tai/handover-auditor/internal/pdf"
	"github.com/a3tai/handover-auditor/internal/pdf/pdftest"
	"github.com/a3tai/handover-auditor/internal/progress"
	"github.com/a3tai/handover-auditor/internal/rules"
	"github.com/a3tai/handover-auditor/internal/sheet"
)

var (
	concessionPage = []string{
		"TERMO DE CONCESSAO DE EQUIPAMENTO",
		"Tipo: Notebook",
		"Marca: Dell",
		"Modelo: Latitude 5420",
		"Hostname: brspnb001",
		"Chamado: REQ0012345",
		"Assinado digitalmente por Maria Souza",
	}
	returnPage = []string{
		"TERMO DE DEVOLUCAO",
		"Tipo: Notebook",
		"Marca: Lenovo",
		"Serial: XYZ9876",
		"Nota Fiscal: 4455",
		"Assinatura: Maria Souza",
	}
)

type fixture struct {
	server  *Server
	input   string
	audited string
	output  string
	hub     *progress.Hub
	store   *history.Store
	book    *sheet.Workbook
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// registry is a hostname registry that knows every host but, like the real
// client, gives up once its context is done
type registry struct{}

func (registry) ValidateHostname(ctx context.Context, _, _ string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return true, nil
}

func newFixture(t *testing.T, withHistory bool) *fixture {
	t.Helper()
	return newFixtureWith(t, withHistory, nil)
}

func newFixtureWith(t *testing.T, withHistory bool, hv rules.HostnameValidator) *fixture {
	t.Helper()
	root := t.TempDir()
	f := &fixture{
		input:   filepath.Join(root, "entrada"),
		audited: filepath.Join(root, "termos auditados"),
		output:  filepath.Join(root, "saida"),
	}
	for _, dir := range []string{f.input, f.audited, f.output} {
		require.NoError(t, os.MkdirAll(dir, 0o755))
	}

	logger := quietLogger()
	docs, err := pdf.NewService(1024*1024, f.input, logger)
	require.NoError(t, err)

	validator, err := rules.NewValidator(rules.DefaultPolicy(), hv, logger)
	require.NoError(t, err)

	f.book = sheet.New(filepath.Join(f.output, "resultado.xlsx"), logger)
	require.NoError(t, f.book.EnsureExists())
	f.hub = progress.NewHub(progress.DefaultBuffer, logger)

	opts := audit.Options{
		Source:    docs.Reader(),
		Validator: validator,
		Sink:      f.book,
		Progress:  f.hub,
		Logger:    logger,
	}
	var reader HistoryReader
	if withHistory {
		f.store, err = history.Open(":memory:", logger)
		require.NoError(t, err)
		t.Cleanup(func() { f.store.Close() })
		opts.History = f.store
		reader = f.store
	}
	auditor, err := audit.NewService(opts)
	require.NoError(t, err)

	f.server, err = New(Options{
		Auditor:    auditor,
		Docs:       docs,
		Workbook:   f.book,
		Hub:        f.hub,
		History:    reader,
		AuditedDir: f.audited,
		Logger:     logger,
	})
	require.NoError(t, err)
	return f
}

func (f *fixture) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	return rec
}

type uploadFile struct {
	name string
	data []byte
}

func uploadRequest(t *testing.T, files ...uploadFile) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for _, file := range files {
		part, err := mw.CreateFormFile("pdfs", file.name)
		require.NoError(t, err)
		_, err = part.Write(file.data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decodeBatch(t *testing.T, rec *httptest.ResponseRecorder) batchResponse {
	t.Helper()
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp batchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestNewRequiresCollaborators(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)
}

func TestHealth(t *testing.T) {
	f := newFixture(t, false)
	rec := f.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","progressClients":0}`, rec.Body.String())
}

func TestUpload(t *testing.T) {
	f := newFixture(t, true)

	// drain progress so the hub queue stays observable
	_, updates := f.hub.Register()

	rec := f.do(uploadRequest(t,
		uploadFile{"devolucao.pdf", pdftest.Build(returnPage)},
		uploadFile{`C:\termos\concessao.pdf`, pdftest.Build(concessionPage)},
		uploadFile{"notas.txt", []byte("not a pdf")},
	))
	resp := decodeBatch(t, rec)

	require.Len(t, resp.Results, 3)
	assert.Equal(t, "devolucao.pdf", resp.Results[0].Name)
	assert.Equal(t, handover.DocTypeReturn, resp.Results[0].Type)
	assert.Equal(t, "concessao.pdf", resp.Results[1].Name)
	assert.Equal(t, handover.DocTypeConcession, resp.Results[1].Type)
	assert.Equal(t, "notas.txt", resp.Results[2].Name)
	assert.Equal(t, audit.OutcomeError, resp.Results[2].Status)
	assert.NotEmpty(t, resp.Results[2].Error)

	assert.Equal(t, 1, resp.ChartData.Concession)
	assert.Equal(t, 1, resp.ChartData.Return)
	assert.Equal(t, 1, resp.Failed)
	assert.Equal(t, "/download/resultado.xlsx", resp.ExcelURL)
	assert.NotEmpty(t, resp.RunID)

	assert.FileExists(t, filepath.Join(f.audited, "devolucao.pdf"))
	assert.FileExists(t, filepath.Join(f.audited, "concessao.pdf"))
	leftovers, err := filepath.Glob(filepath.Join(f.audited, "temp_*"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)

	rows, err := f.book.Rows()
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	var last progress.Message
	for len(updates) > 0 {
		last = <-updates
	}
	assert.Equal(t, 100, last.Progress)

	runs, err := f.store.Runs(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, resp.RunID, runs[0].ID)
}

func TestUploadSameNameTwice(t *testing.T) {
	f := newFixture(t, false)

	data := pdftest.Build(returnPage)
	resp := decodeBatch(t, f.do(uploadRequest(t,
		uploadFile{"termo.pdf", data},
		uploadFile{"termo.pdf", data},
	)))

	require.Len(t, resp.Results, 2)
	assert.Equal(t, "termo.pdf", resp.Results[0].Name)
	assert.NotEqual(t, "termo.pdf", resp.Results[1].Name)
	assert.True(t, strings.HasPrefix(resp.Results[1].Name, "termo_"))

	entries, err := os.ReadDir(f.audited)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestUploadRejectsBadRequests(t *testing.T) {
	f := newFixture(t, false)

	rec := f.do(uploadRequest(t))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/upload", strings.NewReader("plain"))
	req.Header.Set("Content-Type", "text/plain")
	rec = f.do(req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "error")
}

func TestProcessFolder(t *testing.T) {
	f := newFixture(t, false)
	pdftest.Write(t, filepath.Join(f.input, "a.pdf"), returnPage)
	pdftest.Write(t, filepath.Join(f.input, "b.pdf"), concessionPage)

	req := httptest.NewRequest(http.MethodPost, "/process-folder", strings.NewReader(`{"directory":""}`))
	resp := decodeBatch(t, f.do(req))

	require.Len(t, resp.Results, 2)
	assert.Equal(t, "a.pdf", resp.Results[0].Name)
	assert.Equal(t, "b.pdf", resp.Results[1].Name)
	assert.Equal(t, 0, resp.Failed)

	assert.NoFileExists(t, filepath.Join(f.input, "a.pdf"))
	assert.FileExists(t, filepath.Join(f.audited, "a.pdf"))
	assert.FileExists(t, filepath.Join(f.audited, "b.pdf"))
}

func TestProcessFolderOutlivesClient(t *testing.T) {
	f := newFixtureWith(t, true, registry{})
	pdftest.Write(t, filepath.Join(f.input, "concessao.pdf"), concessionPage)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodPost, "/process-folder", strings.NewReader(`{}`)).WithContext(ctx)
	resp := decodeBatch(t, f.do(req))

	require.Len(t, resp.Results, 1)
	assert.Equal(t, audit.OutcomeOK, resp.Results[0].Status, resp.Results[0].Reason)
	assert.Equal(t, handover.DocTypeConcession, resp.Results[0].Type)

	rows, err := f.book.Rows()
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, string(handover.StatusOK), rows[0][2])

	runs, err := f.store.Runs(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
}

func TestProcessFolderErrors(t *testing.T) {
	f := newFixture(t, false)
	require.NoError(t, os.Mkdir(filepath.Join(f.input, "vazio"), 0o755))

	tests := []struct {
		name string
		body string
		code int
	}{
		{"invalid body", `{"directory":`, http.StatusBadRequest},
		{"outside input", `{"directory":"` + filepath.ToSlash(t.TempDir()) + `"}`, http.StatusForbidden},
		{"traversal", `{"directory":"../.."}`, http.StatusForbidden},
		{"missing", `{"directory":"nope"}`, http.StatusNotFound},
		{"no pdfs", `{"directory":"vazio"}`, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/process-folder", strings.NewReader(tt.body))
			rec := f.do(req)
			assert.Equal(t, tt.code, rec.Code, rec.Body.String())

			var body map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestDownload(t *testing.T) {
	f := newFixture(t, false)
	require.NoError(t, os.WriteFile(filepath.Join(filepath.Dir(f.output), "secret.xlsx"), []byte("x"), 0o644))

	rec := f.do(httptest.NewRequest(http.MethodGet, "/download/resultado.xlsx", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, xlsxContentType, rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "resultado.xlsx")
	assert.NotZero(t, rec.Body.Len())

	tests := []struct {
		name string
		path string
		code int
	}{
		{"missing", "/download/outro.xlsx", http.StatusNotFound},
		{"not a workbook", "/download/notas.txt", http.StatusNotFound},
		{"encoded traversal", "/download/..%2Fsecret.xlsx", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(httptest.NewRequest(http.MethodGet, tt.path, nil))
			assert.Equal(t, tt.code, rec.Code)
			assert.Contains(t, rec.Body.String(), `"error"`)
		})
	}

	rec = f.do(httptest.NewRequest(http.MethodGet, "/download/outro.xlsx", nil))
	assert.JSONEq(t, `{"error":"file not found"}`, rec.Body.String())
}

func TestHistory(t *testing.T) {
	f := newFixture(t, true)
	decodeBatch(t, f.do(uploadRequest(t, uploadFile{"devolucao.pdf", pdftest.Build(returnPage)})))
	decodeBatch(t, f.do(uploadRequest(t, uploadFile{"concessao.pdf", pdftest.Build(concessionPage)})))

	rec := f.do(httptest.NewRequest(http.MethodGet, "/history/runs", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var runs struct {
		Runs []history.RunSummary `json:"runs"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &runs))
	assert.Len(t, runs.Runs, 2)

	rec = f.do(httptest.NewRequest(http.MethodGet, "/history?limit=1", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var entries struct {
		Results []history.Entry `json:"results"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
	require.Len(t, entries.Results, 1)
	assert.Equal(t, "concessao.pdf", entries.Results[0].Name)
}

func TestHistoryDisabled(t *testing.T) {
	f := newFixture(t, false)

	for _, path := range []string{"/history", "/history/runs"} {
		rec := f.do(httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusNotFound, rec.Code, path)
	}
}

func TestCORSPreflight(t *testing.T) {
	f := newFixture(t, false)

	req := httptest.NewRequest(http.MethodOptions, "/upload", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rec := f.do(req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Credentials"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "POST")

	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("Origin", "http://evil.example")
	rec = f.do(req)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Credentials"))
	assert.Empty(t, rec.Header().Values("Vary"))
}

func TestProgressSocket(t *testing.T) {
	f := newFixture(t, false)
	ts := httptest.NewServer(f.server.Handler())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/progress"
	ws, err := websocket.Dial(wsURL, "", "http://elsewhere.example")
	require.NoError(t, err)

	require.Eventually(t, func() bool { return f.hub.Clients() == 1 }, 2*time.Second, 10*time.Millisecond)

	f.hub.Publish(40)
	f.hub.Publish(100)

	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg progress.Message
	require.NoError(t, websocket.JSON.Receive(ws, &msg))
	assert.Equal(t, 40, msg.Progress)
	require.NoError(t, websocket.JSON.Receive(ws, &msg))
	assert.Equal(t, 100, msg.Progress)

	require.NoError(t, ws.Close())
	assert.Eventually(t, func() bool { return f.hub.Clients() == 0 }, 2*time.Second, 10*time.Millisecond)
}
