package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"SheetSend/internal/email"
	"SheetSend/internal/job"
)

type fakeTransport struct {
	calls []email.Message
}

func (f *fakeTransport) Send(m email.Message) error {
	f.calls = append(f.calls, m)
	return nil
}

func newTestHandler(t *testing.T) (*Handler, *fakeTransport, chi.Router) {
	t.Helper()

	manager := job.NewManager()
	transport := &fakeTransport{}
	h := &Handler{
		Jobs:       manager,
		Runner:     job.NewRunner(manager, transport, zap.NewNop()),
		Log:        zap.NewNop(),
		UploadsDir: t.TempDir(),
	}
	router := chi.NewRouter()
	h.Routes(router)
	return h, transport, router
}

func workbookBytes(t *testing.T, rows [][]any) []byte {
	t.Helper()

	f := excelize.NewFile()
	name := f.GetSheetName(0)
	for r, row := range rows {
		for c, v := range row {
			cell, err := excelize.CoordinatesToCellName(c+1, r+1)
			require.NoError(t, err)
			require.NoError(t, f.SetCellValue(name, cell, v))
		}
	}
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	require.NoError(t, f.Close())
	return buf.Bytes()
}

func TestUploadAndPreview(t *testing.T) {
	_, _, router := newTestHandler(t)

	rows := [][]any{{"email", "name", "status", "send_time"}}
	for i := 0; i < 8; i++ {
		rows = append(rows, []any{fmt.Sprintf("u%d@example.com", i), fmt.Sprintf("User %d", i), "", ""})
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("xlsfile", "recipients.xlsx")
	require.NoError(t, err)
	_, err = fw.Write(workbookBytes(t, rows))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/upload-and-preview", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		FileName        string              `json:"fileName"`
		OriginalXlsName string              `json:"originalXlsName"`
		Headers         []string            `json:"headers"`
		RowCount        int                 `json:"rowCount"`
		PreviewData     []map[string]string `json:"previewData"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	assert.Equal(t, "recipients.xlsx", resp.OriginalXlsName)
	assert.True(t, strings.HasSuffix(resp.FileName, "-recipients.xlsx"))
	assert.Equal(t, []string{"email", "name", "status", "send_time"}, resp.Headers)
	assert.Equal(t, 8, resp.RowCount)
	assert.Len(t, resp.PreviewData, 5)
}

func TestUploadAndPreviewRejectsWrongType(t *testing.T) {
	_, _, router := newTestHandler(t)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("xlsfile", "notes.txt")
	require.NoError(t, err)
	_, err = fw.Write([]byte("not a workbook"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/upload-and-preview", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func initiateForm(t *testing.T, fields map[string]string, attachments map[string][]byte) (*bytes.Buffer, string) {
	t.Helper()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	for name, content := range attachments {
		fw, err := mw.CreateFormFile("attachments", name)
		require.NoError(t, err)
		_, err = fw.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &body, mw.FormDataContentType()
}

func storedSheetName(t *testing.T, h *Handler, rows [][]any) string {
	t.Helper()

	name := fmt.Sprintf("%d-list.xlsx", time.Now().UnixMilli())
	path := filepath.Join(h.UploadsDir, name)
	require.NoError(t, os.WriteFile(path, workbookBytes(t, rows), 0o644))
	return name
}

func TestInitiateSendingJob(t *testing.T) {
	h, _, router := newTestHandler(t)

	stored := storedSheetName(t, h, [][]any{{"email"}, {"a@example.com"}})
	body, contentType := initiateForm(t, map[string]string{
		"filePath":        stored,
		"originalXlsName": "list.xlsx",
		"subjectTemplate": "Hello {{name}}",
		"bodyTemplate":    "<p>Hi</p>",
		"headers":         `["email","name"]`,
		"sendInterval":    "2",
	}, map[string][]byte{"flyer.pdf": []byte("pdf")})

	req := httptest.NewRequest(http.MethodPost, "/initiate-sending-job", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp["jobId"])

	// The attachment was stored under a temp name in the uploads dir.
	entries, err := os.ReadDir(h.UploadsDir)
	require.NoError(t, err)
	found := false
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), "attachment-") {
			found = true
		}
	}
	assert.True(t, found)
}

func TestInitiateSendingJobValidationCleansAttachments(t *testing.T) {
	h, _, router := newTestHandler(t)

	// Missing subject template: the job must be rejected and the already
	// saved attachment temp files removed.
	body, contentType := initiateForm(t, map[string]string{
		"filePath":        "does-not-matter.xlsx",
		"originalXlsName": "list.xlsx",
		"bodyTemplate":    "<p>Hi</p>",
		"headers":         `["email"]`,
	}, map[string][]byte{"flyer.pdf": []byte("pdf")})

	req := httptest.NewRequest(http.MethodPost, "/initiate-sending-job", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)

	entries, err := os.ReadDir(h.UploadsDir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.HasPrefix(e.Name(), "attachment-"), "leftover temp file: %s", e.Name())
	}
}

func TestSendEmailsStream(t *testing.T) {
	h, transport, router := newTestHandler(t)

	stored := storedSheetName(t, h, [][]any{
		{"email", "name"},
		{"a@example.com", "Ada"},
		{"b@example.com", "Bob"},
	})

	jobID, err := h.Jobs.Create(job.CreateParams{
		SheetPath:       filepath.Join(h.UploadsDir, stored),
		StoredName:      stored,
		OriginalName:    "list.xlsx",
		SubjectTemplate: "Hello {{name}}",
		BodyTemplate:    "<p>Hi {{name}}</p>",
		Headers:         []string{"email", "name"},
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/send-emails-stream?jobId="+jobID, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	out := rec.Body.String()
	assert.Contains(t, out, "event: job_started")
	assert.Contains(t, out, "event: data_loaded")
	assert.Equal(t, 2, strings.Count(out, "event: progress"))
	assert.Contains(t, out, "event: batch_save")
	assert.Contains(t, out, "event: complete")
	assert.Contains(t, out, `"successCount":2`)
	assert.Contains(t, out, `"suggestedDownloadName":"list.xlsx"`)

	require.Len(t, transport.calls, 2)
	assert.Equal(t, "Hello Ada", transport.calls[0].Subject)

	// The job id is consumed: a second stream attempt is rejected.
	rec2 := httptest.NewRecorder()
	router.ServeHTTP(rec2, httptest.NewRequest(http.MethodGet, "/send-emails-stream?jobId="+jobID, nil))
	assert.Equal(t, http.StatusNotFound, rec2.Code)
}

func TestSendEmailsStreamUnknownJob(t *testing.T) {
	_, _, router := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/send-emails-stream?jobId=nope", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUploadsAreServed(t *testing.T) {
	h, _, router := newTestHandler(t)

	require.NoError(t, os.WriteFile(filepath.Join(h.UploadsDir, "out.xlsx"), []byte("data"), 0o644))

	req := httptest.NewRequest(http.MethodGet, "/uploads/out.xlsx", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "data", rec.Body.String())
}
